package unsubscribe

import "regexp"

// PageState is what the visible text of a page says about the subscription.
type PageState string

const (
	PageUnknown     PageState = "unknown"
	PageSuccess     PageState = "success"
	PageAlreadyDone PageState = "already_done"
)

// PageVerdict carries the state and the text that produced it.
type PageVerdict struct {
	State   PageState
	Matched string
}

var (
	alreadyDonePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)already\s+(been\s+)?(unsubscribed|opted[\s-]?out|removed)`),
		regexp.MustCompile(`(?i)not\s+(currently\s+)?subscribed`),
		regexp.MustCompile(`(?i)no\s+active\s+subscriptions?`),
		regexp.MustCompile(`(?i)not\s+on\s+(our|the|this)\s+(mailing|email)\s+list`),
	}

	successPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)successfully\s+(unsubscribed|removed|opted[\s-]?out)`),
		regexp.MustCompile(`(?i)unsubscribed\s+successfully`),
		regexp.MustCompile(`(?i)unsubscribe\s+(was\s+|is\s+)?(successful|complete|confirmed)`),
		regexp.MustCompile(`(?i)no\s+longer\s+receive`),
		regexp.MustCompile(`(?i)removed\s+from\s+(our\s+|the\s+|this\s+)?(mailing|email|distribution|contact)\s+list`),
		regexp.MustCompile(`(?i)(preferences|settings)\s+(have\s+been\s+|were\s+|are\s+)?(updated|saved)`),
		regexp.MustCompile(`(?i)you\s+(have\s+been|are\s+now|were|are)\s+unsubscribed`),
		regexp.MustCompile(`(?i)subscription\s+(has\s+been\s+)?(cancell?ed|removed|ended)`),
		regexp.MustCompile(`(?i)opt[\s-]?out\s+(request\s+)?(is\s+|was\s+)?(complete|confirmed|successful)`),
	}
)

// DetectPageState matches already-done phrases first so that "you are
// already unsubscribed" is not reported as a fresh success.
func DetectPageState(text string) PageVerdict {
	if text == "" {
		return PageVerdict{State: PageUnknown}
	}
	for _, re := range alreadyDonePatterns {
		if m := re.FindString(text); m != "" {
			return PageVerdict{State: PageAlreadyDone, Matched: m}
		}
	}
	for _, re := range successPatterns {
		if m := re.FindString(text); m != "" {
			return PageVerdict{State: PageSuccess, Matched: m}
		}
	}
	return PageVerdict{State: PageUnknown}
}
