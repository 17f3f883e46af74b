package llm

import (
	"regexp"
	"strings"
)

const summarizeSystemPrompt = `You summarize emails for a busy reader.
Answer in exactly this format:

Summary: <two to four sentences>
Actions:
- <one action the reader should take>

List only concrete actions. If there are none, write "Actions:" followed by "- None".`

// SummarizePrompt returns the system and user messages for summarizing an
// email. Replies are read with ParseSummary.
func SummarizePrompt(email string) (system, user string) {
	return summarizeSystemPrompt, truncateBody(email, 6000)
}

var (
	summaryLabel = regexp.MustCompile(`(?im)^\s*\**\s*summary\s*\**\s*:\s*\**`)
	actionsLabel = regexp.MustCompile(`(?im)^\s*\**\s*(?:actions|action items)\s*\**\s*:\s*\**`)
	bulletPrefix = regexp.MustCompile(`^\s*(?:[-*•]|\d+[.)])\s*`)
)

// ParseSummary splits a reply into its Summary and Actions sections. Labels
// are matched case-insensitively. A reply without a Summary label is used
// whole as the summary; a missing Actions section yields no actions.
func ParseSummary(reply string) (string, []string) {
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return "", nil
	}

	summaryPart, actionsPart := reply, ""
	if loc := actionsLabel.FindStringIndex(reply); loc != nil {
		summaryPart = reply[:loc[0]]
		actionsPart = reply[loc[1]:]
	}
	if loc := summaryLabel.FindStringIndex(summaryPart); loc != nil {
		summaryPart = summaryPart[loc[1]:]
	}

	return strings.Join(strings.Fields(summaryPart), " "), parseActions(actionsPart)
}

func parseActions(section string) []string {
	actions := []string{}
	for _, line := range strings.Split(section, "\n") {
		item := strings.TrimSpace(bulletPrefix.ReplaceAllString(line, ""))
		item = strings.Trim(item, "* ")
		if item == "" || isNoneAction(item) {
			continue
		}
		actions = append(actions, item)
	}
	return actions
}

func isNoneAction(s string) bool {
	switch strings.ToLower(strings.TrimRight(s, ".")) {
	case "none", "n/a", "no action", "no actions", "no action needed", "no action required":
		return true
	}
	return false
}
