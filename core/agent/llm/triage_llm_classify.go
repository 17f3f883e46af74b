package llm

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

const classifySystemPrompt = `You sort emails into the user's categories.
Reply with the number of the single best matching category on the first line, then one short sentence explaining why.
Reply with 0 if no category fits.`

// CategoryOption is one numbered choice offered to the model.
type CategoryOption struct {
	Name        string
	Description string
}

// ClassifyPrompt returns the system and user messages used to pick one of
// options for the email.
func ClassifyPrompt(email string, options []CategoryOption) (system, user string) {
	return classifySystemPrompt, BuildClassifyPrompt(email, options)
}

func BuildClassifyPrompt(email string, options []CategoryOption) string {
	var b strings.Builder
	b.WriteString("Categories:\n")
	for i, opt := range options {
		fmt.Fprintf(&b, "%d. %s", i+1, opt.Name)
		if d := strings.TrimSpace(opt.Description); d != "" {
			fmt.Fprintf(&b, ": %s", d)
		}
		b.WriteString("\n")
	}
	b.WriteString("\nEmail:\n")
	b.WriteString(truncateBody(email, 3000))
	return b.String()
}

var (
	leadingNumber = regexp.MustCompile(`(?i)^\s*(?:category\s*)?#?\s*(\d+)`)
	anyNumber     = regexp.MustCompile(`\d+`)
)

// ParseCategoryChoice reads the chosen index out of a model reply. The
// leading integer of the first line wins; otherwise the first integer
// anywhere. Out-of-range values and 0 mean no match.
func ParseCategoryChoice(reply string, count int) (int, string) {
	reply = strings.TrimSpace(stripCodeFence(reply))
	if reply == "" {
		return 0, ""
	}

	firstLine, rest, _ := strings.Cut(reply, "\n")

	var raw string
	if m := leadingNumber.FindStringSubmatch(firstLine); m != nil {
		raw = m[1]
	} else {
		raw = anyNumber.FindString(reply)
	}
	if raw == "" {
		return 0, ""
	}

	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > count {
		return 0, ""
	}

	rationale := strings.TrimSpace(leadingNumber.ReplaceAllString(firstLine, ""))
	rationale = strings.TrimLeft(rationale, ".):- ")
	if rationale == "" {
		rationale = strings.TrimSpace(rest)
	}
	return n, rationale
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.Index(s, "\n"); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimSuffix(strings.TrimSpace(s), "```")
}

func truncateBody(body string, maxLen int) string {
	r := []rune(body)
	if len(r) <= maxLen {
		return body
	}
	return string(r[:maxLen]) + "..."
}
