package llm

import "strings"

// textStrategy pulls assistant text out of one known reply shape.
type textStrategy func(payload map[string]any) (string, bool)

// responseStrategies are tried in order; the first non-empty text wins.
var responseStrategies = []textStrategy{
	chatMessageContent,
	chatMessageContentParts,
	legacyChoiceText,
	outputText,
	topLevelContentParts,
}

// ExtractText returns the assistant text of a completion reply, or "" when
// no known shape matches.
func ExtractText(payload map[string]any) string {
	for _, strategy := range responseStrategies {
		if text, ok := strategy(payload); ok {
			if text = strings.TrimSpace(text); text != "" {
				return text
			}
		}
	}
	return ""
}

func firstChoice(payload map[string]any) (map[string]any, bool) {
	choices, ok := payload["choices"].([]any)
	if !ok || len(choices) == 0 {
		return nil, false
	}
	choice, ok := choices[0].(map[string]any)
	return choice, ok
}

func choiceMessage(payload map[string]any) (map[string]any, bool) {
	choice, ok := firstChoice(payload)
	if !ok {
		return nil, false
	}
	msg, ok := choice["message"].(map[string]any)
	return msg, ok
}

// {"choices":[{"message":{"content":"..."}}]}
func chatMessageContent(payload map[string]any) (string, bool) {
	msg, ok := choiceMessage(payload)
	if !ok {
		return "", false
	}
	s, ok := msg["content"].(string)
	return s, ok
}

// {"choices":[{"message":{"content":[{"type":"text","text":"..."}]}}]}
func chatMessageContentParts(payload map[string]any) (string, bool) {
	msg, ok := choiceMessage(payload)
	if !ok {
		return "", false
	}
	return joinTextParts(msg["content"])
}

// {"choices":[{"text":"..."}]}
func legacyChoiceText(payload map[string]any) (string, bool) {
	choice, ok := firstChoice(payload)
	if !ok {
		return "", false
	}
	s, ok := choice["text"].(string)
	return s, ok
}

// {"output_text":"..."}
func outputText(payload map[string]any) (string, bool) {
	s, ok := payload["output_text"].(string)
	return s, ok
}

// {"content":[{"text":"..."}]}
func topLevelContentParts(payload map[string]any) (string, bool) {
	return joinTextParts(payload["content"])
}

func joinTextParts(v any) (string, bool) {
	parts, ok := v.([]any)
	if !ok || len(parts) == 0 {
		return "", false
	}
	var b strings.Builder
	for _, p := range parts {
		part, ok := p.(map[string]any)
		if !ok {
			continue
		}
		if s, ok := part["text"].(string); ok {
			if b.Len() > 0 {
				b.WriteString("\n")
			}
			b.WriteString(s)
		}
	}
	return b.String(), b.Len() > 0
}
