package logger

import "strings"

type contextKey string

const (
	ContextKeyRequestID contextKey = "request_id"
	ContextKeyUserID    contextKey = "user_id"
)

// MaskEmail keeps the first character of the local part and the domain.
func MaskEmail(addr string) string {
	at := strings.LastIndex(addr, "@")
	if at <= 0 {
		if addr == "" {
			return ""
		}
		return "***"
	}
	return addr[:1] + "***" + addr[at:]
}

// MaskURL drops the query string and fragment, which usually carry
// subscriber tokens.
func MaskURL(raw string) string {
	if i := strings.IndexAny(raw, "?#"); i >= 0 {
		return raw[:i] + "?…"
	}
	return raw
}
