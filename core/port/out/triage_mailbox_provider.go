// Package out defines outbound ports (driven ports) for the application.
package out

import (
	"context"
	"errors"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// MailboxProvider reads and archives messages in a remote mailbox.
type MailboxProvider interface {
	// ListRecentMessages returns up to pageSize ids from the inbox, newest first.
	ListRecentMessages(ctx context.Context, token *oauth2.Token, pageSize int) ([]ProviderMessageRef, error)
	GetMessage(ctx context.Context, token *oauth2.Token, messageID string) (*ProviderMessage, error)
	// ArchiveMessage removes the message from the inbox without deleting it.
	ArchiveMessage(ctx context.Context, token *oauth2.Token, messageID string) error
}

type ProviderMessageRef struct {
	ID       string
	ThreadID string
}

// ProviderMessage is a parsed raw message.
type ProviderMessage struct {
	ID         string
	ThreadID   string
	Headers    map[string]string
	Subject    string
	From       string
	ReceivedAt time.Time
	// Body is set only for single-part messages.
	Body  string
	Parts []MessagePart
}

type MessagePart struct {
	ContentType string
	Content     string
}

// Header looks a header up case-insensitively.
func (m *ProviderMessage) Header(name string) string {
	if v, ok := m.Headers[name]; ok {
		return v
	}
	for k, v := range m.Headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// FirstPart returns the first part of the given content type.
func (m *ProviderMessage) FirstPart(contentType string) (string, bool) {
	for _, p := range m.Parts {
		if strings.EqualFold(p.ContentType, contentType) {
			return p.Content, true
		}
	}
	return "", false
}

// ProviderErrorCode represents error codes.
type ProviderErrorCode string

const (
	ProviderErrAuth         ProviderErrorCode = "auth_error"
	ProviderErrTokenExpired ProviderErrorCode = "token_expired"
	ProviderErrRateLimit    ProviderErrorCode = "rate_limit"
	ProviderErrNotFound     ProviderErrorCode = "not_found"
	ProviderErrNetwork      ProviderErrorCode = "network_error"
	ProviderErrServer       ProviderErrorCode = "server_error"
	ProviderErrInvalidInput ProviderErrorCode = "invalid_input"
)

// ProviderError represents a mailbox provider error.
type ProviderError struct {
	Provider  string
	Code      ProviderErrorCode
	Message   string
	Err       error
	Retryable bool
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

func NewProviderError(provider string, code ProviderErrorCode, message string, err error, retryable bool) *ProviderError {
	return &ProviderError{
		Provider:  provider,
		Code:      code,
		Message:   message,
		Err:       err,
		Retryable: retryable,
	}
}

// IsAuthError reports whether err means the mailbox credential is unusable.
func IsAuthError(err error) bool {
	var pe *ProviderError
	if !errors.As(err, &pe) {
		return false
	}
	return pe.Code == ProviderErrAuth || pe.Code == ProviderErrTokenExpired
}
