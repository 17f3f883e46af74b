// Package provider implements the mailbox provider adapter for Gmail.
package provider

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"triage_server/core/port/out"
	"triage_server/pkg/httputil"
	"triage_server/pkg/logger"
	"triage_server/pkg/resilience"

	"github.com/sony/gobreaker"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const (
	providerName   = "gmail"
	inboxLabel     = "INBOX"
	maxPageSize    = 500
	requestTimeout = 30 * time.Second
)

// GmailAdapter implements out.MailboxProvider on the Gmail REST API.
type GmailAdapter struct {
	config   *oauth2.Config
	endpoint string
	client   *http.Client
	cb       *gobreaker.CircuitBreaker
}

// GmailConfig holds Gmail configuration.
type GmailConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	// Endpoint overrides the API base URL.
	Endpoint string
	// HTTPClient is the transport under the OAuth client.
	HTTPClient *http.Client
}

// NewGmailAdapter creates a new Gmail adapter.
func NewGmailAdapter(cfg *GmailConfig) *GmailAdapter {
	config := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Scopes: []string{
			gmail.GmailReadonlyScope,
			gmail.GmailModifyScope,
		},
		Endpoint: google.Endpoint,
	}

	client := cfg.HTTPClient
	if client == nil {
		client = httputil.GmailClient()
	}

	return &GmailAdapter{
		config:   config,
		endpoint: cfg.Endpoint,
		client:   client,
		cb: resilience.NewBreaker(resilience.BreakerConfig{
			Name:          "gmail-api",
			IsClientError: isGmailClientError,
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("[CircuitBreaker] %s: state changed from %s to %s", name, from.String(), to.String())
			},
		}),
	}
}

// ListRecentMessages returns up to pageSize inbox message ids, newest first.
func (a *GmailAdapter) ListRecentMessages(ctx context.Context, token *oauth2.Token, pageSize int) ([]out.ProviderMessageRef, error) {
	if pageSize <= 0 || pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	ctx, cancel := withDefaultTimeout(ctx)
	defer cancel()

	svc, err := a.getService(ctx, token)
	if err != nil {
		return nil, err
	}

	var resp *gmail.ListMessagesResponse
	err = a.executeWithCircuitBreaker(func() error {
		var apiErr error
		resp, apiErr = svc.Users.Messages.List("me").
			LabelIds(inboxLabel).
			MaxResults(int64(pageSize)).
			Context(ctx).
			Do()
		return apiErr
	})
	if err != nil {
		return nil, a.wrapError(err, "failed to list messages")
	}

	refs := make([]out.ProviderMessageRef, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		refs = append(refs, out.ProviderMessageRef{ID: m.Id, ThreadID: m.ThreadId})
	}
	return refs, nil
}

// GetMessage fetches the raw RFC 5322 message and parses it.
func (a *GmailAdapter) GetMessage(ctx context.Context, token *oauth2.Token, messageID string) (*out.ProviderMessage, error) {
	ctx, cancel := withDefaultTimeout(ctx)
	defer cancel()

	svc, err := a.getService(ctx, token)
	if err != nil {
		return nil, err
	}

	var msg *gmail.Message
	err = a.executeWithCircuitBreaker(func() error {
		var apiErr error
		msg, apiErr = svc.Users.Messages.Get("me", messageID).Format("raw").Context(ctx).Do()
		return apiErr
	})
	if err != nil {
		return nil, a.wrapError(err, "failed to get message")
	}

	raw, err := decodeRaw(msg.Raw)
	if err != nil {
		return nil, out.NewProviderError(providerName, out.ProviderErrInvalidInput, "undecodable raw message", err, false)
	}
	parsed, err := ParseRawMessage(msg.Id, raw)
	if err != nil {
		return nil, out.NewProviderError(providerName, out.ProviderErrInvalidInput, "unparsable message", err, false)
	}
	parsed.ThreadID = msg.ThreadId
	if parsed.ReceivedAt.IsZero() && msg.InternalDate > 0 {
		parsed.ReceivedAt = time.UnixMilli(msg.InternalDate).UTC()
	}
	return parsed, nil
}

// ArchiveMessage removes the INBOX label.
func (a *GmailAdapter) ArchiveMessage(ctx context.Context, token *oauth2.Token, messageID string) error {
	return a.modifyLabels(ctx, token, messageID, nil, []string{inboxLabel})
}

// Ping reports the Gmail API as unavailable while the circuit breaker is open.
func (a *GmailAdapter) Ping(context.Context) error {
	if state := a.cb.State(); state == gobreaker.StateOpen {
		return fmt.Errorf("gmail circuit breaker %s", state)
	}
	return nil
}

func (a *GmailAdapter) getService(ctx context.Context, token *oauth2.Token) (*gmail.Service, error) {
	base := context.WithValue(context.Background(), oauth2.HTTPClient, a.client)
	httpClient := oauth2.NewClient(base, a.config.TokenSource(base, token))

	opts := []option.ClientOption{option.WithHTTPClient(httpClient)}
	if a.endpoint != "" {
		opts = append(opts, option.WithEndpoint(a.endpoint))
	}
	svc, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, out.NewProviderError(providerName, out.ProviderErrNetwork, "failed to create gmail client", err, true)
	}
	return svc, nil
}

func (a *GmailAdapter) executeWithCircuitBreaker(fn func() error) error {
	return resilience.Run(a.cb, fn)
}

func (a *GmailAdapter) modifyLabels(ctx context.Context, token *oauth2.Token, messageID string, addLabels, removeLabels []string) error {
	ctx, cancel := withDefaultTimeout(ctx)
	defer cancel()

	svc, err := a.getService(ctx, token)
	if err != nil {
		return err
	}

	req := &gmail.ModifyMessageRequest{
		AddLabelIds:    addLabels,
		RemoveLabelIds: removeLabels,
	}
	err = a.executeWithCircuitBreaker(func() error {
		_, apiErr := svc.Users.Messages.Modify("me", messageID, req).Context(ctx).Do()
		return apiErr
	})
	if err != nil {
		return a.wrapError(err, "failed to modify labels")
	}
	return nil
}

func (a *GmailAdapter) wrapError(err error, defaultMsg string) error {
	if err == nil {
		return nil
	}
	if resilience.IsBreakerRejection(err) {
		return out.NewProviderError(providerName, out.ProviderErrServer, "gmail circuit open", err, true)
	}

	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return out.NewProviderError(providerName, out.ProviderErrTokenExpired, "Token refresh failed", err, false)
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case 401:
			return out.NewProviderError(providerName, out.ProviderErrTokenExpired, "Token expired", err, false)
		case 403:
			if strings.Contains(strings.ToLower(apiErr.Message), "rate limit") {
				return out.NewProviderError(providerName, out.ProviderErrRateLimit, "Rate limit exceeded", err, true)
			}
			return out.NewProviderError(providerName, out.ProviderErrAuth, "Access denied", err, false)
		case 404:
			return out.NewProviderError(providerName, out.ProviderErrNotFound, "Not found", err, false)
		case 429:
			return out.NewProviderError(providerName, out.ProviderErrRateLimit, "Too many requests", err, true)
		case 500, 502, 503, 504:
			return out.NewProviderError(providerName, out.ProviderErrServer, "Server error", err, true)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return out.NewProviderError(providerName, out.ProviderErrNetwork, "request timed out", err, true)
	}

	return out.NewProviderError(providerName, out.ProviderErrServer, defaultMsg, err, true)
}

// isGmailClientError reports errors that say nothing about Gmail's health.
func isGmailClientError(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case 400, 401, 403, 404:
			return true
		}
	}
	var retrieveErr *oauth2.RetrieveError
	return errors.As(err, &retrieveErr)
}

func decodeRaw(raw string) ([]byte, error) {
	if b, err := base64.URLEncoding.DecodeString(raw); err == nil {
		return b, nil
	}
	b, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(raw, "="))
	if err != nil {
		return nil, fmt.Errorf("decode raw message: %w", err)
	}
	return b, nil
}

func withDefaultTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, requestTimeout)
}
