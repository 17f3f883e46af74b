package out

import (
	"context"
	"errors"
)

// ErrBlockedURL is returned when a navigation target is not allowed.
var ErrBlockedURL = errors.New("navigation target not allowed")

// Browser launches isolated headless sessions.
type Browser interface {
	NewSession(ctx context.Context) (BrowserSession, error)
}

// BrowserSession is one isolated page. Close must always be called.
type BrowserSession interface {
	Navigate(ctx context.Context, url string) (*NavigationResult, error)
	// HTML returns the serialized DOM of the current page.
	HTML(ctx context.Context) (string, error)
	// Text returns the visible text of the current page.
	Text(ctx context.Context) (string, error)
	CurrentURL(ctx context.Context) (string, error)
	Click(ctx context.Context, selector string) error
	SetChecked(ctx context.Context, selector string, checked bool) error
	Submit(ctx context.Context, formSelector string) error
	Close() error
}

type NavigationResult struct {
	URL        string
	StatusCode int
}

// OneClickUnsubscriber performs RFC 8058 one-click POSTs.
type OneClickUnsubscriber interface {
	PostOneClick(ctx context.Context, url string) (statusCode int, err error)
}
