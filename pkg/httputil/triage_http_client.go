// Package httputil provides pooled HTTP clients for outbound integrations.
package httputil

import (
	"errors"
	"net"
	"net/http"
	"time"
)

// ClientConfig holds HTTP client configuration.
type ClientConfig struct {
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	MaxConnsPerHost     int
	IdleConnTimeout     time.Duration

	DialTimeout         time.Duration
	TLSHandshakeTimeout time.Duration
	ResponseTimeout     time.Duration

	KeepAliveInterval time.Duration
	// MaxRedirects of 0 keeps net/http's default policy.
	MaxRedirects int
}

func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 20,
		MaxConnsPerHost:     100,
		IdleConnTimeout:     90 * time.Second,
		DialTimeout:         10 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		ResponseTimeout:     30 * time.Second,
		KeepAliveInterval:   30 * time.Second,
	}
}

// GmailClientConfig allows long responses for raw message downloads.
func GmailClientConfig() *ClientConfig {
	cfg := DefaultClientConfig()
	cfg.MaxIdleConnsPerHost = 50
	cfg.IdleConnTimeout = 120 * time.Second
	cfg.ResponseTimeout = 60 * time.Second
	return cfg
}

// OpenAIClientConfig uses a long timeout for completions.
func OpenAIClientConfig() *ClientConfig {
	cfg := DefaultClientConfig()
	cfg.MaxIdleConns = 30
	cfg.MaxConnsPerHost = 30
	cfg.IdleConnTimeout = 120 * time.Second
	cfg.ResponseTimeout = 120 * time.Second
	return cfg
}

// UnsubscribeClientConfig is used for one-click POSTs to sender endpoints.
func UnsubscribeClientConfig() *ClientConfig {
	cfg := DefaultClientConfig()
	cfg.MaxIdleConns = 20
	cfg.MaxIdleConnsPerHost = 2
	cfg.MaxConnsPerHost = 4
	cfg.ResponseTimeout = 15 * time.Second
	cfg.MaxRedirects = 5
	return cfg
}

var errTooManyRedirects = errors.New("stopped after too many redirects")

func NewClient(cfg *ClientConfig) *http.Client {
	if cfg == nil {
		cfg = DefaultClientConfig()
	}

	dialer := &net.Dialer{
		Timeout:   cfg.DialTimeout,
		KeepAlive: cfg.KeepAliveInterval,
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		MaxIdleConns:          cfg.MaxIdleConns,
		MaxIdleConnsPerHost:   cfg.MaxIdleConnsPerHost,
		MaxConnsPerHost:       cfg.MaxConnsPerHost,
		IdleConnTimeout:       cfg.IdleConnTimeout,
		TLSHandshakeTimeout:   cfg.TLSHandshakeTimeout,
		ForceAttemptHTTP2:     true,
		ResponseHeaderTimeout: cfg.ResponseTimeout,
	}

	client := &http.Client{
		Transport: transport,
		Timeout:   cfg.ResponseTimeout,
	}
	if cfg.MaxRedirects > 0 {
		limit := cfg.MaxRedirects
		client.CheckRedirect = func(_ *http.Request, via []*http.Request) error {
			if len(via) >= limit {
				return errTooManyRedirects
			}
			return nil
		}
	}
	return client
}

var (
	gmailClient       = NewClient(GmailClientConfig())
	openaiClient      = NewClient(OpenAIClientConfig())
	unsubscribeClient = NewClient(UnsubscribeClientConfig())
)

func GmailClient() *http.Client       { return gmailClient }
func OpenAIClient() *http.Client      { return openaiClient }
func UnsubscribeClient() *http.Client { return unsubscribeClient }
