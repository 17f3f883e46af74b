// Package resilience provides fault tolerance helpers for outbound calls.
package resilience

import (
	"errors"
	"time"

	"github.com/sony/gobreaker"
)

// ErrCircuitOpen is returned while the breaker rejects calls.
var ErrCircuitOpen = gobreaker.ErrOpenState

// BreakerConfig configures NewBreaker.
type BreakerConfig struct {
	Name string
	// IsClientError marks errors that must not count toward tripping,
	// e.g. 4xx responses caused by the request itself.
	IsClientError func(error) bool
	OnStateChange func(name string, from, to gobreaker.State)
}

// NewBreaker opens after more than 5 consecutive failures, or a 60% failure
// ratio over at least 10 requests, and probes again after 30s.
func NewBreaker(cfg BreakerConfig) *gobreaker.CircuitBreaker {
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.ConsecutiveFailures > 5 {
				return true
			}
			if counts.Requests < 10 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		OnStateChange: cfg.OnStateChange,
	}
	if cfg.IsClientError != nil {
		isClient := cfg.IsClientError
		settings.IsSuccessful = func(err error) bool {
			return err == nil || isClient(err)
		}
	}
	return gobreaker.NewCircuitBreaker(settings)
}

// Run executes fn through cb and returns only its error.
func Run(cb *gobreaker.CircuitBreaker, fn func() error) error {
	_, err := cb.Execute(func() (any, error) {
		return nil, fn()
	})
	return err
}

// IsBreakerRejection reports whether err came from the breaker itself.
func IsBreakerRejection(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
