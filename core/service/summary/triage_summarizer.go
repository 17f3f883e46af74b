package summary

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"triage_server/core/agent/llm"
	"triage_server/core/domain"
	"triage_server/core/port/out"
)

// ErrNoSummary is returned when the provider replied without usable text.
var ErrNoSummary = errors.New("provider returned no summary")

type Summarizer struct {
	ai out.AIProvider
}

func NewSummarizer(ai out.AIProvider) *Summarizer {
	return &Summarizer{ai: ai}
}

// Summarize returns a short summary and the action items of an email.
// Callers are expected to fall back to domain.FallbackSummary on error.
func (s *Summarizer) Summarize(ctx context.Context, email string) (*domain.Summary, error) {
	if strings.TrimSpace(email) == "" {
		return nil, ErrNoSummary
	}

	system, user := llm.SummarizePrompt(email)
	reply, err := s.ai.Complete(ctx, system, user)
	if err != nil {
		return nil, fmt.Errorf("summarize: %w", err)
	}

	text, actions := llm.ParseSummary(reply)
	if text == "" {
		return nil, ErrNoSummary
	}
	return &domain.Summary{Text: text, Actions: actions}, nil
}
