package llm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"triage_server/pkg/httputil"
	"triage_server/pkg/logger"
	"triage_server/pkg/metrics"
	"triage_server/pkg/resilience"

	"github.com/goccy/go-json"
	openai "github.com/sashabaranov/go-openai"
	"github.com/sony/gobreaker"
)

const (
	DefaultModel          = "gpt-4o-mini"
	DefaultEmbeddingModel = "text-embedding-ada-002"
	DefaultBaseURL        = "https://api.openai.com/v1"

	maxEmbeddingInput = 8000
	maxErrorBody      = 512
)

var (
	ErrEmptyResponse = errors.New("llm returned no text")
	ErrEmptyInput    = errors.New("nothing to embed")
)

// StatusError is a non-2xx reply from the completion endpoint.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("llm request failed with status %d: %s", e.StatusCode, e.Body)
}

// Client talks to an OpenAI-compatible endpoint. Embeddings use the
// go-openai client; completions are decoded generically so that providers
// with slightly different reply shapes still work.
type Client struct {
	api            *openai.Client
	http           *http.Client
	baseURL        string
	apiKey         string
	model          string
	embeddingModel openai.EmbeddingModel
	timeout        time.Duration
	cb             *gobreaker.CircuitBreaker
	log            *logger.Logger
}

type ClientConfig struct {
	APIKey         string
	BaseURL        string
	Model          string
	EmbeddingModel string
	Timeout        time.Duration
	HTTPClient     *http.Client
}

func NewClient(cfg ClientConfig) *Client {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = DefaultEmbeddingModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = httputil.OpenAIClient()
	}

	apiCfg := openai.DefaultConfig(cfg.APIKey)
	apiCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	apiCfg.HTTPClient = cfg.HTTPClient

	log := logger.WithField("component", "llm")
	embeddingModel, err := ParseEmbeddingModel(cfg.EmbeddingModel)
	if err != nil {
		log.Warn("%v, using %s", err, DefaultEmbeddingModel)
		embeddingModel = openai.AdaEmbeddingV2
	}
	return &Client{
		api:            openai.NewClientWithConfig(apiCfg),
		http:           cfg.HTTPClient,
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:         cfg.APIKey,
		model:          cfg.Model,
		embeddingModel: embeddingModel,
		timeout:        cfg.Timeout,
		log:            log,
		cb: resilience.NewBreaker(resilience.BreakerConfig{
			Name:          "llm",
			IsClientError: isClientError,
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Warn("circuit breaker %s: %s -> %s", name, from, to)
			},
		}),
	}
}

// ParseEmbeddingModel maps a model name such as "text-embedding-ada-002" to
// the go-openai enum.
func ParseEmbeddingModel(name string) (openai.EmbeddingModel, error) {
	var m openai.EmbeddingModel
	if err := m.UnmarshalText([]byte(strings.TrimSpace(name))); err != nil {
		return openai.Unknown, err
	}
	if m == openai.Unknown {
		return openai.Unknown, fmt.Errorf("unsupported embedding model %q", name)
	}
	return m, nil
}

// Embed returns the embedding vector for text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyInput
	}
	text = truncateRunes(text, maxEmbeddingInput)

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var vec []float32
	err := resilience.Run(c.cb, func() error {
		resp, err := c.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Model: c.embeddingModel,
			Input: []string{text},
		})
		if err != nil {
			return err
		}
		if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
			return errors.New("embedding response contained no vector")
		}
		vec = resp.Data[0].Embedding
		return nil
	})
	if err != nil {
		metrics.AIProviderErrors.WithLabelValues("embed").Inc()
		return nil, fmt.Errorf("embed: %w", err)
	}
	return vec, nil
}

// Complete sends one system and one user message and returns the reply text.
func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature: 0.2,
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var text string
	err := resilience.Run(c.cb, func() error {
		payload, err := c.postJSON(ctx, "/chat/completions", req)
		if err != nil {
			return err
		}
		text = ExtractText(payload)
		return nil
	})
	if err != nil {
		metrics.AIProviderErrors.WithLabelValues("complete").Inc()
		return "", fmt.Errorf("complete: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		metrics.AIProviderErrors.WithLabelValues("complete").Inc()
		return "", ErrEmptyResponse
	}
	return text, nil
}

func (c *Client) postJSON(ctx context.Context, path string, body any) (map[string]any, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: truncateRunes(string(raw), maxErrorBody)}
	}

	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("decode llm response: %w", err)
	}
	return payload, nil
}

// isClientError keeps request-shaped failures from opening the breaker.
func isClientError(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode >= 400 && se.StatusCode < 500 && se.StatusCode != http.StatusTooManyRequests
	}
	var ae *openai.APIError
	if errors.As(err, &ae) {
		return ae.HTTPStatusCode >= 400 && ae.HTTPStatusCode < 500 && ae.HTTPStatusCode != http.StatusTooManyRequests
	}
	return errors.Is(err, ErrEmptyInput)
}

func truncateRunes(s string, max int) string {
	if max <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
