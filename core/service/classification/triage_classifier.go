// Package classification assigns an email to one of the user's categories.
//
// Stage 1 compares the email embedding with each category embedding and
// accepts the best match at or above the threshold. Otherwise stage 2 asks
// the LLM to pick from a numbered list. When neither produces a category the
// LLM is asked once more before giving up. Provider errors never escape.
package classification

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strconv"
	"time"

	"triage_server/core/agent/llm"
	"triage_server/core/domain"
	"triage_server/core/port/out"
	"triage_server/pkg/cache"
	"triage_server/pkg/logger"
	"triage_server/pkg/metrics"
)

const (
	DefaultThreshold = 0.72
	DefaultCacheTTL  = 24 * time.Hour

	scorePrecision = 1e6
)

type Config struct {
	Threshold float64
	CacheTTL  time.Duration
}

type Engine struct {
	ai        out.AIProvider
	store     out.EmbeddingStore
	local     *cache.TTLCache[string, []float32]
	threshold float64
	ttl       time.Duration
	log       *logger.Logger
}

// NewEngine creates a classifier. store may be nil.
func NewEngine(ai out.AIProvider, store out.EmbeddingStore, cfg Config) *Engine {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	return &Engine{
		ai:        ai,
		store:     store,
		local:     cache.NewTTLCache[string, []float32](cfg.CacheTTL),
		threshold: cfg.Threshold,
		ttl:       cfg.CacheTTL,
		log:       logger.WithField("component", "classifier"),
	}
}

// Classify picks a category for email from candidates. Candidates must not
// include the Inbox category.
func (e *Engine) Classify(ctx context.Context, email string, candidates []*domain.Category) domain.ClassificationResult {
	if len(candidates) == 0 {
		return e.record(domain.NoClassification())
	}

	result, ok, err := e.matchByEmbedding(ctx, email, candidates)
	if ok {
		return e.record(result)
	}
	if err != nil {
		e.log.WithError(err).Warn("embedding stage failed, falling back to llm")
	}

	for attempt := 1; attempt <= 2; attempt++ {
		result, ok, err = e.matchByLLM(ctx, email, candidates)
		if ok {
			return e.record(result)
		}
		if err != nil {
			e.log.WithError(err).WithField("attempt", attempt).Warn("llm stage failed")
		}
		if ctx.Err() != nil {
			break
		}
	}
	return e.record(domain.NoClassification())
}

func (e *Engine) record(r domain.ClassificationResult) domain.ClassificationResult {
	metrics.Classifications.WithLabelValues(string(r.Method)).Inc()
	return r
}

func (e *Engine) matchByEmbedding(ctx context.Context, email string, candidates []*domain.Category) (domain.ClassificationResult, bool, error) {
	emailVec, err := e.ai.Embed(ctx, email)
	if err != nil {
		return domain.ClassificationResult{}, false, err
	}

	var (
		best      *domain.Category
		bestScore = math.Inf(-1)
		scored    int
		lastErr   error
	)
	for _, c := range candidates {
		vec, err := e.categoryEmbedding(ctx, c)
		if err != nil {
			lastErr = err
			continue
		}
		scored++
		score := roundScore(Cosine(emailVec, vec))
		if score > bestScore {
			best, bestScore = c, score
		}
	}
	if scored == 0 {
		return domain.ClassificationResult{}, false, fmt.Errorf("no category embeddings available: %w", lastErr)
	}
	if best == nil || bestScore < e.threshold {
		return domain.ClassificationResult{}, false, nil
	}

	id := best.ID
	return domain.ClassificationResult{
		CategoryID: &id,
		Method:     domain.ClassifiedByEmbeddings,
		Score:      bestScore,
	}, true, nil
}

func (e *Engine) matchByLLM(ctx context.Context, email string, candidates []*domain.Category) (domain.ClassificationResult, bool, error) {
	options := make([]llm.CategoryOption, len(candidates))
	for i, c := range candidates {
		options[i] = llm.CategoryOption{Name: c.Name, Description: c.Description}
	}

	system, user := llm.ClassifyPrompt(email, options)
	reply, err := e.ai.Complete(ctx, system, user)
	if err != nil {
		return domain.ClassificationResult{}, false, err
	}

	idx, rationale := llm.ParseCategoryChoice(reply, len(candidates))
	if idx == 0 {
		return domain.ClassificationResult{}, false, nil
	}
	id := candidates[idx-1].ID
	return domain.ClassificationResult{
		CategoryID: &id,
		Method:     domain.ClassifiedByLLM,
		Rationale:  rationale,
	}, true, nil
}

// categoryEmbedding reads through the in-process cache, then the shared
// store, then the provider. Keys hash the category text, so a changed name
// or description is re-embedded.
func (e *Engine) categoryEmbedding(ctx context.Context, c *domain.Category) ([]float32, error) {
	text := c.EmbeddingText()
	key := storeKey(c.ID, text)

	hit := true
	vec, err := e.local.GetOrCompute(key, func() ([]float32, error) {
		hit = false
		return e.loadEmbedding(ctx, key, text)
	})
	if hit {
		metrics.EmbeddingCacheLookups.WithLabelValues("local", "hit").Inc()
	} else {
		metrics.EmbeddingCacheLookups.WithLabelValues("local", "miss").Inc()
	}
	return vec, err
}

func (e *Engine) loadEmbedding(ctx context.Context, key, text string) ([]float32, error) {
	if e.store != nil {
		vec, ok, err := e.store.GetEmbedding(ctx, key)
		if err != nil {
			e.log.WithError(err).Debug("embedding store read failed")
		}
		if ok && len(vec) > 0 {
			metrics.EmbeddingCacheLookups.WithLabelValues("shared", "hit").Inc()
			return vec, nil
		}
		metrics.EmbeddingCacheLookups.WithLabelValues("shared", "miss").Inc()
	}

	vec, err := e.ai.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if e.store != nil {
		if err := e.store.SetEmbedding(ctx, key, vec, e.ttl); err != nil {
			e.log.WithError(err).Debug("embedding store write failed")
		}
	}
	return vec, nil
}

func storeKey(categoryID int64, text string) string {
	h := fnv.New64a()
	h.Write([]byte(text))
	return "category:" + strconv.FormatInt(categoryID, 10) + ":" + strconv.FormatUint(h.Sum64(), 16)
}

// Cosine computes cosine similarity over the overlapping prefix of a and b.
// A zero-norm vector scores 0.
func Cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func roundScore(s float64) float64 {
	return math.Round(s*scorePrecision) / scorePrecision
}
