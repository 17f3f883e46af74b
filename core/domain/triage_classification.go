package domain

type ClassificationMethod string

const (
	ClassifiedByEmbeddings ClassificationMethod = "embeddings"
	ClassifiedByLLM        ClassificationMethod = "llm"
	ClassifiedByNone       ClassificationMethod = "none"
)

// ClassificationResult is the outcome of classifying one message. A nil
// CategoryID means no category was chosen and the caller falls back to Inbox.
type ClassificationResult struct {
	CategoryID *int64               `json:"category_id,omitempty"`
	Method     ClassificationMethod `json:"method"`
	Score      float64              `json:"score,omitempty"`
	Rationale  string               `json:"rationale,omitempty"`
}

func NoClassification() ClassificationResult {
	return ClassificationResult{Method: ClassifiedByNone}
}
