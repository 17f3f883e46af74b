package domain

import "time"

// LinkSource names where an unsubscribe target was found.
type LinkSource string

const (
	LinkSourceHeader    LinkSource = "list_unsubscribe_header"
	LinkSourceAnchor    LinkSource = "html_anchor"
	LinkSourceHref      LinkSource = "html_href"
	LinkSourcePlainText LinkSource = "plain_text"
	LinkSourceOneClick  LinkSource = "one_click"
	LinkSourceNone      LinkSource = "none"
)

type AttemptStatus string

const (
	AttemptPending AttemptStatus = "pending"
	AttemptSuccess AttemptStatus = "success"
	AttemptFailed  AttemptStatus = "failed"
)

// UnsubscribeAttempt is the audit row kept for each unsubscribe try.
type UnsubscribeAttempt struct {
	ID           int64          `json:"id"`
	EmailID      int64          `json:"email_id"`
	Method       LinkSource     `json:"method"`
	Link         string         `json:"link,omitempty"`
	Status       AttemptStatus  `json:"status"`
	Details      map[string]any `json:"details,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

type UnsubscribeStatus string

const (
	UnsubscribeSuccess UnsubscribeStatus = "success"
	UnsubscribeFailed  UnsubscribeStatus = "failed"
	UnsubscribeNoLink  UnsubscribeStatus = "no_link"
)

type UnsubscribeDetail struct {
	EmailID int64             `json:"email_id"`
	Status  UnsubscribeStatus `json:"status"`
	Message string            `json:"message"`
	Link    string            `json:"link,omitempty"`
	Method  LinkSource        `json:"method,omitempty"`
}

// UnsubscribeBatchResult aggregates one batch request. Totals always add
// up to len(Details).
type UnsubscribeBatchResult struct {
	Successful int                 `json:"successful"`
	Failed     int                 `json:"failed"`
	NoLink     int                 `json:"no_link"`
	Total      int                 `json:"total"`
	Details    []UnsubscribeDetail `json:"details"`
}

func (r *UnsubscribeBatchResult) Add(d UnsubscribeDetail) {
	switch d.Status {
	case UnsubscribeSuccess:
		r.Successful++
	case UnsubscribeNoLink:
		r.NoLink++
	default:
		r.Failed++
	}
	r.Total++
	r.Details = append(r.Details, d)
}

// LinkCandidate is one discovered unsubscribe target.
type LinkCandidate struct {
	URL    string     `json:"url"`
	Source LinkSource `json:"source"`
	Tier   int        `json:"tier"`
}

// RejectedLink is a candidate dropped by the URL safety filter.
type RejectedLink struct {
	Raw    string     `json:"raw"`
	Source LinkSource `json:"source"`
	Reason string     `json:"reason"`
}
