package model

import "time"

// QuoteStatus is a quote's position in the draft → sent → {accepted,
// declined} state machine. Accepted and declined are terminal.
type QuoteStatus string

const (
	QuoteDraft    QuoteStatus = "draft"
	QuoteSent     QuoteStatus = "sent"
	QuoteAccepted QuoteStatus = "accepted"
	QuoteDeclined QuoteStatus = "declined"
)

// Terminal reports whether the status permits no further transitions.
func (s QuoteStatus) Terminal() bool {
	return s == QuoteAccepted || s == QuoteDeclined
}

// QuoteItem is one line within a quote. UnitPrice is snapshotted when the
// item is added and never re-read from the rate table.
type QuoteItem struct {
	ID          string  `json:"id"`
	ElementID   string  `json:"element_id"`
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	Unit        string  `json:"unit,omitempty"`
	UnitPrice   float64 `json:"unit_price"`
	LineTotal   float64 `json:"line_total"`
}

// QuoteActivity is one audit entry in a quote's history.
type QuoteActivity struct {
	Action string    `json:"action"`
	Note   string    `json:"note,omitempty"`
	Actor  string    `json:"actor,omitempty"`
	At     time.Time `json:"at"`
}

// Quote aggregates priced element selections for a project and client.
// Version supports optimistic concurrency: writers carry the version they
// read and stale writers are rejected.
type Quote struct {
	ID          string          `json:"id"`
	ProjectID   string          `json:"project_id,omitempty"`
	OrgID       string          `json:"org_id"`
	Title       string          `json:"title"`
	ClientName  string          `json:"client_name,omitempty"`
	ClientEmail string          `json:"client_email,omitempty"`
	Notes       string          `json:"notes,omitempty"`
	Status      QuoteStatus     `json:"status"`
	Items       []QuoteItem     `json:"items"`
	MarkupPct   float64         `json:"markup_pct"`
	Subtotal    float64         `json:"subtotal"`
	Total       float64         `json:"total"`
	Version     int             `json:"version"`
	Activities  []QuoteActivity `json:"activities,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	SentAt      *time.Time      `json:"sent_at,omitempty"`
	ClosedAt    *time.Time      `json:"closed_at,omitempty"`
}
