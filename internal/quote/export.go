package quote

import (
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"

	"github.com/specwright/takeoff-cli/internal/model"
)

// Export is the finalized quote snapshot handed to an external rendering
// collaborator. The core exposes the data; it never formats or renders.
type Export struct {
	QuoteID     string             `json:"quote_id"`
	Title       string             `json:"title"`
	ClientName  string             `json:"client_name,omitempty"`
	ClientEmail string             `json:"client_email,omitempty"`
	Status      model.QuoteStatus  `json:"status"`
	Items       []model.QuoteItem  `json:"items"`
	Subtotal    float64            `json:"subtotal"`
	MarkupPct   float64            `json:"markup_pct"`
	Total       float64            `json:"total"`
	SentAt      *time.Time         `json:"sent_at,omitempty"`
	ExportedAt  time.Time          `json:"exported_at"`
}

// BuildExport snapshots a quote for rendering. Drafts are not exportable;
// the totals of a draft are still mutable.
func BuildExport(q *model.Quote, now time.Time) (*Export, error) {
	if q.Status == model.QuoteDraft {
		return nil, eris.Wrapf(model.ErrInvalidTransition, "quote: %s is draft, export requires sent or terminal", q.ID)
	}
	items := make([]model.QuoteItem, len(q.Items))
	copy(items, q.Items)
	return &Export{
		QuoteID:     q.ID,
		Title:       q.Title,
		ClientName:  q.ClientName,
		ClientEmail: q.ClientEmail,
		Status:      q.Status,
		Items:       items,
		Subtotal:    q.Subtotal,
		MarkupPct:   q.MarkupPct,
		Total:       q.Total,
		SentAt:      q.SentAt,
		ExportedAt:  now,
	}, nil
}

// MarshalIndent renders the export as indented JSON for file handoff.
func (e *Export) MarshalIndent() ([]byte, error) {
	out, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return nil, eris.Wrap(err, "quote: marshal export")
	}
	return out, nil
}
