// Package quote implements the quote lifecycle: a one-directional state
// machine over draft → sent → {accepted, declined} with optimistic
// concurrency and a full activity trail.
package quote

import (
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/specwright/takeoff-cli/internal/estimate"
	"github.com/specwright/takeoff-cli/internal/model"
)

// transitions lists the permitted next states per status. Terminal states
// have no entries; a new draft is the only way to revise them.
var transitions = map[model.QuoteStatus][]model.QuoteStatus{
	model.QuoteDraft: {model.QuoteSent},
	model.QuoteSent:  {model.QuoteAccepted, model.QuoteDeclined},
}

func allowed(from, to model.QuoteStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Workflow mutates quotes. All mutating methods take the version the
// caller read; a stale version fails with ErrConcurrentModification and
// leaves the quote untouched.
type Workflow struct {
	now func() time.Time
}

// NewWorkflow creates a Workflow using the wall clock.
func NewWorkflow() *Workflow {
	return &Workflow{now: time.Now}
}

// NewDraft creates an empty draft quote for the organization.
func (w *Workflow) NewDraft(orgID, title string, markupPct float64) *model.Quote {
	now := w.now()
	q := &model.Quote{
		ID:        uuid.NewString(),
		OrgID:     orgID,
		Title:     title,
		Status:    model.QuoteDraft,
		MarkupPct: markupPct,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	w.log(q, "created", "", "")
	return q
}

// AddItem appends a line to a draft quote, snapshotting its unit price,
// and recomputes the totals. The snapshot is never re-read from the rate
// table, even if rates change later.
func (w *Workflow) AddItem(q *model.Quote, version int, item model.QuoteItem) error {
	if err := w.checkDraftWrite(q, version); err != nil {
		return err
	}
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	item.LineTotal = round2(item.Quantity * item.UnitPrice)
	q.Items = append(q.Items, item)
	w.recompute(q)
	w.commit(q, "item_added", item.Description, "")
	return nil
}

// RemoveItem deletes a line from a draft quote and recomputes the totals.
func (w *Workflow) RemoveItem(q *model.Quote, version int, itemID string) error {
	if err := w.checkDraftWrite(q, version); err != nil {
		return err
	}
	kept := q.Items[:0]
	var removed bool
	for _, item := range q.Items {
		if item.ID == itemID {
			removed = true
			continue
		}
		kept = append(kept, item)
	}
	if !removed {
		return eris.Wrapf(model.ErrNotFound, "quote: item %s", itemID)
	}
	q.Items = kept
	w.recompute(q)
	w.commit(q, "item_removed", itemID, "")
	return nil
}

// SetMarkup changes the quote-level markup percentage on a draft.
func (w *Workflow) SetMarkup(q *model.Quote, version int, pct float64) error {
	if err := w.checkDraftWrite(q, version); err != nil {
		return err
	}
	q.MarkupPct = pct
	w.recompute(q)
	w.commit(q, "markup_changed", "", "")
	return nil
}

// Send transitions draft → sent, freezing the total and all unit-price
// snapshots.
func (w *Workflow) Send(q *model.Quote, version int, actor string) error {
	if err := w.transition(q, version, model.QuoteSent, actor); err != nil {
		return err
	}
	at := w.now()
	q.SentAt = &at
	return nil
}

// Accept transitions sent → accepted. The quote becomes immutable except
// for metadata.
func (w *Workflow) Accept(q *model.Quote, version int, actor string) error {
	if err := w.transition(q, version, model.QuoteAccepted, actor); err != nil {
		return err
	}
	at := w.now()
	q.ClosedAt = &at
	return nil
}

// Decline transitions sent → declined.
func (w *Workflow) Decline(q *model.Quote, version int, actor string) error {
	if err := w.transition(q, version, model.QuoteDeclined, actor); err != nil {
		return err
	}
	at := w.now()
	q.ClosedAt = &at
	return nil
}

// ReviseDraft creates a fresh draft copied from a sent or terminal quote.
// Unit-price snapshots carry over; the new draft gets its own identity,
// version counter, and history.
func (w *Workflow) ReviseDraft(q *model.Quote) *model.Quote {
	now := w.now()
	draft := &model.Quote{
		ID:          uuid.NewString(),
		ProjectID:   q.ProjectID,
		OrgID:       q.OrgID,
		Title:       q.Title,
		ClientName:  q.ClientName,
		ClientEmail: q.ClientEmail,
		Notes:       q.Notes,
		Status:      model.QuoteDraft,
		Items:       make([]model.QuoteItem, len(q.Items)),
		MarkupPct:   q.MarkupPct,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	copy(draft.Items, q.Items)
	for i := range draft.Items {
		draft.Items[i].ID = uuid.NewString()
	}
	w.recompute(draft)
	w.log(draft, "revised_from", q.ID, "")
	return draft
}

// ItemFromLine converts a priced estimate line into a quote item with the
// unit price snapshotted from the line's rates.
func ItemFromLine(line estimate.Line) model.QuoteItem {
	return model.QuoteItem{
		ID:          uuid.NewString(),
		ElementID:   line.ElementID,
		Description: line.Kind,
		Quantity:    line.Quantity,
		Unit:        line.Unit,
		UnitPrice:   round2(line.MaterialRate + line.LaborRate),
		LineTotal:   line.Total,
	}
}

// transition validates and applies one state change. Invalid transitions
// fail with ErrInvalidTransition and leave the quote unchanged.
func (w *Workflow) transition(q *model.Quote, version int, to model.QuoteStatus, actor string) error {
	if q.Version != version {
		return eris.Wrapf(model.ErrConcurrentModification,
			"quote: %s at version %d, writer has %d", q.ID, q.Version, version)
	}
	if !allowed(q.Status, to) {
		return eris.Wrapf(model.ErrInvalidTransition, "quote: %s → %s", q.Status, to)
	}
	from := q.Status
	q.Status = to
	w.commit(q, "status_changed", string(from)+" → "+string(to), actor)
	zap.L().Info("quote: status changed",
		zap.String("quote_id", q.ID),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	)
	return nil
}

func (w *Workflow) checkDraftWrite(q *model.Quote, version int) error {
	if q.Version != version {
		return eris.Wrapf(model.ErrConcurrentModification,
			"quote: %s at version %d, writer has %d", q.ID, q.Version, version)
	}
	if q.Status != model.QuoteDraft {
		return eris.Wrapf(model.ErrInvalidTransition, "quote: %s is %s, items mutable only in draft", q.ID, q.Status)
	}
	return nil
}

// recompute rebuilds subtotal and total from the item snapshots. Markup
// applies here at the quote level, never per item.
func (w *Workflow) recompute(q *model.Quote) {
	var subtotal float64
	for _, item := range q.Items {
		subtotal += item.LineTotal
	}
	q.Subtotal = round2(subtotal)
	q.Total = round2(q.Subtotal * (1 + q.MarkupPct/100))
}

func (w *Workflow) commit(q *model.Quote, action, note, actor string) {
	q.Version++
	q.UpdatedAt = w.now()
	w.log(q, action, note, actor)
}

func (w *Workflow) log(q *model.Quote, action, note, actor string) {
	q.Activities = append(q.Activities, model.QuoteActivity{
		Action: action,
		Note:   note,
		Actor:  actor,
		At:     w.now(),
	})
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
