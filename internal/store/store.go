// Package store persists documents, extraction records, elements, quotes,
// and license counters. Two implementations exist: SQLite for single-node
// and local use, PostgreSQL for shared deployments.
package store

import (
	"context"
	"time"

	"github.com/specwright/takeoff-cli/internal/model"
)

// QuoteFilter specifies criteria for listing quotes.
type QuoteFilter struct {
	OrgID  string            `json:"org_id,omitempty"`
	Status model.QuoteStatus `json:"status,omitempty"`
	Limit  int               `json:"limit,omitempty"`
	Offset int               `json:"offset,omitempty"`
}

// Store defines the persistence interface for the takeoff pipeline. It
// also satisfies license.CounterStore so the gatekeeper's quota decrement
// runs against the same database as everything else.
type Store interface {
	// Documents
	CreateDocument(ctx context.Context, doc *model.Document) error
	GetDocument(ctx context.Context, id string) (*model.Document, error)
	SetDocumentStatus(ctx context.Context, id string, status model.DocumentStatus) error

	// Extraction records. Saving a record marks all prior records for
	// the same (document, plugin) pair superseded in the same transaction.
	SaveExtractionRecord(ctx context.Context, rec *model.ExtractionRecord) error
	ListExtractionRecords(ctx context.Context, documentID string, includeSuperseded bool) ([]model.ExtractionRecord, error)
	NextRunNumber(ctx context.Context, documentID, pluginKey string) (int, error)

	// Elements. Normalization replaces a document's element set wholesale.
	ReplaceElements(ctx context.Context, documentID string, elements []model.Element) error
	ListElements(ctx context.Context, documentID string) ([]model.Element, error)

	// Quotes. UpdateQuote enforces optimistic concurrency: the write
	// succeeds only if the stored version equals expectedVersion, else
	// model.ErrConcurrentModification.
	CreateQuote(ctx context.Context, q *model.Quote) error
	UpdateQuote(ctx context.Context, q *model.Quote, expectedVersion int) error
	GetQuote(ctx context.Context, id string) (*model.Quote, error)
	ListQuotes(ctx context.Context, filter QuoteFilter) ([]model.Quote, error)

	// Licenses and usage counters
	GrantLicense(ctx context.Context, lic model.License) error
	GetLicense(ctx context.Context, orgID, pluginKey string) (*model.License, error)
	ConsumeUse(ctx context.Context, orgID, pluginKey string, now time.Time) (int, error)
	RefundUse(ctx context.Context, orgID, pluginKey string) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
