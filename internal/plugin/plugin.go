package plugin

import (
	"context"
	"fmt"

	"github.com/specwright/takeoff-cli/internal/model"
)

// Descriptor is a plugin's immutable identity: its registry key, trade
// category, price tier, and declared output schema.
type Descriptor struct {
	Key         string                    `json:"key"`
	Name        string                    `json:"name"`
	Description string                    `json:"description"`
	Trade       model.Trade               `json:"trade"`
	Price       float64                   `json:"price"`
	Specificity int                       `json:"specificity"`
	Schema      map[string]model.FieldType `json:"schema"`
}

// Analyzer is the single capability contract every trade plugin fulfills.
// Analyze must be a pure function of its input text: re-entrant, no shared
// mutable state, no side effects. Partial results with explicit flags are
// preferred over hard failure; an unrecoverable run returns an
// *ExtractionError.
type Analyzer interface {
	Descriptor() Descriptor
	Analyze(ctx context.Context, text string) (*model.ExtractionRecord, error)
}

// ExtractionError signals that a plugin run produced no usable record.
// It is non-fatal to the batch: the orchestrator records it per plugin and
// continues with the rest.
type ExtractionError struct {
	PluginKey string
	Reason    string
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction failed for %s: %s", e.PluginKey, e.Reason)
}

// Failf builds an ExtractionError for the given plugin.
func Failf(key, format string, args ...any) *ExtractionError {
	return &ExtractionError{PluginKey: key, Reason: fmt.Sprintf(format, args...)}
}
