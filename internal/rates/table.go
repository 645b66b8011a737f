// Package rates holds the externally supplied unit-cost reference table
// and its loaders. Entries are read-only once loaded.
package rates

import (
	"strings"

	"github.com/specwright/takeoff-cli/internal/model"
)

// Resolution records how a rate lookup was satisfied.
type Resolution string

const (
	// ResolvedExact means the element's attribute signature matched an
	// entry directly.
	ResolvedExact Resolution = "exact"
	// ResolvedDefault means the kind's declared default signature was
	// used as fallback.
	ResolvedDefault Resolution = "default"
	// ResolvedNone means no entry exists for the kind; the caller must
	// produce a zero-priced line, never a fabricated price.
	ResolvedNone Resolution = "none"
)

// Table is an indexed rate lookup keyed by (kind, attribute signature).
type Table struct {
	entries map[string]model.RateEntry
}

// NewTable indexes the given entries. Later duplicates of the same
// (kind, signature) key overwrite earlier ones.
func NewTable(entries []model.RateEntry) *Table {
	t := &Table{entries: make(map[string]model.RateEntry, len(entries))}
	for _, e := range entries {
		t.entries[rateKey(e.Kind, e.Signature)] = e
	}
	return t
}

// Len returns the number of indexed entries.
func (t *Table) Len() int { return len(t.entries) }

// Lookup returns the entry for the exact (kind, signature) key.
func (t *Table) Lookup(kind, signature string) (model.RateEntry, bool) {
	e, ok := t.entries[rateKey(kind, signature)]
	return e, ok
}

// Resolve finds the rate for an element deterministically: exact
// signature match first, then the kind's default signature, else none.
func (t *Table) Resolve(kind, signature string) (model.RateEntry, Resolution) {
	if e, ok := t.Lookup(kind, signature); ok {
		return e, ResolvedExact
	}
	if e, ok := t.Lookup(kind, model.DefaultSignature); ok {
		return e, ResolvedDefault
	}
	return model.RateEntry{}, ResolvedNone
}

func rateKey(kind, signature string) string {
	return strings.ToLower(kind) + "|" + strings.ToLower(signature)
}
