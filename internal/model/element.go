package model

import (
	"sort"
	"strings"
	"time"
)

// ReviewFlag marks an attribute whose contributing records disagreed with
// equal precedence. Conflicts are surfaced for human review, never dropped.
type ReviewFlag struct {
	Attribute string   `json:"attribute"`
	Values    []string `json:"values"`
	Plugins   []string `json:"plugins"`
}

// ElementEdit records one manual reviewer change to an element field.
type ElementEdit struct {
	Field    string    `json:"field"`
	Old      string    `json:"old,omitempty"`
	New      string    `json:"new"`
	EditedBy string    `json:"edited_by"`
	EditedAt time.Time `json:"edited_at"`
}

// Element is the canonical normalized construction unit the estimation and
// quoting layers consume. Every element traces to at least one extraction
// record via SourceRecordIDs.
type Element struct {
	ID              string            `json:"id"`
	DocumentID      string            `json:"document_id"`
	Kind            string            `json:"kind"`
	Quantity        float64           `json:"quantity"`
	Unit            string            `json:"unit,omitempty"`
	Attributes      map[string]string `json:"attributes,omitempty"`
	SourceRecordIDs []string          `json:"source_record_ids"`
	Confidence      float64           `json:"confidence"`
	ReviewFlags     []ReviewFlag      `json:"review_flags,omitempty"`
	Edits           []ElementEdit     `json:"edits,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
}

// ApplyEdit records a manual reviewer change to one attribute, retaining
// the prior value in the edit history.
func (e *Element) ApplyEdit(field, newValue, editedBy string, at time.Time) {
	old := e.Attributes[field]
	if e.Attributes == nil {
		e.Attributes = make(map[string]string)
	}
	e.Attributes[field] = newValue
	e.Edits = append(e.Edits, ElementEdit{
		Field:    field,
		Old:      old,
		New:      newValue,
		EditedBy: editedBy,
		EditedAt: at,
	})
}

// identityAttrs are the attributes that identify a physical element across
// plugins (a panel tag, an equipment mark) as opposed to describing it.
var identityAttrs = []string{"tag", "mark", "panel_id", "location", "level"}

// IdentityKey returns the deduplication key for the element: kind plus its
// normalized identifying attributes. Elements with equal keys describe the
// same physical element and are merged by the normalizer.
func (e *Element) IdentityKey() string {
	var b strings.Builder
	b.WriteString(strings.ToLower(e.Kind))
	for _, k := range identityAttrs {
		if v, ok := e.Attributes[k]; ok && v != "" {
			b.WriteByte('|')
			b.WriteString(k)
			b.WriteByte('=')
			b.WriteString(strings.ToLower(strings.TrimSpace(v)))
		}
	}
	return b.String()
}

// AttributeSignature returns the canonical rate-lookup signature for the
// element: the sorted k=v pairs of its pricing-relevant attributes. An
// element with no attributes signs as the empty string.
func (e *Element) AttributeSignature() string {
	if len(e.Attributes) == 0 {
		return ""
	}
	keys := make([]string, 0, len(e.Attributes))
	for k := range e.Attributes {
		if isIdentityAttr(k) {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+strings.ToLower(strings.TrimSpace(e.Attributes[k])))
	}
	return strings.Join(pairs, ";")
}

func isIdentityAttr(k string) bool {
	for _, id := range identityAttrs {
		if k == id {
			return true
		}
	}
	return false
}
