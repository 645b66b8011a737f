package model

import "time"

// FieldType declares the expected shape of a plugin output field.
type FieldType string

const (
	FieldString FieldType = "string"
	FieldNumber FieldType = "number"
	FieldBool   FieldType = "bool"
	FieldList   FieldType = "list"
	FieldObject FieldType = "object"
)

// Fields is a plugin's structured output: field name to scalar, list, or
// nested mapping. Unknown or unparsed fields are omitted, never null-filled.
type Fields map[string]any

// FlagKind classifies a recoverable extraction issue surfaced to reviewers.
type FlagKind string

const (
	// FlagAmbiguousUnit marks a value whose unit could not be normalized.
	// The raw text is kept in the flag detail; no value is guessed.
	FlagAmbiguousUnit FlagKind = "ambiguous_unit"

	// FlagIncomplete marks a field the plugin recognized but could not
	// fully extract.
	FlagIncomplete FlagKind = "incomplete"
)

// FieldFlag attaches a recoverable issue to a named field of a record.
type FieldFlag struct {
	Field  string   `json:"field"`
	Kind   FlagKind `json:"kind"`
	Detail string   `json:"detail,omitempty"`
}

// ExtractionRecord is the raw structured output of one plugin run over one
// document. Records are immutable after creation; a re-run produces a new
// record with a higher Run sequence that supersedes the prior one.
type ExtractionRecord struct {
	ID         string      `json:"id"`
	DocumentID string      `json:"document_id"`
	PluginKey  string      `json:"plugin_key"`
	Run        int         `json:"run"`
	Fields     Fields      `json:"fields"`
	Flags      []FieldFlag `json:"flags,omitempty"`
	Partial    bool        `json:"partial,omitempty"`
	Confidence float64     `json:"confidence"`
	Superseded bool        `json:"superseded,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
}

// Flagged reports whether the record carries a flag of the given kind.
func (r *ExtractionRecord) Flagged(kind FlagKind) bool {
	for _, f := range r.Flags {
		if f.Kind == kind {
			return true
		}
	}
	return false
}
