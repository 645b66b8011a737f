package model

// DefaultSignature is the declared fallback signature consulted when no
// rate entry matches an element's exact attribute signature.
const DefaultSignature = "default"

// RateEntry is externally supplied unit cost reference data, keyed by
// element kind and attribute signature. Read-only once loaded.
type RateEntry struct {
	Kind         string  `json:"kind" yaml:"kind"`
	Signature    string  `json:"signature" yaml:"signature"`
	Unit         string  `json:"unit" yaml:"unit"`
	MaterialRate float64 `json:"material_rate" yaml:"material_rate"`
	LaborRate    float64 `json:"labor_rate" yaml:"labor_rate"`
}
