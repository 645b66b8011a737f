// Package analyzer holds the trade analyzer plugins: pure pattern-and-rule
// extractors over construction specification vocabulary. Each plugin
// normalizes numeric fields to canonical units (linear dimensions to
// millimeters, power to kilowatts) and flags values it cannot normalize
// instead of guessing.
package analyzer

import "github.com/specwright/takeoff-cli/internal/plugin"

// All returns the fixed plugin set, one analyzer per trade discipline.
// The set is established at build time; there is no runtime discovery.
func All() []plugin.Analyzer {
	return []plugin.Analyzer{
		Electrical{},
		Plumbing{},
		HVAC{},
		Structural{},
		Architectural{},
	}
}
