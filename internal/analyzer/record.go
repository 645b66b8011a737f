package analyzer

import (
	"math"

	"github.com/specwright/takeoff-cli/internal/model"
)

// newRecord assembles a plugin output record. Confidence is the populated
// share of the declared schema, docked slightly per flagged field; Partial
// marks any record that covers less than its full schema.
func newRecord(key string, schemaSize int, fields model.Fields, flags []model.FieldFlag) *model.ExtractionRecord {
	conf := float64(len(fields)) / float64(schemaSize)
	conf -= 0.05 * float64(len(flags))
	conf = math.Round(math.Max(conf, 0.05)*100) / 100

	return &model.ExtractionRecord{
		PluginKey:  key,
		Fields:     fields,
		Flags:      flags,
		Partial:    len(fields) < schemaSize,
		Confidence: conf,
	}
}
