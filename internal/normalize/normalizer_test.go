package normalize

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/specwright/takeoff-cli/internal/model"
	"github.com/specwright/takeoff-cli/internal/plugin"
)

type stubAnalyzer struct {
	desc plugin.Descriptor
}

func (s stubAnalyzer) Descriptor() plugin.Descriptor { return s.desc }

func (s stubAnalyzer) Analyze(ctx context.Context, text string) (*model.ExtractionRecord, error) {
	return nil, nil
}

func testNormalizer(t *testing.T) *Normalizer {
	t.Helper()
	reg, err := plugin.NewRegistry(
		stubAnalyzer{plugin.Descriptor{Key: "mep.electrical_systems", Trade: model.TradeMEP, Specificity: 3}},
		stubAnalyzer{plugin.Descriptor{Key: "mep.hvac_systems", Trade: model.TradeMEP, Specificity: 3}},
		stubAnalyzer{plugin.Descriptor{Key: "architectural.walls_analysis", Trade: model.TradeArchitectural, Specificity: 1}},
	)
	require.NoError(t, err)
	return New(reg)
}

func panelRecord(id, key string, conf float64, rating string) *model.ExtractionRecord {
	return &model.ExtractionRecord{
		ID:         id,
		PluginKey:  key,
		Confidence: conf,
		Fields: model.Fields{
			"distribution": []model.Fields{
				{"type": "panel", "tag": "MDP-1", "rating": rating},
			},
		},
	}
}

func TestNormalize_MergesOverlappingElements(t *testing.T) {
	t.Parallel()
	n := testNormalizer(t)

	records := []*model.ExtractionRecord{
		panelRecord("r1", "mep.electrical_systems", 0.9, "1000A"),
		panelRecord("r2", "architectural.walls_analysis", 0.9, "800A"),
	}

	elements := n.Normalize("doc-1", records)
	require.Len(t, elements, 1)

	el := elements[0]
	assert.Equal(t, "panel", el.Kind)
	assert.Equal(t, "doc-1", el.DocumentID)
	// The more specific trade plugin wins the conflicting attribute.
	assert.Equal(t, "1000A", el.Attributes["rating"])
	assert.Empty(t, el.ReviewFlags)
	assert.ElementsMatch(t, []string{"r1", "r2"}, el.SourceRecordIDs)
}

func TestNormalize_EqualPrecedenceConflictFlagged(t *testing.T) {
	t.Parallel()
	n := testNormalizer(t)

	records := []*model.ExtractionRecord{
		panelRecord("r1", "mep.electrical_systems", 0.8, "1000A"),
		panelRecord("r2", "mep.hvac_systems", 0.8, "800A"),
	}

	elements := n.Normalize("doc-1", records)
	require.Len(t, elements, 1)

	el := elements[0]
	require.Len(t, el.ReviewFlags, 1)
	flag := el.ReviewFlags[0]
	assert.Equal(t, "rating", flag.Attribute)
	assert.ElementsMatch(t, []string{"1000A", "800A"}, flag.Values)
	// Deterministic holder: lower plugin key wins the tie-break order.
	assert.Equal(t, "1000A", el.Attributes["rating"])
}

func TestNormalize_Idempotent(t *testing.T) {
	t.Parallel()
	n := testNormalizer(t)

	records := []*model.ExtractionRecord{
		panelRecord("r1", "mep.electrical_systems", 0.9, "1000A"),
		{
			ID:         "r3",
			PluginKey:  "mep.hvac_systems",
			Confidence: 0.7,
			Fields: model.Fields{
				"cooling_systems": []model.Fields{
					{"type": "chiller", "capacity_tons": float64(20), "refrigerant": "R-410A", "quantity": float64(1)},
				},
				"control_systems": model.Fields{"protocol": "BACnet", "bms": true},
			},
		},
	}

	first := n.Normalize("doc-1", records)
	second := n.Normalize("doc-1", records)

	require.Equal(t, len(first), len(second))
	assert.Equal(t, first, second)
}

func TestNormalize_SkipsSupersededRecords(t *testing.T) {
	t.Parallel()
	n := testNormalizer(t)

	old := panelRecord("r1", "mep.electrical_systems", 0.9, "800A")
	old.Superseded = true
	current := panelRecord("r2", "mep.electrical_systems", 0.9, "1000A")

	elements := n.Normalize("doc-1", []*model.ExtractionRecord{old, current})
	require.Len(t, elements, 1)
	assert.Equal(t, "1000A", elements[0].Attributes["rating"])
	assert.Equal(t, []string{"r2"}, elements[0].SourceRecordIDs)
}

func TestNormalize_ObjectFieldBecomesElement(t *testing.T) {
	t.Parallel()
	n := testNormalizer(t)

	rec := &model.ExtractionRecord{
		ID:         "r1",
		PluginKey:  "mep.electrical_systems",
		Confidence: 0.85,
		Fields: model.Fields{
			"electrical_service": model.Fields{
				"size": "1000A", "voltage": float64(480), "phases": float64(3),
			},
		},
	}

	elements := n.Normalize("doc-1", []*model.ExtractionRecord{rec})
	require.Len(t, elements, 1)
	el := elements[0]
	assert.Equal(t, "electrical_service", el.Kind)
	assert.Equal(t, "1000A", el.Attributes["size"])
	assert.Equal(t, "480", el.Attributes["voltage"])
	assert.Equal(t, float64(1), el.Quantity)
	assert.Equal(t, 0.85, el.Confidence)
}

func TestApplyEdit_RetainsProvenance(t *testing.T) {
	t.Parallel()

	el := model.Element{Kind: "panel", Attributes: map[string]string{"rating": "800A"}}
	el.ApplyEdit("rating", "1000A", "reviewer@example.com", el.CreatedAt)

	assert.Equal(t, "1000A", el.Attributes["rating"])
	require.Len(t, el.Edits, 1)
	assert.Equal(t, "800A", el.Edits[0].Old)
	assert.Equal(t, "1000A", el.Edits[0].New)
	assert.Equal(t, "reviewer@example.com", el.Edits[0].EditedBy)
}
