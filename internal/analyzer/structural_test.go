package analyzer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/specwright/takeoff-cli/internal/model"
)

const structuralSample = `STRUCTURAL SPECIFICATIONS:
- Framing: Structural steel, W12x26 beams, joists at 16" o.c.
- Foundation: Spread footings on engineered fill
- Concrete: 4,000 psi at 28 days, #5 rebar
- Columns: HSS6x6 at grid lines`

func TestStructuralAnalyze_FullSample(t *testing.T) {
	t.Parallel()

	rec, err := Structural{}.Analyze(context.Background(), structuralSample)
	require.NoError(t, err)
	assert.Equal(t, "structural.framing_analysis", rec.PluginKey)

	fr := rec.Fields["framing"].(model.Fields)
	assert.Equal(t, "structural steel", fr["material"])
	assert.InDelta(t, 406.4, fr["spacing_mm"].(float64), 0.01)

	fo := rec.Fields["foundation"].(model.Fields)
	assert.Equal(t, "spread_footings", fo["type"])

	conc := rec.Fields["concrete"].(model.Fields)
	assert.Equal(t, float64(4000), conc["strength_psi"])
	assert.Equal(t, "#5", conc["rebar"])

	steel := rec.Fields["steel"].(model.Fields)
	assert.ElementsMatch(t, []string{"W12x26", "HSS6x6"}, steel["shapes"])

	assert.False(t, rec.Partial)
}

func TestStructuralAnalyze_NoContent(t *testing.T) {
	t.Parallel()

	_, err := Structural{}.Analyze(context.Background(), "Lighting: LED fixtures")
	require.Error(t, err)
}

func TestArchitecturalAnalyze(t *testing.T) {
	t.Parallel()

	text := `ARCHITECTURAL SPECIFICATIONS:
- Walls: 1-hr fire-rated partitions, 6" metal studs, two layers of gypsum board
- Openings: 45 hollow metal doors, 30 aluminum windows
- Finishes: carpet tile in offices`

	rec, err := Architectural{}.Analyze(context.Background(), text)
	require.NoError(t, err)
	assert.Equal(t, "architectural.walls_analysis", rec.PluginKey)

	walls := rec.Fields["walls"].([]model.Fields)
	require.Len(t, walls, 1)
	assert.Equal(t, float64(1), walls[0]["fire_rating_hr"])
	assert.InDelta(t, 152.4, walls[0]["stud_size_mm"].(float64), 0.01)
	assert.Equal(t, float64(2), walls[0]["gypsum_layers"])

	assert.Equal(t, float64(45), rec.Fields["doors"].(model.Fields)["quantity"])
	assert.Equal(t, float64(30), rec.Fields["windows"].(model.Fields)["quantity"])
	assert.Equal(t, "carpet tile", rec.Fields["finishes"].(model.Fields)["flooring"])

	assert.False(t, rec.Partial)
}

func TestArchitecturalAnalyze_NoContent(t *testing.T) {
	t.Parallel()

	_, err := Architectural{}.Analyze(context.Background(), "Cooling: 300-ton chiller")
	require.Error(t, err)
}
