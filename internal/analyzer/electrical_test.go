package analyzer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/specwright/takeoff-cli/internal/model"
	"github.com/specwright/takeoff-cli/internal/plugin"
)

const electricalSample = `ELECTRICAL SPECIFICATIONS:
- Service: 1000A, 480V/277V, 3-phase, 4-wire
- Main Distribution: Panel MDP-1, 1000A, 480V/277V
- Lighting: LED lighting fixtures with dimming controls, total of 200 fixtures
- Power: GFCI receptacles in all wet locations, standard receptacles in offices
- Low Voltage: Cat6 data cabling, security system with card readers, fire alarm system
- Emergency: 150kW diesel generator for emergency power`

func TestElectricalAnalyze_Service(t *testing.T) {
	t.Parallel()

	rec, err := Electrical{}.Analyze(context.Background(), "Electrical service: 1000A, 480V, 3-phase")
	require.NoError(t, err)

	svc, ok := rec.Fields["electrical_service"].(model.Fields)
	require.True(t, ok)
	assert.Equal(t, "1000A", svc["size"])
	assert.Equal(t, float64(480), svc["voltage"])
	assert.Equal(t, float64(3), svc["phases"])
}

func TestElectricalAnalyze_FullSample(t *testing.T) {
	t.Parallel()

	rec, err := Electrical{}.Analyze(context.Background(), electricalSample)
	require.NoError(t, err)
	assert.Equal(t, "mep.electrical_systems", rec.PluginKey)

	svc := rec.Fields["electrical_service"].(model.Fields)
	assert.Equal(t, "1000A", svc["size"])
	assert.Equal(t, float64(1000), svc["amps"])
	assert.Equal(t, float64(480), svc["voltage"])
	assert.Equal(t, float64(3), svc["phases"])
	assert.Equal(t, float64(4), svc["wires"])

	dist := rec.Fields["distribution"].([]model.Fields)
	require.Len(t, dist, 1)
	assert.Equal(t, "panel", dist[0]["type"])
	assert.Equal(t, "MDP-1", dist[0]["tag"])
	assert.Equal(t, "1000A", dist[0]["rating"])

	lighting := rec.Fields["lighting"].([]model.Fields)
	require.Len(t, lighting, 1)
	assert.Equal(t, "LED", lighting[0]["type"])
	assert.Equal(t, "dimming", lighting[0]["control"])
	assert.Equal(t, float64(200), lighting[0]["quantity"])

	lv := rec.Fields["low_voltage"].(model.Fields)
	assert.Equal(t, "cat6", lv["data_cabling"])
	assert.Equal(t, true, lv["fire_alarm"])
	assert.Equal(t, true, lv["security"])

	gen := rec.Fields["emergency_power"].(model.Fields)
	assert.Equal(t, "generator", gen["type"])
	assert.InDelta(t, 150, gen["capacity_kw"].(float64), 0.001)
	assert.Equal(t, "diesel", gen["fuel"])

	// All six schema fields populated.
	assert.False(t, rec.Partial)
	assert.Empty(t, rec.Flags)
}

func TestElectricalAnalyze_KVAIsAmbiguous(t *testing.T) {
	t.Parallel()

	rec, err := Electrical{}.Analyze(context.Background(), "Emergency: 250 kVA generator")
	require.NoError(t, err)

	gen := rec.Fields["emergency_power"].(model.Fields)
	assert.Nil(t, gen["capacity_kw"])
	require.Len(t, rec.Flags, 1)
	assert.Equal(t, model.FlagAmbiguousUnit, rec.Flags[0].Kind)
	assert.True(t, rec.Partial)
}

func TestElectricalAnalyze_NoContent(t *testing.T) {
	t.Parallel()

	_, err := Electrical{}.Analyze(context.Background(), "Landscaping: sod and irrigation throughout.")
	require.Error(t, err)

	var ee *plugin.ExtractionError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, "mep.electrical_systems", ee.PluginKey)
}
