package rates

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/specwright/takeoff-cli/internal/model"
)

func testEntries() []model.RateEntry {
	return []model.RateEntry{
		{Kind: "panel", Signature: "rating=1000a", Unit: "each", MaterialRate: 4200, LaborRate: 1100},
		{Kind: "panel", Signature: "default", Unit: "each", MaterialRate: 2500, LaborRate: 800},
		{Kind: "chiller", Signature: "capacity_tons=300", Unit: "each", MaterialRate: 210000, LaborRate: 45000},
	}
}

func TestResolve(t *testing.T) {
	t.Parallel()

	table := NewTable(testEntries())
	require.Equal(t, 3, table.Len())

	tests := []struct {
		name      string
		kind, sig string
		wantRes   Resolution
		wantMat   float64
	}{
		{"exact match", "panel", "rating=1000a", ResolvedExact, 4200},
		{"case-insensitive exact", "Panel", "RATING=1000A", ResolvedExact, 4200},
		{"fallback to default", "panel", "rating=225a", ResolvedDefault, 2500},
		{"no default declared", "chiller", "capacity_tons=20", ResolvedNone, 0},
		{"unknown kind", "duct", "", ResolvedNone, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			entry, res := table.Resolve(tt.kind, tt.sig)
			assert.Equal(t, tt.wantRes, res)
			assert.Equal(t, tt.wantMat, entry.MaterialRate)
		})
	}
}

func TestLoadYAML(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "rates.yaml")
	content := `rates:
  - kind: panel
    signature: "rating=1000a"
    unit: each
    material_rate: 4200
    labor_rate: 1100
  - kind: wall
    signature: default
    unit: m2
    material_rate: 38.5
    labor_rate: 22
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	entries, err := LoadYAML(path)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "panel", entries[0].Kind)
	assert.Equal(t, 4200.0, entries[0].MaterialRate)
	assert.Equal(t, "m2", entries[1].Unit)
}

func TestLoadYAML_MissingKind(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "rates.yaml")
	require.NoError(t, os.WriteFile(path, []byte("rates:\n  - signature: default\n"), 0o644))

	_, err := LoadYAML(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing kind")
}

func TestParseFTPURL(t *testing.T) {
	t.Parallel()

	host, path, err := parseFTPURL("ftp://rates.example.com/books/2026-q1.xlsx")
	require.NoError(t, err)
	assert.Equal(t, "rates.example.com:21", host)
	assert.Equal(t, "/books/2026-q1.xlsx", path)

	_, _, err = parseFTPURL("https://rates.example.com/book.xlsx")
	require.Error(t, err)
}
