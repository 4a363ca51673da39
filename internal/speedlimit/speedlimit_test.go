package speedlimit

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustZA(t *testing.T) Jurisdiction {
	t.Helper()
	j, err := Lookup("za")
	require.NoError(t, err)
	return j
}

func TestParse(t *testing.T) {
	za := mustZA(t)

	tests := []struct {
		raw  string
		want int
		ok   bool
	}{
		{raw: "60", want: 60, ok: true},
		{raw: " 80 ", want: 80, ok: true},
		{raw: "60 mph", want: 97, ok: true},
		{raw: "30mph", want: 48, ok: true},
		{raw: "none", want: 120, ok: true},
		{raw: "signals", want: 120, ok: true},
		{raw: "walk", want: WalkingPace, ok: true},
		{raw: "100 km/h", want: 100, ok: true},
		{raw: "100kmh", want: 100, ok: true},
		{raw: "40 kph", want: 40, ok: true},
		{raw: "60;80", want: 60, ok: true},
		{raw: "ZA:urban", want: 60, ok: true},
		{raw: "ZA:rural", want: 100, ok: true},
		{raw: "ZA:motorway", want: 120, ok: true},
		{raw: "DE:zone30", want: 30, ok: true},
		{raw: "ZA:unknown", ok: false},
		{raw: "fast", ok: false},
		{raw: "", ok: false},
		{raw: "3", ok: false},
		{raw: "250", ok: false},
		{raw: "-60", ok: false},
		{raw: "abc mph", ok: false},
		{raw: "200 mph", ok: false},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, ok := Parse(tt.raw, za)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestInfer(t *testing.T) {
	za := mustZA(t)

	assert.Equal(t, 60, Infer("residential", za))
	assert.Equal(t, 120, Infer("motorway", za))
	assert.Equal(t, 80, Infer("motorway_link", za))

	empty := Jurisdiction{Code: "XX"}
	assert.Equal(t, 120, Infer("motorway", empty))
	assert.Equal(t, 120, Infer("trunk_link", empty))
	assert.Equal(t, 100, Infer("primary", empty))
	assert.Equal(t, 80, Infer("tertiary_link", empty))
	assert.Equal(t, 60, Infer("residential", empty))
	assert.Equal(t, 40, Infer("service", empty))
}

func TestResolve(t *testing.T) {
	za := mustZA(t)

	kmh, inferred := Resolve(map[string]string{"highway": "primary", "maxspeed": "60"}, za)
	assert.Equal(t, 60, kmh)
	assert.False(t, inferred)

	kmh, inferred = Resolve(map[string]string{"highway": "primary", "maxspeed": "60 mph"}, za)
	assert.Equal(t, 97, kmh)
	assert.False(t, inferred)

	kmh, inferred = Resolve(map[string]string{"highway": "trunk", "maxspeed": "none"}, za)
	assert.Equal(t, 120, kmh)
	assert.False(t, inferred)

	kmh, inferred = Resolve(map[string]string{"highway": "residential"}, za)
	assert.Equal(t, za.Highway["residential"], kmh)
	assert.True(t, inferred)

	kmh, inferred = Resolve(map[string]string{"highway": "residential", "maxspeed": "variable"}, za)
	assert.Equal(t, 60, kmh)
	assert.True(t, inferred)
}

func TestLookup(t *testing.T) {
	_, err := Lookup("XX")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown jurisdiction")

	assert.Equal(t, []string{"DE", "GB", "NL", "US", "ZA"}, Codes())

	// Mutating a returned table must not leak into the built-ins.
	j := mustZA(t)
	j.Highway["residential"] = 1
	assert.Equal(t, 60, mustZA(t).Highway["residential"])
}

func TestLoadTable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "speeds.yaml")
	content := `
jurisdictions:
  - code: ZA
    urban: 50
    highway:
      residential: 50
  - code: NA
    open_road: 120
    urban: 60
    rural: 100
    highway:
      primary: 100
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	za, err := LoadTable(path, "ZA")
	require.NoError(t, err)
	assert.Equal(t, 50, za.Urban)
	assert.Equal(t, 50, za.Highway["residential"])
	assert.Equal(t, 120, za.OpenRoad)

	na, err := LoadTable(path, "na")
	require.NoError(t, err)
	assert.Equal(t, "NA", na.Code)
	assert.Equal(t, 100, Infer("primary", na))

	de, err := LoadTable(path, "DE")
	require.NoError(t, err)
	assert.Equal(t, 130, de.OpenRoad)

	_, err = LoadTable(path, "XX")
	require.Error(t, err)

	_, err = LoadTable(filepath.Join(dir, "missing.yaml"), "ZA")
	require.Error(t, err)
}
