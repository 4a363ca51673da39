package builder

import (
	"context"
	"errors"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/geolookup-cli/internal/geo"
	"github.com/sells-group/geolookup-cli/internal/geocode"
	"github.com/sells-group/geolookup-cli/internal/osmsource"
	"github.com/sells-group/geolookup-cli/internal/speedlimit"
	"github.com/sells-group/geolookup-cli/internal/store"
)

var gardens = geo.Point{Lat: -33.93, Lon: 18.40}

func node(id int64, lat, lon float64, tags map[string]string) *osmsource.Node {
	return &osmsource.Node{ID: id, Lat: lat, Lon: lon, Tags: tags}
}

func way(id int64, nodes []int64, tags map[string]string) *osmsource.Way {
	return &osmsource.Way{ID: id, Nodes: nodes, Tags: tags}
}

// gardensExtract is a suburb node with a 0.01° square boundary around it and
// two roads running south-east.
func gardensExtract() *osmsource.MemorySource {
	return osmsource.NewMemorySource(
		node(1, gardens.Lat, gardens.Lon, map[string]string{"place": "suburb", "name": "Gardens"}),
		node(2, -33.931, 18.401, nil),
		node(3, -33.933, 18.403, nil),
		node(4, -33.940, 18.410, nil),
		node(10, -33.935, 18.395, nil),
		node(11, -33.935, 18.405, nil),
		node(12, -33.925, 18.405, nil),
		node(13, -33.925, 18.395, nil),

		way(100, []int64{2, 3}, map[string]string{"highway": "residential", "name": "Kloof Street"}),
		way(101, []int64{3, 4}, map[string]string{"highway": "primary", "name": "Buitengracht Street", "maxspeed": "80"}),
		way(200, []int64{10, 11, 12}, nil),
		way(201, []int64{12, 13, 10}, nil),

		&osmsource.Relation{ID: 300, Tags: map[string]string{"place": "suburb", "name": "Gardens"},
			Members: []osmsource.Member{
				{Type: osmsource.MemberWay, Ref: 200, Role: "outer"},
				{Type: osmsource.MemberWay, Ref: 201, Role: "outer"},
			}},
	)
}

func zaOptions(t *testing.T) Options {
	t.Helper()
	rules, err := speedlimit.Lookup("ZA")
	require.NoError(t, err)
	return Options{Rules: rules, GridSize: 10, SourceFile: "gardens.osm"}
}

func buildDataset(t *testing.T) (string, *Result) {
	t.Helper()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "za.db")

	sink, err := store.CreateSQLite(ctx, path, 0)
	require.NoError(t, err)
	res, err := Build(ctx, gardensExtract(), sink, zaOptions(t))
	require.NoError(t, err)
	require.NoError(t, sink.Close())
	return path, res
}

func openDataset(t *testing.T, path string) *store.SQLite {
	t.Helper()
	s, err := store.OpenSQLite(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() }) //nolint:errcheck
	return s
}

func TestBuild_Result(t *testing.T) {
	_, res := buildDataset(t)

	assert.NotEmpty(t, res.BuildID)
	assert.Equal(t, 10, res.GridSize)
	assert.Equal(t, 2, res.Stats.Segments)
	assert.Equal(t, 1, res.Stats.ExplicitSpeeds)
	assert.Equal(t, 1, res.Stats.InferredSpeeds)
	assert.Equal(t, 1, res.Stats.Places)
	assert.Equal(t, 1, res.Stats.Boundaries)
	assert.Positive(t, res.GridCells)

	// The world spans the two segment centers.
	assert.InDelta(t, -33.9365, res.World.MinLat, 1e-9)
	assert.InDelta(t, -33.932, res.World.MaxLat, 1e-9)
	assert.InDelta(t, 18.402, res.World.MinLon, 1e-9)
	assert.InDelta(t, 18.4065, res.World.MaxLon, 1e-9)
}

func TestBuild_PersistsDataset(t *testing.T) {
	path, res := buildDataset(t)
	s := openDataset(t, path)
	ctx := context.Background()

	counts, err := s.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts["road_segments"])
	assert.Equal(t, int64(1), counts["place_nodes"])
	assert.Equal(t, int64(1), counts["place_boundaries"])
	assert.Equal(t, int64(res.GridCells), counts["spatial_grid"])

	meta, err := s.Metadata(ctx)
	require.NoError(t, err)
	assert.Equal(t, "10", meta[store.MetaGridSize])
	assert.Equal(t, "ZA", meta[store.MetaJurisdiction])
	assert.Equal(t, res.BuildID, meta[store.MetaBuildID])
	assert.Equal(t, "gardens.osm", meta[store.MetaSourceFile])
	assert.Equal(t, store.SchemaVersion, meta[store.MetaSchemaVersion])
	assert.NotEmpty(t, meta[store.MetaBuiltAt])

	minLat, err := strconv.ParseFloat(meta[store.MetaMinLat], 64)
	require.NoError(t, err)
	assert.Equal(t, res.World.MinLat, minLat)
	maxLon, err := strconv.ParseFloat(meta[store.MetaMaxLon], 64)
	require.NoError(t, err)
	assert.Equal(t, res.World.MaxLon, maxLon)
}

func TestBuild_GardensGeocode(t *testing.T) {
	path, _ := buildDataset(t)
	e := geocode.New(openDataset(t, path), geocode.DefaultOptions())
	ctx := context.Background()

	// At the suburb node the boundary polygon answers.
	addr, err := e.Resolve(ctx, gardens)
	require.NoError(t, err)
	require.NotNil(t, addr.Suburb)
	assert.Equal(t, "Gardens", addr.Suburb.Name)
	assert.Equal(t, "suburb (polygon)", addr.Suburb.Kind)
	assert.Zero(t, addr.Suburb.Distance)

	// 0.03° east is outside the polygon but within the suburb radius, so the
	// place node answers with a real distance.
	addr, err = e.Resolve(ctx, geo.Point{Lat: gardens.Lat, Lon: gardens.Lon + 0.03})
	require.NoError(t, err)
	require.NotNil(t, addr.Suburb)
	assert.Equal(t, "Gardens", addr.Suburb.Name)
	assert.Equal(t, "suburb", addr.Suburb.Kind)
	assert.Greater(t, addr.Suburb.Distance, 2000.0)
}

// A point 0.1° from the suburb node is ~9 km away. The default suburb
// radius (0.05°, ~5.5 km) leaves it unresolved; a 0.15° radius reaches the
// node through the nearest-place fallback.
func TestBuild_GardensSuburbRadius(t *testing.T) {
	path, _ := buildDataset(t)
	ds := openDataset(t, path)
	ctx := context.Background()
	far := geo.Point{Lat: gardens.Lat, Lon: gardens.Lon + 0.1}

	addr, err := geocode.New(ds, geocode.DefaultOptions()).Resolve(ctx, far)
	require.NoError(t, err)
	assert.Nil(t, addr.Suburb)

	opts := geocode.DefaultOptions()
	opts.SuburbRadius = 0.15
	addr, err = geocode.New(ds, opts).Resolve(ctx, far)
	require.NoError(t, err)
	require.NotNil(t, addr.Suburb)
	assert.Equal(t, "Gardens", addr.Suburb.Name)
	assert.Equal(t, "suburb", addr.Suburb.Kind)
	assert.InDelta(t, 9230, addr.Suburb.Distance, 150)
}

func TestBuild_EmptySource(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "empty.db")
	sink, err := store.CreateSQLite(ctx, path, 0)
	require.NoError(t, err)

	res, err := Build(ctx, osmsource.NewMemorySource(), sink, Options{})
	require.NoError(t, err)
	require.NoError(t, sink.Close())
	assert.Zero(t, res.GridCells)
	assert.Equal(t, 1000, res.GridSize)

	meta, err := openDataset(t, path).Metadata(ctx)
	require.NoError(t, err)
	_, ok := meta[store.MetaMinLat]
	assert.False(t, ok)
}

func TestBuild_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sink, err := store.CreateSQLite(context.Background(), filepath.Join(t.TempDir(), "c.db"), 0)
	require.NoError(t, err)
	defer sink.Close() //nolint:errcheck

	_, err = Build(ctx, gardensExtract(), sink, zaOptions(t))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func sqliteJob(t *testing.T, name string) Job {
	path := filepath.Join(t.TempDir(), name+".db")
	return Job{
		Name:   name,
		Source: gardensExtract(),
		OpenSink: func(ctx context.Context) (store.Sink, error) {
			return store.CreateSQLite(ctx, path, 0)
		},
		Options: zaOptions(t),
	}
}

func TestBuildAll(t *testing.T) {
	jobs := []Job{sqliteJob(t, "za"), sqliteJob(t, "zw"), sqliteJob(t, "na")}

	results, err := BuildAll(context.Background(), jobs, 2)
	require.NoError(t, err)
	require.Len(t, results, 3)

	ids := map[string]bool{}
	for _, r := range results {
		require.NotNil(t, r)
		assert.Equal(t, 2, r.Stats.Segments)
		ids[r.BuildID] = true
	}
	assert.Len(t, ids, 3)
}

func TestBuildAll_OpenSinkError(t *testing.T) {
	bad := sqliteJob(t, "bad")
	bad.OpenSink = func(context.Context) (store.Sink, error) {
		return nil, errors.New("disk full")
	}

	_, err := BuildAll(context.Background(), []Job{sqliteJob(t, "za"), bad}, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "builder: open sink for bad")
}
