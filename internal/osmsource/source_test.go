package osmsource

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fixtureXML = `<?xml version="1.0" encoding="UTF-8"?>
<osm version="0.6" generator="test">
  <node id="1" lat="-33.930" lon="18.400">
    <tag k="place" v="suburb"/>
    <tag k="name" v="Gardens"/>
  </node>
  <node id="2" lat="-33.931" lon="18.401"/>
  <way id="10">
    <nd ref="1"/>
    <nd ref="2"/>
    <tag k="highway" v="residential"/>
  </way>
  <relation id="100">
    <member type="way" ref="10" role="outer"/>
    <tag k="boundary" v="administrative"/>
  </relation>
</osm>`

func writeFixture(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(fixtureXML), 0o644))
	return path
}

func collect(t *testing.T, src Source, f Filter) []Record {
	t.Helper()
	sc, err := src.Open(context.Background(), f)
	require.NoError(t, err)
	defer sc.Close() //nolint:errcheck

	var out []Record
	for sc.Scan() {
		out = append(out, sc.Record())
	}
	require.NoError(t, sc.Err())
	return out
}

func TestFileSource_XML(t *testing.T) {
	src, err := NewFileSource(writeFixture(t, "fixture.osm"), 0)
	require.NoError(t, err)

	recs := collect(t, src, All)
	require.Len(t, recs, 4)

	n, ok := recs[0].(*Node)
	require.True(t, ok)
	assert.Equal(t, int64(1), n.ID)
	assert.InDelta(t, -33.93, n.Lat, 1e-9)
	assert.Equal(t, "Gardens", n.Tags["name"])

	bare, ok := recs[1].(*Node)
	require.True(t, ok)
	assert.Nil(t, bare.Tags)

	w, ok := recs[2].(*Way)
	require.True(t, ok)
	assert.Equal(t, []int64{1, 2}, w.Nodes)

	r, ok := recs[3].(*Relation)
	require.True(t, ok)
	require.Len(t, r.Members, 1)
	assert.Equal(t, Member{Type: MemberWay, Ref: 10, Role: "outer"}, r.Members[0])
}

func TestFileSource_Filter(t *testing.T) {
	src, err := NewFileSource(writeFixture(t, "fixture.osm"), 0)
	require.NoError(t, err)

	recs := collect(t, src, Filter{Ways: true})
	require.Len(t, recs, 1)
	_, ok := recs[0].(*Way)
	assert.True(t, ok)
}

func TestFileSource_Replayable(t *testing.T) {
	src, err := NewFileSource(writeFixture(t, "fixture.osm"), 0)
	require.NoError(t, err)

	first := collect(t, src, All)
	second := collect(t, src, All)
	assert.Equal(t, first, second)
}

func TestFileSource_Errors(t *testing.T) {
	_, err := NewFileSource(filepath.Join(t.TempDir(), "missing.pbf"), 0)
	require.Error(t, err)

	_, err = NewFileSource(t.TempDir(), 0)
	require.Error(t, err)

	src, err := NewFileSource(writeFixture(t, "fixture.txt"), 0)
	require.NoError(t, err)
	_, err = src.Open(context.Background(), All)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported extract format")
}

func TestMemorySource(t *testing.T) {
	src := NewMemorySource(
		&Node{ID: 1},
		&Way{ID: 2},
		&Relation{ID: 3},
	)

	assert.Len(t, collect(t, src, All), 3)
	assert.Len(t, collect(t, src, Filter{Relations: true}), 1)
	assert.Equal(t, 2, src.Opens())
}

func TestMemorySource_Cancelled(t *testing.T) {
	src := NewMemorySource(&Node{ID: 1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sc, err := src.Open(ctx, All)
	require.NoError(t, err)
	assert.False(t, sc.Scan())
	assert.ErrorIs(t, sc.Err(), context.Canceled)
}
