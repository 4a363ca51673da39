package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func unitSquare() []Point {
	return []Point{
		{Lat: 0, Lon: 0},
		{Lat: 0, Lon: 1},
		{Lat: 1, Lon: 1},
		{Lat: 1, Lon: 0},
		{Lat: 0, Lon: 0},
	}
}

func TestPointInRing_UnitSquare(t *testing.T) {
	sq := unitSquare()

	tests := []struct {
		name   string
		p      Point
		inside bool
	}{
		{name: "centroid", p: Point{Lat: 0.5, Lon: 0.5}, inside: true},
		{name: "far outside", p: Point{Lat: 2, Lon: 2}, inside: false},
		{name: "negative side", p: Point{Lat: -0.5, Lon: 0.5}, inside: false},
		{name: "min longitude edge", p: Point{Lat: 0.5, Lon: 0}, inside: true},
		{name: "min latitude edge", p: Point{Lat: 0, Lon: 0.5}, inside: true},
		{name: "max longitude edge", p: Point{Lat: 0.5, Lon: 1}, inside: false},
		{name: "max latitude edge", p: Point{Lat: 1, Lon: 0.5}, inside: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.inside, PointInRing(tt.p, sq))
		})
	}
}

func TestPointInRing_EdgeRuleStable(t *testing.T) {
	sq := unitSquare()
	p := Point{Lat: 0.5, Lon: 0}
	first := PointInRing(p, sq)
	for range 10 {
		assert.Equal(t, first, PointInRing(p, sq))
	}
}

func TestPointInRing_Concave(t *testing.T) {
	// U shape opening north.
	u := []Point{
		{Lat: 0, Lon: 0}, {Lat: 0, Lon: 3}, {Lat: 3, Lon: 3}, {Lat: 3, Lon: 2},
		{Lat: 1, Lon: 2}, {Lat: 1, Lon: 1}, {Lat: 3, Lon: 1}, {Lat: 3, Lon: 0}, {Lat: 0, Lon: 0},
	}
	assert.True(t, PointInRing(Point{Lat: 2, Lon: 0.5}, u))
	assert.False(t, PointInRing(Point{Lat: 2, Lon: 1.5}, u))
	assert.True(t, PointInRing(Point{Lat: 0.5, Lon: 1.5}, u))
}

func TestPointInRing_Degenerate(t *testing.T) {
	assert.False(t, PointInRing(Point{}, nil))
	assert.False(t, PointInRing(Point{}, []Point{{Lat: 0, Lon: 0}, {Lat: 1, Lon: 1}}))
}

func TestDistance(t *testing.T) {
	capeTown := NewPoint(-33.9249, 18.4241)
	joburg := NewPoint(-26.2041, 28.0473)

	d := capeTown.Distance(joburg)
	assert.InDelta(t, 1_262_000, d, 15_000)
	assert.Zero(t, capeTown.Distance(capeTown))
	assert.InDelta(t, d, joburg.Distance(capeTown), 1e-6)
}

func TestSearchRadius(t *testing.T) {
	equator := SearchRadius(Point{}, 1000)
	assert.InDelta(t, DegreesForMeters(1000), equator, 1e-12)
	assert.InDelta(t, 2*equator, SearchRadius(Point{Lat: 60, Lon: 18}, 1000), 1e-9)
	assert.InDelta(t, 2*equator, SearchRadius(Point{Lat: -60, Lon: 18}, 1000), 1e-9)
	assert.Equal(t, 180.0, SearchRadius(Point{Lat: 90}, 1000))

	// 1.5 km due east at 34°S lies within a 1.6 km radius.
	p := Point{Lat: -34, Lon: 18.5}
	east := Point{Lat: -34, Lon: 18.5 + 0.01625}
	require.Less(t, p.Distance(east), 1600.0)
	assert.True(t, Around(p, SearchRadius(p, 1600)).Contains(east))
	assert.False(t, Around(p, DegreesForMeters(1600)).Contains(east))
}

func TestBBox(t *testing.T) {
	b := BoundsOf([]Point{{Lat: 1, Lon: 2}, {Lat: -1, Lon: 5}, {Lat: 0, Lon: 3}})

	assert.Equal(t, BBox{MinLat: -1, MinLon: 2, MaxLat: 1, MaxLon: 5}, b)
	assert.Equal(t, Point{Lat: 0, Lon: 3.5}, b.Center())
	assert.InDelta(t, 6.0, b.Area(), 1e-9)
	assert.True(t, b.Contains(Point{Lat: 1, Lon: 5}))
	assert.False(t, b.Contains(Point{Lat: 1.1, Lon: 5}))

	assert.True(t, EmptyBBox().IsEmpty())
	assert.Zero(t, EmptyBBox().Area())
	assert.Equal(t, b, EmptyBBox().Union(b))
}

func TestEncodeDecodePoints(t *testing.T) {
	pts := []Point{{Lat: -33.93, Lon: 18.40}, {Lat: -33.94, Lon: 18.41}}
	blob := EncodePoints(pts)
	assert.Len(t, blob, 4+32)

	got, err := DecodePoints(blob)
	require.NoError(t, err)
	assert.Equal(t, pts, got)
}

func TestDecodePoints_Malformed(t *testing.T) {
	_, err := DecodePoints([]byte{1, 0})
	require.Error(t, err)

	blob := EncodePoints([]Point{{Lat: 1, Lon: 1}})
	_, err = DecodePoints(blob[:len(blob)-1])
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not match count")
}

func TestRingArea(t *testing.T) {
	assert.InDelta(t, 1.0, RingArea(unitSquare()), 1e-12)
	assert.True(t, IsClosed(unitSquare()))
}
