package geo

import (
	"math"

	"github.com/paulmach/orb"
)

// BBox is an axis-aligned bounding box in decimal degrees.
// The zero value is not empty; use EmptyBBox to start accumulating points.
type BBox struct {
	MinLat float64 `json:"min_lat"`
	MinLon float64 `json:"min_lon"`
	MaxLat float64 `json:"max_lat"`
	MaxLon float64 `json:"max_lon"`
}

// EmptyBBox returns a box that contains nothing and grows on Extend.
func EmptyBBox() BBox {
	return BBox{
		MinLat: math.Inf(1),
		MinLon: math.Inf(1),
		MaxLat: math.Inf(-1),
		MaxLon: math.Inf(-1),
	}
}

// BoundsOf returns the bounding box of pts. An empty slice yields EmptyBBox.
func BoundsOf(pts []Point) BBox {
	b := EmptyBBox()
	for _, p := range pts {
		b = b.Extend(p)
	}
	return b
}

// Around returns the box of half-width radiusDeg centered on p.
func Around(p Point, radiusDeg float64) BBox {
	return BBox{
		MinLat: p.Lat - radiusDeg,
		MinLon: p.Lon - radiusDeg,
		MaxLat: p.Lat + radiusDeg,
		MaxLon: p.Lon + radiusDeg,
	}
}

// IsEmpty reports whether the box has never been extended.
func (b BBox) IsEmpty() bool {
	return b.MinLat > b.MaxLat || b.MinLon > b.MaxLon
}

// Extend returns b grown to include p.
func (b BBox) Extend(p Point) BBox {
	b.MinLat = math.Min(b.MinLat, p.Lat)
	b.MinLon = math.Min(b.MinLon, p.Lon)
	b.MaxLat = math.Max(b.MaxLat, p.Lat)
	b.MaxLon = math.Max(b.MaxLon, p.Lon)
	return b
}

// Union returns the smallest box containing b and o.
func (b BBox) Union(o BBox) BBox {
	if o.IsEmpty() {
		return b
	}
	b = b.Extend(Point{Lat: o.MinLat, Lon: o.MinLon})
	return b.Extend(Point{Lat: o.MaxLat, Lon: o.MaxLon})
}

// Contains reports whether p lies inside b, edges included.
func (b BBox) Contains(p Point) bool {
	return p.Lat >= b.MinLat && p.Lat <= b.MaxLat &&
		p.Lon >= b.MinLon && p.Lon <= b.MaxLon
}

// Center returns the midpoint of b.
func (b BBox) Center() Point {
	return Point{
		Lat: (b.MinLat + b.MaxLat) / 2,
		Lon: (b.MinLon + b.MaxLon) / 2,
	}
}

// Area returns the planar area of b in degrees². It is used for ranking only.
func (b BBox) Area() float64 {
	if b.IsEmpty() {
		return 0
	}
	return (b.MaxLat - b.MinLat) * (b.MaxLon - b.MinLon)
}

// Orb converts b to an orb.Bound.
func (b BBox) Orb() orb.Bound {
	return orb.Bound{
		Min: orb.Point{b.MinLon, b.MinLat},
		Max: orb.Point{b.MaxLon, b.MaxLat},
	}
}
