// Package geo provides the coordinate, bounding box, and polygon primitives
// shared by extraction, grid indexing, and lookups.
package geo

import (
	"math"

	"github.com/paulmach/orb"
	orbgeo "github.com/paulmach/orb/geo"
)

// MetersPerDegree approximates the length of one degree of latitude.
const MetersPerDegree = 111320.0

// Point is a WGS84 coordinate in decimal degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// NewPoint returns a Point for the given latitude and longitude.
func NewPoint(lat, lon float64) Point {
	return Point{Lat: lat, Lon: lon}
}

// Orb converts p to an orb.Point (x = longitude, y = latitude).
func (p Point) Orb() orb.Point {
	return orb.Point{p.Lon, p.Lat}
}

// FromOrb converts an orb.Point back to a Point.
func FromOrb(op orb.Point) Point {
	return Point{Lat: op.Lat(), Lon: op.Lon()}
}

// Distance returns the great-circle (haversine) distance to q in meters.
func (p Point) Distance(q Point) float64 {
	return orbgeo.DistanceHaversine(p.Orb(), q.Orb())
}

// Valid reports whether p lies within the WGS84 coordinate range.
func (p Point) Valid() bool {
	return !math.IsNaN(p.Lat) && !math.IsNaN(p.Lon) &&
		p.Lat >= -90 && p.Lat <= 90 && p.Lon >= -180 && p.Lon <= 180
}

// DegreesForMeters converts a distance in meters to approximate degrees.
func DegreesForMeters(m float64) float64 {
	return m / MetersPerDegree
}

// SearchRadius returns the half-width in degrees of a square box around p
// that holds every point within m meters. A degree of longitude shrinks by
// cos(lat), so the longitude span sets the width.
func SearchRadius(p Point, m float64) float64 {
	deg := DegreesForMeters(m)
	cos := math.Cos(p.Lat * math.Pi / 180)
	if cos < deg/180 {
		return 180
	}
	return deg / cos
}
