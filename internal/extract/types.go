// Package extract turns an OSM record stream into road segments, named
// places, postal addresses, and assembled boundary polygons in three
// sequential passes over the source.
package extract

import "github.com/sells-group/geolookup-cli/internal/geo"

// PlaceKind is the value of a place=* tag we retain, or a derived boundary kind.
type PlaceKind string

// Place and boundary kinds.
const (
	KindCity          PlaceKind = "city"
	KindTown          PlaceKind = "town"
	KindSuburb        PlaceKind = "suburb"
	KindVillage       PlaceKind = "village"
	KindHamlet        PlaceKind = "hamlet"
	KindNeighbourhood PlaceKind = "neighbourhood"

	// Boundary-only kinds derived from admin_level.
	KindRegion         PlaceKind = "region"
	KindAdministrative PlaceKind = "administrative"
)

var placeKinds = map[PlaceKind]bool{
	KindCity: true, KindTown: true, KindSuburb: true,
	KindVillage: true, KindHamlet: true, KindNeighbourhood: true,
}

// IsPlaceKind reports whether v is one of the retained place=* values.
func IsPlaceKind(v string) bool {
	return placeKinds[PlaceKind(v)]
}

// routable is the highway=* allow-list for road segments.
var routable = map[string]bool{
	"motorway": true, "motorway_link": true,
	"trunk": true, "trunk_link": true,
	"primary": true, "primary_link": true,
	"secondary": true, "secondary_link": true,
	"tertiary": true, "tertiary_link": true,
	"unclassified": true, "residential": true,
	"living_street": true, "service": true,
}

// IsRoutable reports whether a highway=* value produces road segments.
func IsRoutable(highway string) bool {
	return routable[highway]
}

// RoadSegment is one routable way with its resolved geometry and limit.
type RoadSegment struct {
	WayID    int64
	Name     string
	Highway  string
	SpeedKmh int
	Inferred bool
	Geometry []geo.Point
	Bounds   geo.BBox
}

// Center returns the center of the segment's bounding box.
func (s RoadSegment) Center() geo.Point {
	return s.Bounds.Center()
}

// PlaceNode is a named place point.
type PlaceNode struct {
	NodeID   int64
	Name     string
	Kind     PlaceKind
	Location geo.Point
}

// AddressNode is a point carrying a postal street name.
type AddressNode struct {
	NodeID   int64
	Street   string
	Location geo.Point
}

// BoundaryRelation is the pass-2 catalogue entry for a boundary relation.
// It is discarded once pass 3 has assembled its ring.
type BoundaryRelation struct {
	RelationID int64
	Name       string
	Kind       PlaceKind
	AdminLevel int
	OuterWays  []int64
}

// PlaceBoundary is an assembled, closed administrative or place polygon.
type PlaceBoundary struct {
	RelationID int64
	Name       string
	Kind       PlaceKind
	AdminLevel int
	Ring       []geo.Point
	Bounds     geo.BBox
}

// ClassifyBoundary derives a boundary kind. A place=* value from the
// retained set wins; otherwise admin levels up to 5 are regions and deeper
// levels are generic administrative areas. Admin levels below 4 never
// qualify without a place tag.
func ClassifyBoundary(placeValue string, adminLevel int) (PlaceKind, bool) {
	if IsPlaceKind(placeValue) {
		return PlaceKind(placeValue), true
	}
	if adminLevel < 4 {
		return "", false
	}
	if adminLevel <= 5 {
		return KindRegion, true
	}
	return KindAdministrative, true
}
