// Package store persists extracted datasets and serves the range and
// containment queries used by lookups.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/geolookup-cli/internal/extract"
	"github.com/sells-group/geolookup-cli/internal/geo"
	"github.com/sells-group/geolookup-cli/internal/grid"
)

// SchemaVersion is written to metadata by every build.
const SchemaVersion = "2"

// Metadata keys.
const (
	MetaMinLat        = "min_latitude"
	MetaMaxLat        = "max_latitude"
	MetaMinLon        = "min_longitude"
	MetaMaxLon        = "max_longitude"
	MetaGridSize      = "grid_size"
	MetaJurisdiction  = "jurisdiction"
	MetaBuildID       = "build_id"
	MetaBuiltAt       = "built_at"
	MetaSourceFile    = "source_file"
	MetaSchemaVersion = "schema_version"
)

// ErrNoDataset is returned when a dataset file or its required tables are
// missing.
var ErrNoDataset = eris.New("store: dataset not found")

// Sink receives the entities of one build. Writes may be buffered until
// Flush or Close.
type Sink interface {
	WriteSegment(ctx context.Context, s extract.RoadSegment) error
	WritePlace(ctx context.Context, p extract.PlaceNode) error
	WriteAddress(ctx context.Context, a extract.AddressNode) error
	WriteBoundary(ctx context.Context, b extract.PlaceBoundary) error
	WriteGridCells(ctx context.Context, cells []grid.Cell) error
	WriteMetadata(ctx context.Context, meta map[string]string) error
	Flush(ctx context.Context) error
	Close() error
}

// Segment is the query-side view of a road segment. Geometry is not loaded.
type Segment struct {
	ID       int64     `json:"way_id"`
	Name     string    `json:"name,omitempty"`
	Highway  string    `json:"highway"`
	SpeedKmh int       `json:"speed_limit_kmh"`
	Inferred bool      `json:"inferred"`
	Bounds   geo.BBox  `json:"bounds"`
	Center   geo.Point `json:"center"`
}

// Reader answers the range and containment queries of lookups and geocoding.
// Every ordering is total (ties broken by id) so results are deterministic.
type Reader interface {
	// SegmentsInCells returns segments indexed in the inclusive cell
	// rectangle whose bbox, padded by tol degrees, contains p, nearest
	// center first.
	SegmentsInCells(ctx context.Context, x0, y0, x1, y1 int, p geo.Point, tol float64, limit int) ([]Segment, error)
	// SegmentsNear returns segments whose center lies within radiusDeg of p
	// on both axes, nearest center first. A limit <= 0 returns them all.
	SegmentsNear(ctx context.Context, p geo.Point, radiusDeg float64, namedOnly bool, limit int) ([]Segment, error)
	PlacesNear(ctx context.Context, p geo.Point, kinds []extract.PlaceKind, radiusDeg float64, limit int) ([]extract.PlaceNode, error)
	// AddressesNear is SegmentsNear for address nodes.
	AddressesNear(ctx context.Context, p geo.Point, radiusDeg float64, limit int) ([]extract.AddressNode, error)
	// BoundariesContaining returns boundaries of the given kinds whose bbox
	// contains p, smallest bbox area first.
	BoundariesContaining(ctx context.Context, p geo.Point, kinds []extract.PlaceKind) ([]extract.PlaceBoundary, error)
	Metadata(ctx context.Context) (map[string]string, error)
	HasPlaceData(ctx context.Context) (bool, error)
}
