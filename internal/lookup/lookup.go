// Package lookup answers speed-limit queries from the spatial grid index,
// independently of place data.
package lookup

import (
	"context"
	"strconv"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/geolookup-cli/internal/geo"
	"github.com/sells-group/geolookup-cli/internal/grid"
	"github.com/sells-group/geolookup-cli/internal/store"
)

// DefaultFallbackRadius is the center-in-box search radius, in degrees, used
// when the grid finds no containing segment.
const DefaultFallbackRadius = 0.01

// Result sources.
const (
	SourceGrid     = "grid"
	SourceFallback = "fallback"
)

// Options configures a Service.
type Options struct {
	FallbackRadius float64 `mapstructure:"fallback_radius"`
}

// RoadInfo describes the road governing a coordinate.
type RoadInfo struct {
	WayID    int64   `json:"way_id"`
	Name     string  `json:"name,omitempty"`
	Highway  string  `json:"highway"`
	SpeedKmh int     `json:"speed_limit_kmh"`
	Inferred bool    `json:"inferred"`
	Distance float64 `json:"distance_m"` // to the segment's bbox center
	Source   string  `json:"source"`
}

// Service resolves coordinates to road segments.
type Service struct {
	reader   store.Reader
	grid     *grid.Grid
	fallback float64
	log      *zap.Logger
}

// NewService reads the dataset's grid metadata. Datasets without recorded
// bounds are served by the fallback search alone.
func NewService(ctx context.Context, reader store.Reader, opts Options) (*Service, error) {
	meta, err := reader.Metadata(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "lookup: read metadata")
	}
	if opts.FallbackRadius <= 0 {
		opts.FallbackRadius = DefaultFallbackRadius
	}
	s := &Service{
		reader:   reader,
		fallback: opts.FallbackRadius,
		log:      zap.L().With(zap.String("component", "lookup")),
	}

	g, ok, err := gridFromMetadata(meta)
	if err != nil {
		return nil, err
	}
	if ok {
		s.grid = &g
	} else {
		s.log.Warn("dataset has no grid bounds; using fallback search only")
	}
	return s, nil
}

// gridFromMetadata rebuilds the grid geometry recorded at build time.
func gridFromMetadata(meta map[string]string) (grid.Grid, bool, error) {
	keys := []string{store.MetaMinLat, store.MetaMaxLat, store.MetaMinLon, store.MetaMaxLon, store.MetaGridSize}
	vals := make([]float64, len(keys))
	for i, k := range keys {
		raw, ok := meta[k]
		if !ok || raw == "" {
			return grid.Grid{}, false, nil
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return grid.Grid{}, false, eris.Wrapf(err, "lookup: metadata %s", k)
		}
		vals[i] = v
	}
	world := geo.BBox{MinLat: vals[0], MaxLat: vals[1], MinLon: vals[2], MaxLon: vals[3]}
	g, err := grid.New(world, int(vals[4]))
	if err != nil {
		return grid.Grid{}, false, eris.Wrap(err, "lookup: grid metadata")
	}
	return g, true, nil
}

// HasGrid reports whether grid queries are available.
func (s *Service) HasGrid() bool {
	return s.grid != nil
}

// SpeedLimit returns the limit in km/h of the road at p. ok is false when
// no road is near.
func (s *Service) SpeedLimit(ctx context.Context, p geo.Point) (kmh int, ok bool, err error) {
	info, err := s.RoadInfo(ctx, p)
	if err != nil || info == nil {
		return 0, false, err
	}
	return info.SpeedKmh, true, nil
}

// RoadInfo returns the road at p, or nil when none is near. Segments whose
// bbox contains p in the 3×3 cell neighbourhood win, nearest center first;
// otherwise the nearest segment center within the fallback radius.
func (s *Service) RoadInfo(ctx context.Context, p geo.Point) (*RoadInfo, error) {
	if s.grid != nil {
		x0, y0, x1, y1 := s.grid.Neighbourhood(p, 1)
		segs, err := s.reader.SegmentsInCells(ctx, x0, y0, x1, y1, p, 0, 1)
		if err != nil {
			return nil, eris.Wrap(err, "lookup: grid query")
		}
		if len(segs) > 0 {
			return roadInfo(p, segs[0], SourceGrid), nil
		}
	}

	segs, err := s.reader.SegmentsNear(ctx, p, s.fallback, false, 1)
	if err != nil {
		return nil, eris.Wrap(err, "lookup: fallback query")
	}
	if len(segs) == 0 {
		return nil, nil
	}
	return roadInfo(p, segs[0], SourceFallback), nil
}

func roadInfo(p geo.Point, seg store.Segment, source string) *RoadInfo {
	return &RoadInfo{
		WayID:    seg.ID,
		Name:     seg.Name,
		Highway:  seg.Highway,
		SpeedKmh: seg.SpeedKmh,
		Inferred: seg.Inferred,
		Distance: p.Distance(seg.Center),
		Source:   source,
	}
}
