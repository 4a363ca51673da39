package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
	"go.uber.org/zap"

	"github.com/sells-group/geolookup-cli/internal/db"
	"github.com/sells-group/geolookup-cli/internal/extract"
	"github.com/sells-group/geolookup-cli/internal/geo"
	"github.com/sells-group/geolookup-cli/internal/grid"
)

// Postgres publishes a build into PostGIS tables under the osm schema. Rows
// are keyed by jurisdiction so several countries share the tables.
type Postgres struct {
	pool         db.Pool
	closeFn      func()
	jurisdiction string
	batchSize    int
	buf          map[string][][]any
	log          *zap.Logger
}

var _ Sink = (*Postgres)(nil)

type pgTable struct {
	name    string
	columns []string
	keys    []string

	// appendOnly tables are COPY'd straight in; the grid is written once per
	// build after Clear.
	appendOnly bool
}

var (
	pgSegments = pgTable{
		name:    "osm.road_segments",
		columns: []string{"jurisdiction", "id", "name", "highway_type", "speed_limit_kmh", "is_inferred", "center", "geom"},
		keys:    []string{"jurisdiction", "id"},
	}
	pgPlaces = pgTable{
		name:    "osm.place_nodes",
		columns: []string{"jurisdiction", "id", "name", "place_type", "geom"},
		keys:    []string{"jurisdiction", "id"},
	}
	pgAddresses = pgTable{
		name:    "osm.address_nodes",
		columns: []string{"jurisdiction", "id", "street", "geom"},
		keys:    []string{"jurisdiction", "id"},
	}
	pgBoundaries = pgTable{
		name:    "osm.place_boundaries",
		columns: []string{"jurisdiction", "id", "name", "place_type", "admin_level", "area", "geom"},
		keys:    []string{"jurisdiction", "id"},
	}
	pgGrid = pgTable{
		name:    "osm.spatial_grid",
		columns: []string{"jurisdiction", "grid_x", "grid_y", "road_segment_id"},
		keys:    []string{"jurisdiction", "grid_x", "grid_y", "road_segment_id"},

		appendOnly: true,
	}
	pgMetadata = pgTable{
		name:    "osm.metadata",
		columns: []string{"jurisdiction", "key", "value"},
		keys:    []string{"jurisdiction", "key"},
	}

	// Flush order keeps parents ahead of the grid rows that reference them.
	pgTables = []pgTable{pgSegments, pgPlaces, pgAddresses, pgBoundaries, pgGrid, pgMetadata}
)

const pgSchema = `
CREATE SCHEMA IF NOT EXISTS osm;

CREATE TABLE IF NOT EXISTS osm.road_segments (
	jurisdiction    TEXT NOT NULL,
	id              BIGINT NOT NULL,
	name            TEXT,
	highway_type    TEXT NOT NULL,
	speed_limit_kmh INTEGER NOT NULL,
	is_inferred     BOOLEAN NOT NULL,
	center          geometry(Point, 4326) NOT NULL,
	geom            geometry(LineString, 4326) NOT NULL,
	PRIMARY KEY (jurisdiction, id)
);

CREATE TABLE IF NOT EXISTS osm.place_nodes (
	jurisdiction TEXT NOT NULL,
	id           BIGINT NOT NULL,
	name         TEXT NOT NULL,
	place_type   TEXT NOT NULL,
	geom         geometry(Point, 4326) NOT NULL,
	PRIMARY KEY (jurisdiction, id)
);

CREATE TABLE IF NOT EXISTS osm.address_nodes (
	jurisdiction TEXT NOT NULL,
	id           BIGINT NOT NULL,
	street       TEXT NOT NULL,
	geom         geometry(Point, 4326) NOT NULL,
	PRIMARY KEY (jurisdiction, id)
);

CREATE TABLE IF NOT EXISTS osm.place_boundaries (
	jurisdiction TEXT NOT NULL,
	id           BIGINT NOT NULL,
	name         TEXT NOT NULL,
	place_type   TEXT NOT NULL,
	admin_level  INTEGER NOT NULL,
	area         DOUBLE PRECISION NOT NULL,
	geom         geometry(Polygon, 4326) NOT NULL,
	PRIMARY KEY (jurisdiction, id)
);

CREATE TABLE IF NOT EXISTS osm.spatial_grid (
	jurisdiction    TEXT NOT NULL,
	grid_x          INTEGER NOT NULL,
	grid_y          INTEGER NOT NULL,
	road_segment_id BIGINT NOT NULL,
	PRIMARY KEY (jurisdiction, grid_x, grid_y, road_segment_id)
);

CREATE TABLE IF NOT EXISTS osm.metadata (
	jurisdiction TEXT NOT NULL,
	key          TEXT NOT NULL,
	value        TEXT NOT NULL,
	PRIMARY KEY (jurisdiction, key)
);

CREATE INDEX IF NOT EXISTS idx_osm_road_segments_geom ON osm.road_segments USING GIST (geom);
CREATE INDEX IF NOT EXISTS idx_osm_place_nodes_geom ON osm.place_nodes USING GIST (geom);
CREATE INDEX IF NOT EXISTS idx_osm_address_nodes_geom ON osm.address_nodes USING GIST (geom);
CREATE INDEX IF NOT EXISTS idx_osm_place_boundaries_geom ON osm.place_boundaries USING GIST (geom);
`

// NewPostgres connects to connString and returns a publish sink for one
// jurisdiction.
func NewPostgres(ctx context.Context, connString, jurisdiction string, batchSize int) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	cfg.MaxConns = 4
	cfg.MaxConnLifetime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}

	p := NewPostgresFromPool(pool, jurisdiction, batchSize)
	p.closeFn = pool.Close
	return p, nil
}

// NewPostgresFromPool wraps an existing pool.
func NewPostgresFromPool(pool db.Pool, jurisdiction string, batchSize int) *Postgres {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Postgres{
		pool:         pool,
		jurisdiction: jurisdiction,
		batchSize:    batchSize,
		buf:          make(map[string][][]any),
		log:          zap.L().With(zap.String("component", "postgres_sink"), zap.String("jurisdiction", jurisdiction)),
	}
}

// Migrate creates the osm schema and tables.
func (p *Postgres) Migrate(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, pgSchema)
	return eris.Wrap(err, "postgres: migrate")
}

// Clear removes every row previously published for the jurisdiction.
func (p *Postgres) Clear(ctx context.Context) error {
	for i := len(pgTables) - 1; i >= 0; i-- {
		t := pgTables[i]
		if _, err := p.pool.Exec(ctx, "DELETE FROM "+db.Identifier(t.name).Sanitize()+" WHERE jurisdiction = $1", p.jurisdiction); err != nil {
			return eris.Wrapf(err, "postgres: clear %s", t.name)
		}
	}
	return nil
}

func (p *Postgres) add(ctx context.Context, t pgTable, row []any) error {
	p.buf[t.name] = append(p.buf[t.name], row)
	if len(p.buf[t.name]) >= p.batchSize {
		return p.flushTable(ctx, t)
	}
	return nil
}

func (p *Postgres) flushTable(ctx context.Context, t pgTable) error {
	rows := p.buf[t.name]
	if len(rows) == 0 {
		return nil
	}
	var (
		n   int64
		err error
	)
	if t.appendOnly {
		n, err = db.CopyFrom(ctx, p.pool, t.name, t.columns, rows)
	} else {
		n, err = db.Upsert(ctx, p.pool, db.UpsertConfig{
			Table:        t.name,
			Columns:      t.columns,
			ConflictKeys: t.keys,
		}, rows)
	}
	if err != nil {
		return eris.Wrapf(err, "postgres: publish %s", t.name)
	}
	p.log.Debug("published batch", zap.String("table", t.name), zap.Int64("rows", n))
	p.buf[t.name] = nil
	return nil
}

// Flush publishes every buffered row.
func (p *Postgres) Flush(ctx context.Context) error {
	for _, t := range pgTables {
		if err := p.flushTable(ctx, t); err != nil {
			return err
		}
	}
	return nil
}

// Close flushes and releases the pool when the sink owns it.
func (p *Postgres) Close() error {
	err := p.Flush(context.Background())
	if p.closeFn != nil {
		p.closeFn()
	}
	return err
}

// WriteSegment buffers a road segment.
func (p *Postgres) WriteSegment(ctx context.Context, s extract.RoadSegment) error {
	center, err := pointEWKB(s.Center())
	if err != nil {
		return err
	}
	line, err := lineEWKB(s.Geometry)
	if err != nil {
		return err
	}
	return p.add(ctx, pgSegments, []any{
		p.jurisdiction, s.WayID, nullable(s.Name), s.Highway, int32(s.SpeedKmh), s.Inferred, center, line,
	})
}

// WritePlace buffers a place node.
func (p *Postgres) WritePlace(ctx context.Context, pn extract.PlaceNode) error {
	pt, err := pointEWKB(pn.Location)
	if err != nil {
		return err
	}
	return p.add(ctx, pgPlaces, []any{p.jurisdiction, pn.NodeID, pn.Name, string(pn.Kind), pt})
}

// WriteAddress buffers an address node.
func (p *Postgres) WriteAddress(ctx context.Context, a extract.AddressNode) error {
	pt, err := pointEWKB(a.Location)
	if err != nil {
		return err
	}
	return p.add(ctx, pgAddresses, []any{p.jurisdiction, a.NodeID, a.Street, pt})
}

// WriteBoundary buffers a boundary polygon.
func (p *Postgres) WriteBoundary(ctx context.Context, b extract.PlaceBoundary) error {
	poly, err := polygonEWKB(b.Ring)
	if err != nil {
		return err
	}
	return p.add(ctx, pgBoundaries, []any{
		p.jurisdiction, b.RelationID, b.Name, string(b.Kind), int32(b.AdminLevel), b.Bounds.Area(), poly,
	})
}

// WriteGridCells buffers grid rows.
func (p *Postgres) WriteGridCells(ctx context.Context, cells []grid.Cell) error {
	for _, c := range cells {
		if err := p.add(ctx, pgGrid, []any{p.jurisdiction, int32(c.X), int32(c.Y), c.SegmentID}); err != nil {
			return err
		}
	}
	return nil
}

// WriteMetadata buffers metadata rows.
func (p *Postgres) WriteMetadata(ctx context.Context, meta map[string]string) error {
	for k, v := range meta {
		if err := p.add(ctx, pgMetadata, []any{p.jurisdiction, k, v}); err != nil {
			return err
		}
	}
	return nil
}

func flatCoords(pts []geo.Point) []float64 {
	flat := make([]float64, 0, 2*len(pts))
	for _, pt := range pts {
		flat = append(flat, pt.Lon, pt.Lat)
	}
	return flat
}

func pointEWKB(pt geo.Point) ([]byte, error) {
	g := geom.NewPointFlat(geom.XY, []float64{pt.Lon, pt.Lat}).SetSRID(4326)
	data, err := ewkb.Marshal(g, ewkb.NDR)
	return data, eris.Wrap(err, "postgres: encode point")
}

func lineEWKB(pts []geo.Point) ([]byte, error) {
	g := geom.NewLineStringFlat(geom.XY, flatCoords(pts)).SetSRID(4326)
	data, err := ewkb.Marshal(g, ewkb.NDR)
	return data, eris.Wrap(err, "postgres: encode linestring")
}

func polygonEWKB(ring []geo.Point) ([]byte, error) {
	flat := flatCoords(ring)
	g := geom.NewPolygonFlat(geom.XY, flat, []int{len(flat)}).SetSRID(4326)
	data, err := ewkb.Marshal(g, ewkb.NDR)
	return data, eris.Wrap(err, "postgres: encode polygon")
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
