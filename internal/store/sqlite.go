package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/geolookup-cli/internal/extract"
	"github.com/sells-group/geolookup-cli/internal/geo"
	"github.com/sells-group/geolookup-cli/internal/grid"
)

// DefaultBatchSize is the number of writes committed per transaction.
const DefaultBatchSize = 10000

// SQLite is a single-file dataset. A store returned by CreateSQLite is a
// Sink; one returned by OpenSQLite is a read-only Reader.
type SQLite struct {
	db        *sql.DB
	path      string
	readOnly  bool
	batchSize int
	tables    map[string]bool // nil on writable stores, which have every table

	tx      *sql.Tx
	stmts   map[string]*sql.Stmt
	pending int
}

var (
	_ Sink   = (*SQLite)(nil)
	_ Reader = (*SQLite)(nil)
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS road_segments (
	id              INTEGER PRIMARY KEY,
	name            TEXT,
	highway_type    TEXT NOT NULL,
	speed_limit_kmh INTEGER NOT NULL,
	is_inferred     INTEGER NOT NULL DEFAULT 0,
	min_lat         REAL NOT NULL,
	max_lat         REAL NOT NULL,
	min_lon         REAL NOT NULL,
	max_lon         REAL NOT NULL,
	center_lat      REAL NOT NULL,
	center_lon      REAL NOT NULL,
	geometry        BLOB
);

CREATE TABLE IF NOT EXISTS spatial_grid (
	grid_x          INTEGER NOT NULL,
	grid_y          INTEGER NOT NULL,
	road_segment_id INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS place_nodes (
	id         INTEGER PRIMARY KEY,
	name       TEXT NOT NULL,
	place_type TEXT NOT NULL,
	lat        REAL NOT NULL,
	lon        REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS address_nodes (
	id     INTEGER PRIMARY KEY,
	street TEXT NOT NULL,
	lat    REAL NOT NULL,
	lon    REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS place_boundaries (
	id          INTEGER PRIMARY KEY,
	name        TEXT NOT NULL,
	place_type  TEXT NOT NULL,
	admin_level INTEGER NOT NULL DEFAULT 0,
	min_lat     REAL NOT NULL,
	max_lat     REAL NOT NULL,
	min_lon     REAL NOT NULL,
	max_lon     REAL NOT NULL,
	area        REAL NOT NULL,
	polygon     BLOB NOT NULL
);

CREATE TABLE IF NOT EXISTS metadata (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_road_segments_bbox ON road_segments(min_lat, max_lat, min_lon, max_lon);
CREATE INDEX IF NOT EXISTS idx_road_segments_center ON road_segments(center_lat, center_lon);
CREATE INDEX IF NOT EXISTS idx_spatial_grid_cell ON spatial_grid(grid_x, grid_y);
CREATE INDEX IF NOT EXISTS idx_place_nodes_loc ON place_nodes(lat, lon);
CREATE INDEX IF NOT EXISTS idx_place_nodes_type ON place_nodes(place_type);
CREATE INDEX IF NOT EXISTS idx_address_nodes_loc ON address_nodes(lat, lon);
CREATE INDEX IF NOT EXISTS idx_place_boundaries_bbox ON place_boundaries(min_lat, max_lat, min_lon, max_lon);
CREATE INDEX IF NOT EXISTS idx_place_boundaries_type ON place_boundaries(place_type);
`

// CreateSQLite creates a fresh dataset at path, replacing any existing file.
// Writes are committed every batchSize operations; a non-positive batchSize
// selects DefaultBatchSize.
func CreateSQLite(ctx context.Context, path string, batchSize int) (*SQLite, error) {
	for _, suffix := range []string{"", "-wal", "-shm", "-journal"} {
		if err := os.Remove(path + suffix); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, eris.Wrapf(err, "sqlite: remove %s", path+suffix)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// Writes go through one transaction at a time.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA temp_store=MEMORY",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "sqlite: migrate")
	}

	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &SQLite{db: db, path: path, batchSize: batchSize}, nil
}

// OpenSQLite opens an existing dataset read-only. A missing file or one
// without road segments yields ErrNoDataset.
func OpenSQLite(path string) (*SQLite, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, eris.Wrapf(ErrNoDataset, "sqlite: %s", path)
		}
		return nil, eris.Wrapf(err, "sqlite: stat %s", path)
	}

	dsn := "file:" + path + "?mode=ro&_pragma=busy_timeout(5000)&_pragma=query_only(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}

	s := &SQLite{db: db, path: path, readOnly: true}
	tables, err := s.listTables(context.Background())
	if err != nil {
		db.Close() //nolint:errcheck
		return nil, err
	}
	if !tables["road_segments"] {
		db.Close() //nolint:errcheck
		return nil, eris.Wrapf(ErrNoDataset, "sqlite: %s has no road_segments table", path)
	}
	s.tables = tables
	return s, nil
}

// Path returns the dataset file path.
func (s *SQLite) Path() string {
	return s.path
}

// Close commits pending writes and closes the database. A writable store
// is switched out of WAL mode so the file is self-contained.
func (s *SQLite) Close() error {
	if !s.readOnly {
		if err := s.Flush(context.Background()); err != nil {
			s.db.Close() //nolint:errcheck
			return err
		}
		if _, err := s.db.Exec("PRAGMA journal_mode=DELETE"); err != nil {
			s.db.Close() //nolint:errcheck
			return eris.Wrap(err, "sqlite: leave WAL mode")
		}
	}
	return eris.Wrap(s.db.Close(), "sqlite: close")
}

// exec runs a write inside the current batch transaction, committing when
// the batch is full.
func (s *SQLite) exec(ctx context.Context, query string, args ...any) error {
	if s.readOnly {
		return eris.New("sqlite: dataset opened read-only")
	}
	if s.tx == nil {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return eris.Wrap(err, "sqlite: begin batch")
		}
		s.tx = tx
		s.stmts = make(map[string]*sql.Stmt)
	}

	stmt, ok := s.stmts[query]
	if !ok {
		var err error
		stmt, err = s.tx.PrepareContext(ctx, query)
		if err != nil {
			return eris.Wrap(err, "sqlite: prepare")
		}
		s.stmts[query] = stmt
	}
	if _, err := stmt.ExecContext(ctx, args...); err != nil {
		return eris.Wrap(err, "sqlite: exec")
	}

	s.pending++
	if s.pending >= s.batchSize {
		return s.Flush(ctx)
	}
	return nil
}

// Flush commits the open batch, if any.
func (s *SQLite) Flush(_ context.Context) error {
	if s.tx == nil {
		return nil
	}
	for _, stmt := range s.stmts {
		stmt.Close() //nolint:errcheck
	}
	err := s.tx.Commit()
	s.tx, s.stmts, s.pending = nil, nil, 0
	return eris.Wrap(err, "sqlite: commit batch")
}

const insertSegment = `INSERT OR REPLACE INTO road_segments
	(id, name, highway_type, speed_limit_kmh, is_inferred, min_lat, max_lat, min_lon, max_lon, center_lat, center_lon, geometry)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// WriteSegment stores a road segment keyed by its way id.
func (s *SQLite) WriteSegment(ctx context.Context, seg extract.RoadSegment) error {
	c := seg.Center()
	return s.exec(ctx, insertSegment,
		seg.WayID, nullString(seg.Name), seg.Highway, seg.SpeedKmh, seg.Inferred,
		seg.Bounds.MinLat, seg.Bounds.MaxLat, seg.Bounds.MinLon, seg.Bounds.MaxLon,
		c.Lat, c.Lon, geo.EncodePoints(seg.Geometry),
	)
}

// WritePlace stores a named place node.
func (s *SQLite) WritePlace(ctx context.Context, p extract.PlaceNode) error {
	return s.exec(ctx,
		`INSERT OR REPLACE INTO place_nodes (id, name, place_type, lat, lon) VALUES (?, ?, ?, ?, ?)`,
		p.NodeID, p.Name, string(p.Kind), p.Location.Lat, p.Location.Lon,
	)
}

// WriteAddress stores a postal address node.
func (s *SQLite) WriteAddress(ctx context.Context, a extract.AddressNode) error {
	return s.exec(ctx,
		`INSERT OR REPLACE INTO address_nodes (id, street, lat, lon) VALUES (?, ?, ?, ?)`,
		a.NodeID, a.Street, a.Location.Lat, a.Location.Lon,
	)
}

const insertBoundary = `INSERT OR REPLACE INTO place_boundaries
	(id, name, place_type, admin_level, min_lat, max_lat, min_lon, max_lon, area, polygon)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// WriteBoundary stores an assembled boundary. The ranking area is the area
// of its bounding box.
func (s *SQLite) WriteBoundary(ctx context.Context, b extract.PlaceBoundary) error {
	return s.exec(ctx, insertBoundary,
		b.RelationID, b.Name, string(b.Kind), b.AdminLevel,
		b.Bounds.MinLat, b.Bounds.MaxLat, b.Bounds.MinLon, b.Bounds.MaxLon,
		b.Bounds.Area(), geo.EncodePoints(b.Ring),
	)
}

// WriteGridCells stores (cell, segment) pairs.
func (s *SQLite) WriteGridCells(ctx context.Context, cells []grid.Cell) error {
	for _, c := range cells {
		if err := s.exec(ctx,
			`INSERT INTO spatial_grid (grid_x, grid_y, road_segment_id) VALUES (?, ?, ?)`,
			c.X, c.Y, c.SegmentID,
		); err != nil {
			return err
		}
	}
	return nil
}

// WriteMetadata upserts metadata keys.
func (s *SQLite) WriteMetadata(ctx context.Context, meta map[string]string) error {
	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := s.exec(ctx, `INSERT OR REPLACE INTO metadata (key, value) VALUES (?, ?)`, k, meta[k]); err != nil {
			return err
		}
	}
	return nil
}

const segmentColumns = `id, COALESCE(name, ''), highway_type, speed_limit_kmh, is_inferred,
	min_lat, min_lon, max_lat, max_lon, center_lat, center_lon`

const centerDistance = `(center_lat - ?) * (center_lat - ?) + (center_lon - ?) * (center_lon - ?)`

// SegmentsInCells implements Reader.
func (s *SQLite) SegmentsInCells(ctx context.Context, x0, y0, x1, y1 int, p geo.Point, tol float64, limit int) ([]Segment, error) {
	q := `SELECT ` + segmentColumns + ` FROM road_segments
		WHERE id IN (SELECT road_segment_id FROM spatial_grid
			WHERE grid_x BETWEEN ? AND ? AND grid_y BETWEEN ? AND ?)
		AND min_lat - ? <= ? AND max_lat + ? >= ?
		AND min_lon - ? <= ? AND max_lon + ? >= ?
		ORDER BY ` + centerDistance + `, id
		LIMIT ?`
	return s.querySegments(ctx, q,
		x0, x1, y0, y1,
		tol, p.Lat, tol, p.Lat,
		tol, p.Lon, tol, p.Lon,
		p.Lat, p.Lat, p.Lon, p.Lon,
		limit,
	)
}

// SegmentsNear implements Reader.
func (s *SQLite) SegmentsNear(ctx context.Context, p geo.Point, radiusDeg float64, namedOnly bool, limit int) ([]Segment, error) {
	named := ""
	if namedOnly {
		named = ` AND name IS NOT NULL AND name <> ''`
	}
	box := geo.Around(p, radiusDeg)
	q := `SELECT ` + segmentColumns + ` FROM road_segments
		WHERE center_lat BETWEEN ? AND ? AND center_lon BETWEEN ? AND ?` + named + `
		ORDER BY ` + centerDistance + `, id
		LIMIT ?`
	return s.querySegments(ctx, q,
		box.MinLat, box.MaxLat, box.MinLon, box.MaxLon,
		p.Lat, p.Lat, p.Lon, p.Lon,
		sqlLimit(limit),
	)
}

func (s *SQLite) querySegments(ctx context.Context, q string, args ...any) ([]Segment, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query segments")
	}
	defer rows.Close() //nolint:errcheck

	var out []Segment
	for rows.Next() {
		var seg Segment
		if err := rows.Scan(
			&seg.ID, &seg.Name, &seg.Highway, &seg.SpeedKmh, &seg.Inferred,
			&seg.Bounds.MinLat, &seg.Bounds.MinLon, &seg.Bounds.MaxLat, &seg.Bounds.MaxLon,
			&seg.Center.Lat, &seg.Center.Lon,
		); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan segment")
		}
		out = append(out, seg)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate segments")
}

// PlacesNear implements Reader.
func (s *SQLite) PlacesNear(ctx context.Context, p geo.Point, kinds []extract.PlaceKind, radiusDeg float64, limit int) ([]extract.PlaceNode, error) {
	if len(kinds) == 0 || !s.has("place_nodes") {
		return nil, nil
	}
	box := geo.Around(p, radiusDeg)
	q := `SELECT id, name, place_type, lat, lon FROM place_nodes
		WHERE place_type IN (` + placeholders(len(kinds)) + `)
		AND lat BETWEEN ? AND ? AND lon BETWEEN ? AND ?
		ORDER BY (lat - ?) * (lat - ?) + (lon - ?) * (lon - ?), id
		LIMIT ?`
	args := kindArgs(kinds)
	args = append(args, box.MinLat, box.MaxLat, box.MinLon, box.MaxLon, p.Lat, p.Lat, p.Lon, p.Lon, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query places")
	}
	defer rows.Close() //nolint:errcheck

	var out []extract.PlaceNode
	for rows.Next() {
		var pn extract.PlaceNode
		var kind string
		if err := rows.Scan(&pn.NodeID, &pn.Name, &kind, &pn.Location.Lat, &pn.Location.Lon); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan place")
		}
		pn.Kind = extract.PlaceKind(kind)
		out = append(out, pn)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate places")
}

// AddressesNear implements Reader.
func (s *SQLite) AddressesNear(ctx context.Context, p geo.Point, radiusDeg float64, limit int) ([]extract.AddressNode, error) {
	if !s.has("address_nodes") {
		return nil, nil
	}
	box := geo.Around(p, radiusDeg)
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, street, lat, lon FROM address_nodes
		WHERE lat BETWEEN ? AND ? AND lon BETWEEN ? AND ?
		ORDER BY (lat - ?) * (lat - ?) + (lon - ?) * (lon - ?), id
		LIMIT ?`,
		box.MinLat, box.MaxLat, box.MinLon, box.MaxLon, p.Lat, p.Lat, p.Lon, p.Lon, sqlLimit(limit),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query addresses")
	}
	defer rows.Close() //nolint:errcheck

	var out []extract.AddressNode
	for rows.Next() {
		var a extract.AddressNode
		if err := rows.Scan(&a.NodeID, &a.Street, &a.Location.Lat, &a.Location.Lon); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan address")
		}
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate addresses")
}

const boundaryColumns = `id, name, place_type, admin_level, min_lat, min_lon, max_lat, max_lon, polygon`

// BoundariesContaining implements Reader. Bounding-box area only
// approximates polygon specificity; a concave region with a small box can
// outrank a tighter polygon.
func (s *SQLite) BoundariesContaining(ctx context.Context, p geo.Point, kinds []extract.PlaceKind) ([]extract.PlaceBoundary, error) {
	if len(kinds) == 0 || !s.has("place_boundaries") {
		return nil, nil
	}
	q := `SELECT ` + boundaryColumns + ` FROM place_boundaries
		WHERE place_type IN (` + placeholders(len(kinds)) + `)
		AND min_lat <= ? AND max_lat >= ? AND min_lon <= ? AND max_lon >= ?
		ORDER BY area ASC, id`
	args := kindArgs(kinds)
	args = append(args, p.Lat, p.Lat, p.Lon, p.Lon)
	return s.queryBoundaries(ctx, q, args...)
}

// Boundaries returns every stored boundary of the given kinds, or of all
// kinds when none are given, ordered by id.
func (s *SQLite) Boundaries(ctx context.Context, kinds ...extract.PlaceKind) ([]extract.PlaceBoundary, error) {
	if !s.has("place_boundaries") {
		return nil, nil
	}
	q := `SELECT ` + boundaryColumns + ` FROM place_boundaries`
	var args []any
	if len(kinds) > 0 {
		q += ` WHERE place_type IN (` + placeholders(len(kinds)) + `)`
		args = kindArgs(kinds)
	}
	return s.queryBoundaries(ctx, q+` ORDER BY id`, args...)
}

func (s *SQLite) queryBoundaries(ctx context.Context, q string, args ...any) ([]extract.PlaceBoundary, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query boundaries")
	}
	defer rows.Close() //nolint:errcheck

	var out []extract.PlaceBoundary
	for rows.Next() {
		var b extract.PlaceBoundary
		var kind string
		var blob []byte
		if err := rows.Scan(&b.RelationID, &b.Name, &kind, &b.AdminLevel,
			&b.Bounds.MinLat, &b.Bounds.MinLon, &b.Bounds.MaxLat, &b.Bounds.MaxLon, &blob); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan boundary")
		}
		ring, err := geo.DecodePoints(blob)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: boundary %d polygon", b.RelationID)
		}
		b.Kind = extract.PlaceKind(kind)
		b.Ring = ring
		out = append(out, b)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate boundaries")
}

// Metadata implements Reader.
func (s *SQLite) Metadata(ctx context.Context) (map[string]string, error) {
	if !s.has("metadata") {
		return nil, eris.Wrap(ErrNoDataset, "sqlite: metadata table missing")
	}

	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM metadata`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query metadata")
	}
	defer rows.Close() //nolint:errcheck

	meta := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan metadata")
		}
		meta[k] = v
	}
	return meta, eris.Wrap(rows.Err(), "sqlite: iterate metadata")
}

// HasPlaceData implements Reader. Road-only datasets lack the place tables
// or leave them empty.
func (s *SQLite) HasPlaceData(ctx context.Context) (bool, error) {
	for _, table := range []string{"place_nodes", "place_boundaries"} {
		if !s.has(table) {
			continue
		}
		var exists bool
		if err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM `+table+`)`).Scan(&exists); err != nil {
			return false, eris.Wrapf(err, "sqlite: probe %s", table)
		}
		if exists {
			return true, nil
		}
	}
	return false, nil
}

// Counts returns the row count of every dataset table that exists.
func (s *SQLite) Counts(ctx context.Context) (map[string]int64, error) {
	out := make(map[string]int64)
	for _, table := range []string{"road_segments", "spatial_grid", "place_nodes", "address_nodes", "place_boundaries"} {
		if !s.has(table) {
			continue
		}
		var n int64
		if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM `+table).Scan(&n); err != nil {
			return nil, eris.Wrapf(err, "sqlite: count %s", table)
		}
		out[table] = n
	}
	return out, nil
}

func (s *SQLite) has(table string) bool {
	return s.tables == nil || s.tables[table]
}

func (s *SQLite) listTables(ctx context.Context) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM sqlite_master WHERE type = 'table'`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list tables")
	}
	defer rows.Close() //nolint:errcheck

	tables := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan table name")
		}
		tables[name] = true
	}
	return tables, eris.Wrap(rows.Err(), "sqlite: list tables")
}

// sqlLimit maps a non-positive limit to SQLite's unbounded LIMIT -1.
func sqlLimit(n int) int {
	if n <= 0 {
		return -1
	}
	return n
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func kindArgs(kinds []extract.PlaceKind) []any {
	args := make([]any, 0, len(kinds)+9)
	for _, k := range kinds {
		args = append(args, string(k))
	}
	return args
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
