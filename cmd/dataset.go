package main

import (
	"context"
	"encoding/json"
	"io"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/sells-group/geolookup-cli/internal/geo"
	"github.com/sells-group/geolookup-cli/internal/geocode"
	"github.com/sells-group/geolookup-cli/internal/lookup"
	"github.com/sells-group/geolookup-cli/internal/store"
)

// queryEnv bundles an open dataset with the services that read it.
type queryEnv struct {
	DB     *store.SQLite
	Engine *geocode.Engine
	Roads  *lookup.Service
}

func (e *queryEnv) Close() {
	_ = e.DB.Close()
}

// openQueryEnv opens the configured dataset read-only.
func openQueryEnv(ctx context.Context) (*queryEnv, error) {
	if err := cfg.Validate("query"); err != nil {
		return nil, err
	}
	ds, err := store.OpenSQLite(cfg.Store.Path)
	if err != nil {
		return nil, eris.Wrap(err, "open dataset")
	}

	roads, err := lookup.NewService(ctx, ds, lookup.Options{FallbackRadius: cfg.Lookup.FallbackRadius})
	if err != nil {
		_ = ds.Close()
		return nil, err
	}
	engine := geocode.New(ds, geocode.Options{
		StreetRadius: cfg.Geocode.StreetRadius,
		SuburbRadius: cfg.Geocode.SuburbRadius,
		CityRadius:   cfg.Geocode.CityRadius,
	})
	return &queryEnv{DB: ds, Engine: engine, Roads: roads}, nil
}

// parseLatLon parses two positional arguments as a WGS84 coordinate.
func parseLatLon(latArg, lonArg string) (geo.Point, error) {
	lat, err := strconv.ParseFloat(latArg, 64)
	if err != nil {
		return geo.Point{}, eris.Errorf("invalid latitude %q", latArg)
	}
	lon, err := strconv.ParseFloat(lonArg, 64)
	if err != nil {
		return geo.Point{}, eris.Errorf("invalid longitude %q", lonArg)
	}
	p := geo.Point{Lat: lat, Lon: lon}
	if !p.Valid() {
		return geo.Point{}, eris.Errorf("coordinate %s,%s out of range", latArg, lonArg)
	}
	return p, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return eris.Wrap(enc.Encode(v), "encode json")
}
