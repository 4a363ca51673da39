// Package export writes extracted boundaries to interchange formats for
// inspection in GIS tools.
package export

import (
	"encoding/json"
	"io"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/sells-group/geolookup-cli/internal/extract"
	"github.com/sells-group/geolookup-cli/internal/geo"
)

// BoundariesGeoJSON writes boundaries as a GeoJSON FeatureCollection with
// one Polygon feature per boundary. Feature ids are relation ids.
func BoundariesGeoJSON(w io.Writer, boundaries []extract.PlaceBoundary) error {
	fc := &geojson.FeatureCollection{Features: make([]*geojson.Feature, 0, len(boundaries))}
	var world *geom.Bounds

	for _, b := range boundaries {
		poly := ringPolygon(b.Ring)
		bounds := poly.Bounds()
		if world == nil {
			world = bounds.Clone()
		} else {
			world.Extend(poly)
		}

		fc.Features = append(fc.Features, &geojson.Feature{
			ID:       strconv.FormatInt(b.RelationID, 10),
			Geometry: poly,
			Properties: map[string]interface{}{
				"name":        b.Name,
				"kind":        string(b.Kind),
				"admin_level": b.AdminLevel,
				"relation_id": b.RelationID,
			},
		})
	}
	fc.BBox = world

	enc := json.NewEncoder(w)
	if err := enc.Encode(fc); err != nil {
		return eris.Wrap(err, "export: encode geojson")
	}
	return nil
}

// ringPolygon converts a lat/lon ring to an XY (lon, lat) polygon.
func ringPolygon(ring []geo.Point) *geom.Polygon {
	flat := make([]float64, 0, 2*len(ring))
	for _, p := range ring {
		flat = append(flat, p.Lon, p.Lat)
	}
	return geom.NewPolygonFlat(geom.XY, flat, []int{len(flat)})
}
