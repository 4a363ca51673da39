package export

import (
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/geolookup-cli/internal/extract"
	"github.com/sells-group/geolookup-cli/internal/geo"
)

// DBF attribute columns, in field order.
const (
	FieldName  = "NAME"
	FieldKind  = "KIND"
	FieldAdmin = "ADMIN"
	FieldRelID = "REL_ID"
)

const nameWidth = 254

var fields = []shp.Field{
	shp.StringField(FieldName, nameWidth),
	shp.StringField(FieldKind, 16),
	shp.NumberField(FieldAdmin, 4),
	shp.NumberField(FieldRelID, 18),
}

// BoundariesShapefile writes boundaries as an ESRI polygon shapefile. path
// names the .shp file; the .shx and .dbf siblings are written next to it.
// Rings are written clockwise as shapefile outer rings require.
func BoundariesShapefile(path string, boundaries []extract.PlaceBoundary) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrap(err, "export: create shapefile dir")
	}
	base := path
	if strings.EqualFold(filepath.Ext(path), ".shp") {
		base = path[:len(path)-len(".shp")]
	}
	if err := writeShapefile(base, boundaries); err != nil {
		return err
	}

	// go-shp v0.1.1 names the attribute table "<base>dbf", without the dot.
	if err := os.Rename(base+"dbf", base+".dbf"); err != nil {
		return eris.Wrap(err, "export: rename dbf")
	}

	zap.L().With(zap.String("component", "export")).Info("shapefile written",
		zap.String("path", base+".shp"),
		zap.Int("boundaries", len(boundaries)),
	)
	return nil
}

func writeShapefile(base string, boundaries []extract.PlaceBoundary) error {
	w, err := shp.Create(base+".shp", shp.POLYGON)
	if err != nil {
		return eris.Wrap(err, "export: create shapefile")
	}
	defer w.Close()

	if err := w.SetFields(fields); err != nil {
		return eris.Wrap(err, "export: set dbf fields")
	}

	for _, b := range boundaries {
		poly := shp.Polygon(*shp.NewPolyLine([][]shp.Point{shapeRing(b.Ring)}))
		row := int(w.Write(&poly))
		for i, v := range []interface{}{truncate(b.Name, nameWidth), string(b.Kind), b.AdminLevel, int(b.RelationID)} {
			if err := w.WriteAttribute(row, i, v); err != nil {
				return eris.Wrapf(err, "export: relation %d attribute %s", b.RelationID, fields[i].String())
			}
		}
	}
	return nil
}

// shapeRing converts ring to shapefile points in clockwise order.
func shapeRing(ring []geo.Point) []shp.Point {
	pts := make([]shp.Point, len(ring))
	for i, p := range ring {
		pts[i] = shp.Point{X: p.Lon, Y: p.Lat}
	}
	if signedArea(pts) > 0 {
		for i, j := 0, len(pts)-1; i < j; i, j = i+1, j-1 {
			pts[i], pts[j] = pts[j], pts[i]
		}
	}
	return pts
}

// signedArea is positive for counter-clockwise rings.
func signedArea(pts []shp.Point) float64 {
	var sum float64
	for i := 0; i+1 < len(pts); i++ {
		sum += pts[i].X*pts[i+1].Y - pts[i+1].X*pts[i].Y
	}
	return sum / 2
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
