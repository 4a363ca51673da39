// Package validate compares lookups against ground-truth street names and
// speed limits.
package validate

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/geolookup-cli/internal/geo"
)

// Row is one ground-truth observation.
type Row struct {
	Line          int       `json:"line"` // 1-based source row
	Street        string    `json:"expected_street"`
	Point         geo.Point `json:"point"`
	ExpectedSpeed int       `json:"expected_speed,omitempty"` // 0 when not given
}

// column aliases accepted in the header row.
var aliases = map[string]string{
	"expected_street": "street",
	"street":          "street",
	"street_name":     "street",
	"latitude":        "lat",
	"lat":             "lat",
	"longitude":       "lon",
	"lon":             "lon",
	"lng":             "lon",
	"expected_speed":  "speed",
	"speed":           "speed",
	"speed_limit":     "speed",
}

// LoadRows reads ground truth from a .csv or .xlsx file. The first row is
// a header naming at least the street, latitude, and longitude columns.
func LoadRows(path string) ([]Row, error) {
	var (
		records [][]string
		err     error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		records, err = readCSV(path)
	case ".xlsx":
		records, err = readXLSX(path)
	default:
		return nil, eris.Errorf("validate: unsupported file type %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, err
	}
	return parseRecords(records)
}

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "validate: open csv")
	}
	defer f.Close() //nolint:errcheck

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	var out [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, eris.Wrap(err, "validate: read csv")
		}
		out = append(out, rec)
	}
}

func readXLSX(path string) ([][]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "validate: open xlsx")
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("validate: xlsx has no sheets")
	}

	sheet := f.Sheets[0]
	out := make([][]string, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		out = append(out, cells)
	}
	return out, nil
}

func parseRecords(records [][]string) ([]Row, error) {
	if len(records) == 0 {
		return nil, eris.New("validate: empty ground truth file")
	}

	cols := map[string]int{}
	for i, h := range records[0] {
		if canon, ok := aliases[strings.ToLower(strings.TrimSpace(h))]; ok {
			if _, dup := cols[canon]; !dup {
				cols[canon] = i
			}
		}
	}
	for _, need := range []string{"street", "lat", "lon"} {
		if _, ok := cols[need]; !ok {
			return nil, eris.Errorf("validate: header is missing a %s column", need)
		}
	}

	cell := func(rec []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	rows := make([]Row, 0, len(records)-1)
	for n, rec := range records[1:] {
		line := n + 2
		street := cell(rec, "street")
		latRaw, lonRaw := cell(rec, "lat"), cell(rec, "lon")
		if street == "" && latRaw == "" && lonRaw == "" {
			continue
		}
		lat, err := strconv.ParseFloat(latRaw, 64)
		if err != nil {
			return nil, eris.Wrapf(err, "validate: line %d latitude", line)
		}
		lon, err := strconv.ParseFloat(lonRaw, 64)
		if err != nil {
			return nil, eris.Wrapf(err, "validate: line %d longitude", line)
		}

		row := Row{Line: line, Street: street, Point: geo.Point{Lat: lat, Lon: lon}}
		if raw := cell(rec, "speed"); raw != "" {
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return nil, eris.Wrapf(err, "validate: line %d expected speed", line)
			}
			row.ExpectedSpeed = int(v)
		}
		rows = append(rows, row)
	}
	return rows, nil
}
