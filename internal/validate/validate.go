package validate

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/geolookup-cli/internal/geo"
	"github.com/sells-group/geolookup-cli/internal/geocode"
)

// Matcher finds a nearby name matching an expected street.
type Matcher interface {
	MatchNearby(ctx context.Context, expected string, p geo.Point, radiusMeters float64) (*geocode.Match, error)
}

// SpeedSource returns the speed limit at a coordinate.
type SpeedSource interface {
	SpeedLimit(ctx context.Context, p geo.Point) (int, bool, error)
}

// Result is the outcome of one row.
type Result struct {
	Row        Row            `json:"row"`
	Invalid    bool           `json:"invalid,omitempty"` // coordinate out of range
	Match      *geocode.Match `json:"match,omitempty"`
	Speed      int            `json:"speed,omitempty"`
	SpeedFound bool           `json:"speed_found"`
}

// SpeedAgrees reports whether the row had an expected speed equal to the
// one found.
func (r Result) SpeedAgrees() bool {
	return r.Row.ExpectedSpeed > 0 && r.SpeedFound && r.Speed == r.Row.ExpectedSpeed
}

// Report summarises a validation run.
type Report struct {
	Results      []Result `json:"results"`
	Total        int      `json:"total"`
	Invalid      int      `json:"invalid"`
	Matched      int      `json:"matched"`
	SpeedChecked int      `json:"speed_checked"`
	SpeedAgreed  int      `json:"speed_agreed"`
}

// MatchRate is the percentage of valid rows whose street matched.
func (r *Report) MatchRate() float64 {
	return percent(r.Matched, r.Total-r.Invalid)
}

// SpeedAgreement is the percentage of rows with an expected speed where the
// lookup agreed.
func (r *Report) SpeedAgreement() float64 {
	return percent(r.SpeedAgreed, r.SpeedChecked)
}

func percent(n, d int) float64 {
	if d == 0 {
		return 0
	}
	return 100 * float64(n) / float64(d)
}

// Run checks every row. speeds may be nil to skip speed checks. Rows with
// out-of-range coordinates are counted as invalid, not errors.
func Run(ctx context.Context, matcher Matcher, speeds SpeedSource, rows []Row, radiusMeters float64) (*Report, error) {
	log := zap.L().With(zap.String("component", "validate"))
	rep := &Report{Results: make([]Result, 0, len(rows)), Total: len(rows)}

	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "validate: cancelled")
		}
		res := Result{Row: row}
		if !row.Point.Valid() {
			res.Invalid = true
			rep.Invalid++
			rep.Results = append(rep.Results, res)
			log.Warn("skipping row with invalid coordinate", zap.Int("line", row.Line))
			continue
		}

		m, err := matcher.MatchNearby(ctx, row.Street, row.Point, radiusMeters)
		if err != nil {
			return nil, eris.Wrapf(err, "validate: line %d", row.Line)
		}
		res.Match = m
		if m != nil {
			rep.Matched++
		}

		if speeds != nil {
			res.Speed, res.SpeedFound, err = speeds.SpeedLimit(ctx, row.Point)
			if err != nil {
				return nil, eris.Wrapf(err, "validate: line %d speed", row.Line)
			}
			if row.ExpectedSpeed > 0 {
				rep.SpeedChecked++
				if res.SpeedAgrees() {
					rep.SpeedAgreed++
				}
			}
		}
		rep.Results = append(rep.Results, res)
	}

	log.Info("validation complete",
		zap.Int("rows", rep.Total),
		zap.Int("matched", rep.Matched),
		zap.Float64("match_rate", rep.MatchRate()),
		zap.Float64("speed_agreement", rep.SpeedAgreement()),
	)
	return rep, nil
}

// WriteTable prints one line per row followed by the summary.
func (r *Report) WriteTable(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "LINE\tEXPECTED\tMATCHED\tSOURCE\tDIST_M\tSPEED\tEXPECTED_SPEED") //nolint:errcheck
	for _, res := range r.Results {
		matched, source, dist := "-", "-", "-"
		switch {
		case res.Invalid:
			matched = "(invalid coordinate)"
		case res.Match != nil:
			matched, source, dist = res.Match.Name, res.Match.Source, fmt.Sprintf("%.0f", res.Match.Distance)
		}
		speed := "-"
		if res.SpeedFound {
			speed = fmt.Sprintf("%d", res.Speed)
		}
		expSpeed := "-"
		if res.Row.ExpectedSpeed > 0 {
			expSpeed = fmt.Sprintf("%d", res.Row.ExpectedSpeed)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n", //nolint:errcheck
			res.Row.Line, res.Row.Street, matched, source, dist, speed, expSpeed)
	}
	if err := tw.Flush(); err != nil {
		return eris.Wrap(err, "validate: write table")
	}

	_, err := fmt.Fprintf(w, "\n%d rows, %d invalid, %d matched (%.1f%%), speed agreement %d/%d (%.1f%%)\n",
		r.Total, r.Invalid, r.Matched, r.MatchRate(), r.SpeedAgreed, r.SpeedChecked, r.SpeedAgreement())
	return eris.Wrap(err, "validate: write summary")
}
