package geocode

import (
	"context"
	"strings"
	"unicode"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/geolookup-cli/internal/geo"
)

// Match sources.
const (
	SourceRoad    = "road"
	SourceAddress = "address"
)

// Match is the closest nearby name that matches an expected street name.
type Match struct {
	Name     string  `json:"name"`
	Source   string  `json:"source"`
	Distance float64 `json:"distance_m"`
}

var folder = cases.Fold()

// Fold lower-cases s, strips combining marks, and collapses whitespace so
// "Rue de l'Église" and "rue de l'eglise" compare equal.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.Join(strings.Fields(folder.String(out)), " ")
}

// NamesMatch reports whether either folded name contains the other.
func NamesMatch(a, b string) bool {
	fa, fb := Fold(a), Fold(b)
	if fa == "" || fb == "" {
		return false
	}
	return strings.Contains(fa, fb) || strings.Contains(fb, fa)
}

// MatchNearby returns the closest road or postal street within radiusMeters
// of p whose name matches expected, or nil when none does. Every named road
// and address in the radius is compared.
func (e *Engine) MatchNearby(ctx context.Context, expected string, p geo.Point, radiusMeters float64) (*Match, error) {
	if radiusMeters <= 0 {
		return nil, eris.Errorf("geocode: radius must be positive, got %v", radiusMeters)
	}
	radiusDeg := geo.SearchRadius(p, radiusMeters)

	var best *Match
	consider := func(name, source string, d float64) {
		if d > radiusMeters || !NamesMatch(expected, name) {
			return
		}
		if best == nil || d < best.Distance {
			best = &Match{Name: name, Source: source, Distance: d}
		}
	}

	segs, err := e.reader.SegmentsNear(ctx, p, radiusDeg, true, 0)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: match roads")
	}
	for _, s := range segs {
		consider(s.Name, SourceRoad, p.Distance(s.Center))
	}

	addrs, err := e.reader.AddressesNear(ctx, p, radiusDeg, 0)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: match addresses")
	}
	for _, a := range addrs {
		consider(a.Street, SourceAddress, p.Distance(a.Location))
	}

	if best == nil {
		e.log.Debug("no nearby name match",
			zap.String("expected", expected),
			zap.Int("roads", len(segs)),
			zap.Int("addresses", len(addrs)),
		)
	}
	return best, nil
}
