package speedlimit

import (
	"math"
	"strconv"
	"strings"
)

// Plausible limit range in km/h; anything outside fails to parse.
const (
	MinKmh = 5
	MaxKmh = 200
)

// WalkingPace is the value assigned to maxspeed=walk.
const WalkingPace = 5

const mphToKmh = 1.60934

// Parse converts a raw maxspeed value to km/h. It returns false when the
// value is not understood, in which case callers fall back to Infer.
func Parse(raw string, j Jurisdiction) (int, bool) {
	v := strings.ToLower(strings.TrimSpace(raw))
	if i := strings.IndexByte(v, ';'); i >= 0 {
		v = strings.TrimSpace(v[:i])
	}
	if v == "" {
		return 0, false
	}

	switch v {
	case "none", "signals":
		return inRange(j.OpenRoad)
	case "walk":
		return WalkingPace, true
	}

	if i := strings.IndexByte(v, ':'); i >= 0 {
		return inRange(zoneLimit(v[i+1:], j))
	}

	if strings.HasSuffix(v, "mph") {
		n, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(v, "mph")), 64)
		if err != nil {
			return 0, false
		}
		return inRange(int(math.Round(n * mphToKmh)))
	}

	for _, unit := range []string{"km/h", "kmh", "kph"} {
		v = strings.TrimSuffix(v, unit)
	}
	v = strings.Join(strings.Fields(v), "")
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return inRange(n)
}

// zoneLimit resolves implicit zone codes such as "ZA:urban".
func zoneLimit(zone string, j Jurisdiction) int {
	switch zone {
	case "urban", "city":
		return j.Urban
	case "rural", "nsl_single", "nsl_dual":
		return j.Rural
	case "motorway":
		return j.Motorway
	case "trunk":
		return j.Highway["trunk"]
	case "living_street":
		return j.Living
	case "zone30":
		return 30
	}
	return 0
}

func inRange(n int) (int, bool) {
	if n < MinKmh || n > MaxKmh {
		return 0, false
	}
	return n, true
}

// Infer returns the default limit for a highway class. Classes missing from
// the jurisdiction table degrade to a generic bucket by road class.
func Infer(highway string, j Jurisdiction) int {
	if v, ok := j.Highway[highway]; ok && v > 0 {
		return v
	}
	switch strings.TrimSuffix(highway, "_link") {
	case "motorway", "trunk":
		return 120
	case "primary":
		return 100
	case "secondary", "tertiary":
		return 80
	case "residential":
		return 60
	}
	return 40
}

// Resolve returns the limit for a way's tags and whether it was inferred.
func Resolve(tags map[string]string, j Jurisdiction) (kmh int, inferred bool) {
	if raw, ok := tags["maxspeed"]; ok {
		if v, ok := Parse(raw, j); ok {
			return v, false
		}
	}
	return Infer(tags["highway"], j), true
}
