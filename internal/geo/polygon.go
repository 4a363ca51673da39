package geo

import (
	"encoding/binary"
	"math"

	"github.com/rotisserie/eris"
)

// PointInRing reports whether p lies inside ring using even-odd ray casting.
// A horizontal ray is cast from p towards increasing longitude and every edge
// is tested; an odd crossing count means inside. The ring may be open or
// closed.
//
// Edge rule: an edge counts as crossed when exactly one endpoint lies strictly
// above p (half-open in latitude) and the crossing longitude is strictly
// greater than p's longitude. For an axis-aligned square this puts points on
// the minimum-latitude and minimum-longitude edges inside and points on the
// maximum edges outside. The rule is deterministic and must not change, since
// containment results are persisted by callers.
func PointInRing(p Point, ring []Point) bool {
	n := len(ring)
	if n < 3 {
		return false
	}
	inside := false
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		yi, yj := ring[i].Lat, ring[j].Lat
		if (yi > p.Lat) == (yj > p.Lat) {
			continue
		}
		xi, xj := ring[i].Lon, ring[j].Lon
		xCross := xi + (p.Lat-yi)*(xj-xi)/(yj-yi)
		if p.Lon < xCross {
			inside = !inside
		}
	}
	return inside
}

// IsClosed reports whether ring starts and ends on the same coordinate.
func IsClosed(ring []Point) bool {
	return len(ring) > 1 && ring[0] == ring[len(ring)-1]
}

// RingArea returns the unsigned planar shoelace area of ring in degrees².
func RingArea(ring []Point) float64 {
	n := len(ring)
	if n < 3 {
		return 0
	}
	var sum float64
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		sum += ring[j].Lon*ring[i].Lat - ring[i].Lon*ring[j].Lat
	}
	return math.Abs(sum) / 2
}

// EncodePoints serializes pts as a little-endian uint32 count followed by
// count latitude/longitude float64 pairs.
func EncodePoints(pts []Point) []byte {
	buf := make([]byte, 4+16*len(pts))
	binary.LittleEndian.PutUint32(buf, uint32(len(pts)))
	off := 4
	for _, p := range pts {
		binary.LittleEndian.PutUint64(buf[off:], math.Float64bits(p.Lat))
		binary.LittleEndian.PutUint64(buf[off+8:], math.Float64bits(p.Lon))
		off += 16
	}
	return buf
}

// DecodePoints parses the EncodePoints format.
func DecodePoints(data []byte) ([]Point, error) {
	if len(data) < 4 {
		return nil, eris.New("geo: point blob too short")
	}
	n := int(binary.LittleEndian.Uint32(data))
	if len(data) != 4+16*n {
		return nil, eris.Errorf("geo: point blob length %d does not match count %d", len(data), n)
	}
	pts := make([]Point, n)
	off := 4
	for i := range pts {
		pts[i].Lat = math.Float64frombits(binary.LittleEndian.Uint64(data[off:]))
		pts[i].Lon = math.Float64frombits(binary.LittleEndian.Uint64(data[off+8:]))
		off += 16
	}
	return pts, nil
}
