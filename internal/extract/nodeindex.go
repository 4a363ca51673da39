package extract

import (
	"math"
	"sort"

	"github.com/sells-group/geolookup-cli/internal/geo"
)

// coordScale stores coordinates as 1e-7 degree fixed point, the precision
// OSM itself uses.
const coordScale = 1e7

// NodeIndex maps node ids to coordinates using 16 bytes per node. Extracts
// list nodes in ascending id order, so ids are appended to a sorted array and
// resolved by binary search; any out-of-order id spills into a map.
type NodeIndex struct {
	ids      []int64
	coords   []int32 // lat, lon pairs
	overflow map[int64][2]int32
}

// NewNodeIndex returns an index with capacity for sizeHint nodes.
func NewNodeIndex(sizeHint int) *NodeIndex {
	return &NodeIndex{
		ids:    make([]int64, 0, sizeHint),
		coords: make([]int32, 0, sizeHint*2),
	}
}

// Put records the coordinate of node id.
func (x *NodeIndex) Put(id int64, lat, lon float64) {
	la := int32(math.Round(lat * coordScale))
	lo := int32(math.Round(lon * coordScale))
	if n := len(x.ids); n == 0 || id > x.ids[n-1] {
		x.ids = append(x.ids, id)
		x.coords = append(x.coords, la, lo)
		return
	}
	if x.overflow == nil {
		x.overflow = make(map[int64][2]int32)
	}
	x.overflow[id] = [2]int32{la, lo}
}

// Get returns the coordinate of node id.
func (x *NodeIndex) Get(id int64) (geo.Point, bool) {
	i := sort.Search(len(x.ids), func(i int) bool { return x.ids[i] >= id })
	if i < len(x.ids) && x.ids[i] == id {
		return geo.Point{
			Lat: float64(x.coords[2*i]) / coordScale,
			Lon: float64(x.coords[2*i+1]) / coordScale,
		}, true
	}
	if c, ok := x.overflow[id]; ok {
		return geo.Point{Lat: float64(c[0]) / coordScale, Lon: float64(c[1]) / coordScale}, true
	}
	return geo.Point{}, false
}

// Len returns the number of indexed nodes.
func (x *NodeIndex) Len() int {
	return len(x.ids) + len(x.overflow)
}

// Resolve maps ids to points, dropping ids that are not indexed. It returns
// the number of dropped ids.
func (x *NodeIndex) Resolve(ids []int64) ([]geo.Point, int) {
	pts := make([]geo.Point, 0, len(ids))
	missing := 0
	for _, id := range ids {
		p, ok := x.Get(id)
		if !ok {
			missing++
			continue
		}
		pts = append(pts, p)
	}
	return pts, missing
}
