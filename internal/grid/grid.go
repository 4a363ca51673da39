// Package grid partitions a world bounding box into a fixed N×N cell grid
// and maps segment bounding boxes to the cells they overlap.
package grid

import (
	"math"

	"github.com/rotisserie/eris"

	"github.com/sells-group/geolookup-cli/internal/geo"
)

// DefaultSize is the number of cells along each axis.
const DefaultSize = 1000

// Cell is one (x, y, segment) tuple of the index. X runs along longitude,
// Y along latitude.
type Cell struct {
	X         int
	Y         int
	SegmentID int64
}

// Grid maps coordinates inside World to cell coordinates.
type Grid struct {
	World geo.BBox
	Size  int
}

// New returns a grid of size×size cells over world.
func New(world geo.BBox, size int) (Grid, error) {
	if size <= 0 {
		return Grid{}, eris.Errorf("grid: size must be positive, got %d", size)
	}
	if world.IsEmpty() {
		return Grid{}, eris.New("grid: world bounds are empty")
	}
	return Grid{World: world, Size: size}, nil
}

// axis maps v in [lo, hi] to a clamped cell coordinate. A zero-width axis
// maps everything to 0.
func (g Grid) axis(v, lo, hi float64) int {
	span := hi - lo
	if span <= 0 {
		return 0
	}
	c := int(math.Floor((v - lo) / span * float64(g.Size)))
	if c < 0 {
		return 0
	}
	if c > g.Size-1 {
		return g.Size - 1
	}
	return c
}

// Cell returns the cell containing p. Points outside the world clamp to the
// nearest edge cell.
func (g Grid) Cell(p geo.Point) (x, y int) {
	return g.axis(p.Lon, g.World.MinLon, g.World.MaxLon),
		g.axis(p.Lat, g.World.MinLat, g.World.MaxLat)
}

// CellRange returns the inclusive cell rectangle covered by b.
func (g Grid) CellRange(b geo.BBox) (x0, y0, x1, y1 int) {
	x0, y0 = g.Cell(geo.Point{Lat: b.MinLat, Lon: b.MinLon})
	x1, y1 = g.Cell(geo.Point{Lat: b.MaxLat, Lon: b.MaxLon})
	return x0, y0, x1, y1
}

// Cells calls emit for every cell of the rectangle covered by b.
func (g Grid) Cells(id int64, b geo.BBox, emit func(Cell) error) error {
	x0, y0, x1, y1 := g.CellRange(b)
	for x := x0; x <= x1; x++ {
		for y := y0; y <= y1; y++ {
			if err := emit(Cell{X: x, Y: y, SegmentID: id}); err != nil {
				return err
			}
		}
	}
	return nil
}

// Neighbourhood returns the cell rectangle of radius r cells around p,
// clamped to the grid.
func (g Grid) Neighbourhood(p geo.Point, r int) (x0, y0, x1, y1 int) {
	x, y := g.Cell(p)
	clamp := func(v int) int {
		return max(0, min(v, g.Size-1))
	}
	return clamp(x - r), clamp(y - r), clamp(x + r), clamp(y + r)
}
