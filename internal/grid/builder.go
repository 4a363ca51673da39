package grid

import (
	"github.com/rotisserie/eris"

	"github.com/sells-group/geolookup-cli/internal/geo"
)

type entry struct {
	id     int64
	bounds geo.BBox
}

// Builder accumulates segment bounds while extraction streams and builds the
// index once all segments are known. A Builder is write-once: Add after
// Build fails.
type Builder struct {
	size    int
	world   geo.BBox
	entries []entry
	built   bool
}

// NewBuilder returns a builder for a size×size grid. A non-positive size
// selects DefaultSize.
func NewBuilder(size int) *Builder {
	if size <= 0 {
		size = DefaultSize
	}
	return &Builder{size: size, world: geo.EmptyBBox()}
}

// Add records a segment. The world grows by the segment's center.
func (b *Builder) Add(id int64, bounds geo.BBox) error {
	if b.built {
		return eris.New("grid: builder already built")
	}
	b.entries = append(b.entries, entry{id: id, bounds: bounds})
	b.world = b.world.Extend(bounds.Center())
	return nil
}

// Len returns the number of segments added.
func (b *Builder) Len() int {
	return len(b.entries)
}

// World returns the union of all added segment centers.
func (b *Builder) World() geo.BBox {
	return b.world
}

// Grid returns the grid over the current world.
func (b *Builder) Grid() (Grid, error) {
	return New(b.world, b.size)
}

// Build emits every (cell, segment) pair and returns the number emitted.
// Building with no segments emits nothing.
func (b *Builder) Build(emit func(Cell) error) (int, error) {
	if b.built {
		return 0, eris.New("grid: builder already built")
	}
	b.built = true
	if len(b.entries) == 0 {
		return 0, nil
	}

	g, err := b.Grid()
	if err != nil {
		return 0, err
	}
	n := 0
	for _, e := range b.entries {
		err := g.Cells(e.id, e.bounds, func(c Cell) error {
			n++
			return emit(c)
		})
		if err != nil {
			return n, eris.Wrapf(err, "grid: emit segment %d", e.id)
		}
	}
	b.entries = nil
	return n, nil
}
