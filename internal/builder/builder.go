// Package builder runs one dataset build: the three extraction passes into a
// sink, followed by the grid index and dataset metadata.
package builder

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/geolookup-cli/internal/extract"
	"github.com/sells-group/geolookup-cli/internal/geo"
	"github.com/sells-group/geolookup-cli/internal/grid"
	"github.com/sells-group/geolookup-cli/internal/osmsource"
	"github.com/sells-group/geolookup-cli/internal/speedlimit"
	"github.com/sells-group/geolookup-cli/internal/store"
)

const cellBatch = 4096

// Options configures a build.
type Options struct {
	Rules      speedlimit.Jurisdiction // speed-limit rules for the extract's country
	GridSize   int                     // cells per axis (default grid.DefaultSize)
	SourceFile string                  // recorded in metadata
}

// Result summarises a completed build.
type Result struct {
	BuildID   string        `json:"build_id"`
	Stats     extract.Stats `json:"stats"`
	World     geo.BBox      `json:"world"`
	GridSize  int           `json:"grid_size"`
	GridCells int           `json:"grid_cells"`
	Duration  time.Duration `json:"duration"`
}

// Build extracts src into sink. Segments are written as pass 2 produces
// them while their bounds accumulate for the grid, which is written once all
// segments are known. Build flushes but does not close the sink.
func Build(ctx context.Context, src osmsource.Source, sink store.Sink, opts Options) (*Result, error) {
	if opts.GridSize <= 0 {
		opts.GridSize = grid.DefaultSize
	}
	buildID := uuid.New().String()
	log := zap.L().With(
		zap.String("component", "builder"),
		zap.String("build_id", buildID),
		zap.String("jurisdiction", opts.Rules.Code),
	)
	start := time.Now()

	pipeline := extract.NewPipeline(src, opts.Rules)
	gb := grid.NewBuilder(opts.GridSize)

	err := pipeline.Run(ctx, extract.Handler{
		Place:   func(p extract.PlaceNode) error { return sink.WritePlace(ctx, p) },
		Address: func(a extract.AddressNode) error { return sink.WriteAddress(ctx, a) },
		Segment: func(s extract.RoadSegment) error {
			if err := sink.WriteSegment(ctx, s); err != nil {
				return err
			}
			return gb.Add(s.WayID, s.Bounds)
		},
		Boundary: func(b extract.PlaceBoundary) error { return sink.WriteBoundary(ctx, b) },
	})
	if err != nil {
		return nil, eris.Wrap(err, "builder: extract")
	}

	world := gb.World()
	cells, err := writeGrid(ctx, gb, sink)
	if err != nil {
		return nil, err
	}
	log.Info("grid index built", zap.Int("segments", gb.Len()), zap.Int("cells", cells))

	meta := map[string]string{
		store.MetaGridSize:      strconv.Itoa(opts.GridSize),
		store.MetaJurisdiction:  opts.Rules.Code,
		store.MetaBuildID:       buildID,
		store.MetaBuiltAt:       time.Now().UTC().Format(time.RFC3339),
		store.MetaSourceFile:    opts.SourceFile,
		store.MetaSchemaVersion: store.SchemaVersion,
	}
	if !world.IsEmpty() {
		meta[store.MetaMinLat] = formatCoord(world.MinLat)
		meta[store.MetaMaxLat] = formatCoord(world.MaxLat)
		meta[store.MetaMinLon] = formatCoord(world.MinLon)
		meta[store.MetaMaxLon] = formatCoord(world.MaxLon)
	}
	if err := sink.WriteMetadata(ctx, meta); err != nil {
		return nil, eris.Wrap(err, "builder: write metadata")
	}
	if err := sink.Flush(ctx); err != nil {
		return nil, eris.Wrap(err, "builder: flush")
	}

	res := &Result{
		BuildID:   buildID,
		Stats:     pipeline.Stats(),
		World:     world,
		GridSize:  opts.GridSize,
		GridCells: cells,
		Duration:  time.Since(start),
	}
	log.Info("build complete",
		zap.Int("segments", res.Stats.Segments),
		zap.Int("places", res.Stats.Places),
		zap.Int("addresses", res.Stats.Addresses),
		zap.Int("boundaries", res.Stats.Boundaries),
		zap.Int("relations_discarded", res.Stats.RelationsListed-res.Stats.Boundaries),
		zap.Duration("duration", res.Duration),
	)
	return res, nil
}

func writeGrid(ctx context.Context, gb *grid.Builder, sink store.Sink) (int, error) {
	batch := make([]grid.Cell, 0, cellBatch)
	n, err := gb.Build(func(c grid.Cell) error {
		batch = append(batch, c)
		if len(batch) < cellBatch {
			return nil
		}
		err := sink.WriteGridCells(ctx, batch)
		batch = batch[:0]
		return err
	})
	if err != nil {
		return 0, eris.Wrap(err, "builder: write grid")
	}
	if len(batch) > 0 {
		if err := sink.WriteGridCells(ctx, batch); err != nil {
			return 0, eris.Wrap(err, "builder: write grid")
		}
	}
	return n, nil
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Job is one independent country build.
type Job struct {
	Name     string
	Source   osmsource.Source
	OpenSink func(ctx context.Context) (store.Sink, error)
	Options  Options
}

// BuildAll runs independent jobs with at most concurrency in flight. Jobs
// share no state. Each job's sink is closed when its build ends. Results are
// returned in job order.
func BuildAll(ctx context.Context, jobs []Job, concurrency int) ([]*Result, error) {
	if concurrency <= 0 {
		concurrency = 1
	}
	results := make([]*Result, len(jobs))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, job := range jobs {
		g.Go(func() error {
			sink, err := job.OpenSink(gCtx)
			if err != nil {
				return eris.Wrapf(err, "builder: open sink for %s", job.Name)
			}
			res, err := Build(gCtx, job.Source, sink, job.Options)
			closeErr := sink.Close()
			if err != nil {
				return eris.Wrapf(err, "builder: build %s", job.Name)
			}
			if closeErr != nil {
				return eris.Wrapf(closeErr, "builder: close sink for %s", job.Name)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
