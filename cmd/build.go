package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/geolookup-cli/internal/builder"
	"github.com/sells-group/geolookup-cli/internal/osmsource"
	"github.com/sells-group/geolookup-cli/internal/speedlimit"
	"github.com/sells-group/geolookup-cli/internal/store"
)

var (
	buildOut          string
	buildJurisdiction string
	buildSpeedTable   string
	buildGridSize     int
	buildProcs        int
	buildConcurrency  int
	buildPublish      bool
)

var buildCmd = &cobra.Command{
	Use:   "build EXTRACT.osm.pbf [EXTRACT...]",
	Short: "Build datasets from OpenStreetMap extracts",
	Long: "Runs the three-pass extraction over each extract and writes a SQLite dataset with road segments, " +
		"the spatial grid, place and address nodes, and place boundaries. With several extracts, --out names " +
		"a directory and the builds run concurrently. --publish also loads each extract into PostGIS.",
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		applyBuildFlags(cmd)
		if err := cfg.Validate("build"); err != nil {
			return err
		}
		if buildPublish {
			if err := cfg.Validate("publish"); err != nil {
				return err
			}
		}

		rules, err := speedlimit.LoadTable(cfg.Extract.SpeedTable, cfg.Extract.Jurisdiction)
		if err != nil {
			return err
		}

		outputs := outputPaths(args, buildOut, cfg.Store.Path)
		if len(args) > 1 {
			if err := os.MkdirAll(filepath.Dir(outputs[0]), 0o755); err != nil {
				return eris.Wrap(err, "create output dir")
			}
		}
		opts := builder.Options{Rules: rules, GridSize: cfg.Extract.GridSize}

		jobs := make([]builder.Job, len(args))
		for i, input := range args {
			src, err := osmsource.NewFileSource(input, cfg.Extract.Procs)
			if err != nil {
				return err
			}
			out := outputs[i]
			jobOpts := opts
			jobOpts.SourceFile = filepath.Base(input)
			jobs[i] = builder.Job{
				Name:    filepath.Base(input),
				Source:  src,
				Options: jobOpts,
				OpenSink: func(ctx context.Context) (store.Sink, error) {
					return store.CreateSQLite(ctx, out, cfg.Store.BatchSize)
				},
			}
		}

		results, err := builder.BuildAll(ctx, jobs, cfg.Extract.Concurrency)
		if err != nil {
			return err
		}
		formatBuildResults(cmd.OutOrStdout(), outputs, results)

		if buildPublish {
			return publish(ctx, jobs, rules.Code)
		}
		return nil
	},
}

// applyBuildFlags copies explicitly set flags over the loaded config.
func applyBuildFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	if f.Changed("jurisdiction") {
		cfg.Extract.Jurisdiction = buildJurisdiction
	}
	if f.Changed("speed-table") {
		cfg.Extract.SpeedTable = buildSpeedTable
	}
	if f.Changed("grid-size") {
		cfg.Extract.GridSize = buildGridSize
	}
	if f.Changed("procs") {
		cfg.Extract.Procs = buildProcs
	}
	if f.Changed("concurrency") {
		cfg.Extract.Concurrency = buildConcurrency
	}
}

// outputPaths maps inputs to dataset files. One input writes to out, or to
// def when out is empty. Several inputs write <name>.db files into the out
// directory.
func outputPaths(inputs []string, out, def string) []string {
	if len(inputs) == 1 {
		if out == "" {
			out = def
		}
		return []string{out}
	}
	if out == "" {
		out = "."
	}
	paths := make([]string, len(inputs))
	for i, in := range inputs {
		name := filepath.Base(in)
		for _, ext := range []string{".osm.pbf", ".pbf", ".osm"} {
			if strings.HasSuffix(name, ext) {
				name = strings.TrimSuffix(name, ext)
				break
			}
		}
		paths[i] = filepath.Join(out, name+".db")
	}
	return paths
}

// publish re-runs each build into PostGIS. Jobs run one at a time since they
// share the schema migration.
func publish(ctx context.Context, jobs []builder.Job, jurisdiction string) error {
	log := zap.L().With(zap.String("component", "publish"))
	for i := range jobs {
		jobs[i].OpenSink = func(ctx context.Context) (store.Sink, error) {
			pg, err := store.NewPostgres(ctx, cfg.Store.DatabaseURL, jurisdiction, cfg.Store.BatchSize)
			if err != nil {
				return nil, err
			}
			if err := pg.Migrate(ctx); err != nil {
				_ = pg.Close()
				return nil, err
			}
			if err := pg.Clear(ctx); err != nil {
				_ = pg.Close()
				return nil, err
			}
			return pg, nil
		}
	}

	results, err := builder.BuildAll(ctx, jobs, 1)
	if err != nil {
		return eris.Wrap(err, "publish")
	}
	for i, res := range results {
		log.Info("published to postgis",
			zap.String("extract", jobs[i].Name),
			zap.String("build_id", res.BuildID),
			zap.Int("segments", res.Stats.Segments),
		)
	}
	return nil
}

func formatBuildResults(w io.Writer, outputs []string, results []*builder.Result) {
	for i, res := range results {
		s := res.Stats
		fmt.Fprintf(w, "=== %s ===\n", outputs[i])
		fmt.Fprintf(w, "Build ID:      %s\n", res.BuildID)
		fmt.Fprintf(w, "Duration:      %s\n", res.Duration.Round(time.Millisecond))
		fmt.Fprintf(w, "Segments:      %d (%d explicit, %d inferred, %d short, %d missing nodes)\n",
			s.Segments, s.ExplicitSpeeds, s.InferredSpeeds, s.ShortWays, s.MissingNodes)
		fmt.Fprintf(w, "Places:        %d\n", s.Places)
		fmt.Fprintf(w, "Addresses:     %d\n", s.Addresses)
		fmt.Fprintf(w, "Boundaries:    %d of %d relations (%d unclosed, %d missing coords)\n",
			s.Boundaries, s.RelationsListed, s.RingsUnclosed, s.RingsMissingCoords)
		fmt.Fprintf(w, "Grid:          %d×%d, %d cells\n", res.GridSize, res.GridSize, res.GridCells)
		if !res.World.IsEmpty() {
			fmt.Fprintf(w, "Bounds:        %.5f,%.5f .. %.5f,%.5f\n",
				res.World.MinLat, res.World.MinLon, res.World.MaxLat, res.World.MaxLon)
		}
		fmt.Fprintln(w)
	}
}

func init() {
	f := buildCmd.Flags()
	f.StringVarP(&buildOut, "out", "o", "", "dataset file, or directory with several extracts (default from config store.path)")
	f.StringVar(&buildJurisdiction, "jurisdiction", "", "country code for speed-limit rules (default from config)")
	f.StringVar(&buildSpeedTable, "speed-table", "", "YAML speed table overriding built-in rules")
	f.IntVar(&buildGridSize, "grid-size", 0, "grid cells per axis (default from config)")
	f.IntVar(&buildProcs, "procs", 0, "PBF decoder goroutines (0 = all CPUs)")
	f.IntVar(&buildConcurrency, "concurrency", 0, "extracts built in parallel (default from config)")
	f.BoolVar(&buildPublish, "publish", false, "also publish to PostGIS at store.database_url")
	rootCmd.AddCommand(buildCmd)
}
