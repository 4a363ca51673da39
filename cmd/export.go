package main

import (
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/geolookup-cli/internal/export"
	"github.com/sells-group/geolookup-cli/internal/extract"
	"github.com/sells-group/geolookup-cli/internal/store"
)

var (
	exportFormat string
	exportOut    string
	exportKinds  []string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export place boundaries as GeoJSON or a shapefile",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		kinds, err := parseKinds(exportKinds)
		if err != nil {
			return err
		}
		if exportFormat == "shp" && exportOut == "" {
			return eris.New("export: --out is required for shapefiles")
		}

		ds, err := store.OpenSQLite(cfg.Store.Path)
		if err != nil {
			return eris.Wrap(err, "open dataset")
		}
		defer ds.Close() //nolint:errcheck

		boundaries, err := ds.Boundaries(ctx, kinds...)
		if err != nil {
			return err
		}
		zap.L().Info("exporting boundaries", zap.Int("count", len(boundaries)), zap.String("format", exportFormat))

		switch exportFormat {
		case "shp":
			return export.BoundariesShapefile(exportOut, boundaries)
		case "geojson":
			if exportOut == "" {
				return export.BoundariesGeoJSON(cmd.OutOrStdout(), boundaries)
			}
			f, err := os.Create(exportOut)
			if err != nil {
				return eris.Wrap(err, "export: create output")
			}
			if err := export.BoundariesGeoJSON(f, boundaries); err != nil {
				_ = f.Close()
				return err
			}
			return eris.Wrap(f.Close(), "export: close output")
		default:
			return eris.Errorf("export: unknown format %q (want geojson or shp)", exportFormat)
		}
	},
}

// parseKinds validates boundary kind filters; empty means all kinds.
func parseKinds(raw []string) ([]extract.PlaceKind, error) {
	var kinds []extract.PlaceKind
	for _, r := range raw {
		k := extract.PlaceKind(strings.ToLower(strings.TrimSpace(r)))
		if !extract.IsPlaceKind(string(k)) && k != extract.KindAdministrative && k != extract.KindRegion {
			return nil, eris.Errorf("export: unknown boundary kind %q", r)
		}
		kinds = append(kinds, k)
	}
	return kinds, nil
}

func init() {
	f := exportCmd.Flags()
	f.StringVar(&exportFormat, "format", "geojson", "output format: geojson or shp")
	f.StringVarP(&exportOut, "out", "o", "", "output file (geojson defaults to stdout)")
	f.StringSliceVar(&exportKinds, "kind", nil, "boundary kinds to export (repeatable; default all)")
	rootCmd.AddCommand(exportCmd)
}
