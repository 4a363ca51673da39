package main

import (
	"fmt"
	"io"
	"os/signal"
	"sort"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/geolookup-cli/internal/store"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show dataset table counts and build metadata",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		ds, err := store.OpenSQLite(cfg.Store.Path)
		if err != nil {
			return eris.Wrap(err, "status: open dataset")
		}
		defer ds.Close() //nolint:errcheck

		counts, err := ds.Counts(ctx)
		if err != nil {
			return err
		}
		meta, err := ds.Metadata(ctx)
		if err != nil {
			return err
		}
		if jsonOut {
			return writeJSON(cmd.OutOrStdout(), map[string]any{"path": ds.Path(), "counts": counts, "metadata": meta})
		}
		formatStatus(cmd.OutOrStdout(), ds.Path(), counts, meta)
		return nil
	},
}

var statusTables = []string{"road_segments", "spatial_grid", "place_nodes", "address_nodes", "place_boundaries"}

func formatStatus(w io.Writer, path string, counts map[string]int64, meta map[string]string) {
	fmt.Fprintf(w, "=== Dataset %s ===\n", path)
	for _, t := range statusTables {
		if n, ok := counts[t]; ok {
			fmt.Fprintf(w, "  %-18s %d\n", t, n)
		} else {
			fmt.Fprintf(w, "  %-18s -\n", t)
		}
	}

	if len(meta) == 0 {
		return
	}
	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Metadata:")
	for _, k := range keys {
		fmt.Fprintf(w, "  %-18s %s\n", k, meta[k])
	}
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
