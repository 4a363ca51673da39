package main

import (
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sells-group/geolookup-cli/internal/lookup"
)

var lookupCmd = &cobra.Command{
	Use:   "lookup LAT LON",
	Short: "Show the speed limit and road at a coordinate",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		p, err := parseLatLon(args[0], args[1])
		if err != nil {
			return err
		}
		env, err := openQueryEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		info, err := env.Roads.RoadInfo(ctx, p)
		if err != nil {
			return err
		}
		if jsonOut {
			return writeJSON(cmd.OutOrStdout(), map[string]any{"point": p, "road": info})
		}
		formatRoadInfo(cmd.OutOrStdout(), info)
		return nil
	},
}

func formatRoadInfo(w io.Writer, info *lookup.RoadInfo) {
	if info == nil {
		fmt.Fprintln(w, "No road found")
		return
	}
	inferred := ""
	if info.Inferred {
		inferred = " (inferred)"
	}
	name := info.Name
	if name == "" {
		name = "(unnamed)"
	}
	fmt.Fprintf(w, "Speed limit:  %d km/h%s\n", info.SpeedKmh, inferred)
	fmt.Fprintf(w, "Road:         %s\n", name)
	fmt.Fprintf(w, "Highway:      %s\n", info.Highway)
	fmt.Fprintf(w, "Way:          %d\n", info.WayID)
	fmt.Fprintf(w, "Match:        %s, %.0f m\n", info.Source, info.Distance)
}

func init() {
	rootCmd.AddCommand(lookupCmd)
}
