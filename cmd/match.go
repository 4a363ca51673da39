package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var matchRadius float64

var matchCmd = &cobra.Command{
	Use:   "match STREET LAT LON",
	Short: "Check whether a street name exists near a coordinate",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		p, err := parseLatLon(args[1], args[2])
		if err != nil {
			return err
		}
		radius := matchRadius
		if radius == 0 {
			radius = cfg.Geocode.MatchRadiusM
		}

		env, err := openQueryEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		m, err := env.Engine.MatchNearby(ctx, args[0], p, radius)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if jsonOut {
			return writeJSON(out, map[string]any{"street": args[0], "radius_m": radius, "match": m})
		}
		if m == nil {
			fmt.Fprintf(out, "No match for %q within %.0f m\n", args[0], radius)
			return nil
		}
		fmt.Fprintf(out, "Matched %q: %s (%s, %.0f m)\n", args[0], m.Name, m.Source, m.Distance)
		return nil
	},
}

func init() {
	matchCmd.Flags().Float64Var(&matchRadius, "radius", 0, "search radius in meters (default from config geocode.match_radius_m)")
	rootCmd.AddCommand(matchCmd)
}
