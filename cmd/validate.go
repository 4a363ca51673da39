package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sells-group/geolookup-cli/internal/validate"
)

var (
	validateRadius  float64
	validateNoSpeed bool
)

var validateCmd = &cobra.Command{
	Use:   "validate FILE",
	Short: "Compare lookups against a ground-truth CSV or XLSX file",
	Long:  "Reads rows of expected_street, latitude, longitude and optional expected_speed, checks each street name by proximity matching and each speed against the lookup, and prints a per-row table with a summary.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		rows, err := validate.LoadRows(args[0])
		if err != nil {
			return err
		}
		radius := validateRadius
		if radius == 0 {
			radius = cfg.Geocode.MatchRadiusM
		}

		env, err := openQueryEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		var speeds validate.SpeedSource
		if !validateNoSpeed {
			speeds = env.Roads
		}
		rep, err := validate.Run(ctx, env.Engine, speeds, rows, radius)
		if err != nil {
			return err
		}
		if jsonOut {
			return writeJSON(cmd.OutOrStdout(), rep)
		}
		return rep.WriteTable(cmd.OutOrStdout())
	},
}

func init() {
	validateCmd.Flags().Float64Var(&validateRadius, "radius", 0, "match radius in meters (default from config geocode.match_radius_m)")
	validateCmd.Flags().BoolVar(&validateNoSpeed, "no-speed", false, "skip speed-limit comparison")
	rootCmd.AddCommand(validateCmd)
}
