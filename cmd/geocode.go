package main

import (
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sells-group/geolookup-cli/internal/geocode"
)

var geocodeCmd = &cobra.Command{
	Use:   "geocode LAT LON",
	Short: "Resolve a coordinate to street, suburb, city, municipality and region",
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

		addr, err := env.Engine.Resolve(ctx, p)
		if err != nil {
			return err
		}
		if jsonOut {
			return writeJSON(cmd.OutOrStdout(), addr)
		}
		formatAddress(cmd.OutOrStdout(), addr)
		return nil
	},
}

func formatAddress(w io.Writer, addr *geocode.Address) {
	fmt.Fprintf(w, "Location:      %.6f, %.6f\n", addr.Point.Lat, addr.Point.Lon)
	rows := []struct {
		label string
		tier  *geocode.Tier
	}{
		{"Street", addr.Street},
		{"Road", addr.Road},
		{"Suburb", addr.Suburb},
		{"City", addr.City},
		{"Municipality", addr.Municipality},
		{"Region", addr.Region},
	}
	for _, r := range rows {
		if r.tier == nil {
			fmt.Fprintf(w, "%-14s -\n", r.label+":")
			continue
		}
		if r.tier.Contained {
			fmt.Fprintf(w, "%-14s %s [%s]\n", r.label+":", r.tier.Name, r.tier.Kind)
			continue
		}
		fmt.Fprintf(w, "%-14s %s [%s, %.0f m]\n", r.label+":", r.tier.Name, r.tier.Kind, r.tier.Distance)
	}
	if !addr.HasPlaceData {
		fmt.Fprintln(w, "(dataset has no place data; only road names are available)")
	}
}

func init() {
	rootCmd.AddCommand(geocodeCmd)
}
