package main

import (
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sells-group/geolookup-cli/internal/fetcher"
)

var (
	downloadDir         string
	downloadBaseURL     string
	downloadConcurrency int
)

var downloadCmd = &cobra.Command{
	Use:   "download REGION [REGION...]",
	Short: "Download OpenStreetMap extracts",
	Long: "Fetches <base_url>/<region>-latest.osm.pbf for each region (for example africa/south-africa) " +
		"into the download directory. Unchanged extracts are skipped by ETag. ftp:// base URLs are fetched over FTP.",
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if downloadDir != "" {
			cfg.Download.Dir = downloadDir
		}
		if downloadBaseURL != "" {
			cfg.Download.BaseURL = downloadBaseURL
		}
		if downloadConcurrency != 0 {
			cfg.Download.Concurrency = downloadConcurrency
		}
		if err := cfg.Validate("download"); err != nil {
			return err
		}

		timeout := time.Duration(cfg.Download.TimeoutSecs) * time.Second
		d := &fetcher.Downloader{
			HTTP: fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
				UserAgent:  cfg.Download.UserAgent,
				Timeout:    timeout,
				MaxRetries: cfg.Download.MaxRetries,
			}),
			FTP:         fetcher.NewFTPFetcher(fetcher.FTPOptions{Timeout: timeout}),
			BaseURL:     cfg.Download.BaseURL,
			Dir:         cfg.Download.Dir,
			Concurrency: cfg.Download.Concurrency,
		}

		got, err := d.DownloadRegions(ctx, args)
		if err != nil {
			return err
		}
		if jsonOut {
			return writeJSON(cmd.OutOrStdout(), got)
		}
		formatDownloads(cmd.OutOrStdout(), got)
		return nil
	},
}

func formatDownloads(w io.Writer, got []fetcher.Download) {
	for _, d := range got {
		if d.Skipped {
			fmt.Fprintf(w, "%-32s unchanged  %s\n", d.Region, d.Path)
			continue
		}
		fmt.Fprintf(w, "%-32s %8.1f MB  %s (%s)\n", d.Region, float64(d.Bytes)/(1<<20), d.Path, d.Duration.Round(time.Second))
	}
}

func init() {
	f := downloadCmd.Flags()
	f.StringVar(&downloadDir, "dir", "", "download directory (default from config)")
	f.StringVar(&downloadBaseURL, "base-url", "", "mirror base URL (default from config)")
	f.IntVar(&downloadConcurrency, "concurrency", 0, "parallel downloads (default from config)")
	rootCmd.AddCommand(downloadCmd)
}
