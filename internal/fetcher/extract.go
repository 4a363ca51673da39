package fetcher

import (
	"context"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultBaseURL is the Geofabrik extract mirror.
const DefaultBaseURL = "https://download.geofabrik.de"

// ExtractURL returns the URL of a region's latest PBF extract, for example
// ExtractURL(DefaultBaseURL, "africa/south-africa").
func ExtractURL(baseURL, region string) (string, error) {
	region = strings.Trim(strings.TrimSpace(region), "/")
	if region == "" {
		return "", eris.New("fetcher: empty region")
	}
	if strings.Contains(region, "..") {
		return "", eris.Errorf("fetcher: invalid region %q", region)
	}
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return "", eris.Wrapf(err, "fetcher: parse base url %q", baseURL)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", eris.Errorf("fetcher: base url %q needs a scheme and host", baseURL)
	}
	return u.String() + "/" + region + "-latest.osm.pbf", nil
}

// ExtractFile returns the local file name for a region's extract.
func ExtractFile(dir, region string) string {
	region = strings.Trim(strings.TrimSpace(region), "/")
	return filepath.Join(dir, strings.ReplaceAll(region, "/", "_")+"-latest.osm.pbf")
}

// Download is the outcome of one region download.
type Download struct {
	Region   string        `json:"region"`
	URL      string        `json:"url"`
	Path     string        `json:"path"`
	Bytes    int64         `json:"bytes"`
	Skipped  bool          `json:"skipped"` // unchanged since the last download
	Duration time.Duration `json:"duration"`
}

// Downloader fetches region extracts into a directory.
type Downloader struct {
	HTTP        *HTTPFetcher
	FTP         *FTPFetcher
	BaseURL     string
	Dir         string
	Concurrency int
}

// DownloadRegions fetches every region concurrently. HTTP downloads keep an
// ETag sidecar next to the extract and are skipped when the mirror reports
// the file unchanged. Results are returned in region order.
func (d *Downloader) DownloadRegions(ctx context.Context, regions []string) ([]Download, error) {
	if err := os.MkdirAll(d.Dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "fetcher: create %s", d.Dir)
	}
	base := d.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	concurrency := d.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	out := make([]Download, len(regions))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, region := range regions {
		g.Go(func() error {
			u, err := ExtractURL(base, region)
			if err != nil {
				return err
			}
			res, err := d.fetch(gCtx, u, ExtractFile(d.Dir, region))
			if err != nil {
				return eris.Wrapf(err, "fetcher: download %s", region)
			}
			res.Region = region
			out[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (d *Downloader) fetch(ctx context.Context, rawURL, path string) (Download, error) {
	log := zap.L().With(zap.String("component", "fetcher"), zap.String("url", rawURL))
	start := time.Now()
	res := Download{URL: rawURL, Path: path}

	if strings.HasPrefix(rawURL, "ftp://") {
		if d.FTP == nil {
			return res, eris.New("no ftp fetcher configured")
		}
		n, err := d.FTP.DownloadToFile(ctx, rawURL, path)
		if err != nil {
			return res, err
		}
		res.Bytes, res.Duration = n, time.Since(start)
		log.Info("extract downloaded", zap.Int64("bytes", n))
		return res, nil
	}

	if d.HTTP == nil {
		return res, eris.New("no http fetcher configured")
	}
	etagPath := path + ".etag"
	etag := ""
	if _, err := os.Stat(path); err == nil {
		if raw, err := os.ReadFile(etagPath); err == nil {
			etag = strings.TrimSpace(string(raw))
		}
	}

	body, newETag, changed, err := d.HTTP.DownloadIfChanged(ctx, rawURL, etag)
	if err != nil {
		return res, err
	}
	if !changed {
		res.Skipped, res.Duration = true, time.Since(start)
		log.Info("extract unchanged, skipping", zap.String("etag", etag))
		return res, nil
	}
	n, err := writeBody(path, body)
	if err != nil {
		return res, err
	}
	if newETag != "" {
		if err := os.WriteFile(etagPath, []byte(newETag), 0o644); err != nil {
			return res, eris.Wrap(err, "write etag")
		}
	} else {
		os.Remove(etagPath) //nolint:errcheck
	}

	res.Bytes, res.Duration = n, time.Since(start)
	log.Info("extract downloaded", zap.Int64("bytes", n), zap.Duration("duration", res.Duration))
	return res, nil
}

func writeBody(path string, body io.ReadCloser) (int64, error) {
	defer body.Close() //nolint:errcheck
	return writeFileAtomic(path, body)
}
