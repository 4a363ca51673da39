package fetcher

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractURL(t *testing.T) {
	tests := []struct {
		name    string
		base    string
		region  string
		want    string
		wantErr bool
	}{
		{"geofabrik", DefaultBaseURL, "africa/south-africa", "https://download.geofabrik.de/africa/south-africa-latest.osm.pbf", false},
		{"trailing slashes", "https://mirror.example/osm/", "/europe/monaco/", "https://mirror.example/osm/europe/monaco-latest.osm.pbf", false},
		{"ftp mirror", "ftp://ftp.example.com/pub", "europe/monaco", "ftp://ftp.example.com/pub/europe/monaco-latest.osm.pbf", false},
		{"empty region", DefaultBaseURL, "  ", "", true},
		{"path traversal", DefaultBaseURL, "../etc/passwd", "", true},
		{"relative base", "download.geofabrik.de", "europe/monaco", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractURL(tt.base, tt.region)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractFile(t *testing.T) {
	assert.Equal(t, filepath.Join("data", "africa_south-africa-latest.osm.pbf"), ExtractFile("data", "africa/south-africa"))
}

// extractServer serves any path ending in -latest.osm.pbf with a fixed ETag.
func extractServer(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		w.Write([]byte("pbf:" + r.URL.Path)) //nolint:errcheck
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestDownloadRegions(t *testing.T) {
	var hits atomic.Int32
	srv := extractServer(t, &hits)
	dir := filepath.Join(t.TempDir(), "extracts")

	d := &Downloader{
		HTTP:        newTestFetcher(),
		BaseURL:     srv.URL,
		Dir:         dir,
		Concurrency: 2,
	}
	regions := []string{"africa/south-africa", "africa/namibia", "europe/monaco"}

	got, err := d.DownloadRegions(context.Background(), regions)
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i, dl := range got {
		assert.Equal(t, regions[i], dl.Region)
		assert.False(t, dl.Skipped)
		data, err := os.ReadFile(dl.Path)
		require.NoError(t, err)
		assert.Equal(t, "pbf:/"+regions[i]+"-latest.osm.pbf", string(data))
		assert.Equal(t, int64(len(data)), dl.Bytes)

		etag, err := os.ReadFile(dl.Path + ".etag")
		require.NoError(t, err)
		assert.Equal(t, `"v1"`, string(etag))
	}

	// A second run finds every extract unchanged.
	got, err = d.DownloadRegions(context.Background(), regions)
	require.NoError(t, err)
	for _, dl := range got {
		assert.True(t, dl.Skipped)
		assert.Zero(t, dl.Bytes)
	}
	assert.Equal(t, int32(6), hits.Load())
}

func TestDownloadRegions_MissingExtractRefetches(t *testing.T) {
	var hits atomic.Int32
	srv := extractServer(t, &hits)
	dir := t.TempDir()

	// A stale sidecar without its extract must not suppress the download.
	path := ExtractFile(dir, "europe/monaco")
	require.NoError(t, os.WriteFile(path+".etag", []byte(`"v1"`), 0o644))

	d := &Downloader{HTTP: newTestFetcher(), BaseURL: srv.URL, Dir: dir}
	got, err := d.DownloadRegions(context.Background(), []string{"europe/monaco"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.False(t, got[0].Skipped)
	assert.FileExists(t, path)
}

func TestDownloadRegions_Error(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	d := &Downloader{HTTP: newTestFetcher(), BaseURL: srv.URL, Dir: t.TempDir()}
	_, err := d.DownloadRegions(context.Background(), []string{"atlantis"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetcher: download atlantis")
}

func TestDownloadRegions_FTP(t *testing.T) {
	ftpSrv := newMiniFTPServer(t, map[string]string{
		"/pub/europe/monaco-latest.osm.pbf": "monaco",
	})
	defer ftpSrv.close()

	d := &Downloader{
		FTP:     NewFTPFetcher(FTPOptions{Timeout: 5 * time.Second}),
		BaseURL: fmt.Sprintf("ftp://%s/pub", ftpSrv.addr()),
		Dir:     t.TempDir(),
	}
	got, err := d.DownloadRegions(context.Background(), []string{"europe/monaco"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(6), got[0].Bytes)

	// An FTP mirror needs an FTP fetcher.
	d.FTP = nil
	_, err = d.DownloadRegions(context.Background(), []string{"europe/monaco"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no ftp fetcher configured")
}
