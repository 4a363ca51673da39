package osmsource

import (
	"compress/bzip2"
	"compress/gzip"
	"context"
	"io"
	"os"
	"runtime"
	"strings"

	"github.com/paulmach/osm"
	"github.com/paulmach/osm/osmpbf"
	"github.com/paulmach/osm/osmxml"
	"github.com/rotisserie/eris"
)

// FileSource reads an extract from disk. ".pbf" files are decoded with the
// parallel PBF scanner; ".osm", ".osm.gz" and ".osm.bz2" with the XML scanner.
type FileSource struct {
	Path  string
	Procs int // PBF decoder goroutines; 0 means runtime.NumCPU()
}

// NewFileSource returns a FileSource for path after checking it is readable.
func NewFileSource(path string, procs int) (*FileSource, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, eris.Wrapf(err, "osmsource: stat %s", path)
	}
	if info.IsDir() {
		return nil, eris.Errorf("osmsource: %s is a directory", path)
	}
	return &FileSource{Path: path, Procs: procs}, nil
}

// objectScanner is the method set shared by the osmpbf and osmxml scanners.
type objectScanner interface {
	Scan() bool
	Object() osm.Object
	Err() error
	Close() error
}

// Open starts a fresh scan of the file.
func (s *FileSource) Open(ctx context.Context, f Filter) (Scanner, error) {
	file, err := os.Open(s.Path)
	if err != nil {
		return nil, eris.Wrapf(err, "osmsource: open %s", s.Path)
	}

	lower := strings.ToLower(s.Path)
	var inner objectScanner
	switch {
	case strings.HasSuffix(lower, ".pbf"):
		procs := s.Procs
		if procs <= 0 {
			procs = runtime.NumCPU()
		}
		pbf := osmpbf.New(ctx, file, procs)
		pbf.SkipNodes = !f.Nodes
		pbf.SkipWays = !f.Ways
		pbf.SkipRelations = !f.Relations
		inner = pbf
	case strings.HasSuffix(lower, ".osm"):
		inner = osmxml.New(ctx, file)
	case strings.HasSuffix(lower, ".osm.gz"):
		gz, err := gzip.NewReader(file)
		if err != nil {
			_ = file.Close()
			return nil, eris.Wrapf(err, "osmsource: gzip %s", s.Path)
		}
		inner = osmxml.New(ctx, gz)
	case strings.HasSuffix(lower, ".osm.bz2"):
		inner = osmxml.New(ctx, bzip2.NewReader(file))
	default:
		_ = file.Close()
		return nil, eris.Errorf("osmsource: unsupported extract format %s", s.Path)
	}

	return &fileScanner{inner: inner, file: file, filter: f}, nil
}

type fileScanner struct {
	inner  objectScanner
	file   io.Closer
	filter Filter
	cur    Record
}

func (s *fileScanner) Scan() bool {
	for s.inner.Scan() {
		rec := convert(s.inner.Object())
		if rec == nil || !s.filter.accepts(rec) {
			continue
		}
		s.cur = rec
		return true
	}
	s.cur = nil
	return false
}

func (s *fileScanner) Record() Record { return s.cur }

func (s *fileScanner) Err() error {
	err := s.inner.Err()
	if err == nil || err == io.EOF {
		return nil
	}
	return eris.Wrap(err, "osmsource: scan")
}

func (s *fileScanner) Close() error {
	scanErr := s.inner.Close()
	fileErr := s.file.Close()
	if scanErr != nil {
		return eris.Wrap(scanErr, "osmsource: close scanner")
	}
	return eris.Wrap(fileErr, "osmsource: close file")
}

// convert maps a paulmach/osm object to a Record. Unsupported objects
// (bounds, changesets) return nil.
func convert(obj osm.Object) Record {
	switch o := obj.(type) {
	case *osm.Node:
		return &Node{ID: int64(o.ID), Lat: o.Lat, Lon: o.Lon, Tags: tagMap(o.Tags)}
	case *osm.Way:
		nodes := make([]int64, len(o.Nodes))
		for i, wn := range o.Nodes {
			nodes[i] = int64(wn.ID)
		}
		return &Way{ID: int64(o.ID), Nodes: nodes, Tags: tagMap(o.Tags)}
	case *osm.Relation:
		members := make([]Member, len(o.Members))
		for i, m := range o.Members {
			members[i] = Member{Type: MemberType(m.Type), Ref: m.Ref, Role: m.Role}
		}
		return &Relation{ID: int64(o.ID), Members: members, Tags: tagMap(o.Tags)}
	}
	return nil
}

// tagMap avoids allocating for the large majority of untagged nodes.
func tagMap(tags osm.Tags) map[string]string {
	if len(tags) == 0 {
		return nil
	}
	return tags.Map()
}
