package osmsource

import "context"

// MemorySource replays a fixed slice of records. Each Open starts from the
// beginning, which makes it a drop-in Source for tests and small fixtures.
type MemorySource struct {
	Records []Record
	opens   int
}

// NewMemorySource returns a MemorySource over records.
func NewMemorySource(records ...Record) *MemorySource {
	return &MemorySource{Records: records}
}

// Opens returns how many scanners have been opened.
func (m *MemorySource) Opens() int { return m.opens }

// Open starts a new independent scan.
func (m *MemorySource) Open(ctx context.Context, f Filter) (Scanner, error) {
	m.opens++
	return &memoryScanner{ctx: ctx, records: m.Records, filter: f, pos: -1}, nil
}

type memoryScanner struct {
	ctx     context.Context
	records []Record
	filter  Filter
	pos     int
	err     error
}

func (s *memoryScanner) Scan() bool {
	for {
		if err := s.ctx.Err(); err != nil {
			s.err = err
			return false
		}
		s.pos++
		if s.pos >= len(s.records) {
			return false
		}
		if s.filter.accepts(s.records[s.pos]) {
			return true
		}
	}
}

func (s *memoryScanner) Record() Record {
	if s.pos < 0 || s.pos >= len(s.records) {
		return nil
	}
	return s.records[s.pos]
}

func (s *memoryScanner) Err() error   { return s.err }
func (s *memoryScanner) Close() error { return nil }
