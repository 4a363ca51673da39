package extract

import (
	"context"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/geolookup-cli/internal/geo"
	"github.com/sells-group/geolookup-cli/internal/osmsource"
	"github.com/sells-group/geolookup-cli/internal/speedlimit"
)

// Stats counts what each pass accepted and discarded.
type Stats struct {
	Nodes     int `json:"nodes"`
	Places    int `json:"places"`
	Addresses int `json:"addresses"`

	WaysScanned     int `json:"ways_scanned"`
	Segments        int `json:"segments"`
	ShortWays       int `json:"short_ways"`
	MissingNodes    int `json:"missing_nodes"`
	ExplicitSpeeds  int `json:"explicit_speeds"`
	InferredSpeeds  int `json:"inferred_speeds"`
	RelationsListed int `json:"relations_listed"`

	Boundaries         int `json:"boundaries"`
	RingsUnclosed      int `json:"rings_unclosed"`
	RingsMissingCoords int `json:"rings_missing_coords"`
	MissingMemberWays  int `json:"missing_member_ways"`
}

// RelationCatalog holds the boundary relations found in pass 2.
type RelationCatalog struct {
	Relations []BoundaryRelation
}

// WayIDs returns the set of way ids referenced by any catalogued relation.
func (c *RelationCatalog) WayIDs() map[int64]struct{} {
	ids := make(map[int64]struct{})
	for _, r := range c.Relations {
		for _, w := range r.OuterWays {
			ids[w] = struct{}{}
		}
	}
	return ids
}

// Len returns the number of catalogued relations.
func (c *RelationCatalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.Relations)
}

// Pipeline runs the three extraction passes over one source. Passes must run
// in order: CollectNodes, ScanWays, AssembleBoundaries.
type Pipeline struct {
	src   osmsource.Source
	rules speedlimit.Jurisdiction
	nodes *NodeIndex
	stats Stats
	log   *zap.Logger
}

// NewPipeline creates a pipeline over src using the given speed rules.
func NewPipeline(src osmsource.Source, rules speedlimit.Jurisdiction) *Pipeline {
	return &Pipeline{
		src:   src,
		rules: rules,
		log:   zap.L().With(zap.String("component", "extract"), zap.String("jurisdiction", rules.Code)),
	}
}

// Stats returns the counters accumulated so far.
func (p *Pipeline) Stats() Stats {
	return p.stats
}

// Nodes returns the pass-1 coordinate index, or nil before CollectNodes.
func (p *Pipeline) Nodes() *NodeIndex {
	return p.nodes
}

// CollectNodes is pass 1. It indexes every node coordinate and reports named
// places and postal addresses through the callbacks, either of which may be
// nil. A callback error aborts the pass.
func (p *Pipeline) CollectNodes(ctx context.Context, onPlace func(PlaceNode) error, onAddress func(AddressNode) error) error {
	sc, err := p.src.Open(ctx, osmsource.Filter{Nodes: true})
	if err != nil {
		return eris.Wrap(err, "extract: open pass 1")
	}
	defer sc.Close() //nolint:errcheck

	idx := NewNodeIndex(1 << 16)
	for sc.Scan() {
		n, ok := sc.Record().(*osmsource.Node)
		if !ok {
			continue
		}
		idx.Put(n.ID, n.Lat, n.Lon)
		if len(n.Tags) == 0 {
			continue
		}
		loc := geo.Point{Lat: n.Lat, Lon: n.Lon}

		if name := n.Tags["name"]; name != "" && IsPlaceKind(n.Tags["place"]) {
			p.stats.Places++
			if onPlace != nil {
				if err := onPlace(PlaceNode{NodeID: n.ID, Name: name, Kind: PlaceKind(n.Tags["place"]), Location: loc}); err != nil {
					return eris.Wrapf(err, "extract: place node %d", n.ID)
				}
			}
		}
		if street := strings.TrimSpace(n.Tags["addr:street"]); street != "" {
			p.stats.Addresses++
			if onAddress != nil {
				if err := onAddress(AddressNode{NodeID: n.ID, Street: street, Location: loc}); err != nil {
					return eris.Wrapf(err, "extract: address node %d", n.ID)
				}
			}
		}
	}
	if err := sc.Err(); err != nil {
		return eris.Wrap(err, "extract: scan pass 1")
	}

	p.nodes = idx
	p.stats.Nodes = idx.Len()
	p.log.Info("pass 1 complete",
		zap.Int("nodes", p.stats.Nodes),
		zap.Int("places", p.stats.Places),
		zap.Int("addresses", p.stats.Addresses),
	)
	return nil
}

// ScanWays is pass 2. Each routable way becomes a RoadSegment handed to emit
// as soon as it is built; segments are never accumulated. Boundary relations
// are collected alongside and returned once the scan completes.
func (p *Pipeline) ScanWays(ctx context.Context, emit func(RoadSegment) error) (*RelationCatalog, error) {
	if p.nodes == nil {
		return nil, eris.New("extract: pass 2 requires pass 1 node index")
	}
	sc, err := p.src.Open(ctx, osmsource.Filter{Ways: true, Relations: true})
	if err != nil {
		return nil, eris.Wrap(err, "extract: open pass 2")
	}
	defer sc.Close() //nolint:errcheck

	catalog := &RelationCatalog{}
	for sc.Scan() {
		switch r := sc.Record().(type) {
		case *osmsource.Way:
			seg, ok := p.roadSegment(r)
			if !ok {
				continue
			}
			if err := emit(seg); err != nil {
				return nil, eris.Wrapf(err, "extract: emit way %d", r.ID)
			}
		case *osmsource.Relation:
			if br, ok := boundaryRelation(r); ok {
				catalog.Relations = append(catalog.Relations, br)
			}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, eris.Wrap(err, "extract: scan pass 2")
	}

	p.stats.RelationsListed = len(catalog.Relations)
	p.log.Info("pass 2 complete",
		zap.Int("ways_scanned", p.stats.WaysScanned),
		zap.Int("segments", p.stats.Segments),
		zap.Int("short_ways", p.stats.ShortWays),
		zap.Int("explicit_speeds", p.stats.ExplicitSpeeds),
		zap.Int("inferred_speeds", p.stats.InferredSpeeds),
		zap.Int("relations", p.stats.RelationsListed),
	)
	return catalog, nil
}

func (p *Pipeline) roadSegment(w *osmsource.Way) (RoadSegment, bool) {
	hw := w.Tags["highway"]
	if !IsRoutable(hw) {
		return RoadSegment{}, false
	}
	p.stats.WaysScanned++

	pts, missing := p.nodes.Resolve(w.Nodes)
	p.stats.MissingNodes += missing
	if len(pts) < 2 {
		p.stats.ShortWays++
		return RoadSegment{}, false
	}

	kmh, inferred := speedlimit.Resolve(w.Tags, p.rules)
	if inferred {
		p.stats.InferredSpeeds++
	} else {
		p.stats.ExplicitSpeeds++
	}
	p.stats.Segments++

	return RoadSegment{
		WayID:    w.ID,
		Name:     w.Tags["name"],
		Highway:  hw,
		SpeedKmh: kmh,
		Inferred: inferred,
		Geometry: pts,
		Bounds:   geo.BoundsOf(pts),
	}, true
}

// boundaryRelation qualifies a relation for the catalogue.
func boundaryRelation(r *osmsource.Relation) (BoundaryRelation, bool) {
	name := r.Tags["name"]
	if name == "" {
		return BoundaryRelation{}, false
	}

	place := r.Tags["place"]
	level, _ := strconv.Atoi(strings.TrimSpace(r.Tags["admin_level"]))
	admin := r.Tags["boundary"] == "administrative" && level >= 4
	if !admin && !IsPlaceKind(place) {
		return BoundaryRelation{}, false
	}
	kind, ok := ClassifyBoundary(place, level)
	if !ok {
		return BoundaryRelation{}, false
	}

	var outer []int64
	for _, m := range r.Members {
		if m.Type != osmsource.MemberWay {
			continue
		}
		if m.Role == "outer" || m.Role == "" {
			outer = append(outer, m.Ref)
		}
	}
	if len(outer) == 0 {
		return BoundaryRelation{}, false
	}

	return BoundaryRelation{
		RelationID: r.ID,
		Name:       name,
		Kind:       kind,
		AdminLevel: level,
		OuterWays:  outer,
	}, true
}

// AssembleBoundaries is pass 3. It loads the node lists of every way the
// catalogue references, assembles one ring per relation, and emits each
// accepted boundary. Relations whose ring fails to close or references an
// unindexed node are counted and dropped.
func (p *Pipeline) AssembleBoundaries(ctx context.Context, catalog *RelationCatalog, emit func(PlaceBoundary) error) error {
	if p.nodes == nil {
		return eris.New("extract: pass 3 requires pass 1 node index")
	}
	if catalog.Len() == 0 {
		p.log.Info("pass 3 skipped, no boundary relations")
		return nil
	}

	wanted := catalog.WayIDs()
	wayNodes := make(map[int64][]int64, len(wanted))

	sc, err := p.src.Open(ctx, osmsource.Filter{Ways: true})
	if err != nil {
		return eris.Wrap(err, "extract: open pass 3")
	}
	defer sc.Close() //nolint:errcheck

	for sc.Scan() {
		w, ok := sc.Record().(*osmsource.Way)
		if !ok {
			continue
		}
		if _, ok := wanted[w.ID]; ok && len(w.Nodes) > 0 {
			wayNodes[w.ID] = w.Nodes
		}
	}
	if err := sc.Err(); err != nil {
		return eris.Wrap(err, "extract: scan pass 3")
	}

	for _, rel := range catalog.Relations {
		b, ok := p.assemble(rel, wayNodes)
		if !ok {
			continue
		}
		if err := emit(b); err != nil {
			return eris.Wrapf(err, "extract: emit relation %d", rel.RelationID)
		}
	}

	p.log.Info("pass 3 complete",
		zap.Int("relations", catalog.Len()),
		zap.Int("boundaries", p.stats.Boundaries),
		zap.Int("rings_unclosed", p.stats.RingsUnclosed),
		zap.Int("rings_missing_coords", p.stats.RingsMissingCoords),
		zap.Int("missing_member_ways", p.stats.MissingMemberWays),
	)
	return nil
}

func (p *Pipeline) assemble(rel BoundaryRelation, wayNodes map[int64][]int64) (PlaceBoundary, bool) {
	members := make([][]int64, 0, len(rel.OuterWays))
	for _, id := range rel.OuterWays {
		nodes, ok := wayNodes[id]
		if !ok {
			p.stats.MissingMemberWays++
			continue
		}
		members = append(members, nodes)
	}

	ids, ok := AssembleRing(members)
	if !ok {
		p.stats.RingsUnclosed++
		p.log.Debug("ring not closed", zap.Int64("relation", rel.RelationID), zap.String("name", rel.Name))
		return PlaceBoundary{}, false
	}

	ring, missing := p.nodes.Resolve(ids)
	if missing > 0 {
		p.stats.RingsMissingCoords++
		p.log.Debug("ring has unresolved nodes", zap.Int64("relation", rel.RelationID), zap.Int("missing", missing))
		return PlaceBoundary{}, false
	}

	p.stats.Boundaries++
	return PlaceBoundary{
		RelationID: rel.RelationID,
		Name:       rel.Name,
		Kind:       rel.Kind,
		AdminLevel: rel.AdminLevel,
		Ring:       ring,
		Bounds:     geo.BoundsOf(ring),
	}, true
}

// Run executes all three passes in order.
func (p *Pipeline) Run(ctx context.Context, h Handler) error {
	if err := p.CollectNodes(ctx, h.Place, h.Address); err != nil {
		return err
	}
	catalog, err := p.ScanWays(ctx, h.Segment)
	if err != nil {
		return err
	}
	return p.AssembleBoundaries(ctx, catalog, h.Boundary)
}

// Handler bundles the per-entity callbacks used by Run. Segment and Boundary
// are required; Place and Address may be nil.
type Handler struct {
	Place    func(PlaceNode) error
	Address  func(AddressNode) error
	Segment  func(RoadSegment) error
	Boundary func(PlaceBoundary) error
}
