// Package geocode resolves a coordinate to street, suburb, city,
// municipality, and region names using boundary containment with a
// nearest-place fallback.
package geocode

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/geolookup-cli/internal/extract"
	"github.com/sells-group/geolookup-cli/internal/geo"
	"github.com/sells-group/geolookup-cli/internal/store"
)

// Options holds the nearest-place search radii in degrees.
type Options struct {
	StreetRadius float64 `mapstructure:"street_radius"` // ~550 m
	SuburbRadius float64 `mapstructure:"suburb_radius"` // ~5.5 km
	CityRadius   float64 `mapstructure:"city_radius"`   // ~33 km
}

// DefaultOptions returns the standard radii.
func DefaultOptions() Options {
	return Options{StreetRadius: 0.005, SuburbRadius: 0.05, CityRadius: 0.3}
}

// PolygonSuffix marks a tier resolved by boundary containment.
const PolygonSuffix = " (polygon)"

// Tier is one resolved address component.
type Tier struct {
	Name      string  `json:"name"`
	Kind      string  `json:"kind"`
	Distance  float64 `json:"distance_m"`
	Contained bool    `json:"contained"`
}

// Address is the result of a reverse geocode. A nil tier means nothing was
// found for it.
type Address struct {
	Point        geo.Point `json:"point"`
	Street       *Tier     `json:"street,omitempty"` // postal street from address nodes
	Road         *Tier     `json:"road,omitempty"`   // nearest named road; Kind is its highway class
	Suburb       *Tier     `json:"suburb,omitempty"`
	City         *Tier     `json:"city,omitempty"`
	Municipality *Tier     `json:"municipality,omitempty"`
	Region       *Tier     `json:"region,omitempty"`
	HasPlaceData bool      `json:"has_place_data"`
}

// tier describes how one address component is resolved. A zero radius means
// polygon containment only.
type tier struct {
	kinds  []extract.PlaceKind
	radius float64
}

var (
	suburbKinds       = []extract.PlaceKind{extract.KindSuburb, extract.KindNeighbourhood}
	cityKinds         = []extract.PlaceKind{extract.KindCity, extract.KindTown, extract.KindVillage, extract.KindHamlet}
	municipalityKinds = []extract.PlaceKind{extract.KindAdministrative}
	regionKinds       = []extract.PlaceKind{extract.KindRegion}
)

// Engine answers reverse geocoding queries against a read-only dataset. It
// is safe for concurrent use.
type Engine struct {
	reader store.Reader
	opts   Options
	log    *zap.Logger

	placeMu    sync.Mutex
	placeKnown bool
	hasPlace   bool
}

// New returns an engine over reader. Zero radii fall back to defaults.
func New(reader store.Reader, opts Options) *Engine {
	def := DefaultOptions()
	if opts.StreetRadius <= 0 {
		opts.StreetRadius = def.StreetRadius
	}
	if opts.SuburbRadius <= 0 {
		opts.SuburbRadius = def.SuburbRadius
	}
	if opts.CityRadius <= 0 {
		opts.CityRadius = def.CityRadius
	}
	return &Engine{
		reader: reader,
		opts:   opts,
		log:    zap.L().With(zap.String("component", "geocode")),
	}
}

// HasPlaceData reports whether the dataset carries places or boundaries.
// Only a successful probe is cached; a failed one, such as a cancelled
// request, is retried by the next caller.
func (e *Engine) HasPlaceData(ctx context.Context) (bool, error) {
	e.placeMu.Lock()
	defer e.placeMu.Unlock()
	if e.placeKnown {
		return e.hasPlace, nil
	}
	has, err := e.reader.HasPlaceData(ctx)
	if err != nil {
		return false, err
	}
	e.hasPlace, e.placeKnown = has, true
	return has, nil
}

// Resolve reverse-geocodes p. Missing components are nil, never errors;
// errors mean the dataset could not be queried. Road-only datasets resolve
// the road name alone.
func (e *Engine) Resolve(ctx context.Context, p geo.Point) (*Address, error) {
	hasPlace, err := e.HasPlaceData(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: probe place data")
	}
	addr := &Address{Point: p, HasPlaceData: hasPlace}

	if addr.Road, err = e.nearestRoad(ctx, p); err != nil {
		return nil, err
	}
	if !hasPlace {
		return addr, nil
	}

	if addr.Street, err = e.postalStreet(ctx, p); err != nil {
		return nil, err
	}
	if addr.Suburb, err = e.resolveTier(ctx, p, tier{kinds: suburbKinds, radius: e.opts.SuburbRadius}); err != nil {
		return nil, err
	}
	if addr.City, err = e.resolveTier(ctx, p, tier{kinds: cityKinds, radius: e.opts.CityRadius}); err != nil {
		return nil, err
	}
	if addr.Municipality, err = e.resolveTier(ctx, p, tier{kinds: municipalityKinds}); err != nil {
		return nil, err
	}
	if addr.Region, err = e.resolveTier(ctx, p, tier{kinds: regionKinds}); err != nil {
		return nil, err
	}
	return addr, nil
}

// resolveTier tries boundary containment first, smallest bounding box first,
// then the nearest place node within the tier radius.
func (e *Engine) resolveTier(ctx context.Context, p geo.Point, t tier) (*Tier, error) {
	candidates, err := e.reader.BoundariesContaining(ctx, p, t.kinds)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: boundaries")
	}
	for _, b := range candidates {
		if geo.PointInRing(p, b.Ring) {
			return &Tier{Name: b.Name, Kind: string(b.Kind) + PolygonSuffix, Contained: true}, nil
		}
	}

	if t.radius <= 0 {
		return nil, nil
	}
	places, err := e.reader.PlacesNear(ctx, p, t.kinds, t.radius, 1)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: places")
	}
	if len(places) == 0 {
		return nil, nil
	}
	pl := places[0]
	return &Tier{Name: pl.Name, Kind: string(pl.Kind), Distance: p.Distance(pl.Location)}, nil
}

func (e *Engine) postalStreet(ctx context.Context, p geo.Point) (*Tier, error) {
	addrs, err := e.reader.AddressesNear(ctx, p, e.opts.StreetRadius, 1)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: addresses")
	}
	if len(addrs) == 0 {
		return nil, nil
	}
	a := addrs[0]
	return &Tier{Name: a.Street, Kind: "address", Distance: p.Distance(a.Location)}, nil
}

func (e *Engine) nearestRoad(ctx context.Context, p geo.Point) (*Tier, error) {
	segs, err := e.reader.SegmentsNear(ctx, p, e.opts.StreetRadius, true, 1)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: roads")
	}
	if len(segs) == 0 {
		return nil, nil
	}
	s := segs[0]
	return &Tier{Name: s.Name, Kind: s.Highway, Distance: p.Distance(s.Center)}, nil
}
