// Package api serves speed-limit and reverse-geocoding lookups over HTTP.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/geolookup-cli/internal/geo"
	"github.com/sells-group/geolookup-cli/internal/geocode"
	"github.com/sells-group/geolookup-cli/internal/lookup"
)

// Geocoder resolves addresses and matches street names.
type Geocoder interface {
	Resolve(ctx context.Context, p geo.Point) (*geocode.Address, error)
	MatchNearby(ctx context.Context, expected string, p geo.Point, radiusMeters float64) (*geocode.Match, error)
}

// Roads answers speed-limit and road queries.
type Roads interface {
	SpeedLimit(ctx context.Context, p geo.Point) (int, bool, error)
	RoadInfo(ctx context.Context, p geo.Point) (*lookup.RoadInfo, error)
}

// Defaults for match requests.
const (
	DefaultMatchRadius = 50.0
	MaxMatchRadius     = 2000.0
)

// Options configures a Server.
type Options struct {
	CORSOrigins []string
	Cache       *ResultCache
}

// Server holds the handlers. Roads is required; Geocoder may be nil for
// road-only deployments, in which case geocode and match return 404.
type Server struct {
	roads    Roads
	geocoder Geocoder
	cache    *ResultCache
	origins  []string
	log      *zap.Logger
}

// NewServer wires a Server.
func NewServer(roads Roads, geocoder Geocoder, opts Options) *Server {
	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return &Server{
		roads:    roads,
		geocoder: geocoder,
		cache:    opts.Cache,
		origins:  origins,
		log:      zap.L().With(zap.String("component", "api")),
	}
}

// Routes builds the chi router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.accessLog)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Route("/v1", func(r chi.Router) {
		r.Get("/speed", s.handleSpeed)
		r.Get("/road", s.handleRoad)
		r.Get("/geocode", s.handleGeocode)
		r.Get("/match", s.handleMatch)
		r.Get("/cache", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, s.cache.Stats())
		})
	})
	return r
}

// speedResponse is the body of /v1/speed.
type speedResponse struct {
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
	Found    bool    `json:"found"`
	SpeedKmh int     `json:"speed_limit_kmh,omitempty"`
}

func (s *Server) handleSpeed(w http.ResponseWriter, r *http.Request) {
	p, ok := pointParam(w, r)
	if !ok {
		return
	}
	s.cached(w, "speed/"+pointKey(p), func() (any, error) {
		kmh, found, err := s.roads.SpeedLimit(r.Context(), p)
		if err != nil {
			return nil, err
		}
		return speedResponse{Lat: p.Lat, Lon: p.Lon, Found: found, SpeedKmh: kmh}, nil
	})
}

func (s *Server) handleRoad(w http.ResponseWriter, r *http.Request) {
	p, ok := pointParam(w, r)
	if !ok {
		return
	}
	s.cached(w, "road/"+pointKey(p), func() (any, error) {
		info, err := s.roads.RoadInfo(r.Context(), p)
		if err != nil {
			return nil, err
		}
		return map[string]any{"road": info}, nil
	})
}

func (s *Server) handleGeocode(w http.ResponseWriter, r *http.Request) {
	if s.geocoder == nil {
		writeError(w, http.StatusNotFound, "geocoding is not enabled")
		return
	}
	p, ok := pointParam(w, r)
	if !ok {
		return
	}
	s.cached(w, "geocode/"+pointKey(p), func() (any, error) {
		return s.geocoder.Resolve(r.Context(), p)
	})
}

func (s *Server) handleMatch(w http.ResponseWriter, r *http.Request) {
	if s.geocoder == nil {
		writeError(w, http.StatusNotFound, "geocoding is not enabled")
		return
	}
	p, ok := pointParam(w, r)
	if !ok {
		return
	}
	street := strings.TrimSpace(r.URL.Query().Get("street"))
	if street == "" {
		writeError(w, http.StatusBadRequest, "street is required")
		return
	}
	radius := DefaultMatchRadius
	if raw := r.URL.Query().Get("radius"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v <= 0 || v > MaxMatchRadius {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("radius must be in (0, %.0f] meters", MaxMatchRadius))
			return
		}
		radius = v
	}

	m, err := s.geocoder.MatchNearby(r.Context(), street, p, radius)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"street": street, "radius_m": radius, "match": m})
}

// cached serves key from the cache or computes, encodes and stores it.
func (s *Server) cached(w http.ResponseWriter, key string, compute func() (any, error)) {
	if data := s.cache.Get(key); data != nil {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Cache", "hit")
		_, _ = w.Write(data)
		return
	}

	v, err := compute()
	if err != nil {
		s.log.Error("api: lookup failed", zap.String("key", key), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		s.log.Error("api: encode response", zap.String("key", key), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "encode failed")
		return
	}
	s.cache.Put(key, data)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Cache", "miss")
	_, _ = w.Write(data)
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, err error) {
	s.log.Error("api: request failed", zap.String("path", r.URL.Path), zap.Error(err))
	writeError(w, http.StatusInternalServerError, "lookup failed")
}

// accessLog records method, path, status, bytes and duration per request.
func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("http access",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

// pointParam parses and validates lat/lon query parameters, writing a 400
// when they are missing or out of range.
func pointParam(w http.ResponseWriter, r *http.Request) (geo.Point, bool) {
	p, err := parsePoint(r.URL.Query().Get("lat"), r.URL.Query().Get("lon"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return geo.Point{}, false
	}
	return p, true
}

func parsePoint(latRaw, lonRaw string) (geo.Point, error) {
	if latRaw == "" || lonRaw == "" {
		return geo.Point{}, eris.New("lat and lon are required")
	}
	lat, err := strconv.ParseFloat(latRaw, 64)
	if err != nil {
		return geo.Point{}, eris.New("lat must be a number")
	}
	lon, err := strconv.ParseFloat(lonRaw, 64)
	if err != nil {
		return geo.Point{}, eris.New("lon must be a number")
	}
	p := geo.Point{Lat: lat, Lon: lon}
	if !p.Valid() {
		return geo.Point{}, eris.New("coordinate out of range")
	}
	return p, nil
}

func pointKey(p geo.Point) string {
	return strconv.FormatFloat(p.Lat, 'f', 6, 64) + "," + strconv.FormatFloat(p.Lon, 'f', 6, 64)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
