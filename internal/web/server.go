package web

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/saviobatista/iss-tracker/internal/mapview"
	"github.com/saviobatista/iss-tracker/internal/stats"
	"github.com/saviobatista/iss-tracker/internal/types"
)

const (
	readTimeout        = 5 * time.Second
	defaultSampleLimit = 100
	maxSampleLimit     = 1000
	defaultStatsWindow = 24 * time.Hour
)

//go:embed static
var staticFiles embed.FS

// View is the map surface rendered by the page
type View interface {
	Snapshot() types.ViewState
	Marker() (mapview.Marker, bool)
	TileLayer() mapview.TileLayer
}

// Display is the source of the text slots
type Display interface {
	Snapshot() types.DisplaySnapshot
}

// LatestSource serves the last sample and view kept by a cache
type LatestSource interface {
	GetLatestSample(ctx context.Context) (*types.PublishedSample, error)
	GetViewState(ctx context.Context) (*types.ViewState, error)
}

// HistorySource serves stored samples and tracker statistics
type HistorySource interface {
	GetRecentSamples(ctx context.Context, limit int) ([]*types.PublishedSample, error)
	GetTrackerStats(start, end time.Time) ([]stats.Snapshot, error)
}

// Latest is the body of /api/latest
type Latest struct {
	Sample *types.PublishedSample `json:"sample"`
	View   *types.ViewState       `json:"view,omitempty"`
}

// State is everything the page needs to draw itself
type State struct {
	Tiles   mapview.TileLayer     `json:"tiles"`
	Marker  *mapview.Marker       `json:"marker,omitempty"`
	View    types.ViewState       `json:"view"`
	Display types.DisplaySnapshot `json:"display"`
}

// Options configures a Server
type Options struct {
	Addr    string
	Metrics http.Handler
	// Latest and History enable the read routes; nil leaves them unrouted
	Latest  LatestSource
	History HistorySource
}

// Server serves the tracker page, its state, and live updates
type Server struct {
	view    View
	display Display
	hub     *Hub
	metrics http.Handler
	latest  LatestSource
	history HistorySource
	srv     *http.Server
}

// New creates a server. Nothing listens until Start is called.
func New(view View, disp Display, hub *Hub, opts Options) *Server {
	s := &Server{
		view:    view,
		display: disp,
		hub:     hub,
		metrics: opts.Metrics,
		latest:  opts.Latest,
		history: opts.History,
	}
	s.srv = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the routed handler
func (s *Server) Handler() http.Handler {
	static, err := fs.Sub(staticFiles, "static")
	if err != nil {
		panic(fmt.Sprintf("embedded assets missing: %v", err))
	}

	mux := http.NewServeMux()
	mux.Handle("GET /", http.FileServer(http.FS(static)))
	mux.HandleFunc("GET /api/state", s.handleState)
	mux.HandleFunc("GET "+mapview.CustomIconURL, s.handleIcon)
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.Handle("GET /ws", s.hub)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}
	if s.latest != nil {
		mux.HandleFunc("GET /api/latest", s.handleLatest)
	}
	if s.history != nil {
		mux.HandleFunc("GET /api/samples", s.handleSamples)
		mux.HandleFunc("GET /api/stats", s.handleStats)
	}
	return mux
}

// State returns the current page state
func (s *Server) State() State {
	state := State{
		Tiles:   s.view.TileLayer(),
		View:    s.view.Snapshot(),
		Display: s.display.Snapshot(),
	}
	if m, ok := s.view.Marker(); ok {
		state.Marker = &m
	}
	return state
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.State())
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readTimeout)
	defer cancel()

	sample, err := s.latest.GetLatestSample(ctx)
	if err != nil {
		log.Printf("Warning: Failed to read latest sample: %v", err)
		http.Error(w, "latest sample unavailable", http.StatusBadGateway)
		return
	}
	if sample == nil {
		http.Error(w, "no sample yet", http.StatusNotFound)
		return
	}

	view, err := s.latest.GetViewState(ctx)
	if err != nil {
		log.Printf("Warning: Failed to read view state: %v", err)
		view = nil
	}
	writeJSON(w, Latest{Sample: sample, View: view})
}

func (s *Server) handleSamples(w http.ResponseWriter, r *http.Request) {
	limit := defaultSampleLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxSampleLimit {
			http.Error(w, fmt.Sprintf("limit must be 1..%d", maxSampleLimit), http.StatusBadRequest)
			return
		}
		limit = n
	}

	ctx, cancel := context.WithTimeout(r.Context(), readTimeout)
	defer cancel()
	samples, err := s.history.GetRecentSamples(ctx, limit)
	if err != nil {
		log.Printf("Warning: Failed to read samples: %v", err)
		http.Error(w, "samples unavailable", http.StatusBadGateway)
		return
	}
	if samples == nil {
		samples = []*types.PublishedSample{}
	}
	writeJSON(w, samples)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	since := defaultStatsWindow
	if v := r.URL.Query().Get("since"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			http.Error(w, "since must be a positive duration", http.StatusBadRequest)
			return
		}
		since = d
	}

	end := time.Now()
	snaps, err := s.history.GetTrackerStats(end.Add(-since), end)
	if err != nil {
		log.Printf("Warning: Failed to read tracker stats: %v", err)
		http.Error(w, "stats unavailable", http.StatusBadGateway)
		return
	}
	if snaps == nil {
		snaps = []stats.Snapshot{}
	}
	writeJSON(w, snaps)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Warning: json encode error: %v", err)
	}
}

func (s *Server) handleIcon(w http.ResponseWriter, r *http.Request) {
	m, ok := s.view.Marker()
	if !ok || m.Icon.Default || len(m.Icon.Data) == 0 {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", m.Icon.ContentType)
	_, _ = w.Write(m.Icon.Data)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok\n"))
}

// Start listens and serves until Shutdown is called
func (s *Server) Start() error {
	log.Printf("Web server listening on %s", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to serve: %w", err)
	}
	return nil
}

// Shutdown closes live connections and stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Close()
	return s.srv.Shutdown(ctx)
}
