package tracker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/saviobatista/iss-tracker/internal/display"
	"github.com/saviobatista/iss-tracker/internal/metrics"
	"github.com/saviobatista/iss-tracker/internal/stats"
	"github.com/saviobatista/iss-tracker/internal/telemetry"
	"github.com/saviobatista/iss-tracker/internal/types"
)

const (
	// ErrorToken is written to every display slot when a tick fails
	ErrorToken = "Error"

	DefaultInterval = 5 * time.Second

	sinkTimeout = 5 * time.Second
)

// Fetcher retrieves one telemetry sample
type Fetcher interface {
	Fetch(ctx context.Context) (*types.TelemetrySample, error)
}

// MapView is the map surface driven by the tracker
type MapView interface {
	SetMarkerPosition(lat, lon float64)
	Recenter(lat, lon float64, zoom int)
	Snapshot() types.ViewState
}

// Display is the set of text slots driven by the tracker
type Display interface {
	Write(slot display.Slot, text string)
	WriteAll(text string)
	Snapshot() types.DisplaySnapshot
}

// Sink receives every successful sample after the view is updated
type Sink interface {
	Name() string
	PublishSample(ctx context.Context, sample *types.PublishedSample) error
}

// Notifier receives the result of every tick
type Notifier interface {
	Notify(update types.Update)
}

// Options configures a Tracker
type Options struct {
	Zoom      int
	Interval  time.Duration
	Sinks     []Sink
	Notifiers []Notifier
	Stats     *stats.Stats
	Metrics   *metrics.Collector
}

// Tracker is the update loop. It owns the first-load flag and applies each
// fetched sample to the map view and display.
type Tracker struct {
	fetcher   Fetcher
	view      MapView
	display   Display
	zoom      int
	interval  time.Duration
	runID     string
	sinks     []Sink
	notifiers []Notifier
	stats     *stats.Stats
	metrics   *metrics.Collector

	mu        sync.Mutex
	firstLoad bool
}

// New creates a new tracker
func New(fetcher Fetcher, view MapView, disp Display, opts Options) *Tracker {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Stats == nil {
		opts.Stats = stats.New()
	}
	return &Tracker{
		fetcher:   fetcher,
		view:      view,
		display:   disp,
		zoom:      opts.Zoom,
		interval:  opts.Interval,
		runID:     uuid.New().String(),
		sinks:     opts.Sinks,
		notifiers: opts.Notifiers,
		stats:     opts.Stats,
		metrics:   opts.Metrics,
		firstLoad: true,
	}
}

// RunID identifies this tracker instance on published samples
func (t *Tracker) RunID() string {
	return t.runID
}

// Stats returns the tracker's statistics
func (t *Tracker) Stats() *stats.Stats {
	return t.stats
}

// Start runs Tick now and then on every interval until the returned
// schedule is stopped or ctx is cancelled.
func (t *Tracker) Start(ctx context.Context) *Schedule {
	return Every(ctx, t.interval, func(ctx context.Context) {
		// failures are already logged and shown by Tick
		_ = t.Tick(ctx)
	}, t.skip)
}

func (t *Tracker) skip() {
	t.stats.IncrementSkippedTicks()
	t.metrics.ObserveTick(metrics.ResultSkipped)
	log.Printf("Warning: Skipping tick, previous fetch still in flight")
}

// Tick fetches one sample and applies it. On failure every display slot
// shows ErrorToken and the view is left untouched.
func (t *Tracker) Tick(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	start := time.Now()
	sample, err := t.fetcher.Fetch(ctx)
	elapsed := time.Since(start)

	if err != nil && ctx.Err() != nil {
		// the schedule is stopping; the tick is not counted and the display
		// is left as it was
		return fmt.Errorf("tick abandoned: %w", err)
	}

	t.stats.IncrementTotalTicks()
	t.stats.AddFetchTime(elapsed)

	if err != nil {
		t.metrics.ObserveFetch(elapsed, failureKind(err))
		t.fail(err)
		return fmt.Errorf("failed to fetch telemetry: %w", err)
	}
	t.metrics.ObserveFetch(elapsed, "")

	recentered := t.apply(sample)

	t.stats.IncrementSuccessfulFetches()
	t.stats.UpdateLastSuccessTime()
	t.metrics.ObserveTick(metrics.ResultSuccess)
	t.metrics.SetSample(sample)

	t.notify(types.Update{
		OK:         true,
		View:       t.view.Snapshot(),
		Display:    t.display.Snapshot(),
		Recentered: recentered,
		Time:       sample.FetchedAt,
	})

	t.publish(ctx, sample)

	return nil
}

// apply moves the marker, recenters once, and writes the formatted values.
// It reports whether the view was recentered.
func (t *Tracker) apply(s *types.TelemetrySample) bool {
	t.view.SetMarkerPosition(s.Latitude, s.Longitude)

	recentered := false
	if t.firstLoad {
		t.view.Recenter(s.Latitude, s.Longitude, t.zoom)
		t.firstLoad = false
		recentered = true
		t.stats.IncrementRecenters()
	}

	t.display.Write(display.SlotLatitude, FormatCoordinate(s.Latitude))
	t.display.Write(display.SlotLongitude, FormatCoordinate(s.Longitude))
	t.display.Write(display.SlotVelocity, FormatMeasure(s.Velocity))
	t.display.Write(display.SlotAltitude, FormatMeasure(s.Altitude))

	return recentered
}

func (t *Tracker) fail(err error) {
	log.Printf("Failed to fetch ISS data: %v", err)

	t.display.WriteAll(ErrorToken)

	t.stats.IncrementFailedFetches()
	t.metrics.ObserveTick(metrics.ResultFailure)

	t.notify(types.Update{
		OK:      false,
		View:    t.view.Snapshot(),
		Display: t.display.Snapshot(),
		Error:   err.Error(),
		Time:    time.Now().UTC(),
	})
}

func (t *Tracker) notify(update types.Update) {
	for _, n := range t.notifiers {
		n.Notify(update)
	}
}

func (t *Tracker) publish(ctx context.Context, s *types.TelemetrySample) {
	if len(t.sinks) == 0 {
		return
	}

	msg := &types.PublishedSample{RunID: t.runID, Sample: *s}
	for _, sink := range t.sinks {
		sinkCtx, cancel := context.WithTimeout(ctx, sinkTimeout)
		err := sink.PublishSample(sinkCtx, msg)
		cancel()

		if err != nil {
			log.Printf("Warning: Failed to publish sample to %s: %v", sink.Name(), err)
			t.stats.IncrementSinkErrors()
			t.metrics.ObserveSinkError(sink.Name())
			continue
		}
		t.stats.IncrementPublishedSamples()
	}
}

// FormatCoordinate renders a latitude or longitude with 4 decimals
func FormatCoordinate(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}

// FormatMeasure renders a velocity or altitude with 2 decimals
func FormatMeasure(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func failureKind(err error) string {
	var fetchErr *telemetry.FetchError
	if errors.As(err, &fetchErr) {
		return fetchErr.Kind.String()
	}
	return "unknown"
}
