package tracker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/saviobatista/iss-tracker/internal/display"
	"github.com/saviobatista/iss-tracker/internal/mapview"
	"github.com/saviobatista/iss-tracker/internal/telemetry"
	"github.com/saviobatista/iss-tracker/internal/testutils"
	"github.com/saviobatista/iss-tracker/internal/types"
)

// UNIT TESTS WITH MOCKS

type fetchResult struct {
	sample *types.TelemetrySample
	err    error
}

type mockFetcher struct {
	mu      sync.Mutex
	results []fetchResult
	calls   int
}

func (m *mockFetcher) Fetch(ctx context.Context) (*types.TelemetrySample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.calls >= len(m.results) {
		m.calls++
		return nil, fmt.Errorf("no scripted result")
	}
	r := m.results[m.calls]
	m.calls++
	return r.sample, r.err
}

type mockSink struct {
	name      string
	err       error
	mu        sync.Mutex
	published []*types.PublishedSample
}

func (m *mockSink) Name() string { return m.name }

func (m *mockSink) PublishSample(ctx context.Context, s *types.PublishedSample) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.published = append(m.published, s)
	return nil
}

type mockNotifier struct {
	mu      sync.Mutex
	updates []types.Update
}

func (m *mockNotifier) Notify(u types.Update) {
	m.mu.Lock()
	m.updates = append(m.updates, u)
	m.mu.Unlock()
}

func newTestTracker(f Fetcher, opts Options) (*Tracker, *mapview.View, *display.Sink) {
	view := mapview.New(mapview.Options{Zoom: 3})
	view.CreateMarker(types.LatLng{}, mapview.DefaultIcon(), mapview.DefaultPopup)
	sink := display.New()
	if opts.Zoom == 0 {
		opts.Zoom = 3
	}
	return New(f, view, sink, opts), view, sink
}

func ok(s *types.TelemetrySample) fetchResult { return fetchResult{sample: s} }

func failed(err error) fetchResult { return fetchResult{err: err} }

func TestNew(t *testing.T) {
	tr, _, _ := newTestTracker(&mockFetcher{}, Options{})

	if tr.interval != DefaultInterval {
		t.Errorf("Expected default interval %s, got %s", DefaultInterval, tr.interval)
	}
	if !tr.firstLoad {
		t.Error("Expected firstLoad to start true")
	}
	if tr.stats == nil {
		t.Error("Expected stats to be initialized")
	}
	if tr.RunID() == "" {
		t.Error("Expected a run id")
	}
}

func TestTracker_Tick_FirstSuccess(t *testing.T) {
	f := &mockFetcher{results: []fetchResult{ok(testutils.MockSample(51.5, -0.12, 27600.4, 408.32))}}
	tr, view, sink := newTestTracker(f, Options{})

	if err := tr.Tick(context.Background()); err != nil {
		t.Fatalf("Tick() failed: %v", err)
	}

	state := view.Snapshot()
	if state.Marker != (types.LatLng{Lat: 51.5, Lng: -0.12}) {
		t.Errorf("Expected marker at (51.5, -0.12), got %v", state.Marker)
	}
	if !state.Centered || state.Center != (types.LatLng{Lat: 51.5, Lng: -0.12}) || state.Zoom != 3 {
		t.Errorf("Expected view recentered on station, got %+v", state)
	}
	if view.Recenters() != 1 {
		t.Errorf("Expected 1 recenter, got %d", view.Recenters())
	}

	snap := sink.Snapshot()
	want := types.DisplaySnapshot{Latitude: "51.5000", Longitude: "-0.1200", Velocity: "27600.40", Altitude: "408.32"}
	if snap != want {
		t.Errorf("Display = %+v, want %+v", snap, want)
	}
}

func TestTracker_Tick_LastWriteWinsAndSingleRecenter(t *testing.T) {
	f := &mockFetcher{results: []fetchResult{
		ok(testutils.MockSample(10, 20, 27000, 400)),
		ok(testutils.MockSample(-30, 40, 27100, 410)),
		ok(testutils.MockSample(-35, 45, 27200, 420)),
	}}
	tr, view, _ := newTestTracker(f, Options{})

	for i := 0; i < 3; i++ {
		if err := tr.Tick(context.Background()); err != nil {
			t.Fatalf("Tick() %d failed: %v", i, err)
		}
	}

	state := view.Snapshot()
	if state.Marker != (types.LatLng{Lat: -35, Lng: 45}) {
		t.Errorf("Expected marker at last sample, got %v", state.Marker)
	}
	if state.Center != (types.LatLng{Lat: 10, Lng: 20}) {
		t.Errorf("Expected viewport to stay at first sample, got %v", state.Center)
	}
	if view.Recenters() != 1 {
		t.Errorf("Expected exactly 1 recenter, got %d", view.Recenters())
	}
	if got := tr.Stats().GetStats().Recenters; got != 1 {
		t.Errorf("Expected stats to count 1 recenter, got %d", got)
	}
}

func TestTracker_Tick_FailureBeforeFirstSuccessDoesNotRecenter(t *testing.T) {
	f := &mockFetcher{results: []fetchResult{
		failed(&telemetry.FetchError{Kind: telemetry.KindNetwork, Err: errors.New("refused")}),
		ok(testutils.MockSample(1, 2, 3, 4)),
	}}
	tr, view, sink := newTestTracker(f, Options{})

	if err := tr.Tick(context.Background()); err == nil {
		t.Fatal("Expected first tick to fail")
	}
	if view.Recenters() != 0 || view.Snapshot().Centered {
		t.Error("Expected no recenter after failure")
	}
	if sink.Snapshot().Latitude != ErrorToken {
		t.Errorf("Expected error token, got %q", sink.Snapshot().Latitude)
	}

	if err := tr.Tick(context.Background()); err != nil {
		t.Fatalf("Second tick failed: %v", err)
	}
	if view.Recenters() != 1 {
		t.Errorf("Expected recenter on first success, got %d", view.Recenters())
	}
	if sink.Snapshot().Latitude != "1.0000" {
		t.Errorf("Expected display to recover, got %q", sink.Snapshot().Latitude)
	}
}

func TestTracker_Tick_FailureKeepsMarkerAndViewport(t *testing.T) {
	f := &mockFetcher{results: []fetchResult{
		ok(testutils.MockSample(51.5, -0.12, 27600.4, 408.32)),
		failed(&telemetry.FetchError{Kind: telemetry.KindStatus, StatusCode: 500, Status: "500 Internal Server Error"}),
	}}
	tr, view, sink := newTestTracker(f, Options{})

	_ = tr.Tick(context.Background())
	before := view.Snapshot()

	err := tr.Tick(context.Background())
	var fetchErr *telemetry.FetchError
	if !errors.As(err, &fetchErr) || fetchErr.StatusCode != 500 {
		t.Fatalf("Expected wrapped status FetchError, got %v", err)
	}

	if after := view.Snapshot(); after != before {
		t.Errorf("Expected view unchanged, before %+v after %+v", before, after)
	}
	snap := sink.Snapshot()
	for _, got := range []string{snap.Latitude, snap.Longitude, snap.Velocity, snap.Altitude} {
		if got != ErrorToken {
			t.Errorf("Expected every slot to show %q, got %+v", ErrorToken, snap)
			break
		}
	}
	if tr.firstLoad {
		t.Error("Expected failure not to reset firstLoad")
	}
}

func TestTracker_Tick_AbandonedOnCancel(t *testing.T) {
	f := &mockFetcher{results: []fetchResult{
		ok(testutils.MockSample(1, 2, 3, 4)),
		failed(context.Canceled),
	}}
	tr, _, sink := newTestTracker(f, Options{})
	_ = tr.Tick(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := tr.Tick(ctx); err == nil {
		t.Fatal("Expected error from abandoned tick")
	}
	if sink.Snapshot().Latitude != "1.0000" {
		t.Errorf("Expected display untouched on shutdown, got %q", sink.Snapshot().Latitude)
	}

	snap := tr.Stats().GetStats()
	if snap.TotalTicks != 1 || snap.SuccessfulFetches != 1 || snap.FailedFetches != 0 {
		t.Errorf("Expected abandoned tick not to be counted, got %+v", snap)
	}
}

func TestTracker_Tick_CancelledMidRequestKeepsTotalsConsistent(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cancel()
		<-r.Context().Done()
	}))
	defer server.Close()

	tr, _, sink := newTestTracker(telemetry.New(server.URL, time.Second), Options{})

	if err := tr.Tick(ctx); err == nil {
		t.Fatal("Expected error from cancelled tick")
	}

	snap := tr.Stats().GetStats()
	if snap.TotalTicks != snap.SuccessfulFetches+snap.FailedFetches {
		t.Errorf("Expected total to equal successes plus failures, got %+v", snap)
	}
	if snap.TotalTicks != 0 {
		t.Errorf("Expected cancelled tick not to be counted, got %d", snap.TotalTicks)
	}
	if got := sink.Snapshot().Latitude; got != "" {
		t.Errorf("Expected display untouched, got %q", got)
	}
}

// recordingDisplay records how the tracker writes to the display
type recordingDisplay struct {
	*display.Sink
	writeAll []string
}

func (r *recordingDisplay) WriteAll(text string) {
	r.writeAll = append(r.writeAll, text)
	r.Sink.WriteAll(text)
}

func TestTracker_Tick_FailureWritesErrorTokenToAllSlots(t *testing.T) {
	f := &mockFetcher{results: []fetchResult{
		failed(&telemetry.FetchError{Kind: telemetry.KindDecode, Err: errors.New("bad json")}),
	}}
	view := mapview.New(mapview.Options{Zoom: 3})
	rec := &recordingDisplay{Sink: display.New()}
	tr := New(f, view, rec, Options{Zoom: 3})

	_ = tr.Tick(context.Background())

	if len(rec.writeAll) != 1 || rec.writeAll[0] != ErrorToken {
		t.Errorf("Expected a single WriteAll(%q), got %v", ErrorToken, rec.writeAll)
	}
	if rec.Snapshot().Altitude != ErrorToken {
		t.Errorf("Expected error token in altitude, got %+v", rec.Snapshot())
	}
}

func TestTracker_Tick_Sinks(t *testing.T) {
	good := &mockSink{name: "good"}
	bad := &mockSink{name: "bad", err: errors.New("broker down")}
	f := &mockFetcher{results: []fetchResult{ok(testutils.MockSample(1, 2, 3, 4))}}
	tr, _, _ := newTestTracker(f, Options{Sinks: []Sink{bad, good}})

	if err := tr.Tick(context.Background()); err != nil {
		t.Fatalf("Expected sink failure not to fail the tick, got %v", err)
	}

	if len(good.published) != 1 {
		t.Fatalf("Expected 1 published sample, got %d", len(good.published))
	}
	if good.published[0].RunID != tr.RunID() {
		t.Errorf("Expected run id %s, got %s", tr.RunID(), good.published[0].RunID)
	}
	if good.published[0].Sample.Latitude != 1 {
		t.Errorf("Unexpected published sample %+v", good.published[0].Sample)
	}

	snap := tr.Stats().GetStats()
	if snap.PublishedSamples != 1 || snap.SinkErrors != 1 {
		t.Errorf("Expected 1 published and 1 sink error, got %+v", snap)
	}
}

func TestTracker_Tick_SinksNotCalledOnFailure(t *testing.T) {
	s := &mockSink{name: "s"}
	f := &mockFetcher{results: []fetchResult{failed(errors.New("boom"))}}
	tr, _, _ := newTestTracker(f, Options{Sinks: []Sink{s}})

	_ = tr.Tick(context.Background())
	if len(s.published) != 0 {
		t.Errorf("Expected no publication on failure, got %d", len(s.published))
	}
}

func TestTracker_Tick_Notifies(t *testing.T) {
	n := &mockNotifier{}
	f := &mockFetcher{results: []fetchResult{
		ok(testutils.MockSample(51.5, -0.12, 27600.4, 408.32)),
		ok(testutils.MockSample(52, -1, 27600, 409)),
		failed(errors.New("boom")),
	}}
	tr, _, _ := newTestTracker(f, Options{Notifiers: []Notifier{n}})

	for i := 0; i < 3; i++ {
		_ = tr.Tick(context.Background())
	}

	if len(n.updates) != 3 {
		t.Fatalf("Expected 3 updates, got %d", len(n.updates))
	}
	if !n.updates[0].OK || !n.updates[0].Recentered {
		t.Errorf("Expected first update to be a recentering success, got %+v", n.updates[0])
	}
	if n.updates[1].Recentered {
		t.Error("Expected second update not to recenter")
	}
	if n.updates[1].Display.Latitude != "52.0000" {
		t.Errorf("Unexpected display in update: %+v", n.updates[1].Display)
	}
	if n.updates[2].OK || n.updates[2].Error == "" || n.updates[2].Display.Altitude != ErrorToken {
		t.Errorf("Expected failure update, got %+v", n.updates[2])
	}
}

func TestTracker_Tick_Stats(t *testing.T) {
	f := &mockFetcher{results: []fetchResult{
		ok(testutils.MockSample(1, 2, 3, 4)),
		failed(errors.New("boom")),
		failed(errors.New("boom")),
	}}
	tr, _, _ := newTestTracker(f, Options{})
	for i := 0; i < 3; i++ {
		_ = tr.Tick(context.Background())
	}

	snap := tr.Stats().GetStats()
	if snap.TotalTicks != 3 || snap.SuccessfulFetches != 1 || snap.FailedFetches != 2 {
		t.Errorf("Unexpected stats: %+v", snap)
	}
	if snap.LastSuccessTime.IsZero() {
		t.Error("Expected LastSuccessTime to be set")
	}
}

func TestFormatting(t *testing.T) {
	tests := []struct {
		name   string
		format func(float64) string
		in     float64
		want   string
	}{
		{"coordinate truncates precision", FormatCoordinate, 51.50741, "51.5074"},
		{"coordinate pads", FormatCoordinate, -12.3, "-12.3000"},
		{"coordinate negative small", FormatCoordinate, -0.12, "-0.1200"},
		{"coordinate rounds", FormatCoordinate, 10.12345, "10.1235"},
		{"coordinate integer", FormatCoordinate, 0, "0.0000"},
		{"measure pads", FormatMeasure, 27600.4, "27600.40"},
		{"measure exact", FormatMeasure, 408.32, "408.32"},
		{"measure rounds", FormatMeasure, 27559.876, "27559.88"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.format(tt.in); got != tt.want {
				t.Errorf("format(%v) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

// END-TO-END WITH A MOCKED ENDPOINT

func TestTracker_EndToEnd_SuccessThenServerError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			_, _ = w.Write([]byte(`{"latitude": 51.5, "longitude": -0.12, "velocity": 27600.4, "altitude": 408.32}`))
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	tr, view, sink := newTestTracker(telemetry.New(srv.URL, time.Second), Options{})

	// tick 1
	if err := tr.Tick(context.Background()); err != nil {
		t.Fatalf("Tick 1 failed: %v", err)
	}
	if view.Snapshot().Marker != (types.LatLng{Lat: 51.5, Lng: -0.12}) {
		t.Errorf("Unexpected marker after tick 1: %v", view.Snapshot().Marker)
	}
	if view.Recenters() != 1 {
		t.Errorf("Expected one recenter after tick 1, got %d", view.Recenters())
	}
	want := types.DisplaySnapshot{Latitude: "51.5000", Longitude: "-0.1200", Velocity: "27600.40", Altitude: "408.32"}
	if got := sink.Snapshot(); got != want {
		t.Errorf("Display after tick 1 = %+v, want %+v", got, want)
	}

	// tick 2
	if err := tr.Tick(context.Background()); err == nil {
		t.Fatal("Expected tick 2 to fail")
	}
	errWant := types.DisplaySnapshot{Latitude: ErrorToken, Longitude: ErrorToken, Velocity: ErrorToken, Altitude: ErrorToken}
	if got := sink.Snapshot(); got != errWant {
		t.Errorf("Display after tick 2 = %+v, want %+v", got, errWant)
	}
	if view.Snapshot().Marker != (types.LatLng{Lat: 51.5, Lng: -0.12}) {
		t.Errorf("Expected marker to stay at tick 1 position, got %v", view.Snapshot().Marker)
	}
	if view.Recenters() != 1 {
		t.Errorf("Expected still one recenter, got %d", view.Recenters())
	}
}

func TestTracker_Start(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"latitude": 1, "longitude": 2, "velocity": 3, "altitude": 4}`))
	}))
	defer srv.Close()

	tr, view, _ := newTestTracker(telemetry.New(srv.URL, time.Second), Options{Interval: 10 * time.Millisecond})

	schedule := tr.Start(context.Background())
	if err := testutils.WaitForCondition(func() bool { return calls.Load() >= 3 }, 2*time.Second); err != nil {
		t.Fatalf("Expected repeated ticks: %v", err)
	}
	schedule.Stop()

	if view.Recenters() != 1 {
		t.Errorf("Expected a single recenter across ticks, got %d", view.Recenters())
	}

	stopped := calls.Load()
	time.Sleep(30 * time.Millisecond)
	if calls.Load() != stopped {
		t.Error("Expected no ticks after Stop")
	}
}
