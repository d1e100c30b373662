package metrics

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/saviobatista/iss-tracker/internal/types"
)

// Tick results used as the "result" label.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultSkipped = "skipped"
)

// Collector bundles Prometheus metrics for the update loop and its sinks.
// A nil *Collector is valid and records nothing.
type Collector struct {
	gatherer   prometheus.Gatherer
	registerer prometheus.Registerer

	Ticks         *prometheus.CounterVec
	FetchFailures *prometheus.CounterVec
	FetchDuration prometheus.Histogram
	SinkErrors    *prometheus.CounterVec

	Latitude  prometheus.Gauge
	Longitude prometheus.Gauge
	Velocity  prometheus.Gauge
	Altitude  prometheus.Gauge
}

// NewCollector registers tracker metrics against reg, defaulting to the
// global Prometheus registry when nil.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	ticks, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "iss_tracker_ticks_total",
		Help: "Update loop ticks, labeled by result (success, failure, skipped).",
	}, []string{"result"}), "iss_tracker_ticks_total")
	if err != nil {
		return nil, err
	}

	failures, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "iss_tracker_fetch_failures_total",
		Help: "Failed telemetry fetches, labeled by failure kind.",
	}, []string{"kind"}), "iss_tracker_fetch_failures_total")
	if err != nil {
		return nil, err
	}

	duration, err := register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "iss_tracker_fetch_duration_seconds",
		Help:    "Telemetry fetch latency in seconds.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}), "iss_tracker_fetch_duration_seconds")
	if err != nil {
		return nil, err
	}

	sinkErrors, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "iss_tracker_sink_errors_total",
		Help: "Failed sample publications, labeled by sink.",
	}, []string{"sink"}), "iss_tracker_sink_errors_total")
	if err != nil {
		return nil, err
	}

	gauges := make([]prometheus.Gauge, 0, 4)
	for _, opts := range []prometheus.GaugeOpts{
		{Name: "iss_latitude_degrees", Help: "Latest station latitude."},
		{Name: "iss_longitude_degrees", Help: "Latest station longitude."},
		{Name: "iss_velocity_kmh", Help: "Latest station velocity in km/h."},
		{Name: "iss_altitude_km", Help: "Latest station altitude in km."},
	} {
		g, err := register[prometheus.Gauge](reg, prometheus.NewGauge(opts), opts.Name)
		if err != nil {
			return nil, err
		}
		gauges = append(gauges, g)
	}

	return &Collector{
		gatherer:      gatherer,
		registerer:    reg,
		Ticks:         ticks,
		FetchFailures: failures,
		FetchDuration: duration,
		SinkErrors:    sinkErrors,
		Latitude:      gauges[0],
		Longitude:     gauges[1],
		Velocity:      gauges[2],
		Altitude:      gauges[3],
	}, nil
}

// ObserveTick counts one tick with the given result
func (c *Collector) ObserveTick(result string) {
	if c == nil {
		return
	}
	c.Ticks.WithLabelValues(result).Inc()
}

// ObserveFetch records fetch latency and, when kind is non-empty, a failure
func (c *Collector) ObserveFetch(d time.Duration, kind string) {
	if c == nil {
		return
	}
	c.FetchDuration.Observe(d.Seconds())
	if kind != "" {
		c.FetchFailures.WithLabelValues(kind).Inc()
	}
}

// SetSample updates the position gauges
func (c *Collector) SetSample(s *types.TelemetrySample) {
	if c == nil || s == nil {
		return
	}
	c.Latitude.Set(s.Latitude)
	c.Longitude.Set(s.Longitude)
	c.Velocity.Set(s.Velocity)
	c.Altitude.Set(s.Altitude)
}

// ObserveSinkError counts a failed publication to sink
func (c *Collector) ObserveSinkError(sink string) {
	if c == nil {
		return
	}
	c.SinkErrors.WithLabelValues(sink).Inc()
}

// HubSource reports the state of the live update hub
type HubSource interface {
	Clients() int
	Dropped() uint64
}

// WatchHub exports the hub's connected clients and dropped updates
func (c *Collector) WatchHub(hub HubSource) error {
	if c == nil {
		return nil
	}
	if _, err := register(c.registerer, prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "iss_tracker_ws_clients",
		Help: "Connected live update clients.",
	}, func() float64 { return float64(hub.Clients()) }), "iss_tracker_ws_clients"); err != nil {
		return err
	}
	if _, err := register(c.registerer, prometheus.NewCounterFunc(prometheus.CounterOpts{
		Name: "iss_tracker_ws_dropped_updates_total",
		Help: "Updates dropped because a client's send buffer was full.",
	}, func() float64 { return float64(hub.Dropped()) }), "iss_tracker_ws_dropped_updates_total"); err != nil {
		return err
	}
	return nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *Collector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// register adds c to reg, or returns the collector already registered under
// the same descriptor when it has the same type.
func register[T prometheus.Collector](reg prometheus.Registerer, c T, name string) (T, error) {
	err := reg.Register(c)
	if err == nil {
		return c, nil
	}
	var zero T
	var are prometheus.AlreadyRegisteredError
	if !errors.As(err, &are) {
		return zero, err
	}
	existing, ok := are.ExistingCollector.(T)
	if !ok {
		return zero, fmt.Errorf("collector %s already registered with incompatible type", name)
	}
	return existing, nil
}
