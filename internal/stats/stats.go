package stats

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// Store persists statistics snapshots
type Store interface {
	StoreTrackerStats(snap Snapshot) error
}

// Stats tracks update loop statistics
type Stats struct {
	// Tick counts
	TotalTicks        uint64
	SuccessfulFetches uint64
	FailedFetches     uint64
	SkippedTicks      uint64
	Recenters         uint64

	// Sink counts
	PublishedSamples uint64
	SinkErrors       uint64

	// Timing
	LastSuccessTime time.Time
	FetchTime       time.Duration
	startTime       time.Time

	store Store

	mu sync.RWMutex
}

// Snapshot is a point-in-time copy of the statistics
type Snapshot struct {
	Time              time.Time     `json:"time"`
	TotalTicks        uint64        `json:"total_ticks"`
	SuccessfulFetches uint64        `json:"successful_fetches"`
	FailedFetches     uint64        `json:"failed_fetches"`
	SkippedTicks      uint64        `json:"skipped_ticks"`
	Recenters         uint64        `json:"recenters"`
	PublishedSamples  uint64        `json:"published_samples"`
	SinkErrors        uint64        `json:"sink_errors"`
	LastSuccessTime   time.Time     `json:"last_success_time,omitempty"`
	FetchTime         time.Duration `json:"fetch_time_ns"`
	Uptime            time.Duration `json:"uptime_ns"`
}

// New creates a new Stats instance
func New() *Stats {
	return &Stats{startTime: time.Now()}
}

// SetStore sets the store used by Persist
func (s *Stats) SetStore(store Store) {
	s.mu.Lock()
	s.store = store
	s.mu.Unlock()
}

// Persist stores the current statistics
func (s *Stats) Persist() error {
	s.mu.RLock()
	store := s.store
	s.mu.RUnlock()

	if store == nil {
		return fmt.Errorf("stats store not set")
	}
	return store.StoreTrackerStats(s.GetStats())
}

// IncrementTotalTicks increments the executed ticks counter
func (s *Stats) IncrementTotalTicks() {
	atomic.AddUint64(&s.TotalTicks, 1)
}

// IncrementSuccessfulFetches increments the successful fetch counter
func (s *Stats) IncrementSuccessfulFetches() {
	atomic.AddUint64(&s.SuccessfulFetches, 1)
}

// IncrementFailedFetches increments the failed fetch counter
func (s *Stats) IncrementFailedFetches() {
	atomic.AddUint64(&s.FailedFetches, 1)
}

// IncrementSkippedTicks increments the counter of ticks dropped while busy
func (s *Stats) IncrementSkippedTicks() {
	atomic.AddUint64(&s.SkippedTicks, 1)
}

// IncrementRecenters increments the recenter counter
func (s *Stats) IncrementRecenters() {
	atomic.AddUint64(&s.Recenters, 1)
}

// IncrementPublishedSamples increments the published samples counter
func (s *Stats) IncrementPublishedSamples() {
	atomic.AddUint64(&s.PublishedSamples, 1)
}

// IncrementSinkErrors increments the sink error counter
func (s *Stats) IncrementSinkErrors() {
	atomic.AddUint64(&s.SinkErrors, 1)
}

// UpdateLastSuccessTime records the time of the latest successful fetch
func (s *Stats) UpdateLastSuccessTime() {
	s.mu.Lock()
	s.LastSuccessTime = time.Now()
	s.mu.Unlock()
}

// AddFetchTime adds to the total fetch time
func (s *Stats) AddFetchTime(duration time.Duration) {
	s.mu.Lock()
	s.FetchTime += duration
	s.mu.Unlock()
}

// GetStats returns a copy of the current statistics
func (s *Stats) GetStats() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Snapshot{
		Time:              time.Now(),
		TotalTicks:        atomic.LoadUint64(&s.TotalTicks),
		SuccessfulFetches: atomic.LoadUint64(&s.SuccessfulFetches),
		FailedFetches:     atomic.LoadUint64(&s.FailedFetches),
		SkippedTicks:      atomic.LoadUint64(&s.SkippedTicks),
		Recenters:         atomic.LoadUint64(&s.Recenters),
		PublishedSamples:  atomic.LoadUint64(&s.PublishedSamples),
		SinkErrors:        atomic.LoadUint64(&s.SinkErrors),
		LastSuccessTime:   s.LastSuccessTime,
		FetchTime:         s.FetchTime,
		Uptime:            time.Since(s.startTime),
	}
}

// String returns a string representation of the statistics
func (s *Stats) String() string {
	snap := s.GetStats()
	lastSuccess := "never"
	if !snap.LastSuccessTime.IsZero() {
		lastSuccess = snap.LastSuccessTime.Format(time.RFC3339)
	}
	return fmt.Sprintf(
		"Total Ticks: %d\n"+
			"Successful Fetches: %d\n"+
			"Failed Fetches: %d\n"+
			"Skipped Ticks: %d\n"+
			"Recenters: %d\n"+
			"Published Samples: %d\n"+
			"Sink Errors: %d\n"+
			"Last Success: %s\n"+
			"Fetch Time: %s\n"+
			"Uptime: %s",
		snap.TotalTicks,
		snap.SuccessfulFetches,
		snap.FailedFetches,
		snap.SkippedTicks,
		snap.Recenters,
		snap.PublishedSamples,
		snap.SinkErrors,
		lastSuccess,
		snap.FetchTime,
		snap.Uptime.Truncate(time.Second),
	)
}

// StartPersistence starts periodic persistence of statistics
func (s *Stats) StartPersistence(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Final persistence before shutdown
			if err := s.Persist(); err != nil {
				log.Printf("Failed to persist final statistics: %v", err)
			}
			return
		case <-ticker.C:
			if err := s.Persist(); err != nil {
				log.Printf("Failed to persist statistics: %v", err)
			}
		}
	}
}

// StartLogging periodically logs statistics
func (s *Stats) StartLogging(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			log.Printf("Statistics:\n%s", s)
		}
	}
}
