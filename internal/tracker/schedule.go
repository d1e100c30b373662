package tracker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Schedule runs a task immediately and then on every interval until it is
// stopped. A tick that comes due while the previous run is still in flight
// is skipped rather than queued, so runs never overlap.
type Schedule struct {
	cancel  context.CancelFunc
	done    chan struct{}
	wg      sync.WaitGroup
	busy    atomic.Bool
	runs    atomic.Uint64
	skipped atomic.Uint64
}

// Every starts task on a new Schedule. onSkip, if non-nil, is called for
// every dropped tick.
func Every(ctx context.Context, interval time.Duration, task func(context.Context), onSkip func()) *Schedule {
	ctx, cancel := context.WithCancel(ctx)
	s := &Schedule{
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go s.loop(ctx, interval, task, onSkip)
	return s
}

func (s *Schedule) loop(ctx context.Context, interval time.Duration, task func(context.Context), onSkip func()) {
	defer close(s.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.trigger(ctx, task, onSkip)

	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			return
		case <-ticker.C:
			s.trigger(ctx, task, onSkip)
		}
	}
}

func (s *Schedule) trigger(ctx context.Context, task func(context.Context), onSkip func()) {
	if !s.busy.CompareAndSwap(false, true) {
		s.skipped.Add(1)
		if onSkip != nil {
			onSkip()
		}
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.busy.Store(false)
		task(ctx)
		s.runs.Add(1)
	}()
}

// Stop cancels the schedule and waits for an in-flight run to return
func (s *Schedule) Stop() {
	s.cancel()
	<-s.done
}

// Done is closed once the schedule has stopped
func (s *Schedule) Done() <-chan struct{} {
	return s.done
}

// Runs returns the number of completed runs
func (s *Schedule) Runs() uint64 {
	return s.runs.Load()
}

// Skipped returns the number of ticks dropped while a run was in flight
func (s *Schedule) Skipped() uint64 {
	return s.skipped.Load()
}
