// Package broadcast runs the fixed-cadence tick that recomputes the class
// view and pushes it to every attached display surface.
package broadcast

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/cardio-live/cardiolive/internal/aggregate"
)

// DefaultInterval is the tick cadence when none is configured.
const DefaultInterval = 2 * time.Second

var tracer = otel.Tracer("github.com/cardio-live/cardiolive/internal/broadcast")

// Surface is a passive consumer of views. Publish must not block; surfaces
// that do I/O queue the view and return.
type Surface interface {
	Publish(v aggregate.View)
}

// ViewBuilder computes a fresh view. *aggregate.Aggregator satisfies it.
type ViewBuilder interface {
	BuildView() aggregate.View
}

// Scheduler owns the tick loop. At most one loop runs per Scheduler.
type Scheduler struct {
	builder  ViewBuilder
	interval time.Duration

	mu       sync.Mutex
	surfaces map[Surface]struct{}

	// runMu guards the loop lifecycle. Ticks never take it.
	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	lastMu sync.RWMutex
	last   aggregate.View
	ticks  uint64
}

func NewScheduler(builder ViewBuilder, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{
		builder:  builder,
		interval: interval,
		surfaces: make(map[Surface]struct{}),
	}
}

// Attach adds a surface. It receives views from the next tick on.
func (s *Scheduler) Attach(surface Surface) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.surfaces[surface] = struct{}{}
}

func (s *Scheduler) Detach(surface Surface) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.surfaces, surface)
}

func (s *Scheduler) Surfaces() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.surfaces)
}

// Start launches the tick loop. A loop that is already running is stopped
// and waited for first. The first tick fires immediately.
func (s *Scheduler) Start(ctx context.Context) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	s.stopLocked()

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	go s.loop(loopCtx, done)
}

// Stop halts the tick loop and waits for it to exit. It is a no-op when no
// loop is running.
func (s *Scheduler) Stop() {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	s.stopLocked()
}

func (s *Scheduler) stopLocked() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.cancel = nil
	s.done = nil
}

// Running reports whether a tick loop is active.
func (s *Scheduler) Running() bool {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.done == nil {
		return false
	}
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick builds one view and publishes it to every attached surface. Surfaces
// share the returned view and must not modify it.
func (s *Scheduler) Tick(ctx context.Context) aggregate.View {
	_, span := tracer.Start(ctx, "broadcast.tick")
	defer span.End()

	v := s.builder.BuildView()

	s.lastMu.Lock()
	s.last = v
	s.ticks++
	s.lastMu.Unlock()

	s.mu.Lock()
	targets := make([]Surface, 0, len(s.surfaces))
	for surface := range s.surfaces {
		targets = append(targets, surface)
	}
	s.mu.Unlock()

	for _, surface := range targets {
		surface.Publish(v)
	}

	span.SetAttributes(
		attribute.Int("view.count", v.Aggregate.Count),
		attribute.Bool("view.roster_filtered", v.RosterFiltered),
		attribute.Int("broadcast.surfaces", len(targets)),
	)
	return v
}

// Last returns the most recently published view and whether any tick has run.
func (s *Scheduler) Last() (aggregate.View, bool) {
	s.lastMu.RLock()
	defer s.lastMu.RUnlock()
	return s.last, s.ticks > 0
}

func (s *Scheduler) Ticks() uint64 {
	s.lastMu.RLock()
	defer s.lastMu.RUnlock()
	return s.ticks
}
