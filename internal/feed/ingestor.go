package feed

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"github.com/cardio-live/cardiolive/internal/live"
)

// Options configures an Ingestor.
type Options struct {
	// QueueSize bounds events waiting for the owner goroutine.
	QueueSize int
	// StaleAfter evicts samples not refreshed within this window. Zero
	// disables eviction; samples then leave only on an explicit disconnect.
	StaleAfter time.Duration
}

// Counters reports ingestion totals since start.
type Counters struct {
	Accepted int64 `json:"accepted"`
	Rejected int64 `json:"rejected"`
	Evicted  int64 `json:"evicted"`
}

// Ingestor owns all writes to a live.Registry. Producers call Submit; the
// goroutine running Run applies events in arrival order.
type Ingestor struct {
	registry   *live.Registry
	relay      *Relay
	staleAfter time.Duration
	queue      chan Event
	now        func() time.Time

	accepted atomic.Int64
	rejected atomic.Int64
	evicted  atomic.Int64
}

// NewIngestor creates an ingestor writing to registry. relay may be nil.
func NewIngestor(registry *live.Registry, relay *Relay, opts Options) *Ingestor {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	return &Ingestor{
		registry:   registry,
		relay:      relay,
		staleAfter: opts.StaleAfter,
		queue:      make(chan Event, opts.QueueSize),
		now:        time.Now,
	}
}

// Submit validates ev and queues it for the owner goroutine. Invalid events
// are rejected synchronously so callers can report the error.
func (in *Ingestor) Submit(ctx context.Context, ev Event) error {
	if err := Validate(ev); err != nil {
		in.rejected.Add(1)
		return err
	}
	select {
	case in.queue <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run applies queued events until ctx is cancelled. When stale eviction is
// enabled it also sweeps the registry periodically.
func (in *Ingestor) Run(ctx context.Context) error {
	var sweep <-chan time.Time
	if in.staleAfter > 0 {
		interval := max(in.staleAfter/2, time.Second)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		sweep = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-in.queue:
			if err := in.Apply(ev); err != nil {
				log.Printf("feed: dropping event: %v", err)
			}
		case <-sweep:
			in.Sweep()
		}
	}
}

// Apply validates and applies ev immediately, stamping its received time.
// It is called by Run, and directly by single-goroutine owners such as a
// replica display.
func (in *Ingestor) Apply(ev Event) error {
	if err := Validate(ev); err != nil {
		in.rejected.Add(1)
		return err
	}

	ev.ReceivedAt = in.now()
	switch ev.Kind {
	case KindSample:
		ev.Source = live.ParseSource(string(ev.Source))
		if ev.ObservedAt.IsZero() {
			ev.ObservedAt = ev.ReceivedAt
		}
		in.registry.Upsert(ev.Sample())
	case KindDisconnect:
		if !in.registry.Remove(ev.ParticipantID) {
			return nil
		}
	}
	in.accepted.Add(1)

	if in.relay != nil {
		in.relay.Publish(ev)
	}
	return nil
}

// Sweep evicts samples older than the stale window and relays a disconnect
// for each. It returns the evicted participant ids.
func (in *Ingestor) Sweep() []string {
	if in.staleAfter <= 0 {
		return nil
	}
	evicted := in.registry.EvictOlderThan(in.now().Add(-in.staleAfter))
	for _, id := range evicted {
		log.Printf("feed: evicted stale participant %s", id)
		if in.relay != nil {
			in.relay.Publish(Disconnect(id))
		}
	}
	in.evicted.Add(int64(len(evicted)))
	return evicted
}

// Pending returns the number of queued events not yet applied.
func (in *Ingestor) Pending() int {
	return len(in.queue)
}

func (in *Ingestor) Counters() Counters {
	return Counters{
		Accepted: in.accepted.Load(),
		Rejected: in.rejected.Load(),
		Evicted:  in.evicted.Load(),
	}
}
