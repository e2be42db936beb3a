// Package replica runs the engine locally inside the display process. The
// display is bound to one session read from the handoff; device events
// arrive over the server's feed stream and are applied to a private live
// registry, and a local scheduler builds the view on the usual cadence.
package replica

import (
	"context"
	"fmt"
	"time"

	"github.com/cardio-live/cardiolive/internal/aggregate"
	"github.com/cardio-live/cardiolive/internal/broadcast"
	"github.com/cardio-live/cardiolive/internal/directory"
	"github.com/cardio-live/cardiolive/internal/feed"
	"github.com/cardio-live/cardiolive/internal/live"
	"github.com/cardio-live/cardiolive/internal/session"
)

// viewChan is a broadcast.Surface holding at most the latest view.
type viewChan chan aggregate.View

func (c viewChan) Publish(v aggregate.View) {
	for {
		select {
		case c <- v:
			return
		default:
		}
		select {
		case <-c:
		default:
		}
	}
}

type Replica struct {
	sessions  *session.Registry
	samples   *live.Registry
	ingest    *feed.Ingestor
	scheduler *broadcast.Scheduler
	views     viewChan
	boundID   string
}

// New creates an unbound replica. dir resolves participant names and ages.
func New(dir directory.Directory, opts aggregate.Options, interval time.Duration) *Replica {
	sessions := session.NewRegistry(nil)
	samples := live.NewRegistry()
	r := &Replica{
		sessions: sessions,
		samples:  samples,
		ingest:   feed.NewIngestor(samples, nil, feed.Options{}),
		views:    make(viewChan, 1),
	}
	r.scheduler = broadcast.NewScheduler(aggregate.New(sessions, samples, dir, opts), interval)
	r.scheduler.Attach(r.views)
	return r
}

// Bind filters the view to s. The display always treats the session it was
// handed as active, whatever its state on the server.
func (r *Replica) Bind(s session.Session) error {
	r.Unbind()
	s.Active = true
	if err := r.sessions.Restore(s); err != nil {
		return fmt.Errorf("binding session %s: %w", s.ID, err)
	}
	r.boundID = s.ID
	return nil
}

// Unbind removes the session filter.
func (r *Replica) Unbind() {
	if r.boundID == "" {
		return
	}
	if prev, ok := r.sessions.Get(r.boundID); ok {
		prev.Active = false
		_ = r.sessions.Restore(prev)
	}
	r.boundID = ""
}

// Bound returns the bound session.
func (r *Replica) Bound() (session.Session, bool) {
	if r.boundID == "" {
		return session.Session{}, false
	}
	return r.sessions.Get(r.boundID)
}

// Apply applies one feed event. Callers must not call Apply concurrently.
func (r *Replica) Apply(ev feed.Event) error {
	return r.ingest.Apply(ev)
}

// ResetSamples forgets every participant. The feed stream replays current
// state on reconnect, so this runs before the replay.
func (r *Replica) ResetSamples() {
	for id := range r.samples.Snapshot() {
		r.samples.Remove(id)
	}
}

// Participants returns the number of participants currently tracked.
func (r *Replica) Participants() int {
	return r.samples.Size()
}

// Start begins ticking until ctx is done or Stop is called.
func (r *Replica) Start(ctx context.Context) {
	r.scheduler.Start(ctx)
}

func (r *Replica) Stop() {
	r.scheduler.Stop()
}

// Tick builds and publishes a view immediately.
func (r *Replica) Tick(ctx context.Context) aggregate.View {
	return r.scheduler.Tick(ctx)
}

// Views delivers the latest view after each tick. Views not yet received
// are replaced by newer ones.
func (r *Replica) Views() <-chan aggregate.View {
	return r.views
}
