package replica

import (
	"context"
	"testing"
	"time"

	"github.com/cardio-live/cardiolive/internal/aggregate"
	"github.com/cardio-live/cardiolive/internal/directory"
	"github.com/cardio-live/cardiolive/internal/feed"
	"github.com/cardio-live/cardiolive/internal/session"
)

func newReplica(t *testing.T) *Replica {
	t.Helper()
	dir := directory.NewStatic(
		directory.Participant{ID: "a", Name: "Ana", Age: 40},
		directory.Participant{ID: "b", Name: "Ben", Age: 25},
	)
	r := New(dir, aggregate.Options{}, time.Hour)
	for _, ev := range []feed.Event{
		feed.SampleUpdate("a", 150, "bluetooth", time.Time{}),
		feed.SampleUpdate("b", 120, "terra", time.Time{}),
		feed.SampleUpdate("c", 100, "bluetooth", time.Time{}),
	} {
		if err := r.Apply(ev); err != nil {
			t.Fatal(err)
		}
	}
	return r
}

func TestUnboundShowsEveryone(t *testing.T) {
	r := newReplica(t)
	v := r.Tick(context.Background())
	if v.RosterFiltered || v.Aggregate.Count != 3 {
		t.Errorf("view = %+v, want all 3 unfiltered", v)
	}
}

func TestBindFiltersToRoster(t *testing.T) {
	r := newReplica(t)
	ended := session.Session{ID: "s1", Name: "Spin", Roster: []string{"a", "c"}, CreatedAt: time.Now()}
	if err := r.Bind(ended); err != nil {
		t.Fatalf("Bind: %v", err)
	}

	v := r.Tick(context.Background())
	if !v.RosterFiltered || v.SessionID != "s1" || v.Aggregate.Count != 2 {
		t.Fatalf("view = %+v", v)
	}
	if v.Samples[0].Name != "Ana" || v.Samples[1].Name != "Participant" {
		t.Errorf("rows = %+v", v.Samples)
	}

	if err := r.Bind(session.Session{ID: "s2", Name: "HIIT", Roster: []string{"b"}}); err != nil {
		t.Fatalf("rebind: %v", err)
	}
	v = r.Tick(context.Background())
	if v.SessionID != "s2" || v.Aggregate.Count != 1 || v.Samples[0].ParticipantID != "b" {
		t.Errorf("after rebind view = %+v", v)
	}
	if s, ok := r.Bound(); !ok || s.ID != "s2" {
		t.Errorf("Bound() = %+v, %v", s, ok)
	}

	r.Unbind()
	if v := r.Tick(context.Background()); v.RosterFiltered {
		t.Error("view still filtered after Unbind")
	}
}

func TestDisconnectAndReset(t *testing.T) {
	r := newReplica(t)
	if err := r.Apply(feed.Disconnect("a")); err != nil {
		t.Fatal(err)
	}
	if r.Participants() != 2 {
		t.Errorf("Participants() = %d, want 2", r.Participants())
	}
	r.ResetSamples()
	if r.Participants() != 0 {
		t.Errorf("Participants() after reset = %d", r.Participants())
	}
}

func TestViewsKeepsLatest(t *testing.T) {
	r := newReplica(t)
	r.Tick(context.Background())
	if err := r.Apply(feed.Disconnect("c")); err != nil {
		t.Fatal(err)
	}
	r.Tick(context.Background())

	select {
	case v := <-r.Views():
		if v.Aggregate.Count != 2 {
			t.Errorf("latest view count = %d, want 2", v.Aggregate.Count)
		}
	default:
		t.Fatal("no view delivered")
	}
	select {
	case v := <-r.Views():
		t.Errorf("stale view still queued: %+v", v)
	default:
	}
}

func TestStartDeliversViews(t *testing.T) {
	r := newReplica(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.Start(ctx)
	defer r.Stop()

	select {
	case v := <-r.Views():
		if v.Aggregate.Count != 3 {
			t.Errorf("count = %d", v.Aggregate.Count)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no view after Start")
	}
}
