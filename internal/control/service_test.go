package control

import (
	"context"
	"errors"
	"testing"

	"github.com/cardio-live/cardiolive/internal/handoff"
	"github.com/cardio-live/cardiolive/internal/session"
)

func newService(t *testing.T) (*Service, *handoff.FileStore) {
	t.Helper()
	store := handoff.NewFileStore(t.TempDir())
	return NewService(session.NewRegistry(nil), store), store
}

func TestCreateSessionSingleActive(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	first, err := svc.CreateSession(ctx, "CrossFit 18h", []string{"A", "B"})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if _, err := svc.CreateSession(ctx, "Yoga", nil); !errors.Is(err, session.ErrActiveSessionExists) {
		t.Fatalf("second CreateSession error = %v, want ErrActiveSessionExists", err)
	}
	active, ok := svc.Active()
	if !ok || active.ID != first.ID {
		t.Errorf("active = %+v, %v, want %s", active, ok, first.ID)
	}
}

func TestSetRosterReturnsUpdatedSession(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	s, _ := svc.CreateSession(ctx, "s", []string{"A"})

	got, err := svc.SetRoster(ctx, s.ID, []string{"C", "B", "B"})
	if err != nil {
		t.Fatalf("SetRoster: %v", err)
	}
	if len(got.Roster) != 2 || got.Roster[0] != "B" || got.Roster[1] != "C" {
		t.Errorf("roster = %v, want [B C]", got.Roster)
	}
	if _, err := svc.SetRoster(ctx, "missing", nil); !errors.Is(err, session.ErrNotFound) {
		t.Errorf("SetRoster missing error = %v", err)
	}
}

func TestPublishAndReadHandoff(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	if _, ok, err := svc.ReadHandoff(ctx); err != nil || ok {
		t.Fatalf("ReadHandoff before publish = %v, %v", ok, err)
	}
	if err := svc.PublishHandoff(ctx, "nope"); !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("PublishHandoff unknown error = %v, want ErrNotFound", err)
	}

	s, _ := svc.CreateSession(ctx, "s", nil)
	if err := svc.PublishHandoff(ctx, s.ID); err != nil {
		t.Fatalf("PublishHandoff: %v", err)
	}
	tok, ok, err := svc.ReadHandoff(ctx)
	if err != nil || !ok || tok.SessionID != s.ID {
		t.Errorf("ReadHandoff = %+v, %v, %v", tok, ok, err)
	}
}

func TestDeleteClearsMatchingHandoff(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	a, _ := svc.CreateSession(ctx, "a", nil)
	_ = svc.EndSession(ctx, a.ID)
	b, _ := svc.CreateSession(ctx, "b", nil)
	_ = svc.PublishHandoff(ctx, b.ID)

	if err := svc.DeleteSession(ctx, a.ID); err != nil {
		t.Fatalf("DeleteSession a: %v", err)
	}
	if tok, ok, _ := store.Read(ctx); !ok || tok.SessionID != b.ID {
		t.Fatalf("handoff after deleting another session = %+v, %v", tok, ok)
	}

	if err := svc.DeleteSession(ctx, b.ID); err != nil {
		t.Fatalf("DeleteSession b: %v", err)
	}
	if _, ok, _ := store.Read(ctx); ok {
		t.Error("handoff still names the deleted session")
	}
	if err := svc.DeleteSession(ctx, b.ID); !errors.Is(err, session.ErrNotFound) {
		t.Errorf("second DeleteSession error = %v, want ErrNotFound", err)
	}
}

func TestEndSessionIdempotent(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	s, _ := svc.CreateSession(ctx, "s", nil)

	for i := 0; i < 2; i++ {
		if err := svc.EndSession(ctx, s.ID); err != nil {
			t.Fatalf("EndSession #%d: %v", i+1, err)
		}
	}
	if _, ok := svc.Active(); ok {
		t.Error("session still active")
	}
	if err := svc.EndSession(ctx, "missing"); !errors.Is(err, session.ErrNotFound) {
		t.Errorf("EndSession missing error = %v", err)
	}
}

func TestSessionLookup(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	s, _ := svc.CreateSession(ctx, "s", nil)

	if got, err := svc.Session(s.ID); err != nil || got.Name != "s" {
		t.Errorf("Session = %+v, %v", got, err)
	}
	if _, err := svc.Session("x"); !errors.Is(err, session.ErrNotFound) {
		t.Errorf("Session missing error = %v", err)
	}
	if n := len(svc.Sessions()); n != 1 {
		t.Errorf("Sessions() = %d, want 1", n)
	}
}

func TestNilHandoffStore(t *testing.T) {
	svc := NewService(session.NewRegistry(nil), nil)
	ctx := context.Background()
	s, _ := svc.CreateSession(ctx, "s", nil)

	if err := svc.PublishHandoff(ctx, s.ID); err == nil {
		t.Error("PublishHandoff without a store should fail")
	}
	if err := svc.DeleteSession(ctx, s.ID); err != nil {
		t.Errorf("DeleteSession without a store: %v", err)
	}
}
