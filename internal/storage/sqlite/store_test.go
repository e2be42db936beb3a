package sqlite

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/cardio-live/cardiolive/internal/session"
)

func openTempStore(t *testing.T) *Store {
	t.Helper()

	store, err := Open(filepath.Join(t.TempDir(), "cardiolive.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close store: %v", err)
		}
	})
	return store
}

func TestOpenRequiresPath(t *testing.T) {
	t.Parallel()

	if _, err := Open(" "); err == nil {
		t.Fatal("expected empty path error")
	}
}

func TestOpenTwiceAppliesMigrationsOnce(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "cardiolive.db")
	first, err := Open(path)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	_ = first.Close()

	second, err := Open(path)
	if err != nil {
		t.Fatalf("second open: %v", err)
	}
	defer second.Close()

	var n int
	if err := second.sqlDB.QueryRow("SELECT COUNT(*) FROM " + migrationTable).Scan(&n); err != nil {
		t.Fatalf("count migrations: %v", err)
	}
	if n != 2 {
		t.Errorf("recorded migrations = %d, want 2", n)
	}
}

func TestSaveListSessionRoundTrip(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()
	created := time.Date(2026, time.March, 9, 18, 0, 0, 0, time.UTC)

	in := session.Session{ID: "s1", Name: "CrossFit 18h", CreatedAt: created, Roster: []string{"a", "b"}, Active: true}
	if err := store.SaveSession(ctx, in); err != nil {
		t.Fatalf("save session: %v", err)
	}

	in.Roster = []string{"b", "c"}
	in.Active = false
	if err := store.SaveSession(ctx, in); err != nil {
		t.Fatalf("update session: %v", err)
	}

	got, err := store.ListSessions(ctx)
	if err != nil {
		t.Fatalf("list sessions: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("sessions = %d, want 1", len(got))
	}
	g := got[0]
	if g.ID != in.ID || g.Name != in.Name || g.Active != in.Active || !g.CreatedAt.Equal(created) {
		t.Errorf("session = %+v, want %+v", g, in)
	}
	if !reflect.DeepEqual(g.Roster, in.Roster) {
		t.Errorf("roster = %v, want %v", g.Roster, in.Roster)
	}
}

func TestListSessionsNewestFirst(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()
	base := time.Date(2026, time.March, 9, 8, 0, 0, 0, time.UTC)
	for i, id := range []string{"old", "mid", "new"} {
		s := session.Session{ID: id, Name: id, CreatedAt: base.Add(time.Duration(i) * time.Hour)}
		if err := store.SaveSession(ctx, s); err != nil {
			t.Fatal(err)
		}
	}

	got, err := store.ListSessions(ctx)
	if err != nil {
		t.Fatal(err)
	}
	var ids []string
	for _, s := range got {
		ids = append(ids, s.ID)
		if s.Roster == nil {
			t.Errorf("session %s roster is nil", s.ID)
		}
	}
	if want := []string{"new", "mid", "old"}; !reflect.DeepEqual(ids, want) {
		t.Errorf("order = %v, want %v", ids, want)
	}
}

func TestSecondActiveSessionRejected(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()
	now := time.Now()
	if err := store.SaveSession(ctx, session.Session{ID: "a", Name: "a", CreatedAt: now, Active: true}); err != nil {
		t.Fatal(err)
	}
	if err := store.SaveSession(ctx, session.Session{ID: "b", Name: "b", CreatedAt: now, Active: true}); err == nil {
		t.Fatal("expected unique index violation for a second active session")
	}
}

func TestDeleteSession(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()
	_ = store.SaveSession(ctx, session.Session{ID: "a", Name: "a", CreatedAt: time.Now(), Roster: []string{"x"}})

	if err := store.DeleteSession(ctx, "a"); err != nil {
		t.Fatalf("delete session: %v", err)
	}
	if err := store.DeleteSession(ctx, "missing"); err != nil {
		t.Fatalf("delete missing session: %v", err)
	}
	got, _ := store.ListSessions(ctx)
	if len(got) != 0 {
		t.Errorf("sessions after delete = %d", len(got))
	}

	var rosterRows int
	_ = store.sqlDB.QueryRow("SELECT COUNT(*) FROM session_roster").Scan(&rosterRows)
	if rosterRows != 0 {
		t.Errorf("orphan roster rows = %d", rosterRows)
	}
}

func TestHandoffToken(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()
	fixed := time.Date(2026, time.March, 9, 18, 5, 0, 0, time.UTC)
	store.now = func() time.Time { return fixed }

	if _, ok, err := store.Read(ctx); err != nil || ok {
		t.Fatalf("read empty = %v, %v", ok, err)
	}
	if err := store.Publish(ctx, "s1"); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := store.Publish(ctx, "s2"); err != nil {
		t.Fatalf("publish: %v", err)
	}
	tok, ok, err := store.Read(ctx)
	if err != nil || !ok {
		t.Fatalf("read = %v, %v", ok, err)
	}
	if tok.SessionID != "s2" || !tok.PublishedAt.Equal(fixed) {
		t.Errorf("token = %+v", tok)
	}

	if err := store.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, ok, _ := store.Read(ctx); ok {
		t.Error("token present after clear")
	}
	if err := store.Publish(ctx, ""); err == nil {
		t.Error("publish empty id should fail")
	}
}

func TestRegistryWriteThroughAndReload(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "cardiolive.db")
	store, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	reg := session.NewRegistry(store)
	first, err := reg.Create(ctx, "Morning Spin", []string{"b", "a"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := reg.End(ctx, first.ID); err != nil {
		t.Fatal(err)
	}
	second, err := reg.Create(ctx, "CrossFit 18h", []string{"c"})
	if err != nil {
		t.Fatalf("create second: %v", err)
	}
	_ = store.Close()

	reopened, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()

	restored := session.NewRegistry(reopened)
	if err := restored.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}
	active, ok := restored.Active()
	if !ok || active.ID != second.ID {
		t.Fatalf("active = %+v, %v, want %s", active, ok, second.ID)
	}
	got, ok := restored.Get(first.ID)
	if !ok || got.Active || !reflect.DeepEqual(got.Roster, []string{"a", "b"}) {
		t.Errorf("first = %+v, %v", got, ok)
	}
}
