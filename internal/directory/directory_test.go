package directory

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func TestStaticLookup(t *testing.T) {
	d := NewStatic(
		Participant{ID: "a", Name: "Alice", Age: 34},
		Participant{ID: " ", Name: "ignored"},
	)
	if d.Len() != 1 {
		t.Errorf("Len() = %d, want 1", d.Len())
	}
	p, ok := d.Lookup("a")
	if !ok || p.Name != "Alice" || p.Age != 34 {
		t.Errorf("Lookup(a) = %+v, %v", p, ok)
	}
	if _, ok := d.Lookup("b"); ok {
		t.Error("Lookup(b) should miss")
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "participants.yaml")
	content := `
participants:
  - id: m-001
    name: Alice Martin
    age: 34
  - id: m-002
    name: Bruno
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	d, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if d.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", d.Len())
	}
	p, _ := d.Lookup("m-002")
	if p.Name != "Bruno" || p.Age != 0 {
		t.Errorf("m-002 = %+v", p)
	}
}

func TestLoadFileErrors(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("LoadFile missing file should fail")
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	_ = os.WriteFile(path, []byte("participants: {not a list"), 0o644)
	if _, err := LoadFile(path); err == nil {
		t.Error("LoadFile malformed file should fail")
	}
}

func TestChain(t *testing.T) {
	first := NewStatic(Participant{ID: "a", Name: "First"})
	second := NewStatic(Participant{ID: "a", Name: "Second"}, Participant{ID: "b", Name: "Bee"})
	c := Chain{nil, first, second}

	if p, _ := c.Lookup("a"); p.Name != "First" {
		t.Errorf("Lookup(a) = %q, want First", p.Name)
	}
	if p, _ := c.Lookup("b"); p.Name != "Bee" {
		t.Errorf("Lookup(b) = %q, want Bee", p.Name)
	}
	if _, ok := c.Lookup("z"); ok {
		t.Error("Lookup(z) should miss")
	}
}

type slowResolver struct {
	calls   atomic.Int32
	release chan struct{}
	result  Participant
	err     error
}

func (r *slowResolver) Resolve(ctx context.Context, id string) (Participant, error) {
	r.calls.Add(1)
	if r.release != nil {
		select {
		case <-r.release:
		case <-ctx.Done():
			return Participant{}, ctx.Err()
		}
	}
	if r.err != nil {
		return Participant{}, r.err
	}
	p := r.result
	return p, nil
}

func TestCacheLookupDoesNotBlock(t *testing.T) {
	res := &slowResolver{release: make(chan struct{}), result: Participant{Name: "Alice", Age: 40}}
	c := NewCache(res, time.Minute, time.Minute)

	start := time.Now()
	if _, ok := c.Lookup("a"); ok {
		t.Fatal("first Lookup should miss")
	}
	if _, ok := c.Lookup("a"); ok {
		t.Fatal("Lookup during resolution should miss")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("Lookup blocked for %v", elapsed)
	}

	close(res.release)
	c.Wait()

	p, ok := c.Lookup("a")
	if !ok || p.Name != "Alice" || p.ID != "a" {
		t.Errorf("Lookup after resolution = %+v, %v", p, ok)
	}
	if n := res.calls.Load(); n != 1 {
		t.Errorf("resolver called %d times, want 1", n)
	}
}

func TestCacheRetriesAfterFailure(t *testing.T) {
	res := &slowResolver{err: ErrUnknown}
	c := NewCache(res, time.Minute, time.Minute)
	now := time.Now()
	c.now = func() time.Time { return now }

	c.Lookup("a")
	c.Wait()
	c.Lookup("a")
	c.Wait()
	if n := res.calls.Load(); n != 1 {
		t.Fatalf("resolver called %d times within retry window, want 1", n)
	}

	now = now.Add(2 * time.Minute)
	res.err = nil
	res.result = Participant{Name: "Later"}
	c.Lookup("a")
	c.Wait()
	if p, ok := c.Lookup("a"); !ok || p.Name != "Later" {
		t.Errorf("Lookup after retry = %+v, %v", p, ok)
	}
}

func TestHTTPResolver(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch r.URL.Path {
		case "/participants/m-1":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id":"m-1","name":"Chloe","age":28}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	r := NewHTTPResolver(srv.URL+"/", "secret")
	p, err := r.Resolve(context.Background(), "m-1")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if p.Name != "Chloe" || p.Age != 28 {
		t.Errorf("Resolve = %+v", p)
	}

	if _, err := r.Resolve(context.Background(), "m-2"); !errors.Is(err, ErrUnknown) {
		t.Errorf("Resolve unknown error = %v, want ErrUnknown", err)
	}

	bad := NewHTTPResolver(srv.URL, "wrong")
	if _, err := bad.Resolve(context.Background(), "m-1"); err == nil || errors.Is(err, ErrUnknown) {
		t.Errorf("Resolve with bad token error = %v, want status error", err)
	}
}

func TestOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roster.yaml")
	body := "participants:\n  - id: a\n    name: From File\n    age: 50\n  - id: b\n    name: Bee\n    age: 22\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	dir, err := Open(Options{
		File: path,
		Seed: []Participant{{ID: "a", Name: "Seeded", Age: 30}},
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if p, _ := dir.Lookup("a"); p.Name != "Seeded" {
		t.Errorf("Lookup(a) = %q, want seed to win", p.Name)
	}
	if p, ok := dir.Lookup("b"); !ok || p.Age != 22 {
		t.Errorf("Lookup(b) = %+v, %v", p, ok)
	}

	if _, err := Open(Options{File: filepath.Join(t.TempDir(), "missing.yaml")}); err == nil {
		t.Error("Open with a missing file should fail")
	}

	empty, err := Open(Options{})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := empty.Lookup("a"); ok {
		t.Error("empty directory should miss")
	}
}
