package live

import (
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"
)

func TestNewRegistry(t *testing.T) {
	r := NewRegistry()
	if r.Size() != 0 {
		t.Errorf("new registry Size() = %d, want 0", r.Size())
	}
	if len(r.Snapshot()) != 0 {
		t.Error("new registry snapshot should be empty")
	}
}

func TestUpsertReplaces(t *testing.T) {
	r := NewRegistry()
	now := time.Now()
	r.Upsert(Sample{ParticipantID: "a", HeartRate: 120, Source: SourceRadio, ReceivedAt: now})
	r.Upsert(Sample{ParticipantID: "a", HeartRate: 135, Source: SourceCloud, ReceivedAt: now.Add(time.Second)})

	if r.Size() != 1 {
		t.Fatalf("Size() = %d after two upserts for one participant, want 1", r.Size())
	}
	got, ok := r.Get("a")
	if !ok {
		t.Fatal("Get returned ok=false")
	}
	if got.HeartRate != 135 || got.Source != SourceCloud {
		t.Errorf("stored sample = %+v, want the second upsert", got)
	}
}

func TestUpsertOlderObservedStillWins(t *testing.T) {
	r := NewRegistry()
	now := time.Now()
	r.Upsert(Sample{ParticipantID: "a", HeartRate: 150, ObservedAt: now})
	r.Upsert(Sample{ParticipantID: "a", HeartRate: 90, ObservedAt: now.Add(-time.Minute)})

	got, _ := r.Get("a")
	if got.HeartRate != 90 {
		t.Errorf("HeartRate = %d, want 90 (last write wins regardless of observed time)", got.HeartRate)
	}
}

func TestRemove(t *testing.T) {
	r := NewRegistry()
	r.Upsert(Sample{ParticipantID: "a", HeartRate: 100})

	if !r.Remove("a") {
		t.Error("Remove existing returned false")
	}
	if r.Remove("a") {
		t.Error("second Remove returned true")
	}
	if r.Size() != 0 {
		t.Errorf("Size() = %d after remove", r.Size())
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	r := NewRegistry()
	r.Upsert(Sample{ParticipantID: "a", HeartRate: 100})

	snap := r.Snapshot()
	r.Upsert(Sample{ParticipantID: "b", HeartRate: 110})
	r.Upsert(Sample{ParticipantID: "a", HeartRate: 170})

	if len(snap) != 1 {
		t.Errorf("snapshot grew to %d entries after later writes", len(snap))
	}
	if snap["a"].HeartRate != 100 {
		t.Errorf("snapshot value changed to %d", snap["a"].HeartRate)
	}

	snap["c"] = Sample{ParticipantID: "c"}
	if _, ok := r.Get("c"); ok {
		t.Error("mutating the snapshot leaked into the registry")
	}
}

func TestEvictOlderThan(t *testing.T) {
	r := NewRegistry()
	now := time.Now()
	r.Upsert(Sample{ParticipantID: "old", HeartRate: 100, ReceivedAt: now.Add(-2 * time.Minute)})
	r.Upsert(Sample{ParticipantID: "older", HeartRate: 100, ReceivedAt: now.Add(-5 * time.Minute)})
	r.Upsert(Sample{ParticipantID: "fresh", HeartRate: 100, ReceivedAt: now})

	evicted := r.EvictOlderThan(now.Add(-time.Minute))
	sort.Strings(evicted)
	if fmt.Sprint(evicted) != "[old older]" {
		t.Errorf("evicted = %v, want [old older]", evicted)
	}
	if r.Size() != 1 {
		t.Errorf("Size() = %d, want 1", r.Size())
	}
}

func TestParseSource(t *testing.T) {
	tests := []struct {
		raw  string
		want Source
	}{
		{"bluetooth", SourceRadio},
		{"BLE", SourceRadio},
		{"terra", SourceCloud},
		{" Strava ", SourceCloud},
		{"hyperate", SourceCloud},
		{"wifi", SourceOther},
		{"", SourceOther},
	}
	for _, tt := range tests {
		if got := ParseSource(tt.raw); got != tt.want {
			t.Errorf("ParseSource(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestConcurrentAccess(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				r.Upsert(Sample{ParticipantID: fmt.Sprintf("p%d", i), HeartRate: 60 + j})
			}
		}(i)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = r.Snapshot()
				_ = r.Size()
			}
		}()
	}
	wg.Wait()

	if r.Size() != 20 {
		t.Errorf("Size() = %d, want 20", r.Size())
	}
}
