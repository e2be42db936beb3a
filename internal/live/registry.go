// Package live holds the most recent heart-rate sample for every connected
// participant.
package live

import (
	"strings"
	"sync"
	"time"
)

// Source tags where a sample came from.
type Source string

const (
	SourceRadio Source = "ble"   // short-range radio (Bluetooth chest strap, watch)
	SourceCloud Source = "cloud" // relayed through a vendor cloud
	SourceOther Source = "other"
)

// ParseSource normalizes a raw source name reported by a device adapter.
func ParseSource(raw string) Source {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "ble", "bluetooth", "radio", "ant", "ant+":
		return SourceRadio
	case "cloud", "terra", "strava", "garmin", "hyperate", "polar":
		return SourceCloud
	default:
		return SourceOther
	}
}

// Sample is a single heart-rate reading for one participant.
type Sample struct {
	ParticipantID string    `json:"participantId"`
	HeartRate     int       `json:"heartRate"`
	Source        Source    `json:"source"`
	ObservedAt    time.Time `json:"observedAt"`
	ReceivedAt    time.Time `json:"receivedAt"`
}

// Registry stores zero or one sample per participant. A new sample always
// replaces the stored one (last write wins by arrival), even when its
// ObservedAt is older.
type Registry struct {
	mu      sync.RWMutex
	samples map[string]Sample
}

func NewRegistry() *Registry {
	return &Registry{
		samples: make(map[string]Sample),
	}
}

// Upsert inserts or overwrites the sample for s.ParticipantID. Validation
// happens at the ingestion boundary, not here.
func (r *Registry) Upsert(s Sample) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples[s.ParticipantID] = s
}

// Remove deletes the participant's sample and reports whether one existed.
func (r *Registry) Remove(participantID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.samples[participantID]; !ok {
		return false
	}
	delete(r.samples, participantID)
	return true
}

func (r *Registry) Get(participantID string) (Sample, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.samples[participantID]
	return s, ok
}

// Snapshot returns a copy of the current state. Later writes do not affect
// the returned map.
func (r *Registry) Snapshot() map[string]Sample {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]Sample, len(r.samples))
	for id, s := range r.samples {
		out[id] = s
	}
	return out
}

func (r *Registry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.samples)
}

// EvictOlderThan removes every sample received before cutoff and returns the
// evicted participant ids.
func (r *Registry) EvictOlderThan(cutoff time.Time) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var evicted []string
	for id, s := range r.samples {
		if s.ReceivedAt.Before(cutoff) {
			delete(r.samples, id)
			evicted = append(evicted, id)
		}
	}
	return evicted
}
