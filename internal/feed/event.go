// Package feed is the ingestion boundary between device adapters and the
// live registry. Adapters emit two kinds of events, a sample update and a
// disconnect; the Ingestor validates them, applies them to the registry from
// a single owner goroutine and relays them to replica subscribers.
package feed

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cardio-live/cardiolive/internal/live"
)

// ErrInvalidSample is returned for events rejected at the ingestion boundary.
var ErrInvalidSample = errors.New("invalid sample")

// Kind distinguishes the two inbound event kinds.
type Kind string

const (
	KindSample     Kind = "sample"
	KindDisconnect Kind = "disconnect"
)

// Event is a normalized device event.
type Event struct {
	Kind          Kind        `json:"kind"`
	ParticipantID string      `json:"participantId"`
	HeartRate     int         `json:"heartRate,omitempty"`
	Source        live.Source `json:"source,omitempty"`
	ObservedAt    time.Time   `json:"observedAt,omitzero"`
	ReceivedAt    time.Time   `json:"receivedAt,omitzero"`
}

// SampleUpdate builds a sample event. source is a raw adapter name and is
// normalized with live.ParseSource.
func SampleUpdate(participantID string, heartRate int, source string, observedAt time.Time) Event {
	return Event{
		Kind:          KindSample,
		ParticipantID: participantID,
		HeartRate:     heartRate,
		Source:        live.ParseSource(source),
		ObservedAt:    observedAt,
	}
}

// Disconnect builds a disconnect event.
func Disconnect(participantID string) Event {
	return Event{Kind: KindDisconnect, ParticipantID: participantID}
}

// FromSample converts a stored sample back into a sample event, used when
// replaying registry state to a new subscriber.
func FromSample(s live.Sample) Event {
	return Event{
		Kind:          KindSample,
		ParticipantID: s.ParticipantID,
		HeartRate:     s.HeartRate,
		Source:        s.Source,
		ObservedAt:    s.ObservedAt,
		ReceivedAt:    s.ReceivedAt,
	}
}

// Validate checks an event at the ingestion boundary. Sample events need a
// participant id and a positive heart rate.
func Validate(ev Event) error {
	if strings.TrimSpace(ev.ParticipantID) == "" {
		return fmt.Errorf("%w: missing participant id", ErrInvalidSample)
	}
	switch ev.Kind {
	case KindSample:
		if ev.HeartRate <= 0 {
			return fmt.Errorf("%w: heart rate %d for %s", ErrInvalidSample, ev.HeartRate, ev.ParticipantID)
		}
	case KindDisconnect:
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidSample, ev.Kind)
	}
	return nil
}

// Sample converts a sample event to the registry's representation.
func (ev Event) Sample() live.Sample {
	return live.Sample{
		ParticipantID: ev.ParticipantID,
		HeartRate:     ev.HeartRate,
		Source:        ev.Source,
		ObservedAt:    ev.ObservedAt,
		ReceivedAt:    ev.ReceivedAt,
	}
}
