// Package aggregate builds the per-tick view of the class: which participants
// are shown, their zones, and summary statistics.
package aggregate

import (
	"github.com/cardio-live/cardiolive/internal/live"
	"github.com/cardio-live/cardiolive/internal/zone"
)

// Alert values carried by a Row.
const (
	AlertHigh = "high"
	AlertLow  = "low"
)

// View is the snapshot published to display surfaces once per tick. It holds
// no timestamps, so two ticks over unchanged state produce equal views.
type View struct {
	SessionID      string `json:"sessionId,omitempty"`
	SessionName    string `json:"sessionName,omitempty"`
	RosterFiltered bool   `json:"rosterFiltered"`
	Samples        []Row  `json:"samples"`
	Aggregate      Stats  `json:"aggregate"`
}

// Row is one participant's entry in a View.
type Row struct {
	ParticipantID string      `json:"participantId"`
	Name          string      `json:"name"`
	HeartRate     int         `json:"heartRate"`
	Zone          zone.Zone   `json:"zone"`
	ZoneLabel     string      `json:"zoneLabel"`
	PercentMax    int         `json:"percentMax"`
	Source        live.Source `json:"source"`
	Alert         string      `json:"alert,omitempty"`
}

// Stats summarizes the filtered sample set. Avg, Min and Max are nil when the
// set is empty; a zero would read as a real measurement.
type Stats struct {
	Count int             `json:"count"`
	Avg   *int            `json:"avg"`
	Min   *int            `json:"min"`
	Max   *int            `json:"max"`
	Zones [zone.Count]int `json:"zones"`
}

// Available reports whether Avg, Min and Max carry values.
func (s Stats) Available() bool {
	return s.Count > 0 && s.Avg != nil
}

// InZone returns the number of participants currently in z.
func (s Stats) InZone(z zone.Zone) int {
	if !z.Valid() {
		return 0
	}
	return s.Zones[z-1]
}

// Empty reports whether the view has no participants to show.
func (v View) Empty() bool {
	return len(v.Samples) == 0
}
