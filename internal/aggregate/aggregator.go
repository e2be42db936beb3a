package aggregate

import (
	"log"
	"math"
	"sort"
	"sync"

	"github.com/cardio-live/cardiolive/internal/directory"
	"github.com/cardio-live/cardiolive/internal/live"
	"github.com/cardio-live/cardiolive/internal/session"
	"github.com/cardio-live/cardiolive/internal/zone"
)

// FallbackName labels participants the directory does not know.
const FallbackName = "Participant"

// SessionSource reports the active session, if any.
type SessionSource interface {
	Active() (session.Session, bool)
}

// SampleSource returns a point-in-time copy of the latest samples.
type SampleSource interface {
	Snapshot() map[string]live.Sample
}

// Options tunes row decoration. Zero values fall back to the defaults.
type Options struct {
	DefaultAge int
	AlertHigh  int
	AlertLow   int
}

func (o Options) withDefaults() Options {
	if o.DefaultAge <= 0 {
		o.DefaultAge = zone.DefaultAge
	}
	if o.AlertHigh <= 0 {
		o.AlertHigh = 180
	}
	if o.AlertLow <= 0 {
		o.AlertLow = 40
	}
	return o
}

// Aggregator computes Views from the session and live registries.
type Aggregator struct {
	sessions SessionSource
	samples  SampleSource
	dir      directory.Directory
	opts     Options

	mu     sync.Mutex
	missed map[string]bool
}

// New creates an Aggregator. dir may be nil, in which case every participant
// gets the fallback name and default age.
func New(sessions SessionSource, samples SampleSource, dir directory.Directory, opts Options) *Aggregator {
	return &Aggregator{
		sessions: sessions,
		samples:  samples,
		dir:      dir,
		opts:     opts.withDefaults(),
		missed:   make(map[string]bool),
	}
}

// BuildView computes the current view. With an active session only rostered
// participants are included; otherwise everyone with a sample is.
func (a *Aggregator) BuildView() View {
	snap := a.samples.Snapshot()

	var v View
	active, ok := a.sessions.Active()
	if ok {
		v.SessionID = active.ID
		v.SessionName = active.Name
		v.RosterFiltered = true
	}

	rows := make([]Row, 0, len(snap))
	for id, s := range snap {
		if ok && !active.HasParticipant(id) {
			continue
		}
		rows = append(rows, a.row(s))
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Name != rows[j].Name {
			return rows[i].Name < rows[j].Name
		}
		return rows[i].ParticipantID < rows[j].ParticipantID
	})

	v.Samples = rows
	v.Aggregate = summarize(rows)
	return v
}

func (a *Aggregator) row(s live.Sample) Row {
	name, age := a.resolve(s.ParticipantID)
	z := zone.Classify(s.HeartRate, age)
	r := Row{
		ParticipantID: s.ParticipantID,
		Name:          name,
		HeartRate:     s.HeartRate,
		Zone:          z,
		ZoneLabel:     z.Label(),
		PercentMax:    zone.PercentOfMax(s.HeartRate, age),
		Source:        s.Source,
	}
	switch {
	case s.HeartRate > a.opts.AlertHigh:
		r.Alert = AlertHigh
	case s.HeartRate < a.opts.AlertLow:
		r.Alert = AlertLow
	}
	return r
}

func (a *Aggregator) resolve(id string) (string, int) {
	var (
		p  directory.Participant
		ok bool
	)
	if a.dir != nil {
		p, ok = a.dir.Lookup(id)
	}
	if !ok {
		a.logMiss(id)
		return FallbackName, a.opts.DefaultAge
	}

	name := p.Name
	if name == "" {
		name = FallbackName
	}
	age := p.Age
	if age <= 0 {
		age = a.opts.DefaultAge
	}
	return name, age
}

// logMiss logs a directory miss once per participant id.
func (a *Aggregator) logMiss(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.missed[id] {
		return
	}
	a.missed[id] = true
	log.Printf("aggregate: no directory entry for participant %s, using defaults", id)
}

func summarize(rows []Row) Stats {
	var st Stats
	st.Count = len(rows)
	if st.Count == 0 {
		return st
	}

	sum := 0
	lo, hi := rows[0].HeartRate, rows[0].HeartRate
	for _, r := range rows {
		sum += r.HeartRate
		lo = min(lo, r.HeartRate)
		hi = max(hi, r.HeartRate)
		if r.Zone.Valid() {
			st.Zones[r.Zone-1]++
		}
	}
	avg := int(math.Round(float64(sum) / float64(st.Count)))
	st.Avg = &avg
	st.Min = &lo
	st.Max = &hi
	return st
}
