package feed

import (
	"context"
	"fmt"
	"log"
	"math"
	"math/rand"
	"time"

	"github.com/cardio-live/cardiolive/internal/directory"
)

// Sink accepts events from an adapter. *Ingestor satisfies it.
type Sink interface {
	Submit(ctx context.Context, ev Event) error
}

type simParticipant struct {
	id      string
	name    string
	age     int
	source  string
	pattern string
	resting int
	peak    int
	hr      int
}

var simNames = []string{
	"Alice Martin", "Bruno Lefèvre", "Chloé Durand", "David Moreau", "Emma Laurent",
	"Farid Benali", "Gabrielle Roux", "Hugo Girard", "Inès Fontaine", "Jules Bernard",
	"Karim Haddad", "Léa Petit", "Marc Dubois", "Nina Garnier", "Olivier Chevalier",
	"Pauline Mercier",
}

var simPatterns = []string{"steady", "interval", "warmup", "dropout", "methodical"}

// Simulator is a synthetic device adapter producing random-walk heart rates
// with occasional silent dropouts. It is meant for demos and load tests.
type Simulator struct {
	sink         Sink
	interval     time.Duration
	rng          *rand.Rand
	participants []*simParticipant
}

// NewSimulator creates n simulated participants (ids sim-01, sim-02, ...)
// submitting to sink every interval.
func NewSimulator(sink Sink, n int, interval time.Duration, seed int64) *Simulator {
	if interval <= 0 {
		interval = time.Second
	}
	rng := rand.New(rand.NewSource(seed))
	g := &Simulator{sink: sink, interval: interval, rng: rng}
	for i := 0; i < n; i++ {
		resting := 55 + rng.Intn(20)
		p := &simParticipant{
			id:      fmt.Sprintf("sim-%02d", i+1),
			name:    simNames[i%len(simNames)],
			age:     22 + rng.Intn(35),
			pattern: simPatterns[i%len(simPatterns)],
			resting: resting,
			hr:      resting,
		}
		p.peak = 220 - p.age - rng.Intn(10)
		if i%3 == 2 {
			p.source = "terra"
		} else {
			p.source = "bluetooth"
		}
		g.participants = append(g.participants, p)
	}
	return g
}

// Participants returns directory entries for the simulated participants.
func (g *Simulator) Participants() []directory.Participant {
	out := make([]directory.Participant, 0, len(g.participants))
	for _, p := range g.participants {
		out = append(out, directory.Participant{ID: p.id, Name: p.name, Age: p.age})
	}
	return out
}

// Start launches the simulation loop. It returns immediately.
func (g *Simulator) Start(ctx context.Context) {
	go g.run(ctx)
}

func (g *Simulator) run(ctx context.Context) {
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	tick := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tick++
			if err := g.Step(ctx, tick); err != nil && ctx.Err() == nil {
				log.Printf("simulator: %v", err)
			}
		}
	}
}

// Step advances every participant by one tick and submits the resulting
// events.
func (g *Simulator) Step(ctx context.Context, tick int) error {
	now := time.Now()
	for _, p := range g.participants {
		ev, ok := g.advance(p, tick, now)
		if !ok {
			continue
		}
		if err := g.sink.Submit(ctx, ev); err != nil {
			return fmt.Errorf("submitting %s: %w", p.id, err)
		}
	}
	return nil
}

// advance moves p one tick. It reports false when the device stays silent.
func (g *Simulator) advance(p *simParticipant, tick int, now time.Time) (Event, bool) {
	if p.pattern == "dropout" {
		// Cycle of 60 ticks: 45 transmitting, then an explicit disconnect and
		// 15 silent ticks.
		phase := tick % 60
		switch {
		case phase == 45:
			return Disconnect(p.id), true
		case phase > 45:
			return Event{}, false
		}
	}

	target := g.target(p, tick)
	step := (target - p.hr) / 4
	jitter := g.rng.Intn(7) - 3
	p.hr = clamp(p.hr+step+jitter, 40, 210)

	return SampleUpdate(p.id, p.hr, p.source, now), true
}

// target is the heart rate p is drifting towards at tick.
func (g *Simulator) target(p *simParticipant, tick int) int {
	span := p.peak - p.resting
	switch p.pattern {
	case "interval":
		// 20 ticks hard, 20 ticks easy.
		if tick%40 < 20 {
			return p.resting + span*90/100
		}
		return p.resting + span*55/100
	case "warmup":
		// Linear ramp to 85% over 120 ticks, then hold.
		pct := min(tick*85/120, 85)
		return p.resting + span*pct/100
	case "methodical":
		pace := 0.65 + 0.15*math.Sin(float64(tick)/10.0)
		return p.resting + int(float64(span)*pace)
	default:
		return p.resting + span*70/100
	}
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
