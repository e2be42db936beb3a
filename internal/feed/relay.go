package feed

import (
	"log"
	"sync"
	"time"
)

// Relay fans applied events out to subscribers such as replica displays.
// Publish never blocks: a subscriber whose buffer is full misses the event.
type Relay struct {
	mu     sync.Mutex
	subs   map[int]chan Event
	nextID int

	dropped     int
	lastDropLog time.Time
}

func NewRelay() *Relay {
	return &Relay{subs: make(map[int]chan Event)}
}

// Subscribe registers a subscriber with the given buffer size. The returned
// cancel func unregisters it and closes the channel; it is safe to call more
// than once.
func (r *Relay) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Event, buffer)

	r.mu.Lock()
	id := r.nextID
	r.nextID++
	r.subs[id] = ch
	r.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.subs, id)
			r.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

func (r *Relay) Publish(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ch := range r.subs {
		select {
		case ch <- ev:
		default:
			r.dropped++
		}
	}
	if r.dropped > 0 && time.Since(r.lastDropLog) >= 10*time.Second {
		log.Printf("feed relay: dropped %d events for slow subscribers", r.dropped)
		r.dropped = 0
		r.lastDropLog = time.Now()
	}
}

func (r *Relay) Subscribers() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}
