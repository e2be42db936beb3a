package ws

import (
	"context"
	"sort"
	"sync"

	"github.com/cardio-live/cardiolive/internal/aggregate"
	"github.com/cardio-live/cardiolive/internal/feed"
	"github.com/cardio-live/cardiolive/internal/live"
	"github.com/cardio-live/cardiolive/internal/session"
)

// ViewSurface is a broadcast.Surface that pushes every tick's view to
// websocket clients. New clients receive the latest view on connect.
type ViewSurface struct {
	b *Broadcaster

	mu   sync.RWMutex
	last *aggregate.View
}

func NewViewSurface(b *Broadcaster) *ViewSurface {
	return &ViewSurface{b: b}
}

// Publish implements broadcast.Surface.
func (s *ViewSurface) Publish(v aggregate.View) {
	s.mu.Lock()
	s.last = &v
	s.mu.Unlock()
	s.b.Broadcast(WSMessage{Type: MsgSnapshot, Payload: v})
}

// PublishSession relays a session lifecycle event.
func (s *ViewSurface) PublishSession(ev session.Event) {
	s.b.Broadcast(WSMessage{
		Type:    MsgSession,
		Payload: SessionPayload{Event: ev.Type.String(), Session: ev.Session},
	})
}

// RunSessionEvents forwards registry events until ctx is done or events is
// closed.
func (s *ViewSurface) RunSessionEvents(ctx context.Context, events <-chan session.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			s.PublishSession(ev)
		}
	}
}

// Last returns the most recent view, if any tick has been published.
func (s *ViewSurface) Last() (aggregate.View, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return aggregate.View{}, false
	}
	return *s.last, true
}

func (s *ViewSurface) greeting() []WSMessage {
	v, ok := s.Last()
	if !ok {
		return nil
	}
	return []WSMessage{{Type: MsgSnapshot, Payload: v}}
}

// FeedStream relays ingested device events to replica displays. A new
// subscriber first receives one sample message per tracked participant.
type FeedStream struct {
	b        *Broadcaster
	registry *live.Registry
	relay    *feed.Relay
}

func NewFeedStream(b *Broadcaster, registry *live.Registry, relay *feed.Relay) *FeedStream {
	return &FeedStream{b: b, registry: registry, relay: relay}
}

// Run forwards relay events to websocket clients until ctx is done.
func (f *FeedStream) Run(ctx context.Context) {
	events, cancel := f.relay.Subscribe(1024)
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			f.b.Broadcast(feedMessage(ev))
		}
	}
}

func (f *FeedStream) greeting() []WSMessage {
	snap := f.registry.Snapshot()
	ids := make([]string, 0, len(snap))
	for id := range snap {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	msgs := make([]WSMessage, 0, len(ids))
	for _, id := range ids {
		msgs = append(msgs, feedMessage(feed.FromSample(snap[id])))
	}
	return msgs
}

func feedMessage(ev feed.Event) WSMessage {
	t := MsgSample
	if ev.Kind == feed.KindDisconnect {
		t = MsgDisconnect
	}
	return WSMessage{Type: t, Payload: ev}
}
