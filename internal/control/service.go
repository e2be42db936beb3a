// Package control implements the coach-facing operations: session lifecycle
// and publishing a session to the live display.
package control

import (
	"context"
	"fmt"
	"log"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/cardio-live/cardiolive/internal/handoff"
	"github.com/cardio-live/cardiolive/internal/session"
)

var tracer = otel.Tracer("github.com/cardio-live/cardiolive/internal/control")

// Service wraps the session registry and handoff store.
type Service struct {
	sessions *session.Registry
	handoff  handoff.Store
}

// NewService creates a Service. store may be nil, in which case handoff
// operations are unavailable.
func NewService(sessions *session.Registry, store handoff.Store) *Service {
	return &Service{sessions: sessions, handoff: store}
}

func (s *Service) CreateSession(ctx context.Context, name string, roster []string) (session.Session, error) {
	ctx, span := tracer.Start(ctx, "control.create_session",
		trace.WithAttributes(attribute.Int("session.roster_size", len(roster))))
	defer span.End()

	sess, err := s.sessions.Create(ctx, name, roster)
	if err != nil {
		return session.Session{}, fail(span, err)
	}
	span.SetAttributes(attribute.String("session.id", sess.ID))
	log.Printf("Session created: %s (%q, %d participants)", sess.ID, sess.Name, len(sess.Roster))
	return sess, nil
}

func (s *Service) SetRoster(ctx context.Context, id string, roster []string) (session.Session, error) {
	ctx, span := tracer.Start(ctx, "control.set_roster", trace.WithAttributes(
		attribute.String("session.id", id),
		attribute.Int("session.roster_size", len(roster)),
	))
	defer span.End()

	if err := s.sessions.SetRoster(ctx, id, roster); err != nil {
		return session.Session{}, fail(span, err)
	}
	sess, _ := s.sessions.Get(id)
	return sess, nil
}

func (s *Service) EndSession(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "control.end_session", trace.WithAttributes(attribute.String("session.id", id)))
	defer span.End()

	if err := s.sessions.End(ctx, id); err != nil {
		return fail(span, err)
	}
	log.Printf("Session ended: %s", id)
	return nil
}

// DeleteSession removes a session. A handoff token naming it is cleared so a
// display launched later does not bind to a session that no longer exists.
func (s *Service) DeleteSession(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "control.delete_session", trace.WithAttributes(attribute.String("session.id", id)))
	defer span.End()

	if err := s.sessions.Delete(ctx, id); err != nil {
		return fail(span, err)
	}
	log.Printf("Session deleted: %s", id)

	if s.handoff == nil {
		return nil
	}
	tok, ok, err := s.handoff.Read(ctx)
	if err != nil {
		return fail(span, fmt.Errorf("reading handoff after delete: %w", err))
	}
	if ok && tok.SessionID == id {
		if err := s.handoff.Clear(ctx); err != nil {
			return fail(span, fmt.Errorf("clearing handoff: %w", err))
		}
	}
	return nil
}

// PublishHandoff points the live display at session id.
func (s *Service) PublishHandoff(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "control.publish_handoff", trace.WithAttributes(attribute.String("session.id", id)))
	defer span.End()

	if s.handoff == nil {
		return fail(span, fmt.Errorf("handoff store not configured"))
	}
	if _, ok := s.sessions.Get(id); !ok {
		return fail(span, fmt.Errorf("%w: %s", session.ErrNotFound, id))
	}
	if err := s.handoff.Publish(ctx, id); err != nil {
		return fail(span, err)
	}
	log.Printf("Handoff published: %s", id)
	return nil
}

func (s *Service) ReadHandoff(ctx context.Context) (handoff.Token, bool, error) {
	if s.handoff == nil {
		return handoff.Token{}, false, nil
	}
	return s.handoff.Read(ctx)
}

// Sessions lists every session, newest first.
func (s *Service) Sessions() []session.Session {
	return s.sessions.List()
}

func (s *Service) Session(id string) (session.Session, error) {
	sess, ok := s.sessions.Get(id)
	if !ok {
		return session.Session{}, fmt.Errorf("%w: %s", session.ErrNotFound, id)
	}
	return sess, nil
}

func (s *Service) Active() (session.Session, bool) {
	return s.sessions.Active()
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
