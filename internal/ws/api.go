package ws

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/cardio-live/cardiolive/internal/feed"
	"github.com/cardio-live/cardiolive/internal/health"
	"github.com/cardio-live/cardiolive/internal/session"
)

const maxBodyBytes = 1 << 20

// CreateSessionRequest is the body of POST /api/sessions. Display publishes
// the new session to the live display in the same call.
type CreateSessionRequest struct {
	Name    string   `json:"name"`
	Roster  []string `json:"roster"`
	Display bool     `json:"display,omitempty"`
}

// RosterRequest is the body of PUT /api/sessions/{id}/roster.
type RosterRequest struct {
	Roster []string `json:"roster"`
}

// SampleRequest is one inbound sample on POST /api/feed/samples. Source is
// the raw adapter name ("bluetooth", "terra", ...).
type SampleRequest struct {
	ParticipantID string    `json:"participantId"`
	HeartRate     int       `json:"heartRate"`
	Source        string    `json:"source"`
	ObservedAt    time.Time `json:"observedAt"`
}

// DisconnectRequest is the body of POST /api/feed/disconnect.
type DisconnectRequest struct {
	ParticipantID string `json:"participantId"`
}

// FeedResponse reports how many events were queued.
type FeedResponse struct {
	Accepted int `json:"accepted"`
}

// HealthResponse is returned by GET /api/health.
type HealthResponse struct {
	Status       string          `json:"status"`
	Uptime       string          `json:"uptime,omitempty"`
	ActiveID     string          `json:"activeSessionId,omitempty"`
	Participants int             `json:"participants"`
	ViewClients  int             `json:"viewClients"`
	FeedClients  int             `json:"feedClients"`
	Ticks        uint64          `json:"ticks"`
	FeedPending  int             `json:"feedPending"`
	Feed         feed.Counters   `json:"feed"`
	Process      *health.Process `json:"process,omitempty"`
	Host         *health.Host    `json:"host,omitempty"`
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.control.Sessions())
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}

	sess, err := s.control.CreateSession(r.Context(), req.Name, req.Roster)
	if err != nil {
		writeError(w, err)
		return
	}
	if req.Display {
		if err := s.control.PublishHandoff(r.Context(), sess.ID); err != nil {
			log.Printf("publishing handoff for %s: %v", sess.ID, err)
		}
	}
	writeJSON(w, http.StatusCreated, sess)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.control.Session(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.control.DeleteSession(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetRoster(w http.ResponseWriter, r *http.Request) {
	var req RosterRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	sess, err := s.control.SetRoster(r.Context(), r.PathValue("id"), req.Roster)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.control.EndSession(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	sess, err := s.control.Session(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handlePublishHandoff(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.control.PublishHandoff(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	s.handleReadHandoff(w, r)
}

func (s *Server) handleReadHandoff(w http.ResponseWriter, r *http.Request) {
	tok, ok, err := s.control.ReadHandoff(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if !ok {
		writeJSONError(w, http.StatusNotFound, errors.New("no live session"))
		return
	}
	writeJSON(w, http.StatusOK, tok)
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	v, ok := s.scheduler.Last()
	if !ok {
		writeJSONError(w, http.StatusServiceUnavailable, errors.New("no view computed yet"))
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// handleFeedSamples accepts a single sample object or an array of them.
// Invalid samples are rejected without affecting the valid ones.
func (s *Server) handleFeedSamples(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}

	var reqs []SampleRequest
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		err = json.Unmarshal(trimmed, &reqs)
	} else {
		var one SampleRequest
		err = json.Unmarshal(trimmed, &one)
		reqs = []SampleRequest{one}
	}
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}

	accepted := 0
	var firstErr error
	for _, req := range reqs {
		ev := feed.SampleUpdate(req.ParticipantID, req.HeartRate, req.Source, req.ObservedAt)
		if err := s.ingest.Submit(r.Context(), ev); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		accepted++
	}
	if accepted == 0 && firstErr != nil {
		writeError(w, firstErr)
		return
	}
	writeJSON(w, http.StatusAccepted, FeedResponse{Accepted: accepted})
}

func (s *Server) handleFeedDisconnect(w http.ResponseWriter, r *http.Request) {
	var req DisconnectRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.ingest.Submit(r.Context(), feed.Disconnect(req.ParticipantID)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, FeedResponse{Accepted: 1})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:       "ok",
		Participants: s.registry.Size(),
		ViewClients:  s.viewHub.ClientCount(),
		FeedClients:  s.feedHub.ClientCount(),
		Ticks:        s.scheduler.Ticks(),
		FeedPending:  s.ingest.Pending(),
		Feed:         s.ingest.Counters(),
	}
	if active, ok := s.control.Active(); ok {
		resp.ActiveID = active.ID
	}
	if !s.scheduler.Running() {
		resp.Status = "degraded"
	}
	if s.health != nil {
		resp.Uptime = s.health.Uptime().Round(time.Second).String()
		if p, err := s.health.Process(r.Context()); err == nil {
			resp.Process = &p
		}
		if h, err := s.health.Host(r.Context()); err == nil {
			resp.Host = &h
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	return nil
}

// writeError maps domain errors to HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, session.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, session.ErrActiveSessionExists), errors.Is(err, session.ErrSessionEnded):
		status = http.StatusConflict
	case errors.Is(err, session.ErrInvalidName), errors.Is(err, feed.ErrInvalidSample):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		log.Printf("api error: %v", err)
	}
	writeJSONError(w, status, err)
}

func writeJSONError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("writing response: %v", err)
	}
}
