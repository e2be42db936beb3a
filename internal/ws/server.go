package ws

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cardio-live/cardiolive/internal/broadcast"
	"github.com/cardio-live/cardiolive/internal/control"
	"github.com/cardio-live/cardiolive/internal/feed"
	"github.com/cardio-live/cardiolive/internal/health"
	"github.com/cardio-live/cardiolive/internal/live"
	"github.com/cardio-live/cardiolive/internal/session"
)

// TokenHeader is an alternative to the Authorization bearer header.
const TokenHeader = "X-CardioLive-Token"

// Deps are the components the HTTP surface exposes.
type Deps struct {
	Control   *control.Service
	Ingestor  *feed.Ingestor
	Registry  *live.Registry
	Relay     *feed.Relay
	Scheduler *broadcast.Scheduler
	Health    *health.Checker // optional
	Frontend  http.Handler    // optional
}

// Options tunes access control.
type Options struct {
	AuthToken      string
	AllowedOrigins []string
	MaxConns       int
}

type Server struct {
	control   *control.Service
	ingest    *feed.Ingestor
	registry  *live.Registry
	scheduler *broadcast.Scheduler
	health    *health.Checker
	frontend  http.Handler

	viewHub *Broadcaster
	views   *ViewSurface
	feedHub *Broadcaster
	feed    *FeedStream

	allowedOrigins map[string]bool
	allowedHosts   map[string]bool
	authToken      string
}

func NewServer(deps Deps, opts Options) *Server {
	viewHub := NewBroadcaster(opts.MaxConns)
	feedHub := NewBroadcaster(opts.MaxConns)
	s := &Server{
		control:        deps.Control,
		ingest:         deps.Ingestor,
		registry:       deps.Registry,
		scheduler:      deps.Scheduler,
		health:         deps.Health,
		frontend:       deps.Frontend,
		viewHub:        viewHub,
		views:          NewViewSurface(viewHub),
		feedHub:        feedHub,
		feed:           NewFeedStream(feedHub, deps.Registry, deps.Relay),
		allowedOrigins: make(map[string]bool),
		allowedHosts:   make(map[string]bool),
		authToken:      opts.AuthToken,
	}

	for _, origin := range opts.AllowedOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		s.allowedOrigins[trimmed] = true
		if parsed, err := url.Parse(trimmed); err == nil && parsed.Host != "" {
			s.allowedHosts[parsed.Host] = true
		}
	}

	return s
}

// Views returns the websocket view surface, to be attached to the scheduler.
func (s *Server) Views() *ViewSurface {
	return s.views
}

// Run relays feed and session events to websocket clients until ctx is
// done, then disconnects every client.
func (s *Server) Run(ctx context.Context, sessionEvents <-chan session.Event) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.feed.Run(ctx)
	}()
	if sessionEvents != nil {
		s.views.RunSessionEvents(ctx, sessionEvents)
	}
	<-ctx.Done()
	<-done
	s.viewHub.Close()
	s.feedHub.Close()
}

func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws", s.handleWS)
	mux.HandleFunc("GET /ws/feed", s.handleFeedWS)

	mux.HandleFunc("GET /api/sessions", s.authorized(s.handleListSessions))
	mux.HandleFunc("POST /api/sessions", s.authorized(s.handleCreateSession))
	mux.HandleFunc("GET /api/sessions/{id}", s.authorized(s.handleGetSession))
	mux.HandleFunc("DELETE /api/sessions/{id}", s.authorized(s.handleDeleteSession))
	mux.HandleFunc("PUT /api/sessions/{id}/roster", s.authorized(s.handleSetRoster))
	mux.HandleFunc("POST /api/sessions/{id}/end", s.authorized(s.handleEndSession))
	mux.HandleFunc("POST /api/sessions/{id}/display", s.authorized(s.handlePublishHandoff))
	mux.HandleFunc("GET /api/handoff", s.authorized(s.handleReadHandoff))
	mux.HandleFunc("GET /api/view", s.authorized(s.handleView))
	mux.HandleFunc("POST /api/feed/samples", s.authorized(s.handleFeedSamples))
	mux.HandleFunc("POST /api/feed/disconnect", s.authorized(s.handleFeedDisconnect))
	mux.HandleFunc("GET /api/health", s.handleHealth)

	if s.frontend != nil {
		log.Println("Serving embedded dashboard")
		mux.Handle("/", s.frontend)
	}
}

// Handler returns the full route tree wrapped in security headers.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.SetupRoutes(mux)
	return securityHeaders(mux)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	s.serveStream(w, r, s.viewHub, s.views.greeting)
}

func (s *Server) handleFeedWS(w http.ResponseWriter, r *http.Request) {
	s.serveStream(w, r, s.feedHub, s.feed.greeting)
}

func (s *Server) serveStream(w http.ResponseWriter, r *http.Request, hub *Broadcaster, greet func() []WSMessage) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: s.checkOrigin,
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade error: %v", err)
		return
	}

	c, err := hub.AddClient(conn, greet)
	if err != nil {
		log.Printf("WebSocket client rejected (%s): %v", r.RemoteAddr, err)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, err.Error()), time.Now().Add(time.Second))
		conn.Close()
		return
	}
	log.Printf("WebSocket client connected: %s %s", r.URL.Path, r.RemoteAddr)

	go func() {
		defer func() {
			hub.RemoveClient(c)
			log.Printf("WebSocket client disconnected: %s %s", r.URL.Path, r.RemoteAddr)
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (s *Server) authorized(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.authorize(r) {
			writeJSONError(w, http.StatusUnauthorized, errors.New("unauthorized"))
			return
		}
		next(w, r)
	}
}

func (s *Server) authorize(r *http.Request) bool {
	if s.authToken == "" {
		return true
	}

	if r.URL.Query().Get("token") == s.authToken {
		return true
	}

	if r.Header.Get(TokenHeader) == s.authToken {
		return true
	}

	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.authToken {
		return true
	}

	return false
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	if len(s.allowedOrigins) > 0 {
		if s.allowedOrigins[origin] {
			return true
		}
		if parsed, err := url.Parse(origin); err == nil && parsed.Host != "" {
			return s.allowedHosts[parsed.Host]
		}
		return false
	}

	parsed, err := url.Parse(origin)
	if err != nil {
		return false
	}

	host := parsed.Host
	if host == "" {
		return false
	}

	if host == r.Host {
		return true
	}

	if strings.HasPrefix(host, "localhost:") || host == "localhost" {
		return true
	}
	if strings.HasPrefix(host, "127.0.0.1:") || host == "127.0.0.1" {
		return true
	}
	if strings.HasPrefix(host, "[::1]:") || host == "::1" {
		return true
	}

	return false
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-XSS-Protection", "1; mode=block")
		h.Set("Content-Security-Policy", "default-src 'self'; connect-src 'self' ws: wss:")
		next.ServeHTTP(w, r)
	})
}

// ListenAndServe serves handler on host:port until ctx is done, then shuts
// down gracefully.
func ListenAndServe(ctx context.Context, host string, port int, handler http.Handler) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Server listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down: %w", err)
		}
		return nil
	}
}
