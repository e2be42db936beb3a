// Package apiclient is a REST client for the cardiolive server, used by the
// replica display and the hrctl command.
package apiclient

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cardio-live/cardiolive/internal/aggregate"
	"github.com/cardio-live/cardiolive/internal/handoff"
	"github.com/cardio-live/cardiolive/internal/session"
	"github.com/cardio-live/cardiolive/internal/ws"
)

// ErrNotFound is returned when the server answers 404.
var ErrNotFound = errors.New("not found")

// StatusError carries a non-2xx response.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.Code, strings.TrimSpace(e.Body))
}

func (e *StatusError) Unwrap() error {
	if e.Code == http.StatusNotFound {
		return ErrNotFound
	}
	return nil
}

// Client makes REST calls to the cardiolive server.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
}

// New creates a client targeting the given base URL (e.g. "http://127.0.0.1:8080").
func New(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// BaseURL returns the server address the client targets.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Sessions fetches /api/sessions.
func (c *Client) Sessions() ([]session.Session, error) {
	var out []session.Session
	if err := c.do(http.MethodGet, "/api/sessions", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Session fetches one session by id.
func (c *Client) Session(id string) (session.Session, error) {
	var out session.Session
	err := c.do(http.MethodGet, "/api/sessions/"+url.PathEscape(id), nil, &out)
	return out, err
}

// CreateSession sends POST /api/sessions. display also publishes the new
// session to the live display.
func (c *Client) CreateSession(name string, roster []string, display bool) (session.Session, error) {
	body := ws.CreateSessionRequest{Name: name, Roster: roster, Display: display}
	var out session.Session
	err := c.do(http.MethodPost, "/api/sessions", body, &out)
	return out, err
}

// SetRoster replaces a session's roster.
func (c *Client) SetRoster(id string, roster []string) (session.Session, error) {
	if roster == nil {
		roster = []string{}
	}
	var out session.Session
	err := c.do(http.MethodPut, "/api/sessions/"+url.PathEscape(id)+"/roster", ws.RosterRequest{Roster: roster}, &out)
	return out, err
}

// EndSession sends POST /api/sessions/{id}/end.
func (c *Client) EndSession(id string) (session.Session, error) {
	var out session.Session
	err := c.do(http.MethodPost, "/api/sessions/"+url.PathEscape(id)+"/end", nil, &out)
	return out, err
}

// DeleteSession sends DELETE /api/sessions/{id}.
func (c *Client) DeleteSession(id string) error {
	return c.do(http.MethodDelete, "/api/sessions/"+url.PathEscape(id), nil, nil)
}

// PublishHandoff points the live display at session id.
func (c *Client) PublishHandoff(id string) (handoff.Token, error) {
	var out handoff.Token
	err := c.do(http.MethodPost, "/api/sessions/"+url.PathEscape(id)+"/display", nil, &out)
	return out, err
}

// ReadHandoff fetches the live session token. ok is false when none has been
// published.
func (c *Client) ReadHandoff() (handoff.Token, bool, error) {
	var out handoff.Token
	err := c.do(http.MethodGet, "/api/handoff", nil, &out)
	if errors.Is(err, ErrNotFound) {
		return handoff.Token{}, false, nil
	}
	if err != nil {
		return handoff.Token{}, false, err
	}
	return out, true, nil
}

// View fetches the most recent broadcast view.
func (c *Client) View() (aggregate.View, error) {
	var out aggregate.View
	err := c.do(http.MethodGet, "/api/view", nil, &out)
	return out, err
}

// SendSamples posts samples to the ingest endpoint.
func (c *Client) SendSamples(samples ...ws.SampleRequest) (int, error) {
	var out ws.FeedResponse
	if err := c.do(http.MethodPost, "/api/feed/samples", samples, &out); err != nil {
		return 0, err
	}
	return out.Accepted, nil
}

// Disconnect reports a device disconnect for participant id.
func (c *Client) Disconnect(id string) error {
	return c.do(http.MethodPost, "/api/feed/disconnect", ws.DisconnectRequest{ParticipantID: id}, nil)
}

// Health fetches /api/health.
func (c *Client) Health() (ws.HealthResponse, error) {
	var out ws.HealthResponse
	err := c.do(http.MethodGet, "/api/health", nil, &out)
	return out, err
}

// FeedURL returns the websocket address of the device feed stream.
func (c *Client) FeedURL() string {
	return c.streamURL("/ws/feed")
}

// ViewURL returns the websocket address of the view stream.
func (c *Client) ViewURL() string {
	return c.streamURL("/ws")
}

func (c *Client) streamURL(path string) string {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "ws://127.0.0.1:8080" + path
	}
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = path
	return u.String()
}

func (c *Client) do(method, path string, body, out interface{}) error {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, c.baseURL+path, r)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.setAuth(req)
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: string(respBody)}
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) setAuth(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}
