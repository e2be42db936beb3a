package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// ErrUnknown is returned by a Resolver that has no record for an id.
var ErrUnknown = errors.New("participant unknown")

// Resolver is a potentially slow participant source.
type Resolver interface {
	Resolve(ctx context.Context, id string) (Participant, error)
}

// Cache fronts a Resolver. Lookup never blocks: a miss starts at most one
// background resolution per id and reports not-found until it completes.
// Ids the resolver does not know are retried after retryAfter.
type Cache struct {
	resolver   Resolver
	timeout    time.Duration
	retryAfter time.Duration

	mu       sync.Mutex
	entries  map[string]Participant
	failed   map[string]time.Time
	inflight map[string]bool
	wg       sync.WaitGroup

	now func() time.Time
}

// NewCache wraps resolver. timeout bounds each background resolution.
func NewCache(resolver Resolver, timeout, retryAfter time.Duration) *Cache {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if retryAfter <= 0 {
		retryAfter = time.Minute
	}
	return &Cache{
		resolver:   resolver,
		timeout:    timeout,
		retryAfter: retryAfter,
		entries:    make(map[string]Participant),
		failed:     make(map[string]time.Time),
		inflight:   make(map[string]bool),
		now:        time.Now,
	}
}

func (c *Cache) Lookup(id string) (Participant, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if p, ok := c.entries[id]; ok {
		return p, true
	}
	if c.inflight[id] {
		return Participant{}, false
	}
	if at, ok := c.failed[id]; ok && c.now().Sub(at) < c.retryAfter {
		return Participant{}, false
	}

	c.inflight[id] = true
	c.wg.Add(1)
	go c.resolve(id)
	return Participant{}, false
}

func (c *Cache) resolve(id string) {
	defer c.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	p, err := c.resolver.Resolve(ctx, id)

	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inflight, id)
	if err != nil {
		if !errors.Is(err, ErrUnknown) {
			log.Printf("directory: resolving %s: %v", id, err)
		}
		c.failed[id] = c.now()
		return
	}
	if p.ID == "" {
		p.ID = id
	}
	c.entries[id] = p
	delete(c.failed, id)
}

// Wait blocks until all in-flight resolutions finish.
func (c *Cache) Wait() {
	c.wg.Wait()
}

// HTTPResolver fetches participants from a CRM endpoint at
// GET {base}/participants/{id}, expecting {"id","name","age"}.
type HTTPResolver struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewHTTPResolver creates a resolver targeting baseURL (e.g. "http://crm.local/api").
func NewHTTPResolver(baseURL, token string) *HTTPResolver {
	return &HTTPResolver{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (r *HTTPResolver) Resolve(ctx context.Context, id string) (Participant, error) {
	endpoint := r.baseURL + "/participants/" + url.PathEscape(id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Participant{}, err
	}
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return Participant{}, fmt.Errorf("GET %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return Participant{}, ErrUnknown
	}
	if resp.StatusCode != http.StatusOK {
		return Participant{}, fmt.Errorf("GET %s: status %d", endpoint, resp.StatusCode)
	}

	var p Participant
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return Participant{}, fmt.Errorf("decoding participant %s: %w", id, err)
	}
	return p, nil
}
