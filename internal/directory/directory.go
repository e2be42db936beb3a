// Package directory resolves participant ids to display names and ages.
//
// Lookups happen on every broadcast tick, so every Directory must answer from
// memory. Slow backends (a CRM over HTTP) sit behind a Cache, which answers
// misses immediately and fills itself in the background.
package directory

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Participant is what the display needs to know about a person.
type Participant struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
	Age  int    `json:"age" yaml:"age"`
}

// Directory answers participant lookups from memory.
type Directory interface {
	Lookup(id string) (Participant, bool)
}

// Static is an in-memory directory, usually loaded from a YAML roster file.
type Static struct {
	mu      sync.RWMutex
	entries map[string]Participant
}

// NewStatic creates a directory holding the given participants.
func NewStatic(participants ...Participant) *Static {
	s := &Static{entries: make(map[string]Participant, len(participants))}
	for _, p := range participants {
		s.Put(p)
	}
	return s
}

func (s *Static) Lookup(id string) (Participant, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.entries[id]
	return p, ok
}

// Put adds or replaces a participant. Entries with an empty id are ignored.
func (s *Static) Put(p Participant) {
	p.ID = strings.TrimSpace(p.ID)
	if p.ID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[p.ID] = p
}

func (s *Static) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

type rosterFile struct {
	Participants []Participant `yaml:"participants"`
}

// LoadFile reads a YAML roster of the form:
//
//	participants:
//	  - id: m-001
//	    name: Alice Martin
//	    age: 34
func LoadFile(path string) (*Static, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading directory file: %w", err)
	}
	var rf rosterFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("parsing directory file: %w", err)
	}
	return NewStatic(rf.Participants...), nil
}

// Chain consults each directory in order and returns the first hit.
type Chain []Directory

func (c Chain) Lookup(id string) (Participant, bool) {
	for _, d := range c {
		if d == nil {
			continue
		}
		if p, ok := d.Lookup(id); ok {
			return p, true
		}
	}
	return Participant{}, false
}
