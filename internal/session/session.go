package session

import (
	"slices"
	"strings"
	"time"
)

// Session is a coach-created class bound to a roster of participants. While
// Active, the live view is filtered to the roster.
type Session struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	Roster    []string  `json:"roster"`
	Active    bool      `json:"active"`
}

// Clone returns a deep copy so the roster can be mutated independently.
func (s Session) Clone() Session {
	c := s
	c.Roster = slices.Clone(s.Roster)
	if c.Roster == nil {
		c.Roster = []string{}
	}
	return c
}

// HasParticipant reports whether id is on the roster.
func (s Session) HasParticipant(id string) bool {
	_, found := slices.BinarySearch(s.Roster, id)
	return found
}

// RosterSet returns the roster as a set for repeated membership checks.
func (s Session) RosterSet() map[string]struct{} {
	set := make(map[string]struct{}, len(s.Roster))
	for _, id := range s.Roster {
		set[id] = struct{}{}
	}
	return set
}

// normalizeRoster trims, drops empties and duplicates, and sorts ids.
func normalizeRoster(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		out = append(out, id)
	}
	slices.Sort(out)
	return slices.Compact(out)
}
