// Package handoff persists the id of the session currently shown on the live
// display, so a display process launched independently of the control
// surface can find it. The token is read once at startup; there is no push
// channel between processes.
package handoff

import (
	"context"
	"time"
)

// Token names the live session.
type Token struct {
	SessionID   string    `json:"sessionId"`
	PublishedAt time.Time `json:"publishedAt"`
}

// Store reads and writes the single handoff token. Read reports ok=false
// when no token has been published or it was cleared.
type Store interface {
	Publish(ctx context.Context, sessionID string) error
	Read(ctx context.Context) (Token, bool, error)
	Clear(ctx context.Context) error
}
