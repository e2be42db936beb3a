// Package sqlite persists session records and the handoff token in SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/cardio-live/cardiolive/internal/handoff"
	"github.com/cardio-live/cardiolive/internal/session"
	"github.com/cardio-live/cardiolive/internal/storage/sqlite/migrations"
)

// Store implements session.Repository and handoff.Store.
type Store struct {
	sqlDB *sql.DB
	now   func() time.Time
}

var (
	_ session.Repository = (*Store)(nil)
	_ handoff.Store      = (*Store)(nil)
)

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens the database at path and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(context.Background(), sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB, now: time.Now}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// SaveSession inserts or replaces one session record and its roster.
func (s *Store) SaveSession(ctx context.Context, sess session.Session) error {
	if strings.TrimSpace(sess.ID) == "" {
		return fmt.Errorf("session id is required")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save session: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO sessions (id, name, created_at, active)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   name = excluded.name,
		   active = excluded.active`,
		sess.ID, sess.Name, toMillis(sess.CreatedAt), boolToInt(sess.Active),
	); err != nil {
		return fmt.Errorf("save session %s: %w", sess.ID, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM session_roster WHERE session_id = ?`, sess.ID); err != nil {
		return fmt.Errorf("clear roster %s: %w", sess.ID, err)
	}
	for _, pid := range sess.Roster {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO session_roster (session_id, participant_id) VALUES (?, ?)`,
			sess.ID, pid,
		); err != nil {
			return fmt.Errorf("save roster %s: %w", sess.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save session %s: %w", sess.ID, err)
	}
	return nil
}

// DeleteSession removes a session record and its roster. Deleting an absent
// id is not an error.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete session: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM session_roster WHERE session_id = ?`, id); err != nil {
		return fmt.Errorf("delete roster %s: %w", id, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	return tx.Commit()
}

// ListSessions returns every stored session, newest first.
func (s *Store) ListSessions(ctx context.Context) ([]session.Session, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT id, name, created_at, active FROM sessions ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []session.Session
	index := make(map[string]int)
	for rows.Next() {
		var (
			sess      session.Session
			createdAt int64
			active    int
		)
		if err := rows.Scan(&sess.ID, &sess.Name, &createdAt, &active); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sess.CreatedAt = fromMillis(createdAt)
		sess.Active = active != 0
		sess.Roster = []string{}
		index[sess.ID] = len(out)
		out = append(out, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}

	rosterRows, err := s.sqlDB.QueryContext(ctx,
		`SELECT session_id, participant_id FROM session_roster ORDER BY session_id, participant_id`)
	if err != nil {
		return nil, fmt.Errorf("list rosters: %w", err)
	}
	defer rosterRows.Close()

	for rosterRows.Next() {
		var sid, pid string
		if err := rosterRows.Scan(&sid, &pid); err != nil {
			return nil, fmt.Errorf("scan roster: %w", err)
		}
		if i, ok := index[sid]; ok {
			out[i].Roster = append(out[i].Roster, pid)
		}
	}
	if err := rosterRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rosters: %w", err)
	}
	return out, nil
}

// Publish stores the handoff token, replacing any previous one.
func (s *Store) Publish(ctx context.Context, sessionID string) error {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return fmt.Errorf("handoff: empty session id")
	}
	if _, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO handoff (slot, session_id, published_at) VALUES (1, ?, ?)
		 ON CONFLICT (slot) DO UPDATE SET
		   session_id = excluded.session_id,
		   published_at = excluded.published_at`,
		sessionID, toMillis(s.now()),
	); err != nil {
		return fmt.Errorf("publish handoff: %w", err)
	}
	return nil
}

// Read returns the stored handoff token, if any.
func (s *Store) Read(ctx context.Context) (handoff.Token, bool, error) {
	var (
		tok         handoff.Token
		publishedAt int64
	)
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT session_id, published_at FROM handoff WHERE slot = 1`,
	).Scan(&tok.SessionID, &publishedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return handoff.Token{}, false, nil
	}
	if err != nil {
		return handoff.Token{}, false, fmt.Errorf("read handoff: %w", err)
	}
	tok.PublishedAt = fromMillis(publishedAt)
	return tok, true, nil
}

// Clear removes the handoff token.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM handoff WHERE slot = 1`); err != nil {
		return fmt.Errorf("clear handoff: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
