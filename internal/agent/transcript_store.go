package agent

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/arcagent/gateway/pkg/logging"
)

// Message directions recorded in the transcript.
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// TranscriptStore persists an audit trail of every message that crosses the
// gateway. A nil store disables transcripts entirely; every method is
// nil-safe so callers do not branch.
type TranscriptStore struct {
	db     *sql.DB
	logger *logging.Logger
}

// NewTranscriptStore wraps an open database handle.
func NewTranscriptStore(db *sql.DB, logger *logging.Logger) *TranscriptStore {
	if db == nil {
		panic("agent: transcript db cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &TranscriptStore{db: db, logger: logger}
}

// EnsureSchema creates the transcript table when it does not exist yet.
func (s *TranscriptStore) EnsureSchema(ctx context.Context) error {
	if s == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS message_transcripts (
			id         UUID PRIMARY KEY,
			sender     TEXT NOT NULL,
			direction  TEXT NOT NULL,
			body       TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("agent: transcript schema: %w", err)
	}
	return nil
}

// Record appends one transcript row. Failures are logged, not returned: the
// audit trail must never block message processing.
func (s *TranscriptStore) Record(ctx context.Context, sender, direction, body string) {
	if s == nil {
		return
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO message_transcripts (id, sender, direction, body, created_at) VALUES ($1, $2, $3, $4, $5)`,
		uuid.NewString(), sender, direction, body, time.Now().UTC(),
	)
	if err != nil {
		s.logger.Error("failed to record transcript", "error", err, "sender", sender, "direction", direction)
	}
}

// Recent returns the sender's latest transcript rows, newest first.
func (s *TranscriptStore) Recent(ctx context.Context, sender string, limit int) ([]TranscriptEntry, error) {
	if s == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT sender, direction, body, created_at FROM message_transcripts WHERE sender = $1 ORDER BY created_at DESC LIMIT $2`,
		sender, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("agent: transcript query: %w", err)
	}
	defer rows.Close()

	var entries []TranscriptEntry
	for rows.Next() {
		var e TranscriptEntry
		if err := rows.Scan(&e.Sender, &e.Direction, &e.Body, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("agent: transcript scan: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("agent: transcript rows: %w", err)
	}
	return entries, nil
}

// TranscriptEntry is one row of the message audit trail.
type TranscriptEntry struct {
	Sender    string
	Direction string
	Body      string
	CreatedAt time.Time
}
