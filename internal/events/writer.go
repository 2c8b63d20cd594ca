package events

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"chartline/internal/domain"
)

// Writer appends journal events to the sqlite events table.
type Writer struct {
	DB *sql.DB
}

// Append inserts e inside tx.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, e domain.Event) error {
	payload := e.Payload
	if payload == "" {
		payload = "{}"
	}
	_, err := tx.ExecContext(ctx, `INSERT INTO events(ts,type,org_id,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?,?)`,
		e.TS, e.Type, e.OrgID, e.EntityKind, nullable(e.EntityID), e.ActorID, payload)
	return err
}

// Record appends e in its own transaction.
func (w Writer) Record(ctx context.Context, e domain.Event) error {
	tx, err := w.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin event tx: %w", err)
	}
	defer tx.Rollback()
	if err := w.Append(ctx, tx, e); err != nil {
		return fmt.Errorf("append event %s: %w", e.Type, err)
	}
	return tx.Commit()
}

// Memory keeps events in process. It backs the journal when the store is not sqlite.
type Memory struct {
	mu     sync.Mutex
	events []domain.Event
	limit  int
}

// NewMemory keeps at most limit events; older ones are dropped first.
func NewMemory(limit int) *Memory {
	if limit <= 0 {
		limit = 1000
	}
	return &Memory{limit: limit}
}

func (m *Memory) Record(_ context.Context, e domain.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.ID = 1
	if n := len(m.events); n > 0 {
		e.ID = m.events[n-1].ID + 1
	}
	m.events = append(m.events, e)
	if len(m.events) > m.limit {
		m.events = m.events[len(m.events)-m.limit:]
	}
	return nil
}

// Latest returns up to limit events of orgID, newest first.
func (m *Memory) Latest(orgID string, limit int) []domain.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Event
	for i := len(m.events) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if orgID == "" || m.events[i].OrgID == orgID {
			out = append(out, m.events[i])
		}
	}
	return out
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

// Events lists orgID's newest events.
func (m *Memory) Events(_ context.Context, orgID string, limit int) ([]domain.Event, error) {
	return m.Latest(orgID, limit), nil
}
