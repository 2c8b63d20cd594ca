package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"chartline/internal/domain"
	"chartline/internal/store"
)

// Repo is the sqlite durable store: one library blob per organization plus the audit events.
type Repo struct {
	DB  *sql.DB
	Now func() time.Time
}

var _ store.Store = Repo{}

func (r Repo) now() time.Time {
	if r.Now == nil {
		return time.Now()
	}
	return r.Now()
}

func (r Repo) Load(ctx context.Context, orgID string) ([]byte, error) {
	if orgID == "" {
		return nil, store.ErrInvalidOrg
	}
	var blob string
	err := r.DB.QueryRowContext(ctx, `SELECT blob FROM org_libraries WHERE org_id=?`, orgID).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return []byte(blob), nil
}

func (r Repo) Save(ctx context.Context, orgID string, blob []byte) error {
	if orgID == "" {
		return store.ErrInvalidOrg
	}
	_, err := r.DB.ExecContext(ctx, `INSERT INTO org_libraries(org_id,blob,size,updated_at) VALUES (?,?,?,?)
ON CONFLICT(org_id) DO UPDATE SET blob=excluded.blob, size=excluded.size, updated_at=excluded.updated_at`,
		orgID, string(blob), len(blob), r.now().UTC().Format(time.RFC3339))
	return err
}

// OrgSummary describes one stored library.
type OrgSummary struct {
	OrgID     string `json:"org_id"`
	Size      int64  `json:"size"`
	UpdatedAt string `json:"updated_at"`
}

// ListOrgs returns every organization with a stored library, most recently updated first.
func (r Repo) ListOrgs(ctx context.Context) ([]OrgSummary, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT org_id,size,updated_at FROM org_libraries ORDER BY updated_at DESC, org_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []OrgSummary
	for rows.Next() {
		var s OrgSummary
		if err := rows.Scan(&s.OrgID, &s.Size, &s.UpdatedAt); err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

// EventFilter narrows event queries. Zero values do not filter.
type EventFilter struct {
	OrgID      string
	Type       string
	EntityKind string
	EntityID   string
}

func (f EventFilter) where(cursorClause string, cursor int64) (string, []any) {
	clauses := []string{"1=1"}
	var args []any
	if f.OrgID != "" {
		clauses = append(clauses, "org_id=?")
		args = append(args, f.OrgID)
	}
	if f.Type != "" {
		clauses = append(clauses, "type=?")
		args = append(args, f.Type)
	}
	if f.EntityKind != "" {
		clauses = append(clauses, "entity_kind=?")
		args = append(args, f.EntityKind)
	}
	if f.EntityID != "" {
		clauses = append(clauses, "entity_id=?")
		args = append(args, f.EntityID)
	}
	if cursor > 0 {
		clauses = append(clauses, cursorClause)
		args = append(args, cursor)
	}
	return "WHERE " + strings.Join(clauses, " AND "), args
}

// LatestEvents returns up to limit events, newest first, older than cursor when it is set.
func (r Repo) LatestEvents(ctx context.Context, limit int, cursor int64, f EventFilter) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	where, args := f.where("id<?", cursor)
	query := fmt.Sprintf(`SELECT id,ts,type,org_id,entity_kind,entity_id,actor_id,payload_json FROM events %s ORDER BY id DESC LIMIT ?`, where)
	return r.queryEvents(ctx, query, append(args, limit)...)
}

// EventsAfter returns events with IDs greater than the cursor in ascending order.
func (r Repo) EventsAfter(ctx context.Context, limit int, cursor int64, f EventFilter) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	where, args := f.where("id>?", cursor)
	query := fmt.Sprintf(`SELECT id,ts,type,org_id,entity_kind,entity_id,actor_id,payload_json FROM events %s ORDER BY id ASC LIMIT ?`, where)
	return r.queryEvents(ctx, query, append(args, limit)...)
}

func (r Repo) queryEvents(ctx context.Context, query string, args ...any) ([]domain.Event, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		var entityID, payload sql.NullString
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.OrgID, &e.EntityKind, &entityID, &e.ActorID, &payload); err != nil {
			return nil, err
		}
		e.EntityID = entityID.String
		e.Payload = payload.String
		res = append(res, e)
	}
	return res, rows.Err()
}

// LatestEventID returns the most recent event ID for an organization.
func (r Repo) LatestEventID(ctx context.Context, orgID string) (int64, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT COALESCE(MAX(id),0) FROM events WHERE org_id=?`, orgID)
	var id int64
	if err := row.Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// Events lists orgID's newest events.
func (r Repo) Events(ctx context.Context, orgID string, limit int) ([]domain.Event, error) {
	return r.LatestEvents(ctx, limit, 0, EventFilter{OrgID: orgID})
}
