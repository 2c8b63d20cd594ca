package events

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chartline/internal/db"
	"chartline/internal/domain"
	"chartline/internal/migrate"
)

func TestWriterRecord(t *testing.T) {
	ctx := context.Background()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, migrate.Migrate(ctx, conn))

	w := Writer{DB: conn}
	require.NoError(t, w.Record(ctx, domain.Event{TS: "2024-01-01T00:00:00Z", Type: "artifact.created", OrgID: "acme", EntityKind: "artifact", EntityID: "a1", ActorID: "u1"}))

	var payload string
	var entity *string
	require.NoError(t, conn.QueryRowContext(ctx, `SELECT payload_json, entity_id FROM events WHERE type='artifact.created'`).Scan(&payload, &entity))
	assert.Equal(t, "{}", payload)
	require.NotNil(t, entity)
	assert.Equal(t, "a1", *entity)
}

func TestMemoryJournal(t *testing.T) {
	m := NewMemory(3)
	for i, org := range []string{"acme", "globex", "acme", "acme"} {
		require.NoError(t, m.Record(context.Background(), domain.Event{OrgID: org, Type: "t", ActorID: string(rune('a' + i))}))
	}
	got := m.Latest("acme", 0)
	require.Len(t, got, 2)
	assert.Equal(t, int64(4), got[0].ID)
	assert.Equal(t, int64(3), got[1].ID)
	assert.Len(t, m.Latest("", 10), 3)
	assert.Len(t, m.Latest("acme", 1), 1)
}
