package repo

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chartline/internal/db"
	"chartline/internal/domain"
	"chartline/internal/events"
	"chartline/internal/migrate"
	"chartline/internal/registry"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.NoError(t, migrate.Migrate(context.Background(), conn))
	return conn
}

func TestLoadSave(t *testing.T) {
	ctx := context.Background()
	r := Repo{DB: openTestDB(t), Now: func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }}

	b, err := r.Load(ctx, "acme")
	require.NoError(t, err)
	assert.Nil(t, b)

	require.NoError(t, r.Save(ctx, "acme", []byte(`{"revision":1}`)))
	require.NoError(t, r.Save(ctx, "acme", []byte(`{"revision":2}`)))
	require.NoError(t, r.Save(ctx, "globex", []byte(`{}`)))

	b, err = r.Load(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, `{"revision":2}`, string(b))

	orgs, err := r.ListOrgs(ctx)
	require.NoError(t, err)
	require.Len(t, orgs, 2)
	assert.Equal(t, OrgSummary{OrgID: "acme", Size: 14, UpdatedAt: "2024-01-02T03:04:05Z"}, orgs[0])
}

func TestRegistryOverSQLite(t *testing.T) {
	ctx := context.Background()
	conn := openTestDB(t)
	r := Repo{DB: conn}
	opts := registry.Options{Journal: events.Writer{DB: conn}}

	reg, err := registry.Open(ctx, "acme", r, opts)
	require.NoError(t, err)
	def := domain.Definition{Name: "Revenue", Shape: domain.ShapeBar, Category: domain.CategorySales}
	a, err := reg.SaveGenerated(ctx, registry.SaveRequest{Visibility: domain.VisibilityOrganization, RequestApproval: true}, def, domain.Creator{ID: "u1"})
	require.NoError(t, err)
	_, err = reg.ProcessApproval(ctx, domain.ApprovalRequest{ArtifactID: a.ID, Action: domain.ActionReject, Reason: "numbers"}, "boss")
	require.NoError(t, err)

	reloaded, err := registry.Open(ctx, "acme", r, opts)
	require.NoError(t, err)
	got, ok := reloaded.Get(a.ID)
	require.True(t, ok)
	assert.Equal(t, domain.ApprovalRejected, got.Approval.State)
	assert.Equal(t, "numbers", got.Approval.RejectionReason)
	assert.Equal(t, int64(2), reloaded.Revision())

	evts, err := r.LatestEvents(ctx, 10, 0, EventFilter{OrgID: "acme"})
	require.NoError(t, err)
	require.Len(t, evts, 2)
	assert.Equal(t, registry.EventApproval, evts[0].Type)
	assert.Equal(t, registry.EventCreated, evts[1].Type)
	assert.Equal(t, a.ID, evts[0].EntityID)
	assert.Contains(t, evts[0].Payload, `"reason":"numbers"`)

	after, err := r.EventsAfter(ctx, 10, evts[1].ID, EventFilter{EntityID: a.ID})
	require.NoError(t, err)
	require.Len(t, after, 1)
	assert.Equal(t, evts[0].ID, after[0].ID)

	older, err := r.LatestEvents(ctx, 10, evts[0].ID, EventFilter{Type: registry.EventCreated})
	require.NoError(t, err)
	require.Len(t, older, 1)

	last, err := r.LatestEventID(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, evts[0].ID, last)
}
