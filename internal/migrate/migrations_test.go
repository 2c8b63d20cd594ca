package migrate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"chartline/internal/db"
)

func TestMigrateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	defer conn.Close()

	v, err := CurrentVersion(ctx, conn)
	require.Error(t, err, "schema_version does not exist yet")
	require.Zero(t, v)

	require.NoError(t, Migrate(ctx, conn))
	require.NoError(t, Migrate(ctx, conn))

	latest, err := Latest()
	require.NoError(t, err)
	require.Equal(t, 1, latest)

	v, err = CurrentVersion(ctx, conn)
	require.NoError(t, err)
	require.Equal(t, latest, v)

	_, err = conn.ExecContext(ctx, `INSERT INTO org_libraries(org_id,blob,size,updated_at) VALUES ('acme','{}',2,'2024-01-01T00:00:00Z')`)
	require.NoError(t, err)
}
