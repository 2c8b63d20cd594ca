package db

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAppliesPragmas(t *testing.T) {
	dir := t.TempDir()
	conn, err := Open(Config{Workspace: dir, BusyTimeout: 1500 * time.Millisecond})
	require.NoError(t, err)
	defer conn.Close()

	var mode string
	require.NoError(t, conn.QueryRow("PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)

	var timeout int
	require.NoError(t, conn.QueryRow("PRAGMA busy_timeout").Scan(&timeout))
	assert.Equal(t, 1500, timeout)

	assert.FileExists(t, filepath.Join(dir, ".chartline", "chartline.db"))
}

func TestPathDefaultsToCurrentDir(t *testing.T) {
	assert.Equal(t, filepath.Join(".", ".chartline", "chartline.db"), Path(""))
}
