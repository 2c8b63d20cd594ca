package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, BackendSQLite, cfg.Storage.Backend)
	assert.Equal(t, []string{"admin", "manager", "team_lead"}, cfg.Roles.Elevated)
	assert.Equal(t, 6, cfg.Catalog.FeaturedLimit)
	assert.Equal(t, 30*time.Second, cfg.Cache.LibraryTTL)
	assert.Equal(t, "heuristic-v1", cfg.Generation.Model)
	assert.Equal(t, "/v0", cfg.Server.BasePath)
}

func TestFromYAMLOverlaysDefaults(t *testing.T) {
	cfg, err := FromYAML([]byte(`
storage:
  backend: minio
  minio:
    endpoint: s3.local:9000
roles:
  elevated: [owner]
cache:
  library_ttl: 2m
preload_orgs: [acme, globex]
`))
	require.NoError(t, err)
	assert.Equal(t, BackendMinio, cfg.Storage.Backend)
	assert.Equal(t, "chartline", cfg.Storage.Minio.Bucket)
	assert.Equal(t, []string{"owner"}, cfg.Roles.Elevated)
	assert.Equal(t, 2*time.Minute, cfg.Cache.LibraryTTL)
	assert.Equal(t, []string{"acme", "globex"}, cfg.PreloadOrgs)
	assert.Equal(t, 10, cfg.Catalog.PopularLimit)
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"backend":      "storage:\n  backend: floppy\n",
		"minio":        "storage:\n  backend: minio\n  minio:\n    endpoint: \"\"\n",
		"elevated":     "roles:\n  elevated: []\n",
		"empty role":   "roles:\n  team: [\"\"]\n",
		"limit":        "catalog:\n  popular_limit: -1\n",
		"model":        "generation:\n  model: \"\"\n",
		"log level":    "logging:\n  level: chatty\n",
		"exporter":     "tracing:\n  exporter: pigeon\n",
		"preload":      "preload_orgs: [\"\"]\n",
		"invalid yaml": "server: [",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := FromYAML([]byte(doc))
			require.Error(t, err)
		})
	}
}

func TestLoadFromWorkspace(t *testing.T) {
	dir := t.TempDir()
	_, err := Load(dir)
	require.ErrorContains(t, err, "not found")

	cfg, err := LoadOptional(dir)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte("generation:\n  seed: 42\n"), 0o644))
	cfg, err = Load(dir)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), cfg.Generation.Seed)
	assert.Equal(t, filepath.Join(dir, FileName), Path(dir))
}
