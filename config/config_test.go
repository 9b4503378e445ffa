package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, `
warehouse:
  path: /var/lib/floe
tables:
  - db.events
`))
	require.NoError(t, err)

	require.Equal(t, "local", cfg.Warehouse.Backend)
	require.Equal(t, "file", cfg.Catalog.Backend)
	require.Equal(t, "/var/lib/floe", cfg.Catalog.Dir)
	require.Equal(t, 5, cfg.Commit.Retries)
	require.Equal(t, Duration(100*time.Millisecond), cfg.Commit.BackoffBase)
	require.Equal(t, 4, cfg.Scan.Parallelism)
	require.Equal(t, 5433, cfg.Proxy.Port)
	require.Equal(t, []string{"db.events"}, cfg.Tables)
}

func TestLoadConfigSQL(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, `
warehouse:
  backend: s3
  bucket: floe-warehouse
  region: eu-west-1
catalog:
  backend: sql
  dsn: postgres://floe@localhost/floe
commit:
  retries: 9
  backoff-base: 50ms
`))
	require.NoError(t, err)
	require.Equal(t, "floe-warehouse", cfg.Warehouse.Bucket)
	require.Equal(t, 9, cfg.Commit.Retries)
	require.Equal(t, Duration(50*time.Millisecond), cfg.Commit.BackoffBase)
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"missing local path", "warehouse:\n  backend: local\n"},
		{"missing s3 bucket", "warehouse:\n  backend: s3\n"},
		{"unknown warehouse backend", "warehouse:\n  backend: tape\n"},
		{"missing sql dsn", "warehouse:\n  backend: memory\ncatalog:\n  backend: sql\n"},
		{"unknown catalog backend", "warehouse:\n  backend: memory\ncatalog:\n  backend: zk\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tc.body))
			require.Error(t, err)
		})
	}
}
