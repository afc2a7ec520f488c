package store

import (
	"context"
	"io/fs"
	"path"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationFilesArePaired(t *testing.T) {
	for _, d := range []Dialect{Postgres, SQLite} {
		entries, err := fs.ReadDir(migrationFiles, path.Join("migrations", d.Name))
		require.NoError(t, err)

		names := map[string]bool{}
		for _, entry := range entries {
			names[entry.Name()] = true
		}
		require.NotEmpty(t, names, d.Name)
		for name := range names {
			if strings.HasSuffix(name, ".up.sql") {
				down := strings.TrimSuffix(name, ".up.sql") + ".down.sql"
				assert.True(t, names[down], "%s/%s has no down migration", d.Name, name)
			}
		}
	}
}

func TestApplyMigrationsIsRepeatable(t *testing.T) {
	ctx := context.Background()
	db, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "nested", "outline.db"))
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, ApplyMigrations(ctx, db, SQLite))
	require.NoError(t, ApplyMigrations(ctx, db, SQLite))

	var applied int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(1) FROM schema_migrations`).Scan(&applied))
	assert.Equal(t, 2, applied)
}

func TestRebind(t *testing.T) {
	query := `UPDATE nodes SET content=? WHERE uuid=? AND version=?`
	assert.Equal(t, `UPDATE nodes SET content=$1 WHERE uuid=$2 AND version=$3`, Postgres.Rebind(query))
	assert.Equal(t, query, SQLite.Rebind(query))
}
