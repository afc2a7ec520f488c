package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"podnotes/api/internal/outline"
	"podnotes/api/internal/store"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func useSQLite(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cli.db")
	t.Setenv("OUTLINE_STORE", "sqlite")
	t.Setenv("SQLITE_PATH", path)
	t.Setenv("LOG_LEVEL", "error")
	return path
}

func TestMigrateAndCheck(t *testing.T) {
	path := useSQLite(t)
	_, err := run(t, "migrate")
	require.NoError(t, err)

	ctx := context.Background()
	db, err := store.OpenSQLite(ctx, path)
	require.NoError(t, err)
	nodes := store.NewSQLiteStore(db)
	engine := outline.NewEngine(nodes)
	container, err := engine.EnsureContainer(ctx, store.OwnerInbox, "alice")
	require.NoError(t, err)
	_, err = engine.Apply(ctx, container.ID, "alice", outline.Insert{Content: "idea"})
	require.NoError(t, err)
	require.NoError(t, db.Close())

	out, err := run(t, "check", container.ID)
	require.NoError(t, err)
	assert.Equal(t, "ok: 1 nodes\n", out)

	db, err = store.OpenSQLite(ctx, path)
	require.NoError(t, err)
	_, err = store.NewSQLiteStore(db).Create(ctx, store.NewNode{ContainerID: container.ID, Content: "second head"})
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = run(t, "check", container.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "inconsistent")
}

func TestCheckUnknownContainer(t *testing.T) {
	useSQLite(t)
	_, err := run(t, "check", "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestUnknownStoreDriver(t *testing.T) {
	t.Setenv("OUTLINE_STORE", "mongo")
	_, err := run(t, "migrate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mongo")
}

func TestReindexNeedsMeili(t *testing.T) {
	useSQLite(t)
	t.Setenv("MEILI_URL", "")
	_, err := run(t, "reindex")
	assert.EqualError(t, err, "MEILI_URL is not set")
}
