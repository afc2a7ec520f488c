package archive

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"podnotes/api/internal/outline"
)

func TestArchiveLifecycle(t *testing.T) {
	svc := New(t.TempDir())
	tick := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time {
		tick = tick.Add(time.Minute)
		return tick
	}

	history, err := svc.History("ctr-1", 10)
	require.NoError(t, err)
	assert.Empty(t, history)

	first, err := svc.Save("ctr-1", Snapshot{
		Markdown: "# Episode 1\n\n- Intro\n",
		Nodes:    []outline.NodeView{{UUID: "n1", Content: "Intro"}},
	}, "Ada Lovelace", "")
	require.NoError(t, err)
	assert.Len(t, first.Hash, 7)
	assert.Equal(t, "Ada Lovelace", first.Author)
	assert.Equal(t, "Archive show notes", first.Message)

	_, err = svc.Save("ctr-1", Snapshot{
		Markdown: "# Episode 1\n\n- Intro\n",
		Nodes:    []outline.NodeView{{UUID: "n1", Content: "Intro"}},
	}, "Ada Lovelace", "again")
	require.ErrorIs(t, err, ErrUnchanged)

	second, err := svc.Save("ctr-1", Snapshot{Markdown: "# Episode 1\n\n- Intro\n- Outro\n"}, "grace", "Add outro")
	require.NoError(t, err)

	history, err = svc.History("ctr-1", 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, second.Hash, history[0].Hash)
	assert.Equal(t, first.Hash, history[1].Hash)

	limited, err := svc.History("ctr-1", 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, second.Hash, limited[0].Hash)

	markdown, commit, err := svc.Read("ctr-1", first.Hash)
	require.NoError(t, err)
	assert.Equal(t, "# Episode 1\n\n- Intro\n", markdown)
	assert.Equal(t, first.Hash, commit.Hash)

	head, err := os.ReadFile(filepath.Join(svc.baseDir, "ctr-1", ".git", "HEAD"))
	require.NoError(t, err)
	assert.Contains(t, string(head), "refs/heads/main")
}

func TestArchiveReadMissing(t *testing.T) {
	svc := New(t.TempDir())

	_, _, err := svc.Read("nope", "abc1234")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = svc.Save("ctr-1", Snapshot{Markdown: "x\n"}, "ada", "init")
	require.NoError(t, err)
	_, _, err = svc.Read("ctr-1", "0000000")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestArchiveKeepsContainersApart(t *testing.T) {
	svc := New(t.TempDir())
	_, err := svc.Save("ctr-a", Snapshot{Markdown: "a\n"}, "ada", "a")
	require.NoError(t, err)
	_, err = svc.Save("ctr-b", Snapshot{Markdown: "b\n"}, "ada", "b")
	require.NoError(t, err)

	history, err := svc.History("ctr-a", 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "a", history[0].Message)
}

func TestSanitizeEmail(t *testing.T) {
	assert.Equal(t, "Ada.Lovelace", sanitizeEmail("Ada Lovelace"))
	assert.Equal(t, "user", sanitizeEmail("!!!"))
	assert.Equal(t, "a.b.c", sanitizeEmail("a-b_c"))
}
