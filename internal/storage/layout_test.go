package storage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jmylchreest/convertarr/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestLayout(t *testing.T) *Layout {
	t.Helper()

	l, err := NewLayout(config.StorageConfig{
		BaseDir:   t.TempDir(),
		UploadDir: "uploads",
		OutputDir: "outputs",
	})
	require.NoError(t, err)
	return l
}

func TestNewLayout_CreatesDirectories(t *testing.T) {
	l := setupTestLayout(t)

	assert.DirExists(t, l.UploadDir())
	assert.DirExists(t, l.OutputDir())
	assert.NotEqual(t, l.UploadDir(), l.OutputDir())
}

func TestWorkspace_Lifecycle(t *testing.T) {
	l := setupTestLayout(t)

	ws, err := l.NewWorkspace()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(filepath.Base(ws.Dir()), WorkspacePrefix))
	assert.Equal(t, l.UploadDir(), filepath.Dir(ws.Dir()))

	path, n, err := ws.SaveUpload("clip.mp4", strings.NewReader("video"))
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
	assert.FileExists(t, path)

	_, _, err = ws.SaveUpload("clip.mp4", strings.NewReader("again"))
	assert.Error(t, err, "uploads must not overwrite")

	_, _, err = ws.SaveUpload("../escape.mp4", strings.NewReader("x"))
	assert.Error(t, err)

	frames, err := ws.MkdirAll("frames")
	require.NoError(t, err)
	assert.DirExists(t, frames)

	require.NoError(t, ws.Close())
	assert.NoDirExists(t, ws.Dir())
	require.NoError(t, ws.Close(), "closing twice is harmless")
}

func TestLayout_PublishAndOpenOutput(t *testing.T) {
	l := setupTestLayout(t)
	ws, err := l.NewWorkspace()
	require.NoError(t, err)
	defer ws.Close()

	now := time.Date(2024, 5, 6, 7, 8, 9, 0, time.Local)

	first := ws.Path("out1.mp3")
	second := ws.Path("out2.mp3")
	require.NoError(t, os.WriteFile(first, []byte("one"), 0640))
	require.NoError(t, os.WriteFile(second, []byte("two"), 0640))

	name1, err := l.PublishOutput(first, "song", "mp3", now)
	require.NoError(t, err)
	assert.Equal(t, "song_20240506_070809.mp3", name1)

	name2, err := l.PublishOutput(second, "song", "mp3", now)
	require.NoError(t, err)
	assert.Equal(t, "song_20240506_070809_1.mp3", name2)

	f, info, err := l.OpenOutput(name2)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, int64(3), info.Size())

	_, _, err = l.OpenOutput("nope.mp3")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLayout_Sweeps(t *testing.T) {
	l := setupTestLayout(t)
	old := time.Now().Add(-3 * time.Hour)
	cutoff := time.Now().Add(-time.Hour)

	staleWS, err := l.NewWorkspace()
	require.NoError(t, err)
	require.NoError(t, os.Chtimes(staleWS.Dir(), old, old))
	freshWS, err := l.NewWorkspace()
	require.NoError(t, err)

	otherDir := filepath.Join(l.UploadDir(), "keepme")
	require.NoError(t, os.Mkdir(otherDir, 0750))
	require.NoError(t, os.Chtimes(otherDir, old, old))

	strayUpload := filepath.Join(l.UploadDir(), "stray.mp4")
	require.NoError(t, os.WriteFile(strayUpload, nil, 0640))
	require.NoError(t, os.Chtimes(strayUpload, old, old))

	removed, err := l.SweepWorkspaces(cutoff)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{filepath.Base(staleWS.Dir()), "stray.mp4"}, removed)
	assert.DirExists(t, freshWS.Dir())
	assert.DirExists(t, otherDir)

	oldOut := filepath.Join(l.OutputDir(), "old_20200101_000000.mp3")
	newOut := filepath.Join(l.OutputDir(), "new.mp3")
	require.NoError(t, os.WriteFile(oldOut, nil, 0640))
	require.NoError(t, os.WriteFile(newOut, nil, 0640))
	require.NoError(t, os.Chtimes(oldOut, old, old))

	removed, err = l.SweepOutputs(cutoff)
	require.NoError(t, err)
	assert.Equal(t, []string{"old_20200101_000000.mp3"}, removed)
	assert.FileExists(t, newOut)
}

func TestRemovePath_Missing(t *testing.T) {
	assert.NoError(t, RemovePath(filepath.Join(t.TempDir(), "missing")))
}
