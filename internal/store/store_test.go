package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rbright/rehearse/internal/config"
)

type doc struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestFileStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewFileStore(filepath.Join(t.TempDir(), "nested"))

	var got doc
	require.ErrorIs(t, s.Load(ctx, "things", &got), ErrNotFound)

	require.NoError(t, s.Save(ctx, "things", doc{Name: "a", Count: 2}))
	require.NoError(t, s.Load(ctx, "things", &got))
	require.Equal(t, doc{Name: "a", Count: 2}, got)

	info, err := os.Stat(filepath.Join(s.Dir(), "things.json"))
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	entries, err := os.ReadDir(s.Dir())
	require.NoError(t, err)
	require.Len(t, entries, 1)

	require.NoError(t, s.Delete(ctx, "things"))
	require.ErrorIs(t, s.Load(ctx, "things", &got), ErrNotFound)
	require.NoError(t, s.Delete(ctx, "things"))
}

func TestFileStoreRejectsPathKeys(t *testing.T) {
	s := NewFileStore(t.TempDir())
	for _, key := range []string{"", "../x", "a/b", ".."} {
		require.Error(t, s.Save(context.Background(), key, doc{}), key)
	}
}

func TestFileStoreCorruptDocument(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{"), 0o600))

	var got doc
	err := NewFileStore(dir).Load(context.Background(), "broken", &got)
	require.ErrorContains(t, err, "decode broken")
}

func TestOpenSelectsBackend(t *testing.T) {
	t.Setenv("XDG_STATE_HOME", t.TempDir())

	s, err := Open(config.StoreConfig{Backend: "file"}, "")
	require.NoError(t, err)
	fileStore, ok := s.(*FileStore)
	require.True(t, ok)
	require.Equal(t, filepath.Join(os.Getenv("XDG_STATE_HOME"), "rehearse", "store"), fileStore.Dir())

	s, err = Open(config.StoreConfig{Backend: "redis", RedisAddr: "127.0.0.1:1", RedisPrefix: "t:"}, "pw")
	require.NoError(t, err)
	_, ok = s.(*RedisStore)
	require.True(t, ok)
	require.NoError(t, s.Close())

	_, err = Open(config.StoreConfig{Backend: "sqlite"}, "")
	require.Error(t, err)
}
