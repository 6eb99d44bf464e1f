package blob

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	info, err := store.Put(ctx, "history/h-1/001.json", strings.NewReader(`{"a":1}`), PutOptions{
		ContentType: "application/json",
		Metadata:    map[string]string{"hypothesis": "h-1"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(7), info.Size)

	_, err = store.Put(ctx, "history/h-1/001.json", strings.NewReader("again"), PutOptions{})
	require.ErrorIs(t, err, ErrExists)

	_, err = store.Put(ctx, "history/h-2/001.json", strings.NewReader("{}"), PutOptions{})
	require.NoError(t, err)

	got, rc, err := store.Get(ctx, "history/h-1/001.json")
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(body))
	assert.Equal(t, "application/json", got.ContentType)

	_, _, err = store.Get(ctx, "history/missing.json")
	require.True(t, errors.Is(err, ErrNotFound), "expected not found, got %v", err)

	list, err := store.List(ctx, "history/h-1/")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "history/h-1/001.json", list[0].Key)

	all, err := store.List(ctx, "history/")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Less(t, all[0].Key, all[1].Key)
}

func TestMemoryStore(t *testing.T) {
	store := NewMemory()
	assert.Equal(t, DriverMemory, store.Driver())
	exerciseStore(t, store)
}

func TestFilesystemStore(t *testing.T) {
	store, err := NewFilesystem(filepath.Join(t.TempDir(), "blobs"))
	require.NoError(t, err)
	assert.Equal(t, DriverFilesystem, store.Driver())
	exerciseStore(t, store)
}

func TestFilesystemRejectsTraversal(t *testing.T) {
	store, err := NewFilesystem(t.TempDir())
	require.NoError(t, err)
	for _, key := range []string{"", "../escape", "/abs"} {
		_, err := store.Put(context.Background(), key, strings.NewReader("x"), PutOptions{})
		assert.Error(t, err, "key %q", key)
	}
}

func TestOpenSelectsDriver(t *testing.T) {
	ctx := context.Background()

	mem, err := Open(ctx, Config{Driver: DriverMemory})
	require.NoError(t, err)
	assert.Equal(t, DriverMemory, mem.Driver())

	fs, err := Open(ctx, Config{FSRoot: t.TempDir()})
	require.NoError(t, err)
	assert.Equal(t, DriverFilesystem, fs.Driver())

	_, err = Open(ctx, Config{Driver: DriverS3})
	require.Error(t, err, "s3 without bucket must fail")

	_, err = Open(ctx, Config{Driver: "ftp"})
	require.Error(t, err)
}
