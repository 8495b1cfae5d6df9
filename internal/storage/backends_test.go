package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// exerciseStore common contract of every backend
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	_, err := s.Get(ctx, "tiles/10/1/1.avif")
	assert.ErrorIs(t, err, ErrNotFound)

	for _, key := range []string{"tiles/10/1/1.avif", "tiles/10/1/2.avif", "tiles/11/1/1.avif", "status.json"} {
		_, err := s.Put(ctx, key, []byte(key), "application/octet-stream")
		require.NoError(t, err)
	}
	_, err = s.Put(ctx, "tiles/10/1/1.avif", []byte("v2"), "image/avif")
	require.NoError(t, err)

	data, err := s.Get(ctx, "tiles/10/1/1.avif")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), data)
	data[0] = 'x'
	again, err := s.Get(ctx, "tiles/10/1/1.avif")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), again, "callers own the returned bytes")

	keys, err := s.List(ctx, "tiles/10/")
	require.NoError(t, err)
	assert.Equal(t, []string{"tiles/10/1/1.avif", "tiles/10/1/2.avif"}, keys)

	keys, err = s.List(ctx, "tiles/12/")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemory())
}

func TestFSStore(t *testing.T) {
	root := t.TempDir()
	s, err := NewFS(root, "https://cdn.example.com/")
	require.NoError(t, err)

	exerciseStore(t, s)

	url, err := s.Put(context.Background(), "tiles/3/2/1.png", []byte{1}, "image/png")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/tiles/3/2/1.png", url)
	_, err = os.Stat(filepath.Join(root, "tiles", "3", "2", "1.png"))
	assert.NoError(t, err)
}

func TestFSStoreConcurrentPutsOfOneKey(t *testing.T) {
	root := t.TempDir()
	s, err := NewFS(root, "")
	require.NoError(t, err)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.Put(ctx, "tiles/15/1/1.png", []byte(fmt.Sprintf("writer %02d", i)), "image/png")
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}

	data, err := s.Get(ctx, "tiles/15/1/1.png")
	require.NoError(t, err)
	assert.Len(t, data, len("writer 00"))

	entries, err := os.ReadDir(filepath.Join(root, "tiles", "15", "1"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")

	keys, err := s.List(ctx, "tiles/15/")
	require.NoError(t, err)
	assert.Equal(t, []string{"tiles/15/1/1.png"}, keys)
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	s := NewRedis(client, "canvas:", "")
	exerciseStore(t, s)

	assert.True(t, mr.Exists("canvas:status.json"))
	assert.Equal(t, "image/avif", mr.HGet("canvas:tiles/10/1/1.avif", fieldContentType))
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, Options{Backend: BackendMemory})
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, s)

	s, err = Open(ctx, Options{Backend: BackendFS, Directory: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &FS{}, s)

	mr := miniredis.RunT(t)
	s, err = Open(ctx, Options{Backend: BackendRedis, RedisAddr: mr.Addr()})
	require.NoError(t, err)
	assert.IsType(t, &Redis{}, s)

	_, err = Open(ctx, Options{Backend: "ftp"})
	assert.Error(t, err)
}
