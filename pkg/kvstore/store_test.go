package kvstore

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	_, err := s.Get(ctx, "tiger_session_id")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Set(ctx, "tiger_session_id", "abc123"))
	got, err := s.Get(ctx, "tiger_session_id")
	require.NoError(t, err)
	assert.Equal(t, "abc123", got)

	require.NoError(t, s.Set(ctx, "tiger_session_id", "def456"))
	got, err = s.Get(ctx, "tiger_session_id")
	require.NoError(t, err)
	assert.Equal(t, "def456", got)
}

func TestMemoryStore(t *testing.T) {
	s := NewMemory()
	defer s.Close()
	exerciseStore(t, s)
}

func TestSQLiteStore(t *testing.T) {
	s, err := NewSQLite(context.Background(), ":memory:")
	require.NoError(t, err)
	defer s.Close()
	exerciseStore(t, s)
}

func TestSQLiteStorePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := "file:" + t.TempDir() + "/kv.db"

	s, err := NewSQLite(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, "tiger_session_id", "durable"))
	require.NoError(t, s.Close())

	reopened, err := NewSQLite(ctx, path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Get(ctx, "tiger_session_id")
	require.NoError(t, err)
	assert.Equal(t, "durable", got)
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)

	s, err := NewRedis(context.Background(), RedisConfig{Address: mr.Addr()})
	require.NoError(t, err)
	defer s.Close()
	exerciseStore(t, s)

	assert.True(t, mr.Exists("tiger:tiger_session_id"))
}

func TestRedisStoreRequiresAddress(t *testing.T) {
	_, err := NewRedis(context.Background(), RedisConfig{})
	assert.ErrorIs(t, err, ErrEmptyAddress)
}

func TestNewUnknownDriver(t *testing.T) {
	_, err := New(context.Background(), Config{Driver: "etcd"})
	assert.ErrorIs(t, err, ErrUnsupportedDriver)
}

func TestNewDefaultsToMemory(t *testing.T) {
	s, err := New(context.Background(), Config{})
	require.NoError(t, err)
	exerciseStore(t, s)
}
