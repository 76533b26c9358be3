package store

import (
	"context"
	"testing"
	"time"

	mr "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/docport/gateway/internal/backend"
)

func newRedisRepo(t *testing.T) (*RedisRepository, *mr.Miniredis) {
	t.Helper()
	m, err := mr.Run()
	require.NoError(t, err)
	t.Cleanup(m.Close)
	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	return NewRedisRepository(client, "test:session:"), m
}

func TestRedisRepository_PutGetDelete(t *testing.T) {
	repo, _ := newRedisRepo(t)
	ctx := context.Background()

	rec := &Record{
		ID:           "s1",
		Token:        "backend-tok",
		RefreshToken: "refresh-1",
		Account:      &Account{Username: "alice@corp", ObjectID: "oid-1", TenantID: "tid-1"},
		Profile:      &backend.User{ID: "u1", Username: "alice", Email: "a@b.c"},
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
		ExpiresAt:    time.Now().UTC().Add(5 * time.Second),
	}
	require.NoError(t, repo.Put(ctx, rec))

	got, err := repo.Get(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "backend-tok", got.Token)
	require.True(t, got.HasAccount())
	require.Equal(t, "alice", got.Profile.Username)

	require.NoError(t, repo.Delete(ctx, "s1"))
	got2, err := repo.Get(ctx, "s1")
	require.NoError(t, err)
	require.Nil(t, got2)
}

func TestRedisRepository_TTLExpiry(t *testing.T) {
	repo, m := newRedisRepo(t)
	ctx := context.Background()

	rec := &Record{
		ID:        "s2",
		Token:     "tok",
		CreatedAt: time.Now().UTC(),
		ExpiresAt: time.Now().UTC().Add(1 * time.Second),
	}
	require.NoError(t, repo.Put(ctx, rec))

	// visible immediately
	got, err := repo.Get(ctx, "s2")
	require.NoError(t, err)
	require.NotNil(t, got)

	// advance miniredis clock past TTL
	m.FastForward(2 * time.Second)

	got2, err := repo.Get(ctx, "s2")
	require.NoError(t, err)
	require.Nil(t, got2)
}

func TestRedisRepository_MissingIsNilNil(t *testing.T) {
	repo, _ := newRedisRepo(t)
	got, err := repo.Get(context.Background(), "absent")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestBlacklist(t *testing.T) {
	m, err := mr.Run()
	require.NoError(t, err)
	defer m.Close()
	client := redis.NewClient(&redis.Options{Addr: m.Addr()})

	b := NewBlacklist(client)
	ctx := context.Background()

	require.NoError(t, b.Add(ctx, "tok-1", time.Minute))
	found, err := b.Contains(ctx, "tok-1")
	require.NoError(t, err)
	require.True(t, found)

	found, err = b.Contains(ctx, "other")
	require.NoError(t, err)
	require.False(t, found)

	// nil client is a no-op
	var disabled *Blacklist
	require.NoError(t, disabled.Add(ctx, "x", time.Minute))
	found, err = disabled.Contains(ctx, "x")
	require.NoError(t, err)
	require.False(t, found)
}
