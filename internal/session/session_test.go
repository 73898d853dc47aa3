package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/judyrop/storefront/internal/testutil"
)

func exerciseStore(t *testing.T, store Store) {
	ctx := context.Background()

	_, ok, err := store.CartID(ctx, "tok-a")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.SetCartID(ctx, "tok-a", 42))
	id, ok, err := store.CartID(ctx, "tok-a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, uint(42), id)

	require.NoError(t, store.SetCartID(ctx, "tok-a", 43))
	id, _, err = store.CartID(ctx, "tok-a")
	require.NoError(t, err)
	assert.Equal(t, uint(43), id)

	_, ok, err = store.CartID(ctx, "tok-b")
	require.NoError(t, err)
	assert.False(t, ok, "tokens must not share references")

	require.NoError(t, store.Forget(ctx, "tok-a"))
	_, ok, err = store.CartID(ctx, "tok-a")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Forget(ctx, "never-set"))
}

func TestDBStore(t *testing.T) {
	exerciseStore(t, NewDBStore(testutil.NewDB(t), time.Hour))
}

func TestDBStoreExpiry(t *testing.T) {
	ctx := context.Background()
	store := NewDBStore(testutil.NewDB(t), time.Hour)
	now := time.Now()
	store.now = func() time.Time { return now }

	require.NoError(t, store.SetCartID(ctx, "tok", 7))

	now = now.Add(2 * time.Hour)
	_, ok, err := store.CartID(ctx, "tok")
	require.NoError(t, err)
	assert.False(t, ok)

	purged, err := store.Purge(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)
}

func newRedisStore(t *testing.T, ttl time.Duration) (*RedisStore, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, ttl), mr
}

func TestRedisStore(t *testing.T) {
	store, _ := newRedisStore(t, time.Hour)
	exerciseStore(t, store)
}

func TestRedisStoreExpiry(t *testing.T) {
	ctx := context.Background()
	store, mr := newRedisStore(t, time.Minute)

	require.NoError(t, store.SetCartID(ctx, "tok", 9))
	assert.Equal(t, time.Minute, mr.TTL(cartKey("tok")))

	mr.FastForward(2 * time.Minute)
	_, ok, err := store.CartID(ctx, "tok")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisStoreCorruptValue(t *testing.T) {
	store, mr := newRedisStore(t, time.Minute)
	require.NoError(t, mr.Set(cartKey("tok"), "not-a-number"))

	_, ok, err := store.CartID(context.Background(), "tok")
	require.NoError(t, err)
	assert.False(t, ok)
}
