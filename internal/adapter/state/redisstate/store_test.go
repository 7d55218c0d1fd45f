package redisstate

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewFromClient(rdb), mr
}

func TestStore_GetSet(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	v, err := store.Get(ctx, "missing")
	require.NoError(t, err)
	require.Equal(t, "", v, "missing key reads back as empty string, not an error")

	require.NoError(t, store.Set(ctx, "k", "v", 0))
	v, err = store.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, "v", v)
}

func TestStore_HSetHMGet(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.HSet(ctx, "h", map[string]any{"a": "1", "b": "2"}))
	vals, err := store.HMGet(ctx, "h", "a", "b", "missing")
	require.NoError(t, err)
	require.Equal(t, []string{"1", "2", ""}, vals)
}

func TestStore_HSetNX(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	ok, err := store.HSetNX(ctx, "h", "f", "first")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = store.HSetNX(ctx, "h", "f", "second")
	require.NoError(t, err)
	require.False(t, ok, "HSetNX must not overwrite an existing field")

	vals, err := store.HMGet(ctx, "h", "f")
	require.NoError(t, err)
	require.Equal(t, []string{"first"}, vals)
}

func TestStore_IncrDecr(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	v, err := store.Incr(ctx, "counter")
	require.NoError(t, err)
	require.Equal(t, int64(1), v)

	v, err = store.Incr(ctx, "counter")
	require.NoError(t, err)
	require.Equal(t, int64(2), v)

	v, err = store.Decr(ctx, "counter")
	require.NoError(t, err)
	require.Equal(t, int64(1), v)
}

func TestStore_RPushLRange(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.RPush(ctx, "list", "one"))
	require.NoError(t, store.RPush(ctx, "list", "two"))

	vals, err := store.LRange(ctx, "list", 0, -1)
	require.NoError(t, err)
	require.Equal(t, []string{"one", "two"}, vals)
}

func TestStore_Expire(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k", "v", 0))
	require.NoError(t, store.Expire(ctx, "k", time.Minute))
	require.True(t, mr.Exists("k"))
	ttl := mr.TTL("k")
	require.Greater(t, ttl, time.Duration(0))
}

func TestStore_RegisterScript_CachesHandle(t *testing.T) {
	store, _ := newTestStore(t)
	a := store.RegisterScript("return 1")
	b := store.RegisterScript("return 1")
	require.Same(t, a, b, "identical script source must return the cached handle")

	c := store.RegisterScript("return 2")
	require.NotSame(t, a, c)
}

func TestStore_RunScript(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	sc := store.RegisterScript(`return redis.call('SET', KEYS[1], ARGV[1])`)
	_, err := store.RunScript(ctx, sc, []string{"scripted"}, "hello")
	require.NoError(t, err)

	v, err := store.Get(ctx, "scripted")
	require.NoError(t, err)
	require.Equal(t, "hello", v)
}
