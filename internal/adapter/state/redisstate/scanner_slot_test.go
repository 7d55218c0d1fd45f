package redisstate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScannerSlots_AcquireUpToMax(t *testing.T) {
	store, _ := newTestStore(t)
	slots := NewScannerSlots(store, 2)
	ctx := context.Background()

	ok, observed, err := slots.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(1), observed)

	ok, observed, err = slots.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(2), observed)

	ok, observed, err = slots.Acquire(ctx)
	require.NoError(t, err)
	require.False(t, ok, "third acquire must be rejected once maxInflight is reached")
	require.Equal(t, int64(2), observed)
}

func TestScannerSlots_ReleaseFreesASlot(t *testing.T) {
	store, _ := newTestStore(t)
	slots := NewScannerSlots(store, 1)
	ctx := context.Background()

	ok, _, err := slots.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	ok, _, err = slots.Acquire(ctx)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, slots.Release(ctx))

	ok, _, err = slots.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok, "a released slot must become available again")
}

func TestScannerSlots_ReleaseFlooredAtZero(t *testing.T) {
	store, _ := newTestStore(t)
	slots := NewScannerSlots(store, 1)
	ctx := context.Background()

	require.NoError(t, slots.Release(ctx))
	require.NoError(t, slots.Release(ctx))

	observed, err := slots.Observed(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(0), observed, "a duplicate release must never drive the gauge negative")
}

func TestScannerSlots_Observed(t *testing.T) {
	store, _ := newTestStore(t)
	slots := NewScannerSlots(store, 5)
	ctx := context.Background()

	observed, err := slots.Observed(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(0), observed)

	_, _, err = slots.Acquire(ctx)
	require.NoError(t, err)

	observed, err = slots.Observed(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), observed)
}
