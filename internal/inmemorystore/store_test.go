package inmemorystore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/specialistvlad/cellgrid/internal/cell"
	"github.com/specialistvlad/cellgrid/internal/nodestore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetDefaultsToPending(t *testing.T) {
	s := New()
	snap, err := s.Get(context.Background(), cell.ID{Module: "m"})
	require.NoError(t, err)
	assert.Equal(t, nodestore.StatusPending, snap.Status)
	assert.Nil(t, snap.Value)
	assert.Zero(t, snap.Version)
}

func TestSetAndGet(t *testing.T) {
	s := New()
	ctx := context.Background()
	id := cell.ID{Module: "m", Index: 1}

	first, err := s.Set(ctx, id, nodestore.Snapshot{Status: nodestore.StatusResolved, Value: 42})
	require.NoError(t, err)
	second, err := s.Set(ctx, id, nodestore.Snapshot{Status: nodestore.StatusErrored, Err: errors.New("boom")})
	require.NoError(t, err)
	assert.Greater(t, second.Version, first.Version)

	got, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, nodestore.StatusErrored, got.Status)
	assert.EqualError(t, got.Err, "boom")
	assert.Equal(t, second.Version, got.Version)
}

func TestSubscribe(t *testing.T) {
	s := New()
	ctx := context.Background()
	id := cell.ID{Module: "m"}
	other := cell.ID{Module: "m", Index: 1}

	var seen []nodestore.Status
	unsubscribe, err := s.Subscribe(ctx, id, func(got cell.ID, snap nodestore.Snapshot) {
		assert.Equal(t, id, got)
		seen = append(seen, snap.Status)
	})
	require.NoError(t, err)

	_, _ = s.Set(ctx, id, nodestore.Snapshot{Status: nodestore.StatusPending})
	_, _ = s.Set(ctx, other, nodestore.Snapshot{Status: nodestore.StatusResolved})
	_, _ = s.Set(ctx, id, nodestore.Snapshot{Status: nodestore.StatusResolved, Value: 1})
	assert.Equal(t, []nodestore.Status{nodestore.StatusPending, nodestore.StatusResolved}, seen)

	unsubscribe()
	unsubscribe()
	_, _ = s.Set(ctx, id, nodestore.Snapshot{Status: nodestore.StatusDisposed})
	assert.Len(t, seen, 2)
}

func TestObserversRunInSubscriptionOrder(t *testing.T) {
	s := New()
	ctx := context.Background()
	id := cell.ID{Module: "m"}

	var order []int
	for i := range 5 {
		_, err := s.Subscribe(ctx, id, func(cell.ID, nodestore.Snapshot) { order = append(order, i) })
		require.NoError(t, err)
	}
	_, _ = s.Set(ctx, id, nodestore.Snapshot{Status: nodestore.StatusResolved})
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestConcurrentAccess(t *testing.T) {
	s := New()
	ctx := context.Background()
	numGoroutines := 100
	var wg sync.WaitGroup
	wg.Add(numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func(i int) {
			defer wg.Done()
			id := cell.ID{Module: cell.ModuleID(fmt.Sprintf("m%d", i%5)), Index: i}
			_, err := s.Set(ctx, id, nodestore.Snapshot{Status: nodestore.StatusResolved, Value: i})
			assert.NoError(t, err)
			snap, err := s.Get(ctx, id)
			assert.NoError(t, err)
			assert.Equal(t, i, snap.Value)
		}(i)
	}

	wg.Wait()
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "pending", nodestore.StatusPending.String())
	assert.Equal(t, "resolved", nodestore.StatusResolved.String())
	assert.Equal(t, "errored", nodestore.StatusErrored.String())
	assert.Equal(t, "disposed", nodestore.StatusDisposed.String())
	assert.Equal(t, "unknown", nodestore.Status(42).String())
}
