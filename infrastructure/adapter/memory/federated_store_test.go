package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/securemedai/portal/domain/entity"
)

func nextEvent(t *testing.T, ch <-chan entity.FederatedEvent) entity.FederatedEvent {
	t.Helper()
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "channel closed")
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for federated event")
	}
	return entity.FederatedEvent{}
}

func TestFederatedStore_WatchEmitsCurrentStateFirst(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store := NewFederatedStore()
	require.NoError(t, store.Save(ctx, "s1", entity.FederatedCredential{Subject: "sub-1"}))

	ch, err := store.Watch(ctx, "s1")
	require.NoError(t, err)

	ev := nextEvent(t, ch)
	assert.True(t, ev.Active)
	assert.Equal(t, "sub-1", ev.Subject)
}

func TestFederatedStore_SaveAndDeleteAreBroadcast(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store := NewFederatedStore()

	ch, err := store.Watch(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, nextEvent(t, ch).Active)

	require.NoError(t, store.Save(ctx, "s1", entity.FederatedCredential{Subject: "sub-1"}))
	assert.True(t, nextEvent(t, ch).Active)

	// Other sessions are not delivered to this watcher.
	require.NoError(t, store.Save(ctx, "s2", entity.FederatedCredential{Subject: "sub-2"}))

	require.NoError(t, store.Delete(ctx, "s1"))
	ev := nextEvent(t, ch)
	assert.False(t, ev.Active)
	assert.Equal(t, "s1", ev.SessionID)

	cred, err := store.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, cred)
}

func TestFederatedStore_WatchClosesOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	store := NewFederatedStore()

	ch, err := store.Watch(ctx, "s1")
	require.NoError(t, err)
	nextEvent(t, ch)
	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("watch channel not closed")
	}
}

func TestFederatedStore_SlowWatcherKeepsNewest(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store := NewFederatedStore()
	ch, err := store.Watch(ctx, "s1")
	require.NoError(t, err)

	for i := 0; i < watchBuffer*2; i++ {
		require.NoError(t, store.Save(ctx, "s1", entity.FederatedCredential{Subject: "sub"}))
	}
	require.NoError(t, store.Delete(ctx, "s1"))

	var last entity.FederatedEvent
	for len(ch) > 0 {
		last = <-ch
	}
	assert.False(t, last.Active)
}
