package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	goredis "github.com/go-redis/redis/v8"

	"github.com/securemedai/portal/application/port/outbound"
	"github.com/securemedai/portal/domain/entity"
	"github.com/securemedai/portal/infrastructure/service/sealer"
)

func setupRedis(t *testing.T) (*goredis.Client, Sealer) {
	t.Helper()
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set, skipping Redis integration test")
	}
	client, err := NewClient(context.Background(), url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	s, err := sealer.New("0123456789abcdef0123456789abcdef")
	require.NoError(t, err)
	return client, s
}

func TestSessionStore_Redis(t *testing.T) {
	client, s := setupRedis(t)
	ctx := context.Background()
	store := NewSessionStore(client, s, time.Minute)
	sid := uuid.NewString()
	t.Cleanup(func() { _ = store.Clear(ctx, sid) })

	sess, err := store.Get(ctx, sid)
	require.NoError(t, err)
	assert.True(t, sess.IsEmpty())

	require.NoError(t, store.Set(ctx, sid, entity.NewSessionCommit("A1", "R1", "Jane Doe", entity.RoleDoctor, "", nil)))

	raw, err := client.Get(ctx, sessionKey(sid)).Result()
	require.NoError(t, err)
	assert.NotContains(t, raw, "A1")

	sess, err = store.Get(ctx, sid)
	require.NoError(t, err)
	assert.Equal(t, "A1", sess.AccessToken)
	assert.Equal(t, "Jane", sess.DisplayName)

	err = store.Set(ctx, sid, entity.SessionUpdate{Role: new(entity.Role)})
	assert.ErrorIs(t, err, entity.ErrInconsistentSession)

	require.NoError(t, store.Clear(ctx, sid))
	sess, err = store.Get(ctx, sid)
	require.NoError(t, err)
	assert.False(t, sess.Authenticated())
}

func TestFederatedStore_Redis(t *testing.T) {
	client, s := setupRedis(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store := NewFederatedStore(client, s, time.Minute)
	sid := uuid.NewString()

	events, err := store.Watch(ctx, sid)
	require.NoError(t, err)

	first := <-events
	assert.False(t, first.Active)

	require.NoError(t, store.Save(ctx, sid, entity.FederatedCredential{Subject: "sub-1", IDToken: "id"}))
	select {
	case ev := <-events:
		assert.True(t, ev.Active)
		assert.Equal(t, "sub-1", ev.Subject)
	case <-time.After(2 * time.Second):
		t.Fatal("no active event")
	}

	cred, err := store.Load(ctx, sid)
	require.NoError(t, err)
	require.NotNil(t, cred)
	assert.Equal(t, "id", cred.IDToken)

	require.NoError(t, store.Delete(ctx, sid))
	select {
	case ev := <-events:
		assert.False(t, ev.Active)
	case <-time.After(2 * time.Second):
		t.Fatal("no inactive event")
	}
}

func TestNotifier_Redis(t *testing.T) {
	client, _ := setupRedis(t)
	ctx := context.Background()
	n := NewNotifier(client)
	sid := uuid.NewString()

	for i := 0; i < maxPendingNotifications+3; i++ {
		require.NoError(t, n.Push(ctx, sid, outbound.Notification{Level: outbound.NotificationError, Message: "x"}))
	}
	got, err := n.Drain(ctx, sid)
	require.NoError(t, err)
	assert.Len(t, got, maxPendingNotifications)

	got, err = n.Drain(ctx, sid)
	require.NoError(t, err)
	assert.Empty(t, got)
}
