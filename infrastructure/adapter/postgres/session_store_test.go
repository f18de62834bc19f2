package postgres

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/securemedai/portal/domain/entity"
	"github.com/securemedai/portal/infrastructure/service/sealer"
)

const createSessionsTable = `
CREATE TABLE IF NOT EXISTS portal_sessions (
	session_id TEXT PRIMARY KEY,
	payload TEXT NOT NULL,
	role TEXT,
	expires_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

func setupStore(t *testing.T, ttl time.Duration) SessionStore {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping Postgres integration test")
	}
	db, err := Open(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(createSessionsTable)
	require.NoError(t, err)

	s, err := sealer.New("0123456789abcdef0123456789abcdef")
	require.NoError(t, err)
	return NewSessionStore(db, s, ttl)
}

func TestSessionStore_Postgres(t *testing.T) {
	store := setupStore(t, time.Hour)
	ctx := context.Background()
	sid := uuid.NewString()
	t.Cleanup(func() { _ = store.Clear(ctx, sid) })

	sess, err := store.Get(ctx, sid)
	require.NoError(t, err)
	assert.True(t, sess.IsEmpty())

	require.NoError(t, store.Set(ctx, sid, entity.NewSessionCommit("A1", "R1", "Ann Lee", entity.RoleHospitalAdmin, "ann@x.io", nil)))
	access := "A2"
	require.NoError(t, store.Set(ctx, sid, entity.SessionUpdate{AccessToken: &access}))

	sess, err = store.Get(ctx, sid)
	require.NoError(t, err)
	assert.Equal(t, "A2", sess.AccessToken)
	assert.Equal(t, "R1", sess.RefreshToken)
	assert.Equal(t, "Ann", sess.DisplayName)
	assert.Equal(t, entity.RoleHospitalAdmin, sess.Role)

	require.NoError(t, store.Clear(ctx, sid))
	sess, err = store.Get(ctx, sid)
	require.NoError(t, err)
	assert.False(t, sess.Authenticated())
}

func TestSessionStore_PostgresExpiry(t *testing.T) {
	store := setupStore(t, -time.Second)
	ctx := context.Background()
	sid := uuid.NewString()

	require.NoError(t, store.Set(ctx, sid, entity.NewSessionCommit("A1", "", "Bo", entity.RolePatient, "", nil)))

	sess, err := store.Get(ctx, sid)
	require.NoError(t, err)
	assert.True(t, sess.IsEmpty())

	n, err := store.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, int64(1))
}

func TestSessionStore_PostgresConcurrentFirstWrites(t *testing.T) {
	store := setupStore(t, time.Hour)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		sid := uuid.NewString()
		t.Cleanup(func() { _ = store.Clear(ctx, sid) })

		name, email := "Ann", "ann@x.io"
		updates := []entity.SessionUpdate{{DisplayName: &name}, {Email: &email}}

		var wg sync.WaitGroup
		errs := make(chan error, len(updates))
		for _, u := range updates {
			wg.Add(1)
			go func(u entity.SessionUpdate) {
				defer wg.Done()
				errs <- store.Set(ctx, sid, u)
			}(u)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		sess, err := store.Get(ctx, sid)
		require.NoError(t, err)
		assert.Equal(t, "Ann", sess.DisplayName, "session %d", i)
		assert.Equal(t, "ann@x.io", sess.Email, "session %d", i)
	}
}

func TestSessionStore_PostgresEmptyWriteLeavesNoRow(t *testing.T) {
	store := setupStore(t, time.Hour)
	ctx := context.Background()
	sid := uuid.NewString()

	empty := ""
	require.NoError(t, store.Set(ctx, sid, entity.SessionUpdate{Email: &empty}))

	var rows int
	db := store.(*sessionStore).db
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM portal_sessions WHERE session_id = $1`, sid).Scan(&rows))
	assert.Zero(t, rows)
}
