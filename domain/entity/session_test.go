package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSession_Apply(t *testing.T) {
	token := "abc"
	empty := ""
	doctor := RoleDoctor
	noRole := Role("")

	tests := []struct {
		name    string
		start   Session
		update  SessionUpdate
		want    Session
		wantErr error
	}{
		{
			name:   "commit token and role together",
			update: SessionUpdate{AccessToken: &token, Role: &doctor},
			want:   Session{AccessToken: "abc", Role: RoleDoctor},
		},
		{
			name:    "token without role",
			update:  SessionUpdate{AccessToken: &token},
			wantErr: ErrInconsistentSession,
		},
		{
			name:    "dropping role keeps token",
			start:   Session{AccessToken: "abc", Role: RoleDoctor},
			update:  SessionUpdate{Role: &noRole},
			want:    Session{AccessToken: "abc", Role: RoleDoctor},
			wantErr: ErrInconsistentSession,
		},
		{
			name:   "removing both",
			start:  Session{AccessToken: "abc", Role: RoleDoctor, DisplayName: "Jane"},
			update: SessionUpdate{AccessToken: &empty, Role: &noRole},
			want:   Session{DisplayName: "Jane"},
		},
		{
			name:   "nil fields unchanged",
			start:  Session{AccessToken: "abc", Role: RoleDoctor, RefreshToken: "r"},
			update: SessionUpdate{},
			want:   Session{AccessToken: "abc", Role: RoleDoctor, RefreshToken: "r"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.start.Apply(tt.update)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, tt.start, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewSessionCommit(t *testing.T) {
	sess, err := Session{}.Apply(NewSessionCommit("abc", "", "Jane Doe", RoleDoctor, "", nil))
	require.NoError(t, err)

	assert.True(t, sess.Authenticated())
	assert.Equal(t, "Jane", sess.DisplayName)
	assert.Equal(t, RoleDoctor, sess.Role)
	assert.False(t, sess.Federated)

	fed, err := sess.Apply(NewSessionCommit("x", "", "Sam", RolePatient, "", nil).AsFederated())
	require.NoError(t, err)
	assert.True(t, fed.Federated)

	again, err := fed.Apply(NewSessionCommit("y", "", "Sam", RolePatient, "", nil))
	require.NoError(t, err)
	assert.False(t, again.Federated)
}

func TestFirstName(t *testing.T) {
	assert.Equal(t, "Jane", FirstName("Jane Doe"))
	assert.Equal(t, "Jane", FirstName("  Jane   Mary Doe "))
	assert.Equal(t, "", FirstName(""))
}

func TestIdentityFromSession(t *testing.T) {
	id := IdentityFromSession(Session{})
	assert.False(t, id.Loading)
	assert.False(t, id.IsAuthenticated)
	assert.Nil(t, id.User)

	id = IdentityFromSession(Session{AccessToken: "abc", Role: RolePatient, DisplayName: "Ann"})
	assert.True(t, id.IsAuthenticated)
	assert.Equal(t, RolePatient, id.Role)
	require.NotNil(t, id.User)
	assert.Equal(t, "Ann", id.User.DisplayName)

	assert.True(t, LoadingIdentity().Loading)
}
