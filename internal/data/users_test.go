package data

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddUser(t *testing.T) {
	store := newTestStore(t)

	first, err := store.AddUser("alice", "hunter2")
	require.NoError(t, err)
	assert.True(t, first)

	first, err = store.AddUser("bob", "swordfish")
	require.NoError(t, err)
	assert.False(t, first)

	_, err = store.AddUser("alice", "other")
	assert.ErrorIs(t, err, ErrUserAlreadyExists)
}

func TestAuthenticate(t *testing.T) {
	store := newTestStore(t)
	_, err := store.AddUser("alice", "hunter2")
	require.NoError(t, err)

	user, err := store.Authenticate("alice", "hunter2")
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Name)

	_, err = store.Authenticate("alice", "wrong")
	assert.ErrorIs(t, err, ErrUserNotFound)
	_, err = store.Authenticate("nobody", "hunter2")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestUpdateUserPassword(t *testing.T) {
	store := newTestStore(t)
	_, err := store.AddUser("alice", "old")
	require.NoError(t, err)

	require.NoError(t, store.UpdateUserPassword("alice", "new"))

	_, err = store.Authenticate("alice", "old")
	assert.ErrorIs(t, err, ErrUserNotFound)
	_, err = store.Authenticate("alice", "new")
	require.NoError(t, err)

	err = store.UpdateUserPassword("nobody", "x")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestDeleteAndListUsers(t *testing.T) {
	store := newTestStore(t)
	_, err := store.AddUser("bob", "pw")
	require.NoError(t, err)
	_, err = store.AddUser("alice", "pw")
	require.NoError(t, err)

	names, err := store.ListUsers()
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, names)

	require.NoError(t, store.DeleteUser("bob"))
	names, err = store.ListUsers()
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, names)

	err = store.DeleteUser("bob")
	assert.ErrorIs(t, err, ErrUserNotFound)
}
