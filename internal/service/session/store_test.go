package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sessionModel "github.com/zhouzirui/maxai/client/internal/model/session"
)

func TestStoreRejectsForbiddenTransition(t *testing.T) {
	store := NewStore()
	_, err := store.Open("s1")
	require.NoError(t, err)
	_, err = store.Transition("s1", sessionModel.StateSignedOut, nil)
	require.NoError(t, err)

	_, err = store.Transition("s1", sessionModel.StateSignedIn, nil)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	sess, ok := store.Get("s1")
	require.True(t, ok)
	assert.Equal(t, sessionModel.StateSignedOut, sess.State)
}

func TestStoreOpenTwiceFails(t *testing.T) {
	store := NewStore()
	_, err := store.Open("s1")
	require.NoError(t, err)
	_, err = store.Open("s1")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestStoreTransitionUnknownSession(t *testing.T) {
	_, err := NewStore().Transition("missing", sessionModel.StateLoading, nil)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestStoreClearsCredentialOnSignOut(t *testing.T) {
	store := NewStore()
	_, err := store.Open("s1")
	require.NoError(t, err)
	_, err = store.Transition("s1", sessionModel.StateSignedIn, func(s *sessionModel.Session) {
		s.AccessToken = "tok"
		s.UserEmail = "ada@example.com"
	})
	require.NoError(t, err)

	sess, err := store.Transition("s1", sessionModel.StateSignedOut, nil)
	require.NoError(t, err)
	assert.Empty(t, sess.AccessToken)
	assert.Empty(t, sess.UserEmail)
}

func TestSubscriberKeepsLatestValue(t *testing.T) {
	store := NewStore()
	updates, cancel := store.Subscribe("s1")

	_, err := store.Open("s1")
	require.NoError(t, err)
	_, err = store.Transition("s1", sessionModel.StateSignedOut, nil)
	require.NoError(t, err)

	assert.Equal(t, sessionModel.StateSignedOut, (<-updates).State)

	cancel()
	_, ok := <-updates
	assert.False(t, ok)
	cancel()
}
