package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to State
		want     bool
	}{
		{StateLoading, StateSignedOut, true},
		{StateLoading, StateSignedIn, true},
		{StateSignedOut, StateLoading, true},
		{StateSignedIn, StateSignedOut, true},
		{StateSignedOut, StateSignedIn, false},
		{StateSignedIn, StateLoading, false},
		{StateLoading, StateLoading, false},
		{State(""), StateSignedIn, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, CanTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestSignedInRequiresToken(t *testing.T) {
	assert.False(t, Session{State: StateSignedIn}.SignedIn())
	assert.True(t, Session{State: StateSignedIn, AccessToken: "tok"}.SignedIn())
	assert.False(t, Session{State: StateSignedOut, AccessToken: "tok"}.SignedIn())
}

func TestExpired(t *testing.T) {
	now := time.Now()
	assert.False(t, Session{}.Expired(now))
	assert.True(t, Session{Expiry: now}.Expired(now))
	assert.False(t, Session{Expiry: now.Add(time.Minute)}.Expired(now))
}
