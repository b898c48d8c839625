package session

import "time"

// State is the authentication state of one browser.
type State string

const (
	StateLoading   State = "loading"
	StateSignedOut State = "signedOut"
	StateSignedIn  State = "signedIn"
)

// Session is the client-local view of the identity handshake.
type Session struct {
	ID          string    `json:"id"`
	State       State     `json:"state"`
	UserEmail   string    `json:"email,omitempty"`
	AccessToken string    `json:"-"`
	Expiry      time.Time `json:"-"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// SignedIn reports whether the session carries a usable credential.
func (s Session) SignedIn() bool {
	return s.State == StateSignedIn && s.AccessToken != ""
}

// Expired reports whether the access token has passed its expiry.
func (s Session) Expired(now time.Time) bool {
	return !s.Expiry.IsZero() && !now.Before(s.Expiry)
}

// CanTransition reports whether from -> to is an allowed move.
func CanTransition(from, to State) bool {
	switch from {
	case StateLoading:
		return to == StateSignedOut || to == StateSignedIn
	case StateSignedOut:
		return to == StateLoading
	case StateSignedIn:
		return to == StateSignedOut
	}
	return false
}
