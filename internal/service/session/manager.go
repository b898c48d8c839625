package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	sessionModel "github.com/zhouzirui/maxai/client/internal/model/session"
)

var (
	ErrUnknownState     = errors.New("unknown handshake state")
	ErrHandshakeExpired = errors.New("handshake expired")
	ErrProviderDenied   = errors.New("provider denied authorization")
	ErrMissingCode      = errors.New("authorization code missing")
	// ErrHandshakeInFlight is returned for a callback that arrives while
	// the same handshake is being exchanged.
	ErrHandshakeInFlight = errors.New("handshake already being completed")
	// ErrHandshakeSuperseded is returned when the session was signed out or
	// restarted while its code was being exchanged.
	ErrHandshakeSuperseded = errors.New("handshake superseded")
)

// Callback carries the provider's redirect parameters.
type Callback struct {
	Code  string
	State string
	Error string
}

type handshake struct {
	sessionID string
	state     string
	verifier  string
	expiresAt time.Time
	// exchanging is set once a callback claimed the handshake.
	exchanging bool
}

// Manager drives sign-in and sign-out for every browser session.
type Manager struct {
	store      *Store
	provider   Provider
	pendingTTL time.Duration
	logger     *zap.Logger
	now        func() time.Time

	mu         sync.Mutex
	handshakes map[string]handshake // by state
	bySession  map[string]string    // session id -> state
}

// NewManager wires the store to provider.
func NewManager(store *Store, provider Provider, pendingTTL time.Duration, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		store:      store,
		provider:   provider,
		pendingTTL: pendingTTL,
		logger:     logger.Named("session"),
		now:        time.Now,
		handshakes: make(map[string]handshake),
		bySession:  make(map[string]string),
	}
}

// Store exposes the underlying session store for subscribers.
func (m *Manager) Store() *Store {
	return m.store
}

// Current returns the resolved session for id.
func (m *Manager) Current(_ context.Context, id string) sessionModel.Session {
	sess, ok := m.store.Get(id)
	if !ok {
		if _, err := m.store.Open(id); err != nil {
			m.logger.Debug("session opened concurrently", zap.String("session", id))
		}
		// Nothing to restore for a browser we have not seen.
		sess, _ = m.resolve(id, sessionModel.StateLoading, sessionModel.StateSignedOut)
		return sess
	}

	now := m.now()
	switch sess.State {
	case sessionModel.StateLoading:
		h, ok := m.pendingFor(id)
		if ok && h.exchanging {
			// Complete resolves it.
			break
		}
		if !ok || !now.Before(h.expiresAt) {
			m.dropHandshake(id)
			sess, _ = m.resolve(id, sessionModel.StateLoading, sessionModel.StateSignedOut)
		}
	case sessionModel.StateSignedIn:
		if sess.Expired(now) {
			m.logger.Info("access token expired", zap.String("session", id))
			sess, _ = m.resolve(id, sessionModel.StateSignedIn, sessionModel.StateSignedOut)
		}
	}
	return sess
}

// SignIn starts the provider handshake and returns the consent URL. Calling
// it again while the handshake is pending returns the same URL.
func (m *Manager) SignIn(ctx context.Context, id string) (string, error) {
	sess := m.Current(ctx, id)
	switch sess.State {
	case sessionModel.StateSignedIn:
		return "", fmt.Errorf("%w: already signed in", ErrInvalidTransition)
	case sessionModel.StateLoading:
		if h, ok := m.pendingFor(id); ok {
			return m.provider.AuthCodeURL(h.state, h.verifier), nil
		}
	}

	h := handshake{
		sessionID: id,
		state:     uuid.NewString(),
		verifier:  oauth2.GenerateVerifier(),
		expiresAt: m.now().Add(m.pendingTTL),
	}
	m.mu.Lock()
	m.handshakes[h.state] = h
	m.bySession[id] = h.state
	m.mu.Unlock()

	if _, err := m.store.Transition(id, sessionModel.StateLoading, nil); err != nil {
		m.dropHandshake(id)
		return "", err
	}

	m.logger.Debug("handshake started", zap.String("session", id))
	return m.provider.AuthCodeURL(h.state, h.verifier), nil
}

// Complete resolves the handshake from the provider callback. Any failure
// leaves the session signed out; the returned error is informational. The
// session stays loading while the code is exchanged.
func (m *Manager) Complete(ctx context.Context, id string, cb Callback) (sessionModel.Session, error) {
	h, err := m.claimHandshake(id, cb.State)
	switch {
	case errors.Is(err, ErrHandshakeInFlight):
		m.logger.Info("duplicate callback ignored", zap.String("session", id))
		sess, _ := m.store.Get(id)
		return sess, err
	case err != nil:
		return m.fail(id, err)
	}

	if !m.now().Before(h.expiresAt) {
		return m.abandon(h, ErrHandshakeExpired)
	}
	if cb.Error != "" {
		return m.abandon(h, fmt.Errorf("%w: %s", ErrProviderDenied, cb.Error))
	}
	if cb.Code == "" {
		return m.abandon(h, ErrMissingCode)
	}

	token, err := m.provider.Exchange(ctx, cb.Code, h.verifier)
	if err != nil {
		return m.abandon(h, err)
	}
	email, err := m.provider.UserEmail(ctx, token)
	if err != nil {
		return m.abandon(h, err)
	}

	sess, err := m.finish(h, func(s *sessionModel.Session) {
		s.UserEmail = email
		s.AccessToken = token.AccessToken
		s.Expiry = token.Expiry
	})
	if err != nil {
		m.logger.Warn("sign-in discarded", zap.String("session", id), zap.Error(err))
		cur, _ := m.store.Get(id)
		return cur, err
	}

	m.logger.Info("signed in", zap.String("session", id), zap.String("email", email))
	return sess, nil
}

// SignOut clears the credential. Signing out a signed-out session is a no-op.
func (m *Manager) SignOut(ctx context.Context, id string) (sessionModel.Session, error) {
	sess := m.Current(ctx, id)
	if sess.State == sessionModel.StateSignedOut {
		return sess, nil
	}
	m.dropHandshake(id)

	sess, err := m.store.Transition(id, sessionModel.StateSignedOut, nil)
	if err != nil {
		return sess, err
	}
	m.logger.Info("signed out", zap.String("session", id))
	return sess, nil
}

func (m *Manager) fail(id string, cause error) (sessionModel.Session, error) {
	m.dropHandshake(id)
	m.logger.Warn("sign-in failed", zap.String("session", id), zap.Error(cause))

	sess, _ := m.resolve(id, sessionModel.StateLoading, sessionModel.StateSignedOut)
	return sess, cause
}

// abandon ends a claimed handshake as signedOut, unless the session has
// already moved on to another handshake or signed out.
func (m *Manager) abandon(h handshake, cause error) (sessionModel.Session, error) {
	m.logger.Warn("sign-in failed", zap.String("session", h.sessionID), zap.Error(cause))
	if !m.release(h) {
		sess, _ := m.store.Get(h.sessionID)
		return sess, cause
	}
	sess, _ := m.resolve(h.sessionID, sessionModel.StateLoading, sessionModel.StateSignedOut)
	return sess, cause
}

// finish signs the session in if h is still its current handshake.
func (m *Manager) finish(h handshake, mutate func(*sessionModel.Session)) (sessionModel.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.bySession[h.sessionID] != h.state {
		delete(m.handshakes, h.state)
		return sessionModel.Session{}, ErrHandshakeSuperseded
	}
	delete(m.handshakes, h.state)
	delete(m.bySession, h.sessionID)
	return m.store.Transition(h.sessionID, sessionModel.StateSignedIn, mutate)
}

// release forgets h and reports whether it was still the session's current
// handshake.
func (m *Manager) release(h handshake) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.handshakes, h.state)
	if m.bySession[h.sessionID] != h.state {
		return false
	}
	delete(m.bySession, h.sessionID)
	return true
}

// resolve moves id from `from` to `to` if it is still in `from`, and returns
// the session as it stands afterwards.
func (m *Manager) resolve(id string, from, to sessionModel.State) (sessionModel.Session, bool) {
	sess, ok := m.store.Get(id)
	if !ok || sess.State != from {
		return sess, false
	}
	next, err := m.store.Transition(id, to, nil)
	if err != nil {
		// Lost a race with another transition; report what is there now.
		cur, _ := m.store.Get(id)
		return cur, false
	}
	return next, true
}

func (m *Manager) pendingFor(id string) (handshake, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.bySession[id]
	if !ok {
		return handshake{}, false
	}
	h, ok := m.handshakes[state]
	return h, ok
}

// claimHandshake marks the handshake for state as exchanging if it belongs
// to session id. The entry stays registered until finish or release.
func (m *Manager) claimHandshake(id, state string) (handshake, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.handshakes[state]
	if !ok || h.sessionID != id {
		if pending, ok := m.handshakes[m.bySession[id]]; ok && pending.exchanging {
			return handshake{}, ErrHandshakeInFlight
		}
		return handshake{}, ErrUnknownState
	}
	if h.exchanging {
		return handshake{}, ErrHandshakeInFlight
	}
	h.exchanging = true
	m.handshakes[state] = h
	return h, nil
}

func (m *Manager) dropHandshake(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if state, ok := m.bySession[id]; ok {
		delete(m.handshakes, state)
		delete(m.bySession, id)
	}
}
