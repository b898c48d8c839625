package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	sessionModel "github.com/zhouzirui/maxai/client/internal/model/session"
)

// ErrInvalidTransition is returned for moves the state machine forbids.
var ErrInvalidTransition = errors.New("invalid session transition")

// Store owns every browser session and notifies subscribers on change.
type Store struct {
	mu       sync.Mutex
	sessions map[string]sessionModel.Session
	subs     map[string]map[uint64]chan sessionModel.Session
	nextSub  uint64
	now      func() time.Time
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		sessions: make(map[string]sessionModel.Session),
		subs:     make(map[string]map[uint64]chan sessionModel.Session),
		now:      time.Now,
	}
}

// Get returns the session for id.
func (s *Store) Get(id string) (sessionModel.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

// Open creates id in the loading state. It fails when id already exists.
func (s *Store) Open(id string) (sessionModel.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; ok {
		return sessionModel.Session{}, fmt.Errorf("%w: session %s already open", ErrInvalidTransition, id)
	}
	sess := sessionModel.Session{
		ID:        id,
		State:     sessionModel.StateLoading,
		UpdatedAt: s.now().UTC(),
	}
	s.sessions[id] = sess
	s.publishLocked(sess)
	return sess, nil
}

// Transition moves id to state `to` and applies mutate to the new value.
// Credentials are cleared on every move away from signedIn.
func (s *Store) Transition(id string, to sessionModel.State, mutate func(*sessionModel.Session)) (sessionModel.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.sessions[id]
	if !ok {
		return sessionModel.Session{}, fmt.Errorf("%w: session %s not found", ErrInvalidTransition, id)
	}
	if !sessionModel.CanTransition(cur.State, to) {
		return cur, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, cur.State, to)
	}

	next := cur
	next.State = to
	if to != sessionModel.StateSignedIn {
		next.UserEmail = ""
		next.AccessToken = ""
		next.Expiry = time.Time{}
	}
	if mutate != nil {
		mutate(&next)
	}
	next.UpdatedAt = s.now().UTC()

	s.sessions[id] = next
	s.publishLocked(next)
	return next, nil
}

// Subscribe returns a channel that receives every later change to id.
// A slow reader only sees the most recent value.
func (s *Store) Subscribe(id string) (<-chan sessionModel.Session, func()) {
	ch := make(chan sessionModel.Session, 1)

	s.mu.Lock()
	s.nextSub++
	key := s.nextSub
	if s.subs[id] == nil {
		s.subs[id] = make(map[uint64]chan sessionModel.Session)
	}
	s.subs[id][key] = ch
	s.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subs[id], key)
			if len(s.subs[id]) == 0 {
				delete(s.subs, id)
			}
			close(ch)
		})
	}
	return ch, cancel
}

func (s *Store) publishLocked(sess sessionModel.Session) {
	for _, ch := range s.subs[sess.ID] {
		select {
		case ch <- sess:
			continue
		default:
		}
		// Drop the stale value and deliver the latest.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- sess:
		default:
		}
	}
}
