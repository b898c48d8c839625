package chat

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/zhouzirui/maxai/client/internal/model/chat"
	sessionModel "github.com/zhouzirui/maxai/client/internal/model/session"
	"github.com/zhouzirui/maxai/client/internal/service/backend"
)

// Responder answers one chat request.
type Responder interface {
	Chat(ctx context.Context, req chat.Request) (chat.Response, error)
}

// Outcome reports what Send did.
type Outcome int

const (
	// OutcomeSkipped: empty message or no credential; nothing was sent.
	OutcomeSkipped Outcome = iota
	// OutcomeBusy: another send is outstanding on the panel.
	OutcomeBusy
	OutcomeDelivered
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSkipped:
		return "skipped"
	case OutcomeBusy:
		return "busy"
	case OutcomeDelivered:
		return "delivered"
	case OutcomeFailed:
		return "failed"
	}
	return "unknown"
}

type panel struct {
	busy atomic.Bool

	mu    sync.Mutex
	state chat.Panel
	// generation advances on Forget; a send started before it does not
	// write its answer back.
	generation uint64
}

// Service holds the compose panel of every browser and sends their messages.
type Service struct {
	responder Responder
	timeout   time.Duration
	logger    *zap.Logger
	now       func() time.Time

	mu     sync.Mutex
	panels map[string]*panel
}

// NewService returns a service that bounds every send by timeout.
func NewService(responder Responder, timeout time.Duration, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		responder: responder,
		timeout:   timeout,
		logger:    logger.Named("chat"),
		now:       time.Now,
		panels:    make(map[string]*panel),
	}
}

// Send posts message with the session's credential and records the answer
// on the panel. It blocks until the request resolves or the deadline passes.
// The caller's cancellation does not abort an issued request.
func (s *Service) Send(ctx context.Context, panelID, message string, sess sessionModel.Session) Outcome {
	text := chat.NormalizeMessage(message)
	if text == "" || !sess.SignedIn() {
		return OutcomeSkipped
	}

	p := s.panel(panelID)
	if !p.busy.CompareAndSwap(false, true) {
		return OutcomeBusy
	}
	p.mu.Lock()
	p.state.Busy = true
	generation := p.generation
	p.mu.Unlock()

	resp, kind := s.exchange(ctx, chat.Request{Message: text, AccessToken: sess.AccessToken})

	p.mu.Lock()
	p.state.Busy = false
	if p.generation == generation {
		p.state.ErrorKind = kind
		p.state.UpdatedAt = s.now().UTC()
		if kind == chat.ErrorNone {
			p.state.Display = resp.Response
		} else {
			p.state.Display = chat.ErrorPlaceholder
		}
	}
	p.mu.Unlock()
	p.busy.Store(false)

	if kind != chat.ErrorNone {
		return OutcomeFailed
	}
	return OutcomeDelivered
}

// Panel returns the current state of panelID.
func (s *Service) Panel(panelID string) chat.Panel {
	s.mu.Lock()
	p, ok := s.panels[panelID]
	s.mu.Unlock()
	if !ok {
		return chat.Panel{}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	view := p.state
	view.Busy = p.busy.Load()
	return view
}

// Forget clears the panel so the next user of the browser starts clean.
// An outstanding send keeps the panel busy until it resolves, and its
// answer is discarded.
func (s *Service) Forget(panelID string) {
	s.mu.Lock()
	p, ok := s.panels[panelID]
	s.mu.Unlock()
	if !ok {
		return
	}

	p.mu.Lock()
	p.generation++
	p.state = chat.Panel{}
	p.mu.Unlock()
}

func (s *Service) panel(panelID string) *panel {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.panels[panelID]
	if !ok {
		p = &panel{}
		s.panels[panelID] = p
	}
	return p
}

type result struct {
	resp chat.Response
	err  error
}

// exchange runs one request under the send deadline. The deadline wins even
// if the responder ignores its context.
func (s *Service) exchange(ctx context.Context, req chat.Request) (chat.Response, chat.ErrorKind) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	done := make(chan result, 1)
	go func() {
		resp, err := s.responder.Chat(ctx, req)
		done <- result{resp: resp, err: err}
	}()

	select {
	case r := <-done:
		if r.err == nil {
			return r.resp, chat.ErrorNone
		}
		kind := classify(ctx, r.err)
		s.logger.Info("chat request failed", zap.String("kind", string(kind)))
		return chat.Response{}, kind
	case <-ctx.Done():
		s.logger.Warn("chat request timed out", zap.Duration("timeout", s.timeout))
		return chat.Response{}, chat.ErrorTimeout
	}
}

func classify(ctx context.Context, err error) chat.ErrorKind {
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
		return chat.ErrorTimeout
	case errors.Is(err, backend.ErrStatus):
		return chat.ErrorStatus
	case errors.Is(err, backend.ErrDecode):
		return chat.ErrorDecode
	default:
		return chat.ErrorTransport
	}
}
