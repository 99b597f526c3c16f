// Package mock provides test doubles for the live package interfaces.
//
// Use Provider to verify Connect calls and capture the handler that the code
// under test registered. Use Session to inspect what was sent, and drive the
// handler directly to simulate server events:
//
//	p := &mock.Provider{}
//	sess, _ := p.Connect(ctx, cfg, h)
//	p.LastHandler().OnOpen()
//	p.LastHandler().OnMessage(live.Message{TurnComplete: true})
package mock

import (
	"context"
	"errors"
	"sync"

	"github.com/MrWong99/studymate/pkg/audio"
	"github.com/MrWong99/studymate/pkg/provider/live"
)

var (
	_ live.Provider = (*Provider)(nil)
	_ live.Session  = (*Session)(nil)
)

// ErrClosed is returned by Session sends after Close.
var ErrClosed = errors.New("mock: session closed")

// ConnectCall records a single invocation of Provider.Connect.
type ConnectCall struct {
	// Ctx is the context passed to Connect.
	Ctx context.Context
	// Cfg is the SessionConfig passed to Connect.
	Cfg live.SessionConfig
	// Handler is the handler passed to Connect.
	Handler live.Handler
	// Session is the session returned, nil on error.
	Session *Session
}

// Provider is a mock implementation of live.Provider.
type Provider struct {
	mu sync.Mutex

	// ConnectErr, if non-nil, is returned as the error from Connect.
	ConnectErr error

	// ConnectHook, if set, runs inside Connect before it returns. Tests use it
	// to block Connect or to fire handler events during connection.
	ConnectHook func(ctx context.Context, h live.Handler) error

	// CloseErr is assigned to every Session created by Connect.
	CloseErr error

	// ConnectCalls records every call to Connect in order.
	ConnectCalls []ConnectCall
}

// Connect records the call and returns a new Session or ConnectErr.
func (p *Provider) Connect(ctx context.Context, cfg live.SessionConfig, h live.Handler) (live.Session, error) {
	p.mu.Lock()
	hook := p.ConnectHook
	connectErr := p.ConnectErr
	closeErr := p.CloseErr
	p.mu.Unlock()

	if hook != nil {
		if err := hook(ctx, h); err != nil {
			connectErr = err
		}
	}

	call := ConnectCall{Ctx: ctx, Cfg: cfg, Handler: h}
	if connectErr == nil {
		call.Session = &Session{CloseErr: closeErr}
	}

	p.mu.Lock()
	p.ConnectCalls = append(p.ConnectCalls, call)
	p.mu.Unlock()

	if connectErr != nil {
		return nil, connectErr
	}
	return call.Session, nil
}

// Calls returns a snapshot of all Connect calls.
func (p *Provider) Calls() []ConnectCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]ConnectCall, len(p.ConnectCalls))
	copy(out, p.ConnectCalls)
	return out
}

// LastHandler returns the handler from the most recent Connect, or nil.
func (p *Provider) LastHandler() live.Handler {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.ConnectCalls) == 0 {
		return nil
	}
	return p.ConnectCalls[len(p.ConnectCalls)-1].Handler
}

// LastSession returns the session from the most recent successful Connect, or
// nil.
func (p *Provider) LastSession() *Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := len(p.ConnectCalls) - 1; i >= 0; i-- {
		if s := p.ConnectCalls[i].Session; s != nil {
			return s
		}
	}
	return nil
}

// Session is a mock implementation of live.Session.
type Session struct {
	mu sync.Mutex

	// SendErr, if non-nil, is returned by SendRealtimeInput.
	SendErr error

	// CloseErr is returned by every Close call.
	CloseErr error

	// Chunks records every chunk accepted by SendRealtimeInput.
	Chunks []audio.Chunk

	// CallCountClose is the number of times Close was called.
	CallCountClose int

	closed bool
	sent   chan struct{}
}

// SendRealtimeInput implements live.Session.
func (s *Session) SendRealtimeInput(_ context.Context, chunk audio.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.SendErr != nil {
		return s.SendErr
	}
	s.Chunks = append(s.Chunks, chunk)
	if s.sent != nil {
		select {
		case s.sent <- struct{}{}:
		default:
		}
	}
	return nil
}

// Close implements live.Session.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountClose++
	s.closed = true
	return s.CloseErr
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// SentChunks returns a snapshot of the chunks sent so far.
func (s *Session) SentChunks() []audio.Chunk {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]audio.Chunk, len(s.Chunks))
	copy(out, s.Chunks)
	return out
}

// Sent returns a channel that receives a value (non-blocking, buffered 64)
// after every successful SendRealtimeInput. It is created on first use.
func (s *Session) Sent() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sent == nil {
		s.sent = make(chan struct{}, 64)
	}
	return s.sent
}
