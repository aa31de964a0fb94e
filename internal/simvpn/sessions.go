// Package simvpn internal/simvpn/sessions.go
package simvpn

import (
	"context"
	"sync"

	"github.com/skycoin/vpn-coordinator/pkg/session"
)

// Sessions is a session service answering every request with a fixed outcome.
type Sessions struct {
	mx      sync.Mutex
	outcome session.Outcome
	forced  int
}

// NewSessions returns Sessions answering with Success.
func NewSessions() *Sessions {
	return &Sessions{outcome: session.Success()}
}

// SetOutcome changes the outcome of later requests.
func (s *Sessions) SetOutcome(o session.Outcome) {
	s.mx.Lock()
	s.outcome = o
	s.mx.Unlock()
}

// CreateSession implements coordinator.SessionService. A forced request
// always succeeds, as logging out other sessions frees a slot.
func (s *Sessions) CreateSession(_ context.Context, force bool) (session.Outcome, error) {
	s.mx.Lock()
	defer s.mx.Unlock()

	if force {
		s.forced++
		if s.outcome.Kind == session.OutcomeTooManySessions {
			return session.Success(), nil
		}
	}
	return s.outcome, nil
}

// Forced returns how many forced requests were made.
func (s *Sessions) Forced() int {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.forced
}
