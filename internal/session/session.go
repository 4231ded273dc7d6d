// Package session holds per-user conversation state for the lifetime of a
// browser session.
package session

import (
	"errors"
	"strings"
	"sync"
	"time"

	"physics-chat/internal/history"
	"physics-chat/internal/models"
)

type State int

const (
	StateUninitialized State = iota
	StateReady
	StateAwaitingReply
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateAwaitingReply:
		return "awaiting_reply"
	default:
		return "uninitialized"
	}
}

var (
	ErrEmptyMessage  = errors.New("message is empty")
	ErrReplyPending  = errors.New("a reply is still pending for this session")
	ErrNotAwaiting   = errors.New("session is not awaiting a reply")
	ErrUninitialized = errors.New("session is not initialized")
)

// Session owns one History and the turn state machine around it.
type Session struct {
	id string

	mu       sync.Mutex
	history  *history.Store
	state    State
	lastSeen time.Time
}

func newSession(id string, now time.Time) *Session {
	return &Session{
		id:       id,
		history:  history.NewStore(),
		lastSeen: now,
	}
}

func (s *Session) ID() string {
	return s.id
}

// Initialize seeds the history on first use; later calls leave it untouched.
func (s *Session) Initialize() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history.Initialize()
	if s.state == StateUninitialized {
		s.state = StateReady
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Turns returns the full transcript.
func (s *Session) Turns() []models.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.All()
}

// BeginTurn appends the user's message and moves the session to
// AWAITING_REPLY. It returns the appended turn and the context to send to
// the model.
func (s *Session) BeginTurn(text string) (models.Turn, []models.Turn, error) {
	if strings.TrimSpace(text) == "" {
		return models.Turn{}, nil, ErrEmptyMessage
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateUninitialized:
		return models.Turn{}, nil, ErrUninitialized
	case StateAwaitingReply:
		return models.Turn{}, nil, ErrReplyPending
	}

	if err := s.history.Append(models.Turn{Role: models.RoleUser, Text: text}); err != nil {
		return models.Turn{}, nil, err
	}
	s.state = StateAwaitingReply

	all := s.history.All()
	return all[len(all)-1], s.history.Context(), nil
}

// CompleteTurn records the model's reply and returns the session to READY.
func (s *Session) CompleteTurn(text string, status models.TurnStatus) (models.Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateAwaitingReply {
		return models.Turn{}, ErrNotAwaiting
	}
	// READY is restored even if the append fails so the session stays usable.
	s.state = StateReady

	if err := s.history.Append(models.Turn{Role: models.RoleModel, Text: text, Status: status}); err != nil {
		return models.Turn{}, err
	}
	all := s.history.All()
	return all[len(all)-1], nil
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) idleSince(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateAwaitingReply {
		return 0
	}
	return now.Sub(s.lastSeen)
}
