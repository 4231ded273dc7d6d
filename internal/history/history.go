// Package history keeps the ordered transcript of a single chat session.
package history

import (
	"errors"
	"strings"
	"time"

	"physics-chat/internal/models"
)

// Priming pair every conversation starts with. The model conditions on these
// two turns as if they had been exchanged before the user arrived.
const (
	PersonaInstruction = "Kamu adalah ahli fisika. Tuliskan rumus tentang Fisika. Jawaban singkat. Tolak pertanyaan non-fisika."
	PersonaAck         = "Baik! Berikan rumus yang ingin anda ketahui."
)

var (
	ErrEmptyText   = errors.New("turn text is empty")
	ErrInvalidRole = errors.New("turn role is invalid")
)

// Store is an append-only log of turns. It is not safe for concurrent use;
// the owning session serializes access.
type Store struct {
	turns []models.Turn
	now   func() time.Time
}

func NewStore() *Store {
	return &Store{now: time.Now}
}

// PrimingPair returns fresh copies of the two seed turns.
func PrimingPair(at time.Time) []models.Turn {
	return []models.Turn{
		{Role: models.RoleUser, Text: PersonaInstruction, Status: models.TurnOK, CreatedAt: at},
		{Role: models.RoleModel, Text: PersonaAck, Status: models.TurnOK, CreatedAt: at},
	}
}

// Initialize seeds the priming pair. Calling it on a populated store is a no-op.
func (s *Store) Initialize() {
	if len(s.turns) > 0 {
		return
	}
	s.turns = PrimingPair(s.now())
}

func (s *Store) Initialized() bool {
	return len(s.turns) > 0
}

// Append adds turn to the end of the log, stamping CreatedAt and Status when unset.
func (s *Store) Append(turn models.Turn) error {
	if !turn.Role.Valid() {
		return ErrInvalidRole
	}
	if strings.TrimSpace(turn.Text) == "" {
		return ErrEmptyText
	}
	if turn.Status == "" {
		turn.Status = models.TurnOK
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = s.now()
	}
	s.turns = append(s.turns, turn)
	return nil
}

// All returns a copy of every turn in insertion order.
func (s *Store) All() []models.Turn {
	out := make([]models.Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

func (s *Store) Len() int {
	return len(s.turns)
}

// Context returns the turns sent to the model. A failed reply and the user
// turn that triggered it are left out so roles keep alternating.
func (s *Store) Context() []models.Turn {
	out := make([]models.Turn, 0, len(s.turns))
	for _, t := range s.turns {
		if t.Role == models.RoleModel && t.Status == models.TurnFailed {
			if n := len(out); n > 0 && out[n-1].Role == models.RoleUser {
				out = out[:n-1]
			}
			continue
		}
		out = append(out, t)
	}
	return out
}
