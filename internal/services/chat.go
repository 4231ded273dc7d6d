package services

import (
	"context"
	"fmt"

	"physics-chat/internal/models"
	"physics-chat/internal/session"
)

// ErrorReplyPrefix starts every reply that stands in for a failed Gemini call.
const ErrorReplyPrefix = "Maaf, terjadi kesalahan saat berkomunikasi dengan Gemini"

type completer interface {
	Complete(ctx context.Context, turns []models.Turn) models.Completion
}

// TurnPublisher pushes freshly appended turns to live viewers of a session.
type TurnPublisher interface {
	PublishTurns(ctx context.Context, sessionID string, turns []models.Turn)
}

// ChatService runs one user submission through the session, the model and
// back into the history.
type ChatService struct {
	completer completer
	sessions  *session.Registry
	publisher TurnPublisher
}

func NewChatService(c completer, sessions *session.Registry, publisher TurnPublisher) *ChatService {
	return &ChatService{
		completer: c,
		sessions:  sessions,
		publisher: publisher,
	}
}

// History returns the full transcript for sessionID, creating the session on first use.
func (s *ChatService) History(sessionID string) []models.Turn {
	return s.sessions.Get(sessionID).Turns()
}

// Submit appends the user's message, asks the model for a reply and appends
// it. Remote failures become a failed model turn, not an error; errors are
// returned only for rejected input.
func (s *ChatService) Submit(ctx context.Context, sessionID, text string) ([]models.Turn, error) {
	sess := s.sessions.Get(sessionID)

	userTurn, transcript, err := sess.BeginTurn(text)
	if err != nil {
		return nil, err
	}

	// In-flight requests are not cancellable by the caller.
	callCtx := context.WithoutCancel(ctx)
	reply, status := ReplyText(s.completer.Complete(callCtx, transcript))

	modelTurn, err := sess.CompleteTurn(reply, status)
	if err != nil {
		return nil, fmt.Errorf("failed to record reply: %w", err)
	}

	turns := []models.Turn{userTurn, modelTurn}
	if s.publisher != nil {
		s.publisher.PublishTurns(callCtx, sessionID, turns)
	}
	return turns, nil
}

// ReplyText converts a completion into the text stored as the model's turn.
func ReplyText(c models.Completion) (string, models.TurnStatus) {
	if c.Failed() {
		diag := string(c.Failure.Reason)
		if c.Failure.Detail != "" {
			diag += ": " + c.Failure.Detail
		}
		return fmt.Sprintf("%s: %s", ErrorReplyPrefix, diag), models.TurnFailed
	}
	if c.Text == "" {
		return FallbackReply, models.TurnOK
	}
	return c.Text, models.TurnOK
}
