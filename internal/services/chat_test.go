package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"physics-chat/internal/history"
	"physics-chat/internal/models"
	"physics-chat/internal/session"
)

type stubCompleter struct {
	mu      sync.Mutex
	replies []models.Completion
	calls   [][]models.Turn
}

func (s *stubCompleter) Complete(ctx context.Context, turns []models.Turn) models.Completion {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, turns)
	if len(s.replies) == 0 {
		return models.Completion{Text: "ok"}
	}
	next := s.replies[0]
	s.replies = s.replies[1:]
	return next
}

type recordingPublisher struct {
	sessionIDs []string
	batches    [][]models.Turn
}

func (p *recordingPublisher) PublishTurns(ctx context.Context, sessionID string, turns []models.Turn) {
	p.sessionIDs = append(p.sessionIDs, sessionID)
	p.batches = append(p.batches, turns)
}

func newChatService(c *stubCompleter, p TurnPublisher) *ChatService {
	return NewChatService(c, session.NewRegistry(time.Hour), p)
}

func TestChatService_FreshSessionHistory(t *testing.T) {
	svc := newChatService(&stubCompleter{}, nil)

	turns := svc.History("s1")

	if len(turns) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(turns))
	}
	if turns[0].Role != models.RoleUser || turns[0].Text != history.PersonaInstruction {
		t.Errorf("unexpected first turn: %+v", turns[0])
	}
	if turns[1].Role != models.RoleModel || turns[1].Text != history.PersonaAck {
		t.Errorf("unexpected second turn: %+v", turns[1])
	}
}

func TestChatService_Submit_Success(t *testing.T) {
	completer := &stubCompleter{replies: []models.Completion{{Text: "F = ma"}}}
	pub := &recordingPublisher{}
	svc := newChatService(completer, pub)

	added, err := svc.Submit(context.Background(), "s1", "F = ?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(completer.calls) != 1 || len(completer.calls[0]) != 3 {
		t.Fatalf("expected one call with a 3-turn history, got %v", completer.calls)
	}
	if last := completer.calls[0][2]; last.Role != models.RoleUser || last.Text != "F = ?" {
		t.Errorf("unexpected last context turn: %+v", last)
	}

	if len(added) != 2 || added[0].Text != "F = ?" || added[1].Text != "F = ma" {
		t.Fatalf("unexpected appended turns: %+v", added)
	}

	all := svc.History("s1")
	if len(all) != 4 {
		t.Fatalf("expected 4 turns, got %d", len(all))
	}
	if all[3].Role != models.RoleModel || all[3].Text != "F = ma" || all[3].Status != models.TurnOK {
		t.Errorf("unexpected reply turn: %+v", all[3])
	}

	if len(pub.batches) != 1 || pub.sessionIDs[0] != "s1" || len(pub.batches[0]) != 2 {
		t.Errorf("expected one published batch of 2 turns for s1, got %+v", pub.batches)
	}
}

func TestChatService_Submit_AlternatesForNSubmissions(t *testing.T) {
	svc := newChatService(&stubCompleter{}, nil)

	const n = 5
	for i := 0; i < n; i++ {
		if _, err := svc.Submit(context.Background(), "s1", "question"); err != nil {
			t.Fatalf("submission %d failed: %v", i, err)
		}
	}

	all := svc.History("s1")
	if len(all) != 2+2*n {
		t.Fatalf("expected %d turns, got %d", 2+2*n, len(all))
	}
	for i, turn := range all {
		want := models.RoleUser
		if i%2 == 1 {
			want = models.RoleModel
		}
		if turn.Role != want {
			t.Errorf("turn %d: expected role %q, got %q", i, want, turn.Role)
		}
	}
}

func TestChatService_Submit_EmptyInput(t *testing.T) {
	completer := &stubCompleter{}
	pub := &recordingPublisher{}
	svc := newChatService(completer, pub)

	for _, in := range []string{"", "   ", "\t\n"} {
		_, err := svc.Submit(context.Background(), "s1", in)
		if !errors.Is(err, session.ErrEmptyMessage) {
			t.Errorf("input %q: expected ErrEmptyMessage, got %v", in, err)
		}
	}

	if len(completer.calls) != 0 {
		t.Errorf("expected no remote calls, got %d", len(completer.calls))
	}
	if got := len(svc.History("s1")); got != 2 {
		t.Errorf("expected history to stay at 2 turns, got %d", got)
	}
	if len(pub.batches) != 0 {
		t.Errorf("expected nothing published, got %d batches", len(pub.batches))
	}
}

func TestChatService_Submit_QuotaFailure(t *testing.T) {
	completer := &stubCompleter{replies: []models.Completion{{
		Failure: &models.CompletionFailure{Reason: models.FailureQuota, Detail: "Resource has been exhausted"},
	}}}
	svc := newChatService(completer, nil)

	added, err := svc.Submit(context.Background(), "s1", "F = ?")
	if err != nil {
		t.Fatalf("remote failure must not surface as an error, got %v", err)
	}

	last := svc.History("s1")[3]
	if last.Role != models.RoleModel {
		t.Fatalf("expected model turn, got %q", last.Role)
	}
	if !strings.HasPrefix(last.Text, ErrorReplyPrefix) || !strings.Contains(last.Text, "quota-exceeded") {
		t.Errorf("expected apology embedding quota-exceeded, got %q", last.Text)
	}
	if last.Status != models.TurnFailed {
		t.Errorf("expected failed status, got %q", last.Status)
	}
	if added[1].Text != last.Text {
		t.Errorf("returned turn differs from stored turn")
	}
}

func TestChatService_Submit_FailedExchangeLeftOutOfContext(t *testing.T) {
	completer := &stubCompleter{replies: []models.Completion{
		{Failure: &models.CompletionFailure{Reason: models.FailureNetwork, Detail: "connection refused"}},
		{Text: "E = mc^2"},
	}}
	svc := newChatService(completer, nil)

	if _, err := svc.Submit(context.Background(), "s1", "F = ?"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Submit(context.Background(), "s1", "E = ?"); err != nil {
		t.Fatal(err)
	}

	second := completer.calls[1]
	if len(second) != 3 || second[2].Text != "E = ?" {
		t.Fatalf("expected context of priming pair plus new question, got %+v", second)
	}
	if got := len(svc.History("s1")); got != 6 {
		t.Errorf("expected 6 visible turns, got %d", got)
	}
}

func TestChatService_Submit_ReadyAfterFailure(t *testing.T) {
	completer := &stubCompleter{replies: []models.Completion{
		{Failure: &models.CompletionFailure{Reason: models.FailureAuth}},
	}}
	registry := session.NewRegistry(time.Hour)
	svc := NewChatService(completer, registry, nil)

	if _, err := svc.Submit(context.Background(), "s1", "F = ?"); err != nil {
		t.Fatal(err)
	}

	s, _ := registry.Lookup("s1")
	if s.State() != session.StateReady {
		t.Errorf("expected READY after a failed reply, got %s", s.State())
	}
}

func TestChatService_Submit_IgnoresCallerCancellation(t *testing.T) {
	var seen error
	completer := completerFunc(func(ctx context.Context, turns []models.Turn) models.Completion {
		seen = ctx.Err()
		return models.Completion{Text: "F = ma"}
	})
	svc := NewChatService(completer, session.NewRegistry(time.Hour), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := svc.Submit(ctx, "s1", "F = ?"); err != nil {
		t.Fatal(err)
	}
	if seen != nil {
		t.Errorf("expected the completion context to be detached, got %v", seen)
	}
}

type completerFunc func(ctx context.Context, turns []models.Turn) models.Completion

func (f completerFunc) Complete(ctx context.Context, turns []models.Turn) models.Completion {
	return f(ctx, turns)
}

func TestReplyText(t *testing.T) {
	tests := []struct {
		name       string
		in         models.Completion
		wantText   string
		wantStatus models.TurnStatus
	}{
		{"success", models.Completion{Text: "F = ma"}, "F = ma", models.TurnOK},
		{"empty success", models.Completion{}, FallbackReply, models.TurnOK},
		{
			"failure with detail",
			models.Completion{Failure: &models.CompletionFailure{Reason: models.FailureQuota, Detail: "exhausted"}},
			ErrorReplyPrefix + ": quota-exceeded: exhausted",
			models.TurnFailed,
		},
		{
			"failure without detail",
			models.Completion{Failure: &models.CompletionFailure{Reason: models.FailureBlocked}},
			ErrorReplyPrefix + ": blocked",
			models.TurnFailed,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			text, status := ReplyText(tc.in)
			if text != tc.wantText {
				t.Errorf("expected %q, got %q", tc.wantText, text)
			}
			if status != tc.wantStatus {
				t.Errorf("expected status %q, got %q", tc.wantStatus, status)
			}
		})
	}
}
