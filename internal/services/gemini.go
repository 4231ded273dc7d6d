package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"physics-chat/internal/models"
)

// FallbackReply is returned when Gemini completes without producing text.
const FallbackReply = "Maaf, saya tidak bisa memberikan balasan."

const maxDetailLen = 200

var errEmptyTranscript = errors.New("transcript is empty")

type GeminiConfig struct {
	APIKey          string
	Model           string
	Temperature     float32
	MaxOutputTokens int
}

// generator sends a full transcript to the model. The last content is the
// new user message; everything before it is chat history.
type generator interface {
	generate(ctx context.Context, contents []*genai.Content) (*genai.GenerateContentResponse, error)
}

type chatGenerator struct {
	model *genai.GenerativeModel
}

func (g chatGenerator) generate(ctx context.Context, contents []*genai.Content) (*genai.GenerateContentResponse, error) {
	if len(contents) == 0 {
		return nil, errEmptyTranscript
	}
	cs := g.model.StartChat()
	cs.History = contents[:len(contents)-1]
	return cs.SendMessage(ctx, contents[len(contents)-1].Parts...)
}

type GeminiService struct {
	client *genai.Client
	gen    generator
}

func NewGeminiService(cfg GeminiConfig) (*GeminiService, error) {
	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := client.GenerativeModel(cfg.Model)
	model.SetTemperature(cfg.Temperature)
	model.SetMaxOutputTokens(int32(cfg.MaxOutputTokens))

	return &GeminiService{
		client: client,
		gen:    chatGenerator{model: model},
	}, nil
}

func (s *GeminiService) Close() {
	if s.client != nil {
		s.client.Close()
	}
}

// Complete sends the ordered transcript to Gemini and waits for the reply.
// It never returns an error: failures come back as a classified Completion.
func (s *GeminiService) Complete(ctx context.Context, turns []models.Turn) models.Completion {
	resp, err := s.gen.generate(ctx, toContents(turns))
	if err != nil {
		failure := classifyError(err)
		log.Printf("Gemini completion failed: reason=%s err=%v", failure.Reason, err)
		return models.Completion{Failure: &failure}
	}
	if resp == nil {
		return models.Completion{Failure: &models.CompletionFailure{
			Reason: models.FailureMalformed,
			Detail: "empty response envelope",
		}}
	}

	for i, cand := range resp.Candidates {
		if cand.FinishReason != genai.FinishReasonStop && cand.FinishReason != genai.FinishReasonUnspecified {
			log.Printf("WARNING: Gemini candidate %d stopped due to %s", i, cand.FinishReason)
		}
	}

	text := strings.TrimSpace(extractText(resp))
	if text == "" {
		log.Println("WARNING: Gemini returned empty text. Using fallback.")
		return models.Completion{Text: FallbackReply}
	}
	return models.Completion{Text: text}
}

func toContents(turns []models.Turn) []*genai.Content {
	contents := make([]*genai.Content, 0, len(turns))
	for _, t := range turns {
		contents = append(contents, &genai.Content{
			Role:  string(t.Role),
			Parts: []genai.Part{genai.Text(t.Text)},
		})
	}
	return contents
}

// extractText joins the text parts of the first candidate.
func extractText(resp *genai.GenerateContentResponse) string {
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text.WriteString(string(t))
		}
	}
	return text.String()
}

func classifyError(err error) models.CompletionFailure {
	failure := models.CompletionFailure{
		Reason: models.FailureUnknown,
		Detail: truncate(err.Error(), maxDetailLen),
	}

	var (
		blocked   *genai.BlockedError
		apiErr    *googleapi.Error
		netErr    net.Error
		syntaxErr *json.SyntaxError
	)
	switch {
	case errors.Is(err, context.Canceled):
		failure.Reason = models.FailureCanceled
	case errors.Is(err, context.DeadlineExceeded):
		failure.Reason = models.FailureNetwork
	case errors.As(err, &blocked):
		failure.Reason = models.FailureBlocked
	case errors.As(err, &apiErr):
		failure.Reason = reasonForAPIError(apiErr)
		if apiErr.Message != "" {
			failure.Detail = truncate(apiErr.Message, maxDetailLen)
		}
	case errors.As(err, &netErr):
		failure.Reason = models.FailureNetwork
	case errors.As(err, &syntaxErr), errors.Is(err, io.ErrUnexpectedEOF):
		failure.Reason = models.FailureMalformed
	}
	return failure
}

func reasonForAPIError(e *googleapi.Error) models.FailureReason {
	switch e.Code {
	case http.StatusUnauthorized, http.StatusForbidden:
		return models.FailureAuth
	case http.StatusTooManyRequests:
		return models.FailureQuota
	case http.StatusBadRequest:
		// Gemini reports a bad key as 400 INVALID_ARGUMENT.
		for _, item := range e.Errors {
			if item.Reason == "API_KEY_INVALID" {
				return models.FailureAuth
			}
		}
		if strings.Contains(e.Message, "API key") {
			return models.FailureAuth
		}
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return models.FailureNetwork
	}
	return models.FailureUnknown
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}
