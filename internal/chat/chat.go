// Package chat forwards a growing conversation transcript to an Azure OpenAI
// chat-completion deployment, one turn at a time.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"chorus/internal/models"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// DefaultTemperature is sent when Config.Temperature is nil.
const DefaultTemperature = 0.7

// FallbackReply is returned by Chat when the turn could not be completed.
const FallbackReply = "Sorry, I ran into a problem. Please try again later."

var (
	ErrEmptyMessage = errors.New("chat: empty user message")
	ErrNoChoices    = errors.New("chat: response contained no choices")
)

type Config struct {
	Deployment   string
	SystemPrompt string
	MaxTokens    int64
	// Temperature is optional so an explicit 0 survives defaulting.
	Temperature  *float64
}

// StreamHandler receives the pieces of a streamed reply. Exactly one of
// OnComplete or OnError is called per turn.
type StreamHandler interface {
	OnChunk(chunk string)
	OnComplete(fullResponse string)
	OnError(err error)
}

// StreamFuncs adapts plain functions to a StreamHandler. Nil fields are skipped.
type StreamFuncs struct {
	Chunk    func(string)
	Complete func(string)
	Error    func(error)
}

func (f StreamFuncs) OnChunk(chunk string) {
	if f.Chunk != nil {
		f.Chunk(chunk)
	}
}

func (f StreamFuncs) OnComplete(full string) {
	if f.Complete != nil {
		f.Complete(full)
	}
}

func (f StreamFuncs) OnError(err error) {
	if f.Error != nil {
		f.Error(err)
	}
}

type Service struct {
	client openai.Client
	cfg    Config
	logger *slog.Logger
}

// NewClient builds a client for the Azure OpenAI v1 surface of endpoint.
// Retries are disabled; a failed turn degrades instead.
func NewClient(endpoint, apiKey string, opts ...option.RequestOption) openai.Client {
	base := strings.TrimRight(endpoint, "/") + "/openai/v1/"
	all := []option.RequestOption{
		option.WithBaseURL(base),
		option.WithAPIKey(apiKey),
		option.WithHeader("api-key", apiKey),
		option.WithMaxRetries(0),
	}
	return openai.NewClient(append(all, opts...)...)
}

func New(client openai.Client, cfg Config, logger *slog.Logger) *Service {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1000
	}
	if cfg.Temperature == nil {
		t := DefaultTemperature
		cfg.Temperature = &t
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{client: client, cfg: cfg, logger: logger.With("component", "chat")}
}

func (s *Service) NewSession() *Session {
	return newSession(s.cfg.SystemPrompt)
}

// RestoreSession rebuilds a session from stored user and assistant messages.
// Stored system messages are ignored; the session's own prompt leads.
func (s *Service) RestoreSession(history []models.Message) *Session {
	sess := newSession(s.cfg.SystemPrompt)
	for _, m := range history {
		if m.Role == models.RoleUser || m.Role == models.RoleAssistant {
			sess.messages = append(sess.messages, m)
		}
	}
	return sess
}

// Complete sends one user turn and returns the assistant reply. The user
// message stays in the transcript even when the call fails.
func (s *Service) Complete(ctx context.Context, sess *Session, userMessage string) (string, error) {
	if strings.TrimSpace(userMessage) == "" {
		return "", ErrEmptyMessage
	}

	transcript := sess.append(models.RoleUser, userMessage)
	resp, err := s.client.Chat.Completions.New(ctx, s.params(transcript))
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrNoChoices
	}

	reply := resp.Choices[0].Message.Content
	sess.append(models.RoleAssistant, reply)
	s.logger.Info("assistant replied",
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens)
	return reply, nil
}

// Chat is Complete with failures logged and replaced by FallbackReply.
func (s *Service) Chat(ctx context.Context, sess *Session, userMessage string) string {
	reply, err := s.Complete(ctx, sess, userMessage)
	if err != nil {
		s.logger.Error("chat request failed", "error", err)
		return FallbackReply
	}
	return reply
}

// ChatStream sends one user turn and forwards content deltas to h as they
// arrive. The full reply is appended to the transcript only on success.
func (s *Service) ChatStream(ctx context.Context, sess *Session, userMessage string, h StreamHandler) {
	if strings.TrimSpace(userMessage) == "" {
		h.OnError(ErrEmptyMessage)
		return
	}

	transcript := sess.append(models.RoleUser, userMessage)
	stream := s.client.Chat.Completions.NewStreaming(ctx, s.params(transcript))
	defer func() {
		if err := stream.Close(); err != nil {
			s.logger.Debug("closing stream", "error", err)
		}
	}()

	var sb strings.Builder
	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		sb.WriteString(delta)
		h.OnChunk(delta)
	}
	if err := stream.Err(); err != nil {
		s.logger.Error("streaming chat failed", "error", err)
		h.OnError(fmt.Errorf("chat stream: %w", err))
		return
	}

	full := sb.String()
	sess.append(models.RoleAssistant, full)
	h.OnComplete(full)
}

func (s *Service) params(transcript []models.Message) openai.ChatCompletionNewParams {
	return openai.ChatCompletionNewParams{
		Model:       s.cfg.Deployment,
		Messages:    toParams(transcript),
		MaxTokens:   openai.Int(s.cfg.MaxTokens),
		Temperature: openai.Float(*s.cfg.Temperature),
	}
}

func toParams(transcript []models.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(transcript))
	for _, m := range transcript {
		switch m.Role {
		case models.RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case models.RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}
