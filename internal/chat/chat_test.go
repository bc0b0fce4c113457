package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"chorus/internal/models"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type sentRequest struct {
	Model       string        `json:"model"`
	Messages    []sentMessage `json:"messages"`
	MaxTokens   int64         `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
	Stream      bool          `json:"stream"`
}

// fakeEndpoint records every chat completion request and answers with the
// queued replies in order.
type fakeEndpoint struct {
	mu       sync.Mutex
	requests []sentRequest
	replies  []string
	status   int
}

func (f *fakeEndpoint) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req sentRequest
	body, _ := io.ReadAll(r.Body)
	_ = json.Unmarshal(body, &req)

	f.mu.Lock()
	f.requests = append(f.requests, req)
	reply := fmt.Sprintf("reply %d", len(f.requests))
	if len(f.replies) > 0 {
		reply, f.replies = f.replies[0], f.replies[1:]
	}
	status := f.status
	f.mu.Unlock()

	if status != 0 {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, `{"error":{"message":"boom","type":"server_error"}}`)
		return
	}

	if req.Stream {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, piece := range strings.SplitAfter(reply, " ") {
			chunk := map[string]any{
				"id": "chunk", "object": "chat.completion.chunk", "created": 1, "model": req.Model,
				"choices": []any{map[string]any{"index": 0, "delta": map[string]any{"content": piece}}},
			}
			data, _ := json.Marshal(chunk)
			fmt.Fprintf(w, "data: %s\n\n", data)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"id": "cmpl", "object": "chat.completion", "created": 1, "model": req.Model,
		"choices": []any{map[string]any{
			"index": 0, "finish_reason": "stop",
			"message": map[string]any{"role": "assistant", "content": reply},
		}},
		"usage": map[string]any{"prompt_tokens": 3, "completion_tokens": 2, "total_tokens": 5},
	})
}

func (f *fakeEndpoint) last() sentRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

func (f *fakeEndpoint) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func newTestService(t *testing.T, endpoint *fakeEndpoint) *Service {
	t.Helper()
	return newTestServiceWith(t, endpoint, Config{
		Deployment:   "gpt-test",
		SystemPrompt: "be helpful",
		MaxTokens:    1000,
		Temperature:  ptr(0.7),
	})
}

func newTestServiceWith(t *testing.T, endpoint *fakeEndpoint, cfg Config) *Service {
	t.Helper()
	srv := httptest.NewServer(endpoint)
	t.Cleanup(srv.Close)

	client := openai.NewClient(
		option.WithBaseURL(srv.URL+"/openai/v1/"),
		option.WithAPIKey("test-key"),
		option.WithMaxRetries(0),
	)
	return New(client, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func ptr[T any](v T) *T { return &v }

func roles(msgs []sentMessage) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Role
	}
	return out
}

func TestChat_SecondTurnCarriesFullTranscript(t *testing.T) {
	endpoint := &fakeEndpoint{replies: []string{"first answer", "second answer"}}
	svc := newTestService(t, endpoint)
	sess := svc.NewSession()
	ctx := context.Background()

	assert.Equal(t, "first answer", svc.Chat(ctx, sess, "first question"))
	assert.Equal(t, "second answer", svc.Chat(ctx, sess, "second question"))

	req := endpoint.last()
	require.Len(t, req.Messages, 4)
	assert.Equal(t, []sentMessage{
		{Role: "system", Content: "be helpful"},
		{Role: "user", Content: "first question"},
		{Role: "assistant", Content: "first answer"},
		{Role: "user", Content: "second question"},
	}, req.Messages)
	assert.Equal(t, "gpt-test", req.Model)
	assert.Equal(t, int64(1000), req.MaxTokens)
	assert.InDelta(t, 0.7, req.Temperature, 1e-9)
	assert.Equal(t, 5, sess.Len())
}

func TestNew_GenerationDefaults(t *testing.T) {
	endpoint := &fakeEndpoint{}
	svc := newTestServiceWith(t, endpoint, Config{Deployment: "d", SystemPrompt: "s"})
	svc.Chat(context.Background(), svc.NewSession(), "hi")

	req := endpoint.last()
	assert.Equal(t, int64(1000), req.MaxTokens)
	assert.InDelta(t, DefaultTemperature, req.Temperature, 1e-9)

	zero := newTestServiceWith(t, endpoint, Config{Deployment: "d", Temperature: ptr(0.0)})
	zero.Chat(context.Background(), zero.NewSession(), "hi")
	assert.InDelta(t, 0.0, endpoint.last().Temperature, 1e-9)
}

func TestChat_ClearHistorySendsSystemAndUserOnly(t *testing.T) {
	endpoint := &fakeEndpoint{}
	svc := newTestService(t, endpoint)
	sess := svc.NewSession()
	ctx := context.Background()

	svc.Chat(ctx, sess, "one")
	svc.Chat(ctx, sess, "two")
	sess.ClearHistory()
	require.Equal(t, 1, sess.Len())

	svc.Chat(ctx, sess, "three")

	req := endpoint.last()
	require.Len(t, req.Messages, 2)
	assert.Equal(t, []string{"system", "user"}, roles(req.Messages))
	assert.Equal(t, "three", req.Messages[1].Content)
}

func TestChat_FailureReturnsFallback(t *testing.T) {
	endpoint := &fakeEndpoint{status: http.StatusInternalServerError}
	svc := newTestService(t, endpoint)
	sess := svc.NewSession()

	reply := svc.Chat(context.Background(), sess, "hello")

	assert.Equal(t, FallbackReply, reply)
	assert.Equal(t, 1, endpoint.count(), "no retries")
	msgs := sess.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, models.Message{Role: models.RoleUser, Content: "hello"}, msgs[1])
}

func TestComplete_RejectsBlankInput(t *testing.T) {
	endpoint := &fakeEndpoint{}
	svc := newTestService(t, endpoint)
	sess := svc.NewSession()

	_, err := svc.Complete(context.Background(), sess, "   ")

	assert.ErrorIs(t, err, ErrEmptyMessage)
	assert.Zero(t, endpoint.count())
	assert.Equal(t, 1, sess.Len())
}

func TestChatStream_ForwardsChunksAndRecordsReply(t *testing.T) {
	endpoint := &fakeEndpoint{replies: []string{"hello there friend"}}
	svc := newTestService(t, endpoint)
	sess := svc.NewSession()

	var chunks []string
	var completed string
	var failed error
	svc.ChatStream(context.Background(), sess, "hi", StreamFuncs{
		Chunk:    func(c string) { chunks = append(chunks, c) },
		Complete: func(full string) { completed = full },
		Error:    func(err error) { failed = err },
	})

	require.NoError(t, failed)
	assert.Equal(t, []string{"hello ", "there ", "friend"}, chunks)
	assert.Equal(t, "hello there friend", completed)

	msgs := sess.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, models.Message{Role: models.RoleAssistant, Content: "hello there friend"}, msgs[2])
	assert.True(t, endpoint.last().Stream)
}

func TestChatStream_ErrorCallback(t *testing.T) {
	endpoint := &fakeEndpoint{status: http.StatusBadGateway}
	svc := newTestService(t, endpoint)
	sess := svc.NewSession()

	var completed bool
	var failed error
	svc.ChatStream(context.Background(), sess, "hi", StreamFuncs{
		Complete: func(string) { completed = true },
		Error:    func(err error) { failed = err },
	})

	assert.Error(t, failed)
	assert.False(t, completed)
	assert.Equal(t, 2, sess.Len(), "user message kept, no assistant entry")
}

func TestRestoreSession(t *testing.T) {
	svc := New(openai.NewClient(option.WithAPIKey("unused")), Config{SystemPrompt: "sys"}, nil)

	sess := svc.RestoreSession([]models.Message{
		{Role: models.RoleSystem, Content: "old system"},
		{Role: models.RoleUser, Content: "q"},
		{Role: models.RoleAssistant, Content: "a"},
	})

	assert.Equal(t, []models.Message{
		{Role: models.RoleSystem, Content: "sys"},
		{Role: models.RoleUser, Content: "q"},
		{Role: models.RoleAssistant, Content: "a"},
	}, sess.Messages())
}
