package ui

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"chorus/internal/chat"
	"chorus/internal/models"
	"chorus/internal/speech"
	"chorus/internal/store"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChat struct {
	chunks   []string
	err      error
	prompts  []string
	restored [][]models.Message
}

func (f *fakeChat) NewSession() *chat.Session { return nil }

func (f *fakeChat) RestoreSession(history []models.Message) *chat.Session {
	f.restored = append(f.restored, history)
	return nil
}

func (f *fakeChat) ChatStream(_ context.Context, _ *chat.Session, msg string, h chat.StreamHandler) {
	f.prompts = append(f.prompts, msg)
	if f.err != nil {
		h.OnError(f.err)
		return
	}
	full := ""
	for _, c := range f.chunks {
		h.OnChunk(c)
		full += c
	}
	h.OnComplete(full)
}

type fakeSearch struct {
	reply    string
	resetErr error
	asked    []string
	resets   int
}

func (f *fakeSearch) ChatWithSearch(_ context.Context, msg string) string {
	f.asked = append(f.asked, msg)
	return f.reply
}

func (f *fakeSearch) ResetThread(context.Context) error {
	f.resets++
	return f.resetErr
}

type fakeSpeech struct {
	heard  speech.Recognition
	spoken []string
}

func (f *fakeSpeech) RecognizeSpeechAsync(context.Context) <-chan speech.Recognition {
	ch := make(chan speech.Recognition, 1)
	ch <- f.heard
	close(ch)
	return ch
}

func (f *fakeSpeech) SynthesizeSpeechAsync(_ context.Context, text string) <-chan bool {
	f.spoken = append(f.spoken, text)
	ch := make(chan bool, 1)
	ch <- true
	close(ch)
	return ch
}

type recorder struct {
	mu   sync.Mutex
	msgs []tea.Msg
}

func (r *recorder) send(msg tea.Msg) {
	r.mu.Lock()
	r.msgs = append(r.msgs, msg)
	r.mu.Unlock()
}

func newTestModel(t *testing.T, deps Deps) (*Model, *recorder) {
	t.Helper()
	if deps.Store == nil {
		s, err := store.OpenSQLite(filepath.Join(t.TempDir(), "ui.db"))
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		deps.Store = s
	}
	m := NewModel(context.Background(), deps)
	rec := &recorder{}
	m.Send = rec.send
	m.resize(120, 40)
	return m, rec
}

func storedTranscript(t *testing.T, m *Model) []models.Message {
	t.Helper()
	require.NotEmpty(t, m.CurrentChatID)
	msgs, err := m.Store.ChatMessages(context.Background(), m.CurrentChatID)
	require.NoError(t, err)
	return msgs
}

func TestChatTurnStreamsAndPersists(t *testing.T) {
	fc := &fakeChat{chunks: []string{"Hello", " there"}}
	m, rec := newTestModel(t, Deps{Chat: fc})

	m.Submit("hi")
	assert.True(t, m.Loading)
	assert.True(t, m.Streaming)

	assert.Nil(t, m.chatCmd("hi")())
	require.Len(t, rec.msgs, 3)
	assert.Equal(t, StreamChunkMsg{Text: "Hello"}, rec.msgs[0])
	assert.Equal(t, StreamDoneMsg{Content: "Hello there"}, rec.msgs[2])

	m.Update(rec.msgs[0])
	m.Update(rec.msgs[1])
	assert.Equal(t, "Hello there", m.Partial)

	m.Update(rec.msgs[2])
	assert.False(t, m.Loading)
	assert.Empty(t, m.Partial)
	assert.Equal(t, []models.Message{
		{Role: models.RoleUser, Content: "hi"},
		{Role: models.RoleAssistant, Content: "Hello there"},
	}, storedTranscript(t, m))
}

func TestChatStreamErrorShowsFallback(t *testing.T) {
	fc := &fakeChat{err: errors.New("429 too many requests")}
	m, rec := newTestModel(t, Deps{Chat: fc})

	m.Submit("hi")
	m.chatCmd("hi")()
	require.Len(t, rec.msgs, 1)
	m.Update(rec.msgs[0])

	assert.False(t, m.Loading)
	assert.EqualError(t, m.Err, "429 too many requests")
	assert.Equal(t, []models.Message{{Role: models.RoleUser, Content: "hi"}}, storedTranscript(t, m))
}

func TestSearchTurn(t *testing.T) {
	fs := &fakeSearch{reply: "Sunny. [Source: Weather (https://example.com/w)]"}
	m, _ := newTestModel(t, Deps{Chat: &fakeChat{}, Search: fs})
	m.ToggleMode()
	require.Equal(t, models.ModeSearch, m.AppMode)

	m.Submit("weather?")
	msg := m.searchCmd("weather?")()
	assert.Equal(t, []string{"weather?"}, fs.asked)

	m.Update(msg)
	assert.False(t, m.Loading)
	assert.Contains(t, m.Messages[len(m.Messages)-1], "Sources")

	assert.Equal(t, []models.Message{
		{Role: models.RoleUser, Content: "weather?"},
		{Role: models.RoleAssistant, Content: "Sunny. [Source: Weather (https://example.com/w)]"},
	}, storedTranscript(t, m))

	_, items, err := m.Store.RecentChats(context.Background(), 10, 0)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, models.ModeSearch, items[0].Mode)
}

func TestSearchRepliesAreSpokenWithoutMarkers(t *testing.T) {
	fs := &fakeSearch{reply: "Sunny. [Source: https://example.com]"}
	sp := &fakeSpeech{}
	m, _ := newTestModel(t, Deps{Chat: &fakeChat{}, Search: fs, Speech: sp})
	m.ToggleMode()
	m.Update(tea.KeyMsg{Type: tea.KeyCtrlT})
	require.True(t, m.SpeakReplies)

	m.Submit("weather?")
	_, cmd := m.Update(m.searchCmd("weather?")())
	require.NotNil(t, cmd)
	assert.Equal(t, SpeakDoneMsg{OK: true}, cmd())
	assert.Equal(t, []string{"Sunny."}, sp.spoken)
}

func TestSpeakToggleWithoutSpeech(t *testing.T) {
	m, _ := newTestModel(t, Deps{Chat: &fakeChat{}})

	m.Update(tea.KeyMsg{Type: tea.KeyCtrlT})
	assert.False(t, m.SpeakReplies)
	assert.Contains(t, m.Messages[len(m.Messages)-1], "voice is not configured")
}

func TestVoiceResult(t *testing.T) {
	fc := &fakeChat{}
	m, _ := newTestModel(t, Deps{Chat: fc, Speech: &fakeSpeech{}})

	m.Recording = true
	m.Update(VoiceResultMsg{OK: false})
	assert.False(t, m.Recording)
	assert.False(t, m.Loading)
	assert.Empty(t, m.CurrentChatID)

	m.Recording = true
	m.Update(VoiceResultMsg{Text: " 今天天气怎么样 ", OK: true})
	assert.True(t, m.Loading)
	assert.Equal(t, []models.Message{{Role: models.RoleUser, Content: "今天天气怎么样"}}, storedTranscript(t, m))
}

func TestStartRecording(t *testing.T) {
	sp := &fakeSpeech{heard: speech.Recognition{Text: "hello", OK: true}}
	m, _ := newTestModel(t, Deps{Chat: &fakeChat{}, Speech: sp})

	require.NotNil(t, m.StartRecording())
	assert.True(t, m.Recording)

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, cmd)
}

func TestResetSession(t *testing.T) {
	fs := &fakeSearch{resetErr: errors.New("thread create failed")}
	m, _ := newTestModel(t, Deps{Chat: &fakeChat{}, Search: fs})
	m.Submit("hi")
	m.Loading = false
	require.NotEmpty(t, m.CurrentChatID)

	require.NotNil(t, m.ResetSession())
	assert.Empty(t, m.Messages)
	assert.Empty(t, m.CurrentChatID)
	assert.True(t, m.Loading)

	m.Update(ResetDoneMsg{Err: fs.ResetThread(context.Background())})
	assert.False(t, m.Loading)
	assert.Contains(t, m.Messages[0], "thread create failed")
}

func TestHistoryLoadRestoresChat(t *testing.T) {
	fc := &fakeChat{}
	m, _ := newTestModel(t, Deps{Chat: fc})
	ctx := context.Background()

	id, err := m.Store.CreateChat(ctx, models.ModeChat)
	require.NoError(t, err)
	require.NoError(t, m.Store.AppendMessage(ctx, id, models.RoleUser, "q"))
	require.NoError(t, m.Store.AppendMessage(ctx, id, models.RoleAssistant, "a"))

	m.Update(tea.KeyMsg{Type: tea.KeyCtrlH})
	require.True(t, m.HistoryOpen)
	require.NoError(t, m.HistoryErr)
	require.Len(t, m.HistoryChats, 1)
	assert.Equal(t, "q", m.HistoryChats[0].LastUserPrompt)

	m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.False(t, m.HistoryOpen)
	assert.Equal(t, id, m.CurrentChatID)
	assert.Len(t, m.Messages, 2)
	require.Len(t, fc.restored, 1)
	assert.Equal(t, []models.Message{
		{Role: models.RoleUser, Content: "q"},
		{Role: models.RoleAssistant, Content: "a"},
	}, fc.restored[0])
}

func TestToggleModeStartsNewStoredChat(t *testing.T) {
	m, _ := newTestModel(t, Deps{Chat: &fakeChat{}, Search: &fakeSearch{}})
	m.Submit("hi")
	m.Loading = false
	first := m.CurrentChatID

	m.Update(tea.KeyMsg{Type: tea.KeyCtrlA})
	assert.Equal(t, models.ModeSearch, m.AppMode)
	assert.Empty(t, m.CurrentChatID)

	m.Submit("search this")
	assert.NotEqual(t, first, m.CurrentChatID)
}
