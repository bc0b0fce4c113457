package ui

import (
	"context"
	"log/slog"

	"chorus/internal/chat"
	"chorus/internal/models"
	"chorus/internal/speech"
	"chorus/internal/store"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
)

const (
	MaxModalWidth = 60
	MinModalWidth = 30

	HistoryPageSize = 10
)

// ChatService is the streaming chat facade.
type ChatService interface {
	NewSession() *chat.Session
	RestoreSession(history []models.Message) *chat.Session
	ChatStream(ctx context.Context, sess *chat.Session, userMessage string, h chat.StreamHandler)
}

// SearchService is the search-grounded agent facade.
type SearchService interface {
	ChatWithSearch(ctx context.Context, userMessage string) string
	ResetThread(ctx context.Context) error
}

// SpeechService records one utterance or speaks text in the background.
type SpeechService interface {
	RecognizeSpeechAsync(ctx context.Context) <-chan speech.Recognition
	SynthesizeSpeechAsync(ctx context.Context, text string) <-chan bool
}

// Deps wires the facades into the terminal client. Search, Speech and Store
// may be nil; the matching features are then reported as unavailable.
type Deps struct {
	Chat       ChatService
	Search     SearchService
	Speech     SpeechService
	Store      store.Store
	Deployment string
	Logger     *slog.Logger
}

type (
	StreamChunkMsg struct{ Text string }
	StreamDoneMsg  struct{ Content string }
	StreamErrMsg   struct{ Err error }

	SearchReplyMsg struct{ Content string }

	VoiceResultMsg struct {
		Text string
		OK   bool
	}
	SpeakDoneMsg struct{ OK bool }
	ResetDoneMsg struct{ Err error }
)

type Model struct {
	Viewport  viewport.Model
	Messages  []string
	TextInput textarea.Model
	Spinner   spinner.Model
	Renderer  *glamour.TermRenderer

	Chat       ChatService
	Search     SearchService
	Speech     SpeechService
	Store      store.Store
	Deployment string
	Logger     *slog.Logger

	// Send delivers messages from background work; NewProgram points it at
	// the running program.
	Send func(tea.Msg)
	Ctx  context.Context

	ChatSession   *chat.Session
	CurrentChatID string
	AppMode       models.AppMode

	Loading      bool
	Streaming    bool
	Partial      string
	Recording    bool
	SpeakReplies bool
	Speaking     bool
	Err          error

	WindowWidth  int
	WindowHeight int
	ModalWidth   int

	HistoryOpen        bool
	HistorySelectedIdx int
	HistoryChatCount   int
	HistoryChats       []models.ChatListItem
	HistoryErr         error
	HistoryPage        int

	ShortcutsOpen bool
}
