package ui

import (
	"errors"
	"fmt"
	"strings"

	"chorus/internal/chat"
	"chorus/internal/models"
	"chorus/internal/styles"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
)

var (
	errNoStore  = errors.New("history store is disabled")
	errNoSpeech = errors.New("voice is not configured")
	errNoSearch = errors.New("search agent is not available")
)

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		tiCmd tea.Cmd
		vpCmd tea.Cmd
		spCmd tea.Cmd
	)

	switch msg := msg.(type) {
	case spinner.TickMsg:
		m.Spinner, spCmd = m.Spinner.Update(msg)
		if m.Loading || m.Recording {
			m.UpdateViewport()
		}
		return m, spCmd

	case tea.KeyMsg:
		if m.HistoryOpen {
			return m.updateHistory(msg)
		}

		if m.ShortcutsOpen {
			switch msg.String() {
			case "ctrl+c":
				return m, tea.Quit
			case "esc", "enter", "?", "ctrl+s":
				m.ShortcutsOpen = false
				return m, nil
			}
			return m, nil
		}

		if isNewlineShortcut(msg) {
			m.TextInput.InsertString("\n")
			m.updateInputLayout()
			return m, nil
		}

		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit

		case tea.KeyCtrlN:
			if m.busy() {
				return m, nil
			}
			return m, m.ResetSession()

		case tea.KeyCtrlA:
			if m.busy() {
				return m, nil
			}
			m.ToggleMode()
			return m, nil

		case tea.KeyCtrlR:
			if m.busy() {
				return m, nil
			}
			return m, m.StartRecording()

		case tea.KeyCtrlT:
			m.SpeakReplies = !m.SpeakReplies
			if m.SpeakReplies && m.Speech == nil {
				m.SpeakReplies = false
				m.appendError(errNoSpeech)
			}
			return m, nil

		case tea.KeyCtrlS:
			m.ShortcutsOpen = true
			m.HistoryOpen = false
			return m, nil

		case tea.KeyCtrlH:
			m.ShortcutsOpen = false
			m.HistoryOpen = true
			m.HistoryPage = 0
			m.RefreshHistory()
			return m, nil

		case tea.KeyEnter:
			if m.busy() {
				return m, nil
			}
			input := strings.TrimSpace(m.TextInput.Value())
			if input == "" {
				return m, nil
			}
			m.TextInput.Reset()
			m.updateInputLayout()

			if input == "/clear" || input == "/reset" {
				return m, m.ResetSession()
			}
			return m, m.Submit(input)
		}

	case StreamChunkMsg:
		m.Partial += msg.Text
		m.UpdateViewport()
		return m, nil

	case StreamDoneMsg:
		m.Loading = false
		m.Streaming = false
		m.Partial = ""
		m.Messages = append(m.Messages, FormatAIMessage(m.render(msg.Content)))
		m.persist(models.RoleAssistant, msg.Content)
		m.UpdateViewport()
		return m, m.speak(msg.Content)

	case StreamErrMsg:
		m.Loading = false
		m.Streaming = false
		m.Partial = ""
		m.Err = msg.Err
		m.Messages = append(m.Messages, FormatAIMessage(chat.FallbackReply))
		m.appendError(msg.Err)
		return m, nil

	case SearchReplyMsg:
		m.Loading = false
		body, sources := SplitCitations(msg.Content)
		m.Messages = append(m.Messages, FormatSearchMessage(m.render(body), sources))
		m.persist(models.RoleAssistant, msg.Content)
		m.UpdateViewport()
		return m, m.speak(body)

	case VoiceResultMsg:
		m.Recording = false
		if !msg.OK || strings.TrimSpace(msg.Text) == "" {
			m.appendInfo("No speech was recognized.")
			return m, nil
		}
		return m, m.Submit(strings.TrimSpace(msg.Text))

	case SpeakDoneMsg:
		m.Speaking = false
		if !msg.OK {
			m.appendInfo("The reply could not be spoken.")
		}
		return m, nil

	case ResetDoneMsg:
		m.Loading = false
		if msg.Err != nil {
			m.appendError(fmt.Errorf("search thread was not reset: %w", msg.Err))
			return m, nil
		}
		m.UpdateViewport()
		return m, nil

	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil
	}

	m.TextInput, tiCmd = m.TextInput.Update(msg)
	m.updateInputLayout()

	// Filter out terminal background color queries and cursor reference codes that leak into the input
	val := m.TextInput.Value()
	if strings.Contains(val, "]11;rgb:") || strings.Contains(val, "1;rgb:") || strings.Contains(val, "[1;1R") {
		m.TextInput.Reset()
	}

	m.Viewport, vpCmd = m.Viewport.Update(msg)

	return m, tea.Batch(tiCmd, vpCmd)
}

func (m *Model) updateHistory(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "esc", "ctrl+h":
		m.HistoryOpen = false
		m.HistoryErr = nil
	case "up", "k":
		if len(m.HistoryChats) == 0 {
			return m, nil
		}
		m.HistorySelectedIdx--
		if m.HistorySelectedIdx < 0 {
			m.HistorySelectedIdx = len(m.HistoryChats) - 1
		}
	case "down", "j":
		if len(m.HistoryChats) == 0 {
			return m, nil
		}
		m.HistorySelectedIdx++
		if m.HistorySelectedIdx >= len(m.HistoryChats) {
			m.HistorySelectedIdx = 0
		}
	case "enter":
		if len(m.HistoryChats) == 0 || m.busy() {
			return m, nil
		}
		if err := m.LoadChat(m.HistoryChats[m.HistorySelectedIdx]); err != nil {
			m.HistoryErr = err
			return m, nil
		}
		m.HistoryOpen = false
		m.HistoryErr = nil
	case "left", "h":
		if m.HistoryPage > 0 {
			m.HistoryPage--
			m.RefreshHistory()
		}
	case "right", "l":
		totalPages := (m.HistoryChatCount + HistoryPageSize - 1) / HistoryPageSize
		if m.HistoryPage < totalPages-1 {
			m.HistoryPage++
			m.RefreshHistory()
		}
	}
	return m, nil
}

func isNewlineShortcut(msg tea.KeyMsg) bool {
	switch msg.String() {
	case "shift+enter", "shift+return", "ctrl+j", "ctrl+enter", "alt+enter":
		return true
	default:
		return false
	}
}

func (m *Model) busy() bool {
	return m.Loading || m.Recording
}

func (m *Model) resize(width, height int) {
	m.WindowWidth = width
	m.WindowHeight = height

	m.ModalWidth = min(max(width-10, MinModalWidth), MaxModalWidth)
	styles.ContentWidth = m.ModalWidth - 6

	chatWidth := width - 2
	m.Viewport.Width = chatWidth - 2

	m.updateInputLayout()
	glamourStyle := "dark"
	if !lipgloss.HasDarkBackground() {
		glamourStyle = "light"
	}
	m.Renderer, _ = glamour.NewTermRenderer(
		glamour.WithStylePath(glamourStyle),
		glamour.WithWordWrap(chatWidth-6),
	)
	m.UpdateViewport()
}

func (m *Model) updateInputLayout() {
	if m.WindowWidth == 0 || m.WindowHeight == 0 {
		return
	}

	inputWidth := max(m.WindowWidth-6, 20)
	contentWidth := max(inputWidth-2, 1)

	maxInputHeight := 6
	lineCount := min(max(WrappedLineCount(m.TextInput.Value(), contentWidth), 1), maxInputHeight)

	m.TextInput.MaxHeight = maxInputHeight
	m.TextInput.SetWidth(inputWidth)
	m.TextInput.SetHeight(lineCount)

	inputBoxHeight := m.TextInput.Height() + 2
	reserved := inputBoxHeight + 5
	m.Viewport.Height = max(m.WindowHeight-reserved, 5)
}

// Submit shows the user message, records it and dispatches it to the facade
// of the current mode.
func (m *Model) Submit(input string) tea.Cmd {
	m.Messages = append(m.Messages, FormatUserMessage(input, m.Viewport.Width, len(m.Messages) == 0))
	m.persist(models.RoleUser, input)

	var cmd tea.Cmd
	switch m.AppMode {
	case models.ModeSearch:
		if m.Search == nil {
			m.appendError(errNoSearch)
			return nil
		}
		cmd = m.searchCmd(input)
	default:
		m.Streaming = true
		cmd = m.chatCmd(input)
	}
	m.Loading = true
	m.UpdateViewport()
	return tea.Batch(cmd, m.Spinner.Tick)
}

func (m *Model) chatCmd(input string) tea.Cmd {
	svc, sess, send, ctx := m.Chat, m.ChatSession, m.Send, m.Ctx
	return func() tea.Msg {
		svc.ChatStream(ctx, sess, input, chat.StreamFuncs{
			Chunk:    func(s string) { send(StreamChunkMsg{Text: s}) },
			Complete: func(full string) { send(StreamDoneMsg{Content: full}) },
			Error:    func(err error) { send(StreamErrMsg{Err: err}) },
		})
		return nil
	}
}

func (m *Model) searchCmd(input string) tea.Cmd {
	svc, ctx := m.Search, m.Ctx
	return func() tea.Msg {
		return SearchReplyMsg{Content: svc.ChatWithSearch(ctx, input)}
	}
}

// StartRecording listens for one utterance; the recognized text is then
// submitted like typed input.
func (m *Model) StartRecording() tea.Cmd {
	if m.Speech == nil {
		m.appendError(errNoSpeech)
		return nil
	}
	m.Recording = true
	m.UpdateViewport()
	ch := m.Speech.RecognizeSpeechAsync(m.Ctx)
	return tea.Batch(func() tea.Msg {
		r := <-ch
		return VoiceResultMsg{Text: r.Text, OK: r.OK}
	}, m.Spinner.Tick)
}

func (m *Model) speak(text string) tea.Cmd {
	if !m.SpeakReplies || m.Speech == nil || strings.TrimSpace(text) == "" {
		return nil
	}
	m.Speaking = true
	ch := m.Speech.SynthesizeSpeechAsync(m.Ctx, text)
	return func() tea.Msg {
		return SpeakDoneMsg{OK: <-ch}
	}
}

// ToggleMode switches between CHAT and SEARCH. The next message starts a new
// stored conversation.
func (m *Model) ToggleMode() {
	if m.AppMode == models.ModeChat {
		m.AppMode = models.ModeSearch
	} else {
		m.AppMode = models.ModeChat
	}
	m.CurrentChatID = ""
	if len(m.Messages) > 0 {
		m.appendInfo(fmt.Sprintf("Switched to %s mode.", strings.ToUpper(m.AppMode.String())))
	}
}

// ResetSession clears the screen and both conversations. The search thread is
// replaced in the background.
func (m *Model) ResetSession() tea.Cmd {
	m.Messages = []string{}
	m.CurrentChatID = ""
	m.Partial = ""
	m.Err = nil
	m.HistoryOpen = false
	m.HistoryErr = nil
	if m.ChatSession != nil {
		m.ChatSession.ClearHistory()
	}
	m.Viewport.SetContent(GetWelcomeScreen(m.Viewport.Width, m.Viewport.Height))
	m.Viewport.GotoTop()
	m.TextInput.Reset()
	m.updateInputLayout()

	if m.Search == nil {
		return nil
	}
	m.Loading = true
	svc, ctx := m.Search, m.Ctx
	return tea.Batch(func() tea.Msg {
		return ResetDoneMsg{Err: svc.ResetThread(ctx)}
	}, m.Spinner.Tick)
}

func (m *Model) RefreshHistory() {
	m.HistoryErr = nil
	m.HistoryChats = nil
	m.HistorySelectedIdx = 0

	if m.Store == nil {
		m.HistoryErr = errNoStore
		return
	}

	offset := m.HistoryPage * HistoryPageSize
	count, chats, err := m.Store.RecentChats(m.Ctx, HistoryPageSize, offset)
	if err != nil {
		m.HistoryErr = err
		return
	}
	m.HistoryChatCount = count
	m.HistoryChats = chats
}

// LoadChat replaces the screen with a stored conversation. Chat transcripts
// are restored into a new session; search threads live remotely, so a stored
// search conversation is shown but continues on the current thread.
func (m *Model) LoadChat(item models.ChatListItem) error {
	if m.Store == nil {
		return errNoStore
	}
	msgs, err := m.Store.ChatMessages(m.Ctx, item.ID)
	if err != nil {
		return err
	}

	m.CurrentChatID = item.ID
	m.AppMode = item.Mode
	m.Loading = false
	m.Partial = ""
	m.Messages = []string{}

	for _, msg := range msgs {
		switch msg.Role {
		case models.RoleUser:
			m.Messages = append(m.Messages, FormatUserMessage(msg.Content, m.Viewport.Width, len(m.Messages) == 0))
		case models.RoleAssistant:
			if item.Mode == models.ModeSearch {
				body, sources := SplitCitations(msg.Content)
				m.Messages = append(m.Messages, FormatSearchMessage(m.render(body), sources))
			} else {
				m.Messages = append(m.Messages, FormatAIMessage(m.render(msg.Content)))
			}
		}
	}

	if item.Mode == models.ModeChat && m.Chat != nil {
		m.ChatSession = m.Chat.RestoreSession(msgs)
	} else if item.Mode == models.ModeSearch {
		m.appendInfo("Earlier search turns are not part of the agent's current thread.")
	}

	m.UpdateViewport()
	return nil
}

func (m *Model) persist(role, content string) {
	if m.Store == nil {
		return
	}
	if m.CurrentChatID == "" {
		if role != models.RoleUser {
			return
		}
		id, err := m.Store.CreateChat(m.Ctx, m.AppMode)
		if err != nil {
			m.Logger.Error("creating stored chat", "error", err)
			m.appendError(fmt.Errorf("history error: %w", err))
			return
		}
		m.CurrentChatID = id
	}
	if err := m.Store.AppendMessage(m.Ctx, m.CurrentChatID, role, content); err != nil {
		m.Logger.Error("storing message", "chat_id", m.CurrentChatID, "error", err)
		m.appendError(fmt.Errorf("history error: %w", err))
	}
}

func (m *Model) render(content string) string {
	if m.Renderer == nil {
		return content
	}
	rendered, err := m.Renderer.Render(content)
	if err != nil {
		return content
	}
	return strings.TrimSpace(rendered)
}

func (m *Model) appendError(err error) {
	m.Messages = append(m.Messages, styles.ErrorStyle.Render(fmt.Sprintf("Error: %v", err)))
	m.UpdateViewport()
}

func (m *Model) appendInfo(text string) {
	m.Messages = append(m.Messages, styles.InfoStyle.Render(text))
	m.UpdateViewport()
}
