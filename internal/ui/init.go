package ui

import (
	"context"
	"log/slog"

	"chorus/internal/models"
	"chorus/internal/styles"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

func NewModel(ctx context.Context, deps Deps) *Model {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	ti := textarea.New()
	ti.Placeholder = "Type a message..."
	ti.Prompt = "❯ "
	ti.ShowLineNumbers = false
	ti.CharLimit = 0
	ti.MaxHeight = 6
	ti.SetHeight(2)
	ti.SetWidth(80)
	ti.FocusedStyle.Prompt = lipgloss.NewStyle().Foreground(lipgloss.Color("#B39DDB")).Bold(true)
	ti.BlurredStyle.Prompt = lipgloss.NewStyle().Foreground(lipgloss.Color("#B39DDB")).Bold(true)
	ti.FocusedStyle.Placeholder = lipgloss.NewStyle().Foreground(lipgloss.Color("#545454"))
	ti.BlurredStyle.Placeholder = lipgloss.NewStyle().Foreground(lipgloss.Color("#545454"))
	ti.FocusedStyle.CursorLine = lipgloss.NewStyle()
	ti.BlurredStyle.CursorLine = lipgloss.NewStyle()
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#B39DDB"))

	m := &Model{
		TextInput:  ti,
		Viewport:   viewport.New(60, 15),
		Spinner:    sp,
		Chat:       deps.Chat,
		Search:     deps.Search,
		Speech:     deps.Speech,
		Store:      deps.Store,
		Deployment: deps.Deployment,
		Logger:     deps.Logger.With("component", "ui"),
		Send:       func(tea.Msg) {},
		Ctx:        ctx,
		AppMode:    models.ModeChat,
		Messages:   []string{},
		ModalWidth: MaxModalWidth,
	}
	if m.Chat != nil {
		m.ChatSession = m.Chat.NewSession()
	}
	return m
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(
		m.TextInput.Cursor.BlinkCmd(),
		m.Spinner.Tick,
	)
}

func NewProgram(ctx context.Context, deps Deps) (*tea.Program, *Model) {
	styles.InitTheme()
	m := NewModel(ctx, deps)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	m.Send = p.Send
	return p, m
}
