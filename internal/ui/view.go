package ui

import (
	"fmt"
	"strings"
	"time"

	"chorus/internal/models"
	"chorus/internal/styles"

	"github.com/charmbracelet/lipgloss"
)

func (m *Model) RenderHistorySelector() string {
	totalPages := max((m.HistoryChatCount+HistoryPageSize-1)/HistoryPageSize, 1)
	title := styles.ModalTitleStyle.Render(fmt.Sprintf("Recent Chats (%d) - Page %d/%d", m.HistoryChatCount, m.HistoryPage+1, totalPages))

	var body string
	if m.HistoryErr != nil {
		body = lipgloss.NewStyle().Width(styles.ContentWidth).Render(styles.ErrorStyle.Render(fmt.Sprintf("Error: %v", m.HistoryErr)))
	} else if len(m.HistoryChats) == 0 {
		body = styles.ModalItemStyle.Render(lipgloss.NewStyle().Foreground(styles.HintColor).Render("No chats yet"))
	} else {
		items := make([]string, 0, len(m.HistoryChats))
		for i, chat := range m.HistoryChats {
			isSelected := i == m.HistorySelectedIdx
			cursor := "  "
			if isSelected {
				cursor = "> "
			}
			timeStr := RelativeTime(time.Unix(chat.UpdatedAtUnix, 0))
			badge := modeTag(chat.Mode)
			prompt := PromptPreview(chat.LastUserPrompt)
			if prompt == "" {
				prompt = "(no prompt)"
			}
			availableWidth := styles.ContentWidth - 2 - len(cursor) - lipgloss.Width(badge) - 2 - len(timeStr)
			prompt = TruncateRunes(prompt, availableWidth)

			itemContent := fmt.Sprintf("%s%s %s %s", cursor, badge, prompt, lipgloss.NewStyle().Foreground(styles.HintColor).Render(timeStr))
			if isSelected {
				items = append(items, styles.ModalSelectedStyle.Render(itemContent))
			} else {
				items = append(items, styles.ModalItemStyle.Render(itemContent))
			}
		}
		body = lipgloss.JoinVertical(lipgloss.Left, items...)
	}

	content := lipgloss.JoinVertical(lipgloss.Left, title, body)
	hint := lipgloss.NewStyle().
		Foreground(styles.HintColor).
		Width(styles.ContentWidth).
		PaddingTop(1).
		Render("↑/↓: navigate • ←/→: page • Enter: open • Esc: close")

	return lipgloss.JoinVertical(lipgloss.Left, content, hint)
}

func modeTag(mode models.AppMode) string {
	return lipgloss.NewStyle().
		Foreground(styles.ModeColor(mode)).
		Render(strings.ToUpper(mode.String()[:1]))
}

var shortcuts = []struct {
	key  string
	desc string
}{
	{"Ctrl+C", "Quit Application"},
	{"Ctrl+N", "New Session (/clear)"},
	{"Ctrl+A", "Toggle Chat/Search Mode"},
	{"Ctrl+R", "Speak a Message"},
	{"Ctrl+T", "Toggle Reading Replies Aloud"},
	{"Ctrl+H", "View Chat History"},
	{"Ctrl+S", "View Shortcuts (this menu)"},
	{"Ctrl+J", "Insert Newline"},
}

func (m *Model) RenderShortcutsModal() string {
	title := styles.ModalTitleStyle.Render("Keyboard Shortcuts")

	keyStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#FFCC80")).
		Bold(true).
		Width(12)

	descStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#E0E0E0"))

	var items []string
	for _, s := range shortcuts {
		line := fmt.Sprintf("%s %s", keyStyle.Render(s.key), descStyle.Render(s.desc))
		items = append(items, styles.ModalItemStyle.Render(line))
	}

	listContent := lipgloss.JoinVertical(lipgloss.Left, items...)
	content := lipgloss.JoinVertical(lipgloss.Left, title, listContent)

	hint := lipgloss.NewStyle().
		Foreground(styles.HintColor).
		Width(styles.ContentWidth).
		PaddingTop(1).
		Render("Esc/Enter: close")

	return lipgloss.JoinVertical(lipgloss.Left, content, hint)
}

func (m *Model) RenderBottomBar() string {
	mode := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#FFFFFF")).
		Background(styles.ModeColor(m.AppMode)).
		Padding(0, 1).
		Render(strings.ToUpper(m.AppMode.String()))

	target := m.Deployment
	if m.AppMode == models.ModeSearch {
		target = "web search agent"
	}
	deployment := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#B39DDB")).
		Render(TruncateRunes(target, 25))

	var voice string
	switch {
	case m.Recording:
		voice = lipgloss.NewStyle().Foreground(styles.CurrentTheme.Recording).Bold(true).Render("● REC")
	case m.Speaking:
		voice = lipgloss.NewStyle().Foreground(styles.CurrentTheme.Success).Render("♪ speaking")
	case m.SpeakReplies:
		voice = lipgloss.NewStyle().Foreground(styles.CurrentTheme.TextMuted).Render("♪ on")
	}

	storeText := "history off"
	if m.Store != nil {
		storeText = "history on"
	}
	store := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#666666")).
		Render(storeText)

	help := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#555555")).
		Render("Help: ^S")

	leftSide := lipgloss.JoinHorizontal(lipgloss.Center, mode, "  ", deployment)
	if voice != "" {
		leftSide = lipgloss.JoinHorizontal(lipgloss.Center, leftSide, "  ", voice)
	}
	rightSide := lipgloss.JoinHorizontal(lipgloss.Center, store, "  ", help)

	availableWidth := max(m.WindowWidth-lipgloss.Width(leftSide)-lipgloss.Width(rightSide)-2, 0)
	spacer := strings.Repeat(" ", availableWidth)

	bar := lipgloss.JoinHorizontal(lipgloss.Center, leftSide, spacer, rightSide)

	return lipgloss.NewStyle().
		Width(m.WindowWidth).
		BorderTop(true).
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("#333333")).
		Padding(0, 1).
		Render(bar)
}

func GetWelcomeScreen(width, height int) string {
	art := `
 ╭────────────────────────────────────────────────╮
 │                                                │
 │    ▄████▄   ██░ ██  ▒█████   ██▀███   █    ██   │
 │   ▒██▀ ▀█  ▓██░ ██▒▒██▒  ██▒▓██ ▒ ██▒ ██  ▓██▒  │
 │   ▒▓█    ▄ ▒██▀▀██░▒██░  ██▒▓██ ░▄█ ▒▓██  ▒██░  │
 │   ▒▓▓▄ ▄██▒░▓█ ░██ ▒██   ██░▒██▀▀█▄  ▓▓█  ░██░  │
 │   ▒ ▓███▀ ░░▓█▒░██▓░ ████▓▒░░██▓ ▒██▒▒▒█████▓   │
 │                                                │
 ╰────────────────────────────────────────────────╯
`
	subtitle := "Chat, search the web, or press Ctrl+R and just say it."

	styledArt := styles.WelcomeArtStyle.Render(art)
	styledSubtitle := styles.WelcomeSubtitleStyle.Render(subtitle)

	content := lipgloss.JoinVertical(lipgloss.Center, styledArt, "", styledSubtitle)

	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, content)
}

func (m *Model) UpdateViewport() {
	if len(m.Messages) == 0 && !m.Loading && !m.Recording {
		m.Viewport.SetContent(GetWelcomeScreen(m.Viewport.Width, m.Viewport.Height))
		return
	}

	parts := append([]string{}, m.Messages...)
	switch {
	case m.Recording:
		parts = append(parts, fmt.Sprintf("%s Listening...", m.Spinner.View()))
	case m.Loading && m.Partial != "":
		parts = append(parts, FormatAIMessage(m.Partial+" "+m.Spinner.View()))
	case m.Loading:
		status := " Generating..."
		if m.AppMode == models.ModeSearch {
			status = " Searching the web..."
		}
		parts = append(parts, styles.AiLabelStyle.Render("CHORUS")+"\n"+m.Spinner.View()+status)
	}

	m.Viewport.SetContent(strings.Join(parts, "\n\n"))
	m.Viewport.GotoBottom()
}

func (m *Model) View() string {
	inputWidth := m.WindowWidth - 4
	inputBox := styles.InputBoxStyle.Width(inputWidth).Render(m.TextInput.View())

	chatContent := lipgloss.JoinVertical(lipgloss.Center,
		styles.TitleStyle.Render("CHORUS"),
		"",
		m.Viewport.View(),
		"",
		inputBox,
	)
	chatArea := lipgloss.PlaceHorizontal(m.WindowWidth, lipgloss.Center, chatContent)
	content := lipgloss.JoinVertical(lipgloss.Left, chatArea, m.RenderBottomBar())

	var modal string
	switch {
	case m.HistoryOpen:
		modal = m.RenderHistorySelector()
	case m.ShortcutsOpen:
		modal = m.RenderShortcutsModal()
	default:
		return content
	}

	modal = styles.ModalStyle.Width(m.ModalWidth).Render(modal)
	return lipgloss.Place(
		m.WindowWidth,
		m.WindowHeight,
		lipgloss.Center,
		lipgloss.Center,
		modal,
	)
}
