package ui

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"chorus/internal/styles"

	"github.com/mattn/go-runewidth"
)

var citationRE = regexp.MustCompile(` ?\[Source: ([^\]]+)\]`)

// SplitCitations removes the inline source markers of a search reply and
// returns them separately, de-duplicated in order of first appearance.
func SplitCitations(content string) (string, []string) {
	var sources []string
	seen := make(map[string]bool)
	for _, match := range citationRE.FindAllStringSubmatch(content, -1) {
		src := strings.TrimSpace(match[1])
		if src == "" || seen[src] {
			continue
		}
		seen[src] = true
		sources = append(sources, src)
	}
	return citationRE.ReplaceAllString(content, ""), sources
}

func WrappedLineCount(value string, width int) int {
	if width <= 0 {
		return 1
	}
	lines := strings.Split(value, "\n")
	if len(lines) == 0 {
		return 1
	}
	count := 0
	for _, line := range lines {
		w := runewidth.StringWidth(line)
		if w == 0 {
			count++
			continue
		}
		count += (w-1)/width + 1
	}
	return count
}

func PromptPreview(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	const maxRunes = 500
	r := []rune(s)
	if len(r) > maxRunes {
		return string(r[:maxRunes])
	}
	return s
}

func TruncateRunes(s string, max int) string {
	if max <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	if max <= 1 {
		return "…"
	}
	return string(r[:max-1]) + "…"
}

func RelativeTime(t time.Time) string {
	d := time.Since(t)
	if d < 0 {
		d = -d
	}
	if d < time.Minute {
		return "just now"
	}
	if d < time.Hour {
		mins := int(d.Minutes())
		if mins == 1 {
			return "1 min ago"
		}
		return fmt.Sprintf("%d mins ago", mins)
	}
	if d < 24*time.Hour {
		hrs := int(d.Hours())
		if hrs == 1 {
			return "1 hr ago"
		}
		return fmt.Sprintf("%d hrs ago", hrs)
	}
	days := int(d.Hours() / 24)
	if days < 14 {
		if days == 1 {
			return "1 day ago"
		}
		return fmt.Sprintf("%d days ago", days)
	}
	weeks := days / 7
	if weeks == 1 {
		return "1 week ago"
	}
	return fmt.Sprintf("%d weeks ago", weeks)
}

func FormatUserMessage(content string, width int, isFirst bool) string {
	label := styles.UserLabelStyle.Render("YOU")
	msg := styles.UserMsgStyle.Width(max(width-4, 1)).Render(content)
	if isFirst {
		return fmt.Sprintf("\n%s\n%s", label, msg)
	}
	return fmt.Sprintf("%s\n%s", label, msg)
}

func FormatAIMessage(content string) string {
	label := styles.AiLabelStyle.Render("CHORUS")
	msg := styles.AiMsgStyle.Render(content)
	return fmt.Sprintf("%s\n%s", label, msg)
}

// FormatSearchMessage renders an agent reply followed by a numbered source list.
func FormatSearchMessage(content string, sources []string) string {
	if len(sources) == 0 {
		return FormatAIMessage(content)
	}
	lines := []string{styles.SourcesHeaderStyle.Render("Sources")}
	for i, src := range sources {
		line := styles.SourceStyle.Foreground(styles.CurrentTheme.Citation).Render(fmt.Sprintf("[%d] %s", i+1, src))
		lines = append(lines, line)
	}
	return FormatAIMessage(content) + "\n" + strings.Join(lines, "\n")
}
