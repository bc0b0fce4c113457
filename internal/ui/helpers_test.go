package ui

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSplitCitations(t *testing.T) {
	body, sources := SplitCitations("Go 1.25 shipped. [Source: Go Blog (https://go.dev/blog)] It is fast. [Source: https://go.dev] [Source: Go Blog (https://go.dev/blog)]")
	assert.Equal(t, "Go 1.25 shipped. It is fast.", body)
	assert.Equal(t, []string{"Go Blog (https://go.dev/blog)", "https://go.dev"}, sources)

	body, sources = SplitCitations("plain answer")
	assert.Equal(t, "plain answer", body)
	assert.Empty(t, sources)
}

func TestWrappedLineCount(t *testing.T) {
	assert.Equal(t, 1, WrappedLineCount("", 10))
	assert.Equal(t, 2, WrappedLineCount("a\nb", 10))
	assert.Equal(t, 2, WrappedLineCount("abcdefghijk", 10))
	assert.Equal(t, 2, WrappedLineCount("你好你好你好", 10))
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "hello", TruncateRunes("hello", 5))
	assert.Equal(t, "hel…", TruncateRunes("hello", 4))
	assert.Equal(t, "你…", TruncateRunes("你好世界", 2))
	assert.Equal(t, "", TruncateRunes("x", 0))
}

func TestRelativeTime(t *testing.T) {
	now := time.Now()
	assert.Equal(t, "just now", RelativeTime(now))
	assert.Equal(t, "5 mins ago", RelativeTime(now.Add(-5*time.Minute-time.Second)))
	assert.Equal(t, "1 day ago", RelativeTime(now.Add(-25*time.Hour)))
	assert.Equal(t, "3 weeks ago", RelativeTime(now.Add(-22*24*time.Hour)))
}
