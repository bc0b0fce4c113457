package chat

import (
	"sync"

	"chorus/internal/models"
)

// Session is one caller-owned conversation transcript. It always starts with
// the system message and only grows, except through ClearHistory.
type Session struct {
	mu           sync.Mutex
	systemPrompt string
	messages     []models.Message
}

func newSession(systemPrompt string) *Session {
	s := &Session{systemPrompt: systemPrompt}
	s.messages = []models.Message{{Role: models.RoleSystem, Content: systemPrompt}}
	return s
}

// Messages returns a copy of the transcript.
func (s *Session) Messages() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Len returns the number of transcript entries, system message included.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

// ClearHistory resets the transcript to the single system message.
func (s *Session) ClearHistory() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = []models.Message{{Role: models.RoleSystem, Content: s.systemPrompt}}
}

// append adds a message and returns a snapshot of the transcript after it.
func (s *Session) append(role, content string) []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, models.Message{Role: role, Content: content})
	out := make([]models.Message, len(s.messages))
	copy(out, s.messages)
	return out
}
