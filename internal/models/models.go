package models

// AppMode represents the current operating mode of the application
type AppMode int

const (
	ModeChat   AppMode = iota // Plain conversation against the chat deployment
	ModeSearch                // Search-grounded agent with citations
)

func (m AppMode) String() string {
	if m == ModeSearch {
		return "search"
	}
	return "chat"
}

// ParseAppMode maps a stored mode name back to an AppMode, defaulting to chat.
func ParseAppMode(s string) AppMode {
	if s == "search" {
		return ModeSearch
	}
	return ModeChat
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one role-tagged transcript entry.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatListItem struct {
	ID             string
	Mode           AppMode
	UpdatedAtUnix  int64
	LastUserPrompt string
}
