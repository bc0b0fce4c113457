package agent

import "context"

// API is the remote agents surface the facade drives. RESTClient is the
// production implementation.
type API interface {
	CreateAgent(ctx context.Context, params AgentParams) (*Agent, error)
	DeleteAgent(ctx context.Context, agentID string) error
	CreateThread(ctx context.Context) (*Thread, error)
	DeleteThread(ctx context.Context, threadID string) error
	CreateMessage(ctx context.Context, threadID, role, content string) (*Message, error)
	CreateRun(ctx context.Context, threadID, agentID string) (*Run, error)
	GetRun(ctx context.Context, threadID, runID string) (*Run, error)
	CancelRun(ctx context.Context, threadID, runID string) (*Run, error)
	ListMessages(ctx context.Context, threadID string, opts ListMessagesOptions) ([]Message, error)
}

type RunStatus string

const (
	RunQueued         RunStatus = "queued"
	RunInProgress     RunStatus = "in_progress"
	RunRequiresAction RunStatus = "requires_action"
	RunCancelling     RunStatus = "cancelling"
	RunCancelled      RunStatus = "cancelled"
	RunFailed         RunStatus = "failed"
	RunCompleted      RunStatus = "completed"
	RunIncomplete     RunStatus = "incomplete"
	RunExpired        RunStatus = "expired"
)

// Pending reports whether the run is still being worked on remotely.
func (s RunStatus) Pending() bool {
	switch s {
	case RunQueued, RunInProgress, RunCancelling:
		return true
	}
	return false
}

type Agent struct {
	ID           string           `json:"id"`
	Name         string           `json:"name"`
	Model        string           `json:"model"`
	Instructions string           `json:"instructions"`
	Tools        []ToolDefinition `json:"tools,omitempty"`
}

type AgentParams struct {
	Model        string           `json:"model"`
	Name         string           `json:"name,omitempty"`
	Instructions string           `json:"instructions,omitempty"`
	Tools        []ToolDefinition `json:"tools,omitempty"`
}

type ToolDefinition struct {
	Type          string             `json:"type"`
	BingGrounding *BingGroundingTool `json:"bing_grounding,omitempty"`
}

type BingGroundingTool struct {
	SearchConfigurations []SearchConfiguration `json:"search_configurations"`
}

type SearchConfiguration struct {
	ConnectionID string `json:"connection_id"`
}

// BingGrounding returns the tool definition that attaches the search
// connection to an agent.
func BingGrounding(connectionID string) ToolDefinition {
	return ToolDefinition{
		Type: "bing_grounding",
		BingGrounding: &BingGroundingTool{
			SearchConfigurations: []SearchConfiguration{{ConnectionID: connectionID}},
		},
	}
}

type Thread struct {
	ID string `json:"id"`
}

type Run struct {
	ID        string        `json:"id"`
	ThreadID  string        `json:"thread_id"`
	AgentID   string        `json:"assistant_id"`
	Status    RunStatus     `json:"status"`
	LastError *RunLastError `json:"last_error,omitempty"`
}

type RunLastError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type Message struct {
	ID       string           `json:"id"`
	ThreadID string           `json:"thread_id"`
	Role     string           `json:"role"`
	Content  []MessageContent `json:"content"`
}

type MessageContent struct {
	Type string       `json:"type"`
	Text *MessageText `json:"text,omitempty"`
}

type MessageText struct {
	Value       string       `json:"value"`
	Annotations []Annotation `json:"annotations,omitempty"`
}

type Annotation struct {
	Type         string        `json:"type"`
	Text         string        `json:"text,omitempty"`
	URLCitation  *URLCitation  `json:"url_citation,omitempty"`
	FileCitation *FileCitation `json:"file_citation,omitempty"`
	StartIndex   int           `json:"start_index,omitempty"`
	EndIndex     int           `json:"end_index,omitempty"`
}

type URLCitation struct {
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
}

type FileCitation struct {
	FileID string `json:"file_id"`
	Quote  string `json:"quote,omitempty"`
}

type ListMessagesOptions struct {
	Order string // "asc" or "desc"
	Limit int
}
