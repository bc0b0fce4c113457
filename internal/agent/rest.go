package agent

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// RESTClient talks to the Azure AI Agents REST surface of a project endpoint,
// reusing the openai-go transport for auth, JSON and error decoding.
type RESTClient struct {
	client openai.Client
}

var _ API = (*RESTClient)(nil)

func NewRESTClient(endpoint, key, apiVersion string, opts ...option.RequestOption) *RESTClient {
	all := []option.RequestOption{
		option.WithBaseURL(strings.TrimRight(endpoint, "/") + "/"),
		option.WithAPIKey(key),
		option.WithHeader("api-key", key),
		option.WithQuery("api-version", apiVersion),
		option.WithMaxRetries(0),
	}
	return &RESTClient{client: openai.NewClient(append(all, opts...)...)}
}

type deletion struct {
	ID      string `json:"id"`
	Deleted bool   `json:"deleted"`
}

type messageList struct {
	Data []Message `json:"data"`
}

func (c *RESTClient) CreateAgent(ctx context.Context, params AgentParams) (*Agent, error) {
	var a Agent
	if err := c.client.Post(ctx, "assistants", params, &a); err != nil {
		return nil, fmt.Errorf("creating agent: %w", err)
	}
	return &a, nil
}

func (c *RESTClient) DeleteAgent(ctx context.Context, agentID string) error {
	var d deletion
	if err := c.client.Delete(ctx, "assistants/"+url.PathEscape(agentID), nil, &d); err != nil {
		return fmt.Errorf("deleting agent %s: %w", agentID, err)
	}
	return nil
}

func (c *RESTClient) CreateThread(ctx context.Context) (*Thread, error) {
	var t Thread
	if err := c.client.Post(ctx, "threads", struct{}{}, &t); err != nil {
		return nil, fmt.Errorf("creating thread: %w", err)
	}
	return &t, nil
}

func (c *RESTClient) DeleteThread(ctx context.Context, threadID string) error {
	var d deletion
	if err := c.client.Delete(ctx, threadPath(threadID), nil, &d); err != nil {
		return fmt.Errorf("deleting thread %s: %w", threadID, err)
	}
	return nil
}

func (c *RESTClient) CreateMessage(ctx context.Context, threadID, role, content string) (*Message, error) {
	body := map[string]string{"role": role, "content": content}
	var m Message
	if err := c.client.Post(ctx, threadPath(threadID)+"/messages", body, &m); err != nil {
		return nil, fmt.Errorf("creating message: %w", err)
	}
	return &m, nil
}

func (c *RESTClient) CreateRun(ctx context.Context, threadID, agentID string) (*Run, error) {
	body := map[string]string{"assistant_id": agentID}
	var r Run
	if err := c.client.Post(ctx, threadPath(threadID)+"/runs", body, &r); err != nil {
		return nil, fmt.Errorf("creating run: %w", err)
	}
	return &r, nil
}

func (c *RESTClient) GetRun(ctx context.Context, threadID, runID string) (*Run, error) {
	var r Run
	if err := c.client.Get(ctx, runPath(threadID, runID), nil, &r); err != nil {
		return nil, fmt.Errorf("getting run %s: %w", runID, err)
	}
	return &r, nil
}

func (c *RESTClient) CancelRun(ctx context.Context, threadID, runID string) (*Run, error) {
	var r Run
	if err := c.client.Post(ctx, runPath(threadID, runID)+"/cancel", struct{}{}, &r); err != nil {
		return nil, fmt.Errorf("cancelling run %s: %w", runID, err)
	}
	return &r, nil
}

func (c *RESTClient) ListMessages(ctx context.Context, threadID string, opts ListMessagesOptions) ([]Message, error) {
	var reqOpts []option.RequestOption
	if opts.Order != "" {
		reqOpts = append(reqOpts, option.WithQuery("order", opts.Order))
	}
	if opts.Limit > 0 {
		reqOpts = append(reqOpts, option.WithQuery("limit", strconv.Itoa(opts.Limit)))
	}

	var page messageList
	if err := c.client.Get(ctx, threadPath(threadID)+"/messages", nil, &page, reqOpts...); err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	return page.Data, nil
}

func threadPath(threadID string) string {
	return "threads/" + url.PathEscape(threadID)
}

func runPath(threadID, runID string) string {
	return threadPath(threadID) + "/runs/" + url.PathEscape(runID)
}
