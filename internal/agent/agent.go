// Package agent drives a remote search-grounded agent: it owns the agent
// resource, opens threads on it and turns each user message into a run that
// is polled until it settles.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"chorus/internal/models"
)

const (
	SearchFailedReply = "Sorry, the search ran into a problem."
	NoReplyText       = "No reply was received."
	FallbackReply     = "Sorry, something went wrong while handling your request."
)

var (
	ErrInitialization = errors.New("agent: initialization failed")
	ErrEmptyMessage   = errors.New("agent: empty user message")
	ErrSessionClosed  = errors.New("agent: session is closed")
	ErrRunTimeout     = errors.New("agent: run did not settle before the attempt limit")
	ErrRequiresAction = errors.New("agent: run requires a tool action, which is not supported")
	ErrNoReply        = errors.New("agent: run completed without a reply message")
)

// RunError reports a run that settled in a status other than completed.
type RunError struct {
	RunID   string
	Status  RunStatus
	Code    string
	Message string
}

func (e *RunError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("agent: run %s %s: %s: %s", e.RunID, e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("agent: run %s %s", e.RunID, e.Status)
}

type Config struct {
	Model           string
	Name            string
	Instructions    string
	Connection      string
	PollInterval    time.Duration
	MaxPollAttempts int
}

// Reply is the rendered latest message of a completed run.
type Reply struct {
	Text      string
	Citations []Citation
	RunID     string
	MessageID string
}

// cancelTimeout bounds the best-effort cancel issued after an abandoned run.
const cancelTimeout = 10 * time.Second

type Service struct {
	api     API
	cfg     Config
	logger  *slog.Logger
	agentID string

	mu       sync.Mutex
	sessions map[*Session]struct{}
	def      *Session
}

// New creates the remote agent and a default thread. Any failure is returned
// wrapped in ErrInitialization and leaves nothing behind remotely.
func New(ctx context.Context, api API, cfg Config, logger *slog.Logger) (*Service, error) {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.MaxPollAttempts <= 0 {
		cfg.MaxPollAttempts = 60
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "agent")

	params := AgentParams{
		Model:        cfg.Model,
		Name:         cfg.Name,
		Instructions: cfg.Instructions,
	}
	if cfg.Connection != "" {
		params.Tools = []ToolDefinition{BingGrounding(cfg.Connection)}
	} else {
		logger.Warn("no search connection configured; agent will answer without grounding")
	}

	a, err := api.CreateAgent(ctx, params)
	if err != nil {
		logger.Error("creating agent failed", "error", err)
		return nil, fmt.Errorf("%w: %w", ErrInitialization, err)
	}
	logger.Info("agent created", "agent_id", a.ID)

	svc := &Service{
		api:      api,
		cfg:      cfg,
		logger:   logger,
		agentID:  a.ID,
		sessions: make(map[*Session]struct{}),
	}

	sess, err := svc.NewSession(ctx)
	if err != nil {
		logger.Error("creating thread failed", "error", err)
		if derr := api.DeleteAgent(context.WithoutCancel(ctx), a.ID); derr != nil {
			logger.Warn("deleting half-initialized agent", "agent_id", a.ID, "error", derr)
		}
		return nil, fmt.Errorf("%w: %w", ErrInitialization, err)
	}
	svc.def = sess
	return svc, nil
}

func (s *Service) AgentID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.agentID
}

// Session returns the thread created during New.
func (s *Service) Session() *Session {
	return s.def
}

// NewSession opens an independent thread on the agent. Sessions can be used
// concurrently with each other; turns within one session are serialized.
func (s *Service) NewSession(ctx context.Context) (*Session, error) {
	t, err := s.api.CreateThread(ctx)
	if err != nil {
		return nil, err
	}
	s.logger.Info("thread created", "thread_id", t.ID)

	sess := &Session{svc: s, threadID: t.ID}
	s.mu.Lock()
	s.sessions[sess] = struct{}{}
	s.mu.Unlock()
	return sess, nil
}

func (s *Service) Ask(ctx context.Context, userMessage string) (*Reply, error) {
	return s.def.Ask(ctx, userMessage)
}

func (s *Service) ChatWithSearch(ctx context.Context, userMessage string) string {
	return s.def.ChatWithSearch(ctx, userMessage)
}

func (s *Service) ResetThread(ctx context.Context) error {
	return s.def.Reset(ctx)
}

// Cleanup deletes every thread this service opened and then the agent.
// Errors are logged and swallowed.
func (s *Service) Cleanup(ctx context.Context) {
	s.mu.Lock()
	sessions := make([]*Session, 0, len(s.sessions))
	for sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	agentID := s.agentID
	s.agentID = ""
	s.mu.Unlock()

	for _, sess := range sessions {
		sess.Close(ctx)
	}
	if agentID != "" {
		if err := s.api.DeleteAgent(ctx, agentID); err != nil {
			s.logger.Error("deleting agent failed", "agent_id", agentID, "error", err)
			return
		}
	}
	s.logger.Info("agent resources cleaned up")
}

func (s *Service) forget(sess *Session) {
	s.mu.Lock()
	delete(s.sessions, sess)
	s.mu.Unlock()
}

// waitForRun waits one interval before every fetch and gives up after
// MaxPollAttempts fetches. It returns the last observed run with any error.
func (s *Service) waitForRun(ctx context.Context, threadID, runID string) (*Run, error) {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	var run *Run
	for attempt := 1; attempt <= s.cfg.MaxPollAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return run, ctx.Err()
		case <-ticker.C:
		}

		r, err := s.api.GetRun(ctx, threadID, runID)
		if err != nil {
			return run, err
		}
		run = r
		s.logger.Debug("run status", "run_id", runID, "status", run.Status, "attempt", attempt)

		if run.Status == RunRequiresAction {
			return run, ErrRequiresAction
		}
		if !run.Status.Pending() {
			return run, nil
		}
	}

	s.logger.Warn("timed out waiting for run", "run_id", runID, "attempts", s.cfg.MaxPollAttempts)
	return run, fmt.Errorf("%w: last status %s", ErrRunTimeout, run.Status)
}

func (s *Service) cancelRun(ctx context.Context, threadID, runID string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cancelTimeout)
	defer cancel()
	if _, err := s.api.CancelRun(ctx, threadID, runID); err != nil {
		s.logger.Warn("cancelling abandoned run", "run_id", runID, "error", err)
	}
}

// Session is one remote thread on the agent.
type Session struct {
	svc  *Service
	turn sync.Mutex

	mu       sync.Mutex
	threadID string
}

func (s *Session) ThreadID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.threadID
}

// Ask posts userMessage, runs the agent on the thread and returns the rendered
// latest message once the run completes.
func (s *Session) Ask(ctx context.Context, userMessage string) (*Reply, error) {
	if strings.TrimSpace(userMessage) == "" {
		return nil, ErrEmptyMessage
	}
	s.turn.Lock()
	defer s.turn.Unlock()

	threadID := s.ThreadID()
	if threadID == "" {
		return nil, ErrSessionClosed
	}
	api := s.svc.api

	if _, err := api.CreateMessage(ctx, threadID, models.RoleUser, userMessage); err != nil {
		return nil, err
	}
	run, err := api.CreateRun(ctx, threadID, s.svc.AgentID())
	if err != nil {
		return nil, err
	}

	runID := run.ID
	run, err = s.svc.waitForRun(ctx, threadID, runID)
	if err != nil {
		if run == nil || run.Status.Pending() || run.Status == RunRequiresAction {
			s.svc.cancelRun(ctx, threadID, runID)
		}
		return nil, err
	}

	if run.Status != RunCompleted {
		runErr := &RunError{RunID: runID, Status: run.Status}
		if run.LastError != nil {
			runErr.Code = run.LastError.Code
			runErr.Message = run.LastError.Message
		}
		return nil, runErr
	}

	msgs, err := api.ListMessages(ctx, threadID, ListMessagesOptions{Order: "desc", Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, ErrNoReply
	}

	text, citations := RenderMessage(msgs[0])
	return &Reply{Text: text, Citations: citations, RunID: runID, MessageID: msgs[0].ID}, nil
}

// ChatWithSearch is Ask degraded to plain text: failures become one of the
// fixed replies and are only logged.
func (s *Session) ChatWithSearch(ctx context.Context, userMessage string) string {
	logger := s.svc.logger.With("thread_id", s.ThreadID())
	logger.Info("user message", "content", userMessage)

	reply, err := s.Ask(ctx, userMessage)
	if err == nil {
		logger.Info("agent replied", "run_id", reply.RunID, "citations", len(reply.Citations))
		return reply.Text
	}

	var runErr *RunError
	switch {
	case errors.Is(err, ErrRequiresAction):
		logger.Error("agent run needs an unsupported action", "error", err)
		return SearchFailedReply
	case errors.As(err, &runErr) && runErr.Status == RunFailed:
		logger.Error("agent run failed", "error", err)
		return SearchFailedReply
	case errors.As(err, &runErr), errors.Is(err, ErrRunTimeout), errors.Is(err, ErrNoReply):
		logger.Warn("agent run produced no reply", "error", err)
		return NoReplyText
	default:
		logger.Error("agent chat failed", "error", err)
		return FallbackReply
	}
}

// Reset swaps in a fresh thread and deletes the old one. If the new thread
// cannot be created the session keeps its current thread. A closed session
// returns ErrSessionClosed.
func (s *Session) Reset(ctx context.Context) error {
	s.turn.Lock()
	defer s.turn.Unlock()

	if s.ThreadID() == "" {
		return ErrSessionClosed
	}

	t, err := s.svc.api.CreateThread(ctx)
	if err != nil {
		s.svc.logger.Error("resetting thread failed", "error", err)
		return fmt.Errorf("resetting thread: %w", err)
	}

	s.mu.Lock()
	old := s.threadID
	if old == "" {
		// Closed while the thread was being created.
		s.mu.Unlock()
		if err := s.svc.api.DeleteThread(ctx, t.ID); err != nil {
			s.svc.logger.Warn("deleting orphaned thread", "thread_id", t.ID, "error", err)
		}
		return ErrSessionClosed
	}
	s.threadID = t.ID
	s.mu.Unlock()

	if err := s.svc.api.DeleteThread(ctx, old); err != nil {
		s.svc.logger.Warn("deleting previous thread", "thread_id", old, "error", err)
	}
	s.svc.logger.Info("thread reset", "thread_id", t.ID)
	return nil
}

// Close deletes the thread. Errors are logged and swallowed.
func (s *Session) Close(ctx context.Context) {
	s.mu.Lock()
	threadID := s.threadID
	s.threadID = ""
	s.mu.Unlock()

	s.svc.forget(s)
	if threadID == "" {
		return
	}
	if err := s.svc.api.DeleteThread(ctx, threadID); err != nil {
		s.svc.logger.Error("deleting thread failed", "thread_id", threadID, "error", err)
	}
}
