package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/shopspring/decimal"

	"github.com/armatrix/mcp-bridge-go/conversation"
	"github.com/armatrix/mcp-bridge-go/internal/budget"
	"github.com/armatrix/mcp-bridge-go/internal/config"
	"github.com/armatrix/mcp-bridge-go/internal/engine"
	"github.com/armatrix/mcp-bridge-go/internal/hookrunner"
	"github.com/armatrix/mcp-bridge-go/internal/retry"
	"github.com/armatrix/mcp-bridge-go/mcp"
	"github.com/armatrix/mcp-bridge-go/permission"
	"github.com/armatrix/mcp-bridge-go/session"
)

// Client is one session: a live tool-server connection, its conversation
// history, and the last-fetched tool and prompt lists. Operations on a
// Client are serialized; different Clients are independent.
type Client struct {
	id       string
	server   string
	opts     options
	logger   *slog.Logger
	system   string
	streamer MessageStreamer

	transport mcp.Transport
	registry  *registry
	invoker   guardedInvoker
	hooks     *hookrunner.Runner
	tracker   *budget.Tracker
	store     session.Store

	mu      sync.Mutex
	history conversation.History
	active  EventHandler // per-query handler, set while mu is held

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// Connect starts or reaches the tool server named by target and returns a
// ready session.
//
// A target ending in .py or .js is a server script run with python or node.
// A target ending in .json, .yaml or .yml is a config file listing servers
// under "mcpServers"; WithServerName selects one, otherwise the first entry
// is used.
func Connect(ctx context.Context, target string, opts ...Option) (*Client, error) {
	o, err := resolveOptions(opts)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	cfg, err := ResolveTarget(target, o.serverName)
	if err != nil {
		return nil, err
	}
	return connectConfig(ctx, cfg, o)
}

// ConnectServer connects to the server described by cfg.
func ConnectServer(ctx context.Context, cfg mcp.ServerConfig, opts ...Option) (*Client, error) {
	o, err := resolveOptions(opts)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	return connectConfig(ctx, cfg, o)
}

// ConnectTransport starts a session over an existing transport, such as
// the client side of an mcp.LocalServer. The transport is owned by the
// Client and closed by Close, including when ConnectTransport fails.
func ConnectTransport(ctx context.Context, name string, t mcp.Transport, opts ...Option) (*Client, error) {
	o, err := resolveOptions(opts)
	if err != nil {
		_ = t.Close()
		return nil, fmt.Errorf("load settings: %w", err)
	}
	return connect(ctx, name, t, o)
}

// ResolveTarget turns a Connect target into a server config.
func ResolveTarget(target, serverName string) (mcp.ServerConfig, error) {
	ext := strings.ToLower(filepath.Ext(target))
	switch {
	case ext == ".py" || ext == ".js":
		command := "python"
		if ext == ".js" {
			command = "node"
		}
		return mcp.ServerConfig{
			Name:    strings.TrimSuffix(filepath.Base(target), filepath.Ext(target)),
			Command: command,
			Args:    []string{target},
		}, nil
	case config.IsServerFile(target):
		set, err := config.LoadServers(target)
		if err != nil {
			return mcp.ServerConfig{}, fmt.Errorf("%w: %w", ErrInvalidTarget, err)
		}
		cfg, err := set.Select(serverName)
		if err != nil {
			return mcp.ServerConfig{}, fmt.Errorf("%w: %w", ErrInvalidTarget, err)
		}
		return cfg, nil
	default:
		return mcp.ServerConfig{}, fmt.Errorf("%w: %q: server script must be a .py or .js file, or a .json/.yaml config", ErrInvalidTarget, target)
	}
}

func connectConfig(ctx context.Context, cfg mcp.ServerConfig, o options) (*Client, error) {
	t, err := mcp.NewTransport(cfg, o.logger)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnection, err)
	}
	o.logger.Info("starting MCP server",
		"server", cfg.Name,
		"command", cfg.Command,
		"args", cfg.Args,
		"url", cfg.URL,
	)
	return connect(ctx, cfg.Name, t, o)
}

func connect(ctx context.Context, name string, t mcp.Transport, o options) (*Client, error) {
	if err := o.policy.Validate(); err != nil {
		_ = t.Close()
		return nil, err
	}
	hooks, err := hookrunner.New(o.hooks)
	if err != nil {
		_ = t.Close()
		return nil, fmt.Errorf("hooks: %w", err)
	}
	if err := t.Connect(ctx); err != nil {
		_ = t.Close()
		return nil, fmt.Errorf("%w: %w", ErrConnection, err)
	}

	id := NewID()
	logger := o.logger.With("session_id", id, "server", name)
	c := &Client{
		id:        id,
		server:    name,
		opts:      o,
		logger:    logger,
		transport: t,
		hooks:     hooks,
		tracker:   budget.NewTracker(o.maxBudget, nil),
		store:     o.store,
	}

	policy := retry.Default()
	if o.retryAttempts > 0 {
		policy = retry.Policy{Attempts: o.retryAttempts, Delay: o.retryDelay}
	}
	b := mcp.NewBridge(t,
		mcp.WithRetryPolicy(policy),
		mcp.WithBridgeLogger(logger),
		mcp.WithRetryFunc(c.onRetry),
	)
	checker := permission.NewChecker(o.policy, o.permissionFunc)
	c.registry = &registry{bridge: b, checker: checker, logger: logger}
	c.invoker = guardedInvoker{bridge: b, checker: checker, hooks: hooks, sessionID: id, logger: logger}

	c.streamer = o.streamer
	if c.streamer == nil {
		api := anthropic.NewClient(o.requestOptions...)
		c.streamer = engine.NewMessageStreamer(&api.Messages)
	}
	if c.store == nil {
		store, err := session.NewFileStore("")
		if err != nil {
			_ = t.Close()
			return nil, fmt.Errorf("session store: %w", err)
		}
		c.store = store
	}

	now := o.now()
	switch preset, ok := config.GetPreset(o.systemPrompt, now); {
	case ok:
		c.system = preset
	case o.systemPrompt != "":
		c.system = config.RenderPrompt(o.systemPrompt, now)
	default:
		c.system, _ = config.GetPreset(DefaultSystemPreset, now)
	}

	tools, err := c.registry.fetchTools(ctx)
	if err != nil {
		_ = t.Close()
		return nil, fmt.Errorf("%w: %w", ErrConnection, err)
	}
	prompts := c.registry.fetchPrompts(ctx)

	ev := &SystemEvent{SessionID: id, Server: name, Model: o.model}
	for _, tool := range tools {
		ev.Tools = append(ev.Tools, tool.Name)
	}
	for _, p := range prompts {
		ev.Prompts = append(ev.Prompts, p.Name)
	}
	logger.Info("connected to MCP server", "tools", ev.Tools, "prompts", ev.Prompts)
	c.emit(ev)
	return c, nil
}

// ID returns the session ID.
func (c *Client) ID() string { return c.id }

// ServerName returns the name of the connected server.
func (c *Client) ServerName() string { return c.server }

// Model returns the configured model.
func (c *Client) Model() anthropic.Model { return c.opts.model }

// SystemPrompt returns the rendered system prompt sent with every model call.
func (c *Client) SystemPrompt() string { return c.system }

// Query runs one user query to completion and returns its formatted
// transcript. Failures are reported in Result.Text and Result.Err; the
// session stays usable afterwards.
func (c *Client) Query(ctx context.Context, text string) Result {
	return c.query(ctx, text, nil)
}

func (c *Client) query(ctx context.Context, text string, extra EventHandler) Result {
	if c.closed.Load() {
		return Result{Text: "Error: " + ErrClosed.Error(), Err: ErrClosed}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.active = extra
	defer func() { c.active = nil }()

	ctx = WithContextSessionID(ctx, c.id)
	c.logger.Debug("processing query", "query", text)

	if blocked, ok := c.checkPrompt(ctx, text); !ok {
		return blocked
	}

	qb := &queryBudget{tracker: c.tracker}
	res := engine.RunQuery(ctx, engine.LoopConfig{
		Streamer:     c.streamer,
		Model:        c.opts.model,
		MaxTokens:    c.opts.maxTokens,
		SystemPrompt: c.system,
		Tools:        toolSource{r: c.registry},
		Invoker:      c.invoker,
		History:      &c.history,
		MaxRounds:    c.opts.maxRounds,
		Budget:       qb,
		Sink:         &eventSink{c: c, budget: qb},
	}, text)

	out := newResult(res, qb.cost)
	if err := c.hooks.Stop(ctx, c.id, res.Text, res.Err); err != nil {
		c.logger.Warn("stop hook failed", "error", err)
	}
	if res.Err != nil {
		c.logger.Warn("query failed",
			"subtype", res.Subtype(),
			"rounds", res.Rounds,
			"steps", res.Steps,
			"error", res.Err,
		)
	} else {
		c.logger.Info("query completed",
			"rounds", res.Rounds,
			"steps", res.Steps,
			"duration", res.Duration,
			"cost", out.Cost.StringFixed(6),
		)
	}
	return out
}

// checkPrompt runs the UserPromptSubmit hooks. A blocked query never reaches
// the history.
func (c *Client) checkPrompt(ctx context.Context, text string) (Result, bool) {
	res, err := c.hooks.UserPromptSubmit(ctx, c.id, text)
	var reason string
	switch {
	case err != nil:
		c.logger.Error("prompt hook failed", "error", err)
		reason = err.Error()
	case res != nil && res.Block:
		c.logger.Info("query blocked by hook", "reason", res.Reason)
		reason = res.Reason
	default:
		return Result{}, true
	}
	return Result{
		Text: "Error: query blocked: " + reason,
		Err:  fmt.Errorf("%w: %s", ErrHookBlocked, reason),
	}, false
}

// Tools returns the last-fetched tool list.
func (c *Client) Tools() []ToolDescriptor { return c.registry.snapshotTools() }

// Prompts returns the last-fetched prompt list.
func (c *Client) Prompts() []PromptDescriptor { return c.registry.snapshotPrompts() }

// FetchTools refreshes the tool list from the server.
func (c *Client) FetchTools(ctx context.Context) ([]ToolDescriptor, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.registry.fetchTools(ctx)
}

// FetchPrompts refreshes the prompt list from the server. Errors are logged
// and produce an empty list.
func (c *Client) FetchPrompts(ctx context.Context) []PromptDescriptor {
	if c.closed.Load() {
		return nil
	}
	return c.registry.fetchPrompts(ctx)
}

// PromptDetails resolves a prompt's parameters from the last-fetched list.
// It fails with ErrNotFound for an unknown name.
func (c *Client) PromptDetails(name string) (*PromptDetails, error) {
	return c.registry.promptDetails(name)
}

// History returns a copy of the conversation history.
func (c *Client) History() conversation.History {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.history.Clone()
}

// Clear resets the conversation history. Usage totals are kept.
func (c *Client) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = nil
	c.logger.Info("conversation history cleared")
}

// Save writes the history and the current time to the named document.
func (c *Client) Save(ctx context.Context, name string) error {
	c.mu.Lock()
	doc := session.NewDocumentAt(c.history, c.opts.now())
	c.mu.Unlock()

	if err := c.store.Save(ctx, name, doc); err != nil {
		return err
	}
	c.logger.Info("conversation saved", "name", name, "turns", len(doc.History))
	return nil
}

// Load replaces the history with the named document and returns the
// document's timestamp.
func (c *Client) Load(ctx context.Context, name string) (string, error) {
	doc, err := c.store.Load(ctx, name)
	if errors.Is(err, session.ErrMalformed) {
		return "", fmt.Errorf("%w: %w", ErrProtocolFormat, err)
	}
	if err != nil {
		return "", err
	}
	if err := doc.History.Validate(); err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrProtocolFormat, name, err)
	}

	c.mu.Lock()
	c.history = doc.History
	c.mu.Unlock()
	c.logger.Info("conversation loaded", "name", name, "turns", len(doc.History), "saved_at", doc.Timestamp)
	return doc.Timestamp, nil
}

// UsageSummary is a snapshot of token use and cost for the session.
type UsageSummary struct {
	Calls    int
	Usage    Usage
	Cost     decimal.Decimal
	Limit    decimal.Decimal // zero = unlimited
	PerModel map[anthropic.Model]ModelUsage
}

// Usage returns the session's token and cost totals.
func (c *Client) Usage() UsageSummary {
	t := c.tracker.Totals()
	s := UsageSummary{
		Calls:    t.Calls,
		Usage:    usageFrom(t.Usage),
		Cost:     t.Cost,
		Limit:    c.tracker.Limit(),
		PerModel: make(map[anthropic.Model]ModelUsage, len(t.PerModel)),
	}
	for m, u := range t.PerModel {
		s.PerModel[m] = ModelUsage{InputTokens: int64(u.TotalInput()), OutputTokens: int64(u.OutputTokens)}
	}
	return s
}

// Close shuts down the tool-server connection and any subprocess. It is
// safe to call more than once; later calls return the first result.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.closeErr = c.transport.Close()
		if c.closeErr != nil {
			c.logger.Error("error closing MCP session", "error", c.closeErr)
		} else {
			c.logger.Info("session closed")
		}
	})
	return c.closeErr
}

func (c *Client) emit(e Event) {
	if c.opts.handler != nil {
		c.opts.handler(e)
	}
	if c.active != nil {
		c.active(e)
	}
}

func (c *Client) onRetry(op, tool string, attempt int, err error) {
	c.emit(&RetryEvent{Op: op, ToolName: tool, Attempt: attempt, Err: err})
}

// Result is the outcome of one query. Text is always set: on failure it
// holds the message shown to the user.
type Result struct {
	Text     string
	Steps    int
	Rounds   int
	Usage    Usage
	Cost     decimal.Decimal
	Duration time.Duration
	Err      error
}

// Subtype classifies the outcome, as in ResultEvent.
func (r Result) Subtype() string {
	return engine.Result{Err: r.Err}.Subtype()
}

func newResult(r engine.Result, cost decimal.Decimal) Result {
	return Result{
		Text:     r.Text,
		Steps:    r.Steps,
		Rounds:   r.Rounds,
		Usage:    usageFrom(r.Usage),
		Cost:     cost,
		Duration: r.Duration,
		Err:      r.Err,
	}
}

func usageFrom(u budget.Usage) Usage {
	return Usage{
		InputTokens:              int64(u.InputTokens),
		OutputTokens:             int64(u.OutputTokens),
		CacheReadInputTokens:     int64(u.CacheReadInputTokens),
		CacheCreationInputTokens: int64(u.CacheCreationInputTokens),
	}
}

// queryBudget records usage on the session tracker and keeps the cost of
// the current query.
type queryBudget struct {
	tracker *budget.Tracker
	cost    decimal.Decimal
}

func (q *queryBudget) Record(model anthropic.Model, u budget.Usage) decimal.Decimal {
	c := q.tracker.Record(model, u)
	q.cost = q.cost.Add(c)
	return c
}

func (q *queryBudget) Exhausted() bool { return q.tracker.Exhausted() }

// eventSink turns loop callbacks into events.
type eventSink struct {
	c      *Client
	budget *queryBudget
}

func (s *eventSink) OnStream(delta string) {
	s.c.emit(&StreamEvent{Delta: delta})
}

func (s *eventSink) OnAssistant(round int, content []conversation.Block) {
	s.c.emit(&AssistantEvent{Round: round, Content: content})
}

func (s *eventSink) OnStep(step int, call engine.ToolCall) {
	s.c.logger.Info("calling tool", "step", step, "tool", call.Name)
	s.c.logger.Log(context.Background(), config.LevelTrace, "tool input", "tool", call.Name, "input", string(call.Input))
	s.c.emit(&StepEvent{Step: step, ToolUseID: call.ID, ToolName: call.Name, Input: call.Input})
}

func (s *eventSink) OnToolResult(step int, call engine.ToolCall, outcome mcp.Outcome) {
	ev := &ToolResultEvent{Step: step, ToolUseID: call.ID, ToolName: call.Name, Text: outcome.ResultText()}
	switch o := outcome.(type) {
	case mcp.Success:
		ev.IsError = o.IsError
		ev.Attempts = o.Attempts
	case mcp.Failure:
		ev.IsError = true
		ev.Failed = true
		ev.Attempts = o.Attempts
	}
	s.c.emit(ev)
}

func (s *eventSink) OnResult(r engine.Result) {
	s.c.emit(&ResultEvent{
		Subtype:   r.Subtype(),
		SessionID: s.c.id,
		Duration:  r.Duration,
		IsError:   r.Err != nil,
		Steps:     r.Steps,
		Rounds:    r.Rounds,
		Usage:     usageFrom(r.Usage),
		TotalCost: s.budget.cost,
		Result:    r.Text,
	})
}
