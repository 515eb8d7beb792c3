package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/shopspring/decimal"

	"github.com/armatrix/mcp-bridge-go/conversation"
	"github.com/armatrix/mcp-bridge-go/internal/budget"
	"github.com/armatrix/mcp-bridge-go/mcp"
)

// ToolSource supplies the tool list for a query, already in API shape.
type ToolSource interface {
	FetchTools(ctx context.Context) ([]anthropic.ToolUnionParam, error)
}

// ToolInvoker runs one tool call. It never fails; exhausted retries are
// reported as an mcp.Failure.
type ToolInvoker interface {
	Invoke(ctx context.Context, name string, input json.RawMessage) mcp.Outcome
}

// BudgetRecorder tracks and enforces spending. Nil means no accounting.
type BudgetRecorder interface {
	Record(model anthropic.Model, usage budget.Usage) decimal.Decimal
	Exhausted() bool
}

// EventSink receives progress from RunQuery. The loop calls these methods
// instead of importing root package event types, breaking the import cycle.
type EventSink interface {
	OnStream(delta string)
	OnAssistant(round int, content []conversation.Block)
	OnStep(step int, call ToolCall)
	OnToolResult(step int, call ToolCall, outcome mcp.Outcome)
	OnResult(res Result)
}

// LoopConfig holds everything a query needs to execute.
type LoopConfig struct {
	Streamer     MessageStreamer
	Model        anthropic.Model
	MaxTokens    int
	SystemPrompt string

	Tools   ToolSource
	Invoker ToolInvoker

	// History is the session's conversation. The loop appends to it.
	History *conversation.History

	// MaxRounds caps model calls per query. 0 = unbounded.
	MaxRounds int

	// Budget records usage after each model call. Nil = no limit.
	Budget BudgetRecorder

	// Sink receives events. Nil = no events.
	Sink EventSink
}

// Result is the outcome of one query. Text is always set: on failure it is
// the error text shown to the user.
type Result struct {
	Text     string
	Steps    int
	Rounds   int
	Usage    budget.Usage
	Duration time.Duration
	Err      error
}

// Subtype classifies the result for logs and events.
func (r Result) Subtype() string {
	switch {
	case r.Err == nil:
		return "success"
	case errors.Is(r.Err, mcp.ErrToolFetch):
		return "error_tool_fetch"
	case errors.Is(r.Err, ErrModelCall):
		return "error_model_call"
	case errors.Is(r.Err, ErrMaxRounds):
		return "error_max_rounds"
	case errors.Is(r.Err, ErrBudgetExhausted):
		return "error_max_budget_usd"
	default:
		return "error_during_execution"
	}
}

// StepMarker is the transcript line announcing the n-th tool call of a query.
func StepMarker(n int, tool string) string {
	return fmt.Sprintf("\nStep %d: Using %s", n, tool)
}

// FormatTranscript joins transcript lines into the final response. Lines
// after a step marker are indented under it.
func FormatTranscript(lines []string) string {
	out := make([]string, 0, len(lines))
	current := ""
	for _, line := range lines {
		switch {
		case strings.HasPrefix(line, "\nStep "):
			current = strings.TrimSpace(line)
			out = append(out, "\n"+current)
		case current != "":
			out = append(out, "  "+line)
		default:
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

type query struct {
	cfg     LoopConfig
	sink    EventSink
	start   time.Time
	lines   []string
	steps   int
	rounds  int
	usage   budget.Usage
	history *conversation.History
}

// RunQuery runs one user query to completion: it appends the query to the
// history, then alternates model calls and tool calls until the model stops
// asking for tools. It runs in the calling goroutine.
func RunQuery(ctx context.Context, cfg LoopConfig, text string) Result {
	q := &query{cfg: cfg, sink: cfg.Sink, start: time.Now(), history: cfg.History}
	if q.sink == nil {
		q.sink = nopSink{}
	}
	q.append(conversation.UserText(text))

	tools, err := cfg.Tools.FetchTools(ctx)
	if err != nil {
		return q.finish(err.Error(), err)
	}

	for {
		if err := ctx.Err(); err != nil {
			return q.finish(err.Error(), err)
		}
		if cfg.MaxRounds > 0 && q.rounds >= cfg.MaxRounds {
			return q.stop(fmt.Errorf("%w (%d)", ErrMaxRounds, cfg.MaxRounds))
		}
		if cfg.Budget != nil && cfg.Budget.Exhausted() {
			return q.stop(ErrBudgetExhausted)
		}

		turn, err := NextTurn(ctx, TurnRequest{
			Streamer:     cfg.Streamer,
			Model:        cfg.Model,
			MaxTokens:    cfg.MaxTokens,
			SystemPrompt: cfg.SystemPrompt,
			History:      *q.history,
			Tools:        tools,
			OnDelta:      q.sink.OnStream,
		})
		if err != nil {
			q.append(conversation.AssistantText(err.Error()))
			return q.finish(err.Error(), err)
		}

		q.rounds++
		q.usage = q.usage.Add(turn.Usage)
		if cfg.Budget != nil {
			cfg.Budget.Record(cfg.Model, turn.Usage)
		}
		q.sink.OnAssistant(q.rounds, turn.Content)

		if !turn.HasToolCalls() {
			for _, seg := range turn.TextSegments {
				q.addText(seg)
			}
			q.append(conversation.NewTurn(conversation.RoleAssistant, turn.Content...))
			return q.finish(FormatTranscript(q.lines), nil)
		}

		for _, g := range groupByToolCall(turn.Content) {
			q.runGroup(ctx, g)
		}
	}
}

// toolGroup is one tool call together with the text emitted around it.
type toolGroup struct {
	blocks []conversation.Block
	call   conversation.ToolUseBlock
}

// groupByToolCall splits assistant content so that each tool call carries
// the text blocks emitted before it. Text after the last call joins the last
// group.
func groupByToolCall(content []conversation.Block) []toolGroup {
	var groups []toolGroup
	var pending []conversation.Block
	for _, b := range content {
		tu, ok := b.(conversation.ToolUseBlock)
		if !ok {
			pending = append(pending, b)
			continue
		}
		groups = append(groups, toolGroup{blocks: append(pending, tu), call: tu})
		pending = nil
	}
	if len(pending) > 0 && len(groups) > 0 {
		last := &groups[len(groups)-1]
		last.blocks = append(last.blocks, pending...)
	}
	return groups
}

// runGroup records the assistant turn for g, invokes its tool and records the
// result. Once ctx is done the tool is not called, but the result turn is
// still written so every tool_use stays paired.
func (q *query) runGroup(ctx context.Context, g toolGroup) {
	q.append(conversation.NewTurn(conversation.RoleAssistant, g.blocks...))

	call := ToolCall{ID: g.call.ID, Name: g.call.Name, Input: g.call.Input}
	var outcome mcp.Outcome
	for _, b := range g.blocks {
		switch b := b.(type) {
		case conversation.TextBlock:
			q.addText(b.Text)
		case conversation.ToolUseBlock:
			q.steps++
			q.lines = append(q.lines, StepMarker(q.steps, call.Name))
			q.sink.OnStep(q.steps, call)

			if err := ctx.Err(); err != nil {
				outcome = mcp.Failure{Reason: "Tool call cancelled: " + err.Error(), Err: err}
			} else {
				outcome = q.cfg.Invoker.Invoke(ctx, call.Name, call.Input)
			}
			if f, ok := outcome.(mcp.Failure); ok {
				q.lines = append(q.lines, "  Error: "+f.Reason)
			}
			q.sink.OnToolResult(q.steps, call, outcome)
		}
	}

	isError := true
	if s, ok := outcome.(mcp.Success); ok {
		isError = s.IsError
	}
	q.append(conversation.NewTurn(conversation.RoleUser, conversation.ToolResultBlock{
		ToolUseID: call.ID,
		Content:   outcome.ResultText(),
		IsError:   isError,
	}))
}

func (q *query) addText(text string) {
	if !IsTransitional(text) {
		q.lines = append(q.lines, text)
	}
}

func (q *query) append(t conversation.Turn) {
	*q.history = append(*q.history, t)
}

// stop ends the query on a guard. The transcript so far is kept and the
// reason is recorded as the final assistant turn.
func (q *query) stop(err error) Result {
	msg := "Error: " + err.Error()
	q.append(conversation.AssistantText(msg))
	text := msg
	if len(q.lines) > 0 {
		text = FormatTranscript(q.lines) + "\n\n" + msg
	}
	return q.finish(text, err)
}

func (q *query) finish(text string, err error) Result {
	res := Result{
		Text:     text,
		Steps:    q.steps,
		Rounds:   q.rounds,
		Usage:    q.usage,
		Duration: time.Since(q.start),
		Err:      err,
	}
	q.sink.OnResult(res)
	return res
}

type nopSink struct{}

func (nopSink) OnStream(string)                         {}
func (nopSink) OnAssistant(int, []conversation.Block)   {}
func (nopSink) OnStep(int, ToolCall)                    {}
func (nopSink) OnToolResult(int, ToolCall, mcp.Outcome) {}
func (nopSink) OnResult(Result)                         {}
