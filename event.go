package bridge

import (
	"encoding/json"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/shopspring/decimal"

	"github.com/armatrix/mcp-bridge-go/conversation"
)

// EventType identifies the kind of event emitted during a session.
type EventType string

const (
	EventSystem     EventType = "system"
	EventStream     EventType = "stream"
	EventAssistant  EventType = "assistant"
	EventStep       EventType = "step"
	EventToolResult EventType = "tool_result"
	EventRetry      EventType = "retry"
	EventResult     EventType = "result"
)

// Event is the interface implemented by all events passed to an
// EventHandler or delivered through a Stream.
type Event interface {
	Type() EventType
}

// EventHandler receives events. It is called synchronously from the
// goroutine running the operation and must not block for long.
type EventHandler func(Event)

// SystemEvent is emitted once after Connect succeeds.
type SystemEvent struct {
	SessionID string
	Server    string
	Model     anthropic.Model
	Tools     []string
	Prompts   []string
}

func (e *SystemEvent) Type() EventType { return EventSystem }

// StreamEvent is emitted for streaming text deltas as they arrive.
type StreamEvent struct {
	Delta string
}

func (e *StreamEvent) Type() EventType { return EventStream }

// AssistantEvent is emitted when the model completes a response.
type AssistantEvent struct {
	Round   int
	Content []conversation.Block
}

func (e *AssistantEvent) Type() EventType { return EventAssistant }

// StepEvent is emitted before each tool call. Step counts tool calls within
// the query, starting at 1.
type StepEvent struct {
	Step      int
	ToolUseID string
	ToolName  string
	Input     json.RawMessage
}

func (e *StepEvent) Type() EventType { return EventStep }

// ToolResultEvent is emitted after each tool call. Failed is true when the
// call could not be completed; IsError is true for server-reported tool
// errors and for failures.
type ToolResultEvent struct {
	Step      int
	ToolUseID string
	ToolName  string
	Text      string
	IsError   bool
	Failed    bool
	Attempts  int
}

func (e *ToolResultEvent) Type() EventType { return EventToolResult }

// RetryEvent is emitted before a tool-server operation is retried. Op is
// "tools/list" or "tools/call"; Attempt is the attempt about to run.
type RetryEvent struct {
	Op       string
	ToolName string
	Attempt  int
	Err      error
}

func (e *RetryEvent) Type() EventType { return EventRetry }

// Usage tracks token consumption.
type Usage struct {
	InputTokens              int64
	OutputTokens             int64
	CacheReadInputTokens     int64
	CacheCreationInputTokens int64
}

// ModelUsage tracks per-model token breakdown.
type ModelUsage struct {
	InputTokens  int64
	OutputTokens int64
}

// ResultEvent is emitted once at the end of each query.
type ResultEvent struct {
	// Subtype indicates the outcome: "success", "error_tool_fetch",
	// "error_model_call", "error_max_rounds", "error_max_budget_usd", or
	// "error_during_execution".
	Subtype   string
	SessionID string
	Duration  time.Duration
	IsError   bool
	Steps     int
	Rounds    int
	Usage     Usage
	TotalCost decimal.Decimal
	Result    string
}

func (e *ResultEvent) Type() EventType { return EventResult }
