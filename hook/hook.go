// Package hook defines callbacks that run around tool-server calls and at
// query boundaries.
//
// A [Matcher] binds [Func] callbacks to an [Event] and an optional regex
// over tool names. PreToolUse hooks may block a call or rewrite its input;
// UserPromptSubmit hooks may block a query. The other events are
// notifications.
package hook

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// Event identifies when a hook fires.
type Event string

const (
	// PreToolUse fires after the permission check and before the call is
	// sent to the tool server.
	PreToolUse Event = "PreToolUse"
	// PostToolUse fires when the server answered, including results the
	// server flagged as errors.
	PostToolUse Event = "PostToolUse"
	// PostToolUseFailure fires when a call failed on every attempt or was
	// blocked.
	PostToolUseFailure Event = "PostToolUseFailure"
	// UserPromptSubmit fires before a query is sent to the model.
	UserPromptSubmit Event = "UserPromptSubmit"
	// Stop fires when a query finishes, successfully or not.
	Stop Event = "Stop"
)

// ErrBlocked is carried by a query or tool call that a hook blocked.
var ErrBlocked = errors.New("hook: blocked")

// Input is passed to hook functions.
type Input struct {
	SessionID string
	Event     Event

	ToolName   string          // tool events
	ToolInput  json.RawMessage // tool events
	ToolOutput string          // PostToolUse
	IsError    bool            // PostToolUse: the server flagged the result
	ToolError  error           // PostToolUseFailure
	Attempts   int             // PostToolUse, PostToolUseFailure

	Prompt string // UserPromptSubmit

	Result string // Stop: the transcript shown to the user
	Err    error  // Stop
}

// Result is returned by hook functions. A nil or zero value means "no
// action".
type Result struct {
	Block        bool            // PreToolUse, UserPromptSubmit
	Reason       string          // shown to the model or user when blocking
	UpdatedInput json.RawMessage // PreToolUse only: replaces the tool input
}

// Func is the signature for hook callbacks.
type Func func(ctx context.Context, input *Input) (*Result, error)

// Matcher defines which events a set of hooks should fire for.
type Matcher struct {
	Event   Event
	Pattern string        // regex over tool names; empty matches all
	Hooks   []Func        // run in order
	Timeout time.Duration // for all hooks in this matcher; 0 = 30s
}
