package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/armatrix/mcp-bridge-go/internal/retry"
)

// Outcome is the result of Bridge.Invoke: either Success or Failure.
type Outcome interface {
	// ResultText is the text fed back to the model as the tool result.
	ResultText() string
	outcome()
}

// Success is a tool call the server answered. IsError reports that the server
// marked the result as a tool-level error; such results are not retried.
type Success struct {
	Text     string
	IsError  bool
	Attempts int
}

// Failure is a tool call that could not be completed within the retry bound.
type Failure struct {
	// Reason is the human-readable message reported inline in the transcript.
	Reason   string
	Attempts int
	// Err wraps ErrToolInvocation and the last underlying error.
	Err error
}

func (s Success) ResultText() string { return s.Text }
func (f Failure) ResultText() string { return f.Reason }

func (Success) outcome() {}
func (Failure) outcome() {}

// RetryFunc is notified before each delayed retry. Op is "tools/list" or
// "tools/call"; tool is empty for list operations.
type RetryFunc func(op, tool string, attempt int, err error)

// Bridge wraps a Transport with the retry policy used for tool listing and
// tool calls.
type Bridge struct {
	transport Transport
	policy    retry.Policy
	logger    *slog.Logger
	onRetry   RetryFunc
}

// BridgeOption configures a Bridge.
type BridgeOption func(*Bridge)

// WithRetryPolicy replaces the default 3-attempt, 1-second policy.
func WithRetryPolicy(p retry.Policy) BridgeOption {
	return func(b *Bridge) { b.policy = p }
}

// WithBridgeLogger sets the logger for retry and call diagnostics.
func WithBridgeLogger(l *slog.Logger) BridgeOption {
	return func(b *Bridge) { b.logger = l }
}

// WithRetryFunc registers a callback invoked before each retry.
func WithRetryFunc(fn RetryFunc) BridgeOption {
	return func(b *Bridge) { b.onRetry = fn }
}

// NewBridge creates a Bridge over a connected transport.
func NewBridge(t Transport, opts ...BridgeOption) *Bridge {
	b := &Bridge{transport: t, policy: retry.Default()}
	for _, opt := range opts {
		opt(b)
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	return b
}

// Transport returns the underlying transport.
func (b *Bridge) Transport() Transport { return b.transport }

// SetRetryFunc replaces the retry callback. It must not be called while an
// operation is in flight.
func (b *Bridge) SetRetryFunc(fn RetryFunc) { b.onRetry = fn }

func (b *Bridge) policyFor(op, tool string) retry.Policy {
	p := b.policy
	p.OnRetry = func(attempt int, err error) {
		b.logger.Warn("retrying MCP operation",
			"op", op,
			"tool", tool,
			"attempt", attempt,
			"max_attempts", p.Attempts,
			"error", err,
		)
		if b.onRetry != nil {
			b.onRetry(op, tool, attempt, err)
		}
	}
	return p
}

// FetchError reports that the tool list could not be fetched within the
// retry bound, or that the context ended while waiting to retry. It matches
// ErrToolFetch with errors.Is.
type FetchError struct {
	Attempts  int
	Cancelled bool
	Err       error
}

func (e *FetchError) Error() string {
	if e.Cancelled {
		return fmt.Sprintf("Failed to get tools: %v", e.Err)
	}
	return fmt.Sprintf("Failed to get tools after %d attempts: %v", e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() []error { return []error{ErrToolFetch, e.Err} }

// ListTools fetches the tool list with retry. On exhaustion it returns a
// *FetchError.
func (b *Bridge) ListTools(ctx context.Context) ([]ToolInfo, error) {
	var tools []ToolInfo
	p := b.policyFor("tools/list", "")
	attempts, err := p.Do(ctx, func(ctx context.Context) error {
		var err error
		tools, err = b.transport.ListTools(ctx)
		return err
	})
	if err != nil {
		var cancelled *retry.CancelledError
		return nil, &FetchError{Attempts: attempts, Cancelled: errors.As(err, &cancelled), Err: err}
	}
	return tools, nil
}

// ListPrompts fetches the prompt list once. Servers without prompt support
// return an error, which callers treat as an empty list.
func (b *Bridge) ListPrompts(ctx context.Context) ([]PromptInfo, error) {
	return b.transport.ListPrompts(ctx)
}

// Invoke calls the named tool with the model-supplied JSON input. It never
// returns an error: exhausted retries produce a Failure. The call itself is
// not cancelled by ctx; cancellation is observed between attempts.
func (b *Bridge) Invoke(ctx context.Context, name string, input json.RawMessage) Outcome {
	args := map[string]any{}
	if len(input) > 0 {
		if err := json.Unmarshal(input, &args); err != nil {
			reason := fmt.Sprintf("Tool call failed: invalid input: %v", err)
			return Failure{Reason: reason, Err: fmt.Errorf("%w: %w", ErrToolInvocation, err)}
		}
	}

	callCtx := context.WithoutCancel(ctx)
	var res *CallResult
	p := b.policyFor("tools/call", name)
	attempts, err := p.Do(ctx, func(context.Context) error {
		var err error
		res, err = b.transport.CallTool(callCtx, name, args)
		return err
	})
	if err != nil {
		b.logger.Error("tool call failed", "tool", name, "attempts", attempts, "error", err)
		reason := fmt.Sprintf("Tool call failed after %d attempts: %v", attempts, err)
		var cancelled *retry.CancelledError
		if errors.As(err, &cancelled) {
			reason = "Tool call " + err.Error()
		}
		return Failure{
			Reason:   reason,
			Attempts: attempts,
			Err:      fmt.Errorf("%w: %s: %w", ErrToolInvocation, name, err),
		}
	}

	text := res.Content.String()
	b.logger.Debug("tool call completed",
		"tool", name,
		"attempts", attempts,
		"is_error", res.IsError,
		"result_len", len(text),
	)
	return Success{Text: text, IsError: res.IsError, Attempts: attempts}
}
