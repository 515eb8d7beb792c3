// Package hookrunner executes hook matchers for a session.
package hookrunner

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/armatrix/mcp-bridge-go/hook"
)

const defaultTimeout = 30 * time.Second

// Runner executes hooks matched by event and tool name. A nil *Runner runs
// nothing.
type Runner struct {
	matchers []matcherEntry
}

type matcherEntry struct {
	event   hook.Event
	pattern *regexp.Regexp // nil = match all tools
	hooks   []hook.Func
	timeout time.Duration
}

// New creates a Runner from public Matcher definitions.
// Returns an error if any regex pattern is invalid.
func New(matchers []hook.Matcher) (*Runner, error) {
	entries := make([]matcherEntry, 0, len(matchers))
	for i, m := range matchers {
		entry := matcherEntry{
			event:   m.Event,
			hooks:   m.Hooks,
			timeout: m.Timeout,
		}
		if entry.timeout == 0 {
			entry.timeout = defaultTimeout
		}
		if m.Pattern != "" {
			re, err := regexp.Compile(m.Pattern)
			if err != nil {
				return nil, fmt.Errorf("matcher[%d]: invalid pattern %q: %w", i, m.Pattern, err)
			}
			entry.pattern = re
		}
		entries = append(entries, entry)
	}
	return &Runner{matchers: entries}, nil
}

// Empty reports whether the runner has no matchers.
func (r *Runner) Empty() bool { return r == nil || len(r.matchers) == 0 }

// PreToolUse runs the matching PreToolUse hooks. The first block wins; the
// last non-nil UpdatedInput wins.
func (r *Runner) PreToolUse(ctx context.Context, sessionID, tool string, input json.RawMessage) (*hook.Result, error) {
	return r.run(ctx, tool, &hook.Input{
		SessionID: sessionID,
		Event:     hook.PreToolUse,
		ToolName:  tool,
		ToolInput: input,
	})
}

// PostToolUse runs the matching PostToolUse hooks.
func (r *Runner) PostToolUse(ctx context.Context, sessionID, tool string, input json.RawMessage, output string, isError bool, attempts int) error {
	_, err := r.run(ctx, tool, &hook.Input{
		SessionID:  sessionID,
		Event:      hook.PostToolUse,
		ToolName:   tool,
		ToolInput:  input,
		ToolOutput: output,
		IsError:    isError,
		Attempts:   attempts,
	})
	return err
}

// PostToolUseFailure runs the matching PostToolUseFailure hooks.
func (r *Runner) PostToolUseFailure(ctx context.Context, sessionID, tool string, input json.RawMessage, toolErr error, attempts int) error {
	_, err := r.run(ctx, tool, &hook.Input{
		SessionID: sessionID,
		Event:     hook.PostToolUseFailure,
		ToolName:  tool,
		ToolInput: input,
		ToolError: toolErr,
		Attempts:  attempts,
	})
	return err
}

// UserPromptSubmit runs the matching UserPromptSubmit hooks.
func (r *Runner) UserPromptSubmit(ctx context.Context, sessionID, prompt string) (*hook.Result, error) {
	return r.run(ctx, "", &hook.Input{
		SessionID: sessionID,
		Event:     hook.UserPromptSubmit,
		Prompt:    prompt,
	})
}

// Stop runs the matching Stop hooks.
func (r *Runner) Stop(ctx context.Context, sessionID, result string, queryErr error) error {
	_, err := r.run(ctx, "", &hook.Input{
		SessionID: sessionID,
		Event:     hook.Stop,
		Result:    result,
		Err:       queryErr,
	})
	return err
}

func (r *Runner) run(ctx context.Context, tool string, input *hook.Input) (*hook.Result, error) {
	if r == nil {
		return nil, nil
	}
	var combined *hook.Result

	for _, entry := range r.matchers {
		if entry.event != input.Event {
			continue
		}
		if entry.pattern != nil && !entry.pattern.MatchString(tool) {
			continue
		}

		tctx, cancel := context.WithTimeout(ctx, entry.timeout)
		res, err := runHooks(tctx, entry.hooks, input)
		cancel()
		if err != nil {
			return combined, fmt.Errorf("%s hook: %w", input.Event, err)
		}
		if res == nil {
			continue
		}

		combined = merge(combined, res)
		if combined.Block {
			break
		}
	}
	return combined, nil
}

// runHooks executes hook functions in order, stopping early on a block or
// a done context.
func runHooks(ctx context.Context, hooks []hook.Func, input *hook.Input) (*hook.Result, error) {
	var combined *hook.Result
	for _, fn := range hooks {
		if err := ctx.Err(); err != nil {
			return combined, err
		}
		res, err := fn(ctx, input)
		if err != nil {
			return combined, err
		}
		if res == nil {
			continue
		}
		combined = merge(combined, res)
		if combined.Block {
			return combined, nil
		}
		if res.UpdatedInput != nil {
			input.ToolInput = res.UpdatedInput
		}
	}
	return combined, nil
}

func merge(into, res *hook.Result) *hook.Result {
	if into == nil {
		into = &hook.Result{}
	}
	if res.Block && !into.Block {
		into.Block = true
		into.Reason = res.Reason
	}
	if res.UpdatedInput != nil {
		into.UpdatedInput = res.UpdatedInput
	}
	return into
}
