package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/armatrix/mcp-bridge-go/hook"
	"github.com/armatrix/mcp-bridge-go/internal/hookrunner"
	"github.com/armatrix/mcp-bridge-go/internal/schema"
	"github.com/armatrix/mcp-bridge-go/mcp"
	"github.com/armatrix/mcp-bridge-go/permission"
)

// ToolDescriptor is a tool advertised by the connected server.
type ToolDescriptor struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// ToolParameter is one property of a tool's input schema.
type ToolParameter struct {
	Name        string
	Type        string
	Description string
	Required    bool
}

// Parameters lists the top-level properties of the input schema, sorted by
// name. A schema that cannot be decoded yields nil.
func (t ToolDescriptor) Parameters() []ToolParameter {
	var s struct {
		Properties map[string]struct {
			Type        any    `json:"type"`
			Description string `json:"description"`
		} `json:"properties"`
		Required []string `json:"required"`
	}
	if err := json.Unmarshal(t.InputSchema, &s); err != nil {
		return nil
	}
	params := make([]ToolParameter, 0, len(s.Properties))
	for name, p := range s.Properties {
		typ := ""
		switch v := p.Type.(type) {
		case string:
			typ = v
		case []any:
			var parts []string
			for _, x := range v {
				if str, ok := x.(string); ok {
					parts = append(parts, str)
				}
			}
			typ = strings.Join(parts, "|")
		}
		params = append(params, ToolParameter{
			Name:        name,
			Type:        typ,
			Description: p.Description,
			Required:    slices.Contains(s.Required, name),
		})
	}
	sort.Slice(params, func(i, j int) bool { return params[i].Name < params[j].Name })
	return params
}

// PromptParameter describes one prompt argument. Type is always "string".
type PromptParameter struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Required    bool   `json:"required"`
}

// PromptDescriptor is a prompt template advertised by the connected server.
type PromptDescriptor struct {
	Name        string                     `json:"name"`
	Description string                     `json:"description"`
	Parameters  map[string]PromptParameter `json:"parameters"`
	// Arguments holds the parameter names in the order the server declared them.
	Arguments []string `json:"-"`
}

// PromptDetails is what a front-end needs to fill in a prompt.
type PromptDetails struct {
	Name        string                     `json:"name"`
	Description string                     `json:"description"`
	Content     string                     `json:"content"`
	Parameters  map[string]PromptParameter `json:"parameters"`
}

// promptContentPrefix introduces the parameter list in PromptDetails.Content.
const promptContentPrefix = "Please provide the required parameters: "

// ListForAPI converts tool descriptors into the Messages API tool shape.
// Tools whose schema cannot be converted are left out and reported in the
// returned error, which wraps ErrProtocolFormat.
func ListForAPI(tools []ToolDescriptor) ([]anthropic.ToolUnionParam, error) {
	params := make([]anthropic.ToolUnionParam, 0, len(tools))
	var errs []error
	for _, t := range tools {
		input, err := schema.FromRaw(t.InputSchema)
		if err != nil {
			errs = append(errs, fmt.Errorf("%w: tool %s: %w", ErrProtocolFormat, t.Name, err))
			continue
		}
		tp := &anthropic.ToolParam{Name: t.Name, InputSchema: input}
		if t.Description != "" {
			tp.Description = anthropic.String(t.Description)
		}
		params = append(params, anthropic.ToolUnionParam{OfTool: tp})
	}
	return params, errors.Join(errs...)
}

// registry keeps the last-fetched tool and prompt snapshots for a session.
type registry struct {
	bridge  *mcp.Bridge
	checker *permission.Checker
	logger  *slog.Logger

	mu      sync.RWMutex
	tools   []ToolDescriptor
	prompts []PromptDescriptor
}

// fetchTools lists the server's tools with retry, drops the ones the policy
// hides, and refreshes the snapshot.
func (r *registry) fetchTools(ctx context.Context) ([]ToolDescriptor, error) {
	infos, err := r.bridge.ListTools(ctx)
	if err != nil {
		return nil, err
	}

	tools := make([]ToolDescriptor, 0, len(infos))
	for _, info := range infos {
		if !r.checker.Visible(info.Name) {
			r.logger.Debug("tool hidden by policy", "tool", info.Name)
			continue
		}
		in := info.InputSchema
		if len(in) == 0 {
			in = json.RawMessage(`{"type":"object"}`)
		}
		tools = append(tools, ToolDescriptor{Name: info.Name, Description: info.Description, InputSchema: in})
	}

	r.mu.Lock()
	r.tools = tools
	r.mu.Unlock()
	return slices.Clone(tools), nil
}

// fetchPrompts lists the server's prompts once. Servers without prompt
// support produce an empty list.
func (r *registry) fetchPrompts(ctx context.Context) []PromptDescriptor {
	infos, err := r.bridge.ListPrompts(ctx)
	if err != nil {
		r.logger.Warn("failed to fetch prompts", "error", err)
		infos = nil
	}

	prompts := make([]PromptDescriptor, 0, len(infos))
	for _, info := range infos {
		params := make(map[string]PromptParameter, len(info.Arguments))
		names := make([]string, 0, len(info.Arguments))
		for _, a := range info.Arguments {
			params[a.Name] = PromptParameter{Type: "string", Description: a.Description, Required: a.Required}
			names = append(names, a.Name)
		}
		prompts = append(prompts, PromptDescriptor{
			Name:        info.Name,
			Description: info.Description,
			Parameters:  params,
			Arguments:   names,
		})
	}

	r.mu.Lock()
	r.prompts = prompts
	r.mu.Unlock()
	return slices.Clone(prompts)
}

func (r *registry) snapshotTools() []ToolDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.tools)
}

func (r *registry) snapshotPrompts() []PromptDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.prompts)
}

// promptDetails resolves a prompt from the last-fetched snapshot.
func (r *registry) promptDetails(name string) (*PromptDetails, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.prompts {
		if p.Name != name {
			continue
		}
		return &PromptDetails{
			Name:        p.Name,
			Description: p.Description,
			Content:     promptContentPrefix + strings.Join(p.Arguments, ", "),
			Parameters:  maps.Clone(p.Parameters),
		}, nil
	}
	return nil, fmt.Errorf("%w: prompt %s", ErrNotFound, name)
}

// toolSource adapts the registry to the query loop: every query refetches
// the tool list and converts it for the API.
type toolSource struct {
	r *registry
}

func (s toolSource) FetchTools(ctx context.Context) ([]anthropic.ToolUnionParam, error) {
	tools, err := s.r.fetchTools(ctx)
	if err != nil {
		return nil, err
	}
	params, err := ListForAPI(tools)
	if err != nil {
		s.r.logger.Warn("skipping tools with unusable schemas", "error", err)
	}
	return params, nil
}

// guardedInvoker checks the permission policy and runs tool hooks around
// each call it hands to the bridge.
type guardedInvoker struct {
	bridge    *mcp.Bridge
	checker   *permission.Checker
	hooks     *hookrunner.Runner
	sessionID string
	logger    *slog.Logger
}

func (g guardedInvoker) Invoke(ctx context.Context, name string, input json.RawMessage) mcp.Outcome {
	outcome, input := g.invoke(ctx, name, input)

	var err error
	switch o := outcome.(type) {
	case mcp.Success:
		err = g.hooks.PostToolUse(ctx, g.sessionID, name, input, o.Text, o.IsError, o.Attempts)
	case mcp.Failure:
		err = g.hooks.PostToolUseFailure(ctx, g.sessionID, name, input, o.Err, o.Attempts)
	}
	if err != nil {
		g.logger.Warn("post-tool hook failed", "tool", name, "error", err)
	}
	return outcome
}

// invoke returns the outcome and the input the call was made with.
func (g guardedInvoker) invoke(ctx context.Context, name string, input json.RawMessage) (mcp.Outcome, json.RawMessage) {
	d, err := g.checker.Check(ctx, name, input)
	if err != nil {
		g.logger.Error("permission check failed", "tool", name, "error", err)
		return mcp.Failure{
			Reason: fmt.Sprintf("Tool call denied: permission check failed: %v", err),
			Err:    fmt.Errorf("%w: %w", permission.ErrDenied, err),
		}, input
	}
	if d == permission.Deny {
		g.logger.Info("tool call denied", "tool", name)
		return mcp.Failure{
			Reason: fmt.Sprintf("Tool call denied: %s is not permitted", name),
			Err:    fmt.Errorf("%w: %s", permission.ErrDenied, name),
		}, input
	}

	res, err := g.hooks.PreToolUse(ctx, g.sessionID, name, input)
	if err != nil {
		g.logger.Error("pre-tool hook failed", "tool", name, "error", err)
		return mcp.Failure{
			Reason: fmt.Sprintf("Tool call blocked: %v", err),
			Err:    fmt.Errorf("%w: %w", hook.ErrBlocked, err),
		}, input
	}
	if res != nil && res.Block {
		g.logger.Info("tool call blocked by hook", "tool", name, "reason", res.Reason)
		return mcp.Failure{
			Reason: "Tool call blocked: " + res.Reason,
			Err:    fmt.Errorf("%w: %s: %s", hook.ErrBlocked, name, res.Reason),
		}, input
	}
	if res != nil && res.UpdatedInput != nil {
		input = res.UpdatedInput
	}
	return g.bridge.Invoke(ctx, name, input), input
}
