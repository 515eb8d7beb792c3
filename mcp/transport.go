package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// ToolInfo describes a tool discovered from an MCP server.
type ToolInfo struct {
	// Name is the tool's name as reported by the server.
	Name string

	// Description is a human-readable description of the tool.
	Description string

	// InputSchema is the raw JSON schema for the tool's input.
	InputSchema json.RawMessage
}

// PromptArgument is one declared parameter of a prompt template.
type PromptArgument struct {
	Name        string
	Description string
	Required    bool
}

// PromptInfo describes a prompt template discovered from an MCP server.
type PromptInfo struct {
	Name        string
	Description string
	Arguments   []PromptArgument
}

// CallResult is the outcome of one tools/call exchange. IsError is set when
// the server reports that the tool itself failed.
type CallResult struct {
	Content Content
	IsError bool
}

// Transport is the interface for communicating with an MCP server.
// Implementations handle the underlying protocol (stdio, HTTP/SSE, in-memory).
type Transport interface {
	// Connect establishes the connection and performs the MCP handshake.
	Connect(ctx context.Context) error

	// ListTools discovers available tools from the server.
	ListTools(ctx context.Context) ([]ToolInfo, error)

	// ListPrompts discovers available prompt templates from the server.
	ListPrompts(ctx context.Context) ([]PromptInfo, error)

	// CallTool invokes a tool on the server by name with the given arguments.
	CallTool(ctx context.Context, name string, args map[string]any) (*CallResult, error)

	// Close tears down the connection and releases resources. It is safe
	// to call more than once.
	Close() error
}

// NewTransport creates a Transport for the given ServerConfig based on its
// Transport type. Returns ErrInvalidConfig if the config is not valid.
func NewTransport(cfg ServerConfig, logger *slog.Logger) (Transport, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Transport {
	case TransportStdio:
		return NewStdioTransport(cfg, logger)
	case TransportSSE, TransportStreamableHTTP:
		return NewHTTPTransport(cfg, logger)
	default:
		if cfg.Command != "" {
			return NewStdioTransport(cfg, logger)
		}
		return NewHTTPTransport(cfg, logger)
	}
}

// sessionTransport implements the MCP operations on top of an SDK client
// session. Concrete transports supply dial, which builds the SDK transport.
type sessionTransport struct {
	logger *slog.Logger
	dial   func(ctx context.Context) (sdk.Transport, error)

	mu      sync.Mutex
	session *sdk.ClientSession
}

func newSessionTransport(logger *slog.Logger, dial func(ctx context.Context) (sdk.Transport, error)) sessionTransport {
	if logger == nil {
		logger = slog.Default()
	}
	return sessionTransport{logger: logger, dial: dial}
}

func (t *sessionTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.session != nil {
		return nil
	}

	transport, err := t.dial(ctx)
	if err != nil {
		return err
	}

	client := sdk.NewClient(&sdk.Implementation{Name: ClientName, Version: ClientVersion}, nil)
	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrHandshake, err)
	}
	t.session = session
	t.logger.Info("MCP server connected")
	return nil
}

func (t *sessionTransport) current() (*sdk.ClientSession, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.session == nil {
		return nil, ErrNotConnected
	}
	return t.session, nil
}

func (t *sessionTransport) ListTools(ctx context.Context) ([]ToolInfo, error) {
	session, err := t.current()
	if err != nil {
		return nil, err
	}

	var tools []ToolInfo
	params := &sdk.ListToolsParams{}
	for {
		res, err := session.ListTools(ctx, params)
		if err != nil {
			return nil, fmt.Errorf("tools/list: %w", err)
		}
		for _, tool := range res.Tools {
			tools = append(tools, toolInfo(tool))
		}
		if res.NextCursor == "" {
			break
		}
		params = &sdk.ListToolsParams{Cursor: res.NextCursor}
	}
	t.logger.Debug("listed MCP tools", "count", len(tools))
	return tools, nil
}

func (t *sessionTransport) ListPrompts(ctx context.Context) ([]PromptInfo, error) {
	session, err := t.current()
	if err != nil {
		return nil, err
	}

	var prompts []PromptInfo
	params := &sdk.ListPromptsParams{}
	for {
		res, err := session.ListPrompts(ctx, params)
		if err != nil {
			return nil, fmt.Errorf("prompts/list: %w", err)
		}
		for _, p := range res.Prompts {
			prompts = append(prompts, promptInfo(p))
		}
		if res.NextCursor == "" {
			break
		}
		params = &sdk.ListPromptsParams{Cursor: res.NextCursor}
	}
	t.logger.Debug("listed MCP prompts", "count", len(prompts))
	return prompts, nil
}

func (t *sessionTransport) CallTool(ctx context.Context, name string, args map[string]any) (*CallResult, error) {
	session, err := t.current()
	if err != nil {
		return nil, err
	}

	res, err := session.CallTool(ctx, &sdk.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		return nil, fmt.Errorf("tools/call %s: %w", name, err)
	}
	return &CallResult{Content: ContentFromSDK(res.Content), IsError: res.IsError}, nil
}

func (t *sessionTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.session == nil {
		return nil
	}
	err := t.session.Close()
	t.session = nil
	t.logger.Info("MCP server disconnected")
	return err
}

func toolInfo(tool *sdk.Tool) ToolInfo {
	info := ToolInfo{Name: tool.Name, Description: tool.Description}
	if tool.InputSchema != nil {
		if raw, err := json.Marshal(tool.InputSchema); err == nil {
			info.InputSchema = raw
		}
	}
	return info
}

func promptInfo(p *sdk.Prompt) PromptInfo {
	info := PromptInfo{Name: p.Name, Description: p.Description}
	for _, arg := range p.Arguments {
		if arg == nil {
			continue
		}
		info.Arguments = append(info.Arguments, PromptArgument{
			Name:        arg.Name,
			Description: arg.Description,
			Required:    arg.Required,
		})
	}
	return info
}
