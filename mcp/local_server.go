package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/jsonschema-go/jsonschema"
	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/armatrix/mcp-bridge-go/internal/schema"
)

// LocalServer is an in-process MCP server that wraps Go functions as tools
// and prompts. Clients reach it over in-memory transports, so it speaks the
// same protocol as an external server without a subprocess.
//
// Usage:
//
//	srv := mcp.NewLocalServer("weather")
//	mcp.AddTool(srv, "get_weather", "Current weather", func(ctx context.Context, in WeatherInput) (string, error) {
//	    return "sunny", nil
//	})
//	t := srv.Transport(nil)
type LocalServer struct {
	name    string
	server  *sdk.Server
	tools   []string
	prompts []string
}

// NewLocalServer creates an empty in-process MCP server.
func NewLocalServer(name string) *LocalServer {
	return &LocalServer{
		name:   name,
		server: sdk.NewServer(&sdk.Implementation{Name: name, Version: ClientVersion}, nil),
	}
}

// Name returns the server name.
func (s *LocalServer) Name() string { return s.name }

// Server returns the underlying SDK server, for mounting on other transports
// such as a streamable HTTP handler.
func (s *LocalServer) Server() *sdk.Server { return s.server }

// ToolNames returns the registered tool names in sorted order.
func (s *LocalServer) ToolNames() []string {
	names := append([]string(nil), s.tools...)
	sort.Strings(names)
	return names
}

// PromptNames returns the registered prompt names in sorted order.
func (s *LocalServer) PromptNames() []string {
	names := append([]string(nil), s.prompts...)
	sort.Strings(names)
	return names
}

// AddTool registers a typed Go function as an MCP tool.
// The input type T is used for automatic JSON Schema generation. A handler
// error becomes a tool result flagged as an error.
func AddTool[T any](s *LocalServer, name, description string, handler func(ctx context.Context, input T) (string, error)) {
	tool := &sdk.Tool{
		Name:        name,
		Description: description,
		InputSchema: inputSchema(schema.Object[T]()),
	}
	s.AddSDKTool(tool, func(ctx context.Context, req *sdk.CallToolRequest) (*sdk.CallToolResult, error) {
		var input T
		if raw := req.Params.Arguments; len(raw) > 0 {
			if err := json.Unmarshal(raw, &input); err != nil {
				return errorResult(fmt.Sprintf("invalid input: %s", err)), nil
			}
		}
		out, err := handler(ctx, input)
		if err != nil {
			return errorResult(fmt.Sprintf("tool error: %s", err)), nil
		}
		return &sdk.CallToolResult{Content: []sdk.Content{&sdk.TextContent{Text: out}}}, nil
	})
}

// AddSDKTool registers a tool with a raw SDK handler, for results that are
// not a single text block.
func (s *LocalServer) AddSDKTool(tool *sdk.Tool, handler sdk.ToolHandler) {
	s.server.AddTool(tool, handler)
	s.tools = append(s.tools, tool.Name)
}

// AddPrompt registers a prompt template. The handler receives the string
// arguments supplied by the client and returns the prompt text.
func (s *LocalServer) AddPrompt(name, description string, args []PromptArgument, handler func(ctx context.Context, args map[string]string) (string, error)) {
	prompt := &sdk.Prompt{Name: name, Description: description}
	for _, a := range args {
		prompt.Arguments = append(prompt.Arguments, &sdk.PromptArgument{
			Name:        a.Name,
			Description: a.Description,
			Required:    a.Required,
		})
	}
	s.server.AddPrompt(prompt, func(ctx context.Context, req *sdk.GetPromptRequest) (*sdk.GetPromptResult, error) {
		text, err := handler(ctx, req.Params.Arguments)
		if err != nil {
			return nil, err
		}
		return &sdk.GetPromptResult{
			Description: description,
			Messages: []*sdk.PromptMessage{
				{Role: "user", Content: &sdk.TextContent{Text: text}},
			},
		}, nil
	})
	s.prompts = append(s.prompts, name)
}

// Transport returns a client Transport connected to this server in memory.
// Each Connect opens a new server session.
func (s *LocalServer) Transport(logger *slog.Logger) *LocalTransport {
	if logger == nil {
		logger = slog.Default()
	}
	t := &LocalTransport{server: s}
	t.sessionTransport = newSessionTransport(logger.With("server", s.name), t.dial)
	return t
}

// LocalTransport is the client side of an in-memory connection to a
// LocalServer.
type LocalTransport struct {
	sessionTransport
	server *LocalServer
}

var _ Transport = (*LocalTransport)(nil)

func (t *LocalTransport) dial(ctx context.Context) (sdk.Transport, error) {
	clientT, serverT := sdk.NewInMemoryTransports()
	if _, err := t.server.server.Connect(ctx, serverT, nil); err != nil {
		return nil, fmt.Errorf("%w: local server: %w", ErrHandshake, err)
	}
	return clientT, nil
}

func inputSchema(raw json.RawMessage) *jsonschema.Schema {
	var s jsonschema.Schema
	if err := json.Unmarshal(raw, &s); err != nil {
		return &jsonschema.Schema{Type: "object"}
	}
	return &s
}

func errorResult(text string) *sdk.CallToolResult {
	return &sdk.CallToolResult{
		Content: []sdk.Content{&sdk.TextContent{Text: text}},
		IsError: true,
	}
}
