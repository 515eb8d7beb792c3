// Package mcp connects to a single external MCP (Model Context Protocol) tool
// server, lists its tools and prompts, and calls tools with bounded retry.
// The wire protocol is handled by the official MCP Go SDK; this package adds
// transport selection, result normalization and the retry policy.
package mcp

import "fmt"

// Client identity advertised during the MCP handshake.
const (
	ClientName    = "mcp-bridge-go"
	ClientVersion = "0.4.0"
)

// TransportType identifies the MCP transport protocol.
type TransportType string

const (
	// TransportStdio communicates via a subprocess's stdin/stdout.
	TransportStdio TransportType = "stdio"

	// TransportSSE communicates via HTTP Server-Sent Events.
	TransportSSE TransportType = "sse"

	// TransportStreamableHTTP communicates via HTTP streaming.
	TransportStreamableHTTP TransportType = "streamable-http"
)

// ServerConfig describes how to connect to a single MCP server.
type ServerConfig struct {
	// Name identifies the server in logs and config files.
	Name string `json:"-" yaml:"-"`

	// Command is the executable to spawn (stdio transport only).
	Command string `json:"command,omitempty" yaml:"command,omitempty"`

	// Args are command-line arguments for the subprocess.
	Args []string `json:"args,omitempty" yaml:"args,omitempty"`

	// Env overlays the process environment for the subprocess. Entries here
	// win over inherited variables with the same name.
	Env map[string]string `json:"env,omitempty" yaml:"env,omitempty"`

	// URL is the server address (SSE and streamable-http transports).
	URL string `json:"url,omitempty" yaml:"url,omitempty"`

	// Headers are sent with every HTTP request (e.g. Authorization).
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`

	// Transport selects the communication protocol. Empty means stdio when
	// Command is set and streamable HTTP when URL is set.
	Transport TransportType `json:"transport,omitempty" yaml:"transport,omitempty"`
}

// Validate reports whether the config names a reachable endpoint kind.
func (c ServerConfig) Validate() error {
	switch c.Transport {
	case TransportStdio:
		if c.Command == "" {
			return fmt.Errorf("%w: stdio transport requires command", ErrInvalidConfig)
		}
	case TransportSSE, TransportStreamableHTTP:
		if c.URL == "" {
			return fmt.Errorf("%w: HTTP transport requires URL", ErrInvalidConfig)
		}
	case "":
		if c.Command == "" && c.URL == "" {
			return fmt.Errorf("%w: command or url is required", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown transport %q", ErrInvalidConfig, c.Transport)
	}
	return nil
}
