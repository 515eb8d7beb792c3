package mcp

import "errors"

// Sentinel errors for the MCP package.
var (
	// ErrNotConnected is returned when attempting to use a transport that
	// has not yet established a connection, or has been closed.
	ErrNotConnected = errors.New("mcp: server not connected")

	// ErrInvalidConfig is returned when a ServerConfig is missing
	// required fields for its transport type.
	ErrInvalidConfig = errors.New("mcp: invalid server config")

	// ErrCommandNotFound is returned when the stdio server executable
	// cannot be located.
	ErrCommandNotFound = errors.New("mcp: command not found")

	// ErrHandshake is returned when the MCP initialize exchange fails.
	ErrHandshake = errors.New("mcp: handshake failed")

	// ErrToolFetch is returned when listing tools fails on every attempt.
	ErrToolFetch = errors.New("mcp: tool list unavailable")

	// ErrToolInvocation marks a tool call that failed on every attempt.
	// It is carried inside a Failure outcome, never returned.
	ErrToolInvocation = errors.New("mcp: tool call failed")
)
