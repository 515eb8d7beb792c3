package bridge

import (
	"errors"

	"github.com/armatrix/mcp-bridge-go/hook"
	"github.com/armatrix/mcp-bridge-go/internal/engine"
	"github.com/armatrix/mcp-bridge-go/mcp"
)

// Sentinel errors returned by Connect and Client operations, and carried in
// Result.Err. Test with errors.Is.
var (
	// ErrConnection is returned when the tool server cannot be started,
	// reached, or initialized.
	ErrConnection = errors.New("bridge: connection failed")

	// ErrInvalidTarget is returned by Connect for a target that is neither a
	// server script nor a readable server config file.
	ErrInvalidTarget = errors.New("bridge: invalid target")

	// ErrNotFound is returned for an unknown prompt name.
	ErrNotFound = errors.New("bridge: not found")

	// ErrProtocolFormat marks a malformed document or message.
	ErrProtocolFormat = errors.New("bridge: malformed document")

	// ErrClosed is returned by operations on a closed Client.
	ErrClosed = errors.New("bridge: client closed")

	// ErrToolFetch marks a tool list that could not be fetched within the
	// retry bound.
	ErrToolFetch = mcp.ErrToolFetch

	// ErrToolInvocation marks a tool call that failed on every attempt. It is
	// reported inside the transcript, never returned.
	ErrToolInvocation = mcp.ErrToolInvocation

	// ErrModelCall marks a failed model API call.
	ErrModelCall = engine.ErrModelCall

	// ErrMaxRounds is carried by a query that hit WithMaxRounds.
	ErrMaxRounds = engine.ErrMaxRounds

	// ErrBudgetExhausted is carried by a query stopped by WithBudget.
	ErrBudgetExhausted = engine.ErrBudgetExhausted

	// ErrHookBlocked is carried by a query a UserPromptSubmit hook blocked.
	ErrHookBlocked = hook.ErrBlocked
)
