package bridge

import "github.com/anthropics/anthropic-sdk-go"

// Model and loop defaults.
const (
	// DefaultModel is the Claude model used when no model is specified.
	DefaultModel = anthropic.ModelClaudeSonnet4_5

	// DefaultMaxTokens is the output cap for each model call.
	DefaultMaxTokens = 2000

	// DefaultMaxRounds is the model-call cap per query (0 = unlimited).
	DefaultMaxRounds = 0

	// DefaultSystemPreset names the built-in system prompt.
	DefaultSystemPreset = "default"

	// DefaultStreamBufferSize is the channel buffer size for QueryStream.
	DefaultStreamBufferSize = 64
)
