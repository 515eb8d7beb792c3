package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/armatrix/mcp-bridge-go/conversation"
	"github.com/armatrix/mcp-bridge-go/internal/budget"
)

func TestNextTurn_TextAndToolCalls(t *testing.T) {
	streamer := newMockStreamer(response(
		text("Checking the forecast."),
		toolUse("toolu_1", "get_weather", `{"city": "Paris"}`),
	))
	var deltas []string

	res, err := NextTurn(context.Background(), TurnRequest{
		Streamer:     streamer,
		Model:        anthropic.ModelClaudeSonnet4_5,
		MaxTokens:    2000,
		SystemPrompt: "be brief",
		History:      conversation.History{conversation.UserText("weather?")},
		OnDelta:      func(s string) { deltas = append(deltas, s) },
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"Checking the forecast."}, res.TextSegments)
	require.Len(t, res.ToolCalls, 1)
	assert.Equal(t, "toolu_1", res.ToolCalls[0].ID)
	assert.Equal(t, "get_weather", res.ToolCalls[0].Name)
	assert.JSONEq(t, `{"city":"Paris"}`, string(res.ToolCalls[0].Input))
	assert.True(t, res.HasToolCalls())
	assert.Equal(t, anthropic.StopReasonToolUse, res.StopReason)

	require.Len(t, res.Content, 2)
	assert.Equal(t, conversation.TextBlock{Text: "Checking the forecast."}, res.Content[0])
	assert.IsType(t, conversation.ToolUseBlock{}, res.Content[1])

	assert.Equal(t, budget.Usage{InputTokens: 10, OutputTokens: 5}, res.Usage)
	assert.Equal(t, []string{"Checking the forecast."}, deltas)

	require.Len(t, streamer.calls, 1)
	params := streamer.calls[0]
	assert.Equal(t, int64(2000), params.MaxTokens)
	require.Len(t, params.System, 1)
	assert.Equal(t, "be brief", params.System[0].Text)
	assert.Len(t, params.Messages, 1)
}

func TestNextTurn_ToolWithoutInput(t *testing.T) {
	streamer := newMockStreamer(response(toolUse("toolu_1", "list_cities", "")))

	res, err := NextTurn(context.Background(), TurnRequest{Streamer: streamer, Model: anthropic.ModelClaudeSonnet4_5, MaxTokens: 10})
	require.NoError(t, err)
	require.Len(t, res.ToolCalls, 1)
	assert.JSONEq(t, `{}`, string(res.ToolCalls[0].Input))
}

func TestNextTurn_StreamError(t *testing.T) {
	streamer := newMockStreamer()

	_, err := NextTurn(context.Background(), TurnRequest{Streamer: streamer, Model: anthropic.ModelClaudeSonnet4_5, MaxTokens: 10})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrModelCall)
	assert.Equal(t, "Error calling Claude API: no more mock responses", err.Error())

	var me *ModelError
	require.True(t, errors.As(err, &me))
}

func TestIsTransitional(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"Let me check that tool", true},
		{"  let me look", true},
		{"I'll use the weather tool.", true},
		{"I will look it up", true},
		{"Now I'll fetch the forecast", true},
		{"Next I'll summarize", true},
		{"Checking that tool", false},
		{"It is sunny in Paris.", false},
		{"", false},
		{"Illustrative example", false},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransitional(tt.text))
		})
	}
}
