package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/armatrix/mcp-bridge-go/conversation"
	"github.com/armatrix/mcp-bridge-go/internal/budget"
)

// MessageStreamer abstracts the Anthropic Messages API so the loop can be tested
// with a mock. Production code passes the real client.Messages.NewStreaming.
type MessageStreamer interface {
	NewStreaming(ctx context.Context, params anthropic.MessageNewParams) *ssestream.Stream[anthropic.MessageStreamEventUnion]
}

type messageServiceAdapter struct {
	svc *anthropic.MessageService
}

func (a *messageServiceAdapter) NewStreaming(ctx context.Context, params anthropic.MessageNewParams) *ssestream.Stream[anthropic.MessageStreamEventUnion] {
	return a.svc.NewStreaming(ctx, params)
}

// NewMessageStreamer wraps a real anthropic.MessageService as a MessageStreamer.
func NewMessageStreamer(svc *anthropic.MessageService) MessageStreamer {
	return &messageServiceAdapter{svc: svc}
}

// ToolCall is one tool_use request from the model.
type ToolCall struct {
	ID    string
	Name  string
	Input json.RawMessage
}

// TurnRequest is the input to a single model call.
type TurnRequest struct {
	Streamer     MessageStreamer
	Model        anthropic.Model
	MaxTokens    int
	SystemPrompt string
	History      conversation.History
	Tools        []anthropic.ToolUnionParam

	// OnDelta, if set, receives text deltas as they stream in.
	OnDelta func(text string)
}

// TurnResult is the parsed assistant response of one model call.
type TurnResult struct {
	// TextSegments are the text blocks in emission order.
	TextSegments []string
	// ToolCalls are the tool_use blocks in emission order.
	ToolCalls []ToolCall
	// Content is the full assistant content in emission order.
	Content    []conversation.Block
	Usage      budget.Usage
	StopReason anthropic.StopReason
}

// HasToolCalls reports whether the model asked for any tool.
func (r *TurnResult) HasToolCalls() bool { return len(r.ToolCalls) > 0 }

// NextTurn performs one streaming model call with the full history and tool
// list. Failures are returned as *ModelError; the call is not retried.
func NextTurn(ctx context.Context, req TurnRequest) (*TurnResult, error) {
	params := anthropic.MessageNewParams{
		Model:     req.Model,
		MaxTokens: int64(req.MaxTokens),
		Messages:  req.History.ToParams(),
	}
	if req.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.SystemPrompt}}
	}
	if len(req.Tools) > 0 {
		params.Tools = req.Tools
	}

	stream := req.Streamer.NewStreaming(ctx, params)
	defer stream.Close()

	msg := anthropic.Message{}
	for stream.Next() {
		event := stream.Current()
		if err := msg.Accumulate(event); err != nil {
			return nil, &ModelError{Err: fmt.Errorf("accumulate: %w", err)}
		}
		if req.OnDelta != nil && event.Type == "content_block_delta" && event.Delta.Type == "text_delta" && event.Delta.Text != "" {
			req.OnDelta(event.Delta.Text)
		}
	}
	if err := stream.Err(); err != nil {
		return nil, &ModelError{Err: err}
	}

	return parseMessage(msg), nil
}

func parseMessage(msg anthropic.Message) *TurnResult {
	res := &TurnResult{
		Usage:      budget.FromAPI(msg.Usage),
		StopReason: msg.StopReason,
	}
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			res.TextSegments = append(res.TextSegments, block.Text)
			res.Content = append(res.Content, conversation.TextBlock{Text: block.Text})
		case "tool_use":
			tu := conversation.NewToolUse(block.ID, block.Name, block.Input)
			res.ToolCalls = append(res.ToolCalls, ToolCall{ID: tu.ID, Name: tu.Name, Input: tu.Input})
			res.Content = append(res.Content, tu)
		}
	}
	return res
}

var transitionalPrefixes = []string{"let me", "i'll", "i will", "now i'll", "next i'll"}

// IsTransitional reports whether a text segment is filler such as "Let me
// check that". Such segments stay in history but are left out of the
// visible transcript.
func IsTransitional(text string) bool {
	t := strings.ToLower(strings.TrimSpace(text))
	for _, p := range transitionalPrefixes {
		if strings.HasPrefix(t, p) {
			return true
		}
	}
	return false
}
