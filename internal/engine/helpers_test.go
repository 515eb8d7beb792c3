package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/armatrix/mcp-bridge-go/conversation"
	"github.com/armatrix/mcp-bridge-go/mcp"
)

// mockStreamer returns pre-built SSE responses for successive calls and
// records the params of each call.
type mockStreamer struct {
	mu        sync.Mutex
	responses []string
	calls     []anthropic.MessageNewParams
}

func newMockStreamer(responses ...string) *mockStreamer {
	return &mockStreamer{responses: responses}
}

func (m *mockStreamer) NewStreaming(_ context.Context, params anthropic.MessageNewParams) *ssestream.Stream[anthropic.MessageStreamEventUnion] {
	m.mu.Lock()
	idx := len(m.calls)
	m.calls = append(m.calls, params)
	m.mu.Unlock()

	if idx >= len(m.responses) {
		return ssestream.NewStream[anthropic.MessageStreamEventUnion](nil, fmt.Errorf("no more mock responses"))
	}

	resp := &http.Response{
		StatusCode: 200,
		Body:       io.NopCloser(strings.NewReader(m.responses[idx])),
		Header:     http.Header{},
	}
	return ssestream.NewStream[anthropic.MessageStreamEventUnion](ssestream.NewDecoder(resp), nil)
}

func (m *mockStreamer) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// fakeTools serves a fixed tool list and scripted outcomes.
type fakeTools struct {
	tools    []anthropic.ToolUnionParam
	fetchErr error
	outcomes map[string]mcp.Outcome
	invoked  []string
	inputs   []json.RawMessage
}

func (f *fakeTools) FetchTools(context.Context) ([]anthropic.ToolUnionParam, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.tools, nil
}

func (f *fakeTools) Invoke(_ context.Context, name string, input json.RawMessage) mcp.Outcome {
	f.invoked = append(f.invoked, name)
	f.inputs = append(f.inputs, input)
	if o, ok := f.outcomes[name]; ok {
		return o
	}
	return mcp.Success{Text: "ok", Attempts: 1}
}

// recordingSink collects events for assertions.
type recordingSink struct {
	deltas  []string
	rounds  []int
	steps   []string
	results []Result
}

func (s *recordingSink) OnStream(delta string) { s.deltas = append(s.deltas, delta) }

func (s *recordingSink) OnAssistant(round int, _ []conversation.Block) {
	s.rounds = append(s.rounds, round)
}

func (s *recordingSink) OnStep(step int, call ToolCall) {
	s.steps = append(s.steps, fmt.Sprintf("%d:%s", step, call.Name))
}

func (s *recordingSink) OnToolResult(int, ToolCall, mcp.Outcome) {}

func (s *recordingSink) OnResult(res Result) { s.results = append(s.results, res) }

// --- SSE helpers ---

type sseEvent struct {
	Type string
	Data string
}

func buildSSE(events ...sseEvent) string {
	var sb strings.Builder
	for _, e := range events {
		fmt.Fprintf(&sb, "event: %s\ndata: %s\n\n", e.Type, e.Data)
	}
	return sb.String()
}

func jsonString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func messageStart(inputTokens int64) sseEvent {
	return sseEvent{
		Type: "message_start",
		Data: fmt.Sprintf(`{"type":"message_start","message":{"id":"msg_test","type":"message","role":"assistant","content":[],"model":"claude-sonnet-4-5","stop_reason":null,"usage":{"input_tokens":%d,"output_tokens":0}}}`, inputTokens),
	}
}

func textBlockStart(index int) sseEvent {
	return sseEvent{
		Type: "content_block_start",
		Data: fmt.Sprintf(`{"type":"content_block_start","index":%d,"content_block":{"type":"text","text":""}}`, index),
	}
}

func textDelta(index int, text string) sseEvent {
	return sseEvent{
		Type: "content_block_delta",
		Data: fmt.Sprintf(`{"type":"content_block_delta","index":%d,"delta":{"type":"text_delta","text":%s}}`, index, jsonString(text)),
	}
}

func blockStop(index int) sseEvent {
	return sseEvent{
		Type: "content_block_stop",
		Data: fmt.Sprintf(`{"type":"content_block_stop","index":%d}`, index),
	}
}

func toolUseStart(index int, id, name string) sseEvent {
	return sseEvent{
		Type: "content_block_start",
		Data: fmt.Sprintf(`{"type":"content_block_start","index":%d,"content_block":{"type":"tool_use","id":"%s","name":"%s","input":{}}}`, index, id, name),
	}
}

func inputJSONDelta(index int, partial string) sseEvent {
	return sseEvent{
		Type: "content_block_delta",
		Data: fmt.Sprintf(`{"type":"content_block_delta","index":%d,"delta":{"type":"input_json_delta","partial_json":%s}}`, index, jsonString(partial)),
	}
}

func messageDelta(stopReason string, outputTokens int64) sseEvent {
	return sseEvent{
		Type: "message_delta",
		Data: fmt.Sprintf(`{"type":"message_delta","delta":{"stop_reason":"%s","stop_sequence":null},"usage":{"output_tokens":%d}}`, stopReason, outputTokens),
	}
}

func messageStop() sseEvent {
	return sseEvent{Type: "message_stop", Data: `{"type":"message_stop"}`}
}

// block is one content block of a scripted model response.
type block struct {
	text  string
	id    string
	name  string
	input string
}

func text(s string) block { return block{text: s} }

func toolUse(id, name, input string) block { return block{id: id, name: name, input: input} }

// response builds a complete SSE message from content blocks.
func response(blocks ...block) string {
	events := []sseEvent{messageStart(10)}
	stop := "end_turn"
	for i, b := range blocks {
		if b.name != "" {
			stop = "tool_use"
			events = append(events, toolUseStart(i, b.id, b.name))
			if b.input != "" {
				events = append(events, inputJSONDelta(i, b.input))
			}
		} else {
			events = append(events, textBlockStart(i), textDelta(i, b.text))
		}
		events = append(events, blockStop(i))
	}
	events = append(events, messageDelta(stop, 5), messageStop())
	return buildSSE(events...)
}
