package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
	"github.com/stretchr/testify/require"

	"github.com/armatrix/mcp-bridge-go/mcp"
)

// mockStreamer returns pre-built SSE responses for successive calls.
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

type block struct {
	text  string
	id    string
	name  string
	input string
}

func text(s string) block { return block{text: s} }

func toolUse(id, name, input string) block { return block{id: id, name: name, input: input} }

func jsonString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

// response builds a complete SSE message from content blocks, reporting 10
// input and 5 output tokens.
func response(blocks ...block) string {
	var sb strings.Builder
	event := func(typ, data string, args ...any) {
		fmt.Fprintf(&sb, "event: %s\ndata: %s\n\n", typ, fmt.Sprintf(data, args...))
	}
	event("message_start", `{"type":"message_start","message":{"id":"msg_test","type":"message","role":"assistant","content":[],"model":"claude-sonnet-4-5","stop_reason":null,"usage":{"input_tokens":10,"output_tokens":0}}}`)
	stop := "end_turn"
	for i, b := range blocks {
		if b.name != "" {
			stop = "tool_use"
			event("content_block_start", `{"type":"content_block_start","index":%d,"content_block":{"type":"tool_use","id":"%s","name":"%s","input":{}}}`, i, b.id, b.name)
			if b.input != "" {
				event("content_block_delta", `{"type":"content_block_delta","index":%d,"delta":{"type":"input_json_delta","partial_json":%s}}`, i, jsonString(b.input))
			}
		} else {
			event("content_block_start", `{"type":"content_block_start","index":%d,"content_block":{"type":"text","text":""}}`, i)
			event("content_block_delta", `{"type":"content_block_delta","index":%d,"delta":{"type":"text_delta","text":%s}}`, i, jsonString(b.text))
		}
		event("content_block_stop", `{"type":"content_block_stop","index":%d}`, i)
	}
	event("message_delta", `{"type":"message_delta","delta":{"stop_reason":"%s","stop_sequence":null},"usage":{"output_tokens":5}}`, stop)
	event("message_stop", `{"type":"message_stop"}`)
	return sb.String()
}

type weatherInput struct {
	City string `json:"city" jsonschema:"required,description=City name"`
}

// weatherServer is an in-process tool server with get_weather, a
// delete_city tool and a forecast prompt.
func weatherServer() *mcp.LocalServer {
	srv := mcp.NewLocalServer("weather")
	mcp.AddTool(srv, "get_weather", "Current weather for a city", func(_ context.Context, in weatherInput) (string, error) {
		if in.City == "" {
			return "", errors.New("city is required")
		}
		return "sunny, 21C in " + in.City, nil
	})
	mcp.AddTool(srv, "delete_city", "Remove a city", func(context.Context, weatherInput) (string, error) {
		return "deleted", nil
	})
	srv.AddPrompt("forecast", "Multi-day forecast", []mcp.PromptArgument{
		{Name: "days", Description: "Number of days"},
		{Name: "city", Description: "City name", Required: true},
	}, func(_ context.Context, args map[string]string) (string, error) {
		return "Forecast for " + args["city"], nil
	})
	return srv
}

// connectWeather connects a Client to a fresh weatherServer.
func connectWeather(t *testing.T, streamer MessageStreamer, opts ...Option) *Client {
	t.Helper()
	opts = append([]Option{WithStreamer(streamer), WithRetry(3, 0)}, opts...)
	c, err := ConnectTransport(context.Background(), "weather", weatherServer().Transport(nil), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// flakyTransport fails the first failCalls tool calls and, when failList
// is set, every tool listing after the first.
type flakyTransport struct {
	mcp.Transport
	mu        sync.Mutex
	failCalls int
	calls     int
	failList  bool
	lists     int
}

func (f *flakyTransport) ListTools(ctx context.Context) ([]mcp.ToolInfo, error) {
	f.mu.Lock()
	f.lists++
	fail := f.failList && f.lists > 1
	f.mu.Unlock()
	if fail {
		return nil, errors.New("server went away")
	}
	return f.Transport.ListTools(ctx)
}

func (f *flakyTransport) CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallResult, error) {
	f.mu.Lock()
	f.calls++
	fail := f.calls <= f.failCalls
	f.mu.Unlock()
	if fail {
		return nil, errors.New("broken pipe")
	}
	return f.Transport.CallTool(ctx, name, args)
}

// eventLog collects events from an EventHandler.
type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) handle(e Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) types() []EventType {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]EventType, 0, len(l.events))
	for _, e := range l.events {
		if e.Type() == EventStream {
			continue
		}
		out = append(out, e.Type())
	}
	return out
}
