package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	bridge "github.com/armatrix/mcp-bridge-go"
	"github.com/armatrix/mcp-bridge-go/mcp"
	"github.com/armatrix/mcp-bridge-go/session"
)

// fakeSession records calls and answers with canned values.
type fakeSession struct {
	mu      sync.Mutex
	queries []string
	cleared int
	saved   []string
	loadErr error
	closed  bool
	queryFn func(ctx context.Context, text string) bridge.Result
}

func (f *fakeSession) ID() string { return "fake" }

func (f *fakeSession) Query(ctx context.Context, text string) bridge.Result {
	f.mu.Lock()
	f.queries = append(f.queries, text)
	fn := f.queryFn
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx, text)
	}
	return bridge.Result{Text: "answer to " + text}
}

func (f *fakeSession) Tools() []bridge.ToolDescriptor {
	return []bridge.ToolDescriptor{{
		Name:        "get_weather",
		Description: "Current weather",
		InputSchema: json.RawMessage(`{"type":"object","properties":{"city":{"type":"string"}}}`),
	}}
}

func (f *fakeSession) Prompts() []bridge.PromptDescriptor {
	return []bridge.PromptDescriptor{{
		Name:        "forecast",
		Description: "Multi-day forecast",
		Parameters:  map[string]bridge.PromptParameter{"city": {Type: "string", Required: true}},
	}}
}

func (f *fakeSession) FetchPrompts(context.Context) []bridge.PromptDescriptor { return f.Prompts() }

func (f *fakeSession) PromptDetails(name string) (*bridge.PromptDetails, error) {
	if name != "forecast" {
		return nil, fmt.Errorf("%w: prompt %s", bridge.ErrNotFound, name)
	}
	return &bridge.PromptDetails{
		Name:        "forecast",
		Description: "Multi-day forecast",
		Content:     "Please provide the required parameters: city",
		Parameters:  map[string]bridge.PromptParameter{"city": {Type: "string", Required: true}},
	}, nil
}

func (f *fakeSession) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared++
}

func (f *fakeSession) Save(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, name)
	return nil
}

func (f *fakeSession) Load(context.Context, string) (string, error) {
	if f.loadErr != nil {
		return "", f.loadErr
	}
	return "2026-10-18 12:00:00.000000", nil
}

func (f *fakeSession) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeSession) calls() (queries []string, cleared int, saved []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.queries...), f.cleared, append([]string(nil), f.saved...)
}

func (f *fakeSession) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func startServer(t *testing.T, factory SessionFactory) (*Server, *httptest.Server) {
	t.Helper()
	srv := New(factory, nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": []string{"http://example.com"}})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var m map[string]any
	require.NoError(t, conn.ReadJSON(&m))
	return m
}

func sendFrame(t *testing.T, conn *websocket.Conn, frame string) map[string]any {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(frame)))
	return readFrame(t, conn)
}

func fakeFactory(s *fakeSession) SessionFactory {
	return func(context.Context) (Session, error) { return s, nil }
}

func TestHealth(t *testing.T) {
	_, ts := startServer(t, fakeFactory(&fakeSession{}))

	resp, err := http.Get(ts.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	body, _ := io.ReadAll(resp.Body)
	assert.JSONEq(t, `{"message":"WebSocket server is running"}`, string(body))
}

func TestCORSPreflight(t *testing.T) {
	_, ts := startServer(t, fakeFactory(&fakeSession{}))

	req, _ := http.NewRequest(http.MethodOptions, ts.URL+"/ws", nil)
	req.Header.Set("Origin", "http://example.com")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestSchema(t *testing.T) {
	_, ts := startServer(t, fakeFactory(&fakeSession{}))

	resp, err := http.Get(ts.URL + "/schema")
	require.NoError(t, err)
	defer resp.Body.Close()

	var doc map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&doc))
	props, ok := doc["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "inbound")
	assert.Contains(t, props, "outbound")
	assert.Contains(t, props, "initialization")
}

func TestWS_Initialization(t *testing.T) {
	srv, ts := startServer(t, fakeFactory(&fakeSession{}))
	conn := dial(t, ts)

	init := readFrame(t, conn)
	assert.Equal(t, "initialization", init["type"])
	data := init["data"].(map[string]any)

	tools := data["tools"].([]any)
	require.Len(t, tools, 1)
	tool := tools[0].(map[string]any)
	assert.Equal(t, "get_weather", tool["name"])
	assert.Equal(t, "Current weather", tool["description"])
	assert.Contains(t, tool, "inputSchema")

	prompts := data["prompts"].([]any)
	require.Len(t, prompts, 1)
	assert.Equal(t, map[string]any{"name": "forecast", "description": "Multi-day forecast", "parameters": map[string]any{}}, prompts[0])

	assert.Eventually(t, func() bool { return srv.Registry().Len() == 1 }, time.Second, 10*time.Millisecond)
}

func TestWS_Frames(t *testing.T) {
	fs := &fakeSession{}
	_, ts := startServer(t, fakeFactory(fs))
	conn := dial(t, ts)
	readFrame(t, conn)

	tests := []struct {
		name  string
		frame string
		want  map[string]any
	}{
		{"query", `{"type":"query","content":"hi"}`, map[string]any{"type": "response", "data": "answer to hi"}},
		{"clear", `{"type":"clear"}`, map[string]any{"type": "cleared"}},
		{"save", `{"type":"save","filename":"chat.json"}`, map[string]any{"type": "saved", "filename": "chat.json"}},
		{"load", `{"type":"load","filename":"chat.json"}`, map[string]any{"type": "loaded", "filename": "chat.json"}},
		{"malformed", `{not json`, map[string]any{"type": "error", "data": "Invalid message format"}},
		{"unknown type", `{"type":"dance"}`, map[string]any{"type": "error", "data": `Error processing message: unknown message type "dance"`}},
		{"missing content", `{"type":"query"}`, map[string]any{"type": "error", "data": `Error processing message: missing field "content"`}},
		{"unknown prompt", `{"type":"get_prompt","name":"nope"}`, map[string]any{"type": "error", "data": "Error fetching prompt: Prompt nope not found"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sendFrame(t, conn, tt.frame))
		})
	}

	queries, cleared, saved := fs.calls()
	assert.Equal(t, []string{"hi"}, queries)
	assert.Equal(t, 1, cleared)
	assert.Equal(t, []string{"chat.json"}, saved)
}

func TestWS_GetPrompt(t *testing.T) {
	_, ts := startServer(t, fakeFactory(&fakeSession{}))
	conn := dial(t, ts)
	readFrame(t, conn)

	got := sendFrame(t, conn, `{"type":"get_prompt","name":"forecast"}`)

	assert.Equal(t, "prompt", got["type"])
	data := got["data"].(map[string]any)
	assert.Equal(t, "forecast", data["name"])
	assert.Equal(t, "Please provide the required parameters: city", data["content"])
	assert.Equal(t, map[string]any{"city": map[string]any{"type": "string", "description": "", "required": true}}, data["parameters"])
}

func TestWS_LoadError(t *testing.T) {
	fs := &fakeSession{loadErr: session.ErrNotFound}
	_, ts := startServer(t, fakeFactory(fs))
	conn := dial(t, ts)
	readFrame(t, conn)

	got := sendFrame(t, conn, `{"type":"load","filename":"missing.json"}`)
	assert.Equal(t, "error", got["type"])
	assert.Equal(t, "Error processing message: "+session.ErrNotFound.Error(), got["data"])
}

func TestWS_InitializationError(t *testing.T) {
	_, ts := startServer(t, func(context.Context) (Session, error) {
		return nil, errors.New("no server")
	})
	conn := dial(t, ts)

	got := readFrame(t, conn)
	assert.Equal(t, map[string]any{"type": "error", "data": "Error initializing client: no server"}, got)

	_, _, err := conn.ReadMessage()
	assert.Error(t, err, "connection is closed after a setup failure")
}

func TestWS_DisconnectClosesSession(t *testing.T) {
	fs := &fakeSession{}
	srv, ts := startServer(t, fakeFactory(fs))
	conn := dial(t, ts)
	readFrame(t, conn)

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	conn.Close()

	assert.Eventually(t, fs.isClosed, time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool { return srv.Registry().Len() == 0 }, time.Second, 10*time.Millisecond)
}

func TestWS_DisconnectCancelsQuery(t *testing.T) {
	started := make(chan struct{})
	cancelled := make(chan struct{})
	fs := &fakeSession{queryFn: func(ctx context.Context, _ string) bridge.Result {
		close(started)
		<-ctx.Done()
		close(cancelled)
		return bridge.Result{Text: ctx.Err().Error(), Err: ctx.Err()}
	}}
	_, ts := startServer(t, fakeFactory(fs))
	conn := dial(t, ts)
	readFrame(t, conn)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"query","content":"slow"}`)))
	<-started
	conn.Close()

	select {
	case <-cancelled:
	case <-time.After(5 * time.Second):
		t.Fatal("query was not cancelled on disconnect")
	}
}

func TestWS_SessionsAreIndependent(t *testing.T) {
	var mu sync.Mutex
	var sessions []*fakeSession
	srv, ts := startServer(t, func(context.Context) (Session, error) {
		mu.Lock()
		defer mu.Unlock()
		s := &fakeSession{}
		sessions = append(sessions, s)
		return s, nil
	})

	a := dial(t, ts)
	readFrame(t, a)
	b := dial(t, ts)
	readFrame(t, b)

	sendFrame(t, a, `{"type":"query","content":"from a"}`)
	sendFrame(t, b, `{"type":"clear"}`)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, sessions, 2)
	qa, ca, _ := sessions[0].calls()
	qb, cb, _ := sessions[1].calls()
	assert.Equal(t, []string{"from a"}, qa)
	assert.Zero(t, ca)
	assert.Empty(t, qb)
	assert.Equal(t, 1, cb)
	assert.Len(t, srv.Registry().IDs(), 2)
}

// textStreamer answers every model call with one text block.
type textStreamer struct{ text string }

func (s textStreamer) NewStreaming(context.Context, anthropic.MessageNewParams) *ssestream.Stream[anthropic.MessageStreamEventUnion] {
	text, _ := json.Marshal(s.text)
	body := strings.Join([]string{
		`event: message_start` + "\n" + `data: {"type":"message_start","message":{"id":"msg_1","type":"message","role":"assistant","content":[],"model":"claude-sonnet-4-5","stop_reason":null,"usage":{"input_tokens":3,"output_tokens":0}}}`,
		`event: content_block_start` + "\n" + `data: {"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}`,
		`event: content_block_delta` + "\n" + `data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":` + string(text) + `}}`,
		`event: content_block_stop` + "\n" + `data: {"type":"content_block_stop","index":0}`,
		`event: message_delta` + "\n" + `data: {"type":"message_delta","delta":{"stop_reason":"end_turn","stop_sequence":null},"usage":{"output_tokens":2}}`,
		`event: message_stop` + "\n" + `data: {"type":"message_stop"}`,
	}, "\n\n") + "\n\n"
	resp := &http.Response{StatusCode: 200, Body: io.NopCloser(strings.NewReader(body)), Header: http.Header{}}
	return ssestream.NewStream[anthropic.MessageStreamEventUnion](ssestream.NewDecoder(resp), nil)
}

func TestWS_EndToEndWithLocalServer(t *testing.T) {
	local := mcp.NewLocalServer("echo")
	mcp.AddTool(local, "echo", "Echo the input", func(_ context.Context, in struct {
		Text string `json:"text"`
	}) (string, error) {
		return in.Text, nil
	})
	store, err := session.NewFileStore(t.TempDir())
	require.NoError(t, err)

	_, ts := startServer(t, func(ctx context.Context) (Session, error) {
		return bridge.ConnectTransport(ctx, "echo", local.Transport(nil),
			bridge.WithStreamer(textStreamer{text: "hello there"}),
			bridge.WithStore(store),
		)
	})
	conn := dial(t, ts)

	init := readFrame(t, conn)
	tools := init["data"].(map[string]any)["tools"].([]any)
	require.Len(t, tools, 1)
	assert.Equal(t, "echo", tools[0].(map[string]any)["name"])

	assert.Equal(t, map[string]any{"type": "response", "data": "hello there"},
		sendFrame(t, conn, `{"type":"query","content":"hi"}`))
	assert.Equal(t, map[string]any{"type": "saved", "filename": "chat"},
		sendFrame(t, conn, `{"type":"save","filename":"chat"}`))
	assert.Equal(t, map[string]any{"type": "loaded", "filename": "chat"},
		sendFrame(t, conn, `{"type":"load","filename":"chat"}`))

	escape := sendFrame(t, conn, `{"type":"save","filename":"../escape"}`)
	assert.Equal(t, "error", escape["type"])
}
