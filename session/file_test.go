package session_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/armatrix/mcp-bridge-go/conversation"
	"github.com/armatrix/mcp-bridge-go/session"
)

func tempDir(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "sessions")
}

func TestFileStore_NewCreatesDir(t *testing.T) {
	dir := tempDir(t)
	store, err := session.NewFileStore(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, store.Dir())

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestFileStore_NewErrors(t *testing.T) {
	store, err := session.NewFileStore("")
	require.NoError(t, err)
	assert.Empty(t, store.Dir())

	file := filepath.Join(t.TempDir(), "plain")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	_, err = session.NewFileStore(filepath.Join(file, "sessions"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create session dir")
}

func TestFileStore_SaveAndLoad(t *testing.T) {
	store, err := session.NewFileStore(tempDir(t))
	require.NoError(t, err)
	ctx := context.Background()

	doc := session.NewDocument(makeHistory())
	require.NoError(t, store.Save(ctx, "paris.json", doc))

	loaded, err := store.Load(ctx, "paris.json")
	require.NoError(t, err)
	assert.Equal(t, doc.Timestamp, loaded.Timestamp)
	assert.Equal(t, doc.History, loaded.History)
	require.NoError(t, loaded.History.Validate())
}

func TestFileStore_DocumentFormat(t *testing.T) {
	dir := tempDir(t)
	store, err := session.NewFileStore(dir)
	require.NoError(t, err)

	at := time.Date(2024, 3, 9, 14, 5, 7, 123456000, time.Local)
	doc := session.NewDocumentAt(conversation.History{conversation.UserText("hi")}, at)
	require.NoError(t, store.Save(context.Background(), "doc.json", doc))

	raw, err := os.ReadFile(filepath.Join(dir, "doc.json"))
	require.NoError(t, err)

	want := "{\n" +
		"  \"history\": [\n" +
		"    {\n" +
		"      \"role\": \"user\",\n" +
		"      \"content\": \"hi\"\n" +
		"    }\n" +
		"  ],\n" +
		"  \"timestamp\": \"2024-03-09 14:05:07.123456\"\n" +
		"}"
	assert.Equal(t, want, string(raw))

	parsed, err := doc.Time()
	require.NoError(t, err)
	assert.True(t, at.Equal(parsed))
}

func TestFileStore_EmptyHistoryIsArray(t *testing.T) {
	dir := tempDir(t)
	store, err := session.NewFileStore(dir)
	require.NoError(t, err)

	require.NoError(t, store.Save(context.Background(), "empty.json", session.Document{Timestamp: "x"}))

	raw, err := os.ReadFile(filepath.Join(dir, "empty.json"))
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	assert.Equal(t, []any{}, m["history"])
}

func TestFileStore_LoadForeignDocument(t *testing.T) {
	dir := tempDir(t)
	store, err := session.NewFileStore(dir)
	require.NoError(t, err)

	content := `{
  "history": [
    {"role": "user", "content": "weather?"},
    {"role": "assistant", "content": [
      {"type": "text", "text": "Checking."},
      {"type": "tool_use", "id": "t1", "name": "get_weather", "input": {"city": "Paris"}}
    ]},
    {"role": "user", "content": [
      {"type": "tool_result", "tool_use_id": "t1", "content": "sunny"}
    ]}
  ],
  "timestamp": "2024-01-02 03:04:05"
}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "old.json"), []byte(content), 0o644))

	doc, err := store.Load(context.Background(), "old.json")
	require.NoError(t, err)
	assert.Len(t, doc.History, 3)
	assert.Equal(t, "2024-01-02 03:04:05", doc.Timestamp)

	ts, err := doc.Time()
	require.NoError(t, err)
	assert.Equal(t, 2024, ts.Year())
}

func TestFileStore_LoadUnknownBlockType(t *testing.T) {
	dir := tempDir(t)
	store, err := session.NewFileStore(dir)
	require.NoError(t, err)

	content := `{"history":[{"role":"user","content":[{"type":"image","source":{}}]}],"timestamp":""}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.json"), []byte(content), 0o644))

	_, err = store.Load(context.Background(), "bad.json")
	assert.ErrorIs(t, err, session.ErrMalformed)
	assert.Contains(t, err.Error(), "unknown block type")
}

func TestFileStore_LoadNotFound(t *testing.T) {
	store, err := session.NewFileStore(tempDir(t))
	require.NoError(t, err)

	_, err = store.Load(context.Background(), "nonexistent.json")
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestFileStore_RejectsEscapingNames(t *testing.T) {
	store, err := session.NewFileStore(tempDir(t))
	require.NoError(t, err)
	ctx := context.Background()

	for _, name := range []string{"", "../escape.json", "/etc/passwd"} {
		err := store.Save(ctx, name, session.Document{})
		assert.ErrorIs(t, err, session.ErrInvalidName, name)
	}
}

func TestFileStore_UnrestrictedUsesPlainPaths(t *testing.T) {
	store, err := session.NewFileStore("")
	require.NoError(t, err)
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "conv.json")
	require.NoError(t, store.Save(ctx, path, session.NewDocument(makeHistory())))

	doc, err := store.Load(ctx, path)
	require.NoError(t, err)
	assert.Len(t, doc.History, 4)
}

func TestFileStore_Delete(t *testing.T) {
	store, err := session.NewFileStore(tempDir(t))
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "del.json", session.Document{}))
	require.NoError(t, store.Delete(ctx, "del.json"))

	_, err = store.Load(ctx, "del.json")
	assert.ErrorIs(t, err, session.ErrNotFound)

	assert.ErrorIs(t, store.Delete(ctx, "del.json"), session.ErrNotFound)
}

func TestFileStore_ListSkipsNonJSON(t *testing.T) {
	dir := tempDir(t)
	store, err := session.NewFileStore(dir)
	require.NoError(t, err)
	ctx := context.Background()

	names, err := store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, names)

	require.NoError(t, store.Save(ctx, "b.json", session.Document{}))
	require.NoError(t, store.Save(ctx, "a.json", session.Document{}))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "readme.txt"), []byte("not json"), 0o644))

	names, err = store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.json", "b.json"}, names)
}
