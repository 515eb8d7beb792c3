package session_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/armatrix/mcp-bridge-go/conversation"
	"github.com/armatrix/mcp-bridge-go/session"
)

func makeHistory() conversation.History {
	return conversation.History{
		conversation.UserText("weather in Paris?"),
		conversation.NewTurn(conversation.RoleAssistant,
			conversation.NewToolUse("toolu_1", "get_weather", []byte(`{"city":"Paris"}`))),
		conversation.NewTurn(conversation.RoleUser,
			conversation.ToolResultBlock{ToolUseID: "toolu_1", Content: "sunny"}),
		conversation.AssistantText("It is sunny in Paris."),
	}
}

func TestMemoryStore_SaveAndLoad(t *testing.T) {
	store := session.NewMemoryStore()
	ctx := context.Background()

	doc := session.NewDocument(makeHistory())
	require.NoError(t, store.Save(ctx, "paris", doc))

	loaded, err := store.Load(ctx, "paris")
	require.NoError(t, err)
	assert.Equal(t, doc, loaded)
}

func TestMemoryStore_LoadNotFound(t *testing.T) {
	store := session.NewMemoryStore()
	_, err := store.Load(context.Background(), "nonexistent")
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestMemoryStore_SaveEmptyName(t *testing.T) {
	store := session.NewMemoryStore()
	err := store.Save(context.Background(), "", session.Document{})
	assert.ErrorIs(t, err, session.ErrInvalidName)
}

func TestMemoryStore_Isolation(t *testing.T) {
	store := session.NewMemoryStore()
	ctx := context.Background()

	h := makeHistory()
	require.NoError(t, store.Save(ctx, "doc", session.NewDocument(h)))

	h[0] = conversation.UserText("mutated")

	loaded, err := store.Load(ctx, "doc")
	require.NoError(t, err)
	assert.Equal(t, conversation.UserText("weather in Paris?"), loaded.History[0])

	loaded.History[0] = conversation.UserText("mutated again")
	again, err := store.Load(ctx, "doc")
	require.NoError(t, err)
	assert.Equal(t, conversation.UserText("weather in Paris?"), again.History[0])
}

func TestMemoryStore_List(t *testing.T) {
	store := session.NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "b", session.Document{}))
	require.NoError(t, store.Save(ctx, "a", session.Document{}))

	names, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, names)
}

func TestMemoryStore_Concurrent(t *testing.T) {
	store := session.NewMemoryStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			name := fmt.Sprintf("doc-%d", i)
			_ = store.Save(ctx, name, session.NewDocument(makeHistory()))
			_, _ = store.Load(ctx, name)
		}()
	}
	wg.Wait()

	names, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, names, 20)
}
