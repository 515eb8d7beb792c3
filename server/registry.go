package server

import (
	"context"
	"sort"
	"sync"

	bridge "github.com/armatrix/mcp-bridge-go"
)

// Session is the part of *bridge.Client a WebSocket connection drives.
type Session interface {
	ID() string
	Query(ctx context.Context, text string) bridge.Result
	Tools() []bridge.ToolDescriptor
	Prompts() []bridge.PromptDescriptor
	FetchPrompts(ctx context.Context) []bridge.PromptDescriptor
	PromptDetails(name string) (*bridge.PromptDetails, error)
	Clear()
	Save(ctx context.Context, name string) error
	Load(ctx context.Context, name string) (string, error)
	Close() error
}

var _ Session = (*bridge.Client)(nil)

// Registry tracks the live session of every WebSocket connection, keyed by
// connection ID. It is safe for concurrent use.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]Session
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]Session)}
}

// Add registers s under id.
func (r *Registry) Add(id string, s Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[id] = s
}

// Get returns the session for id.
func (r *Registry) Get(id string) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Remove unregisters id and returns its session, if any.
func (r *Registry) Remove(id string) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	return s, ok
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// IDs returns the connection IDs in sorted order.
func (r *Registry) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// CloseAll closes and removes every session.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]Session)
	r.mu.Unlock()

	for _, s := range sessions {
		_ = s.Close()
	}
}
