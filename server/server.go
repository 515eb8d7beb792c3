// Package server exposes bridge sessions over WebSocket. Each connection
// gets its own session, created when the connection opens and closed when
// it ends.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	bridge "github.com/armatrix/mcp-bridge-go"
	"github.com/armatrix/mcp-bridge-go/internal/schema"
)

// SessionFactory creates the session for a new connection.
type SessionFactory func(ctx context.Context) (Session, error)

// ConnectFactory returns a SessionFactory that calls bridge.Connect with the
// given target and options.
func ConnectFactory(target string, opts ...bridge.Option) SessionFactory {
	return func(ctx context.Context) (Session, error) {
		return bridge.Connect(ctx, target, opts...)
	}
}

// Server serves the WebSocket façade.
type Server struct {
	factory  SessionFactory
	registry *Registry
	logger   *slog.Logger
	upgrader websocket.Upgrader
	server   *http.Server
}

// New creates a Server. A nil logger uses slog.Default().
func New(factory SessionFactory, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		factory:  factory,
		registry: NewRegistry(),
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Registry returns the live sessions.
func (s *Server) Registry() *Registry { return s.registry }

// Handler returns the HTTP handler with all routes and middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /schema", s.handleSchema)
	mux.HandleFunc("/ws", s.handleWS)
	return s.withLogging(withCORS(mux))
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down and
// closes every session.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("starting WebSocket server", "address", addr)
		errc <- s.server.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := s.server.Shutdown(shutdownCtx)
	s.registry.CloseAll()
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return err
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		s.logger.Info("incoming request", "method", r.Method, "url", r.URL.String())
		next.ServeHTTP(w, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "*")
		h.Set("Access-Control-Allow-Headers", "*")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("failed to write JSON response", "error", err)
	}
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	s.logger.Info("health check endpoint called")
	s.writeJSON(w, map[string]string{"message": "WebSocket server is running"})
}

func (s *Server) handleSchema(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, schema.Reflect(&FrameSchemas{}))
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	id := bridge.NewID()
	logger := s.logger.With("conn_id", id)
	logger.Info("websocket connection accepted", "remote", r.RemoteAddr)

	c := &connection{
		id:       id,
		conn:     conn,
		logger:   logger,
		registry: s.registry,
	}
	c.serve(r.Context(), s.factory)
}

// connection is one WebSocket client and its session.
type connection struct {
	id       string
	conn     *websocket.Conn
	logger   *slog.Logger
	registry *Registry
	session  Session
}

func (c *connection) serve(ctx context.Context, factory SessionFactory) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer c.conn.Close()

	sess, err := factory(ctx)
	if err != nil {
		c.logger.Error("error initializing client", "error", err)
		c.send(errorFrame(fmt.Sprintf("Error initializing client: %v", err)))
		return
	}
	c.session = sess
	c.registry.Add(c.id, sess)
	defer func() {
		c.registry.Remove(c.id)
		if err := sess.Close(); err != nil {
			c.logger.Error("error cleaning up client", "error", err)
			return
		}
		c.logger.Info("cleaned up client")
	}()

	if err := c.send(initFrame(sess.Tools(), sess.Prompts())); err != nil {
		return
	}
	c.logger.Info("sent initialization data")

	frames := c.readLoop(ctx, cancel)
	for data := range frames {
		if err := c.send(c.handle(ctx, data)); err != nil {
			return
		}
	}
}

// readLoop reads messages until the connection fails, then cancels the
// session context so an in-flight query stops.
func (c *connection) readLoop(ctx context.Context, cancel context.CancelFunc) <-chan []byte {
	frames := make(chan []byte)
	go func() {
		defer close(frames)
		defer cancel()
		for {
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					c.logger.Info("websocket disconnected")
				} else {
					c.logger.Warn("websocket read failed", "error", err)
				}
				return
			}
			select {
			case frames <- data:
			case <-ctx.Done():
				return
			}
		}
	}()
	return frames
}

// handle runs one inbound frame and returns the reply.
func (c *connection) handle(ctx context.Context, data []byte) OutboundFrame {
	f, err := decodeFrame(data)
	if errors.Is(err, bridge.ErrProtocolFormat) {
		c.logger.Error("invalid JSON from client", "error", err)
		return errorFrame("Invalid message format")
	}
	if err != nil {
		c.logger.Error("error processing message", "error", err)
		return errorFrame("Error processing message: " + err.Error())
	}
	c.logger.Info("received message", "type", f.Type)

	switch f.Type {
	case TypeQuery:
		c.logger.Debug("processing query", "query", f.Content)
		res := c.session.Query(ctx, f.Content)
		return OutboundFrame{Type: TypeResponse, Data: res.Text}

	case TypeGetPrompt:
		c.session.FetchPrompts(ctx)
		details, err := c.session.PromptDetails(f.Name)
		if errors.Is(err, bridge.ErrNotFound) {
			c.logger.Error("prompt not found", "name", f.Name)
			return errorFrame(fmt.Sprintf("Error fetching prompt: Prompt %s not found", f.Name))
		}
		if err != nil {
			c.logger.Error("error fetching prompt", "name", f.Name, "error", err)
			return errorFrame("Error fetching prompt: " + err.Error())
		}
		return OutboundFrame{Type: TypePrompt, Data: details}

	case TypeClear:
		c.session.Clear()
		return OutboundFrame{Type: TypeCleared}

	case TypeSave:
		if err := c.session.Save(ctx, f.Filename); err != nil {
			c.logger.Error("error saving conversation", "filename", f.Filename, "error", err)
			return errorFrame("Error processing message: " + err.Error())
		}
		return OutboundFrame{Type: TypeSaved, Filename: f.Filename}

	default: // TypeLoad
		if _, err := c.session.Load(ctx, f.Filename); err != nil {
			c.logger.Error("error loading conversation", "filename", f.Filename, "error", err)
			return errorFrame("Error processing message: " + err.Error())
		}
		return OutboundFrame{Type: TypeLoaded, Filename: f.Filename}
	}
}

func (c *connection) send(f OutboundFrame) error {
	if err := c.conn.WriteJSON(f); err != nil {
		c.logger.Warn("failed to send frame", "type", f.Type, "error", err)
		return err
	}
	return nil
}
