package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// HTTPTransport talks to a remote MCP server over streamable HTTP, or over
// server-sent events when the config selects TransportSSE.
type HTTPTransport struct {
	sessionTransport
	cfg    ServerConfig
	client *http.Client
}

var _ Transport = (*HTTPTransport)(nil)

// NewHTTPTransport creates an HTTPTransport for cfg. Returns ErrInvalidConfig
// if URL is empty.
func NewHTTPTransport(cfg ServerConfig, logger *slog.Logger) (*HTTPTransport, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("%w: HTTP transport requires URL", ErrInvalidConfig)
	}
	if cfg.Transport == "" {
		cfg.Transport = TransportStreamableHTTP
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("server", cfg.Name, "url", cfg.URL, "transport", string(cfg.Transport))

	client := http.DefaultClient
	if len(cfg.Headers) > 0 {
		client = &http.Client{Transport: &headerTransport{headers: cfg.Headers, base: http.DefaultTransport}}
	}

	t := &HTTPTransport{cfg: cfg, client: client}
	t.sessionTransport = newSessionTransport(logger, t.dial)
	return t, nil
}

func (t *HTTPTransport) dial(_ context.Context) (sdk.Transport, error) {
	if t.cfg.Transport == TransportSSE {
		return &sdk.SSEClientTransport{Endpoint: t.cfg.URL, HTTPClient: t.client}, nil
	}
	return &sdk.StreamableClientTransport{Endpoint: t.cfg.URL, HTTPClient: t.client}, nil
}

// headerTransport adds fixed headers to every request.
type headerTransport struct {
	headers map[string]string
	base    http.RoundTripper
}

func (h *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	for k, v := range h.headers {
		req.Header.Set(k, v)
	}
	return h.base.RoundTrip(req)
}
