package mcp

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// uvLocations are checked in order when a config names the bare "uv"
// command, before falling back to PATH.
var uvLocations = []string{
	"/usr/local/bin/uv",
	"/opt/homebrew/bin/uv",
	"~/.cargo/bin/uv",
}

// StdioTransport runs an MCP server as a subprocess and talks to it over the
// subprocess's stdin/stdout.
type StdioTransport struct {
	sessionTransport
	cfg ServerConfig
}

var _ Transport = (*StdioTransport)(nil)

// NewStdioTransport creates a StdioTransport for cfg. The subprocess is not
// started until Connect.
func NewStdioTransport(cfg ServerConfig, logger *slog.Logger) (*StdioTransport, error) {
	if cfg.Command == "" {
		return nil, fmt.Errorf("%w: stdio transport requires command", ErrInvalidConfig)
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("server", cfg.Name, "command", cfg.Command)

	t := &StdioTransport{cfg: cfg}
	t.sessionTransport = newSessionTransport(logger, t.dial)
	return t, nil
}

func (t *StdioTransport) dial(_ context.Context) (sdk.Transport, error) {
	command, err := resolveCommand(t.cfg.Command)
	if err != nil {
		return nil, err
	}

	// The subprocess outlives the connect context, so it is not bound to it.
	cmd := exec.Command(command, t.cfg.Args...)
	cmd.Env = mergeEnv(os.Environ(), t.cfg.Env)
	cmd.Stderr = &stderrLog{logger: t.logger}

	t.logger.Debug("starting MCP subprocess", "path", command, "args", t.cfg.Args)
	return &sdk.CommandTransport{Command: cmd}, nil
}

// resolveCommand finds the executable for command. The bare name "uv" is
// looked up in the usual install locations first.
func resolveCommand(command string) (string, error) {
	if command == "uv" {
		for _, p := range uvLocations {
			p = expandHome(p)
			if info, err := os.Stat(p); err == nil && !info.IsDir() {
				return p, nil
			}
		}
	}
	path, err := exec.LookPath(command)
	if err != nil {
		if command == "uv" {
			return "", fmt.Errorf("%w: could not find the %q executable; install uv and ensure it is in PATH (checked %v)",
				ErrCommandNotFound, command, uvLocations)
		}
		return "", fmt.Errorf("%w: %s: %w", ErrCommandNotFound, command, err)
	}
	return path, nil
}

func expandHome(p string) string {
	if len(p) < 2 || p[:2] != "~/" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, p[2:])
}

// mergeEnv overlays extra on base. Variables in extra replace those of the
// same name in base; new ones are appended in sorted order.
func mergeEnv(base []string, extra map[string]string) []string {
	if len(extra) == 0 {
		return base
	}
	out := make([]string, 0, len(base)+len(extra))
	for _, kv := range base {
		name := kv
		if i := strings.IndexByte(kv, '='); i >= 0 {
			name = kv[:i]
		}
		if _, ok := extra[name]; ok {
			continue
		}
		out = append(out, kv)
	}
	for _, k := range slices.Sorted(maps.Keys(extra)) {
		out = append(out, k+"="+extra[k])
	}
	return out
}

// stderrLog logs each complete line the subprocess writes to stderr.
// Stderr is not part of the protocol.
type stderrLog struct {
	logger *slog.Logger

	mu  sync.Mutex
	buf []byte
}

func (w *stderrLog) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		if line := bytes.TrimRight(w.buf[:i], "\r"); len(line) > 0 {
			w.logger.Debug("MCP subprocess stderr", "line", string(line))
		}
		w.buf = w.buf[i+1:]
	}
	return len(p), nil
}
