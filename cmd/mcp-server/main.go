// Command mcp-server serves MCP-backed Claude sessions over WebSocket. Each
// connection on /ws gets its own session with the configured tool server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/anthropics/anthropic-sdk-go"

	bridge "github.com/armatrix/mcp-bridge-go"
	"github.com/armatrix/mcp-bridge-go/internal/config"
	"github.com/armatrix/mcp-bridge-go/server"
	"github.com/armatrix/mcp-bridge-go/session"
)

func main() {
	var (
		addr       = flag.String("addr", "0.0.0.0:8000", "Listen address")
		target     = flag.String("config", "claude_desktop_config.json", "Server script or config file to connect each session to")
		serverName = flag.String("server", "", "Server entry to use from the config file (default: first entry)")
		model      = flag.String("model", "", "Claude model (overrides settings)")
		dataDir    = flag.String("data-dir", "conversations", "Directory for saved conversations")
		logLevel   = flag.String("log-level", "", "Log level: trace, debug, info, warn, error (default info, or $LOG_LEVEL)")
		logFormat  = flag.String("log-format", "", "Log format: text or json")
	)
	flag.Parse()

	if err := run(*addr, *target, *serverName, *model, *dataDir, *logLevel, *logFormat); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(addr, target, serverName, model, dataDir, logLevel, logFormat string) error {
	if err := config.LoadDotEnv(".env"); err != nil {
		return err
	}

	cwd, _ := os.Getwd()
	settingPaths := config.DefaultSettingsPaths(cwd)
	settings, err := config.LoadSettings(settingPaths...)
	if err != nil {
		return err
	}
	level, err := config.ResolveLogLevel(logLevel, settings)
	if err != nil {
		return err
	}
	if logFormat == "" {
		logFormat = settings.LogFormat
	}
	logger := config.NewLogger(os.Stderr, level, logFormat)

	store, err := session.NewFileStore(filepath.Clean(dataDir))
	if err != nil {
		return fmt.Errorf("conversation store: %w", err)
	}

	opts := []bridge.Option{
		bridge.WithSettingSources(settingPaths...),
		bridge.WithServerName(serverName),
		bridge.WithStore(store),
		bridge.WithLogger(logger),
	}
	if model != "" {
		opts = append(opts, bridge.WithModel(anthropic.Model(model)))
	}

	// Fail at startup rather than on the first connection.
	if _, err := bridge.ResolveTarget(target, serverName); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := server.New(server.ConnectFactory(target, opts...), logger)
	if err := srv.ListenAndServe(ctx, addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	logger.Info("server stopped")
	return nil
}
