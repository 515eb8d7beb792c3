// Command mcp-client connects to an MCP tool server and chats with Claude
// in the terminal, letting the model call the server's tools.
//
// Usage:
//
//	mcp-client [flags] <server_script.py|server_script.js|config.json>
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/shopspring/decimal"

	bridge "github.com/armatrix/mcp-bridge-go"
	"github.com/armatrix/mcp-bridge-go/internal/config"
	"github.com/armatrix/mcp-bridge-go/internal/console"
)

func main() {
	var (
		serverName = flag.String("server", "", "Server entry to use from a config file (default: first entry)")
		model      = flag.String("model", "", "Claude model (overrides settings)")
		system     = flag.String("system-prompt", "", "System prompt text or preset name (overrides settings)")
		maxTokens  = flag.Int("max-tokens", 0, "Output token cap per model call (overrides settings)")
		maxRounds  = flag.Int("max-rounds", 0, "Model calls per query; 0 for unlimited (overrides settings)")
		budget     = flag.Float64("max-budget-usd", 0, "Session spend cap in USD; 0 for unlimited (overrides settings)")
		logLevel   = flag.String("log-level", "", "Log level: trace, debug, info, warn, error (default info, or $LOG_LEVEL)")
		logFormat  = flag.String("log-format", "", "Log format: text or json")
	)
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: mcp-client [flags] <path_to_server_script_or_config>")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(1)
	}

	if err := config.LoadDotEnv(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	cwd, _ := os.Getwd()
	settingPaths := config.DefaultSettingsPaths(cwd)
	settings, err := config.LoadSettings(settingPaths...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	level, err := config.ResolveLogLevel(*logLevel, settings)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	format := *logFormat
	if format == "" {
		format = settings.LogFormat
	}
	logger := config.NewLogger(os.Stderr, level, format)

	opts := []bridge.Option{
		bridge.WithSettingSources(settingPaths...),
		bridge.WithServerName(*serverName),
		bridge.WithLogger(logger),
	}
	if *model != "" {
		opts = append(opts, bridge.WithModel(anthropic.Model(*model)))
	}
	if *system != "" {
		opts = append(opts, bridge.WithSystemPrompt(*system))
	}
	if *maxTokens > 0 {
		opts = append(opts, bridge.WithMaxTokens(*maxTokens))
	}
	if *maxRounds > 0 {
		opts = append(opts, bridge.WithMaxRounds(*maxRounds))
	}
	if *budget > 0 {
		opts = append(opts, bridge.WithBudget(decimal.NewFromFloat(*budget)))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	client, err := bridge.Connect(ctx, flag.Arg(0), opts...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer client.Close()

	if err := console.New(client, os.Stdin, os.Stdout, logger).Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error("console stopped", "error", err)
	}
}
