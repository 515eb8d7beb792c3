// Package console runs the interactive terminal loop over a bridge session.
package console

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	bridge "github.com/armatrix/mcp-bridge-go"
)

// Session is the part of *bridge.Client the console drives.
type Session interface {
	Query(ctx context.Context, text string) bridge.Result
	FetchTools(ctx context.Context) ([]bridge.ToolDescriptor, error)
	Clear()
	Save(ctx context.Context, name string) error
	Load(ctx context.Context, name string) (string, error)
	Usage() bridge.UsageSummary
}

var _ Session = (*bridge.Client)(nil)

var commandHelp = []string{
	"  quit - Exit the client",
	"  clear - Start a new conversation",
	"  save <filename> - Save conversation to file",
	"  load <filename> - Load conversation from file",
	"  usage - Show token usage and cost",
}

// Console reads lines from in, runs them as commands or queries, and writes
// the results to out.
type Console struct {
	session Session
	in      *bufio.Scanner
	out     io.Writer
	logger  *slog.Logger
}

// New creates a Console. A nil logger uses slog.Default().
func New(s Session, in io.Reader, out io.Writer, logger *slog.Logger) *Console {
	if logger == nil {
		logger = slog.Default()
	}
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &Console{session: s, in: sc, out: out, logger: logger}
}

// Run prints the banner and processes input until quit, end of input, or
// ctx is cancelled. Command failures are printed and the loop continues.
func (c *Console) Run(ctx context.Context) error {
	c.println("\nMCP Client Started!")
	c.println("Commands:")
	c.printCommands("help - Show available tools and commands")

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		fmt.Fprint(c.out, "\nQuery: ")
		if !c.in.Scan() {
			c.println()
			return c.in.Err()
		}
		line := strings.TrimSpace(c.in.Text())
		if line == "" {
			continue
		}
		if quit := c.dispatch(ctx, line); quit {
			return nil
		}
	}
}

// dispatch handles one input line and reports whether the loop should end.
// Command words are matched case-insensitively; anything else is a query.
func (c *Console) dispatch(ctx context.Context, line string) bool {
	lower := strings.ToLower(line)

	var err error
	switch {
	case lower == "quit":
		return true
	case lower == "clear":
		c.session.Clear()
		c.println("\nConversation history cleared. Starting new conversation.")
	case lower == "help":
		err = c.help(ctx)
	case lower == "usage":
		c.usage()
	case strings.HasPrefix(lower, "save "):
		name := strings.TrimSpace(line[len("save "):])
		if err = c.session.Save(ctx, name); err == nil {
			c.printf("\nConversation saved to %s\n", name)
		}
	case strings.HasPrefix(lower, "load "):
		name := strings.TrimSpace(line[len("load "):])
		var ts string
		if ts, err = c.session.Load(ctx, name); err == nil {
			c.printf("\nLoaded conversation from %s (saved at %s)\n", name, ts)
		}
	default:
		res := c.session.Query(ctx, line)
		c.println("\n" + res.Text)
	}

	if err != nil {
		c.logger.Debug("command failed", "line", line, "error", err)
		c.printf("\nError: %v\n", err)
	}
	return false
}

func (c *Console) help(ctx context.Context) error {
	tools, err := c.session.FetchTools(ctx)
	if err != nil {
		return err
	}
	c.println("\nAvailable Tools:")
	for _, t := range tools {
		c.printf("\n%s:\n", t.Name)
		c.printf("  Description: %s\n", t.Description)
		c.printf("  Parameters: %s\n", compactJSON(t.InputSchema))
	}
	c.println("\nCommands:")
	c.printCommands("help - Show this help message")
	return nil
}

func (c *Console) usage() {
	u := c.session.Usage()
	c.printf("\nModel calls: %d\n", u.Calls)
	c.printf("Input tokens: %d (cache read %d, cache write %d)\n",
		u.Usage.InputTokens, u.Usage.CacheReadInputTokens, u.Usage.CacheCreationInputTokens)
	c.printf("Output tokens: %d\n", u.Usage.OutputTokens)
	if u.Limit.IsZero() {
		c.printf("Cost: $%s\n", u.Cost.StringFixed(4))
	} else {
		c.printf("Cost: $%s of $%s\n", u.Cost.StringFixed(4), u.Limit.StringFixed(2))
	}
}

func (c *Console) printCommands(help string) {
	for _, line := range commandHelp[:4] {
		c.println(line)
	}
	c.println("  " + help)
	c.println(commandHelp[4])
}

func (c *Console) println(a ...any) {
	fmt.Fprintln(c.out, a...)
}

func (c *Console) printf(format string, a ...any) {
	fmt.Fprintf(c.out, format, a...)
}

func compactJSON(raw json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}
