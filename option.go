package bridge

import (
	"context"
	"log/slog"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
	"github.com/shopspring/decimal"

	"github.com/armatrix/mcp-bridge-go/hook"
	"github.com/armatrix/mcp-bridge-go/internal/config"
	"github.com/armatrix/mcp-bridge-go/permission"
	"github.com/armatrix/mcp-bridge-go/session"
)

// MessageStreamer is the streaming Messages API used for model calls. The
// default wraps client.Messages.NewStreaming; tests pass a fake.
type MessageStreamer interface {
	NewStreaming(ctx context.Context, params anthropic.MessageNewParams) *ssestream.Stream[anthropic.MessageStreamEventUnion]
}

// Option configures Connect via the functional options pattern.
type Option func(*options)

// options holds all configurable fields set via Option functions.
type options struct {
	model        anthropic.Model
	maxTokens    int
	maxRounds    int
	maxBudget    decimal.Decimal
	systemPrompt string
	serverName   string

	settingSources []string

	streamer       MessageStreamer
	requestOptions []option.RequestOption

	policy         permission.Policy
	permissionFunc permission.Func
	hooks          []hook.Matcher

	retryAttempts int
	retryDelay    time.Duration

	store   session.Store
	logger  *slog.Logger
	handler EventHandler
	now     func() time.Time
}

// applyDefaults fills in zero-value fields with sensible defaults.
func (o *options) applyDefaults() {
	if o.model == "" {
		o.model = DefaultModel
	}
	if o.maxTokens == 0 {
		o.maxTokens = DefaultMaxTokens
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.now == nil {
		o.now = time.Now
	}
}

// resolveOptions applies all option functions, merges settings files for
// fields the caller left unset, and fills defaults.
func resolveOptions(opts []Option) (options, error) {
	var o options
	for _, fn := range opts {
		fn(&o)
	}
	if len(o.settingSources) > 0 {
		s, err := config.LoadSettings(o.settingSources...)
		if err != nil {
			return o, err
		}
		if err := s.Validate(); err != nil {
			return o, err
		}
		applySettings(&o, s)
	}
	o.applyDefaults()
	return o, nil
}

// applySettings merges loaded settings into o. Options set explicitly via
// WithXxx take precedence over settings files.
func applySettings(o *options, s *config.Settings) {
	if o.model == "" && s.Model != "" {
		o.model = anthropic.Model(s.Model)
	}
	if o.systemPrompt == "" && s.SystemPrompt != "" {
		o.systemPrompt = s.SystemPrompt
	}
	if o.maxTokens == 0 && s.MaxTokens > 0 {
		o.maxTokens = s.MaxTokens
	}
	if o.maxRounds == 0 && s.MaxRounds > 0 {
		o.maxRounds = s.MaxRounds
	}
	if o.maxBudget.IsZero() {
		o.maxBudget = s.Budget()
	}
	if o.policy.IsZero() {
		o.policy = s.Policy()
	}
}

// --- Model ---

// WithModel sets the Claude model to use.
// Use constants from anthropic-sdk-go, e.g. anthropic.ModelClaudeSonnet4_5.
func WithModel(model anthropic.Model) Option {
	return func(o *options) { o.model = model }
}

// WithMaxTokens sets the output token cap for each model call.
func WithMaxTokens(tokens int) Option {
	return func(o *options) { o.maxTokens = tokens }
}

// WithSystemPrompt replaces the built-in system prompt. A preset name such
// as "concise" selects that preset; any other text is used as a template in
// which {{date}} is replaced with the time of Connect.
func WithSystemPrompt(prompt string) Option {
	return func(o *options) { o.systemPrompt = prompt }
}

// WithStreamer sets the Messages API implementation. By default Connect
// creates an anthropic.Client that reads ANTHROPIC_API_KEY.
func WithStreamer(s MessageStreamer) Option {
	return func(o *options) { o.streamer = s }
}

// WithRequestOptions passes options such as option.WithAPIKey to the
// default anthropic.Client. Ignored when WithStreamer is set.
func WithRequestOptions(opts ...option.RequestOption) Option {
	return func(o *options) { o.requestOptions = append(o.requestOptions, opts...) }
}

// --- Limits ---

// WithMaxRounds caps the model calls per query (0 = unlimited).
func WithMaxRounds(n int) Option {
	return func(o *options) { o.maxRounds = n }
}

// WithBudget sets the maximum spend in USD for the session. Zero means
// unlimited.
func WithBudget(maxUSD decimal.Decimal) Option {
	return func(o *options) { o.maxBudget = maxUSD }
}

// WithRetry replaces the 3-attempt, 1-second retry policy for tool listing
// and tool calls.
func WithRetry(attempts int, delay time.Duration) Option {
	return func(o *options) {
		o.retryAttempts = attempts
		o.retryDelay = delay
	}
}

// --- Server selection ---

// WithServerName selects a server from a config file by name. By default
// the first entry is used.
func WithServerName(name string) Option {
	return func(o *options) { o.serverName = name }
}

// WithSettingSources loads JSON settings files in order; later files win.
// Explicit options take precedence over file values.
func WithSettingSources(paths ...string) Option {
	return func(o *options) { o.settingSources = append(o.settingSources, paths...) }
}

// --- Tools ---

// WithPolicy sets the allow/deny glob patterns over tool names.
func WithPolicy(p permission.Policy) Option {
	return func(o *options) { o.policy = p }
}

// WithPermissionFunc registers a callback consulted before each tool call
// the policy allows.
func WithPermissionFunc(fn permission.Func) Option {
	return func(o *options) { o.permissionFunc = fn }
}

// WithHooks registers hook matchers that run around tool calls and at
// query boundaries.
func WithHooks(matchers ...hook.Matcher) Option {
	return func(o *options) { o.hooks = append(o.hooks, matchers...) }
}

// --- Session ---

// WithStore sets the document store used by Save and Load. The default is
// an unrestricted session.FileStore, so names are file paths.
func WithStore(s session.Store) Option {
	return func(o *options) { o.store = s }
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithEventHandler registers a handler for session events.
func WithEventHandler(h EventHandler) Option {
	return func(o *options) { o.handler = h }
}

// withClock overrides time.Now for tests.
func withClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}
