// Package budget accounts for model token usage and its USD cost, and
// enforces an optional spending cap.
package budget

import (
	"maps"
	"sync"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/shopspring/decimal"
)

// Usage holds token counts for one or more API calls.
type Usage struct {
	InputTokens              int `json:"input_tokens"`
	OutputTokens             int `json:"output_tokens"`
	CacheReadInputTokens     int `json:"cache_read_input_tokens"`
	CacheCreationInputTokens int `json:"cache_creation_input_tokens"`
}

// TotalInput is the input token count including cache reads and writes.
func (u Usage) TotalInput() int {
	return u.InputTokens + u.CacheReadInputTokens + u.CacheCreationInputTokens
}

// Add returns the element-wise sum of u and o.
func (u Usage) Add(o Usage) Usage {
	return Usage{
		InputTokens:              u.InputTokens + o.InputTokens,
		OutputTokens:             u.OutputTokens + o.OutputTokens,
		CacheReadInputTokens:     u.CacheReadInputTokens + o.CacheReadInputTokens,
		CacheCreationInputTokens: u.CacheCreationInputTokens + o.CacheCreationInputTokens,
	}
}

// FromAPI converts the usage block of a Messages API response.
func FromAPI(u anthropic.Usage) Usage {
	return Usage{
		InputTokens:              int(u.InputTokens),
		OutputTokens:             int(u.OutputTokens),
		CacheReadInputTokens:     int(u.CacheReadInputTokens),
		CacheCreationInputTokens: int(u.CacheCreationInputTokens),
	}
}

// Totals is a snapshot of a Tracker.
type Totals struct {
	Calls    int
	Usage    Usage
	Cost     decimal.Decimal
	PerModel map[anthropic.Model]Usage
}

// Tracker accumulates usage and cost across API calls. It is safe for
// concurrent use.
type Tracker struct {
	mu       sync.Mutex
	limit    decimal.Decimal // zero = unlimited
	pricing  map[anthropic.Model]ModelPricing
	calls    int
	usage    Usage
	cost     decimal.Decimal
	perModel map[anthropic.Model]Usage
}

// NewTracker creates a tracker. A zero limit means unlimited; nil pricing
// uses DefaultPricing.
func NewTracker(limit decimal.Decimal, pricing map[anthropic.Model]ModelPricing) *Tracker {
	if pricing == nil {
		pricing = DefaultPricing
	}
	return &Tracker{
		limit:    limit,
		pricing:  pricing,
		cost:     decimal.Zero,
		perModel: make(map[anthropic.Model]Usage),
	}
}

// Record adds one API call and returns its cost. Calls to models without
// pricing are counted at zero cost.
func (t *Tracker) Record(model anthropic.Model, u Usage) decimal.Decimal {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.calls++
	t.usage = t.usage.Add(u)
	t.perModel[model] = t.perModel[model].Add(u)

	p, ok := t.pricing[model]
	if !ok {
		return decimal.Zero
	}
	c := p.Cost(u)
	t.cost = t.cost.Add(c)
	return c
}

// Totals returns a snapshot of everything recorded so far.
func (t *Tracker) Totals() Totals {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Totals{
		Calls:    t.calls,
		Usage:    t.usage,
		Cost:     t.cost,
		PerModel: maps.Clone(t.perModel),
	}
}

// Limit returns the configured cap, zero when unlimited.
func (t *Tracker) Limit() decimal.Decimal { return t.limit }

// Remaining returns the unspent budget, or false when there is no cap.
func (t *Tracker) Remaining() (decimal.Decimal, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.limit.IsZero() {
		return decimal.Zero, false
	}
	return t.limit.Sub(t.cost), true
}

// Exhausted reports whether the cost has reached the cap.
func (t *Tracker) Exhausted() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.limit.IsZero() && t.cost.GreaterThanOrEqual(t.limit)
}
