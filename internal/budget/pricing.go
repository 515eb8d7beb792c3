package budget

import (
	"github.com/anthropics/anthropic-sdk-go"
	"github.com/shopspring/decimal"
)

// ModelPricing holds per-model token prices in USD per million tokens.
type ModelPricing struct {
	InputPerMTok         decimal.Decimal
	OutputPerMTok        decimal.Decimal
	LongInputPerMTok     decimal.Decimal // applies when total input exceeds LongContextThreshold
	LongOutputPerMTok    decimal.Decimal
	CacheWritePerMTok    decimal.Decimal
	CacheReadPerMTok     decimal.Decimal
	LongContextThreshold int // 0 = no long-context tier
}

var million = decimal.NewFromInt(1_000_000)

func perMTok(tokens int, rate decimal.Decimal) decimal.Decimal {
	return decimal.NewFromInt(int64(tokens)).Mul(rate).Div(million)
}

// long reports whether a call with totalInput input tokens is billed at the
// long-context tier.
func (p ModelPricing) long(totalInput int) bool {
	return p.LongContextThreshold > 0 && totalInput > p.LongContextThreshold
}

// Cost returns the USD cost of one API call.
func (p ModelPricing) Cost(u Usage) decimal.Decimal {
	total := u.TotalInput()
	in, out := p.InputPerMTok, p.OutputPerMTok
	if p.long(total) {
		in, out = p.LongInputPerMTok, p.LongOutputPerMTok
	}
	return perMTok(u.InputTokens, in).
		Add(perMTok(u.CacheReadInputTokens, p.CacheReadPerMTok)).
		Add(perMTok(u.CacheCreationInputTokens, p.CacheWritePerMTok)).
		Add(perMTok(u.OutputTokens, out))
}

func sonnetPricing() ModelPricing {
	return ModelPricing{
		InputPerMTok:         decimal.NewFromFloat(3),
		OutputPerMTok:        decimal.NewFromFloat(15),
		LongInputPerMTok:     decimal.NewFromFloat(6),
		LongOutputPerMTok:    decimal.NewFromFloat(22.5),
		CacheWritePerMTok:    decimal.NewFromFloat(3.75),
		CacheReadPerMTok:     decimal.NewFromFloat(0.3),
		LongContextThreshold: 200_000,
	}
}

// DefaultPricing contains built-in pricing for Claude models (USD per
// million tokens). Models not listed are counted but not costed.
var DefaultPricing = map[anthropic.Model]ModelPricing{
	anthropic.ModelClaudeOpus4_6: {
		InputPerMTok:         decimal.NewFromFloat(5),
		OutputPerMTok:        decimal.NewFromFloat(25),
		LongInputPerMTok:     decimal.NewFromFloat(10),
		LongOutputPerMTok:    decimal.NewFromFloat(37.5),
		CacheWritePerMTok:    decimal.NewFromFloat(6.25),
		CacheReadPerMTok:     decimal.NewFromFloat(0.5),
		LongContextThreshold: 200_000,
	},
	anthropic.ModelClaudeSonnet4_5: sonnetPricing(),
	anthropic.ModelClaudeSonnet4_0: sonnetPricing(),
	anthropic.ModelClaudeHaiku4_5: {
		InputPerMTok:      decimal.NewFromFloat(1),
		OutputPerMTok:     decimal.NewFromFloat(5),
		CacheWritePerMTok: decimal.NewFromFloat(1.25),
		CacheReadPerMTok:  decimal.NewFromFloat(0.1),
	},
}
