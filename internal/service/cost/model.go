package cost

// DefaultPricePerThousandTokens is the flat rate applied when none is configured (USD)
const DefaultPricePerThousandTokens = 0.002

// Model maps language-model token usage to a monetary cost
type Model struct {
	pricePerThousand float64
}

// NewModel creates a cost model with the given per-1k-token price.
// A negative price is treated as zero.
func NewModel(pricePerThousandTokens float64) Model {
	if pricePerThousandTokens < 0 {
		pricePerThousandTokens = 0
	}
	return Model{pricePerThousand: pricePerThousandTokens}
}

// DefaultModel returns a model using DefaultPricePerThousandTokens
func DefaultModel() Model {
	return NewModel(DefaultPricePerThousandTokens)
}

// PricePerThousandTokens returns the configured rate
func (m Model) PricePerThousandTokens() float64 {
	return m.pricePerThousand
}

// CostUSD returns (tokens / 1000) * price. Negative token counts cost nothing.
func (m Model) CostUSD(tokensUsed int64) float64 {
	if tokensUsed <= 0 {
		return 0
	}
	return float64(tokensUsed) / 1000 * m.pricePerThousand
}
