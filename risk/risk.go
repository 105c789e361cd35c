// Package risk converts a risk budget into trade sizes and keeps total
// allocation within 100 % of the portfolio.
package risk

import "math"

// FlatSize returns the currency amount for one trade: tradeSizePct of the
// portfolio, scaled down by dampFactor while the instrument's trailing
// volatility exceeds dampThreshold.  Volatility is in annualized percent,
// consistent with the indicator package.
func FlatSize(portfolioValue, tradeSizePct, volatility, dampThreshold, dampFactor float64) float64 {
	if portfolioValue <= 0 || tradeSizePct <= 0 {
		return 0
	}
	size := portfolioValue * tradeSizePct
	if !math.IsNaN(volatility) && volatility > dampThreshold {
		size *= dampFactor
	}
	return size
}

// VolNormalizedFraction returns the allocation fraction
// min(1, portfolioValue×riskFraction/(volatility×price)).  Unusable inputs
// (non‑positive or NaN volatility/price) size to zero rather than erroring.
func VolNormalizedFraction(portfolioValue, riskFraction, volatility, price float64) float64 {
	if portfolioValue <= 0 || riskFraction <= 0 {
		return 0
	}
	if math.IsNaN(volatility) || volatility <= 0 || math.IsNaN(price) || price <= 0 {
		return 0
	}
	return math.Min(1.0, portfolioValue*riskFraction/(volatility*price))
}

// Normalize rescales weights proportionally so their sum does not exceed 1.
// Negative weights are clamped to zero first.  Rounding or cost drift that
// pushes the sum slightly over is a correction case, never an error.
func Normalize(weights map[string]float64) {
	sum := 0.0
	for sym, w := range weights {
		if w < 0 || math.IsNaN(w) {
			weights[sym] = 0
			continue
		}
		sum += w
	}
	if sum <= 1 {
		return
	}
	for sym, w := range weights {
		weights[sym] = w / sum
	}
}
