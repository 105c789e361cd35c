package testutils

import "github.com/evdnx/govr/types"

// BullState returns a MarketState satisfying the default bull conjunction:
// up‑trend, falling volatility index, subdued sentiment, recovered RSI.
func BullState() types.MarketState {
	return types.MarketState{SMAShort: 105, SMALong: 100, VolIndexChange: -0.15, SentimentRatio: 1.0, RSI: 45}
}

// BearState returns a MarketState with the short SMA under the long one,
// which is sufficient for a bear classification on its own.
func BearState() types.MarketState {
	return types.MarketState{SMAShort: 95, SMALong: 100, VolIndexChange: 0, SentimentRatio: 1.0, RSI: 45}
}

// NeutralState returns a MarketState matching neither bear nor bull.
func NeutralState() types.MarketState {
	return types.MarketState{SMAShort: 105, SMALong: 100, VolIndexChange: 0, SentimentRatio: 1.0, RSI: 45}
}

// FlatBar builds a bar with a small symmetric range around the close.
func FlatBar(close float64) types.Bar {
	return types.Bar{Open: close, High: close * 1.005, Low: close * 0.995, Close: close, Volume: 1000}
}
