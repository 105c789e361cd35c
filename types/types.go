package types

import "time"

// Action identifies the kind of executed trade leg.
type Action string

const (
	Buy        Action = "BUY"
	Sell       Action = "SELL"
	SwitchSell Action = "SWITCH_SELL"
	SwitchBuy  Action = "SWITCH_BUY"
	Stop       Action = "STOP"
	Park       Action = "PARK"
)

// Regime is the market classification consumed by the trade engine.
type Regime string

const (
	Bull    Regime = "bull"
	Bear    Regime = "bear"
	Neutral Regime = "neutral"
)

// Bar is a single OHLCV candle for one instrument and one period.
type Bar struct {
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Snapshot carries the externally‑computed indicator readings for one
// instrument at one evaluation step.  NaN marks a value that could not be
// computed (insufficient history, fetch failure); consumers must guard.
type Snapshot struct {
	RSI        float64
	ATR        float64
	MACD       float64
	MACDSignal float64
	SMA        float64
	// Volatility is the trailing annualized volatility in percent
	// (20‑period stdev of log returns × √252 × 100).
	Volatility float64
}

// MarketState bundles the broad‑market readings the regime classifier needs.
type MarketState struct {
	SMAShort       float64 // short trend SMA of the benchmark (default 20)
	SMALong        float64 // long trend SMA of the benchmark (default 50)
	VolIndexChange float64 // trailing relative change of the volatility index
	SentimentRatio float64 // put/call‑style sentiment ratio
	RSI            float64 // benchmark momentum
}

// TradeRecord is one executed action.  Records are append‑only: created once
// per action, never mutated.
type TradeRecord struct {
	Date           time.Time
	Action         Action
	Symbol         string
	Shares         float64
	Price          float64
	PortfolioValue float64
}
