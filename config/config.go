package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Stop‑trigger selection.  The source drafts disagreed on whether the
// trailing stop fires off the bar's low or its close; the field makes the
// choice explicit instead of silently supporting both.
const (
	StopTriggerLow   = "low"
	StopTriggerClose = "close"
)

// Position‑sizing modes.
const (
	SizingFlat    = "flat"    // trade size = TradeSizePct × portfolio value
	SizingVolNorm = "volnorm" // fraction = riskFraction / (volatility × price)
)

// Config holds every tunable parameter of the rotation engine.  The original
// strategy existed as a handful of near‑duplicate variants; each difference
// between them is a field here.
type Config struct {
	// Universe
	Candidates []string // instruments eligible for rotation, in priority order
	CashSymbol string   // cash‑equivalent parking instrument (e.g. TBIL)
	Benchmark  string   // broad‑market symbol driving the regime classifier

	// Wash‑sale exclusions: symbol → restriction expiry.  A symbol is
	// excluded from selection while the evaluation date is on or before
	// its expiry.  Empty by default; never inferred.
	Restrictions map[string]time.Time

	// Capital & sizing
	InitialCash      float64 // starting cash
	TradeSizePct     float64 // e.g. 0.2667 = 26.67 % of portfolio per trade
	RiskFraction     float64 // vol‑normalized mode risk budget, e.g. 0.02
	SizingMode       string  // SizingFlat or SizingVolNorm
	DampFactor       float64 // trade‑size dampener in high volatility, e.g. 0.75
	DampVolThreshold float64 // annualized vol (percent) above which to dampen

	// Costs & cash parking
	TradeCostRate float64 // fraction of notional charged per leg, e.g. 0.008
	CashYieldRate float64 // per‑step yield accrued on the cash equivalent
	CashPrice     float64 // fixed cash‑equivalent share price (minimum lot)

	// Rotation
	RealignInterval    int     // bars between selector re‑runs, e.g. 21
	SwitchVolThreshold float64 // winner must exceed this vol to force a switch

	// Stop loss
	StopATRMultiple float64 // stop = highest − k×ATR, k = 3 by convention
	StopTrigger     string  // StopTriggerLow or StopTriggerClose

	// Entry / exit rules
	RSIEntryThreshold float64 // partial entry requires RSI below this, e.g. 40

	// Regime thresholds
	BearVolIndexRise float64 // vol index rising beyond this → bear leg
	BullVolIndexDrop float64 // vol index falling beyond this → bull leg (negative)
	SentimentBear    float64 // sentiment ratio above this → bear leg
	SentimentBull    float64 // sentiment ratio below this → bull leg
	RSIBear          float64 // RSI below this → bear leg
	RSIBull          float64 // RSI above this → bull leg

	// Indicator windows (used by the bundled indicator source)
	SMAShortWindow int // benchmark trend, default 20
	SMALongWindow  int // benchmark trend, default 50
	SMAWindow      int // per‑instrument trend SMA, default 50
	RSIWindow      int // default 14
	ATRWindow      int // default 14
	VolWindow      int // trailing volatility lookback, default 20
	MACDFast       int // default 12
	MACDSlow       int // default 26
	MACDSignal     int // default 9
}

// Default returns the documented baseline parameter set.
func Default() Config {
	return Config{
		Candidates:         []string{"SPY", "NVDA"},
		CashSymbol:         "TBIL",
		Benchmark:          "QQQ",
		Restrictions:       map[string]time.Time{},
		InitialCash:        10_000,
		TradeSizePct:       0.2667,
		RiskFraction:       0.02,
		SizingMode:         SizingFlat,
		DampFactor:         0.75,
		DampVolThreshold:   4,
		TradeCostRate:      0.008,
		CashYieldRate:      0.000198413,
		CashPrice:          50,
		RealignInterval:    21,
		SwitchVolThreshold: 4,
		StopATRMultiple:    3,
		StopTrigger:        StopTriggerLow,
		RSIEntryThreshold:  40,
		BearVolIndexRise:   0.20,
		BullVolIndexDrop:   -0.10,
		SentimentBear:      1.2,
		SentimentBull:      1.2,
		RSIBear:            30,
		RSIBull:            30,
		SMAShortWindow:     20,
		SMALongWindow:      50,
		SMAWindow:          50,
		RSIWindow:          14,
		ATRWindow:          14,
		VolWindow:          20,
		MACDFast:           12,
		MACDSlow:           26,
		MACDSignal:         9,
	}
}

// Validate checks that all fields are within sensible bounds.  It returns the
// first encountered error, allowing the caller to surface a clear
// configuration problem before any trading starts.
func (c *Config) Validate() error {
	if len(c.Candidates) == 0 {
		return errors.New("Candidates cannot be empty")
	}
	seen := make(map[string]struct{}, len(c.Candidates))
	for _, sym := range c.Candidates {
		if sym == "" {
			return errors.New("Candidates cannot contain an empty symbol")
		}
		if _, dup := seen[sym]; dup {
			return fmt.Errorf("duplicate candidate %q", sym)
		}
		seen[sym] = struct{}{}
	}
	if c.CashSymbol == "" {
		return errors.New("CashSymbol cannot be empty")
	}
	if _, clash := seen[c.CashSymbol]; clash {
		return fmt.Errorf("CashSymbol %q cannot also be a candidate", c.CashSymbol)
	}
	if c.InitialCash <= 0 {
		return fmt.Errorf("InitialCash (%f) must be positive", c.InitialCash)
	}
	if c.TradeSizePct <= 0 || c.TradeSizePct > 1 {
		return fmt.Errorf("TradeSizePct (%f) must be >0 and <=1", c.TradeSizePct)
	}
	if c.RiskFraction <= 0 || c.RiskFraction > 0.5 {
		return fmt.Errorf("RiskFraction (%f) must be >0 and <=0.5", c.RiskFraction)
	}
	if c.SizingMode != SizingFlat && c.SizingMode != SizingVolNorm {
		return fmt.Errorf("SizingMode (%q) must be %q or %q", c.SizingMode, SizingFlat, SizingVolNorm)
	}
	if c.DampFactor <= 0 || c.DampFactor > 1 {
		return fmt.Errorf("DampFactor (%f) must be >0 and <=1", c.DampFactor)
	}
	if c.TradeCostRate < 0 || c.TradeCostRate > 0.05 {
		return fmt.Errorf("TradeCostRate (%f) out of realistic range", c.TradeCostRate)
	}
	if c.CashYieldRate < 0 {
		return errors.New("CashYieldRate cannot be negative")
	}
	if c.CashPrice <= 0 {
		return errors.New("CashPrice must be positive")
	}
	if c.RealignInterval <= 0 {
		return errors.New("RealignInterval must be positive")
	}
	if c.StopATRMultiple <= 0 {
		return errors.New("StopATRMultiple must be positive")
	}
	if c.StopTrigger != StopTriggerLow && c.StopTrigger != StopTriggerClose {
		return fmt.Errorf("StopTrigger (%q) must be %q or %q", c.StopTrigger, StopTriggerLow, StopTriggerClose)
	}
	if c.RSIEntryThreshold <= 0 || c.RSIEntryThreshold >= 100 {
		return fmt.Errorf("RSIEntryThreshold (%f) must be between 0 and 100", c.RSIEntryThreshold)
	}
	if c.SMAShortWindow <= 0 || c.SMALongWindow <= 0 || c.SMAShortWindow >= c.SMALongWindow {
		return fmt.Errorf("SMA windows (%d/%d) must be positive with short < long", c.SMAShortWindow, c.SMALongWindow)
	}
	if c.SMAWindow <= 0 || c.RSIWindow <= 0 || c.ATRWindow <= 0 || c.VolWindow <= 1 {
		return errors.New("indicator windows must be positive (VolWindow > 1)")
	}
	if c.MACDFast <= 0 || c.MACDSlow <= c.MACDFast || c.MACDSignal <= 0 {
		return fmt.Errorf("MACD windows (%d/%d/%d) invalid", c.MACDFast, c.MACDSlow, c.MACDSignal)
	}
	return nil
}

// FromEnv loads Default() and applies overrides from the environment.  A
// .env file in the working directory is honoured when present; missing or
// malformed variables fall back to the default silently.
func FromEnv() Config {
	_ = godotenv.Load()

	cfg := Default()
	if v := os.Getenv("GOVR_CANDIDATES"); v != "" {
		parts := strings.Split(v, ",")
		cands := parts[:0]
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				cands = append(cands, s)
			}
		}
		if len(cands) > 0 {
			cfg.Candidates = cands
		}
	}
	if v := os.Getenv("GOVR_CASH_SYMBOL"); v != "" {
		cfg.CashSymbol = v
	}
	if v := os.Getenv("GOVR_BENCHMARK"); v != "" {
		cfg.Benchmark = v
	}
	envFloat("GOVR_INITIAL_CASH", &cfg.InitialCash)
	envFloat("GOVR_TRADE_SIZE_PCT", &cfg.TradeSizePct)
	envFloat("GOVR_RISK_FRACTION", &cfg.RiskFraction)
	envFloat("GOVR_TRADE_COST_RATE", &cfg.TradeCostRate)
	envFloat("GOVR_SWITCH_VOL_THRESHOLD", &cfg.SwitchVolThreshold)
	envInt("GOVR_REALIGN_INTERVAL", &cfg.RealignInterval)
	if v := os.Getenv("GOVR_SIZING_MODE"); v == SizingFlat || v == SizingVolNorm {
		cfg.SizingMode = v
	}
	if v := os.Getenv("GOVR_STOP_TRIGGER"); v == StopTriggerLow || v == StopTriggerClose {
		cfg.StopTrigger = v
	}
	return cfg
}

func envFloat(key string, dst *float64) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
