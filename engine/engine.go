// Package engine implements the per‑bar rotation state machine: streak
// tracking, trailing‑stop management, volatility‑driven instrument switching,
// partial entries and exits, and cash parking.
package engine

import (
	"fmt"
	"math"
	"time"

	"github.com/evdnx/govr/config"
	"github.com/evdnx/govr/ledger"
	"github.com/evdnx/govr/logger"
	"github.com/evdnx/govr/metrics"
	"github.com/evdnx/govr/regime"
	"github.com/evdnx/govr/risk"
	"github.com/evdnx/govr/selector"
	"github.com/evdnx/govr/types"
)

// fallbackRSI stands in for an unavailable RSI reading.  50 is the neutral
// midpoint, so a missing value never fakes an oversold entry signal.
const fallbackRSI = 50.0

// StepInput is everything one evaluation step consumes.  Instruments missing
// from Bars or Snapshots are treated as unavailable for the step and skipped;
// they never abort the run.
type StepInput struct {
	Date      time.Time
	Bars      map[string]types.Bar
	Snapshots map[string]types.Snapshot
	Market    types.MarketState
}

// StepResult is the engine's output for one step.
type StepResult struct {
	Regime     types.Regime
	Value      float64
	TradeSize  float64
	Allocation map[string]float64
	Alerts     []string
}

// Engine owns all mutable strategy state.  Instances are not safe for
// concurrent use; parallel backtests must each own their own Engine.
type Engine struct {
	cfg        config.Config
	log        logger.Logger
	classifier *regime.Classifier
	sel        *selector.Selector
	portfolio  *Portfolio
	ledger     *ledger.Ledger
	stop       *stopTracker

	current          string // instrument currently targeted by the rotation
	upStreak         int
	downStreak       int
	tradeSize        float64
	barsSinceRealign int

	lastClose map[string]float64 // carried forward for marking to market
	prevClose map[string]float64 // close one bar back, for streak returns
	lastCosts float64

	// per‑step scratch
	date   time.Time
	alerts []string
}

// New builds an engine from a validated configuration.  The ledger is owned
// by the caller; the engine only appends to it.
func New(cfg config.Config, log logger.Logger, led *ledger.Ledger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("engine config: %w", err)
	}
	return &Engine{
		cfg: cfg,
		log: log,
		classifier: regime.New(regime.Thresholds{
			BearVolIndexRise: cfg.BearVolIndexRise,
			BullVolIndexDrop: cfg.BullVolIndexDrop,
			SentimentBear:    cfg.SentimentBear,
			SentimentBull:    cfg.SentimentBull,
			RSIBear:          cfg.RSIBear,
			RSIBull:          cfg.RSIBull,
		}),
		sel:       selector.New(cfg.Candidates, cfg.Restrictions),
		portfolio: NewPortfolio(cfg.InitialCash, cfg.CashSymbol, cfg.CashPrice, cfg.CashYieldRate),
		ledger:    led,
		stop:      newStopTracker(cfg.StopATRMultiple, cfg.StopTrigger),
		current:   cfg.Candidates[0],
		tradeSize: cfg.InitialCash * cfg.TradeSizePct,
		lastClose: make(map[string]float64),
		prevClose: make(map[string]float64),
	}, nil
}

// Portfolio exposes the engine's portfolio for inspection.
func (e *Engine) Portfolio() *Portfolio { return e.portfolio }

// Active returns the instrument the rotation currently targets.
func (e *Engine) Active() string { return e.current }

// Streaks returns the consecutive up‑ and down‑day counters.
func (e *Engine) Streaks() (up, down int) { return e.upStreak, e.downStreak }

// StopLevel returns the trailing stop price and whether one is armed.
func (e *Engine) StopLevel() (float64, bool) { return e.stop.Level() }

// TradeSize returns the currency trade size from the last realignment.
func (e *Engine) TradeSize() float64 { return e.tradeSize }

// Step runs one evaluation in strict bar order.  It never fails: missing
// data degrades to skips and fallbacks, and the returned allocation is always
// valid (possibly unchanged).
func (e *Engine) Step(in StepInput) StepResult {
	e.date = in.Date
	e.alerts = nil

	prices := e.markPrices(in.Bars)
	e.portfolio.AccrueYield()

	reg := e.classifier.Classify(in.Market)
	if reg == types.Bear {
		e.liquidateAll(in, prices, "bear_regime")
		return e.finish(reg, prices)
	}

	e.updateStreaks(in)
	e.applyStop(in, prices)
	e.realign(in, prices, reg)
	e.partialExit(in, prices)
	e.partialEntry(in, prices, reg)

	return e.finish(reg, prices)
}

// snapshotFor returns the instrument's indicator snapshot, or an all‑NaN one
// when the instrument has no data this step.  Zero‑value snapshots must never
// leak in: a zero ATR would collapse the stop onto the high‑water mark.
func snapshotFor(in StepInput, symbol string) types.Snapshot {
	if snap, ok := in.Snapshots[symbol]; ok {
		return snap
	}
	nan := math.NaN()
	return types.Snapshot{RSI: nan, ATR: nan, MACD: nan, MACDSignal: nan, SMA: nan, Volatility: nan}
}

// markPrices folds the step's bars into the carried‑forward close map and
// returns a snapshot of it for valuation.
func (e *Engine) markPrices(bars map[string]types.Bar) map[string]float64 {
	for sym, bar := range bars {
		e.prevClose[sym] = e.lastClose[sym]
		e.lastClose[sym] = bar.Close
	}
	prices := make(map[string]float64, len(e.lastClose))
	for sym, px := range e.lastClose {
		prices[sym] = px
	}
	return prices
}

// updateStreaks advances the consecutive‑day counters off the active
// instrument's bar‑over‑bar return.  A zero return (flat bar, or no usable
// previous close) resets both counters.
func (e *Engine) updateStreaks(in StepInput) {
	bar, ok := in.Bars[e.current]
	if !ok {
		return // no data for the active instrument this step
	}
	prev := e.prevClose[e.current]
	ret := 0.0
	if prev > 0 {
		ret = (bar.Close - prev) / prev
	}
	switch {
	case ret > 0:
		e.upStreak++
		e.downStreak = 0
	case ret < 0:
		e.downStreak++
		e.upStreak = 0
	default:
		e.upStreak = 0
		e.downStreak = 0
	}
}

// applyStop trails the stop under the open position and liquidates when the
// configured trigger field touches it.
func (e *Engine) applyStop(in StepInput, prices map[string]float64) {
	shares := e.portfolio.Shares(e.current)
	if shares <= 0 {
		return
	}
	bar, ok := in.Bars[e.current]
	if !ok {
		return
	}
	e.stop.Update(bar.High, snapshotFor(in, e.current).ATR)
	if !e.stop.Triggered(bar) {
		return
	}
	sold := e.portfolio.sell(e.current, shares, bar.Close, e.cfg.TradeCostRate)
	e.record(types.Stop, e.current, sold, bar.Close, prices)
	metrics.StopsTriggered.Inc()
	e.stop.Reset()
	e.resetStreaks()
	e.log.Info("stop_triggered",
		logger.Time("date", e.date),
		logger.String("symbol", e.current),
		logger.Float64("price", bar.Close),
	)
}

// realign runs on the configured cadence: it recomputes the trade size and
// re‑evaluates the selection, switching instruments when a sufficiently
// volatile challenger wins.  Rotation trades only execute in a bull regime;
// a failed selection holds the previous allocation unchanged.
func (e *Engine) realign(in StepInput, prices map[string]float64, reg types.Regime) {
	e.barsSinceRealign++
	if e.barsSinceRealign < e.cfg.RealignInterval {
		return
	}
	e.barsSinceRealign = 0

	value := e.portfolio.TotalValue(prices)
	e.tradeSize = e.sizeFor(value, snapshotFor(in, e.current).Volatility, prices[e.current])
	e.alerts = append(e.alerts, fmt.Sprintf("Trade size realigned to $%.2f.", e.tradeSize))

	vols := make(map[string]float64, len(in.Snapshots))
	for sym, snap := range in.Snapshots {
		vols[sym] = snap.Volatility
	}
	winner, skips, err := e.sel.Select(e.date, vols)
	for _, skip := range skips {
		e.log.Warn("selection_skip",
			logger.Time("date", e.date),
			logger.String("symbol", skip.Symbol),
			logger.String("reason", skip.Reason),
		)
	}
	if err != nil {
		e.log.Warn("selection_failed", logger.Time("date", e.date), logger.Err(err))
		e.alerts = append(e.alerts, "No valid rotation candidate; holding previous allocation.")
		return
	}
	if reg != types.Bull {
		return
	}

	switch {
	case winner != e.current && vols[winner] > e.cfg.SwitchVolThreshold:
		e.switchTo(winner, in, prices)
	case winner == e.current && e.portfolio.Shares(e.current) == 0:
		// Selection confirmed the target but nothing is held yet – enter.
		if bar, ok := in.Bars[e.current]; ok {
			e.enter(types.Buy, bar, snapshotFor(in, e.current), prices)
		}
	}
}

// switchTo liquidates the active position and opens the challenger, sized by
// the position sizer; the trailing stop re‑arms off the new instrument's bar.
func (e *Engine) switchTo(winner string, in StepInput, prices map[string]float64) {
	winnerBar, ok := in.Bars[winner]
	if !ok {
		e.log.Warn("switch_skipped_no_bar", logger.Time("date", e.date), logger.String("symbol", winner))
		return
	}
	if shares := e.portfolio.Shares(e.current); shares > 0 {
		curBar, ok := in.Bars[e.current]
		if !ok {
			// cannot price the exit leg – hold until data returns
			e.log.Warn("switch_skipped_no_exit_price", logger.Time("date", e.date), logger.String("symbol", e.current))
			return
		}
		sold := e.portfolio.sell(e.current, shares, curBar.Close, e.cfg.TradeCostRate)
		e.record(types.SwitchSell, e.current, sold, curBar.Close, prices)
	}
	e.stop.Reset()
	e.resetStreaks()
	from := e.current
	e.current = winner
	metrics.Switches.Inc()
	e.log.Info("instrument_switch",
		logger.Time("date", e.date),
		logger.String("from", from),
		logger.String("to", winner),
		logger.Float64("volatility", snapshotFor(in, winner).Volatility),
	)
	e.enter(types.SwitchBuy, winnerBar, snapshotFor(in, winner), prices)
}

// enter opens a position in the active instrument at the bar close, sized by
// the position sizer, redeeming parked cash for any shortfall, and arms the
// trailing stop off the bar high.
func (e *Engine) enter(action types.Action, bar types.Bar, snap types.Snapshot, prices map[string]float64) {
	value := e.portfolio.TotalValue(prices)
	notional := e.sizeFor(value, snap.Volatility, bar.Close)
	if notional <= 0 {
		return
	}
	e.raiseCash(notional)
	shares := e.portfolio.buy(e.current, notional, bar.Close, e.cfg.TradeCostRate)
	if shares <= 0 {
		return
	}
	e.record(action, e.current, shares, bar.Close, prices)
	e.stop.Arm(bar.High, snap.ATR)
}

// partialExit scales out after two consecutive up days, selling half the
// usual clip once the streak extends beyond two.
func (e *Engine) partialExit(in StepInput, prices map[string]float64) {
	if e.upStreak < 2 {
		return
	}
	held := e.portfolio.Shares(e.current)
	if held <= 0 {
		return
	}
	bar, ok := in.Bars[e.current]
	if !ok || bar.Close <= 0 {
		return
	}
	clip := math.Min(held, e.tradeSize/bar.Close)
	if e.upStreak > 2 {
		clip *= 0.5
	}
	sold := e.portfolio.sell(e.current, clip, bar.Close, e.cfg.TradeCostRate)
	if sold <= 0 {
		return
	}
	e.record(types.Sell, e.current, sold, bar.Close, prices)
	if e.portfolio.Shares(e.current) == 0 {
		e.stop.Reset()
		e.resetStreaks()
	}
}

// partialEntry buys a dip: at least one down day with RSI below the entry
// threshold, funded from free cash plus redeemed parked cash.  The trailing
// stop re‑arms off the entry bar.  Entries only execute in a bull regime.
func (e *Engine) partialEntry(in StepInput, prices map[string]float64, reg types.Regime) {
	if reg != types.Bull || e.downStreak < 1 {
		return
	}
	bar, ok := in.Bars[e.current]
	if !ok || bar.Close <= 0 {
		return
	}
	snap := snapshotFor(in, e.current)
	rsi := snap.RSI
	if math.IsNaN(rsi) {
		rsi = fallbackRSI
	}
	if rsi >= e.cfg.RSIEntryThreshold {
		return
	}
	value := e.portfolio.TotalValue(prices)
	notional := e.sizeFor(value, snap.Volatility, bar.Close)
	if notional <= 0 {
		return
	}
	e.raiseCash(notional)
	shares := e.portfolio.buy(e.current, notional, bar.Close, e.cfg.TradeCostRate)
	if shares <= 0 {
		return // insufficient cash even after unparking
	}
	e.record(types.Buy, e.current, shares, bar.Close, prices)
	e.stop.Arm(bar.High, snap.ATR)
}

// liquidateAll flattens the open position (bear regime); the proceeds are
// swept by the park step.
func (e *Engine) liquidateAll(in StepInput, prices map[string]float64, reason string) {
	shares := e.portfolio.Shares(e.current)
	if shares <= 0 {
		return
	}
	price, ok := 0.0, false
	if bar, found := in.Bars[e.current]; found {
		price, ok = bar.Close, true
	} else if px, found := e.lastClose[e.current]; found && px > 0 {
		price, ok = px, true
	}
	if !ok {
		return
	}
	sold := e.portfolio.sell(e.current, shares, price, e.cfg.TradeCostRate)
	e.record(types.Sell, e.current, sold, price, prices)
	e.stop.Reset()
	e.resetStreaks()
	e.log.Info("position_liquidated",
		logger.Time("date", e.date),
		logger.String("symbol", e.current),
		logger.String("reason", reason),
	)
}

// finish parks residual cash, normalizes the allocation and emits the
// period summary.
func (e *Engine) finish(reg types.Regime, prices map[string]float64) StepResult {
	if parked := e.portfolio.park(e.cfg.TradeCostRate); parked > 0 {
		e.record(types.Park, e.cfg.CashSymbol, parked, e.cfg.CashPrice, prices)
	}

	alloc := e.portfolio.Allocation(prices)
	risk.Normalize(alloc)

	value := e.portfolio.TotalValue(prices)
	metrics.PortfolioValue.Set(value)
	if delta := e.portfolio.Costs() - e.lastCosts; delta > 0 {
		metrics.CostsPaid.Add(delta)
		e.lastCosts = e.portfolio.Costs()
	}
	e.alerts = append(e.alerts, fmt.Sprintf(
		"Daily trading alert: %s. Portfolio value: $%.2f. Trade size: $%.2f.",
		e.date.Format("2006-01-02"), value, e.tradeSize))

	return StepResult{
		Regime:     reg,
		Value:      value,
		TradeSize:  e.tradeSize,
		Allocation: alloc,
		Alerts:     e.alerts,
	}
}

// sizeFor converts the portfolio value into a currency trade size under the
// configured sizing mode.  Volatility is annualized percent; the
// vol‑normalized mode converts it to a decimal before applying the formula.
func (e *Engine) sizeFor(value, volatility, price float64) float64 {
	if e.cfg.SizingMode == config.SizingVolNorm {
		frac := risk.VolNormalizedFraction(value, e.cfg.RiskFraction, volatility/100, price)
		return frac * value
	}
	return risk.FlatSize(value, e.cfg.TradeSizePct, volatility, e.cfg.DampVolThreshold, e.cfg.DampFactor)
}

// raiseCash redeems parked cash so that free cash covers notional plus cost.
func (e *Engine) raiseCash(notional float64) {
	needed := notional*(1+e.cfg.TradeCostRate) - e.portfolio.Cash()
	if needed > 0 {
		e.portfolio.unpark(needed, e.cfg.TradeCostRate)
	}
}

func (e *Engine) resetStreaks() {
	e.upStreak = 0
	e.downStreak = 0
}

// record appends a ledger entry, bumps the metrics and produces the
// human‑readable alert for one executed leg.
func (e *Engine) record(action types.Action, symbol string, shares, price float64, prices map[string]float64) {
	value := e.portfolio.TotalValue(prices)
	e.ledger.Append(types.TradeRecord{
		Date:           e.date,
		Action:         action,
		Symbol:         symbol,
		Shares:         shares,
		Price:          price,
		PortfolioValue: value,
	})
	metrics.TradesExecuted.WithLabelValues(string(action)).Inc()
	e.log.Info("trade_executed",
		logger.Time("date", e.date),
		logger.String("action", string(action)),
		logger.String("symbol", symbol),
		logger.Float64("shares", shares),
		logger.Float64("price", price),
		logger.Float64("portfolio_value", value),
	)
	e.alerts = append(e.alerts, fmt.Sprintf("%s %.4f shares of %s at $%.2f.", actionVerb(action), shares, symbol, price))
}

func actionVerb(action types.Action) string {
	switch action {
	case types.Buy:
		return "Buy"
	case types.Sell:
		return "Sell"
	case types.SwitchSell:
		return "Switch out: sell"
	case types.SwitchBuy:
		return "Switch in: buy"
	case types.Stop:
		return "Stop-loss triggered: sell"
	case types.Park:
		return "Park"
	}
	return string(action)
}
