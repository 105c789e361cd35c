package engine

import (
	"math"
	"testing"
	"time"

	"github.com/evdnx/govr/config"
	"github.com/evdnx/govr/ledger"
	"github.com/evdnx/govr/testutils"
	"github.com/evdnx/govr/types"
)

// testConfig disables cash parking (minimum lot far above any cash balance)
// so the core trading arithmetic stays easy to follow.  Tests that exercise
// the sweep restore a realistic CashPrice.
func testConfig() config.Config {
	cfg := config.Default()
	cfg.Candidates = []string{"BBB", "AAA"}
	cfg.RealignInterval = 1
	cfg.CashPrice = 1e9
	return cfg
}

func buildEngine(t *testing.T, cfg config.Config) (*Engine, *ledger.Ledger) {
	t.Helper()
	led := ledger.New()
	eng, err := New(cfg, testutils.NewMockLogger(), led)
	if err != nil {
		t.Fatalf("New engine: %v", err)
	}
	return eng, led
}

func day(n int) time.Time {
	return time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func snap(vol, atr, rsi float64) types.Snapshot {
	return types.Snapshot{RSI: rsi, ATR: atr, MACD: 0.5, MACDSignal: 0.2, SMA: 95, Volatility: vol}
}

func bar(high, low, close float64) types.Bar {
	return types.Bar{Open: close, High: high, Low: low, Close: close, Volume: 1000}
}

// step is a small builder for the common two-instrument input.
func step(n int, market types.MarketState, bars map[string]types.Bar, snaps map[string]types.Snapshot) StepInput {
	return StepInput{Date: day(n), Bars: bars, Snapshots: snaps, Market: market}
}

/*
-----------------------------------------------------------------------
Initial entry: selection confirms the starting instrument, the engine
buys one trade-size clip and never more than the configured fraction.
-----------------------------------------------------------------------
*/
func TestInitialEntrySizingBound(t *testing.T) {
	cfg := testConfig()
	eng, led := buildEngine(t, cfg)

	res := eng.Step(step(0, testutils.BullState(),
		map[string]types.Bar{"BBB": bar(100, 99, 100), "AAA": bar(50, 49, 50)},
		map[string]types.Snapshot{"BBB": snap(3, 2, 50), "AAA": snap(1, 1, 50)},
	))

	if led.Count(types.Buy) != 1 {
		t.Fatalf("expected one entry, ledger: %+v", led.Records())
	}
	buy := led.Records()[0]
	if buy.Symbol != "BBB" {
		t.Fatalf("expected entry into BBB, got %s", buy.Symbol)
	}
	notional := buy.Shares * buy.Price
	if notional > cfg.TradeSizePct*cfg.InitialCash+1e-9 {
		t.Fatalf("entry notional %f exceeds the configured fraction %f", notional, cfg.TradeSizePct*cfg.InitialCash)
	}
	if math.Abs(notional-cfg.TradeSizePct*cfg.InitialCash) > 1e-6 {
		t.Fatalf("entry notional %f, want %f", notional, cfg.TradeSizePct*cfg.InitialCash)
	}
	if _, armed := eng.StopLevel(); !armed {
		t.Fatal("entry must arm the trailing stop")
	}
	sum := 0.0
	for _, w := range res.Allocation {
		if w < 0 {
			t.Fatalf("negative allocation weight: %+v", res.Allocation)
		}
		sum += w
	}
	if sum > 1+1e-9 {
		t.Fatalf("allocation sum %f exceeds 1", sum)
	}
}

/*
-----------------------------------------------------------------------
Rotation: a 25 %-volatility challenger against an 8 %-volatility holding
with a 4 % switch threshold produces a switch-sell and a switch-buy at
the step's close prices, each leg charged the transaction cost rate.
-----------------------------------------------------------------------
*/
func TestVolatilitySwitchScenario(t *testing.T) {
	cfg := testConfig()
	eng, led := buildEngine(t, cfg)

	eng.Step(step(0, testutils.BullState(),
		map[string]types.Bar{"BBB": bar(100, 99, 100), "AAA": bar(50, 49, 50)},
		map[string]types.Snapshot{"BBB": snap(3, 2, 50), "AAA": snap(1, 1, 50)},
	))
	heldShares := eng.Portfolio().Shares("BBB")
	if heldShares <= 0 {
		t.Fatal("precondition: BBB must be held")
	}
	costsBefore := eng.Portfolio().Costs()

	eng.Step(step(1, testutils.BullState(),
		map[string]types.Bar{"BBB": bar(100, 99, 100), "AAA": bar(50.25, 49, 50)},
		map[string]types.Snapshot{"BBB": snap(8, 2, 50), "AAA": snap(25, 1.5, 50)},
	))

	recs := led.Records()
	if len(recs) != 3 {
		t.Fatalf("expected entry + two switch legs, got %+v", recs)
	}
	sell, buy := recs[1], recs[2]
	if sell.Action != types.SwitchSell || sell.Symbol != "BBB" || sell.Price != 100 {
		t.Fatalf("unexpected switch-sell leg: %+v", sell)
	}
	if math.Abs(sell.Shares-heldShares) > 1e-12 {
		t.Fatalf("switch must liquidate the full position: sold %f of %f", sell.Shares, heldShares)
	}
	if buy.Action != types.SwitchBuy || buy.Symbol != "AAA" || buy.Price != 50 {
		t.Fatalf("unexpected switch-buy leg: %+v", buy)
	}
	if eng.Active() != "AAA" {
		t.Fatalf("active instrument must be AAA, got %s", eng.Active())
	}

	// 0.8 % of notional on each leg, nothing else (parking disabled).
	wantCosts := cfg.TradeCostRate * (sell.Shares*sell.Price + buy.Shares*buy.Price)
	if got := eng.Portfolio().Costs() - costsBefore; math.Abs(got-wantCosts) > 1e-9 {
		t.Fatalf("switch costs %f, want %f", got, wantCosts)
	}

	// Stop re-armed off the new instrument's bar: 50.25 − 3×1.5.
	stop, armed := eng.StopLevel()
	if !armed || math.Abs(stop-(50.25-3*1.5)) > 1e-12 {
		t.Fatalf("stop after switch = %f (armed=%v), want 45.75", stop, armed)
	}
}

/*
-----------------------------------------------------------------------
Partial entry: one down day with RSI 35 buys exactly one trade-size clip
and re-arms the stop at bar.high − 3×ATR.
-----------------------------------------------------------------------
*/
func TestPartialEntryScenario(t *testing.T) {
	cfg := testConfig()
	eng, led := buildEngine(t, cfg)

	res1 := eng.Step(step(0, testutils.BullState(),
		map[string]types.Bar{"BBB": bar(100, 99, 100), "AAA": bar(50, 49, 50)},
		map[string]types.Snapshot{"BBB": snap(3, 2, 50), "AAA": snap(1, 1, 50)},
	))
	shares1 := eng.Portfolio().Shares("BBB")

	eng.Step(step(1, testutils.BullState(),
		map[string]types.Bar{"BBB": bar(100.5, 98.5, 99), "AAA": bar(50, 49, 50)},
		map[string]types.Snapshot{"BBB": snap(3, 2, 35), "AAA": snap(1, 1, 50)},
	))

	if up, down := eng.Streaks(); up != 0 || down != 1 {
		t.Fatalf("streaks after one down day = %d/%d, want 0/1", up, down)
	}
	recs := led.Records()
	last := recs[len(recs)-1]
	if last.Action != types.Buy || last.Symbol != "BBB" || last.Price != 99 {
		t.Fatalf("expected a dip buy at 99, got %+v", last)
	}
	// The engine marked BBB at 99 before sizing, so the clip is the trade
	// size of the marked-down portfolio.
	preStepValue := res1.Value - shares1*(100-99)
	want := cfg.TradeSizePct * preStepValue
	if got := last.Shares * last.Price; math.Abs(got-want) > 1e-6 {
		t.Fatalf("dip buy notional %f, want %f", got, want)
	}
	if math.Abs(eng.TradeSize()-want) > 1e-6 {
		t.Fatalf("realigned trade size %f, want %f", eng.TradeSize(), want)
	}
	stop, armed := eng.StopLevel()
	if !armed || math.Abs(stop-(100.5-3*2)) > 1e-12 {
		t.Fatalf("stop after dip buy = %f (armed=%v), want 94.5", stop, armed)
	}
}

func TestPartialEntryBlockedByNaNRSI(t *testing.T) {
	cfg := testConfig()
	eng, led := buildEngine(t, cfg)

	eng.Step(step(0, testutils.BullState(),
		map[string]types.Bar{"BBB": bar(100, 99, 100), "AAA": bar(50, 49, 50)},
		map[string]types.Snapshot{"BBB": snap(3, 2, 50), "AAA": snap(1, 1, 50)},
	))
	before := led.Len()

	// Down day, but the RSI reading is unavailable: the neutral fallback
	// (50) must block the oversold entry.
	eng.Step(step(1, testutils.BullState(),
		map[string]types.Bar{"BBB": bar(100, 98.5, 99), "AAA": bar(50, 49, 50)},
		map[string]types.Snapshot{"BBB": snap(3, 2, math.NaN()), "AAA": snap(1, 1, 50)},
	))
	if led.Len() != before {
		t.Fatalf("NaN RSI must not trigger a dip buy, got %+v", led.Records())
	}
}

/*
-----------------------------------------------------------------------
Partial exit: two consecutive up days sell one clip, a longer streak
halves the clip.
-----------------------------------------------------------------------
*/
func TestPartialExitOnUpStreak(t *testing.T) {
	cfg := testConfig()
	eng, led := buildEngine(t, cfg)

	bars := func(close float64) map[string]types.Bar {
		return map[string]types.Bar{"BBB": bar(close+0.5, close-0.5, close), "AAA": bar(50, 49, 50)}
	}
	snaps := map[string]types.Snapshot{"BBB": snap(3, 2, 55), "AAA": snap(1, 1, 50)}

	eng.Step(step(0, testutils.BullState(), bars(100), snaps)) // entry
	eng.Step(step(1, testutils.BullState(), bars(101), snaps)) // up 1
	if led.Count(types.Sell) != 0 {
		t.Fatalf("no exit expected on a single up day, got %+v", led.Records())
	}
	eng.Step(step(2, testutils.BullState(), bars(102), snaps)) // up 2 → clip
	if led.Count(types.Sell) != 1 {
		t.Fatalf("expected one partial exit, got %+v", led.Records())
	}
	firstClip := led.Records()[led.Len()-1].Shares

	eng.Step(step(3, testutils.BullState(), bars(103), snaps)) // up 3 → half clip
	if led.Count(types.Sell) != 2 {
		t.Fatalf("expected a second partial exit, got %+v", led.Records())
	}
	secondClip := led.Records()[led.Len()-1].Shares
	if secondClip >= firstClip {
		t.Fatalf("extended streak must halve the clip: first %f, second %f", firstClip, secondClip)
	}
}

/*
-----------------------------------------------------------------------
Stop-loss: highest 100, ATR 2 → stop 94; a bar low of 93 liquidates at
the close and the proceeds are swept into the cash equivalent.
-----------------------------------------------------------------------
*/
func TestStopLossScenario(t *testing.T) {
	cfg := testConfig()
	cfg.CashPrice = 50 // realistic lot so the sweep executes
	eng, led := buildEngine(t, cfg)

	eng.Step(step(0, testutils.BullState(),
		map[string]types.Bar{"BBB": bar(100, 99, 100), "AAA": bar(50, 49, 50)},
		map[string]types.Snapshot{"BBB": snap(3, 2, 50), "AAA": snap(1, 1, 50)},
	))
	held := eng.Portfolio().Shares("BBB")
	if held <= 0 {
		t.Fatal("precondition: BBB must be held")
	}
	if stop, armed := eng.StopLevel(); !armed || stop != 94 {
		t.Fatalf("stop = %f (armed=%v), want 94", stop, armed)
	}
	parkedBefore := eng.Portfolio().Shares(cfg.CashSymbol)
	costsBefore := eng.Portfolio().Costs()

	// Neutral regime: no re-entry in the same step, but the stop still fires.
	eng.Step(step(1, testutils.NeutralState(),
		map[string]types.Bar{"BBB": bar(100, 93, 93.5), "AAA": bar(50, 49, 50)},
		map[string]types.Snapshot{"BBB": snap(3, 2, 50), "AAA": snap(1, 1, 50)},
	))

	if led.Count(types.Stop) != 1 {
		t.Fatalf("expected one stop record, got %+v", led.Records())
	}
	stopRec := led.Records()[led.Len()-2] // last record is the park sweep
	if stopRec.Action != types.Stop || stopRec.Price != 93.5 || math.Abs(stopRec.Shares-held) > 1e-12 {
		t.Fatalf("unexpected stop record: %+v", stopRec)
	}
	if got := eng.Portfolio().Shares("BBB"); got != 0 {
		t.Fatalf("position must be flat after the stop, got %f shares", got)
	}
	if _, armed := eng.StopLevel(); armed {
		t.Fatal("stop must be disarmed after liquidation")
	}
	if up, down := eng.Streaks(); up != 0 || down != 0 {
		t.Fatalf("streaks must reset after liquidation, got %d/%d", up, down)
	}
	last := led.Records()[led.Len()-1]
	if last.Action != types.Park {
		t.Fatalf("proceeds must be swept into the cash equivalent, got %+v", last)
	}
	if eng.Portfolio().Shares(cfg.CashSymbol) <= parkedBefore {
		t.Fatal("cash-equivalent holding must grow from the sweep")
	}
	// The stop leg itself was charged the transaction cost.
	stopCost := cfg.TradeCostRate * held * 93.5
	if got := eng.Portfolio().Costs() - costsBefore; got < stopCost-1e-9 {
		t.Fatalf("costs after stop %f, want at least %f", got, stopCost)
	}
}

/*
-----------------------------------------------------------------------
Trailing stop monotonicity: rising highs with a widening ATR never drag
the stop back down.
-----------------------------------------------------------------------
*/
func TestTrailingStopNeverLowers(t *testing.T) {
	cfg := testConfig()
	eng, _ := buildEngine(t, cfg)

	aaa := bar(50, 49, 50)
	aaaSnap := snap(1, 1, 50)

	eng.Step(step(0, testutils.BullState(),
		map[string]types.Bar{"BBB": bar(100, 99, 100), "AAA": aaa},
		map[string]types.Snapshot{"BBB": snap(3, 2, 50), "AAA": aaaSnap},
	))
	prev, armed := eng.StopLevel()
	if !armed || prev != 94 {
		t.Fatalf("entry stop = %f, want 94", prev)
	}

	// Bar 1 widens the ATR (106−15 < 94, stop holds), bar 2 tightens it
	// (stop ratchets to 107−3), bar 3 widens again (107.5−9 < 104, holds).
	seq := []struct {
		high, low, close float64
		atr              float64
		want             float64
	}{
		{106, 100, 105, 5, 94},
		{107, 104.5, 104.9, 1, 104},
		{107.5, 105, 106, 3, 104},
	}
	for i, s := range seq {
		eng.Step(step(i+1, testutils.BullState(),
			map[string]types.Bar{"BBB": {Open: s.close, High: s.high, Low: s.low, Close: s.close, Volume: 1000}, "AAA": aaa},
			map[string]types.Snapshot{"BBB": snap(3, s.atr, 50), "AAA": aaaSnap},
		))
		stop, armed := eng.StopLevel()
		if !armed {
			t.Fatalf("bar %d: stop unexpectedly disarmed", i+1)
		}
		if stop < prev {
			t.Fatalf("bar %d: stop lowered from %f to %f", i+1, prev, stop)
		}
		if math.Abs(stop-s.want) > 1e-12 {
			t.Fatalf("bar %d: stop = %f, want %f", i+1, stop, s.want)
		}
		prev = stop
	}
}

func TestFlatReturnResetsStreaks(t *testing.T) {
	cfg := testConfig()
	eng, _ := buildEngine(t, cfg)

	bars := func(close float64) map[string]types.Bar {
		return map[string]types.Bar{"BBB": bar(close+0.5, close-0.5, close), "AAA": bar(50, 49, 50)}
	}
	snaps := map[string]types.Snapshot{"BBB": snap(3, 2, 55), "AAA": snap(1, 1, 50)}

	eng.Step(step(0, testutils.NeutralState(), bars(100), snaps))
	eng.Step(step(1, testutils.NeutralState(), bars(101), snaps))
	if up, _ := eng.Streaks(); up != 1 {
		t.Fatalf("expected up-streak 1, got %d", up)
	}
	eng.Step(step(2, testutils.NeutralState(), bars(101), snaps))
	if up, down := eng.Streaks(); up != 0 || down != 0 {
		t.Fatalf("flat day must reset both streaks, got %d/%d", up, down)
	}
}

/*
-----------------------------------------------------------------------
Regime gating: bear parks everything, neutral never opens new positions.
-----------------------------------------------------------------------
*/
func TestBearRegimeParksEverything(t *testing.T) {
	cfg := testConfig()
	cfg.CashPrice = 50
	eng, led := buildEngine(t, cfg)

	bars := map[string]types.Bar{"BBB": bar(100, 99, 100), "AAA": bar(50, 49, 50)}
	snaps := map[string]types.Snapshot{"BBB": snap(3, 2, 50), "AAA": snap(1, 1, 50)}

	eng.Step(step(0, testutils.BullState(), bars, snaps))
	if eng.Portfolio().Shares("BBB") <= 0 {
		t.Fatal("precondition: BBB must be held")
	}

	res := eng.Step(step(1, testutils.BearState(), bars, snaps))
	if res.Regime != types.Bear {
		t.Fatalf("regime = %s, want bear", res.Regime)
	}
	if eng.Portfolio().Shares("BBB") != 0 {
		t.Fatal("bear regime must liquidate the position")
	}
	if led.Count(types.Sell) != 1 {
		t.Fatalf("expected one liquidation sell, got %+v", led.Records())
	}
	if w := res.Allocation[cfg.CashSymbol]; w < 0.95 {
		t.Fatalf("bear allocation must sit in the cash equivalent, got %+v", res.Allocation)
	}
	if up, down := eng.Streaks(); up != 0 || down != 0 {
		t.Fatalf("streaks must reset on liquidation, got %d/%d", up, down)
	}
}

func TestNeutralRegimeOpensNothing(t *testing.T) {
	cfg := testConfig()
	eng, led := buildEngine(t, cfg)

	eng.Step(step(0, testutils.NeutralState(),
		map[string]types.Bar{"BBB": bar(100, 99, 100), "AAA": bar(50, 49, 50)},
		map[string]types.Snapshot{"BBB": snap(3, 2, 50), "AAA": snap(1, 1, 50)},
	))
	// Down day with an oversold RSI: still no entry outside a bull regime.
	eng.Step(step(1, testutils.NeutralState(),
		map[string]types.Bar{"BBB": bar(100, 98, 99), "AAA": bar(50, 49, 50)},
		map[string]types.Snapshot{"BBB": snap(3, 2, 35), "AAA": snap(1, 1, 50)},
	))
	if led.Len() != 0 {
		t.Fatalf("neutral regime must not trade, got %+v", led.Records())
	}
}

func TestSelectionFailureHoldsAllocation(t *testing.T) {
	cfg := testConfig()
	eng, led := buildEngine(t, cfg)

	eng.Step(step(0, testutils.BullState(),
		map[string]types.Bar{"BBB": bar(100, 99, 100), "AAA": bar(50, 49, 50)},
		map[string]types.Snapshot{"BBB": snap(3, 2, 50), "AAA": snap(1, 1, 50)},
	))
	sharesBefore := eng.Portfolio().Shares("BBB")

	// All volatilities unavailable: selection fails, the position holds.
	res := eng.Step(step(1, testutils.BullState(),
		map[string]types.Bar{"BBB": bar(100, 99, 100), "AAA": bar(50, 49, 50)},
		map[string]types.Snapshot{"BBB": snap(math.NaN(), 2, 50), "AAA": snap(math.NaN(), 1, 50)},
	))
	if got := eng.Portfolio().Shares("BBB"); got != sharesBefore {
		t.Fatalf("failed selection must hold the position: %f → %f", sharesBefore, got)
	}
	if led.Count(types.SwitchSell) != 0 {
		t.Fatalf("no rotation expected, got %+v", led.Records())
	}
	found := false
	for _, a := range res.Alerts {
		if a == "No valid rotation candidate; holding previous allocation." {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a hold alert, got %v", res.Alerts)
	}
}

func TestAllocationCapAcrossRun(t *testing.T) {
	cfg := testConfig()
	cfg.CashPrice = 50
	eng, _ := buildEngine(t, cfg)

	closes := []float64{100, 99, 101, 103, 104, 95, 96}
	rsis := []float64{50, 35, 50, 55, 60, 30, 50}
	for i, c := range closes {
		res := eng.Step(step(i, testutils.BullState(),
			map[string]types.Bar{"BBB": bar(c+1, c-1, c), "AAA": bar(50, 49, 50)},
			map[string]types.Snapshot{"BBB": snap(5, 2, rsis[i]), "AAA": snap(2, 1, 50)},
		))
		sum := 0.0
		for sym, w := range res.Allocation {
			if w < 0 {
				t.Fatalf("step %d: negative weight for %s: %+v", i, sym, res.Allocation)
			}
			sum += w
		}
		if sum > 1+1e-9 {
			t.Fatalf("step %d: allocation sum %f exceeds 1 (%+v)", i, sum, res.Allocation)
		}
	}
}

func TestWashSaleRestrictionBlocksSwitch(t *testing.T) {
	cfg := testConfig()
	cfg.Restrictions = map[string]time.Time{"AAA": day(30)}
	eng, led := buildEngine(t, cfg)

	eng.Step(step(0, testutils.BullState(),
		map[string]types.Bar{"BBB": bar(100, 99, 100), "AAA": bar(50, 49, 50)},
		map[string]types.Snapshot{"BBB": snap(3, 2, 50), "AAA": snap(1, 1, 50)},
	))
	// AAA is far more volatile but restricted: no switch may happen.
	eng.Step(step(1, testutils.BullState(),
		map[string]types.Bar{"BBB": bar(100, 99, 100), "AAA": bar(50, 49, 50)},
		map[string]types.Snapshot{"BBB": snap(8, 2, 50), "AAA": snap(25, 1.5, 50)},
	))
	if led.Count(types.SwitchSell) != 0 || eng.Active() != "BBB" {
		t.Fatalf("restricted instrument must not win the rotation: active=%s, records=%+v", eng.Active(), led.Records())
	}
}
