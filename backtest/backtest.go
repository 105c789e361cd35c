// Package backtest replays aligned bar history through the rotation engine,
// computing per‑instrument indicators and the broad‑market state as it goes.
package backtest

import (
	"fmt"
	"math"
	"time"

	"github.com/evdnx/govr/config"
	"github.com/evdnx/govr/engine"
	"github.com/evdnx/govr/indicator"
	"github.com/evdnx/govr/ledger"
	"github.com/evdnx/govr/logger"
	"github.com/evdnx/govr/types"
)

// Input is the aligned history a run consumes.  Every series must have one
// element per entry in Dates; Bars must cover every configured candidate.
// Sentiment is optional – nil runs with a neutral ratio of 1.
type Input struct {
	Dates     []time.Time
	Bars      map[string][]types.Bar
	Benchmark []types.Bar
	VolIndex  []float64
	Sentiment []float64
}

// Summary is the outcome of one run.
type Summary struct {
	FinalValue float64
	ReturnPct  float64
	Costs      float64
	Trades     int
	Switches   int
	Records    []types.TradeRecord
}

// Runner wires indicator sources to an engine and replays history through
// them.  A Runner is single‑use per Run call but holds no state between runs.
type Runner struct {
	cfg config.Config
	log logger.Logger
}

func New(cfg config.Config, log logger.Logger) *Runner {
	return &Runner{cfg: cfg, log: log}
}

// Run replays the input through a fresh engine and returns the summary.  The
// supplied ledger receives every trade record; pass a fresh one per run.
func (r *Runner) Run(in Input, led *ledger.Ledger) (Summary, error) {
	if err := r.validate(in); err != nil {
		return Summary{}, err
	}

	eng, err := engine.New(r.cfg, r.log, led)
	if err != nil {
		return Summary{}, err
	}

	windows := indicator.Windows{
		SMA:        r.cfg.SMAWindow,
		ATR:        r.cfg.ATRWindow,
		Volatility: r.cfg.VolWindow,
		MACDFast:   r.cfg.MACDFast,
		MACDSlow:   r.cfg.MACDSlow,
		MACDSignal: r.cfg.MACDSignal,
	}
	sources := make(map[string]*indicator.Source, len(r.cfg.Candidates))
	for _, sym := range r.cfg.Candidates {
		src, err := indicator.NewSource(windows)
		if err != nil {
			return Summary{}, fmt.Errorf("indicator source for %s: %w", sym, err)
		}
		sources[sym] = src
	}

	benchSrc, err := indicator.NewSource(windows)
	if err != nil {
		return Summary{}, fmt.Errorf("benchmark indicator source: %w", err)
	}
	smaShort := indicator.NewSMA(r.cfg.SMAShortWindow)
	smaLong := indicator.NewSMA(r.cfg.SMALongWindow)

	var final float64
	for i, date := range in.Dates {
		bars := make(map[string]types.Bar, len(r.cfg.Candidates))
		snaps := make(map[string]types.Snapshot, len(r.cfg.Candidates))
		for _, sym := range r.cfg.Candidates {
			bar := in.Bars[sym][i]
			bars[sym] = bar
			if err := sources[sym].Add(bar); err != nil {
				r.log.Warn("indicator_feed_failed",
					logger.Time("date", date),
					logger.String("symbol", sym),
					logger.Err(err),
				)
				continue // engine treats the missing snapshot as unavailable
			}
			snaps[sym] = sources[sym].Snapshot()
		}

		res := eng.Step(engine.StepInput{
			Date:      date,
			Bars:      bars,
			Snapshots: snaps,
			Market:    r.marketState(in, benchSrc, smaShort, smaLong, i, date),
		})
		final = res.Value
	}

	return Summary{
		FinalValue: final,
		ReturnPct:  (final/r.cfg.InitialCash - 1) * 100,
		Costs:      eng.Portfolio().Costs(),
		Trades:     led.Len(),
		Switches:   led.Switches(),
		Records:    led.Records(),
	}, nil
}

// marketState advances the benchmark indicators by one bar and assembles the
// classifier input for the step.
func (r *Runner) marketState(in Input, benchSrc *indicator.Source, smaShort, smaLong *indicator.SMA, i int, date time.Time) types.MarketState {
	bar := in.Benchmark[i]
	smaShort.Add(bar.Close)
	smaLong.Add(bar.Close)
	if err := benchSrc.Add(bar); err != nil {
		r.log.Warn("benchmark_feed_failed", logger.Time("date", date), logger.Err(err))
	}

	change := math.NaN()
	if i > 0 && in.VolIndex[i-1] > 0 {
		change = (in.VolIndex[i] - in.VolIndex[i-1]) / in.VolIndex[i-1]
	}

	sentiment := 1.0
	if in.Sentiment != nil {
		sentiment = in.Sentiment[i]
	}

	return types.MarketState{
		SMAShort:       smaShort.Value(),
		SMALong:        smaLong.Value(),
		VolIndexChange: change,
		SentimentRatio: sentiment,
		RSI:            benchSrc.Snapshot().RSI,
	}
}

func (r *Runner) validate(in Input) error {
	n := len(in.Dates)
	if n == 0 {
		return fmt.Errorf("empty history")
	}
	for _, sym := range r.cfg.Candidates {
		series, ok := in.Bars[sym]
		if !ok {
			return fmt.Errorf("no bar history for candidate %s", sym)
		}
		if len(series) != n {
			return fmt.Errorf("bar history for %s has %d entries, want %d", sym, len(series), n)
		}
	}
	if len(in.Benchmark) != n {
		return fmt.Errorf("benchmark history has %d entries, want %d", len(in.Benchmark), n)
	}
	if len(in.VolIndex) != n {
		return fmt.Errorf("volatility index history has %d entries, want %d", len(in.VolIndex), n)
	}
	if in.Sentiment != nil && len(in.Sentiment) != n {
		return fmt.Errorf("sentiment history has %d entries, want %d", len(in.Sentiment), n)
	}
	return nil
}
