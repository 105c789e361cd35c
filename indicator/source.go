package indicator

import (
	"math"

	"github.com/evdnx/goti"
	"github.com/evdnx/govr/types"
)

// Windows selects the lookback lengths for a Source.
type Windows struct {
	SMA        int
	ATR        int
	Volatility int
	MACDFast   int
	MACDSlow   int
	MACDSignal int
}

// DefaultWindows returns the documented defaults (SMA 50, ATR 14, vol 20,
// MACD 12/26/9).
func DefaultWindows() Windows {
	return Windows{SMA: 50, ATR: 14, Volatility: 20, MACDFast: 12, MACDSlow: 26, MACDSignal: 9}
}

// Source computes the per‑instrument indicator snapshot the engine consumes.
// RSI comes from a goti suite; the remaining series are streaming calculators
// local to this package.  Values stay NaN until their window has filled, so
// downstream code must NaN‑guard (it does).
type Source struct {
	suite *goti.IndicatorSuite
	sma   *SMA
	atr   *ATR
	macd  *MACD
	vol   *Volatility
}

// NewSource builds a Source for one instrument.
func NewSource(w Windows) (*Source, error) {
	ic := goti.DefaultConfig()
	suite, err := goti.NewIndicatorSuiteWithConfig(ic)
	if err != nil {
		return nil, err
	}
	return &Source{
		suite: suite,
		sma:   NewSMA(w.SMA),
		atr:   NewATR(w.ATR),
		macd:  NewMACD(w.MACDFast, w.MACDSlow, w.MACDSignal),
		vol:   NewVolatility(w.Volatility),
	}, nil
}

// Add feeds one bar into every calculator.  An error from the goti suite is
// returned so the caller can skip the instrument for this step; the local
// calculators have already consumed the bar and stay consistent.
func (s *Source) Add(bar types.Bar) error {
	s.sma.Add(bar.Close)
	s.atr.Add(bar.High, bar.Low, bar.Close)
	s.macd.Add(bar.Close)
	s.vol.Add(bar.Close)
	return s.suite.Add(bar.High, bar.Low, bar.Close, bar.Volume)
}

// Snapshot returns the current readings.  Unavailable values are NaN.
func (s *Source) Snapshot() types.Snapshot {
	rsi := math.NaN()
	if v, err := s.suite.GetRSI().Calculate(); err == nil {
		rsi = v
	}
	return types.Snapshot{
		RSI:        rsi,
		ATR:        s.atr.Value(),
		MACD:       s.macd.Line(),
		MACDSignal: s.macd.Signal(),
		SMA:        s.sma.Value(),
		Volatility: s.vol.Value(),
	}
}
