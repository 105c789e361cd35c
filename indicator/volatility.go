package indicator

import "math"

// Volatility is the trailing annualized volatility in percent: the standard
// deviation of the last n log returns × √252 × 100.  This matches the units
// used by the switch and dampening thresholds elsewhere in the engine.
type Volatility struct {
	returns   *window
	prevClose float64
	hasPrev   bool
}

func NewVolatility(n int) *Volatility {
	if n <= 1 {
		n = 20
	}
	return &Volatility{returns: newWindow(n)}
}

func (v *Volatility) Add(close float64) {
	if v.hasPrev && v.prevClose > 0 && close > 0 {
		v.returns.Add(math.Log(close / v.prevClose))
	}
	v.prevClose = close
	v.hasPrev = true
}

func (v *Volatility) Ready() bool { return v.returns.Full() }

func (v *Volatility) Value() float64 {
	if !v.Ready() {
		return math.NaN()
	}
	vals := v.returns.Values()
	mean := 0.0
	for _, r := range vals {
		mean += r
	}
	mean /= float64(len(vals))
	variance := 0.0
	for _, r := range vals {
		d := r - mean
		variance += d * d
	}
	variance /= float64(len(vals))
	return math.Sqrt(variance) * math.Sqrt(252) * 100
}
