package indicator

import "math"

// ATR is a streaming Wilder Average True Range over n bars.  The first value
// is the simple average of the first n true ranges; afterwards the usual
// (prev×(n−1)+tr)/n smoothing applies.
type ATR struct {
	n         int
	seed      *window
	value     float64
	prevClose float64
	hasPrev   bool
	ready     bool
}

func NewATR(n int) *ATR {
	if n <= 0 {
		n = 14
	}
	return &ATR{n: n, seed: newWindow(n)}
}

func (a *ATR) Add(high, low, close float64) {
	tr := high - low
	if a.hasPrev {
		tr = math.Max(tr, math.Max(math.Abs(high-a.prevClose), math.Abs(low-a.prevClose)))
	}
	a.prevClose = close
	a.hasPrev = true

	if a.ready {
		a.value = (a.value*float64(a.n-1) + tr) / float64(a.n)
		return
	}
	a.seed.Add(tr)
	if a.seed.Full() {
		a.value = a.seed.Sum() / float64(a.n)
		a.ready = true
	}
}

func (a *ATR) Ready() bool { return a.ready }

func (a *ATR) Value() float64 {
	if !a.ready {
		return math.NaN()
	}
	return a.value
}
