package indicator

import "math"

// SMA is a streaming simple moving average over the last n closes.
type SMA struct {
	win *window
}

func NewSMA(n int) *SMA { return &SMA{win: newWindow(n)} }

func (s *SMA) Add(close float64) { s.win.Add(close) }

func (s *SMA) Ready() bool { return s.win.Full() }

// Value returns the current average, or NaN during warm‑up.
func (s *SMA) Value() float64 {
	if !s.Ready() {
		return math.NaN()
	}
	return s.win.Sum() / float64(s.win.Len())
}

// EMA is a streaming exponential moving average.  It seeds with the simple
// average of the first n values, then applies the usual 2/(n+1) smoothing.
type EMA struct {
	n     int
	mult  float64
	seed  *window
	value float64
	ready bool
}

func NewEMA(n int) *EMA {
	if n <= 0 {
		n = 1
	}
	return &EMA{n: n, mult: 2.0 / float64(n+1), seed: newWindow(n)}
}

func (e *EMA) Add(close float64) {
	if e.ready {
		e.value += (close - e.value) * e.mult
		return
	}
	e.seed.Add(close)
	if e.seed.Full() {
		e.value = e.seed.Sum() / float64(e.n)
		e.ready = true
	}
}

func (e *EMA) Ready() bool { return e.ready }

func (e *EMA) Value() float64 {
	if !e.ready {
		return math.NaN()
	}
	return e.value
}
