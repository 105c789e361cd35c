package indicator

import "math"

// MACD is a streaming Moving Average Convergence Divergence with signal line
// (classic 12/26/9 by default).
type MACD struct {
	fast   *EMA
	slow   *EMA
	signal *EMA
}

func NewMACD(fast, slow, signal int) *MACD {
	return &MACD{fast: NewEMA(fast), slow: NewEMA(slow), signal: NewEMA(signal)}
}

func (m *MACD) Add(close float64) {
	m.fast.Add(close)
	m.slow.Add(close)
	if m.fast.Ready() && m.slow.Ready() {
		m.signal.Add(m.fast.Value() - m.slow.Value())
	}
}

func (m *MACD) Ready() bool { return m.signal.Ready() }

// Line returns the MACD line (fast EMA − slow EMA), NaN during warm‑up.
func (m *MACD) Line() float64 {
	if !m.fast.Ready() || !m.slow.Ready() {
		return math.NaN()
	}
	return m.fast.Value() - m.slow.Value()
}

// Signal returns the smoothed signal line, NaN during warm‑up.
func (m *MACD) Signal() float64 {
	if !m.signal.Ready() {
		return math.NaN()
	}
	return m.signal.Value()
}
