package indicator

// window keeps a rolling slice of the most recent values and exposes the
// little slice bookkeeping every streaming calculator needs.
type window struct {
	max int
	buf []float64
}

func newWindow(max int) *window {
	if max <= 0 {
		max = 16
	}
	return &window{max: max}
}

func (w *window) Add(v float64) {
	w.buf = append(w.buf, v)
	if len(w.buf) > w.max {
		w.buf = w.buf[len(w.buf)-w.max:]
	}
}

func (w *window) Len() int { return len(w.buf) }

func (w *window) Full() bool { return len(w.buf) == w.max }

func (w *window) Values() []float64 {
	out := make([]float64, len(w.buf))
	copy(out, w.buf)
	return out
}

func (w *window) Last() float64 {
	if len(w.buf) == 0 {
		return 0
	}
	return w.buf[len(w.buf)-1]
}

func (w *window) Sum() float64 {
	s := 0.0
	for _, v := range w.buf {
		s += v
	}
	return s
}
