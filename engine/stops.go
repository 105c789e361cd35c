package engine

import (
	"math"

	"github.com/evdnx/govr/config"
	"github.com/evdnx/govr/types"
)

// stopTracker maintains the trailing high‑water mark and the ATR‑multiple
// stop for the single open position.  It is armed only while shares are
// held; a full exit disarms it.
type stopTracker struct {
	atrMultiple float64
	trigger     string // config.StopTriggerLow or config.StopTriggerClose
	highest     float64
	stop        float64
	armed       bool
}

func newStopTracker(atrMultiple float64, trigger string) *stopTracker {
	return &stopTracker{atrMultiple: atrMultiple, trigger: trigger}
}

// Arm initializes the tracker on entry (or re‑entry): the high‑water mark is
// the entry bar's high, the stop sits atrMultiple ATRs below it.  A NaN ATR
// leaves the tracker disarmed – the position simply trades without a stop
// until the indicator becomes available.
func (s *stopTracker) Arm(barHigh, atr float64) {
	if math.IsNaN(atr) || math.IsNaN(barHigh) {
		s.Reset()
		return
	}
	s.highest = barHigh
	s.stop = barHigh - s.atrMultiple*atr
	s.armed = true
}

// Update advances the trailing state for a held bar.  The high‑water mark is
// monotone, and so is the stop: a widening ATR never drags an armed stop back
// down.
func (s *stopTracker) Update(barHigh, atr float64) {
	if !s.armed {
		s.Arm(barHigh, atr)
		return
	}
	s.highest = math.Max(s.highest, barHigh)
	if !math.IsNaN(atr) {
		s.stop = math.Max(s.stop, s.highest-s.atrMultiple*atr)
	}
}

// Triggered reports whether the configured bar field has touched the stop.
func (s *stopTracker) Triggered(bar types.Bar) bool {
	if !s.armed {
		return false
	}
	ref := bar.Low
	if s.trigger == config.StopTriggerClose {
		ref = bar.Close
	}
	return ref <= s.stop
}

// Reset clears all state; highest price and stop become undefined.
func (s *stopTracker) Reset() {
	s.highest = 0
	s.stop = 0
	s.armed = false
}

// Level returns the current stop price and whether one is armed.
func (s *stopTracker) Level() (float64, bool) { return s.stop, s.armed }
