// Package selector picks the rotation target: the candidate with the highest
// trailing volatility, subject to wash‑sale exclusions.
package selector

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrNoCandidate is returned when every candidate was excluded.  The engine
// reacts by holding the previous allocation unchanged.
var ErrNoCandidate = errors.New("selector: no valid candidate")

// Skip explains why an instrument was excluded from one selection run.
// Exclusions are data, not control flow: a skipped instrument never aborts
// the selection.
type Skip struct {
	Symbol string
	Reason string
}

// Selector ranks a fixed candidate set by trailing volatility.
type Selector struct {
	candidates   []string
	restrictions map[string]time.Time
}

// New copies the candidate ordering (it is the deterministic tie‑break) and
// the wash‑sale restriction list.
func New(candidates []string, restrictions map[string]time.Time) *Selector {
	cands := make([]string, len(candidates))
	copy(cands, candidates)
	restr := make(map[string]time.Time, len(restrictions))
	for sym, expiry := range restrictions {
		restr[sym] = expiry
	}
	return &Selector{candidates: cands, restrictions: restr}
}

// Restrict adds or extends a wash‑sale restriction.
func (s *Selector) Restrict(symbol string, expiry time.Time) {
	s.restrictions[symbol] = expiry
}

// Select returns the unrestricted candidate with maximum volatility.  Ties go
// to the earliest candidate in declared order.  Instruments with missing or
// NaN volatility are skipped with a reason; if nothing survives, the error is
// ErrNoCandidate.
func (s *Selector) Select(date time.Time, vols map[string]float64) (string, []Skip, error) {
	var skips []Skip
	best := ""
	bestVol := math.Inf(-1)
	for _, sym := range s.candidates {
		if expiry, restricted := s.restrictions[sym]; restricted && !date.After(expiry) {
			skips = append(skips, Skip{Symbol: sym, Reason: fmt.Sprintf("wash-sale restricted until %s", expiry.Format("2006-01-02"))})
			continue
		}
		vol, ok := vols[sym]
		if !ok || math.IsNaN(vol) {
			skips = append(skips, Skip{Symbol: sym, Reason: "volatility unavailable"})
			continue
		}
		if vol > bestVol {
			best = sym
			bestVol = vol
		}
	}
	if best == "" {
		return "", skips, ErrNoCandidate
	}
	return best, skips, nil
}
