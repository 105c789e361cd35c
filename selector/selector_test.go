package selector

import (
	"errors"
	"math"
	"testing"
	"time"
)

var day = time.Date(2025, 10, 6, 0, 0, 0, 0, time.UTC)

func TestSelectPicksMaxVolatility(t *testing.T) {
	s := New([]string{"SPY", "NVDA", "MSTR"}, nil)
	sym, skips, err := s.Select(day, map[string]float64{"SPY": 1.5, "NVDA": 5.5, "MSTR": 4.0})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if sym != "NVDA" {
		t.Fatalf("expected NVDA, got %s", sym)
	}
	if len(skips) != 0 {
		t.Fatalf("expected no skips, got %+v", skips)
	}
}

func TestSelectTieBreakIsDeclaredOrder(t *testing.T) {
	s := New([]string{"SPY", "NVDA"}, nil)
	sym, _, err := s.Select(day, map[string]float64{"SPY": 4.0, "NVDA": 4.0})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if sym != "SPY" {
		t.Fatalf("tie must go to the first declared candidate, got %s", sym)
	}
}

func TestSelectSkipsNaNAndMissing(t *testing.T) {
	s := New([]string{"SPY", "NVDA", "MSTR"}, nil)
	sym, skips, err := s.Select(day, map[string]float64{"SPY": math.NaN(), "NVDA": 2.0})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if sym != "NVDA" {
		t.Fatalf("expected NVDA, got %s", sym)
	}
	if len(skips) != 2 {
		t.Fatalf("expected SPY and MSTR skipped, got %+v", skips)
	}
}

func TestSelectHonoursWashSaleRestriction(t *testing.T) {
	expiry := day.AddDate(0, 0, 10)
	s := New([]string{"SPY", "NVDA"}, map[string]time.Time{"NVDA": expiry})

	sym, skips, err := s.Select(day, map[string]float64{"SPY": 1.0, "NVDA": 9.0})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if sym != "SPY" {
		t.Fatalf("restricted NVDA must be excluded, got %s", sym)
	}
	if len(skips) != 1 || skips[0].Symbol != "NVDA" {
		t.Fatalf("expected one NVDA skip, got %+v", skips)
	}

	// Restriction is inclusive of the expiry date itself.
	sym, _, err = s.Select(expiry, map[string]float64{"SPY": 1.0, "NVDA": 9.0})
	if err != nil || sym != "SPY" {
		t.Fatalf("on-expiry selection must still exclude, got %s err=%v", sym, err)
	}

	// One day past expiry the instrument is eligible again.
	sym, _, err = s.Select(expiry.AddDate(0, 0, 1), map[string]float64{"SPY": 1.0, "NVDA": 9.0})
	if err != nil || sym != "NVDA" {
		t.Fatalf("post-expiry selection must include NVDA, got %s err=%v", sym, err)
	}
}

func TestSelectNoValidCandidate(t *testing.T) {
	s := New([]string{"SPY"}, nil)
	_, skips, err := s.Select(day, map[string]float64{"SPY": math.NaN()})
	if !errors.Is(err, ErrNoCandidate) {
		t.Fatalf("expected ErrNoCandidate, got %v", err)
	}
	if len(skips) != 1 {
		t.Fatalf("expected the skip list to survive the error, got %+v", skips)
	}
}

func TestRestrictAddsExclusion(t *testing.T) {
	s := New([]string{"SPY", "NVDA"}, nil)
	s.Restrict("NVDA", day.AddDate(0, 0, 30))
	sym, _, err := s.Select(day, map[string]float64{"SPY": 1.0, "NVDA": 9.0})
	if err != nil || sym != "SPY" {
		t.Fatalf("Restrict must take effect immediately, got %s err=%v", sym, err)
	}
}
