package indicators

import (
	"math"
	"testing"
)

func TestEMAWarmupAndRecursion(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5, 6}
	out := EMA(values, 3)

	for i := 0; i < 2; i++ {
		if !math.IsNaN(out[i]) {
			t.Fatalf("expected NaN warm-up at %d, got %v", i, out[i])
		}
	}

	seed := (1.0 + 2.0 + 3.0) / 3.0
	if out[2] != seed {
		t.Fatalf("expected seed %v at index 2, got %v", seed, out[2])
	}

	alpha := 2.0 / 4.0
	want := (4.0-seed)*alpha + seed
	if math.Abs(out[3]-want) > 1e-9 {
		t.Fatalf("expected %v at index 3, got %v", want, out[3])
	}
}

func TestATRArithmeticMean(t *testing.T) {
	high := []float64{10, 11, 12, 13}
	low := []float64{9, 9, 10, 11}
	close := []float64{9.5, 10.5, 11.5, 12.5}

	atr := ATR(high, low, close, 2)
	if !math.IsNaN(atr[0]) {
		t.Fatalf("expected NaN at warm-up index 0")
	}

	tr := TrueRange(high, low, close)
	want := (tr[0] + tr[1]) / 2
	if math.Abs(atr[1]-want) > 1e-9 {
		t.Fatalf("expected arithmetic mean %v, got %v", want, atr[1])
	}
}

func TestDonchianShiftPreventsLookahead(t *testing.T) {
	high := []float64{1, 2, 3, 10, 5}
	low := []float64{1, 2, 3, 0, 5}

	dHigh, dLow := Donchian(high, low, 2, 1)

	if !math.IsNaN(dHigh[0]) || !math.IsNaN(dHigh[1]) {
		t.Fatalf("expected NaN before shift+period is satisfied")
	}
	// At index 3 (the breakout bar itself), the channel must not yet see
	// its own extreme values.
	if dHigh[3] != 3 {
		t.Fatalf("expected dHigh[3]=3 (shifted window over indices 1..2), got %v", dHigh[3])
	}
	if dLow[3] != 2 {
		t.Fatalf("expected dLow[3]=2, got %v", dLow[3])
	}
	if dHigh[4] != 10 || dLow[4] != 0 {
		t.Fatalf("expected the extremes to enter the channel one bar later, got %v/%v", dHigh[4], dLow[4])
	}
}

func TestRollingQuantileShortWindowIsNaN(t *testing.T) {
	values := []float64{0.1, 0.2, 0.3}
	q := RollingQuantile(values, 5, 0.9)
	for i, v := range q {
		if !math.IsNaN(v) {
			t.Fatalf("expected NaN at %d for under-filled window, got %v", i, v)
		}
	}
}

func TestRollingQuantileComputesExpectedValue(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5}
	q := RollingQuantile(values, 5, 0.5)
	if math.Abs(q[4]-3) > 1e-9 {
		t.Fatalf("expected median 3, got %v", q[4])
	}
}

func TestEmptyInputYieldsEmptyOutput(t *testing.T) {
	if len(EMA(nil, 5)) != 0 {
		t.Fatalf("expected empty EMA output for empty input")
	}
	if len(ATR(nil, nil, nil, 5)) != 0 {
		t.Fatalf("expected empty ATR output for empty input")
	}
}
