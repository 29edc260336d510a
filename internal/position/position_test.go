package position

import (
	"math"
	"testing"
	"time"

	"github.com/quillhaven/breakout-engine/internal/strategy"
)

func newLong(entry, sl, tp float64) Position {
	return NewPosition(strategy.Long, entry, sl, tp, time.Time{}, time.Time{}, 2, 0, 1000, 0, 0)
}

func TestLongHitsTPCleanly(t *testing.T) {
	p := newLong(100, 98, 102)
	open := 100.0
	reason, price, ok := p.CheckExit(103, 99, true, &open)
	if !ok || reason != ExitTP || price != 102 {
		t.Fatalf("expected TP at 102, got reason=%v price=%v ok=%v", reason, price, ok)
	}
	if r := p.ComputePnLR(price); math.Abs(r-1) > 1e-9 {
		t.Fatalf("expected result_r=+1, got %v", r)
	}
}

func TestLongHitsSLCleanly(t *testing.T) {
	p := newLong(100, 98, 102)
	open := 100.0
	reason, price, ok := p.CheckExit(101, 97, true, &open)
	if !ok || reason != ExitSL || price != 98 {
		t.Fatalf("expected SL at 98, got reason=%v price=%v ok=%v", reason, price, ok)
	}
	if r := p.ComputePnLR(price); math.Abs(r-(-1)) > 1e-9 {
		t.Fatalf("expected result_r=-1, got %v", r)
	}
}

func TestAmbiguousBarHeuristicChoosesSLCase3(t *testing.T) {
	p := newLong(100, 98, 102)
	open := 101.0
	reason, _, ok := p.CheckExit(103, 97, true, &open)
	if !ok || reason != ExitSL {
		t.Fatalf("expected SL to win (path-SL-first length 7 <= 9), got %v ok=%v", reason, ok)
	}
}

func TestAmbiguousBarHeuristicChoosesSLCase4(t *testing.T) {
	p := newLong(100, 98, 102)
	open := 97.5
	reason, _, ok := p.CheckExit(103, 97, true, &open)
	if !ok || reason != ExitSL {
		t.Fatalf("expected SL to win (path-SL-first length 4 <= 9), got %v ok=%v", reason, ok)
	}
}

func TestTrailingStopRatchetsThenTriggers(t *testing.T) {
	p := NewPosition(strategy.Long, 100, 98, 0, time.Time{}, time.Time{}, 2, 0, 1000, 6, 0)

	reason, _, ok := p.CheckExit(110, 99, true, nil)
	if ok {
		t.Fatalf("bar A should not exit, got reason=%v", reason)
	}
	if p.TrailingSL != 104 {
		t.Fatalf("expected trailing_sl=104 after bar A, got %v", p.TrailingSL)
	}

	reason, price, ok := p.CheckExit(108, 103, true, nil)
	if !ok || reason != ExitTrail || price != 104 {
		t.Fatalf("expected TRAIL exit at 104, got reason=%v price=%v ok=%v", reason, price, ok)
	}
	if r := p.ComputePnLR(price); math.Abs(r-2) > 1e-9 {
		t.Fatalf("expected result_r=+2, got %v", r)
	}
}

func TestTrailingSLNeverRetreats(t *testing.T) {
	p := NewPosition(strategy.Long, 100, 98, 0, time.Time{}, time.Time{}, 2, 0, 1000, 6, 0)
	p.CheckExit(110, 99, true, nil)
	before := p.TrailingSL
	p.CheckExit(105, 104, true, nil)
	if p.TrailingSL < before {
		t.Fatalf("trailing_sl must be monotone non-decreasing for LONG, went from %v to %v", before, p.TrailingSL)
	}
}

func TestIntrabarPathConservativeSLWins(t *testing.T) {
	p := newLong(100, 98, 102)
	reason, price, ok := p.CheckExit(103, 97, true, nil)
	if !ok || reason != ExitSL || price != 98 {
		t.Fatalf("expected conservative SL win on intrabar path, got reason=%v price=%v ok=%v", reason, price, ok)
	}
}

func TestPendingOrderTriggerDirectional(t *testing.T) {
	longOrder := PendingOrder{Direction: strategy.Long, EntryLevel: 100}
	if !longOrder.IsTriggered(100, 99) {
		t.Fatalf("expected long order to trigger at high=100")
	}
	if longOrder.IsTriggered(99.9, 99) {
		t.Fatalf("expected long order not to trigger below entry_level")
	}

	shortOrder := PendingOrder{Direction: strategy.Short, EntryLevel: 100}
	if !shortOrder.IsTriggered(101, 100) {
		t.Fatalf("expected short order to trigger at low=100")
	}
}

func TestRiskPointsZeroYieldsZeroPnL(t *testing.T) {
	p := newLong(100, 100, 102)
	if r := p.ComputePnLR(105); r != 0 {
		t.Fatalf("expected zero P&L for degenerate risk_points, got %v", r)
	}
}
