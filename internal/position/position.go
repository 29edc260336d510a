// Package position implements the pending-order and open-position
// lifecycle: triggering, trailing-stop ratcheting, same-bar exit-ambiguity
// resolution, and the closed-trade ledger record.
package position

import (
	"math"
	"time"

	"github.com/quillhaven/breakout-engine/internal/strategy"
)

// ExitReason tags which condition closed a position.
type ExitReason string

const (
	ExitSL       ExitReason = "SL"
	ExitTP       ExitReason = "TP"
	ExitTrail    ExitReason = "TRAIL"
	ExitCloseEnd ExitReason = "CLOSE_END"
)

// PendingOrder is a stop-entry awaiting trigger. At most one exists per
// instrument at any bar; it is replaced or cancelled every bar the engine
// recomputes a signal.
type PendingOrder struct {
	Direction    strategy.Direction
	EntryLevel   float64
	TSSignal     time.Time
	ATRSignal    float64
	ExpiryBarIdx int
}

// NewPendingOrder builds a pending order from a signal, recording the bar
// index it expires on (informational: the engine recomputes every bar).
func NewPendingOrder(sig strategy.Signal, currentBarIdx int) PendingOrder {
	return PendingOrder{
		Direction:    sig.Direction,
		EntryLevel:   sig.EntryLevel,
		TSSignal:     sig.Timestamp,
		ATRSignal:    sig.ATRAtSignal,
		ExpiryBarIdx: currentBarIdx + sig.ExpiryBars,
	}
}

// IsExpired reports whether currentBarIdx is past this order's expiry.
func (p PendingOrder) IsExpired(currentBarIdx int) bool {
	return currentBarIdx > p.ExpiryBarIdx
}

// IsTriggered reports whether the stop-entry level was crossed this bar.
func (p PendingOrder) IsTriggered(high, low float64) bool {
	if p.Direction == strategy.Long {
		return high >= p.EntryLevel
	}
	return low <= p.EntryLevel
}

// Position is an open trade, owned exclusively by one EngineState.
type Position struct {
	Direction   strategy.Direction
	Entry       float64
	SL          float64
	TP          float64
	TSSignal    time.Time
	TSEntry     time.Time
	ATRSignal   float64
	EntryBarIdx int
	RiskCash    float64

	TrailingDistance float64
	ActivationPrice  float64
	BestPrice        float64
	TrailingSL       float64
}

// NewPosition opens a position from a triggered pending order's resolved
// entry/SL/TP, sizing risk_cash against the account's risk-per-trade cash
// allocation. Callers must reject risk_points == 0 fills before calling
// this (numerical degeneracy: no position, no trade logged).
func NewPosition(dir strategy.Direction, entry, sl, tp float64, tsSignal, tsEntry time.Time, atrSignal float64, entryBarIdx int, riskCash, trailingDistance, activationR float64) Position {
	riskPoints := math.Abs(entry - sl)
	pos := Position{
		Direction:        dir,
		Entry:            entry,
		SL:               sl,
		TP:               tp,
		TSSignal:         tsSignal,
		TSEntry:          tsEntry,
		ATRSignal:        atrSignal,
		EntryBarIdx:      entryBarIdx,
		RiskCash:         riskCash,
		TrailingDistance: trailingDistance,
		TrailingSL:       sl,
	}
	if trailingDistance > 0 && activationR > 0 && riskPoints > 0 {
		if dir == strategy.Long {
			pos.ActivationPrice = entry + activationR*riskPoints
		} else {
			pos.ActivationPrice = entry - activationR*riskPoints
		}
	}
	return pos
}

// RiskPoints is the entry-to-SL distance.
func (p Position) RiskPoints() float64 {
	return math.Abs(p.Entry - p.SL)
}

// ComputePnLR returns P&L in R-multiples for a hypothetical exit price.
func (p Position) ComputePnLR(exitPrice float64) float64 {
	rp := p.RiskPoints()
	if rp <= 0 {
		return 0
	}
	var points float64
	if p.Direction == strategy.Long {
		points = exitPrice - p.Entry
	} else {
		points = p.Entry - exitPrice
	}
	return points / rp
}

// UpdateTrailing ratchets TrailingSL in the trade's favor. It never
// retreats: TrailingSL is monotone non-decreasing for LONG, non-increasing
// for SHORT, across the position's lifetime.
func (p *Position) UpdateTrailing(high, low float64) {
	if p.TrailingDistance <= 0 {
		return
	}
	if p.Direction == strategy.Long {
		if high > p.BestPrice {
			p.BestPrice = high
		}
		if p.ActivationPrice > 0 && p.BestPrice < p.ActivationPrice {
			return
		}
		candidate := p.BestPrice - p.TrailingDistance
		if candidate > p.TrailingSL {
			p.TrailingSL = candidate
		}
	} else {
		if p.BestPrice == 0 || low < p.BestPrice {
			p.BestPrice = low
		}
		if p.ActivationPrice > 0 && p.BestPrice > p.ActivationPrice {
			return
		}
		candidate := p.BestPrice + p.TrailingDistance
		if candidate < p.TrailingSL {
			p.TrailingSL = candidate
		}
	}
}

// effectiveSL returns the SL level that would fire right now, and whether
// it is the trailing stop (as opposed to the initial fixed SL).
func (p Position) effectiveSL() (level float64, isTrailing bool) {
	if p.TrailingDistance <= 0 {
		return p.SL, false
	}
	if p.Direction == strategy.Long {
		if p.TrailingSL > p.SL {
			return p.TrailingSL, true
		}
		return p.SL, false
	}
	if p.TrailingSL < p.SL {
		return p.TrailingSL, true
	}
	return p.SL, false
}

// CheckExit evaluates whether SL or TP fired this bar, then ratchets the
// trailing stop for the bars that follow. The stop active during this bar
// is the one carried in from the previous bar: a high that would raise the
// trail forms at an unknown point inside the bar, so it cannot stop the
// same bar's low out. openPrice, when non-nil, selects the coarse-bar
// path-plausibility heuristic for same-bar SL+TP ambiguity; when nil, the
// intrabar path applies the conservative-SL-wins fallback.
func (p *Position) CheckExit(high, low float64, conservative bool, openPrice *float64) (reason ExitReason, price float64, ok bool) {
	effSL, isTrailing := p.effectiveSL()
	defer p.UpdateTrailing(high, low)

	tpActive := p.TP != 0
	var hitSL, hitTP bool
	if p.Direction == strategy.Long {
		hitSL = low <= effSL
		hitTP = tpActive && high >= p.TP
	} else {
		hitSL = high >= effSL
		hitTP = tpActive && low <= p.TP
	}

	slReason := ExitSL
	if isTrailing {
		slReason = ExitTrail
	}

	if hitSL && hitTP {
		if openPrice != nil {
			if p.slFirstPlausible(*openPrice, effSL, high, low) {
				return slReason, effSL, true
			}
			return ExitTP, p.TP, true
		}
		if conservative {
			return slReason, effSL, true
		}
	}
	if hitSL {
		return slReason, effSL, true
	}
	if hitTP {
		return ExitTP, p.TP, true
	}
	return "", 0, false
}

// slFirstPlausible implements the path-plausibility heuristic: estimate
// the path length under an SL-first assumption and compare it against
// 1.5x the bar's range. Ties resolve to SL.
func (p Position) slFirstPlausible(open, effSL, high, low float64) bool {
	rng := high - low
	var pathLen float64
	if p.Direction == strategy.Long {
		pathLen = math.Max(0, open-effSL) + (p.TP - effSL)
	} else {
		pathLen = math.Max(0, effSL-open) + (effSL - p.TP)
	}
	return pathLen <= 1.5*rng
}

// TradeRecord is a closed trade's immutable ledger row.
type TradeRecord struct {
	Ticker        string
	PenaltyATR    float64
	Direction     strategy.Direction
	TSSignal      time.Time
	TSEntry       time.Time
	TSExit        time.Time
	Entry         float64
	SL            float64
	TP            float64
	ExitPrice     float64
	ExitReason    ExitReason
	ATRSignal     float64
	ResultR       float64
	ResultCash    float64
	BalanceAfter  float64
	DurationBars  int
}

// CloseTrade builds the ledger row for a position's exit.
func CloseTrade(p Position, ticker string, penaltyATR float64, tsExit time.Time, exitPrice float64, reason ExitReason, exitBarIdx int, balanceAfter float64) TradeRecord {
	resultR := p.ComputePnLR(exitPrice)
	return TradeRecord{
		Ticker:       ticker,
		PenaltyATR:   penaltyATR,
		Direction:    p.Direction,
		TSSignal:     p.TSSignal,
		TSEntry:      p.TSEntry,
		TSExit:       tsExit,
		Entry:        p.Entry,
		SL:           p.SL,
		TP:           p.TP,
		ExitPrice:    exitPrice,
		ExitReason:   reason,
		ATRSignal:    p.ATRSignal,
		ResultR:      resultR,
		ResultCash:   resultR * p.RiskCash,
		BalanceAfter: balanceAfter,
		DurationBars: exitBarIdx - p.EntryBarIdx,
	}
}
