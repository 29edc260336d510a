package backtester

import (
	"time"

	"github.com/quillhaven/breakout-engine/internal/config"
	"github.com/quillhaven/breakout-engine/internal/model"
	"github.com/quillhaven/breakout-engine/internal/position"
	"github.com/quillhaven/breakout-engine/internal/propsim"
	"github.com/quillhaven/breakout-engine/internal/strategy"
)

// engineState is the sole mutable owner of one run's bookkeeping. Never
// shared across goroutines; each (ticker, penalty) run gets its own.
type engineState struct {
	balance       float64
	openPositions []position.Position
	pendingOrder  *position.PendingOrder

	propSim *propsim.Simulator

	trades      []position.TradeRecord
	equityCurve []EquityRow
	dailyStats  []DailyStatRow
}

func newEngineState(cfg config.Config) *engineState {
	return &engineState{
		balance: cfg.StartBalance.InexactFloat64(),
		propSim: propsim.New(cfg),
	}
}

// computeEquity marks every open position to market and sums unrealized
// R against the account balance.
func (e *Engine) computeEquity(st *engineState, bar model.EnrichedBar) float64 {
	if len(st.openPositions) == 0 {
		return st.balance
	}
	total := 0.0
	for _, pos := range st.openPositions {
		var ref float64
		if e.cfg.DailyEquityMode == config.DailyEquityClose {
			ref = bar.Close.InexactFloat64()
		} else if pos.Direction == strategy.Long {
			ref = bar.Low.InexactFloat64()
		} else {
			ref = bar.High.InexactFloat64()
		}
		total += pos.ComputePnLR(ref) * pos.RiskCash
	}
	return st.balance + total
}

// flushDay appends the just-completed day's stats, if any day has been
// tracked yet.
func (e *Engine) flushDay(st *engineState) {
	daily := st.propSim.Daily
	if !daily.HasDay {
		return
	}
	st.dailyStats = append(st.dailyStats, DailyStatRow{
		Date:          daily.CurrentDay,
		StartEquity:   daily.StartEquity,
		MinEquity:     daily.MinEquity,
		MaxDailyDDPct: daily.DailyDD(),
		LossesClosed:  daily.LossesClosed,
		Halted:        daily.Halted,
	})
}

// processOpenPositions resolves SL/TP/TRAIL exits for every open position
// against one sub-bar, closing and recording trades as they fire. On the
// intrabar path the sub-bar is fine enough that the conservative rule
// resolves same-bar ambiguity; the coarse path supplies the bar's open for
// the path-plausibility heuristic instead.
func (e *Engine) processOpenPositions(st *engineState, sub model.Bar, barIdx int, ts time.Time, intrabar bool) {
	high := sub.High.InexactFloat64()
	low := sub.Low.InexactFloat64()

	var openPrice *float64
	if !intrabar {
		open := sub.Open.InexactFloat64()
		openPrice = &open
	}

	kept := st.openPositions[:0]
	for i := range st.openPositions {
		pos := st.openPositions[i]
		reason, price, ok := pos.CheckExit(high, low, e.cfg.ConservativeSameBar, openPrice)
		if !ok {
			kept = append(kept, pos)
			continue
		}

		resultR := pos.ComputePnLR(price)
		resultCash := resultR * pos.RiskCash
		st.balance += resultCash

		trade := position.CloseTrade(pos, e.ticker, e.penaltyATR, ts, price, reason, barIdx, st.balance)
		st.trades = append(st.trades, trade)
		st.propSim.OnTradeClosed(resultR, st.balance)
	}
	st.openPositions = kept
}

// processPendingOrder triggers a waiting stop-entry against one sub-bar,
// then re-checks the newly opened position against that same bar: a bar
// can touch entry then SL (or TP) before the next bar begins.
func (e *Engine) processPendingOrder(st *engineState, sub model.Bar, barIdx int, ts time.Time, intrabar bool) {
	if st.pendingOrder == nil {
		return
	}

	high := sub.High.InexactFloat64()
	low := sub.Low.InexactFloat64()

	if !st.pendingOrder.IsTriggered(high, low) {
		return
	}
	if st.propSim.IsHalted() {
		// The trigger is consumed, not retained for after the halt.
		st.pendingOrder = nil
		return
	}

	sig := strategy.Signal{
		Direction:   st.pendingOrder.Direction,
		EntryLevel:  st.pendingOrder.EntryLevel,
		ATRAtSignal: st.pendingOrder.ATRSignal,
		Timestamp:   st.pendingOrder.TSSignal,
	}
	entry, sl, tp := e.strat.ComputeEntrySLTP(sig, e.penaltyATR, e.cfg)
	st.pendingOrder = nil

	riskPoints := absF(entry - sl)
	if riskPoints == 0 {
		// Numerical degeneracy: reject the fill silently, no trade logged.
		return
	}

	riskCash := st.balance * e.cfg.RiskPerTrade
	trailingDistance := 0.0
	if e.cfg.ExitMode == config.ExitModeTrailing {
		trailingDistance = e.cfg.TrailingATR * sig.ATRAtSignal
	}
	newPos := position.NewPosition(sig.Direction, entry, sl, tp, sig.Timestamp, ts, sig.ATRAtSignal, barIdx, riskCash, trailingDistance, e.cfg.TrailingActivationR)

	// The bar that triggers the entry can also sweep through SL or TP
	// before it closes. Re-check immediately: the intrabar path falls back
	// to conservative-SL-wins, the coarse path gets the bar's open for the
	// path-plausibility heuristic.
	var openPrice *float64
	if !intrabar {
		open := sub.Open.InexactFloat64()
		openPrice = &open
	}
	reason, price, ok := newPos.CheckExit(high, low, e.cfg.ConservativeSameBar, openPrice)
	if !ok {
		st.openPositions = append(st.openPositions, newPos)
		return
	}

	resultR := newPos.ComputePnLR(price)
	resultCash := resultR * newPos.RiskCash
	st.balance += resultCash
	trade := position.CloseTrade(newPos, e.ticker, e.penaltyATR, ts, price, reason, barIdx, st.balance)
	st.trades = append(st.trades, trade)
	st.propSim.OnTradeClosed(resultR, st.balance)
}

// updateSignal recomputes the pending order every bar: the channel
// moves, so the stop level must follow, or be cancelled outright.
func (e *Engine) updateSignal(st *engineState, enriched []model.EnrichedBar, barIdx int) {
	if st.propSim.IsHalted() {
		st.pendingOrder = nil
		return
	}
	if e.cfg.MaxConcurrentTrades > 0 && len(st.openPositions) >= e.cfg.MaxConcurrentTrades {
		st.pendingOrder = nil
		return
	}

	sig := e.strat.GenerateSignal(enriched, barIdx, e.cfg)
	if sig == nil {
		st.pendingOrder = nil
		return
	}
	order := position.NewPendingOrder(*sig, barIdx)
	st.pendingOrder = &order
}

// closeAllAtEnd force-closes every still-open position at the final bar's
// close, an explicit opt-in variant (cfg.CloseOnEnd) rather than the
// default behavior.
func (e *Engine) closeAllAtEnd(st *engineState, last model.EnrichedBar) {
	price := last.Close.InexactFloat64()
	barIdx := len(st.equityCurve) - 1
	for _, pos := range st.openPositions {
		resultR := pos.ComputePnLR(price)
		resultCash := resultR * pos.RiskCash
		st.balance += resultCash
		trade := position.CloseTrade(pos, e.ticker, e.penaltyATR, last.Timestamp, price, position.ExitCloseEnd, barIdx, st.balance)
		st.trades = append(st.trades, trade)
		st.propSim.OnTradeClosed(resultR, st.balance)
	}
	st.openPositions = nil
}

func absF(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
