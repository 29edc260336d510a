// Package backtester runs a single (ticker, penalty, split) backtest:
// bar-sequential, single-threaded, deterministic. It owns one EngineState
// exclusively and never performs I/O during the bar loop.
package backtester

import (
	"time"

	"github.com/quillhaven/breakout-engine/internal/config"
	"github.com/quillhaven/breakout-engine/internal/model"
	"github.com/quillhaven/breakout-engine/internal/position"
	"github.com/quillhaven/breakout-engine/internal/propsim"
	"github.com/quillhaven/breakout-engine/internal/resample"
	"github.com/quillhaven/breakout-engine/internal/strategy"
)

// EquityRow is one coarse-bar mark-to-market sample.
type EquityRow struct {
	Time      time.Time
	Balance   float64
	Equity    float64
	DDGlobal  float64
	DDDaily   float64
	HaltToday bool
}

// DailyStatRow summarizes one completed trading day.
type DailyStatRow struct {
	Date          time.Time
	StartEquity   float64
	MinEquity     float64
	MaxDailyDDPct float64
	LossesClosed  int
	Halted        bool
}

// Result is everything one run produces: the raw ledger, equity curve,
// and daily stats. Aggregated scoring metrics are computed downstream.
type Result struct {
	Ticker      string
	PenaltyATR  float64
	Trades      []position.TradeRecord
	EquityCurve []EquityRow
	DailyStats  []DailyStatRow
	PropStats   propsim.Stats
	Bars        int
}

// Engine runs one (ticker, penalty) backtest against a prepared strategy.
type Engine struct {
	cfg        config.Config
	strat      strategy.Strategy
	ticker     string
	penaltyATR float64
	loc        *time.Location
}

// New builds an Engine. loc resolves cfg.Timezone once so day-rollover
// checks never reparse it in the hot loop.
func New(cfg config.Config, strat strategy.Strategy, ticker string, penaltyATR float64) (*Engine, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, err
	}
	return &Engine{cfg: cfg, strat: strat, ticker: ticker, penaltyATR: penaltyATR, loc: loc}, nil
}

// Run executes the backtest over coarseBars (the trading timeframe) with
// fineBars (the finer series used for intrabar replay). fineBars may be
// nil, in which case each coarse bar is treated as its own single
// "sub-bar" using the coarse-path plausibility heuristic. Empty
// coarseBars yields an empty Result, not an error.
func (e *Engine) Run(coarseBars []model.Bar, fineBars []model.Bar) (Result, error) {
	if len(coarseBars) == 0 {
		return Result{Ticker: e.ticker, PenaltyATR: e.penaltyATR}, nil
	}

	enriched := e.strat.PrepareIndicators(coarseBars, e.cfg)

	var fineIndex map[int64][]model.Bar
	if len(fineBars) > 0 {
		fineIndex = resample.Index(fineBars, e.cfg.Timeframe)
	}

	st := newEngineState(e.cfg)

	for barIdx, bar := range enriched {
		day := bar.Day(e.loc)

		equity := e.computeEquity(st, bar)

		if !st.propSim.Daily.HasDay || !sameDay(day, st.propSim.Daily.CurrentDay) {
			e.flushDay(st)
			st.propSim.OnNewDay(day, equity)
		}

		st.propSim.UpdateEquity(equity, day)

		st.equityCurve = append(st.equityCurve, EquityRow{
			Time:      bar.Timestamp,
			Balance:   st.balance,
			Equity:    equity,
			DDGlobal:  st.propSim.GlobalDD(equity),
			DDDaily:   st.propSim.Daily.DailyDD(),
			HaltToday: st.propSim.IsHalted(),
		})

		subBars, intrabar := e.subBarsFor(fineIndex, bar.Bar)
		for _, sub := range subBars {
			e.processOpenPositions(st, sub, barIdx, sub.Timestamp, intrabar)
			e.processPendingOrder(st, sub, barIdx, sub.Timestamp, intrabar)
		}

		e.updateSignal(st, enriched, barIdx)
	}

	e.flushDay(st)

	if e.cfg.CloseOnEnd {
		e.closeAllAtEnd(st, enriched[len(enriched)-1])
	}

	return Result{
		Ticker:      e.ticker,
		PenaltyATR:  e.penaltyATR,
		Trades:      st.trades,
		EquityCurve: st.equityCurve,
		DailyStats:  st.dailyStats,
		PropStats:   st.propSim.GetStats(),
		Bars:        len(coarseBars),
	}, nil
}

// subBarsFor returns the fine bars belonging to a coarse bar's bucket, or
// a single-element slice of the coarse bar itself when no finer series is
// indexed or the bucket is empty (the coarse-path fallback). The second
// return reports which execution path applies.
func (e *Engine) subBarsFor(idx map[int64][]model.Bar, coarse model.Bar) ([]model.Bar, bool) {
	if idx == nil {
		return []model.Bar{coarse}, false
	}
	sub := resample.SubBarsFor(idx, coarse.Timestamp, e.cfg.Timeframe)
	if len(sub) == 0 {
		return []model.Bar{coarse}, false
	}
	return sub, true
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
