// Package propsim tracks prop-firm drawdown rules: daily and global
// drawdown, informational violation counters, and the authoritative halt
// conditions that block new entries.
package propsim

import (
	"time"

	"github.com/quillhaven/breakout-engine/internal/config"
)

// DailyState is the per-day drawdown tracker, reset on every day
// transition.
type DailyState struct {
	CurrentDay   time.Time
	HasDay       bool
	StartEquity  float64
	MinEquity    float64
	LossesClosed int
	Halted       bool
}

// Reset begins tracking a new trading day at the given mark-to-market
// equity.
func (d *DailyState) Reset(day time.Time, equity float64) {
	d.CurrentDay = day
	d.HasDay = true
	d.StartEquity = equity
	d.MinEquity = equity
	d.LossesClosed = 0
	d.Halted = false
}

// UpdateMinEquity records a new intraday low if equity has dropped.
func (d *DailyState) UpdateMinEquity(equity float64) {
	if equity < d.MinEquity {
		d.MinEquity = equity
	}
}

// DailyDD is today's drawdown from its start-of-day equity to its lowest
// mark since.
func (d DailyState) DailyDD() float64 {
	if d.StartEquity <= 0 {
		return 0
	}
	return (d.StartEquity - d.MinEquity) / d.StartEquity
}

// Simulator is the prop-firm rule engine owned exclusively by one
// EngineState. One instance per (ticker, penalty, split) run.
type Simulator struct {
	cfg        config.Config
	Daily      DailyState
	PeakEquity float64

	NViolateFTMOBars  int
	NViolateGFTBars   int
	NViolateTotalBars int
}

// New builds a simulator seeded with the account's starting balance as
// its initial drawdown peak.
func New(cfg config.Config) *Simulator {
	return &Simulator{
		cfg:        cfg,
		PeakEquity: cfg.StartBalance.InexactFloat64(),
	}
}

// OnNewDay resets the daily tracker at a day transition.
func (s *Simulator) OnNewDay(day time.Time, equity float64) {
	s.Daily.Reset(day, equity)
}

// UpdateEquity marks the account to market for the current bar. On a day
// transition it starts fresh tracking instead of evaluating violations
// against the old day.
func (s *Simulator) UpdateEquity(equity float64, day time.Time) {
	if !s.Daily.HasDay || !sameDay(day, s.Daily.CurrentDay) {
		s.OnNewDay(day, equity)
		return
	}

	s.Daily.UpdateMinEquity(equity)

	if equity > s.PeakEquity {
		s.PeakEquity = equity
	}

	dailyDD := s.Daily.DailyDD()
	globalDD := s.GlobalDD(equity)

	if dailyDD > s.cfg.DailyDDFTMO {
		s.NViolateFTMOBars++
	}
	if dailyDD > s.cfg.DailyDDGFT {
		s.NViolateGFTBars++
	}
	if globalDD > s.cfg.MaxLoss {
		s.NViolateTotalBars++
	}

	if dailyDD >= s.cfg.DailyKillSwitch {
		s.Daily.Halted = true
	}
}

// GlobalDD is the drawdown from the monotone equity peak.
func (s Simulator) GlobalDD(equity float64) float64 {
	if s.PeakEquity <= 0 {
		return 0
	}
	return (s.PeakEquity - equity) / s.PeakEquity
}

// OnTradeClosed updates the consecutive-loss counter and re-evaluates the
// halt condition against the account balance after close.
func (s *Simulator) OnTradeClosed(resultR, balance float64) {
	if resultR < 0 {
		s.Daily.LossesClosed++
		if s.Daily.LossesClosed >= s.cfg.StopAfterNLosses {
			s.Daily.Halted = true
		}
	}

	s.Daily.UpdateMinEquity(balance)
	if s.Daily.DailyDD() >= s.cfg.DailyKillSwitch {
		s.Daily.Halted = true
	}
}

// IsHalted reports whether new entries are blocked for the remainder of
// today.
func (s Simulator) IsHalted() bool {
	return s.Daily.Halted
}

// Stats is the informational violation-counter snapshot persisted
// alongside a run's summary.
type Stats struct {
	NViolateFTMOBars  int
	NViolateGFTBars   int
	NViolateTotalBars int
}

// GetStats returns the accumulated violation counters.
func (s Simulator) GetStats() Stats {
	return Stats{
		NViolateFTMOBars:  s.NViolateFTMOBars,
		NViolateGFTBars:   s.NViolateGFTBars,
		NViolateTotalBars: s.NViolateTotalBars,
	}
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
