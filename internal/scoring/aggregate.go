// Package scoring turns raw trade ledgers into aggregated per-run metrics,
// pairs in-sample against out-of-sample results with eligibility gates, and
// emits ranked, tiered shortlists.
package scoring

import (
	"math"

	"github.com/quillhaven/breakout-engine/internal/backtester"
	"github.com/quillhaven/breakout-engine/internal/config"
	"github.com/quillhaven/breakout-engine/pkg/types"
	"github.com/quillhaven/breakout-engine/pkg/utils"
)

// Aggregate reduces one run's ledger, equity curve, and daily stats to the
// Summary the comparison layer and summary.json consume.
func Aggregate(res backtester.Result, cfg config.Config) types.Summary {
	s := types.Summary{
		Ticker:      res.Ticker,
		PenaltyATR:  res.PenaltyATR,
		SplitTarget: splitTargetLabel(cfg),
		NTrades:     len(res.Trades),
		Bars:        res.Bars,

		NViolateFTMOBars:  res.PropStats.NViolateFTMOBars,
		NViolateGFTBars:   res.PropStats.NViolateGFTBars,
		NViolateTotalBars: res.PropStats.NViolateTotalBars,

		EndBalance: cfg.StartBalance.InexactFloat64(),
	}

	if len(res.EquityCurve) > 0 {
		s.DateStart = res.EquityCurve[0].Time
		s.DateEnd = res.EquityCurve[len(res.EquityCurve)-1].Time
		s.EndBalance = res.EquityCurve[len(res.EquityCurve)-1].Balance
		for _, row := range res.EquityCurve {
			if row.DDGlobal > s.MaxGlobalDD {
				s.MaxGlobalDD = row.DDGlobal
			}
		}
	}

	if len(res.Trades) > 0 {
		rs := make([]float64, len(res.Trades))
		for i, tr := range res.Trades {
			rs[i] = tr.ResultR
			s.NetR += tr.ResultR
			s.NetCash += tr.ResultCash
			if tr.ResultR > 0 {
				s.NWins++
			} else {
				s.NLosses++
			}
		}
		s.WinRate = utils.WinRate(rs)
		s.ExpectancyR = utils.Mean(rs)
		s.ProfitFactor = utils.ProfitFactor(rs)
		s.EndBalance = res.Trades[len(res.Trades)-1].BalanceAfter
	}

	if len(res.DailyStats) > 0 {
		dds := make([]float64, len(res.DailyStats))
		for i, d := range res.DailyStats {
			dds[i] = d.MaxDailyDDPct
			if d.MaxDailyDDPct > s.MaxDailyDDPct {
				s.MaxDailyDDPct = d.MaxDailyDDPct
			}
		}
		p99 := utils.Quantile(dds, 0.99)
		if !math.IsNaN(p99) {
			s.P99DailyDDPct = p99
		}
	}

	return s
}

func splitTargetLabel(cfg config.Config) string {
	if cfg.SplitMode != config.SplitModeTime {
		return "none"
	}
	return string(cfg.SplitTarget)
}
