package scoring

import (
	"fmt"
	"math"
	"sort"
)

// ShortlistConfig holds the tiered-shortlist gates and score weights.
type ShortlistConfig struct {
	// Tier 1 (funded phase) requires the stricter trade count; Tier 2
	// (challenge phase) relaxes it but excludes Tier 1 tickers.
	Tier1MinTrades int
	Tier2MinTrades int

	MinPF         float64
	MinExpectancy float64
	DDCap         float64

	WeightExpectancy float64
	WeightPF         float64
	WeightDD         float64

	MinScore   float64
	MaxTickers int
}

// DefaultShortlistConfig returns the production shortlist settings.
func DefaultShortlistConfig() ShortlistConfig {
	return ShortlistConfig{
		Tier1MinTrades:   15,
		Tier2MinTrades:   10,
		MinPF:            1.2,
		MinExpectancy:    0.0,
		DDCap:            0.012,
		WeightExpectancy: 0.55,
		WeightPF:         0.30,
		WeightDD:         0.15,
		MinScore:         0.0,
		MaxTickers:       20,
	}
}

// OOSScore is the composite ranking score:
// w_exp*oos_expectancy + w_pf*log(max(oos_pf, eps)) - w_dd*oos_dd.
func OOSScore(c Comparison, cfg ShortlistConfig) float64 {
	expScore := cfg.WeightExpectancy * c.OOS.ExpectancyR
	pfScore := cfg.WeightPF * math.Log(math.Max(c.OOS.ProfitFactor, 1e-9))
	ddPenalty := cfg.WeightDD * c.OOS.MaxDailyDDPct
	return expScore + pfScore - ddPenalty
}

// Rejection records why a ticker made neither tier.
type Rejection struct {
	Ticker  string
	Reasons []string
}

// Shortlists is the tiered output: tier1, tier2 (disjoint from tier1), and
// their union in rank order, plus per-ticker rejection reasons.
type Shortlists struct {
	Tier1      []Comparison
	Tier2      []Comparison
	Tradable   []Comparison
	Rejections []Rejection
}

// BuildShortlists filters, scores, and ranks the comparisons into the
// tiered shortlists.
func BuildShortlists(comps []Comparison, cfg ShortlistConfig) Shortlists {
	tier1 := tierShortlist(comps, cfg.Tier1MinTrades, cfg, nil)

	exclude := make(map[string]bool, len(tier1))
	for _, c := range tier1 {
		exclude[c.Ticker] = true
	}
	tier2 := tierShortlist(comps, cfg.Tier2MinTrades, cfg, exclude)

	tradable := make([]Comparison, 0, len(tier1)+len(tier2))
	tradable = append(tradable, tier1...)
	tradable = append(tradable, tier2...)
	sort.SliceStable(tradable, func(i, j int) bool {
		return tradable[i].Score > tradable[j].Score
	})

	selected := make(map[string]bool, len(tradable))
	for _, c := range tradable {
		selected[c.Ticker] = true
	}

	var rejections []Rejection
	seen := make(map[string]bool)
	for _, c := range comps {
		if selected[c.Ticker] || seen[c.Ticker] {
			continue
		}
		seen[c.Ticker] = true
		rejections = append(rejections, Rejection{
			Ticker:  c.Ticker,
			Reasons: rejectionReasons(c, cfg),
		})
	}

	return Shortlists{Tier1: tier1, Tier2: tier2, Tradable: tradable, Rejections: rejections}
}

// tierShortlist applies one tier's gates, scores the survivors, and returns
// the top MaxTickers in descending score order.
func tierShortlist(comps []Comparison, minTrades int, cfg ShortlistConfig, exclude map[string]bool) []Comparison {
	var out []Comparison
	for _, c := range comps {
		if exclude[c.Ticker] {
			continue
		}
		if !passesGates(c, minTrades, cfg) {
			continue
		}
		c.Score = OOSScore(c, cfg)
		if cfg.MinScore > 0 && c.Score < cfg.MinScore {
			continue
		}
		out = append(out, c)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	if cfg.MaxTickers > 0 && len(out) > cfg.MaxTickers {
		out = out[:cfg.MaxTickers]
	}
	return out
}

// passesGates checks one tier's filters. The IS drawdown cap guards against
// shortlisting a pair whose in-sample window already breached the daily
// limit.
func passesGates(c Comparison, minTrades int, cfg ShortlistConfig) bool {
	return c.OOS.NTrades >= minTrades &&
		c.OOS.ProfitFactor >= cfg.MinPF &&
		c.OOS.ExpectancyR > cfg.MinExpectancy &&
		c.OOS.MaxDailyDDPct <= cfg.DDCap &&
		c.IS.MaxDailyDDPct <= cfg.DDCap
}

func rejectionReasons(c Comparison, cfg ShortlistConfig) []string {
	var reasons []string
	if c.OOS.NTrades < cfg.Tier2MinTrades {
		reasons = append(reasons, fmt.Sprintf("oos_trades %d < %d", c.OOS.NTrades, cfg.Tier2MinTrades))
	}
	if c.OOS.ProfitFactor < cfg.MinPF {
		reasons = append(reasons, fmt.Sprintf("oos_pf %.2f < %.2f", c.OOS.ProfitFactor, cfg.MinPF))
	}
	if c.OOS.ExpectancyR <= cfg.MinExpectancy {
		reasons = append(reasons, fmt.Sprintf("oos_expectancy %.3f <= %.2f", c.OOS.ExpectancyR, cfg.MinExpectancy))
	}
	if c.OOS.MaxDailyDDPct > cfg.DDCap {
		reasons = append(reasons, fmt.Sprintf("oos_dd %.3f > %.3f", c.OOS.MaxDailyDDPct, cfg.DDCap))
	}
	if c.IS.MaxDailyDDPct > cfg.DDCap {
		reasons = append(reasons, fmt.Sprintf("is_dd %.3f > %.3f", c.IS.MaxDailyDDPct, cfg.DDCap))
	}
	if len(reasons) == 0 {
		reasons = append(reasons, "ranked below top-N cap")
	}
	return reasons
}
