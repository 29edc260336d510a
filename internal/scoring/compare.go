package scoring

import (
	"fmt"
	"strings"

	"github.com/quillhaven/breakout-engine/pkg/types"
)

// Status classifies an OOS evaluation.
type Status string

const (
	StatusValid              Status = "valid"
	StatusInsufficientTrades Status = "insufficient_trades"
	StatusDegraded           Status = "degraded"
	StatusFailed             Status = "failed"
)

// Eligibility holds the OOS gate thresholds.
type Eligibility struct {
	MinTrades     int
	MinExpectancy float64
	MinPF         float64
	MaxDD         float64

	// Acceptable IS -> OOS degradation before a note is recorded.
	MaxExpectancyDrop float64
	MaxPFDrop         float64
}

// DefaultEligibility returns the production gate thresholds.
func DefaultEligibility() Eligibility {
	return Eligibility{
		MinTrades:         15,
		MinExpectancy:     0.0,
		MinPF:             1.2,
		MaxDD:             0.05,
		MaxExpectancyDrop: 0.50,
		MaxPFDrop:         0.40,
	}
}

// Comparison pairs one (ticker, penalty)'s IS and OOS summaries with its
// evaluation verdict and, once shortlisted, its composite score.
type Comparison struct {
	Ticker     string
	PenaltyATR float64

	IS  types.Summary
	OOS types.Summary

	Status Status
	Notes  []string
	Score  float64
}

// NotesString joins the evaluation notes for CSV export.
func (c Comparison) NotesString() string {
	if len(c.Notes) == 0 {
		return "OOS validation passed"
	}
	return strings.Join(c.Notes, "; ")
}

// EvaluateOOS applies the eligibility gates to one IS/OOS pair.
//
// The insufficient-trades gate short-circuits everything else. Otherwise
// notes accumulate for each failed OOS metric and each excessive IS->OOS
// degradation; the verdict is valid with no notes, failed on any critical
// note (negative OOS expectancy, OOS PF below 1, or three notes or more),
// degraded in between.
func EvaluateOOS(is, oos types.Summary, crit Eligibility) (Status, []string) {
	if oos.NTrades < crit.MinTrades {
		return StatusInsufficientTrades,
			[]string{fmt.Sprintf("OOS trades (%d) < %d", oos.NTrades, crit.MinTrades)}
	}

	var notes []string

	if oos.ExpectancyR <= crit.MinExpectancy {
		notes = append(notes, fmt.Sprintf("ExpR %.3f <= %.2f", oos.ExpectancyR, crit.MinExpectancy))
	}
	if oos.ProfitFactor < crit.MinPF {
		notes = append(notes, fmt.Sprintf("PF %.2f < %.2f", oos.ProfitFactor, crit.MinPF))
	}
	if oos.MaxDailyDDPct > crit.MaxDD {
		notes = append(notes, fmt.Sprintf("DD %.1f%% > %.0f%%", oos.MaxDailyDDPct*100, crit.MaxDD*100))
	}

	if is.ExpectancyR > 0 {
		expDrop := 1 - oos.ExpectancyR/is.ExpectancyR
		if expDrop > crit.MaxExpectancyDrop {
			notes = append(notes, fmt.Sprintf("ExpR drop %.0f%% > %.0f%%", expDrop*100, crit.MaxExpectancyDrop*100))
		}
	}
	if is.ProfitFactor > 1 && oos.ProfitFactor < is.ProfitFactor {
		pfDrop := 1 - (oos.ProfitFactor-1)/(is.ProfitFactor-1)
		if pfDrop > crit.MaxPFDrop {
			notes = append(notes, "PF contraction significant")
		}
	}

	if len(notes) == 0 {
		return StatusValid, nil
	}

	critical := oos.ExpectancyR < 0 || oos.ProfitFactor < 1 || len(notes) >= 3
	if critical {
		return StatusFailed, notes
	}
	return StatusDegraded, notes
}

// ComparePairs matches IS rows against OOS rows on (ticker, penalty) and
// evaluates each pair. IS rows without an OOS counterpart are skipped.
func ComparePairs(isRows, oosRows []types.Summary, crit Eligibility) []Comparison {
	type key struct {
		ticker  string
		penalty float64
	}
	oosByKey := make(map[key]types.Summary, len(oosRows))
	for _, row := range oosRows {
		oosByKey[key{row.Ticker, row.PenaltyATR}] = row
	}

	out := make([]Comparison, 0, len(isRows))
	for _, is := range isRows {
		oos, ok := oosByKey[key{is.Ticker, is.PenaltyATR}]
		if !ok {
			continue
		}
		status, notes := EvaluateOOS(is, oos, crit)
		out = append(out, Comparison{
			Ticker:     is.Ticker,
			PenaltyATR: is.PenaltyATR,
			IS:         is,
			OOS:        oos,
			Status:     status,
			Notes:      notes,
		})
	}
	return out
}

// FilterPenalty keeps only the comparisons at one penalty multiple, the
// reference-penalty view exported as comparison_ref.csv.
func FilterPenalty(comps []Comparison, penalty float64) []Comparison {
	out := make([]Comparison, 0, len(comps))
	for _, c := range comps {
		if c.PenaltyATR == penalty {
			out = append(out, c)
		}
	}
	return out
}
