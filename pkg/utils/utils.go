// Package utils provides common helper functions shared across the engine,
// scoring, and batch layers.
package utils

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
)

// GenerateID creates a unique ID with a prefix.
func GenerateID(prefix string) string {
	id := uuid.New().String()[:8]
	return fmt.Sprintf("%s_%d_%s", prefix, time.Now().UnixNano(), id)
}

// GenerateRunID creates a unique sweep-run ID.
func GenerateRunID() string {
	return GenerateID("run")
}

// Mean returns the arithmetic mean of values, NaN for empty input.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// StdDev returns the sample standard deviation of values.
func StdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	m := Mean(values)
	sum := 0.0
	for _, v := range values {
		d := v - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(values)-1))
}

// Quantile returns the q-quantile (0 <= q <= 1) of values using linear
// interpolation between order statistics. NaN for empty input.
func Quantile(values []float64, q float64) float64 {
	n := len(values)
	if n == 0 {
		return math.NaN()
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	if n == 1 {
		return sorted[0]
	}
	pos := q * float64(n-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// WinRate returns the share of strictly positive results, 0 for empty
// input.
func WinRate(results []float64) float64 {
	if len(results) == 0 {
		return 0
	}
	wins := 0
	for _, r := range results {
		if r > 0 {
			wins++
		}
	}
	return float64(wins) / float64(len(results))
}

// ProfitFactor returns gross gains divided by gross losses. With no losses
// it is +Inf when at least one win exists and 0 otherwise.
func ProfitFactor(results []float64) float64 {
	gains, losses := 0.0, 0.0
	for _, r := range results {
		if r > 0 {
			gains += r
		} else {
			losses -= r
		}
	}
	if losses == 0 {
		if gains > 0 {
			return math.Inf(1)
		}
		return 0
	}
	return gains / losses
}

// MaxDrawdown returns the maximum peak-to-trough drawdown of an equity
// series as a fraction of the peak.
func MaxDrawdown(equity []float64) float64 {
	maxDD := 0.0
	peak := math.Inf(-1)
	for _, e := range equity {
		if e > peak {
			peak = e
		}
		if peak > 0 {
			dd := (peak - e) / peak
			if dd > maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD
}

// FormatDuration renders a duration in human-friendly form.
func FormatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d < time.Hour {
		return fmt.Sprintf("%.1fm", d.Minutes())
	}
	return fmt.Sprintf("%.1fh", d.Hours())
}
