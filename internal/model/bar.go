// Package model holds the shared value types that flow between the
// indicator, strategy, and engine layers.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Bar is a single OHLCV candle at a fixed sampling interval. Bars form an
// ordered sequence; callers are responsible for the strictly increasing,
// unique timestamp invariant.
type Bar struct {
	Timestamp time.Time
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	Volume    decimal.Decimal
}

// EnrichedBar augments a Bar with the indicator values the strategy needs.
// Indicator fields carry NaN during warm-up; consumers must treat NaN as
// "not ready" rather than a computed zero.
type EnrichedBar struct {
	Bar

	EMA              float64
	ATR              float64
	ATRRel           float64
	DonchianHigh     float64
	DonchianLow      float64
	ATRRelQuantile   float64
	VolOK            bool
	IndicatorsReady  bool
}

// Day returns the local calendar day the bar belongs to, given a project
// timezone. Used for daily prop-firm accounting and equity/day-rollover
// bookkeeping.
func (b Bar) Day(loc *time.Location) time.Time {
	t := b.Timestamp.In(loc)
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}
