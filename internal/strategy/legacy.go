package strategy

import (
	"github.com/quillhaven/breakout-engine/internal/config"
	"github.com/quillhaven/breakout-engine/internal/model"
)

// legacyCloseBreakout is the post-breakout variant kept for the diagnostic
// grid: it signals only once the close has already crossed the channel,
// instead of pre-placing the stop while price is still inside it. The
// entry level is still the channel edge, so the stop usually fills on the
// following bar. Indicator preparation and entry/SL/TP math are shared
// with the production variant.
type legacyCloseBreakout struct {
	proactiveDonchianBreakout
}

// NewLegacyClose builds the legacy post-breakout variant.
func NewLegacyClose(cfg config.Config) Strategy {
	return &legacyCloseBreakout{proactiveDonchianBreakout{filter: noFilter{}, loc: cfg.Location()}}
}

func (s *legacyCloseBreakout) GenerateSignal(enriched []model.EnrichedBar, idx int, cfg config.Config) *Signal {
	b := enriched[idx]
	if !b.IndicatorsReady {
		return nil
	}
	if cfg.InNoTradeWindow(b.Timestamp, s.loc) {
		return nil
	}
	if !b.VolOK {
		return nil
	}

	close := b.Close.InexactFloat64()
	buffer := cfg.BufferATR * b.ATR

	breakoutLong := b.DonchianHigh + buffer
	if close > b.EMA && close > breakoutLong {
		return &Signal{
			Direction:   Long,
			EntryLevel:  breakoutLong,
			ATRAtSignal: b.ATR,
			Timestamp:   b.Timestamp,
			ExpiryBars:  cfg.OrderValidBars,
		}
	}

	breakoutShort := b.DonchianLow - buffer
	if close < b.EMA && close < breakoutShort {
		return &Signal{
			Direction:   Short,
			EntryLevel:  breakoutShort,
			ATRAtSignal: b.ATR,
			Timestamp:   b.Timestamp,
			ExpiryBars:  cfg.OrderValidBars,
		}
	}
	return nil
}
