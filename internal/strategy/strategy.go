// Package strategy implements the proactive Donchian-breakout signal rule
// as a three-operation capability, plus its tagged entry-filter variants.
package strategy

import (
	"math"
	"sync"
	"time"

	"github.com/quillhaven/breakout-engine/internal/config"
	"github.com/quillhaven/breakout-engine/internal/indicators"
	"github.com/quillhaven/breakout-engine/internal/model"
)

// Direction is LONG or SHORT.
type Direction int

const (
	Long Direction = iota
	Short
)

func (d Direction) String() string {
	if d == Long {
		return "LONG"
	}
	return "SHORT"
}

// Signal represents a desired stop-entry level. Immutable once emitted; it
// is not yet an order.
type Signal struct {
	Direction    Direction
	EntryLevel   float64
	ATRAtSignal  float64
	Timestamp    time.Time
	ExpiryBars   int
}

// Strategy is the capability the engine depends on. It never depends on a
// concrete implementation, only this interface — variants are selected by
// a factory, never type-switched on by the engine.
type Strategy interface {
	// PrepareIndicators enriches a coarse-timeframe bar series with every
	// indicator the signal rule needs.
	PrepareIndicators(bars []model.Bar, cfg config.Config) []model.EnrichedBar

	// GenerateSignal evaluates the breakout rule on enriched[idx] and
	// returns a Signal if conditions hold, nil otherwise. enriched[idx-1]
	// is available for filters that look one bar back.
	GenerateSignal(enriched []model.EnrichedBar, idx int, cfg config.Config) *Signal

	// ComputeEntrySLTP turns a Signal plus an execution-cost penalty
	// multiple into concrete entry/stop-loss/take-profit levels.
	ComputeEntrySLTP(sig Signal, penaltyATR float64, cfg config.Config) (entry, sl, tp float64)
}

// proactiveDonchianBreakout is the production strategy: a pre-placed
// stop-entry re-emitted every bar while conditions hold, tracking the
// Donchian channel as it drifts. loc is the resolved project timezone,
// loaded once so the per-bar no-trade check never reparses it.
type proactiveDonchianBreakout struct {
	filter EntryFilter
	loc    *time.Location
}

// EntryFilter is an additional gate layered on top of the base breakout
// rule, selected by config.EntryFilter.
type EntryFilter interface {
	Admit(enriched []model.EnrichedBar, idx int, dir Direction, cfg config.Config) bool
}

type noFilter struct{}

func (noFilter) Admit([]model.EnrichedBar, int, Direction, config.Config) bool { return true }

// closeConfirmsFilter requires the previous bar's close to already sit on
// the breakout side of the channel, suppressing first-touch noise.
type closeConfirmsFilter struct{}

func (closeConfirmsFilter) Admit(enriched []model.EnrichedBar, idx int, dir Direction, cfg config.Config) bool {
	if idx == 0 {
		return false
	}
	prev := enriched[idx-1]
	buffer := cfg.BufferATR * prev.ATR
	if dir == Long {
		return prev.Close.InexactFloat64() >= prev.DonchianHigh+buffer
	}
	return prev.Close.InexactFloat64() <= prev.DonchianLow-buffer
}

// bodyRatioFilter requires the current bar's candle body to be at least
// EntryBodyPct of its range.
type bodyRatioFilter struct{}

func (bodyRatioFilter) Admit(enriched []model.EnrichedBar, idx int, dir Direction, cfg config.Config) bool {
	b := enriched[idx]
	rng := b.High.Sub(b.Low).InexactFloat64()
	if rng <= 0 {
		return false
	}
	body := math.Abs(b.Close.Sub(b.Open).InexactFloat64())
	return body/rng >= cfg.EntryBodyPct
}

func filterFor(f config.EntryFilter) EntryFilter {
	switch f {
	case config.EntryFilterCloseConfirms:
		return closeConfirmsFilter{}
	case config.EntryFilterBodyRatio:
		return bodyRatioFilter{}
	default:
		return noFilter{}
	}
}

// New builds the production strategy for the entry-filter variant named in
// cfg.EntryFilter.
func New(cfg config.Config) Strategy {
	return &proactiveDonchianBreakout{filter: filterFor(cfg.EntryFilter), loc: cfg.Location()}
}

func (s *proactiveDonchianBreakout) PrepareIndicators(bars []model.Bar, cfg config.Config) []model.EnrichedBar {
	n := len(bars)
	enriched := make([]model.EnrichedBar, n)
	if n == 0 {
		return enriched
	}

	high := make([]float64, n)
	low := make([]float64, n)
	closeV := make([]float64, n)
	for i, b := range bars {
		high[i] = b.High.InexactFloat64()
		low[i] = b.Low.InexactFloat64()
		closeV[i] = b.Close.InexactFloat64()
	}

	ema := indicators.EMA(closeV, cfg.EMAPeriod)
	atr := indicators.ATR(high, low, closeV, cfg.ATRPeriod)
	atrRel := indicators.ATRRelative(atr, closeV)
	dHigh, dLow := indicators.Donchian(high, low, cfg.DonchianN, 1)
	quantile := indicators.RollingQuantile(atrRel, cfg.VolWindowBars, cfg.VolQuantile)

	for i := range bars {
		eb := model.EnrichedBar{
			Bar:            bars[i],
			EMA:            ema[i],
			ATR:            atr[i],
			ATRRel:         atrRel[i],
			DonchianHigh:   dHigh[i],
			DonchianLow:    dLow[i],
			ATRRelQuantile: quantile[i],
		}
		ready := !math.IsNaN(eb.EMA) && !math.IsNaN(eb.ATR) && !math.IsNaN(eb.DonchianHigh) && !math.IsNaN(eb.DonchianLow)
		eb.IndicatorsReady = ready
		eb.VolOK = ready && !math.IsNaN(eb.ATRRelQuantile) && eb.ATRRel <= eb.ATRRelQuantile
		enriched[i] = eb
	}
	return enriched
}

func (s *proactiveDonchianBreakout) GenerateSignal(enriched []model.EnrichedBar, idx int, cfg config.Config) *Signal {
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
	prox := cfg.ProximityATR * b.ATR

	breakoutLong := b.DonchianHigh + buffer
	if close > b.EMA && close < breakoutLong && breakoutLong-close < prox {
		if s.filter.Admit(enriched, idx, Long, cfg) {
			return &Signal{
				Direction:   Long,
				EntryLevel:  breakoutLong,
				ATRAtSignal: b.ATR,
				Timestamp:   b.Timestamp,
				ExpiryBars:  cfg.OrderValidBars,
			}
		}
		return nil
	}

	breakoutShort := b.DonchianLow - buffer
	if close < b.EMA && close > breakoutShort && close-breakoutShort < prox {
		if s.filter.Admit(enriched, idx, Short, cfg) {
			return &Signal{
				Direction:   Short,
				EntryLevel:  breakoutShort,
				ATRAtSignal: b.ATR,
				Timestamp:   b.Timestamp,
				ExpiryBars:  cfg.OrderValidBars,
			}
		}
	}
	return nil
}

func (s *proactiveDonchianBreakout) ComputeEntrySLTP(sig Signal, penaltyATR float64, cfg config.Config) (entry, sl, tp float64) {
	penalty := penaltyATR * sig.ATRAtSignal
	switch sig.Direction {
	case Long:
		entry = sig.EntryLevel + penalty
		sl = entry - cfg.SLATR*sig.ATRAtSignal
		risk := entry - sl
		if cfg.TPR == 0 {
			tp = 0
		} else {
			tp = entry + cfg.TPR*risk
		}
	case Short:
		entry = sig.EntryLevel - penalty
		sl = entry + cfg.SLATR*sig.ATRAtSignal
		risk := sl - entry
		if cfg.TPR == 0 {
			tp = 0
		} else {
			tp = entry - cfg.TPR*risk
		}
	}
	return entry, sl, tp
}

// Registry allows the CLI/diagnostic grid to select a tagged variant by
// name without the engine ever type-switching on a concrete strategy.
type Registry struct {
	mu       sync.RWMutex
	builders map[string]func(config.Config) Strategy
}

// NewRegistry builds the registry with the production variant and its
// tagged alternates pre-registered.
func NewRegistry() *Registry {
	r := &Registry{builders: make(map[string]func(config.Config) Strategy)}
	r.Register("proactive_stop", New)
	r.Register("legacy_close", NewLegacyClose)
	return r
}

// Register adds a named strategy factory.
func (r *Registry) Register(name string, build func(config.Config) Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.builders[name] = build
}

// Create instantiates a registered strategy by name.
func (r *Registry) Create(name string, cfg config.Config) (Strategy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	build, ok := r.builders[name]
	if !ok {
		return nil, false
	}
	return build(cfg), true
}
