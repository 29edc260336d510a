package strategy

import (
	"testing"
	"time"

	"github.com/quillhaven/breakout-engine/internal/config"
	"github.com/quillhaven/breakout-engine/internal/model"
	"github.com/shopspring/decimal"
)

func bar(ts time.Time, o, h, l, c float64) model.Bar {
	return model.Bar{
		Timestamp: ts,
		Open:      decimal.NewFromFloat(o),
		High:      decimal.NewFromFloat(h),
		Low:       decimal.NewFromFloat(l),
		Close:     decimal.NewFromFloat(c),
		Volume:    decimal.NewFromInt(1),
	}
}

func syntheticBars(n int, base time.Time, step time.Duration) []model.Bar {
	bars := make([]model.Bar, n)
	price := 100.0
	for i := 0; i < n; i++ {
		bars[i] = bar(base.Add(time.Duration(i)*step), price, price+1, price-1, price)
	}
	return bars
}

func TestPrepareIndicatorsWarmupIsNotReady(t *testing.T) {
	cfg := config.Default()
	cfg.EMAPeriod = 5
	cfg.ATRPeriod = 3
	cfg.DonchianN = 3
	cfg.VolWindowBars = 5

	bars := syntheticBars(4, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), 4*time.Hour)
	s := New(cfg)
	enriched := s.PrepareIndicators(bars, cfg)

	for i := 0; i < 4; i++ {
		if enriched[i].IndicatorsReady {
			t.Fatalf("expected warm-up bar %d to be not-ready", i)
		}
	}
}

func TestGenerateSignalNoTradeWindowSuppresses(t *testing.T) {
	cfg := config.Default()
	cfg.NoTradeStart = "00:00"
	cfg.NoTradeEnd = "23:59"

	enriched := []model.EnrichedBar{
		{
			Bar:             bar(time.Date(2024, 1, 1, 5, 0, 0, 0, time.UTC), 100, 101, 99, 99.85),
			EMA:             90,
			ATR:             1,
			DonchianHigh:    100,
			DonchianLow:     90,
			ATRRelQuantile:  1,
			ATRRel:          0.01,
			IndicatorsReady: true,
			VolOK:           true,
		},
	}
	s := New(cfg)
	if sig := s.GenerateSignal(enriched, 0, cfg); sig != nil {
		t.Fatalf("expected nil signal inside no-trade window, got %+v", sig)
	}
}

func TestGenerateSignalLongBreakoutProximity(t *testing.T) {
	cfg := config.Default()
	cfg.NoTradeStart = "00:00"
	cfg.NoTradeEnd = "00:00"
	cfg.BufferATR = 0.1
	cfg.ProximityATR = 0.5

	enriched := []model.EnrichedBar{
		{
			Bar:             bar(time.Date(2024, 1, 1, 5, 0, 0, 0, time.UTC), 100, 101, 99, 99.85),
			EMA:             95,
			ATR:             1,
			DonchianHigh:    100,
			DonchianLow:     90,
			ATRRelQuantile:  1,
			ATRRel:          0.01,
			IndicatorsReady: true,
			VolOK:           true,
		},
	}
	s := New(cfg)
	sig := s.GenerateSignal(enriched, 0, cfg)
	if sig == nil {
		t.Fatalf("expected a long signal")
	}
	if sig.Direction != Long {
		t.Fatalf("expected Long, got %v", sig.Direction)
	}
	if sig.EntryLevel != 100.1 {
		t.Fatalf("expected entry level 100.1, got %v", sig.EntryLevel)
	}
}

func TestComputeEntrySLTPAppliesPenaltyAndRatio(t *testing.T) {
	cfg := config.Default()
	cfg.SLATR = 1.5
	cfg.TPR = 2.0

	sig := Signal{Direction: Long, EntryLevel: 100, ATRAtSignal: 1}
	entry, sl, tp := New(cfg).ComputeEntrySLTP(sig, 0.25, cfg)

	if entry != 100.25 {
		t.Fatalf("expected entry 100.25, got %v", entry)
	}
	wantSL := entry - 1.5
	if sl != wantSL {
		t.Fatalf("expected sl %v, got %v", wantSL, sl)
	}
	wantTP := entry + 2.0*(entry-wantSL)
	if tp != wantTP {
		t.Fatalf("expected tp %v, got %v", wantTP, tp)
	}
}

func TestCloseConfirmsFilterRejectsFirstTouch(t *testing.T) {
	cfg := config.Default()
	cfg.NoTradeStart = "00:00"
	cfg.NoTradeEnd = "00:00"
	cfg.EntryFilter = config.EntryFilterCloseConfirms
	cfg.BufferATR = 0.1
	cfg.ProximityATR = 0.5

	prev := model.EnrichedBar{
		Bar:             bar(time.Date(2024, 1, 1, 1, 0, 0, 0, time.UTC), 99, 100, 98, 99.5),
		ATR:             1,
		DonchianHigh:    100,
		DonchianLow:     90,
		IndicatorsReady: true,
	}
	cur := model.EnrichedBar{
		Bar:             bar(time.Date(2024, 1, 1, 5, 0, 0, 0, time.UTC), 100, 101, 99, 99.85),
		EMA:             95,
		ATR:             1,
		DonchianHigh:    100,
		DonchianLow:     90,
		ATRRelQuantile:  1,
		ATRRel:          0.01,
		IndicatorsReady: true,
		VolOK:           true,
	}
	enriched := []model.EnrichedBar{prev, cur}
	s := New(cfg)
	if sig := s.GenerateSignal(enriched, 1, cfg); sig != nil {
		t.Fatalf("expected close_confirms filter to suppress a first-touch breakout, got %+v", sig)
	}
}

func TestGenerateSignalShortBreakoutProximity(t *testing.T) {
	cfg := config.Default()
	cfg.NoTradeStart = "00:00"
	cfg.NoTradeEnd = "00:00"
	cfg.BufferATR = 0.1
	cfg.ProximityATR = 0.5

	enriched := []model.EnrichedBar{
		{
			Bar:             bar(time.Date(2024, 1, 1, 5, 0, 0, 0, time.UTC), 90, 91, 89, 90.15),
			EMA:             95,
			ATR:             1,
			DonchianHigh:    100,
			DonchianLow:     90,
			ATRRelQuantile:  1,
			ATRRel:          0.01,
			IndicatorsReady: true,
			VolOK:           true,
		},
	}
	s := New(cfg)
	sig := s.GenerateSignal(enriched, 0, cfg)
	if sig == nil {
		t.Fatalf("expected a short signal")
	}
	if sig.Direction != Short {
		t.Fatalf("expected Short, got %v", sig.Direction)
	}
	if sig.EntryLevel != 89.9 {
		t.Fatalf("expected entry level 89.9, got %v", sig.EntryLevel)
	}
}

func TestLegacyCloseSignalsOnlyPostBreakout(t *testing.T) {
	cfg := config.Default()
	cfg.NoTradeStart = "00:00"
	cfg.NoTradeEnd = "00:00"
	cfg.BufferATR = 0.1

	// Close already beyond the channel: the proactive rule stays quiet
	// (price left the proximity band) while the legacy rule fires.
	enriched := []model.EnrichedBar{
		{
			Bar:             bar(time.Date(2024, 1, 1, 5, 0, 0, 0, time.UTC), 100, 102, 100, 101.5),
			EMA:             95,
			ATR:             1,
			DonchianHigh:    100,
			DonchianLow:     90,
			ATRRelQuantile:  1,
			ATRRel:          0.01,
			IndicatorsReady: true,
			VolOK:           true,
		},
	}

	if sig := New(cfg).GenerateSignal(enriched, 0, cfg); sig != nil {
		t.Fatalf("proactive rule must not fire post-breakout, got %+v", sig)
	}

	sig := NewLegacyClose(cfg).GenerateSignal(enriched, 0, cfg)
	if sig == nil {
		t.Fatalf("legacy rule must fire once close has crossed the channel")
	}
	if sig.Direction != Long || sig.EntryLevel != 100.1 {
		t.Fatalf("legacy signal = %+v", sig)
	}
}

func TestRegistryCreateUnknownNameFails(t *testing.T) {
	r := NewRegistry()
	if _, ok := r.Create("does_not_exist", config.Default()); ok {
		t.Fatalf("expected unknown strategy name to fail lookup")
	}
	for _, name := range []string{"proactive_stop", "legacy_close"} {
		if _, ok := r.Create(name, config.Default()); !ok {
			t.Fatalf("expected %q to be registered", name)
		}
	}
}
