package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestDefaultValidates(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}
}

func TestValidateRejectsBadSplitRatio(t *testing.T) {
	for _, ratio := range []float64{0, -0.1, 1, 1.5} {
		cfg := Default()
		cfg.SplitMode = SplitModeTime
		cfg.SplitRatio = ratio
		if err := cfg.Validate(); err == nil {
			t.Fatalf("split_ratio %v must be rejected", ratio)
		}
	}
}

func TestValidateRejectsUnknownEnums(t *testing.T) {
	cfg := Default()
	cfg.ExitMode = "martingale"
	if err := cfg.Validate(); err == nil {
		t.Fatal("unknown exit_mode must be rejected")
	}

	cfg = Default()
	cfg.EntryFilter = "astrology"
	if err := cfg.Validate(); err == nil {
		t.Fatal("unknown entry_filter must be rejected")
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	v := viper.New()
	v.Set("donchian_n", 30)
	v.Set("max_lose_streak", 5) // not a real key
	if _, err := Load(v); err == nil {
		t.Fatal("unknown key must be rejected at parse time")
	}
}

func TestLoadOverlaysOnDefaults(t *testing.T) {
	v := viper.New()
	v.Set("donchian_n", 30)
	v.Set("exit_mode", "trailing_atr")
	v.Set("trailing_atr", 2.5)
	v.Set("timeframe", "2h")

	cfg, err := Load(v)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DonchianN != 30 {
		t.Fatalf("donchian_n = %d", cfg.DonchianN)
	}
	if cfg.ExitMode != ExitModeTrailing || cfg.TrailingATR != 2.5 {
		t.Fatalf("exit config = %v/%v", cfg.ExitMode, cfg.TrailingATR)
	}
	if cfg.Timeframe != 2*time.Hour {
		t.Fatalf("timeframe = %v", cfg.Timeframe)
	}
	// Untouched keys keep their defaults.
	if cfg.EMAPeriod != 200 {
		t.Fatalf("ema_period = %d", cfg.EMAPeriod)
	}
}

func TestNoTradeWindowWrapsMidnight(t *testing.T) {
	cfg := Default()
	cfg.NoTradeStart = "22:00"
	cfg.NoTradeEnd = "02:00"

	inside := time.Date(2024, 1, 1, 23, 30, 0, 0, time.UTC)
	if !cfg.InNoTradeWindow(inside, time.UTC) {
		t.Fatal("23:30 must be inside the 22:00-02:00 window")
	}
	insideAfterMidnight := time.Date(2024, 1, 2, 1, 0, 0, 0, time.UTC)
	if !cfg.InNoTradeWindow(insideAfterMidnight, time.UTC) {
		t.Fatal("01:00 must be inside the wrapped window")
	}
	outside := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	if cfg.InNoTradeWindow(outside, time.UTC) {
		t.Fatal("12:00 must be outside the window")
	}
	boundary := time.Date(2024, 1, 2, 2, 0, 0, 0, time.UTC)
	if cfg.InNoTradeWindow(boundary, time.UTC) {
		t.Fatal("the window end is exclusive")
	}
}

func TestNoTradeWindowUsesProjectTimezone(t *testing.T) {
	cfg := Default()
	cfg.NoTradeStart = "22:00"
	cfg.NoTradeEnd = "02:00"

	// Bars parsed from epoch timestamps carry UTC regardless of the
	// project timezone. 21:00 UTC is 23:00 in UTC+2, inside the window.
	loc := time.FixedZone("UTC+2", 2*3600)
	ts := time.Date(2024, 1, 1, 21, 0, 0, 0, time.UTC)
	if !cfg.InNoTradeWindow(ts, loc) {
		t.Fatal("21:00 UTC must be inside a 22:00-02:00 window at UTC+2")
	}
	if cfg.InNoTradeWindow(ts, time.UTC) {
		t.Fatal("21:00 UTC must be outside the window at UTC itself")
	}
}

func TestNoTradeWindowDisabledWhenEqual(t *testing.T) {
	cfg := Default() // 00:00-00:00
	if cfg.InNoTradeWindow(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.UTC) {
		t.Fatal("equal start and end must disable the window")
	}
}

func TestLocationFallsBackToUTC(t *testing.T) {
	cfg := Default()
	if cfg.Location() != time.UTC {
		t.Fatalf("default timezone must resolve to UTC, got %v", cfg.Location())
	}
	cfg.Timezone = "Not/AZone"
	if cfg.Location() != time.UTC {
		t.Fatalf("unparseable timezone must fall back to UTC, got %v", cfg.Location())
	}
}

func TestEchoCoversEveryKnownKey(t *testing.T) {
	echo := Default().Echo()
	for key := range knownKeys {
		if _, ok := echo[key]; !ok {
			t.Fatalf("Echo missing key %q", key)
		}
	}
	if len(echo) != len(knownKeys) {
		t.Fatalf("Echo has %d keys, known set has %d", len(echo), len(knownKeys))
	}
}
