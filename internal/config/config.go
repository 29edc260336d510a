// Package config defines the single immutable, validated settings record
// every other component consumes read-only, and the viper-backed loader
// that builds one from flags, environment, and an optional file.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// ExitMode selects the fixed or trailing-ATR exit convention.
type ExitMode string

const (
	ExitModeFixed      ExitMode = "fixed"
	ExitModeTrailing   ExitMode = "trailing_atr"
)

// DailyEquityMode selects the mark-to-market price reference.
type DailyEquityMode string

const (
	DailyEquityClose DailyEquityMode = "close"
	DailyEquityWorst DailyEquityMode = "worst"
)

// SplitMode toggles the deterministic IS/OOS partition.
type SplitMode string

const (
	SplitModeNone SplitMode = "none"
	SplitModeTime SplitMode = "time"
)

// SplitTarget selects which half of a time split a run consumes.
type SplitTarget string

const (
	SplitTargetIS  SplitTarget = "is"
	SplitTargetOOS SplitTarget = "oos"
)

// EntryFilter selects an optional entry-refinement variant.
type EntryFilter string

const (
	EntryFilterNone          EntryFilter = "none"
	EntryFilterCloseConfirms EntryFilter = "close_confirms"
	EntryFilterBodyRatio     EntryFilter = "body_ratio"
)

// Config is the single validated settings record shared read-only across
// every component within one run. Every field here corresponds to a key in
// the external enumerated option table; unknown keys encountered while
// loading are rejected.
type Config struct {
	StartBalance  decimal.Decimal
	RiskPerTrade  float64

	EMAPeriod    int
	ATRPeriod    int
	DonchianN    int
	BufferATR    float64
	ProximityATR float64

	SLATR float64
	TPR   float64

	ExitMode              ExitMode
	TrailingATR           float64
	TrailingActivationR   float64

	VolQuantile    float64
	VolWindowBars  int

	NoTradeStart string // "HH:MM"
	NoTradeEnd   string // "HH:MM"

	OrderValidBars int

	ConservativeSameBar bool

	DailyDDFTMO  float64
	DailyDDGFT   float64
	MaxLoss      float64

	StopAfterNLosses  int
	DailyKillSwitch   float64

	DailyEquityMode DailyEquityMode

	SplitMode   SplitMode
	SplitRatio  float64
	SplitTarget SplitTarget

	Timeframe time.Duration

	MaxConcurrentTrades int

	// Strategy names the tagged variant the run is driven by; the batch
	// driver resolves it through the strategy registry.
	Strategy string

	EntryFilter   EntryFilter
	EntryBodyPct  float64

	CloseOnEnd bool

	PenaltyATR float64

	Timezone string
}

// Default returns a Config with the values the original production engine
// used, before any CLI overrides are applied.
func Default() Config {
	return Config{
		StartBalance:        decimal.NewFromInt(100000),
		RiskPerTrade:        0.01,
		EMAPeriod:           200,
		ATRPeriod:           14,
		DonchianN:           20,
		BufferATR:           0.1,
		ProximityATR:        0.5,
		SLATR:               1.5,
		TPR:                 2.0,
		ExitMode:            ExitModeFixed,
		TrailingATR:         0,
		TrailingActivationR: 0,
		VolQuantile:         0.8,
		VolWindowBars:       200,
		NoTradeStart:        "00:00",
		NoTradeEnd:          "00:00",
		OrderValidBars:      24,
		ConservativeSameBar: true,
		DailyDDFTMO:         0.05,
		DailyDDGFT:          0.05,
		MaxLoss:             0.10,
		StopAfterNLosses:    3,
		DailyKillSwitch:     0.04,
		DailyEquityMode:     DailyEquityClose,
		SplitMode:           SplitModeNone,
		SplitRatio:          0.7,
		SplitTarget:         SplitTargetIS,
		Timeframe:           4 * time.Hour,
		MaxConcurrentTrades: 1,
		Strategy:            "proactive_stop",
		EntryFilter:         EntryFilterNone,
		EntryBodyPct:        0.5,
		CloseOnEnd:          false,
		PenaltyATR:          0.25,
		Timezone:            "UTC",
	}
}

// Validate rejects contradictory or out-of-range settings fatally, before
// any run starts.
func (c Config) Validate() error {
	if c.StartBalance.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("config: start_balance must be positive")
	}
	if c.RiskPerTrade <= 0 || c.RiskPerTrade > 1 {
		return fmt.Errorf("config: risk_per_trade must be in (0,1]")
	}
	if c.EMAPeriod < 1 || c.ATRPeriod < 1 || c.DonchianN < 1 {
		return fmt.Errorf("config: indicator periods must be >= 1")
	}
	if c.ExitMode != ExitModeFixed && c.ExitMode != ExitModeTrailing {
		return fmt.Errorf("config: unknown exit_mode %q", c.ExitMode)
	}
	if c.DailyEquityMode != DailyEquityClose && c.DailyEquityMode != DailyEquityWorst {
		return fmt.Errorf("config: unknown daily_equity_mode %q", c.DailyEquityMode)
	}
	if c.SplitMode != SplitModeNone && c.SplitMode != SplitModeTime {
		return fmt.Errorf("config: unknown split_mode %q", c.SplitMode)
	}
	if c.SplitMode == SplitModeTime {
		if c.SplitRatio <= 0 || c.SplitRatio >= 1 {
			return fmt.Errorf("config: split_ratio must be in (0,1), got %v", c.SplitRatio)
		}
		if c.SplitTarget != SplitTargetIS && c.SplitTarget != SplitTargetOOS {
			return fmt.Errorf("config: unknown split_target %q", c.SplitTarget)
		}
	}
	if c.Timeframe <= 0 {
		return fmt.Errorf("config: timeframe must be positive")
	}
	if c.MaxConcurrentTrades < 0 {
		return fmt.Errorf("config: max_concurrent_trades must be >= 0")
	}
	if c.Strategy == "" {
		return fmt.Errorf("config: strategy must be set")
	}
	switch c.EntryFilter {
	case EntryFilterNone, EntryFilterCloseConfirms, EntryFilterBodyRatio:
	default:
		return fmt.Errorf("config: unknown entry_filter %q", c.EntryFilter)
	}
	if _, err := parseClock(c.NoTradeStart); err != nil {
		return fmt.Errorf("config: no_trade_start: %w", err)
	}
	if _, err := parseClock(c.NoTradeEnd); err != nil {
		return fmt.Errorf("config: no_trade_end: %w", err)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("config: timezone: %w", err)
	}
	return nil
}

func parseClock(s string) (time.Duration, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("expected HH:MM, got %q", s)
	}
	var h, m int
	if _, err := fmt.Sscanf(parts[0], "%d", &h); err != nil {
		return 0, err
	}
	if _, err := fmt.Sscanf(parts[1], "%d", &m); err != nil {
		return 0, err
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("out of range HH:MM %q", s)
	}
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute, nil
}

// ClockOfDay returns the offset of ts since midnight in loc, for
// no-trade-window comparison. Bars may arrive in any stored timezone
// (epoch-parsed bars are UTC); the window is defined in the project
// timezone, so the conversion happens here, not at the call sites.
func ClockOfDay(ts time.Time, loc *time.Location) time.Duration {
	t := ts.In(loc)
	return time.Duration(t.Hour())*time.Hour +
		time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second
}

// InNoTradeWindow reports whether ts falls in [start, end) in the project
// timezone loc, with wraparound support across midnight when end <= start.
// loc must be the resolved cfg.Timezone — the same location the engine
// uses for day rollover, so both clocks agree.
func (c Config) InNoTradeWindow(ts time.Time, loc *time.Location) bool {
	start, errS := parseClock(c.NoTradeStart)
	end, errE := parseClock(c.NoTradeEnd)
	if errS != nil || errE != nil || start == end {
		return false
	}
	cur := ClockOfDay(ts, loc)
	if start < end {
		return cur >= start && cur < end
	}
	// wraps across midnight
	return cur >= start || cur < end
}

// Location resolves cfg.Timezone, falling back to UTC for a value that no
// longer parses (Validate rejects that before any run starts).
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Echo returns the config as the snake_case key/value map persisted in
// summary.json, matching the external option table.
func (c Config) Echo() map[string]any {
	return map[string]any{
		"start_balance":         c.StartBalance.InexactFloat64(),
		"risk_per_trade":        c.RiskPerTrade,
		"ema_period":            c.EMAPeriod,
		"atr_period":            c.ATRPeriod,
		"donchian_n":            c.DonchianN,
		"buffer_atr":            c.BufferATR,
		"proximity_atr":         c.ProximityATR,
		"sl_atr":                c.SLATR,
		"tp_r":                  c.TPR,
		"exit_mode":             string(c.ExitMode),
		"trailing_atr":          c.TrailingATR,
		"trailing_activation_r": c.TrailingActivationR,
		"vol_quantile":          c.VolQuantile,
		"vol_window_bars":       c.VolWindowBars,
		"no_trade_start":        c.NoTradeStart,
		"no_trade_end":          c.NoTradeEnd,
		"order_valid_bars":      c.OrderValidBars,
		"conservative_same_bar": c.ConservativeSameBar,
		"daily_dd_ftmo":         c.DailyDDFTMO,
		"daily_dd_gft":          c.DailyDDGFT,
		"max_loss":              c.MaxLoss,
		"stop_after_n_losses":   c.StopAfterNLosses,
		"daily_kill_switch":     c.DailyKillSwitch,
		"daily_equity_mode":     string(c.DailyEquityMode),
		"split_mode":            string(c.SplitMode),
		"split_ratio":           c.SplitRatio,
		"split_target":          string(c.SplitTarget),
		"timeframe":             c.Timeframe.String(),
		"max_concurrent_trades": c.MaxConcurrentTrades,
		"strategy":              c.Strategy,
		"entry_filter":          string(c.EntryFilter),
		"entry_body_pct":        c.EntryBodyPct,
		"close_on_end":          c.CloseOnEnd,
		"penalty_atr":           c.PenaltyATR,
		"timezone":              c.Timezone,
	}
}

// knownKeys enumerates every accepted viper key; anything else in the
// loaded settings source is rejected at parse time.
var knownKeys = map[string]struct{}{
	"start_balance": {}, "risk_per_trade": {},
	"ema_period": {}, "atr_period": {}, "donchian_n": {}, "buffer_atr": {}, "proximity_atr": {},
	"sl_atr": {}, "tp_r": {},
	"exit_mode": {}, "trailing_atr": {}, "trailing_activation_r": {},
	"vol_quantile": {}, "vol_window_bars": {},
	"no_trade_start": {}, "no_trade_end": {},
	"order_valid_bars": {}, "conservative_same_bar": {},
	"daily_dd_ftmo": {}, "daily_dd_gft": {}, "max_loss": {},
	"stop_after_n_losses": {}, "daily_kill_switch": {},
	"daily_equity_mode": {},
	"split_mode": {}, "split_ratio": {}, "split_target": {},
	"timeframe": {}, "max_concurrent_trades": {},
	"strategy":     {},
	"entry_filter": {}, "entry_body_pct": {},
	"close_on_end": {}, "penalty_atr": {}, "timezone": {},
}

// Load builds a Config from viper's merged flag/env/file view, starting
// from Default() and overlaying only the keys actually set. Unknown keys
// present in the backing file are rejected.
func Load(v *viper.Viper) (Config, error) {
	for _, key := range v.AllKeys() {
		if _, ok := knownKeys[key]; !ok {
			return Config{}, fmt.Errorf("config: unknown key %q", key)
		}
	}

	c := Default()

	if v.IsSet("start_balance") {
		c.StartBalance = decimal.NewFromFloat(v.GetFloat64("start_balance"))
	}
	setFloat(v, "risk_per_trade", &c.RiskPerTrade)
	setInt(v, "ema_period", &c.EMAPeriod)
	setInt(v, "atr_period", &c.ATRPeriod)
	setInt(v, "donchian_n", &c.DonchianN)
	setFloat(v, "buffer_atr", &c.BufferATR)
	setFloat(v, "proximity_atr", &c.ProximityATR)
	setFloat(v, "sl_atr", &c.SLATR)
	setFloat(v, "tp_r", &c.TPR)
	if v.IsSet("exit_mode") {
		c.ExitMode = ExitMode(v.GetString("exit_mode"))
	}
	setFloat(v, "trailing_atr", &c.TrailingATR)
	setFloat(v, "trailing_activation_r", &c.TrailingActivationR)
	setFloat(v, "vol_quantile", &c.VolQuantile)
	setInt(v, "vol_window_bars", &c.VolWindowBars)
	if v.IsSet("no_trade_start") {
		c.NoTradeStart = v.GetString("no_trade_start")
	}
	if v.IsSet("no_trade_end") {
		c.NoTradeEnd = v.GetString("no_trade_end")
	}
	setInt(v, "order_valid_bars", &c.OrderValidBars)
	if v.IsSet("conservative_same_bar") {
		c.ConservativeSameBar = v.GetBool("conservative_same_bar")
	}
	setFloat(v, "daily_dd_ftmo", &c.DailyDDFTMO)
	setFloat(v, "daily_dd_gft", &c.DailyDDGFT)
	setFloat(v, "max_loss", &c.MaxLoss)
	setInt(v, "stop_after_n_losses", &c.StopAfterNLosses)
	setFloat(v, "daily_kill_switch", &c.DailyKillSwitch)
	if v.IsSet("daily_equity_mode") {
		c.DailyEquityMode = DailyEquityMode(v.GetString("daily_equity_mode"))
	}
	if v.IsSet("split_mode") {
		c.SplitMode = SplitMode(v.GetString("split_mode"))
	}
	setFloat(v, "split_ratio", &c.SplitRatio)
	if v.IsSet("split_target") {
		c.SplitTarget = SplitTarget(v.GetString("split_target"))
	}
	if v.IsSet("timeframe") {
		d, err := time.ParseDuration(v.GetString("timeframe"))
		if err != nil {
			return Config{}, fmt.Errorf("config: timeframe: %w", err)
		}
		c.Timeframe = d
	}
	setInt(v, "max_concurrent_trades", &c.MaxConcurrentTrades)
	if v.IsSet("strategy") {
		c.Strategy = v.GetString("strategy")
	}
	if v.IsSet("entry_filter") {
		c.EntryFilter = EntryFilter(v.GetString("entry_filter"))
	}
	setFloat(v, "entry_body_pct", &c.EntryBodyPct)
	if v.IsSet("close_on_end") {
		c.CloseOnEnd = v.GetBool("close_on_end")
	}
	setFloat(v, "penalty_atr", &c.PenaltyATR)
	if v.IsSet("timezone") {
		c.Timezone = v.GetString("timezone")
	}

	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func setFloat(v *viper.Viper, key string, dst *float64) {
	if v.IsSet(key) {
		*dst = v.GetFloat64(key)
	}
}

func setInt(v *viper.Viper, key string, dst *int) {
	if v.IsSet(key) {
		*dst = v.GetInt(key)
	}
}
