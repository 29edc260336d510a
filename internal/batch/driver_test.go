package batch

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/quillhaven/breakout-engine/internal/config"
	"github.com/quillhaven/breakout-engine/internal/data"
)

// writeHourlyBars writes a synthetic hourly CSV with a gentle sine drift so
// indicators have something to chew on.
func writeHourlyBars(t *testing.T, dir, ticker string, n int) {
	t.Helper()
	var b strings.Builder
	b.WriteString("timestamp,open,high,low,close,volume\n")
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	price := 100.0
	for i := 0; i < n; i++ {
		ts := start.Add(time.Duration(i) * time.Hour)
		drift := math.Sin(float64(i)/12) * 2
		open := price + drift
		high := open + 0.8
		low := open - 0.8
		closeP := open + 0.2
		fmt.Fprintf(&b, "%s,%.4f,%.4f,%.4f,%.4f,100\n",
			ts.Format(time.RFC3339), open, high, low, closeP)
	}
	if err := os.WriteFile(filepath.Join(dir, ticker+".csv"), []byte(b.String()), 0o644); err != nil {
		t.Fatal(err)
	}
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.EMAPeriod = 5
	cfg.ATRPeriod = 3
	cfg.DonchianN = 3
	cfg.VolWindowBars = 5
	cfg.VolQuantile = 1.0
	return cfg
}

func TestDriverSweep(t *testing.T) {
	dir := t.TempDir()
	writeHourlyBars(t, dir, "EURUSD", 400)
	writeHourlyBars(t, dir, "XAUUSD", 400)

	source, err := data.NewStore(zap.NewNop(), dir)
	if err != nil {
		t.Fatal(err)
	}

	driver := New(zap.NewNop(), testConfig(), source)
	res, err := driver.Run(context.Background(), Options{
		Tickers:   []string{"EURUSD", "XAUUSD"},
		Penalties: []float64{0.0, 0.25},
		Workers:   2,
	})
	if err != nil {
		t.Fatal(err)
	}

	if len(res.Outcomes) != 4 {
		t.Fatalf("outcomes = %d, want 4", len(res.Outcomes))
	}
	if len(res.Errors) != 0 {
		t.Fatalf("errors = %+v", res.Errors)
	}
	// Merged output is deterministic regardless of worker completion order.
	for i := 1; i < len(res.Outcomes); i++ {
		if !lessKey(res.Outcomes[i-1].Key, res.Outcomes[i].Key) {
			t.Fatal("outcomes not sorted by run key")
		}
	}
	// 400 hourly bars aggregate to 100 coarse bars; the equity series must
	// match the coarse-bar count.
	for _, o := range res.Outcomes {
		if o.Result.Bars != 100 {
			t.Fatalf("bars = %d", o.Result.Bars)
		}
		if len(o.Result.EquityCurve) != o.Result.Bars {
			t.Fatalf("equity rows = %d, bars = %d", len(o.Result.EquityCurve), o.Result.Bars)
		}
	}

	progress := driver.Progress()
	if !progress.Done || progress.Completed != 4 {
		t.Fatalf("progress = %+v", progress)
	}
}

func TestDriverSplitTargets(t *testing.T) {
	dir := t.TempDir()
	writeHourlyBars(t, dir, "EURUSD", 400)

	source, err := data.NewStore(zap.NewNop(), dir)
	if err != nil {
		t.Fatal(err)
	}

	cfg := testConfig()
	cfg.SplitRatio = 0.7
	driver := New(zap.NewNop(), cfg, source)
	res, err := driver.Run(context.Background(), Options{
		Tickers:      []string{"EURUSD"},
		Penalties:    []float64{0.25},
		SplitTargets: []config.SplitTarget{config.SplitTargetIS, config.SplitTargetOOS},
	})
	if err != nil {
		t.Fatal(err)
	}

	if len(res.Outcomes) != 2 {
		t.Fatalf("outcomes = %d", len(res.Outcomes))
	}
	is, oos := res.Outcomes[0], res.Outcomes[1]
	if is.Key.SplitTarget != "is" || oos.Key.SplitTarget != "oos" {
		t.Fatalf("keys = %+v / %+v", is.Key, oos.Key)
	}
	if is.Result.Bars+oos.Result.Bars != 100 {
		t.Fatalf("IS+OOS bars = %d", is.Result.Bars+oos.Result.Bars)
	}
	if is.Split.SplitBars != 70 || oos.Split.SplitBars != 30 {
		t.Fatalf("split infos = %+v / %+v", is.Split, oos.Split)
	}
}

func TestDriverIsolatesFailures(t *testing.T) {
	dir := t.TempDir()
	writeHourlyBars(t, dir, "EURUSD", 400)

	source, err := data.NewStore(zap.NewNop(), dir)
	if err != nil {
		t.Fatal(err)
	}

	driver := New(zap.NewNop(), testConfig(), source)
	res, err := driver.Run(context.Background(), Options{
		Tickers:   []string{"EURUSD", "MISSING"},
		Penalties: []float64{0.25},
	})
	if err != nil {
		t.Fatal(err)
	}

	if len(res.Outcomes) != 1 || res.Outcomes[0].Key.Ticker != "EURUSD" {
		t.Fatalf("outcomes = %+v", res.Outcomes)
	}
	if len(res.Errors) != 1 || res.Errors[0].Key.Ticker != "MISSING" {
		t.Fatalf("errors = %+v", res.Errors)
	}
}

func TestDriverStrategyVariantSelection(t *testing.T) {
	dir := t.TempDir()
	writeHourlyBars(t, dir, "EURUSD", 400)

	source, err := data.NewStore(zap.NewNop(), dir)
	if err != nil {
		t.Fatal(err)
	}

	cfg := testConfig()
	cfg.Strategy = "legacy_close"
	driver := New(zap.NewNop(), cfg, source)
	res, err := driver.Run(context.Background(), Options{
		Tickers:   []string{"EURUSD"},
		Penalties: []float64{0.25},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Outcomes) != 1 || len(res.Errors) != 0 {
		t.Fatalf("legacy_close run: outcomes=%d errors=%+v", len(res.Outcomes), res.Errors)
	}
}

func TestDriverUnknownStrategyFailsPerRun(t *testing.T) {
	dir := t.TempDir()
	writeHourlyBars(t, dir, "EURUSD", 400)

	source, err := data.NewStore(zap.NewNop(), dir)
	if err != nil {
		t.Fatal(err)
	}

	cfg := testConfig()
	cfg.Strategy = "does_not_exist"
	driver := New(zap.NewNop(), cfg, source)
	res, err := driver.Run(context.Background(), Options{
		Tickers:   []string{"EURUSD"},
		Penalties: []float64{0.25},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Outcomes) != 0 || len(res.Errors) != 1 {
		t.Fatalf("outcomes=%d errors=%+v", len(res.Outcomes), res.Errors)
	}
}

func TestDriverDeterminism(t *testing.T) {
	dir := t.TempDir()
	writeHourlyBars(t, dir, "EURUSD", 400)

	source, err := data.NewStore(zap.NewNop(), dir)
	if err != nil {
		t.Fatal(err)
	}

	run := func() []float64 {
		driver := New(zap.NewNop(), testConfig(), source)
		res, err := driver.Run(context.Background(), Options{
			Tickers:   []string{"EURUSD"},
			Penalties: []float64{0.25},
		})
		if err != nil {
			t.Fatal(err)
		}
		out := make([]float64, 0)
		for _, tr := range res.Outcomes[0].Result.Trades {
			out = append(out, tr.ResultR)
		}
		out = append(out, res.Outcomes[0].Summary.EndBalance)
		return out
	}

	a, b := run(), run()
	if len(a) != len(b) {
		t.Fatalf("run lengths differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("run diverged at %d: %v vs %v", i, a[i], b[i])
		}
	}
}
