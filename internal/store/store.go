// Package store persists run artifacts: per-(ticker, penalty) trade
// ledgers, equity curves, and daily stats, the sweep-level results table,
// and the comparison/shortlist outputs.
package store

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/quillhaven/breakout-engine/internal/backtester"
	"github.com/quillhaven/breakout-engine/internal/config"
	"github.com/quillhaven/breakout-engine/internal/scoring"
	"github.com/quillhaven/breakout-engine/pkg/types"
)

// Writer persists sweep outputs under one output directory.
type Writer struct {
	logger *zap.Logger
	outDir string
}

// NewWriter creates a writer rooted at outDir, creating it if needed.
func NewWriter(logger *zap.Logger, outDir string) (*Writer, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	return &Writer{logger: logger, outDir: outDir}, nil
}

// Dir returns the writer's root directory.
func (w *Writer) Dir() string { return w.outDir }

// runSummary is the summary.json document: aggregated metrics plus the
// config echo and split info.
type runSummary struct {
	Summary types.Summary   `json:"summary"`
	Split   types.SplitInfo `json:"split"`
	Config  map[string]any  `json:"config"`
}

// WriteRunArtifacts writes one run's trades.csv, equity_curve.csv,
// daily_stats.csv, and summary.json under <outDir>/<ticker>_p<penalty>[_target]/.
func (w *Writer) WriteRunArtifacts(key types.RunKey, res backtester.Result, summary types.Summary, info types.SplitInfo, cfg config.Config) error {
	dir := filepath.Join(w.outDir, key.String())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	if err := w.writeTrades(filepath.Join(dir, "trades.csv"), res); err != nil {
		return err
	}
	if err := w.writeEquityCurve(filepath.Join(dir, "equity_curve.csv"), res); err != nil {
		return err
	}
	if err := w.writeDailyStats(filepath.Join(dir, "daily_stats.csv"), res); err != nil {
		return err
	}

	doc := runSummary{Summary: summary, Split: info, Config: cfg.Echo()}
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, "summary.json"), raw, 0o644); err != nil {
		return err
	}

	w.logger.Debug("Run artifacts written",
		zap.String("dir", dir),
		zap.Int("trades", len(res.Trades)),
	)
	return nil
}

func (w *Writer) writeTrades(path string, res backtester.Result) error {
	header := []string{
		"ticker", "penalty", "direction", "ts_signal", "ts_entry", "ts_exit",
		"entry", "sl", "tp", "exit_price", "exit_reason", "atr_signal",
		"result_r", "result_cash", "balance_after", "duration_bars",
	}
	rows := make([][]string, 0, len(res.Trades))
	for _, tr := range res.Trades {
		rows = append(rows, []string{
			tr.Ticker,
			ffloat(tr.PenaltyATR),
			tr.Direction.String(),
			ftime(tr.TSSignal),
			ftime(tr.TSEntry),
			ftime(tr.TSExit),
			ffloat(tr.Entry),
			ffloat(tr.SL),
			ffloat(tr.TP),
			ffloat(tr.ExitPrice),
			string(tr.ExitReason),
			ffloat(tr.ATRSignal),
			ffloat(tr.ResultR),
			ffloat(tr.ResultCash),
			ffloat(tr.BalanceAfter),
			strconv.Itoa(tr.DurationBars),
		})
	}
	return writeCSV(path, header, rows)
}

func (w *Writer) writeEquityCurve(path string, res backtester.Result) error {
	header := []string{"time", "balance", "equity", "dd_global", "dd_daily", "halted"}
	rows := make([][]string, 0, len(res.EquityCurve))
	for _, e := range res.EquityCurve {
		rows = append(rows, []string{
			ftime(e.Time),
			ffloat(e.Balance),
			ffloat(e.Equity),
			ffloat(e.DDGlobal),
			ffloat(e.DDDaily),
			strconv.FormatBool(e.HaltToday),
		})
	}
	return writeCSV(path, header, rows)
}

func (w *Writer) writeDailyStats(path string, res backtester.Result) error {
	header := []string{"day", "start_equity", "min_equity", "max_daily_dd_pct", "losses_closed", "halted"}
	rows := make([][]string, 0, len(res.DailyStats))
	for _, d := range res.DailyStats {
		rows = append(rows, []string{
			d.Date.Format("2006-01-02"),
			ffloat(d.StartEquity),
			ffloat(d.MinEquity),
			ffloat(d.MaxDailyDDPct),
			strconv.Itoa(d.LossesClosed),
			strconv.FormatBool(d.Halted),
		})
	}
	return writeCSV(path, header, rows)
}

// WriteResults concatenates every run's summary into results.csv.
func (w *Writer) WriteResults(summaries []types.Summary) error {
	header := []string{
		"ticker", "penalty_atr", "split_target", "status", "n_trades", "win_rate",
		"expectancy_r", "profit_factor", "net_r", "end_balance",
		"max_daily_dd_pct", "p99_daily_dd_pct", "max_global_dd",
		"n_violate_ftmo", "n_violate_gft", "n_violate_total", "bars",
		"date_start", "date_end",
	}
	rows := make([][]string, 0, len(summaries))
	for _, s := range summaries {
		rows = append(rows, []string{
			s.Ticker,
			ffloat(s.PenaltyATR),
			s.SplitTarget,
			"ok",
			strconv.Itoa(s.NTrades),
			ffloat(s.WinRate),
			ffloat(s.ExpectancyR),
			ffloat(s.ProfitFactor),
			ffloat(s.NetR),
			ffloat(s.EndBalance),
			ffloat(s.MaxDailyDDPct),
			ffloat(s.P99DailyDDPct),
			ffloat(s.MaxGlobalDD),
			strconv.Itoa(s.NViolateFTMOBars),
			strconv.Itoa(s.NViolateGFTBars),
			strconv.Itoa(s.NViolateTotalBars),
			strconv.Itoa(s.Bars),
			ftime(s.DateStart),
			ftime(s.DateEnd),
		})
	}
	return writeCSV(filepath.Join(w.outDir, "results.csv"), header, rows)
}

// WriteErrors records failed runs alongside results.csv.
func (w *Writer) WriteErrors(errs []types.RunError) error {
	if len(errs) == 0 {
		return nil
	}
	header := []string{"ticker", "penalty_atr", "split_target", "error"}
	rows := make([][]string, 0, len(errs))
	for _, e := range errs {
		rows = append(rows, []string{
			e.Key.Ticker, ffloat(e.Key.PenaltyATR), e.Key.SplitTarget, e.Err,
		})
	}
	return writeCSV(filepath.Join(w.outDir, "errors.csv"), header, rows)
}

var comparisonHeader = []string{
	"ticker", "penalty",
	"is_trades", "is_expectancy", "is_pf", "is_wr", "is_dd", "is_bars",
	"oos_trades", "oos_expectancy", "oos_pf", "oos_wr", "oos_dd", "oos_bars",
	"exp_delta", "pf_delta", "oos_status", "oos_notes",
}

func comparisonRow(c scoring.Comparison) []string {
	return []string{
		c.Ticker,
		ffloat(c.PenaltyATR),
		strconv.Itoa(c.IS.NTrades),
		ffloat(c.IS.ExpectancyR),
		ffloat(c.IS.ProfitFactor),
		ffloat(c.IS.WinRate),
		ffloat(c.IS.MaxDailyDDPct),
		strconv.Itoa(c.IS.Bars),
		strconv.Itoa(c.OOS.NTrades),
		ffloat(c.OOS.ExpectancyR),
		ffloat(c.OOS.ProfitFactor),
		ffloat(c.OOS.WinRate),
		ffloat(c.OOS.MaxDailyDDPct),
		strconv.Itoa(c.OOS.Bars),
		ffloat(c.OOS.ExpectancyR - c.IS.ExpectancyR),
		ffloat(c.OOS.ProfitFactor - c.IS.ProfitFactor),
		string(c.Status),
		c.NotesString(),
	}
}

// WriteComparisons writes comparison_full.csv and the reference-penalty
// comparison_ref.csv.
func (w *Writer) WriteComparisons(full, ref []scoring.Comparison) error {
	rows := make([][]string, 0, len(full))
	for _, c := range full {
		rows = append(rows, comparisonRow(c))
	}
	if err := writeCSV(filepath.Join(w.outDir, "comparison_full.csv"), comparisonHeader, rows); err != nil {
		return err
	}

	rows = rows[:0]
	for _, c := range ref {
		rows = append(rows, comparisonRow(c))
	}
	return writeCSV(filepath.Join(w.outDir, "comparison_ref.csv"), comparisonHeader, rows)
}

var shortlistHeader = []string{
	"ticker", "penalty", "oos_score",
	"oos_trades", "oos_expectancy", "oos_pf", "oos_wr", "oos_dd",
	"is_trades", "is_expectancy", "is_pf",
}

func shortlistRow(c scoring.Comparison) []string {
	return []string{
		c.Ticker,
		ffloat(c.PenaltyATR),
		ffloat(c.Score),
		strconv.Itoa(c.OOS.NTrades),
		ffloat(c.OOS.ExpectancyR),
		ffloat(c.OOS.ProfitFactor),
		ffloat(c.OOS.WinRate),
		ffloat(c.OOS.MaxDailyDDPct),
		strconv.Itoa(c.IS.NTrades),
		ffloat(c.IS.ExpectancyR),
		ffloat(c.IS.ProfitFactor),
	}
}

// WriteShortlists writes shortlist_tier1.csv, shortlist_tier2.csv,
// shortlist_tradable.csv, and the per-ticker rejection reasons. Empty
// tiers still produce a headers-only file.
func (w *Writer) WriteShortlists(lists scoring.Shortlists) error {
	write := func(name string, comps []scoring.Comparison) error {
		rows := make([][]string, 0, len(comps))
		for _, c := range comps {
			rows = append(rows, shortlistRow(c))
		}
		return writeCSV(filepath.Join(w.outDir, name), shortlistHeader, rows)
	}

	if err := write("shortlist_tier1.csv", lists.Tier1); err != nil {
		return err
	}
	if err := write("shortlist_tier2.csv", lists.Tier2); err != nil {
		return err
	}
	if err := write("shortlist_tradable.csv", lists.Tradable); err != nil {
		return err
	}

	header := []string{"ticker", "reasons"}
	rows := make([][]string, 0, len(lists.Rejections))
	for _, r := range lists.Rejections {
		rows = append(rows, []string{r.Ticker, joinReasons(r.Reasons)})
	}
	return writeCSV(filepath.Join(w.outDir, "shortlist_rejections.csv"), header, rows)
}

func joinReasons(reasons []string) string {
	out := ""
	for i, r := range reasons {
		if i > 0 {
			out += "; "
		}
		out += r
	}
	return out
}

func writeCSV(path string, header []string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, row := range rows {
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func ffloat(v float64) string {
	if math.IsInf(v, 1) {
		return "inf"
	}
	if math.IsInf(v, -1) {
		return "-inf"
	}
	if math.IsNaN(v) {
		return "nan"
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func ftime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
