// Command breakout is the backtest sweep entry point: run a multi-ticker
// sweep, a single backtest, an IS/OOS comparison with tiered shortlists, or
// print the effective configuration.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/quillhaven/breakout-engine/internal/batch"
	"github.com/quillhaven/breakout-engine/internal/config"
	"github.com/quillhaven/breakout-engine/internal/data"
	"github.com/quillhaven/breakout-engine/internal/scoring"
	"github.com/quillhaven/breakout-engine/internal/statusserver"
	"github.com/quillhaven/breakout-engine/internal/store"
	"github.com/quillhaven/breakout-engine/pkg/types"
)

type appFlags struct {
	configFile string
	dataDir    string
	outDir     string
	verbose    bool

	tickers    string
	penalties  string
	split      string
	strategy   string
	workers    int
	statusAddr string

	refPenalty     float64
	ddCap          float64
	tier1MinTrades int
	tier2MinTrades int
	maxTickers     int
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &appFlags{}

	root := &cobra.Command{
		Use:           "breakout",
		Short:         "Event-driven breakout backtest engine with prop-firm risk constraints",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&flags.configFile, "config", "", "settings file (yaml/toml/json)")
	root.PersistentFlags().StringVar(&flags.dataDir, "data-dir", "data", "local bar cache directory")
	root.PersistentFlags().StringVarP(&flags.outDir, "out", "o", "out", "output directory")
	root.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "verbose logging")

	root.AddCommand(newRunCmd(flags))
	root.AddCommand(newSingleCmd(flags))
	root.AddCommand(newCompareCmd(flags))
	root.AddCommand(newConfigCmd(flags))

	return root
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	return cfg.Build()
}

// loadConfig merges the defaults with an optional settings file and
// BREAKOUT_* environment overrides. Unknown keys in the file are rejected.
func loadConfig(flags *appFlags) (config.Config, error) {
	v := viper.New()
	v.SetEnvPrefix("breakout")
	v.AutomaticEnv()

	if flags.configFile != "" {
		v.SetConfigFile(flags.configFile)
		if err := v.ReadInConfig(); err != nil {
			return config.Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	return config.Load(v)
}

func parseTickers(flags *appFlags, source data.Source) []string {
	if flags.tickers == "" {
		return source.Symbols()
	}
	parts := strings.Split(flags.tickers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parsePenalties(s string, fallback float64) ([]float64, error) {
	if s == "" {
		return []float64{fallback}, nil
	}
	parts := strings.Split(s, ",")
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid penalty %q: %w", p, err)
		}
		out = append(out, f)
	}
	return out, nil
}

func parseSplitTargets(s string) ([]config.SplitTarget, error) {
	switch s {
	case "", "none":
		return nil, nil
	case "is":
		return []config.SplitTarget{config.SplitTargetIS}, nil
	case "oos":
		return []config.SplitTarget{config.SplitTargetOOS}, nil
	case "both":
		return []config.SplitTarget{config.SplitTargetIS, config.SplitTargetOOS}, nil
	default:
		return nil, fmt.Errorf("unknown split %q (want none, is, oos, or both)", s)
	}
}

// setupSweep wires the shared pieces every sweep command needs.
func setupSweep(flags *appFlags) (*zap.Logger, config.Config, *data.Store, *store.Writer, error) {
	logger, err := newLogger(flags.verbose)
	if err != nil {
		return nil, config.Config{}, nil, nil, err
	}

	cfg, err := loadConfig(flags)
	if err != nil {
		return nil, config.Config{}, nil, nil, err
	}
	if flags.strategy != "" {
		cfg.Strategy = flags.strategy
	}

	source, err := data.NewStore(logger, flags.dataDir)
	if err != nil {
		return nil, config.Config{}, nil, nil, err
	}

	writer, err := store.NewWriter(logger, flags.outDir)
	if err != nil {
		return nil, config.Config{}, nil, nil, err
	}

	return logger, cfg, source, writer, nil
}

// runSweep executes one sweep and persists every artifact. Returns the
// sweep result for commands that post-process it.
func runSweep(ctx context.Context, logger *zap.Logger, cfg config.Config, source *data.Store, writer *store.Writer, flags *appFlags, targets []config.SplitTarget) (*batch.SweepResult, error) {
	driver := batch.New(logger, cfg, source)

	if flags.statusAddr != "" {
		srv := statusserver.NewServer(logger, flags.statusAddr, driver)
		go func() {
			if err := srv.Start(); err != nil {
				logger.Warn("Status server stopped", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			srv.Stop(shutdownCtx)
		}()
	}

	penalties, err := parsePenalties(flags.penalties, cfg.PenaltyATR)
	if err != nil {
		return nil, err
	}

	res, err := driver.Run(ctx, batch.Options{
		Tickers:      parseTickers(flags, source),
		Penalties:    penalties,
		SplitTargets: targets,
		Workers:      flags.workers,
	})
	if err != nil {
		return nil, err
	}

	for _, o := range res.Outcomes {
		if err := writer.WriteRunArtifacts(o.Key, o.Result, o.Summary, o.Split, cfg); err != nil {
			return nil, err
		}
	}
	if err := writer.WriteResults(res.Summaries); err != nil {
		return nil, err
	}
	if err := writer.WriteErrors(res.Errors); err != nil {
		return nil, err
	}

	if len(res.Outcomes) == 0 && len(res.Errors) > 0 {
		return nil, fmt.Errorf("all %d runs failed; see errors.csv", len(res.Errors))
	}
	return res, nil
}

func newRunCmd(flags *appFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a backtest sweep over tickers x penalties",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, cfg, source, writer, err := setupSweep(flags)
			if err != nil {
				return err
			}
			defer logger.Sync()

			targets, err := parseSplitTargets(flags.split)
			if err != nil {
				return err
			}

			_, err = runSweep(cmd.Context(), logger, cfg, source, writer, flags, targets)
			return err
		},
	}

	cmd.Flags().StringVarP(&flags.tickers, "tickers", "t", "", "tickers, comma-separated (default: every cached symbol)")
	cmd.Flags().StringVarP(&flags.penalties, "penalties", "p", "", "execution penalties as ATR multiples, comma-separated")
	cmd.Flags().StringVar(&flags.split, "split", "none", "split window: none, is, oos, or both")
	cmd.Flags().StringVar(&flags.strategy, "strategy", "", "strategy variant (default: proactive_stop)")
	cmd.Flags().IntVar(&flags.workers, "workers", 0, "worker goroutines (default: CPU count)")
	cmd.Flags().StringVar(&flags.statusAddr, "status-addr", "", "serve progress/metrics on this address (e.g. :8088)")
	return cmd
}

func newSingleCmd(flags *appFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "single TICKER",
		Short: "Run one ticker at one penalty",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, cfg, source, writer, err := setupSweep(flags)
			if err != nil {
				return err
			}
			defer logger.Sync()

			flags.tickers = args[0]
			targets, err := parseSplitTargets(flags.split)
			if err != nil {
				return err
			}

			res, err := runSweep(cmd.Context(), logger, cfg, source, writer, flags, targets)
			if err != nil {
				return err
			}

			for _, s := range res.Summaries {
				fmt.Printf("%s pen %.2f: %d trades, win rate %.1f%%, ExpR %+.3f, PF %.2f, maxDD %.2f%%\n",
					s.Ticker, s.PenaltyATR, s.NTrades, s.WinRate*100, s.ExpectancyR,
					s.ProfitFactor, s.MaxDailyDDPct*100)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&flags.penalties, "penalty", "p", "", "execution penalty as an ATR multiple")
	cmd.Flags().StringVar(&flags.split, "split", "none", "split window: none, is, oos, or both")
	cmd.Flags().StringVar(&flags.strategy, "strategy", "", "strategy variant (default: proactive_stop)")
	return cmd
}

func newCompareCmd(flags *appFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compare",
		Short: "Run IS and OOS sweeps, pair them, and emit tiered shortlists",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, cfg, source, writer, err := setupSweep(flags)
			if err != nil {
				return err
			}
			defer logger.Sync()

			if cfg.SplitRatio <= 0 || cfg.SplitRatio >= 1 {
				return fmt.Errorf("compare needs split_ratio in (0,1), got %v", cfg.SplitRatio)
			}
			cfg.SplitMode = config.SplitModeTime

			res, err := runSweep(cmd.Context(), logger, cfg, source, writer, flags,
				[]config.SplitTarget{config.SplitTargetIS, config.SplitTargetOOS})
			if err != nil {
				return err
			}

			full := pairAndEvaluate(res)
			ref := scoring.FilterPenalty(full, flags.refPenalty)
			if err := writer.WriteComparisons(full, ref); err != nil {
				return err
			}

			shortCfg := scoring.DefaultShortlistConfig()
			if flags.ddCap > 0 {
				shortCfg.DDCap = flags.ddCap
			}
			if flags.tier1MinTrades > 0 {
				shortCfg.Tier1MinTrades = flags.tier1MinTrades
			}
			if flags.tier2MinTrades > 0 {
				shortCfg.Tier2MinTrades = flags.tier2MinTrades
			}
			if flags.maxTickers > 0 {
				shortCfg.MaxTickers = flags.maxTickers
			}

			lists := scoring.BuildShortlists(ref, shortCfg)
			if err := writer.WriteShortlists(lists); err != nil {
				return err
			}

			logger.Info("Comparison written",
				zap.Int("pairs", len(full)),
				zap.Int("tier1", len(lists.Tier1)),
				zap.Int("tier2", len(lists.Tier2)),
				zap.Int("rejected", len(lists.Rejections)),
			)
			return nil
		},
	}

	cmd.Flags().StringVarP(&flags.tickers, "tickers", "t", "", "tickers, comma-separated (default: every cached symbol)")
	cmd.Flags().StringVarP(&flags.penalties, "penalties", "p", "", "execution penalties as ATR multiples, comma-separated")
	cmd.Flags().StringVar(&flags.strategy, "strategy", "", "strategy variant (default: proactive_stop)")
	cmd.Flags().IntVar(&flags.workers, "workers", 0, "worker goroutines (default: CPU count)")
	cmd.Flags().StringVar(&flags.statusAddr, "status-addr", "", "serve progress/metrics on this address")
	cmd.Flags().Float64Var(&flags.refPenalty, "ref-penalty", 0.25, "reference penalty for comparison_ref.csv and shortlists")
	cmd.Flags().Float64Var(&flags.ddCap, "dd-cap", 0, "override shortlist daily-DD cap")
	cmd.Flags().IntVar(&flags.tier1MinTrades, "tier1-min-trades", 0, "override tier-1 minimum OOS trades")
	cmd.Flags().IntVar(&flags.tier2MinTrades, "tier2-min-trades", 0, "override tier-2 minimum OOS trades")
	cmd.Flags().IntVar(&flags.maxTickers, "max-tickers", 0, "override shortlist size cap")
	return cmd
}

func newConfigCmd(flags *appFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			echo := cfg.Echo()
			keys := make([]string, 0, len(echo))
			for k := range echo {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				raw, _ := json.Marshal(echo[k])
				fmt.Printf("%s = %s\n", k, raw)
			}
			return nil
		},
	}
}

// pairAndEvaluate splits a both-targets sweep into IS and OOS rows and
// evaluates every matched (ticker, penalty) pair.
func pairAndEvaluate(res *batch.SweepResult) []scoring.Comparison {
	var isRows, oosRows []types.Summary
	for _, s := range res.Summaries {
		switch s.SplitTarget {
		case string(config.SplitTargetIS):
			isRows = append(isRows, s)
		case string(config.SplitTargetOOS):
			oosRows = append(oosRows, s)
		}
	}
	return scoring.ComparePairs(isRows, oosRows, scoring.DefaultEligibility())
}
