// Package batch drives the backtest sweep: the cartesian product of
// tickers x penalties x split targets, fanned out on a worker pool. Each
// run owns its engine state exclusively; the driver merges results under a
// single mutex after workers complete them.
package batch

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/quillhaven/breakout-engine/internal/backtester"
	"github.com/quillhaven/breakout-engine/internal/config"
	"github.com/quillhaven/breakout-engine/internal/data"
	"github.com/quillhaven/breakout-engine/internal/resample"
	"github.com/quillhaven/breakout-engine/internal/scoring"
	"github.com/quillhaven/breakout-engine/internal/split"
	"github.com/quillhaven/breakout-engine/internal/strategy"
	"github.com/quillhaven/breakout-engine/internal/workers"
	"github.com/quillhaven/breakout-engine/pkg/types"
	"github.com/quillhaven/breakout-engine/pkg/utils"
)

// Options enumerates one sweep.
type Options struct {
	Tickers   []string
	Penalties []float64
	// SplitTargets of "" mean no split; "is"/"oos" select a window.
	SplitTargets []config.SplitTarget
	Workers      int
}

// Outcome is one completed run with everything downstream layers need.
type Outcome struct {
	Key     types.RunKey
	Result  backtester.Result
	Summary types.Summary
	Split   types.SplitInfo
}

// SweepResult is the merged output of one sweep.
type SweepResult struct {
	RunID     string
	Outcomes  []Outcome
	Summaries []types.Summary
	Errors    []types.RunError
	Elapsed   time.Duration
}

// Driver orchestrates sweeps over a shared read-only config and data
// source.
type Driver struct {
	logger     *zap.Logger
	cfg        config.Config
	source     data.Source
	strategies *strategy.Registry
	metrics    *Metrics

	mu       sync.Mutex
	progress types.BatchProgress
}

// New builds a Driver with the default strategy registry (the production
// variant plus its tagged alternates).
func New(logger *zap.Logger, cfg config.Config, source data.Source) *Driver {
	return &Driver{
		logger:     logger,
		cfg:        cfg,
		source:     source,
		strategies: strategy.NewRegistry(),
		metrics:    NewMetrics(),
	}
}

// Metrics exposes the sweep's prometheus instruments.
func (d *Driver) Metrics() *Metrics { return d.metrics }

// Progress returns a snapshot of the running sweep.
func (d *Driver) Progress() types.BatchProgress {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.progress
}

// Run executes the sweep and blocks until every run has finished. Failed
// runs are collected with their (ticker, penalty) context; they never
// poison unrelated runs.
func (d *Driver) Run(ctx context.Context, opts Options) (*SweepResult, error) {
	keys := d.expand(opts)
	if len(keys) == 0 {
		return nil, fmt.Errorf("batch: nothing to run (no tickers or penalties)")
	}

	runID := utils.GenerateRunID()
	started := time.Now()

	d.mu.Lock()
	d.progress = types.BatchProgress{RunID: runID, Total: len(keys), StartedAt: started}
	d.mu.Unlock()

	poolCfg := workers.DefaultPoolConfig("sweep")
	if opts.Workers > 0 {
		poolCfg.NumWorkers = opts.Workers
	}
	pool := workers.NewPool(d.logger, poolCfg)
	pool.Start()

	var (
		outcomes []Outcome
		errs     []types.RunError
	)

	for _, key := range keys {
		key := key
		task := workers.TaskFunc(func() error {
			d.trackStart()
			t0 := time.Now()
			outcome, err := d.runOne(ctx, key)
			d.metrics.RunSeconds.Observe(time.Since(t0).Seconds())

			d.mu.Lock()
			defer d.mu.Unlock()
			d.progress.Running--
			if err != nil {
				d.progress.Failed++
				d.metrics.RunsFailed.Inc()
				errs = append(errs, types.RunError{Key: key, Err: err.Error()})
				return fmt.Errorf("%s: %w", key.String(), err)
			}
			d.progress.Completed++
			d.metrics.RunsCompleted.Inc()
			d.metrics.TradesTotal.Add(float64(len(outcome.Result.Trades)))
			outcomes = append(outcomes, outcome)
			return nil
		})
		if err := pool.Submit(task); err != nil {
			return nil, err
		}
	}

	pool.Drain()

	d.mu.Lock()
	d.progress.Done = true
	d.mu.Unlock()

	// Workers complete in arbitrary order; the merged output is
	// deterministic.
	sort.Slice(outcomes, func(i, j int) bool { return lessKey(outcomes[i].Key, outcomes[j].Key) })
	sort.Slice(errs, func(i, j int) bool { return lessKey(errs[i].Key, errs[j].Key) })

	summaries := make([]types.Summary, len(outcomes))
	for i, o := range outcomes {
		summaries[i] = o.Summary
	}

	elapsed := time.Since(started)
	d.logger.Info("Sweep finished",
		zap.String("run_id", runID),
		zap.Int("completed", len(outcomes)),
		zap.Int("failed", len(errs)),
		zap.String("elapsed", utils.FormatDuration(elapsed)),
	)

	return &SweepResult{
		RunID:     runID,
		Outcomes:  outcomes,
		Summaries: summaries,
		Errors:    errs,
		Elapsed:   elapsed,
	}, nil
}

func (d *Driver) trackStart() {
	d.mu.Lock()
	d.progress.Running++
	d.mu.Unlock()
	d.metrics.RunsInFlight.Inc()
}

// runOne executes a single (ticker, penalty, split) backtest.
func (d *Driver) runOne(ctx context.Context, key types.RunKey) (Outcome, error) {
	defer d.metrics.RunsInFlight.Dec()

	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}

	fine, err := d.source.Load(ctx, key.Ticker)
	if err != nil {
		return Outcome{}, err
	}

	cfgRun := d.cfg
	cfgRun.PenaltyATR = key.PenaltyATR
	if key.SplitTarget == "" || key.SplitTarget == string(config.SplitModeNone) {
		cfgRun.SplitMode = config.SplitModeNone
	} else {
		cfgRun.SplitMode = config.SplitModeTime
		cfgRun.SplitTarget = config.SplitTarget(key.SplitTarget)
	}

	coarse := resample.ToTimeframe(fine, cfgRun.Timeframe)
	coarse, info := split.Apply(coarse, cfgRun)
	if len(coarse) == 0 {
		return Outcome{}, fmt.Errorf("no bars after resample/split")
	}

	strat, ok := d.strategies.Create(cfgRun.Strategy, cfgRun)
	if !ok {
		return Outcome{}, fmt.Errorf("unknown strategy %q", cfgRun.Strategy)
	}
	eng, err := backtester.New(cfgRun, strat, key.Ticker, key.PenaltyATR)
	if err != nil {
		return Outcome{}, err
	}

	res, err := eng.Run(coarse, fine)
	if err != nil {
		return Outcome{}, err
	}

	return Outcome{
		Key:     key,
		Result:  res,
		Summary: scoring.Aggregate(res, cfgRun),
		Split:   info,
	}, nil
}

// expand builds the run list. Empty penalty or target lists fall back to
// the config's single penalty and no split.
func (d *Driver) expand(opts Options) []types.RunKey {
	penalties := opts.Penalties
	if len(penalties) == 0 {
		penalties = []float64{d.cfg.PenaltyATR}
	}
	targets := opts.SplitTargets
	if len(targets) == 0 {
		targets = []config.SplitTarget{""}
	}

	keys := make([]types.RunKey, 0, len(opts.Tickers)*len(penalties)*len(targets))
	for _, ticker := range opts.Tickers {
		for _, penalty := range penalties {
			for _, target := range targets {
				keys = append(keys, types.RunKey{
					Ticker:      ticker,
					PenaltyATR:  penalty,
					SplitTarget: string(target),
				})
			}
		}
	}
	return keys
}

func lessKey(a, b types.RunKey) bool {
	if a.Ticker != b.Ticker {
		return a.Ticker < b.Ticker
	}
	if a.PenaltyATR != b.PenaltyATR {
		return a.PenaltyATR < b.PenaltyATR
	}
	return a.SplitTarget < b.SplitTarget
}
