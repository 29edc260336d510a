// Package split partitions a bar history into in-sample and out-of-sample
// windows by a deterministic index ratio.
package split

import (
	"github.com/quillhaven/breakout-engine/internal/config"
	"github.com/quillhaven/breakout-engine/internal/model"
	"github.com/quillhaven/breakout-engine/pkg/types"
)

// ByTime cuts bars at floor(len*ratio): the IS target keeps rows [0, cut),
// the OOS target keeps [cut, len). A degenerate cut (0 or len) returns the
// entire series, with SplitInfo.SplitBars == OriginalBars.
func ByTime(bars []model.Bar, ratio float64, target config.SplitTarget) ([]model.Bar, types.SplitInfo) {
	n := len(bars)
	if n == 0 {
		return bars, types.SplitInfo{Mode: string(config.SplitModeNone), Ratio: ratio}
	}

	cut := int(float64(n) * ratio)
	if cut <= 0 || cut >= n {
		return bars, infoFor(config.SplitModeTime, target, ratio, n, bars)
	}

	var out []model.Bar
	if target == config.SplitTargetOOS {
		out = bars[cut:]
	} else {
		out = bars[:cut]
	}
	return out, infoFor(config.SplitModeTime, target, ratio, n, out)
}

// Apply partitions bars per cfg. SplitModeNone passes the series through
// untouched.
func Apply(bars []model.Bar, cfg config.Config) ([]model.Bar, types.SplitInfo) {
	if cfg.SplitMode != config.SplitModeTime {
		return bars, infoFor(config.SplitModeNone, "", cfg.SplitRatio, len(bars), bars)
	}
	return ByTime(bars, cfg.SplitRatio, cfg.SplitTarget)
}

func infoFor(mode config.SplitMode, target config.SplitTarget, ratio float64, originalBars int, window []model.Bar) types.SplitInfo {
	info := types.SplitInfo{
		Mode:         string(mode),
		Target:       string(target),
		Ratio:        ratio,
		OriginalBars: originalBars,
		SplitBars:    len(window),
	}
	if len(window) > 0 {
		info.DateStart = window[0].Timestamp
		info.DateEnd = window[len(window)-1].Timestamp
	}
	return info
}
