// Package indicators provides the pure numeric kernels used to enrich a bar
// series: EMA, ATR, Donchian high/low, a rolling quantile of relative ATR,
// and SMA. Every kernel is windowed with an explicit warm-up region and
// never fails on numeric input — undefined regions come back as NaN, and
// an empty input yields an empty output.
package indicators

import "math"

// EMA computes the exponentially weighted mean with smoothing
// alpha = 2/(n+1), unadjusted (the recursive form, not the adjusted
// weighted mean pandas' ewm(adjust=True) would produce). The first period-1
// outputs are NaN.
func EMA(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}
	alpha := 2.0 / float64(period+1)
	for i := range out {
		out[i] = math.NaN()
	}
	if period < 1 || len(values) < period {
		return out
	}
	seed := 0.0
	for i := 0; i < period; i++ {
		seed += values[i]
	}
	seed /= float64(period)
	out[period-1] = seed
	prev := seed
	for i := period; i < len(values); i++ {
		prev = (values[i]-prev)*alpha + prev
		out[i] = prev
	}
	return out
}

// TrueRange computes TR[t] = max(H-L, |H-prevClose|, |L-prevClose|). TR[0]
// has no previous close and is simply High[0]-Low[0].
func TrueRange(high, low, close []float64) []float64 {
	n := len(high)
	tr := make([]float64, n)
	for i := 0; i < n; i++ {
		hl := high[i] - low[i]
		if i == 0 {
			tr[i] = hl
			continue
		}
		hc := math.Abs(high[i] - close[i-1])
		lc := math.Abs(low[i] - close[i-1])
		tr[i] = math.Max(hl, math.Max(hc, lc))
	}
	return tr
}

// ATR computes the arithmetic-mean Average True Range over period bars
// (not Wilder's recursive smoothing). The first period-1 outputs are NaN.
func ATR(high, low, close []float64, period int) []float64 {
	tr := TrueRange(high, low, close)
	return rollingMean(tr, period)
}

// ATRRelative returns ATR/Close, the volatility-normalized series the
// rolling-quantile gate consumes.
func ATRRelative(atr, close []float64) []float64 {
	out := make([]float64, len(atr))
	for i := range out {
		if math.IsNaN(atr[i]) || close[i] == 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = atr[i] / close[i]
	}
	return out
}

// Donchian computes the rolling high/low channel, shifted by shift bars to
// prevent look-ahead: dHigh[t] = max(High[t-shift-period+1 .. t-shift]).
// shift must be >= 1 for production use; shift=0 would leak the current
// bar's own extremes into its own signal.
func Donchian(high, low []float64, period, shift int) (dHigh, dLow []float64) {
	n := len(high)
	dHigh = make([]float64, n)
	dLow = make([]float64, n)
	rawHigh := rollingMax(high, period)
	rawLow := rollingMin(low, period)
	for i := 0; i < n; i++ {
		src := i - shift
		if src < 0 {
			dHigh[i] = math.NaN()
			dLow[i] = math.NaN()
			continue
		}
		dHigh[i] = rawHigh[src]
		dLow[i] = rawLow[src]
	}
	return dHigh, dLow
}

// DonchianMid returns the channel midpoint (dHigh+dLow)/2.
func DonchianMid(dHigh, dLow []float64) []float64 {
	out := make([]float64, len(dHigh))
	for i := range out {
		out[i] = (dHigh[i] + dLow[i]) / 2
	}
	return out
}

// SMA computes the simple moving average over period bars. Supplements EMA
// as an interchangeable smoothing primitive; not wired into the production
// signal rule.
func SMA(values []float64, period int) []float64 {
	return rollingMean(values, period)
}

// RollingQuantile computes the simple-window q-quantile (0<=q<=1) of
// values, using linear interpolation between order statistics, matching
// pandas' default `.quantile()` behavior. Windows shorter than the
// requested size yield NaN.
func RollingQuantile(values []float64, window int, q float64) []float64 {
	n := len(values)
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	if window < 1 {
		return out
	}
	buf := make([]float64, window)
	for i := window - 1; i < n; i++ {
		copy(buf, values[i-window+1:i+1])
		hasNaN := false
		for _, v := range buf {
			if math.IsNaN(v) {
				hasNaN = true
				break
			}
		}
		if hasNaN {
			continue
		}
		sorted := append([]float64(nil), buf...)
		sortFloats(sorted)
		out[i] = quantileOf(sorted, q)
	}
	return out
}

func quantileOf(sorted []float64, q float64) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	if n == 1 {
		return sorted[0]
	}
	pos := q * float64(n-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

func sortFloats(v []float64) {
	for i := 1; i < len(v); i++ {
		for j := i; j > 0 && v[j-1] > v[j]; j-- {
			v[j-1], v[j] = v[j], v[j-1]
		}
	}
}

func rollingMean(values []float64, period int) []float64 {
	n := len(values)
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	if period < 1 || n < period {
		return out
	}
	sum := 0.0
	for i := 0; i < period; i++ {
		sum += values[i]
	}
	out[period-1] = sum / float64(period)
	for i := period; i < n; i++ {
		sum += values[i] - values[i-period]
		out[i] = sum / float64(period)
	}
	return out
}

func rollingMax(values []float64, period int) []float64 {
	n := len(values)
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	if period < 1 {
		return out
	}
	for i := period - 1; i < n; i++ {
		m := values[i-period+1]
		for j := i - period + 2; j <= i; j++ {
			if values[j] > m {
				m = values[j]
			}
		}
		out[i] = m
	}
	return out
}

func rollingMin(values []float64, period int) []float64 {
	n := len(values)
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	if period < 1 {
		return out
	}
	for i := period - 1; i < n; i++ {
		m := values[i-period+1]
		for j := i - period + 2; j <= i; j++ {
			if values[j] < m {
				m = values[j]
			}
		}
		out[i] = m
	}
	return out
}
