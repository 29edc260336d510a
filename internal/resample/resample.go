// Package resample aggregates a finer, uniform-interval bar series into
// fixed-width buckets aligned to a coarser trading timeframe.
package resample

import (
	"time"

	"github.com/quillhaven/breakout-engine/internal/model"
	"github.com/shopspring/decimal"
)

// ToTimeframe aggregates bars into buckets of width bucket, aligned to the
// Unix epoch. Within each bucket: open=first, high=max, low=min,
// close=last, volume=sum. Buckets with no input rows are dropped. Input is
// assumed already sorted and at a uniform finer interval.
func ToTimeframe(bars []model.Bar, bucket time.Duration) []model.Bar {
	if len(bars) == 0 || bucket <= 0 {
		return nil
	}

	out := make([]model.Bar, 0, len(bars))
	var cur *model.Bar
	var curKey int64

	flush := func() {
		if cur != nil {
			out = append(out, *cur)
		}
	}

	for _, b := range bars {
		key := bucketKey(b.Timestamp, bucket)
		if cur == nil || key != curKey {
			flush()
			nb := model.Bar{
				Timestamp: bucketStart(key, bucket),
				Open:      b.Open,
				High:      b.High,
				Low:       b.Low,
				Close:     b.Close,
				Volume:    b.Volume,
			}
			cur = &nb
			curKey = key
			continue
		}
		cur.High = decimal.Max(cur.High, b.High)
		cur.Low = decimal.Min(cur.Low, b.Low)
		cur.Close = b.Close
		cur.Volume = cur.Volume.Add(b.Volume)
	}
	flush()

	return out
}

func bucketKey(ts time.Time, bucket time.Duration) int64 {
	return ts.UTC().Unix() / int64(bucket.Seconds())
}

func bucketStart(key int64, bucket time.Duration) time.Time {
	return time.Unix(key*int64(bucket.Seconds()), 0).UTC()
}

// Index builds a coarse-timestamp -> slice-of-finer-rows lookup, used by
// the engine's intrabar replay path. The finer series must be sorted and
// the coarse series must be ToTimeframe's output over the same bucket.
func Index(fine []model.Bar, bucket time.Duration) map[int64][]model.Bar {
	idx := make(map[int64][]model.Bar)
	for _, b := range fine {
		key := bucketKey(b.Timestamp, bucket)
		idx[key] = append(idx[key], b)
	}
	return idx
}

// SubBarsFor returns the finer bars belonging to a given coarse bar's
// bucket, in chronological order (callers build idx once per run via
// Index, then look up per coarse bar with this helper).
func SubBarsFor(idx map[int64][]model.Bar, coarseTs time.Time, bucket time.Duration) []model.Bar {
	return idx[bucketKey(coarseTs, bucket)]
}
