package asanalysis

import (
	"fmt"
	"sort"
)

// BucketStats summarizes the fills assigned to one quote-age bucket.
type BucketStats struct {
	Label               string
	Count               int
	MeanImmediateAS     float64
	MedianImmediateAS   float64
	MeanRealizedAS      map[int64]*float64
	InformedPct         float64
}

// BucketBoundaries computes numBuckets-1 quantile boundaries from the
// observed quote-age distribution.
func BucketBoundaries(fills []Fill, numBuckets int) []int64 {
	if len(fills) == 0 || numBuckets <= 1 {
		return nil
	}
	ages := make([]int64, len(fills))
	for i, f := range fills {
		ages[i] = f.QuoteAge
	}
	sort.Slice(ages, func(i, j int) bool { return ages[i] < ages[j] })

	boundaries := make([]int64, 0, numBuckets-1)
	for i := 1; i < numBuckets; i++ {
		idx := i * len(ages) / numBuckets
		if idx >= len(ages) {
			idx = len(ages) - 1
		}
		boundaries = append(boundaries, ages[idx])
	}
	return boundaries
}

// AssignBucket returns the bucket index for a given quote age: the
// count of boundaries not exceeding age (bisect_right semantics).
func AssignBucket(age int64, boundaries []int64) int {
	return sort.Search(len(boundaries), func(i int) bool { return boundaries[i] > age })
}

// BucketLabel renders a human-readable range for a bucket index.
func BucketLabel(idx int, boundaries []int64) string {
	if len(boundaries) == 0 {
		return "[0, inf)"
	}
	switch {
	case idx == 0:
		return fmt.Sprintf("[0, %d)", boundaries[0])
	case idx < len(boundaries):
		return fmt.Sprintf("[%d, %d)", boundaries[idx-1], boundaries[idx])
	default:
		return fmt.Sprintf("[%d, inf)", boundaries[len(boundaries)-1])
	}
}

// Summarize buckets fills by quote age and computes per-bucket
// statistics.
func Summarize(fills []Fill, horizons []int64, numBuckets int) ([]int64, []BucketStats) {
	boundaries := BucketBoundaries(fills, numBuckets)

	byBucket := make(map[int][]Fill)
	for _, f := range fills {
		b := AssignBucket(f.QuoteAge, boundaries)
		byBucket[b] = append(byBucket[b], f)
	}

	stats := make([]BucketStats, 0, numBuckets)
	for b := 0; b < numBuckets; b++ {
		bucketFills := byBucket[b]
		label := BucketLabel(b, boundaries)

		if len(bucketFills) == 0 {
			empty := make(map[int64]*float64, len(horizons))
			for _, h := range horizons {
				empty[h] = nil
			}
			stats = append(stats, BucketStats{Label: label, MeanRealizedAS: empty})
			continue
		}

		imm := make([]float64, len(bucketFills))
		for i, f := range bucketFills {
			imm[i] = float64(f.ImmediateAS)
		}

		meanRealized := make(map[int64]*float64, len(horizons))
		for _, h := range horizons {
			var sum float64
			var n int
			for _, f := range bucketFills {
				if v := f.RealizedAS[h]; v != nil {
					sum += float64(*v)
					n++
				}
			}
			if n > 0 {
				mean := sum / float64(n)
				meanRealized[h] = &mean
			} else {
				meanRealized[h] = nil
			}
		}

		informed := 0
		for _, f := range bucketFills {
			if f.CounterpartyType == "InformedTrader" {
				informed++
			}
		}

		stats = append(stats, BucketStats{
			Label:             label,
			Count:             len(bucketFills),
			MeanImmediateAS:   mean(imm),
			MedianImmediateAS: median(imm),
			MeanRealizedAS:    meanRealized,
			InformedPct:       100 * float64(informed) / float64(len(bucketFills)),
		})
	}

	return boundaries, stats
}

func mean(vs []float64) float64 {
	if len(vs) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vs {
		sum += v
	}
	return sum / float64(len(vs))
}

func median(vs []float64) float64 {
	if len(vs) == 0 {
		return 0
	}
	sorted := append([]float64(nil), vs...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
