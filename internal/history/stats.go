package history

import (
	"math"
	"sort"
	"time"
)

// Summary is a statistics snapshot of processed items.
type Summary struct {
	Count       int
	From        time.Time
	To          time.Time
	AvgScore    float64
	MinScore    float64
	MaxScore    float64
	AvgScanMs   float64
	P95ScanMs   float64
	Actions     map[string]int
	Rejected    int
	PassedCount int
}

// Summarize computes summary statistics for items scanned at or after since.
func Summarize(items []Item, since time.Time) Summary {
	filtered := make([]Item, 0, len(items))
	for _, it := range items {
		if !unixTime(it.UnixTime).Before(since) {
			filtered = append(filtered, it)
		}
	}

	if len(filtered) == 0 {
		return Summary{Count: 0, Actions: map[string]int{}}
	}

	scan := make([]float64, 0, len(filtered))
	actions := map[string]int{}
	var sumScore, sumScan float64
	var rejected, passed int
	minScore := math.MaxFloat64
	maxScore := -math.MaxFloat64
	from := unixTime(filtered[0].UnixTime)
	to := from

	for _, it := range filtered {
		ms := it.TimeReal * 1000
		scan = append(scan, ms)
		sumScan += ms
		sumScore += it.Score
		actions[it.Action]++
		if it.Badge == BadgeDanger {
			rejected++
		}
		if it.Passed() {
			passed++
		}
		if it.Score < minScore {
			minScore = it.Score
		}
		if it.Score > maxScore {
			maxScore = it.Score
		}
		ts := unixTime(it.UnixTime)
		if ts.Before(from) {
			from = ts
		}
		if ts.After(to) {
			to = ts
		}
	}

	sort.Float64s(scan)
	count := float64(len(filtered))

	return Summary{
		Count:       len(filtered),
		From:        from,
		To:          to,
		AvgScore:    sumScore / count,
		MinScore:    minScore,
		MaxScore:    maxScore,
		AvgScanMs:   sumScan / count,
		P95ScanMs:   percentile(scan, 0.95),
		Actions:     actions,
		Rejected:    rejected,
		PassedCount: passed,
	}
}

func unixTime(ts float64) time.Time {
	sec, frac := math.Modf(ts)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC()
}

func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	if p <= 0 {
		return values[0]
	}
	if p >= 1 {
		return values[len(values)-1]
	}
	idx := int(math.Ceil(p*float64(len(values)))) - 1
	if idx < 0 {
		idx = 0
	}
	return values[idx]
}
