package history

import (
	"testing"
	"time"
)

func TestSummarize_Basic(t *testing.T) {
	t.Parallel()

	items := []Item{
		{UnixTime: 100, Score: 2, RequiredScore: 15, TimeReal: 0.010, Action: "no action", Badge: BadgeSuccess},
		{UnixTime: 200, Score: 20, RequiredScore: 15, TimeReal: 0.030, Action: "reject", Badge: BadgeDanger},
		{UnixTime: 10, Score: 50, TimeReal: 1, Action: "reject", Badge: BadgeDanger},
	}
	s := Summarize(items, time.Unix(50, 0))
	if s.Count != 2 {
		t.Fatalf("count=%d", s.Count)
	}
	if s.AvgScore != 11 {
		t.Fatalf("avg_score=%.2f", s.AvgScore)
	}
	if s.MinScore != 2 || s.MaxScore != 20 {
		t.Fatalf("min/max=%.2f/%.2f", s.MinScore, s.MaxScore)
	}
	if s.P95ScanMs != 30 {
		t.Fatalf("p95=%.2f", s.P95ScanMs)
	}
	if s.Actions["reject"] != 1 || s.Rejected != 1 || s.PassedCount != 1 {
		t.Fatalf("actions=%v rejected=%d passed=%d", s.Actions, s.Rejected, s.PassedCount)
	}
	if !s.From.Equal(time.Unix(100, 0)) || !s.To.Equal(time.Unix(200, 0)) {
		t.Fatalf("span=%v..%v", s.From, s.To)
	}
}

func TestSummarize_Empty(t *testing.T) {
	t.Parallel()

	if s := Summarize(nil, time.Time{}); s.Count != 0 || s.Actions == nil {
		t.Fatalf("summary=%+v", s)
	}
}

func TestPercentile_Edges(t *testing.T) {
	t.Parallel()

	values := []float64{1, 2, 3, 4}
	if got := percentile(values, 0); got != 1 {
		t.Fatalf("p0=%v", got)
	}
	if got := percentile(values, 1); got != 4 {
		t.Fatalf("p100=%v", got)
	}
}
