package windowing

import (
	"errors"
	"math"
	"testing"
	"time"

	"AnomalyReplay/internal/domain/models"
)

var t0 = time.Date(2013, 12, 2, 0, 0, 0, 0, time.UTC)

func ts(i int) time.Time { return t0.Add(time.Duration(i) * 5 * time.Minute) }

// buildDataset returns n records; every third record is flagged is_anomaly,
// every seventh has an empty is_anomaly cell.
func buildDataset(n int, mutate func(i int, r *models.Record)) *models.Dataset {
	recs := make([]models.Record, n)
	for i := range recs {
		r := models.Record{
			Timestamp: ts(i),
			Value:     float64(50 + i%20),
			Bands:     []models.Band{{Upper: 80, Lower: 20}, {Upper: math.NaN(), Lower: 10}},
		}
		switch {
		case i%7 == 0:
			r.IsAnomaly = nil
		case i%3 == 0:
			r.IsAnomaly = models.Bool(true)
		default:
			r.IsAnomaly = models.Bool(false)
		}
		if mutate != nil {
			mutate(i, &r)
		}
		recs[i] = r
	}
	return models.NewDataset("mem", recs, models.KnownModels[:2])
}

func TestComputeWindowLength(t *testing.T) {
	ds := buildDataset(1000, nil)
	for _, size := range []int{1, 7, 500} {
		for idx := 1; idx <= 1000; idx += 13 {
			w, err := ComputeWindow(ds, idx, size)
			if err != nil {
				t.Fatalf("idx=%d size=%d: %v", idx, size, err)
			}
			want := idx
			if size < want {
				want = size
			}
			if w.Len() != want {
				t.Fatalf("idx=%d size=%d: len=%d want %d", idx, size, w.Len(), want)
			}
			if w.End != idx || w.Records[w.Len()-1].Timestamp != ts(idx-1) {
				t.Fatalf("idx=%d: window must end at the cursor", idx)
			}
		}
	}
}

func TestComputeWindowEmptyAndClamp(t *testing.T) {
	ds := buildDataset(10, nil)
	if _, err := ComputeWindow(ds, 0, 5); !errors.Is(err, models.ErrEmptyWindow) {
		t.Fatalf("expected ErrEmptyWindow, got %v", err)
	}
	if _, err := ComputeWindow(ds, 3, 0); err == nil {
		t.Fatalf("expected error for zero window size")
	}
	w, err := ComputeWindow(ds, 25, 4)
	if err != nil {
		t.Fatalf("unexpected %v", err)
	}
	if w.Start != 6 || w.End != 10 {
		t.Fatalf("expected clamp to [6,10), got [%d,%d)", w.Start, w.End)
	}
}

func TestAlertCountMonotonic(t *testing.T) {
	ds := buildDataset(300, nil)
	prev := 0
	for idx := 0; idx <= 310; idx++ {
		n := AlertCount(ds, idx)
		if n < prev {
			t.Fatalf("alert count decreased at %d: %d < %d", idx, n, prev)
		}
		prev = n
	}
	// brute force check against the records
	want := 0
	for _, r := range ds.Records[:150] {
		if r.IsAnomaly != nil && *r.IsAnomaly {
			want++
		}
	}
	if got := AlertCount(ds, 150); got != want {
		t.Fatalf("AlertCount(150)=%d want %d", got, want)
	}
}

func TestConsensusAppearsAfterCursorPasses(t *testing.T) {
	ds := buildDataset(200, func(i int, r *models.Record) {
		if i == 42 {
			r.AlertLevel = models.AlertConsensus
		}
	})
	for idx := 1; idx <= 200; idx++ {
		w, err := ComputeWindow(ds, idx, 500)
		if err != nil {
			t.Fatalf("%v", err)
		}
		pts := ConsensusPoints(w)
		if idx <= 42 && len(pts) != 0 {
			t.Fatalf("idx=%d: consensus point visible too early", idx)
		}
		if idx > 42 && (len(pts) != 1 || pts[0].Index != 42) {
			t.Fatalf("idx=%d: expected record 42, got %+v", idx, pts)
		}
	}
	if got := ConsensusBetween(ds, 40, 45); len(got) != 1 || got[0].Index != 42 {
		t.Fatalf("ConsensusBetween: %+v", got)
	}
	if got := ConsensusBetween(ds, 43, 50); len(got) != 0 {
		t.Fatalf("ConsensusBetween after crossing: %+v", got)
	}
}

func TestGroundTruthSpan(t *testing.T) {
	ds := buildDataset(1000, func(i int, r *models.Record) {
		r.ActualAnomaly = i >= 10 && i <= 20
	})
	w, err := ComputeWindow(ds, 500, 500)
	if err != nil {
		t.Fatalf("%v", err)
	}
	span, ok := GroundTruthSpan(w)
	if !ok {
		t.Fatalf("expected a span")
	}
	if !span.Start.Equal(ts(10)) || !span.End.Equal(ts(20)) {
		t.Fatalf("got %v..%v", span.Start, span.End)
	}
	w, _ = ComputeWindow(ds, 600, 500)
	if _, ok := GroundTruthSpan(w); ok {
		t.Fatalf("span outside the window must not be reported")
	}
}

func TestGroundTruthSpanCollapsesIntervals(t *testing.T) {
	ds := buildDataset(100, func(i int, r *models.Record) {
		r.ActualAnomaly = i == 5 || i == 6 || i == 60
	})
	w, _ := ComputeWindow(ds, 100, 100)
	span, ok := GroundTruthSpan(w)
	if !ok || !span.Start.Equal(ts(5)) || !span.End.Equal(ts(60)) {
		t.Fatalf("expected collapsed span 5..60, got %v %+v", ok, span)
	}
}

func TestThresholdTracesSkipEmptyCells(t *testing.T) {
	ds := buildDataset(10, nil)
	w, _ := ComputeWindow(ds, 10, 10)
	tr := ThresholdTraces(ds, w)
	if len(tr) != 2 {
		t.Fatalf("expected 2 traces, got %d", len(tr))
	}
	if tr[0].Upper[0] == nil || *tr[0].Upper[0] != 80 {
		t.Fatalf("unexpected upper trace %v", tr[0].Upper[0])
	}
	if tr[1].Upper[3] != nil {
		t.Fatalf("NaN upper must be nil")
	}
	if tr[1].Lower[3] == nil || *tr[1].Lower[3] != 10 {
		t.Fatalf("unexpected lower trace")
	}
}
