package windowing

import (
	"errors"
	"testing"
	"time"

	"AnomalyReplay/internal/domain/models"
)

func TestBuildLive(t *testing.T) {
	ds := buildDataset(100, func(i int, r *models.Record) {
		if i == 12 {
			r.AlertLevel = models.AlertConsensus
		}
		if i == 14 {
			r.AlertLevel = models.AlertAttention
		}
		r.ActualAnomaly = i == 13
	})
	snap, err := BuildLive(ds, 10, 15, 10)
	if err != nil {
		t.Fatalf("%v", err)
	}
	if snap.Index != 15 || snap.WindowStart != 5 || len(snap.Series) != 10 {
		t.Fatalf("unexpected window %d/%d/%d", snap.Index, snap.WindowStart, len(snap.Series))
	}
	if snap.Status != models.StatusAttention {
		t.Fatalf("status=%s", snap.Status)
	}
	if snap.Value != ds.Records[14].Value {
		t.Fatalf("latest value mismatch")
	}
	if len(snap.NewConsensus) != 1 || snap.NewConsensus[0].Index != 12 {
		t.Fatalf("new consensus: %+v", snap.NewConsensus)
	}
	if snap.GroundTruth == nil || !snap.GroundTruth.Start.Equal(ts(13)) {
		t.Fatalf("ground truth: %+v", snap.GroundTruth)
	}
	if !snap.XRange.Start.Equal(ts(5)) || !snap.XRange.End.Equal(ts(14)) {
		t.Fatalf("x range: %+v", snap.XRange)
	}
	if snap.YRange.Min != ds.ValueMin-5 || snap.YRange.Max != ds.ValueMax+5 {
		t.Fatalf("y range: %+v", snap.YRange)
	}
	if snap.AlertCount != AlertCount(ds, 15) {
		t.Fatalf("alert count mismatch")
	}

	if _, err := BuildLive(ds, 0, 0, 10); !errors.Is(err, models.ErrEmptyWindow) {
		t.Fatalf("expected ErrEmptyWindow, got %v", err)
	}
}

func TestBuildAnalysisZoom(t *testing.T) {
	ds := buildDataset(100, func(i int, r *models.Record) {
		if i == 3 || i == 70 {
			r.AlertLevel = models.AlertConsensus
		}
	})
	a, err := BuildAnalysis(ds, 50, models.TimeRange{})
	if err != nil {
		t.Fatalf("%v", err)
	}
	if len(a.History) != 50 || len(a.Alerts) != 1 || a.Alerts[0].Index != 3 {
		t.Fatalf("unexpected analysis: history=%d alerts=%+v", len(a.History), a.Alerts)
	}
	if a.XRange != a.FullRange {
		t.Fatalf("no zoom must show the full prefix")
	}

	from, to := ts(10), ts(20)
	a, err = BuildAnalysis(ds, 50, models.TimeRange{From: &from, To: &to})
	if err != nil {
		t.Fatalf("%v", err)
	}
	if !a.XRange.Start.Equal(from) || !a.XRange.End.Equal(to) {
		t.Fatalf("zoom not applied: %+v", a.XRange)
	}

	early := ts(0).Add(-time.Hour)
	far := ts(500)
	a, _ = BuildAnalysis(ds, 50, models.TimeRange{From: &early, To: &far})
	if a.XRange != a.FullRange {
		t.Fatalf("zoom outside the prefix must clamp, got %+v", a.XRange)
	}

	if _, err := BuildAnalysis(ds, 50, models.TimeRange{From: &to, To: &from}); !errors.Is(err, models.ErrInvalidRange) {
		t.Fatalf("expected ErrInvalidRange, got %v", err)
	}
}
