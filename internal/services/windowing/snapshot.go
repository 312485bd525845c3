package windowing

import (
	"AnomalyReplay/internal/domain/models"
)

// BuildLive assembles the live snapshot for a tick that moved the cursor
// from prev to index.
func BuildLive(ds *models.Dataset, prev, index, windowSize int) (*models.LiveSnapshot, error) {
	w, err := ComputeWindow(ds, index, windowSize)
	if err != nil {
		return nil, err
	}
	last := w.Records[w.Len()-1]
	snap := &models.LiveSnapshot{
		Index:        w.End,
		Total:        ds.Len(),
		Timestamp:    last.Timestamp,
		Value:        last.Value,
		Status:       models.Classify(last.AlertLevel),
		AlertCount:   AlertCount(ds, w.End),
		WindowStart:  w.Start,
		Series:       Series(w),
		Thresholds:   ThresholdTraces(ds, w),
		Consensus:    ConsensusPoints(w),
		NewConsensus: ConsensusBetween(ds, prev, w.End),
		XRange:       TimeSpan(w),
		YRange:       ValueRange(ds),
	}
	if span, ok := GroundTruthSpan(w); ok {
		snap.GroundTruth = &span
	}
	return snap, nil
}

// BuildAnalysis assembles the paused view over the prefix [0, index).
// zoom narrows the visible x range and is clamped to the prefix.
func BuildAnalysis(ds *models.Dataset, index int, zoom models.TimeRange) (*models.AnalysisSnapshot, error) {
	if zoom.From != nil && zoom.To != nil && zoom.From.After(*zoom.To) {
		return nil, models.ErrInvalidRange
	}
	p := Prefix(ds, index)
	full := TimeSpan(p)
	x := full
	if zoom.From != nil && zoom.From.After(x.Start) && !zoom.From.After(full.End) {
		x.Start = *zoom.From
	}
	if zoom.To != nil && zoom.To.Before(x.End) && !zoom.To.Before(full.Start) {
		x.End = *zoom.To
	}
	return &models.AnalysisSnapshot{
		Index:      p.End,
		Total:      ds.Len(),
		AlertCount: AlertCount(ds, p.End),
		History:    Series(p),
		Alerts:     ConsensusPoints(p),
		FullRange:  full,
		XRange:     x,
		YRange:     ValueRange(ds),
	}, nil
}
