package windowing

import (
	"fmt"
	"math"

	"AnomalyReplay/internal/domain/models"
)

// ComputeWindow returns the last size records ending at index (exclusive).
// index is clamped to the dataset length. A window at index 0 has nothing to
// show and fails with ErrEmptyWindow.
func ComputeWindow(ds *models.Dataset, index, size int) (models.Window, error) {
	if size <= 0 {
		return models.Window{}, fmt.Errorf("window size must be positive, got %d", size)
	}
	if index > ds.Len() {
		index = ds.Len()
	}
	if index <= 0 {
		return models.Window{}, models.ErrEmptyWindow
	}
	start := index - size
	if start < 0 {
		start = 0
	}
	return models.Window{Start: start, End: index, Records: ds.Records[start:index]}, nil
}

// Prefix returns records [0, index), clamped.
func Prefix(ds *models.Dataset, index int) models.Window {
	if index > ds.Len() {
		index = ds.Len()
	}
	if index < 0 {
		index = 0
	}
	return models.Window{Start: 0, End: index, Records: ds.Records[:index]}
}

// AlertCount sums is_anomaly over [0, index). Missing cells count as zero.
func AlertCount(ds *models.Dataset, index int) int {
	return ds.AlertsBefore(index)
}

// GroundTruthSpan returns the min and max timestamp among records flagged
// actual_anomaly. Disjoint labelled intervals collapse into one span.
func GroundTruthSpan(w models.Window) (models.Span, bool) {
	var span models.Span
	found := false
	for _, r := range w.Records {
		if !r.ActualAnomaly {
			continue
		}
		if !found {
			span = models.Span{Start: r.Timestamp, End: r.Timestamp}
			found = true
			continue
		}
		if r.Timestamp.Before(span.Start) {
			span.Start = r.Timestamp
		}
		if r.Timestamp.After(span.End) {
			span.End = r.Timestamp
		}
	}
	return span, found
}

// ConsensusPoints returns the records at alert level 2, in window order.
func ConsensusPoints(w models.Window) []models.Point {
	out := make([]models.Point, 0)
	for i, r := range w.Records {
		if r.AlertLevel == models.AlertConsensus {
			out = append(out, point(w.Start+i, r))
		}
	}
	return out
}

// ConsensusBetween returns consensus points in [from, to), the ones a single
// tick has just crossed.
func ConsensusBetween(ds *models.Dataset, from, to int) []models.Point {
	if from < 0 {
		from = 0
	}
	if to > ds.Len() {
		to = ds.Len()
	}
	if from >= to {
		return nil
	}
	return ConsensusPoints(models.Window{Start: from, End: to, Records: ds.Records[from:to]})
}

// Series converts a window into plotted points.
func Series(w models.Window) []models.Point {
	out := make([]models.Point, len(w.Records))
	for i, r := range w.Records {
		out[i] = point(w.Start+i, r)
	}
	return out
}

// ThresholdTraces builds one upper/lower trace per model present in ds.
func ThresholdTraces(ds *models.Dataset, w models.Window) []models.ThresholdTrace {
	traces := make([]models.ThresholdTrace, len(ds.Models))
	for m, info := range ds.Models {
		tr := models.ThresholdTrace{
			Model: info,
			Upper: make([]*float64, len(w.Records)),
			Lower: make([]*float64, len(w.Records)),
		}
		for i, r := range w.Records {
			if m >= len(r.Bands) {
				continue
			}
			tr.Upper[i] = finite(r.Bands[m].Upper)
			tr.Lower[i] = finite(r.Bands[m].Lower)
		}
		traces[m] = tr
	}
	return traces
}

// TimeSpan returns the first and last timestamp of a non-empty window.
func TimeSpan(w models.Window) models.Span {
	if w.Len() == 0 {
		return models.Span{}
	}
	return models.Span{Start: w.Records[0].Timestamp, End: w.Records[w.Len()-1].Timestamp}
}

// ValueRange pads the dataset bounds by 5 on each side so the y axis does
// not move while the window slides.
func ValueRange(ds *models.Dataset) models.ValueRange {
	return models.ValueRange{Min: ds.ValueMin - 5, Max: ds.ValueMax + 5}
}

func point(idx int, r models.Record) models.Point {
	return models.Point{Index: idx, Timestamp: r.Timestamp, Value: r.Value}
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
