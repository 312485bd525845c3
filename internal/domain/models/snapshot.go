package models

import "time"

// ViewMode selects which snapshot a View carries.
type ViewMode string

const (
	ViewIdle     ViewMode = "idle"
	ViewLive     ViewMode = "live"
	ViewAnalysis ViewMode = "analysis"
)

// Window is a read-only slice [Start, End) of the dataset.
type Window struct {
	Start   int
	End     int
	Records []Record
}

// Len returns the number of records in the window.
func (w Window) Len() int { return len(w.Records) }

// Point is one plotted sample.
type Point struct {
	Index     int       `json:"index"`
	Timestamp time.Time `json:"ts"`
	Value     float64   `json:"value"`
}

// Span is a closed time interval.
type Span struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// ValueRange is a closed value interval.
type ValueRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// TimeRange is an optional zoom range. Nil bounds are open.
type TimeRange struct {
	From *time.Time `json:"from,omitempty"`
	To   *time.Time `json:"to,omitempty"`
}

// ThresholdTrace is one model's upper/lower band over a window.
// Nil entries mark empty threshold cells.
type ThresholdTrace struct {
	Model ModelInfo  `json:"model"`
	Upper []*float64 `json:"upper"`
	Lower []*float64 `json:"lower"`
}

// LiveSnapshot is emitted on every tick while RUNNING.
type LiveSnapshot struct {
	Index        int              `json:"index"`
	Total        int              `json:"total"`
	Timestamp    time.Time        `json:"ts"`
	Value        float64          `json:"value"`
	Status       Status           `json:"status"`
	AlertCount   int              `json:"alert_count"`
	WindowStart  int              `json:"window_start"`
	Series       []Point          `json:"series"`
	Thresholds   []ThresholdTrace `json:"thresholds"`
	GroundTruth  *Span            `json:"ground_truth,omitempty"`
	Consensus    []Point          `json:"consensus"`
	NewConsensus []Point          `json:"new_consensus,omitempty"`
	XRange       Span             `json:"x_range"`
	YRange       ValueRange       `json:"y_range"`
}

// AnalysisSnapshot covers the whole prefix while paused.
type AnalysisSnapshot struct {
	Index      int        `json:"index"`
	Total      int        `json:"total"`
	AlertCount int        `json:"alert_count"`
	History    []Point    `json:"history"`
	Alerts     []Point    `json:"alerts"`
	FullRange  Span       `json:"full_range"`
	XRange     Span       `json:"x_range"`
	YRange     ValueRange `json:"y_range"`
}

// View is what the render sink receives.
type View struct {
	Mode     ViewMode          `json:"mode"`
	Status   PlaybackStatus    `json:"status"`
	Live     *LiveSnapshot     `json:"live,omitempty"`
	Analysis *AnalysisSnapshot `json:"analysis,omitempty"`
}
