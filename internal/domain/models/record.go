package models

import (
	"math"
	"time"
)

// ModelID identifies a detector whose threshold pair is carried in the dataset
// as up_<id> / lo_<id> columns.
type ModelID string

const (
	ModelIQR       ModelID = "i"
	ModelIsoForest ModelID = "if"
	ModelLSTMEnc   ModelID = "ae"
	ModelProphet   ModelID = "p"
	ModelLOF       ModelID = "l"
)

// ModelInfo carries display metadata for a detector.
type ModelInfo struct {
	ID    ModelID `json:"id"`
	Name  string  `json:"name"`
	Color string  `json:"color"` // rgba, used by renderers as a hint only
}

// KnownModels lists detectors in render order.
var KnownModels = []ModelInfo{
	{ID: ModelIQR, Name: "IQR", Color: "rgba(0, 255, 127, 0.4)"},
	{ID: ModelIsoForest, Name: "IsoForest", Color: "rgba(0, 191, 255, 0.4)"},
	{ID: ModelLSTMEnc, Name: "LSTM-Enc", Color: "rgba(255, 165, 0, 0.4)"},
	{ID: ModelProphet, Name: "Prophet", Color: "rgba(255, 0, 255, 0.4)"},
	{ID: ModelLOF, Name: "LOF", Color: "rgba(200, 200, 200, 0.4)"},
}

// UpperColumn returns the CSV column holding the upper threshold.
func (id ModelID) UpperColumn() string { return "up_" + string(id) }

// LowerColumn returns the CSV column holding the lower threshold.
func (id ModelID) LowerColumn() string { return "lo_" + string(id) }

// AlertLevel is the precomputed agreement level across detectors.
type AlertLevel int

const (
	AlertNormal    AlertLevel = 0
	AlertAttention AlertLevel = 1
	AlertConsensus AlertLevel = 2 // three or more detectors agree
)

// Band is one model's threshold pair at a record. NaN marks an empty cell.
type Band struct {
	Upper float64
	Lower float64
}

// Record is one row of the replayed dataset.
type Record struct {
	Timestamp     time.Time
	Value         float64
	AlertLevel    AlertLevel
	IsAnomaly     *bool // nil when the cell was empty
	ActualAnomaly bool
	Bands         []Band // aligned with Dataset.Models
}

// Dataset is the immutable, timestamp-ordered replay input.
type Dataset struct {
	Source   string
	Records  []Record
	Models   []ModelInfo // models whose up_/lo_ pair was present
	ValueMin float64
	ValueMax float64

	alertPrefix []int // alertPrefix[i] = anomalies flagged in Records[:i]
}

// NewDataset builds a Dataset and precomputes value bounds and the
// cumulative is_anomaly count.
func NewDataset(source string, records []Record, present []ModelInfo) *Dataset {
	ds := &Dataset{
		Source:      source,
		Records:     records,
		Models:      present,
		ValueMin:    math.NaN(),
		ValueMax:    math.NaN(),
		alertPrefix: make([]int, len(records)+1),
	}
	for i, r := range records {
		if math.IsNaN(ds.ValueMin) || r.Value < ds.ValueMin {
			ds.ValueMin = r.Value
		}
		if math.IsNaN(ds.ValueMax) || r.Value > ds.ValueMax {
			ds.ValueMax = r.Value
		}
		n := 0
		if r.IsAnomaly != nil && *r.IsAnomaly {
			n = 1
		}
		ds.alertPrefix[i+1] = ds.alertPrefix[i] + n
	}
	if len(records) == 0 {
		ds.ValueMin, ds.ValueMax = 0, 0
	}
	return ds
}

// Len returns the number of records.
func (d *Dataset) Len() int { return len(d.Records) }

// AlertsBefore returns the number of records flagged is_anomaly in [0, index).
// index is clamped to [0, Len()].
func (d *Dataset) AlertsBefore(index int) int {
	if index <= 0 || len(d.alertPrefix) == 0 {
		return 0
	}
	if index > d.Len() {
		index = d.Len()
	}
	return d.alertPrefix[index]
}

// Bool returns a pointer to b, for building records with a set is_anomaly.
func Bool(b bool) *bool { return &b }
