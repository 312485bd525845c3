package repository

import (
	"context"

	"AnomalyReplay/internal/domain/models"
)

// DatasetLoader loads the replay dataset.
type DatasetLoader interface {
	Load(ctx context.Context, path string) (*models.Dataset, error)
}

// ViewSink receives views selected by the playback driver.
type ViewSink interface {
	Name() string
	Publish(ctx context.Context, v *models.View) error
}

// SessionStore persists the playback cursor between restarts.
type SessionStore interface {
	Save(ctx context.Context, st models.SessionState) error
	Load(ctx context.Context) (models.SessionState, bool, error)
}

// AlertStore archives consensus alerts crossed during playback.
type AlertStore interface {
	ViewSink
	Recent(ctx context.Context, limit int) ([]ArchivedAlert, error)
	Close() error
}

// ArchivedAlert is one stored consensus alert.
type ArchivedAlert struct {
	SessionID string            `json:"session_id"`
	Dataset   string            `json:"dataset"`
	Point     models.Point      `json:"point"`
	Level     models.AlertLevel `json:"alert_level"`
}

type Metrics interface {
	RecordTick(dataset string, index int)
	RecordAlertCount(dataset string, n int)
	RecordControl(action string)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
}
