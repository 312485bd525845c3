package repository

import (
	"context"
	"time"

	"AnomalyReplay/internal/domain/models"
	domrepo "AnomalyReplay/internal/domain/repository"
)

type messagePublisher interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
}

// TickEvent is the compact form of a live frame sent to Kafka.
type TickEvent struct {
	Type         string         `json:"type"`
	SessionID    string         `json:"session_id"`
	Dataset      string         `json:"dataset"`
	Index        int            `json:"index"`
	Total        int            `json:"total"`
	Timestamp    time.Time      `json:"ts"`
	Value        float64        `json:"value"`
	Status       models.Status  `json:"status"`
	AlertCount   int            `json:"alert_count"`
	NewConsensus []models.Point `json:"new_consensus,omitempty"`
}

// StateEvent is sent for every non-live view, i.e. on pause, stop, speed
// changes and the end of data.
type StateEvent struct {
	Type      string          `json:"type"`
	SessionID string          `json:"session_id"`
	Mode      models.ViewMode `json:"mode"`
	State     models.State    `json:"state"`
	Index     int             `json:"index"`
	Speed     models.Speed    `json:"speed"`
	Dataset   string          `json:"dataset"`
	At        time.Time       `json:"at"`
}

// KafkaViewPublisher mirrors views to a Kafka topic keyed by session id.
type KafkaViewPublisher struct {
	producer  messagePublisher
	topic     string
	sessionID string
	now       func() time.Time
}

func NewKafkaViewPublisher(producer messagePublisher, topic, sessionID string) *KafkaViewPublisher {
	return &KafkaViewPublisher{producer: producer, topic: topic, sessionID: sessionID, now: time.Now}
}

func (p *KafkaViewPublisher) Name() string { return "kafka" }

func (p *KafkaViewPublisher) Publish(ctx context.Context, v *models.View) error {
	if v == nil {
		return nil
	}
	key := []byte(p.sessionID)
	if v.Mode == models.ViewLive && v.Live != nil {
		l := v.Live
		return p.producer.Publish(ctx, p.topic, key, TickEvent{
			Type:         "tick",
			SessionID:    p.sessionID,
			Dataset:      v.Status.Dataset,
			Index:        l.Index,
			Total:        l.Total,
			Timestamp:    l.Timestamp,
			Value:        l.Value,
			Status:       l.Status,
			AlertCount:   l.AlertCount,
			NewConsensus: l.NewConsensus,
		})
	}
	return p.producer.Publish(ctx, p.topic, key, StateEvent{
		Type:      "state",
		SessionID: p.sessionID,
		Mode:      v.Mode,
		State:     v.Status.State,
		Index:     v.Status.Index,
		Speed:     v.Status.Speed,
		Dataset:   v.Status.Dataset,
		At:        p.now().UTC(),
	})
}

var _ domrepo.ViewSink = (*KafkaViewPublisher)(nil)
