package repository

import (
	"context"
	"testing"
	"time"

	"AnomalyReplay/internal/domain/models"
)

type sentMessage struct {
	topic string
	key   string
	value interface{}
}

type fakeProducer struct{ sent []sentMessage }

func (f *fakeProducer) Publish(_ context.Context, topic string, key []byte, value interface{}) error {
	f.sent = append(f.sent, sentMessage{topic: topic, key: string(key), value: value})
	return nil
}

func TestKafkaViewPublisher(t *testing.T) {
	prod := &fakeProducer{}
	p := NewKafkaViewPublisher(prod, "replay.ticks", "s1")
	ctx := context.Background()
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	live := &models.View{
		Mode:   models.ViewLive,
		Status: models.PlaybackStatus{State: models.StateRunning, Dataset: "d.csv"},
		Live:   &models.LiveSnapshot{Index: 10, Total: 100, Timestamp: ts, Value: 20.5, Status: models.StatusAlert, AlertCount: 2},
	}
	_ = p.Publish(ctx, live)
	_ = p.Publish(ctx, &models.View{Mode: models.ViewAnalysis, Status: models.PlaybackStatus{State: models.StatePaused, Index: 10, Speed: models.SpeedSlow}})

	if len(prod.sent) != 2 {
		t.Fatalf("sent %d messages", len(prod.sent))
	}
	tick, ok := prod.sent[0].value.(TickEvent)
	if !ok || tick.Type != "tick" || tick.Index != 10 || tick.Status != models.StatusAlert || tick.Dataset != "d.csv" {
		t.Fatalf("tick event %+v", prod.sent[0].value)
	}
	if prod.sent[0].topic != "replay.ticks" || prod.sent[0].key != "s1" {
		t.Fatalf("routing %+v", prod.sent[0])
	}
	st, ok := prod.sent[1].value.(StateEvent)
	if !ok || st.State != models.StatePaused || st.Mode != models.ViewAnalysis || st.Speed != models.SpeedSlow {
		t.Fatalf("state event %+v", prod.sent[1].value)
	}
}
