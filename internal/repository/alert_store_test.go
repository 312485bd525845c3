package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"AnomalyReplay/internal/domain/models"
)

type recordingDB struct {
	queries []string
	args    [][]any
	err     error
}

func (d *recordingDB) ExecContext(_ context.Context, q string, args ...any) (sql.Result, error) {
	d.queries = append(d.queries, q)
	d.args = append(d.args, args)
	return nil, d.err
}

func (d *recordingDB) QueryContext(context.Context, string, ...any) (*sql.Rows, error) {
	return nil, errors.New("not supported")
}

func liveView(points ...models.Point) *models.View {
	return &models.View{
		Mode:   models.ViewLive,
		Status: models.PlaybackStatus{Dataset: "data.csv"},
		Live:   &models.LiveSnapshot{NewConsensus: points},
	}
}

func TestClickHouseAlertStorePublish(t *testing.T) {
	db := &recordingDB{}
	s := NewClickHouseAlertStore(db, "replay.consensus_alerts", "default", nil)
	ctx := context.Background()
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	if err := s.Publish(ctx, liveView()); err != nil || len(db.queries) != 0 {
		t.Fatalf("frame without new alerts must not insert")
	}
	if err := s.Publish(ctx, &models.View{Mode: models.ViewAnalysis}); err != nil || len(db.queries) != 0 {
		t.Fatalf("analysis view must not insert")
	}

	err := s.Publish(ctx, liveView(models.Point{Index: 3, Timestamp: ts, Value: 21.5}, models.Point{Index: 4, Timestamp: ts, Value: 22}))
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(db.queries) != 1 {
		t.Fatalf("queries = %d", len(db.queries))
	}
	if !strings.HasPrefix(db.queries[0], "INSERT INTO replay.consensus_alerts") || strings.Count(db.queries[0], "(?, ?, ?, ?, ?, ?)") != 2 {
		t.Fatalf("query %q", db.queries[0])
	}
	if len(db.args[0]) != 12 || db.args[0][0] != "default" || db.args[0][1] != "data.csv" {
		t.Fatalf("args %v", db.args[0])
	}

	db.err = errors.New("down")
	if err := s.Publish(ctx, liveView(models.Point{Index: 9})); err == nil {
		t.Fatalf("expected insert error")
	}
	if _, err := s.Recent(ctx, 10); err == nil {
		t.Fatalf("expected query error")
	}
}

func TestMemoryAlertStore(t *testing.T) {
	s := NewMemoryAlertStore("default", 3)
	ctx := context.Background()

	for i := 1; i <= 4; i++ {
		_ = s.Publish(ctx, liveView(models.Point{Index: i}))
	}
	got, _ := s.Recent(ctx, 10)
	if len(got) != 3 || got[0].Point.Index != 4 || got[2].Point.Index != 2 {
		t.Fatalf("recent %+v", got)
	}
	if got[0].Level != models.AlertConsensus || got[0].Dataset != "data.csv" {
		t.Fatalf("alert %+v", got[0])
	}
	if got, _ = s.Recent(ctx, 1); len(got) != 1 || got[0].Point.Index != 4 {
		t.Fatalf("limited %+v", got)
	}

	_ = s.Publish(ctx, &models.View{Mode: models.ViewIdle})
	if got, _ = s.Recent(ctx, 10); len(got) != 0 {
		t.Fatalf("stop must clear alerts, got %d", len(got))
	}
}
