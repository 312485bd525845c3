package usecase

import (
	"errors"
	"testing"
	"time"

	"AnomalyReplay/internal/domain/models"
	"AnomalyReplay/internal/services/windowing"
)

func testDataset(n int) *models.Dataset {
	t0 := time.Date(2014, 2, 14, 0, 0, 0, 0, time.UTC)
	recs := make([]models.Record, n)
	for i := range recs {
		recs[i] = models.Record{
			Timestamp: t0.Add(time.Duration(i) * time.Minute),
			Value:     float64(i % 50),
			IsAnomaly: models.Bool(i%10 == 0),
		}
		if i%97 == 0 {
			recs[i].AlertLevel = models.AlertConsensus
		}
	}
	return models.NewDataset("test.csv", recs, nil)
}

func tickN(s *Session, n int) {
	for i := 0; i < n; i++ {
		_, _, _ = s.Tick()
	}
}

func TestSessionTickScenario(t *testing.T) {
	s := NewSession(testDataset(1000), WithWindowSize(500), WithStep(5))
	if !s.Play() {
		t.Fatalf("play from STOPPED must start")
	}
	tickN(s, 100)
	if s.Index() != 500 {
		t.Fatalf("after 100 ticks index=%d", s.Index())
	}
	w, err := windowing.ComputeWindow(s.Dataset(), s.Index(), s.WindowSize())
	if err != nil || w.Start != 0 || w.End != 500 {
		t.Fatalf("window [%d,%d) err=%v", w.Start, w.End, err)
	}

	tickN(s, 200)
	if s.Index() != 1000 {
		t.Fatalf("after 300 ticks index=%d, want clamp to 1000", s.Index())
	}
	if s.State() != models.StatePaused {
		t.Fatalf("state=%s, want PAUSED at end", s.State())
	}
	if _, _, err := s.Tick(); !errors.Is(err, models.ErrNotRunning) {
		t.Fatalf("tick after end: %v", err)
	}
	if s.Play() {
		t.Fatalf("play at end must be a no-op")
	}
}

func TestSessionClampOnShortTail(t *testing.T) {
	s := NewSession(testDataset(12), WithStep(5))
	s.Play()
	prev, next, _ := s.Tick()
	if prev != 0 || next != 5 {
		t.Fatalf("first tick %d->%d", prev, next)
	}
	tickN(s, 1)
	prev, next, err := s.Tick()
	if err != nil || prev != 10 || next != 12 {
		t.Fatalf("last tick %d->%d err=%v", prev, next, err)
	}
	if s.Running() {
		t.Fatalf("must auto-pause at end")
	}
}

func TestSessionStateMachine(t *testing.T) {
	s := NewSession(testDataset(100))
	if s.State() != models.StateStopped {
		t.Fatalf("initial state %s", s.State())
	}
	// from STOPPED only play changes state
	if s.Pause() {
		t.Fatalf("pause from STOPPED must be a no-op")
	}
	s.Stop()
	if s.State() != models.StateStopped {
		t.Fatalf("stop from STOPPED: %s", s.State())
	}
	if err := s.SetSpeed(0.5); err != nil || s.State() != models.StateStopped {
		t.Fatalf("speed change must not move the state machine")
	}

	s.Play()
	if s.Play() {
		t.Fatalf("second play must report no change")
	}
	tickN(s, 3)
	s.Pause()
	if s.State() != models.StatePaused || s.Index() != 15 {
		t.Fatalf("pause: %s %d", s.State(), s.Index())
	}
	s.Play()
	tickN(s, 1)
	if s.Index() != 20 {
		t.Fatalf("resume must continue from the cursor, index=%d", s.Index())
	}

	for _, prep := range []func(){func() {}, func() { s.Pause() }, func() { s.Play() }} {
		prep()
		s.Stop()
		if s.State() != models.StateStopped || s.Index() != 0 {
			t.Fatalf("stop must yield STOPPED/0, got %s/%d", s.State(), s.Index())
		}
	}
}

func TestSessionStopThenPlayMatchesFreshPlay(t *testing.T) {
	ds := testDataset(300)
	fresh := NewSession(ds)
	fresh.Play()
	var want []models.Window
	for i := 0; i < 10; i++ {
		_, idx, _ := fresh.Tick()
		w, _ := windowing.ComputeWindow(ds, idx, fresh.WindowSize())
		want = append(want, w)
	}

	s := NewSession(ds)
	s.Play()
	tickN(s, 17)
	s.Stop()
	s.Play()
	for i := 0; i < 10; i++ {
		_, idx, _ := s.Tick()
		w, _ := windowing.ComputeWindow(ds, idx, s.WindowSize())
		if w.Start != want[i].Start || w.End != want[i].End {
			t.Fatalf("tick %d: [%d,%d) want [%d,%d)", i, w.Start, w.End, want[i].Start, want[i].End)
		}
	}
}

func TestSessionSpeedAndRestore(t *testing.T) {
	s := NewSession(testDataset(100))
	if s.Speed() != models.SpeedDefault {
		t.Fatalf("default speed %v", s.Speed())
	}
	if err := s.SetSpeed(0.3); !errors.Is(err, models.ErrInvalidSpeed) {
		t.Fatalf("expected ErrInvalidSpeed, got %v", err)
	}
	if err := s.Restore(models.SessionState{Index: 40, Speed: models.SpeedFast, Dataset: "test.csv"}); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if s.State() != models.StatePaused || s.Index() != 40 || s.Speed() != models.SpeedFast {
		t.Fatalf("restored status %+v", s.Status())
	}
	if err := s.Restore(models.SessionState{Index: 400}); err == nil {
		t.Fatalf("out of range restore must fail")
	}
	if err := s.Restore(models.SessionState{Index: 1, Dataset: "other.csv"}); err == nil {
		t.Fatalf("foreign dataset restore must fail")
	}
	snap := s.Snapshot()
	if snap.Index != 40 || snap.Dataset != "test.csv" {
		t.Fatalf("snapshot %+v", snap)
	}
}

func TestPlayOnEmptyDataset(t *testing.T) {
	s := NewSession(models.NewDataset("empty", nil, nil))
	if s.Play() || s.State() != models.StateStopped {
		t.Fatalf("empty dataset must stay STOPPED")
	}
}
