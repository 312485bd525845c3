package usecase

import (
	"fmt"
	"time"

	"AnomalyReplay/internal/domain/models"
)

const (
	DefaultWindowSize = 500
	DefaultStep       = 5
)

// Session is the playback cursor over one dataset. It is not safe for
// concurrent use; the Driver owns it and serialises every call.
type Session struct {
	ds         *models.Dataset
	index      int
	running    bool
	speed      models.Speed
	windowSize int
	step       int
}

type SessionOption func(*Session)

func WithWindowSize(n int) SessionOption {
	return func(s *Session) {
		if n > 0 {
			s.windowSize = n
		}
	}
}

func WithStep(n int) SessionOption {
	return func(s *Session) {
		if n > 0 {
			s.step = n
		}
	}
}

func WithSpeed(sp models.Speed) SessionOption {
	return func(s *Session) {
		if _, err := models.ParseSpeed(float64(sp)); err == nil {
			s.speed = sp
		}
	}
}

func NewSession(ds *models.Dataset, opts ...SessionOption) *Session {
	s := &Session{
		ds:         ds,
		speed:      models.SpeedDefault,
		windowSize: DefaultWindowSize,
		step:       DefaultStep,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Session) Dataset() *models.Dataset { return s.ds }
func (s *Session) Index() int               { return s.index }
func (s *Session) Running() bool            { return s.running }
func (s *Session) Speed() models.Speed      { return s.speed }
func (s *Session) WindowSize() int          { return s.windowSize }
func (s *Session) Step() int                { return s.step }

// AtEnd reports whether the cursor has consumed the whole dataset.
func (s *Session) AtEnd() bool { return s.index >= s.ds.Len() }

// State derives the state machine position from the cursor and run flag.
func (s *Session) State() models.State {
	switch {
	case s.running:
		return models.StateRunning
	case s.index == 0:
		return models.StateStopped
	default:
		return models.StatePaused
	}
}

// Play starts or resumes playback. It reports false when nothing changed:
// already running, or the cursor is at the end.
func (s *Session) Play() bool {
	if s.running || s.AtEnd() {
		return false
	}
	s.running = true
	return true
}

// Pause halts playback, keeping the cursor.
func (s *Session) Pause() bool {
	if !s.running {
		return false
	}
	s.running = false
	return true
}

// Stop halts playback and rewinds to the start. It always succeeds.
func (s *Session) Stop() {
	s.running = false
	s.index = 0
}

func (s *Session) SetSpeed(v float64) error {
	sp, err := models.ParseSpeed(v)
	if err != nil {
		return err
	}
	s.speed = sp
	return nil
}

// Tick advances the cursor by one step and returns the previous and new
// positions. The cursor is clamped to the dataset length; reaching it pauses
// playback.
func (s *Session) Tick() (prev, next int, err error) {
	if !s.running {
		return s.index, s.index, models.ErrNotRunning
	}
	prev = s.index
	next = prev + s.step
	if next >= s.ds.Len() {
		next = s.ds.Len()
		s.running = false
	}
	s.index = next
	return prev, next, nil
}

// Restore applies a persisted cursor. Playback is left paused. A state for
// another dataset or out of range is rejected.
func (s *Session) Restore(st models.SessionState) error {
	if st.Dataset != "" && st.Dataset != s.ds.Source {
		return fmt.Errorf("session belongs to dataset %q, not %q", st.Dataset, s.ds.Source)
	}
	if st.Index < 0 || st.Index > s.ds.Len() {
		return fmt.Errorf("session index %d outside [0, %d]", st.Index, s.ds.Len())
	}
	if st.Speed != 0 {
		if err := s.SetSpeed(float64(st.Speed)); err != nil {
			return err
		}
	}
	s.running = false
	s.index = st.Index
	return nil
}

// Snapshot returns the persistable part of the session.
func (s *Session) Snapshot() models.SessionState {
	return models.SessionState{
		Index:     s.index,
		Speed:     s.speed,
		Dataset:   s.ds.Source,
		UpdatedAt: time.Now().UTC(),
	}
}

func (s *Session) Status() models.PlaybackStatus {
	return models.PlaybackStatus{
		State:      s.State(),
		Index:      s.index,
		Total:      s.ds.Len(),
		Speed:      s.speed,
		WindowSize: s.windowSize,
		Step:       s.step,
		Dataset:    s.ds.Source,
	}
}
