package models

import (
	"fmt"
	"time"
)

// State is the playback state machine position.
type State string

const (
	StateStopped State = "STOPPED"
	StateRunning State = "RUNNING"
	StatePaused  State = "PAUSED"
)

// Speed is the tick interval in seconds.
type Speed float64

const (
	SpeedSlow    Speed = 0.5
	SpeedDefault Speed = 0.1
	SpeedFast    Speed = 0.01
)

// Speeds lists the supported tick intervals, slowest first.
var Speeds = []Speed{SpeedSlow, SpeedDefault, SpeedFast}

// ParseSpeed validates s against the supported set.
func ParseSpeed(s float64) (Speed, error) {
	for _, sp := range Speeds {
		if Speed(s) == sp {
			return sp, nil
		}
	}
	return 0, fmt.Errorf("%w: %v (allowed 0.5, 0.1, 0.01)", ErrInvalidSpeed, s)
}

// Interval converts the speed to a timer duration.
func (s Speed) Interval() time.Duration {
	return time.Duration(float64(s) * float64(time.Second))
}

// Status classifies the latest record for display.
type Status string

const (
	StatusNormal    Status = "NORMAL"
	StatusAttention Status = "ATTENTION"
	StatusAlert     Status = "ALERT"
)

// Classify maps an alert level to its display status.
func Classify(level AlertLevel) Status {
	switch level {
	case AlertConsensus:
		return StatusAlert
	case AlertAttention:
		return StatusAttention
	default:
		return StatusNormal
	}
}

// PlaybackStatus is a read-only view of the session state.
type PlaybackStatus struct {
	State      State  `json:"state"`
	Index      int    `json:"index"`
	Total      int    `json:"total"`
	Speed      Speed  `json:"speed"`
	WindowSize int    `json:"window_size"`
	Step       int    `json:"step"`
	Dataset    string `json:"dataset"`
}

// SessionState is the persisted part of a session.
type SessionState struct {
	Index     int       `json:"index"`
	Speed     Speed     `json:"speed"`
	Dataset   string    `json:"dataset"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ControlCommand is a remote control message.
type ControlCommand struct {
	Action string  `json:"action"` // play, pause, stop, speed
	Speed  float64 `json:"speed,omitempty"`
}
