package models

import "errors"

var (
	// ErrIO is returned when the dataset file is missing or unreadable.
	ErrIO = errors.New("dataset io")
	// ErrSchema is returned when required columns are absent or a cell cannot be parsed.
	ErrSchema = errors.New("dataset schema")
	// ErrEmptyWindow is returned when a live window is requested at index 0.
	ErrEmptyWindow = errors.New("empty window")
	// ErrNotRunning is returned by a tick outside the RUNNING state.
	ErrNotRunning = errors.New("playback not running")
	// ErrInvalidSpeed is returned for a speed outside the supported set.
	ErrInvalidSpeed = errors.New("invalid speed")
	// ErrInvalidRange is returned for a zoom range with from after to.
	ErrInvalidRange = errors.New("invalid time range")
)
