package entity

import "math"

// Event is pushed to every live observer. Progress is a percentage (0..100).
type Event struct {
	ID        int64    `json:"id"`
	Progress  *float64 `json:"progress,omitempty"`
	Speed     *float64 `json:"speed,omitempty"`
	ETA       *int     `json:"eta,omitempty"`
	Title     string   `json:"title,omitempty"`
	Done      bool     `json:"done,omitempty"`
	Paused    bool     `json:"paused,omitempty"`
	Cancelled bool     `json:"cancelled,omitempty"`
	Error     string   `json:"error,omitempty"`
}

func NewProgressEvent(id int64, fraction float64, speed *float64, eta *int) Event {
	pct := Percent(fraction)

	return Event{
		ID:       id,
		Progress: &pct,
		Speed:    speed,
		ETA:      eta,
	}
}

func NewDoneEvent(id int64) Event {
	pct := 100.0

	return Event{ID: id, Progress: &pct, Done: true}
}

func NewPausedEvent(id int64) Event {
	return Event{ID: id, Paused: true}
}

func NewCancelledEvent(id int64) Event {
	return Event{ID: id, Cancelled: true}
}

func NewErrorEvent(id int64, msg string) Event {
	return Event{ID: id, Error: msg}
}

// Percent converts a 0..1 fraction to a percentage rounded to 2 decimals.
func Percent(fraction float64) float64 {
	return math.Round(fraction*100*100) / 100
}
