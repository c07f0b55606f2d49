package entity

import "time"

type Status string

const (
	StatusQueued      Status = "queued"
	StatusDownloading Status = "downloading"
	StatusPaused      Status = "paused"
	StatusCancelled   Status = "cancelled"
	StatusCompleted   Status = "completed"
	StatusError       Status = "error"
)

var allowedTransitions = map[Status]map[Status]bool{
	StatusQueued: {
		StatusDownloading: true,
		StatusCancelled:   true,
		StatusError:       true,
	},
	StatusDownloading: {
		StatusDownloading: true,
		StatusCompleted:   true,
		StatusPaused:      true,
		StatusCancelled:   true,
		StatusError:       true,
	},
	StatusPaused: {
		StatusQueued:    true,
		StatusCancelled: true,
	},
	StatusCancelled: {
		StatusCancelled: true, // cancel of a job that is no longer running
	},
	StatusCompleted: {},
	StatusError:     {},
}

func (s Status) String() string {
	return string(s)
}

func (s Status) IsKnown() bool {
	_, ok := allowedTransitions[s]

	return ok
}

// CanTransition reports whether the job state machine has an edge from s to next.
func (s Status) CanTransition(next Status) bool {
	edges, ok := allowedTransitions[s]
	if !ok {
		return false
	}

	return edges[next]
}

// Job is a single submitted download tracked from queued to a terminal status.
type Job struct {
	ID        int64     `json:"id" yaml:"id"`
	URL       string    `json:"url" yaml:"url"`
	Filename  string    `json:"filename" yaml:"filename"`
	Title     string    `json:"title" yaml:"title"`
	Quality   string    `json:"quality" yaml:"quality"`
	Status    Status    `json:"status" yaml:"status"`
	Progress  float64   `json:"progress" yaml:"progress"` // 0..1
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}
