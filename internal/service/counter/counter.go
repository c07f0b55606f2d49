package counter

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jgivc/mediafetch/internal/entity"
)

const (
	serviceName = "counter"
)

var knownStatuses = []entity.Status{
	entity.StatusQueued,
	entity.StatusDownloading,
	entity.StatusPaused,
	entity.StatusCancelled,
	entity.StatusCompleted,
	entity.StatusError,
}

type JobLister interface {
	List(ctx context.Context) ([]*entity.Job, error)
}

type counterService struct {
	repo JobLister
	log  *slog.Logger
}

func NewCounterService(repo JobLister, log *slog.Logger) *counterService {
	return &counterService{
		repo: repo,
		log:  log.With(slog.String("service", serviceName)),
	}
}

// GetCounters returns the number of jobs per status. Every known status is present.
func (c *counterService) GetCounters(ctx context.Context) (map[string]int, error) {
	jobs, err := c.repo.List(ctx)
	if err != nil {
		c.log.Error("Cannot get job counters", slog.Any("error", err))

		return nil, fmt.Errorf("cannot get job counters: %w", err)
	}

	counters := make(map[string]int, len(knownStatuses))
	for _, s := range knownStatuses {
		counters[string(s)] = 0
	}

	for _, job := range jobs {
		counters[string(job.Status)]++
	}

	return counters, nil
}
