package download

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jgivc/mediafetch/internal/common"
	"github.com/jgivc/mediafetch/internal/entity"
	"github.com/jgivc/mediafetch/internal/service/registry"
	"github.com/jgivc/mediafetch/internal/storage/artifact"
)

// progressTracker turns engine ticks of one run into a non-decreasing fraction.
// Multi-stream downloads restart their byte counters for every stream.
type progressTracker struct {
	last      float64
	titleSeen bool
}

func (p *progressTracker) fraction(t entity.Tick) float64 {
	total := t.TotalBytes
	if total < 1 {
		total = 1
	}

	pct := float64(t.DownloadedBytes) / float64(total)
	switch {
	case pct < 0:
		pct = 0
	case pct > 1:
		pct = 1
	}

	if pct < p.last {
		return p.last
	}
	p.last = pct

	return pct
}

// newTitle returns the engine reported title the first time one shows up.
func (p *progressTracker) newTitle(t entity.Tick) string {
	if p.titleSeen || t.Title == "" {
		return ""
	}
	p.titleSeen = true

	return t.Title
}

func (s *downloadService) run(ctx context.Context, job entity.Job, quality string, resume bool, h *registry.Handle) {
	defer s.wg.Done()

	log := s.log.With(slog.Int64("id", job.ID), slog.String("run", uuid.NewString()))
	stem := artifact.Stem(job.ID, job.Filename)

	req := entity.EngineRequest{
		URL:      job.URL,
		Quality:  quality,
		Output:   s.artifacts.OutputTemplate(stem),
		Continue: resume,
	}

	tracker := &progressTracker{titleSeen: job.Title != ""}

	log.Info("Run started", slog.String("url", job.URL), slog.Bool("resume", resume))

	err := s.engine.Download(ctx, req, func(t entity.Tick) error {
		if h.Cancelled() || h.Paused() {
			return common.ErrInterrupted
		}

		if t.Status != entity.TickDownloading {
			return nil
		}

		s.dispatch(runEvent{
			kind:     eventProgress,
			id:       job.ID,
			progress: tracker.fraction(t),
			speed:    t.Speed,
			eta:      t.ETA,
			title:    tracker.newTitle(t),
		})

		return nil
	})

	ev := runEvent{id: job.ID, stem: stem, done: make(chan struct{})}

	switch {
	case h.Cancelled():
		ev.kind = eventCancelled
	case err == nil:
		ev.kind = eventCompleted
	case h.Paused(), ctx.Err() != nil:
		ev.kind = eventPaused
	default:
		ev.kind = eventFailed
		ev.err = err.Error()
		log.Error("Run failed", slog.Any("error", err))
	}

	log.Info("Run finished", slog.String("outcome", ev.kind.String()))

	if s.dispatch(ev) {
		select {
		case <-ev.done:
		case <-s.quit:
		}
	}

	s.registry.Remove(job.ID, h)
}

func (k eventKind) String() string {
	switch k {
	case eventProgress:
		return "progress"
	case eventCompleted:
		return string(entity.StatusCompleted)
	case eventPaused:
		return string(entity.StatusPaused)
	case eventCancelled:
		return string(entity.StatusCancelled)
	case eventFailed:
		return string(entity.StatusError)
	}

	return "unknown"
}

func (s *downloadService) dispatch(ev runEvent) bool {
	select {
	case s.events <- ev:
		return true
	case <-s.quit:
		return false
	}
}

// loop applies run events one at a time, so store writes and published events
// of a job keep the order the run produced them in.
func (s *downloadService) loop() {
	defer close(s.loopDone)

	ctx := context.Background()

	for {
		select {
		case ev := <-s.events:
			s.apply(ctx, ev)
			if ev.done != nil {
				close(ev.done)
			}
		case <-s.quit:
			return
		}
	}
}

func (s *downloadService) apply(ctx context.Context, ev runEvent) {
	log := s.log.With(slog.Int64("id", ev.id))

	switch ev.kind {
	case eventProgress:
		if ev.title != "" {
			if err := s.repo.SetTitle(ctx, ev.id, ev.title); err != nil {
				log.Error("Cannot save title", slog.Any("error", err))
			}
		}

		if err := s.repo.UpdateProgress(ctx, ev.id, entity.StatusDownloading, ev.progress); err != nil {
			log.Error("Cannot save progress", slog.Any("error", err))

			return
		}

		event := entity.NewProgressEvent(ev.id, ev.progress, ev.speed, ev.eta)
		event.Title = ev.title
		s.publisher.Publish(ctx, event)

	case eventCompleted:
		if err := s.repo.UpdateProgress(ctx, ev.id, entity.StatusCompleted, 1); err != nil {
			log.Error("Cannot mark job completed", slog.Any("error", err))

			return
		}

		s.publisher.Publish(ctx, entity.NewDoneEvent(ev.id))

	case eventCancelled:
		s.removeArtifacts(ev.id, ev.stem)

		if err := s.repo.UpdateProgress(ctx, ev.id, entity.StatusCancelled, 0); err != nil {
			log.Error("Cannot mark job cancelled", slog.Any("error", err))

			return
		}

		s.publisher.Publish(ctx, entity.NewCancelledEvent(ev.id))

	case eventPaused:
		// progress keeps the last value the store recorded
		if err := s.repo.UpdateStatus(ctx, ev.id, entity.StatusPaused); err != nil {
			log.Error("Cannot mark job paused", slog.Any("error", err))

			return
		}

		s.publisher.Publish(ctx, entity.NewPausedEvent(ev.id))

	case eventFailed:
		if err := s.repo.UpdateProgress(ctx, ev.id, entity.StatusError, 0); err != nil {
			log.Error("Cannot mark job failed", slog.Any("error", err))

			return
		}

		s.publisher.Publish(ctx, entity.NewErrorEvent(ev.id, ev.err))
	}
}
