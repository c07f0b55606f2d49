package download

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jgivc/mediafetch/internal/common"
	"github.com/jgivc/mediafetch/internal/entity"
	"github.com/jgivc/mediafetch/internal/service/registry"
	"github.com/jgivc/mediafetch/internal/storage/artifact"
	"github.com/jgivc/mediafetch/internal/util"
	"github.com/spf13/afero"
)

const (
	serviceName = "DownloadService"

	eventsBuffer = 64

	AckCancelling = "cancelling"
	AckCancelled  = "cancelled"
)

// URL schemes that only make sense inside the submitting browser.
var rejectedSchemes = []string{"blob:", "data:", "file:", "about:"}

type JobRepository interface {
	Create(ctx context.Context, job *entity.Job) (int64, error)
	Get(ctx context.Context, id int64) (*entity.Job, error)
	UpdateStatus(ctx context.Context, id int64, status entity.Status) error
	UpdateProgress(ctx context.Context, id int64, status entity.Status, progress float64) error
	SetTitle(ctx context.Context, id int64, title string) error
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context) ([]*entity.Job, error)
}

type Registry interface {
	Claim(id int64, selector string) (*registry.Handle, bool)
	Lookup(id int64) (*registry.Handle, bool)
	Remove(id int64, h *registry.Handle) bool
}

type Publisher interface {
	Publish(ctx context.Context, event entity.Event)
}

type ArtifactStorage interface {
	OutputTemplate(stem string) string
	Find(id int64, filename string) (string, error)
	RemoveAll(stem string) (int, error)
	Open(path string) (afero.File, error)
}

// Engine runs one download to completion. onTick is called for every progress report;
// a non-nil return aborts the download and Download returns an error.
type Engine interface {
	Download(ctx context.Context, req entity.EngineRequest, onTick func(entity.Tick) error) error
}

type SubmitRequest struct {
	URL      string `json:"url"`
	Filename string `json:"filename"`
	Quality  string `json:"quality"`
	Title    string `json:"title"`
}

type eventKind int

const (
	eventProgress eventKind = iota
	eventCompleted
	eventPaused
	eventCancelled
	eventFailed
)

type runEvent struct {
	kind     eventKind
	id       int64
	stem     string
	progress float64
	speed    *float64
	eta      *int
	title    string
	err      string
	done     chan struct{}
}

type downloadService struct {
	repo           JobRepository
	registry       Registry
	publisher      Publisher
	artifacts      ArtifactStorage
	engine         Engine
	defaultQuality string
	now            func() time.Time
	log            *slog.Logger

	events   chan runEvent
	quit     chan struct{}
	loopDone chan struct{}

	runCtx   context.Context
	stopRuns context.CancelFunc
	wg       sync.WaitGroup
	stopping atomic.Bool
	stopOnce sync.Once
}

func NewDownloadService(repo JobRepository, reg Registry, publisher Publisher, artifacts ArtifactStorage,
	engine Engine, defaultQuality string, log *slog.Logger) *downloadService {
	runCtx, stopRuns := context.WithCancel(context.Background())

	return &downloadService{
		repo:           repo,
		registry:       reg,
		publisher:      publisher,
		artifacts:      artifacts,
		engine:         engine,
		defaultQuality: defaultQuality,
		now:            time.Now,
		log:            log.With(slog.String("service", serviceName)),
		events:         make(chan runEvent, eventsBuffer),
		quit:           make(chan struct{}),
		loopDone:       make(chan struct{}),
		runCtx:         runCtx,
		stopRuns:       stopRuns,
	}
}

// Start launches the event loop and reconciles jobs left behind by a previous process:
// interrupted downloads become paused, queued jobs are started again.
func (s *downloadService) Start(ctx context.Context) error {
	go s.loop()

	jobs, err := s.repo.List(ctx)
	if err != nil {
		s.log.Error("Cannot list jobs for recovery", slog.Any("error", err))

		return fmt.Errorf("cannot recover jobs: %w", err)
	}

	for _, job := range jobs {
		switch job.Status {
		case entity.StatusDownloading:
			if err := s.repo.UpdateStatus(ctx, job.ID, entity.StatusPaused); err != nil {
				s.log.Error("Cannot mark interrupted job paused", slog.Int64("id", job.ID), slog.Any("error", err))

				continue
			}
			s.log.Info("Interrupted job paused", slog.Int64("id", job.ID))
		case entity.StatusQueued:
			s.log.Info("Restart queued job", slog.Int64("id", job.ID))
			s.StartRun(job, s.qualityFor(job), true)
		}
	}

	return nil
}

// Stop interrupts every run, waits for their terminal state to be recorded and stops the loop.
func (s *downloadService) Stop() {
	s.stopOnce.Do(func() {
		s.stopping.Store(true)
		s.stopRuns()
		s.wg.Wait()
		close(s.quit)
		<-s.loopDone
	})
}

func (s *downloadService) Submit(ctx context.Context, req SubmitRequest) (*entity.Job, error) {
	url := strings.TrimSpace(req.URL)
	if url == "" {
		return nil, fmt.Errorf("%w: url is required", common.ErrValidation)
	}

	lower := strings.ToLower(url)
	for _, scheme := range rejectedSchemes {
		if strings.HasPrefix(lower, scheme) {
			return nil, fmt.Errorf("%w: %s URLs are browser-local and cannot be downloaded, send the original page URL instead",
				common.ErrValidation, strings.TrimSuffix(scheme, ":"))
		}
	}

	filename := strings.TrimSpace(req.Filename)
	if filename == "" {
		filename = util.DefaultFilename(s.now())
	}

	quality := strings.TrimSpace(req.Quality)
	if quality == "" {
		quality = s.defaultQuality
	}

	job := &entity.Job{
		URL:      url,
		Filename: filename,
		Title:    strings.TrimSpace(req.Title),
		Quality:  quality,
		Status:   entity.StatusQueued,
	}

	if _, err := s.repo.Create(ctx, job); err != nil {
		s.log.Error("Cannot create job", slog.String("url", url), slog.Any("error", err))

		return nil, fmt.Errorf("cannot create job: %w", err)
	}

	s.log.Info("Job submitted", slog.Int64("id", job.ID), slog.String("url", url), slog.String("quality", quality))
	s.StartRun(job, quality, false)

	return job, nil
}

// StartRun claims the control handle of the job and runs the engine on its own
// goroutine. The handle is in place when StartRun returns. It returns false when
// another run of the job holds the handle.
func (s *downloadService) StartRun(job *entity.Job, quality string, resume bool) bool {
	h, ok := s.registry.Claim(job.ID, quality)
	if !ok {
		s.log.Warn("Job already has an active run", slog.Int64("id", job.ID))

		return false
	}

	s.launch(job, quality, resume, h)

	return true
}

// launch starts a run under an already claimed handle.
func (s *downloadService) launch(job *entity.Job, quality string, resume bool, h *registry.Handle) {
	if s.stopping.Load() {
		s.registry.Remove(job.ID, h)
		s.log.Warn("Service is stopping, job left queued", slog.Int64("id", job.ID))

		return
	}

	s.wg.Add(1)
	go s.run(s.runCtx, *job, quality, resume, h)
}

func (s *downloadService) Pause(id int64) error {
	h, ok := s.registry.Lookup(id)
	if !ok {
		return common.ErrNotActive
	}

	h.Pause()
	s.log.Info("Pause requested", slog.Int64("id", id))

	return nil
}

func (s *downloadService) Resume(ctx context.Context, id int64) error {
	job, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}

	if job.Status != entity.StatusPaused {
		return fmt.Errorf("%w: download is %s, not paused", common.ErrInvalidState, job.Status)
	}

	quality := s.qualityFor(job)

	h, ok := s.registry.Claim(id, quality)
	if !ok {
		return fmt.Errorf("%w: download is already active", common.ErrInvalidState)
	}

	// the row may have moved on before the claim
	job, err = s.repo.Get(ctx, id)
	if err != nil {
		s.registry.Remove(id, h)

		return err
	}

	if job.Status != entity.StatusPaused {
		s.registry.Remove(id, h)

		return fmt.Errorf("%w: download is %s, not paused", common.ErrInvalidState, job.Status)
	}

	if err := s.repo.UpdateStatus(ctx, id, entity.StatusQueued); err != nil {
		s.registry.Remove(id, h)
		s.log.Error("Cannot queue job", slog.Int64("id", id), slog.Any("error", err))

		return fmt.Errorf("cannot resume job %d: %w", id, err)
	}

	s.log.Info("Resume", slog.Int64("id", id), slog.String("quality", quality))
	s.launch(job, quality, true, h)

	return nil
}

// Cancel signals a running job, or cancels a job without a live run right away.
// It returns the acknowledgment status for the caller.
func (s *downloadService) Cancel(ctx context.Context, id int64) (string, error) {
	for {
		if h, ok := s.registry.Lookup(id); ok {
			h.Cancel()
			s.log.Info("Cancel requested", slog.Int64("id", id))

			return AckCancelling, nil
		}

		// holding the handle keeps Resume out while the row is cancelled
		if h, ok := s.registry.Claim(id, ""); ok {
			defer s.registry.Remove(id, h)

			return s.cancelIdle(ctx, id)
		}
	}
}

func (s *downloadService) cancelIdle(ctx context.Context, id int64) (string, error) {
	job, err := s.repo.Get(ctx, id)
	if err != nil {
		return "", err
	}

	if !job.Status.CanTransition(entity.StatusCancelled) {
		return "", fmt.Errorf("%w: download is %s", common.ErrInvalidState, job.Status)
	}

	s.removeArtifacts(job.ID, artifact.Stem(job.ID, job.Filename))

	if err := s.repo.UpdateProgress(ctx, id, entity.StatusCancelled, 0); err != nil {
		s.log.Error("Cannot cancel job", slog.Int64("id", id), slog.Any("error", err))

		return "", fmt.Errorf("cannot cancel job %d: %w", id, err)
	}

	s.publisher.Publish(ctx, entity.NewCancelledEvent(id))

	return AckCancelled, nil
}

func (s *downloadService) Get(ctx context.Context, id int64) (*entity.Job, error) {
	return s.repo.Get(ctx, id)
}

func (s *downloadService) List(ctx context.Context) ([]*entity.Job, error) {
	jobs, err := s.repo.List(ctx)
	if err != nil {
		s.log.Error("Cannot list jobs", slog.Any("error", err))

		return nil, fmt.Errorf("cannot list jobs: %w", err)
	}

	return jobs, nil
}

// Delete removes the job record. A live run is not stopped.
func (s *downloadService) Delete(ctx context.Context, id int64) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if !errors.Is(err, common.ErrNotFound) {
			s.log.Error("Cannot delete job", slog.Int64("id", id), slog.Any("error", err))
		}

		return err
	}

	s.log.Info("Job deleted", slog.Int64("id", id))

	return nil
}

// Artifact opens the completed file of a job.
func (s *downloadService) Artifact(ctx context.Context, id int64) (afero.File, error) {
	job, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if job.Status != entity.StatusCompleted {
		return nil, common.ErrNotReady
	}

	path, err := s.artifacts.Find(job.ID, job.Filename)
	if err != nil {
		return nil, err
	}

	return s.artifacts.Open(path)
}

func (s *downloadService) qualityFor(job *entity.Job) string {
	if job.Quality != "" {
		return job.Quality
	}

	return s.defaultQuality
}

func (s *downloadService) removeArtifacts(id int64, stem string) {
	n, err := s.artifacts.RemoveAll(stem)
	if err != nil {
		s.log.Error("Cannot remove partial files", slog.Int64("id", id), slog.Any("error", err))

		return
	}

	if n > 0 {
		s.log.Info("Partial files removed", slog.Int64("id", id), slog.Int("count", n))
	}
}
