package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jgivc/mediafetch/internal/common"
	"github.com/jgivc/mediafetch/internal/entity"
	jobrepo "github.com/jgivc/mediafetch/internal/repository/job"
	"github.com/jgivc/mediafetch/internal/service/registry"
	"github.com/jgivc/mediafetch/internal/storage/artifact"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

const (
	testQuality = "bestvideo+bestaudio/best"
	waitFor     = 2 * time.Second
	tickEvery   = 5 * time.Millisecond
)

type fakeRun struct {
	ctx    context.Context
	req    entity.EngineRequest
	ticks  chan entity.Tick
	acks   chan error
	finish chan error
}

// tick hands one progress report to the run and returns what the callback answered.
func (r *fakeRun) tick(t *testing.T, tick entity.Tick) error {
	t.Helper()

	select {
	case r.ticks <- tick:
	case <-time.After(waitFor):
		t.Fatal("tick was not consumed")
	}

	return <-r.acks
}

func (r *fakeRun) progress(t *testing.T, downloaded, total int64) error {
	t.Helper()

	return r.tick(t, entity.Tick{Status: entity.TickDownloading, DownloadedBytes: downloaded, TotalBytes: total})
}

type fakeEngine struct {
	runs chan *fakeRun
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{runs: make(chan *fakeRun, 8)}
}

func (e *fakeEngine) Download(ctx context.Context, req entity.EngineRequest, onTick func(entity.Tick) error) error {
	r := &fakeRun{
		ctx:    ctx,
		req:    req,
		ticks:  make(chan entity.Tick),
		acks:   make(chan error),
		finish: make(chan error, 1),
	}
	e.runs <- r

	for {
		select {
		case t := <-r.ticks:
			err := onTick(t)
			r.acks <- err
			if err != nil {
				return fmt.Errorf("download aborted: %w", err)
			}
		case err := <-r.finish:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (e *fakeEngine) next(t *testing.T) *fakeRun {
	t.Helper()

	select {
	case r := <-e.runs:
		return r
	case <-time.After(waitFor):
		t.Fatal("engine was not started")
	}

	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []entity.Event
}

func (p *recordingPublisher) Publish(_ context.Context, event entity.Event) {
	p.mu.Lock()
	p.events = append(p.events, event)
	p.mu.Unlock()
}

func (p *recordingPublisher) snapshot() []entity.Event {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]entity.Event(nil), p.events...)
}

type testEnv struct {
	svc    *downloadService
	repo   JobRepository
	reg    *countingRegistry
	pub    *recordingPublisher
	engine *fakeEngine
	fs     afero.Fs
}

// countingRegistry exposes the registry size to tests.
type countingRegistry struct {
	Registry
	len func() int
}

func newTestEnv(t *testing.T, seed ...*entity.Job) *testEnv {
	t.Helper()

	return newTestEnvWithRepo(t, nil, seed...)
}

// newTestEnvWithRepo seeds the store and lets wrap decorate it before the service sees it.
func newTestEnvWithRepo(t *testing.T, wrap func(JobRepository) JobRepository, seed ...*entity.Job) *testEnv {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
	repo := jobrepo.NewMemoryRepository()
	ctx := context.Background()

	for _, job := range seed {
		_, err := repo.Create(ctx, job)
		require.NoError(t, err)
	}

	var store JobRepository = repo
	if wrap != nil {
		store = wrap(repo)
	}

	reg := registry.NewRegistry()
	counted := &countingRegistry{Registry: reg, len: reg.Len}
	fs := afero.NewMemMapFs()
	pub := &recordingPublisher{}
	engine := newFakeEngine()

	svc := NewDownloadService(store, counted, pub, artifact.NewArtifactStorageWithFS(fs, "downloads", log), engine, testQuality, log)
	svc.now = func() time.Time { return time.Unix(1700000000, 0) }

	require.NoError(t, svc.Start(ctx))
	t.Cleanup(svc.Stop)

	return &testEnv{svc: svc, repo: store, reg: counted, pub: pub, engine: engine, fs: fs}
}

func (e *testEnv) waitEvents(t *testing.T, n int) []entity.Event {
	t.Helper()

	require.Eventually(t, func() bool {
		return len(e.pub.snapshot()) >= n
	}, waitFor, tickEvery)

	return e.pub.snapshot()
}

func (e *testEnv) waitStatus(t *testing.T, id int64, status entity.Status) *entity.Job {
	t.Helper()

	var job *entity.Job
	require.Eventually(t, func() bool {
		var err error
		job, err = e.repo.Get(context.Background(), id)

		return err == nil && job.Status == status
	}, waitFor, tickEvery)

	return job
}

func (e *testEnv) waitIdle(t *testing.T) {
	t.Helper()

	require.Eventually(t, func() bool {
		return e.reg.len() == 0
	}, waitFor, tickEvery)
}

func (e *testEnv) writeFile(t *testing.T, name string) {
	t.Helper()
	require.NoError(t, afero.WriteFile(e.fs, name, []byte("partial"), 0o644))
}

func (e *testEnv) exists(t *testing.T, name string) bool {
	t.Helper()

	ok, err := afero.Exists(e.fs, name)
	require.NoError(t, err)

	return ok
}

func progressOf(t *testing.T, ev entity.Event) float64 {
	t.Helper()
	require.NotNil(t, ev.Progress, "event %+v has no progress", ev)

	return *ev.Progress
}

func TestSubmitAndComplete(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	job, err := env.svc.Submit(ctx, SubmitRequest{URL: "https://example.com/watch?v=abc", Filename: "My Clip"})
	require.NoError(t, err)
	require.Equal(t, int64(1), job.ID)
	require.Equal(t, entity.StatusQueued, job.Status)

	run := env.engine.next(t)
	require.Equal(t, "downloads/MyClip.%(ext)s", run.req.Output)
	require.Equal(t, testQuality, run.req.Quality)
	require.False(t, run.req.Continue)

	require.NoError(t, run.progress(t, 50, 100))
	require.NoError(t, run.progress(t, 100, 100))
	require.NoError(t, run.tick(t, entity.Tick{Status: entity.TickFinished}))
	run.finish <- nil

	events := env.waitEvents(t, 3)
	require.Len(t, events, 3)
	require.Equal(t, 50.0, progressOf(t, events[0]))
	require.Equal(t, 100.0, progressOf(t, events[1]))
	require.True(t, events[2].Done)
	require.Equal(t, 100.0, progressOf(t, events[2]))

	got := env.waitStatus(t, 1, entity.StatusCompleted)
	require.Equal(t, 1.0, got.Progress)

	jobs, err := env.svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	require.Equal(t, entity.StatusCompleted, jobs[0].Status)

	env.waitIdle(t)
}

func TestCompletesWithoutFinishedTick(t *testing.T) {
	env := newTestEnv(t)

	job, err := env.svc.Submit(context.Background(), SubmitRequest{URL: "https://example.com/v"})
	require.NoError(t, err)

	env.engine.next(t).finish <- nil

	env.waitStatus(t, job.ID, entity.StatusCompleted)
	events := env.waitEvents(t, 1)
	require.True(t, events[0].Done)
}

func TestSubmitDefaults(t *testing.T) {
	env := newTestEnv(t)

	job, err := env.svc.Submit(context.Background(), SubmitRequest{URL: "  https://example.com/v  ", Title: " Known "})
	require.NoError(t, err)
	require.Equal(t, "https://example.com/v", job.URL)
	require.Equal(t, "video_1700000000", job.Filename)
	require.Equal(t, testQuality, job.Quality)
	require.Equal(t, "Known", job.Title)

	run := env.engine.next(t)
	require.Equal(t, "downloads/video_1700000000.%(ext)s", run.req.Output)
}

func TestSubmitValidation(t *testing.T) {
	env := newTestEnv(t)

	for _, url := range []string{"", "   ", "blob:https://example.com/1f2e", "BLOB:x", "data:text/plain,hi", "file:///etc/passwd", "about:blank"} {
		t.Run(url, func(t *testing.T) {
			_, err := env.svc.Submit(context.Background(), SubmitRequest{URL: url})
			require.ErrorIs(t, err, common.ErrValidation)
		})
	}

	jobs, err := env.svc.List(context.Background())
	require.NoError(t, err)
	require.Empty(t, jobs, "rejected submissions never create a job")
}

func TestPauseKeepsProgressAndPartial(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	job, err := env.svc.Submit(ctx, SubmitRequest{URL: "https://example.com/v", Filename: "clip"})
	require.NoError(t, err)

	run := env.engine.next(t)
	env.writeFile(t, "downloads/clip.mp4.part")

	require.NoError(t, run.progress(t, 30, 100))
	env.waitEvents(t, 1)

	require.NoError(t, env.svc.Pause(job.ID))
	require.ErrorIs(t, run.progress(t, 40, 100), common.ErrInterrupted)

	got := env.waitStatus(t, job.ID, entity.StatusPaused)
	require.Equal(t, 0.3, got.Progress)
	require.True(t, env.exists(t, "downloads/clip.mp4.part"))

	events := env.waitEvents(t, 2)
	require.Len(t, events, 2)
	require.True(t, events[1].Paused)

	env.waitIdle(t)
	require.ErrorIs(t, env.svc.Pause(job.ID), common.ErrNotActive)
}

func TestPauseRightAfterSubmit(t *testing.T) {
	env := newTestEnv(t)

	job, err := env.svc.Submit(context.Background(), SubmitRequest{URL: "https://example.com/v"})
	require.NoError(t, err)
	require.NoError(t, env.svc.Pause(job.ID))

	run := env.engine.next(t)
	require.ErrorIs(t, run.progress(t, 1, 100), common.ErrInterrupted)

	env.waitStatus(t, job.ID, entity.StatusPaused)
}

func TestCancelRemovesPartial(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	job, err := env.svc.Submit(ctx, SubmitRequest{URL: "https://example.com/v", Filename: "clip"})
	require.NoError(t, err)

	run := env.engine.next(t)
	env.writeFile(t, "downloads/clip.f137.mp4.part")
	env.writeFile(t, "downloads/other.mp4")

	require.NoError(t, run.progress(t, 60, 100))

	ack, err := env.svc.Cancel(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, AckCancelling, ack)

	require.ErrorIs(t, run.progress(t, 70, 100), common.ErrInterrupted)

	got := env.waitStatus(t, job.ID, entity.StatusCancelled)
	require.Equal(t, 0.0, got.Progress)

	events := env.waitEvents(t, 2)
	require.True(t, events[len(events)-1].Cancelled)

	require.False(t, env.exists(t, "downloads/clip.f137.mp4.part"))
	require.True(t, env.exists(t, "downloads/other.mp4"))
}

func TestCancelWinsOverPause(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	job, err := env.svc.Submit(ctx, SubmitRequest{URL: "https://example.com/v"})
	require.NoError(t, err)
	run := env.engine.next(t)

	require.NoError(t, env.svc.Pause(job.ID))
	_, err = env.svc.Cancel(ctx, job.ID)
	require.NoError(t, err)

	require.ErrorIs(t, run.progress(t, 10, 100), common.ErrInterrupted)
	env.waitStatus(t, job.ID, entity.StatusCancelled)
}

func TestCancelAfterFinishedTickIsNotCompleted(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	job, err := env.svc.Submit(ctx, SubmitRequest{URL: "https://example.com/v"})
	require.NoError(t, err)
	run := env.engine.next(t)

	require.NoError(t, run.progress(t, 100, 100))
	require.NoError(t, run.tick(t, entity.Tick{Status: entity.TickFinished}))

	_, err = env.svc.Cancel(ctx, job.ID)
	require.NoError(t, err)
	run.finish <- nil

	env.waitStatus(t, job.ID, entity.StatusCancelled)
	env.waitIdle(t)

	for _, ev := range env.pub.snapshot() {
		require.False(t, ev.Done, "done must never follow an observed cancel")
	}
}

func TestPauseAfterFinishIsIgnored(t *testing.T) {
	env := newTestEnv(t)

	job, err := env.svc.Submit(context.Background(), SubmitRequest{URL: "https://example.com/v"})
	require.NoError(t, err)
	run := env.engine.next(t)

	require.NoError(t, run.tick(t, entity.Tick{Status: entity.TickFinished}))
	require.NoError(t, env.svc.Pause(job.ID))
	run.finish <- nil

	env.waitStatus(t, job.ID, entity.StatusCompleted)
}

func TestEngineFailure(t *testing.T) {
	env := newTestEnv(t)

	job, err := env.svc.Submit(context.Background(), SubmitRequest{URL: "https://example.com/v"})
	require.NoError(t, err)
	run := env.engine.next(t)

	require.NoError(t, run.progress(t, 20, 100))
	run.finish <- errors.New("HTTP Error 403: Forbidden")

	got := env.waitStatus(t, job.ID, entity.StatusError)
	require.Equal(t, 0.0, got.Progress)

	events := env.waitEvents(t, 2)
	require.Equal(t, "HTTP Error 403: Forbidden", events[1].Error)
	env.waitIdle(t)
}

func TestProgressIsMonotonicWithinRun(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.Submit(context.Background(), SubmitRequest{URL: "https://example.com/v"})
	require.NoError(t, err)
	run := env.engine.next(t)

	// video stream then audio stream, counters restart
	require.NoError(t, run.progress(t, 80, 100))
	require.NoError(t, run.progress(t, 10, 20))
	require.NoError(t, run.progress(t, 5, 0))
	require.NoError(t, run.progress(t, 20, 20))

	events := env.waitEvents(t, 4)
	var values []float64
	for _, ev := range events[:4] {
		values = append(values, progressOf(t, ev))
	}
	require.Equal(t, []float64{80, 80, 100, 100}, values)
}

func TestTitleFromTick(t *testing.T) {
	env := newTestEnv(t)

	job, err := env.svc.Submit(context.Background(), SubmitRequest{URL: "https://example.com/v"})
	require.NoError(t, err)
	run := env.engine.next(t)

	require.NoError(t, run.tick(t, entity.Tick{Status: entity.TickDownloading, DownloadedBytes: 1, TotalBytes: 10, Title: "Engine Title"}))
	require.NoError(t, run.tick(t, entity.Tick{Status: entity.TickDownloading, DownloadedBytes: 2, TotalBytes: 10, Title: "Engine Title"}))

	events := env.waitEvents(t, 2)
	require.Equal(t, "Engine Title", events[0].Title)
	require.Empty(t, events[1].Title)

	require.Eventually(t, func() bool {
		got, err := env.repo.Get(context.Background(), job.ID)

		return err == nil && got.Title == "Engine Title"
	}, waitFor, tickEvery)
}

func TestResume(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	job, err := env.svc.Submit(ctx, SubmitRequest{URL: "https://example.com/v", Filename: "clip", Quality: "bestaudio/best"})
	require.NoError(t, err)

	require.ErrorIs(t, env.svc.Resume(ctx, job.ID), common.ErrInvalidState)

	run := env.engine.next(t)
	require.NoError(t, run.progress(t, 40, 100))
	require.NoError(t, env.svc.Pause(job.ID))
	require.ErrorIs(t, run.progress(t, 50, 100), common.ErrInterrupted)
	env.waitStatus(t, job.ID, entity.StatusPaused)
	env.waitIdle(t)

	require.NoError(t, env.svc.Resume(ctx, job.ID))

	got, err := env.repo.Get(ctx, job.ID)
	require.NoError(t, err)
	require.Contains(t, []entity.Status{entity.StatusQueued, entity.StatusDownloading}, got.Status)
	require.Equal(t, 0.4, got.Progress)

	resumed := env.engine.next(t)
	require.True(t, resumed.req.Continue)
	require.Equal(t, "bestaudio/best", resumed.req.Quality)
	require.Equal(t, "downloads/clip.%(ext)s", resumed.req.Output)

	require.NoError(t, resumed.progress(t, 100, 100))
	resumed.finish <- nil
	env.waitStatus(t, job.ID, entity.StatusCompleted)

	require.ErrorIs(t, env.svc.Resume(ctx, 99), common.ErrNotFound)
}

// slowGetRepo widens the window between reading a job and acting on it.
type slowGetRepo struct {
	JobRepository
	delay time.Duration
}

func (r *slowGetRepo) Get(ctx context.Context, id int64) (*entity.Job, error) {
	time.Sleep(r.delay)

	return r.JobRepository.Get(ctx, id)
}

func slowGet(r JobRepository) JobRepository {
	return &slowGetRepo{JobRepository: r, delay: 30 * time.Millisecond}
}

func (e *testEnv) noRun(t *testing.T) {
	t.Helper()

	select {
	case r := <-e.engine.runs:
		t.Fatalf("unexpected run started for %s", r.req.URL)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestConcurrentResumeStartsOneRun(t *testing.T) {
	env := newTestEnvWithRepo(t, slowGet,
		&entity.Job{URL: "https://example.com/v", Filename: "clip", Status: entity.StatusPaused, Progress: 0.4})
	ctx := context.Background()

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = env.svc.Resume(ctx, 1)
		}(i)
	}
	wg.Wait()

	var ok, rejected int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, common.ErrInvalidState):
			rejected++
		default:
			t.Fatalf("unexpected resume error: %v", err)
		}
	}
	require.Equal(t, 1, ok)
	require.Equal(t, 1, rejected)

	run := env.engine.next(t)
	env.noRun(t)

	require.NoError(t, env.svc.Pause(1))
	require.ErrorIs(t, run.progress(t, 50, 100), common.ErrInterrupted)
	env.waitStatus(t, 1, entity.StatusPaused)
	env.waitIdle(t)
}

func TestResumeRacingCancel(t *testing.T) {
	env := newTestEnvWithRepo(t, slowGet,
		&entity.Job{URL: "https://example.com/v", Filename: "clip", Status: entity.StatusPaused, Progress: 0.4})
	ctx := context.Background()

	var (
		wg        sync.WaitGroup
		resumeErr error
		ack       string
		cancelErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		resumeErr = env.svc.Resume(ctx, 1)
	}()
	go func() {
		defer wg.Done()
		ack, cancelErr = env.svc.Cancel(ctx, 1)
	}()
	wg.Wait()
	require.NoError(t, cancelErr)

	if resumeErr == nil {
		require.Equal(t, AckCancelling, ack)

		run := env.engine.next(t)
		require.ErrorIs(t, run.progress(t, 50, 100), common.ErrInterrupted)
	} else {
		require.ErrorIs(t, resumeErr, common.ErrInvalidState)
		require.Equal(t, AckCancelled, ack)
		env.noRun(t)
	}

	env.waitStatus(t, 1, entity.StatusCancelled)
	env.waitIdle(t)
}

func TestCancelWithoutRun(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	job, err := env.svc.Submit(ctx, SubmitRequest{URL: "https://example.com/v", Filename: "clip"})
	require.NoError(t, err)
	run := env.engine.next(t)
	env.writeFile(t, "downloads/clip.webm.part")

	require.NoError(t, env.svc.Pause(job.ID))
	require.ErrorIs(t, run.progress(t, 1, 10), common.ErrInterrupted)
	env.waitStatus(t, job.ID, entity.StatusPaused)
	env.waitIdle(t)
	require.True(t, env.exists(t, "downloads/clip.webm.part"))

	ack, err := env.svc.Cancel(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, AckCancelled, ack)
	require.False(t, env.exists(t, "downloads/clip.webm.part"))

	got, err := env.repo.Get(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, entity.StatusCancelled, got.Status)

	events := env.pub.snapshot()
	require.True(t, events[len(events)-1].Cancelled)

	// cancelling again is idempotent
	ack, err = env.svc.Cancel(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, AckCancelled, ack)

	_, err = env.svc.Cancel(ctx, 99)
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestCancelCompletedJobIsRejected(t *testing.T) {
	env := newTestEnv(t, &entity.Job{URL: "https://example.com/v", Filename: "clip", Status: entity.StatusCompleted, Progress: 1})

	_, err := env.svc.Cancel(context.Background(), 1)
	require.ErrorIs(t, err, common.ErrInvalidState)
}

func TestDelete(t *testing.T) {
	env := newTestEnv(t, &entity.Job{URL: "https://example.com/v", Filename: "clip", Status: entity.StatusCompleted})
	ctx := context.Background()

	require.NoError(t, env.svc.Delete(ctx, 1))
	require.ErrorIs(t, env.svc.Delete(ctx, 1), common.ErrNotFound)
}

func TestArtifact(t *testing.T) {
	env := newTestEnv(t,
		&entity.Job{URL: "https://example.com/a", Filename: "My Clip", Status: entity.StatusCompleted, Progress: 1},
		&entity.Job{URL: "https://example.com/b", Filename: "other", Status: entity.StatusPaused},
		&entity.Job{URL: "https://example.com/c", Filename: "gone", Status: entity.StatusCompleted, Progress: 1},
	)
	ctx := context.Background()
	require.NoError(t, afero.WriteFile(env.fs, "downloads/MyClip.mp4", []byte("video"), 0o644))

	f, err := env.svc.Artifact(ctx, 1)
	require.NoError(t, err)
	defer f.Close()

	data, err := io.ReadAll(f)
	require.NoError(t, err)
	require.Equal(t, "video", string(data))

	_, err = env.svc.Artifact(ctx, 2)
	require.ErrorIs(t, err, common.ErrNotReady)

	_, err = env.svc.Artifact(ctx, 3)
	require.ErrorIs(t, err, common.ErrArtifactNotFound)

	_, err = env.svc.Artifact(ctx, 4)
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestRecovery(t *testing.T) {
	env := newTestEnv(t,
		&entity.Job{URL: "https://example.com/a", Filename: "a", Status: entity.StatusDownloading, Progress: 0.7},
		&entity.Job{URL: "https://example.com/b", Filename: "b", Quality: "bestaudio/best", Status: entity.StatusQueued},
		&entity.Job{URL: "https://example.com/c", Filename: "c", Status: entity.StatusCompleted, Progress: 1},
	)
	ctx := context.Background()

	got, err := env.repo.Get(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, entity.StatusPaused, got.Status)
	require.Equal(t, 0.7, got.Progress)

	run := env.engine.next(t)
	require.Equal(t, "https://example.com/b", run.req.URL)
	require.Equal(t, "bestaudio/best", run.req.Quality)
	require.True(t, run.req.Continue)
}

func TestStopPausesRunningJobs(t *testing.T) {
	env := newTestEnv(t)

	job, err := env.svc.Submit(context.Background(), SubmitRequest{URL: "https://example.com/v"})
	require.NoError(t, err)
	run := env.engine.next(t)
	require.NoError(t, run.progress(t, 25, 100))

	env.svc.Stop()

	got, err := env.repo.Get(context.Background(), job.ID)
	require.NoError(t, err)
	require.Equal(t, entity.StatusPaused, got.Status)
	require.Equal(t, 0.25, got.Progress)
	require.Zero(t, env.reg.len())

	_, err = env.svc.Submit(context.Background(), SubmitRequest{URL: "https://example.com/w"})
	require.NoError(t, err, "submissions while stopping are kept queued")
}

func TestProgressTracker(t *testing.T) {
	p := &progressTracker{}

	require.Equal(t, 0.0, p.fraction(entity.Tick{DownloadedBytes: 0, TotalBytes: 0}))
	require.Equal(t, 0.5, p.fraction(entity.Tick{DownloadedBytes: 5, TotalBytes: 10}))
	require.Equal(t, 0.5, p.fraction(entity.Tick{DownloadedBytes: 1, TotalBytes: 10}))
	require.Equal(t, 1.0, p.fraction(entity.Tick{DownloadedBytes: 15, TotalBytes: 10}))

	require.Equal(t, "T", p.newTitle(entity.Tick{Title: "T"}))
	require.Empty(t, p.newTitle(entity.Tick{Title: "T"}))
}
