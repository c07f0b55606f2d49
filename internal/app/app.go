package app

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/jgivc/mediafetch/internal/adapter/mdadapter"
	"github.com/jgivc/mediafetch/internal/adapter/ytdlpadapter"
	"github.com/jgivc/mediafetch/internal/config"
	httphandler "github.com/jgivc/mediafetch/internal/handler/http"
	wshandler "github.com/jgivc/mediafetch/internal/handler/ws"
	"github.com/jgivc/mediafetch/internal/repository/job"
	"github.com/jgivc/mediafetch/internal/service/broadcast"
	"github.com/jgivc/mediafetch/internal/service/counter"
	srvdownload "github.com/jgivc/mediafetch/internal/service/download"
	"github.com/jgivc/mediafetch/internal/service/dump"
	"github.com/jgivc/mediafetch/internal/service/metadata"
	"github.com/jgivc/mediafetch/internal/service/page"
	"github.com/jgivc/mediafetch/internal/service/registry"
	"github.com/jgivc/mediafetch/internal/storage/artifact"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/afero"
	"golang.org/x/time/rate"
)

const (
	startTimeout    = 10 * time.Second
	dumpTimeout     = 5 * time.Second
	shutdownTimeout = 5 * time.Second
)

type jobRepository interface {
	srvdownload.JobRepository
}

type downloadService interface {
	httphandler.DownloadService
	Start(ctx context.Context) error
	Stop()
}

type metadataService interface {
	httphandler.MetadataService
	Sweep() int
}

type App struct {
	cfgPath   string
	cfg       *config.Config
	srv       *http.Server
	downloads downloadService
	metadata  metadataService
	dumper    *dump.DumpService
	closers   []func() error
	stopSweep context.CancelFunc
	log       *slog.Logger
}

func New(cfgPath string) *App {
	return &App{
		cfgPath: cfgPath,
	}
}

func (a *App) Start() {
	a.cfg = config.MustLoad(a.cfgPath)

	lo := &slog.HandlerOptions{}
	switch a.cfg.LogLevel {
	case config.LogLevelInfo:
		lo.Level = slog.LevelInfo
	case config.LogLevelWarn:
		lo.Level = slog.LevelWarn
	case config.LogLevelError:
		lo.Level = slog.LevelError
	case config.LogLevelDebug:
		lo.Level = slog.LevelDebug
	default:
		panic("unknown log level")
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, lo))
	a.log = log

	ctx, cancel := context.WithTimeout(context.Background(), startTimeout)
	defer cancel()

	repo := a.newRepository(ctx)

	artifacts := artifact.NewArtifactStorage(a.cfg.DownloadDir, log)
	if err := artifacts.EnsureDir(); err != nil {
		panic(err)
	}

	engine := ytdlpadapter.NewYtdlpAdapter(a.cfg.Engine.Binary, a.cfg.Engine.ProgressInterval, log)
	broadcaster := broadcast.NewBroadcaster(log)

	downloads := srvdownload.NewDownloadService(repo, registry.NewRegistry(), broadcaster, artifacts, engine,
		a.cfg.Engine.DefaultQuality, log)
	if err := downloads.Start(ctx); err != nil {
		panic(err)
	}
	a.downloads = downloads

	a.metadata = metadata.NewMetadataService(metadata.NewCache(a.cfg.Metadata.CacheTTL), engine, a.cfg.Metadata.Timeout, log)
	a.startSweeper()

	counters := counter.NewCounterService(repo, log)
	pages := page.NewPageService(mdadapter.NewMDAdapter(), counters, log)
	a.dumper = dump.NewDumpService(repo, afero.NewOsFs(), log)

	limiter := rate.NewLimiter(rate.Limit(a.cfg.RateLimit.RPS), a.cfg.RateLimit.Burst)

	mux := http.NewServeMux()
	mux.Handle("POST /download", httphandler.NewRateLimitMiddleware(limiter, httphandler.NewSubmitHandler(a.downloads, log)))
	mux.Handle("POST /download/{id}/pause", httphandler.NewPauseHandler(a.downloads, log))
	mux.Handle("POST /download/{id}/resume", httphandler.NewResumeHandler(a.downloads, log))
	mux.Handle("POST /download/{id}/cancel", httphandler.NewCancelHandler(a.downloads, log))
	mux.Handle("DELETE /download/{id}", httphandler.NewDeleteHandler(a.downloads, log))
	mux.Handle("GET /list", httphandler.NewListHandler(a.downloads, log))
	mux.Handle("GET /file/{id}", httphandler.NewFileHandler(a.downloads, log))
	mux.Handle("GET /meta", httphandler.NewMetaHandler(a.metadata, log))
	mux.Handle("GET /stat", httphandler.NewCounterHandler(counters, log))
	mux.Handle("GET /ws", wshandler.NewWSHandler(broadcaster, a.cfg.WS.WriteTimeout, log))
	mux.Handle("GET /{$}", httphandler.NewPageHandler(pages, log))

	a.srv = &http.Server{
		Addr:    a.cfg.Listen,
		Handler: httphandler.NewCORSMiddleware(mux),
	}

	go func() {
		log.Info("Start listen", slog.String("addr", a.cfg.Listen))

		if err := a.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Could not serve", slog.String("listen_addr", a.cfg.Listen), slog.Any("error", err))
			os.Exit(2)
		}
	}()
}

func (a *App) newRepository(ctx context.Context) jobRepository {
	switch a.cfg.Store.Driver {
	case config.StoreDriverRedis:
		opt, err := redis.ParseURL(a.cfg.Store.RedisURL)
		if err != nil {
			panic(err)
		}

		rdb := redis.NewClient(opt)
		if _, err := rdb.Ping(ctx).Result(); err != nil {
			panic(err)
		}
		a.closers = append(a.closers, rdb.Close)

		return job.NewRedisRepository(rdb, a.log)
	case config.StoreDriverSQLite:
		repo, err := job.NewSQLiteRepository(a.cfg.Store.SQLitePath, a.log)
		if err != nil {
			panic(err)
		}
		a.closers = append(a.closers, repo.Close)

		return repo
	default:
		return job.NewMemoryRepository()
	}
}

func (a *App) startSweeper() {
	ctx, cancel := context.WithCancel(context.Background())
	a.stopSweep = cancel

	go func() {
		ticker := time.NewTicker(a.cfg.Metadata.SweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				a.Sweep()
			}
		}
	}()
}

// Sweep drops expired metadata cache entries.
func (a *App) Sweep() {
	if n := a.metadata.Sweep(); n > 0 {
		a.log.Debug("Metadata cache swept", slog.Int("removed", n))
	}
}

// Dump writes the job list to the configured dump file.
func (a *App) Dump() {
	ctx, cancel := context.WithTimeout(context.Background(), dumpTimeout)
	defer cancel()

	if err := a.dumper.Dump(ctx, a.cfg.DumpFile); err != nil {
		a.log.Error("Cannot dump jobs", slog.Any("error", err))
	}
}

func (a *App) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := a.srv.Shutdown(ctx); err != nil {
		a.log.Error("Cannot shutdown server", slog.Any("error", err))
	}

	a.stopSweep()
	a.downloads.Stop()

	for _, closer := range a.closers {
		if err := closer(); err != nil {
			a.log.Error("Cannot close store", slog.Any("error", err))
		}
	}
}
