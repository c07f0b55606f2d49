package ytdlpadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jgivc/mediafetch/internal/entity"
	"github.com/lrstanley/go-ytdlp"
)

const (
	statusDownloading = "downloading"
	statusFinished    = "finished"
)

type ytdlpAdapter struct {
	binary           string
	progressInterval time.Duration
	log              *slog.Logger
}

func NewYtdlpAdapter(binary string, progressInterval time.Duration, log *slog.Logger) *ytdlpAdapter {
	return &ytdlpAdapter{
		binary:           binary,
		progressInterval: progressInterval,
		log:              log.With(slog.String("item", "YtdlpAdapter")),
	}
}

func (a *ytdlpAdapter) command() *ytdlp.Command {
	cmd := ytdlp.New()
	if a.binary != "" {
		cmd.SetExecutable(a.binary)
	}

	return cmd
}

// Download runs yt-dlp for one URL. When onTick returns an error the process is
// stopped and that error is returned.
func (a *ytdlpAdapter) Download(ctx context.Context, req entity.EngineRequest, onTick func(entity.Tick) error) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu      sync.Mutex
		aborted error
	)

	cmd := a.command().
		Format(req.Quality).
		NoPlaylist().
		Output(req.Output)

	if req.Continue {
		cmd.Continue()
	} else {
		cmd.NoContinue()
	}

	cmd.ProgressFunc(a.progressInterval, func(update ytdlp.ProgressUpdate) {
		mu.Lock()
		defer mu.Unlock()

		if aborted != nil {
			return
		}

		if err := onTick(toTick(update, time.Now())); err != nil {
			aborted = err
			cancel()
		}
	})

	log := a.log.With(slog.String("url", req.URL))
	log.Debug("Run yt-dlp", slog.String("format", req.Quality), slog.String("output", req.Output), slog.Bool("continue", req.Continue))

	res, err := cmd.Run(runCtx, req.URL)

	mu.Lock()
	defer mu.Unlock()

	if aborted != nil {
		return fmt.Errorf("download stopped: %w", aborted)
	}

	if err != nil {
		if res != nil && res.Stderr != "" {
			log.Debug("yt-dlp output", slog.String("stderr", res.Stderr))
		}

		return fmt.Errorf("cannot download %s: %w", req.URL, err)
	}

	return nil
}

func toTick(update ytdlp.ProgressUpdate, now time.Time) entity.Tick {
	tick := entity.Tick{
		Status:          string(update.Status),
		DownloadedBytes: int64(update.DownloadedBytes),
		TotalBytes:      int64(update.TotalBytes),
	}

	if !update.Started.IsZero() {
		if elapsed := now.Sub(update.Started).Seconds(); elapsed > 0 {
			speed := float64(update.DownloadedBytes) / elapsed
			tick.Speed = &speed
		}
	}

	if eta := update.ETA(); eta > 0 {
		secs := int(eta.Seconds())
		tick.ETA = &secs
	}

	if update.Info != nil && update.Info.Title != nil {
		tick.Title = *update.Info.Title
	}

	return tick
}

type dumpedFormat struct {
	FormatID string   `json:"format_id"`
	Height   *float64 `json:"height"`
	VCodec   string   `json:"vcodec"`
	ACodec   string   `json:"acodec"`
	TBR      *float64 `json:"tbr"`
	VBR      *float64 `json:"vbr"`
}

type dumpedInfo struct {
	Title     string         `json:"title"`
	FullTitle string         `json:"fulltitle"`
	Duration  *float64       `json:"duration"`
	Thumbnail string         `json:"thumbnail"`
	Formats   []dumpedFormat `json:"formats"`
}

// Extract reads the media information of url without downloading it.
func (a *ytdlpAdapter) Extract(ctx context.Context, url string) (*entity.MediaInfo, error) {
	res, err := a.command().
		SkipDownload().
		DumpSingleJSON().
		NoPlaylist().
		Quiet().
		NoWarnings().
		Run(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("cannot extract %s: %w", url, err)
	}

	return decodeInfo([]byte(res.Stdout))
}

func decodeInfo(data []byte) (*entity.MediaInfo, error) {
	var dumped dumpedInfo
	if err := json.Unmarshal(data, &dumped); err != nil {
		return nil, fmt.Errorf("cannot decode media info: %w", err)
	}

	info := &entity.MediaInfo{
		Title:     dumped.Title,
		Thumbnail: dumped.Thumbnail,
		Formats:   make([]entity.MediaFormat, 0, len(dumped.Formats)),
	}

	if info.Title == "" {
		info.Title = dumped.FullTitle
	}

	if dumped.Duration != nil {
		info.Duration = *dumped.Duration
	}

	for _, f := range dumped.Formats {
		info.Formats = append(info.Formats, entity.MediaFormat{
			FormatID: f.FormatID,
			Height:   int(deref(f.Height)),
			VCodec:   codec(f.VCodec),
			ACodec:   codec(f.ACodec),
			TBR:      deref(f.TBR),
			VBR:      deref(f.VBR),
		})
	}

	return info, nil
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}

	return *v
}

// codec maps a missing codec to "none", the way yt-dlp reports absent streams.
func codec(c string) string {
	if c == "" {
		return "none"
	}

	return c
}
