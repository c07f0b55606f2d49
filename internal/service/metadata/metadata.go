package metadata

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/jgivc/mediafetch/internal/common"
	"github.com/jgivc/mediafetch/internal/entity"
)

const (
	SelectorBest  = "bestvideo+bestaudio/best"
	SelectorAudio = "bestaudio/best"

	labelBest  = "Best (auto)"
	labelAudio = "Audio only"

	codecNone = "none"
)

type Extractor interface {
	Extract(ctx context.Context, url string) (*entity.MediaInfo, error)
}

type extractResult struct {
	info *entity.MediaInfo
	err  error
}

type metadataService struct {
	cache     *cache
	extractor Extractor
	timeout   time.Duration
	log       *slog.Logger
}

func NewMetadataService(c *cache, extractor Extractor, timeout time.Duration, log *slog.Logger) *metadataService {
	return &metadataService{
		cache:     c,
		extractor: extractor,
		timeout:   timeout,
		log:       log.With(slog.String("service", "MetadataService")),
	}
}

// Resolve returns title, duration and selectable formats for rawURL. Extractor failures and
// timeouts degrade to a fallback result instead of an error; every outcome is cached.
// An error is returned only for an empty url or when ctx ends before the lookup does.
func (s *metadataService) Resolve(ctx context.Context, rawURL string) (*entity.MetadataResult, error) {
	if strings.TrimSpace(rawURL) == "" {
		return nil, fmt.Errorf("%w: url is required", common.ErrValidation)
	}

	if cached, ok := s.cache.Get(rawURL); ok {
		s.log.Debug("Cache hit", slog.String("url", rawURL))

		return &cached, nil
	}

	// A caller deadline must not be reported as an extraction timeout.
	extractCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	ch := make(chan extractResult, 1)

	go func() {
		info, err := s.extractor.Extract(extractCtx, rawURL)
		ch <- extractResult{info: info, err: err}
	}()

	var result entity.MetadataResult

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-extractCtx.Done():
		result = timeoutResult()
	case r := <-ch:
		switch {
		case r.err == nil && r.info != nil:
			result = resolvedResult(r.info)
		case errors.Is(r.err, context.DeadlineExceeded):
			result = timeoutResult()
		default:
			err := r.err
			if err == nil {
				err = errors.New("extractor returned no information")
			}
			s.log.Warn("Metadata extraction failed", slog.String("url", rawURL), slog.Any("error", err))
			result = fallbackResult(rawURL, err)
		}
	}

	if result.Source == entity.SourceTimeout {
		s.log.Warn("Metadata extraction timed out", slog.String("url", rawURL), slog.Duration("timeout", s.timeout))
	}

	s.cache.Put(rawURL, result)

	return &result, nil
}

func (s *metadataService) Sweep() int {
	return s.cache.Sweep()
}

func resolvedResult(info *entity.MediaInfo) entity.MetadataResult {
	return entity.MetadataResult{
		Title:           info.Title,
		DurationDisplay: formatDuration(info.Duration),
		Formats:         normalizeFormats(info.Formats),
		ThumbnailURL:    info.Thumbnail,
		Source:          entity.SourceResolved,
	}
}

func fallbackResult(rawURL string, err error) entity.MetadataResult {
	return entity.MetadataResult{
		Title:   fallbackTitle(rawURL),
		Formats: []entity.FormatOption{bestOption(), audioOption()},
		Source:  entity.SourceFallback,
		Error:   err.Error(),
	}
}

func timeoutResult() entity.MetadataResult {
	return entity.MetadataResult{
		Formats: []entity.FormatOption{bestOption()},
		Source:  entity.SourceTimeout,
		Error:   "Metadata extraction timed out",
	}
}

func bestOption() entity.FormatOption {
	return entity.FormatOption{Label: labelBest, Selector: SelectorBest}
}

func audioOption() entity.FormatOption {
	h := 0

	return entity.FormatOption{Label: labelAudio, Selector: SelectorAudio, Height: &h}
}

func bitrate(f entity.MediaFormat) float64 {
	if f.TBR > 0 {
		return f.TBR
	}

	return f.VBR
}

func hasCodec(codec string) bool {
	return codec != "" && codec != codecNone
}

// normalizeFormats keeps one option per video height, highest bitrate wins, sorted from
// the tallest down between the automatic option and an optional audio-only option.
func normalizeFormats(formats []entity.MediaFormat) []entity.FormatOption {
	best := map[int]float64{}
	audioOnly := false

	for _, f := range formats {
		if hasCodec(f.ACodec) && !hasCodec(f.VCodec) {
			audioOnly = true
		}

		if f.Height <= 0 || !hasCodec(f.VCodec) {
			continue
		}

		if rate, ok := best[f.Height]; !ok || bitrate(f) > rate {
			best[f.Height] = bitrate(f)
		}
	}

	heights := make([]int, 0, len(best))
	for h := range best {
		heights = append(heights, h)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(heights)))

	options := make([]entity.FormatOption, 0, len(heights)+2)
	options = append(options, bestOption())

	for _, h := range heights {
		height := h
		label := fmt.Sprintf("%dp", h)
		if h >= 2160 {
			label = fmt.Sprintf("4K (%dp)", h)
		}

		options = append(options, entity.FormatOption{
			Label:    label,
			Selector: fmt.Sprintf("bestvideo[height<=%d]+bestaudio/best[height<=%d]", h, h),
			Height:   &height,
		})
	}

	if audioOnly {
		options = append(options, audioOption())
	}

	return options
}

func fallbackTitle(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}

	var last string
	for _, seg := range strings.Split(u.Path, "/") {
		if seg != "" {
			last = seg
		}
	}

	if i := strings.LastIndex(last, "."); i >= 0 {
		last = last[:i]
	}

	return strings.TrimSpace(strings.NewReplacer("_", " ", "-", " ").Replace(last))
}

func formatDuration(seconds float64) string {
	if seconds <= 0 {
		return ""
	}

	total := int(seconds)
	h, m, s := total/3600, total%3600/60, total%60

	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}

	return fmt.Sprintf("%d:%02d", m, s)
}
