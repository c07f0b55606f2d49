package page

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
)

const (
	serviceName = "page"
)

//go:embed landing.md
var landingPage []byte

type PageRenderer interface {
	Render(src []byte, counts map[string]int) (string, error)
}

type Counter interface {
	GetCounters(ctx context.Context) (map[string]int, error)
}

type pageService struct {
	renderer PageRenderer
	counter  Counter
	log      *slog.Logger
}

func NewPageService(renderer PageRenderer, counter Counter, log *slog.Logger) *pageService {
	return &pageService{
		renderer: renderer,
		counter:  counter,
		log:      log.With(slog.String("service", serviceName)),
	}
}

func (p *pageService) GetPage(ctx context.Context) (string, error) {
	counts, err := p.counter.GetCounters(ctx)
	if err != nil {
		return "", fmt.Errorf("cannot get page counters: %w", err)
	}

	content, err := p.renderer.Render(landingPage, counts)
	if err != nil {
		p.log.Error("Cannot render page", slog.Any("error", err))

		return "", fmt.Errorf("cannot render page: %w", err)
	}

	return content, nil
}
