package dump

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/jgivc/mediafetch/internal/entity"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v2"
)

type JobLister interface {
	List(ctx context.Context) ([]*entity.Job, error)
}

type Snapshot struct {
	DumpedAt time.Time     `yaml:"dumped_at"`
	Count    int           `yaml:"count"`
	Jobs     []*entity.Job `yaml:"jobs"`
}

type DumpService struct {
	repo JobLister
	fs   afero.Fs
	now  func() time.Time
	log  *slog.Logger
}

func NewDumpService(repo JobLister, fs afero.Fs, log *slog.Logger) *DumpService {
	return &DumpService{
		repo: repo,
		fs:   fs,
		now:  time.Now,
		log:  log.With(slog.String("item", "DumpService")),
	}
}

// Dump writes every job as YAML to fileName, replacing the previous snapshot.
func (d *DumpService) Dump(ctx context.Context, fileName string) error {
	jobs, err := d.repo.List(ctx)
	if err != nil {
		d.log.Error("Cannot list jobs", slog.Any("error", err))

		return fmt.Errorf("cannot list jobs: %w", err)
	}

	data, err := yaml.Marshal(&Snapshot{DumpedAt: d.now().UTC(), Count: len(jobs), Jobs: jobs})
	if err != nil {
		return fmt.Errorf("cannot marshal jobs: %w", err)
	}

	if err := d.fs.MkdirAll(filepath.Dir(fileName), 0o755); err != nil {
		return fmt.Errorf("cannot create dump dir: %w", err)
	}

	tmp := fileName + ".tmp"
	if err := afero.WriteFile(d.fs, tmp, data, 0o644); err != nil {
		return fmt.Errorf("cannot write dump: %w", err)
	}

	if err := d.fs.Rename(tmp, fileName); err != nil {
		return fmt.Errorf("cannot replace dump: %w", err)
	}

	d.log.Info("Jobs dumped", slog.String("file", fileName), slog.Int("count", len(jobs)))

	return nil
}
