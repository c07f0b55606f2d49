package artifact

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/jgivc/mediafetch/internal/common"
	"github.com/jgivc/mediafetch/internal/util"
	"github.com/spf13/afero"
)

const outputExtTemplate = ".%(ext)s"

var skippedExtensions = map[string]struct{}{
	".part": {},
	".ytdl": {},
}

// ownSuffix matches what the extractor appends to a stem: an optional format id,
// one extension and an optional partial download marker.
var ownSuffix = regexp.MustCompile(`^(f[0-9A-Za-z_-]+\.)?[0-9A-Za-z]+(\.part(-Frag[0-9]+)?|\.ytdl|\.temp)?$`)

type artifactStorage struct {
	fs  afero.Fs
	dir string
	log *slog.Logger
}

func NewArtifactStorage(dir string, log *slog.Logger) *artifactStorage {
	return NewArtifactStorageWithFS(afero.NewOsFs(), dir, log)
}

func NewArtifactStorageWithFS(fs afero.Fs, dir string, log *slog.Logger) *artifactStorage {
	return &artifactStorage{
		fs:  fs,
		dir: dir,
		log: log.With(slog.String("item", "ArtifactStorage")),
	}
}

func (s *artifactStorage) Dir() string {
	return s.dir
}

func (s *artifactStorage) EnsureDir() error {
	if err := s.fs.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("cannot create download dir %s: %w", s.dir, err)
	}

	return nil
}

// Stem is the sanitized base name every file of a job starts with.
func Stem(id int64, filename string) string {
	if safe := util.SanitizeFilename(filename); safe != "" {
		return safe
	}

	return "video_" + strconv.FormatInt(id, 10)
}

// OutputTemplate is the extractor output path for a job, extension left to the extractor.
func (s *artifactStorage) OutputTemplate(stem string) string {
	return filepath.Join(s.dir, stem+outputExtTemplate)
}

// Find returns the completed artifact for a job. The sanitized stem is tried first,
// then the name as it was submitted. Partial download files are never returned.
func (s *artifactStorage) Find(id int64, filename string) (string, error) {
	for _, stem := range []string{Stem(id, filename), filename} {
		if stem == "" {
			continue
		}

		matches, err := s.glob(stem)
		if err != nil {
			return "", err
		}

		for _, path := range matches {
			if isPartial(path) {
				continue
			}

			return path, nil
		}
	}

	return "", common.ErrArtifactNotFound
}

func (s *artifactStorage) Open(path string) (afero.File, error) {
	f, err := s.fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open %s: %w", path, err)
	}

	return f, nil
}

// RemoveAll deletes every file of a job, complete or partial. It returns the number
// of files removed; a file that cannot be removed is logged and skipped.
func (s *artifactStorage) RemoveAll(stem string) (int, error) {
	matches, err := s.glob(stem)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, path := range matches {
		if err := s.fs.Remove(path); err != nil {
			s.log.Warn("Cannot remove file", slog.String("path", path), slog.Any("error", err))

			continue
		}
		removed++
	}

	return removed, nil
}

func (s *artifactStorage) glob(stem string) ([]string, error) {
	pattern := filepath.Join(s.dir, escapeGlob(stem)+".*")

	matches, err := afero.Glob(s.fs, pattern)
	if err != nil {
		return nil, fmt.Errorf("cannot glob %s: %w", pattern, err)
	}

	// <stem>.* also matches the files of a job whose stem is "<stem>.<more>"
	owned := matches[:0]
	for _, path := range matches {
		if ownSuffix.MatchString(strings.TrimPrefix(filepath.Base(path), stem+".")) {
			owned = append(owned, path)
		}
	}

	return owned, nil
}

func isPartial(path string) bool {
	ext := filepath.Ext(path)
	if _, skip := skippedExtensions[ext]; skip {
		return true
	}

	return strings.HasPrefix(ext, ".part-Frag")
}

func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteRune('\\')
		}
		b.WriteRune(r)
	}

	return b.String()
}
