package job

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/jgivc/mediafetch/internal/common"
	"github.com/jgivc/mediafetch/internal/entity"
)

const schema = `
CREATE TABLE IF NOT EXISTS downloads (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	url        TEXT NOT NULL,
	filename   TEXT NOT NULL,
	title      TEXT NOT NULL DEFAULT '',
	quality    TEXT NOT NULL DEFAULT '',
	status     TEXT NOT NULL,
	progress   REAL NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL
);
`

type sqliteRepository struct {
	db  *sql.DB
	log *slog.Logger
}

func NewSQLiteRepository(path string, log *slog.Logger) (*sqliteRepository, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("cannot create database dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{`PRAGMA journal_mode=WAL;`, `PRAGMA busy_timeout=5000;`} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()

			return nil, fmt.Errorf("cannot set pragma: %w", err)
		}
	}

	r := &sqliteRepository{
		db:  db,
		log: log.With(slog.String("item", "SQLiteJobRepository")),
	}

	if err := r.migrate(context.Background()); err != nil {
		db.Close()

		return nil, err
	}

	return r, nil
}

func (r *sqliteRepository) Close() error {
	return r.db.Close()
}

// migrate creates the table and adds columns that older databases lack.
func (r *sqliteRepository) migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("cannot create schema: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, "PRAGMA table_info(downloads)")
	if err != nil {
		return fmt.Errorf("cannot read table info: %w", err)
	}
	defer rows.Close()

	columns := map[string]struct{}{}
	for rows.Next() {
		var (
			cid          int
			name, typ    string
			notNull, pk  int
			defaultValue sql.NullString
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &defaultValue, &pk); err != nil {
			return fmt.Errorf("cannot scan table info: %w", err)
		}
		columns[name] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	need := map[string]string{
		"title":   "ALTER TABLE downloads ADD COLUMN title TEXT NOT NULL DEFAULT ''",
		"quality": "ALTER TABLE downloads ADD COLUMN quality TEXT NOT NULL DEFAULT ''",
	}
	for name, ddl := range need {
		if _, ok := columns[name]; ok {
			continue
		}

		r.log.Info("Add column", slog.String("column", name))
		if _, err := r.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("cannot add column %s: %w", name, err)
		}
	}

	return nil
}

func (r *sqliteRepository) Create(ctx context.Context, job *entity.Job) (int64, error) {
	job.CreatedAt = time.Now().UTC()

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO downloads (url, filename, title, quality, status, progress, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		job.URL, job.Filename, job.Title, job.Quality, string(job.Status), job.Progress, job.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("cannot insert job: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("cannot get job id: %w", err)
	}

	job.ID = id

	return id, nil
}

func (r *sqliteRepository) Get(ctx context.Context, id int64) (*entity.Job, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, url, filename, title, quality, status, progress, created_at FROM downloads WHERE id = ?`, id)

	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}

		return nil, fmt.Errorf("cannot get job %d: %w", id, err)
	}

	return job, nil
}

func (r *sqliteRepository) UpdateStatus(ctx context.Context, id int64, status entity.Status) error {
	return r.exec(ctx, id, `UPDATE downloads SET status = ? WHERE id = ?`, string(status), id)
}

func (r *sqliteRepository) UpdateProgress(ctx context.Context, id int64, status entity.Status, progress float64) error {
	return r.exec(ctx, id, `UPDATE downloads SET status = ?, progress = ? WHERE id = ?`, string(status), progress, id)
}

func (r *sqliteRepository) SetTitle(ctx context.Context, id int64, title string) error {
	return r.exec(ctx, id, `UPDATE downloads SET title = ? WHERE id = ?`, title, id)
}

func (r *sqliteRepository) Delete(ctx context.Context, id int64) error {
	return r.exec(ctx, id, `DELETE FROM downloads WHERE id = ?`, id)
}

func (r *sqliteRepository) exec(ctx context.Context, id int64, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("cannot write job %d: %w", id, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("cannot write job %d: %w", id, err)
	}

	if n == 0 {
		return common.ErrNotFound
	}

	return nil
}

func (r *sqliteRepository) List(ctx context.Context) ([]*entity.Job, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, url, filename, title, quality, status, progress, created_at FROM downloads ORDER BY id DESC`)
	if err != nil {
		return nil, fmt.Errorf("cannot list jobs: %w", err)
	}
	defer rows.Close()

	jobs := []*entity.Job{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("cannot scan job: %w", err)
		}
		jobs = append(jobs, job)
	}

	return jobs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(s scanner) (*entity.Job, error) {
	var (
		job       entity.Job
		status    string
		createdAt string
	)

	if err := s.Scan(&job.ID, &job.URL, &job.Filename, &job.Title, &job.Quality, &status, &job.Progress, &createdAt); err != nil {
		return nil, err
	}

	job.Status = entity.Status(status)

	t, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("bad created_at %q: %w", createdAt, err)
	}
	job.CreatedAt = t

	return &job, nil
}
