package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/jgivc/mediafetch/internal/common"
	"github.com/jgivc/mediafetch/internal/entity"
	"github.com/redis/go-redis/v9"
)

const (
	KeyJob      = "job"  // HASH. job:{id} -> fields of entity.Job
	KeyJobs     = "jobs" // ZSET. member {id}, score {id}. Newest first via ZREVRANGE.
	KeySequence = "seq"  // STRING. jobs:seq, INCR source of ids.

	KeySeparator = ":"

	maxUpdateRetries = 3

	fieldURL       = "url"
	fieldFilename  = "filename"
	fieldTitle     = "title"
	fieldQuality   = "quality"
	fieldStatus    = "status"
	fieldProgress  = "progress"
	fieldCreatedAt = "created_at"
)

type redisRepository struct {
	cl  *redis.Client
	log *slog.Logger
}

func NewRedisRepository(cl *redis.Client, log *slog.Logger) *redisRepository {
	return &redisRepository{
		cl:  cl,
		log: log.With(slog.String("item", "RedisJobRepository")),
	}
}

func (r *redisRepository) Create(ctx context.Context, job *entity.Job) (int64, error) {
	id, err := r.cl.Incr(ctx, getKey(KeyJobs, KeySequence)).Result()
	if err != nil {
		return 0, fmt.Errorf("cannot allocate job id: %w", err)
	}

	job.ID = id
	job.CreatedAt = time.Now().UTC()

	pipe := r.cl.TxPipeline()
	pipe.HSet(ctx, jobKey(id), toHash(job))
	pipe.ZAdd(ctx, KeyJobs, redis.Z{Score: float64(id), Member: id})

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("cannot save job %d: %w", id, err)
	}

	return id, nil
}

func (r *redisRepository) Get(ctx context.Context, id int64) (*entity.Job, error) {
	fields, err := r.cl.HGetAll(ctx, jobKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("cannot get job %d: %w", id, err)
	}

	if len(fields) < 1 {
		return nil, common.ErrNotFound
	}

	return fromHash(id, fields)
}

func (r *redisRepository) UpdateStatus(ctx context.Context, id int64, status entity.Status) error {
	return r.update(ctx, id, map[string]any{fieldStatus: string(status)})
}

func (r *redisRepository) UpdateProgress(ctx context.Context, id int64, status entity.Status, progress float64) error {
	return r.update(ctx, id, map[string]any{
		fieldStatus:   string(status),
		fieldProgress: strconv.FormatFloat(progress, 'f', -1, 64),
	})
}

func (r *redisRepository) SetTitle(ctx context.Context, id int64, title string) error {
	return r.update(ctx, id, map[string]any{fieldTitle: title})
}

// update writes values only while job:<id> exists. The key is watched so a Delete
// landing between the check and the write aborts the transaction instead of
// leaving a partial hash behind.
func (r *redisRepository) update(ctx context.Context, id int64, values map[string]any) error {
	key := jobKey(id)

	txf := func(tx *redis.Tx) error {
		exists, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return fmt.Errorf("cannot check job %d: %w", id, err)
		}

		if exists == 0 {
			return common.ErrNotFound
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, values)

			return nil
		})

		return err
	}

	for i := 0; i < maxUpdateRetries; i++ {
		err := r.cl.Watch(ctx, txf, key)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, redis.TxFailedErr):
			continue
		case errors.Is(err, common.ErrNotFound):
			return err
		default:
			return fmt.Errorf("cannot update job %d: %w", id, err)
		}
	}

	return fmt.Errorf("cannot update job %d: too many concurrent writes", id)
}

func (r *redisRepository) Delete(ctx context.Context, id int64) error {
	pipe := r.cl.TxPipeline()
	del := pipe.Del(ctx, jobKey(id))
	pipe.ZRem(ctx, KeyJobs, id)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cannot delete job %d: %w", id, err)
	}

	if del.Val() == 0 {
		return common.ErrNotFound
	}

	return nil
}

func (r *redisRepository) List(ctx context.Context) ([]*entity.Job, error) {
	members, err := r.cl.ZRevRange(ctx, KeyJobs, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("cannot list jobs: %w", err)
	}

	if len(members) < 1 {
		return []*entity.Job{}, nil
	}

	ids := make([]int64, 0, len(members))
	pipe := r.cl.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, 0, len(members))

	for _, member := range members {
		id, err := strconv.ParseInt(member, 10, 64)
		if err != nil {
			r.log.Error("Bad job id in index", slog.String("member", member), slog.Any("error", err))

			continue
		}

		ids = append(ids, id)
		cmds = append(cmds, pipe.HGetAll(ctx, jobKey(id)))
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("cannot exec pipe: %w", err)
	}

	jobs := make([]*entity.Job, 0, len(cmds))
	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) < 1 {
			// index entry without a row, deleted concurrently
			continue
		}

		job, err := fromHash(ids[i], fields)
		if err != nil {
			r.log.Error("Cannot decode job", slog.Int64("id", ids[i]), slog.Any("error", err))

			continue
		}

		jobs = append(jobs, job)
	}

	return jobs, nil
}

func toHash(job *entity.Job) map[string]any {
	return map[string]any{
		fieldURL:       job.URL,
		fieldFilename:  job.Filename,
		fieldTitle:     job.Title,
		fieldQuality:   job.Quality,
		fieldStatus:    string(job.Status),
		fieldProgress:  strconv.FormatFloat(job.Progress, 'f', -1, 64),
		fieldCreatedAt: job.CreatedAt.Format(time.RFC3339Nano),
	}
}

func fromHash(id int64, fields map[string]string) (*entity.Job, error) {
	job := &entity.Job{
		ID:       id,
		URL:      fields[fieldURL],
		Filename: fields[fieldFilename],
		Title:    fields[fieldTitle],
		Quality:  fields[fieldQuality],
		Status:   entity.Status(fields[fieldStatus]),
	}

	if v := fields[fieldProgress]; v != "" {
		progress, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("bad progress %q: %w", v, err)
		}
		job.Progress = progress
	}

	if v := fields[fieldCreatedAt]; v != "" {
		createdAt, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return nil, fmt.Errorf("bad created_at %q: %w", v, err)
		}
		job.CreatedAt = createdAt
	}

	if !job.Status.IsKnown() {
		return nil, errors.New("unknown status " + string(job.Status))
	}

	return job, nil
}

func jobKey(id int64) string {
	return getKey(KeyJob, strconv.FormatInt(id, 10))
}

func getKey(keys ...string) string {
	return strings.Join(keys, KeySeparator)
}
