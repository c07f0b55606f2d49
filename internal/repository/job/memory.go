package job

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jgivc/mediafetch/internal/common"
	"github.com/jgivc/mediafetch/internal/entity"
)

type memoryRepository struct {
	mu   sync.RWMutex
	seq  int64
	jobs map[int64]*entity.Job
}

func NewMemoryRepository() *memoryRepository {
	return &memoryRepository{
		jobs: make(map[int64]*entity.Job),
	}
}

func (r *memoryRepository) Create(_ context.Context, job *entity.Job) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	job.ID = r.seq
	job.CreatedAt = time.Now().UTC()

	stored := *job
	r.jobs[job.ID] = &stored

	return job.ID, nil
}

func (r *memoryRepository) Get(_ context.Context, id int64) (*entity.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	job, ok := r.jobs[id]
	if !ok {
		return nil, common.ErrNotFound
	}

	copied := *job

	return &copied, nil
}

func (r *memoryRepository) UpdateStatus(_ context.Context, id int64, status entity.Status) error {
	return r.update(id, func(j *entity.Job) {
		j.Status = status
	})
}

func (r *memoryRepository) UpdateProgress(_ context.Context, id int64, status entity.Status, progress float64) error {
	return r.update(id, func(j *entity.Job) {
		j.Status = status
		j.Progress = progress
	})
}

func (r *memoryRepository) SetTitle(_ context.Context, id int64, title string) error {
	return r.update(id, func(j *entity.Job) {
		j.Title = title
	})
}

func (r *memoryRepository) update(id int64, fn func(j *entity.Job)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return common.ErrNotFound
	}

	fn(job)

	return nil
}

func (r *memoryRepository) Delete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.jobs[id]; !ok {
		return common.ErrNotFound
	}

	delete(r.jobs, id)

	return nil
}

func (r *memoryRepository) List(_ context.Context) ([]*entity.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	jobs := make([]*entity.Job, 0, len(r.jobs))
	for _, job := range r.jobs {
		copied := *job
		jobs = append(jobs, &copied)
	}

	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].ID > jobs[j].ID
	})

	return jobs, nil
}
