package usecase

import (
	"sync"

	"github.com/google/uuid"

	"github.com/shoprewrite/backend/internal/domain"
)

// JobRegistry tracks running optimizer jobs by id so they can be cancelled
// from another request
type JobRegistry struct {
	mu   sync.Mutex
	jobs map[string]*domain.Job
}

// NewJobRegistry creates an empty registry
func NewJobRegistry() *JobRegistry {
	return &JobRegistry{jobs: make(map[string]*domain.Job)}
}

// Start registers a new job with a fresh id
func (r *JobRegistry) Start() *domain.Job {
	job := domain.NewJob(uuid.NewString())

	r.mu.Lock()
	r.jobs[job.ID] = job
	r.mu.Unlock()

	return job
}

// Get returns a registered job
func (r *JobRegistry) Get(id string) (*domain.Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	return job, ok
}

// Cancel flags a running job for cancellation
func (r *JobRegistry) Cancel(id string) error {
	job, ok := r.Get(id)
	if !ok {
		return domain.ErrJobNotFound
	}
	job.Cancel()
	return nil
}

// Finish removes a job once its run ended
func (r *JobRegistry) Finish(id string) {
	r.mu.Lock()
	delete(r.jobs, id)
	r.mu.Unlock()
}

// Active returns the number of registered jobs
func (r *JobRegistry) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.jobs)
}
