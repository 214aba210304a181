package domain

import (
	"sync/atomic"
	"time"
)

// JobState enumerates the lifecycle of an optimization run
type JobState string

const (
	JobStateIdle      JobState = "idle"
	JobStateRunning   JobState = "running"
	JobStateCompleted JobState = "completed"
	JobStateCancelled JobState = "cancelled"
	JobStateFailed    JobState = "failed"
)

// Job is a single optimization run and its cooperative cancellation token.
// Cancellation is only observed at batch and product boundaries, so an
// in-flight API call always completes.
type Job struct {
	ID        string
	StartedAt time.Time

	cancelled atomic.Bool
	state     atomic.Value
}

// NewJob creates an idle job
func NewJob(id string) *Job {
	j := &Job{ID: id, StartedAt: time.Now()}
	j.state.Store(JobStateIdle)
	return j
}

// Cancel requests the run to stop at the next boundary
func (j *Job) Cancel() {
	j.cancelled.Store(true)
}

// Cancelled reports whether cancellation was requested
func (j *Job) Cancelled() bool {
	return j.cancelled.Load()
}

// State returns the current lifecycle state
func (j *Job) State() JobState {
	if s, ok := j.state.Load().(JobState); ok {
		return s
	}
	return JobStateIdle
}

// SetState moves the job to a new lifecycle state
func (j *Job) SetState(s JobState) {
	j.state.Store(s)
}

// Finished reports whether the job reached a terminal state
func (j *Job) Finished() bool {
	switch j.State() {
	case JobStateCompleted, JobStateCancelled, JobStateFailed:
		return true
	}
	return false
}
