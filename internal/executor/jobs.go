package executor

import (
	"fmt"
	"sync"

	"github.com/roach88/microsim/internal/population"
)

// SerializedJobs funnels every job-registry access from parallel tasks through
// one mutex. Removing a job and firing its worker happen under the same lock,
// so no task ever observes a person pointing at a deleted job.
type SerializedJobs struct {
	mu    sync.Mutex
	store population.Store
}

// NewSerializedJobs wraps s. While tasks run, nothing else may use s.
func NewSerializedJobs(s population.Store) *SerializedJobs {
	return &SerializedJobs{store: s}
}

// RemoveJob deletes the job and unassigns its worker.
// Returns the fired person id (0 for a vacant job) and whether the job existed.
func (j *SerializedJobs) RemoveJob(id int) (firedID int, removed bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return population.RemoveJobAndFire(j.store, id)
}

// AddJob inserts a vacant job. The id must have been reserved beforehand
// (population.Store.ReserveJobIDs) so that ids do not depend on task timing.
func (j *SerializedJobs) AddJob(job *population.Job) error {
	if job.ID == 0 {
		return fmt.Errorf("add job: id must be reserved before dispatch")
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.store.AddJob(job)
}

// Job returns a copy of the job record.
func (j *SerializedJobs) Job(id int) (population.Job, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	job, ok := j.store.Job(id)
	if !ok {
		return population.Job{}, false
	}
	return *job, true
}
