// internal/process/state.go
package process

import "time"

// JobStatus represents the lifecycle state of a conversion job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
)

// Job is the audit record the runner keeps for one conversion job. It feeds
// the status log and the published completion event.
type Job struct {
	ID       string
	Kind     string
	Trigger  string
	Status   JobStatus
	Error    string
	Started  time.Time
	Finished time.Time
}

func NewJob(kind, id, trigger string) *Job {
	return &Job{
		ID:      id,
		Kind:    kind,
		Trigger: trigger,
		Status:  JobStatusPending,
	}
}

func (j *Job) MarkRunning(at time.Time) {
	j.Status = JobStatusRunning
	j.Started = at
}

func (j *Job) MarkSucceeded(at time.Time) {
	j.Status = JobStatusSucceeded
	j.Finished = at
}

func (j *Job) MarkFailed(at time.Time, err error) {
	j.Status = JobStatusFailed
	j.Finished = at
	if err != nil {
		j.Error = err.Error()
	}
}

// Duration is the wall-clock time between start and finish, zero while the
// job is still running.
func (j *Job) Duration() time.Duration {
	if j.Started.IsZero() || j.Finished.IsZero() {
		return 0
	}
	return j.Finished.Sub(j.Started)
}
