package domain

import "fmt"

// JobStatus represents the state of a remote extraction job.
type JobStatus string

const (
	StatusPending    JobStatus = "pending"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
)

// IsTerminal reports whether no further transitions can occur.
func (s JobStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

func (s JobStatus) rank() int {
	switch s {
	case StatusProcessing:
		return 1
	case StatusCompleted, StatusFailed:
		return 2
	default:
		return 0
	}
}

// ExtractedData is the normalized result of an extraction.
type ExtractedData struct {
	Title    string   `json:"title"`
	Summary  string   `json:"summary"`
	Keywords []string `json:"keywords"`
}

// Job represents an extraction job submitted to the remote service.
// ID is empty when the service answered synchronously.
type Job struct {
	ID     string
	URL    string
	Status JobStatus
	Result *ExtractedData
	Error  string
}

// Advance applies a polling observation to the job.
// A job never moves back to an earlier state and never leaves a terminal one.
func (j *Job) Advance(obs *Job) error {
	if j.Status.IsTerminal() || obs.Status.rank() < j.Status.rank() {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, obs.Status)
	}
	j.Status = obs.Status
	j.Result = obs.Result
	j.Error = obs.Error
	return nil
}
