package app

import (
	"time"

	"github.com/google/uuid"
)

// Operation describes one CLI invocation. Its ID tags every log line the run
// writes, so one command can be followed through the shared log file.
type Operation struct {
	ID        string
	Command   string
	Actor     string
	StartedAt time.Time
	Status    string // "success" or "error"
}

// NewOperation creates an operation for command run by actor.
func NewOperation(command, actor string) *Operation {
	now := time.Now().UTC()
	return &Operation{
		ID:        now.Format("20060102T150405Z") + "-" + uuid.NewString()[:8],
		Command:   command,
		Actor:     actor,
		StartedAt: now,
		Status:    "success",
	}
}

// Finish records the outcome of the run and returns err unchanged.
func (op *Operation) Finish(err error) error {
	if err != nil {
		op.Status = "error"
	}
	return err
}

// Elapsed returns the time since the operation started.
func (op *Operation) Elapsed() time.Duration {
	return time.Since(op.StartedAt)
}
