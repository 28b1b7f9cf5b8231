package app

import (
	"time"

	"custody-go/internal/custody"
)

// Operation tracks one CLI invocation. Its ID tags every log line the
// invocation writes.
type Operation struct {
	ID        string
	Name      string
	StartedAt time.Time
	Status    string // "success" or "error"
	Err       error
}

// NewOperation starts an operation named after the CLI command being run.
func NewOperation(name string, ids custody.IDGenerator, clock custody.Clock) *Operation {
	return &Operation{
		ID:        ids.New(),
		Name:      name,
		StartedAt: clock.Now(),
		Status:    "success",
	}
}

// Record notes err as the operation's outcome. A nil err leaves it unchanged.
func (op *Operation) Record(err error) error {
	if err != nil {
		op.Status = "error"
		op.Err = err
	}
	return err
}

// Failed reports whether any step of the operation failed.
func (op *Operation) Failed() bool {
	return op.Status == "error"
}
