package poller

import (
	"fmt"
	"time"
)

// TaskFailedError is returned when the vendor reports a failure-terminal status.
type TaskFailedError struct {
	TaskID  string
	Label   string
	Status  Status
	Message string
}

func (e *TaskFailedError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "no reason given"
	}
	return fmt.Sprintf("%s task %s %s: %s", e.Label, e.TaskID, e.Status, msg)
}

// TaskTimeoutError is returned when the attempt budget runs out before the
// task reaches a terminal state.
type TaskTimeoutError struct {
	Label    string
	Timeout  time.Duration
	Attempts int
	Elapsed  time.Duration
}

func (e *TaskTimeoutError) Error() string {
	return fmt.Sprintf("%s task timed out after %s (%d attempts, timeout %s)",
		e.Label, e.Elapsed.Round(time.Millisecond), e.Attempts, e.Timeout)
}
