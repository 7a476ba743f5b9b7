// Package poller waits on asynchronous vendor tasks until they reach a
// terminal state or a bounded number of attempts runs out.
package poller

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/Dexploarer/hyper-forge-sub006/internal/infra"
)

// Status is the vendor-reported state of a task.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusInProgress Status = "IN_PROGRESS"
	StatusSucceeded  Status = "SUCCEEDED"
	StatusFailed     Status = "FAILED"
	StatusCanceled   Status = "CANCELED"
	StatusExpired    Status = "EXPIRED"
)

// Failed reports whether the status is a failure-terminal state.
func (s Status) Failed() bool {
	return s == StatusFailed || s == StatusCanceled || s == StatusExpired
}

// Task is one status observation of a vendor task.
type Task[T any] struct {
	ID       string
	Status   Status
	Progress int
	Result   T
	Error    string
}

// StatusFunc fetches the current state of a task.
type StatusFunc[T any] func(ctx context.Context) (Task[T], error)

// Options bounds a polling loop.
type Options struct {
	Interval time.Duration
	Timeout  time.Duration
	// Label names the task in logs and errors, e.g. "image-to-3d".
	Label      string
	OnProgress func(progress int, status Status)
	// Sleep defaults to a context-aware timer; tests replace it.
	Sleep  func(ctx context.Context, d time.Duration) error
	Logger *infra.Logger
}

// MaxAttempts returns ceil(Timeout/Interval), never less than one.
func (o Options) MaxAttempts() int {
	if o.Interval <= 0 || o.Timeout <= 0 {
		return 1
	}
	n := int((o.Timeout + o.Interval - 1) / o.Interval)
	if n < 1 {
		n = 1
	}
	return n
}

// PollUntilTerminal sleeps Interval then calls fn, repeating until the task
// succeeds, fails, or MaxAttempts calls have been made. Errors from fn are
// logged and retried except on the final attempt, where they are returned.
func PollUntilTerminal[T any](ctx context.Context, fn StatusFunc[T], opts Options) (Task[T], error) {
	sleep := opts.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	logger := opts.Logger
	if logger == nil {
		discard := zerolog.New(io.Discard)
		logger = &discard
	}
	label := opts.Label
	if label == "" {
		label = "task"
	}

	maxAttempts := opts.MaxAttempts()
	started := time.Now()
	var last Task[T]
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := sleep(ctx, opts.Interval); err != nil {
			return last, err
		}
		task, err := fn(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return last, ctx.Err()
			}
			if attempt == maxAttempts {
				return last, fmt.Errorf("poller: %s status check: %w", label, err)
			}
			logger.Warn().Err(err).
				Str("task", label).
				Int("attempt", attempt).
				Msg("poller: status check failed, retrying")
			continue
		}
		last = task
		switch {
		case task.Status == StatusSucceeded:
			if opts.OnProgress != nil {
				opts.OnProgress(100, task.Status)
			}
			return task, nil
		case task.Status.Failed():
			return task, &TaskFailedError{TaskID: task.ID, Label: label, Status: task.Status, Message: task.Error}
		default:
			if opts.OnProgress != nil {
				opts.OnProgress(task.Progress, task.Status)
			}
			logger.Debug().
				Str("task", label).
				Str("task_id", task.ID).
				Str("status", string(task.Status)).
				Int("progress", task.Progress).
				Int("attempt", attempt).
				Msg("poller: task still running")
		}
	}
	return last, &TaskTimeoutError{
		Label:    label,
		Timeout:  opts.Timeout,
		Attempts: maxAttempts,
		Elapsed:  time.Since(started),
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
