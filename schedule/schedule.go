// Package schedule provides a cancellable background task that runs once
// after an initial delay and is re-run on a fixed interval for as long as it
// keeps failing. The timer source is injectable so tests can fire it by hand.
package schedule

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Func is the unit of work. Returning nil ends the task; an error schedules
// another attempt after the retry interval.
type Func func(ctx context.Context) error

// AfterFunc returns a channel that delivers once d has elapsed.
type AfterFunc func(d time.Duration) <-chan time.Time

// Task is a delayed, self-retrying background job.
type Task struct {
	name  string
	fn    Func
	delay time.Duration
	retry time.Duration
	after AfterFunc
	log   zerolog.Logger

	startOnce sync.Once
	stopOnce  sync.Once
	stop      chan struct{}
	done      chan struct{}
}

// Option configures a Task.
type Option func(*Task)

// WithDelay sets the delay before the first run.
func WithDelay(d time.Duration) Option {
	return func(t *Task) { t.delay = d }
}

// WithRetryInterval sets the delay between a failed run and the next one.
func WithRetryInterval(d time.Duration) Option {
	return func(t *Task) { t.retry = d }
}

// WithTimer replaces time.After as the timer source.
func WithTimer(after AfterFunc) Option {
	return func(t *Task) {
		if after != nil {
			t.after = after
		}
	}
}

// WithLogger sets the logger used for attempt and failure messages.
func WithLogger(log zerolog.Logger) Option {
	return func(t *Task) { t.log = log }
}

// New creates a Task. It does nothing until Start is called.
func New(name string, fn Func, opts ...Option) *Task {
	t := &Task{
		name:  name,
		fn:    fn,
		retry: 30 * time.Second,
		after: time.After,
		log:   zerolog.Nop(),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Start launches the task loop in its own goroutine. Calling Start more than
// once has no effect.
func (t *Task) Start(ctx context.Context) {
	t.startOnce.Do(func() { go t.loop(ctx) })
}

// Stop cancels any pending run and waits for the loop to exit. A run already
// in progress is not interrupted. Stop is safe to call before Start and more
// than once.
func (t *Task) Stop() {
	t.stopOnce.Do(func() { close(t.stop) })
	started := true
	t.startOnce.Do(func() {
		started = false
		close(t.done)
	})
	if started {
		<-t.done
	}
}

// Done is closed once the loop has exited, either after a successful run or
// after Stop or context cancellation.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

func (t *Task) loop(ctx context.Context) {
	defer close(t.done)

	wait := t.delay
	for attempt := 1; ; attempt++ {
		select {
		case <-t.stop:
			return
		case <-ctx.Done():
			return
		case <-t.after(wait):
		}

		t.log.Debug().Str("task", t.name).Int("attempt", attempt).Msg("running scheduled task")
		err := t.fn(ctx)
		if err == nil {
			return
		}
		t.log.Warn().Err(err).
			Str("task", t.name).
			Int("attempt", attempt).
			Dur("retry_in", t.retry).
			Msg("scheduled task failed")
		wait = t.retry
	}
}
