// Package loop provides the serialized event loop that a device session runs
// on. Store callbacks, debounce firings and user commands are all dispatched
// onto one loop, so session state never needs internal locking.
package loop

import (
	"errors"
	"sync"

	nuts "github.com/vaudience/go-nuts"
)

// ErrStopped is returned when a task is submitted to a stopped loop.
var ErrStopped = errors.New("event loop stopped")

// Loop executes submitted tasks one at a time, in submission order.
type Loop struct {
	tasks   chan func()
	done    chan struct{}
	stopped chan struct{}
	once    sync.Once
}

// New creates a started loop.
func New() *Loop {
	l := &Loop{
		tasks:   make(chan func(), 256),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go l.run()
	return l
}

func (l *Loop) run() {
	defer close(l.stopped)
	for {
		select {
		case task := <-l.tasks:
			l.safeRun(task)
		case <-l.done:
			// Drain what was already queued before the stop.
			for {
				select {
				case task := <-l.tasks:
					l.safeRun(task)
				default:
					return
				}
			}
		}
	}
}

// safeRun keeps a panicking task from killing the loop. No error raised by a
// task is allowed to unwind past the task itself.
func (l *Loop) safeRun(task func()) {
	defer func() {
		if r := recover(); r != nil {
			nuts.L.Errorf("[Loop] recovered from task panic: %v", r)
		}
	}()
	task()
}

// Dispatch queues a task for execution on the loop. It never blocks the
// caller unless the queue is full.
func (l *Loop) Dispatch(task func()) error {
	select {
	case <-l.done:
		return ErrStopped
	default:
	}
	select {
	case l.tasks <- task:
		return nil
	case <-l.done:
		return ErrStopped
	}
}

// DispatchWait queues a task and blocks until it has run. Used by callers
// outside the loop (HTTP handlers) that need a consistent state snapshot.
func (l *Loop) DispatchWait(task func()) error {
	ran := make(chan struct{})
	err := l.Dispatch(func() {
		defer close(ran)
		task()
	})
	if err != nil {
		return err
	}
	select {
	case <-ran:
		return nil
	case <-l.stopped:
		return ErrStopped
	}
}

// Stop shuts the loop down after draining queued tasks. Idempotent.
func (l *Loop) Stop() {
	l.once.Do(func() { close(l.done) })
	<-l.stopped
}
