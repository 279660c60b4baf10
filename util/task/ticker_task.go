package task

import (
	"time"

	"github.com/golang/glog"
)

type Runner interface {
	Run() error
}

type funcRunner struct {
	run func() error
}

func (r funcRunner) Run() error {
	return r.run()
}

// TickerTask runs a Runner periodically. An optional start delay lets callers align the
// first run with an external boundary, such as the next day rollover for budget resets.
type TickerTask struct {
	interval time.Duration
	delay    time.Duration
	runner   Runner
	done     chan struct{}
}

func NewTickerTask(interval time.Duration, runner Runner) *TickerTask {
	return &TickerTask{
		interval: interval,
		runner:   runner,
		done:     make(chan struct{}),
	}
}

func NewTickerTaskFromFunc(interval time.Duration, runner func() error) *TickerTask {
	return NewTickerTask(interval, funcRunner{run: runner})
}

// NewDelayedTickerTask defers the first run by delay and then runs at the given interval.
// Unlike NewTickerTask, the runner is not invoked at Start time.
func NewDelayedTickerTask(delay time.Duration, interval time.Duration, runner Runner) *TickerTask {
	return &TickerTask{
		interval: interval,
		delay:    delay,
		runner:   runner,
		done:     make(chan struct{}),
	}
}

func NewDelayedTickerTaskFromFunc(delay time.Duration, interval time.Duration, runner func() error) *TickerTask {
	return NewDelayedTickerTask(delay, interval, funcRunner{run: runner})
}

// Start runs the task immediately, unless a start delay was requested, and then
// schedules the task to run periodically if a positive interval has been specified.
func (t *TickerTask) Start() {
	if t.delay > 0 {
		go t.runDelayed()
		return
	}

	t.runOnce()

	if t.interval > 0 {
		go t.runRecurring()
	}
}

// Stop stops the periodic task but the task runner maintains state.
func (t *TickerTask) Stop() {
	close(t.done)
}

// Done exports readonly done channel.
func (t *TickerTask) Done() <-chan struct{} {
	return t.done
}

func (t *TickerTask) runDelayed() {
	timer := time.NewTimer(t.delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		t.runOnce()
	case <-t.done:
		return
	}

	if t.interval > 0 {
		t.runRecurring()
	}
}

// runRecurring creates a ticker that ticks at the specified interval. On each tick,
// the task is executed.
func (t *TickerTask) runRecurring() {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			t.runOnce()
		case <-t.done:
			return
		}
	}
}

func (t *TickerTask) runOnce() {
	if err := t.runner.Run(); err != nil {
		glog.Errorf("scheduled task failed: %v", err)
	}
}
