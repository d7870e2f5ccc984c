package schedule

import (
	"context"
	"log"
	"sync"
	"time"
)

// RunFunc performs one full pipeline run. The context is cancelled when the
// loop is stopped; implementations may check it between steps but a run that
// is already executing is never killed by the loop itself.
type RunFunc func(ctx context.Context) error

// Loop repeatedly invokes a run, waiting a fixed delay after each run fully
// settles before the next one. Execution time never counts against the
// interval, so runs cannot overlap by construction.
type Loop struct {
	run RunFunc

	mu       sync.Mutex
	cancel   context.CancelFunc
	active   bool
	interval time.Duration
}

func New(run RunFunc) *Loop {
	return &Loop{run: run}
}

// Start begins the invoke-then-wait cycle, first cancelling any previous
// loop instance so a restart never leaves two timers armed. The first run is
// dispatched immediately.
func (l *Loop) Start(interval time.Duration) {
	l.mu.Lock()
	if l.cancel != nil {
		l.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	l.active = true
	l.interval = interval
	l.mu.Unlock()

	go l.cycle(ctx, interval)
}

// Stop cancels the pending delay and marks the loop inactive. An in-flight
// run is left to finish; terminating it is the supervisor's job.
func (l *Loop) Stop() {
	l.mu.Lock()
	if l.cancel != nil {
		l.cancel()
		l.cancel = nil
	}
	l.active = false
	l.interval = 0
	l.mu.Unlock()
}

// Status reports whether the loop is active and with what interval. Safe for
// concurrent use.
func (l *Loop) Status() (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active, l.interval
}

// cycle runs until cancelled: invoke, then arm the delay only after the run
// has settled. A failed run is logged, not fatal to scheduling.
func (l *Loop) cycle(ctx context.Context, interval time.Duration) {
	for {
		if ctx.Err() != nil {
			return
		}
		if err := l.run(ctx); err != nil {
			log.Printf("schedule: run failed: %v", err)
		}

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}
