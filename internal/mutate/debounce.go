package mutate

import (
	"sync"
	"time"
)

// Debouncer collapses bursts of mutations into one consolidated refresh: a
// single shared timer, reset on each poke, fires the refresh once per quiet
// period.
type Debouncer struct {
	quiet time.Duration
	fn    func()

	mu    sync.Mutex
	timer *time.Timer
}

func NewDebouncer(quiet time.Duration, fn func()) *Debouncer {
	return &Debouncer{quiet: quiet, fn: fn}
}

// Poke schedules the refresh after the quiet period, resetting any pending
// schedule. N pokes within a quiet period produce one refresh.
func (d *Debouncer) Poke() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.quiet, d.fn)
}

// Stop cancels any pending refresh.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
