package watcher

import (
	"context"
	"time"
)

// repeatingTask runs cycle immediately and then interval after each cycle
// finishes, for as long as ctx is live and alive reports true. Cycles never
// overlap.
type repeatingTask struct {
	interval time.Duration
	alive    func() bool
	cycle    func(ctx context.Context)

	cancel context.CancelFunc
	done   chan struct{}
}

func startRepeating(ctx context.Context, interval time.Duration, alive func() bool, cycle func(ctx context.Context)) *repeatingTask {
	ctx, cancel := context.WithCancel(ctx)
	t := &repeatingTask{
		interval: interval,
		alive:    alive,
		cycle:    cycle,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go t.run(ctx)
	return t
}

func (t *repeatingTask) run(ctx context.Context) {
	defer close(t.done)

	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		if !t.alive() {
			return
		}
		t.cycle(ctx)
		timer.Reset(t.interval)
	}
}

// Stop deregisters the task. It does not wait for a running cycle.
func (t *repeatingTask) Stop() {
	t.cancel()
}

// Done is closed once the task has exited.
func (t *repeatingTask) Done() <-chan struct{} {
	return t.done
}
