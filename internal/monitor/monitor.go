// Package monitor runs the background scheduler that launches auctions
// whose start time has arrived and closes auctions whose end time has
// passed.  It is the only component that triggers time-based
// transitions; everything it does goes through the auction service, so
// closures race safely with human-triggered ones.
package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/orehub/metalx/internal/model"
	"github.com/orehub/metalx/internal/utils"
)

// Scheduler is the slice of the auction service the monitor drives.
type Scheduler interface {
	DueForLaunch(ctx context.Context, now time.Time) ([]model.Auction, error)
	DueForClosure(ctx context.Context, until time.Time) ([]model.Auction, error)
	LaunchAuction(ctx context.Context, id uint64) (*model.Auction, error)
	CloseAuction(ctx context.Context, id uint64) (*model.Auction, error)
}

// Clock abstracts time for tests.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// Monitor polls for due auctions on a fixed interval.  The closure
// query looks ahead by the tolerance so an end falling between two
// ticks is already in the candidate set on the tick before it; with the
// default ten second interval this keeps closure skew well under the
// thirty seconds the marketplace promises suppliers.
type Monitor struct {
	scheduler Scheduler
	clock     Clock
	interval  time.Duration
	tolerance time.Duration

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}
}

// New builds a Monitor.  interval defaults to 10s and tolerance to 30s
// when non-positive; clock may be nil for the system clock.
func New(scheduler Scheduler, clock Clock, interval, tolerance time.Duration) *Monitor {
	if clock == nil {
		clock = systemClock{}
	}
	if interval <= 0 {
		interval = 10 * time.Second
	}
	if tolerance <= 0 {
		tolerance = 30 * time.Second
	}
	return &Monitor{scheduler: scheduler, clock: clock, interval: interval, tolerance: tolerance}
}

// Start launches the polling loop.  Calling Start on a running monitor
// is a no-op, so double starts never spawn a second loop.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return
	}
	m.running = true
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	go m.loop(ctx, m.stop, m.done)
	utils.Logger("monitor", "Start").
		WithField("interval", m.interval.String()).
		WithField("tolerance", m.tolerance.String()).
		Info("auction monitor started")
}

// Stop halts the loop and waits for the in-flight tick to finish.
// Stopping an already stopped monitor is a no-op.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	stop, done := m.stop, m.done
	m.mu.Unlock()

	close(stop)
	<-done
	utils.Logger("monitor", "Stop").Info("auction monitor stopped")
}

func (m *Monitor) loop(ctx context.Context, stop, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	m.Poll(ctx)
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Poll(ctx)
		}
	}
}

// Poll runs one scheduling pass: launch every due draft, then close
// every auction whose end falls within the tolerance window.  Errors
// are isolated per auction so one failing transition never blocks the
// rest of the batch; the failed auction is retried on the next tick
// because the due queries are driven purely by persisted state.
func (m *Monitor) Poll(ctx context.Context) {
	now := m.clock.Now()
	log := utils.Logger("monitor", "Poll")

	launches, err := m.scheduler.DueForLaunch(ctx, now)
	if err != nil {
		log.WithError(err).Error("querying auctions due for launch")
	}
	for _, a := range launches {
		if _, err := m.scheduler.LaunchAuction(ctx, a.ID); err != nil {
			log.WithError(err).WithField("auction", a.Number).Error("scheduled launch failed")
			continue
		}
		log.WithField("auction", a.Number).Info("auction launched on schedule")
	}

	closures, err := m.scheduler.DueForClosure(ctx, now.Add(m.tolerance))
	if err != nil {
		log.WithError(err).Error("querying auctions due for closure")
		return
	}
	for _, a := range closures {
		// The look-ahead keeps an end falling between two ticks from
		// being missed, but nothing closes before its scheduled end.
		if a.ScheduledEnd.After(now) {
			continue
		}
		if _, err := m.scheduler.CloseAuction(ctx, a.ID); err != nil {
			log.WithError(err).WithField("auction", a.Number).Error("scheduled closure failed")
			continue
		}
		log.WithField("auction", a.Number).Info("auction closed on schedule")
	}
}
