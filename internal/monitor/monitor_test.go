package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/orehub/metalx/internal/model"
)

type fakeScheduler struct {
	mu        sync.Mutex
	launch    []model.Auction
	closure   []model.Auction
	launched  []uint64
	closed    []uint64
	failClose map[uint64]error
}

func (f *fakeScheduler) DueForLaunch(_ context.Context, _ time.Time) ([]model.Auction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Auction{}, f.launch...), nil
}

func (f *fakeScheduler) DueForClosure(_ context.Context, _ time.Time) ([]model.Auction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Auction{}, f.closure...), nil
}

func (f *fakeScheduler) LaunchAuction(_ context.Context, id uint64) (*model.Auction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.launched = append(f.launched, id)
	for i := range f.launch {
		if f.launch[i].ID == id {
			f.launch = append(f.launch[:i], f.launch[i+1:]...)
			break
		}
	}
	return &model.Auction{ID: id, Status: model.StatusActive}, nil
}

func (f *fakeScheduler) CloseAuction(_ context.Context, id uint64) (*model.Auction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failClose[id]; ok {
		return nil, err
	}
	f.closed = append(f.closed, id)
	for i := range f.closure {
		if f.closure[i].ID == id {
			f.closure = append(f.closure[:i], f.closure[i+1:]...)
			break
		}
	}
	return &model.Auction{ID: id, Status: model.StatusClosed}, nil
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func TestPollLaunchesAndCloses(t *testing.T) {
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	sched := &fakeScheduler{
		launch: []model.Auction{
			{ID: 1, Number: "AU-20260901-001", Status: model.StatusDraft, ScheduledStart: now.Add(-time.Minute)},
		},
		closure: []model.Auction{
			{ID: 2, Number: "AU-20260901-002", Status: model.StatusActive, ScheduledEnd: now.Add(-time.Second)},
			// In the look-ahead window but not due yet: must not close.
			{ID: 3, Number: "AU-20260901-003", Status: model.StatusActive, ScheduledEnd: now.Add(15 * time.Second)},
		},
	}
	m := New(sched, fixedClock{now: now}, time.Second, 30*time.Second)

	m.Poll(context.Background())

	require.Equal(t, []uint64{1}, sched.launched)
	require.Equal(t, []uint64{2}, sched.closed)
}

func TestPollIsolatesFailures(t *testing.T) {
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	sched := &fakeScheduler{
		closure: []model.Auction{
			{ID: 10, Number: "AU-20260901-010", ScheduledEnd: now.Add(-time.Minute)},
			{ID: 11, Number: "AU-20260901-011", ScheduledEnd: now.Add(-time.Minute)},
			{ID: 12, Number: "AU-20260901-012", ScheduledEnd: now.Add(-time.Minute)},
		},
		failClose: map[uint64]error{11: errors.New("deadlock")},
	}
	m := New(sched, fixedClock{now: now}, time.Second, 30*time.Second)

	m.Poll(context.Background())
	require.Equal(t, []uint64{10, 12}, sched.closed)

	// The failed auction stays in the due set and succeeds next tick.
	delete(sched.failClose, 11)
	m.Poll(context.Background())
	require.Equal(t, []uint64{10, 12, 11}, sched.closed)
}

func TestStartStopIdempotent(t *testing.T) {
	sched := &fakeScheduler{}
	m := New(sched, fixedClock{now: time.Now().UTC()}, time.Hour, 30*time.Second)

	m.Start(context.Background())
	m.Start(context.Background()) // second start must not spawn a new loop
	m.Stop()
	m.Stop() // second stop must not panic or block

	// The loop ran its initial tick exactly once.
	sched.mu.Lock()
	defer sched.mu.Unlock()
	require.Empty(t, sched.closed)
	require.Empty(t, sched.launched)
}

func TestStopWaitsForLoopExit(t *testing.T) {
	sched := &fakeScheduler{}
	m := New(sched, fixedClock{now: time.Now().UTC()}, 5*time.Millisecond, 30*time.Second)

	m.Start(context.Background())
	time.Sleep(20 * time.Millisecond)
	done := make(chan struct{})
	go func() {
		m.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return")
	}
}
