package workers

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeDrainer struct {
	mu      sync.Mutex
	batches []int
	calls   int
}

func (f *fakeDrainer) Drain(ctx context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.batches) == 0 {
		return 0, nil
	}
	n := f.batches[0]
	f.batches = f.batches[1:]
	return n, nil
}

func (f *fakeDrainer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeSweeper struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeSweeper) Sweep(ctx context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return 0, errors.New("locked")
}

func TestRunDeliveriesDrainsUntilEmpty(t *testing.T) {
	d := &fakeDrainer{batches: []int{50, 50, 3}}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		RunDeliveries(ctx, d, time.Hour)
		close(done)
	}()

	assert.Eventually(t, func() bool { return d.count() >= 4 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
	assert.Equal(t, 4, d.count())
}

func TestRunSweepsKeepsGoingAfterErrors(t *testing.T) {
	s := &fakeSweeper{}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		RunSweeps(ctx, s, 10*time.Millisecond)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.calls >= 2
	}, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}
