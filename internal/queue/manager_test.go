package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/panel-kit/ticket-core/internal/config"
	"github.com/panel-kit/ticket-core/internal/observability"
)

type fakeInteractions struct {
	mu      sync.Mutex
	expired map[string]bool
}

func (f *fakeInteractions) IsActionable(_ context.Context, interactionID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.expired[interactionID]
}

func (f *fakeInteractions) expire(interactionID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.expired == nil {
		f.expired = make(map[string]bool)
	}
	f.expired[interactionID] = true
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestManagerProcessesInFIFOOrder(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var order []string
	create := func(_ context.Context, req Request) error {
		mu.Lock()
		order = append(order, req.RequesterID)
		mu.Unlock()
		return nil
	}

	m := NewManager(ctx, create, &fakeInteractions{}, observability.NewMetrics(), zap.NewNop(), 0)

	want := []string{"user-1", "user-2", "user-3", "user-4"}
	for i, user := range want {
		if pos := m.Enqueue("guild-1", user, config.Panel{Name: "Support"}, ""); pos < 1 || pos > i+1 {
			t.Fatalf("enqueue %s: implausible position %d", user, pos)
		}
	}

	waitFor(t, "queue drain", func() bool {
		s := m.StatusOf("guild-1")
		return s.Size == 0 && !s.Processing
	})

	mu.Lock()
	defer mu.Unlock()
	if len(order) != len(want) {
		t.Fatalf("processed %d requests, want %d", len(order), len(want))
	}
	for i, user := range want {
		if order[i] != user {
			t.Fatalf("order[%d] = %s, want %s (full order %v)", i, order[i], user, order)
		}
	}
}

func TestManagerRunsOneAttemptAtATimePerCommunity(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var inflight, maxInflight int32
	create := func(_ context.Context, _ Request) error {
		n := atomic.AddInt32(&inflight, 1)
		for {
			cur := atomic.LoadInt32(&maxInflight)
			if n <= cur || atomic.CompareAndSwapInt32(&maxInflight, cur, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&inflight, -1)
		return nil
	}

	m := NewManager(ctx, create, &fakeInteractions{}, observability.NewMetrics(), zap.NewNop(), 0)

	// Burst from many goroutines so any worker-per-request bug would show.
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			m.Enqueue("guild-1", "user", config.Panel{Name: "Support"}, "")
		}(i)
	}
	wg.Wait()

	waitFor(t, "queue drain", func() bool {
		s := m.StatusOf("guild-1")
		return s.Size == 0 && !s.Processing
	})

	if got := atomic.LoadInt32(&maxInflight); got != 1 {
		t.Fatalf("observed %d concurrent create attempts, want 1", got)
	}
}

func TestManagerStatusAndPositionDecrement(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	step := make(chan struct{})
	started := make(chan string, 8)
	create := func(_ context.Context, req Request) error {
		started <- req.RequesterID
		<-step
		return nil
	}

	m := NewManager(ctx, create, &fakeInteractions{}, observability.NewMetrics(), zap.NewNop(), 0)

	m.Enqueue("guild-1", "user-1", config.Panel{Name: "Support"}, "")
	<-started
	m.Enqueue("guild-1", "user-2", config.Panel{Name: "Support"}, "")
	m.Enqueue("guild-1", "user-3", config.Panel{Name: "Support"}, "")

	status := m.StatusOf("guild-1")
	if status.Size != 3 || !status.Processing {
		t.Fatalf("mid-flight status: %+v", status)
	}
	if status.OldestRequest == nil {
		t.Fatal("oldest request timestamp missing")
	}
	if pos := m.PositionOf("guild-1", "user-3"); pos != 3 {
		t.Fatalf("user-3 position: want 3 got %d", pos)
	}
	if pos := m.PositionOf("guild-1", "absent"); pos != 0 {
		t.Fatalf("absent requester position: want 0 got %d", pos)
	}

	step <- struct{}{}
	<-started
	waitFor(t, "head removal", func() bool { return m.StatusOf("guild-1").Size == 2 })
	if pos := m.PositionOf("guild-1", "user-3"); pos != 2 {
		t.Fatalf("user-3 position after dequeue: want 2 got %d", pos)
	}

	step <- struct{}{}
	<-started
	step <- struct{}{}
	waitFor(t, "queue drain", func() bool {
		s := m.StatusOf("guild-1")
		return s.Size == 0 && !s.Processing
	})
}

func TestManagerDiscardsExpiredInteractions(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	interactions := &fakeInteractions{}
	interactions.expire("interaction-dead")

	var created int32
	create := func(_ context.Context, _ Request) error {
		atomic.AddInt32(&created, 1)
		return nil
	}

	m := NewManager(ctx, create, interactions, observability.NewMetrics(), zap.NewNop(), 0)
	m.Enqueue("guild-1", "user-1", config.Panel{Name: "Support"}, "interaction-dead")
	m.Enqueue("guild-1", "user-2", config.Panel{Name: "Support"}, "interaction-live")

	waitFor(t, "queue drain", func() bool {
		s := m.StatusOf("guild-1")
		return s.Size == 0 && !s.Processing
	})

	if got := atomic.LoadInt32(&created); got != 1 {
		t.Fatalf("want 1 create attempt, got %d", got)
	}
}

func TestManagerHeadRemovedOnCreateError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var attempts int32
	create := func(_ context.Context, req Request) error {
		atomic.AddInt32(&attempts, 1)
		if req.RequesterID == "user-1" {
			return errors.New("channel creation rejected")
		}
		return nil
	}

	m := NewManager(ctx, create, &fakeInteractions{}, observability.NewMetrics(), zap.NewNop(), 0)
	m.Enqueue("guild-1", "user-1", config.Panel{Name: "Support"}, "")
	m.Enqueue("guild-1", "user-2", config.Panel{Name: "Support"}, "")

	waitFor(t, "queue drain", func() bool {
		s := m.StatusOf("guild-1")
		return s.Size == 0 && !s.Processing
	})

	// Exactly one attempt per request; the failed head is not retried.
	if got := atomic.LoadInt32(&attempts); got != 2 {
		t.Fatalf("want 2 attempts, got %d", got)
	}
}

func TestManagerNeverStrandsRequestsAtWorkerExit(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var processed int32
	create := func(_ context.Context, _ Request) error {
		atomic.AddInt32(&processed, 1)
		return nil
	}

	m := NewManager(ctx, create, &fakeInteractions{}, observability.NewMetrics(), zap.NewNop(), 0)

	// Enqueue right as the previous worker is deciding to exit, over and
	// over: every request must still be consumed without waiting for a
	// later enqueue to rescue it.
	const rounds = 500
	total := int32(0)
	for i := 0; i < rounds; i++ {
		m.Enqueue("guild-1", "user-a", config.Panel{Name: "Support"}, "")
		m.Enqueue("guild-1", "user-b", config.Panel{Name: "Support"}, "")
		total += 2

		deadline := time.Now().Add(5 * time.Second)
		for atomic.LoadInt32(&processed) < total {
			if time.Now().After(deadline) {
				s := m.StatusOf("guild-1")
				t.Fatalf("round %d: %d of %d requests processed, queue status %+v",
					i, atomic.LoadInt32(&processed), total, s)
			}
		}
	}

	waitFor(t, "final drain", func() bool {
		s := m.StatusOf("guild-1")
		return s.Size == 0 && !s.Processing
	})
	if got := atomic.LoadInt32(&processed); got != total {
		t.Fatalf("processed %d of %d requests", got, total)
	}
}

func TestManagerRemoveWithdrawsPendingOnly(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	step := make(chan struct{})
	started := make(chan struct{}, 4)
	create := func(_ context.Context, _ Request) error {
		started <- struct{}{}
		<-step
		return nil
	}

	m := NewManager(ctx, create, &fakeInteractions{}, observability.NewMetrics(), zap.NewNop(), 0)
	m.Enqueue("guild-1", "user-1", config.Panel{Name: "Support"}, "")
	<-started
	m.Enqueue("guild-1", "user-2", config.Panel{Name: "Support"}, "")

	// The head is being processed and cannot be withdrawn.
	if m.Remove("guild-1", "user-1") {
		t.Fatal("withdrew the request the worker is processing")
	}
	if !m.Remove("guild-1", "user-2") {
		t.Fatal("failed to withdraw a pending request")
	}
	if m.Remove("guild-1", "user-2") {
		t.Fatal("second withdrawal must report absence")
	}

	step <- struct{}{}
	waitFor(t, "queue drain", func() bool {
		s := m.StatusOf("guild-1")
		return s.Size == 0 && !s.Processing
	})
}
