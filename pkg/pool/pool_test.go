package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeConn is a pooled handle with identity and close tracking.
type fakeConn struct {
	id     int
	closed atomic.Bool
}

func (c *fakeConn) Close() error {
	c.closed.Store(true)
	return nil
}

func newFakeFactory() (Factory[*fakeConn], *atomic.Int32) {
	var created atomic.Int32
	factory := func(context.Context) (*fakeConn, error) {
		id := created.Add(1)
		return &fakeConn{id: int(id)}, nil
	}
	return factory, &created
}

func TestAcquireCreatesUpToMax(t *testing.T) {
	factory, created := newFakeFactory()
	p := New(Config{MinConnections: 1, MaxConnections: 3}, factory)
	ctx := context.Background()

	conns := make([]*fakeConn, 0, 3)
	for i := 0; i < 3; i++ {
		conn, err := p.Acquire(ctx)
		if err != nil {
			t.Fatalf("Acquire %d failed: %v", i, err)
		}
		conns = append(conns, conn)
	}

	if created.Load() != 3 {
		t.Errorf("Expected 3 connections created, got %d", created.Load())
	}

	active, _, _ := p.Stats()
	if active != 3 {
		t.Errorf("Expected 3 active, got %d", active)
	}

	for _, conn := range conns {
		p.Release(conn)
	}
}

func TestAcquireReusesIdle(t *testing.T) {
	factory, created := newFakeFactory()
	p := New(Config{MinConnections: 2, MaxConnections: 5}, factory)
	ctx := context.Background()

	conn, err := p.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	p.Release(conn)

	again, err := p.Acquire(ctx)
	if err != nil {
		t.Fatalf("Second acquire failed: %v", err)
	}
	defer p.Release(again)

	if again != conn {
		t.Error("Expected the idle connection to be reused")
	}
	if created.Load() != 1 {
		t.Errorf("Expected 1 connection created, got %d", created.Load())
	}
}

func TestReleaseClosesBeyondMinIdle(t *testing.T) {
	factory, _ := newFakeFactory()
	p := New(Config{MinConnections: 1, MaxConnections: 5}, factory)
	ctx := context.Background()

	a, _ := p.Acquire(ctx)
	b, _ := p.Acquire(ctx)

	p.Release(a) // idle: [a]
	p.Release(b) // idle full, b closed

	if a.closed.Load() {
		t.Error("Expected first released connection to stay idle")
	}
	if !b.closed.Load() {
		t.Error("Expected second released connection to be closed")
	}

	_, idle, _ := p.Stats()
	if idle != 1 {
		t.Errorf("Expected 1 idle connection, got %d", idle)
	}
}

func TestAcquireBlocksAtCapacityUntilRelease(t *testing.T) {
	factory, _ := newFakeFactory()
	p := New(Config{MinConnections: 0, MaxConnections: 1}, factory)
	ctx := context.Background()

	conn, err := p.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	acquired := make(chan *fakeConn)
	go func() {
		c, acquireErr := p.Acquire(ctx)
		if acquireErr != nil {
			t.Errorf("Blocked acquire failed: %v", acquireErr)
		}
		acquired <- c
	}()

	select {
	case <-acquired:
		t.Fatal("Expected second acquire to block at capacity")
	case <-time.After(50 * time.Millisecond):
	}

	p.Release(conn)

	select {
	case c := <-acquired:
		p.Release(c)
	case <-time.After(time.Second):
		t.Fatal("Expected blocked acquire to complete after release")
	}
}

func TestWaitersServedFIFO(t *testing.T) {
	factory, _ := newFakeFactory()
	p := New(Config{MinConnections: 0, MaxConnections: 1}, factory)
	ctx := context.Background()

	conn, _ := p.Acquire(ctx)

	var order []int
	var orderMu sync.Mutex
	ready := make(chan struct{}, 2)
	done := make(chan struct{}, 2)

	for i := 1; i <= 2; i++ {
		go func(n int) {
			ready <- struct{}{}
			c, err := p.Acquire(ctx)
			if err != nil {
				t.Errorf("Waiter %d failed: %v", n, err)
				done <- struct{}{}
				return
			}
			orderMu.Lock()
			order = append(order, n)
			orderMu.Unlock()
			time.Sleep(10 * time.Millisecond)
			p.Release(c)
			done <- struct{}{}
		}(i)
		<-ready
		// Give each goroutine time to enqueue before starting the next.
		time.Sleep(30 * time.Millisecond)
	}

	p.Release(conn)
	<-done
	<-done

	orderMu.Lock()
	defer orderMu.Unlock()
	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Errorf("Expected FIFO wake order [1 2], got %v", order)
	}
}

func TestNeverExceedsMaxActive(t *testing.T) {
	factory, _ := newFakeFactory()
	const maxConns = 4
	p := New(Config{MinConnections: 2, MaxConnections: maxConns}, factory)
	ctx := context.Background()

	var concurrent atomic.Int32
	var peak atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := p.WithConn(ctx, func(*fakeConn) error {
				now := concurrent.Add(1)
				for {
					old := peak.Load()
					if now <= old || peak.CompareAndSwap(old, now) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				concurrent.Add(-1)
				return nil
			})
			if err != nil {
				t.Errorf("WithConn failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if peak.Load() > maxConns {
		t.Errorf("Observed %d concurrent borrowers, max is %d", peak.Load(), maxConns)
	}
}

func TestAcquireCancelWhileWaiting(t *testing.T) {
	factory, _ := newFakeFactory()
	p := New(Config{MinConnections: 0, MaxConnections: 1}, factory)

	conn, _ := p.Acquire(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := p.Acquire(ctx)
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Expected waiting acquire to abort on cancellation")
	}

	// The abandoned waiter must not strand the pool.
	p.Release(conn)
	again, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire after abandoned waiter failed: %v", err)
	}
	p.Release(again)
}

func TestAbandonedWaiterRecoversLateHandoff(t *testing.T) {
	factory, _ := newFakeFactory()
	p := New(Config{MinConnections: 0, MaxConnections: 1}, factory)

	conn, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	// A releaser has popped this waiter from the queue but its send has
	// not landed yet. The abandoning side must wait for the handoff and
	// return the lease instead of stranding it.
	waiter := make(chan *fakeConn, 1)
	sent := make(chan struct{})
	go func() {
		time.Sleep(20 * time.Millisecond)
		waiter <- conn
		close(sent)
	}()

	p.abandonWaiter(waiter)
	<-sent

	active, _, waiting := p.Stats()
	if active != 0 || waiting != 0 {
		t.Fatalf("Expected recovered lease, got active=%d waiting=%d", active, waiting)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	again, err := p.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire blocked after abandoned handoff: %v", err)
	}
	p.Release(again)
}

func TestAcquireCancelRacingRelease(t *testing.T) {
	factory, _ := newFakeFactory()
	p := New(Config{MinConnections: 0, MaxConnections: 1}, factory)

	for i := 0; i < 200; i++ {
		conn, err := p.Acquire(context.Background())
		if err != nil {
			t.Fatalf("iteration %d: Acquire failed: %v", i, err)
		}

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			if c, err := p.Acquire(ctx); err == nil {
				p.Release(c)
			}
			close(done)
		}()

		// Let the second acquirer reach the wait queue, then race its
		// cancellation against the release handoff.
		deadline := time.Now().Add(5 * time.Millisecond)
		for {
			if _, _, waiting := p.Stats(); waiting == 1 || time.Now().After(deadline) {
				break
			}
			time.Sleep(50 * time.Microsecond)
		}
		go cancel()
		p.Release(conn)
		<-done
		cancel()

		// Whatever the interleaving, the slot must still be acquirable.
		checkCtx, checkCancel := context.WithTimeout(context.Background(), time.Second)
		c, err := p.Acquire(checkCtx)
		checkCancel()
		if err != nil {
			t.Fatalf("iteration %d: pool slot leaked: %v", i, err)
		}
		p.Release(c)
	}
}

func TestFactoryErrorPropagates(t *testing.T) {
	factoryErr := errors.New("dial failed")
	p := New(Config{MinConnections: 0, MaxConnections: 2}, func(context.Context) (*fakeConn, error) {
		return nil, factoryErr
	})

	_, err := p.Acquire(context.Background())
	if !errors.Is(err, factoryErr) {
		t.Errorf("Expected factory error, got %v", err)
	}

	// A failed creation must not leak an active slot.
	active, _, _ := p.Stats()
	if active != 0 {
		t.Errorf("Expected 0 active after factory error, got %d", active)
	}
}

func TestWithConnReleasesOnError(t *testing.T) {
	factory, _ := newFakeFactory()
	p := New(Config{MinConnections: 1, MaxConnections: 1}, factory)
	ctx := context.Background()

	fnErr := errors.New("query failed")
	err := p.WithConn(ctx, func(*fakeConn) error { return fnErr })
	if !errors.Is(err, fnErr) {
		t.Fatalf("Expected fn error, got %v", err)
	}

	// Release must have run: the single slot is available again.
	conn, err := p.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire after WithConn error failed: %v", err)
	}
	p.Release(conn)
}

func TestWithConnReleasesOnPanic(t *testing.T) {
	factory, _ := newFakeFactory()
	p := New(Config{MinConnections: 1, MaxConnections: 1}, factory)
	ctx := context.Background()

	func() {
		defer func() { _ = recover() }()
		_ = p.WithConn(ctx, func(*fakeConn) error { panic("worker blew up") })
	}()

	active, _, _ := p.Stats()
	if active != 0 {
		t.Errorf("Expected 0 active after panic, got %d", active)
	}
}

func TestCloseRejectsAcquire(t *testing.T) {
	factory, _ := newFakeFactory()
	p := New(Config{MinConnections: 1, MaxConnections: 2}, factory)
	ctx := context.Background()

	conn, _ := p.Acquire(ctx)
	p.Release(conn)

	if err := p.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if !conn.closed.Load() {
		t.Error("Expected idle connection closed on pool close")
	}

	_, err := p.Acquire(ctx)
	if !errors.Is(err, ErrPoolClosed) {
		t.Errorf("Expected ErrPoolClosed, got %v", err)
	}
}

func TestCloseWakesWaiters(t *testing.T) {
	factory, _ := newFakeFactory()
	p := New(Config{MinConnections: 0, MaxConnections: 1}, factory)
	ctx := context.Background()

	conn, _ := p.Acquire(ctx)

	errCh := make(chan error, 1)
	go func() {
		_, err := p.Acquire(ctx)
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	_ = p.Close()

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrPoolClosed) {
			t.Errorf("Expected ErrPoolClosed for waiter, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Expected waiter to be woken by Close")
	}

	p.Release(conn)
	if !conn.closed.Load() {
		t.Error("Expected borrowed connection closed when released after Close")
	}
}
