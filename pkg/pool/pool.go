// Package pool provides a bounded connection pool with idle reuse and an
// explicit FIFO wait queue for callers blocked on capacity.
package pool

import (
	"context"
	"errors"
	"sync"
)

// ErrPoolClosed is returned by Acquire after the pool has been closed.
var ErrPoolClosed = errors.New("connection pool is closed")

// Conn is the minimal contract a pooled handle must satisfy.
type Conn interface {
	Close() error
}

// Factory creates a new connection on demand. Creation failures propagate
// to the caller of Acquire.
type Factory[C Conn] func(ctx context.Context) (C, error)

// Config defines pool sizing.
type Config struct {
	MinConnections int `json:"min_connections"` // Idle connections kept warm
	MaxConnections int `json:"max_connections"` // Hard cap on concurrently borrowed handles
}

// DefaultConfig provides reasonable defaults for pool sizing.
//
//nolint:gochecknoglobals // Sensible default config pattern
var DefaultConfig = Config{
	MinConnections: 2,
	MaxConnections: 10,
}

// Pool hands out at most MaxConnections concurrently-active handles,
// reusing idle ones. Callers borrow via Acquire/WithConn and must never
// retain a handle across calls.
type Pool[C Conn] struct {
	mu      sync.Mutex
	config  Config
	factory Factory[C]
	idle    []C
	active  int
	waiters []chan C // FIFO: closed channel means "slot freed, retry"
	closed  bool
}

// New creates a pool. Connections are created lazily, up to MaxConnections.
func New[C Conn](config Config, factory Factory[C]) *Pool[C] {
	if config.MaxConnections <= 0 {
		config.MaxConnections = DefaultConfig.MaxConnections
	}
	if config.MinConnections < 0 {
		config.MinConnections = 0
	}
	if config.MinConnections > config.MaxConnections {
		config.MinConnections = config.MaxConnections
	}
	return &Pool[C]{
		config:  config,
		factory: factory,
	}
}

// Acquire returns an idle connection, creates a new one while under
// capacity, or joins the wait queue until a handle is released. The
// returned handle is leased exclusively to the caller until Release.
func (p *Pool[C]) Acquire(ctx context.Context) (C, error) {
	var zero C

	for {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return zero, ErrPoolClosed
		}

		if n := len(p.idle); n > 0 {
			conn := p.idle[n-1]
			p.idle = p.idle[:n-1]
			p.active++
			p.mu.Unlock()
			return conn, nil
		}

		if p.active < p.config.MaxConnections {
			p.active++
			p.mu.Unlock()

			conn, err := p.factory(ctx)
			if err != nil {
				p.mu.Lock()
				p.active--
				p.wakeOneLocked()
				p.mu.Unlock()
				return zero, err
			}
			return conn, nil
		}

		// At capacity: join the FIFO wait queue.
		waiter := make(chan C, 1)
		p.waiters = append(p.waiters, waiter)
		p.mu.Unlock()

		select {
		case <-ctx.Done():
			p.abandonWaiter(waiter)
			return zero, ctx.Err()
		case conn, ok := <-waiter:
			if ok {
				// Lease handed over directly; active count already covers it.
				return conn, nil
			}
			// Slot freed without a reusable handle; retry acquisition.
		}
	}
}

// Release returns a borrowed connection. The oldest waiter, if any, takes
// over the lease directly; otherwise the handle goes idle while the idle
// set is below MinConnections and is closed beyond that.
func (p *Pool[C]) Release(conn C) {
	p.mu.Lock()

	if len(p.waiters) > 0 {
		waiter := p.waiters[0]
		p.waiters = p.waiters[1:]
		p.mu.Unlock()
		waiter <- conn
		return
	}

	p.active--

	if p.closed {
		p.mu.Unlock()
		_ = conn.Close()
		return
	}

	if len(p.idle) < p.config.MinConnections {
		p.idle = append(p.idle, conn)
		p.mu.Unlock()
		return
	}

	p.mu.Unlock()
	_ = conn.Close()
}

// WithConn acquires a connection, runs fn, and guarantees release on every
// exit path including panics.
func (p *Pool[C]) WithConn(ctx context.Context, fn func(conn C) error) error {
	conn, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer p.Release(conn)

	return fn(conn)
}

// Close marks the pool closed, wakes all waiters, and closes idle handles.
// Borrowed handles are closed as they are released.
func (p *Pool[C]) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true

	waiters := p.waiters
	p.waiters = nil
	idle := p.idle
	p.idle = nil
	p.mu.Unlock()

	for _, waiter := range waiters {
		close(waiter)
	}

	var firstErr error
	for _, conn := range idle {
		if err := conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Stats reports current pool occupancy.
func (p *Pool[C]) Stats() (active, idle, waiting int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active, len(p.idle), len(p.waiters)
}

// wakeOneLocked signals the oldest waiter that a slot freed up without a
// handle to hand over. Caller must hold p.mu.
func (p *Pool[C]) wakeOneLocked() {
	if len(p.waiters) == 0 {
		return
	}
	waiter := p.waiters[0]
	p.waiters = p.waiters[1:]
	close(waiter)
}

// abandonWaiter removes a waiter that gave up. If a handle was already
// delivered in the race window, it is released back to the pool.
func (p *Pool[C]) abandonWaiter(waiter chan C) {
	p.mu.Lock()
	for i, w := range p.waiters {
		if w == waiter {
			p.waiters = append(p.waiters[:i], p.waiters[i+1:]...)
			p.mu.Unlock()
			return
		}
	}
	p.mu.Unlock()

	// Not in the queue: a releaser already dequeued this waiter and is
	// committed to deliver a handle or close the channel. The send may not
	// have landed yet, so wait for it; dropping it would strand the lease.
	if conn, ok := <-waiter; ok {
		p.Release(conn)
	}
}
