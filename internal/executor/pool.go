package executor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/nlbridge/nlbridge/internal/backend"
	"github.com/nlbridge/nlbridge/internal/fault"
)

// Pool owns the backend handles. One entry per registered kind holds at most
// one live handle; the entry semaphore serializes whole ask cycles, which
// gives the at-most-one-in-flight-operation guarantee at the handle boundary.
// The pool is passed explicitly to the executor; there is no process-wide
// instance.
type Pool struct {
	mu      sync.Mutex
	entries map[backend.Kind]*poolEntry
}

// poolEntry guards its handle with a 1-buffered semaphore instead of a mutex
// so a queued lease can stop waiting when its context expires. handle and
// stale may only be touched while holding the token.
type poolEntry struct {
	driver backend.Driver
	cfg    backend.ConnConfig

	sem    chan struct{}
	handle backend.Handle
	stale  bool
}

func (e *poolEntry) acquire(ctx context.Context) error {
	select {
	case e.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *poolEntry) release() {
	<-e.sem
}

func NewPool() *Pool {
	return &Pool{entries: map[backend.Kind]*poolEntry{}}
}

// Register adds a backend. Re-registering a kind replaces its entry; any
// handle on the old entry is closed.
func (p *Pool) Register(driver backend.Driver, cfg backend.ConnConfig) {
	p.mu.Lock()
	old := p.entries[driver.Kind()]
	p.entries[driver.Kind()] = &poolEntry{driver: driver, cfg: cfg, sem: make(chan struct{}, 1)}
	p.mu.Unlock()

	if old != nil {
		old.sem <- struct{}{}
		if old.handle != nil {
			_ = old.handle.Close()
			old.handle = nil
		}
		old.release()
	}
}

// Kinds lists the registered backends in stable order.
func (p *Pool) Kinds() []backend.Kind {
	p.mu.Lock()
	defer p.mu.Unlock()
	kinds := make([]backend.Kind, 0, len(p.entries))
	for kind := range p.entries {
		kinds = append(kinds, kind)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Lease acquires the backend's entry and returns it with a usable handle,
// connecting first when no live handle exists or the previous one was
// invalidated. The wait for an entry held by another request is bounded by
// ctx, so a queued request fails with the context error instead of sitting
// behind a slow cycle. On connect failure the entry is released empty, so
// nothing leaks and the next request retries from scratch.
func (p *Pool) Lease(ctx context.Context, kind backend.Kind) (*Lease, error) {
	p.mu.Lock()
	entry, ok := p.entries[kind]
	p.mu.Unlock()
	if !ok {
		return nil, fault.Newf(fault.KindConfigInvalid, "pool.lease", "backend %q is not registered", kind)
	}

	if err := entry.acquire(ctx); err != nil {
		return nil, fmt.Errorf("pool.lease: wait for %s handle: %w", kind, err)
	}
	if entry.stale && entry.handle != nil {
		_ = entry.handle.Close()
		entry.handle = nil
	}
	if entry.handle == nil {
		handle, err := entry.driver.Connect(ctx, entry.cfg)
		if err != nil {
			entry.release()
			return nil, err
		}
		entry.handle = handle
		entry.stale = false
	}
	return &Lease{entry: entry}, nil
}

// Close shuts down every live handle. Entries stay registered; a later Lease
// reconnects.
func (p *Pool) Close() error {
	p.mu.Lock()
	entries := make([]*poolEntry, 0, len(p.entries))
	for _, entry := range p.entries {
		entries = append(entries, entry)
	}
	p.mu.Unlock()

	var errs []error
	for _, entry := range entries {
		entry.sem <- struct{}{}
		if entry.handle != nil {
			if err := entry.handle.Close(); err != nil {
				errs = append(errs, err)
			}
			entry.handle = nil
		}
		entry.release()
	}
	return errors.Join(errs...)
}

// Lease is exclusive access to one backend handle. Release must be called
// exactly once.
type Lease struct {
	entry    *poolEntry
	released bool
}

func (l *Lease) Handle() backend.Handle {
	return l.entry.handle
}

// Invalidate marks the handle dead. It stays open until the next Lease on
// this backend closes and replaces it, so an uncancellable in-flight call can
// still drain.
func (l *Lease) Invalidate() {
	l.entry.stale = true
}

func (l *Lease) Release() {
	if l.released {
		return
	}
	l.released = true
	l.entry.release()
}
