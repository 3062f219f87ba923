package executor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nlbridge/nlbridge/internal/backend"
	"github.com/nlbridge/nlbridge/internal/fault"
)

type fakeHandle struct {
	mu       sync.Mutex
	executed []string
	result   backend.Result
	execErr  error
	hint     string
	closed   atomic.Bool

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
	block       func(ctx context.Context)
}

func (h *fakeHandle) Execute(ctx context.Context, query string) (backend.Result, error) {
	current := h.inFlight.Add(1)
	defer h.inFlight.Add(-1)
	for {
		peak := h.maxInFlight.Load()
		if current <= peak || h.maxInFlight.CompareAndSwap(peak, current) {
			break
		}
	}
	if h.block != nil {
		h.block(ctx)
	}
	if ctx.Err() != nil {
		return backend.Result{}, ctx.Err()
	}

	h.mu.Lock()
	h.executed = append(h.executed, query)
	h.mu.Unlock()
	if h.execErr != nil {
		return backend.Result{}, h.execErr
	}
	return h.result, nil
}

func (h *fakeHandle) Ping(context.Context) error { return nil }

func (h *fakeHandle) Close() error {
	h.closed.Store(true)
	return nil
}

func (h *fakeHandle) queries() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.executed...)
}

type hintedHandle struct {
	*fakeHandle
}

func (h hintedHandle) SchemaHint(context.Context) (string, error) {
	return h.hint, nil
}

type fakeDriver struct {
	kind       backend.Kind
	connects   atomic.Int32
	connectErr error
	makeHandle func() backend.Handle
}

func (d *fakeDriver) Kind() backend.Kind { return d.kind }

func (d *fakeDriver) Connect(ctx context.Context, _ backend.ConnConfig) (backend.Handle, error) {
	d.connects.Add(1)
	if d.connectErr != nil {
		return nil, d.connectErr
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return d.makeHandle(), nil
}

func TestLeaseUnregisteredBackend(t *testing.T) {
	pool := NewPool()
	_, err := pool.Lease(context.Background(), backend.KindPostgres)
	if !fault.IsKind(err, fault.KindConfigInvalid) {
		t.Fatalf("kind = %v, want config_invalid", fault.KindOf(err))
	}
}

func TestLeaseConnectsOnceAndReuses(t *testing.T) {
	handle := &fakeHandle{}
	driver := &fakeDriver{kind: backend.KindSQLite, makeHandle: func() backend.Handle { return handle }}
	pool := NewPool()
	pool.Register(driver, backend.ConnConfig{Database: ":memory:"})

	for i := 0; i < 3; i++ {
		lease, err := pool.Lease(context.Background(), backend.KindSQLite)
		if err != nil {
			t.Fatalf("Lease() error = %v", err)
		}
		if lease.Handle() != handle {
			t.Fatal("lease must return the pooled handle")
		}
		lease.Release()
	}
	if got := driver.connects.Load(); got != 1 {
		t.Fatalf("connects = %d, want 1", got)
	}
}

func TestLeaseConnectFailureLeavesEntryRetryable(t *testing.T) {
	driver := &fakeDriver{
		kind:       backend.KindSQLite,
		connectErr: fault.Newf(fault.KindConnectionRefused, "sqlite.connect", "refused"),
		makeHandle: func() backend.Handle { return &fakeHandle{} },
	}
	pool := NewPool()
	pool.Register(driver, backend.ConnConfig{Database: ":memory:"})

	if _, err := pool.Lease(context.Background(), backend.KindSQLite); !fault.IsKind(err, fault.KindConnectionRefused) {
		t.Fatalf("kind = %v, want connection_refused", fault.KindOf(err))
	}

	driver.connectErr = nil
	lease, err := pool.Lease(context.Background(), backend.KindSQLite)
	if err != nil {
		t.Fatalf("retry Lease() error = %v", err)
	}
	lease.Release()
	if got := driver.connects.Load(); got != 2 {
		t.Fatalf("connects = %d, want 2", got)
	}
}

func TestInvalidateForcesReconnect(t *testing.T) {
	first := &fakeHandle{}
	second := &fakeHandle{}
	handles := []backend.Handle{first, second}
	driver := &fakeDriver{kind: backend.KindSQLite}
	driver.makeHandle = func() backend.Handle {
		h := handles[0]
		handles = handles[1:]
		return h
	}
	pool := NewPool()
	pool.Register(driver, backend.ConnConfig{Database: ":memory:"})

	lease, err := pool.Lease(context.Background(), backend.KindSQLite)
	if err != nil {
		t.Fatalf("Lease() error = %v", err)
	}
	lease.Invalidate()
	lease.Release()

	lease, err = pool.Lease(context.Background(), backend.KindSQLite)
	if err != nil {
		t.Fatalf("second Lease() error = %v", err)
	}
	if lease.Handle() != second {
		t.Fatal("invalidated handle must be replaced")
	}
	lease.Release()
	if !first.closed.Load() {
		t.Fatal("stale handle must be closed by the next lease")
	}
}

func TestLeaseWaitHonorsContext(t *testing.T) {
	driver := &fakeDriver{kind: backend.KindSQLite, makeHandle: func() backend.Handle { return &fakeHandle{} }}
	pool := NewPool()
	pool.Register(driver, backend.ConnConfig{Database: ":memory:"})

	held, err := pool.Lease(context.Background(), backend.KindSQLite)
	if err != nil {
		t.Fatalf("Lease() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err = pool.Lease(ctx, backend.KindSQLite)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("queued Lease() error = %v, want deadline exceeded", err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("queued Lease() waited %v past its deadline", elapsed)
	}

	canceled, cancelNow := context.WithCancel(context.Background())
	cancelNow()
	if _, err := pool.Lease(canceled, backend.KindSQLite); !errors.Is(err, context.Canceled) {
		t.Fatalf("canceled Lease() error = %v, want context.Canceled", err)
	}

	held.Release()
	lease, err := pool.Lease(context.Background(), backend.KindSQLite)
	if err != nil {
		t.Fatalf("Lease() after release error = %v", err)
	}
	lease.Release()
}

func TestRegisterReplacesAndClosesOldHandle(t *testing.T) {
	old := &fakeHandle{}
	driver := &fakeDriver{kind: backend.KindSQLite, makeHandle: func() backend.Handle { return old }}
	pool := NewPool()
	pool.Register(driver, backend.ConnConfig{Database: "a.db"})

	lease, err := pool.Lease(context.Background(), backend.KindSQLite)
	if err != nil {
		t.Fatalf("Lease() error = %v", err)
	}
	lease.Release()

	pool.Register(driver, backend.ConnConfig{Database: "b.db"})
	if !old.closed.Load() {
		t.Fatal("re-registering must close the previous handle")
	}
}

func TestKindsSorted(t *testing.T) {
	pool := NewPool()
	pool.Register(&fakeDriver{kind: backend.KindSQLite, makeHandle: func() backend.Handle { return &fakeHandle{} }}, backend.ConnConfig{Database: ":memory:"})
	pool.Register(&fakeDriver{kind: backend.KindCassandra, makeHandle: func() backend.Handle { return &fakeHandle{} }}, backend.ConnConfig{Host: "c", Port: 9042})

	kinds := pool.Kinds()
	if len(kinds) != 2 || kinds[0] != backend.KindCassandra || kinds[1] != backend.KindSQLite {
		t.Fatalf("Kinds() = %v", kinds)
	}
}

func TestCloseClosesLiveHandles(t *testing.T) {
	handle := &fakeHandle{}
	driver := &fakeDriver{kind: backend.KindSQLite, makeHandle: func() backend.Handle { return handle }}
	pool := NewPool()
	pool.Register(driver, backend.ConnConfig{Database: ":memory:"})

	lease, err := pool.Lease(context.Background(), backend.KindSQLite)
	if err != nil {
		t.Fatalf("Lease() error = %v", err)
	}
	lease.Release()

	if err := pool.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !handle.closed.Load() {
		t.Fatal("Close must close live handles")
	}
}
