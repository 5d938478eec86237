package uow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/example/erp-event-pipeline/internal/domain/aggregate"
	"github.com/example/erp-event-pipeline/internal/event"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ticked struct {
	N int `json:"n"`
}

func (ticked) EventKind() string { return "Ticked" }

type counter struct {
	aggregate.Root
}

func newCounter(id string) *counter {
	c := &counter{}
	c.Init(id, "Counter", "tenant-1")
	return c
}

type recordingDispatcher struct {
	mu      sync.Mutex
	batches [][]event.Event
	depths  []int
	err     error
	onCall  func(ctx context.Context)
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, events []event.Event) error {
	d.mu.Lock()
	d.batches = append(d.batches, events)
	d.depths = append(d.depths, Depth(ctx))
	onCall := d.onCall
	d.mu.Unlock()
	if onCall != nil {
		onCall(ctx)
	}
	return d.err
}

func (d *recordingDispatcher) calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.batches)
}

func newTestManager(opts ...Option) (*Manager, *MemoryTransactor, *recordingDispatcher, *test.Hook) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	tr := NewMemoryTransactor()
	m := NewManager(tr, logger, opts...)
	d := &recordingDispatcher{}
	m.SetDispatcher(d)
	return m, tr, d, hook
}

// ============================================
// Commit Path Tests
// ============================================

func TestManager_Execute_DispatchesAfterCommit(t *testing.T) {
	m, tr, d, _ := newTestManager()
	a, b := newCounter("a"), newCounter("b")

	var work *Work
	err := m.Execute(context.Background(), func(ctx context.Context, w *Work) error {
		work = w
		_, ok := TxFromContext(ctx)
		assert.True(t, ok)

		a.Emit(ticked{N: 1})
		b.Emit(ticked{N: 2})
		a.Emit(ticked{N: 3})
		w.Track(a, b)

		assert.Equal(t, 0, d.calls(), "nothing dispatched before commit")
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, StateCommitted, work.State())
	require.Equal(t, 1, d.calls())

	// aggregate tracking order, then emission order within an aggregate
	batch := d.batches[0]
	require.Len(t, batch, 3)
	assert.Equal(t, ticked{N: 1}, batch[0].Payload)
	assert.Equal(t, ticked{N: 3}, batch[1].Payload)
	assert.Equal(t, ticked{N: 2}, batch[2].Payload)

	begun, committed, rolledBack := tr.Stats()
	assert.Equal(t, 1, begun)
	assert.Equal(t, 1, committed)
	assert.Equal(t, 0, rolledBack)
	assert.Equal(t, 0, m.Pending().Len())
	assert.Empty(t, a.Pending())
}

func TestManager_Execute_TrackTwiceDrainsOnce(t *testing.T) {
	m, _, d, _ := newTestManager()
	a := newCounter("a")

	err := m.Execute(context.Background(), func(ctx context.Context, w *Work) error {
		a.Emit(ticked{N: 1})
		w.Track(a)
		w.Track(a)
		return nil
	})

	require.NoError(t, err)
	require.Equal(t, 1, d.calls())
	assert.Len(t, d.batches[0], 1)
}

func TestManager_Execute_NoEventsNoDispatch(t *testing.T) {
	m, _, d, _ := newTestManager()

	err := m.Execute(context.Background(), func(ctx context.Context, w *Work) error {
		w.Track(newCounter("a"))
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 0, d.calls())
}

func TestManager_Execute_DispatchErrorDoesNotFailWrite(t *testing.T) {
	m, _, d, hook := newTestManager()
	d.err = errors.New("stock consumer failed")
	a := newCounter("a")

	err := m.Execute(context.Background(), func(ctx context.Context, w *Work) error {
		a.Emit(ticked{N: 1})
		w.Track(a)
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, d.calls())
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
	assert.Equal(t, "dispatch reported consumer failures", hook.LastEntry().Message)
}

// ============================================
// Abort Path Tests
// ============================================

func TestManager_Execute_FnErrorAborts(t *testing.T) {
	m, tr, d, _ := newTestManager()
	a := newCounter("a")
	boom := errors.New("validation failed")

	var work *Work
	err := m.Execute(context.Background(), func(ctx context.Context, w *Work) error {
		work = w
		a.Emit(ticked{N: 1})
		w.Track(a)
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, StateAborted, work.State())
	assert.Equal(t, 0, d.calls())
	assert.False(t, m.Pending().Has(work.Token()))
	assert.Empty(t, a.Pending(), "aborted events must not leak into a later unit of work")

	_, committed, rolledBack := tr.Stats()
	assert.Equal(t, 0, committed)
	assert.Equal(t, 1, rolledBack)
}

func TestManager_Execute_CommitFailureDiscardsBuffer(t *testing.T) {
	m, tr, d, _ := newTestManager()
	tr.FailNextCommit(errors.New("serialization failure"))
	a := newCounter("a")

	var work *Work
	err := m.Execute(context.Background(), func(ctx context.Context, w *Work) error {
		work = w
		a.Emit(ticked{N: 1})
		w.Track(a)
		return nil
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "commit unit of work")
	assert.Equal(t, StateAborted, work.State())
	assert.Equal(t, 0, d.calls())
	assert.False(t, m.Pending().Has(work.Token()))
	assert.Equal(t, 0, m.Pending().Len())
}

func TestManager_Execute_PanicAbortsAndRepanics(t *testing.T) {
	m, _, d, _ := newTestManager()
	a := newCounter("a")

	var work *Work
	assert.Panics(t, func() {
		_ = m.Execute(context.Background(), func(ctx context.Context, w *Work) error {
			work = w
			a.Emit(ticked{N: 1})
			w.Track(a)
			panic("boom")
		})
	})

	assert.Equal(t, StateAborted, work.State())
	assert.Equal(t, 0, d.calls())
	assert.Equal(t, 0, m.Pending().Len())
}

func TestManager_Execute_BeginFailure(t *testing.T) {
	m, _, d, _ := newTestManager()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := m.Execute(ctx, func(ctx context.Context, w *Work) error {
		called = true
		return nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
	assert.Equal(t, 0, d.calls())
}

// ============================================
// Concurrency / Recursion Tests
// ============================================

func TestManager_Execute_ConcurrentBuffersIsolated(t *testing.T) {
	m, _, d, _ := newTestManager()

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c := newCounter(fmt.Sprintf("c-%d", i))
			_ = m.Execute(context.Background(), func(ctx context.Context, w *Work) error {
				c.Emit(ticked{N: i})
				w.Track(c)
				if i%2 == 1 {
					return errors.New("odd executions abort")
				}
				return nil
			})
		}(i)
	}
	wg.Wait()

	assert.Equal(t, n/2, d.calls())
	for _, batch := range d.batches {
		require.Len(t, batch, 1)
		assert.Equal(t, 0, batch[0].Payload.(ticked).N%2)
	}
	assert.Equal(t, 0, m.Pending().Len())
}

func TestManager_Execute_NestedDispatchDepthGuard(t *testing.T) {
	m, _, d, hook := newTestManager(WithMaxDepth(3))

	// every dispatch commits another unit of work that emits again
	d.onCall = func(ctx context.Context) {
		c := newCounter("nested")
		_ = m.Execute(ctx, func(ctx context.Context, w *Work) error {
			c.Emit(ticked{N: Depth(ctx)})
			w.Track(c)
			return nil
		})
	}

	c := newCounter("root")
	err := m.Execute(context.Background(), func(ctx context.Context, w *Work) error {
		c.Emit(ticked{N: 0})
		w.Track(c)
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, d.calls())
	assert.Equal(t, []int{1, 2, 3}, d.depths)

	var sawGuard bool
	for _, entry := range hook.AllEntries() {
		if e, ok := entry.Data[logrus.ErrorKey].(error); ok && errors.Is(e, ErrDispatchDepthExceeded) {
			sawGuard = true
		}
	}
	assert.True(t, sawGuard)
}

func TestManager_Execute_NoDispatcherLogs(t *testing.T) {
	logger, hook := test.NewNullLogger()
	m := NewManager(NewMemoryTransactor(), logger)
	a := newCounter("a")

	err := m.Execute(context.Background(), func(ctx context.Context, w *Work) error {
		a.Emit(ticked{N: 1})
		w.Track(a)
		return nil
	})

	require.NoError(t, err)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, ErrNoDispatcher, hook.LastEntry().Data[logrus.ErrorKey])
}

// ============================================
// Pending Registry Tests
// ============================================

func TestPendingRegistry_TakeRemoves(t *testing.T) {
	r := NewPendingRegistry()
	r.Stash(event.Buffer{Token: "t1", Events: []event.Event{{ID: "e1"}}})

	buf, ok := r.Take("t1")
	require.True(t, ok)
	assert.Equal(t, 1, buf.Len())

	_, ok = r.Take("t1")
	assert.False(t, ok)
	assert.Equal(t, 0, r.Len())
}

func TestPendingRegistry_Discard(t *testing.T) {
	r := NewPendingRegistry()
	r.Stash(event.Buffer{Token: "t1"})
	r.Stash(event.Buffer{Token: "t2"})

	r.Discard("t1")

	assert.False(t, r.Has("t1"))
	assert.True(t, r.Has("t2"))
}
