package keystore

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(42, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// sequenceLoader returns the next bundle of its list on each call and counts
// invocations.
type sequenceLoader struct {
	bundles []*Bundle
	errs    []error
	calls   atomic.Int32
}

func (l *sequenceLoader) Load() (*Bundle, error) {
	i := int(l.calls.Add(1)) - 1
	if i < len(l.errs) && l.errs[i] != nil {
		return nil, l.errs[i]
	}
	if i >= len(l.bundles) {
		return l.bundles[len(l.bundles)-1], nil
	}
	return l.bundles[i], nil
}

func TestManager_CachesWithinInterval(t *testing.T) {
	clock := newFakeClock()
	first := keyBundle(t, "first")
	loader := &sequenceLoader{bundles: []*Bundle{first, keyBundle(t, "second")}}

	m := NewManager(loader, 10*time.Second, WithClock(clock.Now))

	if got := m.Get(); got != first {
		t.Fatal("expected first bundle")
	}
	clock.Advance(10 * time.Second)
	if got := m.Get(); got != first {
		t.Error("expected cached bundle at exactly the interval")
	}
	if n := loader.calls.Load(); n != 1 {
		t.Errorf("expected 1 load, got %d", n)
	}
}

func TestManager_ReloadsAfterInterval(t *testing.T) {
	clock := newFakeClock()
	first, second := keyBundle(t, "first"), keyBundle(t, "second")
	loader := &sequenceLoader{bundles: []*Bundle{first, second}}

	m := NewManager(loader, 10*time.Second, WithClock(clock.Now))

	m.Get()
	clock.Advance(11 * time.Second)
	if got := m.Get(); got != second {
		t.Error("expected second bundle after interval elapsed")
	}

	at, ok := m.LoadedAt()
	if !ok || !at.Equal(clock.Now()) {
		t.Errorf("LoadedAt() = %v, %v; want %v, true", at, ok, clock.Now())
	}
}

func TestManager_NonPositiveIntervalReloadsEveryCall(t *testing.T) {
	for _, interval := range []time.Duration{0, -time.Second} {
		loader := &sequenceLoader{bundles: []*Bundle{keyBundle(t, "a")}}
		m := NewManager(loader, interval)

		for i := 0; i < 3; i++ {
			m.Get()
		}
		if n := loader.calls.Load(); n != 3 {
			t.Errorf("interval %v: expected 3 loads, got %d", interval, n)
		}
	}
}

func TestManager_FailureKeepsPreviousBundle(t *testing.T) {
	clock := newFakeClock()
	first := keyBundle(t, "first")
	loader := &sequenceLoader{
		bundles: []*Bundle{first, nil, keyBundle(t, "third")},
		errs:    []error{nil, errors.New("boom")},
	}

	var hookErrs []error
	m := NewManager(loader, time.Second,
		WithClock(clock.Now),
		WithReloadHook(func(name string, err error) { hookErrs = append(hookErrs, err) }),
	)

	m.Get()
	clock.Advance(2 * time.Second)
	if got := m.Get(); got != first {
		t.Error("expected previous bundle after failed reload")
	}

	// The failed attempt does not refresh loadedAt, so the next call retries.
	if got := m.Get(); got == first {
		t.Error("expected retry to publish the third bundle")
	}

	if len(hookErrs) != 3 || hookErrs[0] != nil || hookErrs[1] == nil || hookErrs[2] != nil {
		t.Errorf("unexpected hook results %v", hookErrs)
	}
}

func TestManager_InitialBundle(t *testing.T) {
	initial := keyBundle(t, "initial")
	loader := &sequenceLoader{bundles: []*Bundle{nil}, errs: []error{errors.New("unavailable")}}

	m := NewManager(loader, time.Minute, WithInitial(initial))
	if got := m.Get(); got != initial {
		t.Error("expected initial bundle before the first successful load")
	}
	if _, ok := m.LoadedAt(); ok {
		t.Error("LoadedAt should report no successful load")
	}

	empty := NewManager(&sequenceLoader{bundles: []*Bundle{nil}, errs: []error{errors.New("x")}}, time.Minute)
	if got := empty.Get(); !got.IsEmpty() {
		t.Error("expected empty default bundle")
	}
}

func TestManager_ConcurrentCallersDoNotWait(t *testing.T) {
	clock := newFakeClock()
	first, second := keyBundle(t, "first"), keyBundle(t, "second")

	var calls atomic.Int32
	entered := make(chan struct{})
	release := make(chan struct{})
	loader := LoaderFunc(func() (*Bundle, error) {
		if calls.Add(1) == 1 {
			return first, nil
		}
		close(entered)
		<-release
		return second, nil
	})

	m := NewManager(loader, time.Second, WithClock(clock.Now))
	m.Get()
	clock.Advance(2 * time.Second)

	loaderResult := make(chan *Bundle, 1)
	go func() { loaderResult <- m.Get() }()
	<-entered

	// While the reload is blocked every other caller receives the old bundle.
	var wg sync.WaitGroup
	stale := make(chan *Bundle, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			stale <- m.Get()
		}()
	}
	wg.Wait()
	close(stale)
	for b := range stale {
		if b != first {
			t.Fatal("concurrent caller did not receive the previous bundle")
		}
	}

	if err := m.Reload(); !errors.Is(err, ErrReloadInProgress) {
		t.Errorf("expected ErrReloadInProgress, got %v", err)
	}

	close(release)
	if got := <-loaderResult; got != second {
		t.Error("reloading caller should receive the new bundle")
	}
	if n := calls.Load(); n != 2 {
		t.Errorf("expected exactly 2 loads, got %d", n)
	}
	if got := m.Get(); got != second {
		t.Error("expected new bundle after reload completed")
	}
}

func TestManager_Invalidate(t *testing.T) {
	loader := &sequenceLoader{bundles: []*Bundle{keyBundle(t, "a"), keyBundle(t, "b")}}
	m := NewManager(loader, time.Hour)

	first := m.Get()
	m.Invalidate()
	if got := m.Get(); got == first {
		t.Error("expected reload after Invalidate")
	}
	if n := loader.calls.Load(); n != 2 {
		t.Errorf("expected 2 loads, got %d", n)
	}
}

func TestManager_Reload(t *testing.T) {
	loader := &sequenceLoader{
		bundles: []*Bundle{nil, keyBundle(t, "ok")},
		errs:    []error{errors.New("bad")},
	}
	m := NewManager(loader, time.Hour)

	if err := m.Reload(); err == nil {
		t.Error("expected loader error from Reload")
	}
	if err := m.Reload(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if m.Get().IsEmpty() {
		t.Error("expected loaded bundle")
	}
}

func TestManager_InvalidateDuringReload(t *testing.T) {
	clock := newFakeClock()
	old, rotated := keyBundle(t, "old"), keyBundle(t, "rotated")

	// The second load reads the file before the rotation lands.
	var calls atomic.Int32
	entered := make(chan struct{})
	release := make(chan struct{})
	loader := LoaderFunc(func() (*Bundle, error) {
		switch calls.Add(1) {
		case 1:
			return old, nil
		case 2:
			close(entered)
			<-release
			return old, nil
		default:
			return rotated, nil
		}
	})

	m := NewManager(loader, time.Hour, WithClock(clock.Now))
	m.Get()
	m.Invalidate()

	done := make(chan struct{})
	go func() {
		defer close(done)
		m.Get()
	}()
	<-entered
	m.Invalidate()
	close(release)
	<-done

	if got := m.Get(); got != rotated {
		t.Fatalf("expected rotated bundle after invalidation during reload (loads=%d)", calls.Load())
	}
	if n := calls.Load(); n != 3 {
		t.Errorf("expected 3 loads, got %d", n)
	}
}
