package keystore

import (
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

// ErrReloadInProgress is returned by Reload when another caller holds the
// reload claim.
var ErrReloadInProgress = errors.New("key store reload already in progress")

// ReloadHook observes every completed reload attempt. err is nil on success.
type ReloadHook func(name string, err error)

type snapshot struct {
	bundle   *Bundle
	loadedAt time.Time
	loaded   bool
	stale    bool
}

// Manager serves the latest Bundle produced by a Loader and reloads it lazily
// once the reload interval has elapsed.
//
// Get never blocks on another caller's reload: while one goroutine runs the
// loader, every other caller receives the previously published bundle.
type Manager struct {
	name     string
	loader   Loader
	interval time.Duration
	clock    func() time.Time
	logger   *slog.Logger
	hooks    []ReloadHook

	state   atomic.Pointer[snapshot]
	loading atomic.Bool
	// invalidations counts Invalidate calls so a load racing one publishes
	// its result as stale.
	invalidations atomic.Uint64
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithName sets the name used in logs and metrics.
func WithName(name string) ManagerOption {
	return func(m *Manager) { m.name = name }
}

// WithClock replaces time.Now.
func WithClock(clock func() time.Time) ManagerOption {
	return func(m *Manager) { m.clock = clock }
}

// WithInitial sets the bundle returned before the first successful load.
func WithInitial(b *Bundle) ManagerOption {
	return func(m *Manager) {
		if b != nil {
			m.state.Store(&snapshot{bundle: b})
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) { m.logger = logger }
}

// WithReloadHook registers a hook called after every reload attempt.
func WithReloadHook(hook ReloadHook) ManagerOption {
	return func(m *Manager) { m.hooks = append(m.hooks, hook) }
}

// NewManager creates a manager. Nothing is loaded until the first Get or
// Reload.
func NewManager(loader Loader, interval time.Duration, opts ...ManagerOption) *Manager {
	m := &Manager{
		name:     "default",
		loader:   loader,
		interval: interval,
		clock:    time.Now,
	}
	m.state.Store(&snapshot{bundle: EmptyBundle()})

	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = slog.Default().With("component", "keystore", "store", m.name)
	}
	return m
}

// Name returns the manager name.
func (m *Manager) Name() string {
	return m.name
}

// Interval returns the reload interval.
func (m *Manager) Interval() time.Duration {
	return m.interval
}

// Get returns the current bundle, reloading it first if it has expired and
// no other caller is already reloading.
func (m *Manager) Get() *Bundle {
	s := m.state.Load()
	if !m.expired(s) {
		return s.bundle
	}

	if !m.loading.CompareAndSwap(false, true) {
		return m.state.Load().bundle
	}
	defer m.loading.Store(false)

	// A reload may have been published between the first check and the claim.
	s = m.state.Load()
	if !m.expired(s) {
		return s.bundle
	}

	_ = m.load()
	return m.state.Load().bundle
}

// Reload loads the store synchronously and returns the loader error. On
// failure the previous bundle stays in service.
func (m *Manager) Reload() error {
	if !m.loading.CompareAndSwap(false, true) {
		return ErrReloadInProgress
	}
	defer m.loading.Store(false)
	return m.load()
}

// Invalidate marks the current bundle as expired so the next Get reloads it.
func (m *Manager) Invalidate() {
	m.invalidations.Add(1)
	for {
		s := m.state.Load()
		next := *s
		next.stale = true
		if m.state.CompareAndSwap(s, &next) {
			return
		}
	}
}

// LoadedAt returns when the current bundle was loaded. The second result is
// false until the first successful load.
func (m *Manager) LoadedAt() (time.Time, bool) {
	s := m.state.Load()
	return s.loadedAt, s.loaded
}

func (m *Manager) expired(s *snapshot) bool {
	if !s.loaded || s.stale || m.interval <= 0 {
		return true
	}
	return m.clock().Sub(s.loadedAt) > m.interval
}

// load must be called with the loading claim held.
func (m *Manager) load() error {
	gen := m.invalidations.Load()
	b, err := m.loader.Load()
	if err == nil && b == nil {
		err = fmt.Errorf("loader returned no bundle")
	}
	if err != nil {
		m.logger.Warn("key store reload failed, keeping previous material",
			"error", err,
		)
		m.notify(err)
		return err
	}

	// The file may have changed after the loader read it.
	stale := m.invalidations.Load() != gen
	m.state.Store(&snapshot{bundle: b, loadedAt: m.clock(), loaded: true, stale: stale})
	m.logger.Info("key store reloaded",
		"aliases", b.Aliases(),
	)
	m.notify(nil)
	return nil
}

func (m *Manager) notify(err error) {
	for _, hook := range m.hooks {
		hook(m.name, err)
	}
}
