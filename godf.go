package godf

import (
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// Manager owns the per-device states and routes every call to the
// device it targets. Work on different devices is independent; within
// one device all calls are issued in submission order and the caller
// must not issue concurrent calls for the same device id.
type Manager struct {
	cfg     Config
	backend Backend
	log     *slog.Logger
	devices []*DeviceState
	cache   cacheToggle
}

// Option configures a Manager
type Option func(*Manager)

// WithLogger sets the structured logger used for cache and dispatch
// diagnostics
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

// WithBackend overrides the default CPU backend
func WithBackend(b Backend) Option {
	return func(m *Manager) {
		m.backend = b
	}
}

// New creates a device manager for cfg.Devices devices (or everything
// the backend reports when cfg.Devices is 0).
func New(cfg Config, opts ...Option) (*Manager, error) {
	cfg.applyDefaults()
	m := &Manager{
		cfg: cfg,
		log: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.backend == nil {
		n := cfg.Devices
		if n == 0 {
			n = 1
		}
		m.backend = newCPUBackend(n)
	}

	n := m.backend.NumDevices()
	if n < 1 {
		return nil, NewExecutionError("New", "backend reports no devices", nil)
	}
	if cfg.Devices > 0 && cfg.Devices < n {
		n = cfg.Devices
	}

	m.cache.on.Store(!cfg.DisableERICache)
	m.devices = make([]*DeviceState, n)
	for i := range m.devices {
		m.devices[i] = newDeviceState(i, m.backend, cfg, &m.cache)
	}

	m.log.Debug("device manager initialized",
		"backend", m.backend.Name(), "devices", n,
		"eri_cache", m.cache.enabled())
	return m, nil
}

// NumDevices returns the number of devices under management
func (m *Manager) NumDevices() int {
	return len(m.devices)
}

// Properties returns the properties of one device
func (m *Manager) Properties(device int) (DeviceProps, error) {
	if _, err := m.device("Properties", device); err != nil {
		return DeviceProps{}, err
	}
	return m.backend.Properties(device)
}

// DisableERICache suppresses integral caching for the remaining life of
// the manager: every fetch becomes a fresh transfer with no reuse. The
// switch is irreversible.
func (m *Manager) DisableERICache() {
	m.cache.disable()
	m.log.Info("eri cache disabled")
}

// ERICacheEnabled reports whether integral caching is still active
func (m *Manager) ERICacheEnabled() bool {
	return m.cache.enabled()
}

// SetSourceChanged marks whether the next fetches on the device must
// treat the active source as changed, bypassing the cache reuse path.
// This is the primary staleness signal; the shadow-sample check only
// backstops callers that forget to set it.
func (m *Manager) SetSourceChanged(device int, changed bool) error {
	dd, err := m.device("SetSourceChanged", device)
	if err != nil {
		return err
	}
	dd.sourceChanged = changed
	return nil
}

// CacheStatus returns the per-source usage/update/size counters of one
// device's ERI cache partition.
func (m *Manager) CacheStatus(device int) (CacheStatus, error) {
	dd, err := m.device("CacheStatus", device)
	if err != nil {
		return CacheStatus{}, err
	}
	return dd.eri.status(), nil
}

// Synchronize blocks until all work submitted to the device's stream
// has completed.
func (m *Manager) Synchronize(device int) error {
	dd, err := m.device("Synchronize", device)
	if err != nil {
		return err
	}
	dd.stream.Synchronize()
	return nil
}

// ForEachDevice runs fn once per device, each on its own goroutine, and
// returns the first error. Per-device work is embarrassingly parallel;
// merging results across devices is the caller's concern.
func (m *Manager) ForEachDevice(fn func(device int) error) error {
	var g errgroup.Group
	for id := range m.devices {
		id := id
		g.Go(func() error {
			return fn(id)
		})
	}
	return g.Wait()
}

// Close drains every stream and releases all device resources
func (m *Manager) Close() error {
	for _, dd := range m.devices {
		dd.stream.Destroy()
		dd.free()
	}
	m.devices = nil
	return nil
}

func (m *Manager) device(op string, id int) (*DeviceState, error) {
	if id < 0 || id >= len(m.devices) {
		return nil, NewDeviceError(op, id)
	}
	return m.devices[id], nil
}
