// Package connectivity tracks whether the sync server is reachable and
// triggers a sync when connectivity returns.
//
// The monitor owns the online/offline half of the status indicator; the
// sync manager sets "syncing" while a cycle runs. Periodic polling only
// refreshes the indicator. A sync is started only by Start and by an
// explicit online event (HandleOnline), and only when the store has been
// populated, so an empty install never overwrites server data.
package connectivity

import (
	"context"
	"io"
	"log"
	"os"
	"sync"
	"time"

	"github.com/stockmaster/stocksync/internal/schema"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

// Prober checks server reachability. *remote.Client satisfies it.
type Prober interface {
	Health(ctx context.Context) error
}

// StatusSink receives status indicator updates.
type StatusSink interface {
	SetStatus(status schema.Status)
}

// StatusFunc adapts a function to StatusSink.
type StatusFunc func(schema.Status)

// SetStatus implements StatusSink.
func (f StatusFunc) SetStatus(s schema.Status) { f(s) }

// Config holds configuration for the monitor.
type Config struct {
	// PollInterval is how often reachability is re-checked.
	PollInterval time.Duration

	// ProbeTimeout bounds a single probe.
	ProbeTimeout time.Duration

	// ReconnectEvery and ReconnectBurst throttle syncs triggered by online
	// events, so a flapping link does not start a cycle per flap.
	ReconnectEvery time.Duration
	ReconnectBurst int

	// HasLocalData reports whether the store has ever been populated.
	HasLocalData func(ctx context.Context) (bool, error)

	// Sync runs one sync cycle.
	Sync func(ctx context.Context) error

	// IsSyncing reports whether a cycle is in flight. While it is, probe
	// results do not overwrite the "syncing" indicator.
	IsSyncing func() bool

	// Logger for monitor activity
	Logger *log.Logger
}

const defaultProbeTimeout = 10 * time.Second

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		PollInterval:   30 * time.Second,
		ProbeTimeout:   defaultProbeTimeout,
		ReconnectEvery: 10 * time.Second,
		ReconnectBurst: 1,
		Logger:         log.New(os.Stderr, "[connectivity] ", log.LstdFlags),
	}
}

// Monitor maintains the online/offline status.
type Monitor struct {
	prober  Prober
	sink    StatusSink
	config  *Config
	logger  *log.Logger
	probes  singleflight.Group
	limiter *rate.Limiter

	mu     sync.RWMutex
	status schema.Status
}

// New creates a Monitor. The initial status is offline until the first
// check completes.
func New(prober Prober, sink StatusSink, config *Config) *Monitor {
	if config == nil {
		config = DefaultConfig()
	}
	logger := config.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	every := rate.Inf
	if config.ReconnectEvery > 0 {
		every = rate.Every(config.ReconnectEvery)
	}
	burst := config.ReconnectBurst
	if burst < 1 {
		burst = 1
	}
	return &Monitor{
		prober:  prober,
		sink:    sink,
		config:  config,
		logger:  logger,
		limiter: rate.NewLimiter(every, burst),
		status:  schema.StatusOffline,
	}
}

// Status returns the last observed reachability.
func (m *Monitor) Status() schema.Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// Check probes the server and updates the status. It never fails: any
// error or non-2xx response means offline. Concurrent callers share one
// probe. A cancelled ctx returns false without touching the status.
func (m *Monitor) Check(ctx context.Context) bool {
	ch := m.probes.DoChan("health", func() (interface{}, error) {
		// The probe is shared, so one caller giving up must not fail it
		// for the others.
		timeout := m.config.ProbeTimeout
		if timeout <= 0 {
			timeout = defaultProbeTimeout
		}
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()
		return m.prober.Health(pctx) == nil, nil
	})

	var online bool
	select {
	case <-ctx.Done():
		return false
	case res := <-ch:
		online, _ = res.Val.(bool)
	}

	m.setStatus(online)
	return online
}

func (m *Monitor) setStatus(online bool) {
	status := schema.StatusOffline
	if online {
		status = schema.StatusOnline
	}

	m.mu.Lock()
	changed := m.status != status
	m.status = status
	m.mu.Unlock()

	if changed {
		m.logger.Printf("Server is %s", status)
	}
	if m.config.IsSyncing != nil && m.config.IsSyncing() {
		return
	}
	if m.sink != nil {
		m.sink.SetStatus(status)
	}
}

// Start performs the initial check and, if online with local data, one
// sync cycle. It returns whether a cycle was started.
func (m *Monitor) Start(ctx context.Context) bool {
	return m.reconnect(ctx, "startup")
}

// HandleOnline reacts to the host reporting that the network came back.
// It returns whether a cycle was started.
func (m *Monitor) HandleOnline(ctx context.Context) bool {
	return m.reconnect(ctx, "online event")
}

func (m *Monitor) reconnect(ctx context.Context, reason string) bool {
	if !m.Check(ctx) {
		return false
	}
	if m.config.Sync == nil {
		return false
	}
	if m.config.HasLocalData != nil {
		ok, err := m.config.HasLocalData(ctx)
		if err != nil {
			m.logger.Printf("Error checking local data: %v", err)
			return false
		}
		if !ok {
			m.logger.Printf("Skipping %s sync: no local data yet", reason)
			return false
		}
	}
	if !m.limiter.Allow() {
		m.logger.Printf("Skipping %s sync: throttled", reason)
		return false
	}

	m.logger.Printf("Connected (%s), syncing", reason)
	if err := m.config.Sync(ctx); err != nil {
		m.logger.Printf("Sync after %s failed: %v", reason, err)
	}
	return true
}

// Run polls reachability until ctx is cancelled. Polling never starts a
// sync.
func (m *Monitor) Run(ctx context.Context) {
	interval := m.config.PollInterval
	if interval <= 0 {
		interval = DefaultConfig().PollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Check(ctx)
		}
	}
}
