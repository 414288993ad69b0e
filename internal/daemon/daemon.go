// Package daemon runs the background auto-sync loop.
//
// The daemon:
//  1. Checks connectivity and, if online with local data, syncs once
//  2. Re-checks connectivity on the monitor's poll interval
//  3. Syncs on a fixed interval while online and authenticated
//  4. Syncs after local edits to a file-backed store, debounced
//  5. Reacts to online events and manual sync requests
//  6. Shuts down gracefully, waiting for an in-flight cycle
package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"time"

	"github.com/stockmaster/stocksync/internal/connectivity"
	"github.com/stockmaster/stocksync/internal/schema"
	"github.com/stockmaster/stocksync/internal/store"
	stsync "github.com/stockmaster/stocksync/internal/sync"
)

// Syncer runs sync cycles. *sync.Manager satisfies it.
type Syncer interface {
	Sync(ctx context.Context, opts stsync.Options) (*stsync.Result, error)
}

// Config holds configuration for the daemon.
type Config struct {
	// AutoSyncInterval is how often a cycle runs while online.
	// Zero disables periodic sync.
	AutoSyncInterval time.Duration

	// DebounceInterval is how long local edits must settle before a cycle
	// is started. Rapid writes by the UI are batched into one cycle.
	DebounceInterval time.Duration

	// Authenticated reports whether a session exists. Periodic and
	// edit-triggered cycles are skipped without one. Nil means always.
	Authenticated func(ctx context.Context) bool

	// Logger for daemon activity
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		AutoSyncInterval: 5 * time.Minute,
		DebounceInterval: 2 * time.Second,
		Logger:           log.New(os.Stderr, "[daemon] ", log.LstdFlags),
	}
}

// Daemon drives a Syncer from timers, connectivity and local edits.
type Daemon struct {
	syncer  Syncer
	monitor *connectivity.Monitor
	watcher *store.Watcher
	config  *Config
	logger  *log.Logger

	online chan struct{}
	manual chan struct{}

	pendingMu sync.Mutex
	pending   time.Time // zero when no edit is queued

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a Daemon. watcher may be nil when the store is not file
// backed.
func New(syncer Syncer, monitor *connectivity.Monitor, watcher *store.Watcher, config *Config) (*Daemon, error) {
	if syncer == nil {
		return nil, fmt.Errorf("syncer cannot be nil")
	}
	if monitor == nil {
		return nil, fmt.Errorf("monitor cannot be nil")
	}
	if config == nil {
		config = DefaultConfig()
	}
	logger := config.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	return &Daemon{
		syncer:  syncer,
		monitor: monitor,
		watcher: watcher,
		config:  config,
		logger:  logger,
		online:  make(chan struct{}, 1),
		manual:  make(chan struct{}, 1),
	}, nil
}

// Start begins the daemon's operation and returns once the background
// goroutines are running. The startup connectivity check and its sync run
// in the background too.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running {
		return fmt.Errorf("daemon already running")
	}

	if d.watcher != nil {
		if err := d.watcher.Start(); err != nil {
			return fmt.Errorf("failed to start store watcher: %w", err)
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.running = true
	d.logger.Println("Starting daemon")

	d.wg.Add(4)
	go func() {
		defer d.wg.Done()
		d.monitor.Start(ctx)
		d.monitor.Run(ctx)
	}()
	go d.periodicSync(ctx)
	go d.triggers(ctx)
	go d.watchEdits(ctx)

	return nil
}

// Run starts the daemon and blocks until ctx is cancelled, then stops it.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	d.logger.Println("Shutdown signal received")
	return d.Stop()
}

// Stop cancels the background goroutines and waits for them, including a
// cycle in flight. It is safe to call more than once.
func (d *Daemon) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return nil
	}
	d.running = false
	cancel := d.cancel
	d.mu.Unlock()

	d.logger.Println("Stopping daemon")
	cancel()

	var err error
	if d.watcher != nil {
		if werr := d.watcher.Stop(); werr != nil {
			err = fmt.Errorf("failed to stop store watcher: %w", werr)
		}
	}

	d.wg.Wait()
	d.logger.Println("Daemon stopped")
	return err
}

// IsRunning reports whether the daemon has been started and not stopped.
func (d *Daemon) IsRunning() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

// TriggerOnline reports that the host network came back. Repeated calls
// before the daemon reacts coalesce into one.
func (d *Daemon) TriggerOnline() {
	select {
	case d.online <- struct{}{}:
	default:
	}
}

// TriggerSync requests a manual cycle with a full UI refresh. Repeated
// calls before the daemon reacts coalesce into one.
func (d *Daemon) TriggerSync() {
	select {
	case d.manual <- struct{}{}:
	default:
	}
}

func (d *Daemon) periodicSync(ctx context.Context) {
	defer d.wg.Done()

	if d.config.AutoSyncInterval <= 0 {
		return
	}
	ticker := time.NewTicker(d.config.AutoSyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if d.monitor.Status() == schema.StatusOffline {
				continue
			}
			d.runSync(ctx, "periodic", stsync.Options{})
		}
	}
}

func (d *Daemon) triggers(ctx context.Context) {
	defer d.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-d.online:
			d.monitor.HandleOnline(ctx)
		case <-d.manual:
			d.runSync(ctx, "manual", stsync.Options{Reload: true})
		}
	}
}

// watchEdits queues external store edits and syncs once they settle.
func (d *Daemon) watchEdits(ctx context.Context) {
	defer d.wg.Done()

	if d.watcher == nil {
		return
	}

	interval := d.config.DebounceInterval
	if interval <= 0 {
		interval = DefaultConfig().DebounceInterval
	}
	ticker := time.NewTicker(interval / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-d.watcher.Events():
			if !ok {
				return
			}
			d.logger.Printf("Store event: %s %s", ev.Op, ev.Slot)
			d.queueEdit(time.Now())

		case err, ok := <-d.watcher.Errors():
			if !ok {
				return
			}
			d.logger.Printf("Watcher error: %v", err)

		case now := <-ticker.C:
			if d.takeSettled(now, interval) {
				d.runSync(ctx, "local change", stsync.Options{})
			}
		}
	}
}

func (d *Daemon) queueEdit(at time.Time) {
	d.pendingMu.Lock()
	defer d.pendingMu.Unlock()
	d.pending = at
}

// takeSettled clears and reports a queued edit older than interval.
func (d *Daemon) takeSettled(now time.Time, interval time.Duration) bool {
	d.pendingMu.Lock()
	defer d.pendingMu.Unlock()

	if d.pending.IsZero() || now.Sub(d.pending) < interval {
		return false
	}
	d.pending = time.Time{}
	return true
}

func (d *Daemon) runSync(ctx context.Context, reason string, opts stsync.Options) {
	if d.config.Authenticated != nil && !d.config.Authenticated(ctx) {
		d.logger.Printf("Skipping %s sync: not logged in", reason)
		return
	}

	d.logger.Printf("Running %s sync", reason)
	if _, err := d.syncer.Sync(ctx, opts); err != nil {
		if errors.Is(err, stsync.ErrSyncInProgress) {
			d.logger.Printf("Skipping %s sync: cycle already running", reason)
			return
		}
		d.logger.Printf("Error in %s sync: %v", reason, err)
	}
}
