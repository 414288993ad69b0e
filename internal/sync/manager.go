package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"sync/atomic"
	"time"

	"github.com/stockmaster/stocksync/internal/connectivity"
	"github.com/stockmaster/stocksync/internal/normalize"
	"github.com/stockmaster/stocksync/internal/remote"
	"github.com/stockmaster/stocksync/internal/schema"
	"github.com/stockmaster/stocksync/internal/store"
	"github.com/stockmaster/stocksync/internal/validate"
)

// Transport uploads a batch. *remote.Client satisfies it.
type Transport interface {
	Sync(ctx context.Context, token string, batch *schema.Batch) (remote.Response, error)
}

// Credentials supplies the bearer token and the forced-logout action.
// *auth.Session satisfies it.
type Credentials interface {
	Token(ctx context.Context) (string, error)
	Logout(ctx context.Context) error
}

// Notifier shows a toast to the user.
type Notifier interface {
	Notify(message string, severity schema.Severity)
}

// Config holds configuration for the manager.
type Config struct {
	// Now is the clock used for normalization stamps and lastSyncTime.
	Now func() time.Time

	// Status receives indicator updates (syncing, then online or offline).
	Status connectivity.StatusSink

	// Notifier receives toasts.
	Notifier Notifier

	// Logger for sync activity
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Now:    time.Now,
		Logger: log.New(os.Stderr, "[sync] ", log.LstdFlags),
	}
}

// Options tunes one cycle.
type Options struct {
	// Reload asks subscribers for a full UI refresh after a successful
	// commit, as the manual sync button does.
	Reload bool
}

// Result describes a successful cycle.
type Result struct {
	// Response is the server payload that was committed.
	Response remote.Response
	// Slots lists the slots overwritten from the response.
	Slots []schema.Slot
	// SyncedAt is the new lastSyncTime.
	SyncedAt time.Time
	// Sent counts the records uploaded per collection.
	Sent map[schema.Slot]int
}

// Manager runs sync cycles against one store.
type Manager struct {
	store      store.Store
	transport  Transport
	creds      Credentials
	normalizer *normalize.Normalizer
	validator  *validate.Validator
	resolver   Resolver
	config     *Config
	now        func() time.Time
	logger     *log.Logger
	listeners  observers
	syncing    atomic.Bool
}

// New creates a Manager. A nil config uses DefaultConfig.
func New(st store.Store, transport Transport, creds Credentials, config *Config) *Manager {
	if config == nil {
		config = DefaultConfig()
	}
	now := config.Now
	if now == nil {
		now = time.Now
	}
	logger := config.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Manager{
		store:      st,
		transport:  transport,
		creds:      creds,
		normalizer: normalize.New(now),
		validator:  validate.New(),
		config:     config,
		now:        now,
		logger:     logger,
	}
}

// Subscribe registers l for sync events and returns a function that
// removes it.
func (m *Manager) Subscribe(l Listener) (unsubscribe func()) {
	return m.listeners.subscribe(l)
}

// IsSyncing reports whether a cycle is in flight.
func (m *Manager) IsSyncing() bool {
	return m.syncing.Load()
}

// LastSyncTime returns the time of the last successful cycle, or nil.
func (m *Manager) LastSyncTime(ctx context.Context) (*time.Time, error) {
	return store.LastSyncTime(ctx, m.store)
}

// Gather reads the whole store and normalizes it into a sync batch. It
// does not validate or transmit. For a fixed clock, two calls over an
// unmodified store encode to identical bytes.
func (m *Manager) Gather(ctx context.Context) (*schema.Batch, error) {
	raw, err := store.ReadSnapshot(ctx, m.store)
	if err != nil {
		return nil, fmt.Errorf("failed to read local store: %w", err)
	}
	return m.normalizer.Batch(raw), nil
}

// Sync runs one cycle: gather, normalize, validate, upload, commit.
//
// Only one cycle runs at a time; a concurrent call returns
// ErrSyncInProgress immediately without side effects. On failure the store
// is untouched, the status goes offline, a toast is shown, sync-error is
// emitted and, for an expired session, the user is logged out. sync-complete
// is emitted after every cycle that started.
func (m *Manager) Sync(ctx context.Context, opts Options) (*Result, error) {
	if !m.syncing.CompareAndSwap(false, true) {
		m.logger.Println("Sync already in progress")
		return nil, ErrSyncInProgress
	}
	defer func() {
		m.syncing.Store(false)
		m.listeners.emit(Event{Type: EventSyncComplete})
	}()

	m.listeners.emit(Event{Type: EventSyncStart})
	m.setStatus(schema.StatusSyncing)

	start := time.Now()
	result, err := m.cycle(ctx)
	if err != nil {
		m.fail(ctx, err)
		return nil, err
	}

	m.setStatus(schema.StatusOnline)
	m.notify("Data synchronized successfully", schema.SeveritySuccess)
	m.logger.Printf("Sync complete in %v (%d slots replaced)", time.Since(start).Round(time.Millisecond), len(result.Slots))

	m.listeners.emit(Event{Type: EventSyncSuccess, Payload: result.Response})
	m.listeners.emit(Event{Type: EventStateChanged, Slots: result.Slots, Reload: opts.Reload})
	return result, nil
}

func (m *Manager) cycle(ctx context.Context) (*Result, error) {
	batch, err := m.Gather(ctx)
	if err != nil {
		return nil, err
	}

	if err := m.validator.Validate(batch); err != nil {
		return nil, err
	}

	token, err := m.creds.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials: %w", err)
	}

	resp, err := m.transport.Sync(ctx, token, batch)
	if err != nil {
		return nil, err
	}

	syncedAt := m.now().UTC()
	values, slots, err := commitValues(resp, syncedAt)
	if err != nil {
		return nil, err
	}
	if err := m.store.PutAll(ctx, values); err != nil {
		return nil, fmt.Errorf("failed to commit sync response: %w", err)
	}

	return &Result{
		Response: resp,
		Slots:    slots,
		SyncedAt: syncedAt,
		Sent:     sentCounts(batch),
	}, nil
}

// commitValues builds the store writes for a response: every data slot the
// response carries (absent and null keys are skipped) plus lastSyncTime.
// Shapes are checked first so a bad field rejects the whole response.
func commitValues(resp remote.Response, syncedAt time.Time) (map[schema.Slot][]byte, []schema.Slot, error) {
	values := make(map[schema.Slot][]byte, len(schema.DataSlots)+1)
	var slots []schema.Slot

	for _, slot := range schema.DataSlots {
		raw, ok := resp.Field(slot.String())
		if !ok {
			continue
		}
		raw = bytes.TrimSpace(raw)
		want := byte('{')
		if slot.IsCollection() {
			want = '['
		}
		if len(raw) == 0 || raw[0] != want {
			return nil, nil, fmt.Errorf("%w: %s has the wrong type", ErrMalformedResponse, slot)
		}
		values[slot] = raw
		slots = append(slots, slot)
	}

	ts, err := json.Marshal(syncedAt.Format(time.RFC3339Nano))
	if err != nil {
		return nil, nil, err
	}
	values[schema.SlotLastSyncTime] = ts
	return values, slots, nil
}

func (m *Manager) fail(ctx context.Context, err error) {
	class := Classify(err)
	m.logger.Printf("Sync failed (%s): %v", class.Kind, err)

	m.setStatus(schema.StatusOffline)
	m.notify(class.Message, class.Severity)
	m.listeners.emit(Event{Type: EventSyncError, Err: err, Class: class})

	if class.Logout {
		// The cycle's ctx may already be done; logout must still clear
		// the local session.
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if lerr := m.creds.Logout(lctx); lerr != nil {
			m.logger.Printf("Error logging out: %v", lerr)
		}
	}
}

// ClearLocalData removes every business slot and lastSyncTime. The auth
// session is kept.
func (m *Manager) ClearLocalData(ctx context.Context) error {
	if err := m.store.Delete(ctx, schema.LocalDataSlots...); err != nil {
		return fmt.Errorf("failed to clear local data: %w", err)
	}
	m.logger.Println("Local data cleared")
	m.listeners.emit(Event{Type: EventStateChanged, Slots: schema.LocalDataSlots, Reload: true})
	return nil
}

// Merge folds a server snapshot into the store with the union-by-id policy
// of Resolver and commits the affected slots atomically. It is the explicit
// alternative to the replacing commit of Sync and does not contact the
// server.
func (m *Manager) Merge(ctx context.Context, server remote.Response) ([]schema.Slot, error) {
	local, err := store.ReadSnapshot(ctx, m.store)
	if err != nil {
		return nil, fmt.Errorf("failed to read local store: %w", err)
	}
	remoteSnap, err := decodeSnapshot(server)
	if err != nil {
		return nil, err
	}

	has := func(slot schema.Slot) bool {
		_, ok := server.Field(slot.String())
		return ok
	}
	merged := m.resolver.MergeAll(local, remoteSnap, has)

	values := make(map[schema.Slot][]byte)
	var slots []schema.Slot
	for _, slot := range schema.DataSlots {
		if !has(slot) {
			continue
		}
		var v any = merged.Collection(slot)
		if slot == schema.SlotSettings {
			v = merged.Settings
		}
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s: %w", slot, err)
		}
		values[slot] = data
		slots = append(slots, slot)
	}
	if len(values) == 0 {
		return nil, nil
	}

	if err := m.store.PutAll(ctx, values); err != nil {
		return nil, fmt.Errorf("failed to commit merge: %w", err)
	}
	m.logger.Printf("Merged %d slots", len(slots))
	m.listeners.emit(Event{Type: EventStateChanged, Slots: slots, Reload: true})
	return slots, nil
}

func decodeSnapshot(resp remote.Response) (*schema.RawSnapshot, error) {
	snap := &schema.RawSnapshot{}
	decode := func(raw json.RawMessage, v any) error {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		return dec.Decode(v)
	}
	for _, slot := range schema.CollectionSlots {
		raw, ok := resp.Field(slot.String())
		if !ok {
			continue
		}
		var records []schema.Record
		if err := decode(raw, &records); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformedResponse, slot, err)
		}
		snap.SetCollection(slot, records)
	}
	if raw, ok := resp.Field(schema.SlotSettings.String()); ok {
		if err := decode(raw, &snap.Settings); err != nil {
			return nil, fmt.Errorf("%w: settings: %v", ErrMalformedResponse, err)
		}
	}
	return snap, nil
}

func sentCounts(b *schema.Batch) map[schema.Slot]int {
	return map[schema.Slot]int{
		schema.SlotProducts:    len(b.Products),
		schema.SlotCategories:  len(b.Categories),
		schema.SlotSuppliers:   len(b.Suppliers),
		schema.SlotSales:       len(b.Sales),
		schema.SlotPurchases:   len(b.Purchases),
		schema.SlotAdjustments: len(b.Adjustments),
		schema.SlotActivities:  len(b.Activities),
	}
}

func (m *Manager) setStatus(s schema.Status) {
	if m.config.Status != nil {
		m.config.Status.SetStatus(s)
	}
}

func (m *Manager) notify(msg string, sev schema.Severity) {
	if m.config.Notifier != nil {
		m.config.Notifier.Notify(msg, sev)
	}
}
