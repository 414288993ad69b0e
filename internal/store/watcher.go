package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/stockmaster/stocksync/internal/schema"
)

// EventOp is the kind of change seen on a slot file.
type EventOp int

const (
	// OpWrite indicates a slot file was created or rewritten.
	OpWrite EventOp = iota
	// OpDelete indicates a slot file was removed or renamed away.
	OpDelete
)

// String returns a human-readable representation of the operation.
func (op EventOp) String() string {
	switch op {
	case OpWrite:
		return "write"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// SlotEvent reports an external change to a business data slot.
type SlotEvent struct {
	Slot schema.Slot
	Op   EventOp
	Path string
}

// Watcher reports edits made to a Files store by other processes, such as
// the UI layer or a user with a text editor. Writes made through the same
// *Files value are not reported, nor are auth or bookkeeping slots.
type Watcher struct {
	files   *Files
	watcher *fsnotify.Watcher
	events  chan SlotEvent
	errors  chan error
	done    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewWatcher creates a Watcher for files. Call Start to begin watching.
func NewWatcher(files *Files) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	return &Watcher{
		files:   files,
		watcher: w,
		events:  make(chan SlotEvent, 100),
		errors:  make(chan error, 10),
		done:    make(chan struct{}),
	}, nil
}

// Start begins watching the store directory.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return fmt.Errorf("watcher already running")
	}
	if err := w.watcher.Add(w.files.Dir()); err != nil {
		return fmt.Errorf("failed to watch store directory %s: %w", w.files.Dir(), err)
	}

	w.running = true
	w.wg.Add(1)
	go w.processEvents()
	return nil
}

// Stop stops watching and closes the event channels. Stop is safe to call
// on a watcher that was never started.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	wasRunning := w.running
	w.running = false
	w.mu.Unlock()

	if !wasRunning {
		return w.watcher.Close()
	}

	close(w.done)
	if err := w.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	w.wg.Wait()

	close(w.events)
	close(w.errors)
	return nil
}

// Events returns the channel of external slot changes.
// It is closed when the watcher is stopped.
func (w *Watcher) Events() <-chan SlotEvent {
	return w.events
}

// Errors returns the channel of watch errors.
// It is closed when the watcher is stopped.
func (w *Watcher) Errors() <-chan error {
	return w.errors
}

// IsRunning reports whether the watcher is running.
func (w *Watcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *Watcher) processEvents() {
	defer w.wg.Done()

	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if se, ok := w.convertEvent(event); ok {
				select {
				case w.events <- se:
				case <-w.done:
					return
				}
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			select {
			case w.errors <- err:
			case <-w.done:
				return
			}
		}
	}
}

func (w *Watcher) convertEvent(event fsnotify.Event) (SlotEvent, bool) {
	slot, ok := w.files.slotFromPath(event.Name)
	if !ok || !isDataSlot(slot) {
		return SlotEvent{}, false
	}

	var op EventOp
	switch {
	case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
		op = OpWrite
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		op = OpDelete
	default:
		return SlotEvent{}, false
	}

	data, err := os.ReadFile(event.Name)
	if errors.Is(err, fs.ErrNotExist) {
		data = nil
		op = OpDelete
	} else if err != nil {
		return SlotEvent{}, false
	}
	if w.files.ownWrite(slot, data) {
		return SlotEvent{}, false
	}

	return SlotEvent{Slot: slot, Op: op, Path: event.Name}, true
}

func isDataSlot(slot schema.Slot) bool {
	for _, s := range schema.DataSlots {
		if s == slot {
			return true
		}
	}
	return false
}
