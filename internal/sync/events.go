package sync

import (
	"sync"

	"github.com/stockmaster/stocksync/internal/remote"
	"github.com/stockmaster/stocksync/internal/schema"
)

// EventType names a sync lifecycle event.
type EventType string

const (
	// EventSyncStart fires when a cycle begins.
	EventSyncStart EventType = "sync-start"
	// EventSyncSuccess fires after the server response is committed.
	// Event.Payload carries the response.
	EventSyncSuccess EventType = "sync-success"
	// EventSyncError fires when a cycle fails. Event.Err and Event.Class
	// describe the failure.
	EventSyncError EventType = "sync-error"
	// EventSyncComplete fires at the end of every cycle, after the
	// in-progress flag is cleared.
	EventSyncComplete EventType = "sync-complete"
	// EventStateChanged fires whenever slots were overwritten by the core
	// (sync commit, merge, clear). UIs re-read the listed slots, or
	// everything when Reload is set.
	EventStateChanged EventType = "state-changed"
)

// Event is delivered to listeners.
type Event struct {
	Type EventType

	// Payload is the server response (EventSyncSuccess).
	Payload remote.Response

	// Err and Class describe a failure (EventSyncError).
	Err   error
	Class Classification

	// Slots lists the slots that were replaced (EventStateChanged).
	Slots []schema.Slot
	// Reload asks the UI for a full refresh (EventStateChanged).
	Reload bool
}

// Listener receives sync events. Listeners run synchronously on the
// goroutine that runs the cycle and must not call Sync.
type Listener func(Event)

// observers is an ordered listener list safe for concurrent use.
type observers struct {
	mu     sync.Mutex
	nextID int
	byID   map[int]Listener
	order  []int
}

func (o *observers) subscribe(l Listener) func() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.byID == nil {
		o.byID = make(map[int]Listener)
	}
	id := o.nextID
	o.nextID++
	o.byID[id] = l
	o.order = append(o.order, id)

	var once sync.Once
	return func() {
		once.Do(func() {
			o.mu.Lock()
			defer o.mu.Unlock()
			delete(o.byID, id)
			for i, v := range o.order {
				if v == id {
					o.order = append(o.order[:i:i], o.order[i+1:]...)
					break
				}
			}
		})
	}
}

func (o *observers) snapshot() []Listener {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]Listener, 0, len(o.order))
	for _, id := range o.order {
		out = append(out, o.byID[id])
	}
	return out
}

func (o *observers) emit(ev Event) {
	for _, l := range o.snapshot() {
		l(ev)
	}
}
