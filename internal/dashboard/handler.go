package dashboard

import (
	"io"
	"log"

	"github.com/stockmaster/stocksync/internal/schema"
	stsync "github.com/stockmaster/stocksync/internal/sync"
)

// Handler turns sync manager callbacks into dashboard messages. It
// satisfies connectivity.StatusSink and sync.Notifier, and OnEvent is a
// sync.Listener.
type Handler struct {
	server *Server
	logger *log.Logger
}

// NewHandler creates a new event handler connected to a dashboard server
func NewHandler(server *Server, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Handler{server: server, logger: logger}
}

// SetStatus forwards a status indicator change.
func (h *Handler) SetStatus(status schema.Status) {
	h.server.SetStatus(status)
}

// Notify forwards a toast.
func (h *Handler) Notify(message string, severity schema.Severity) {
	h.logger.Printf("Toast (%s): %s", severity, message)
	h.server.BroadcastData(MessageTypeToast, ToastData{Message: message, Severity: severity})
}

// OnEvent forwards a sync lifecycle event.
func (h *Handler) OnEvent(ev stsync.Event) {
	switch ev.Type {
	case stsync.EventSyncStart:
		h.server.BroadcastData(MessageTypeSyncStart, nil)

	case stsync.EventSyncSuccess:
		h.server.BroadcastData(MessageTypeSyncSuccess, SyncSuccessData{
			LastSyncTime: ev.Payload.LastSyncTime(),
		})

	case stsync.EventSyncError:
		h.server.BroadcastData(MessageTypeSyncError, SyncErrorData{
			Kind:    string(ev.Class.Kind),
			Message: ev.Class.Message,
		})

	case stsync.EventSyncComplete:
		h.server.BroadcastData(MessageTypeSyncComplete, nil)

	case stsync.EventStateChanged:
		h.server.BroadcastData(MessageTypeStateChanged, StateChangedData{
			Slots:  ev.Slots,
			Reload: ev.Reload,
		})

	default:
		h.logger.Printf("Ignoring unknown sync event %q", ev.Type)
	}
}
