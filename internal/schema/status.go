package schema

// Status is the connection state shown by the UI status indicator.
type Status int

const (
	StatusOffline Status = iota
	StatusOnline
	StatusSyncing
)

// String returns the machine name of the status.
func (s Status) String() string {
	switch s {
	case StatusOnline:
		return "online"
	case StatusOffline:
		return "offline"
	case StatusSyncing:
		return "syncing"
	default:
		return "unknown"
	}
}

// Label returns the human label shown next to the indicator.
func (s Status) Label() string {
	switch s {
	case StatusOnline:
		return "Online"
	case StatusOffline:
		return "Offline"
	case StatusSyncing:
		return "Syncing..."
	default:
		return "Unknown"
	}
}

// MarshalText encodes the status by name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Severity classifies a toast notification.
type Severity string

const (
	SeveritySuccess Severity = "success"
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)
