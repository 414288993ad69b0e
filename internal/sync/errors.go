package sync

import (
	"context"
	"errors"
	"strings"

	"github.com/stockmaster/stocksync/internal/auth"
	"github.com/stockmaster/stocksync/internal/remote"
	"github.com/stockmaster/stocksync/internal/schema"
	"github.com/stockmaster/stocksync/internal/validate"
)

// ErrSyncInProgress is returned when Sync is called while a cycle is
// already running. The call is a no-op.
var ErrSyncInProgress = errors.New("sync already in progress")

// ErrMalformedResponse is returned when a 2xx sync response has a field of
// the wrong shape. Nothing is committed.
var ErrMalformedResponse = errors.New("malformed sync response")

// Kind classifies a failed cycle.
type Kind string

const (
	KindValidation  Kind = "validation"
	KindTransport   Kind = "transport"
	KindConflict    Kind = "conflict"
	KindRejected    Kind = "rejected"
	KindAuthExpired Kind = "auth-expired"
	KindCanceled    Kind = "canceled"
	KindInternal    Kind = "internal"
)

// Classification is the user-facing interpretation of a sync error.
type Classification struct {
	Kind     Kind
	Severity schema.Severity
	Message  string
	// Logout is set when the session must be discarded.
	Logout bool
}

// Classify maps a sync error to a toast message and severity.
func Classify(err error) Classification {
	var (
		ve *validate.ValidationError
		se *remote.ServerError
		te *remote.TransportError
	)

	switch {
	case err == nil:
		return Classification{}

	case errors.As(err, &ve):
		return Classification{
			Kind:     KindValidation,
			Severity: schema.SeverityError,
			Message:  "Sync failed: " + ve.Error(),
		}

	case errors.Is(err, remote.ErrAuthExpired), errors.Is(err, auth.ErrNotLoggedIn):
		return Classification{
			Kind:     KindAuthExpired,
			Severity: schema.SeverityError,
			Message:  "Session expired. Please login again.",
			Logout:   true,
		}

	case errors.As(err, &se) && strings.Contains(se.Detail, "Duplicate data"):
		return Classification{
			Kind:     KindConflict,
			Severity: schema.SeverityWarning,
			Message:  "Sync conflict: Some data already exists on server",
		}

	case errors.As(err, &se) && strings.Contains(se.Detail, "Validation error"):
		return Classification{
			Kind:     KindRejected,
			Severity: schema.SeverityError,
			Message:  "Sync failed: Invalid data format",
		}

	case errors.As(err, &se):
		return Classification{
			Kind:     KindRejected,
			Severity: schema.SeverityError,
			Message:  "Sync failed: " + se.Error(),
		}

	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return Classification{
			Kind:     KindCanceled,
			Severity: schema.SeverityWarning,
			Message:  "Sync cancelled",
		}

	case errors.As(err, &te):
		return Classification{
			Kind:     KindTransport,
			Severity: schema.SeverityError,
			Message:  "Sync failed: " + te.Error(),
		}
	}

	return Classification{
		Kind:     KindInternal,
		Severity: schema.SeverityError,
		Message:  "Sync failed: " + err.Error(),
	}
}
