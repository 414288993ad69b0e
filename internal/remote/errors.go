package remote

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrAuthExpired is matched (via errors.Is) by any ServerError carrying
// HTTP 401. The session must be discarded and the user sent to login.
var ErrAuthExpired = errors.New("authentication expired")

// TransportError is a failure before a structured response was received:
// DNS, dial, TLS, timeouts, a truncated body or an undecodable success body.
type TransportError struct {
	Op  string
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ServerError is a non-2xx response.
type ServerError struct {
	Status int
	// Detail is the server's error message, when the body carried one.
	Detail string
}

func (e *ServerError) Error() string {
	if e.Detail != "" {
		return e.Detail
	}
	return fmt.Sprintf("request failed with status %d", e.Status)
}

// Is makes errors.Is(err, ErrAuthExpired) hold for 401 responses.
func (e *ServerError) Is(target error) bool {
	return target == ErrAuthExpired && e.Status == http.StatusUnauthorized
}

// IsTransportError reports whether err is or wraps a *TransportError.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// parseDetail extracts the error message from a response body. Both a plain
// {"detail": "..."} and the list form [{"loc": [...], "msg": "..."}] used
// for request validation failures are understood.
func parseDetail(body []byte) string {
	var envelope struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || len(envelope.Detail) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(envelope.Detail, &s); err == nil {
		return strings.TrimSpace(s)
	}

	var items []struct {
		Loc []any  `json:"loc"`
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(envelope.Detail, &items); err == nil {
		msgs := make([]string, 0, len(items))
		for _, it := range items {
			if it.Msg == "" {
				continue
			}
			if loc := joinLoc(it.Loc); loc != "" {
				msgs = append(msgs, loc+": "+it.Msg)
			} else {
				msgs = append(msgs, it.Msg)
			}
		}
		if len(msgs) > 0 {
			return "Validation error: " + strings.Join(msgs, "; ")
		}
	}

	return strings.TrimSpace(string(envelope.Detail))
}

func joinLoc(loc []any) string {
	parts := make([]string, 0, len(loc))
	for _, p := range loc {
		if s := fmt.Sprint(p); s != "body" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, ".")
}
