package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

var (
	// ErrUnavailable wraps transport-level failures (connection refused,
	// timeouts, cancelled contexts).
	ErrUnavailable = errors.New("api: backend unavailable")

	// ErrNotAuthenticated is returned when an authenticated call is made
	// without a valid session context.
	ErrNotAuthenticated = errors.New("api: not authenticated")
)

// generalKeys are DRF error keys that are not bound to a form field.
var generalKeys = []string{"non_field_errors", "detail", "error", "message"}

// Error is a backend rejection: a non-2xx response, with its field-level
// messages when the body is a DRF error map.
type Error struct {
	StatusCode int
	Fields     map[string][]string
	Message    string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api: status %d: %s", e.StatusCode, e.Message)
	}
	if len(e.Fields) > 0 {
		keys := make([]string, 0, len(e.Fields))
		for k := range e.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, k+": "+strings.Join(e.Fields[k], " "))
		}
		return fmt.Sprintf("api: status %d: %s", e.StatusCode, strings.Join(parts, "; "))
	}
	return fmt.Sprintf("api: status %d", e.StatusCode)
}

// Field returns the first message for a field, or "".
func (e *Error) Field(name string) string {
	if msgs := e.Fields[name]; len(msgs) > 0 {
		return msgs[0]
	}
	return ""
}

// parseError builds an Error from a non-2xx response body. Bodies that are
// not JSON objects leave Fields empty.
func parseError(status int, body []byte) *Error {
	e := &Error{StatusCode: status, Fields: map[string][]string{}}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return e
	}

	for key, val := range raw {
		msgs := decodeMessages(val)
		if len(msgs) == 0 {
			continue
		}
		e.Fields[key] = msgs
	}

	for _, key := range generalKeys {
		if msgs, ok := e.Fields[key]; ok {
			e.Message = msgs[0]
			delete(e.Fields, key)
			break
		}
	}
	return e
}

// decodeMessages accepts "msg", ["msg", ...] or any other JSON value.
func decodeMessages(val json.RawMessage) []string {
	var list []string
	if err := json.Unmarshal(val, &list); err == nil {
		return list
	}
	var single string
	if err := json.Unmarshal(val, &single); err == nil {
		return []string{single}
	}
	s := strings.TrimSpace(string(val))
	if s == "" || s == "null" {
		return nil
	}
	return []string{s}
}

// AsError unwraps a backend rejection.
func AsError(err error) (*Error, bool) {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// IsNotFound reports whether err is a 404 rejection.
func IsNotFound(err error) bool {
	e, ok := AsError(err)
	return ok && e.StatusCode == http.StatusNotFound
}

// IsRetryable reports whether a failed call may succeed if repeated
// unchanged: transport failures and server-side errors.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrUnavailable) {
		return true
	}
	e, ok := AsError(err)
	return ok && e.StatusCode >= 500
}
