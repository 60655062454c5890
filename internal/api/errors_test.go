package api

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestParseError(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantMsg   string
		wantField map[string]string
	}{
		{
			name:      "field list",
			body:      `{"username":["Username already exists."]}`,
			wantField: map[string]string{"username": "Username already exists."},
		},
		{
			name:      "field string",
			body:      `{"new_password":"Password must be at least 8 characters."}`,
			wantField: map[string]string{"new_password": "Password must be at least 8 characters."},
		},
		{
			name:    "non field errors",
			body:    `{"non_field_errors":["Invalid email or password."]}`,
			wantMsg: "Invalid email or password.",
		},
		{
			name:    "detail",
			body:    `{"detail":"Session not found."}`,
			wantMsg: "Session not found.",
		},
		{
			name: "not json",
			body: `<html>oops</html>`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := parseError(http.StatusBadRequest, []byte(tt.body))
			if e.Message != tt.wantMsg {
				t.Errorf("Message = %q, want %q", e.Message, tt.wantMsg)
			}
			for k, v := range tt.wantField {
				if got := e.Field(k); got != v {
					t.Errorf("Field(%q) = %q, want %q", k, got, v)
				}
			}
			if len(tt.wantField) == 0 && len(e.Fields) != 0 {
				t.Errorf("Fields = %v, want empty", e.Fields)
			}
		})
	}
}

func TestErrorString(t *testing.T) {
	e := &Error{StatusCode: 400, Fields: map[string][]string{"b": {"second"}, "a": {"first"}}}
	if got, want := e.Error(), "api: status 400: a: first; b: second"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	e = &Error{StatusCode: 404, Message: "Session not found."}
	if got, want := e.Error(), "api: status 404: Session not found."; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestErrorHelpers(t *testing.T) {
	wrapped := fmt.Errorf("history: load: %w", &Error{StatusCode: http.StatusNotFound})
	if !IsNotFound(wrapped) {
		t.Error("IsNotFound(wrapped 404) = false")
	}
	if IsRetryable(wrapped) {
		t.Error("IsRetryable(404) = true")
	}
	if !IsRetryable(&Error{StatusCode: http.StatusBadGateway}) {
		t.Error("IsRetryable(502) = false")
	}
	if IsRetryable(nil) {
		t.Error("IsRetryable(nil) = true")
	}
	if IsRetryable(errors.New("other")) {
		t.Error("IsRetryable(plain) = true")
	}
}
