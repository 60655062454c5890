package notify

import "errors"

// Failure pairs an underlying error with the fixed message shown to the
// user. The raw error never reaches the screen.
type Failure struct {
	Message string
	Err     error
}

// Fail wraps err with a user-facing message.
func Fail(msg string, err error) *Failure {
	return &Failure{Message: msg, Err: err}
}

func (f *Failure) Error() string {
	if f.Err == nil {
		return f.Message
	}
	return f.Message + ": " + f.Err.Error()
}

func (f *Failure) Unwrap() error { return f.Err }

// Message returns the user-facing message carried by err, or fallback when
// err carries none.
func Message(err error, fallback string) string {
	var f *Failure
	if errors.As(err, &f) && f.Message != "" {
		return f.Message
	}
	return fallback
}
