package auth

import (
	"regexp"
	"sort"
	"strings"
)

// Field keys used in FieldErrors.
const (
	FieldUsername        = "username"
	FieldEmail           = "email"
	FieldPassword        = "password"
	FieldConfirmPassword = "confirm_password"
	FieldNewPassword     = "new_password"
	FieldAgreed          = "agreed"
	FieldGeneral         = "general"
)

// Validation messages.
const (
	MsgUsernameRequired = "Username is required."
	MsgUsernameLetters  = "Username must contain only letters."
	MsgEmailRequired    = "Email is required."
	MsgEmailInvalid     = "Invalid email format."
	MsgPasswordRequired = "Password is required."
	MsgPasswordShort    = "Password must be at least 8 characters."
	MsgPasswordMix      = "Password must contain letters and numbers."
	MsgConfirmRequired  = "Please confirm your password."
	MsgConfirmMismatch  = "Passwords do not match."
	MsgAgreeRequired    = "Please agree to the Terms of Service and Privacy Policy."
)

// MinPasswordLen is the shortest accepted password.
const MinPasswordLen = 8

var (
	lettersRe = regexp.MustCompile(`^[A-Za-z]+$`)
	emailRe   = regexp.MustCompile(`^\S+@\S+\.\S+$`)
	letterRe  = regexp.MustCompile(`[A-Za-z]`)
	digitRe   = regexp.MustCompile(`[0-9]`)
)

// FieldErrors maps a form field to its message. A non-empty FieldErrors is
// an error.
type FieldErrors map[string]string

func (fe FieldErrors) Error() string {
	keys := make([]string, 0, len(fe))
	for k := range fe {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+fe[k])
	}
	return "auth: " + strings.Join(parts, "; ")
}

// set records msg for field when msg is non-empty.
func (fe FieldErrors) set(field, msg string) {
	if msg != "" {
		fe[field] = msg
	}
}

// orNil returns fe as an error, or nil when it is empty.
func (fe FieldErrors) orNil() error {
	if len(fe) == 0 {
		return nil
	}
	return fe
}

// ValidateUsername checks presence and the letters-only rule.
func ValidateUsername(username string) string {
	if username == "" {
		return MsgUsernameRequired
	}
	if !lettersRe.MatchString(username) {
		return MsgUsernameLetters
	}
	return ""
}

// ValidateEmail checks presence and the something@something.something shape.
func ValidateEmail(email string) string {
	if email == "" {
		return MsgEmailRequired
	}
	if !emailRe.MatchString(email) {
		return MsgEmailInvalid
	}
	return ""
}

// ValidatePassword checks length and that both letters and digits occur.
func ValidatePassword(password string) string {
	if password == "" {
		return MsgPasswordRequired
	}
	if len(password) < MinPasswordLen {
		return MsgPasswordShort
	}
	if !letterRe.MatchString(password) || !digitRe.MatchString(password) {
		return MsgPasswordMix
	}
	return ""
}

// ValidateConfirm checks the confirmation field.
func ValidateConfirm(password, confirm string) string {
	if confirm == "" {
		return MsgConfirmRequired
	}
	if password != confirm {
		return MsgConfirmMismatch
	}
	return ""
}

// ValidateLoginPassword only checks presence.
func ValidateLoginPassword(password string) string {
	if password == "" {
		return MsgPasswordRequired
	}
	return ""
}
