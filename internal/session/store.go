// Package session holds the authenticated session context and its
// persistence. A Context is created on login, handed to every component
// that performs authenticated calls, and destroyed on logout.
package session

import (
	"context"
	"errors"
	"time"
)

// ErrNoSession is returned when no authenticated session is stored.
var ErrNoSession = errors.New("session: not logged in")

// Persisted keys. They are written together on login and cleared together
// on logout.
const (
	KeyToken    = "token"
	KeyEmail    = "userEmail"
	KeyUsername = "username"
)

// Context is the explicit session context of a logged-in user.
type Context struct {
	Token     string    `json:"token"`
	Email     string    `json:"email"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
}

// Valid reports whether c carries a usable token.
func (c *Context) Valid() bool {
	return c != nil && c.Token != ""
}

// Store persists and retrieves the session context.
type Store interface {
	Save(ctx context.Context, sc *Context) error
	// Load returns ErrNoSession when nothing is stored.
	Load(ctx context.Context) (*Context, error)
	Clear(ctx context.Context) error
	Close() error
}

// RedactToken safely redacts a token for logging purposes.
func RedactToken(tok string) string {
	if tok == "" {
		return ""
	}
	if len(tok) <= 4 {
		return "***"
	}
	return tok[:4] + "***"
}
