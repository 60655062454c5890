// Package notify holds transient toast notifications. Toasts expire a fixed
// time after they are posted; readers only ever see live ones.
package notify

import (
	"sync"
	"time"
)

// DefaultTTL is how long a toast stays visible.
const DefaultTTL = 2500 * time.Millisecond

// Kind classifies a toast.
type Kind int

const (
	Success Kind = iota
	Error
	Info
)

func (k Kind) String() string {
	switch k {
	case Success:
		return "success"
	case Error:
		return "error"
	default:
		return "info"
	}
}

// Toast is one notification.
type Toast struct {
	Kind     Kind
	Message  string
	PostedAt time.Time
}

// Notifier receives toasts from components.
type Notifier interface {
	Notify(kind Kind, msg string)
}

// Board is a Notifier that keeps toasts until they expire.
type Board struct {
	TTL time.Duration
	// Now is the clock; tests replace it.
	Now func() time.Time

	mu     sync.Mutex
	toasts []Toast
	subs   []func(Toast)
}

// NewBoard returns a board with the default TTL.
func NewBoard() *Board {
	return &Board{TTL: DefaultTTL, Now: time.Now}
}

// Notify posts a toast and hands it to subscribers.
func (b *Board) Notify(kind Kind, msg string) {
	b.mu.Lock()
	t := Toast{Kind: kind, Message: msg, PostedAt: b.now()}
	b.toasts = append(b.toasts, t)
	b.pruneLocked()
	subs := append(([]func(Toast))(nil), b.subs...)
	b.mu.Unlock()

	for _, fn := range subs {
		fn(t)
	}
}

// Subscribe registers fn to be called for every new toast.
func (b *Board) Subscribe(fn func(Toast)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, fn)
}

// Active returns the toasts that have not expired, oldest first.
func (b *Board) Active() []Toast {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pruneLocked()
	return append([]Toast(nil), b.toasts...)
}

// Latest returns the newest live toast.
func (b *Board) Latest() (Toast, bool) {
	active := b.Active()
	if len(active) == 0 {
		return Toast{}, false
	}
	return active[len(active)-1], true
}

func (b *Board) pruneLocked() {
	ttl := b.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now := b.now()
	i := 0
	for ; i < len(b.toasts); i++ {
		if now.Sub(b.toasts[i].PostedAt) < ttl {
			break
		}
	}
	b.toasts = b.toasts[i:]
}

func (b *Board) now() time.Time {
	if b.Now == nil {
		return time.Now()
	}
	return b.Now()
}

// Discard drops every toast.
var Discard Notifier = discard{}

type discard struct{}

func (discard) Notify(Kind, string) {}
