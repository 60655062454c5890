// Package profile is the profile panel: it shows the user's contact and
// organisation, flags the profile when either is missing, and saves edits.
package profile

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/0x6d61/necrosis/internal/api"
	"github.com/0x6d61/necrosis/internal/notify"
	"github.com/0x6d61/necrosis/internal/session"
)

// User-facing messages.
const (
	MsgUpdated      = "Profile updated!"
	MsgUpdateFailed = "Failed to update profile."
)

// Backend is the subset of the REST client the panel calls.
type Backend interface {
	GetUser(ctx context.Context, sc *session.Context, identifier string) (*api.User, error)
	UpdateUser(ctx context.Context, sc *session.Context, identifier string, upd api.ProfileUpdate) (*api.User, error)
}

// NeedsAttention reports whether a profile is incomplete.
func NeedsAttention(contact, organisation string) bool {
	return contact == "" || organisation == ""
}

// Panel is the profile panel state.
type Panel struct {
	backend Backend
	sc      *session.Context
	notify  notify.Notifier
	log     *zap.Logger

	mu           sync.Mutex
	open         bool
	loading      bool
	saving       bool
	contact      string
	organisation string
	attention    bool
}

// Option configures a Panel.
type Option func(*Panel)

// WithNotifier sets the toast sink.
func WithNotifier(n notify.Notifier) Option {
	return func(p *Panel) {
		if n != nil {
			p.notify = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Panel) {
		if l != nil {
			p.log = l
		}
	}
}

// New creates a closed panel for the user of sc.
func New(backend Backend, sc *session.Context, opts ...Option) *Panel {
	p := &Panel{backend: backend, sc: sc, notify: notify.Discard, log: zap.NewNop()}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Refresh fetches the profile to compute the needs-attention badge. A
// failed fetch flags the profile.
func (p *Panel) Refresh(ctx context.Context) bool {
	u, err := p.fetch(ctx)

	p.mu.Lock()
	defer p.mu.Unlock()
	if err != nil {
		p.log.Debug("profile fetch failed", zap.Error(err))
		p.attention = true
		return true
	}
	p.attention = NeedsAttention(u.Contact, u.Organisation)
	return p.attention
}

// Open shows the panel and loads the editable fields. A failed fetch
// leaves them empty.
func (p *Panel) Open(ctx context.Context) {
	p.mu.Lock()
	p.open = true
	p.loading = true
	p.mu.Unlock()

	u, err := p.fetch(ctx)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.loading = false
	if err != nil {
		p.log.Debug("profile fetch failed", zap.Error(err))
		p.contact, p.organisation = "", ""
	} else {
		p.contact, p.organisation = u.Contact, u.Organisation
	}
	p.attention = NeedsAttention(p.contact, p.organisation)
}

func (p *Panel) fetch(ctx context.Context) (*api.User, error) {
	if !p.sc.Valid() {
		return nil, api.ErrNotAuthenticated
	}
	if p.sc.Username == "" {
		return nil, fmt.Errorf("profile: no username in session")
	}
	return p.backend.GetUser(ctx, p.sc, p.sc.Username)
}

// Close hides the panel without saving.
func (p *Panel) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.open = false
}

// IsOpen reports whether the panel is shown.
func (p *Panel) IsOpen() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.open
}

// Loading reports whether the fields are being fetched.
func (p *Panel) Loading() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loading
}

// Saving reports whether a save is running. Fields are read-only meanwhile.
func (p *Panel) Saving() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.saving
}

// SetContact edits the contact field.
func (p *Panel) SetContact(v string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.contact = v
	p.attention = NeedsAttention(p.contact, p.organisation)
}

// SetOrganisation edits the organisation field.
func (p *Panel) SetOrganisation(v string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.organisation = v
	p.attention = NeedsAttention(p.contact, p.organisation)
}

// Fields returns the current field values.
func (p *Panel) Fields() (contact, organisation string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.contact, p.organisation
}

// NeedsAttention returns the current badge state.
func (p *Panel) NeedsAttention() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.attention
}

// Save sends the edited fields. Success closes the panel; failure keeps it
// open with the edited values.
func (p *Panel) Save(ctx context.Context) error {
	p.mu.Lock()
	if p.saving {
		p.mu.Unlock()
		return fmt.Errorf("profile: save already running")
	}
	p.saving = true
	upd := api.ProfileUpdate{Contact: p.contact, Organisation: p.organisation}
	p.mu.Unlock()

	var err error
	if !p.sc.Valid() {
		err = api.ErrNotAuthenticated
	} else {
		_, err = p.backend.UpdateUser(ctx, p.sc, p.sc.Username, upd)
	}

	p.mu.Lock()
	p.saving = false
	if err == nil {
		p.open = false
	}
	p.mu.Unlock()

	if err != nil {
		p.log.Debug("profile update failed", zap.Error(err))
		p.notify.Notify(notify.Error, MsgUpdateFailed)
		return fmt.Errorf("profile: save: %w", notify.Fail(MsgUpdateFailed, err))
	}
	p.notify.Notify(notify.Success, MsgUpdated)
	return nil
}
