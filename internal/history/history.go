// Package history is the past-sessions panel: listing, selecting a session
// into the workspace, confirmation-guarded deletion, renaming, and
// downloading a session's processed images.
package history

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/0x6d61/necrosis/internal/api"
	"github.com/0x6d61/necrosis/internal/notify"
	"github.com/0x6d61/necrosis/internal/session"
)

// User-facing messages.
const (
	MsgLoadFailed   = "Failed to load analysis history."
	MsgDeleted      = "Session deleted successfully!"
	MsgDeleteFailed = "Failed to delete session."
	MsgRenamed      = "Session renamed."
	MsgRenameFailed = "Failed to rename session."
)

var (
	// ErrNoPendingDelete is returned by Confirm when no delete was requested.
	ErrNoPendingDelete = errors.New("history: no delete pending")

	// ErrUnknownSession is returned when an index or id is not in the list.
	ErrUnknownSession = errors.New("history: unknown session")

	// ErrEmptyName is returned by Rename for a blank name.
	ErrEmptyName = errors.New("history: session name is empty")
)

// Backend is the subset of the REST client the panel calls directly.
type Backend interface {
	ListSessions(ctx context.Context, sc *session.Context) ([]api.AnalysisSession, error)
	RenameSession(ctx context.Context, sc *session.Context, sessionID, name string) (*api.AnalysisSession, error)
	DownloadSessionImages(ctx context.Context, sc *session.Context, sessionID string) ([]byte, error)
}

// Workspace is the part of the session manager the panel drives.
type Workspace interface {
	Session() *session.Context
	LoadSession(ctx context.Context, sessionID string) error
	DeleteSession(ctx context.Context, sessionID string) error
}

// Panel is the history panel state.
type Panel struct {
	backend Backend
	ws      Workspace
	notify  notify.Notifier
	log     *zap.Logger

	mu        sync.Mutex
	open      bool
	loading   bool
	loadErr   string
	sessions  []api.AnalysisSession
	pending   *api.AnalysisSession
	deleteErr string
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

// New creates a closed panel.
func New(backend Backend, ws Workspace, opts ...Option) *Panel {
	p := &Panel{backend: backend, ws: ws, notify: notify.Discard, log: zap.NewNop()}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Open shows the panel and fetches the session list.
func (p *Panel) Open(ctx context.Context) error {
	p.mu.Lock()
	p.open = true
	p.loading = true
	p.loadErr = ""
	p.mu.Unlock()

	sessions, err := p.fetch(ctx)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.loading = false
	if err != nil {
		p.loadErr = MsgLoadFailed
		p.log.Debug("list sessions failed", zap.Error(err))
		return fmt.Errorf("history: open: %w", notify.Fail(MsgLoadFailed, err))
	}
	p.sessions = sessions
	return nil
}

func (p *Panel) fetch(ctx context.Context) ([]api.AnalysisSession, error) {
	sc := p.ws.Session()
	if !sc.Valid() {
		return nil, api.ErrNotAuthenticated
	}
	return p.backend.ListSessions(ctx, sc)
}

// Close hides the panel.
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

// Loading reports whether a list fetch is running.
func (p *Panel) Loading() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loading
}

// Err returns the load error shown in the panel, or "".
func (p *Panel) Err() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loadErr
}

// Sessions returns the listed sessions, newest first.
func (p *Panel) Sessions() []api.AnalysisSession {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]api.AnalysisSession(nil), p.sessions...)
}

// Select loads the i-th listed session into the workspace and closes the
// panel.
func (p *Panel) Select(ctx context.Context, i int) error {
	p.mu.Lock()
	if i < 0 || i >= len(p.sessions) {
		p.mu.Unlock()
		return fmt.Errorf("%w: index %d", ErrUnknownSession, i)
	}
	id := p.sessions[i].SessionID
	p.mu.Unlock()
	return p.SelectID(ctx, id)
}

// SelectID loads a session by id and closes the panel. The panel stays
// open on failure.
func (p *Panel) SelectID(ctx context.Context, id string) error {
	if err := p.ws.LoadSession(ctx, id); err != nil {
		return err
	}
	p.Close()
	return nil
}

// Resolve maps a user reference (1-based list position, full id or unique
// id prefix) to a session id.
func (p *Panel) Resolve(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", fmt.Errorf("%w: empty reference", ErrUnknownSession)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if n, err := strconv.Atoi(ref); err == nil && n >= 1 && n <= len(p.sessions) {
		return p.sessions[n-1].SessionID, nil
	}
	var match string
	for _, s := range p.sessions {
		if s.SessionID == ref {
			return ref, nil
		}
		if strings.HasPrefix(s.SessionID, ref) {
			if match != "" {
				return "", fmt.Errorf("%w: %q is ambiguous", ErrUnknownSession, ref)
			}
			match = s.SessionID
		}
	}
	if match == "" {
		return "", fmt.Errorf("%w: %q", ErrUnknownSession, ref)
	}
	return match, nil
}

// RequestDelete opens the confirmation for a session.
func (p *Panel) RequestDelete(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	target := api.AnalysisSession{SessionID: id}
	for _, s := range p.sessions {
		if s.SessionID == id {
			target = s
			break
		}
	}
	p.pending = &target
	p.deleteErr = ""
}

// PendingDelete returns the session awaiting confirmation.
func (p *Panel) PendingDelete() (api.AnalysisSession, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pending == nil {
		return api.AnalysisSession{}, false
	}
	return *p.pending, true
}

// DeleteErr returns the error shown in the confirmation, or "".
func (p *Panel) DeleteErr() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.deleteErr
}

// Cancel closes the confirmation without deleting.
func (p *Panel) Cancel() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending = nil
	p.deleteErr = ""
}

// Confirm deletes the pending session. On success it leaves the list and
// the confirmation closes; on failure the confirmation stays open with
// MsgDeleteFailed.
func (p *Panel) Confirm(ctx context.Context) error {
	p.mu.Lock()
	if p.pending == nil {
		p.mu.Unlock()
		return ErrNoPendingDelete
	}
	id := p.pending.SessionID
	p.deleteErr = ""
	p.mu.Unlock()

	if err := p.ws.DeleteSession(ctx, id); err != nil {
		p.mu.Lock()
		p.deleteErr = MsgDeleteFailed
		p.mu.Unlock()
		p.log.Debug("delete session failed", zap.String("session_id", id), zap.Error(err))
		return fmt.Errorf("history: delete: %w", notify.Fail(MsgDeleteFailed, err))
	}

	p.mu.Lock()
	kept := p.sessions[:0:0]
	for _, s := range p.sessions {
		if s.SessionID != id {
			kept = append(kept, s)
		}
	}
	p.sessions = kept
	p.pending = nil
	p.mu.Unlock()

	p.notify.Notify(notify.Success, MsgDeleted)
	return nil
}

// Rename sets a session's display name and updates the cached entry.
func (p *Panel) Rename(ctx context.Context, id, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrEmptyName
	}
	sc := p.ws.Session()
	if !sc.Valid() {
		return api.ErrNotAuthenticated
	}
	updated, err := p.backend.RenameSession(ctx, sc, id, name)
	if err != nil {
		p.notify.Notify(notify.Error, MsgRenameFailed)
		return fmt.Errorf("history: rename: %w", notify.Fail(MsgRenameFailed, err))
	}

	p.mu.Lock()
	for i := range p.sessions {
		if p.sessions[i].SessionID == id {
			p.sessions[i].SessionName = updated.SessionName
		}
	}
	p.mu.Unlock()

	p.notify.Notify(notify.Success, MsgRenamed)
	return nil
}

// Download writes the ZIP archive of a session's processed images to w.
func (p *Panel) Download(ctx context.Context, id string, w io.Writer) (int64, error) {
	sc := p.ws.Session()
	if !sc.Valid() {
		return 0, api.ErrNotAuthenticated
	}
	data, err := p.backend.DownloadSessionImages(ctx, sc, id)
	if err != nil {
		return 0, fmt.Errorf("history: download: %w", err)
	}
	n, err := w.Write(data)
	if err != nil {
		return int64(n), fmt.Errorf("history: download: write: %w", err)
	}
	return int64(n), nil
}

// DisplayName returns the session name, or a fallback built from the
// creation time.
func DisplayName(s api.AnalysisSession) string {
	if s.SessionName != "" {
		return s.SessionName
	}
	if s.CreatedAt.IsZero() {
		return s.SessionID
	}
	return "Session " + s.CreatedAt.Local().Format("2006-01-02 15:04")
}
