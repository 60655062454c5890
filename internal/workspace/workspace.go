// Package workspace is the analysis session manager behind the landing
// screen. It owns one tagged state: either staging images for a first
// submission, or viewing results with further images pending for the same
// session. Every mutation goes through a Workspace method; readers take a
// Snapshot.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/0x6d61/necrosis/internal/api"
	"github.com/0x6d61/necrosis/internal/notify"
	"github.com/0x6d61/necrosis/internal/session"
	"github.com/0x6d61/necrosis/internal/upload"
	"github.com/0x6d61/necrosis/internal/viewer"
)

// User-facing messages.
const (
	MsgWelcome       = "Welcome! Ready for a new analysis session."
	MsgAnalyzed      = "New analysis started!"
	MsgAnalyzeFailed = "Failed to analyze images. Please try again."
	MsgNewSession    = "Ready for a new analysis session!"
	MsgLoaded        = "Session results loaded. You can upload more images to this session."
	MsgLoadFailed    = "Failed to load session results."
)

var (
	// ErrSubmitInFlight is returned when Submit is called while an earlier
	// submission has not completed.
	ErrSubmitInFlight = errors.New("workspace: submission already in flight")

	// ErrNothingStaged is returned by Submit when there is nothing to send
	// and no results to show.
	ErrNothingStaged = errors.New("workspace: no images staged")
)

// Mode tags the workspace state.
type Mode int

const (
	// ModeStaging collects images for the first submission of a session.
	ModeStaging Mode = iota
	// ModeViewing shows results; staged images are pending additions to
	// the active session.
	ModeViewing
)

func (m Mode) String() string {
	if m == ModeViewing {
		return "viewing"
	}
	return "staging"
}

// Backend is the subset of the REST client the workspace calls.
type Backend interface {
	Analyze(ctx context.Context, sc *session.Context, images []upload.Image, sessionID string) (*api.AnalysisResponse, error)
	SessionResults(ctx context.Context, sc *session.Context, sessionID string) (*api.AnalysisResponse, error)
	DeleteSession(ctx context.Context, sc *session.Context, sessionID string) error
	ClearSessionImages(ctx context.Context, sc *session.Context) error
}

// State is a copy of the workspace state.
type State struct {
	Mode Mode
	// Staged holds images not yet submitted. In ModeStaging they are the
	// selection; in ModeViewing they are pending for the active session.
	Staged []upload.Image
	// Submitted records images already sent in this session.
	Submitted []upload.Image
	Results   []api.Result
	SessionID string
	CreatedAt time.Time
	Page      int
	// Populated is the upload-area flag of ModeStaging.
	Populated bool
	InFlight  bool
}

// Workspace is safe for concurrent use. Network calls run outside the lock.
type Workspace struct {
	backend Backend
	notify  notify.Notifier
	log     *zap.Logger
	pager   viewer.Pager

	mu    sync.Mutex
	sc    *session.Context
	state State
	// seq[i] is the staging number of state.Staged[i].
	seq     []uint64
	nextSeq uint64
	// gen increments on every reset so a late response can tell it is stale.
	gen uint64
}

// Option configures a Workspace.
type Option func(*Workspace)

// WithNotifier sets the toast sink.
func WithNotifier(n notify.Notifier) Option {
	return func(w *Workspace) {
		if n != nil {
			w.notify = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(w *Workspace) {
		if l != nil {
			w.log = l
		}
	}
}

// WithPageSize sets the number of result cards per page.
func WithPageSize(n int) Option {
	return func(w *Workspace) { w.pager = viewer.Pager{Size: n} }
}

// New creates a workspace for the given session context. Call Mount before
// use.
func New(backend Backend, sc *session.Context, opts ...Option) *Workspace {
	w := &Workspace{
		backend: backend,
		notify:  notify.Discard,
		log:     zap.NewNop(),
		pager:   viewer.Pager{Size: viewer.DefaultPageSize},
		sc:      sc,
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

// Mount starts a fresh workspace. Prior in-memory state is discarded; a
// previous analysis session is never restored.
func (w *Workspace) Mount() {
	w.mu.Lock()
	w.resetLocked()
	w.mu.Unlock()
	w.notify.Notify(notify.Success, MsgWelcome)
}

// Session returns the session context, nil after Logout.
func (w *Workspace) Session() *session.Context {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.sc
}

// Pager returns the pager used for result pages.
func (w *Workspace) Pager() viewer.Pager { return w.pager }

// Snapshot returns a copy of the current state.
func (w *Workspace) Snapshot() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	s := w.state
	s.Staged = append([]upload.Image(nil), w.state.Staged...)
	s.Submitted = append([]upload.Image(nil), w.state.Submitted...)
	s.Results = append([]api.Result(nil), w.state.Results...)
	return s
}

// Stage adds the accepted subset of files to the staged list and returns
// how many were accepted. A batch with nothing accepted changes nothing.
func (w *Workspace) Stage(files []upload.Image) int {
	accepted := upload.Filter(files)
	if len(accepted) == 0 {
		return 0
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.state.Staged = append(w.state.Staged, accepted...)
	for range accepted {
		w.nextSeq++
		w.seq = append(w.seq, w.nextSeq)
	}
	if w.state.Mode == ModeStaging {
		w.state.Populated = true
	}
	return len(accepted)
}

// Remove drops the staged image at index i.
func (w *Workspace) Remove(i int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if i < 0 || i >= len(w.state.Staged) {
		return fmt.Errorf("workspace: remove: index %d out of range", i)
	}
	w.state.Staged = append(w.state.Staged[:i:i], w.state.Staged[i+1:]...)
	w.seq = append(w.seq[:i:i], w.seq[i+1:]...)
	if w.state.Mode == ModeStaging && len(w.state.Staged) == 0 {
		w.state.Populated = false
	}
	return nil
}

// Submit sends the staged images to the backend, attached to the active
// session when there is one. On failure the staged images are kept and the
// error carries MsgAnalyzeFailed.
func (w *Workspace) Submit(ctx context.Context) error {
	w.mu.Lock()
	if w.state.InFlight {
		w.mu.Unlock()
		return ErrSubmitInFlight
	}
	if len(w.state.Staged) == 0 {
		defer w.mu.Unlock()
		if len(w.state.Results) == 0 {
			return ErrNothingStaged
		}
		w.state.Mode = ModeViewing
		w.state.Page = 0
		return nil
	}
	sc := w.sc
	if !sc.Valid() {
		w.mu.Unlock()
		return api.ErrNotAuthenticated
	}
	sent := append([]upload.Image(nil), w.state.Staged...)
	sentSeq := make(map[uint64]bool, len(w.seq))
	for _, n := range w.seq {
		sentSeq[n] = true
	}
	sessionID := w.state.SessionID
	gen := w.gen
	w.state.InFlight = true
	w.mu.Unlock()

	w.log.Debug("submitting images",
		zap.Int("count", len(sent)),
		zap.String("session_id", sessionID),
	)
	resp, err := w.backend.Analyze(ctx, sc, sent, sessionID)

	w.mu.Lock()
	w.state.InFlight = false
	if err != nil {
		w.mu.Unlock()
		w.log.Debug("analyze failed", zap.Error(err))
		w.notify.Notify(notify.Error, MsgAnalyzeFailed)
		return fmt.Errorf("workspace: submit: %w", notify.Fail(MsgAnalyzeFailed, err))
	}
	if gen != w.gen {
		w.mu.Unlock()
		w.log.Debug("discarding stale analyze response", zap.String("session_id", resp.SessionID))
		return nil
	}

	w.state.Results = append(w.state.Results, resp.Results...)
	w.state.Mode = ModeViewing
	w.state.Page = 0
	w.state.SessionID = resp.SessionID
	w.state.CreatedAt = resp.CreatedAt
	w.state.Submitted = append(w.state.Submitted, sent...)
	// Images staged while the request was in flight stay pending.
	var pending []upload.Image
	var pendingSeq []uint64
	for i, n := range w.seq {
		if !sentSeq[n] {
			pending = append(pending, w.state.Staged[i])
			pendingSeq = append(pendingSeq, n)
		}
	}
	w.state.Staged = pending
	w.seq = pendingSeq
	w.mu.Unlock()

	w.notify.Notify(notify.Success, MsgAnalyzed)
	return nil
}

// NewSession abandons the active session and returns to staging.
func (w *Workspace) NewSession() {
	w.mu.Lock()
	w.resetLocked()
	w.mu.Unlock()
	w.notify.Notify(notify.Success, MsgNewSession)
}

// LoadSession replaces the results with those stored for sessionID and
// makes it the active session.
func (w *Workspace) LoadSession(ctx context.Context, sessionID string) error {
	sc := w.Session()
	if !sc.Valid() {
		return api.ErrNotAuthenticated
	}

	resp, err := w.backend.SessionResults(ctx, sc, sessionID)
	if err != nil {
		w.log.Debug("load session failed", zap.String("session_id", sessionID), zap.Error(err))
		w.notify.Notify(notify.Error, MsgLoadFailed)
		return fmt.Errorf("workspace: load session: %w", notify.Fail(MsgLoadFailed, err))
	}

	w.mu.Lock()
	w.gen++
	w.seq = nil
	w.state = State{
		Mode:      ModeViewing,
		Results:   append([]api.Result(nil), resp.Results...),
		SessionID: resp.SessionID,
		CreatedAt: resp.CreatedAt,
		InFlight:  w.state.InFlight,
	}
	if w.state.SessionID == "" {
		w.state.SessionID = sessionID
	}
	w.mu.Unlock()

	w.notify.Notify(notify.Success, MsgLoaded)
	return nil
}

// DeleteSession deletes a session on the backend. Deleting the active
// session resets the workspace to a fresh staging state.
func (w *Workspace) DeleteSession(ctx context.Context, sessionID string) error {
	sc := w.Session()
	if !sc.Valid() {
		return api.ErrNotAuthenticated
	}
	if err := w.backend.DeleteSession(ctx, sc, sessionID); err != nil {
		return fmt.Errorf("workspace: delete session: %w", err)
	}

	w.mu.Lock()
	if w.state.SessionID == sessionID {
		w.resetLocked()
	}
	w.mu.Unlock()
	return nil
}

// Logout asks the backend to purge the latest session's images, ignoring
// any failure, then drops all images locally while keeping the textual
// results on screen. The session context is released.
func (w *Workspace) Logout(ctx context.Context) {
	sc := w.Session()
	if sc.Valid() {
		if err := w.backend.ClearSessionImages(ctx, sc); err != nil {
			w.log.Debug("clearing session images failed", zap.Error(err))
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	for i := range w.state.Results {
		w.state.Results[i].ResultImage = ""
	}
	w.state.Staged = nil
	w.seq = nil
	w.state.Submitted = nil
	w.state.Mode = ModeViewing
	w.sc = nil
}

// NextPage advances the results page, stopping at the last page.
func (w *Workspace) NextPage() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.state.Page = w.pager.Next(w.state.Page, len(w.state.Results))
	return w.state.Page
}

// PrevPage steps back one results page, stopping at page 0.
func (w *Workspace) PrevPage() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.state.Page = w.pager.Prev(w.state.Page, len(w.state.Results))
	return w.state.Page
}

// PageResults returns the results shown on the current page.
func (w *Workspace) PageResults() []api.Result {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]api.Result(nil), w.pager.Slice(w.state.Results, w.state.Page)...)
}

func (w *Workspace) resetLocked() {
	w.gen++
	w.seq = nil
	w.state = State{Mode: ModeStaging, InFlight: w.state.InFlight}
}
