// Package auth is the authentication screen: login and signup tabs with
// independent forms, and the forgot-password overlay. Forms are validated
// locally before any network call; a successful login produces the
// session context and persists it.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/0x6d61/necrosis/internal/api"
	"github.com/0x6d61/necrosis/internal/notify"
	"github.com/0x6d61/necrosis/internal/session"
)

// User-facing messages.
const (
	MsgLoginFailed    = "Login failed. Please check your credentials."
	MsgIdentityFailed = "Failed to fetch user details. Please log in again."
	MsgRegistered     = "Registration successful! You can now log in."
	MsgRegisterFailed = "Registration failed. Please try again."
	MsgResetDone      = "Password updated successfully! You can now log in."
	MsgResetFailed    = "Password reset failed. Please try again."
	MsgUsernameTaken  = "Username already exists."
	MsgEmailTaken     = "Email already exists."
)

// ErrIdentityLookup is returned when the token was issued but the user
// record could not be fetched. Nothing is persisted in that case.
var ErrIdentityLookup = errors.New("auth: identity lookup failed")

// Tab selects the visible form.
type Tab int

const (
	TabLogin Tab = iota
	TabSignup
)

func (t Tab) String() string {
	if t == TabSignup {
		return "signup"
	}
	return "login"
}

// Backend is the subset of the REST client the screen calls.
type Backend interface {
	Register(ctx context.Context, req api.RegisterRequest) error
	Login(ctx context.Context, email, password string) (string, error)
	GetUser(ctx context.Context, sc *session.Context, identifier string) (*api.User, error)
	ResetPassword(ctx context.Context, req api.ResetPasswordRequest) error
}

// AvailabilityChecker answers uniqueness questions without side effects.
// When none is configured, uniqueness is left to the registration call.
type AvailabilityChecker interface {
	UsernameAvailable(ctx context.Context, username string) (bool, error)
	EmailAvailable(ctx context.Context, email string) (bool, error)
}

// LoginForm is the login tab.
type LoginForm struct {
	Email    string
	Password string
}

// SignupForm is the signup tab.
type SignupForm struct {
	Username        string
	Email           string
	Password        string
	ConfirmPassword string
	Agreed          bool
}

// ResetForm is the forgot-password overlay.
type ResetForm struct {
	Email           string
	NewPassword     string
	ConfirmPassword string
}

// Screen holds the state of the authentication screen. It is not safe for
// concurrent use.
type Screen struct {
	backend Backend
	store   session.Store
	checker AvailabilityChecker
	log     *zap.Logger
	now     func() time.Time

	tab       Tab
	resetOpen bool

	Login  LoginForm
	Signup SignupForm
	Reset  ResetForm

	loginErrs     FieldErrors
	signupErrs    FieldErrors
	resetErrs     FieldErrors
	signupSuccess string
	resetSuccess  string
	loading       bool
}

// Option configures a Screen.
type Option func(*Screen)

// WithAvailabilityChecker enables uniqueness checks during signup
// validation.
func WithAvailabilityChecker(c AvailabilityChecker) Option {
	return func(s *Screen) { s.checker = c }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Screen) {
		if l != nil {
			s.log = l
		}
	}
}

// NewScreen creates a screen on the login tab. store receives the session
// context on successful login.
func NewScreen(backend Backend, store session.Store, opts ...Option) *Screen {
	s := &Screen{backend: backend, store: store, log: zap.NewNop(), now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Tab returns the visible tab.
func (s *Screen) Tab() Tab { return s.tab }

// SwitchTab changes the visible tab. Form contents are kept.
func (s *Screen) SwitchTab(t Tab) { s.tab = t }

// OpenReset shows the forgot-password overlay.
func (s *Screen) OpenReset() {
	s.resetOpen = true
	s.resetSuccess = ""
	s.resetErrs = nil
}

// CloseReset hides the overlay.
func (s *Screen) CloseReset() { s.resetOpen = false }

// ResetOpen reports whether the overlay is shown.
func (s *Screen) ResetOpen() bool { return s.resetOpen }

// Loading reports whether a submission is running.
func (s *Screen) Loading() bool { return s.loading }

// LoginErrors returns the login form errors.
func (s *Screen) LoginErrors() FieldErrors { return s.loginErrs }

// SignupErrors returns the signup form errors.
func (s *Screen) SignupErrors() FieldErrors { return s.signupErrs }

// ResetErrors returns the overlay errors.
func (s *Screen) ResetErrors() FieldErrors { return s.resetErrs }

// SignupSuccess returns the registration banner, or "".
func (s *Screen) SignupSuccess() string { return s.signupSuccess }

// ResetSuccess returns the reset banner, or "".
func (s *Screen) ResetSuccess() string { return s.resetSuccess }

// SubmitLogin validates the login form, exchanges the credentials for a
// token, resolves the user by email and persists the session context.
// A non-nil context means the caller should move to the landing screen.
func (s *Screen) SubmitLogin(ctx context.Context) (*session.Context, error) {
	s.loginErrs = nil
	errs := FieldErrors{}
	errs.set(FieldEmail, ValidateEmail(s.Login.Email))
	errs.set(FieldPassword, ValidateLoginPassword(s.Login.Password))
	if err := errs.orNil(); err != nil {
		s.loginErrs = errs
		return nil, err
	}

	s.loading = true
	defer func() { s.loading = false }()

	token, err := s.backend.Login(ctx, s.Login.Email, s.Login.Password)
	if err != nil {
		msg := MsgLoginFailed
		if apiErr, ok := api.AsError(err); ok && apiErr.Message != "" {
			msg = apiErr.Message
		}
		s.loginErrs = FieldErrors{FieldGeneral: msg}
		s.log.Debug("login rejected", zap.Error(err))
		return nil, fmt.Errorf("auth: login: %w", notify.Fail(msg, err))
	}

	probe := &session.Context{Token: token, Email: s.Login.Email}
	user, err := s.backend.GetUser(ctx, probe, s.Login.Email)
	if err != nil {
		s.loginErrs = FieldErrors{FieldGeneral: MsgIdentityFailed}
		s.log.Debug("identity lookup failed", zap.Error(err))
		return nil, notify.Fail(MsgIdentityFailed, fmt.Errorf("%w: %w", ErrIdentityLookup, err))
	}

	sc := &session.Context{
		Token:     token,
		Email:     s.Login.Email,
		Username:  user.Username,
		CreatedAt: s.now(),
	}
	if err := s.store.Save(ctx, sc); err != nil {
		return nil, fmt.Errorf("auth: persist session: %w", err)
	}
	s.log.Debug("logged in",
		zap.String("email", sc.Email),
		zap.String("token", session.RedactToken(sc.Token)),
	)
	s.Login.Password = ""
	return sc, nil
}

// SubmitSignup validates the signup form and registers the account. On
// success the form is cleared and SignupSuccess is set; the screen stays
// where it is.
func (s *Screen) SubmitSignup(ctx context.Context) error {
	s.signupSuccess = ""
	s.signupErrs = nil
	f := s.Signup

	errs := FieldErrors{}
	errs.set(FieldUsername, ValidateUsername(f.Username))
	errs.set(FieldEmail, ValidateEmail(f.Email))
	errs.set(FieldPassword, ValidatePassword(f.Password))
	errs.set(FieldConfirmPassword, ValidateConfirm(f.Password, f.ConfirmPassword))
	if !f.Agreed {
		errs.set(FieldAgreed, MsgAgreeRequired)
	}

	s.loading = true
	defer func() { s.loading = false }()

	if s.checker != nil {
		s.checkAvailability(ctx, errs)
	}
	if err := errs.orNil(); err != nil {
		s.signupErrs = errs
		return err
	}

	err := s.backend.Register(ctx, api.RegisterRequest{
		Username:        f.Username,
		Email:           f.Email,
		Password:        f.Password,
		ConfirmPassword: f.ConfirmPassword,
		UserType:        "regular",
	})
	if err != nil {
		s.signupErrs = backendFieldErrors(err, MsgRegisterFailed)
		s.log.Debug("registration rejected", zap.Error(err))
		return s.signupErrs
	}

	s.Signup = SignupForm{}
	s.signupSuccess = MsgRegistered
	return nil
}

func (s *Screen) checkAvailability(ctx context.Context, errs FieldErrors) {
	if _, bad := errs[FieldUsername]; !bad {
		if ok, err := s.checker.UsernameAvailable(ctx, s.Signup.Username); err == nil && !ok {
			errs.set(FieldUsername, MsgUsernameTaken)
		}
	}
	if _, bad := errs[FieldEmail]; !bad {
		if ok, err := s.checker.EmailAvailable(ctx, s.Signup.Email); err == nil && !ok {
			errs.set(FieldEmail, MsgEmailTaken)
		}
	}
}

// SubmitReset validates the overlay form and sets the new password. On
// success the form is cleared and ResetSuccess is set.
func (s *Screen) SubmitReset(ctx context.Context) error {
	s.resetSuccess = ""
	s.resetErrs = nil
	f := s.Reset

	errs := FieldErrors{}
	errs.set(FieldEmail, ValidateEmail(f.Email))
	errs.set(FieldNewPassword, ValidatePassword(f.NewPassword))
	errs.set(FieldConfirmPassword, ValidateConfirm(f.NewPassword, f.ConfirmPassword))
	if err := errs.orNil(); err != nil {
		s.resetErrs = errs
		return err
	}

	s.loading = true
	defer func() { s.loading = false }()

	err := s.backend.ResetPassword(ctx, api.ResetPasswordRequest{
		Email:           f.Email,
		NewPassword:     f.NewPassword,
		ConfirmPassword: f.ConfirmPassword,
	})
	if err != nil {
		s.resetErrs = backendFieldErrors(err, MsgResetFailed)
		s.log.Debug("password reset rejected", zap.Error(err))
		return s.resetErrs
	}

	s.Reset = ResetForm{}
	s.resetSuccess = MsgResetDone
	return nil
}

// backendFieldErrors maps a backend rejection onto form fields. Anything
// without field detail becomes the general message.
func backendFieldErrors(err error, general string) FieldErrors {
	out := FieldErrors{}
	if apiErr, ok := api.AsError(err); ok {
		for field := range apiErr.Fields {
			out[field] = apiErr.Field(field)
		}
	}
	if len(out) == 0 {
		out[FieldGeneral] = general
	}
	return out
}
