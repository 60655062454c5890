package api

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/0x6d61/necrosis/internal/session"
	"github.com/0x6d61/necrosis/internal/testutil"
	"github.com/0x6d61/necrosis/internal/transport"
	"github.com/0x6d61/necrosis/internal/upload"
)

func newTestClient(t *testing.T, base string) *Client {
	t.Helper()
	tc, err := transport.NewClient(transport.ClientOptions{Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return New(base, tc)
}

func loggedIn(t *testing.T, b *testutil.Backend) *session.Context {
	t.Helper()
	tok := b.AddUser("alice", "alice@example.com", "secret123")
	return &session.Context{Token: tok, Email: "alice@example.com", Username: "alice"}
}

func TestNewTrimsBaseURL(t *testing.T) {
	c := New("http://example.com/api/", nil)
	if got, want := c.BaseURL(), "http://example.com/api"; got != want {
		t.Errorf("BaseURL() = %q, want %q", got, want)
	}
	if got := New("", nil).BaseURL(); got != DefaultBaseURL {
		t.Errorf("BaseURL() = %q, want %q", got, DefaultBaseURL)
	}
}

func TestRegisterAndLogin(t *testing.T) {
	b := testutil.NewBackend()
	defer b.Close()
	c := newTestClient(t, b.URL())
	ctx := context.Background()

	err := c.Register(ctx, RegisterRequest{
		Username: "alice", Email: "alice@example.com",
		Password: "secret123", ConfirmPassword: "secret123",
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	tok, err := c.Login(ctx, "alice@example.com", "secret123")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if tok == "" {
		t.Fatal("Login returned empty token")
	}

	sc := &session.Context{Token: tok}
	u, err := c.GetUser(ctx, sc, "alice@example.com")
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if u.Username != "alice" {
		t.Errorf("Username = %q, want %q", u.Username, "alice")
	}
}

func TestRegisterFieldErrors(t *testing.T) {
	b := testutil.NewBackend()
	defer b.Close()
	b.AddUser("alice", "alice@example.com", "secret123")
	c := newTestClient(t, b.URL())

	err := c.Register(context.Background(), RegisterRequest{
		Username: "alice", Email: "alice@example.com",
		Password: "secret123", ConfirmPassword: "secret123",
	})
	apiErr, ok := AsError(err)
	if !ok {
		t.Fatalf("err = %v, want *Error", err)
	}
	if apiErr.StatusCode != http.StatusBadRequest {
		t.Errorf("StatusCode = %d, want %d", apiErr.StatusCode, http.StatusBadRequest)
	}
	if got := apiErr.Field("username"); got != "Username already exists." {
		t.Errorf("username error = %q", got)
	}
	if got := apiErr.Field("email"); got != "Email already exists." {
		t.Errorf("email error = %q", got)
	}
}

func TestLoginInvalidCredentials(t *testing.T) {
	b := testutil.NewBackend()
	defer b.Close()
	b.AddUser("alice", "alice@example.com", "secret123")
	c := newTestClient(t, b.URL())

	_, err := c.Login(context.Background(), "alice@example.com", "nope12345")
	apiErr, ok := AsError(err)
	if !ok {
		t.Fatalf("err = %v, want *Error", err)
	}
	if apiErr.Message != "Invalid email or password." {
		t.Errorf("Message = %q", apiErr.Message)
	}
	if IsRetryable(err) {
		t.Error("credential rejection should not be retryable")
	}
}

func TestAuthenticatedCallsRequireSession(t *testing.T) {
	c := New("http://127.0.0.1:1/api", nil)
	ctx := context.Background()

	if _, err := c.ListSessions(ctx, nil); !errors.Is(err, ErrNotAuthenticated) {
		t.Errorf("ListSessions(nil) err = %v, want ErrNotAuthenticated", err)
	}
	if err := c.ClearSessionImages(ctx, &session.Context{}); !errors.Is(err, ErrNotAuthenticated) {
		t.Errorf("ClearSessionImages(empty) err = %v, want ErrNotAuthenticated", err)
	}
}

func TestAnalyzeAndAppendToSession(t *testing.T) {
	b := testutil.NewBackend()
	defer b.Close()
	c := newTestClient(t, b.URL())
	sc := loggedIn(t, b)
	ctx := context.Background()

	first, err := c.Analyze(ctx, sc, []upload.Image{
		{Name: "a.png", MIMEType: "image/png", Data: []byte("12345")},
		{Name: "b.jpg", MIMEType: "image/jpeg", Data: []byte("1234567")},
	}, "")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if first.SessionID == "" {
		t.Fatal("empty session id")
	}
	if first.CreatedAt.IsZero() {
		t.Error("CreatedAt not set")
	}
	if len(first.Results) != 2 {
		t.Fatalf("len(Results) = %d, want 2", len(first.Results))
	}
	if first.Results[1].LesionCount != 7 {
		t.Errorf("LesionCount = %d, want 7", first.Results[1].LesionCount)
	}
	if !first.Results[0].HasImage() {
		t.Error("fresh result should carry an image")
	}

	second, err := c.Analyze(ctx, sc, []upload.Image{{Name: "c.png", MIMEType: "image/png", Data: []byte("x")}}, first.SessionID)
	if err != nil {
		t.Fatalf("Analyze append: %v", err)
	}
	if second.SessionID != first.SessionID {
		t.Errorf("SessionID = %q, want %q", second.SessionID, first.SessionID)
	}

	want := [][]string{{"a.png", "b.jpg"}, {"c.png"}}
	if diff := cmp.Diff(want, b.Uploads()); diff != "" {
		t.Errorf("uploads mismatch (-want +got):\n%s", diff)
	}

	stored, err := c.SessionResults(ctx, sc, first.SessionID)
	if err != nil {
		t.Fatalf("SessionResults: %v", err)
	}
	if len(stored.Results) != 3 {
		t.Errorf("len(stored) = %d, want 3", len(stored.Results))
	}
	for _, r := range stored.Results {
		if r.HasImage() {
			t.Errorf("stored result %q should carry no image", r.Filename)
		}
	}
}

func TestSessionLifecycle(t *testing.T) {
	b := testutil.NewBackend()
	defer b.Close()
	c := newTestClient(t, b.URL())
	sc := loggedIn(t, b)
	ctx := context.Background()

	latest, err := c.LatestSessionResults(ctx, sc)
	if err != nil {
		t.Fatalf("LatestSessionResults (empty): %v", err)
	}
	if latest.SessionID != "" || len(latest.Results) != 0 {
		t.Errorf("latest = %+v, want empty", latest)
	}

	res, err := c.Analyze(ctx, sc, []upload.Image{{Name: "leaf.png", MIMEType: "image/png", Data: []byte("leafdata")}}, "")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	sessions, err := c.ListSessions(ctx, sc)
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(sessions) != 1 || sessions[0].SessionID != res.SessionID || sessions[0].NumImages != 1 {
		t.Fatalf("sessions = %+v", sessions)
	}

	renamed, err := c.RenameSession(ctx, sc, res.SessionID, "Field A")
	if err != nil {
		t.Fatalf("RenameSession: %v", err)
	}
	if renamed.SessionName != "Field A" {
		t.Errorf("SessionName = %q, want %q", renamed.SessionName, "Field A")
	}

	zipped, err := c.DownloadSessionImages(ctx, sc, res.SessionID)
	if err != nil {
		t.Fatalf("DownloadSessionImages: %v", err)
	}
	zr, err := zip.NewReader(bytes.NewReader(zipped), int64(len(zipped)))
	if err != nil {
		t.Fatalf("zip.NewReader: %v", err)
	}
	if len(zr.File) != 1 || zr.File[0].Name != "leaf.png" {
		t.Errorf("zip entries = %v", zr.File)
	}

	latest, err = c.LatestSessionResults(ctx, sc)
	if err != nil {
		t.Fatalf("LatestSessionResults: %v", err)
	}
	if latest.SessionID != res.SessionID {
		t.Errorf("latest SessionID = %q, want %q", latest.SessionID, res.SessionID)
	}

	if err := c.ClearSessionImages(ctx, sc); err != nil {
		t.Fatalf("ClearSessionImages: %v", err)
	}
	if !b.Purged(res.SessionID) {
		t.Error("images not purged")
	}

	if err := c.DeleteSession(ctx, sc, res.SessionID); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	if err := c.DeleteSession(ctx, sc, res.SessionID); !IsNotFound(err) {
		t.Errorf("second DeleteSession err = %v, want not found", err)
	}
}

func TestProfileUpdate(t *testing.T) {
	b := testutil.NewBackend()
	defer b.Close()
	c := newTestClient(t, b.URL())
	sc := loggedIn(t, b)
	ctx := context.Background()

	u, err := c.UpdateUser(ctx, sc, "alice", ProfileUpdate{Contact: "0712", Organisation: "IITA"})
	if err != nil {
		t.Fatalf("UpdateUser: %v", err)
	}
	want := &User{Username: "alice", Email: "alice@example.com", Contact: "0712", Organisation: "IITA"}
	if diff := cmp.Diff(want, u); diff != "" {
		t.Errorf("user mismatch (-want +got):\n%s", diff)
	}
}

func TestResetPassword(t *testing.T) {
	b := testutil.NewBackend()
	defer b.Close()
	b.AddUser("alice", "alice@example.com", "secret123")
	c := newTestClient(t, b.URL())
	ctx := context.Background()

	err := c.ResetPassword(ctx, ResetPasswordRequest{Email: "alice@example.com", NewPassword: "newpass99", ConfirmPassword: "newpass99"})
	if err != nil {
		t.Fatalf("ResetPassword: %v", err)
	}
	if _, err := c.Login(ctx, "alice@example.com", "newpass99"); err != nil {
		t.Errorf("Login with new password: %v", err)
	}

	err = c.ResetPassword(ctx, ResetPasswordRequest{Email: "ghost@example.com", NewPassword: "newpass99", ConfirmPassword: "newpass99"})
	apiErr, ok := AsError(err)
	if !ok || apiErr.Field("email") != "No user with this email." {
		t.Errorf("err = %v, want email field error", err)
	}
}

func TestTransportFailureIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	base := srv.URL
	srv.Close()

	c := newTestClient(t, base)
	_, err := c.Login(context.Background(), "a@b.co", "secret123")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
	if !IsRetryable(err) {
		t.Error("transport failure should be retryable")
	}
}

func TestServerErrorIsRetryable(t *testing.T) {
	b := testutil.NewBackend()
	defer b.Close()
	c := newTestClient(t, b.URL())
	sc := loggedIn(t, b)
	b.FailNext(testutil.RouteAnalyze, http.StatusInternalServerError)

	_, err := c.Analyze(context.Background(), sc, []upload.Image{{Name: "a.png", MIMEType: "image/png", Data: []byte("1")}}, "")
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsRetryable(err) {
		t.Errorf("IsRetryable(%v) = false, want true", err)
	}
}

func TestEncodeImagesSetsPartContentType(t *testing.T) {
	body, ct, err := encodeImages([]upload.Image{{Name: `we"ird.png`, MIMEType: "image/png", Data: []byte("png")}}, "sid-1")
	if err != nil {
		t.Fatalf("encodeImages: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
	req.Header.Set("Content-Type", ct)
	if err := req.ParseMultipartForm(1 << 20); err != nil {
		t.Fatalf("ParseMultipartForm: %v", err)
	}
	files := req.MultipartForm.File["images"]
	if len(files) != 1 {
		t.Fatalf("len(images) = %d, want 1", len(files))
	}
	if got := files[0].Header.Get("Content-Type"); got != "image/png" {
		t.Errorf("part Content-Type = %q, want image/png", got)
	}
	if got := files[0].Filename; got != `we"ird.png` {
		t.Errorf("Filename = %q", got)
	}
	if got := req.FormValue("session_id"); got != "sid-1" {
		t.Errorf("session_id = %q, want sid-1", got)
	}
}
