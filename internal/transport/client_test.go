package transport

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/oauth2"
)

// ---------------------------------------------------------------------------
// Helper: create a default test client
// ---------------------------------------------------------------------------

func newTestClient(t *testing.T) *DefaultClient {
	t.Helper()
	c, err := NewClient(ClientOptions{
		Timeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

// ---------------------------------------------------------------------------
// Basic GET
// ---------------------------------------------------------------------------

func TestBasicGET(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("expected GET, got %s", r.Method)
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, `{"sessions":[]}`)
	}))
	defer srv.Close()

	c := newTestClient(t)
	resp, err := c.Do(context.Background(), &Request{
		Method: http.MethodGet,
		URL:    srv.URL + "/user_sessions/",
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Errorf("StatusCode = %d, want 200", resp.StatusCode)
	}
	if !resp.OK() {
		t.Error("OK() = false, want true")
	}
	if resp.BodyString() != `{"sessions":[]}` {
		t.Errorf("Body = %q", resp.BodyString())
	}
}

// ---------------------------------------------------------------------------
// POST with body
// ---------------------------------------------------------------------------

func TestPOSTWithBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		body, _ := io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
		w.Write(body)
	}))
	defer srv.Close()

	c := newTestClient(t)
	resp, err := c.Do(context.Background(), &Request{
		Method:      http.MethodPost,
		URL:         srv.URL + "/login/",
		Body:        []byte(`{"email":"a@b.com"}`),
		ContentType: "application/json",
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if resp.BodyString() != `{"email":"a@b.com"}` {
		t.Errorf("Body = %q", resp.BodyString())
	}
}

// ---------------------------------------------------------------------------
// Authorization header
// ---------------------------------------------------------------------------

func TestAuthTokenHeader(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(t)
	_, err := c.Do(context.Background(), &Request{
		URL:  srv.URL,
		Auth: &oauth2.Token{AccessToken: "abc123", TokenType: "Token"},
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if gotAuth != "Token abc123" {
		t.Errorf("Authorization = %q, want %q", gotAuth, "Token abc123")
	}
}

func TestNoAuthHeaderWithoutToken(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
	}))
	defer srv.Close()

	c := newTestClient(t)
	if _, err := c.Do(context.Background(), &Request{URL: srv.URL, Auth: &oauth2.Token{TokenType: "Token"}}); err != nil {
		t.Fatalf("Do: %v", err)
	}
	if gotAuth != "" {
		t.Errorf("Authorization = %q, want empty", gotAuth)
	}
}

// ---------------------------------------------------------------------------
// Custom headers and user agent
// ---------------------------------------------------------------------------

func TestCustomHeadersAndUserAgent(t *testing.T) {
	var gotCustom, gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCustom = r.Header.Get("X-Custom")
		gotUA = r.Header.Get("User-Agent")
	}))
	defer srv.Close()

	c := newTestClient(t)
	_, err := c.Do(context.Background(), &Request{
		URL:     srv.URL,
		Headers: map[string]string{"X-Custom": "value"},
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if gotCustom != "value" {
		t.Errorf("X-Custom = %q, want %q", gotCustom, "value")
	}
	if gotUA != DefaultUserAgent {
		t.Errorf("User-Agent = %q, want %q", gotUA, DefaultUserAgent)
	}
}

// ---------------------------------------------------------------------------
// Status code handling
// ---------------------------------------------------------------------------

func TestStatusCodeHandling(t *testing.T) {
	codes := []int{200, 204, 400, 403, 404, 500}
	for _, code := range codes {
		code := code
		t.Run(fmt.Sprintf("status_%d", code), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(code)
			}))
			defer srv.Close()

			c := newTestClient(t)
			resp, err := c.Do(context.Background(), &Request{URL: srv.URL})
			if err != nil {
				t.Fatalf("Do: %v", err)
			}
			if resp.StatusCode != code {
				t.Errorf("StatusCode = %d, want %d", resp.StatusCode, code)
			}
			if want := code < 300; resp.OK() != want {
				t.Errorf("OK() = %v, want %v", resp.OK(), want)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Timeout handling
// ---------------------------------------------------------------------------

func TestTimeoutHandling(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c, _ := NewClient(ClientOptions{
		Timeout: 100 * time.Millisecond,
	})
	_, err := c.Do(context.Background(), &Request{URL: srv.URL})
	if err == nil {
		t.Error("expected timeout error, got nil")
	}
}

func TestPerRequestTimeoutOverride(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c, _ := NewClient(ClientOptions{
		Timeout: 5 * time.Second,
	})
	_, err := c.Do(context.Background(), &Request{
		URL:     srv.URL,
		Timeout: 100 * time.Millisecond,
	})
	if err == nil {
		t.Error("expected timeout error from per-request override, got nil")
	}
}

// ---------------------------------------------------------------------------
// Stats tracking
// ---------------------------------------------------------------------------

func TestStatsTracking(t *testing.T) {
	var reqCount atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqCount.Add(1)
		time.Sleep(10 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(t)
	for i := 0; i < 5; i++ {
		if _, err := c.Do(context.Background(), &Request{URL: srv.URL}); err != nil {
			t.Fatalf("Do #%d: %v", i, err)
		}
	}

	stats := c.Stats()
	if stats.TotalRequests != 5 {
		t.Errorf("TotalRequests = %d, want 5", stats.TotalRequests)
	}
	if reqCount.Load() != 5 {
		t.Errorf("server saw %d requests, want 5", reqCount.Load())
	}
	if stats.AvgDuration <= 0 {
		t.Errorf("AvgDuration = %v, want > 0", stats.AvgDuration)
	}
}

// ---------------------------------------------------------------------------
// Proxy
// ---------------------------------------------------------------------------

func TestSetProxy(t *testing.T) {
	c := newTestClient(t)
	if err := c.SetProxy("http://127.0.0.1:8080"); err != nil {
		t.Errorf("SetProxy(valid) = %v", err)
	}
	if err := c.SetProxy("not-a-url"); err == nil {
		t.Error("SetProxy(invalid) = nil, want error")
	}
}

func TestNewClientInvalidProxy(t *testing.T) {
	if _, err := NewClient(ClientOptions{ProxyURL: "://bad"}); err == nil {
		t.Error("NewClient with bad proxy = nil error, want error")
	}
}

// ---------------------------------------------------------------------------
// Request cloning
// ---------------------------------------------------------------------------

func TestRequestClone(t *testing.T) {
	orig := &Request{
		Method:  http.MethodPost,
		URL:     "http://example.com/analyze/",
		Headers: map[string]string{"X-A": "1"},
		Body:    []byte("payload"),
		Auth:    &oauth2.Token{AccessToken: "tok", TokenType: "Token"},
	}
	clone := orig.Clone()

	clone.Headers["X-A"] = "2"
	clone.Body[0] = 'P'
	clone.Auth.AccessToken = "other"

	if orig.Headers["X-A"] != "1" {
		t.Errorf("original header mutated: %q", orig.Headers["X-A"])
	}
	if string(orig.Body) != "payload" {
		t.Errorf("original body mutated: %q", orig.Body)
	}
	if orig.Auth.AccessToken != "tok" {
		t.Errorf("original token mutated: %q", orig.Auth.AccessToken)
	}
}

func TestRequestCloneNil(t *testing.T) {
	var r *Request
	if r.Clone() != nil {
		t.Error("Clone of nil request should be nil")
	}
}

// ---------------------------------------------------------------------------
// Rate limiting
// ---------------------------------------------------------------------------

func TestSetRateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(t)
	c.SetRateLimit(10)

	start := time.Now()
	for i := 0; i < 5; i++ {
		if _, err := c.Do(context.Background(), &Request{URL: srv.URL}); err != nil {
			t.Fatalf("Do #%d: %v", i, err)
		}
	}
	elapsed := time.Since(start)

	// At 10 RPS, 5 requests need ~400ms; use a conservative threshold.
	if elapsed < 300*time.Millisecond {
		t.Errorf("5 requests at 10 RPS took %v, expected at least ~400ms", elapsed)
	}
}

// ---------------------------------------------------------------------------
// Context cancellation
// ---------------------------------------------------------------------------

func TestContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(5 * time.Second)
	}))
	defer srv.Close()

	c := newTestClient(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := c.Do(ctx, &Request{URL: srv.URL}); err == nil {
		t.Error("expected context cancellation error, got nil")
	}
}

// ---------------------------------------------------------------------------
// Content-Type header
// ---------------------------------------------------------------------------

func TestContentTypeHeader(t *testing.T) {
	var receivedCT string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedCT = r.Header.Get("Content-Type")
	}))
	defer srv.Close()

	c := newTestClient(t)
	_, err := c.Do(context.Background(), &Request{
		Method:      http.MethodPost,
		URL:         srv.URL,
		Body:        []byte("--x--"),
		ContentType: "multipart/form-data; boundary=x",
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if receivedCT != "multipart/form-data; boundary=x" {
		t.Errorf("Content-Type = %q", receivedCT)
	}
}
