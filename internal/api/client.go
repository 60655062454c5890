// Package api is the typed REST client for the necrosis analysis backend.
// Every call goes through a transport.Client; authenticated calls take the
// caller's session.Context explicitly.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/0x6d61/necrosis/internal/session"
	"github.com/0x6d61/necrosis/internal/transport"
	"github.com/0x6d61/necrosis/internal/upload"
)

// DefaultBaseURL is the backend address used when none is configured.
const DefaultBaseURL = "http://localhost:8000/api"

// tokenType is the DRF TokenAuthentication keyword.
const tokenType = "Token"

// Client calls the backend endpoints.
type Client struct {
	base string
	http transport.Client
	log  *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger used for request tracing.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// New creates a Client rooted at baseURL (for example
// "http://localhost:8000/api").
func New(baseURL string, tc transport.Client, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		base: strings.TrimRight(baseURL, "/"),
		http: tc,
		log:  zap.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// BaseURL returns the normalised base URL.
func (c *Client) BaseURL() string { return c.base }

// Register creates a new account. Field-level rejections are returned as
// *Error with Fields populated.
func (c *Client) Register(ctx context.Context, req RegisterRequest) error {
	if req.UserType == "" {
		req.UserType = "regular"
	}
	_, err := c.doJSON(ctx, nil, http.MethodPost, "/register/", req, nil)
	return err
}

// Login exchanges credentials for an auth token.
func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	var out loginResponse
	if _, err := c.doJSON(ctx, nil, http.MethodPost, "/login/", loginRequest{Email: email, Password: password}, &out); err != nil {
		return "", err
	}
	if out.Token == "" {
		return "", fmt.Errorf("api: login: empty token in response")
	}
	return out.Token, nil
}

// GetUser fetches a user by identifier (email on login, username for the
// profile panel).
func (c *Client) GetUser(ctx context.Context, sc *session.Context, identifier string) (*User, error) {
	if err := requireSession(sc); err != nil {
		return nil, err
	}
	var u User
	if _, err := c.doJSON(ctx, sc, http.MethodGet, "/user/"+url.PathEscape(identifier)+"/", nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// UpdateUser patches contact and organisation.
func (c *Client) UpdateUser(ctx context.Context, sc *session.Context, identifier string, upd ProfileUpdate) (*User, error) {
	if err := requireSession(sc); err != nil {
		return nil, err
	}
	var u User
	if _, err := c.doJSON(ctx, sc, http.MethodPatch, "/user/"+url.PathEscape(identifier)+"/", upd, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// ResetPassword sets a new password for the account behind email.
func (c *Client) ResetPassword(ctx context.Context, req ResetPasswordRequest) error {
	_, err := c.doJSON(ctx, nil, http.MethodPost, "/reset_password/", req, nil)
	return err
}

// Analyze uploads images for analysis. A non-empty sessionID appends to
// that session; otherwise the backend starts a new one.
func (c *Client) Analyze(ctx context.Context, sc *session.Context, images []upload.Image, sessionID string) (*AnalysisResponse, error) {
	if err := requireSession(sc); err != nil {
		return nil, err
	}
	body, contentType, err := encodeImages(images, sessionID)
	if err != nil {
		return nil, err
	}

	resp, err := c.send(ctx, sc, &transport.Request{
		Method:      http.MethodPost,
		URL:         c.base + "/analyze/",
		Body:        body,
		ContentType: contentType,
	})
	if err != nil {
		return nil, err
	}
	var out AnalysisResponse
	if err := decode(resp, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListSessions returns the user's analysis sessions, newest first.
func (c *Client) ListSessions(ctx context.Context, sc *session.Context) ([]AnalysisSession, error) {
	if err := requireSession(sc); err != nil {
		return nil, err
	}
	var out sessionsResponse
	if _, err := c.doJSON(ctx, sc, http.MethodGet, "/user_sessions/", nil, &out); err != nil {
		return nil, err
	}
	return out.Sessions, nil
}

// SessionResults returns the stored results of one session. Result images
// are not included.
func (c *Client) SessionResults(ctx context.Context, sc *session.Context, sessionID string) (*AnalysisResponse, error) {
	if err := requireSession(sc); err != nil {
		return nil, err
	}
	var out AnalysisResponse
	if _, err := c.doJSON(ctx, sc, http.MethodGet, "/session_results/"+url.PathEscape(sessionID)+"/", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// LatestSessionResults returns the results of the user's most recent
// session. With no sessions, Results is empty and SessionID is "".
func (c *Client) LatestSessionResults(ctx context.Context, sc *session.Context) (*AnalysisResponse, error) {
	if err := requireSession(sc); err != nil {
		return nil, err
	}
	var out AnalysisResponse
	if _, err := c.doJSON(ctx, sc, http.MethodGet, "/latest_session_results/", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteSession removes a session and its images.
func (c *Client) DeleteSession(ctx context.Context, sc *session.Context, sessionID string) error {
	if err := requireSession(sc); err != nil {
		return err
	}
	_, err := c.doJSON(ctx, sc, http.MethodDelete, "/sessions/"+url.PathEscape(sessionID)+"/", nil, nil)
	return err
}

// RenameSession sets a session's display name.
func (c *Client) RenameSession(ctx context.Context, sc *session.Context, sessionID, name string) (*AnalysisSession, error) {
	if err := requireSession(sc); err != nil {
		return nil, err
	}
	var out AnalysisSession
	if _, err := c.doJSON(ctx, sc, http.MethodPatch, "/sessions/"+url.PathEscape(sessionID)+"/name/", renameRequest{SessionName: name}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DownloadSessionImages returns the ZIP archive of a session's processed
// images.
func (c *Client) DownloadSessionImages(ctx context.Context, sc *session.Context, sessionID string) ([]byte, error) {
	if err := requireSession(sc); err != nil {
		return nil, err
	}
	resp, err := c.send(ctx, sc, &transport.Request{
		Method:  http.MethodGet,
		URL:     c.base + "/sessions/" + url.PathEscape(sessionID) + "/download_images/",
		Headers: map[string]string{"Accept": "application/zip"},
	})
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// ClearSessionImages asks the backend to drop the images of the latest
// session while keeping textual results.
func (c *Client) ClearSessionImages(ctx context.Context, sc *session.Context) error {
	if err := requireSession(sc); err != nil {
		return err
	}
	_, err := c.doJSON(ctx, sc, http.MethodPost, "/delete_session_images/", nil, nil)
	return err
}

func requireSession(sc *session.Context) error {
	if !sc.Valid() {
		return ErrNotAuthenticated
	}
	return nil
}

// doJSON sends an optional JSON body and decodes an optional JSON reply.
func (c *Client) doJSON(ctx context.Context, sc *session.Context, method, path string, in, out any) (*transport.Response, error) {
	req := &transport.Request{Method: method, URL: c.base + path}
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("api: encode %s %s: %w", method, path, err)
		}
		req.Body = b
		req.ContentType = "application/json"
	}
	resp, err := c.send(ctx, sc, req)
	if err != nil {
		return nil, err
	}
	if out != nil {
		if err := decode(resp, out); err != nil {
			return nil, err
		}
	}
	return resp, nil
}

// send performs the request and turns transport failures and non-2xx
// replies into errors.
func (c *Client) send(ctx context.Context, sc *session.Context, req *transport.Request) (*transport.Response, error) {
	if sc.Valid() {
		req.Auth = &oauth2.Token{AccessToken: sc.Token, TokenType: tokenType}
	}

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		c.log.Debug("request failed",
			zap.String("method", req.Method),
			zap.String("url", req.URL),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	c.log.Debug("request",
		zap.String("method", req.Method),
		zap.String("url", req.URL),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", resp.Duration),
	)

	if !resp.OK() {
		return nil, parseError(resp.StatusCode, resp.Body)
	}
	return resp, nil
}

func decode(resp *transport.Response, out any) error {
	if len(bytes.TrimSpace(resp.Body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return fmt.Errorf("api: decode %s: %w", resp.URL, err)
	}
	return nil
}

// encodeImages builds the multipart body of POST /analyze/.
func encodeImages(images []upload.Image, sessionID string) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for _, img := range images {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="images"; filename="%s"`, escapeQuotes(img.Name)))
		ct := img.MIMEType
		if ct == "" {
			ct = "application/octet-stream"
		}
		h.Set("Content-Type", ct)
		part, err := w.CreatePart(h)
		if err != nil {
			return nil, "", fmt.Errorf("api: encode image %s: %w", img.Name, err)
		}
		if _, err := part.Write(img.Data); err != nil {
			return nil, "", fmt.Errorf("api: encode image %s: %w", img.Name, err)
		}
	}
	if sessionID != "" {
		if err := w.WriteField("session_id", sessionID); err != nil {
			return nil, "", fmt.Errorf("api: encode session id: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("api: encode form: %w", err)
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string { return quoteEscaper.Replace(s) }
