// Package transport provides the HTTP transport layer used by every
// backend call the client makes.
package transport

import (
	"time"

	"golang.org/x/oauth2"
)

// Request represents an HTTP request to be sent by the transport client.
type Request struct {
	// Method is the HTTP method (GET, POST, PATCH, DELETE).
	Method string

	// URL is the absolute target URL.
	URL string

	// Headers contains custom HTTP headers to include.
	Headers map[string]string

	// Body is the raw request body. JSON documents and multipart forms are
	// both carried as bytes.
	Body []byte

	// ContentType is the Content-Type header value.
	ContentType string

	// Auth, when set, is written as the Authorization header. The backend
	// expects TokenType "Token", which oauth2 passes through unchanged.
	Auth *oauth2.Token

	// Timeout overrides the client-level timeout for this specific
	// request. Zero means use the client default.
	Timeout time.Duration
}

// Clone returns a deep copy of the Request.
func (r *Request) Clone() *Request {
	if r == nil {
		return nil
	}

	clone := &Request{
		Method:      r.Method,
		URL:         r.URL,
		ContentType: r.ContentType,
		Timeout:     r.Timeout,
	}

	if r.Body != nil {
		clone.Body = append([]byte(nil), r.Body...)
	}

	if r.Headers != nil {
		clone.Headers = make(map[string]string, len(r.Headers))
		for k, v := range r.Headers {
			clone.Headers[k] = v
		}
	}

	if r.Auth != nil {
		tok := *r.Auth
		clone.Auth = &tok
	}

	return clone
}
