// Package gvhttp implements the Constrained HTTP Requestor: every outbound
// call a provider makes is pinned to a base URL prefix fixed at
// construction time, so a compromised or buggy provider implementation
// cannot be tricked into reaching an arbitrary host, and every call
// automatically carries the account's credentials.
package gvhttp

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/cos/gravyvalet/pkg/credentials"
	"github.com/cos/gravyvalet/pkg/errors"
	"github.com/cos/gravyvalet/pkg/logger"
)

// Request is everything a provider needs to describe an outbound call.
// URL is resolved relative to the Requestor's pinned prefix.
type Request struct {
	Method      string
	RelativeURL string
	Query       url.Values
	Headers     http.Header
	Body        io.Reader
}

// Response is the shape a provider reads results from; the body is
// buffered so a provider can inspect status before deciding to read it.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// Requestor performs HTTP calls pinned to a base URL prefix, with the
// account's credentials attached to every outbound request.
type Requestor struct {
	client      *http.Client
	prefix      *url.URL
	credentials credentials.Credentials
	retry       backoff.BackOff
}

// New builds a Requestor pinned to prefix. credentials may be nil for
// providers that need no auth (rare, but some link resolvers are public).
func New(client *http.Client, prefix string, creds credentials.Credentials) (*Requestor, error) {
	if client == nil {
		client = http.DefaultClient
	}
	u, err := url.Parse(prefix)
	if err != nil || !u.IsAbs() {
		return nil, errors.NewInvalidArguments("requestor prefix must be an absolute URL", err)
	}
	return &Requestor{client: client, prefix: u, credentials: creds}, nil
}

// resolve joins relativeURL against the pinned prefix, refusing to escape
// it: absolute URLs, `..` segments, and scheme/host overrides are rejected
// with InvalidRelativeURL so a provider bug never reaches outside its
// pinned service.
func (r *Requestor) resolve(relativeURL string) (*url.URL, error) {
	if strings.Contains(relativeURL, "://") {
		return nil, errors.NewInvalidRelativeURL("relative URL must not specify a scheme", nil)
	}
	ref, err := url.Parse(relativeURL)
	if err != nil {
		return nil, errors.NewInvalidRelativeURL("relative URL failed to parse", err)
	}
	if ref.IsAbs() || ref.Host != "" {
		return nil, errors.NewInvalidRelativeURL("relative URL must not be absolute", nil)
	}
	resolved := r.prefix.ResolveReference(ref)
	if !strings.HasPrefix(resolved.String(), r.prefix.String()) {
		return nil, errors.NewInvalidRelativeURL("relative URL escapes the pinned prefix", nil)
	}
	return resolved, nil
}

// Send issues req, attaching the Requestor's credentials, and returns the
// buffered response. A 5xx status is retried with exponential backoff,
// up to three tries in all, and then returned as a ProviderError; any
// other status, 4xx included, comes back as a Response with a nil error
// for the caller to inspect via Response.StatusCode.
func (r *Requestor) Send(ctx context.Context, req Request) (*Response, error) {
	target, err := r.resolve(req.RelativeURL)
	if err != nil {
		return nil, err
	}
	if req.Query != nil {
		target.RawQuery = req.Query.Encode()
	}

	var bodyBytes []byte
	if req.Body != nil {
		bodyBytes, err = io.ReadAll(req.Body)
		if err != nil {
			return nil, errors.NewUnexpectedAddonError("reading request body", err)
		}
	}

	operation := func() (*Response, error) {
		httpReq, err := http.NewRequestWithContext(ctx, req.Method, target.String(), bytes.NewReader(bodyBytes))
		if err != nil {
			return nil, errors.NewUnexpectedAddonError("building request", err)
		}
		for name, values := range req.Headers {
			for _, v := range values {
				httpReq.Header.Add(name, v)
			}
		}
		if r.credentials != nil {
			for _, h := range r.credentials.IterAuthHeaders() {
				httpReq.Header.Set(h.Name, h.Value)
			}
		}

		resp, err := r.client.Do(httpReq)
		if err != nil {
			logger.Debugw("provider request failed", "url", target.String(), "err", err)
			return nil, errors.NewProviderError("request to provider failed", 0, err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, errors.NewProviderError("reading provider response body", resp.StatusCode, err)
		}

		out := &Response{StatusCode: resp.StatusCode, Headers: resp.Header, Body: body}
		if resp.StatusCode >= 500 {
			// Retry server errors; client errors (4xx) are the provider
			// telling us something we asked for is wrong, not transient.
			return out, errors.NewProviderError("provider returned a server error", resp.StatusCode, nil)
		}
		return out, nil
	}

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(3),
	)
}

// Get is a convenience wrapper for the common case of a bodyless GET.
func (r *Requestor) Get(ctx context.Context, relativeURL string, query url.Values) (*Response, error) {
	return r.Send(ctx, Request{Method: http.MethodGet, RelativeURL: relativeURL, Query: query})
}

// Post sends body as-is; callers are responsible for setting Content-Type
// via req.Headers if it matters to the provider.
func (r *Requestor) Post(ctx context.Context, relativeURL string, body io.Reader, headers http.Header) (*Response, error) {
	return r.Send(ctx, Request{Method: http.MethodPost, RelativeURL: relativeURL, Body: body, Headers: headers})
}

// Put sends body as-is via PUT; callers set Content-Type via headers.
func (r *Requestor) Put(ctx context.Context, relativeURL string, body io.Reader, headers http.Header) (*Response, error) {
	return r.Send(ctx, Request{Method: http.MethodPut, RelativeURL: relativeURL, Body: body, Headers: headers})
}

// Patch sends body as-is via PATCH; callers set Content-Type via headers.
func (r *Requestor) Patch(ctx context.Context, relativeURL string, body io.Reader, headers http.Header) (*Response, error) {
	return r.Send(ctx, Request{Method: http.MethodPatch, RelativeURL: relativeURL, Body: body, Headers: headers})
}

// Delete issues a DELETE with no body.
func (r *Requestor) Delete(ctx context.Context, relativeURL string) (*Response, error) {
	return r.Send(ctx, Request{Method: http.MethodDelete, RelativeURL: relativeURL})
}

// Head issues a HEAD with no body, useful for cheap existence/metadata
// checks without transferring the resource itself.
func (r *Requestor) Head(ctx context.Context, relativeURL string, query url.Values) (*Response, error) {
	return r.Send(ctx, Request{Method: http.MethodHead, RelativeURL: relativeURL, Query: query})
}

// Options issues an OPTIONS with no body.
func (r *Requestor) Options(ctx context.Context, relativeURL string) (*Response, error) {
	return r.Send(ctx, Request{Method: http.MethodOptions, RelativeURL: relativeURL})
}

// Propfind issues a WebDAV PROPFIND, used by a handful of storage
// providers (e.g. ownCloud/Nextcloud-family WebDAV backends) to list or
// inspect resources; body carries the XML property-request document.
func (r *Requestor) Propfind(ctx context.Context, relativeURL string, body io.Reader, headers http.Header) (*Response, error) {
	return r.Send(ctx, Request{Method: "PROPFIND", RelativeURL: relativeURL, Body: body, Headers: headers})
}

// WithTimeout returns a context bounded by the Requestor's default
// per-call upstream timeout.
func WithTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, 30*time.Second)
}
