// Package api wires GravyValet's HTTP surface together: the invocation,
// OAuth callback, and Waterbutler credential-lookup routers, mounted
// behind request-id, timeout, and body-size-limit middleware.
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	v1 "github.com/cos/gravyvalet/pkg/api/v1"
	"github.com/cos/gravyvalet/pkg/auth"
	"github.com/cos/gravyvalet/pkg/config"
	"github.com/cos/gravyvalet/pkg/crypto"
	"github.com/cos/gravyvalet/pkg/invocation"
	"github.com/cos/gravyvalet/pkg/logger"
	"github.com/cos/gravyvalet/pkg/oauthflow"
	"github.com/cos/gravyvalet/pkg/storage"
)

const (
	middlewareTimeout = 60 * time.Second
	readHeaderTimeout = 10 * time.Second

	// maxInvocationBodyBytes bounds an invocation request's argument
	// payload; Waterbutler and the OAuth callbacks carry no body worth
	// bounding separately.
	maxInvocationBodyBytes = 1 << 20 // 1MB
)

// Dependencies bundles the already-constructed lower layers Serve mounts
// into an HTTP router. Building these (opening the database, dialing
// Redis, loading the key ring) is the caller's job so Serve stays focused
// on wiring, not construction.
type Dependencies struct {
	DB          *storage.DB
	Ring        *crypto.Ring
	Engine      *invocation.Engine
	Coordinator *oauthflow.Coordinator
	Accounts    *storage.AccountRepository
	Addons      *storage.AddonRepository
	Services    *storage.ServiceRepository
	Invocations *storage.InvocationRepository
	Validator   *auth.Validator
	HMACSecret  []byte
	HTTPClient  *http.Client
}

// Serve starts the HTTP server on cfg.HTTPAddr and serves the API. It is
// assumed that the caller sets up appropriate signal handling.
func Serve(ctx context.Context, cfg config.Config, deps Dependencies) error {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.Timeout(middlewareTimeout),
	)

	invocationRouter := chi.Chain(
		requestBodySizeLimitMiddleware(maxInvocationBodyBytes),
		auth.RequireBearerToken(deps.Validator),
	).Handler(v1.InvocationRouter(deps.Engine, deps.Addons, deps.Services, deps.Invocations, deps.Ring))

	accountRouter := chi.Chain(
		requestBodySizeLimitMiddleware(maxInvocationBodyBytes),
		auth.RequireBearerToken(deps.Validator),
	).Handler(v1.AccountRouter(deps.Services, deps.Accounts, deps.Coordinator, deps.Ring, deps.HTTPClient))

	routers := map[string]http.Handler{
		"/health":                 v1.HealthcheckRouter(deps.DB),
		"/api/v1beta/version":     v1.VersionRouter(),
		"/api/v1beta/oauth":       v1.OAuthRouter(deps.Coordinator, deps.Services, deps.Accounts, deps.Ring, deps.HTTPClient),
		"/api/v1beta/accounts":    accountRouter,
		"/api/v1beta/wb":          v1.WaterbutlerRouter(deps.Addons, deps.Services, deps.Accounts, deps.Coordinator, deps.Ring, deps.HMACSecret),
		"/api/v1beta/invocations": invocationRouter,
	}
	for prefix, router := range routers {
		r.Mount(prefix, router)
	}

	srv := &http.Server{
		BaseContext:       func(net.Listener) context.Context { return ctx },
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	logger.Infof("starting http server on %s", srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("server stopped with error: %v", err)
		}
	}()

	<-ctx.Done()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed:%+v", err)
	}

	logger.Infof("http server stopped")
	return nil
}

// requestBodySizeLimitMiddleware caps a request body at maxBytes, both by
// rejecting an oversized Content-Length upfront and by wrapping the body in
// an http.MaxBytesReader for requests that lie about (or omit) it. A
// handler that hits the limit mid-read typically surfaces it as a generic
// 400 from its own JSON decoder, so bodySizeResponseWriter reclassifies a
// 400 as 413 whenever the limit was actually exceeded, letting the caller
// see the right status without every handler checking for it itself.
func requestBodySizeLimitMiddleware(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				http.Error(w, http.StatusText(http.StatusRequestEntityTooLarge), http.StatusRequestEntityTooLarge)
				return
			}

			tracked := &limitTrackingBody{ReadCloser: http.MaxBytesReader(w, r.Body, maxBytes)}
			r.Body = tracked

			bw := &bodySizeResponseWriter{ResponseWriter: w, body: tracked}
			next.ServeHTTP(bw, r)
		})
	}
}

// limitTrackingBody remembers whether a read against it ever came back
// with http.MaxBytesReader's "request body too large" error.
type limitTrackingBody struct {
	io.ReadCloser
	exceeded bool
}

func (b *limitTrackingBody) Read(p []byte) (int, error) {
	n, err := b.ReadCloser.Read(p)
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		b.exceeded = true
	}
	return n, err
}

// bodySizeResponseWriter rewrites a handler's 400 response to 413 once the
// request body it read from has exceeded the configured limit.
type bodySizeResponseWriter struct {
	http.ResponseWriter
	body        *limitTrackingBody
	wroteHeader bool
}

func (w *bodySizeResponseWriter) WriteHeader(statusCode int) {
	if w.wroteHeader {
		return
	}
	w.wroteHeader = true
	if statusCode == http.StatusBadRequest && w.body.exceeded {
		statusCode = http.StatusRequestEntityTooLarge
	}
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *bodySizeResponseWriter) Write(p []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(p)
}
