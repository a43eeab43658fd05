// Package redirect receives OAuth redirects on a loopback HTTP server and
// hands them to a handler as auth payloads.
package redirect

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/florianilch/sclogin/internal/auth"
	"github.com/florianilch/sclogin/internal/observability/middleware"
)

//go:embed templates/callback_success.html
var callbackSuccessHTML string

//go:embed templates/callback_error.html
var callbackErrorHTML string

var (
	successTemplate = template.Must(template.New("success").Parse(callbackSuccessHTML))
	errorTemplate   = template.Must(template.New("error").Parse(callbackErrorHTML))
)

// Handler receives every redirect.
type Handler func(ctx context.Context, p auth.Payload)

// Server is the loopback redirect receiver.
type Server struct {
	redirectURL *url.URL
	handler     Handler
	mux         *http.ServeMux
	server      *http.Server
}

// Compile-time check that Server implements http.Handler
var _ http.Handler = (*Server)(nil)

// New creates a Server for the given redirect URL. Only plain http redirect
// URLs can be served locally.
func New(redirectURL string, handler Handler) (*Server, error) {
	if handler == nil {
		return nil, errors.New("missing redirect handler")
	}
	u, err := url.Parse(redirectURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redirect url: %w", err)
	}
	if u.Scheme != "http" || u.Host == "" {
		return nil, fmt.Errorf("redirect url %q cannot be served locally: http scheme and host required", redirectURL)
	}

	path := u.Path
	if path == "" {
		path = "/"
	}

	s := &Server{
		redirectURL: u,
		handler:     handler,
	}

	mux := http.NewServeMux()
	mux.Handle("GET "+path, middleware.Chain(http.HandlerFunc(s.handleRedirect),
		middleware.Logging(slog.Default(), middleware.WithoutQuery()),
		middleware.Recovery,
	))
	s.mux = mux

	return s, nil
}

// ServeHTTP implements http.Handler interface
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleRedirect(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("Content-Security-Policy", "default-src 'self'; style-src 'unsafe-inline'")
	w.Header().Set("Referrer-Policy", "no-referrer")
	w.Header().Set("Cache-Control", "no-store")

	// Rebuild the redirect against the configured URL so transports can
	// match it regardless of the Host header the browser sent.
	u := *s.redirectURL
	u.RawQuery = r.URL.RawQuery
	query := r.URL.Query()

	s.handler(r.Context(), auth.Payload{URL: &u})

	var (
		tmpl *template.Template
		data any
	)
	if errCode := query.Get("error"); errCode != "" {
		tmpl = errorTemplate
		data = map[string]string{
			"Error":       errCode,
			"Description": query.Get("error_description"),
		}
	} else {
		tmpl = successTemplate
		data = map[string]string{}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.Execute(w, data); err != nil {
		slog.ErrorContext(r.Context(), "failed to render redirect page", "error", err)
	}
}

// Start starts the HTTP server in the background and returns immediately.
// Returns a channel for runtime errors and a startup error if any.
//
// The caller is responsible for calling Shutdown() to stop the server.
func (s *Server) Start(ctx context.Context) (<-chan error, error) {
	// Create listener synchronously to catch port-in-use errors immediately
	listener, err := net.Listen("tcp", s.redirectURL.Host)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", s.redirectURL.Host, err)
	}

	s.server = &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)

	go func() {
		err := s.server.Serve(listener)
		// Only report error if not from graceful shutdown
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	slog.DebugContext(ctx, "redirect server listening", "address", listener.Addr().String())
	return errCh, nil
}

// Shutdown performs graceful shutdown of the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}

	if err := s.server.Shutdown(ctx); err != nil {
		// Graceful shutdown failed - force close
		_ = s.server.Close()
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	return nil
}
