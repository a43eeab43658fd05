// Package player serves the signed-in session locally: a read-only reverse
// proxy to the SoundCloud API that authenticates every request with the
// stored tokens.
package player

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"golang.org/x/oauth2"

	"github.com/florianilch/sclogin/internal/observability/middleware"
)

// Player represents the local API server.
type Player struct {
	mux    *http.ServeMux
	server *http.Server
}

// Compile-time check that Player implements http.Handler
var _ http.Handler = (*Player)(nil)

// New creates a Player forwarding to the API at baseURL.
func New(ts oauth2.TokenSource, baseURL string) (*Player, error) {
	if ts == nil {
		return nil, errors.New("missing token source")
	}
	upstream, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream URL: %w", err)
	}
	if upstream.Scheme == "" || upstream.Host == "" {
		return nil, fmt.Errorf("invalid upstream URL %q: scheme and host required", baseURL)
	}

	reverseProxyHandler := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(upstream)
		},
		// Filter client headers first, then authenticate.
		Transport: &headerFilterTransport{
			Base: &oauth2.Transport{Source: ts},
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			slog.WarnContext(r.Context(), "upstream request failed", "error", err)
			writeJSONError(r.Context(), w, "upstream request failed", http.StatusBadGateway)
		},
	}

	logger := slog.Default()

	mux := http.NewServeMux()

	// GET patterns match HEAD as well.
	mux.Handle("GET /", middleware.Chain(reverseProxyHandler,
		middleware.Logging(logger),
		middleware.Recovery,
	))
	mux.Handle("/", middleware.Chain(http.HandlerFunc(methodNotAllowed),
		middleware.Logging(logger),
	))

	return &Player{mux: mux}, nil
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Allow", "GET, HEAD")
	writeJSONError(r.Context(), w, "only GET and HEAD are forwarded", http.StatusMethodNotAllowed)
}

// ServeHTTP implements http.Handler interface
func (p *Player) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.mux.ServeHTTP(w, r)
}

// Start starts the HTTP server in the background and returns immediately.
// Returns a channel for runtime errors and a startup error if any.
//
// Startup errors (port in use, permission denied) are returned immediately.
// Runtime errors (network failures during operation) are sent to the error channel.
//
// The caller is responsible for calling Shutdown() to stop the server.
func (p *Player) Start(ctx context.Context, address string) (<-chan error, error) {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", address, err)
	}

	p.server = &http.Server{
		Handler:           p,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      5 * time.Minute, // stream URLs can be large downloads
		IdleTimeout:       90 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)

	go func() {
		err := p.server.Serve(listener)
		// Only report error if not from graceful shutdown
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	return errCh, nil
}

// Shutdown performs graceful shutdown of the HTTP server.
// Returns error if shutdown fails or times out.
func (p *Player) Shutdown(ctx context.Context) error {
	if p.server == nil {
		return nil
	}

	if err := p.server.Shutdown(ctx); err != nil {
		// Graceful shutdown failed - force close
		_ = p.server.Close()
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	return nil
}
