// Package middleware holds the HTTP middlewares shared by the local servers.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/httplog/v3"
)

// Recovery recovers from panics in HTTP handlers and returns HTTP 500 to the client.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if recover() != nil {
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				// Logging of panics is handled in Logging middleware
			}
		}()

		next.ServeHTTP(w, r)
	})
}

type loggingConfig struct {
	redactQuery bool
}

// LoggingOption configures the Logging middleware.
type LoggingOption func(*loggingConfig)

// WithoutQuery keeps the query string out of request logs. Handlers still
// see the full request URL.
func WithoutQuery() LoggingOption {
	return func(c *loggingConfig) {
		c.redactQuery = true
	}
}

// Logging logs HTTP requests with method, path, status, and duration.
func Logging(logger *slog.Logger, opts ...LoggingOption) func(http.Handler) http.Handler {
	var cfg loggingConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	requestLogger := httplog.RequestLogger(logger, &httplog.Options{
		Schema: httplog.SchemaECS.Concise(true),

		// Headers and bodies may carry credentials or tokens.
		LogRequestHeaders:  []string{"Content-Type", "Origin"},
		LogResponseHeaders: []string{},
		LogRequestBody:     nil,
		LogResponseBody:    nil,

		RecoverPanics: false, // use dedicated middleware, panics are logged regardless
	})

	if !cfg.redactQuery {
		return requestLogger
	}

	return func(next http.Handler) http.Handler {
		logged := requestLogger(http.HandlerFunc(restoreURL(next)))

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), originalURLKey{}, r.URL)
			redacted := r.WithContext(ctx)

			u := *r.URL
			u.RawQuery = ""
			u.ForceQuery = false
			redacted.URL = &u
			redacted.RequestURI = u.RequestURI()

			logged.ServeHTTP(w, redacted)
		})
	}
}

type originalURLKey struct{}

// restoreURL hands next the URL the logging wrapper redacted.
func restoreURL(next http.Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if u, ok := r.Context().Value(originalURLKey{}).(*url.URL); ok {
			r = r.WithContext(r.Context())
			r.URL = u
			r.RequestURI = u.RequestURI()
		}
		next.ServeHTTP(w, r)
	}
}

// Chain applies middlewares to a handler in the order they appear.
// The first middleware in the slice is the outermost (executes first).
func Chain(h http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}
