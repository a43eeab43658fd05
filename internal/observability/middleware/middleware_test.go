package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestLogging_Query(t *testing.T) {
	tests := []struct {
		name      string
		opts      []LoggingOption
		wantQuery bool
	}{
		{"default keeps query", nil, true},
		{"without query", []LoggingOption{WithoutQuery()}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var logs bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&logs, nil))

			var seen string
			h := Logging(logger, tt.opts...)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = r.URL.RawQuery
				w.WriteHeader(http.StatusNoContent)
			}))

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/callback?code=abc123", nil))

			if seen != "code=abc123" {
				t.Errorf("handler saw query %q, want code=abc123", seen)
			}
			if !strings.Contains(logs.String(), "/callback") {
				t.Fatalf("request was not logged: %s", logs.String())
			}
			if got := strings.Contains(logs.String(), "abc123"); got != tt.wantQuery {
				t.Errorf("query logged = %v, want %v: %s", got, tt.wantQuery, logs.String())
			}
		})
	}
}

func TestRecovery(t *testing.T) {
	h := Recovery(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
}

func TestChain_Order(t *testing.T) {
	var order []string
	mark := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := Chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		order = append(order, "handler")
	}), mark("outer"), mark("inner"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if got := strings.Join(order, ","); got != "outer,inner,handler" {
		t.Errorf("order = %s, want outer,inner,handler", got)
	}
}
