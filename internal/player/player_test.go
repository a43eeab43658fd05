package player

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/oauth2"
)

type failingSource struct{}

func (failingSource) Token() (*oauth2.Token, error) {
	return nil, errors.New("no token")
}

func TestNew_Validation(t *testing.T) {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "tok"})

	tests := []struct {
		name    string
		ts      oauth2.TokenSource
		baseURL string
	}{
		{"missing token source", nil, "https://api.soundcloud.com"},
		{"relative url", ts, "/api"},
		{"unparsable url", ts, "http://%zz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.ts, tt.baseURL); err == nil {
				t.Fatal("New() succeeded, want error")
			}
		})
	}
}

func TestPlayer_ForwardsAuthenticatedRequests(t *testing.T) {
	type seen struct {
		method, path, query, auth, cookie string
	}
	got := make(chan seen, 1)

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got <- seen{
			method: r.Method,
			path:   r.URL.Path,
			query:  r.URL.RawQuery,
			auth:   r.Header.Get("Authorization"),
			cookie: r.Header.Get("Cookie"),
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"username":"listener"}`))
	}))
	defer upstream.Close()

	p, err := New(oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "tok"}), upstream.URL+"/v1")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/me/likes?limit=5", nil)
	req.Header.Set("Authorization", "Bearer client-supplied")
	req.Header.Set("Cookie", "session=1")
	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body: %s", rec.Code, http.StatusOK, rec.Body.String())
	}

	s := <-got
	if s.method != http.MethodGet {
		t.Errorf("method = %s, want GET", s.method)
	}
	if s.path != "/v1/me/likes" {
		t.Errorf("path = %q, want /v1/me/likes", s.path)
	}
	if s.query != "limit=5" {
		t.Errorf("query = %q, want limit=5", s.query)
	}
	if s.auth != "Bearer tok" {
		t.Errorf("Authorization = %q, want stored token", s.auth)
	}
	if s.cookie != "" {
		t.Errorf("Cookie = %q, want stripped", s.cookie)
	}
}

func TestPlayer_RejectsWrites(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("upstream called with %s", r.Method)
	}))
	defer upstream.Close()

	p, err := New(oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "tok"}), upstream.URL)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	for _, method := range []string{http.MethodPost, http.MethodPut, http.MethodDelete} {
		t.Run(method, func(t *testing.T) {
			rec := httptest.NewRecorder()
			p.ServeHTTP(rec, httptest.NewRequest(method, "/likes/tracks/1", nil))

			if rec.Code != http.StatusMethodNotAllowed {
				t.Fatalf("status = %d, want %d", rec.Code, http.StatusMethodNotAllowed)
			}
			if got := rec.Header().Get("Allow"); got != "GET, HEAD" {
				t.Errorf("Allow = %q", got)
			}
			var body ErrorResponse
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("decoding body: %v", err)
			}
			if body.Code != http.StatusMethodNotAllowed || body.Message == "" {
				t.Errorf("body = %+v", body)
			}
		})
	}
}

func TestPlayer_TokenFailureIsBadGateway(t *testing.T) {
	p, err := New(failingSource{}, "https://api.soundcloud.invalid")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/me", nil))

	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadGateway)
	}
}

func TestPlayer_StartShutdown(t *testing.T) {
	p, err := New(oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "tok"}), "https://api.soundcloud.com")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	errCh, err := p.Start(t.Context(), "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if err, ok := <-errCh; ok && err != nil {
		t.Errorf("runtime error after shutdown: %v", err)
	}
}

func TestHeaderFilterTransport(t *testing.T) {
	var got http.Header
	base := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		got = r.Header
		return &http.Response{StatusCode: http.StatusNoContent, Body: http.NoBody, Request: r}, nil
	})

	req := httptest.NewRequest(http.MethodGet, "https://api.soundcloud.com/me", nil)
	req.Header.Set("Range", "bytes=0-99")
	req.Header.Set("X-Custom", "1")
	req.Header.Set("Authorization", "Bearer leaked")

	resp, err := (&headerFilterTransport{Base: base}).RoundTrip(req)
	if err != nil {
		t.Fatalf("RoundTrip() error = %v", err)
	}
	_ = resp.Body.Close()

	if got.Get("Range") != "bytes=0-99" {
		t.Errorf("Range = %q, want forwarded", got.Get("Range"))
	}
	if got.Get("X-Custom") != "" || got.Get("Authorization") != "" {
		t.Errorf("headers not filtered: %v", got)
	}
	if got.Get("Accept") != "application/json; charset=utf-8" {
		t.Errorf("Accept = %q, want JSON default", got.Get("Accept"))
	}
	if req.Header.Get("X-Custom") != "1" {
		t.Error("original request was modified")
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }
