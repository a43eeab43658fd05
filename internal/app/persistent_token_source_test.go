package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"golang.org/x/oauth2"

	"github.com/florianilch/sclogin/internal/tokenstore"
)

// memStore is an in-memory tokenstore.TokenStore counting writes.
type memStore struct {
	mu       sync.Mutex
	tokens   map[string]string
	writes   map[string]int
	writeErr error
}

func newMemStore(tokens map[string]string) *memStore {
	if tokens == nil {
		tokens = make(map[string]string)
	}
	return &memStore{tokens: tokens, writes: make(map[string]int)}
}

func (m *memStore) Read(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.tokens[key]
	if !ok {
		return "", fmt.Errorf("token %s not found", key)
	}
	return v, nil
}

func (m *memStore) Write(_ context.Context, key, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeErr != nil {
		return m.writeErr
	}
	m.tokens[key] = token
	m.writes[key]++
	return nil
}

func (m *memStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tokens, key)
	return nil
}

func (m *memStore) get(key string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tokens[key]
}

func (m *memStore) writeCount(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes[key]
}

// sequenceSource hands out the given tokens in order, repeating the last one.
type sequenceSource struct {
	mu     sync.Mutex
	tokens []*oauth2.Token
}

func (s *sequenceSource) Token() (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.tokens[0]
	if len(s.tokens) > 1 {
		s.tokens = s.tokens[1:]
	}
	return t, nil
}

func TestNewPersistentTokenSource_Validation(t *testing.T) {
	factory := func(string, string) oauth2.TokenSource { return nil }
	store := newMemStore(nil)

	if _, err := NewPersistentTokenSource(nil, store, "a", "r"); err == nil {
		t.Error("missing factory should fail")
	}
	if _, err := NewPersistentTokenSource(factory, nil, "a", "r"); err == nil {
		t.Error("missing store should fail")
	}
	if _, err := NewPersistentTokenSource(factory, store, "", "r"); err == nil {
		t.Error("missing access key should fail")
	}
}

func TestPersistentTokenSource_PersistsRotatedTokens(t *testing.T) {
	store := newMemStore(map[string]string{
		tokenstore.KeyAccessToken:  "access-0",
		tokenstore.KeyRefreshToken: "refresh-0",
	})

	var gotAccess, gotRefresh string
	src := &sequenceSource{tokens: []*oauth2.Token{
		{AccessToken: "access-0", RefreshToken: "refresh-0"},
		{AccessToken: "access-1", RefreshToken: "refresh-1"},
	}}
	factory := func(access, refresh string) oauth2.TokenSource {
		gotAccess, gotRefresh = access, refresh
		return src
	}

	pts, err := NewPersistentTokenSource(factory, store, tokenstore.KeyAccessToken, tokenstore.KeyRefreshToken)
	if err != nil {
		t.Fatalf("NewPersistentTokenSource() error = %v", err)
	}

	if _, err := pts.Token(); err != nil {
		t.Fatalf("Token() error = %v", err)
	}
	if gotAccess != "access-0" || gotRefresh != "refresh-0" {
		t.Errorf("factory got (%q, %q), want stored tokens", gotAccess, gotRefresh)
	}
	if n := store.writeCount(tokenstore.KeyAccessToken) + store.writeCount(tokenstore.KeyRefreshToken); n != 0 {
		t.Errorf("unchanged tokens written %d times", n)
	}

	tok, err := pts.Token()
	if err != nil {
		t.Fatalf("Token() error = %v", err)
	}
	if tok.AccessToken != "access-1" {
		t.Errorf("AccessToken = %q, want access-1", tok.AccessToken)
	}
	if got := store.get(tokenstore.KeyAccessToken); got != "access-1" {
		t.Errorf("stored access token = %q, want access-1", got)
	}
	if got := store.get(tokenstore.KeyRefreshToken); got != "refresh-1" {
		t.Errorf("stored refresh token = %q, want refresh-1", got)
	}

	// Same tokens again: no further writes
	if _, err := pts.Token(); err != nil {
		t.Fatalf("Token() error = %v", err)
	}
	if n := store.writeCount(tokenstore.KeyAccessToken); n != 1 {
		t.Errorf("access token written %d times, want 1", n)
	}
}

func TestPersistentTokenSource_MissingRefreshToken(t *testing.T) {
	store := newMemStore(map[string]string{tokenstore.KeyAccessToken: "access-0"})

	gotRefresh := "unset"
	factory := func(_, refresh string) oauth2.TokenSource {
		gotRefresh = refresh
		return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "access-0"})
	}

	pts, err := NewPersistentTokenSource(factory, store, tokenstore.KeyAccessToken, tokenstore.KeyRefreshToken)
	if err != nil {
		t.Fatalf("NewPersistentTokenSource() error = %v", err)
	}
	if _, err := pts.Token(); err != nil {
		t.Fatalf("Token() error = %v", err)
	}
	if gotRefresh != "" {
		t.Errorf("refresh token = %q, want empty", gotRefresh)
	}
}

func TestPersistentTokenSource_MissingAccessToken(t *testing.T) {
	pts, err := NewPersistentTokenSource(func(string, string) oauth2.TokenSource {
		t.Error("factory must not be called without a stored token")
		return nil
	}, newMemStore(nil), tokenstore.KeyAccessToken, tokenstore.KeyRefreshToken)
	if err != nil {
		t.Fatalf("NewPersistentTokenSource() error = %v", err)
	}

	if _, err := pts.Token(); err == nil {
		t.Fatal("Token() without stored token should fail")
	}
}

func TestPersistentTokenSource_WriteFailures(t *testing.T) {
	tests := []struct {
		name       string
		writeErr   error
		wantWrites int
	}{
		// Read-only stores are not retried
		{"read-only", fmt.Errorf("env: %w", tokenstore.ErrReadOnly), 1},
		// Other failures are retried on the next call
		{"transient", errors.New("disk full"), 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore(map[string]string{tokenstore.KeyAccessToken: "old"})
			attempts := 0
			store.writeErr = tt.writeErr

			counting := &countingStore{memStore: store, attempts: &attempts}
			pts, err := NewPersistentTokenSource(func(string, string) oauth2.TokenSource {
				return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "new"})
			}, counting, tokenstore.KeyAccessToken, "")
			if err != nil {
				t.Fatalf("NewPersistentTokenSource() error = %v", err)
			}

			for range 2 {
				tok, err := pts.Token()
				if err != nil {
					t.Fatalf("Token() error = %v", err)
				}
				if tok.AccessToken != "new" {
					t.Errorf("AccessToken = %q, want new", tok.AccessToken)
				}
			}
			if attempts != tt.wantWrites {
				t.Errorf("write attempts = %d, want %d", attempts, tt.wantWrites)
			}
		})
	}
}

type countingStore struct {
	*memStore
	attempts *int
}

func (c *countingStore) Write(ctx context.Context, key, token string) error {
	*c.attempts++
	return c.memStore.Write(ctx, key, token)
}
