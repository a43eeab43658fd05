package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/oauth2"

	"github.com/florianilch/sclogin/internal/tokenstore"
)

// TokenSourceFactory creates an oauth2.TokenSource from stored tokens.
// refreshToken is empty when none was stored.
type TokenSourceFactory func(accessToken, refreshToken string) oauth2.TokenSource

// PersistentTokenSource wraps an oauth2.TokenSource and writes rotated tokens
// back to the store. Initialization is deferred to avoid I/O during startup.
type PersistentTokenSource struct {
	factory    TokenSourceFactory
	tokenStore tokenstore.TokenStore
	accessKey  string
	refreshKey string

	tokenSource func() (oauth2.TokenSource, error)

	mu          sync.Mutex
	lastAccess  string
	lastRefresh string
}

// Compile-time check to ensure PersistentTokenSource implements oauth2.TokenSource
var _ oauth2.TokenSource = (*PersistentTokenSource)(nil)

// NewPersistentTokenSource creates a PersistentTokenSource reading the
// access token from accessKey and the optional refresh token from refreshKey.
// No I/O is performed until the first Token call.
func NewPersistentTokenSource(factory TokenSourceFactory, tokenStore tokenstore.TokenStore, accessKey, refreshKey string) (*PersistentTokenSource, error) {
	if factory == nil {
		return nil, fmt.Errorf("missing token source factory")
	}
	if tokenStore == nil {
		return nil, fmt.Errorf("missing token store")
	}
	if accessKey == "" {
		return nil, fmt.Errorf("missing access token key")
	}

	p := &PersistentTokenSource{
		factory:    factory,
		tokenStore: tokenStore,
		accessKey:  accessKey,
		refreshKey: refreshKey,
	}

	p.tokenSource = sync.OnceValues(p.createTokenSource)

	return p, nil
}

// createTokenSource performs one-time initialization of the TokenSource.
func (p *PersistentTokenSource) createTokenSource() (oauth2.TokenSource, error) {
	// oauth2.TokenSource.Token() has no context parameter
	ctx := context.Background()

	access, err := p.tokenStore.Read(ctx, p.accessKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read access token (run login first): %w", err)
	}

	var refresh string
	if p.refreshKey != "" {
		refresh, err = p.tokenStore.Read(ctx, p.refreshKey)
		if err != nil {
			slog.DebugContext(ctx, "no refresh token stored, access token used as is", "error", err)
			refresh = ""
		}
	}

	p.mu.Lock()
	p.lastAccess = access
	p.lastRefresh = refresh
	p.mu.Unlock()

	return p.factory(access, refresh), nil
}

// Token returns a valid token, refreshing if necessary and persisting rotated tokens.
func (p *PersistentTokenSource) Token() (*oauth2.Token, error) {
	ts, err := p.tokenSource()
	if err != nil {
		return nil, err
	}

	freshToken, err := ts.Token()
	if err != nil {
		return nil, fmt.Errorf("getting token from token source: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ctx := context.Background()

	// Refresh token first: losing it is unrecoverable, a stale access token is not.
	if p.refreshKey != "" && freshToken.RefreshToken != "" && freshToken.RefreshToken != p.lastRefresh {
		if p.persist(ctx, p.refreshKey, freshToken.RefreshToken) {
			p.lastRefresh = freshToken.RefreshToken
		}
	}

	if freshToken.AccessToken != p.lastAccess {
		if p.persist(ctx, p.accessKey, freshToken.AccessToken) {
			p.lastAccess = freshToken.AccessToken
		}
	}

	return freshToken, nil
}

// persist writes value under key and reports whether a retry is pointless,
// either because the write succeeded or because the store is read-only.
// Must be called with p.mu held.
func (p *PersistentTokenSource) persist(ctx context.Context, key, value string) bool {
	err := p.tokenStore.Write(ctx, key, value)
	switch {
	case err == nil:
		return true
	case errors.Is(err, tokenstore.ErrReadOnly):
		slog.DebugContext(ctx, "rotated token not persisted, storage is read-only", "key", key)
		return true
	default:
		// Keep the old value cached so the next call retries.
		slog.ErrorContext(ctx, "failed to persist rotated token", "key", key, "error", err)
		return false
	}
}
