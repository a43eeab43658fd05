package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/florianilch/sclogin/internal/auth"
)

// Browser opens the authorization page in the system browser.
type Browser struct {
	exchanger *Exchanger
	opts      options

	opener     string
	openerArgs []string
}

// Compile-time check to ensure Browser implements auth.Transport
var _ auth.Transport = (*Browser)(nil)

// NewBrowser creates a Browser transport.
func NewBrowser(exchanger *Exchanger, opts ...Option) (*Browser, error) {
	if exchanger == nil {
		return nil, errors.New("missing exchanger")
	}
	b := &Browser{
		exchanger: exchanger,
		opts:      defaultOptions(),
	}
	for _, opt := range opts {
		opt(&b.opts)
	}
	return b, nil
}

// Kind implements auth.Transport.
func (b *Browser) Kind() auth.Kind {
	return auth.KindBrowser
}

// Prepare resolves the platform's URL opener.
func (b *Browser) Prepare(ctx context.Context) bool {
	name, args, err := systemOpener(b.opts.goos)
	if err != nil {
		slog.InfoContext(ctx, "browser transport unavailable", "error", err)
		return false
	}
	path, err := b.opts.lookPath(name)
	if err != nil {
		slog.InfoContext(ctx, "browser transport unavailable", "opener", name, "error", err)
		return false
	}
	b.opener = path
	b.openerArgs = args
	return true
}

// Launch opens the authorization URL.
func (b *Browser) Launch(ctx context.Context, req auth.LaunchRequest) error {
	if b.opener == "" {
		return errors.New("browser transport not prepared")
	}

	authURL := b.exchanger.AuthCodeURL(req.CycleID)
	args := append(append([]string(nil), b.openerArgs...), authURL)

	proc, err := b.opts.start(b.opener, args...)
	if err != nil {
		b.exchanger.Reset()
		return fmt.Errorf("failed to open browser: %w", err)
	}

	// The opener hands off to the browser and exits; reap it.
	go func() {
		if err := proc.Wait(); err != nil {
			slog.DebugContext(ctx, "browser opener exited", "error", err)
		}
	}()

	slog.InfoContext(ctx, "opened authorization page in browser", "cycle", req.CycleID)
	return nil
}

// MatchesRedirect implements auth.Transport.
func (b *Browser) MatchesRedirect(p auth.Payload) bool {
	return p.RequestCode == 0 && b.exchanger.MatchesRedirectURL(p.URL)
}

// ExchangeToken implements auth.Transport.
func (b *Browser) ExchangeToken(ctx context.Context, p auth.Payload, clientSecret string, fn auth.ResponseFunc) {
	b.exchanger.ExchangeAsync(ctx, p.URL, clientSecret, fn)
}
