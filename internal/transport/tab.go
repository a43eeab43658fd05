package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/florianilch/sclogin/internal/auth"
)

// Tab opens the authorization page in an app-mode window of a Chromium-family
// browser. The window belongs to this process and is closed by Close.
type Tab struct {
	exchanger  *Exchanger
	opts       options
	candidates []string

	mu      sync.Mutex
	browser string
	window  Process
}

// Compile-time checks to ensure Tab implements auth.Transport and can be released
var (
	_ auth.Transport = (*Tab)(nil)
	_ io.Closer      = (*Tab)(nil)
)

// NewTab creates a Tab transport. browser names the executable to use; when
// empty the first installed Chromium-family browser is picked.
func NewTab(exchanger *Exchanger, browser string, opts ...Option) (*Tab, error) {
	if exchanger == nil {
		return nil, errors.New("missing exchanger")
	}
	t := &Tab{
		exchanger:  exchanger,
		opts:       defaultOptions(),
		candidates: tabBrowsers,
	}
	if browser != "" {
		t.candidates = []string{browser}
	}
	for _, opt := range opts {
		opt(&t.opts)
	}
	return t, nil
}

// Kind implements auth.Transport.
func (t *Tab) Kind() auth.Kind {
	return auth.KindTab
}

// Prepare resolves the browser used for app-mode windows.
func (t *Tab) Prepare(ctx context.Context) bool {
	for _, name := range t.candidates {
		path, err := t.opts.lookPath(name)
		if err != nil {
			continue
		}
		t.mu.Lock()
		t.browser = path
		t.mu.Unlock()
		slog.DebugContext(ctx, "tab transport ready", "browser", path)
		return true
	}
	slog.InfoContext(ctx, "tab transport unavailable, no app-mode capable browser found", "candidates", t.candidates)
	return false
}

// Launch opens the authorization URL in a new app-mode window, closing a
// window left over from an earlier launch.
func (t *Tab) Launch(ctx context.Context, req auth.LaunchRequest) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.browser == "" {
		return errors.New("tab transport not prepared")
	}
	t.closeWindowLocked()

	authURL := t.exchanger.AuthCodeURL(req.CycleID)
	window, err := t.opts.start(t.browser, "--app="+authURL, "--new-window")
	if err != nil {
		t.exchanger.Reset()
		return fmt.Errorf("failed to open authentication window: %w", err)
	}
	t.window = window

	go func() {
		err := window.Wait()
		slog.InfoContext(ctx, "authentication window closed", "cycle", req.CycleID, "error", err)

		t.mu.Lock()
		if t.window == window {
			t.window = nil
		}
		t.mu.Unlock()
	}()

	slog.InfoContext(ctx, "opened authorization page in app window", "cycle", req.CycleID)
	return nil
}

// MatchesRedirect implements auth.Transport.
func (t *Tab) MatchesRedirect(p auth.Payload) bool {
	return p.RequestCode == 0 && t.exchanger.MatchesRedirectURL(p.URL)
}

// ExchangeToken implements auth.Transport. The window is closed once the
// redirect was received.
func (t *Tab) ExchangeToken(ctx context.Context, p auth.Payload, clientSecret string, fn auth.ResponseFunc) {
	t.mu.Lock()
	t.closeWindowLocked()
	t.mu.Unlock()

	t.exchanger.ExchangeAsync(ctx, p.URL, clientSecret, fn)
}

// Close closes the authentication window and forgets the outstanding flow.
func (t *Tab) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.exchanger.Reset()
	return t.closeWindowLocked()
}

func (t *Tab) closeWindowLocked() error {
	if t.window == nil {
		return nil
	}
	window := t.window
	t.window = nil
	if err := window.Kill(); err != nil {
		return fmt.Errorf("closing authentication window: %w", err)
	}
	return nil
}
