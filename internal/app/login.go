package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"

	"github.com/florianilch/sclogin/internal/auth"
	"github.com/florianilch/sclogin/internal/redirect"
	"github.com/florianilch/sclogin/internal/soundcloud"
	"github.com/florianilch/sclogin/internal/tokenstore"
	"github.com/florianilch/sclogin/internal/transport"
)

// ErrLoginTimeout is returned when no sign-in completed within login.timeout.
var ErrLoginTimeout = errors.New("sign-in timed out")

type loginOptions struct {
	endpoint      oauth2.Endpoint
	httpClient    *http.Client
	checker       auth.NetworkChecker
	transportOpts []transport.Option
	embeddedOpts  []transport.EmbeddedOption
}

// LoginOption customizes Login.
type LoginOption func(*loginOptions)

// WithEndpoint replaces the SoundCloud OAuth endpoint.
func WithEndpoint(endpoint oauth2.Endpoint) LoginOption {
	return func(o *loginOptions) {
		o.endpoint = endpoint
	}
}

// WithHTTPClient sets the client used for token exchanges and API calls.
func WithHTTPClient(client *http.Client) LoginOption {
	return func(o *loginOptions) {
		o.httpClient = client
	}
}

// WithNetworkChecker replaces the dial check against the token endpoint.
func WithNetworkChecker(checker auth.NetworkChecker) LoginOption {
	return func(o *loginOptions) {
		o.checker = checker
	}
}

// WithTransportOptions passes options to the browser and tab transports.
func WithTransportOptions(opts ...transport.Option) LoginOption {
	return func(o *loginOptions) {
		o.transportOpts = append(o.transportOpts, opts...)
	}
}

// WithEmbeddedOptions passes options to the embedded transport.
func WithEmbeddedOptions(opts ...transport.EmbeddedOption) LoginOption {
	return func(o *loginOptions) {
		o.embeddedOpts = append(o.embeddedOpts, opts...)
	}
}

type loginResult struct {
	user *soundcloud.User
	err  error
}

// Login signs in to SoundCloud with the configured transports and stores the
// obtained tokens. It blocks until sign-in succeeds, fails, times out or ctx
// is canceled. The returned user is nil when the profile lookup after
// sign-in failed.
func Login(ctx context.Context, cfg *Config, opts ...LoginOption) (*soundcloud.User, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.ValidateLogin(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	o := loginOptions{
		endpoint:   soundcloud.Endpoint,
		httpClient: &http.Client{Timeout: transport.DefaultExchangeTimeout},
	}
	for _, opt := range opts {
		opt(&o)
	}

	kinds, err := cfg.LoginKinds()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	store, err := cfg.Auth.NewTokenStore()
	if err != nil {
		return nil, fmt.Errorf("failed to create token store: %w", err)
	}

	oauthCfg := soundcloud.Config(cfg.Client.ID, "", cfg.Client.RedirectURL, cfg.Client.Scopes...)
	oauthCfg.Endpoint = o.endpoint

	if o.checker == nil && !cfg.Login.SkipNetworkCheck {
		checker, err := transport.NewDialChecker(o.endpoint.TokenURL, transport.DefaultDialTimeout)
		if err != nil {
			return nil, fmt.Errorf("failed to create network checker: %w", err)
		}
		o.checker = checker
	}

	// Buffered for the single result Login waits for; later ones are dropped.
	results := make(chan loginResult, 1)
	report := func(r loginResult) {
		select {
		case results <- r:
		default:
		}
	}

	navigator := &playerNavigator{
		store:      store,
		httpClient: o.httpClient,
		baseURL:    cfg.Player.Upstream.BaseURL,
		report:     report,
	}

	orchestrator, err := auth.New(cfg.Client.Secret, tokenstore.Saver{Store: store}, navigator,
		auth.WithTokenKey(tokenstore.KeyAccessToken),
		auth.WithRefreshTokenKey(tokenstore.KeyRefreshToken),
		auth.WithNetworkChecker(o.checker),
		auth.WithNetworkCheck(!cfg.Login.SkipNetworkCheck),
		auth.WithFailureHandler(func(cycleID string, err error) {
			report(loginResult{err: err})
		}),
		auth.WithAvailabilityObserver(func(kind auth.Kind, available bool) {
			slog.DebugContext(ctx, "transport availability changed", "transport", kind, "available", available)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create orchestrator: %w", err)
	}
	defer func() {
		if err := orchestrator.Teardown(); err != nil {
			slog.WarnContext(ctx, "releasing transports failed", "error", err)
		}
	}()

	transports, err := newTransports(oauthCfg, o, cfg.Login.TabBrowser, orchestrator.OnTransportResult)
	if err != nil {
		return nil, err
	}

	if err := prepareTransports(ctx, orchestrator, transports, kinds); err != nil {
		return nil, err
	}

	var selected []auth.Kind
	for _, kind := range kinds {
		if !orchestrator.Available(kind) {
			slog.WarnContext(ctx, "configured transport unavailable, skipping", "transport", kind)
			continue
		}
		if _, err := orchestrator.Toggle(kind); err != nil {
			return nil, fmt.Errorf("selecting %s transport: %w", kind, err)
		}
		selected = append(selected, kind)
	}

	// Browser and tab deliver redirects to the loopback server.
	var serverErrCh <-chan error
	if slices.Contains(selected, auth.KindBrowser) || slices.Contains(selected, auth.KindTab) {
		server, err := redirect.New(cfg.Client.RedirectURL, orchestrator.OnRedirect)
		if err != nil {
			return nil, fmt.Errorf("failed to create redirect server: %w", err)
		}
		serverErrCh, err = server.Start(ctx)
		if err != nil {
			return nil, fmt.Errorf("redirect server startup failed: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Shutdown.Timeout)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				slog.WarnContext(shutdownCtx, "redirect server shutdown failed", "error", err)
			}
		}()
	}

	orchestrator.Launch(ctx)

	timer := time.NewTimer(cfg.Login.Timeout)
	defer timer.Stop()

	select {
	case r := <-results:
		return r.user, r.err
	case err, ok := <-serverErrCh:
		if ok && err != nil {
			return nil, fmt.Errorf("redirect server: %w", err)
		}
		return nil, errors.New("redirect server stopped unexpectedly")
	case <-timer.C:
		return nil, fmt.Errorf("%w after %s", ErrLoginTimeout, cfg.Login.Timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// newTransports builds one transport per kind, each with its own exchanger so
// only the launching transport recognizes a redirect.
func newTransports(oauthCfg *oauth2.Config, o loginOptions, tabBrowser string, result transport.ResultFunc) (map[auth.Kind]auth.Transport, error) {
	newExchanger := func() (*transport.Exchanger, error) {
		return transport.NewExchanger(oauthCfg, transport.WithHTTPClient(o.httpClient))
	}

	transports := make(map[auth.Kind]auth.Transport, len(auth.Kinds))

	e, err := newExchanger()
	if err != nil {
		return nil, fmt.Errorf("failed to create exchanger: %w", err)
	}
	if transports[auth.KindBrowser], err = transport.NewBrowser(e, o.transportOpts...); err != nil {
		return nil, fmt.Errorf("failed to create browser transport: %w", err)
	}

	if e, err = newExchanger(); err != nil {
		return nil, fmt.Errorf("failed to create exchanger: %w", err)
	}
	if transports[auth.KindTab], err = transport.NewTab(e, tabBrowser, o.transportOpts...); err != nil {
		return nil, fmt.Errorf("failed to create tab transport: %w", err)
	}

	if e, err = newExchanger(); err != nil {
		return nil, fmt.Errorf("failed to create exchanger: %w", err)
	}
	if transports[auth.KindEmbedded], err = transport.NewEmbedded(e, auth.RequestCodeAuthenticate, result, o.embeddedOpts...); err != nil {
		return nil, fmt.Errorf("failed to create embedded transport: %w", err)
	}

	return transports, nil
}

// prepareTransports prepares all transports concurrently and registers them
// with the configured kinds first, in order of preference.
func prepareTransports(ctx context.Context, orchestrator *auth.Orchestrator, transports map[auth.Kind]auth.Transport, preferred []auth.Kind) error {
	order := slices.Clone(preferred)
	for _, kind := range auth.Kinds {
		if !slices.Contains(order, kind) {
			order = append(order, kind)
		}
	}

	prepared := make([]bool, len(order))
	g, gCtx := errgroup.WithContext(ctx)
	for i, kind := range order {
		g.Go(func() error {
			prepared[i] = transports[kind].Prepare(gCtx)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("preparing transports: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	for i, kind := range order {
		orchestrator.Register(transports[kind], prepared[i])
	}
	return nil
}

// playerNavigator moves on after sign-in by looking up the signed-in user.
type playerNavigator struct {
	store      tokenstore.TokenStore
	httpClient *http.Client
	baseURL    string
	report     func(loginResult)
}

// Compile-time check to ensure playerNavigator implements auth.Navigator
var _ auth.Navigator = (*playerNavigator)(nil)

// OpenNext implements auth.Navigator.
func (n *playerNavigator) OpenNext(ctx context.Context) error {
	user, err := n.me(ctx)
	// Sign-in already succeeded, a failed lookup only loses the greeting.
	n.report(loginResult{user: user})
	return err
}

func (n *playerNavigator) me(ctx context.Context) (*soundcloud.User, error) {
	accessToken, err := n.store.Read(ctx, tokenstore.KeyAccessToken)
	if err != nil {
		return nil, fmt.Errorf("reading stored token: %w", err)
	}

	base := n.httpClient.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	client := &http.Client{
		Timeout: n.httpClient.Timeout,
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}),
			Base:   base,
		},
	}

	user, err := soundcloud.Me(ctx, client, n.baseURL)
	if err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "signed in", "user", user.Username)
	return user, nil
}
