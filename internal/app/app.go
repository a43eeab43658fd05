package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"

	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"

	"github.com/florianilch/sclogin/internal/player"
	"github.com/florianilch/sclogin/internal/soundcloud"
	"github.com/florianilch/sclogin/internal/tokenstore"
)

// App orchestrates the lifecycle of the player server and related services.
type App struct {
	cfg    *Config
	player *player.Player
}

// New creates a new App instance.
func New(cfg *Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// I/O deferred to first Token() call
	tokenSource, err := newTokenSource(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create token source: %w", err)
	}

	playerServer, err := player.New(tokenSource, cfg.Player.Upstream.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create player: %w", err)
	}

	return &App{
		cfg:    cfg,
		player: playerServer,
	}, nil
}

// Start starts all services and blocks until shutdown is triggered.
// Uses errgroup for runtime error monitoring and shutdown function collection for coordinated cleanup.
func (a *App) Start(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	address := net.JoinHostPort(a.cfg.Player.Server.Host, strconv.FormatUint(uint64(a.cfg.Player.Server.Port), 10))
	var shutdownFuncs []func(context.Context) error

	// Startup phase: Start services
	slog.InfoContext(gCtx, "starting player server", "address", address)
	playerErrCh, err := a.player.Start(gCtx, address)
	if err != nil {
		return fmt.Errorf("player startup failed: %w", err)
	}
	shutdownFuncs = append(shutdownFuncs, a.player.Shutdown)

	// Monitor runtime errors - errgroup cancels context on first error
	g.Go(func() error {
		select {
		case err := <-playerErrCh:
			if err != nil {
				slog.ErrorContext(gCtx, "player runtime error", "error", err)
				return fmt.Errorf("player: %w", err)
			}
			return nil
		case <-gCtx.Done():
			return nil
		}
	})

	slog.InfoContext(gCtx, "application ready", "address", address)

	runtimeErr := g.Wait()

	slog.InfoContext(gCtx, "shutting down services")

	// Shutdown phase: Stop all services
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Shutdown.Timeout)
	defer cancel()

	var errs []error
	if runtimeErr != nil {
		errs = append(errs, fmt.Errorf("runtime: %w", runtimeErr))
	}

	for i := len(shutdownFuncs) - 1; i >= 0; i-- {
		if err := shutdownFuncs[i](shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "service shutdown failed", "error", err)
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	slog.Info("application stopped")
	return nil
}

// newTokenSource creates a PersistentTokenSource from application configuration.
// No I/O is performed - TokenSource creation is deferred to first Token() call.
func newTokenSource(cfg *Config) (*PersistentTokenSource, error) {
	store, err := cfg.Auth.NewTokenStore()
	if err != nil {
		return nil, fmt.Errorf("failed to create token store: %w", err)
	}

	oauthCfg := soundcloud.Config(cfg.Client.ID, cfg.Client.Secret, cfg.Client.RedirectURL, cfg.Client.Scopes...)

	factory := func(accessToken, refreshToken string) oauth2.TokenSource {
		// Refreshing needs the registered client
		if cfg.Client.ID == "" {
			refreshToken = ""
		}
		return soundcloud.NewTokenSource(oauthCfg, accessToken, refreshToken)
	}

	return NewPersistentTokenSource(factory, store, tokenstore.KeyAccessToken, tokenstore.KeyRefreshToken)
}

// Logout deletes the stored tokens. Read-only storage is left untouched.
func Logout(ctx context.Context, cfg *Config) error {
	if !cfg.Auth.Writable() {
		return fmt.Errorf("cannot remove tokens: %w", tokenstore.ErrReadOnly)
	}

	store, err := cfg.Auth.NewTokenStore()
	if err != nil {
		return fmt.Errorf("failed to create token store: %w", err)
	}

	var errs []error
	for _, key := range []string{tokenstore.KeyAccessToken, tokenstore.KeyRefreshToken} {
		if err := store.Delete(ctx, key); err != nil {
			errs = append(errs, fmt.Errorf("deleting %s: %w", key, err))
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	slog.InfoContext(ctx, "stored tokens removed", "storage", cfg.Auth.Storage)
	return nil
}
