package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/florianilch/sclogin/internal/app"
	"github.com/florianilch/sclogin/internal/auth"
	"github.com/florianilch/sclogin/internal/observability"
)

// Execute runs the root command with the given context and arguments.
func Execute(ctx context.Context, args []string) error {
	cmd := &cli.Command{
		Name:  "sclogin",
		Usage: "SoundCloud sign-in over browser, app window or terminal",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to config file",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "log level (debug|info|warn|error)",
				Value: slog.LevelInfo.String(),
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "log format (text|json)",
				Value: string(app.DefaultConfigLogFormat),
			},
			&cli.StringFlag{
				Name:  "telemetry",
				Usage: "export logs via OpenTelemetry (none|stdout|otlp-http|otlp-grpc)",
				Value: string(app.DefaultConfigTelemetryExporter),
			},
		},
		Commands: []*cli.Command{
			loginCommand(),
			playerCommand(),
			logoutCommand(),
		},
	}

	return cmd.Run(ctx, args)
}

func loginCommand() *cli.Command {
	kinds := make([]string, len(auth.Kinds))
	for i, k := range auth.Kinds {
		kinds[i] = string(k)
	}

	return &cli.Command{
		Name:  "login",
		Usage: "sign in to SoundCloud and store the tokens",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:  "transport",
				Usage: "transport to try, in order of preference (" + strings.Join(kinds, "|") + "); repeatable",
				Value: slices.Clone(app.DefaultConfigLoginTransports),
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "give up when sign-in has not completed in time",
				Value: app.DefaultConfigLoginTimeout,
			},
			&cli.BoolFlag{
				Name:  "skip-network-check",
				Usage: "do not check that SoundCloud is reachable before launching",
			},
			&cli.StringFlag{
				Name:  "tab-browser",
				Usage: "browser executable for the tab transport (default: first Chromium-family browser found)",
			},
		},
		Action: loginAction,
	}
}

func loginAction(ctx context.Context, cmd *cli.Command) error {
	cfg, shutdown, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer shutdown()

	user, err := app.Login(ctx, cfg)
	if err != nil {
		if errors.Is(err, auth.ErrCanceled) {
			return errors.New("sign-in canceled")
		}
		return fmt.Errorf("sign-in failed: %w", err)
	}

	if user != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Signed in to SoundCloud as %s.\n", user.Username)
	} else {
		_, _ = fmt.Fprintln(os.Stderr, "Signed in to SoundCloud.")
	}
	return nil
}

func playerCommand() *cli.Command {
	return &cli.Command{
		Name:  "player",
		Usage: "serve the SoundCloud API locally with the stored tokens",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "server--host",
				Usage: "server host",
				Value: app.DefaultConfigServerHost,
			},
			&cli.IntFlag{
				Name:  "server--port",
				Usage: "server port",
				Value: int(app.DefaultConfigServerPort),
			},
			&cli.StringFlag{
				Name:  "upstream--base-url",
				Usage: "upstream API base URL",
				Value: app.DefaultConfigUpstreamBaseURL,
			},
		},
		Action: playerAction,
	}
}

func playerAction(ctx context.Context, cmd *cli.Command) error {
	cfg, shutdown, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer shutdown()

	application, err := app.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to create app: %w", err)
	}

	slog.InfoContext(ctx, "starting")

	if err := application.Start(ctx); err != nil {
		return fmt.Errorf("app failed to start: %w", err)
	}

	slog.InfoContext(ctx, "stopped gracefully")
	return nil
}

func logoutCommand() *cli.Command {
	return &cli.Command{
		Name:  "logout",
		Usage: "remove the stored tokens",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, shutdown, err := setup(ctx, cmd)
			if err != nil {
				return err
			}
			defer shutdown()

			return app.Logout(ctx, cfg)
		},
	}
}

// setup loads the configuration and sets up observability before any
// command runs. The returned func flushes exported logs.
func setup(ctx context.Context, cmd *cli.Command) (*app.Config, func(), error) {
	cfg, err := loadConfig(cmd.String("config"), cmd, os.Environ)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	shutdownTelemetry, err := observability.Instrument(ctx, cfg.LogLevel, string(cfg.LogFormat), cfg.Telemetry.Exporter)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to set up observability layer: %w", err)
	}

	shutdown := func() {
		flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Shutdown.Timeout)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "flushing telemetry: %v\n", err)
		}
	}
	return cfg, shutdown, nil
}
