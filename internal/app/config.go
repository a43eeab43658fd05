package app

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/user"
	"path/filepath"
	"slices"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/florianilch/sclogin/internal/auth"
	"github.com/florianilch/sclogin/internal/observability"
	"github.com/florianilch/sclogin/internal/soundcloud"
	"github.com/florianilch/sclogin/internal/tokenstore"
)

// LogFormat represents the logging output format.
type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

// TokenStorageType represents the different storage types supported for stored tokens.
type TokenStorageType string

const (
	TokenStorageTypeFile    TokenStorageType = "file"
	TokenStorageTypeEnv     TokenStorageType = "env"
	TokenStorageTypeKeyring TokenStorageType = "keyring"
)

// KeyringService is the keyring service name tokens are stored under.
const KeyringService = "sclogin"

// Default configuration values
const (
	DefaultConfigLogFormat         = LogFormatText
	DefaultConfigRedirectURL       = "http://127.0.0.1:8976/callback"
	DefaultConfigLoginTimeout      = 5 * time.Minute
	DefaultConfigServerHost        = "127.0.0.1"
	DefaultConfigServerPort        = 4100
	DefaultConfigShutdownTimeout   = 5 * time.Second
	DefaultConfigAuthStorage       = TokenStorageTypeFile
	DefaultConfigAuthEnvPrefix     = "SOUNDCLOUD_"
	DefaultConfigUpstreamBaseURL   = soundcloud.APIBaseURL
	DefaultConfigTelemetryExporter = observability.ExporterNone
)

// DefaultConfigLoginTransports is the transport preference when none is configured.
var DefaultConfigLoginTransports = []string{string(auth.KindTab), string(auth.KindBrowser), string(auth.KindEmbedded)}

// ClientConfig holds the registered SoundCloud application.
type ClientConfig struct {
	ID          string   `json:"id"`
	Secret      string   `json:"secret"`
	RedirectURL string   `json:"redirect_url" validate:"required,url"`
	Scopes      []string `json:"scopes,omitempty"`
}

// LoginConfig controls the sign-in flow.
type LoginConfig struct {
	// Transports lists the transports to select, in order of preference.
	Transports       []string      `json:"transports" validate:"min=1,unique,dive,oneof=browser tab embedded"`
	Timeout          time.Duration `json:"timeout" validate:"gt=0"`
	SkipNetworkCheck bool          `json:"skip_network_check"`
	// TabBrowser names the browser executable used by the tab transport.
	TabBrowser string `json:"tab_browser,omitempty"`
}

// ServerConfig holds server-specific configuration.
type ServerConfig struct {
	Host string `json:"host" validate:"hostname_rfc1123|ip"`
	Port uint16 `json:"port"` // Port range 0-65535 handled by uint16 type
}

// UpstreamConfig holds upstream API configuration.
type UpstreamConfig struct {
	BaseURL string `json:"base_url" validate:"required,url"`
}

// PlayerConfig holds the configuration of the local API server.
type PlayerConfig struct {
	Server   ServerConfig   `json:"server"`
	Upstream UpstreamConfig `json:"upstream"`
}

// ShutdownConfig holds shutdown behavior configuration.
type ShutdownConfig struct {
	// Timeout for graceful shutdown.
	Timeout time.Duration `json:"timeout"`
}

// TelemetryConfig selects the log exporter.
type TelemetryConfig struct {
	Exporter observability.Exporter `json:"exporter" validate:"oneof=none stdout otlp-http otlp-grpc"`
}

// AuthConfig describes where tokens are stored.
type AuthConfig struct {
	Storage TokenStorageType `json:"storage" validate:"required,oneof=file env keyring"`

	// Storage-specific settings (mutually exclusive based on Storage type)
	Dir         string `json:"dir,omitempty"`          // For file storage: directory holding one file per token
	EnvPrefix   string `json:"env_prefix,omitempty"`   // For env storage: variable prefix, e.g. SOUNDCLOUD_ACCESS_TOKEN
	KeyringUser string `json:"keyring_user,omitempty"` // For keyring storage: user identifier
}

// NewTokenStore creates a TokenStore from the authentication configuration.
func (a *AuthConfig) NewTokenStore() (tokenstore.TokenStore, error) {
	switch a.Storage {
	case TokenStorageTypeFile:
		return tokenstore.NewFileStore(a.Dir)
	case TokenStorageTypeEnv:
		return tokenstore.NewEnvStore(a.EnvPrefix)
	case TokenStorageTypeKeyring:
		return tokenstore.NewKeyringStore(KeyringService, a.KeyringUser)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", a.Storage)
	}
}

// Writable reports whether the configured storage accepts writes.
func (a *AuthConfig) Writable() bool {
	return a.Storage != TokenStorageTypeEnv
}

// Config holds the application's configuration.
type Config struct {
	// LogLevel for logging output (defaults to Info if unset).
	LogLevel  slog.Level      `json:"log_level"`
	LogFormat LogFormat       `json:"log_format" validate:"oneof=text json"`
	Client    ClientConfig    `json:"client"`
	Login     LoginConfig     `json:"login"`
	Auth      AuthConfig      `json:"auth"`
	Player    PlayerConfig    `json:"player"`
	Shutdown  ShutdownConfig  `json:"shutdown"`
	Telemetry TelemetryConfig `json:"telemetry"`
}

// Default creates a new Config with default values applied.
func Default() (*Config, error) {
	cfg := &Config{}
	if err := cfg.ApplyDefaults(); err != nil {
		return nil, fmt.Errorf("failed to apply defaults: %w", err)
	}
	return cfg, nil
}

// ApplyDefaults fills unset config fields with sensible defaults.
func (c *Config) ApplyDefaults() error {
	if c.LogFormat == "" {
		c.LogFormat = DefaultConfigLogFormat
	}
	if c.Client.RedirectURL == "" {
		c.Client.RedirectURL = DefaultConfigRedirectURL
	}
	if len(c.Login.Transports) == 0 {
		c.Login.Transports = slices.Clone(DefaultConfigLoginTransports)
	}
	if c.Login.Timeout == 0 {
		c.Login.Timeout = DefaultConfigLoginTimeout
	}
	if c.Player.Server.Host == "" {
		c.Player.Server.Host = DefaultConfigServerHost
	}
	if c.Player.Server.Port == 0 {
		c.Player.Server.Port = DefaultConfigServerPort
	}
	if c.Player.Upstream.BaseURL == "" {
		c.Player.Upstream.BaseURL = DefaultConfigUpstreamBaseURL
	}
	if c.Shutdown.Timeout == 0 {
		c.Shutdown.Timeout = DefaultConfigShutdownTimeout
	}
	if c.Telemetry.Exporter == "" {
		c.Telemetry.Exporter = DefaultConfigTelemetryExporter
	}
	if c.Auth.Storage == "" {
		c.Auth.Storage = DefaultConfigAuthStorage
	}

	// Dynamic defaults based on storage type
	switch c.Auth.Storage {
	case TokenStorageTypeFile:
		if c.Auth.Dir == "" {
			configDir, err := os.UserConfigDir()
			if err != nil {
				return fmt.Errorf("auth.dir required (auto-detect failed: %w)", err)
			}
			c.Auth.Dir = filepath.Join(configDir, "sclogin", "tokens")
		}
	case TokenStorageTypeKeyring:
		if c.Auth.KeyringUser == "" {
			currentUser, err := user.Current()
			if err != nil {
				return fmt.Errorf("auth.keyring_user required (auto-detect failed: %w)", err)
			}
			c.Auth.KeyringUser = currentUser.Username
		}
	case TokenStorageTypeEnv:
		if c.Auth.EnvPrefix == "" {
			c.Auth.EnvPrefix = DefaultConfigAuthEnvPrefix
		}
	}

	return nil
}

// Validate validates the configuration using struct tags and enum values.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}

	switch c.Auth.Storage {
	case TokenStorageTypeFile:
		if c.Auth.Dir == "" {
			return errors.New("directory required for file storage")
		}
	case TokenStorageTypeEnv:
		if c.Auth.EnvPrefix == "" {
			return errors.New("env_prefix required for env storage")
		}
	case TokenStorageTypeKeyring:
		if c.Auth.KeyringUser == "" {
			return errors.New("keyring_user required for keyring storage")
		}
	}

	return nil
}

// ValidateLogin checks the settings only signing in depends on.
func (c *Config) ValidateLogin() error {
	if c.Client.ID == "" {
		return errors.New("client.id required to sign in")
	}
	// Tokens obtained by signing in have to be persisted
	if !c.Auth.Writable() {
		return fmt.Errorf("signing in requires writable storage, %s is read-only", c.Auth.Storage)
	}
	return nil
}

// LoginKinds returns the configured transports in order of preference.
func (c *Config) LoginKinds() ([]auth.Kind, error) {
	kinds := make([]auth.Kind, 0, len(c.Login.Transports))
	for _, name := range c.Login.Transports {
		kind, err := auth.ParseKind(name)
		if err != nil {
			return nil, err
		}
		kinds = append(kinds, kind)
	}
	return kinds, nil
}
