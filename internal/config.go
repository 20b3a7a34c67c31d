package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/raido/internal/models"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App         ApplicationConfig `yaml:"app"`
	Provider    ProviderConfig    `yaml:"provider"`
	Credentials CredentialsConfig `yaml:"credentials"`
	Playback    PlaybackConfig    `yaml:"playback"`
	Store       StoreConfig       `yaml:"store"`
	Auth        AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Provider.Validate(); err != nil {
		return err
	}
	if err := c.Credentials.Validate(); err != nil {
		return err
	}
	if err := c.Playback.Validate(); err != nil {
		return err
	}
	if err := c.Store.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// ProviderConfig holds the upstream data provider configuration.
type ProviderConfig struct {
	TokenURL     string        `yaml:"token_url"`
	ReadURL      string        `yaml:"read_url"`
	ClientID     string        `yaml:"client_id"`
	Limit        int           `yaml:"limit"`
	Parallel     int           `yaml:"parallel"`
	AuthTimeout  time.Duration `yaml:"auth_timeout"`
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
	CacheTTL     time.Duration `yaml:"cache_ttl"`
}

// Validate validates the provider configuration.
func (c *ProviderConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.TokenURL, validation.Required),
		validation.Field(&c.ReadURL, validation.Required),
		validation.Field(&c.ClientID, validation.Required),
		validation.Field(&c.Limit, validation.Min(0)),
		validation.Field(&c.Parallel, validation.Min(0)),
	)
}

// CredentialsConfig holds provider credentials, either inline or in a
// separate secrets file that is watched for changes.
type CredentialsConfig struct {
	Identity string `yaml:"identity"`
	Secret   string `yaml:"secret"`
	File     string `yaml:"file"`
}

// Validate validates the credentials configuration.
func (c *CredentialsConfig) Validate() error {
	// Credentials may be absent at startup; the provider rejects the first
	// fetch instead. Inline and file sources are mutually exclusive.
	if c.File != "" && (c.Identity != "" || c.Secret != "") {
		return fmt.Errorf("credentials: file and inline identity/secret are mutually exclusive")
	}
	return nil
}

// Inline returns the inline credentials, which may be empty.
func (c *CredentialsConfig) Inline() models.Credentials {
	return models.Credentials{Identity: c.Identity, Secret: c.Secret}
}

// PlaybackConfig holds temporal playback configuration.
type PlaybackConfig struct {
	TickInterval time.Duration `yaml:"tick_interval"`
}

// Validate validates the playback configuration.
func (c *PlaybackConfig) Validate() error {
	if c.TickInterval < 0 {
		return fmt.Errorf("playback: tick_interval must not be negative")
	}
	return nil
}

// StoreConfig holds the fetch-cache database configuration.
type StoreConfig struct {
	DSN string `yaml:"dsn"`
}

// Validate validates the store configuration.
func (c *StoreConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.DSN, validation.Required),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	// Normalise empty mode to "disabled" for backward compatibility.
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Provider: ProviderConfig{
			TokenURL:     "https://acleddata.com/oauth/token",
			ReadURL:      "https://acleddata.com/api/acled/read",
			ClientID:     "acled",
			Limit:        5000,
			AuthTimeout:  15 * time.Second,
			FetchTimeout: 30 * time.Second,
			CacheTTL:     time.Hour,
		},
		Playback: PlaybackConfig{
			TickInterval: 500 * time.Millisecond,
		},
		Store: StoreConfig{
			DSN: ":memory:",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
