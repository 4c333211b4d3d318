package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/fennec/internal/auth"
	"github.com/starford/fennec/internal/inbox"
	"github.com/starford/fennec/internal/reconcile"
	"github.com/starford/fennec/internal/store"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
	AuthModeJWT      = "jwt"
)

// AnonymousActor is recorded as the actor when auth is disabled.
const AnonymousActor = "anonymous"

const minJWTSecret = 32

// Config represents the application configuration.
type Config struct {
	App         ApplicationConfig `yaml:"app"`
	Database    DatabaseConfig    `yaml:"database"`
	Auth        AuthConfig        `yaml:"auth"`
	Reconcile   ReconcileConfig   `yaml:"reconcile"`
	Inbox       InboxConfig       `yaml:"inbox"`
	Frontmatter FrontmatterConfig `yaml:"frontmatter"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Database.Validate(); err != nil {
		return err
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	if err := c.Reconcile.Validate(); err != nil {
		return err
	}
	return c.Inbox.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
	Log      LogConfig  `yaml:"log"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	if err := c.HTTP.Validate(); err != nil {
		return err
	}
	return c.Log.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port           int           `yaml:"port"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
		validation.Field(&c.RequestTimeout, validation.Required, validation.Min(time.Millisecond)),
	)
}

// LogConfig configures the optional rotating log file. Logs always go to
// stdout; File adds a second sink.
type LogConfig struct {
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// Validate validates the log file configuration.
func (c *LogConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.MaxSizeMB, validation.Min(0)),
		validation.Field(&c.MaxBackups, validation.Min(0)),
		validation.Field(&c.MaxAgeDays, validation.Min(0)),
	)
}

// DatabaseConfig selects the gateway driver.
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// Validate validates the database configuration.
func (c *DatabaseConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Driver, validation.Required, validation.In(store.DriverSQLite, store.DriverPostgres)),
		validation.Field(&c.DSN, validation.Required),
	)
}

// AuthConfig holds authentication configuration for the ingestion endpoints.
//
// Mode controls how identity is established:
//   - "disabled" (default): every writer is recorded as "anonymous".
//   - "token": Bearer token authentication; Token must be non-empty.
//   - "jwt": HS256 bearer JWT checked against Issuer, Audience and, when
//     set, a pinned Subject.
type AuthConfig struct {
	Mode     string        `yaml:"mode"`
	Token    string        `yaml:"token"`
	Actor    string        `yaml:"actor"`
	Secret   string        `yaml:"secret"`
	Issuer   string        `yaml:"issuer"`
	Audience string        `yaml:"audience"`
	Subject  string        `yaml:"subject"`
	Leeway   time.Duration `yaml:"leeway"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken, AuthModeJWT)),
	); err != nil {
		return err
	}
	switch c.Mode {
	case AuthModeToken:
		if c.Token == "" {
			return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
		}
	case AuthModeJWT:
		return validation.ValidateStruct(c,
			validation.Field(&c.Secret, validation.Required, validation.Length(minJWTSecret, 0)),
			validation.Field(&c.Issuer, validation.Required),
			validation.Field(&c.Audience, validation.Required),
		)
	}
	return nil
}

// AuthEnabled returns true when identity is checked.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken || c.Mode == AuthModeJWT
}

// Verifier builds the bearer verifier for the configured mode.
func (c *AuthConfig) Verifier() auth.Verifier {
	switch c.Mode {
	case AuthModeToken:
		actor := c.Actor
		if actor == "" {
			actor = "token"
		}
		return auth.StaticToken{Token: c.Token, Actor: actor}
	case AuthModeJWT:
		return auth.JWT{
			Secret:   []byte(c.Secret),
			Issuer:   c.Issuer,
			Audience: c.Audience,
			Subject:  c.Subject,
			Leeway:   c.Leeway,
		}
	default:
		return auth.Anonymous(AnonymousActor)
	}
}

// ReconcileConfig tunes the reconciliation engine.
type ReconcileConfig struct {
	CategoryFailure string `yaml:"category_failure"`
}

// Validate validates the reconcile configuration.
func (c *ReconcileConfig) Validate() error {
	if c.CategoryFailure == "" {
		c.CategoryFailure = string(reconcile.AbortBatch)
	}
	return c.Policy().Validate()
}

// Policy returns the engine policy.
func (c *ReconcileConfig) Policy() reconcile.Policy {
	return reconcile.Policy{CategoryFailure: reconcile.CategoryFailure(c.CategoryFailure)}
}

// InboxConfig configures the spool inbox.
type InboxConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Path     string        `yaml:"path"`
	Debounce time.Duration `yaml:"debounce"`
}

// Validate validates the inbox configuration.
func (c *InboxConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.When(c.Enabled, validation.Required)),
		validation.Field(&c.Debounce, validation.Min(time.Duration(0))),
	)
}

// FrontmatterConfig configures authoring validation.
type FrontmatterConfig struct {
	// AllowedTags restricts tag names. Empty allows any tag.
	AllowedTags []string `yaml:"allowed_tags"`
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port:           8080,
				RequestTimeout: 30 * time.Second,
			},
			Log: LogConfig{
				MaxSizeMB:  100,
				MaxBackups: 3,
				MaxAgeDays: 28,
			},
		},
		Database: DatabaseConfig{
			Driver: store.DriverSQLite,
			DSN:    "./fennec.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Reconcile: ReconcileConfig{
			CategoryFailure: string(reconcile.AbortBatch),
		},
		Inbox: InboxConfig{
			Path:     "./inbox",
			Debounce: inbox.DefaultDebounce,
		},
	}
}
