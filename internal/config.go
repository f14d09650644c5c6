package internal

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"github.com/starford/glide/internal/audio"
)

// Auth modes for the local control API.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App    ApplicationConfig `yaml:"app"`
	Store  StoreConfig       `yaml:"store"`
	Remote RemoteConfig      `yaml:"remote"`
	Sync   SyncConfig        `yaml:"sync"`
	Audio  AudioConfig       `yaml:"audio"`
	Auth   AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Store.Validate(); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	if err := c.Remote.Validate(); err != nil {
		return fmt.Errorf("remote: %w", err)
	}
	if err := c.Sync.Validate(); err != nil {
		return fmt.Errorf("sync: %w", err)
	}
	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio: %w", err)
	}
	return c.Auth.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	// LogFile, when set, receives logs through a rotating writer instead
	// of stdout.
	LogFile string     `yaml:"log_file"`
	HTTP    HTTPConfig `yaml:"http"`
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

// StoreConfig holds the app-private data directory.
type StoreConfig struct {
	DataDir string `yaml:"data_dir"`
}

// Validate validates the store configuration.
func (c *StoreConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.DataDir, validation.Required),
	)
}

// RemoteConfig points at the backend.
type RemoteConfig struct {
	BaseURL       string        `yaml:"base_url"`
	Timeout       time.Duration `yaml:"timeout"`
	ProbeInterval time.Duration `yaml:"probe_interval"`
}

// Validate validates the remote configuration.
func (c *RemoteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.BaseURL, validation.Required, is.URL),
		validation.Field(&c.Timeout, validation.Min(time.Second)),
	)
}

// SyncConfig tunes the sync engine and its queue.
type SyncConfig struct {
	MaxRetries int           `yaml:"max_retries"`
	BatchSize  int           `yaml:"batch_size"`
	PageSize   int           `yaml:"page_size"`
	Interval   time.Duration `yaml:"interval"`
}

// Validate validates the sync configuration.
func (c *SyncConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.MaxRetries, validation.Required, validation.Min(1)),
		validation.Field(&c.BatchSize, validation.Min(0)),
		validation.Field(&c.PageSize, validation.Min(0), validation.Max(100)),
		validation.Field(&c.Interval, validation.Min(time.Duration(0))),
	)
}

// AudioConfig holds recording storage and upload settings.
type AudioConfig struct {
	// Dir is the permanent recording storage; empty means <data_dir>/audio.
	Dir string `yaml:"dir"`
	// InboxDir, when set, is watched for new recordings.
	InboxDir     string          `yaml:"inbox_dir"`
	MaxRetries   int             `yaml:"max_retries"`
	Retention    audio.Retention `yaml:"retention"`
	PollInterval time.Duration   `yaml:"poll_interval"`
}

// Validate validates the audio configuration.
func (c *AudioConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.MaxRetries, validation.Required, validation.Min(1)),
		validation.Field(&c.Retention, validation.Required,
			validation.In(audio.RetentionKeep, audio.RetentionDelete)),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls the local control API:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
//
// The remaining fields govern the backend session.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`

	RefreshTimeout time.Duration `yaml:"refresh_timeout"`
	// CredentialsFile is empty for <data_dir>/credentials.json.
	CredentialsFile string `yaml:"credentials_file"`
	// CriticalCleanupFailures is how many credential keys must fail to
	// clear before a forced logout is reported as critical; zero means all.
	CriticalCleanupFailures int `yaml:"critical_cleanup_failures"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	// Normalise empty mode to "disabled" for backward compatibility.
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
		validation.Field(&c.RefreshTimeout, validation.Min(time.Duration(0))),
		validation.Field(&c.CriticalCleanupFailures, validation.Min(0)),
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

// AudioDir resolves the recording directory.
func (c *Config) AudioDir() string {
	if c.Audio.Dir != "" {
		return c.Audio.Dir
	}
	return filepath.Join(c.Store.DataDir, "audio")
}

// CredentialsPath resolves the credential file.
func (c *Config) CredentialsPath() string {
	if c.Auth.CredentialsFile != "" {
		return c.Auth.CredentialsFile
	}
	return filepath.Join(c.Store.DataDir, "credentials.json")
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
		Store: StoreConfig{
			DataDir: "./data",
		},
		Remote: RemoteConfig{
			BaseURL:       "http://localhost:8000/api/v1",
			Timeout:       30 * time.Second,
			ProbeInterval: 30 * time.Second,
		},
		Sync: SyncConfig{
			MaxRetries: 3,
			BatchSize:  100,
			PageSize:   100,
			Interval:   5 * time.Minute,
		},
		Audio: AudioConfig{
			MaxRetries:   audio.DefaultMaxRetries,
			Retention:    audio.RetentionKeep,
			PollInterval: time.Minute,
		},
		Auth: AuthConfig{
			Mode:           AuthModeDisabled,
			RefreshTimeout: 30 * time.Second,
		},
	}
}
