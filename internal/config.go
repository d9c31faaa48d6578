package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// EnvPrefix prefixes every environment override, e.g. NOCEL_APP_HTTP_PORT.
const EnvPrefix = "NOCEL_"

// Admin modes.
const (
	AdminModeDisabled = "disabled"
	AdminModeToken    = "token"
)

// Storage backends.
const (
	StorageFS = "fs"
	StorageS3 = "s3"
)

// Config represents the application configuration.
type Config struct {
	App     ApplicationConfig `yaml:"app" envPrefix:"APP_"`
	SQLite  SQLiteConfig      `yaml:"sqlite" envPrefix:"SQLITE_"`
	Storage StorageConfig     `yaml:"storage" envPrefix:"STORAGE_"`
	Policy  PolicyConfig      `yaml:"policy" envPrefix:"POLICY_"`
	Upload  UploadConfig      `yaml:"upload" envPrefix:"UPLOAD_"`
	Listing ListingConfig     `yaml:"listing" envPrefix:"LISTING_"`
	Access  AccessConfig      `yaml:"access" envPrefix:"ACCESS_"`
	Admin   AdminConfig       `yaml:"admin" envPrefix:"ADMIN_"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validators := []interface{ Validate() error }{
		&c.App, &c.SQLite, &c.Storage, &c.Policy, &c.Upload, &c.Listing, &c.Access, &c.Admin,
	}
	for _, v := range validators {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level" env:"LOG_LEVEL"`
	HTTP     HTTPConfig `yaml:"http" envPrefix:"HTTP_"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port" env:"PORT"`
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

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path" env:"PATH"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// StorageConfig selects where uploaded blobs live.
type StorageConfig struct {
	Backend string   `yaml:"backend" env:"BACKEND"`
	Path    string   `yaml:"path" env:"PATH"`
	S3      S3Config `yaml:"s3" envPrefix:"S3_"`
}

// Validate validates the storage configuration.
func (c *StorageConfig) Validate() error {
	if c.Backend == "" {
		c.Backend = StorageFS
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Backend, validation.Required, validation.In(StorageFS, StorageS3)),
		validation.Field(&c.Path, validation.When(c.Backend == StorageFS, validation.Required)),
	); err != nil {
		return err
	}
	if c.Backend == StorageS3 {
		return c.S3.Validate()
	}
	return nil
}

// S3Config holds the S3-compatible bucket settings. Static credentials are
// optional; the default AWS credential chain is used otherwise.
type S3Config struct {
	Bucket          string `yaml:"bucket" env:"BUCKET"`
	Region          string `yaml:"region" env:"REGION"`
	Endpoint        string `yaml:"endpoint" env:"ENDPOINT"`
	AccessKeyID     string `yaml:"access_key_id" env:"ACCESS_KEY_ID"`
	SecretAccessKey string `yaml:"secret_access_key" env:"SECRET_ACCESS_KEY"`
	Prefix          string `yaml:"prefix" env:"PREFIX"`
	UsePathStyle    bool   `yaml:"use_path_style" env:"USE_PATH_STYLE"`
}

// Validate validates the S3 configuration.
func (c *S3Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Bucket, validation.Required),
		validation.Field(&c.Region, validation.Required),
		validation.Field(&c.SecretAccessKey, validation.When(c.AccessKeyID != "", validation.Required)),
	)
}

// PolicyConfig groups the independent retention and quota policies.
type PolicyConfig struct {
	Expiry ExpiryConfig `yaml:"expiry" envPrefix:"EXPIRY_"`
	Quota  QuotaConfig  `yaml:"quota" envPrefix:"QUOTA_"`
}

// Validate validates both policies.
func (c *PolicyConfig) Validate() error {
	if err := c.Expiry.Validate(); err != nil {
		return err
	}
	return c.Quota.Validate()
}

// ExpiryConfig controls the session expiry sweep. SweepInterval throttles
// how often a request triggers the sweep; zero sweeps on every request.
type ExpiryConfig struct {
	Enabled       bool          `yaml:"enabled" env:"ENABLED"`
	TTL           time.Duration `yaml:"ttl" env:"TTL"`
	SweepInterval time.Duration `yaml:"sweep_interval" env:"SWEEP_INTERVAL"`
}

// Validate validates the expiry configuration.
func (c *ExpiryConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.TTL, validation.When(c.Enabled, validation.Required, validation.Min(time.Minute))),
		validation.Field(&c.SweepInterval, validation.Min(time.Duration(0))),
	)
}

// QuotaConfig holds the per-session storage cap.
type QuotaConfig struct {
	Enabled    bool  `yaml:"enabled" env:"ENABLED"`
	LimitBytes int64 `yaml:"limit_bytes" env:"LIMIT_BYTES"`
}

// Validate validates the quota configuration.
func (c *QuotaConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.LimitBytes, validation.When(c.Enabled, validation.Required, validation.Min(int64(1)))),
	)
}

// Limit returns the effective cap, zero when the quota is disabled.
func (c *QuotaConfig) Limit() int64 {
	if !c.Enabled {
		return 0
	}
	return c.LimitBytes
}

// UploadConfig bounds a single upload request.
type UploadConfig struct {
	MaxRequestBytes int64 `yaml:"max_request_bytes" env:"MAX_REQUEST_BYTES"`
}

// Validate validates the upload configuration.
func (c *UploadConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.MaxRequestBytes, validation.Required, validation.Min(int64(1))),
	)
}

// ListingConfig holds public list settings.
type ListingConfig struct {
	PageSize int `yaml:"page_size" env:"PAGE_SIZE"`
}

// Validate validates the listing configuration.
func (c *ListingConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.PageSize, validation.Required, validation.Min(1), validation.Max(500)),
	)
}

// AccessConfig configures signed private-session grants. An empty secret
// leaves private sessions reachable by URL.
type AccessConfig struct {
	Secret string        `yaml:"secret" env:"SECRET"`
	TTL    time.Duration `yaml:"ttl" env:"TTL"`
}

// Validate validates the access configuration.
func (c *AccessConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Secret, validation.When(c.Secret != "", validation.Length(16, 0))),
		validation.Field(&c.TTL, validation.When(c.Secret != "", validation.Required)),
	)
}

// AdminConfig holds the admin API authentication.
//
// Mode controls the admin endpoints:
//   - "disabled" (default): admin routes are not mounted.
//   - "token": Bearer token authentication; Token must be non-empty.
type AdminConfig struct {
	Mode  string `yaml:"mode" env:"MODE"`
	Token string `yaml:"token" env:"TOKEN"`
}

// Validate validates the admin configuration.
func (c *AdminConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AdminModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AdminModeDisabled, AdminModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AdminModeToken && c.Token == "" {
		return fmt.Errorf("admin: mode is %q but token is empty", AdminModeToken)
	}
	return nil
}

// Enabled returns true when the admin API is mounted.
func (c *AdminConfig) Enabled() bool {
	return c.Mode == AdminModeToken
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
		SQLite: SQLiteConfig{
			Path: "./nocel.db",
		},
		Storage: StorageConfig{
			Backend: StorageFS,
			Path:    "./uploads",
		},
		Policy: PolicyConfig{
			Expiry: ExpiryConfig{
				Enabled:       true,
				TTL:           24 * time.Hour,
				SweepInterval: 30 * time.Second,
			},
			Quota: QuotaConfig{
				Enabled:    true,
				LimitBytes: 140 << 20,
			},
		},
		Upload: UploadConfig{
			MaxRequestBytes: 512 << 20,
		},
		Listing: ListingConfig{
			PageSize: 20,
		},
		Access: AccessConfig{
			TTL: 24 * time.Hour,
		},
		Admin: AdminConfig{
			Mode: AdminModeDisabled,
		},
	}
}
