// Package config loads the dashboard configuration from the environment.
//
// Values are read once at startup into an immutable Config. Optional keys
// fall back to defaults; the only hard requirement is a real signing secret
// (AUTH_SECRET_KEY), because shipping a placeholder secret would let anyone
// forge session cookies.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Version is reported in logs and /api/settings.
const Version = "1.0.0"

// MinSecretLength is the shortest AUTH_SECRET_KEY accepted (bytes).
const MinSecretLength = 32

// Upload backends.
const (
	BackendLocal = "local"
	BackendS3    = "s3"
)

// Config holds every setting the server needs.
type Config struct {
	// Application
	AppName  string
	Port     int
	Debug    bool
	LogLevel string

	// Web assets
	TemplateDir string
	StaticDir   string

	// Storage
	DatabaseURL    string
	UploadBackend  string
	UploadDir      string
	UploadMaxBytes int64
	S3             S3Config

	// Session
	SessionCookie string
	AuthSecretKey string
	CookieSecure  bool
	// EphemeralSecret is set when AuthSecretKey was generated at startup.
	EphemeralSecret bool

	// Rate limit
	LoginRatePerMinute int

	// Chat provider
	Azure AzureConfig

	// System info
	SysinfoDocker bool
}

// S3Config configures the object-storage upload backend.
type S3Config struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	Prefix    string
}

// AzureConfig configures the chat-completion provider. Either APIKey or
// the TenantID/ClientID/ClientSecret triple must be set for chat to work.
type AzureConfig struct {
	EndpointURL  string
	APIKey       string
	APIVersion   string
	Deployment   string
	TenantID     string
	ClientID     string
	ClientSecret string
}

// Enabled reports whether enough is configured to call the provider.
func (a AzureConfig) Enabled() bool {
	if a.EndpointURL == "" || a.Deployment == "" || a.APIVersion == "" {
		return false
	}
	return a.APIKey != "" || a.UsesClientCredentials()
}

// UsesClientCredentials reports whether Entra ID client credentials are set.
func (a AzureConfig) UsesClientCredentials() bool {
	return a.TenantID != "" && a.ClientID != "" && a.ClientSecret != ""
}

// Load reads the configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		AppName:  getEnvString("APP_NAME", "Mediahub Dashboard"),
		Port:     getEnvInt("APP_PORT", 3000),
		Debug:    getEnvBool("APP_DEBUG", false),
		LogLevel: strings.ToUpper(getEnvString("LOG_LEVEL", "INFO")),

		TemplateDir: getEnvString("TEMPLATE_DIR", "web/templates"),
		StaticDir:   getEnvString("STATIC_DIR", "web/static"),

		DatabaseURL:    getEnvString("DATABASE_URL", "sqlite:///./mediahub.db"),
		UploadBackend:  strings.ToLower(getEnvString("UPLOAD_BACKEND", BackendLocal)),
		UploadDir:      getEnvString("UPLOAD_DIR", "uploaded_files"),
		UploadMaxBytes: getEnvInt64("UPLOAD_MAX_BYTES", 64<<20),
		S3: S3Config{
			Bucket:    os.Getenv("S3_BUCKET"),
			Region:    getEnvString("S3_REGION", "us-east-1"),
			Endpoint:  os.Getenv("S3_ENDPOINT"),
			AccessKey: os.Getenv("S3_ACCESS_KEY"),
			SecretKey: os.Getenv("S3_SECRET_KEY"),
			Prefix:    os.Getenv("S3_PREFIX"),
		},

		SessionCookie: getEnvString("SESSION_COOKIE", "user_session"),
		AuthSecretKey: os.Getenv("AUTH_SECRET_KEY"),
		CookieSecure:  getEnvBool("COOKIE_SECURE", true),

		LoginRatePerMinute: getEnvInt("LOGIN_RATE_PER_MINUTE", 10),

		Azure: AzureConfig{
			EndpointURL:  strings.TrimRight(os.Getenv("AZUREAI_ENDPOINT_URL"), "/"),
			APIKey:       os.Getenv("AZUREAI_ENDPOINT_KEY"),
			APIVersion:   os.Getenv("AZUREAI_API_VERSION"),
			Deployment:   os.Getenv("AZUREAI_DEPLOYMENT"),
			TenantID:     os.Getenv("AZUREAI_TENANT_ID"),
			ClientID:     os.Getenv("AZUREAI_CLIENT_ID"),
			ClientSecret: os.Getenv("AZUREAI_CLIENT_SECRET"),
		},

		SysinfoDocker: getEnvBool("SYSINFO_DOCKER", false),
	}

	if cfg.AuthSecretKey == "" && cfg.Debug {
		secret, err := randomSecret()
		if err != nil {
			return nil, err
		}
		cfg.AuthSecretKey = secret
		cfg.EphemeralSecret = true
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints. All problems are reported at once.
func (c *Config) Validate() error {
	var errs []error

	switch {
	case c.AuthSecretKey == "":
		errs = append(errs, errors.New("AUTH_SECRET_KEY is required"))
	case len(c.AuthSecretKey) < MinSecretLength:
		errs = append(errs, fmt.Errorf("AUTH_SECRET_KEY must be at least %d bytes", MinSecretLength))
	}

	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT out of range: %d", c.Port))
	}
	if c.SessionCookie == "" {
		errs = append(errs, errors.New("SESSION_COOKIE must not be empty"))
	}
	if c.UploadMaxBytes <= 0 {
		errs = append(errs, errors.New("UPLOAD_MAX_BYTES must be positive"))
	}
	if c.LoginRatePerMinute <= 0 {
		errs = append(errs, errors.New("LOGIN_RATE_PER_MINUTE must be positive"))
	}

	switch c.UploadBackend {
	case BackendLocal:
		if c.UploadDir == "" {
			errs = append(errs, errors.New("UPLOAD_DIR must not be empty"))
		}
	case BackendS3:
		if c.S3.Bucket == "" {
			errs = append(errs, errors.New("S3_BUCKET is required when UPLOAD_BACKEND=s3"))
		}
	default:
		errs = append(errs, fmt.Errorf("UPLOAD_BACKEND must be %q or %q, got %q", BackendLocal, BackendS3, c.UploadBackend))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// Public is the subset of settings exposed by GET /api/settings.
// Secrets and credentials never appear here.
type Public struct {
	AppName       string `json:"APP_NAME"`
	AppVersion    string `json:"APP_VERSION"`
	AppPort       int    `json:"APP_PORT"`
	AppDebug      bool   `json:"APP_DEBUG"`
	LogLevel      string `json:"LOG_LEVEL"`
	UploadBackend string `json:"UPLOAD_BACKEND"`
	UploadDir     string `json:"UPLOAD_DIR,omitempty"`
	S3Bucket      string `json:"S3_BUCKET,omitempty"`
	Database      string `json:"DATABASE_DRIVER"`
	SessionCookie string `json:"SESSION_COOKIE"`
	CookieSecure  bool   `json:"COOKIE_SECURE"`
	ChatEnabled   bool   `json:"CHAT_ENABLED"`
	ChatAuth      string `json:"CHAT_AUTH,omitempty"`
	Deployment    string `json:"AZUREAI_DEPLOYMENT,omitempty"`
	APIVersion    string `json:"AZUREAI_API_VERSION,omitempty"`
}

// Redacted returns the client-safe view of the configuration.
func (c *Config) Redacted() Public {
	p := Public{
		AppName:       c.AppName,
		AppVersion:    Version,
		AppPort:       c.Port,
		AppDebug:      c.Debug,
		LogLevel:      c.LogLevel,
		UploadBackend: c.UploadBackend,
		Database:      DatabaseDriver(c.DatabaseURL),
		SessionCookie: c.SessionCookie,
		CookieSecure:  c.CookieSecure,
		ChatEnabled:   c.Azure.Enabled(),
	}
	if c.UploadBackend == BackendS3 {
		p.S3Bucket = c.S3.Bucket
	} else {
		p.UploadDir = c.UploadDir
	}
	if p.ChatEnabled {
		p.Deployment = c.Azure.Deployment
		p.APIVersion = c.Azure.APIVersion
		p.ChatAuth = "api-key"
		if c.Azure.APIKey == "" {
			p.ChatAuth = "client-credentials"
		}
	}
	return p
}

// DatabaseDriver names the driver a DATABASE_URL selects.
func DatabaseDriver(url string) string {
	if strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://") {
		return "postgres"
	}
	return "sqlite"
}

func randomSecret() (string, error) {
	b := make([]byte, MinSecretLength)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("config: generating ephemeral secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}
