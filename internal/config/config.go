package config

import (
	"fmt"
	"os"
	"reflect"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Storage  StorageConfig  `yaml:"storage"`
	Frames   FramesConfig   `yaml:"frames"`
	Fetch    FetchConfig    `yaml:"fetch"`
	OpenAI   OpenAIConfig   `yaml:"openai"`
	Grok     GrokConfig     `yaml:"grok"`
	Auth     AuthConfig     `yaml:"auth"`
	Quota    QuotaConfig    `yaml:"quota"`
	Events   EventsConfig   `yaml:"events"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host           string        `yaml:"host" envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Port           int           `yaml:"port" envconfig:"SERVER_PORT" default:"8080"`
	OpsAPIKey      string        `yaml:"ops_api_key" envconfig:"OPS_API_KEY"`
	ReadTimeout    time.Duration `yaml:"read_timeout" envconfig:"SERVER_READ_TIMEOUT" default:"30s"`
	WriteTimeout   time.Duration `yaml:"write_timeout" envconfig:"SERVER_WRITE_TIMEOUT" default:"130s"`
	RequestTimeout time.Duration `yaml:"request_timeout" envconfig:"SERVER_REQUEST_TIMEOUT" default:"120s"`
	AllowedOrigin  string        `yaml:"allowed_origin" envconfig:"SERVER_ALLOWED_ORIGIN" default:"*"`
}

// DatabaseConfig selects the SQL driver and connection string.
type DatabaseConfig struct {
	Driver string `yaml:"driver" envconfig:"DB_DRIVER" default:"sqlite"` // sqlite or postgres
	DSN    string `yaml:"dsn" envconfig:"DB_DSN" default:"file:tokbox.db?_pragma=busy_timeout(5000)"`
}

// StorageConfig holds object storage configuration.
type StorageConfig struct {
	Backend         string        `yaml:"backend" envconfig:"STORAGE_BACKEND" default:"filesystem"` // gcs or filesystem
	Bucket          string        `yaml:"bucket" envconfig:"STORAGE_BUCKET"`
	CredentialsFile string        `yaml:"credentials_file" envconfig:"STORAGE_CREDENTIALS_FILE"`
	PublicBaseURL   string        `yaml:"public_base_url" envconfig:"STORAGE_PUBLIC_BASE_URL" default:"http://localhost:8080/uploads"`
	BasePath        string        `yaml:"base_path" envconfig:"STORAGE_PATH" default:"./data/uploads"`
	SigningKey      string        `yaml:"signing_key" envconfig:"STORAGE_SIGNING_KEY"`
	UploadExpiry    time.Duration `yaml:"upload_expiry" envconfig:"STORAGE_UPLOAD_EXPIRY" default:"600s"`
	MaxVideoSize    int64         `yaml:"max_video_size" envconfig:"MAX_VIDEO_SIZE" default:"262144000"` // 250MB
}

// FramesConfig configures the frame-extraction microservice client.
type FramesConfig struct {
	BaseURL     string        `yaml:"base_url" envconfig:"FRAMES_BASE_URL"`
	NumFrames   int           `yaml:"num_frames" envconfig:"FRAMES_NUM_FRAMES" default:"8"`
	Timeout     time.Duration `yaml:"timeout" envconfig:"FRAMES_TIMEOUT" default:"90s"`
	MaxAttempts int           `yaml:"max_attempts" envconfig:"FRAMES_MAX_ATTEMPTS" default:"1"`
}

// FetchConfig configures how frame images are fetched before LLM calls.
type FetchConfig struct {
	Timeout   time.Duration `yaml:"timeout" envconfig:"FETCH_TIMEOUT" default:"15s"`
	MaxBytes  int64         `yaml:"max_bytes" envconfig:"FETCH_MAX_BYTES" default:"10485760"` // 10MB
	UserAgent string        `yaml:"user_agent" envconfig:"FETCH_USER_AGENT" default:"tokbox/1.0"`
}

// OpenAIConfig holds OpenAI configuration.
type OpenAIConfig struct {
	APIKey       string        `yaml:"api_key" envconfig:"OPENAI_API_KEY"`
	BaseURL      string        `yaml:"base_url" envconfig:"OPENAI_BASE_URL" default:"https://api.openai.com/v1"`
	Timeout      time.Duration `yaml:"timeout" envconfig:"OPENAI_TIMEOUT" default:"60s"`
	PremiumModel string        `yaml:"premium_model" envconfig:"OPENAI_PREMIUM_MODEL" default:"gpt-4o"`
	FastModel    string        `yaml:"fast_model" envconfig:"OPENAI_FAST_MODEL" default:"gpt-4o-mini"`
}

// GrokConfig holds Grok AI configuration.
type GrokConfig struct {
	APIKey       string        `yaml:"api_key" envconfig:"GROK_API_KEY"`
	BaseURL      string        `yaml:"base_url" envconfig:"GROK_BASE_URL" default:"https://api.x.ai/v1"`
	Timeout      time.Duration `yaml:"timeout" envconfig:"GROK_TIMEOUT" default:"45s"`
	PremiumModel string        `yaml:"premium_model" envconfig:"GROK_PREMIUM_MODEL" default:"grok-2-vision-1212"`
	FastModel    string        `yaml:"fast_model" envconfig:"GROK_FAST_MODEL" default:"grok-2-vision-1212"`
}

// AuthConfig describes how session tokens from the auth provider are validated.
type AuthConfig struct {
	JWTSecret  string `yaml:"jwt_secret" envconfig:"AUTH_JWT_SECRET"`
	Issuer     string `yaml:"issuer" envconfig:"AUTH_ISSUER"`
	CookieName string `yaml:"cookie_name" envconfig:"AUTH_COOKIE_NAME" default:"tokbox_session"`
}

// QuotaConfig holds usage-limit policy switches.
type QuotaConfig struct {
	// AllowOnCheckFailure lets a request through when the usage count query fails.
	AllowOnCheckFailure bool   `yaml:"allow_on_check_failure" envconfig:"QUOTA_ALLOW_ON_CHECK_FAILURE" default:"true"`
	IPHashKey           string `yaml:"ip_hash_key" envconfig:"QUOTA_IP_HASH_KEY"`
}

// EventsConfig configures the ops event log.
type EventsConfig struct {
	RingBufferSize int  `yaml:"ring_buffer_size" envconfig:"EVENTS_RING_BUFFER_SIZE" default:"1000"`
	Persist        bool `yaml:"persist" envconfig:"EVENTS_PERSIST" default:"false"`
	RetentionDays  int  `yaml:"retention_days" envconfig:"EVENTS_RETENTION_DAYS" default:"30"`
}

// Load reads configuration from defaults, an optional YAML file and the
// environment, in that order of increasing precedence.
func Load(configPath string) (*Config, error) {
	// Defaults plus whatever the environment sets.
	fromEnv := &Config{}
	if err := envconfig.Process("", fromEnv); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}

	cfg := *fromEnv
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
		// The file replaced defaults and env alike; put back only the
		// variables that are actually set.
		overlayEnv(reflect.ValueOf(&cfg).Elem(), reflect.ValueOf(fromEnv).Elem())
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// overlayEnv copies every field of src into dst whose envconfig variable is
// present in the environment.
func overlayEnv(dst, src reflect.Value) {
	t := dst.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		key := field.Tag.Get("envconfig")
		if key == "" {
			if field.Type.Kind() == reflect.Struct {
				overlayEnv(dst.Field(i), src.Field(i))
			}
			continue
		}
		if _, ok := os.LookupEnv(key); ok {
			dst.Field(i).Set(src.Field(i))
		}
	}
}

// Validate checks that required configuration values are set.
func (c *Config) Validate() error {
	if c.OpenAI.APIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required")
	}
	if c.Grok.APIKey == "" {
		return fmt.Errorf("GROK_API_KEY is required")
	}
	if c.Frames.BaseURL == "" {
		return fmt.Errorf("FRAMES_BASE_URL is required")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("AUTH_JWT_SECRET is required")
	}
	if err := c.Database.Validate(); err != nil {
		return err
	}
	return c.Storage.Validate()
}

// Validate checks the database section.
func (c *DatabaseConfig) Validate() error {
	switch c.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.Driver)
	}
	if c.DSN == "" {
		return fmt.Errorf("DB_DSN is required")
	}
	return nil
}

// Validate checks the storage section for the selected backend.
func (c *StorageConfig) Validate() error {
	switch c.Backend {
	case "gcs":
		if c.Bucket == "" {
			return fmt.Errorf("STORAGE_BUCKET is required for the gcs backend")
		}
	case "filesystem":
		if c.BasePath == "" {
			return fmt.Errorf("STORAGE_PATH is required for the filesystem backend")
		}
		if c.SigningKey == "" {
			return fmt.Errorf("STORAGE_SIGNING_KEY is required for the filesystem backend")
		}
	default:
		return fmt.Errorf("unsupported STORAGE_BACKEND %q", c.Backend)
	}
	if c.UploadExpiry <= 0 {
		return fmt.Errorf("STORAGE_UPLOAD_EXPIRY must be positive")
	}
	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
