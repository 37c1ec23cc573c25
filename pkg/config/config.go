package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const defaultJWTSecret = "change-me-in-production"

// Config is the application configuration. It is built once at startup and
// handed to every component that needs it.
type Config struct {
	Environment string `yaml:"environment"`
	Port        string `yaml:"port"`
	Debug       bool   `yaml:"debug"`

	// Storage
	UseLocalDB   bool   `yaml:"use_local_db"`
	LocalDataDir string `yaml:"local_data_dir"`
	PostgresDSN  string `yaml:"postgres_dsn"`

	// Auth
	JWTSecret string        `yaml:"jwt_secret"`
	JWTTTL    time.Duration `yaml:"jwt_ttl"`

	// Seed account created when the user table is empty
	DefaultPMEmail    string `yaml:"default_pm_email"`
	DefaultPMPassword string `yaml:"default_pm_password"`

	// CORS
	AllowedOrigins []string `yaml:"allowed_origins"`

	// Status cache
	RedisAddr      string        `yaml:"redis_addr"`
	RedisPassword  string        `yaml:"redis_password"`
	RedisDB        int           `yaml:"redis_db"`
	StatusCacheTTL time.Duration `yaml:"status_cache_ttl"`

	// Activity events
	MQURL string `yaml:"mq_url"`

	// Attachments. PublicBaseURL prefixes download links; empty keeps them
	// relative to the API host.
	UploadDir      string `yaml:"upload_dir"`
	PublicBaseURL  string `yaml:"public_base_url"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes"`
	MaxUploadFiles int    `yaml:"max_upload_files"`

	RequestTimeout time.Duration `yaml:"request_timeout"`
	EffectsAsync   bool          `yaml:"effects_async"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Environment:       "development",
		Port:              "5000",
		UseLocalDB:        true,
		LocalDataDir:      "./data",
		JWTSecret:         defaultJWTSecret,
		JWTTTL:            7 * 24 * time.Hour,
		DefaultPMEmail:    "pm@projecthub.local",
		DefaultPMPassword: "ChangeMe123!",
		AllowedOrigins:    []string{"*"},
		StatusCacheTTL:    time.Minute,
		UploadDir:         "./uploads",
		MaxUploadBytes:    10 << 20,
		MaxUploadFiles:    5,
		RequestTimeout:    30 * time.Second,
		EffectsAsync:      true,
	}
}

// Load builds the configuration from, in increasing priority: built-in
// defaults, the YAML file named by CONFIG_FILE, and environment variables
// (including those read from .env files).
func Load() (*Config, error) {
	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	// .env files never override variables that are already set.
	switch env {
	case "production":
		loadEnvFile(".env.production")
	default:
		loadEnvFile(".env.local")
	}
	loadEnvFile(".env")

	cfg := Default()

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := cfg.mergeYAML(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if cfg.Environment == "production" {
		if cfg.PostgresDSN != "" {
			cfg.UseLocalDB = false
		}
		cfg.Debug = false
	}

	return cfg, nil
}

// Cached config (initialized once per cold start)
var (
	cachedConfig *Config
	cachedErr    error
	configOnce   sync.Once
)

// GetCached returns the process-wide cached Config. The serverless entry
// point uses it to avoid re-reading the environment on every invocation.
func GetCached() (*Config, error) {
	configOnce.Do(func() {
		cachedConfig, cachedErr = Load()
	})
	return cachedConfig, cachedErr
}

func (c *Config) mergeYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to decode config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Environment = getEnvWithDefault("ENVIRONMENT", c.Environment)
	c.Port = getEnvWithDefault("PORT", c.Port)
	c.Debug = getEnvBool("DEBUG", c.Debug)

	c.UseLocalDB = getEnvBool("USE_LOCAL_DB", c.UseLocalDB)
	c.LocalDataDir = getEnvWithDefault("LOCAL_DATA_DIR", c.LocalDataDir)
	// Trim whitespace to avoid trailing spaces/newlines from env sources
	if dsn := strings.TrimSpace(os.Getenv("POSTGRES_DSN")); dsn != "" {
		c.PostgresDSN = dsn
	}

	c.JWTSecret = getEnvWithDefault("JWT_SECRET", c.JWTSecret)
	c.JWTTTL = getEnvDuration("JWT_TTL", c.JWTTTL)
	c.DefaultPMEmail = getEnvWithDefault("DEFAULT_PM_EMAIL", c.DefaultPMEmail)
	c.DefaultPMPassword = getEnvWithDefault("DEFAULT_PM_PASSWORD", c.DefaultPMPassword)

	if origins := strings.TrimSpace(os.Getenv("ALLOWED_ORIGINS")); origins != "" {
		c.AllowedOrigins = splitList(origins)
	}

	c.RedisAddr = getEnvWithDefault("REDIS_ADDR", c.RedisAddr)
	c.RedisPassword = getEnvWithDefault("REDIS_PASSWORD", c.RedisPassword)
	c.RedisDB = getEnvInt("REDIS_DB", c.RedisDB)
	c.StatusCacheTTL = getEnvDuration("STATUS_CACHE_TTL", c.StatusCacheTTL)

	c.MQURL = getEnvWithDefault("MQ_URL", c.MQURL)

	c.UploadDir = getEnvWithDefault("UPLOAD_DIR", c.UploadDir)
	c.PublicBaseURL = strings.TrimRight(getEnvWithDefault("PUBLIC_BASE_URL", c.PublicBaseURL), "/")
	c.MaxUploadBytes = int64(getEnvInt("MAX_UPLOAD_BYTES", int(c.MaxUploadBytes)))
	c.MaxUploadFiles = getEnvInt("MAX_UPLOAD_FILES", c.MaxUploadFiles)

	c.RequestTimeout = getEnvDuration("REQUEST_TIMEOUT", c.RequestTimeout)
	c.EffectsAsync = getEnvBool("EFFECTS_ASYNC", c.EffectsAsync)
}

// Validate checks the configuration for values the server cannot run with.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT is required")
	}

	if c.JWTSecret == "" || c.JWTSecret == defaultJWTSecret {
		if c.IsProduction() {
			return fmt.Errorf("JWT_SECRET must be set in production")
		}
	}

	if !c.UseLocalDB && c.PostgresDSN == "" {
		return fmt.Errorf("incomplete database configuration: set POSTGRES_DSN or USE_LOCAL_DB=true")
	}

	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive")
	}
	if c.MaxUploadFiles <= 0 {
		return fmt.Errorf("MAX_UPLOAD_FILES must be positive")
	}

	return nil
}

// IsProduction reports whether the server runs in production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// IsDevelopment reports whether the server runs in development.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func getEnvWithDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(strings.TrimSpace(value)); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// loadEnvFile loads KEY=VALUE pairs from filename into the process
// environment without overriding existing variables. Missing files are
// ignored.
func loadEnvFile(filename string) {
	if _, err := os.Stat(filename); err != nil {
		return
	}
	_ = godotenv.Load(filename)
}
