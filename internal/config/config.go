// Package config loads the event-plane's environment configuration and the
// read-mostly policy bundle (§5), generalizing the teacher's YAML+env loader.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ServerConfig holds the ports the process listens on.
type ServerConfig struct {
	WebhookPort string `yaml:"webhook_port"`
	MetricsPort string `yaml:"metrics_port"`
	APIPort     string `yaml:"api_port"`
}

// AuthConfig controls internal/authn's bearer token verifier.
type AuthConfig struct {
	JWTSigningKey string `yaml:"jwt_signing_key"`
}

// HTTPConfig controls the shared outbound HTTP client (pkg/httpclient).
type HTTPConfig struct {
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
}

// CircuitBreakerConfig supplies the settings for per-connection breakers
// (pkg/iaf/breaker). PolicyBundle carries no circuit-breaker keys, so these
// values are the only source of breaker settings; a policy bundle cannot
// override them.
type CircuitBreakerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold"`
	SuccessThreshold int           `yaml:"success_threshold"`
	Timeout          time.Duration `yaml:"timeout"`
}

// DedupConfig controls the SIN signal_id dedupe store TTL.
type DedupConfig struct {
	WindowHours int `yaml:"window_hours"`
}

// WebhookConfig controls IAF's replay-protection tolerances.
type WebhookConfig struct {
	TimestampToleranceSec int `yaml:"timestamp_tolerance_sec"`
	SignatureCacheTTLSec  int `yaml:"signature_cache_ttl_sec"`
}

// ServiceURLs are the trust-boundary collaborator endpoints §6 enumerates.
type ServiceURLs struct {
	IAMServiceURL    string `yaml:"iam_service_url"`
	KMSServiceURL    string `yaml:"kms_service_url"`
	BudgetServiceURL string `yaml:"budget_service_url"`
	ERISServiceURL   string `yaml:"eris_service_url"`
}

// LoggingConfig selects the logrus formatter and level.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DatabaseURLs are the collaborator DSNs §6 enumerates.
type DatabaseURLs struct {
	TenantDBURL  string `yaml:"tenant_db_url"`
	ProductDBURL string `yaml:"product_db_url"`
}

// Config is the full process configuration loaded from YAML and overlaid
// with environment variables.
type Config struct {
	Server          ServerConfig         `yaml:"server"`
	HTTP            HTTPConfig           `yaml:"http"`
	CircuitBreaker  CircuitBreakerConfig `yaml:"circuit_breaker"`
	Dedup           DedupConfig          `yaml:"dedup"`
	Webhook         WebhookConfig        `yaml:"webhook"`
	Services        ServiceURLs          `yaml:"services"`
	Database        DatabaseURLs         `yaml:"database"`
	Logging         LoggingConfig        `yaml:"logging"`
	Auth            AuthConfig           `yaml:"auth"`
	PolicyBundlePath string              `yaml:"policy_bundle_path"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			WebhookPort: "8080",
			MetricsPort: "9090",
			APIPort:     "8081",
		},
		HTTP: HTTPConfig{
			Timeout:    30 * time.Second,
			MaxRetries: 3,
		},
		CircuitBreaker: CircuitBreakerConfig{
			FailureThreshold: 5,
			SuccessThreshold: 2,
			Timeout:          60 * time.Second,
		},
		Dedup: DedupConfig{
			WindowHours: 24,
		},
		Webhook: WebhookConfig{
			TimestampToleranceSec: 300,
			SignatureCacheTTLSec:  3600,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		PolicyBundlePath: "config/policy-bundle.yaml",
	}
}

// Load reads configFile, applies defaults for unset fields, overlays
// environment variables, and validates the result.
func Load(configFile string) (*Config, error) {
	data, err := os.ReadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadFromEnv overlays select environment variables onto cfg, matching the
// enumerated set in spec §6. Unset variables leave cfg untouched.
func loadFromEnv(cfg *Config) error {
	if v := os.Getenv("WEBHOOK_PORT"); v != "" {
		cfg.Server.WebhookPort = v
	}
	if v := os.Getenv("METRICS_PORT"); v != "" {
		cfg.Server.MetricsPort = v
	}
	if v := os.Getenv("API_PORT"); v != "" {
		cfg.Server.APIPort = v
	}
	if v := os.Getenv("JWT_SIGNING_KEY"); v != "" {
		cfg.Auth.JWTSigningKey = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("HTTP_TIMEOUT"); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid HTTP_TIMEOUT: %w", err)
		}
		cfg.HTTP.Timeout = time.Duration(secs) * time.Second
	}
	if v := os.Getenv("HTTP_MAX_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid HTTP_MAX_RETRIES: %w", err)
		}
		cfg.HTTP.MaxRetries = n
	}
	if v := os.Getenv("CIRCUIT_BREAKER_FAILURE_THRESHOLD"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid CIRCUIT_BREAKER_FAILURE_THRESHOLD: %w", err)
		}
		cfg.CircuitBreaker.FailureThreshold = n
	}
	if v := os.Getenv("CIRCUIT_BREAKER_SUCCESS_THRESHOLD"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid CIRCUIT_BREAKER_SUCCESS_THRESHOLD: %w", err)
		}
		cfg.CircuitBreaker.SuccessThreshold = n
	}
	if v := os.Getenv("CIRCUIT_BREAKER_TIMEOUT"); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid CIRCUIT_BREAKER_TIMEOUT: %w", err)
		}
		cfg.CircuitBreaker.Timeout = time.Duration(secs) * time.Second
	}
	if v := os.Getenv("DEDUP_WINDOW_HOURS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid DEDUP_WINDOW_HOURS: %w", err)
		}
		cfg.Dedup.WindowHours = n
	}
	if v := os.Getenv("WEBHOOK_TIMESTAMP_TOLERANCE_SEC"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid WEBHOOK_TIMESTAMP_TOLERANCE_SEC: %w", err)
		}
		cfg.Webhook.TimestampToleranceSec = n
	}
	if v := os.Getenv("SIGNATURE_CACHE_TTL_SEC"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid SIGNATURE_CACHE_TTL_SEC: %w", err)
		}
		cfg.Webhook.SignatureCacheTTLSec = n
	}
	if v := os.Getenv("IAM_SERVICE_URL"); v != "" {
		cfg.Services.IAMServiceURL = v
	}
	if v := os.Getenv("KMS_SERVICE_URL"); v != "" {
		cfg.Services.KMSServiceURL = v
	}
	if v := os.Getenv("BUDGET_SERVICE_URL"); v != "" {
		cfg.Services.BudgetServiceURL = v
	}
	if v := os.Getenv("ERIS_SERVICE_URL"); v != "" {
		cfg.Services.ERISServiceURL = v
	}
	if v := os.Getenv("TENANT_DB_URL"); v != "" {
		cfg.Database.TenantDBURL = v
	}
	if v := os.Getenv("PRODUCT_DB_URL"); v != "" {
		cfg.Database.ProductDBURL = v
	}
	if v := os.Getenv("POLICY_BUNDLE_PATH"); v != "" {
		cfg.PolicyBundlePath = v
	}
	return nil
}

// validate rejects configurations that would make the process misbehave.
// Mirrors the teacher's pattern of repairing some fields with defaults
// rather than failing (e.g. empty policy bundle path) while hard-failing
// on values that have no sane default.
func validate(cfg *Config) error {
	if cfg.Server.WebhookPort == "" {
		return fmt.Errorf("server.webhook_port is required")
	}
	if cfg.HTTP.Timeout <= 0 {
		cfg.HTTP.Timeout = 30 * time.Second
	}
	if cfg.HTTP.MaxRetries < 0 {
		return fmt.Errorf("http.max_retries must not be negative")
	}
	if cfg.CircuitBreaker.FailureThreshold <= 0 {
		return fmt.Errorf("circuit_breaker.failure_threshold must be greater than 0")
	}
	if cfg.CircuitBreaker.SuccessThreshold <= 0 {
		return fmt.Errorf("circuit_breaker.success_threshold must be greater than 0")
	}
	if cfg.Dedup.WindowHours <= 0 {
		return fmt.Errorf("dedup.window_hours must be greater than 0")
	}
	if cfg.Webhook.TimestampToleranceSec <= 0 {
		return fmt.Errorf("webhook.timestamp_tolerance_sec must be greater than 0")
	}
	if cfg.PolicyBundlePath == "" {
		cfg.PolicyBundlePath = "config/policy-bundle.yaml"
	}
	if cfg.Server.APIPort == "" {
		cfg.Server.APIPort = "8081"
	}
	if cfg.Auth.JWTSigningKey == "" {
		cfg.Auth.JWTSigningKey = "insecure-dev-signing-key"
	}
	return nil
}
