package config

import (
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Config", func() {
	var (
		tempDir    string
		configFile string
	)

	BeforeEach(func() {
		var err error
		tempDir, err = os.MkdirTemp("", "config-test")
		Expect(err).NotTo(HaveOccurred())
		configFile = filepath.Join(tempDir, "config.yaml")
	})

	AfterEach(func() {
		os.RemoveAll(tempDir)
	})

	Describe("Load", func() {
		Context("when config file exists with valid content", func() {
			BeforeEach(func() {
				validConfig := `
server:
  webhook_port: "8080"
  metrics_port: "9090"

http:
  timeout: "30s"
  max_retries: 3

circuit_breaker:
  failure_threshold: 5
  success_threshold: 2
  timeout: "60s"

dedup:
  window_hours: 24

webhook:
  timestamp_tolerance_sec: 300
  signature_cache_ttl_sec: 3600

logging:
  level: "info"
  format: "json"

policy_bundle_path: "/etc/eventplane/policy-bundle.yaml"
`
				err := os.WriteFile(configFile, []byte(validConfig), 0644)
				Expect(err).NotTo(HaveOccurred())
			})

			It("should load configuration successfully", func() {
				cfg, err := Load(configFile)
				Expect(err).NotTo(HaveOccurred())
				Expect(cfg).NotTo(BeNil())

				Expect(cfg.Server.WebhookPort).To(Equal("8080"))
				Expect(cfg.Server.MetricsPort).To(Equal("9090"))

				Expect(cfg.HTTP.Timeout).To(Equal(30 * time.Second))
				Expect(cfg.HTTP.MaxRetries).To(Equal(3))

				Expect(cfg.CircuitBreaker.FailureThreshold).To(Equal(5))
				Expect(cfg.CircuitBreaker.SuccessThreshold).To(Equal(2))
				Expect(cfg.CircuitBreaker.Timeout).To(Equal(60 * time.Second))

				Expect(cfg.Dedup.WindowHours).To(Equal(24))

				Expect(cfg.Webhook.TimestampToleranceSec).To(Equal(300))
				Expect(cfg.Webhook.SignatureCacheTTLSec).To(Equal(3600))

				Expect(cfg.Logging.Level).To(Equal("info"))
				Expect(cfg.Logging.Format).To(Equal("json"))

				Expect(cfg.PolicyBundlePath).To(Equal("/etc/eventplane/policy-bundle.yaml"))
			})
		})

		Context("when config file has minimal content", func() {
			BeforeEach(func() {
				minimalConfig := `
server:
  webhook_port: "3000"
`
				err := os.WriteFile(configFile, []byte(minimalConfig), 0644)
				Expect(err).NotTo(HaveOccurred())
			})

			It("should load with defaults for missing values", func() {
				cfg, err := Load(configFile)
				Expect(err).NotTo(HaveOccurred())

				Expect(cfg.Server.WebhookPort).To(Equal("3000"))
				Expect(cfg.CircuitBreaker.FailureThreshold).To(Equal(5))
				Expect(cfg.Dedup.WindowHours).To(Equal(24))
				Expect(cfg.PolicyBundlePath).To(Equal("config/policy-bundle.yaml"))
			})
		})

		Context("when config file does not exist", func() {
			It("should return an error", func() {
				_, err := Load("/nonexistent/config.yaml")
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("failed to read config file"))
			})
		})

		Context("when config file has invalid YAML", func() {
			BeforeEach(func() {
				invalidConfig := `
server:
  webhook_port: "8080"
  invalid_yaml: [
`
				err := os.WriteFile(configFile, []byte(invalidConfig), 0644)
				Expect(err).NotTo(HaveOccurred())
			})

			It("should return an error", func() {
				_, err := Load(configFile)
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("failed to parse config file"))
			})
		})

		Context("when config has invalid duration formats", func() {
			BeforeEach(func() {
				invalidDurationConfig := `
server:
  webhook_port: "8080"

http:
  timeout: "not-a-duration"
`
				err := os.WriteFile(configFile, []byte(invalidDurationConfig), 0644)
				Expect(err).NotTo(HaveOccurred())
			})

			It("should return an error", func() {
				_, err := Load(configFile)
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("failed to parse config file"))
			})
		})
	})

	Describe("validate", func() {
		var cfg *Config

		BeforeEach(func() {
			cfg = &Config{
				Server: ServerConfig{
					WebhookPort: "8080",
					MetricsPort: "9090",
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
			}
		})

		Context("when config is valid", func() {
			It("should pass validation", func() {
				Expect(validate(cfg)).NotTo(HaveOccurred())
			})
		})

		Context("when webhook port is missing", func() {
			BeforeEach(func() { cfg.Server.WebhookPort = "" })

			It("should return validation error", func() {
				err := validate(cfg)
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("server.webhook_port is required"))
			})
		})

		Context("when HTTP timeout is zero", func() {
			BeforeEach(func() { cfg.HTTP.Timeout = 0 })

			It("should fall back to the default", func() {
				err := validate(cfg)
				Expect(err).NotTo(HaveOccurred())
				Expect(cfg.HTTP.Timeout).To(Equal(30 * time.Second))
			})
		})

		Context("when max retries is negative", func() {
			BeforeEach(func() { cfg.HTTP.MaxRetries = -1 })

			It("should return validation error", func() {
				err := validate(cfg)
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("max_retries must not be negative"))
			})
		})

		Context("when circuit breaker failure threshold is invalid", func() {
			BeforeEach(func() { cfg.CircuitBreaker.FailureThreshold = 0 })

			It("should return validation error", func() {
				err := validate(cfg)
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("failure_threshold must be greater than 0"))
			})
		})

		Context("when dedup window is invalid", func() {
			BeforeEach(func() { cfg.Dedup.WindowHours = 0 })

			It("should return validation error", func() {
				err := validate(cfg)
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("window_hours must be greater than 0"))
			})
		})

		Context("when policy bundle path is empty", func() {
			It("should default it", func() {
				Expect(validate(cfg)).NotTo(HaveOccurred())
				Expect(cfg.PolicyBundlePath).To(Equal("config/policy-bundle.yaml"))
			})
		})
	})

	Describe("loadFromEnv", func() {
		var cfg *Config

		BeforeEach(func() {
			cfg = &Config{}
			os.Clearenv()
		})

		Context("when environment variables are set", func() {
			BeforeEach(func() {
				os.Setenv("WEBHOOK_PORT", "3000")
				os.Setenv("METRICS_PORT", "9999")
				os.Setenv("LOG_LEVEL", "debug")
				os.Setenv("CIRCUIT_BREAKER_FAILURE_THRESHOLD", "7")
				os.Setenv("DEDUP_WINDOW_HOURS", "48")
			})

			AfterEach(func() { os.Clearenv() })

			It("should load values from environment", func() {
				Expect(loadFromEnv(cfg)).NotTo(HaveOccurred())

				Expect(cfg.Server.WebhookPort).To(Equal("3000"))
				Expect(cfg.Server.MetricsPort).To(Equal("9999"))
				Expect(cfg.Logging.Level).To(Equal("debug"))
				Expect(cfg.CircuitBreaker.FailureThreshold).To(Equal(7))
				Expect(cfg.Dedup.WindowHours).To(Equal(48))
			})
		})

		Context("when no environment variables are set", func() {
			It("should not modify config", func() {
				original := *cfg
				Expect(loadFromEnv(cfg)).NotTo(HaveOccurred())
				Expect(*cfg).To(Equal(original))
			})
		})

		Context("when a numeric environment variable is malformed", func() {
			BeforeEach(func() {
				os.Setenv("HTTP_MAX_RETRIES", "not-a-number")
			})
			AfterEach(func() { os.Clearenv() })

			It("should return an error", func() {
				err := loadFromEnv(cfg)
				Expect(err).To(HaveOccurred())
			})
		})
	})
})
