package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	WhatsApp WhatsAppConfig `yaml:"whatsapp"`
	Email    EmailConfig    `yaml:"email"`
	Worker   WorkerConfig   `yaml:"worker"`
	Intake   IntakeConfig   `yaml:"intake"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// DatabaseConfig holds Postgres connection settings.
type DatabaseConfig struct {
	URL          string `yaml:"url"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// RedisConfig holds the optional Redis connection. Redis backs the
// sender-session lock and the daily-counter cache; when absent, locking
// falls back to Postgres advisory locks and counting to the ledger.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// WhatsAppConfig holds the browser-automation gateway settings.
type WhatsAppConfig struct {
	GatewayURL string `yaml:"gateway_url"`
	SessionID  string `yaml:"session_id"`
	APIToken   string `yaml:"api_token"`
}

// EmailConfig holds AWS SESv2 sender settings.
type EmailConfig struct {
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Region    string `yaml:"region"`
	FromName  string `yaml:"from_name"`
	FromEmail string `yaml:"from_email"`
	ReplyTo   string `yaml:"reply_to"`
}

// WorkerConfig holds dispatch worker settings.
type WorkerConfig struct {
	SessionName            string `yaml:"session_name"`
	PollIntervalSeconds    int    `yaml:"poll_interval_seconds"`
	FailureCooldownSeconds int    `yaml:"failure_cooldown_seconds"`
}

// IntakeConfig holds message template defaults for campaigns without an
// active experiment.
type IntakeConfig struct {
	DefaultTemplate string `yaml:"default_template"`
	DefaultSubject  string `yaml:"default_subject"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level     string `yaml:"level"`
	RedactPII bool   `yaml:"redact_pii"`
}

// Load reads configuration from a YAML file and applies defaults. A missing
// file is not an error; env vars can carry the whole configuration.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// LoadFromEnv loads configuration with environment variable overrides.
// It loads a .env file (if present) first, so secrets can live in .env
// locally and in real env vars in production.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if host := os.Getenv("SERVER_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		cfg.Database.URL = dbURL
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Redis.Addr = addr
	}
	if pw := os.Getenv("REDIS_PASSWORD"); pw != "" {
		cfg.Redis.Password = pw
	}
	if url := os.Getenv("WHATSAPP_GATEWAY_URL"); url != "" {
		cfg.WhatsApp.GatewayURL = url
	}
	if session := os.Getenv("WHATSAPP_SESSION_ID"); session != "" {
		cfg.WhatsApp.SessionID = session
	}
	if token := os.Getenv("WHATSAPP_API_TOKEN"); token != "" {
		cfg.WhatsApp.APIToken = token
	}
	if key := os.Getenv("AWS_SES_ACCESS_KEY"); key != "" {
		cfg.Email.AccessKey = key
	}
	if secret := os.Getenv("AWS_SES_SECRET_KEY"); secret != "" {
		cfg.Email.SecretKey = secret
	}
	if region := os.Getenv("AWS_SES_REGION"); region != "" {
		cfg.Email.Region = region
	}
	if from := os.Getenv("EMAIL_FROM"); from != "" {
		cfg.Email.FromEmail = from
	}
	if name := os.Getenv("WORKER_SESSION_NAME"); name != "" {
		cfg.Worker.SessionName = name
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Email.Region == "" {
		cfg.Email.Region = "us-east-1"
	}
	if cfg.Worker.SessionName == "" {
		cfg.Worker.SessionName = "default"
	}
	if cfg.Worker.PollIntervalSeconds == 0 {
		cfg.Worker.PollIntervalSeconds = 30
	}
	if cfg.Worker.FailureCooldownSeconds == 0 {
		cfg.Worker.FailureCooldownSeconds = 30
	}
	if cfg.Intake.DefaultTemplate == "" {
		cfg.Intake.DefaultTemplate = "Oi {{ first_name }}, tudo bem?"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

// Addr returns the host:port the HTTP server binds to.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}
