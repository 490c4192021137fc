package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Sync       SyncConfig       `yaml:"sync"`
	Redis      RedisConfig      `yaml:"redis"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
	API        APIConfig        `yaml:"api"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// SyncConfig drives the sync engine. Timeouts are plain seconds so the YAML
// stays readable and env-expandable.
type SyncConfig struct {
	APIBaseURL           string `yaml:"api_base_url"`
	BatchSize            int    `yaml:"batch_size"`
	RetryLimit           int    `yaml:"retry_limit"`
	BatchTimeoutSeconds  int    `yaml:"batch_timeout_seconds"`
	HealthTimeoutSeconds int    `yaml:"health_timeout_seconds"`
}

func (s SyncConfig) BatchTimeout() time.Duration {
	return time.Duration(s.BatchTimeoutSeconds) * time.Second
}

func (s SyncConfig) HealthTimeout() time.Duration {
	return time.Duration(s.HealthTimeoutSeconds) * time.Second
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type APIConfig struct {
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key  string `yaml:"key"`
	Name string `yaml:"name"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

func Load(configPath string) (*Config, error) {
	// .env is optional; values referenced from YAML via ${VAR} come from it.
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	// Предварительная замена переменных окружения в YAML
	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}

	if strings.TrimSpace(c.Sync.APIBaseURL) == "" {
		return errors.New("sync api_base_url is required")
	}

	if c.Sync.BatchSize < 1 {
		return fmt.Errorf("sync batch_size must be positive, got %d", c.Sync.BatchSize)
	}

	if c.Sync.RetryLimit < 1 {
		return fmt.Errorf("sync retry_limit must be positive, got %d", c.Sync.RetryLimit)
	}

	return nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Sync.BatchSize == 0 {
		c.Sync.BatchSize = 10
	}
	if c.Sync.RetryLimit == 0 {
		c.Sync.RetryLimit = 3
	}
	if c.Sync.BatchTimeoutSeconds == 0 {
		c.Sync.BatchTimeoutSeconds = 10
	}
	if c.Sync.HealthTimeoutSeconds == 0 {
		c.Sync.HealthTimeoutSeconds = 4
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
}
