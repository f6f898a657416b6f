package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535

	// EnvironmentDevelopment disables the bearer check on the trigger endpoint
	EnvironmentDevelopment = "development"
)

// Environment variables that override secrets from the file
const (
	EnvSMSAPIKey    = "SMS_API_KEY"
	EnvTriggerToken = "TRIGGER_TOKEN"
	EnvDBPassword   = "DB_PASSWORD"
)

// Config represents the complete application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	RabbitMQ  RabbitMQConfig  `yaml:"rabbitmq"`
	Redis     RedisConfig     `yaml:"redis"`
	SMS       SMSConfig       `yaml:"sms"`
	Broadcast BroadcastConfig `yaml:"broadcast"`
	Auth      AuthConfig      `yaml:"auth"`
	Logging   LoggingConfig   `yaml:"logging"`
	App       AppConfig       `yaml:"app"`
	Worker    WorkerConfig    `yaml:"worker"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
	ConnectAttempts int           `yaml:"connect_attempts"`
	ConnectInterval time.Duration `yaml:"connect_interval"`
	AutoMigrate     bool          `yaml:"auto_migrate"`
}

// RabbitMQConfig holds RabbitMQ connection and exchange/queue configuration
type RabbitMQConfig struct {
	Host       string           `yaml:"host"`
	Port       int              `yaml:"port"`
	User       string           `yaml:"user"`
	Password   string           `yaml:"password"`
	VHost      string           `yaml:"vhost"`
	Exchange   ExchangeConfig   `yaml:"exchange"`
	Queue      QueueConfig      `yaml:"queue"`
	RoutingKey string           `yaml:"routing_key"`
	Connection ConnectionConfig `yaml:"connection"`
	Publish    PublishConfig    `yaml:"publish"`
	Consumer   ConsumerConfig   `yaml:"consumer"`
}

type ExchangeConfig struct {
	Name    string `yaml:"name"`
	Type    string `yaml:"type"`
	Durable bool   `yaml:"durable"`
}

type QueueConfig struct {
	Name    string `yaml:"name"`
	Durable bool   `yaml:"durable"`
}

type ConnectionConfig struct {
	RetryAttempts int           `yaml:"retry_attempts"`
	RetryInterval time.Duration `yaml:"retry_interval"`
	Heartbeat     time.Duration `yaml:"heartbeat"`
}

type PublishConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
}

type ConsumerConfig struct {
	PrefetchCount int `yaml:"prefetch_count"`
}

// RedisConfig holds the progress cache connection. An empty Addr disables the cache.
type RedisConfig struct {
	Addr        string        `yaml:"addr"`
	Password    string        `yaml:"password"`
	DB          int           `yaml:"db"`
	ProgressTTL time.Duration `yaml:"progress_ttl"`
}

// SMSConfig holds the SMS gateway settings
type SMSConfig struct {
	URL         string        `yaml:"url"`
	UserID      string        `yaml:"user_id"`
	APIKey      string        `yaml:"api_key"`
	SenderID    string        `yaml:"sender_id"`
	CountryCode string        `yaml:"country_code"`
	Timeout     time.Duration `yaml:"timeout"`
	RetryCount  int           `yaml:"retry_count"`
	RatePerSec  int           `yaml:"rate_per_sec"`
}

// BroadcastConfig tunes the job runner
type BroadcastConfig struct {
	BatchSize   int `yaml:"batch_size"`
	IntakeLimit int `yaml:"intake_limit"`
}

type AuthConfig struct {
	TriggerToken string `yaml:"trigger_token"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	Output       string `yaml:"output"`
	EnableCaller bool   `yaml:"enable_caller"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// WorkerConfig holds worker service configuration
type WorkerConfig struct {
	TriggerSchedule string        `yaml:"trigger_schedule"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Load reads and parses the configuration file, fills defaults and applies
// secret overrides from the environment
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyDefaults()
	config.applyEnv()

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Database.ConnectAttempts <= 0 {
		c.Database.ConnectAttempts = 1
	}
	if c.RabbitMQ.Exchange.Type == "" {
		c.RabbitMQ.Exchange.Type = "direct"
	}
	if c.Redis.ProgressTTL <= 0 {
		c.Redis.ProgressTTL = 24 * time.Hour
	}
	if c.SMS.Timeout <= 0 {
		c.SMS.Timeout = 30 * time.Second
	}
	if c.Broadcast.BatchSize <= 0 {
		c.Broadcast.BatchSize = 20
	}
	if c.Broadcast.IntakeLimit <= 0 {
		c.Broadcast.IntakeLimit = 5
	}
	if c.Worker.ShutdownTimeout <= 0 {
		c.Worker.ShutdownTimeout = 30 * time.Second
	}
}

func (c *Config) applyEnv() {
	if v, ok := os.LookupEnv(EnvSMSAPIKey); ok {
		c.SMS.APIKey = v
	}
	if v, ok := os.LookupEnv(EnvTriggerToken); ok {
		c.Auth.TriggerToken = v
	}
	if v, ok := os.LookupEnv(EnvDBPassword); ok {
		c.Database.Password = v
	}
}

// AuthRequired reports whether the trigger endpoints check the bearer token
func (c *Config) AuthRequired() bool {
	return c.App.Environment != EnvironmentDevelopment
}

// ValidateAPIConfig checks the settings the API service needs
func (c *Config) ValidateAPIConfig() error {
	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	if c.AuthRequired() && c.Auth.TriggerToken == "" {
		return fmt.Errorf("auth trigger_token is required outside %s", EnvironmentDevelopment)
	}

	return errors.Join(
		c.validateDatabase(),
		c.validateRabbitMQ(),
		c.validateSMS(),
		c.validateBroadcast(),
	)
}

// ValidateWorkerConfig checks the settings the worker service needs
func (c *Config) ValidateWorkerConfig() error {
	if c.Worker.TriggerSchedule != "" {
		if _, err := cron.ParseStandard(c.Worker.TriggerSchedule); err != nil {
			return fmt.Errorf("invalid worker trigger_schedule: %w", err)
		}
	}

	if c.Worker.ShutdownTimeout <= 0 {
		return fmt.Errorf("worker shutdown_timeout must be greater than 0")
	}

	return errors.Join(
		c.validateDatabase(),
		c.validateRabbitMQ(),
		c.validateSMS(),
		c.validateBroadcast(),
	)
}

func (c *Config) validateDatabase() error {
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.Port < MinPort || c.Database.Port > MaxPort {
		return fmt.Errorf("invalid database port: %d (must be between %d and %d)", c.Database.Port, MinPort, MaxPort)
	}

	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}

	return nil
}

func (c *Config) validateRabbitMQ() error {
	if c.RabbitMQ.Host == "" {
		return fmt.Errorf("rabbitmq host is required")
	}

	if c.RabbitMQ.Port < MinPort || c.RabbitMQ.Port > MaxPort {
		return fmt.Errorf("invalid rabbitmq port: %d (must be between %d and %d)", c.RabbitMQ.Port, MinPort, MaxPort)
	}

	if c.RabbitMQ.Exchange.Name == "" {
		return fmt.Errorf("rabbitmq exchange name is required")
	}

	if c.RabbitMQ.Queue.Name == "" {
		return fmt.Errorf("rabbitmq queue name is required")
	}

	return nil
}

func (c *Config) validateSMS() error {
	if c.SMS.URL == "" {
		return fmt.Errorf("sms url is required")
	}

	if c.SMS.UserID == "" || c.SMS.APIKey == "" {
		return fmt.Errorf("sms user_id and api_key are required")
	}

	if c.SMS.SenderID == "" {
		return fmt.Errorf("sms sender_id is required")
	}

	if c.SMS.RatePerSec < 0 {
		return fmt.Errorf("sms rate_per_sec must not be negative")
	}

	return nil
}

func (c *Config) validateBroadcast() error {
	if c.Broadcast.BatchSize > 100 {
		return fmt.Errorf("broadcast batch_size must be at most 100, got %d", c.Broadcast.BatchSize)
	}

	return nil
}
