// Package server provides configuration helpers that define runtime defaults,
// environment loading, and validation for the relay service.
package server

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

const (
	defaultPort            = ":8080"
	defaultOrigin          = "http://localhost:8080"
	defaultMaxMessageSize  = 4096
	defaultSendBufferSize  = 256
	defaultLogLevel        = "INFO"
	defaultShutdownTimeout = 10 * time.Second
)

// Config holds the server configuration settings.
type Config struct {
	Port            string        `env:"SERVER_PORT,default=:8080" validate:"required"`
	RawOrigins      string        `env:"ALLOWED_ORIGINS,default=http://localhost:8080"`
	AllowedOrigins  []string      `validate:"required,min=1"`
	MaxMessageSize  int           `env:"MAX_MESSAGE_SIZE,default=4096" validate:"min=64"`
	SendBufferSize  int           `env:"SEND_BUFFER_SIZE,default=256" validate:"min=1"`
	LogLevel        string        `env:"LOG_LEVEL,default=INFO" validate:"required"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s" validate:"gt=0"`
}

var validate = validator.New()

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() *Config {
	return &Config{
		Port:            defaultPort,
		RawOrigins:      defaultOrigin,
		AllowedOrigins:  []string{defaultOrigin},
		MaxMessageSize:  defaultMaxMessageSize,
		SendBufferSize:  defaultSendBufferSize,
		LogLevel:        defaultLogLevel,
		ShutdownTimeout: defaultShutdownTimeout,
	}
}

// LoadConfig reads the configuration from the environment. When envFile is
// not empty and exists, its variables are loaded first without overriding
// variables already set in the process environment.
func LoadConfig(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load env file %s: %w", envFile, err)
		}
	}

	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}
	cfg.AllowedOrigins = parseOrigins(cfg.RawOrigins)

	sanitizeConfig(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration against its constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// OverridePort replaces the listen address and validates the result. A bare
// port number such as "9090" is accepted.
func (c *Config) OverridePort(port string) error {
	c.Port = port
	sanitizeConfig(c)
	return c.Validate()
}

func sanitizeConfig(cfg *Config) {
	if cfg.Port == "" {
		cfg.Port = defaultPort
	}
	if !strings.Contains(cfg.Port, ":") {
		cfg.Port = ":" + cfg.Port
	}

	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = defaultMaxMessageSize
	}

	if cfg.SendBufferSize <= 0 {
		cfg.SendBufferSize = defaultSendBufferSize
	}

	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}

	if cfg.LogLevel == "" {
		cfg.LogLevel = defaultLogLevel
	}
}

func parseOrigins(origins string) []string {
	parts := strings.Split(origins, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
