// Package config содержит логику чтения конфигурации сервиса виртуальных питомцев.
package config

import (
	"errors"
	"flag"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"go.uber.org/zap/zapcore"
)

// Значения по умолчанию.
const (
	DefaultRunAddress   = "localhost:8080"
	DefaultTickInterval = 30 * time.Second
	DefaultLogLevel     = "info"
)

// Config содержит параметры конфигурации сервиса.
type Config struct {
	RunAddress   string        `env:"RUN_ADDRESS"`
	DatabaseURI  string        `env:"DATABASE_URI"`
	TickInterval time.Duration `env:"TICK_INTERVAL"`
	CookieSecret string        `env:"COOKIE_SECRET"`
	LogLevel     string        `env:"LOG_LEVEL"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
// Переменные окружения имеют приоритет над флагами. Пустой DatabaseURI означает
// хранение данных в памяти.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envCfg := *cfg

	flag.StringVar(&cfg.RunAddress, "a", DefaultRunAddress, "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI, empty for in-memory storage")
	flag.DurationVar(&cfg.TickInterval, "t", DefaultTickInterval, "pet state decay interval")
	flag.StringVar(&cfg.CookieSecret, "s", "", "owner cookie signing secret")
	flag.StringVar(&cfg.LogLevel, "l", DefaultLogLevel, "log level")

	flag.Parse()

	if envCfg.RunAddress != "" {
		cfg.RunAddress = envCfg.RunAddress
	}
	if envCfg.DatabaseURI != "" {
		cfg.DatabaseURI = envCfg.DatabaseURI
	}
	if envCfg.TickInterval != 0 {
		cfg.TickInterval = envCfg.TickInterval
	}
	if envCfg.CookieSecret != "" {
		cfg.CookieSecret = envCfg.CookieSecret
	}
	if envCfg.LogLevel != "" {
		cfg.LogLevel = envCfg.LogLevel
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = DefaultRunAddress
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate проверяет значения конфигурации.
func (c *Config) Validate() error {
	var errs []error
	if c.TickInterval <= 0 {
		errs = append(errs, fmt.Errorf("tick interval must be positive, got %s", c.TickInterval))
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log level: %w", err))
	}
	return errors.Join(errs...)
}
