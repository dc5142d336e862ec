// Package config загружает конфигурацию клиента из файла и переменных окружения
package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	// EnvPrefix префикс переменных окружения (PIEZO_CONTROL_URL и т.д.)
	EnvPrefix = "PIEZO"
	// DefaultStreamPort порт push-канала на хосте управляющего сервера
	DefaultStreamPort = "8889"
)

// Config содержит конфигурацию клиента
type Config struct {
	ControlURL      string        `mapstructure:"control_url"`
	StreamURL       string        `mapstructure:"stream_url"`
	ListenAddr      string        `mapstructure:"listen_addr"`
	ReconnectDelay  time.Duration `mapstructure:"reconnect_delay"`
	StatusInterval  time.Duration `mapstructure:"status_interval"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ChartSize       int           `mapstructure:"chart_size"`
	SparklineSize   int           `mapstructure:"sparkline_size"`
	DefaultBaudrate int           `mapstructure:"default_baudrate"`
	RedisAddr       string        `mapstructure:"redis_addr"`
	RedisPassword   string        `mapstructure:"redis_password"`
	RedisDB         int           `mapstructure:"redis_db"`
	LogLevel        string        `mapstructure:"log_level"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("control_url", "http://127.0.0.1:8000")
	v.SetDefault("stream_url", "")
	v.SetDefault("listen_addr", ":8090")
	v.SetDefault("reconnect_delay", "3s")
	v.SetDefault("status_interval", "5s")
	v.SetDefault("request_timeout", "5s")
	v.SetDefault("chart_size", 120)
	v.SetDefault("sparkline_size", 30)
	v.SetDefault("default_baudrate", 9600)
	v.SetDefault("redis_addr", "")
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_db", 0)
	v.SetDefault("log_level", "info")
}

// Load читает конфигурацию: значения по умолчанию, файл piezo.yaml (или path), переменные окружения
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("piezo")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if cfg.StreamURL == "" {
		streamURL, err := DeriveStreamURL(cfg.ControlURL)
		if err != nil {
			return nil, err
		}
		cfg.StreamURL = streamURL
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// DeriveStreamURL строит адрес push-канала: тот же хост, порт 8889, ws или wss
func DeriveStreamURL(controlURL string) (string, error) {
	u, err := url.Parse(controlURL)
	if err != nil {
		return "", fmt.Errorf("invalid control_url %q: %w", controlURL, err)
	}

	scheme := "ws"
	if u.Scheme == "https" {
		scheme = "wss"
	}
	host := u.Hostname()
	if host == "" {
		return "", fmt.Errorf("control_url %q has no host", controlURL)
	}
	return (&url.URL{Scheme: scheme, Host: net.JoinHostPort(host, DefaultStreamPort)}).String(), nil
}

// Validate проверяет согласованность значений
func (c *Config) Validate() error {
	u, err := url.Parse(c.ControlURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("control_url must be an http(s) URL, got %q", c.ControlURL)
	}
	s, err := url.Parse(c.StreamURL)
	if err != nil || (s.Scheme != "ws" && s.Scheme != "wss") || s.Host == "" {
		return fmt.Errorf("stream_url must be a ws(s) URL, got %q", c.StreamURL)
	}
	if c.ReconnectDelay <= 0 {
		return fmt.Errorf("reconnect_delay must be positive, got %s", c.ReconnectDelay)
	}
	if c.StatusInterval <= 0 {
		return fmt.Errorf("status_interval must be positive, got %s", c.StatusInterval)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive, got %s", c.RequestTimeout)
	}
	if c.ChartSize < 1 || c.SparklineSize < 1 {
		return fmt.Errorf("series sizes must be positive, got chart=%d sparkline=%d", c.ChartSize, c.SparklineSize)
	}
	if c.DefaultBaudrate <= 0 {
		return fmt.Errorf("default_baudrate must be positive, got %d", c.DefaultBaudrate)
	}
	return nil
}
