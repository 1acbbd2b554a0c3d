package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/eventflow/messenger/internal/logger"
)

// loadEnv reads .env outside production only; in containers config comes from
// the environment.
func loadEnv() {
	if os.Getenv("APP_ENV") == "production" {
		return
	}
	// Ignore a missing file: .env is optional for local development.
	_ = godotenv.Load()
}

// RedisConfig configures the notification-preference store. An empty URL
// selects the in-memory fallback.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// Config holds messenger client and devserver settings.
// Priority: environment variables > YAML file > defaults.
type Config struct {
	// Backend endpoints
	APIBaseURL string `yaml:"api_base_url"`
	SocketURL  string `yaml:"socket_url"`

	// Socket behavior
	ReconnectMaxAttempts int           `yaml:"reconnect_max_attempts"`
	ReconnectBaseDelay   time.Duration `yaml:"-"`
	TypingDebounce       time.Duration `yaml:"-"`
	TypingExpiry         time.Duration `yaml:"-"`

	// Devserver
	ServerAddr         string `yaml:"server_addr"`
	CORSAllowedOrigins string `yaml:"cors_allowed_origins"`

	// Notification preference storage
	Redis RedisConfig `yaml:"-"`

	LogLevel string `yaml:"log_level"`
}

// yamlConfig is the intermediate YAML shape with durations in milliseconds.
type yamlConfig struct {
	APIBaseURL           string      `yaml:"api_base_url"`
	SocketURL            string      `yaml:"socket_url"`
	ReconnectMaxAttempts int         `yaml:"reconnect_max_attempts"`
	ReconnectBaseDelayMS int         `yaml:"reconnect_base_delay_ms"`
	TypingDebounceMS     int         `yaml:"typing_debounce_ms"`
	TypingExpiryMS       int         `yaml:"typing_expiry_ms"`
	ServerAddr           string      `yaml:"server_addr"`
	CORSAllowedOrigins   string      `yaml:"cors_allowed_origins"`
	Redis                RedisConfig `yaml:"redis"`
	LogLevel             string      `yaml:"log_level"`
}

// Load builds the configuration. A .env file (if present) is applied first,
// then the YAML file (CONFIG_PATH or config/messenger.yaml), then environment
// variables, which win.
func Load() *Config {
	loadEnv()

	yc := yamlConfig{
		APIBaseURL:           "http://localhost:8090",
		SocketURL:            "ws://localhost:8090/ws",
		ReconnectMaxAttempts: 5,
		ReconnectBaseDelayMS: 500,
		TypingDebounceMS:     3000,
		TypingExpiryMS:       6000,
		ServerAddr:           ":8090",
		CORSAllowedOrigins:   "*",
		LogLevel:             "info",
	}

	paths := []string{os.Getenv("CONFIG_PATH"), "config/messenger.yaml"}
	for _, path := range paths {
		if path == "" {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if err := yaml.Unmarshal(data, &yc); err != nil {
			logger.Errorf("config: parse %s: %v (falling back to defaults)", path, err)
		} else {
			logger.Infof("config: loaded %s", path)
		}
		break
	}

	cfg := &Config{
		APIBaseURL:           envStr("API_BASE_URL", yc.APIBaseURL),
		SocketURL:            envStr("SOCKET_URL", yc.SocketURL),
		ReconnectMaxAttempts: envInt("RECONNECT_MAX_ATTEMPTS", yc.ReconnectMaxAttempts),
		ReconnectBaseDelay:   time.Duration(envInt("RECONNECT_BASE_DELAY_MS", yc.ReconnectBaseDelayMS)) * time.Millisecond,
		TypingDebounce:       time.Duration(envInt("TYPING_DEBOUNCE_MS", yc.TypingDebounceMS)) * time.Millisecond,
		TypingExpiry:         time.Duration(envInt("TYPING_EXPIRY_MS", yc.TypingExpiryMS)) * time.Millisecond,
		ServerAddr:           envStr("SERVER_ADDR", yc.ServerAddr),
		CORSAllowedOrigins:   envStr("CORS_ALLOWED_ORIGINS", yc.CORSAllowedOrigins),
		Redis:                RedisConfig{URL: envStr("REDIS_URL", yc.Redis.URL)},
		LogLevel:             envStr("LOG_LEVEL", yc.LogLevel),
	}

	if cfg.ReconnectMaxAttempts <= 0 {
		cfg.ReconnectMaxAttempts = 5
	}
	if cfg.ReconnectBaseDelay <= 0 {
		cfg.ReconnectBaseDelay = 500 * time.Millisecond
	}
	if cfg.TypingDebounce <= 0 {
		cfg.TypingDebounce = 3 * time.Second
	}
	if cfg.TypingExpiry <= 0 {
		cfg.TypingExpiry = 6 * time.Second
	}

	return cfg
}

// envStr returns the environment value or the fallback.
func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// envInt returns the numeric environment value or the fallback.
func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
