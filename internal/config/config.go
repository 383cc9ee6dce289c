package config

import (
	"fmt"
	"log"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Port             string        `yaml:"port"`
	Environment      string        `yaml:"environment"`
	ReplayWSURL      string        `yaml:"replay_ws_url"`
	ReplayHTTPURL    string        `yaml:"replay_http_url"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	CloseFlushDelay  time.Duration `yaml:"close_flush_delay"`
	SymbolsTimeout   time.Duration `yaml:"symbols_timeout"`
	CalendarMIC      string        `yaml:"calendar_mic"`
	DefaultSymbol    string        `yaml:"default_symbol"` // Opens a session at startup when set
}

func defaults() Config {
	return Config{
		Port:             "8080",
		Environment:      "development",
		ReplayWSURL:      "ws://127.0.0.1:8000",
		HandshakeTimeout: 10 * time.Second,
		CloseFlushDelay:  100 * time.Millisecond,
		SymbolsTimeout:   5 * time.Second,
		CalendarMIC:      "xnys",
	}
}

// Load reads .env, then the optional YAML file named by CONFIG_FILE, then the
// environment. Environment variables win over the file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.Environment = getEnv("ENVIRONMENT", cfg.Environment)
	cfg.ReplayWSURL = getEnv("REPLAY_WS_URL", cfg.ReplayWSURL)
	cfg.ReplayHTTPURL = getEnv("REPLAY_HTTP_URL", cfg.ReplayHTTPURL)
	cfg.CalendarMIC = getEnv("CALENDAR_MIC", cfg.CalendarMIC)
	cfg.DefaultSymbol = getEnv("DEFAULT_SYMBOL", cfg.DefaultSymbol)

	var err error
	if cfg.HandshakeTimeout, err = getDurationEnv("REPLAY_HANDSHAKE_TIMEOUT", cfg.HandshakeTimeout); err != nil {
		return nil, err
	}
	if cfg.CloseFlushDelay, err = getDurationEnv("CLOSE_FLUSH_DELAY", cfg.CloseFlushDelay); err != nil {
		return nil, err
	}
	if cfg.SymbolsTimeout, err = getDurationEnv("SYMBOLS_TIMEOUT", cfg.SymbolsTimeout); err != nil {
		return nil, err
	}

	if cfg.ReplayHTTPURL == "" {
		cfg.ReplayHTTPURL = httpURLFor(cfg.ReplayWSURL)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadFile(path string, cfg *Config) error {
	input, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("can't read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(input, cfg); err != nil {
		return fmt.Errorf("can't unmarshal config file %s: %w", path, err)
	}
	return nil
}

// Validate checks the configuration is usable
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("empty port")
	}
	if _, err := strconv.Atoi(c.Port); err != nil {
		return fmt.Errorf("port must be a number: %w", err)
	}

	u, err := url.Parse(c.ReplayWSURL)
	if err != nil {
		return fmt.Errorf("invalid replay websocket url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("replay websocket url must use ws or wss, got %q", c.ReplayWSURL)
	}

	h, err := url.Parse(c.ReplayHTTPURL)
	if err != nil {
		return fmt.Errorf("invalid replay http url: %w", err)
	}
	if h.Scheme != "http" && h.Scheme != "https" {
		return fmt.Errorf("replay http url must use http or https, got %q", c.ReplayHTTPURL)
	}

	if c.HandshakeTimeout <= 0 || c.SymbolsTimeout <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}
	if c.CloseFlushDelay < 0 {
		return fmt.Errorf("close flush delay cannot be negative")
	}
	return nil
}

// IsProduction reports whether the server runs in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

// httpURLFor derives the HTTP base from the websocket base
func httpURLFor(wsURL string) string {
	switch {
	case strings.HasPrefix(wsURL, "wss://"):
		return "https://" + strings.TrimPrefix(wsURL, "wss://")
	case strings.HasPrefix(wsURL, "ws://"):
		return "http://" + strings.TrimPrefix(wsURL, "ws://")
	default:
		return wsURL
	}
}
