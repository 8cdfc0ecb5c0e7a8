package config

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/maltedev/alkoteka-scraper/internal/parser"
)

const (
	DefaultBaseURL        = "https://alkoteka.com"
	DefaultCategoriesFile = "categories.txt"
	DefaultProxiesFile    = "proxies.txt"
	DefaultRegionCookie   = "current_city_id"
	DefaultRegionID       = "2"
)

type Config struct {
	Spider    SpiderConfig     `yaml:"spider"`
	HTTP      HTTPConfig       `yaml:"http"`
	Redis     RedisConfig      `yaml:"redis"`
	Server    ServerConfig     `yaml:"server"`
	Logging   LoggingConfig    `yaml:"logging"`
	Selectors parser.Selectors `yaml:"selectors"`
}

type SpiderConfig struct {
	BaseURL        string `yaml:"base_url"`
	CategoriesFile string `yaml:"categories_file"`
	ProxiesFile    string `yaml:"proxies_file"`
	RegionCookie   string `yaml:"region_cookie"`
	RegionID       string `yaml:"region_id"`
	// MaxItemsPerCategory of 0 means unlimited.
	MaxItemsPerCategory int      `yaml:"max_items_per_category"`
	Workers             int      `yaml:"workers"`
	Output              string   `yaml:"output"`
	AllowedHosts        []string `yaml:"allowed_hosts"`
}

type HTTPConfig struct {
	UserAgent      string   `yaml:"user_agent"`
	AcceptLanguage string   `yaml:"accept_language"`
	Timeout        Duration `yaml:"timeout"`
	MaxBodyBytes   int64    `yaml:"max_body_bytes"`
	DownloadDelay  Duration `yaml:"download_delay"`
	// RateLimiter is one of "delay", "adaptive", "token" or "none".
	RateLimiter string `yaml:"rate_limiter"`
	Burst       int    `yaml:"burst"`
}

// RedisConfig enables the stream sink when Addr is set.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Stream   string `yaml:"stream"`
	MaxLen   int64  `yaml:"max_len"`
}

// ServerConfig enables the status API when Addr is set.
type ServerConfig struct {
	Addr            string   `yaml:"addr"`
	ReadTimeout     Duration `yaml:"read_timeout"`
	WriteTimeout    Duration `yaml:"write_timeout"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load builds the configuration from environment variables and defaults.
func Load() (*Config, error) {
	cfg := &Config{
		Spider: SpiderConfig{
			BaseURL:             getEnvOrDefault("SPIDER_BASE_URL", DefaultBaseURL),
			CategoriesFile:      getEnvOrDefault("SPIDER_CATEGORIES_FILE", ""),
			ProxiesFile:         getEnvOrDefault("SPIDER_PROXIES_FILE", ""),
			RegionCookie:        getEnvOrDefault("SPIDER_REGION_COOKIE", DefaultRegionCookie),
			RegionID:            getEnvOrDefault("SPIDER_REGION_ID", DefaultRegionID),
			MaxItemsPerCategory: getIntOrDefault("SPIDER_MAX_ITEMS", 0),
			Workers:             getIntOrDefault("SPIDER_WORKERS", 4),
			Output:              getEnvOrDefault("SPIDER_OUTPUT", "result.json"),
			AllowedHosts:        getStringSliceOrDefault("SPIDER_ALLOWED_HOSTS", []string{}),
		},
		HTTP: HTTPConfig{
			UserAgent:      getEnvOrDefault("HTTP_USER_AGENT", ""),
			AcceptLanguage: getEnvOrDefault("HTTP_ACCEPT_LANGUAGE", ""),
			Timeout:        DurationFrom(getDurationOrDefault("HTTP_TIMEOUT", 30*time.Second)),
			MaxBodyBytes:   int64(getIntOrDefault("HTTP_MAX_BODY_BYTES", 10*1024*1024)),
			DownloadDelay:  DurationFrom(getDurationOrDefault("HTTP_DOWNLOAD_DELAY", time.Second)),
			RateLimiter:    getEnvOrDefault("HTTP_RATE_LIMITER", "delay"),
			Burst:          getIntOrDefault("HTTP_BURST", 1),
		},
		Redis: RedisConfig{
			Addr:     getEnvOrDefault("REDIS_ADDR", ""),
			Password: getEnvOrDefault("REDIS_PASSWORD", ""),
			DB:       getIntOrDefault("REDIS_DB", 0),
			Stream:   getEnvOrDefault("REDIS_STREAM", "alkoteka:products"),
			MaxLen:   int64(getIntOrDefault("REDIS_STREAM_MAXLEN", 0)),
		},
		Server: ServerConfig{
			Addr:            getEnvOrDefault("STATUS_ADDR", ""),
			ReadTimeout:     DurationFrom(getDurationOrDefault("SERVER_READ_TIMEOUT", 10*time.Second)),
			WriteTimeout:    DurationFrom(getDurationOrDefault("SERVER_WRITE_TIMEOUT", 10*time.Second)),
			ShutdownTimeout: DurationFrom(getDurationOrDefault("SERVER_SHUTDOWN_TIMEOUT", 5*time.Second)),
		},
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "text"),
		},
		Selectors: parser.DefaultSelectors(),
	}

	return cfg, nil
}

// LoadFile overlays the YAML file at path on top of Load. Unknown keys are
// rejected.
func LoadFile(path string) (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}

	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer fh.Close()

	if err := decodeYAML(fh, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decodeYAML(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("decode config: %w", err)
	}
	return nil
}

func (c *Config) Validate() error {
	u, err := url.Parse(c.Spider.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("SPIDER_BASE_URL must be an absolute http(s) URL, got %q", c.Spider.BaseURL)
	}

	if c.Spider.Workers < 1 {
		return fmt.Errorf("SPIDER_WORKERS must be at least 1")
	}

	if c.Spider.MaxItemsPerCategory < 0 {
		return fmt.Errorf("SPIDER_MAX_ITEMS cannot be negative")
	}

	if c.Spider.RegionCookie == "" || c.Spider.RegionID == "" {
		return fmt.Errorf("region cookie name and id are required")
	}

	if strings.TrimSpace(c.Spider.Output) == "" {
		return fmt.Errorf("SPIDER_OUTPUT is required")
	}

	if c.HTTP.DownloadDelay.Duration < 0 {
		return fmt.Errorf("HTTP_DOWNLOAD_DELAY cannot be negative")
	}

	switch c.HTTP.RateLimiter {
	case "delay", "adaptive", "token", "none":
	default:
		return fmt.Errorf("HTTP_RATE_LIMITER must be one of delay, adaptive, token, none")
	}

	if c.HTTP.RateLimiter == "token" && c.HTTP.Burst < 1 {
		return fmt.Errorf("HTTP_BURST must be at least 1")
	}

	if c.Redis.Addr != "" && c.Redis.Stream == "" {
		return fmt.Errorf("REDIS_STREAM is required when REDIS_ADDR is set")
	}

	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getStringSliceOrDefault(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return defaultValue
}
