package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Database DatabaseConfig
	Browser  BrowserConfig
	Crawler  CrawlerConfig
	Scoring  ScoringConfig
	Redis    RedisConfig
	Status   StatusConfig
	Logging  LoggingConfig
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	MaxConns int32
}

type BrowserConfig struct {
	Headless       bool
	Timeout        time.Duration
	ViewportWidth  int
	ViewportHeight int
	AcceptLanguage string
	TimezoneID     string
	Locale         string
	UserAgents     []string
}

type CrawlerConfig struct {
	MaxPagesPerCategory int
	PageSize            int
	MaxRetries          int
	RetryDelay          time.Duration
	ChallengePoll       time.Duration
	MarkerSettle        time.Duration
	ListingPaceMin      time.Duration
	ListingPaceMax      time.Duration
	PagePaceMin         time.Duration
	PagePaceMax         time.Duration
	TargetPaceMin       time.Duration
	TargetPaceMax       time.Duration
	SkipModels          []string
	CatalogFile         string
}

// ScoringConfig carries the damage-score weights and the deal
// threshold. These are product heuristics with no derivation on
// record, so they stay configurable rather than hard-coded.
type ScoringConfig struct {
	PaintedWeight int
	SwappedWeight int
	DealThreshold float64
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Channel  string
}

type StatusConfig struct {
	Addr string
}

type LoggingConfig struct {
	Level string
}

func Load() (*Config, error) {
	cfg := &Config{
		Database: DatabaseConfig{
			Host:     getEnvOrDefault("DB_HOST", "localhost"),
			Port:     getIntOrDefault("DB_PORT", 5432),
			User:     getEnvOrDefault("DB_USER", "postgres"),
			Password: getEnvOrDefault("DB_PASSWORD", ""),
			Name:     getEnvOrDefault("DB_NAME", "vehicle_ingest"),
			MaxConns: int32(getIntOrDefault("DB_MAX_CONNS", 4)),
		},
		Browser: BrowserConfig{
			Headless:       getBoolOrDefault("BROWSER_HEADLESS", false),
			Timeout:        getDurationOrDefault("BROWSER_TIMEOUT", 30*time.Second),
			ViewportWidth:  getIntOrDefault("BROWSER_VIEWPORT_WIDTH", 1920),
			ViewportHeight: getIntOrDefault("BROWSER_VIEWPORT_HEIGHT", 1080),
			AcceptLanguage: getEnvOrDefault("BROWSER_ACCEPT_LANGUAGE", "tr-TR,tr;q=0.9,en-US;q=0.8,en;q=0.7"),
			TimezoneID:     getEnvOrDefault("BROWSER_TIMEZONE", "Europe/Istanbul"),
			Locale:         getEnvOrDefault("BROWSER_LOCALE", "tr-TR"),
			UserAgents:     getStringSliceOrDefault("BROWSER_USER_AGENTS", defaultUserAgents()),
		},
		Crawler: CrawlerConfig{
			MaxPagesPerCategory: getIntOrDefault("CRAWLER_MAX_PAGES", 10),
			PageSize:            getIntOrDefault("CRAWLER_PAGE_SIZE", 20),
			MaxRetries:          getIntOrDefault("CRAWLER_MAX_RETRIES", 3),
			RetryDelay:          getDurationOrDefault("CRAWLER_RETRY_DELAY", 2*time.Second),
			ChallengePoll:       getDurationOrDefault("CRAWLER_CHALLENGE_POLL", 2*time.Second),
			MarkerSettle:        getDurationOrDefault("CRAWLER_MARKER_SETTLE", 15*time.Second),
			ListingPaceMin:      getDurationOrDefault("CRAWLER_LISTING_PACE_MIN", 1*time.Second),
			ListingPaceMax:      getDurationOrDefault("CRAWLER_LISTING_PACE_MAX", 2*time.Second),
			PagePaceMin:         getDurationOrDefault("CRAWLER_PAGE_PACE_MIN", 3*time.Second),
			PagePaceMax:         getDurationOrDefault("CRAWLER_PAGE_PACE_MAX", 6*time.Second),
			TargetPaceMin:       getDurationOrDefault("CRAWLER_TARGET_PACE_MIN", 5*time.Second),
			TargetPaceMax:       getDurationOrDefault("CRAWLER_TARGET_PACE_MAX", 10*time.Second),
			SkipModels:          getStringSliceOrDefault("CRAWLER_SKIP_MODELS", []string{}),
			CatalogFile:         getEnvOrDefault("CRAWLER_CATALOG_FILE", ""),
		},
		Scoring: ScoringConfig{
			PaintedWeight: getIntOrDefault("SCORE_PAINTED_WEIGHT", 5),
			SwappedWeight: getIntOrDefault("SCORE_SWAPPED_WEIGHT", 15),
			DealThreshold: getFloatOrDefault("SCORE_DEAL_THRESHOLD", 0.85),
		},
		Redis: RedisConfig{
			Addr:     getEnvOrDefault("REDIS_ADDR", ""),
			Password: getEnvOrDefault("REDIS_PASSWORD", ""),
			DB:       getIntOrDefault("REDIS_DB", 0),
			Channel:  getEnvOrDefault("REDIS_CHANNEL", "vehicle-ingest:events"),
		},
		Status: StatusConfig{
			Addr: getEnvOrDefault("STATUS_ADDR", ""),
		},
		Logging: LoggingConfig{
			Level: getEnvOrDefault("LOG_LEVEL", "info"),
		},
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Crawler.MaxPagesPerCategory < 1 {
		return fmt.Errorf("CRAWLER_MAX_PAGES must be at least 1")
	}

	if c.Crawler.MaxRetries < 1 {
		return fmt.Errorf("CRAWLER_MAX_RETRIES must be at least 1")
	}

	if c.Crawler.ListingPaceMin > c.Crawler.ListingPaceMax {
		return fmt.Errorf("CRAWLER_LISTING_PACE_MIN cannot be greater than CRAWLER_LISTING_PACE_MAX")
	}

	if c.Crawler.PagePaceMin > c.Crawler.PagePaceMax {
		return fmt.Errorf("CRAWLER_PAGE_PACE_MIN cannot be greater than CRAWLER_PAGE_PACE_MAX")
	}

	if c.Scoring.DealThreshold <= 0 || c.Scoring.DealThreshold >= 1 {
		return fmt.Errorf("SCORE_DEAL_THRESHOLD must be between 0 and 1")
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

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
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
		return strings.Split(value, ",")
	}
	return defaultValue
}

func defaultUserAgents() []string {
	return []string{
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
	}
}
