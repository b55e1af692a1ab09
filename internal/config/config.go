package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	Scraper   ScraperConfig
	Discovery DiscoveryConfig
	Browser   BrowserConfig
	Database  DatabaseConfig
	Store     StoreConfig
	Redis     RedisConfig
	Relay     RelayConfig
	Schedule  ScheduleConfig
	Dump      DumpConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	Port            string
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type ScraperConfig struct {
	StartPage             int
	StopPage              int
	MaxConcurrentSessions int
	PacingDelay           time.Duration
	NavigationTimeout     time.Duration
	ClickTimeout          time.Duration
	RevealTimeout         time.Duration
	RevealAttempts        int
	RevealBackoff         time.Duration
}

type DiscoveryConfig struct {
	BaseURL     string
	Parallelism int
	Timeout     time.Duration
	UserAgent   string
}

type BrowserConfig struct {
	Headless       bool
	ViewportWidth  int
	ViewportHeight int
	UserAgent      string
	Locale         string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int32
}

type StoreConfig struct {
	// Backend is "postgres" or "file".
	Backend  string
	FilePath string
}

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	Stream   string
}

type RelayConfig struct {
	PollInterval time.Duration
	BatchSize    int
}

type ScheduleConfig struct {
	// Hour and Minute are -1 when unset; the scheduler then runs one minute after start.
	Hour   int
	Minute int
}

type DumpConfig struct {
	Dir string
}

type LoggingConfig struct {
	Level  string
	Format string
}

// Load reads an optional .env file and then the process environment.
func Load(envPath ...string) (*Config, error) {
	if err := godotenv.Load(envPath...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load env file: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnvOrDefault("SERVER_PORT", "8080"),
			Host:            getEnvOrDefault("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:     getDurationOrDefault("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getDurationOrDefault("SERVER_WRITE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getDurationOrDefault("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Scraper: ScraperConfig{
			StartPage:             getIntOrDefault("START_PAGE", 1),
			StopPage:              getIntOrDefault("STOP_PAGE", 21),
			MaxConcurrentSessions: getIntOrDefault("SCRAPER_MAX_SESSIONS", 3),
			PacingDelay:           getDurationOrDefault("SCRAPER_PACING_DELAY", 1*time.Second),
			NavigationTimeout:     getDurationOrDefault("SCRAPER_NAVIGATION_TIMEOUT", 30*time.Second),
			ClickTimeout:          getDurationOrDefault("SCRAPER_CLICK_TIMEOUT", 20*time.Second),
			RevealTimeout:         getDurationOrDefault("SCRAPER_REVEAL_TIMEOUT", 25*time.Second),
			RevealAttempts:        getIntOrDefault("SCRAPER_REVEAL_ATTEMPTS", 3),
			RevealBackoff:         getDurationOrDefault("SCRAPER_REVEAL_BACKOFF", 2*time.Second),
		},
		Discovery: DiscoveryConfig{
			BaseURL:     getEnvOrDefault("DISCOVERY_BASE_URL", "https://auto.ria.com/uk/car/used/"),
			Parallelism: getIntOrDefault("DISCOVERY_PARALLELISM", 4),
			Timeout:     getDurationOrDefault("DISCOVERY_TIMEOUT", 30*time.Second),
			UserAgent:   getEnvOrDefault("DISCOVERY_USER_AGENT", defaultUserAgent),
		},
		Browser: BrowserConfig{
			Headless:       getBoolOrDefault("BROWSER_HEADLESS", true),
			ViewportWidth:  getIntOrDefault("BROWSER_VIEWPORT_WIDTH", 1920),
			ViewportHeight: getIntOrDefault("BROWSER_VIEWPORT_HEIGHT", 1080),
			UserAgent:      getEnvOrDefault("BROWSER_USER_AGENT", defaultUserAgent),
			Locale:         getEnvOrDefault("BROWSER_LOCALE", "uk-UA"),
		},
		Database: DatabaseConfig{
			Host:     getEnvOrDefault("DB_HOST", "localhost"),
			Port:     getIntOrDefault("DB_PORT", 5432),
			User:     getEnvOrDefault("DB_USER", "postgres"),
			Password: getEnvOrDefault("DB_PASSWORD", ""),
			DBName:   getEnvOrDefault("DB_NAME", "autoria"),
			SSLMode:  getEnvOrDefault("DB_SSL_MODE", "disable"),
			MaxConns: int32(getIntOrDefault("DB_MAX_CONNS", 10)),
		},
		Store: StoreConfig{
			Backend:  getEnvOrDefault("STORE_BACKEND", "postgres"),
			FilePath: getEnvOrDefault("STORE_FILE_PATH", "data/listings.json"),
		},
		Redis: RedisConfig{
			Enabled:  getBoolOrDefault("REDIS_ENABLED", false),
			Addr:     getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
			Password: getEnvOrDefault("REDIS_PASSWORD", ""),
			DB:       getIntOrDefault("REDIS_DB", 0),
			Stream:   getEnvOrDefault("REDIS_STREAM", "stream:listings"),
		},
		Relay: RelayConfig{
			PollInterval: getDurationOrDefault("RELAY_POLL_INTERVAL", 5*time.Second),
			BatchSize:    getIntOrDefault("RELAY_BATCH_SIZE", 100),
		},
		Schedule: ScheduleConfig{
			Hour:   getIntOrDefault("SCRAPER_RUN_HOUR", -1),
			Minute: getIntOrDefault("SCRAPER_RUN_MINUTE", -1),
		},
		Dump: DumpConfig{
			Dir: getEnvOrDefault("DUMP_DIR", "dumps"),
		},
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "json"),
		},
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Scraper.StartPage < 1 {
		return fmt.Errorf("START_PAGE must be at least 1")
	}

	if c.Scraper.StopPage <= c.Scraper.StartPage {
		return fmt.Errorf("STOP_PAGE must be greater than START_PAGE")
	}

	if c.Scraper.MaxConcurrentSessions < 1 {
		return fmt.Errorf("SCRAPER_MAX_SESSIONS must be at least 1")
	}

	if c.Scraper.RevealAttempts < 1 {
		return fmt.Errorf("SCRAPER_REVEAL_ATTEMPTS must be at least 1")
	}

	if c.Scraper.PacingDelay < 0 || c.Scraper.RevealBackoff < 0 {
		return fmt.Errorf("SCRAPER_PACING_DELAY and SCRAPER_REVEAL_BACKOFF cannot be negative")
	}

	if c.Scraper.NavigationTimeout <= 0 || c.Scraper.ClickTimeout <= 0 || c.Scraper.RevealTimeout <= 0 {
		return fmt.Errorf("scraper timeouts must be positive")
	}

	if c.Discovery.Parallelism < 1 {
		return fmt.Errorf("DISCOVERY_PARALLELISM must be at least 1")
	}

	switch c.Store.Backend {
	case "postgres", "file":
	default:
		return fmt.Errorf("STORE_BACKEND must be postgres or file, got %q", c.Store.Backend)
	}

	if c.Schedule.Hour > 23 || c.Schedule.Minute > 59 {
		return fmt.Errorf("SCRAPER_RUN_HOUR/SCRAPER_RUN_MINUTE out of range")
	}

	return nil
}

// DSN builds the postgres connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode)
}

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return i
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
