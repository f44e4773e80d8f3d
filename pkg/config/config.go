package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Store backends
const (
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
)

// Config holds all configuration for the metrics pipeline
// ⭐ SSOT: 모든 환경변수는 여기서만 읽음
type Config struct {
	Env string // development, staging, production

	// Storage
	Store    StoreConfig
	Database DatabaseConfig

	// Redis (shared rate limit + response cache)
	Redis RedisConfig

	// Market data source
	Source SourceConfig

	// Pipeline numerics
	Pipeline PipelineConfig

	// Scheduling
	ScheduleCron string

	// Logging
	LogLevel  string
	LogFormat string
}

// StoreConfig selects where checkpoints and snapshots are persisted
type StoreConfig struct {
	Backend    string // postgres | sqlite
	SQLitePath string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL string

	// Connection Pool
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// SourceConfig holds market data provider configuration
type SourceConfig struct {
	BaseURL           string
	Timeout           time.Duration
	RequestsPerSecond float64
	CacheTTL          time.Duration
}

// PipelineConfig holds the recognized batch options and metric thresholds.
// Every field can also be set from the YAML file named by PIPELINE_CONFIG.
type PipelineConfig struct {
	BatchSize          int           `yaml:"batch_size"`
	RateLimitDelay     time.Duration `yaml:"rate_limit_delay"`
	BatchPause         time.Duration `yaml:"batch_pause"`
	MaxRetries         int           `yaml:"max_retries"`
	Workers            int           `yaml:"workers"`
	RiskFreeRate       float64       `yaml:"risk_free_rate"`
	TradingDaysPerYear int           `yaml:"trading_days_per_year"`
	Windows            []string      `yaml:"windows"`
	ExtremeMoveRatio   float64       `yaml:"extreme_move_ratio"`
	ReturnTrim         float64       `yaml:"return_trim"`
	DividendCeiling    float64       `yaml:"dividend_ceiling"`
	LookbackYears      int           `yaml:"lookback_years"`

	// Retry policy for transient fetch/sink errors
	FetchMaxAttempts    int           `yaml:"fetch_max_attempts"`
	FetchInitialBackoff time.Duration `yaml:"fetch_initial_backoff"`
	FetchMaxBackoff     time.Duration `yaml:"fetch_max_backoff"`

	SymbolTimeout     time.Duration `yaml:"symbol_timeout"`
	FailureSampleSize int           `yaml:"failure_sample_size"`

	// Mandatory snapshot fields
	RequireCurrentPrice bool `yaml:"require_current_price"`
	RequireBasicReturn  bool `yaml:"require_basic_return"`
}

// MaxWorkers bounds the optional worker pool
const MaxWorkers = 8

// DefaultWindows is the default rolling window set
var DefaultWindows = []string{"12m", "24m", "36m", "5y", "10y"}

// Load reads configuration from environment variables
// ⭐ SSOT: 이 함수만 os.Getenv()를 호출함
func Load() (*Config, error) {
	return LoadWithEnvFile("")
}

// LoadWithEnvFile is Load with an explicit .env file.
// An empty path searches the default locations; a named file must exist.
func LoadWithEnvFile(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("load env file %s: %w", envFile, err)
		}
	} else {
		loadEnvFile()
	}

	cfg := &Config{
		Env: getEnv("ENV", "development"),

		Store: StoreConfig{
			Backend:    strings.ToLower(getEnv("STORE_BACKEND", StorePostgres)),
			SQLitePath: getEnv("SQLITE_PATH", "metrics.db"),
		},

		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 10),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 2),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", "1h"),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", "30m"),
		},

		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
		},

		Source: SourceConfig{
			BaseURL:           getEnv("SOURCE_BASE_URL", "https://query1.finance.yahoo.com"),
			Timeout:           getEnvAsDuration("SOURCE_TIMEOUT", "30s"),
			RequestsPerSecond: getEnvAsFloat("SOURCE_RPS", 4),
			CacheTTL:          getEnvAsDuration("SOURCE_CACHE_TTL", "24h"),
		},

		Pipeline: PipelineConfig{
			BatchSize:           getEnvAsInt("BATCH_SIZE", 50),
			RateLimitDelay:      getEnvAsDuration("RATE_LIMIT_DELAY", "500ms"),
			BatchPause:          getEnvAsDuration("BATCH_PAUSE", "5s"),
			MaxRetries:          getEnvAsInt("MAX_RETRIES", 3),
			Workers:             getEnvAsInt("WORKERS", 1),
			RiskFreeRate:        getEnvAsFloat("RISK_FREE_RATE", 0.04),
			TradingDaysPerYear:  getEnvAsInt("TRADING_DAYS_PER_YEAR", 252),
			Windows:             getEnvAsList("WINDOWS", DefaultWindows),
			ExtremeMoveRatio:    getEnvAsFloat("EXTREME_MOVE_RATIO", 10),
			ReturnTrim:          getEnvAsFloat("RETURN_TRIM", 1.0),
			DividendCeiling:     getEnvAsFloat("DIVIDEND_CEILING", 1000),
			LookbackYears:       getEnvAsInt("LOOKBACK_YEARS", 11),
			FetchMaxAttempts:    getEnvAsInt("FETCH_MAX_ATTEMPTS", 3),
			FetchInitialBackoff: getEnvAsDuration("FETCH_INITIAL_BACKOFF", "1s"),
			FetchMaxBackoff:     getEnvAsDuration("FETCH_MAX_BACKOFF", "10s"),
			SymbolTimeout:       getEnvAsDuration("SYMBOL_TIMEOUT", "2m"),
			FailureSampleSize:   getEnvAsInt("FAILURE_SAMPLE_SIZE", 20),
			RequireCurrentPrice: getEnvAsBool("REQUIRE_CURRENT_PRICE", true),
			RequireBasicReturn:  getEnvAsBool("REQUIRE_BASIC_RETURN", true),
		},

		ScheduleCron: getEnv("SCHEDULE_CRON", "0 30 22 * * 1-5"),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}

	// Optional YAML overrides for pipeline numerics
	if path := os.Getenv("PIPELINE_CONFIG"); path != "" {
		if err := cfg.Pipeline.LoadFile(path); err != nil {
			return nil, fmt.Errorf("load pipeline config: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadFile overlays values from a YAML file.
// Unknown keys fail so that typos never silently fall back to defaults.
func (p *PipelineConfig) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(p); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// validate checks if required configuration values are set
func (c *Config) validate() error {
	switch c.Store.Backend {
	case StorePostgres:
		if c.Database.URL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres store")
		}
	case StoreSQLite:
		if c.Store.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required for the sqlite store")
		}
	default:
		return fmt.Errorf("STORE_BACKEND must be one of: postgres, sqlite")
	}

	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return fmt.Errorf("ENV must be one of: development, staging, production")
	}

	return c.Pipeline.Validate()
}

// Validate checks pipeline numerics
func (p *PipelineConfig) Validate() error {
	if p.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive, got %d", p.BatchSize)
	}
	if p.RateLimitDelay < 0 || p.BatchPause < 0 {
		return fmt.Errorf("delays must not be negative")
	}
	if p.MaxRetries <= 0 {
		return fmt.Errorf("max_retries must be positive, got %d", p.MaxRetries)
	}
	if p.Workers <= 0 || p.Workers > MaxWorkers {
		return fmt.Errorf("workers must be between 1 and %d, got %d", MaxWorkers, p.Workers)
	}
	if p.TradingDaysPerYear <= 0 {
		return fmt.Errorf("trading_days_per_year must be positive, got %d", p.TradingDaysPerYear)
	}
	if len(p.Windows) == 0 {
		return fmt.Errorf("at least one window is required")
	}
	if p.ExtremeMoveRatio <= 0 || p.ReturnTrim <= 0 || p.DividendCeiling <= 0 {
		return fmt.Errorf("extreme_move_ratio, return_trim and dividend_ceiling must be positive")
	}
	if p.FetchMaxAttempts <= 0 {
		return fmt.Errorf("fetch_max_attempts must be positive, got %d", p.FetchMaxAttempts)
	}
	if p.LookbackYears <= 0 {
		return fmt.Errorf("lookback_years must be positive, got %d", p.LookbackYears)
	}
	return nil
}

// Helper functions (private, only used within this file)

// loadEnvFile tries to load .env from multiple locations
func loadEnvFile() {
	paths := []string{".env"}

	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
		)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		// Fallback to default
		duration, _ = time.ParseDuration(defaultValue)
	}

	return duration
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return append([]string(nil), defaultValue...)
	}

	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
