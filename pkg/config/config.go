package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
// ⭐ SSOT: 모든 환경변수는 여기서만 읽음
type Config struct {
	// Server
	Port string
	Env  string // development, staging, production

	// Time series store
	Store StoreConfig

	// Database
	Database DatabaseConfig

	// Redis
	Redis RedisConfig

	// Cache (TimeSeriesStore 전용)
	Cache CacheConfig

	// Scoring models
	ModelsFile string

	// Consensus aggregation
	Aggregator AggregatorConfig

	// Scheduled consensus snapshot
	Scheduler SchedulerConfig

	// API
	API APIConfig

	// Logging
	LogLevel  string
	LogFormat string

	// Monitoring
	MetricsEnabled bool
}

// StoreConfig selects the time series backend
type StoreConfig struct {
	Driver     string // postgres, sqlite, memory
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

	// 장기 실행 쿼리 차단 (0 = 서버 기본값)
	StatementTimeout time.Duration

	// Connection Pool
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// CacheConfig holds time series cache configuration
type CacheConfig struct {
	TTL        time.Duration
	MaxEntries int
}

// AggregatorConfig holds consensus aggregation settings
type AggregatorConfig struct {
	Workers            int
	StrongRatio        float64 // strong 판정 비율 (분석 모델 수 대비)
	Lookback           int     // 캘린더 일수
	BreakerMaxFailures int     // 연속 패닉 시 모델 차단
}

// SchedulerConfig holds the consensus job configuration
type SchedulerConfig struct {
	ConsensusSchedule string
	OutputDir         string
	MinConfirmation   int
}

// APIConfig holds HTTP API limits
type APIConfig struct {
	RateLimit float64 // requests per second
	RateBurst int
}

// Load reads configuration from environment variables
// ⭐ SSOT: 이 함수만 os.Getenv()를 호출함
func Load() (*Config, error) {
	// Try multiple paths for .env file
	loadEnvFile()

	cfg := &Config{
		// Server
		Port: getEnv("PORT", "8080"),
		Env:  getEnv("ENV", "development"),

		Store: StoreConfig{
			Driver:     getEnv("STORE_DRIVER", "postgres"),
			SQLitePath: getEnv("SQLITE_PATH", "data/screener.db"),
		},

		// Database
		Database: DatabaseConfig{
			URL:              getEnv("DATABASE_URL", ""),
			StatementTimeout: getEnvAsDuration("DB_STATEMENT_TIMEOUT", "30s"),
			MaxConns:         getEnvAsInt("DB_MAX_CONNS", 25),
			MinConns:         getEnvAsInt("DB_MIN_CONNS", 5),
			MaxConnLifetime:  getEnvAsDuration("DB_MAX_CONN_LIFETIME", "1h"),
			MaxConnIdleTime:  getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", "30m"),
		},

		// Redis
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
		},

		Cache: CacheConfig{
			TTL:        getEnvAsDuration("CACHE_TTL", "10m"),
			MaxEntries: getEnvAsInt("CACHE_MAX_ENTRIES", 5000),
		},

		ModelsFile: getEnv("MODELS_FILE", "config/models.yaml"),

		Aggregator: AggregatorConfig{
			Workers:            getEnvAsInt("AGGREGATOR_WORKERS", 8),
			StrongRatio:        getEnvAsFloat("STRONG_RATIO", 0.6),
			Lookback:           getEnvAsInt("AGGREGATOR_LOOKBACK_DAYS", 400),
			BreakerMaxFailures: getEnvAsInt("BREAKER_MAX_FAILURES", 5),
		},

		Scheduler: SchedulerConfig{
			ConsensusSchedule: getEnv("CONSENSUS_SCHEDULE", "0 30 18 * * 1-5"),
			OutputDir:         getEnv("CONSENSUS_OUTPUT_DIR", "out/consensus"),
			MinConfirmation:   getEnvAsInt("CONSENSUS_MIN_CONFIRMATION", 2),
		},

		API: APIConfig{
			RateLimit: getEnvAsFloat("API_RATE_LIMIT", 5),
			RateBurst: getEnvAsInt("API_RATE_BURST", 10),
		},

		// Logging
		LogLevel:  getEnv("LOG_LEVEL", "debug"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		// Monitoring
		MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
	}

	// Validate configuration
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate checks if required configuration values are set
func (c *Config) validate() error {
	switch c.Store.Driver {
	case "postgres":
		// Database URL is required
		if c.Database.URL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_DRIVER=postgres")
		}
	case "sqlite":
		if c.Store.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required when STORE_DRIVER=sqlite")
		}
	case "memory":
	default:
		return fmt.Errorf("STORE_DRIVER must be one of: postgres, sqlite, memory")
	}

	// Validate environment
	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return fmt.Errorf("ENV must be one of: development, staging, production")
	}

	if c.Aggregator.Workers <= 0 {
		return fmt.Errorf("AGGREGATOR_WORKERS must be > 0")
	}
	if c.Aggregator.StrongRatio <= 0 || c.Aggregator.StrongRatio > 1 {
		return fmt.Errorf("STRONG_RATIO must be in (0, 1]")
	}

	return nil
}

// Helper functions (private, only used within this file)

// loadEnvFile tries to load .env from multiple locations
func loadEnvFile() {
	// Try paths in order of priority
	paths := []string{
		".env", // Current directory
	}

	// Also try relative to executable
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
