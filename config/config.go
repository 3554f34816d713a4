package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DefaultAllowedOrigins are the web front-ends allowed to call the API when
// CORS_ALLOWED_ORIGINS is not set.
var DefaultAllowedOrigins = []string{
	"https://calybase.web.app",
	"https://calybase.firebaseapp.com",
	"https://calybase.vercel.app",
	"https://caly-base.vercel.app",
	"http://localhost:3000",
	"http://localhost:3001",
	"http://localhost:5000",
}

type Config struct {
	Server    ServerConfig
	App       AppConfig
	Firebase  FirebaseConfig
	Redis     RedisConfig
	CORS      CORSConfig
	RateLimit RateLimitConfig
	Audit     AuditConfig
	Auth      AuthConfig
	Import    ImportConfig
	Worker    WorkerConfig
}

type ServerConfig struct {
	Port            string
	ShutdownTimeout time.Duration
}

type AppConfig struct {
	Environment string
	LogLevel    string
	Version     string
}

type FirebaseConfig struct {
	ProjectID       string
	CredentialsPath string
	StorageBucket   string
}

type RedisConfig struct {
	Addr           string
	Password       string
	DB             int
	ConfigCacheTTL time.Duration
}

// Enabled reports whether a Redis address was configured.
func (r RedisConfig) Enabled() bool {
	return r.Addr != ""
}

type CORSConfig struct {
	AllowedOrigins []string
}

type RateLimitConfig struct {
	// Formatted rate, e.g. "100-M". Empty disables limiting.
	Rate string
}

type AuditConfig struct {
	Store         string // "firestore" or "postgres"
	PostgresDSN   string
	BufferSize    int
	FlushInterval time.Duration
	MaxBuffered   int
}

type AuthConfig struct {
	ReadyTimeout time.Duration
}

type ImportConfig struct {
	BatchSize        int
	BatchesPerSecond float64
}

type WorkerConfig struct {
	ReconcileSchedule string
	ArchiveSchedule   string
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error in production)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnv("PORT", "8080"),
			ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		App: AppConfig{
			Environment: getEnv("APP_ENV", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
			Version:     getEnv("APP_VERSION", "1.1.1"),
		},
		Firebase: FirebaseConfig{
			ProjectID:       getEnv("FIREBASE_PROJECT_ID", ""),
			CredentialsPath: getEnv("FIREBASE_CREDENTIALS_PATH", ""),
			StorageBucket:   getEnv("FIREBASE_STORAGE_BUCKET", ""),
		},
		Redis: RedisConfig{
			Addr:           getEnv("REDIS_ADDR", ""),
			Password:       getEnv("REDIS_PASSWORD", ""),
			DB:             getEnvAsInt("REDIS_DB", 0),
			ConfigCacheTTL: getEnvAsDuration("CONFIG_CACHE_TTL", time.Minute),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", DefaultAllowedOrigins),
		},
		RateLimit: RateLimitConfig{
			Rate: getEnv("RATE_LIMIT", "300-M"),
		},
		Audit: AuditConfig{
			Store:         getEnv("AUDIT_STORE", "firestore"),
			PostgresDSN:   getEnv("AUDIT_PG_DSN", ""),
			BufferSize:    getEnvAsInt("AUDIT_BUFFER_SIZE", 10),
			FlushInterval: getEnvAsDuration("AUDIT_FLUSH_INTERVAL", 5*time.Second),
			MaxBuffered:   getEnvAsInt("AUDIT_MAX_BUFFERED", 1000),
		},
		Auth: AuthConfig{
			ReadyTimeout: getEnvAsDuration("AUTH_READY_TIMEOUT", 3*time.Second),
		},
		Import: ImportConfig{
			BatchSize:        getEnvAsInt("IMPORT_BATCH_SIZE", 400),
			BatchesPerSecond: getEnvAsFloat("IMPORT_BATCHES_PER_SECOND", 2),
		},
		Worker: WorkerConfig{
			ReconcileSchedule: getEnv("RECONCILE_SCHEDULE", "0 0 * * * *"),
			ArchiveSchedule:   getEnv("ARCHIVE_SCHEDULE", "0 30 0 * * *"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("PORT is required")
	}

	switch c.Audit.Store {
	case "firestore":
	case "postgres":
		if c.Audit.PostgresDSN == "" {
			return fmt.Errorf("AUDIT_PG_DSN is required when AUDIT_STORE=postgres")
		}
	default:
		return fmt.Errorf("AUDIT_STORE must be firestore or postgres, got %q", c.Audit.Store)
	}

	if c.Audit.BufferSize <= 0 {
		return fmt.Errorf("AUDIT_BUFFER_SIZE must be positive")
	}
	if c.Audit.MaxBuffered < c.Audit.BufferSize {
		return fmt.Errorf("AUDIT_MAX_BUFFERED must be at least AUDIT_BUFFER_SIZE")
	}
	if c.Import.BatchSize <= 0 || c.Import.BatchSize > 500 {
		return fmt.Errorf("IMPORT_BATCH_SIZE must be between 1 and 500")
	}

	return nil
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
		log.Printf("Warning: Invalid integer for %s, using default: %d", key, defaultValue)
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
		log.Printf("Warning: Invalid number for %s, using default: %v", key, defaultValue)
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		log.Printf("Warning: Invalid duration for %s, using default: %s", key, defaultValue)
		return defaultValue
	}

	return value
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	var out []string
	for _, v := range strings.Split(valueStr, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
