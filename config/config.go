package config

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DB is the global PostgreSQL database connection.
var DB *gorm.DB

// Rdb is the global Redis client.
var Rdb *redis.Client

type Config struct {
	Port string
	Env  string

	DBHost     string
	DBUser     string
	DBPassword string
	DBName     string
	DBPort     string
	DBSSLMode  string
	DBTimeZone string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	JWTSecret  string
	SessionTTL time.Duration
	RefreshTTL time.Duration

	FinnhubURL    string
	FinnhubAPIKey string
	QuoteCacheTTL time.Duration

	InitialDeposit  decimal.Decimal
	HistoryPageSize int

	KafkaBrokers []string
	KafkaTopic   string

	SnapshotRetention time.Duration
	RetentionSchedule string
}

func Load() *Config {
	return &Config{
		Port: GetString("PORT", "8080"),
		Env:  GetString("APP_ENV", "development"),

		DBHost:     GetString("DB_HOST", "localhost"),
		DBUser:     GetString("DB_USER", "postgres"),
		DBPassword: GetString("DB_PASSWORD", "postgres"),
		DBName:     GetString("DB_NAME", "finance"),
		DBPort:     GetString("DB_PORT", "5432"),
		DBSSLMode:  GetString("DB_SSLMODE", "disable"),
		DBTimeZone: GetString("DB_TIMEZONE", "UTC"),

		RedisAddr:     GetString("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword: GetString("REDIS_PASSWORD", ""),
		RedisDB:       GetInt("REDIS_DB", 0),

		JWTSecret:  GetString("JWT_SECRET", ""),
		SessionTTL: GetDuration("SESSION_TTL", 24*time.Hour),
		RefreshTTL: GetDuration("REFRESH_TTL", 7*24*time.Hour),

		FinnhubURL:    GetString("FINNHUB_URL", "https://finnhub.io/api/v1"),
		FinnhubAPIKey: GetString("FINNHUB_API_KEY", ""),
		QuoteCacheTTL: GetDuration("QUOTE_CACHE_TTL", 15*time.Second),

		InitialDeposit:  GetDecimal("INITIAL_DEPOSIT", decimal.NewFromInt(10000)),
		HistoryPageSize: GetInt("HISTORY_PAGE_SIZE", 10),

		KafkaBrokers: GetSlice("KAFKA_BROKERS", nil),
		KafkaTopic:   GetString("KAFKA_TOPIC", "finance.trades"),

		SnapshotRetention: GetDuration("SNAPSHOT_RETENTION", 30*24*time.Hour),
		RetentionSchedule: GetString("RETENTION_SCHEDULE", "@daily"),
	}
}

// Validate reports settings the server cannot start without.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.HistoryPageSize <= 0 {
		return fmt.Errorf("HISTORY_PAGE_SIZE must be positive, got %d", c.HistoryPageSize)
	}
	if !c.InitialDeposit.IsPositive() {
		return fmt.Errorf("INITIAL_DEPOSIT must be positive, got %s", c.InitialDeposit)
	}
	return nil
}

func (c *Config) IsDevelopment() bool { return c.Env == "development" }

func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=%s",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort, c.DBSSLMode, c.DBTimeZone)
}

// NewGormLogger logs slow queries and errors, plus every statement in
// development. Expected misses (gorm.ErrRecordNotFound) are not logged.
func NewGormLogger(w logger.Writer, development bool) logger.Interface {
	level := logger.Warn
	if development {
		level = logger.Info
	}
	return logger.New(w, logger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  level,
		IgnoreRecordNotFoundError: true,
		Colorful:                  development,
	})
}

func InitDB(cfg *Config) error {
	var err error
	DB, err = gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger:         NewGormLogger(log.New(os.Stdout, "\r\n", log.LstdFlags), cfg.IsDevelopment()),
		TranslateError: true,
	})
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	slog.Info("Connected to PostgreSQL", "host", cfg.DBHost, "db", cfg.DBName)
	return nil
}

// InitRedis initializes the Redis connection.
func InitRedis(ctx context.Context, cfg *Config) error {
	Rdb = redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	if err := Rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("connect to redis: %w", err)
	}
	slog.Info("Connected to Redis", "addr", cfg.RedisAddr)
	return nil
}

func GetString(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func GetInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
		slog.Warn("Ignoring malformed integer setting", "key", key, "value", value)
	}
	return defaultVal
}

func GetDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
		slog.Warn("Ignoring malformed duration setting", "key", key, "value", value)
	}
	return defaultVal
}

func GetDecimal(key string, defaultVal decimal.Decimal) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		if dec, err := decimal.NewFromString(value); err == nil {
			return dec
		}
		slog.Warn("Ignoring malformed decimal setting", "key", key, "value", value)
	}
	return defaultVal
}

func GetSlice(key string, defaultVal []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := parts[:0]
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return defaultVal
}
