package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	ServerPort int

	StoreDriver      string
	DBDriver         string
	DBDataSourceName string
	MigrationsDir    string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	NatsURL string

	AutoCloseInterval     time.Duration
	SeasonAdvanceInterval time.Duration
	SeasonIncreaseRate    decimal.Decimal
	DeadlineLeadDays      int

	SectionCacheTTL time.Duration
	TxMaxRetries    int
	SweepWorkers    int
}

func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		fmt.Println("Warning: Could not load .env file")
	}

	config := &Config{}

	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.ServerPort = p
		}
	}
	if config.ServerPort == 0 {
		config.ServerPort = 8044
	}

	config.StoreDriver = getEnvOrDefault("BIDDING_STORE_DRIVER", "postgres")
	config.DBDriver = "postgres"

	dbHost := getEnvOrDefault("BIDDING_DB_HOST", "localhost")
	dbPort := getEnvOrDefault("BIDDING_DB_PORT", "5432")
	dbName := getEnvOrDefault("BIDDING_DB_DATABASE", "sectionsDB")
	dbUser := getEnvOrDefault("BIDDING_DB_USERNAME", "root")
	dbPassword := getEnvOrDefault("BIDDING_DB_PASSWORD", "1234")

	config.DBDataSourceName = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		dbUser, dbPassword, dbHost, dbPort, dbName)
	config.MigrationsDir = getEnvOrDefault("MIGRATIONS_DIR", "migrations")

	redisHost := getEnvOrDefault("BIDDING_REDIS_HOST", "localhost")
	redisPort := getEnvOrDefault("BIDDING_REDIS_PORT", "6379")
	config.RedisAddr = fmt.Sprintf("%s:%s", redisHost, redisPort)
	config.RedisPassword = os.Getenv("BIDDING_REDIS_PASSWORD")
	config.RedisDB = getEnvInt("BIDDING_REDIS_DB", 0)

	config.NatsURL = getEnvOrDefault("BIDDING_NATS_URL", "")

	config.AutoCloseInterval = getEnvDuration("BIDDING_AUTOCLOSE_INTERVAL", 24*time.Hour)
	config.SeasonAdvanceInterval = getEnvDuration("BIDDING_SEASON_INTERVAL", 60*24*time.Hour)
	config.DeadlineLeadDays = getEnvInt("BIDDING_DEADLINE_LEAD_DAYS", 2)

	rate, err := decimal.NewFromString(getEnvOrDefault("BIDDING_SEASON_RATE", "0.02"))
	if err != nil {
		return nil, fmt.Errorf("invalid BIDDING_SEASON_RATE: %w", err)
	}
	config.SeasonIncreaseRate = rate

	config.SectionCacheTTL = getEnvDuration("BIDDING_SECTION_CACHE_TTL", 30*time.Second)
	config.TxMaxRetries = getEnvInt("BIDDING_TX_MAX_RETRIES", 3)
	config.SweepWorkers = getEnvInt("BIDDING_SWEEP_WORKERS", 4)

	return config, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
