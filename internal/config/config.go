// Package config reads the server configuration from the environment.
package config

import (
	"errors"
	"os"
	"strconv"
	"time"
)

type StorageBackend string

const (
	StorageMemory   StorageBackend = "memory"
	StoragePostgres StorageBackend = "postgres"
)

type Config struct {
	Port string

	Storage StorageBackend
	DBURL   string

	NATSURL      string
	NATSCred     string
	NATSUser     string
	NATSPassword string

	RedisURL string

	JWTSecret             string
	JWTIssuer             string
	AccessTokenTTL        time.Duration
	ProviderJWTSecret     string
	AllowedOrigin         string
	HTTPRequestsPerMinute int

	Chat ChatConfig
}

type ChatConfig struct {
	MaxGroupSize      int
	MinGroupSize      int
	FlagThreshold     int
	HistoryLimit      int
	WaitTimeout       time.Duration
	ResumeGrace       time.Duration
	MessagesPerMinute int
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getIntEnv(key string, def int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil || v <= 0 {
		return def
	}
	return v
}

func getDurationEnv(key string, def time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(key))
	if err != nil || v <= 0 {
		return def
	}
	return v
}

// Load reads all env vars and builds the config. Call godotenv.Load first if
// a .env file should be honoured.
func Load() (*Config, error) {
	cfg := &Config{
		Port: getEnv("PORT", "8080"),

		DBURL: os.Getenv("DB_URL"),

		NATSURL:      os.Getenv("NATS_URL"),
		NATSCred:     os.Getenv("NATS_CRED"),
		NATSUser:     os.Getenv("NATS_USER"),
		NATSPassword: os.Getenv("NATS_PASSWORD"),

		RedisURL: os.Getenv("REDIS_URL"),

		JWTSecret:             os.Getenv("JWT_SECRET"),
		JWTIssuer:             getEnv("JWT_ISS", "haven"),
		AccessTokenTTL:        getDurationEnv("ACCESS_TOKEN_TTL", time.Hour),
		ProviderJWTSecret:     os.Getenv("AUTH_PROVIDER_JWT_SECRET"),
		AllowedOrigin:         getEnv("ALLOWED_ORIGIN", "*"),
		HTTPRequestsPerMinute: getIntEnv("HTTP_RATE", 120),

		Chat: ChatConfig{
			MaxGroupSize:      getIntEnv("CHAT_MAX_GROUP_SIZE", 5),
			MinGroupSize:      getIntEnv("CHAT_MIN_GROUP_SIZE", 2),
			FlagThreshold:     getIntEnv("CHAT_FLAG_THRESHOLD", 3),
			HistoryLimit:      getIntEnv("CHAT_HISTORY_LIMIT", 50),
			WaitTimeout:       getDurationEnv("CHAT_WAIT_TIMEOUT", 10*time.Minute),
			ResumeGrace:       getDurationEnv("CHAT_RESUME_GRACE", 30*time.Second),
			MessagesPerMinute: getIntEnv("CHAT_MESSAGE_RATE", 30),
		},
	}

	switch getEnv("STORAGE_BACKEND", "") {
	case string(StoragePostgres):
		cfg.Storage = StoragePostgres
	case string(StorageMemory):
		cfg.Storage = StorageMemory
	default:
		if cfg.DBURL != "" {
			cfg.Storage = StoragePostgres
		} else {
			cfg.Storage = StorageMemory
		}
	}

	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET environment variable is not set")
	}
	if cfg.Storage == StoragePostgres && cfg.DBURL == "" {
		return nil, errors.New("DB_URL environment variable is not set")
	}
	if cfg.Chat.MinGroupSize > cfg.Chat.MaxGroupSize {
		return nil, errors.New("CHAT_MIN_GROUP_SIZE must not exceed CHAT_MAX_GROUP_SIZE")
	}

	return cfg, nil
}
