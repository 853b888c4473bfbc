package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config хранит все настройки процесса игрока
type Config struct {
	AppPort     string
	RedisURL    string
	DatabaseURL string // опционально: история матчей пишется только если задан

	RoomID        string
	MatchDuration time.Duration

	LogLevel  string
	LogFormat string
}

// Load читает .env (если есть) и переменные окружения
func Load() *Config {
	// .env нужен только для локальной разработки, в проде его нет
	_ = godotenv.Load()

	cfg := &Config{
		AppPort:       getEnv("APP_PORT", "8080"),
		RedisURL:      getEnv("REDIS_URL", "redis://localhost:6379/0"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		RoomID:        getEnv("ROOM_ID", "lobby"),
		MatchDuration: getDuration("MATCH_DURATION", 3*time.Minute),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFormat:     getEnv("LOG_FORMAT", "text"),
	}

	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		return d
	}
	// допускаем и просто число секунд
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return fallback
}
