package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port           string
	Environment    string
	AllowedOrigins []string
	JWTSecret      string
	Redis          RedisConfig
	Room           RoomConfig
	Limits         LimitConfig
	Batch          BatchConfig
	Whiteboard     WhiteboardConfig
	CleanupTimeout time.Duration
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// RoomConfig bounds room membership and the lifetime of cached
// per-room state.
type RoomConfig struct {
	Capacity int
	StateTTL time.Duration
}

// LimitConfig carries per-connection message rate and size ceilings.
type LimitConfig struct {
	RateCeiling    int
	RateWindow     time.Duration
	MaxMessage     int64
	MaxDraw        int64
	MaxObject      int64
	MaxImageObject int64
}

// BatchConfig tunes ICE candidate batching and state replay pacing.
type BatchConfig struct {
	Threshold     int
	FlushInterval time.Duration
	MaxPerFlush   int
	ReplayPace    time.Duration
}

type WhiteboardConfig struct {
	TTL time.Duration
}

func Load() *Config {
	// Parse allowed origins (comma-separated)
	originsStr := getEnv("ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173")
	origins := strings.Split(originsStr, ",")

	return &Config{
		Port:           getEnv("PORT", "8080"),
		Environment:    getEnv("ENVIRONMENT", "development"),
		AllowedOrigins: origins,
		JWTSecret:      getEnv("JWT_SECRET", "change-me-in-production"),
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       0,
		},
		Room: RoomConfig{
			Capacity: getEnvInt("ROOM_CAPACITY", 20),
			StateTTL: getEnvDuration("ROOM_STATE_TTL", 24*time.Hour),
		},
		Limits: LimitConfig{
			RateCeiling:    getEnvInt("RATE_LIMIT_PER_SECOND", 30),
			RateWindow:     getEnvDuration("RATE_LIMIT_WINDOW", time.Second),
			MaxMessage:     getEnvInt64("MAX_MESSAGE_BYTES", 100*1024),
			MaxDraw:        getEnvInt64("MAX_DRAW_BYTES", 2*1024*1024),
			MaxObject:      getEnvInt64("MAX_OBJECT_BYTES", 5*1024*1024),
			MaxImageObject: getEnvInt64("MAX_IMAGE_OBJECT_BYTES", 10*1024*1024),
		},
		Batch: BatchConfig{
			Threshold:     getEnvInt("ICE_BATCH_THRESHOLD", 15),
			FlushInterval: getEnvDuration("ICE_FLUSH_INTERVAL", 100*time.Millisecond),
			MaxPerFlush:   getEnvInt("ICE_MAX_PER_FLUSH", 30),
			ReplayPace:    getEnvDuration("REPLAY_PACE", 20*time.Millisecond),
		},
		Whiteboard: WhiteboardConfig{
			TTL: getEnvDuration("WHITEBOARD_TTL", 24*time.Hour),
		},
		CleanupTimeout: getEnvDuration("CLEANUP_STEP_TIMEOUT", 500*time.Millisecond),
	}
}

func getEnv(key, defaultValue string) string {
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

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
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
