package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port        string
	DatabaseURL string

	AutoDepartThreshold time.Duration
	AutoDepartInterval  time.Duration

	RateLimitPerMinute       int
	RateLimitBurst           int
	MobileRateLimitPerMinute int
	MobileRateLimitBurst     int

	GeminiAPIKey string

	SeedAdminName     string
	SeedAdminMobile   string
	SeedAdminPassword string
}

func Load() Config {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	return Config{
		Port:        port,
		DatabaseURL: os.Getenv("DB_DSN"),

		AutoDepartThreshold: readDurationSeconds("AUTO_DEPART_THRESHOLD_SECONDS", 90*60),
		AutoDepartInterval:  readDurationSeconds("AUTO_DEPART_SCAN_INTERVAL_SECONDS", 60),

		RateLimitPerMinute:       readInt("RATE_LIMIT_PER_MIN", 120),
		RateLimitBurst:           readInt("RATE_LIMIT_BURST", 30),
		MobileRateLimitPerMinute: readInt("MOBILE_RATE_LIMIT_PER_MIN", 10),
		MobileRateLimitBurst:     readInt("MOBILE_RATE_LIMIT_BURST", 5),

		GeminiAPIKey: os.Getenv("GEMINI_API_KEY"),

		SeedAdminName:     readString("SEED_ADMIN_NAME", "Admin"),
		SeedAdminMobile:   os.Getenv("SEED_ADMIN_MOBILE"),
		SeedAdminPassword: os.Getenv("SEED_ADMIN_PASSWORD"),
	}
}

func readString(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func readDurationSeconds(key string, fallback int) time.Duration {
	value := readInt(key, fallback)
	if value <= 0 {
		return 0
	}
	return time.Duration(value) * time.Second
}

func readInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
