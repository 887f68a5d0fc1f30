package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const SweepDisabled = "off"

type Config struct {
	Port                  string
	AllowedOrigin         string
	DatabaseURL           string
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	StatusCacheTTLSeconds int
	AuthSecret            string
	AccessTokenTTLMinutes int
	BusinessTimezone      string
	EODSweepTime          string
	StatusRecentLimit     int
}

func Load() Config {
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))

	cfg := Config{
		Port:                  getEnv("PORT", "8080"),
		AllowedOrigin:         getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		RedisAddr:             os.Getenv("REDIS_ADDR"),
		RedisPassword:         os.Getenv("REDIS_PASSWORD"),
		RedisDB:               redisDB,
		StatusCacheTTLSeconds: getPositiveInt("STATUS_CACHE_TTL_SECONDS", 15),
		AuthSecret:            strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes: getPositiveInt("ACCESS_TOKEN_TTL_MINUTES", 480),
		BusinessTimezone:      strings.TrimSpace(getEnv("BUSINESS_TIMEZONE", "UTC")),
		EODSweepTime:          strings.ToLower(strings.TrimSpace(getEnv("EOD_SWEEP_TIME", "03:00"))),
		StatusRecentLimit:     getPositiveInt("STATUS_RECENT_LIMIT", 10),
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.BusinessTimezone)
	if err != nil {
		return nil, fmt.Errorf("BUSINESS_TIMEZONE %q: %w", c.BusinessTimezone, err)
	}
	return loc, nil
}

// SweepTime parses EOD_SWEEP_TIME as HH:MM. enabled is false for "off".
func (c Config) SweepTime() (hour int, minute int, enabled bool, err error) {
	if c.EODSweepTime == SweepDisabled {
		return 0, 0, false, nil
	}
	at, err := time.Parse("15:04", c.EODSweepTime)
	if err != nil {
		return 0, 0, false, fmt.Errorf("EOD_SWEEP_TIME %q must be HH:MM or %q", c.EODSweepTime, SweepDisabled)
	}
	return at.Hour(), at.Minute(), true, nil
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func getPositiveInt(key string, fallback int) int {
	val, err := strconv.Atoi(getEnv(key, strconv.Itoa(fallback)))
	if err != nil || val < 1 {
		return fallback
	}
	return val
}
