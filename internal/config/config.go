// Package config loads runtime settings from the environment, after an
// optional .env file. Malformed numbers fail fast.
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration for the engine.
type Config struct {
	Port        string
	DatabaseURL string
	RedisURL    string // optional; push relay and presence stay in-process without it
	CORSOrigin  string
	AdminToken  string

	DailyQuota int

	// Referral rewards. Posters receive wallet credits, seekers extra daily quota.
	ReferrerCredits int64
	ReferrerQuota   int64
	ReferredCredits int64
	ReferredQuota   int64

	ReceiptTTL time.Duration

	SwipeRPS     float64
	SwipeBurst   int
	MessageRPS   float64
	MessageBurst int
}

// Load reads .env (if present) and the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading from environment")
	}

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: getEnv("DATABASE_URL", "sqlite://kiwiblue.db"),
		RedisURL:    getEnv("REDIS_URL", ""),
		CORSOrigin:  getEnv("CORS_ORIGIN", "*"),
		AdminToken:  getEnv("X_ADMIN_TOKEN", ""),
	}

	var err error
	if cfg.DailyQuota, err = getInt("DAILY_QUOTA", 20); err != nil {
		return nil, err
	}
	if cfg.ReferrerCredits, err = getInt64("REFERRER_CREDITS", 5); err != nil {
		return nil, err
	}
	if cfg.ReferrerQuota, err = getInt64("REFERRER_QUOTA", 5); err != nil {
		return nil, err
	}
	if cfg.ReferredCredits, err = getInt64("REFERRED_CREDITS", 3); err != nil {
		return nil, err
	}
	if cfg.ReferredQuota, err = getInt64("REFERRED_QUOTA", 3); err != nil {
		return nil, err
	}
	if cfg.ReceiptTTL, err = getDuration("RECEIPT_TTL", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.SwipeRPS, err = getFloat("SWIPE_RPS", 5); err != nil {
		return nil, err
	}
	if cfg.SwipeBurst, err = getInt("SWIPE_BURST", 10); err != nil {
		return nil, err
	}
	if cfg.MessageRPS, err = getFloat("MESSAGE_RPS", 2); err != nil {
		return nil, err
	}
	if cfg.MessageBurst, err = getInt("MESSAGE_BURST", 5); err != nil {
		return nil, err
	}

	if cfg.DailyQuota < 1 {
		return nil, fmt.Errorf("DAILY_QUOTA must be a positive integer, got %d", cfg.DailyQuota)
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	s, ok := os.LookupEnv(key)
	if !ok || s == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer, got %q", key, s)
	}
	return v, nil
}

func getInt64(key string, fallback int64) (int64, error) {
	v, err := getInt(key, int(fallback))
	return int64(v), err
}

func getFloat(key string, fallback float64) (float64, error) {
	s, ok := os.LookupEnv(key)
	if !ok || s == "" {
		return fallback, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("%s must be a positive number, got %q", key, s)
	}
	return v, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	s, ok := os.LookupEnv(key)
	if !ok || s == "" {
		return fallback, nil
	}
	v, err := time.ParseDuration(s)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("%s must be a positive duration, got %q", key, s)
	}
	return v, nil
}
