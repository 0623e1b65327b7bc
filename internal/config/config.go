package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DBDSN          string
	RedisAddr      string
	HTTPAddr       string
	JWTSecret      string
	SMSAPIURL      string
	SMSAPIKey      string
	SMSFrom        string
	Environment    string
	HoldTTL        time.Duration
	ResendCooldown time.Duration
	SweepInterval  time.Duration
	NotifyInterval time.Duration
}

func Load() (*Config, error) {
	// Пытаемся загрузить .env файл (игнорируем ошибку, если файла нет)
	if err := godotenv.Load(".env"); err != nil {
		log.Println("⚠️  No .env file found, using environment variables")
	} else {
		log.Println("✅ Loaded configuration from .env file")
	}

	cfg := &Config{
		DBDSN:       os.Getenv("DB_DSN"),
		RedisAddr:   os.Getenv("REDIS_ADDR"),
		HTTPAddr:    os.Getenv("HTTP_ADDR"),
		JWTSecret:   os.Getenv("JWT_SECRET"),
		SMSAPIURL:   os.Getenv("SMS_API_URL"),
		SMSAPIKey:   os.Getenv("SMS_API_KEY"),
		SMSFrom:     os.Getenv("SMS_FROM"),
		Environment: os.Getenv("ENV"),
	}

	// Дефолтные значения
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8080"
	}
	if cfg.RedisAddr == "" {
		cfg.RedisAddr = "localhost:6379"
	}

	var err error
	if cfg.HoldTTL, err = durationEnv("HOLD_TTL", 10*time.Minute); err != nil {
		return nil, err
	}
	if cfg.ResendCooldown, err = durationEnv("RESEND_COOLDOWN", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.SweepInterval, err = durationEnv("SWEEP_INTERVAL", time.Minute); err != nil {
		return nil, err
	}
	if cfg.NotifyInterval, err = durationEnv("NOTIFY_RETRY_INTERVAL", 5*time.Minute); err != nil {
		return nil, err
	}

	// Обязательные поля
	if cfg.DBDSN == "" {
		return nil, fmt.Errorf("DB_DSN is required but not set")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required but not set")
	}
	if cfg.SMSAPIURL == "" {
		return nil, fmt.Errorf("SMS_API_URL is required but not set")
	}

	log.Printf("Config loaded\n")

	return cfg, nil
}

// durationEnv читает duration из окружения или возвращает дефолт
func durationEnv(key string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, raw, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s: duration must be positive", key)
	}
	return d, nil
}
