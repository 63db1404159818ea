package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"tillclose/backend/internal/domain"
)

type Config struct {
	Port                   string
	AllowedOrigin          string
	DatabaseURL            string
	RedisAddr              string
	RedisPassword          string
	RedisDB                int
	StoreID                string
	AuthSecret             string
	AccessTokenTTLMinutes  int
	ManagerPIN             string
	BusinessTimezone       string
	FinalizeTimeoutSeconds int
	ZIGPerUSD              string
	RandPerUSD             string
	LogoutWebhookURL       string
	LogLevel               string
}

// Load reads the process environment. A .env file in the working directory
// is applied first when present; variables already set win over it.
func Load() Config {
	_ = godotenv.Load()

	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	tokenTTL, err := strconv.Atoi(getEnv("ACCESS_TOKEN_TTL_MINUTES", "480"))
	if err != nil || tokenTTL < 1 {
		tokenTTL = 480
	}
	finalizeTimeout, err := strconv.Atoi(getEnv("FINALIZE_TIMEOUT_SECONDS", "120"))
	if err != nil || finalizeTimeout < 1 {
		finalizeTimeout = 120
	}

	return Config{
		Port:                   getEnv("PORT", "8080"),
		AllowedOrigin:          getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:            os.Getenv("DATABASE_URL"),
		RedisAddr:              os.Getenv("REDIS_ADDR"),
		RedisPassword:          os.Getenv("REDIS_PASSWORD"),
		RedisDB:                redisDB,
		StoreID:                getEnv("DEFAULT_STORE_ID", "main-store"),
		AuthSecret:             strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes:  tokenTTL,
		ManagerPIN:             strings.TrimSpace(os.Getenv("MANAGER_PIN")),
		BusinessTimezone:       getEnv("BUSINESS_TIMEZONE", "UTC"),
		FinalizeTimeoutSeconds: finalizeTimeout,
		ZIGPerUSD:              strings.TrimSpace(os.Getenv("ZIG_PER_USD")),
		RandPerUSD:             strings.TrimSpace(os.Getenv("RAND_PER_USD")),
		LogoutWebhookURL:       strings.TrimSpace(os.Getenv("LOGOUT_WEBHOOK_URL")),
		LogLevel:               getEnv("LOG_LEVEL", "info"),
	}
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

func (c Config) FinalizeTimeout() time.Duration {
	return time.Duration(c.FinalizeTimeoutSeconds) * time.Second
}

// Rates parses the conversion table. Unset rates stay zero, which keeps the
// variance on the native basis for that currency.
func (c Config) Rates() (domain.RateTable, error) {
	var rates domain.RateTable
	for _, r := range []struct {
		name  string
		value string
		dst   *decimal.Decimal
	}{
		{"ZIG_PER_USD", c.ZIGPerUSD, &rates.ZIGPerUSD},
		{"RAND_PER_USD", c.RandPerUSD, &rates.RandPerUSD},
	} {
		if r.value == "" {
			continue
		}
		v, err := decimal.NewFromString(r.value)
		if err != nil || !v.IsPositive() {
			return domain.RateTable{}, fmt.Errorf("%s must be a positive number, got %q", r.name, r.value)
		}
		*r.dst = v
	}
	return rates, nil
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}
