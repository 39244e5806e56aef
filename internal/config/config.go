package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Port                      string
	AllowedOrigin             string
	DatabaseURL               string
	RedisAddr                 string
	RedisPassword             string
	RedisDB                   int
	AuthSecret                string
	AccessTokenTTLMinutes     int
	StripeSecretKey           string
	StripeWebhookSecret       string
	PaymentsSimulated         bool
	Currency                  string
	FeeRate                   string
	FeeFixedCents             int64
	GatewayTimeoutSeconds     int
	CatalogCacheTTLSeconds    int
	SessionTTLMinutes         int
	VoidWindowHours           int
	KafkaBrokers              string
	SummaryTopic              string
	SummaryJobIntervalMinutes int
	DefaultTimezone           string
}

// Load reads the environment, after merging a .env file from the working
// directory when one exists. Variables already set win over the file.
func Load() Config {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("[config] WARN could not read .env: %v", err)
	}

	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	feeFixed, err := strconv.ParseInt(getEnv("PAYMENT_FEE_FIXED_CENTS", "5"), 10, 64)
	if err != nil || feeFixed < 0 {
		feeFixed = 5
	}

	cfg := Config{
		Port:                      getEnv("PORT", "8080"),
		AllowedOrigin:             getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:               os.Getenv("DATABASE_URL"),
		RedisAddr:                 os.Getenv("REDIS_ADDR"),
		RedisPassword:             os.Getenv("REDIS_PASSWORD"),
		RedisDB:                   redisDB,
		AuthSecret:                strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes:     positiveInt("ACCESS_TOKEN_TTL_MINUTES", 480),
		StripeSecretKey:           strings.TrimSpace(os.Getenv("STRIPE_SECRET_KEY")),
		StripeWebhookSecret:       strings.TrimSpace(os.Getenv("STRIPE_WEBHOOK_SECRET")),
		PaymentsSimulated:         boolEnv("PAYMENTS_SIMULATED"),
		Currency:                  strings.ToLower(getEnv("CURRENCY", "usd")),
		FeeRate:                   getEnv("PAYMENT_FEE_RATE", "0.002"),
		FeeFixedCents:             feeFixed,
		GatewayTimeoutSeconds:     positiveInt("GATEWAY_TIMEOUT_SECONDS", 15),
		CatalogCacheTTLSeconds:    positiveInt("CATALOG_CACHE_TTL_SECONDS", 60),
		SessionTTLMinutes:         positiveInt("CHECKOUT_SESSION_TTL_MINUTES", 120),
		VoidWindowHours:           positiveInt("VOID_WINDOW_HOURS", 24),
		KafkaBrokers:              os.Getenv("KAFKA_BROKERS"),
		SummaryTopic:              getEnv("SUMMARY_TOPIC", "pos.daily-summaries"),
		SummaryJobIntervalMinutes: positiveInt("SUMMARY_JOB_INTERVAL_MINUTES", 60),
		DefaultTimezone:           strings.TrimSpace(getEnv("DEFAULT_TIMEZONE", "UTC")),
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func positiveInt(key string, fallback int) int {
	v, err := strconv.Atoi(getEnv(key, strconv.Itoa(fallback)))
	if err != nil || v < 1 {
		return fallback
	}
	return v
}

func boolEnv(key string) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(key)))
	return err == nil && v
}
