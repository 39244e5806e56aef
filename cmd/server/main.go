package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"tillpoint/backend/internal/cache"
	"tillpoint/backend/internal/catalog"
	"tillpoint/backend/internal/checkout"
	"tillpoint/backend/internal/config"
	"tillpoint/backend/internal/gateway"
	"tillpoint/backend/internal/httpapi"
	"tillpoint/backend/internal/ledger"
	"tillpoint/backend/internal/metrics"
	"tillpoint/backend/internal/money"
	"tillpoint/backend/internal/notify"
	"tillpoint/backend/internal/report"
	"tillpoint/backend/internal/restriction"
	"tillpoint/backend/internal/service"
	"tillpoint/backend/internal/shift"
	"tillpoint/backend/internal/store"
	"tillpoint/backend/internal/store/memory"
	pgstore "tillpoint/backend/internal/store/postgres"
)

func main() {
	cfg := config.Load()
	if err := validateSecurityConfig(cfg); err != nil {
		log.Fatalf("invalid security configuration: %v", err)
	}
	checkoutCfg, err := checkoutConfig(cfg)
	if err != nil {
		log.Fatalf("invalid payment configuration: %v", err)
	}
	if err := restriction.SetDefaultLocation(cfg.DefaultTimezone); err != nil {
		log.Fatalf("invalid DEFAULT_TIMEZONE: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 3)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("postgres unavailable (%v) and DATABASE_URL is set; refusing to start with in-memory fallback", err)
		}
		if err := pg.Migrate(); err != nil {
			log.Fatalf("postgres migrations failed: %v", err)
		}
		repo = pg
		closers = append(closers, pg.Close)
		log.Println("repository: postgres")
	} else {
		repo = memory.NewSeeded()
		log.Println("repository: in-memory")
	}

	catalogCache := cache.CatalogCache(cache.NoopCatalogCache{})
	sessions := cache.SessionStore(cache.NewMemorySessionStore())
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			log.Printf("redis unavailable (%v), using noop catalog cache and in-memory sessions", err)
		} else {
			catalogCache = redisCache
			sessions = redisCache
			closers = append(closers, redisCache.Close)
			log.Println("cache: redis")
		}
	} else {
		log.Println("cache: noop")
	}

	gw, webhooks, mode := paymentGateway(cfg)
	log.Printf("payments: %s", mode)

	var notifier notify.Notifier = notify.Log{}
	if brokers := notify.ParseBrokers(cfg.KafkaBrokers); len(brokers) > 0 {
		kafkaNotifier := notify.NewKafka(brokers, cfg.SummaryTopic)
		notifier = kafkaNotifier
		closers = append(closers, kafkaNotifier.Close)
		log.Printf("notifications: kafka topic=%s", cfg.SummaryTopic)
	} else {
		log.Println("notifications: log")
	}

	m := metrics.New()
	audit := service.NewAuditor(repo)
	lookup := catalog.NewLookup(repo, catalogCache, time.Duration(cfg.CatalogCacheTTLSeconds)*time.Second)

	services := httpapi.Services{
		Checkout: checkout.New(repo, lookup, gw, sessions, m, checkoutCfg),
		Ledger:   ledger.New(repo, gw, audit, m, time.Duration(cfg.VoidWindowHours)*time.Hour),
		Shift:    shift.New(repo, audit, notifier, m),
		Webhooks: webhooks,
	}
	auth := httpapi.NewAuthManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, repo)
	api := httpapi.New(services, auth, m, cfg.AllowedOrigin)

	jobCtx, stopJobs := context.WithCancel(context.Background())
	jobDone := make(chan struct{})
	go func() {
		defer close(jobDone)
		report.NewSummaryJob(repo, notifier, time.Duration(cfg.SummaryJobIntervalMinutes)*time.Minute).Run(jobCtx)
	}()

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("POS backend listening on %s", cfg.Address())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
	stopJobs()
	<-jobDone

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Printf("close error: %v", err)
		}
	}

	log.Println("server stopped")
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if cfg.StripeSecretKey != "" && cfg.StripeWebhookSecret == "" {
		return fmt.Errorf("STRIPE_WEBHOOK_SECRET must be set when STRIPE_SECRET_KEY is set")
	}
	if cfg.StripeSecretKey != "" && !strings.HasPrefix(cfg.StripeSecretKey, "sk_") && !strings.HasPrefix(cfg.StripeSecretKey, "rk_") {
		return fmt.Errorf("STRIPE_SECRET_KEY must be a secret or restricted key")
	}
	return nil
}

// paymentGateway picks the card gateway. Without a Stripe key the simulated
// gateway settles intents on confirmation, and its unsigned webhooks are only
// accepted when PAYMENTS_SIMULATED is set.
func paymentGateway(cfg config.Config) (gateway.Gateway, gateway.WebhookVerifier, string) {
	if cfg.StripeSecretKey != "" {
		stripeGW := gateway.NewStripe(gateway.StripeConfig{
			SecretKey:         cfg.StripeSecretKey,
			WebhookSecret:     cfg.StripeWebhookSecret,
			Timeout:           time.Duration(cfg.GatewayTimeoutSeconds) * time.Second,
			MaxNetworkRetries: 2,
		})
		return stripeGW, stripeGW, "stripe"
	}
	if cfg.PaymentsSimulated {
		simulated := gateway.NewSimulated(false)
		return simulated, simulated, "simulated with unsigned webhooks"
	}
	return gateway.NewSimulated(true), nil, "simulated, webhooks disabled (set STRIPE_SECRET_KEY for live card payments)"
}

func checkoutConfig(cfg config.Config) (checkout.Config, error) {
	rate, err := money.ParseRate(cfg.FeeRate)
	if err != nil {
		return checkout.Config{}, fmt.Errorf("PAYMENT_FEE_RATE: %w", err)
	}
	if len(cfg.Currency) != 3 {
		return checkout.Config{}, fmt.Errorf("CURRENCY must be a three-letter code, got %q", cfg.Currency)
	}
	return checkout.Config{
		Currency:      cfg.Currency,
		FeeRate:       rate,
		FeeFixedCents: cfg.FeeFixedCents,
		SessionTTL:    time.Duration(cfg.SessionTTLMinutes) * time.Minute,
	}, nil
}
