package config

import "testing"

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")
	t.Setenv("STRIPE_SECRET_KEY", "")

	cfg := Load()
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
	if cfg.StripeSecretKey != "" {
		t.Fatalf("expected empty STRIPE_SECRET_KEY when unset, got %q", cfg.StripeSecretKey)
	}
}

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PAYMENT_FEE_RATE", "PAYMENT_FEE_FIXED_CENTS", "VOID_WINDOW_HOURS", "CURRENCY", "PORT"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	if cfg.FeeRate != "0.002" || cfg.FeeFixedCents != 5 {
		t.Fatalf("unexpected fee defaults: rate=%s fixed=%d", cfg.FeeRate, cfg.FeeFixedCents)
	}
	if cfg.VoidWindowHours != 24 {
		t.Fatalf("expected 24h void window, got %d", cfg.VoidWindowHours)
	}
	if cfg.Currency != "usd" {
		t.Fatalf("expected usd, got %s", cfg.Currency)
	}
	if cfg.Address() != ":8080" {
		t.Fatalf("expected :8080, got %s", cfg.Address())
	}
}

func TestLoadRejectsInvalidNumbers(t *testing.T) {
	t.Setenv("VOID_WINDOW_HOURS", "-3")
	t.Setenv("PAYMENT_FEE_FIXED_CENTS", "five")
	t.Setenv("CURRENCY", "EUR")

	cfg := Load()
	if cfg.VoidWindowHours != 24 {
		t.Fatalf("expected fallback for negative window, got %d", cfg.VoidWindowHours)
	}
	if cfg.FeeFixedCents != 5 {
		t.Fatalf("expected fallback for bad fixed fee, got %d", cfg.FeeFixedCents)
	}
	if cfg.Currency != "eur" {
		t.Fatalf("expected lower-cased currency, got %s", cfg.Currency)
	}
}

func TestLoadTimezoneAndSimulatedPayments(t *testing.T) {
	t.Setenv("DEFAULT_TIMEZONE", "")
	t.Setenv("PAYMENTS_SIMULATED", "")

	cfg := Load()
	if cfg.DefaultTimezone != "UTC" {
		t.Fatalf("expected UTC default timezone, got %q", cfg.DefaultTimezone)
	}
	if cfg.PaymentsSimulated {
		t.Fatalf("expected simulated webhooks to be off by default")
	}

	t.Setenv("DEFAULT_TIMEZONE", "America/New_York")
	t.Setenv("PAYMENTS_SIMULATED", "true")
	cfg = Load()
	if cfg.DefaultTimezone != "America/New_York" || !cfg.PaymentsSimulated {
		t.Fatalf("unexpected config: timezone=%q simulated=%v", cfg.DefaultTimezone, cfg.PaymentsSimulated)
	}

	t.Setenv("PAYMENTS_SIMULATED", "maybe")
	if Load().PaymentsSimulated {
		t.Fatalf("expected unparseable PAYMENTS_SIMULATED to stay off")
	}
}
