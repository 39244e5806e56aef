package main

import (
	"testing"
	"time"

	"tillpoint/backend/internal/config"
	"tillpoint/backend/internal/gateway"
)

func TestValidateSecurityConfigRejectsWeakValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: "short"})
	if err == nil {
		t.Fatalf("expected weak security config to be rejected")
	}
}

func TestValidateSecurityConfigAcceptsStrongValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: "0123456789abcdef0123456789abcdef"})
	if err != nil {
		t.Fatalf("expected strong config to pass, got %v", err)
	}
}

func TestValidateSecurityConfigRequiresWebhookSecretWithStripe(t *testing.T) {
	cfg := config.Config{AuthSecret: "0123456789abcdef0123456789abcdef", StripeSecretKey: "sk_test_123"}
	if err := validateSecurityConfig(cfg); err == nil {
		t.Fatalf("expected missing webhook secret to be rejected")
	}

	cfg.StripeWebhookSecret = "whsec_123"
	if err := validateSecurityConfig(cfg); err != nil {
		t.Fatalf("expected stripe config to pass, got %v", err)
	}

	cfg.StripeSecretKey = "pk_test_123"
	if err := validateSecurityConfig(cfg); err == nil {
		t.Fatalf("expected publishable key to be rejected")
	}
}

func TestCheckoutConfig(t *testing.T) {
	cfg := config.Config{Currency: "usd", FeeRate: "0.002", FeeFixedCents: 5, SessionTTLMinutes: 30}
	got, err := checkoutConfig(cfg)
	if err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
	if got.FeeRate.String() != "0.002" || got.FeeFixedCents != 5 || got.SessionTTL != 30*time.Minute {
		t.Fatalf("unexpected checkout config: %+v", got)
	}

	for _, rate := range []string{"abc", "-0.01", "1.5"} {
		cfg.FeeRate = rate
		if _, err := checkoutConfig(cfg); err == nil {
			t.Fatalf("expected fee rate %q to be rejected", rate)
		}
	}

	cfg.FeeRate = "0.002"
	cfg.Currency = "dollars"
	if _, err := checkoutConfig(cfg); err == nil {
		t.Fatalf("expected bad currency to be rejected")
	}
}

func TestPaymentGatewayGatesUnsignedWebhooks(t *testing.T) {
	_, webhooks, _ := paymentGateway(config.Config{})
	if webhooks != nil {
		t.Fatalf("expected webhooks disabled for the default simulated gateway")
	}

	gw, webhooks, _ := paymentGateway(config.Config{PaymentsSimulated: true})
	if webhooks == nil {
		t.Fatalf("expected simulated webhooks when PAYMENTS_SIMULATED is set")
	}
	if _, ok := gw.(*gateway.Simulated); !ok {
		t.Fatalf("expected simulated gateway, got %T", gw)
	}

	gw, webhooks, mode := paymentGateway(config.Config{StripeSecretKey: "sk_test_123", StripeWebhookSecret: "whsec_123", GatewayTimeoutSeconds: 5})
	if _, ok := gw.(*gateway.Stripe); !ok || webhooks == nil || mode != "stripe" {
		t.Fatalf("expected stripe gateway with webhooks, got %T mode=%s", gw, mode)
	}
}
