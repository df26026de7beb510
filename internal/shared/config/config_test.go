package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	if cfg.Checkout.SessionTTL != 30*time.Minute {
		t.Fatalf("expected session ttl 30m, got %v", cfg.Checkout.SessionTTL)
	}
	if cfg.Checkout.HoldTTL != 5*time.Minute {
		t.Fatalf("expected hold ttl 5m, got %v", cfg.Checkout.HoldTTL)
	}
	if cfg.Kafka.MaxAttempts != 5 {
		t.Fatalf("expected 5 fulfillment attempts, got %d", cfg.Kafka.MaxAttempts)
	}
	if cfg.GetAPIBasePath() != "/api/v1" {
		t.Fatalf("expected /api/v1, got %s", cfg.GetAPIBasePath())
	}
	if cfg.Redis.Addr != "localhost:6379" {
		t.Fatalf("expected localhost:6379, got %s", cfg.Redis.Addr)
	}
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("CHECKOUT_HOLD_TTL", "90s")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("PAYMENTS_DEFAULT_FEE_BPS", "750")
	t.Setenv("JWT_EXPIRES_IN", "120")
	t.Setenv("RATE_LIMIT_ENABLED", "false")
	t.Setenv("DB_HOST", "db")

	cfg := Load()

	if cfg.Checkout.HoldTTL != 90*time.Second {
		t.Fatalf("expected 90s, got %v", cfg.Checkout.HoldTTL)
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "k2:9092" {
		t.Fatalf("unexpected brokers %v", cfg.Kafka.Brokers)
	}
	if cfg.Payments.DefaultFeeBps != 750 {
		t.Fatalf("expected 750 bps, got %d", cfg.Payments.DefaultFeeBps)
	}
	if cfg.JWT.JWTExpiresIn != 2*time.Minute {
		t.Fatalf("expected 2m, got %v", cfg.JWT.JWTExpiresIn)
	}
	if cfg.RateLimit.Enabled {
		t.Fatalf("expected rate limiting disabled")
	}
	if cfg.Database.DSN != "host=db port=5432 user=boxoffice_user password=boxoffice_password dbname=boxoffice_db sslmode=disable" {
		t.Fatalf("unexpected dsn %q", cfg.Database.DSN)
	}
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("CHECKOUT_SESSION_TTL", "soon")
	t.Setenv("KAFKA_FULFILLMENT_WORKERS", "many")

	cfg := Load()

	if cfg.Checkout.SessionTTL != 30*time.Minute {
		t.Fatalf("expected fallback 30m, got %v", cfg.Checkout.SessionTTL)
	}
	if cfg.Kafka.Workers != 2 {
		t.Fatalf("expected fallback 2 workers, got %d", cfg.Kafka.Workers)
	}
}
