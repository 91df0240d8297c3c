package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("OPERATOR_PASSKEY", "fresh-catch")

	cfg := Load()
	if cfg.OrderIDPolicy != "generated" || cfg.PhoneDigits != 10 || cfg.PurgeBatchSize != 500 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.CleaningSurcharge.String() != "30" {
		t.Fatalf("expected surcharge 30, got %s", cfg.CleaningSurcharge)
	}
	if cfg.TokenExpires != 12*time.Hour || cfg.CatalogPoll != 5*time.Second {
		t.Fatalf("unexpected durations: %v %v", cfg.TokenExpires, cfg.CatalogPoll)
	}
	if len(cfg.KafkaBrokers) != 0 {
		t.Fatalf("expected no brokers, got %v", cfg.KafkaBrokers)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("OPERATOR_PASSKEY", "plain")
	t.Setenv("OPERATOR_PASSKEY_HASH", "$2a$10$hash")
	t.Setenv("STORE_BACKEND", "Memory")
	t.Setenv("ORDER_ID_POLICY", "phone")
	t.Setenv("CLEANING_SURCHARGE", "42.5")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")
	t.Setenv("PHONE_DIGITS", "not-a-number")

	cfg := Load()
	if cfg.OperatorPasskey != "$2a$10$hash" {
		t.Fatalf("hash must win over plaintext, got %q", cfg.OperatorPasskey)
	}
	if cfg.StoreBackend != "memory" || cfg.OrderIDPolicy != "phone" {
		t.Fatalf("unexpected backend/policy: %s %s", cfg.StoreBackend, cfg.OrderIDPolicy)
	}
	if cfg.CleaningSurcharge.String() != "42.5" {
		t.Fatalf("unexpected surcharge %s", cfg.CleaningSurcharge)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "kafka-2:9092" {
		t.Fatalf("unexpected brokers %v", cfg.KafkaBrokers)
	}
	if cfg.PhoneDigits != 10 {
		t.Fatalf("malformed PHONE_DIGITS should fall back, got %d", cfg.PhoneDigits)
	}
}
