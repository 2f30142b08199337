package config

import (
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost/publisher")
	t.Setenv("ADS_API_ACCESS_TOKEN", "token")
	t.Setenv("ADS_API_ACCOUNT_ID", "123456")
	t.Setenv("PUBLISHER_AUTH_SECRET", "secret")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != ":8072" {
		t.Fatalf("unexpected addr %q", cfg.Addr)
	}
	if cfg.AdsAPIMaxAttempts != 3 {
		t.Fatalf("unexpected max attempts %d", cfg.AdsAPIMaxAttempts)
	}
	if cfg.BreakerThreshold != 5 || cfg.BreakerCooldown != 30*time.Second {
		t.Fatalf("unexpected breaker settings %d/%v", cfg.BreakerThreshold, cfg.BreakerCooldown)
	}
	if cfg.UploadMaxConcurrent != 3 {
		t.Fatalf("unexpected upload concurrency %d", cfg.UploadMaxConcurrent)
	}
	if cfg.KafkaTopic != "publish-events" {
		t.Fatalf("unexpected topic %q", cfg.KafkaTopic)
	}
	if len(cfg.KafkaBrokers) != 0 {
		t.Fatalf("brokers should default empty, got %v", cfg.KafkaBrokers)
	}
}

func TestLoadMissingDatabaseURL(t *testing.T) {
	setRequired(t)
	t.Setenv("DATABASE_URL", "")
	if _, err := Load(); err == nil {
		t.Fatal("expected error without a database url")
	}
}

func TestLoadPublisherDatabaseURLWins(t *testing.T) {
	setRequired(t)
	t.Setenv("PUBLISHER_DATABASE_URL", "postgres://localhost/publisher_override")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DatabaseURL != "postgres://localhost/publisher_override" {
		t.Fatalf("service-specific url must win, got %q", cfg.DatabaseURL)
	}
}

func TestLoadRequiresAuthConfig(t *testing.T) {
	setRequired(t)
	t.Setenv("PUBLISHER_AUTH_SECRET", "")
	if _, err := Load(); err == nil {
		t.Fatal("expected error with neither auth secret nor debug token")
	}
	t.Setenv("PUBLISHER_DEBUG_TOKEN", "local")
	if _, err := Load(); err != nil {
		t.Fatalf("debug token alone should satisfy auth config: %v", err)
	}
}

func TestLoadParsesBrokerList(t *testing.T) {
	setRequired(t)
	t.Setenv("KAFKA_BROKERS", "broker-1:9092, broker-2:9092 ,")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[0] != "broker-1:9092" || cfg.KafkaBrokers[1] != "broker-2:9092" {
		t.Fatalf("unexpected brokers %v", cfg.KafkaBrokers)
	}
}

func TestLoadDurationOverride(t *testing.T) {
	setRequired(t)
	t.Setenv("ADS_API_TIMEOUT", "5s")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.AdsAPITimeout != 5*time.Second {
		t.Fatalf("unexpected timeout %v", cfg.AdsAPITimeout)
	}
}
