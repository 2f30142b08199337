package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Addr        string
	DatabaseURL string

	AdsAPIBaseURL     string
	AdsAPIAccessToken string
	AdsAPIAccountID   string
	AdsAPIPageID      string
	AdsAPITimeout     time.Duration
	AdsAPIMaxAttempts int

	BreakerThreshold int
	BreakerCooldown  time.Duration

	UploadMaxConcurrent int
	UploadMaxRetries    int
	UploadMaxBytes      int64

	KafkaBrokers []string
	KafkaTopic   string

	ArchiveBucket string
	ArchivePrefix string

	AuthSecret string
	DebugToken string
}

const (
	defaultAddr        = ":8072"
	defaultKafkaTopic  = "publish-events"
	defaultTimeout     = 30 * time.Second
	defaultCooldown    = 30 * time.Second
	defaultMaxUpload   = int64(10 << 20)
	defaultConcurrency = 3
)

func Load() (Config, error) {
	cfg := Config{
		Addr:        getEnv("PUBLISHER_ADDR", defaultAddr),
		DatabaseURL: firstNonEmpty(os.Getenv("PUBLISHER_DATABASE_URL"), os.Getenv("DATABASE_URL")),

		AdsAPIBaseURL:     getEnv("ADS_API_BASE_URL", "https://graph.facebook.com/v19.0"),
		AdsAPIAccessToken: os.Getenv("ADS_API_ACCESS_TOKEN"),
		AdsAPIAccountID:   os.Getenv("ADS_API_ACCOUNT_ID"),
		AdsAPIPageID:      os.Getenv("ADS_API_PAGE_ID"),
		AdsAPITimeout:     getDuration("ADS_API_TIMEOUT", defaultTimeout),
		AdsAPIMaxAttempts: getInt("ADS_API_MAX_ATTEMPTS", 3),

		BreakerThreshold: getInt("ADS_API_BREAKER_THRESHOLD", 5),
		BreakerCooldown:  getDuration("ADS_API_BREAKER_COOLDOWN", defaultCooldown),

		UploadMaxConcurrent: getInt("UPLOAD_MAX_CONCURRENT", defaultConcurrency),
		UploadMaxRetries:    getInt("UPLOAD_MAX_RETRIES", 2),
		UploadMaxBytes:      getInt64("UPLOAD_MAX_BYTES", defaultMaxUpload),

		KafkaBrokers: splitList(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:   getEnv("KAFKA_PUBLISH_TOPIC", defaultKafkaTopic),

		ArchiveBucket: os.Getenv("PUBLISH_ARCHIVE_BUCKET"),
		ArchivePrefix: os.Getenv("PUBLISH_ARCHIVE_PREFIX"),

		AuthSecret: os.Getenv("PUBLISHER_AUTH_SECRET"),
		DebugToken: os.Getenv("PUBLISHER_DEBUG_TOKEN"),
	}
	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL or PUBLISHER_DATABASE_URL required")
	}
	if cfg.AdsAPIAccessToken == "" {
		return Config{}, fmt.Errorf("ADS_API_ACCESS_TOKEN required")
	}
	if cfg.AdsAPIAccountID == "" {
		return Config{}, fmt.Errorf("ADS_API_ACCOUNT_ID required")
	}
	if cfg.AuthSecret == "" && cfg.DebugToken == "" {
		return Config{}, fmt.Errorf("PUBLISHER_AUTH_SECRET (or PUBLISHER_DEBUG_TOKEN for local use) required")
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func getInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	var out []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
