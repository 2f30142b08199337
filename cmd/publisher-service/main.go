package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/adlift/publisher/internal/adsapi"
	"github.com/adlift/publisher/internal/archive"
	"github.com/adlift/publisher/internal/auth"
	"github.com/adlift/publisher/internal/classify"
	"github.com/adlift/publisher/internal/config"
	"github.com/adlift/publisher/internal/events"
	"github.com/adlift/publisher/internal/httpserver"
	"github.com/adlift/publisher/internal/publish"
	"github.com/adlift/publisher/internal/store"
	"github.com/adlift/publisher/internal/upload"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load: %v", err)
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db open: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	if err := db.Ping(); err != nil {
		log.Fatalf("db ping: %v", err)
	}
	st := store.NewPGStore(db)

	apiClient, err := adsapi.New(adsapi.Config{
		BaseURL:          cfg.AdsAPIBaseURL,
		AccessToken:      cfg.AdsAPIAccessToken,
		AccountID:        cfg.AdsAPIAccountID,
		Timeout:          cfg.AdsAPITimeout,
		MaxAttempts:      cfg.AdsAPIMaxAttempts,
		BreakerThreshold: cfg.BreakerThreshold,
		BreakerCooldown:  cfg.BreakerCooldown,
		ShouldRetry:      classify.ShouldRetry,
	})
	if err != nil {
		log.Fatalf("ads api client init: %v", err)
	}

	coordinator := upload.NewCoordinator(apiClient, upload.Config{
		MaxConcurrent:    cfg.UploadMaxConcurrent,
		MaxRetries:       cfg.UploadMaxRetries,
		MaxDownloadBytes: cfg.UploadMaxBytes,
	})

	var emitter publish.Emitter
	if len(cfg.KafkaBrokers) > 0 {
		producer, err := events.NewKafkaProducer(events.KafkaProducerConfig{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.KafkaTopic,
		})
		if err != nil {
			log.Fatalf("kafka producer init: %v", err)
		}
		defer producer.Close()
		emitter = events.NewEmitter(producer)
	}

	var archiver publish.Archiver
	if cfg.ArchiveBucket != "" {
		s3Archiver, err := archive.NewS3Archiver(context.Background(), cfg.ArchiveBucket, cfg.ArchivePrefix)
		if err != nil {
			log.Fatalf("s3 archiver init: %v", err)
		}
		archiver = s3Archiver
	}

	orchestrator := publish.NewOrchestrator(st, apiClient, coordinator, emitter, archiver, publish.OrchestratorConfig{
		PageID: cfg.AdsAPIPageID,
	})

	verifier, err := auth.NewVerifier(cfg.AuthSecret, cfg.DebugToken)
	if err != nil {
		log.Fatalf("auth init: %v", err)
	}

	server := httpserver.New(st, orchestrator, apiClient, verifier)
	httpServer := &http.Server{
		Addr:    cfg.Addr,
		Handler: server.Router(),
	}

	go func() {
		log.Printf("publisher service listening on %s", cfg.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server error: %v", err)
		}
	}()

	waitForShutdown(httpServer)
}

func waitForShutdown(srv *http.Server) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}
}
