package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"evidenced/pkg/bus"
	"evidenced/pkg/clamav"
	"evidenced/pkg/db"
	gos3 "evidenced/pkg/s3"
	"evidenced/pkg/telemetry"
	"evidenced/services/evidence"
	"evidenced/services/evidence/internal/config"
)

func main() {
	if err := run("evidenced"); err != nil {
		log.New(os.Stderr, "", log.LstdFlags).Fatal(err)
	}
}

func run(serviceName string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, middleware, logger, err := telemetry.Init(ctx, serviceName)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownTelemetry != nil {
			if err := shutdownTelemetry(shutdownCtx); err != nil {
				fmt.Fprintf(os.Stderr, "%s: telemetry shutdown error: %v\n", serviceName, err)
			}
		}
	}()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	s3Client, err := gos3.New(ctx, cfg.S3)
	if err != nil {
		return fmt.Errorf("init s3 client: %w", err)
	}

	scanner, err := clamav.New(clamav.Config{Host: cfg.ClamAV.Host, Port: cfg.ClamAV.Port})
	if err != nil {
		return fmt.Errorf("init clamav client: %w", err)
	}

	pool, err := db.Open(ctx, cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	repo, err := evidence.NewPostgresRepository(pool)
	if err != nil {
		return fmt.Errorf("init repository: %w", err)
	}
	auditLog, err := evidence.NewAuditLog(pool)
	if err != nil {
		return fmt.Errorf("init audit log: %w", err)
	}

	deps := evidence.Deps{
		Objects: s3Client,
		Scanner: scanner,
		Repo:    repo,
		Audit:   auditLog,
	}

	if cfg.NATS.URL != "" {
		eventBus, err := bus.New(cfg.NATS.URL)
		if err != nil {
			return fmt.Errorf("connect event bus: %w", err)
		}
		defer eventBus.Close()
		deps.Bus = eventBus
		logger.Printf("INFO event bus connected url=%s", cfg.NATS.URL)
	}

	if cfg.Quarantine.AgeRecipient != "" {
		armor, err := evidence.NewArmor(cfg.Quarantine.AgeRecipient)
		if err != nil {
			return fmt.Errorf("init quarantine armor: %w", err)
		}
		deps.Armor = armor
		logger.Printf("INFO quarantine armor enabled")
	}

	pipeline, err := evidence.NewPipeline(deps, evidence.PipelineConfig{
		QuarantineBucket: cfg.Buckets.Quarantine,
		ScannedBucket:    cfg.Buckets.Scanned,
	}, logger)
	if err != nil {
		return fmt.Errorf("init pipeline: %w", err)
	}

	api, err := evidence.NewAPI(pipeline, repo, s3Client, evidence.APIConfig{
		ScannedBucket: cfg.Buckets.Scanned,
		MaxUploadSize: cfg.HTTP.MaxUploadSize,
		PresignTTL:    cfg.HTTP.PresignTTL,
	}, logger,
		func(ctx context.Context) error { return db.Ping(ctx, pool) },
		scanner.Ping,
	)
	if err != nil {
		return fmt.Errorf("init api: %w", err)
	}

	handler, err := api.Routes()
	if err != nil {
		return fmt.Errorf("build routes: %w", err)
	}

	server := &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: middleware(handler),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Fprintf(os.Stderr, "%s: server shutdown error: %v\n", serviceName, err)
		}
	}()

	logger.Printf("INFO listening on %s", server.Addr)

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Printf("ERROR server failed: %v", err)
		return err
	}

	return nil
}
