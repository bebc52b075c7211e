package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"classbank/internal/scheduler"
	"classbank/internal/shared/config"
	"classbank/internal/shared/telemetry"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

func run() error {
	// Optional .env for local development.
	if err := godotenv.Load(); err == nil {
		log.Println("Loaded environment from .env")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx := context.Background()

	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.Init(ctx, telemetry.Config{
			ServiceName:  cfg.Telemetry.ServiceName,
			Environment:  cfg.Telemetry.Environment,
			OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
			MetricsPort:  cfg.Telemetry.MetricsPort,
		})
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				log.Printf("Telemetry shutdown error: %v", err)
			}
		}()
	}

	deps, err := NewDependencies(ctx, cfg)
	if err != nil {
		return err
	}
	defer deps.Close()

	// Periodic balance audit: recompute every stored balance from its
	// transaction log and repair drift.
	var sched *scheduler.Scheduler
	if cfg.Audit.Enabled {
		sched, err = scheduler.New(scheduler.Config{
			ScheduleTimes: cfg.Audit.ScheduleTimes,
			WorkerCount:   cfg.Audit.WorkerCount,
			JobDelay:      cfg.Audit.JobDelay,
			QueueSize:     cfg.Audit.QueueSize,
			RunOnStartup:  cfg.Audit.RunOnStartup,
			JobProvider:   scheduler.AuditJobProvider(deps.Store, deps.Ledgers),
		})
		if err != nil {
			return err
		}
		sched.Start()
	} else {
		log.Println("Balance audit is disabled")
	}

	handler := SetupRoutes(deps, cfg)
	srv := StartServer(cfg.Server.Host+":"+cfg.Server.Port, handler)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	GracefulShutdown(srv, sched, 30*time.Second)
	return nil
}
