package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"tosti/internal/config"
	"tosti/internal/jobs"
	"tosti/internal/ledger"
	"tosti/internal/music"
	"tosti/internal/secrets"
	"tosti/internal/store/postgres"
	"tosti/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	shutdownTelemetry := telemetry.Setup(context.Background(), telemetry.Config{
		ServiceName: "tosti-worker",
		Environment: cfg.Telemetry.Environment,
		SampleRatio: cfg.Telemetry.SampleRatio,
	})
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(ctx)
	}()

	pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer pool.Close()

	box, err := secrets.NewBox(cfg.CredentialsKey)
	if err != nil {
		log.Fatalf("credentials key: %v", err)
	}
	store := postgres.NewStore(pool, postgres.Options{Credentials: box})

	sink := ledger.NewSink(ledger.SinkConfig{
		Provider: cfg.Ledger.Provider,
		URL:      cfg.Ledger.URL,
		Token:    cfg.Ledger.Token,
		Timeout:  cfg.Ledger.Timeout,
	})
	exporter := ledger.New(store, sink, ledger.Config{BatchSize: cfg.Ledger.BatchSize})
	player := music.NewService(store, music.NewHTTPBackend(cfg.Music.APIURL, cfg.Music.Timeout), music.Config{
		CacheTTL: cfg.Music.CacheTTL,
	})

	scheduler := jobs.New(cfg.Location(), 5*time.Minute)
	schedule := []struct {
		name string
		spec string
		run  func(context.Context) error
	}{
		{"ledger-export", cfg.Ledger.Cron, func(ctx context.Context) error {
			result, err := exporter.Run(ctx)
			if result.Sent > 0 || result.Failed > 0 {
				log.Printf("ledger export sent=%d failed=%d", result.Sent, result.Failed)
			}
			return err
		}},
		{"players-stop", cfg.PlayersStopCron, player.StopAll},
		{"players-start", cfg.PlayersStartCron, player.StartAll},
		{"minimize-data", cfg.MinimizeCron, func(ctx context.Context) error {
			result, err := store.MinimizeData(ctx, time.Now().UTC())
			if err != nil {
				return err
			}
			log.Printf("minimized orders=%d queue_items=%d users=%d", result.OrdersCleared, result.QueueItemsCleared, result.UsersDeleted)
			return nil
		}},
	}
	for _, job := range schedule {
		if err := scheduler.Add(job.name, job.spec, job.run); err != nil {
			log.Fatalf("scheduler: %v", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	scheduler.Start(ctx)
	log.Printf("tosti-worker started jobs=%d timezone=%s", scheduler.Jobs(), cfg.Location())

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	scheduler.Stop(shutdownCtx)
}
