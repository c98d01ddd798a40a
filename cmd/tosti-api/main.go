package main

import (
	"context"
	"expvar"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"tosti/internal/config"
	"tosti/internal/httpapi"
	"tosti/internal/hub"
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
		ServiceName: "tosti-api",
		Environment: cfg.Telemetry.Environment,
		SampleRatio: cfg.Telemetry.SampleRatio,
	})
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(ctx)
	}()

	if cfg.AutoMigrate {
		if err := postgres.Migrate(cfg.DatabaseURL); err != nil {
			log.Fatalf("migrate: %v", err)
		}
	}

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

	player := music.NewService(store, music.NewHTTPBackend(cfg.Music.APIURL, cfg.Music.Timeout), music.Config{
		CacheTTL:        cfg.Music.CacheTTL,
		SearchInterval:  cfg.Music.SearchInterval,
		SearchBurst:     cfg.Music.SearchBurst,
		RequestsPerHour: cfg.Music.RequestsPerHour,
	})

	auth := httpapi.NewAuthenticator(cfg.JWTSecret, store)
	handler := httpapi.NewHandler(store, player)
	limiter := httpapi.NewRateLimiter(httpapi.RateLimitConfig{
		IPPerMinute:   cfg.RateLimitPerMinute,
		IPBurst:       cfg.RateLimitBurst,
		UserPerMinute: cfg.UserRateLimitPerMinute,
		UserBurst:     cfg.UserRateLimitBurst,
	})

	h := hub.New()
	relay := hub.NewRelay(store, h, cfg.Relay.BatchSize)
	if err := relay.Seek(context.Background()); err != nil {
		log.Printf("relay seek error: %v", err)
	}

	api := handler.Routes()
	api.Handle("GET /metrics", expvar.Handler())

	mux := http.NewServeMux()
	mux.Handle("/realtime/", hub.NewHandler("/realtime", h, auth.User))
	mux.Handle("/", httpapi.LoggingMiddleware(httpapi.AuthMiddleware(auth, limiter.Middleware(api))))

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      otelhttp.NewHandler(mux, "tosti-api"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	interval := cfg.Relay.PollInterval
	if interval <= 0 {
		interval = time.Second
	}
	go relay.Start(ctx, interval)

	go func() {
		log.Printf("tosti-api listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
