// Command worker consumes send-missed jobs from the queue and runs the
// batch dispatcher: for each job it delivers every missed post to the
// purchase and publishes the outcome on the seller's realtime channel. A
// small sidecar HTTP listener exposes health and metrics.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/gumroad/post-delivery/internal/authz"
	"github.com/gumroad/post-delivery/internal/config"
	"github.com/gumroad/post-delivery/internal/errtrack"
	"github.com/gumroad/post-delivery/internal/guard"
	"github.com/gumroad/post-delivery/internal/mail"
	"github.com/gumroad/post-delivery/internal/observability"
	"github.com/gumroad/post-delivery/internal/queue"
	"github.com/gumroad/post-delivery/internal/realtime"
	"github.com/gumroad/post-delivery/internal/repo"
	"github.com/gumroad/post-delivery/internal/services"
	"github.com/gumroad/post-delivery/internal/sysutil"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	_ = godotenv.Load()
	cfg := config.MustLoad()

	sysutil.SetLogLevel(cfg.LogLevel)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	log.Info().Str("version", version).Msg("starting worker")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			log.Warn().Err(err).Msg("otel shutdown")
		}
	}()

	db, err := repo.OpenSQLite(cfg.DBPath, cfg.OTEL.Enabled)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database failed")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate failed")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	az := &authz.DBAuthorizer{DB: db}
	elig := &services.Eligibility{Authz: az}
	dispatcher := &services.Dispatcher{
		DB: db,
		Sender: &services.SendService{
			DB:          db,
			Guard:       guard.New(guard.NewRedisStore(rdb), cfg.GuardTTL),
			Mailer:      mail.NewSendGridMailer(cfg.Mail.SendGridKey),
			Eligibility: elig,
			FromAddress: cfg.Mail.From,
			FromName:    cfg.Mail.FromName,
		},
		Eligibility: elig,
		Notifier: &realtime.Notifier{
			Pub:      realtime.NewRedisBroker(rdb),
			Reporter: &errtrack.LogReporter{Log: log.Logger},
			Log:      log.Logger,
		},
	}

	consumer := queue.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.GroupID, dispatcher, log.Logger)
	defer consumer.Close()

	// Sidecar listener for liveness and metrics.
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	side := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           mux,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
	go func() {
		log.Info().Str("addr", side.Addr).Msg("sidecar listening")
		if err := side.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("sidecar failed")
		}
	}()

	log.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("consuming jobs")
	if err := consumer.Run(ctx); err != nil {
		log.Error().Err(err).Msg("consumer stopped")
	}

	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := side.Shutdown(sctx); err != nil {
		log.Error().Err(err).Msg("sidecar shutdown failed")
	}
}
