// Command api serves the missed-post delivery HTTP API: missed/sent post
// listings, synchronous single sends, batch enqueueing, and the per-seller
// event stream.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/gumroad/post-delivery/internal/authz"
	"github.com/gumroad/post-delivery/internal/config"
	"github.com/gumroad/post-delivery/internal/guard"
	httpapi "github.com/gumroad/post-delivery/internal/http"
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
	log.Info().Str("version", version).Msg("starting api")

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

	producer := queue.NewKafkaProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	defer producer.Close()

	az := &authz.DBAuthorizer{DB: db}
	elig := &services.Eligibility{Authz: az}
	deps := httpapi.Deps{
		DB:    db,
		Posts: &services.PostService{DB: db},
		Sender: &services.SendService{
			DB:          db,
			Guard:       guard.New(guard.NewRedisStore(rdb), cfg.GuardTTL),
			Mailer:      mail.NewSendGridMailer(cfg.Mail.SendGridKey),
			Eligibility: elig,
			FromAddress: cfg.Mail.From,
			FromName:    cfg.Mail.FromName,
		},
		Producer: producer,
		Broker:   realtime.NewRedisBroker(rdb),
		Authz:    az,
	}

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, cfg, deps)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutdown signal received")

	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}
