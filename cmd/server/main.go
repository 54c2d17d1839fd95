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
	"github.com/redis/go-redis/v9"

	"github.com/leadline/outreach-engine/internal/abtest"
	"github.com/leadline/outreach-engine/internal/api"
	"github.com/leadline/outreach-engine/internal/channel"
	"github.com/leadline/outreach-engine/internal/config"
	"github.com/leadline/outreach-engine/internal/domain"
	"github.com/leadline/outreach-engine/internal/eligibility"
	"github.com/leadline/outreach-engine/internal/intake"
	"github.com/leadline/outreach-engine/internal/pkg/logger"
	"github.com/leadline/outreach-engine/internal/repository/postgres"
	"github.com/leadline/outreach-engine/internal/worker"
)

func main() {
	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	configureLogger(cfg)

	if cfg.Database.URL == "" {
		log.Fatal("DATABASE_URL is required")
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			logger.Warn("redis unreachable, continuing without cache", "addr", cfg.Redis.Addr, "error", err.Error())
			redisClient = nil
		}
	}

	contacts := postgres.NewContactRepo(db)
	history := postgres.NewHistoryRepo(db)
	queue := postgres.NewQueueRepo(db)
	sessions := postgres.NewSessionRepo(db)
	settings := postgres.NewSettingsRepo(db)
	testRepo := postgres.NewABTestRepo(db)

	gate := eligibility.NewGate(history, redisClient)
	tests := abtest.NewService(testRepo)
	renderer := intake.NewRenderer()
	builder := intake.NewBuilder(renderer, tests, cfg.Intake.DefaultTemplate, cfg.Intake.DefaultSubject)
	pipeline := intake.NewPipeline(
		intake.NewVariantStep(tests),
		intake.NewScheduleStep(contacts, settings),
		intake.NewRenderStep(builder),
	)

	senders := map[domain.ChannelType]channel.Sender{}
	if cfg.WhatsApp.GatewayURL != "" {
		senders[domain.ChannelWhatsApp] = channel.NewWhatsAppSender(
			cfg.WhatsApp.GatewayURL, cfg.WhatsApp.SessionID, cfg.WhatsApp.APIToken)
	}
	if cfg.Email.AccessKey != "" {
		emailSender := channel.NewEmailSender(cfg.Email.AccessKey, cfg.Email.SecretKey, cfg.Email.Region)
		emailSender.SetDefaultFrom(cfg.Email.FromName, cfg.Email.FromEmail, cfg.Email.ReplyTo)
		senders[domain.ChannelEmail] = emailSender
	}

	ondemand := worker.NewOnDemandProcessor(contacts, gate, settings, builder, senders)

	handlers := api.NewHandlers(contacts, queue, sessions, settings, tests, builder, pipeline, ondemand)
	router := api.SetupRoutes(handlers, cfg.Server.AllowedOrigins)

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	go func() {
		logger.Info("http server listening", "addr", cfg.Server.Addr())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	<-done

	logger.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
}

func configureLogger(cfg *config.Config) {
	switch cfg.Logging.Level {
	case "debug":
		logger.SetLevel(logger.DEBUG)
	case "warn":
		logger.SetLevel(logger.WARN)
	case "error":
		logger.SetLevel(logger.ERROR)
	default:
		logger.SetLevel(logger.INFO)
	}
	logger.SetRedactPII(cfg.Logging.RedactPII)
}
