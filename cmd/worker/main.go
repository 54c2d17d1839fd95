package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/leadline/outreach-engine/internal/channel"
	"github.com/leadline/outreach-engine/internal/config"
	"github.com/leadline/outreach-engine/internal/domain"
	"github.com/leadline/outreach-engine/internal/eligibility"
	"github.com/leadline/outreach-engine/internal/pkg/distlock"
	"github.com/leadline/outreach-engine/internal/pkg/logger"
	"github.com/leadline/outreach-engine/internal/repository/postgres"
	"github.com/leadline/outreach-engine/internal/worker"
)

const sessionLockTTL = 2 * time.Minute

func main() {
	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

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
			logger.Warn("redis unreachable, session lock falls back to pg advisory", "addr", cfg.Redis.Addr, "error", err.Error())
			redisClient = nil
		}
	}

	contacts := postgres.NewContactRepo(db)
	history := postgres.NewHistoryRepo(db)
	queue := postgres.NewQueueRepo(db)
	sessions := postgres.NewSessionRepo(db)
	settings := postgres.NewSettingsRepo(db)

	gate := eligibility.NewGate(history, redisClient)

	sender, err := buildSender(cfg)
	if err != nil {
		log.Fatalf("Failed to init sender: %v", err)
	}

	session, err := resolveSession(pingCtx, sessions, cfg.Worker.SessionName)
	if err != nil {
		log.Fatalf("Failed to resolve session %q: %v", cfg.Worker.SessionName, err)
	}

	workerID := fmt.Sprintf("worker-%s", uuid.New().String()[:8])
	lock := distlock.NewSessionLock(redisClient, db, session.Name, sessionLockTTL)

	w := worker.NewDispatchWorker(queue, contacts, sessions, gate, settings, sender, lock, session.ID, workerID)
	if cfg.Worker.PollIntervalSeconds > 0 {
		w.SetPollInterval(time.Duration(cfg.Worker.PollIntervalSeconds) * time.Second)
	}
	if cfg.Worker.FailureCooldownSeconds > 0 {
		w.SetFailureCooldown(time.Duration(cfg.Worker.FailureCooldownSeconds) * time.Second)
	}

	if err := w.Start(); err != nil {
		if errors.Is(err, worker.ErrSessionLocked) {
			log.Fatalf("Session %q already has a worker attached", session.Name)
		}
		log.Fatalf("Failed to start worker: %v", err)
	}
	logger.Info("dispatch worker started",
		"session", session.Name, "worker_id", workerID, "channel", string(sender.Channel()))

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	<-done

	logger.Info("shutting down worker")
	w.Stop()

	stats := w.Stats()
	logger.Info("worker stopped", "sent", stats["total_sent"], "failed", stats["total_failed"])
}

// buildSender picks the dispatch channel from config. WhatsApp wins when
// both are configured; queue items carry pre-rendered bodies so a single
// channel per worker process keeps delivery simple.
func buildSender(cfg *config.Config) (channel.Sender, error) {
	if cfg.WhatsApp.GatewayURL != "" {
		return channel.NewWhatsAppSender(cfg.WhatsApp.GatewayURL, cfg.WhatsApp.SessionID, cfg.WhatsApp.APIToken), nil
	}
	if cfg.Email.AccessKey != "" {
		s := channel.NewEmailSender(cfg.Email.AccessKey, cfg.Email.SecretKey, cfg.Email.Region)
		s.SetDefaultFrom(cfg.Email.FromName, cfg.Email.FromEmail, cfg.Email.ReplyTo)
		return s, nil
	}
	return nil, errors.New("no sending channel configured, set WHATSAPP_GATEWAY_URL or AWS_SES_ACCESS_KEY")
}

// resolveSession loads the named session, creating a stopped one on first
// run so operators can start it through the API.
func resolveSession(ctx context.Context, sessions *postgres.SessionRepo, name string) (*domain.DispatchSession, error) {
	session, err := sessions.GetByName(ctx, name)
	if err == nil {
		return session, nil
	}
	if !errors.Is(err, worker.ErrNotFound) {
		return nil, err
	}

	session = &domain.DispatchSession{
		ID:     uuid.New().String(),
		Name:   name,
		Status: domain.SessionStopped,
	}
	if err := sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	logger.Info("created session", "name", name, "id", session.ID)
	return session, nil
}
