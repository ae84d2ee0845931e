package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/Maxborland/EvaCalendar-sub000/internal/api"
	"github.com/Maxborland/EvaCalendar-sub000/internal/api/handlers"
	"github.com/Maxborland/EvaCalendar-sub000/internal/cache"
	"github.com/Maxborland/EvaCalendar-sub000/internal/config"
	"github.com/Maxborland/EvaCalendar-sub000/internal/cron"
	"github.com/Maxborland/EvaCalendar-sub000/internal/db"
	"github.com/Maxborland/EvaCalendar-sub000/internal/email"
	"github.com/Maxborland/EvaCalendar-sub000/internal/repository"
	"github.com/Maxborland/EvaCalendar-sub000/internal/repository/memory"
	"github.com/Maxborland/EvaCalendar-sub000/internal/seed"
	"github.com/Maxborland/EvaCalendar-sub000/internal/service"
	"github.com/Maxborland/EvaCalendar-sub000/pkg/logging"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file found, using environment variables")
	}
	logging.Setup()

	cfg := config.Load()
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := run(cfg); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	health := map[string]api.HealthCheck{}

	// ============================================
	// Store
	// ============================================
	var store repository.Store
	var memStore *memory.Store
	if cfg.UseMemoryStore() {
		slog.Warn("using in-memory store, data is lost on restart")
		memStore = memory.New()
		store = memStore
	} else {
		if err := db.RunMigrations(cfg.DatabaseURL); err != nil {
			return err
		}
		pg, err := db.NewPostgresDB(ctx, cfg.DatabaseURL, db.PoolConfig{
			MaxConns: int32(cfg.DBMaxConns),
			MinConns: int32(cfg.DBMinConns),
		})
		if err != nil {
			return err
		}
		defer pg.Close()
		store = repository.NewStore(pg.Pool)
		health["database"] = pg.Ping
	}

	// ============================================
	// Redis (optional)
	// ============================================
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisDB, err := db.NewRedisDB(ctx, cfg.RedisURL)
		if err != nil {
			slog.Warn("redis unavailable, continuing without cache and rate limiting", "error", err)
		} else {
			defer redisDB.Close()
			redisClient = redisDB.Client
			health["cache"] = redisDB.Ping
		}
	}

	var familyCache service.MembershipCache
	if redisClient != nil {
		familyCache = cache.NewFamilyCache(redisClient, cfg.FamilyCacheTTL())
	}
	inviteLimiter := cache.NewRateLimiter(redisClient, int64(cfg.InviteRateLimit), cfg.InviteRateWindow())

	// ============================================
	// Email (optional)
	// ============================================
	var mailer handlers.InvitationMailer
	if cfg.SMTPHost != "" {
		sender := email.NewService(&email.Config{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			User:     cfg.SMTPUser,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
			FromName: cfg.SMTPFromName,
			UseTLS:   cfg.SMTPUseTLS,
		})
		queue := email.NewQueue(sender, email.QueueConfig{Workers: cfg.EmailWorkers})
		defer queue.Stop()
		mailer = queue
		slog.Info("email service initialized", "host", cfg.SMTPHost, "workers", cfg.EmailWorkers)
	} else {
		slog.Warn("email not configured (SMTP_HOST not set), invitations will not be mailed")
	}

	// ============================================
	// Services, handlers, scheduler
	// ============================================
	services := service.NewServices(&service.ServiceDeps{
		Store:         store,
		Cache:         familyCache,
		InvitationTTL: cfg.InvitationTTL(),
	})
	h := handlers.NewHandlers(services, mailer, cfg.FrontendURL)

	if cfg.SeedDemoData {
		if memStore == nil {
			slog.Warn("SEED_DEMO_DATA is only honoured with STORE=memory")
		} else if _, err := seed.SeedData(ctx, memStore, services); err != nil {
			return err
		}
	}

	scheduler := cron.NewScheduler(store, cfg.InvitationPurgeSchedule, cfg.InvitationRetention())
	if err := scheduler.Start(); err != nil {
		return err
	}
	defer scheduler.Stop()

	router := api.NewRouter(api.RouterConfig{
		Handlers:       h,
		JWTSecret:      cfg.JWTSecret,
		AllowedOrigins: cfg.AllowedOrigins,
		InviteLimiter:  inviteLimiter,
		HealthChecks:   health,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", "port", cfg.Port, "environment", cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	slog.Info("server exited")
	return nil
}
