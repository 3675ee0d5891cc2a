// Server runs the auth HTTP API: token issuance, refresh rotation, session
// management, and the background session sweeper.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"traffic-monitor/backend/internal/audit"
	auditrepo "traffic-monitor/backend/internal/audit/repository"
	authhandler "traffic-monitor/backend/internal/auth/handler"
	"traffic-monitor/backend/internal/auth/lockout"
	authservice "traffic-monitor/backend/internal/auth/service"
	"traffic-monitor/backend/internal/config"
	"traffic-monitor/backend/internal/db"
	"traffic-monitor/backend/internal/db/migrate"
	"traffic-monitor/backend/internal/security"
	"traffic-monitor/backend/internal/server"
	sessionrepo "traffic-monitor/backend/internal/session/repository"
	sessionservice "traffic-monitor/backend/internal/session/service"
	"traffic-monitor/backend/internal/telemetry"
	"traffic-monitor/backend/internal/telemetry/otel"
	"traffic-monitor/backend/internal/telemetry/producer"
	userrepo "traffic-monitor/backend/internal/user/repository"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := migrate.Run(cfg.DatabaseURL, "up"); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}

	dbConn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer dbConn.Close()

	providers, err := otel.NewProviders(ctx, cfg.OTLPEndpoint, "traffic-monitor-auth", cfg.OTLPInsecure)
	if err != nil {
		return err
	}
	providers.SetGlobal()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			logger.Error("telemetry shutdown", "error", err)
		}
	}()

	var emitters telemetry.MultiEmitter
	kafkaProducer, err := producer.NewKafkaProducer(cfg.KafkaBrokersList(), cfg.AuditKafkaTopic)
	if err != nil {
		return err
	}
	if kafkaProducer != nil {
		defer kafkaProducer.Close()
		emitters = append(emitters, kafkaProducer)
		logger.Info("kafka audit pipeline enabled", "topic", cfg.AuditKafkaTopic)
	}
	emitters = append(emitters, otel.NewEventEmitter(providers.LoggerProvider))

	var lockouts lockout.Store
	if cfg.RedisURL != "" {
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return err
		}
		redisClient := redis.NewClient(redisOpts)
		defer redisClient.Close()
		lockouts = lockout.NewRedisStore(redisClient)
		logger.Info("login lockout enabled", "threshold", cfg.LoginLockoutThreshold)
	}

	tokens, err := security.NewTokenProvider(cfg.JWTSecret, cfg.JWTRefreshSecret, cfg.AccessTTL(), cfg.RefreshTTL())
	if err != nil {
		return err
	}
	hasher := security.NewHasher(cfg.BcryptCost)

	users := userrepo.NewPostgresRepository(dbConn)
	sessions := sessionrepo.NewPostgresRepository(dbConn)
	audits := auditrepo.NewPostgresRepository(dbConn)

	manager := sessionservice.NewManager(sessions, tokens, cfg.SessionLimit, cfg.StaleAfter(), cfg.RevokedRetention())
	authSvc := authservice.NewAuthService(users, manager, hasher, tokens,
		lockouts, cfg.LoginLockoutThreshold, cfg.LockoutWindow())
	auditor := audit.NewLogger(audits, logger)
	metrics := telemetry.NewMetrics(prometheus.DefaultRegisterer)

	handler := authhandler.NewHandler(authSvc, auditor, emitters, metrics, logger,
		cfg.IsProduction(), cfg.RefreshTTL())

	sweeper := sessionservice.NewSweeper(manager, cfg.SweepInterval(), logger, func(res sessionservice.SweepResult) {
		metrics.SessionsSwept.Add(float64(res.RevokedDeleted + res.StaleDeleted))
		if res.RevokedDeleted > 0 || res.StaleDeleted > 0 {
			ev := telemetry.NewEvent(telemetry.EventSessionSweep, "", "")
			ev.Metadata = json.RawMessage(fmt.Sprintf(`{"revokedDeleted":%d,"staleDeleted":%d}`,
				res.RevokedDeleted, res.StaleDeleted))
			telemetry.EmitAsync(emitters, ev)
		}
	})
	go sweeper.Run(ctx)

	router := server.NewRouter(server.Options{
		AuthHandler:    handler,
		DB:             dbConn,
		Logger:         logger,
		AuthRateLimit:  5,
		AuthRateWindow: 15 * time.Minute,
		RequestTimeout: cfg.RequestTimeout(),
	})

	srv := server.New(cfg.HTTPAddr, router, logger)
	logger.Info("auth server listening", "addr", cfg.HTTPAddr, "env", cfg.Env)
	if err := srv.Run(ctx); err != nil {
		return err
	}

	// Let in-flight telemetry emits finish before the exporters shut down.
	time.Sleep(telemetry.ShutdownDrainDuration)
	return nil
}
