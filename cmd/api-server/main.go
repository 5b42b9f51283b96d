package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/hackgods/slot-booking/internal/api"
	"github.com/hackgods/slot-booking/internal/booking"
	"github.com/hackgods/slot-booking/internal/config"
	"github.com/hackgods/slot-booking/internal/db"
	"github.com/hackgods/slot-booking/internal/events"
	"github.com/hackgods/slot-booking/internal/logger"
	"github.com/hackgods/slot-booking/internal/payment"
	redisclient "github.com/hackgods/slot-booking/internal/redis"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New(logger.Config{Service: "api-server"}).Fatal("config load error", "error", err)
	}

	log := logger.New(logger.Config{
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
		Service: "api-server",
	})
	log.Info("api-server starting up", "env", cfg.Env, "http_port", cfg.HTTPPort, "version", version)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, db.PoolOptions{AppName: "api-server"})
	cancelPg()
	if err != nil {
		log.Fatal("postgres connection error", "error", err)
	}
	defer pgPool.Close()
	log.Info("connected to Postgres")

	if cfg.AutoMigrate {
		if err := db.Migrate(rootCtx, pgPool); err != nil {
			log.Fatal("migration error", "error", err)
		}
	}

	// Redis is optional; without it the serializable transaction is the only guard.
	rdb, err := redisclient.NewRedisClient(rootCtx, redisclient.Options{
		Addr:       cfg.RedisAddr,
		Username:   cfg.RedisUsername,
		Password:   cfg.RedisPassword,
		ClientName: "api-server",
	})
	if err != nil {
		log.Fatal("redis connection error", "error", err)
	}
	var locker redisclient.Locker = redisclient.NoopLocker{}
	if rdb != nil {
		defer func() {
			if err := rdb.Close(); err != nil {
				log.Warn("error closing redis", "error", err)
			}
		}()
		locker = redisclient.NewRedisSlotLocker(rdb, cfg.LockTTL, cfg.LockWait)
		log.Info("connected to Redis")
	} else {
		log.Warn("REDIS_ADDR not set, slot lock disabled")
	}

	var publisher events.Publisher = events.Noop{}
	if cfg.AMQPURL != "" {
		amqpPub, err := events.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			log.Fatal("amqp connection error", "error", err)
		}
		publisher = amqpPub
		log.Info("connected to AMQP", "exchange", cfg.AMQPExchange)
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			log.Warn("error closing publisher", "error", err)
		}
	}()

	bookings := booking.NewService(booking.NewPgRepository(pgPool), locker, publisher, log)

	routerCfg := api.RouterConfig{
		Bookings:       bookings,
		Postgres:       pgPool,
		Redis:          rdb,
		Log:            log,
		JWTSecret:      cfg.JWTSecret,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		Env:            cfg.Env,
		Version:        version,
	}
	if cfg.PaymentsEnabled() {
		gateway, err := payment.NewOmiseGateway(cfg.OmisePublicKey, cfg.OmiseSecretKey, &http.Client{Timeout: 30 * time.Second})
		if err != nil {
			log.Fatal("omise client error", "error", err)
		}
		routerCfg.Payments = payment.NewReconciler(bookings, gateway, cfg.PlatformFeeBps, publisher, log)
		log.Info("payments enabled", "platform_fee_bps", cfg.PlatformFeeBps)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           api.NewRouter(routerCfg),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-rootCtx.Done():
		log.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			log.Error("http server error", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}

	log.Info("shutting down api-server")
}
