package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/iliyamo/ticket-reservation/internal/config"
	"github.com/iliyamo/ticket-reservation/internal/database"
	"github.com/iliyamo/ticket-reservation/internal/handler"
	"github.com/iliyamo/ticket-reservation/internal/logger"
	"github.com/iliyamo/ticket-reservation/internal/middleware"
	"github.com/iliyamo/ticket-reservation/internal/queue"
	"github.com/iliyamo/ticket-reservation/internal/repository"
	"github.com/iliyamo/ticket-reservation/internal/router"
	"github.com/iliyamo/ticket-reservation/internal/service"
)

func main() {
	_ = godotenv.Load() // .env is optional; real env vars win
	cfg := config.Load()

	lg, err := logger.New(cfg.Env)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	store, db := openStore(cfg, lg)
	if db != nil {
		defer db.Close()
	}

	var events service.EventPublisher
	if cfg.EventsEnabled {
		events = queue.NewPublisher(cfg.RabbitMQURL, lg.Named("events"))
	}
	svc := service.NewReservationService(store, events, lg.Named("reservation"))

	rdb := config.NewRedisClient(config.LoadRedisConfig())
	if rdb == nil {
		lg.Warn("redis unavailable, rate limiting and response cache disabled")
	} else {
		defer rdb.Close()
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(middleware.RequestLogger(lg.Named("http")))
	e.Use(echomw.ContextTimeoutWithConfig(echomw.ContextTimeoutConfig{Timeout: cfg.RequestTimeout}))

	deps := router.Deps{
		Selection: handler.NewSelectionHandler(svc),
		Category:  handler.NewCategoryHandler(svc),
		JWTSecret: cfg.JWTSecret,
		RateLimit: middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, lg.Named("ratelimit")),
	}
	cacheCfg := config.LoadCacheConfig()
	deps.Cache = middleware.NewResponseCache(cacheCfg, rdb, lg.Named("cache"))
	deps.Invalidate = middleware.NewCacheInvalidator(cacheCfg, rdb, lg.Named("cache"))
	if db != nil {
		deps.Ready = handler.Ready(db)
	} else {
		deps.Ready = handler.Ready(nil)
	}
	router.RegisterRoutes(e, deps)
	router.RegisterPublic(e, deps)
	router.RegisterReservations(e, deps)

	addr := ":" + cfg.Port
	go func() {
		lg.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env), zap.String("store", cfg.StoreDriver))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		lg.Error("shutdown", zap.Error(err))
	}
}

// openStore returns the configured seat store.  db is nil for the memory
// driver.
func openStore(cfg config.Config, lg *zap.Logger) (repository.SeatStore, *sql.DB) {
	if cfg.StoreDriver == config.DriverMemory {
		lg.Warn("using in-memory store, state is lost on restart")
		return repository.NewMemorySeatStore(), nil
	}

	db, err := database.Open(database.Options{
		User: cfg.DBUser, Pass: cfg.DBPass, Host: cfg.DBHost, Port: cfg.DBPort, Name: cfg.DBName,
		MaxOpenConns: cfg.DBMaxOpenConns,
	})
	if err != nil {
		lg.Fatal("database", zap.Error(err))
	}
	if cfg.DBMigrate {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := repository.Migrate(ctx, db); err != nil {
			lg.Fatal("migrate", zap.Error(err))
		}
	}
	return repository.NewMySQLSeatStore(db), db
}
