package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/golang-migrate/migrate/v4"
	migratemysql "github.com/golang-migrate/migrate/v4/database/mysql"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/tillworks/till/internal/adapter/auth"
	"github.com/tillworks/till/internal/adapter/barcode"
	"github.com/tillworks/till/internal/adapter/handler"
	"github.com/tillworks/till/internal/adapter/storage"
	"github.com/tillworks/till/internal/config"
	"github.com/tillworks/till/internal/core/cart"
	"github.com/tillworks/till/internal/core/service"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("failed to load configuration")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := sqlx.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.WithError(err).Fatal("failed to connect mysql")
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		log.WithError(err).Fatal("failed to ping mysql")
	}
	log.Info("connected to mysql")

	if err := runMigrations(db, cfg.MigrationsPath); err != nil {
		log.WithError(err).Fatal("failed to run migrations")
	}
	log.Info("migrations applied")

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		PoolSize: 100,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.WithError(err).Fatal("failed to connect redis")
	}
	log.Info("connected to redis")

	mysqlAdapter := storage.NewMySQLAdapter(db)
	redisAdapter := storage.NewRedisAdapter(rdb, cfg.ProductCacheTTL)
	authProvider := auth.NewRedisAuth(rdb, cfg.SessionTTL)
	decoder := barcode.NewWedgeDecoder()

	carts := cart.NewRegistry(cfg.ParsedTaxRate())
	catalogService := service.NewCatalogService(mysqlAdapter, redisAdapter, decoder, log)
	checkoutService := service.NewCheckoutService(mysqlAdapter, mysqlAdapter, redisAdapter, log)
	reportService := service.NewReportService(mysqlAdapter)

	httpHandler := handler.NewHTTPHandler(catalogService, checkoutService, reportService, carts, authProvider, log)

	httpServer := &http.Server{
		Addr:    cfg.HTTPPort,
		Handler: httpHandler.Router(),
	}

	go func() {
		log.WithField("addr", cfg.HTTPPort).Info("HTTP server listening")
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("HTTP server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("HTTP server shutdown error")
	}
	log.Info("HTTP server stopped")

	rdb.Close()
	db.Close()
	log.Info("connections closed")
}

func runMigrations(db *sqlx.DB, path string) error {
	driver, err := migratemysql.WithInstance(db.DB, &migratemysql.Config{})
	if err != nil {
		return err
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+path, "mysql", driver)
	if err != nil {
		return err
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}
