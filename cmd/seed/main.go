package main

import (
	"context"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/tillworks/till/internal/adapter/auth"
	"github.com/tillworks/till/internal/adapter/storage"
	"github.com/tillworks/till/internal/config"
	"github.com/tillworks/till/internal/port"
)

// Seeds a demo catalog and prints an operator session token so the
// terminal can be exercised against a fresh database.
func main() {
	log := logrus.New()

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("failed to load configuration")
	}

	ctx := context.Background()

	db, err := sqlx.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.WithError(err).Fatal("failed to connect mysql")
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		log.WithError(err).Fatal("failed to ping mysql")
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.WithError(err).Fatal("failed to connect redis")
	}

	catalog := storage.NewMySQLAdapter(db)

	products := []port.ProductFields{
		{Name: "Americano", Price: decimal.NewFromFloat(3.50), SKU: "BEV-AMER-12", Category: "Beverages", StockQuantity: 120},
		{Name: "Cold Brew", Price: decimal.NewFromFloat(4.75), SKU: "BEV-COLD-16", Category: "Beverages", StockQuantity: 60},
		{Name: "Butter Croissant", Price: decimal.NewFromFloat(2.95), SKU: "BAK-CROI-01", Category: "Bakery", StockQuantity: 40},
		{Name: "Blueberry Muffin", Price: decimal.NewFromFloat(3.25), SKU: "BAK-MUFF-02", Category: "Bakery", StockQuantity: 35},
		{Name: "Ceramic Mug", Price: decimal.NewFromFloat(12.00), SKU: "MRC-MUG-01", Category: "Merchandise", StockQuantity: 18},
	}

	for _, fields := range products {
		p, err := catalog.CreateProduct(ctx, fields)
		if err != nil {
			log.WithError(err).WithField("sku", fields.SKU).Warn("skipping product")
			continue
		}
		log.WithFields(logrus.Fields{"sku": p.SKU, "id": p.ID}).Info("seeded product")
	}

	sessions := auth.NewRedisAuth(rdb, cfg.SessionTTL)
	token, err := sessions.CreateSession(ctx, port.User{ID: "operator-1", Email: "operator@example.com"})
	if err != nil {
		log.WithError(err).Fatal("failed to create operator session")
	}
	log.WithField("token", token).Info("operator session ready")
}
