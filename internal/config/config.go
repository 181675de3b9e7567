package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

type Config struct {
	HTTPPort        string        `envconfig:"HTTP_PORT" default:":8080"`
	MySQLDSN        string        `envconfig:"MYSQL_DSN" default:"root:root@tcp(localhost:3306)/till?parseTime=true&multiStatements=true"`
	RedisAddr       string        `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	MigrationsPath  string        `envconfig:"MIGRATIONS_PATH" default:"migrations"`
	ProductCacheTTL time.Duration `envconfig:"PRODUCT_CACHE_TTL" default:"5m"`
	SessionTTL      time.Duration `envconfig:"SESSION_TTL" default:"12h"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"5s"`

	// Two historical flows disagreed on the rate (8% vs 10%), so it is
	// configuration, never a constant in code.
	TaxRate string `envconfig:"TAX_RATE" default:"0.08"`
}

func Load() (Config, error) {
	var c Config
	if err := envconfig.Process("till", &c); err != nil {
		return Config{}, errors.Wrap(err, "parse environment")
	}
	if _, err := decimal.NewFromString(c.TaxRate); err != nil {
		return Config{}, errors.Wrapf(err, "invalid TAX_RATE %q", c.TaxRate)
	}
	return c, nil
}

// ParsedTaxRate returns the tax rate as a decimal. Load has already
// validated the string.
func (c Config) ParsedTaxRate() decimal.Decimal {
	rate, _ := decimal.NewFromString(c.TaxRate)
	return rate
}
