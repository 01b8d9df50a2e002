// Package config loads service settings from defaults, an optional YAML file
// and SHOP_* environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

const envPrefix = "SHOP"

type Config struct {
	Service  string `mapstructure:"service"`
	HTTPAddr string `mapstructure:"http_addr"`
	LogLevel string `mapstructure:"log_level"`

	// DatabaseURL selects the Postgres stores; empty means in-memory stores.
	DatabaseURL string `mapstructure:"database_url"`

	Redis    RedisConfig    `mapstructure:"redis"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Payments PaymentsConfig `mapstructure:"payments"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Checkout CheckoutConfig `mapstructure:"checkout"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

type RedisConfig struct {
	// Addr selects the Redis cache backend; empty means in-process cache.
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type CacheConfig struct {
	ItemTTL time.Duration `mapstructure:"item_ttl"`
	PageTTL time.Duration `mapstructure:"page_ttl"`
}

type PaymentsConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
	// Balance is what the mock payments service reports.
	Balance string `mapstructure:"balance"`
}

type KafkaConfig struct {
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
}

type CheckoutConfig struct {
	FinalizeAttempts  int           `mapstructure:"finalize_attempts"`
	FinalizeBackoff   time.Duration `mapstructure:"finalize_backoff"`
	ReconcileInterval time.Duration `mapstructure:"reconcile_interval"`
	BuyLimitPerMin    int           `mapstructure:"buy_limit_per_min"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Token   string `mapstructure:"token"`
}

func setDefaults(v *viper.Viper, service, addr string) {
	v.SetDefault("service", service)
	v.SetDefault("http_addr", addr)
	v.SetDefault("log_level", "info")
	v.SetDefault("database_url", "")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("cache.item_ttl", 10*time.Minute)
	v.SetDefault("cache.page_ttl", 5*time.Minute)

	v.SetDefault("payments.url", "http://localhost:8090")
	v.SetDefault("payments.timeout", 3*time.Second)
	v.SetDefault("payments.balance", "1000")

	v.SetDefault("kafka.brokers", "")
	v.SetDefault("kafka.topic", "shop.orders")

	v.SetDefault("checkout.finalize_attempts", 3)
	v.SetDefault("checkout.finalize_backoff", 200*time.Millisecond)
	v.SetDefault("checkout.reconcile_interval", time.Minute)
	v.SetDefault("checkout.buy_limit_per_min", 30)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.token", "")
}

// Load reads configuration for service. path may be empty.
func Load(service, defaultAddr, path string) (Config, error) {
	v := viper.New()
	setDefaults(v, service, defaultAddr)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	var errs []error

	if c.HTTPAddr == "" {
		errs = append(errs, errors.New("http_addr is required"))
	}
	if c.Cache.ItemTTL <= 0 || c.Cache.PageTTL <= 0 {
		errs = append(errs, errors.New("cache ttls must be positive"))
	}
	if c.Payments.Timeout <= 0 {
		errs = append(errs, errors.New("payments.timeout must be positive"))
	}
	if _, err := decimal.NewFromString(c.Payments.Balance); err != nil {
		errs = append(errs, fmt.Errorf("payments.balance: %w", err))
	}
	if c.Checkout.FinalizeAttempts < 1 {
		errs = append(errs, errors.New("checkout.finalize_attempts must be >= 1"))
	}
	if c.Checkout.ReconcileInterval <= 0 {
		errs = append(errs, errors.New("checkout.reconcile_interval must be positive"))
	}

	return errors.Join(errs...)
}

// KafkaBrokers splits the comma separated broker list, dropping blanks.
func (c Config) KafkaBrokers() []string {
	var out []string
	for _, b := range strings.Split(c.Kafka.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

func (c Config) PaymentsBalance() decimal.Decimal {
	d, err := decimal.NewFromString(c.Payments.Balance)
	if err != nil {
		return decimal.Zero
	}
	return d
}
