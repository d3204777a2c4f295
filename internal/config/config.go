package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/rl1809/stock-ledger/internal/logger"
)

type Config struct {
	App struct {
		Env string
	} `mapstructure:"app"`

	HTTP struct {
		Addr            string
		ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	} `mapstructure:"http"`

	GRPC struct {
		Addr           string
		HealthInterval time.Duration `mapstructure:"health_interval"`
	} `mapstructure:"grpc"`

	Database struct {
		Driver          string
		DSN             string
		MaxOpenConns    int           `mapstructure:"max_open_conns"`
		MaxIdleConns    int           `mapstructure:"max_idle_conns"`
		ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
		LockTimeout     time.Duration `mapstructure:"lock_timeout"`
		Migrate         bool
	} `mapstructure:"database"`

	Redis struct {
		Enabled  bool
		Addr     string
		Password string
		DB       int
	} `mapstructure:"redis"`

	Cache struct {
		RecipeCostTTL  time.Duration `mapstructure:"recipe_cost_ttl"`
		IdempotencyTTL time.Duration `mapstructure:"idempotency_ttl"`
	} `mapstructure:"cache"`

	Logger logger.Config `mapstructure:"logger"`

	Metrics struct {
		Enabled bool
	} `mapstructure:"metrics"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "production")
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.shutdown_timeout", 10*time.Second)
	v.SetDefault("grpc.addr", ":50051")
	v.SetDefault("grpc.health_interval", 15*time.Second)
	v.SetDefault("database.driver", "memory")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 50)
	v.SetDefault("database.max_idle_conns", 25)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("database.lock_timeout", 5*time.Second)
	v.SetDefault("database.migrate", true)
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("cache.recipe_cost_ttl", 30*time.Second)
	v.SetDefault("cache.idempotency_ttl", 24*time.Hour)
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.encoding", "json")
	v.SetDefault("logger.development", false)
	v.SetDefault("logger.disable_caller", false)
	v.SetDefault("logger.disable_stacktrace", false)
	v.SetDefault("metrics.enabled", true)
}

// Load reads configuration from an optional file at path, then from LEDGER_*
// environment variables (database.dsn is LEDGER_DATABASE_DSN). A .env file in
// the working directory is loaded into the environment first when present.
func Load(path string) (Config, error) {
	var c Config
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return c, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("LEDGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return c, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	if err := v.Unmarshal(&c); err != nil {
		return c, fmt.Errorf("decode config: %w", err)
	}
	if err := c.validate(); err != nil {
		return c, err
	}
	return c, nil
}

func (c Config) validate() error {
	switch c.Database.Driver {
	case "memory":
	case "mysql", "postgres", "sqlite3":
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for driver %s", c.Database.Driver)
		}
	default:
		return fmt.Errorf("unsupported database.driver %q", c.Database.Driver)
	}
	if c.Cache.IdempotencyTTL <= 0 || c.Cache.RecipeCostTTL <= 0 {
		return errors.New("cache ttls must be positive")
	}
	if c.GRPC.HealthInterval <= 0 {
		return errors.New("grpc.health_interval must be positive")
	}
	return nil
}

func (c Config) Development() bool {
	return c.App.Env == "development"
}
