package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const EnvPrefix = "PERSEDIAAN"

type Config struct {
	App       AppConfig
	DB        DBConfig
	Redis     RedisConfig
	Auth      AuthConfig
	Numbering NumberingConfig
	Restock   RestockConfig
}

type AppConfig struct {
	Port          string `envconfig:"PERSEDIAAN_PORT" default:"8080"`
	AllowedOrigin string `envconfig:"PERSEDIAAN_ALLOWED_ORIGIN" default:"http://127.0.0.1:3000"`
	LogLevel      string `envconfig:"PERSEDIAAN_LOG_LEVEL" default:"info"`
	LogFormat     string `envconfig:"PERSEDIAAN_LOG_FORMAT" default:"json"`
}

type DBConfig struct {
	URL             string        `envconfig:"PERSEDIAAN_DATABASE_URL"`
	MaxOpenConns    int           `envconfig:"PERSEDIAAN_DB_MAX_OPEN_CONNS" default:"30"`
	MaxIdleConns    int           `envconfig:"PERSEDIAAN_DB_MAX_IDLE_CONNS" default:"8"`
	ConnMaxLifetime time.Duration `envconfig:"PERSEDIAAN_DB_CONN_MAX_LIFETIME" default:"30m"`
	AutoMigrate     bool          `envconfig:"PERSEDIAAN_AUTO_MIGRATE" default:"false"`
}

type RedisConfig struct {
	Addr     string `envconfig:"PERSEDIAAN_REDIS_ADDR"`
	Password string `envconfig:"PERSEDIAAN_REDIS_PASSWORD"`
	DB       int    `envconfig:"PERSEDIAAN_REDIS_DB" default:"0"`
}

type AuthConfig struct {
	Secret         string        `envconfig:"PERSEDIAAN_AUTH_SECRET"`
	AccessTokenTTL time.Duration `envconfig:"PERSEDIAAN_ACCESS_TOKEN_TTL" default:"8h"`
}

type NumberingConfig struct {
	MaxAttempts int `envconfig:"PERSEDIAAN_NUMBER_MAX_ATTEMPTS" default:"3"`
}

type RestockConfig struct {
	CacheTTL   time.Duration `envconfig:"PERSEDIAAN_RESTOCK_CACHE_TTL" default:"60s"`
	WindowDays int           `envconfig:"PERSEDIAAN_RESTOCK_WINDOW_DAYS" default:"30"`
}

// Load reads an optional .env file and then the process environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("loading .env: %w", err)
	}

	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}
	cfg.Auth.Secret = strings.TrimSpace(cfg.Auth.Secret)
	if cfg.Numbering.MaxAttempts < 1 {
		cfg.Numbering.MaxAttempts = 3
	}
	if cfg.Restock.WindowDays < 1 {
		cfg.Restock.WindowDays = 30
	}
	return cfg, nil
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.App.Port)
}
