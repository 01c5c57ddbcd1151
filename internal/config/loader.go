package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/rpattn/reportql/internal/cache"
	"github.com/rpattn/reportql/internal/db"
)

// Config is the full application configuration.
type Config struct {
	ServerAddr     string
	Debug          bool
	MigrationsPath string
	CacheSize      int
	CacheTTL       time.Duration
	Database       db.Config
}

// Load reads config.yaml from the given path with environment overrides
// (REPORTQL_SERVER_ADDR, REPORTQL_DATABASE_HOST, ...). A missing file is
// fine; defaults and env vars apply.
func Load(configPath string) (Config, error) {
	cfg := Config{
		ServerAddr:     ":8080",
		MigrationsPath: "./migrations",
		CacheSize:      cache.DefaultSize,
		CacheTTL:       cache.DefaultTTL,
		Database:       db.DefaultConfig(),
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AutomaticEnv()
	v.SetEnvPrefix("REPORTQL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.BindEnv("server.addr")
	v.BindEnv("server.debug")
	v.BindEnv("migrations.path")
	v.BindEnv("cache.size")
	v.BindEnv("cache.ttl")
	v.BindEnv("database.host")
	v.BindEnv("database.port")
	v.BindEnv("database.user")
	v.BindEnv("database.password")
	v.BindEnv("database.dbname")
	v.BindEnv("database.sslmode")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	if v.IsSet("server.addr") {
		cfg.ServerAddr = v.GetString("server.addr")
	}
	if v.IsSet("server.debug") {
		cfg.Debug = v.GetBool("server.debug")
	}
	if v.IsSet("migrations.path") {
		cfg.MigrationsPath = v.GetString("migrations.path")
	}
	if v.IsSet("cache.size") {
		cfg.CacheSize = v.GetInt("cache.size")
	}
	if v.IsSet("cache.ttl") {
		cfg.CacheTTL = v.GetDuration("cache.ttl")
	}
	if v.IsSet("database.host") {
		cfg.Database.Host = v.GetString("database.host")
	}
	if v.IsSet("database.port") {
		cfg.Database.Port = v.GetInt("database.port")
	}
	if v.IsSet("database.user") {
		cfg.Database.User = v.GetString("database.user")
	}
	if v.IsSet("database.password") {
		cfg.Database.Password = v.GetString("database.password")
	}
	if v.IsSet("database.dbname") {
		cfg.Database.DBName = v.GetString("database.dbname")
	}
	if v.IsSet("database.sslmode") {
		cfg.Database.SSLMode = v.GetString("database.sslmode")
	}

	return cfg, nil
}
