package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/fx"
)

type Config struct {
	AppEnv     string `mapstructure:"APP_ENV"`
	AppName    string `mapstructure:"APP_NAME"`
	AppVersion string `mapstructure:"APP_VERSION"`
	LogLevel   string `mapstructure:"LOG_LEVEL"`
	TLS        struct {
		Enable   bool   `mapstructure:"ENABLE"`
		CertPath string `mapstructure:"CERT_PATH"`
		KeyPath  string `mapstructure:"KEY_PATH"`
	} `mapstructure:"TLS"`
	Otel struct {
		Addr string `mapstructure:"ADDR"`
	} `mapstructure:"OTEL"`
	Server struct {
		Addr         string        `mapstructure:"ADDR"`
		ReadTimeout  time.Duration `mapstructure:"READ_TIMEOUT"`
		WriteTimeout time.Duration `mapstructure:"WRITE_TIMEOUT"`
		IdleTimeout  time.Duration `mapstructure:"IDLE_TIMEOUT"`
	} `mapstructure:"HTTP_SERVER"`
	Database struct {
		Type           string `mapstructure:"TYPE"`
		Host           string `mapstructure:"HOST"`
		Port           string `mapstructure:"PORT"`
		DBNAME         string `mapstructure:"DBNAME"`
		User           string `mapstructure:"USER"`
		Password       string `mapstructure:"PASSWORD"`
		SSLMode        string `mapstructure:"SSLMODE"`
		Timezone       string `mapstructure:"TIMEZONE"`
		AutoMigrate    bool   `mapstructure:"AUTO_MIGRATE"`
		Metrics        bool   `mapstructure:"METRICS"`
		ConnectionPool struct {
			MaxIdleConn     int           `mapstructure:"MAX_IDLE_CONN"`
			MaxOpenConns    int           `mapstructure:"MAX_OPEN_CONNS"`
			ConnMaxLifetime time.Duration `mapstructure:"CONN_MAX_LIFETIME"`
			ConnMaxIdleTime time.Duration `mapstructure:"CONN_MAX_IDLE_TIME"`
		} `mapstructure:"CONNECTION_POOL"`
	} `mapstructure:"DATABASE"`
	Redis struct {
		Addr        string        `mapstructure:"ADDR"`
		Password    string        `mapstructure:"PASSWORD"`
		DB          int           `mapstructure:"DB"`
		PoolSize    int           `mapstructure:"POOL_SIZE"`
		PoolTimeout time.Duration `mapstructure:"POOL_TIMEOUT"`
	} `mapstructure:"REDIS"`
	Lock struct {
		Driver        string        `mapstructure:"DRIVER"`
		TTL           time.Duration `mapstructure:"TTL"`
		WaitTimeout   time.Duration `mapstructure:"WAIT_TIMEOUT"`
		RetryInterval time.Duration `mapstructure:"RETRY_INTERVAL"`
	} `mapstructure:"LOCK"`
	Kickback struct {
		Timezone           string        `mapstructure:"TIMEZONE"`
		AsyncIntake        bool          `mapstructure:"ASYNC_INTAKE"`
		Queue              string        `mapstructure:"QUEUE"`
		MatcherCacheTTL    time.Duration `mapstructure:"MATCHER_CACHE_TTL"`
		StrictProductMatch bool          `mapstructure:"STRICT_PRODUCT_MATCH"`
		ExpiryHour         int           `mapstructure:"EXPIRY_HOUR"`
		WorkerConcurrency  int           `mapstructure:"WORKER_CONCURRENCY"`
	} `mapstructure:"KICKBACK"`
	Snowflake struct {
		Node int64 `mapstructure:"NODE"`
	} `mapstructure:"SNOWFLAKE"`
	AccessControl struct {
		Model  string `mapstructure:"MODEL"`
		Policy string `mapstructure:"POLICY"`
	} `mapstructure:"ACCESS_CONTROL"`
}

var Module = fx.Module("config", fx.Provide(LoadConfig))

// LoadConfig reads ./config.yaml and the environment. A broken config
// terminates the process.
func LoadConfig() *Config {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	cfg, err := Load(v)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

// Load applies defaults and env overrides to v and unmarshals the result. A
// missing config file is not an error.
func Load(v *viper.Viper) (*Config, error) {
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if _, err := time.LoadLocation(cfg.Kickback.Timezone); err != nil {
		return nil, fmt.Errorf("invalid KICKBACK.TIMEZONE %q: %w", cfg.Kickback.Timezone, err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("APP_NAME", "kickback-engine")
	v.SetDefault("APP_VERSION", "dev")
	v.SetDefault("LOG_LEVEL", "")

	v.SetDefault("HTTP_SERVER.ADDR", "8080")
	v.SetDefault("HTTP_SERVER.READ_TIMEOUT", 15*time.Second)
	v.SetDefault("HTTP_SERVER.WRITE_TIMEOUT", 15*time.Second)
	v.SetDefault("HTTP_SERVER.IDLE_TIMEOUT", 60*time.Second)

	v.SetDefault("DATABASE.TYPE", "postgres")
	v.SetDefault("DATABASE.HOST", "localhost")
	v.SetDefault("DATABASE.PORT", "5432")
	v.SetDefault("DATABASE.DBNAME", "kickback")
	v.SetDefault("DATABASE.USER", "")
	v.SetDefault("DATABASE.PASSWORD", "")
	v.SetDefault("DATABASE.SSLMODE", "disable")
	v.SetDefault("DATABASE.TIMEZONE", "UTC")
	v.SetDefault("DATABASE.AUTO_MIGRATE", true)
	v.SetDefault("DATABASE.METRICS", false)
	v.SetDefault("DATABASE.CONNECTION_POOL.MAX_IDLE_CONN", 10)
	v.SetDefault("DATABASE.CONNECTION_POOL.MAX_OPEN_CONNS", 50)
	v.SetDefault("DATABASE.CONNECTION_POOL.CONN_MAX_LIFETIME", time.Hour)
	v.SetDefault("DATABASE.CONNECTION_POOL.CONN_MAX_IDLE_TIME", 10*time.Minute)

	v.SetDefault("REDIS.ADDR", "localhost:6379")
	v.SetDefault("REDIS.PASSWORD", "")
	v.SetDefault("REDIS.DB", 0)
	v.SetDefault("REDIS.POOL_SIZE", 20)
	v.SetDefault("REDIS.POOL_TIMEOUT", 5*time.Second)

	v.SetDefault("OTEL.ADDR", "")
	v.SetDefault("TLS.ENABLE", false)

	v.SetDefault("LOCK.DRIVER", "redis")
	v.SetDefault("LOCK.TTL", 30*time.Second)
	v.SetDefault("LOCK.WAIT_TIMEOUT", 10*time.Second)
	v.SetDefault("LOCK.RETRY_INTERVAL", 50*time.Millisecond)

	v.SetDefault("KICKBACK.TIMEZONE", "Europe/Oslo")
	v.SetDefault("KICKBACK.ASYNC_INTAKE", true)
	v.SetDefault("KICKBACK.QUEUE", "kickback")
	v.SetDefault("KICKBACK.MATCHER_CACHE_TTL", 30*time.Second)
	v.SetDefault("KICKBACK.STRICT_PRODUCT_MATCH", false)
	v.SetDefault("KICKBACK.EXPIRY_HOUR", 1)
	v.SetDefault("KICKBACK.WORKER_CONCURRENCY", 10)

	v.SetDefault("SNOWFLAKE.NODE", 1)

	v.SetDefault("ACCESS_CONTROL.MODEL", "")
	v.SetDefault("ACCESS_CONTROL.POLICY", "")
}
