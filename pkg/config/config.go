package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/sakashimaa/go-marketplace/pkg/utils"
)

type Config struct {
	Env          string       `yaml:"env" env:"ENV" env-default:"local"`
	Logger       Logger       `yaml:"logger"`
	HTTP         HTTP         `yaml:"http"`
	Postgres     PG           `yaml:"postgres"`
	Redis        Redis        `yaml:"redis"`
	Kafka        Kafka        `yaml:"kafka"`
	Auth         Auth         `yaml:"auth"`
	Outbox       Outbox       `yaml:"outbox"`
	Recovery     Recovery     `yaml:"recovery"`
	Consumer     Consumer     `yaml:"consumer"`
	SMTP         SMTP         `yaml:"smtp"`
	Limiter      Limiter      `yaml:"limiter"`
	Catalog      Catalog      `yaml:"catalog"`
	Notification Notification `yaml:"notification"`
	Tracing      Tracing      `yaml:"tracing"`
}

type Logger struct {
	Level string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
}

type HTTP struct {
	Port    string        `yaml:"port" env:"HTTP_PORT" env-default:":3000"`
	Timeout time.Duration `yaml:"timeout" env-default:"4s"`
}

type PG struct {
	URL string `yaml:"url" env:"DB_URL"`
}

type Redis struct {
	Addr string `yaml:"addr" env:"REDIS_ADDR" env-default:"localhost:6379"`
}

type Kafka struct {
	Brokers []string `yaml:"brokers" env:"KAFKA_BROKERS" env-separator:"," env-default:"localhost:9092"`
}

type Auth struct {
	JWTSecret string `yaml:"jwt_secret" env:"ACCESS_SECRET"`
}

type Outbox struct {
	BatchSize int           `yaml:"batch_size" env-default:"50"`
	Interval  time.Duration `yaml:"interval" env-default:"500ms"`
}

// Recovery controls the sweep that releases reservations of orders that
// were never persisted. HoldTTL must comfortably exceed HTTP.Timeout.
type Recovery struct {
	HoldTTL  time.Duration `yaml:"hold_ttl" env:"RESERVATION_HOLD_TTL" env-default:"5m"`
	Interval time.Duration `yaml:"interval" env-default:"1m"`
}

type Consumer struct {
	AttemptTimeout time.Duration `yaml:"attempt_timeout" env-default:"10s"`
}

type SMTP struct {
	Host     string `yaml:"host" env:"SMTP_HOST"`
	Port     string `yaml:"port" env:"SMTP_PORT" env-default:"587"`
	User     string `yaml:"user" env:"SMTP_USER"`
	Password string `yaml:"password" env:"SMTP_PASSWORD"`
	From     string `yaml:"from" env:"SMTP_FROM"`
}

type Notification struct {
	Recipient string        `yaml:"recipient" env:"NOTIFICATION_RECIPIENT"`
	DedupTTL  time.Duration `yaml:"dedup_ttl" env-default:"168h"`
}

type Limiter struct {
	Max        int           `yaml:"max" env-default:"20"`
	Expiration time.Duration `yaml:"expiration" env-default:"5s"`
}

type Catalog struct {
	CacheTTL time.Duration `yaml:"cache_ttl" env-default:"10m"`
}

type Tracing struct {
	Endpoint       string  `yaml:"endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT" env-default:"localhost:4318"`
	SampleRatio    float64 `yaml:"sample_ratio" env:"TRACE_SAMPLE_RATIO" env-default:"1"`
	ServiceVersion string  `yaml:"service_version" env:"SERVICE_VERSION" env-default:"dev"`
}

func (c *Config) TracerConfig(service string) utils.TracerConfig {
	return utils.TracerConfig{
		ServiceName:    service,
		ServiceVersion: c.Tracing.ServiceVersion,
		Env:            c.Env,
		Endpoint:       c.Tracing.Endpoint,
		SampleRatio:    c.Tracing.SampleRatio,
	}
}

func MustLoad() *Config {
	configPath := utils.ParseWithFallback("CONFIG_PATH", "./config/local.yaml")

	cfg, err := Load(configPath)
	if err != nil {
		log.Fatalf("error reading config: %v", err)
	}

	return cfg
}

func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file does not exist: %w", err)
	}

	var cfg Config
	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	return &cfg, nil
}
