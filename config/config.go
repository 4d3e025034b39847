package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/cwrk-planet/realtime-service/internal/postgres"
)

type HTTP struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	IdleTimeout     time.Duration `yaml:"idleTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	AllowedOrigins  []string      `yaml:"allowedOrigins"` // CORS
}

type GRPC struct {
	Addr string `yaml:"addr"`
}

type Logging struct {
	Env       string `yaml:"env"`       // dev|stage|prod
	Service   string `yaml:"service"`   // realtime-service
	Version   string `yaml:"version"`   // v0.1.0
	Backend   string `yaml:"backend"`   // std|zap
	AddSource bool   `yaml:"addSource"` // false|true
	Debug     bool   `yaml:"debug"`     // false|true
}

type SeedUser struct {
	ID       int64  `yaml:"id"`
	Username string `yaml:"username"`
}

type Storage struct {
	Driver string     `yaml:"driver"` // postgres|memory
	Seed   []SeedUser `yaml:"seed"`   // только для memory
}

type Postgres struct {
	DSN               string        `yaml:"dsn"`
	MaxConns          int32         `yaml:"maxConns"`
	MinConns          int32         `yaml:"minConns"`
	MaxConnLifetime   time.Duration `yaml:"maxConnLifetime"`
	MaxConnIdleTime   time.Duration `yaml:"maxConnIdleTime"`
	HealthCheckPeriod time.Duration `yaml:"healthCheckPeriod"`
	ApplicationName   string        `yaml:"applicationName"`
}

func (p Postgres) ToPGConfig() postgres.Config {
	return postgres.Config{
		DSN:               p.DSN,
		MaxConns:          p.MaxConns,
		MinConns:          p.MinConns,
		MaxConnLifetime:   p.MaxConnLifetime,
		MaxConnIdleTime:   p.MaxConnIdleTime,
		HealthCheckPeriod: p.HealthCheckPeriod,
		ApplicationName:   p.ApplicationName,
	}
}

type Bus struct {
	Driver        string `yaml:"driver"` // memory|redis
	RedisURL      string `yaml:"redisURL"`
	ChannelPrefix string `yaml:"channelPrefix"`
}

type JWT struct {
	PublicKeyPath string        `yaml:"publicKeyPath"` // обязательно
	Issuer        string        `yaml:"issuer"`        // обязательно
	Audience      string        `yaml:"audience"`
	ClockSkew     time.Duration `yaml:"clockSkew"` // напр. 30s
}

func (j JWT) Validate() error {
	if j.PublicKeyPath == "" {
		return errors.New("security.jwt.publicKeyPath is required")
	}
	if j.Issuer == "" {
		return errors.New("security.jwt.issuer is required")
	}
	if j.ClockSkew < 0 || j.ClockSkew > time.Minute {
		return errors.New("security.jwt.clockSkew must be in [0..1m]")
	}
	return nil
}

type Security struct {
	JWT JWT `yaml:"jwt"`
	// InternalToken защищает входы для внутренних продюсеров уведомлений (HTTP и gRPC).
	InternalToken string `yaml:"internalToken"`
}

type WS struct {
	PingEvery    time.Duration `yaml:"pingEvery"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	SendBuffer   int           `yaml:"sendBuffer"`
	ReadLimit    int64         `yaml:"readLimit"`
}

type Chat struct {
	MaxMessageLength int `yaml:"maxMessageLength"`
}

type Config struct {
	HTTP     HTTP     `yaml:"http"`
	GRPC     GRPC     `yaml:"grpc"`
	Logging  Logging  `yaml:"logging"`
	Storage  Storage  `yaml:"storage"`
	Postgres Postgres `yaml:"postgres"`
	Bus      Bus      `yaml:"bus"`
	Security Security `yaml:"security"`
	WS       WS       `yaml:"ws"`
	Chat     Chat     `yaml:"chat"`
}

// LoadConfig читает .env (если есть), YAML из CONFIG_PATH и применяет переопределения из окружения.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "./config/config.yaml"
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	override := func(dst *string, key string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	override(&c.HTTP.Addr, "HTTP_ADDR")
	override(&c.GRPC.Addr, "GRPC_ADDR")
	override(&c.Postgres.DSN, "POSTGRES_DSN")
	override(&c.Bus.RedisURL, "REDIS_URL")
	override(&c.Security.InternalToken, "INTERNAL_TOKEN")
	override(&c.Logging.Env, "APP_ENV")
}

func (c *Config) validate() error {
	if c.HTTP.Addr == "" {
		return errors.New("http.addr is required")
	}
	if c.GRPC.Addr == "" {
		return errors.New("grpc.addr is required")
	}

	switch c.Storage.Driver {
	case "":
		c.Storage.Driver = "postgres"
		fallthrough
	case "postgres":
		if c.Postgres.DSN == "" {
			return errors.New("postgres.dsn is required")
		}
	case "memory":
		for _, u := range c.Storage.Seed {
			if u.ID <= 0 || u.Username == "" {
				return errors.New("storage.seed entries need id and username")
			}
		}
	default:
		return fmt.Errorf("storage.driver %q is not supported", c.Storage.Driver)
	}

	switch c.Bus.Driver {
	case "":
		c.Bus.Driver = "memory"
	case "memory":
	case "redis":
		if c.Bus.RedisURL == "" {
			return errors.New("bus.redisURL is required for redis driver")
		}
	default:
		return fmt.Errorf("bus.driver %q is not supported", c.Bus.Driver)
	}

	if err := c.Security.JWT.Validate(); err != nil {
		return err
	}
	if c.Security.InternalToken == "" {
		return errors.New("security.internalToken is required")
	}

	// установка дефолтов, если значения не указаны
	if c.HTTP.ReadTimeout <= 0 {
		c.HTTP.ReadTimeout = 10 * time.Second
	}
	if c.HTTP.WriteTimeout <= 0 {
		c.HTTP.WriteTimeout = 15 * time.Second
	}
	if c.HTTP.IdleTimeout <= 0 {
		c.HTTP.IdleTimeout = 60 * time.Second
	}
	if c.HTTP.ShutdownTimeout <= 0 {
		c.HTTP.ShutdownTimeout = 10 * time.Second
	}
	if c.Logging.Service == "" {
		c.Logging.Service = "realtime-service"
	}
	if c.Logging.Env == "" {
		c.Logging.Env = "dev"
	}
	if c.Logging.Version == "" {
		c.Logging.Version = "v0.1.0"
	}
	if c.Postgres.ApplicationName == "" {
		c.Postgres.ApplicationName = c.Logging.Service
	}
	if c.Bus.ChannelPrefix == "" {
		c.Bus.ChannelPrefix = "realtime"
	}
	if c.WS.PingEvery <= 0 {
		c.WS.PingEvery = 15 * time.Second
	}
	if c.WS.WriteTimeout <= 0 {
		c.WS.WriteTimeout = 5 * time.Second
	}
	if c.WS.SendBuffer <= 0 {
		c.WS.SendBuffer = 64
	}
	if c.WS.ReadLimit <= 0 {
		c.WS.ReadLimit = 1 << 20
	}
	if c.Chat.MaxMessageLength <= 0 {
		c.Chat.MaxMessageLength = 4000
	}
	return nil
}
