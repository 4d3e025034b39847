package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

type Env string

const (
	EnvDev   Env = "dev"
	EnvStage Env = "stage"
	EnvProd  Env = "prod"
)

// DetectEnv читает APP_ENV; всё неизвестное считается dev.
func DetectEnv() Env {
	return ParseEnv(os.Getenv("APP_ENV"))
}

func ParseEnv(raw string) Env {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "prod", "production":
		return EnvProd
	case "stage", "staging", "preprod":
		return EnvStage
	}
	return EnvDev
}

type Backend string

const (
	BackendStd Backend = "std" // text, dev
	BackendZap Backend = "zap" // JSON через slog-zap
)

type Config struct {
	Service    string
	Version    string
	InstanceID string // default: hostname-<uuid8>

	Level   slog.Level
	Debug   bool // Debug при нулевом Level
	Env     Env  // default: APP_ENV
	Backend Backend
	Output  io.Writer // default: os.Stdout

	// zap sampling за секунду: первые SampleInitial, затем каждое SampleThereafter-е
	SampleInitial    int
	SampleThereafter int

	AddSource bool
}

func (c Config) withDefaults() Config {
	if c.Env == "" {
		c.Env = DetectEnv()
	}
	if c.Service == "" {
		c.Service = "realtime-service"
	}
	if c.Output == nil {
		c.Output = os.Stdout
	}
	c.InstanceID = ensureInstanceID(c.InstanceID)
	if c.Backend == "" {
		c.Backend = BackendZap
		if c.Env == EnvDev {
			c.Backend = BackendStd
		}
	}
	return c
}

func (c Config) level() slog.Level {
	if c.Debug && c.Level == 0 {
		return slog.LevelDebug
	}
	return c.Level
}
