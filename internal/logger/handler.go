package logger

import (
	"log/slog"
	"strings"
	"time"

	slogzap "github.com/samber/slog-zap/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// newHandler собирает handler выбранного backend; *zap.Logger возвращается для Sync.
func newHandler(cfg Config) (slog.Handler, *zap.Logger) {
	if cfg.Backend != BackendZap {
		return slog.NewTextHandler(cfg.Output, &slog.HandlerOptions{
			Level:       cfg.level(),
			AddSource:   cfg.AddSource,
			ReplaceAttr: redact,
		}), nil
	}

	z := newZap(cfg)
	return slogzap.Option{
		Level:       cfg.level(),
		Logger:      z,
		AddSource:   cfg.AddSource,
		ReplaceAttr: redact,
	}.NewZapHandler(), z
}

func newZap(cfg Config) *zap.Logger {
	enc := zapcore.NewJSONEncoder(zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stack",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.MillisDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	})
	core := zapcore.NewCore(enc, zapcore.AddSync(cfg.Output), zapLevel(cfg.level()))

	// sampling по тексту сообщения: всплески "ws drop frame" и т.п. прореживаются
	core = zapcore.NewSamplerWithOptions(core, time.Second,
		orDefault(cfg.SampleInitial, 100), orDefault(cfg.SampleThereafter, 10))

	opts := []zap.Option{zap.AddStacktrace(zapcore.DPanicLevel)}
	if cfg.AddSource {
		opts = append(opts, zap.AddCaller(), zap.AddCallerSkip(1))
	}
	return zap.New(core, opts...)
}

func zapLevel(l slog.Level) zapcore.Level {
	switch {
	case l < slog.LevelInfo:
		return zapcore.DebugLevel
	case l < slog.LevelWarn:
		return zapcore.InfoLevel
	case l < slog.LevelError:
		return zapcore.WarnLevel
	}
	return zapcore.ErrorLevel
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// ключи, значения которых не должны попадать в логи
var secretKeys = map[string]struct{}{
	"token":          {},
	"access_token":   {},
	"authorization":  {},
	"internal_token": {},
}

func redact(_ []string, a slog.Attr) slog.Attr {
	if _, ok := secretKeys[strings.ToLower(a.Key)]; ok {
		return slog.String(a.Key, "REDACTED")
	}
	return a
}
