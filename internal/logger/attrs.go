package logger

import (
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
)

func ensureInstanceID(v string) string {
	if v != "" {
		return v
	}

	hn, _ := os.Hostname()
	return hn + "-" + uuid.New().String()[:8]
}

func commonAttr(cfg Config) []slog.Attr {
	return []slog.Attr{
		slog.String("service", cfg.Service),
		slog.String("env", string(cfg.Env)),
		slog.String("version", cfg.Version),
		slog.String("instance_id", cfg.InstanceID),
		slog.Time("started_at", time.Now()),
	}
}

// Conn — атрибуты websocket-соединения для логов.
func Conn(connID string, userID int64, kind string) slog.Attr {
	return slog.Group("conn",
		slog.String("id", connID),
		slog.Int64("user", userID),
		slog.String("kind", kind),
	)
}

func Err(err error) slog.Attr {
	return slog.Any("err", err)
}
