package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestDetectEnv(t *testing.T) {
	t.Setenv("APP_ENV", "")
	if got := DetectEnv(); got != EnvDev {
		t.Fatalf("default should be dev, got %q", got)
	}

	t.Setenv("APP_ENV", "staging")
	if got := DetectEnv(); got != EnvStage {
		t.Fatalf("expected stage, got %q", got)
	}

	t.Setenv("APP_ENV", "Production")
	if got := DetectEnv(); got != EnvProd {
		t.Fatalf("expected prod, got %q", got)
	}
}

func TestInit_DevStd_TextOutput(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{
		Service: "demo",
		Version: "v0.0.1",
		Env:     EnvDev,
		Backend: BackendStd,
		Level:   slog.LevelDebug,
		Output:  &buf,
	})

	slog.Info("Hello world")

	out := buf.String()
	if strings.HasPrefix(strings.TrimSpace(out), "{") {
		t.Fatalf("expected text output in dev/std, got JSON: %s", out)
	}
	for _, want := range []string{"Hello world", "service=demo", "env=dev"} {
		if !strings.Contains(out, want) {
			t.Fatalf("%q missing: %s", want, out)
		}
	}
}

func TestInit_ProdZap_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{
		Service:          "demo",
		Version:          "1.2.3",
		Env:              EnvProd,
		Backend:          BackendZap,
		Level:            slog.LevelInfo,
		Output:           &buf,
		SampleInitial:    100000,
		SampleThereafter: 100000,
	})

	slog.Info("booted", slog.String("k", "v"))
	_ = Sync()

	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("expected JSON line, got %s, err=%v", buf.String(), err)
	}
	if m["msg"] != "booted" {
		t.Fatalf("msg mismatch: %v", m["msg"])
	}
	if m["service"] != "demo" || m["env"] != "prod" || m["version"] != "1.2.3" {
		t.Fatalf("attrs missing: service=%v env=%v version=%v", m["service"], m["env"], m["version"])
	}
	if m["level"] != "INFO" {
		t.Fatalf("level mismatch: %v", m["level"])
	}
	if m["k"] != "v" {
		t.Fatalf("custom field missing: %v", m["k"])
	}
}

func TestFromContext_PropagatesTraceIDs(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{
		Service:          "demo",
		Env:              EnvProd,
		Backend:          BackendZap,
		Output:           &buf,
		SampleInitial:    100000,
		SampleThereafter: 100000,
	})

	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()

	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	FromContext(ctx).InfoContext(ctx, "with trace")
	span.End()
	_ = Sync()

	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("expected JSON, got: %s, err=%v", buf.String(), err)
	}
	if m["trace_id"] != span.SpanContext().TraceID().String() {
		t.Fatalf("trace_id mismatch in log: %v", m)
	}
	if m["span_id"] == nil {
		t.Fatalf("span_id missing in log: %v", m)
	}
}

func TestFromContext_UsesScopedLogger(t *testing.T) {
	var buf bytes.Buffer
	base := Init(Config{Service: "demo", Env: EnvDev, Backend: BackendStd, Output: &buf})

	ctx := WithContext(context.Background(), base.With(Conn("c1", 7, "chat")))
	FromContext(ctx).Info("scoped")

	if !strings.Contains(buf.String(), "conn.id=c1") || !strings.Contains(buf.String(), "conn.user=7") {
		t.Fatalf("scoped attrs missing: %s", buf.String())
	}
}

func TestInit_RedactsSecrets(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Service: "demo", Env: EnvDev, Backend: BackendStd, Output: &buf})

	slog.Info("handshake", slog.String("token", "eyJhbGciOi"), slog.String("user", "alice"))

	out := buf.String()
	if strings.Contains(out, "eyJhbGciOi") || !strings.Contains(out, "token=REDACTED") {
		t.Fatalf("token must be redacted: %s", out)
	}
	if !strings.Contains(out, "user=alice") {
		t.Fatalf("regular attrs must survive: %s", out)
	}
}

func TestZapLevelMapping(t *testing.T) {
	cases := map[slog.Level]string{
		slog.LevelDebug: "debug",
		slog.LevelInfo:  "info",
		slog.LevelWarn:  "warn",
		slog.LevelError: "error",
	}
	for in, want := range cases {
		if got := zapLevel(in).String(); got != want {
			t.Fatalf("%s: expected %s, got %s", in, want, got)
		}
	}
}
