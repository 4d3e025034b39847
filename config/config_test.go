package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const minimal = `
http:
  addr: ":8080"
grpc:
  addr: ":9090"
storage:
  driver: memory
security:
  jwt:
    publicKeyPath: "/keys/pub.pem"
    issuer: "auth-service"
  internalToken: "secret"
`

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte(minimal))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Bus.Driver != "memory" || cfg.Bus.ChannelPrefix != "realtime" {
		t.Fatalf("bus defaults: %+v", cfg.Bus)
	}
	if cfg.WS.PingEvery != 15*time.Second || cfg.WS.SendBuffer != 64 || cfg.WS.ReadLimit != 1<<20 {
		t.Fatalf("ws defaults: %+v", cfg.WS)
	}
	if cfg.Chat.MaxMessageLength != 4000 {
		t.Fatalf("chat default: %d", cfg.Chat.MaxMessageLength)
	}
	if cfg.Logging.Service != "realtime-service" || cfg.HTTP.ShutdownTimeout != 10*time.Second {
		t.Fatalf("logging/http defaults: %+v %+v", cfg.Logging, cfg.HTTP)
	}
}

func TestParse_Durations(t *testing.T) {
	cfg, err := Parse([]byte(minimal + `
ws:
  pingEvery: 2s
  writeTimeout: 750ms
`))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.WS.PingEvery != 2*time.Second || cfg.WS.WriteTimeout != 750*time.Millisecond {
		t.Fatalf("durations: %+v", cfg.WS)
	}
}

func TestParse_Validation(t *testing.T) {
	cases := map[string]string{
		"postgres.dsn":      strings.Replace(minimal, "driver: memory", "driver: postgres", 1),
		"storage.driver":    strings.Replace(minimal, "driver: memory", "driver: sqlite", 1),
		"bus.redisURL":      minimal + "bus:\n  driver: redis\n",
		"internalToken":     strings.Replace(minimal, `internalToken: "secret"`, "", 1),
		"jwt.publicKeyPath": strings.Replace(minimal, `publicKeyPath: "/keys/pub.pem"`, "", 1),
		"storage.seed":      strings.Replace(minimal, "driver: memory", "driver: memory\n  seed:\n    - { id: 0, username: ghost }", 1),
	}
	for want, doc := range cases {
		_, err := Parse([]byte(doc))
		if err == nil || !strings.Contains(err.Error(), want) {
			t.Fatalf("expected error mentioning %q, got %v", want, err)
		}
	}
}

func TestParse_Seed(t *testing.T) {
	doc := strings.Replace(minimal, "driver: memory", "driver: memory\n  seed:\n    - { id: 3, username: alice }\n    - { id: 7, username: bob }", 1)
	cfg, err := Parse([]byte(doc))
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.Storage.Seed) != 2 || cfg.Storage.Seed[1] != (SeedUser{ID: 7, Username: "bob"}) {
		t.Fatalf("seed: %+v", cfg.Storage.Seed)
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(minimal), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_PATH", path)
	t.Setenv("HTTP_ADDR", ":18080")
	t.Setenv("INTERNAL_TOKEN", "from-env")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.HTTP.Addr != ":18080" || cfg.Security.InternalToken != "from-env" {
		t.Fatalf("env overrides not applied: %+v %+v", cfg.HTTP, cfg.Security)
	}
}
