package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return p
}

func TestDefaults(t *testing.T) {
	c, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Dataset.WindowSize != 500 || c.Dataset.Step != 5 || c.Dataset.Speed != 0.1 {
		t.Fatalf("unexpected dataset defaults %+v", c.Dataset)
	}
	if c.Server.ShutdownTimeout != 10*time.Second {
		t.Fatalf("unexpected shutdown timeout %v", c.Server.ShutdownTimeout)
	}
	if !c.Server.CORS || c.Server.WSPingInterval != 30*time.Second {
		t.Fatalf("unexpected server defaults cors=%v ping=%v", c.Server.CORS, c.Server.WSPingInterval)
	}
	if c.Session.Store != "memory" || c.RedisNeeded() {
		t.Fatalf("memory store expected by default")
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	p := writeConfig(t, `
environment: test
dataset:
  path: /data/x.csv
  speed: 0.5
pipeline:
  retry_delay: 250ms
session:
  store: redis
`)
	c, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Dataset.Path != "/data/x.csv" || c.Dataset.Speed != 0.5 {
		t.Fatalf("unexpected dataset %+v", c.Dataset)
	}
	if c.Dataset.WindowSize != 500 {
		t.Fatalf("unset fields must keep defaults")
	}
	if c.Pipeline.RetryDelay != 250*time.Millisecond {
		t.Fatalf("duration not parsed: %v", c.Pipeline.RetryDelay)
	}
	if !c.RedisNeeded() {
		t.Fatalf("redis store should require redis")
	}
}

func TestValidate(t *testing.T) {
	cases := map[string]string{
		"bad speed":        "dataset:\n  speed: 0.2\n",
		"bad window":       "dataset:\n  window_size: -1\n",
		"bad store":        "session:\n  store: disk\n",
		"kafka no brokers": "sinks:\n  kafka: true\n",
	}
	for name, body := range cases {
		if _, err := Load(writeConfig(t, body)); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}

func TestLoadWithEnv(t *testing.T) {
	t.Setenv("REPLAY_DATASET", "/env/data.csv")
	t.Setenv("REPLAY_SPEED", "0.01")
	t.Setenv("KAFKA_BROKERS", "a:9092,b:9092")
	c, err := LoadWithEnv("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Dataset.Path != "/env/data.csv" || c.Dataset.Speed != 0.01 {
		t.Fatalf("env not applied %+v", c.Dataset)
	}
	if len(c.Kafka.Brokers) != 2 {
		t.Fatalf("brokers %v", c.Kafka.Brokers)
	}

	t.Setenv("REPLAY_SPEED", "fast")
	if _, err := LoadWithEnv(""); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected read error")
	}
}
