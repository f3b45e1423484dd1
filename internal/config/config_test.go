package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFromEnv_Defaults(t *testing.T) {
	c, err := FromEnv()
	if err != nil {
		t.Fatalf("from env: %v", err)
	}
	if c.App.Env != "dev" || c.Log.Level != "info" || c.Server.Addr != ":8080" {
		t.Fatalf("defaults base: %+v", c)
	}
	if c.Storage.Driver != "fs" || c.Storage.FSRoot != "./data/buzonero" {
		t.Fatalf("defaults storage: %+v", c.Storage)
	}
	if c.Dispatch.DailyLimit != 300 || c.Dispatch.WarningThreshold != 200 {
		t.Fatalf("defaults dispatch: %+v", c.Dispatch)
	}
	if c.PaceDuration() != 2*time.Second {
		t.Fatalf("pace = %s", c.PaceDuration())
	}
	if c.Rate.Backend != "memory" || c.SendWindow() != time.Minute {
		t.Fatalf("defaults rate: %+v", c.Rate)
	}
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("DISPATCH_DAILY_LIMIT", "10")
	t.Setenv("DISPATCH_WARNING_THRESHOLD", "5")
	t.Setenv("DISPATCH_PACE", "50ms")
	t.Setenv("STORAGE_DRIVER", "postgres")
	t.Setenv("POSTGRES_DSN", "postgres://u:p@localhost:5432/buzonero")
	t.Setenv("SMTP_USERNAME", "bot@example.com")
	t.Setenv("AUTH_API_KEY_HASH", "$argon2id$...")

	c, err := FromEnv()
	if err != nil {
		t.Fatalf("from env: %v", err)
	}
	if c.Dispatch.DailyLimit != 10 || c.Dispatch.WarningThreshold != 5 {
		t.Fatalf("overrides dispatch: %+v", c.Dispatch)
	}
	if c.PaceDuration() != 50*time.Millisecond {
		t.Fatalf("pace = %s", c.PaceDuration())
	}
	if c.Storage.Driver != "postgres" {
		t.Fatalf("driver = %q", c.Storage.Driver)
	}
	// from defaultea al username
	if c.SMTP.From != "bot@example.com" {
		t.Fatalf("smtp.from = %q", c.SMTP.From)
	}
	if c.Auth.APIKeyHash == "" {
		t.Fatal("api_key_hash no tomó el override")
	}
}

func TestLoad_YAMLWithEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
server:
  addr: ":9090"
dispatch:
  daily_limit: 50
  warning_threshold: 40
smtp:
  username: bot@example.com
`
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("DISPATCH_DAILY_LIMIT", "60")

	c, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Server.Addr != ":9090" {
		t.Fatalf("addr = %q", c.Server.Addr)
	}
	// env pisa yaml
	if c.Dispatch.DailyLimit != 60 {
		t.Fatalf("daily_limit = %d", c.Dispatch.DailyLimit)
	}
}

func TestValidate_Errors(t *testing.T) {
	cases := []struct {
		name string
		mut  func(*Config)
	}{
		{"driver desconocido", func(c *Config) { c.Storage.Driver = "mysql" }},
		{"postgres sin dsn", func(c *Config) { c.Storage.Driver = "postgres" }},
		{"tls inválido", func(c *Config) { c.SMTP.TLS = "tal vez" }},
		{"threshold > limit", func(c *Config) { c.Dispatch.WarningThreshold = 500 }},
		{"pace no parsea", func(c *Config) { c.Dispatch.Pace = "dos segundos" }},
		{"backend desconocido", func(c *Config) { c.Rate.Backend = "memcached" }},
	}
	for _, tc := range cases {
		var c Config
		c.applyDefaults()
		tc.mut(&c)
		if err := c.Validate(); err == nil {
			t.Fatalf("%s: esperaba error de validación", tc.name)
		}
	}
}
