package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadFileAndEnv(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "cachetx.yml")
	yml := `
origin: https://example.com
db: memory
lockTimeout: 5s
prefetch:
  - /
  - /about
rules:
  - prefix: /static/
    default: max-age=3600
log:
  level: info
`
	if err := os.WriteFile(filename, []byte(yml), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CACHETX_PORT", "9090")
	t.Setenv("CACHETX_LOG_FILE", "/tmp/cachetx.log")

	config, err := Load(filename)
	if err != nil {
		t.Fatal(err)
	}
	if config.Origin != "https://example.com" || config.DB != "memory" {
		t.Fatalf("File values not loaded: %+v", config)
	}
	if config.LockTimeout != 5*time.Second {
		t.Fatalf("Lock timeout is %s", config.LockTimeout)
	}
	if config.PartialLockTimeout != time.Second {
		t.Fatalf("Default partial lock timeout lost: %s", config.PartialLockTimeout)
	}
	if len(config.Prefetch) != 2 || config.Prefetch[1] != "/about" {
		t.Fatalf("Prefetch paths are %v", config.Prefetch)
	}
	if len(config.Rules) != 1 || config.Rules[0].Default != "max-age=3600" {
		t.Fatalf("Rules are %+v", config.Rules)
	}
	if config.Port != 9090 {
		t.Fatalf("Env did not override port: %d", config.Port)
	}
	if config.Log.Level != "info" || config.Log.File != "/tmp/cachetx.log" {
		t.Fatalf("Log config is %+v", config.Log)
	}
	if err := config.Validate(); err != nil {
		t.Fatal(err)
	}
}

func TestValidate(t *testing.T) {
	config := Default()
	if err := config.Validate(); err == nil {
		t.Fatal("Missing origin accepted")
	}
	config.Origin = "example.com"
	if err := config.Validate(); err == nil {
		t.Fatal("Relative origin accepted")
	}
	config.Origin = "http://example.com/base"
	if err := config.Validate(); err == nil {
		t.Fatal("Origin with path accepted")
	}
	config.Origin = "http://example.com"
	if err := config.Validate(); err != nil {
		t.Fatal(err)
	}
}
