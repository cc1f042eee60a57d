package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	def := Default()
	if c.Store.Address != def.Store.Address || c.LogLevel != def.LogLevel {
		t.Errorf("got %+v, want defaults %+v", c, def)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")
	c := Default()
	c.Store.Address = "redis.example:6379"
	c.Store.DB = 3
	c.Naming.Strategy = "use_name"
	c.Naming.Prefix = "gbp_"
	c.Validation.Repair = true
	c.LogLevel = "debug"
	if err := c.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if *got != *c {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, c)
	}

	// The temp file must not linger next to the config.
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("directory has %d entries, want just the config", len(entries))
	}
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("log_level: warn\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.LogLevel != "warn" {
		t.Errorf("log level = %q, want warn", c.LogLevel)
	}
	if c.Store.Address != Default().Store.Address {
		t.Errorf("store address = %q, want default", c.Store.Address)
	}
}

func TestLoadRejectsBadStrategy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("naming:\n  strategy: use_hostname\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected error for unknown strategy")
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(":\n  - ["), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := Load(path)
	if err == nil || errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected parse error, got %v", err)
	}
}
