package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadOverridesFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	body := `{"listen":":2222","crypt":"none","window":65536,"quiet":true}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg := Config{
		Listen:    ":2200",
		Crypt:     "aead",
		WindowSize: 2 * 1024 * 1024,
		MaxPacket:  32 * 1024,
	}
	if err := Load(&cfg, path); err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Listen != ":2222" {
		t.Fatalf("Listen = %q, want %q", cfg.Listen, ":2222")
	}
	if cfg.Crypt != "none" {
		t.Fatalf("Crypt = %q, want %q", cfg.Crypt, "none")
	}
	if cfg.WindowSize != 65536 {
		t.Fatalf("WindowSize = %d, want %d", cfg.WindowSize, 65536)
	}
	if !cfg.Quiet {
		t.Fatal("Quiet = false, want true")
	}
	// Fields absent from the JSON document keep their pre-existing value.
	if cfg.MaxPacket != 32*1024 {
		t.Fatalf("MaxPacket = %d, want unchanged %d", cfg.MaxPacket, 32*1024)
	}
}

func TestLoadMissingFile(t *testing.T) {
	cfg := Config{}
	if err := Load(&cfg, "/nonexistent/path/config.json"); err == nil {
		t.Fatal("Load: expected error for missing file")
	}
}
