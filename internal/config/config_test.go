package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"EAGLE_CONFIG", "EAGLE_HOST", "EAGLE_PORT", "EAGLE_VAULT_PATH",
		"EAGLE_FOLDER_NAME", "EAGLE_FALLBACK_FORMAT", "EAGLE_JPEG_QUALITY",
		"EAGLE_SETTLE_DELAY",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Host != "localhost" || cfg.Port != 41595 {
		t.Fatalf("host/port = %s/%d", cfg.Host, cfg.Port)
	}
	if cfg.FallbackFormat != "jpeg" || cfg.JPEGQuality != 90 {
		t.Fatalf("fallback = %s/%d", cfg.FallbackFormat, cfg.JPEGQuality)
	}
	if cfg.SettleDelay != time.Second {
		t.Fatalf("settle delay = %v", cfg.SettleDelay)
	}
	if cfg.BaseURL() != "http://localhost:41595" {
		t.Fatalf("base url = %s", cfg.BaseURL())
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("EAGLE_HOST", "127.0.0.1")
	t.Setenv("EAGLE_PORT", "50000")
	t.Setenv("EAGLE_FOLDER_NAME", "Obsidian")
	t.Setenv("EAGLE_FALLBACK_FORMAT", "PNG")
	t.Setenv("EAGLE_SETTLE_DELAY", "250ms")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Host != "127.0.0.1" || cfg.Port != 50000 {
		t.Fatalf("host/port = %s/%d", cfg.Host, cfg.Port)
	}
	if cfg.FolderName != "Obsidian" {
		t.Fatalf("folder = %s", cfg.FolderName)
	}
	if cfg.FallbackFormat != "png" {
		t.Fatalf("fallback = %s", cfg.FallbackFormat)
	}
	if cfg.SettleDelay != 250*time.Millisecond {
		t.Fatalf("settle delay = %v", cfg.SettleDelay)
	}
}

func TestLoadInvalidEnvKeepsDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("EAGLE_PORT", "not-a-port")
	t.Setenv("EAGLE_SETTLE_DELAY", "soon")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != 41595 || cfg.SettleDelay != time.Second {
		t.Fatalf("port/delay = %d/%v", cfg.Port, cfg.SettleDelay)
	}
}

func TestLoadRejectsUnknownFallback(t *testing.T) {
	clearEnv(t)
	t.Setenv("EAGLE_FALLBACK_FORMAT", "bmp")

	if _, err := Load(); err == nil {
		t.Fatalf("expected error for unsupported fallback")
	}
}

func TestLoadYAMLFileWithMappings(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	content := `
host: 10.0.0.2
port: 41600
folder_name: FromFile
mappings:
  - vault_folder: Projects
    eagle_folder: Work
  - vault_folder: ""
    eagle_folder: Dropped
`
	path := filepath.Join(dir, "eagle.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("EAGLE_CONFIG", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Host != "10.0.0.2" || cfg.Port != 41600 || cfg.FolderName != "FromFile" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if len(cfg.Mappings) != 1 || cfg.Mappings[0].EagleFolder != "Work" {
		t.Fatalf("mappings = %+v", cfg.Mappings)
	}
}

func TestLoadVaultConfigDiscovery(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "eagle.yaml"), []byte("folder_name: Vaulted\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("EAGLE_VAULT_PATH", dir)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.FolderName != "Vaulted" {
		t.Fatalf("folder = %q", cfg.FolderName)
	}
	if cfg.VaultPath != dir {
		t.Fatalf("vault path = %q", cfg.VaultPath)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "eagle.yaml")
	if err := os.WriteFile(path, []byte("host: from-file\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("EAGLE_CONFIG", path)
	t.Setenv("EAGLE_HOST", "from-env")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Host != "from-env" {
		t.Fatalf("host = %q, want env to win", cfg.Host)
	}
}
