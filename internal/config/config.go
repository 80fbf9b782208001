package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"eaglelink/internal/foldermap"
)

// Config is owned by the process for its lifetime and passed by
// reference into component constructors. Components read it per
// operation and never cache derived values like the API base URL.
type Config struct {
	Host           string              `yaml:"host"`
	Port           int                 `yaml:"port"`
	VaultPath      string              `yaml:"vault_path"`
	FolderName     string              `yaml:"folder_name"`
	FallbackFormat string              `yaml:"fallback_format"`
	JPEGQuality    int                 `yaml:"jpeg_quality"`
	SettleDelay    time.Duration       `yaml:"settle_delay"`
	Mappings       []foldermap.Mapping `yaml:"mappings"`
}

const (
	DefaultHost        = "localhost"
	DefaultPort        = 41595
	DefaultSettleDelay = time.Second
	DefaultJPEGQuality = 90
)

// Load builds the configuration from an optional YAML file plus
// environment overrides. EAGLE_CONFIG names the file; otherwise
// eagle.yaml inside the vault is used when present.
func Load() (Config, error) {
	cfg := Config{
		Host:           DefaultHost,
		Port:           DefaultPort,
		FallbackFormat: "jpeg",
		JPEGQuality:    DefaultJPEGQuality,
		SettleDelay:    DefaultSettleDelay,
	}

	cfg.VaultPath = strings.TrimSpace(os.Getenv("EAGLE_VAULT_PATH"))

	path := strings.TrimSpace(os.Getenv("EAGLE_CONFIG"))
	if path == "" && cfg.VaultPath != "" {
		candidate := filepath.Join(cfg.VaultPath, "eagle.yaml")
		if _, err := os.Stat(candidate); err == nil {
			path = candidate
		}
	}
	if path != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(content, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.Host = envOr("EAGLE_HOST", cfg.Host)
	cfg.Port = parseIntOr("EAGLE_PORT", cfg.Port)
	cfg.VaultPath = envOr("EAGLE_VAULT_PATH", cfg.VaultPath)
	cfg.FolderName = envOr("EAGLE_FOLDER_NAME", cfg.FolderName)
	cfg.FallbackFormat = strings.ToLower(envOr("EAGLE_FALLBACK_FORMAT", cfg.FallbackFormat))
	cfg.JPEGQuality = parseIntOr("EAGLE_JPEG_QUALITY", cfg.JPEGQuality)
	cfg.SettleDelay = parseDurationOr("EAGLE_SETTLE_DELAY", cfg.SettleDelay)

	switch cfg.FallbackFormat {
	case "jpeg", "png", "webp":
	default:
		return cfg, fmt.Errorf("unsupported fallback format %q", cfg.FallbackFormat)
	}

	before := len(cfg.Mappings)
	cfg.Mappings = foldermap.Sanitize(cfg.Mappings)
	if dropped := before - len(cfg.Mappings); dropped > 0 {
		slog.Debug("dropped invalid folder mappings", "count", dropped)
	}

	return cfg, nil
}

// BaseURL is recomputed per call so host/port changes between
// operations take effect.
func (c Config) BaseURL() string {
	return fmt.Sprintf("http://%s:%d", c.Host, c.Port)
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func parseIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil && i > 0 {
			return i
		}
	}
	return fallback
}

func parseDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
