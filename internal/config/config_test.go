package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Address != ":8080" {
		t.Fatalf("server address = %q", cfg.Server.Address)
	}
	if cfg.Server.MetricsAddress != ":2112" {
		t.Fatalf("metrics address = %q", cfg.Server.MetricsAddress)
	}
	if cfg.Knowledge.SimilarityThreshold != 0.75 {
		t.Fatalf("similarity threshold = %v", cfg.Knowledge.SimilarityThreshold)
	}
	if cfg.Knowledge.FetchWindow != 20 || cfg.Knowledge.MaxResults != 5 {
		t.Fatalf("retrieval limits = %d/%d", cfg.Knowledge.FetchWindow, cfg.Knowledge.MaxResults)
	}
	if cfg.Healing.HealthInterval != 30*time.Second {
		t.Fatalf("health interval = %v", cfg.Healing.HealthInterval)
	}
	if cfg.Healing.ImprovementMargin != 0.20 {
		t.Fatalf("improvement margin = %v", cfg.Healing.ImprovementMargin)
	}
	if cfg.Healing.Cooldowns.Critical != time.Minute || cfg.Healing.Cooldowns.Default != 30*time.Minute {
		t.Fatalf("cooldowns = %+v", cfg.Healing.Cooldowns)
	}
	if !cfg.Predictive.Enabled || cfg.Predictive.Interval != 5*time.Minute {
		t.Fatalf("predictive = %+v", cfg.Predictive)
	}
	if cfg.Thresholds.ErrorRate != 0.15 || cfg.Thresholds.MemoryRatio != 0.85 {
		t.Fatalf("thresholds = %+v", cfg.Thresholds)
	}
	if cfg.Cache.Enabled {
		t.Fatal("cache should be disabled by default")
	}
}

func TestLoadFromFile(t *testing.T) {
	raw := `
server:
  address: ":9999"
source:
  baseURL: http://core:8081
knowledge:
  endpoint: http://weaviate:8080
  similarityThreshold: 0.6
healing:
  healthInterval: 15s
  cooldowns:
    critical: 90s
predictive:
  enabled: false
logging:
  level: debug
  json: true
`
	path := filepath.Join(t.TempDir(), "heal.yaml")
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Address != ":9999" {
		t.Fatalf("server address = %q", cfg.Server.Address)
	}
	if cfg.Source.BaseURL != "http://core:8081" {
		t.Fatalf("source baseURL = %q", cfg.Source.BaseURL)
	}
	if cfg.Knowledge.Endpoint != "http://weaviate:8080" || cfg.Knowledge.SimilarityThreshold != 0.6 {
		t.Fatalf("knowledge = %+v", cfg.Knowledge)
	}
	if cfg.Healing.HealthInterval != 15*time.Second {
		t.Fatalf("health interval = %v", cfg.Healing.HealthInterval)
	}
	if cfg.Healing.Cooldowns.Critical != 90*time.Second {
		t.Fatalf("critical cooldown = %v", cfg.Healing.Cooldowns.Critical)
	}
	if cfg.Predictive.Enabled {
		t.Fatal("predictive should be disabled by file")
	}
	if cfg.Logging.Level != "debug" || !cfg.Logging.JSON {
		t.Fatalf("logging = %+v", cfg.Logging)
	}

	// untouched sections keep their defaults
	if cfg.Healing.SyncInterval != 10*time.Minute {
		t.Fatalf("sync interval = %v", cfg.Healing.SyncInterval)
	}
	if cfg.Thresholds.ResponseP95Ms != 2000 {
		t.Fatalf("response threshold = %v", cfg.Thresholds.ResponseP95Ms)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil {
		t.Fatal("expected error for a missing config file")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SENTINEL_HEAL_SERVER_ADDRESS", ":7070")
	t.Setenv("SENTINEL_HEAL_SOURCE_BASE_URL", "http://core:9000")
	t.Setenv("SENTINEL_HEAL_KNOWLEDGE_URL", "http://weaviate:9001")
	t.Setenv("SENTINEL_HEAL_SIMILARITY_THRESHOLD", "0.8")
	t.Setenv("SENTINEL_HEAL_LOG_FORMAT", "json")
	t.Setenv("SENTINEL_HEAL_CACHE_ENABLED", "true")
	t.Setenv("SENTINEL_HEAL_CACHE_ADDR", "redis:6379")
	t.Setenv("SENTINEL_HEAL_HEALTH_INTERVAL", "45s")
	t.Setenv("SENTINEL_HEAL_PREDICTIVE_ENABLED", "false")
	t.Setenv("SENTINEL_HEAL_ACTION_TIMEOUT", "20s")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Address != ":7070" {
		t.Fatalf("server address = %q", cfg.Server.Address)
	}
	if cfg.Source.BaseURL != "http://core:9000" {
		t.Fatalf("source baseURL = %q", cfg.Source.BaseURL)
	}
	if cfg.Knowledge.Endpoint != "http://weaviate:9001" {
		t.Fatalf("knowledge endpoint = %q", cfg.Knowledge.Endpoint)
	}
	if cfg.Knowledge.SimilarityThreshold != 0.8 {
		t.Fatalf("similarity threshold = %v", cfg.Knowledge.SimilarityThreshold)
	}
	if !cfg.Logging.JSON {
		t.Fatal("log format override should enable JSON")
	}
	if !cfg.Cache.Enabled || cfg.Cache.Addr != "redis:6379" {
		t.Fatalf("cache = %+v", cfg.Cache)
	}
	if cfg.Healing.HealthInterval != 45*time.Second {
		t.Fatalf("health interval = %v", cfg.Healing.HealthInterval)
	}
	if cfg.Predictive.Enabled {
		t.Fatal("predictive env override should disable the loop")
	}
	if cfg.Healing.ActionTimeout != 20*time.Second {
		t.Fatalf("action timeout = %v", cfg.Healing.ActionTimeout)
	}

	t.Setenv("SENTINEL_HEAL_SIMILARITY_THRESHOLD", "not-a-number")
	cfg, err = Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Knowledge.SimilarityThreshold != 0.75 {
		t.Fatalf("bad override should fall back to default, got %v", cfg.Knowledge.SimilarityThreshold)
	}
}
