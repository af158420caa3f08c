package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures the settings required to boot the healing service.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Source     SourceConfig     `yaml:"source"`
	Knowledge  KnowledgeConfig  `yaml:"knowledge"`
	Cache      CacheConfig      `yaml:"cache"`
	Healing    HealingConfig    `yaml:"healing"`
	Predictive PredictiveConfig `yaml:"predictive"`
	Thresholds ThresholdConfig  `yaml:"thresholds"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ServerConfig controls HTTP listener behaviour.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	MetricsAddress  string        `yaml:"metricsAddress"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
}

// SourceConfig configures the upstream operational metrics endpoint.
type SourceConfig struct {
	BaseURL      string        `yaml:"baseURL"`
	SnapshotPath string        `yaml:"snapshotPath"`
	Timeout      time.Duration `yaml:"timeout"`
}

// KnowledgeConfig configures the similarity-search knowledge store.
type KnowledgeConfig struct {
	Endpoint            string        `yaml:"endpoint"`
	APIKey              string        `yaml:"apiKey"`
	Timeout             time.Duration `yaml:"timeout"`
	Domain              string        `yaml:"domain"`
	FetchWindow         int           `yaml:"fetchWindow"`
	SimilarityThreshold float64       `yaml:"similarityThreshold"`
	MaxResults          int           `yaml:"maxResults"`
	SyncWindow          time.Duration `yaml:"syncWindow"`
	RecencyCapacity     int           `yaml:"recencyCapacity"`
}

// CacheConfig controls Redis-backed caching of knowledge lookups.
type CacheConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Addr         string        `yaml:"addr"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	DialTimeout  time.Duration `yaml:"dialTimeout"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	MaxRetries   int           `yaml:"maxRetries"`
	TLS          bool          `yaml:"tls"`
	SimilarTTL   time.Duration `yaml:"similarTTL"`
	PatternsTTL  time.Duration `yaml:"patternsTTL"`
}

// HealingConfig controls the control loop cadence and execution limits.
type HealingConfig struct {
	HealthInterval    time.Duration  `yaml:"healthInterval"`
	SyncInterval      time.Duration  `yaml:"syncInterval"`
	CleanupInterval   time.Duration  `yaml:"cleanupInterval"`
	ImprovementMargin float64        `yaml:"improvementMargin"`
	ActionTimeout     time.Duration  `yaml:"actionTimeout"`
	OverallBudget     time.Duration  `yaml:"overallBudget"`
	RecentEvents      int            `yaml:"recentEvents"`
	Cooldowns         CooldownConfig `yaml:"cooldowns"`
}

// CooldownConfig sets per-severity suppression windows.
type CooldownConfig struct {
	Critical time.Duration `yaml:"critical"`
	High     time.Duration `yaml:"high"`
	Warning  time.Duration `yaml:"warning"`
	Medium   time.Duration `yaml:"medium"`
	Default  time.Duration `yaml:"default"`
}

// PredictiveConfig controls the forecast-based preventive loop.
type PredictiveConfig struct {
	Enabled           bool          `yaml:"enabled"`
	Interval          time.Duration `yaml:"interval"`
	RiskThreshold     float64       `yaml:"riskThreshold"`
	ErrorRateScale    float64       `yaml:"errorRateScale"`
	ResponseCeilingMs float64       `yaml:"responseCeilingMs"`
}

// ThresholdConfig sets the health check trigger levels.
type ThresholdConfig struct {
	ErrorRate         float64 `yaml:"errorRate"`
	ResponseP95Ms     float64 `yaml:"responseP95Ms"`
	MemoryRatio       float64 `yaml:"memoryRatio"`
	AgentFailureRatio float64 `yaml:"agentFailureRatio"`
	DatabaseP95Ms     float64 `yaml:"databaseP95Ms"`
	WebsocketP95Ms    float64 `yaml:"websocketP95Ms"`
	MinSamples        float64 `yaml:"minSamples"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("SENTINEL_HEAL_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":8080",
			MetricsAddress:  ":2112",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    30 * time.Second,
			GracefulTimeout: 10 * time.Second,
		},
		Source: SourceConfig{
			SnapshotPath: "/api/v1/ops/metrics",
			Timeout:      5 * time.Second,
		},
		Knowledge: KnowledgeConfig{
			Timeout:             5 * time.Second,
			Domain:              "healing",
			FetchWindow:         20,
			SimilarityThreshold: 0.75,
			MaxResults:          5,
			SyncWindow:          24 * time.Hour,
			RecencyCapacity:     1000,
		},
		Cache: CacheConfig{
			Enabled:      false,
			DialTimeout:  2 * time.Second,
			ReadTimeout:  500 * time.Millisecond,
			WriteTimeout: 500 * time.Millisecond,
			MaxRetries:   2,
			SimilarTTL:   2 * time.Minute,
			PatternsTTL:  10 * time.Minute,
		},
		Healing: HealingConfig{
			HealthInterval:    30 * time.Second,
			SyncInterval:      10 * time.Minute,
			CleanupInterval:   time.Hour,
			ImprovementMargin: 0.20,
			ActionTimeout:     30 * time.Second,
			OverallBudget:     2 * time.Minute,
			RecentEvents:      50,
			Cooldowns: CooldownConfig{
				Critical: time.Minute,
				High:     5 * time.Minute,
				Warning:  10 * time.Minute,
				Medium:   15 * time.Minute,
				Default:  30 * time.Minute,
			},
		},
		Predictive: PredictiveConfig{
			Enabled:           true,
			Interval:          5 * time.Minute,
			RiskThreshold:     0.8,
			ErrorRateScale:    3,
			ResponseCeilingMs: 5000,
		},
		Thresholds: ThresholdConfig{
			ErrorRate:         0.15,
			ResponseP95Ms:     2000,
			MemoryRatio:       0.85,
			AgentFailureRatio: 0.30,
			DatabaseP95Ms:     500,
			WebsocketP95Ms:    1000,
			MinSamples:        10,
		},
		Logging: LoggingConfig{Level: "info", JSON: false},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SENTINEL_HEAL_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("SENTINEL_HEAL_METRICS_ADDRESS"); v != "" {
		cfg.Server.MetricsAddress = v
	}
	if v := os.Getenv("SENTINEL_HEAL_SOURCE_BASE_URL"); v != "" {
		cfg.Source.BaseURL = v
	}
	if v := os.Getenv("SENTINEL_HEAL_SOURCE_SNAPSHOT_PATH"); v != "" {
		cfg.Source.SnapshotPath = v
	}
	if v := os.Getenv("SENTINEL_HEAL_KNOWLEDGE_URL"); v != "" {
		cfg.Knowledge.Endpoint = v
	}
	if v := os.Getenv("SENTINEL_HEAL_KNOWLEDGE_API_KEY"); v != "" {
		cfg.Knowledge.APIKey = v
	}
	if v := os.Getenv("SENTINEL_HEAL_SIMILARITY_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Knowledge.SimilarityThreshold = f
		}
	}
	if v := os.Getenv("SENTINEL_HEAL_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SENTINEL_HEAL_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
	if v := os.Getenv("SENTINEL_HEAL_CACHE_ENABLED"); v != "" {
		cfg.Cache.Enabled = strings.EqualFold(v, "true") || strings.EqualFold(v, "1")
	}
	if v := os.Getenv("SENTINEL_HEAL_CACHE_ADDR"); v != "" {
		cfg.Cache.Addr = v
	}
	if v := os.Getenv("SENTINEL_HEAL_CACHE_USERNAME"); v != "" {
		cfg.Cache.Username = v
	}
	if v := os.Getenv("SENTINEL_HEAL_CACHE_PASSWORD"); v != "" {
		cfg.Cache.Password = v
	}
	if v := os.Getenv("SENTINEL_HEAL_CACHE_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Cache.DB = db
		}
	}
	if v := os.Getenv("SENTINEL_HEAL_CACHE_TLS"); strings.EqualFold(v, "true") || strings.EqualFold(v, "1") {
		cfg.Cache.TLS = true
	}
	if v := os.Getenv("SENTINEL_HEAL_HEALTH_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Healing.HealthInterval = d
		}
	}
	if v := os.Getenv("SENTINEL_HEAL_PREDICTIVE_ENABLED"); v != "" {
		cfg.Predictive.Enabled = strings.EqualFold(v, "true") || strings.EqualFold(v, "1")
	}
	if v := os.Getenv("SENTINEL_HEAL_PREDICTIVE_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Predictive.Interval = d
		}
	}
	if v := os.Getenv("SENTINEL_HEAL_ACTION_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Healing.ActionTimeout = d
		}
	}
	if v := os.Getenv("SENTINEL_HEAL_OVERALL_BUDGET"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Healing.OverallBudget = d
		}
	}
}
