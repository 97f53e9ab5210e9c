// Package config loads the simulation's JSON configuration with environment
// variable substitution.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"time"
)

// Config is the top-level configuration structure.
type Config struct {
	Server     ServerConfig     `json:"server"`
	Model      ModelConfig      `json:"model"`
	Embedding  EmbeddingConfig  `json:"embedding"`
	Database   DatabaseConfig   `json:"database"`
	Simulation SimulationConfig `json:"simulation"`
	Perception PerceptionConfig `json:"perception"`
}

type ServerConfig struct {
	Port     int    `json:"port"`
	LogLevel string `json:"log_level"`
}

type ModelConfig struct {
	Endpoint string `json:"endpoint"`
	Name     string `json:"name"`
	TimeoutS int    `json:"timeout_s"`
}

type EmbeddingConfig struct {
	Endpoint       string `json:"endpoint"`
	Model          string `json:"model"`
	APIKey         string `json:"api_key"`
	Dimension      int    `json:"dimension"`
	BatchSize      int    `json:"batch_size"`
	MaxRetries     int    `json:"max_retries"`
	RetryBackoffMS int    `json:"retry_backoff_ms"`
	CacheTTLHours  int    `json:"cache_ttl_hours"`
}

type DatabaseConfig struct {
	Postgres PostgresConfig `json:"postgres"`
	Redis    RedisConfig    `json:"redis"`
	Qdrant   QdrantConfig   `json:"qdrant"`
}

type PostgresConfig struct {
	DSN string `json:"dsn"`
}

type RedisConfig struct {
	URL string `json:"url"`
}

type QdrantConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

type SimulationConfig struct {
	Population     int     `json:"population"`
	TotalTicks     int     `json:"total_ticks"`
	TickIntervalS  float64 `json:"tick_interval_s"`
	MaxConcurrency int     `json:"max_concurrency"`
	RetrievalTopK  int     `json:"retrieval_top_k"`
}

type PerceptionConfig struct {
	ImageBaseDir        string  `json:"image_base_dir"`
	GlanceIntervalTicks int     `json:"glance_interval_ticks"`
	ChangeThreshold     float64 `json:"change_threshold"`
	ViewRadius          int     `json:"view_radius"`
}

// TickInterval converts the configured seconds to a duration.
func (s SimulationConfig) TickInterval() time.Duration {
	return time.Duration(s.TickIntervalS * float64(time.Second))
}

// envVarRe matches ${VAR} and ${VAR:default} patterns.
var envVarRe = regexp.MustCompile(`\$\{(\w+)(?::([^}]*))?\}`)

// Load reads a JSON config file and substitutes environment variable
// references.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	resolved := envVarRe.ReplaceAllStringFunc(string(data), func(match string) string {
		parts := envVarRe.FindStringSubmatch(match)
		name := parts[1]
		defaultVal := parts[2]
		if v := os.Getenv(name); v != "" {
			return v
		}
		return defaultVal
	})

	var cfg Config
	if err := json.Unmarshal([]byte(resolved), &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return &cfg, nil
}
