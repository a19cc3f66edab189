// Package config loads scheduler configuration with three-tier precedence:
// environment > file > default, in the teacher's config package idiom
// (DefaultConfig / LoadFromFile / LoadFromEnv). There are no per-option
// command-line flags; the serve command's only flag selects the file.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full set of scheduler startup options.
type Config struct {
	WarmTime              time.Duration    `json:"warm_time" yaml:"warm_time"`
	JanitorSleep          time.Duration    `json:"janitor_sleep" yaml:"janitor_sleep"`
	HealthCheckInterval   time.Duration    `json:"health_check_interval" yaml:"health_check_interval"`
	DefaultConcurrencyCap int              `json:"default_concurrency_cap" yaml:"default_concurrency_cap"`
	PreconfiguredPools    map[string]int   `json:"preconfigured_pools" yaml:"preconfigured_pools"`
	Image                 string           `json:"image" yaml:"image"`
	InitialStrategy       string           `json:"initial_strategy" yaml:"initial_strategy"`
	HTTPAddr              string           `json:"http_addr" yaml:"http_addr"`
	LogLevel              string           `json:"log_level" yaml:"log_level"`
	LogFormat             string           `json:"log_format" yaml:"log_format"`
	LaunchRetries         int              `json:"launch_retries" yaml:"launch_retries"`
}

// DefaultConfig returns the baseline configuration; LoadFromFile unmarshals
// onto a copy of this, and LoadFromEnv overrides individual fields.
func DefaultConfig() *Config {
	return &Config{
		WarmTime:              20 * time.Second,
		JanitorSleep:          5 * time.Second,
		HealthCheckInterval:   30 * time.Second,
		DefaultConcurrencyCap: 3,
		PreconfiguredPools:    map[string]int{},
		Image:                 "",
		InitialStrategy:       "lru",
		HTTPAddr:              ":8080",
		LogLevel:              "info",
		LogFormat:             "text",
		LaunchRetries:         1,
	}
}

// LoadFromFile unmarshals path onto DefaultConfig. JSON is detected by
// extension; anything not ending in .json is parsed as YAML, since the
// scheduler's file format is otherwise YAML-first.
func LoadFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if strings.HasSuffix(path, ".json") {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
		return cfg, nil
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// LoadFromEnv applies WARMPOOL_* environment overrides onto cfg in place.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("WARMPOOL_WARM_TIME"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.WarmTime = d
		}
	}
	if v := os.Getenv("WARMPOOL_JANITOR_SLEEP"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.JanitorSleep = d
		}
	}
	if v := os.Getenv("WARMPOOL_HEALTH_CHECK_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.HealthCheckInterval = d
		}
	}
	if v := os.Getenv("WARMPOOL_DEFAULT_CONCURRENCY_CAP"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.DefaultConcurrencyCap = n
		}
	}
	if v := os.Getenv("WARMPOOL_IMAGE"); v != "" {
		cfg.Image = v
	}
	if v := os.Getenv("WARMPOOL_INITIAL_STRATEGY"); v != "" {
		cfg.InitialStrategy = v
	}
	if v := os.Getenv("WARMPOOL_HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}
	if v := os.Getenv("WARMPOOL_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("WARMPOOL_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	if v := os.Getenv("WARMPOOL_LAUNCH_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.LaunchRetries = n
		}
	}
	if v := os.Getenv("WARMPOOL_PRECONFIGURED_POOLS"); v != "" {
		cfg.PreconfiguredPools = parsePoolList(v)
	}
}

// parsePoolList parses "fn1=3,fn2=5" into a map, matching the compact env
// encoding the teacher uses for map-shaped overrides.
func parsePoolList(v string) map[string]int {
	out := map[string]int{}
	for _, pair := range strings.Split(v, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(kv[1]))
		if err != nil {
			continue
		}
		out[strings.TrimSpace(kv[0])] = n
	}
	return out
}
