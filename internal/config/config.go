package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port        string   `yaml:"port"`
		CORSOrigins []string `yaml:"cors_origins"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Quiz struct {
		QuestionDuration string `yaml:"question_duration"`
		BankTTL          string `yaml:"bank_ttl"`
		StrictState      bool   `yaml:"strict_state"`
	} `yaml:"quiz"`
	Results struct {
		TTL            string `yaml:"ttl"`
		InlineFallback bool   `yaml:"inline_fallback"`
	} `yaml:"results"`
	Reports struct {
		Interval string `yaml:"interval"`
		Burst    int    `yaml:"burst"`
	} `yaml:"reports"`
	Log Log `yaml:"log"`
}

// Log configures the zap logger. File is optional; when set, JSON logs are also written
// there with size-based rotation.
type Log struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// Defaults returns the configuration used when no file sets a value.
func Defaults() Config {
	cfg := Config{}
	cfg.Server.Port = "8080"
	cfg.Server.CORSOrigins = []string{"*"}
	cfg.Quiz.QuestionDuration = "2m"
	cfg.Quiz.BankTTL = "10m"
	cfg.Results.TTL = "1h"
	cfg.Reports.Interval = "1s"
	cfg.Reports.Burst = 5
	cfg.Log.Level = "info"
	cfg.Log.MaxSizeMB = 100
	cfg.Log.MaxBackups = 3
	cfg.Log.MaxAgeDays = 28
	return cfg
}

// Load reads YAML config from path on top of Defaults.
func Load(path string) (Config, error) {
	cfg := Defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
