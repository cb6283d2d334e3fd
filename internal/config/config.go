package config

import (
	"errors"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Trivia struct {
		BaseURL     string `yaml:"base_url"`
		Timeout     string `yaml:"timeout"`
		CategoryTTL string `yaml:"category_ttl"`
	} `yaml:"trivia"`
	Game struct {
		RevealDelay          string `yaml:"reveal_delay"`
		DefaultQuestionCount int    `yaml:"default_question_count"`
		SessionIdle          string `yaml:"session_idle"`
	} `yaml:"game"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Identity struct {
		CookieName string `yaml:"cookie_name"`
		Secure     bool   `yaml:"secure"`
	} `yaml:"identity"`
}

// Default returns the configuration used when no file is present. Redis and
// Postgres are empty, which selects the in-memory stores.
func Default() Config {
	cfg := Config{}
	cfg.Server.Port = "8080"
	cfg.Redis.TTL = "2h"
	cfg.Trivia.BaseURL = "https://opentdb.com"
	cfg.Trivia.Timeout = "10s"
	cfg.Trivia.CategoryTTL = "1h"
	cfg.Game.RevealDelay = "2s"
	cfg.Game.DefaultQuestionCount = 10
	cfg.Game.SessionIdle = "2h"
	cfg.Log.Level = "info"
	cfg.Log.Format = "json"
	cfg.Identity.CookieName = "quicktrivia_id"
	return cfg
}

// Load reads YAML config from path on top of Default. A missing file is not
// an error.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
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
