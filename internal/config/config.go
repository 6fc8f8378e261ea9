package config

import (
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"time"
)

const defaultServerURL = "http://localhost:8080"

type Config struct {
	ServerURL   string
	DataDir     string
	HTTPTimeout time.Duration
}

func LoadFromEnv() (Config, error) {
	cfg := Config{
		ServerURL:   defaultServerURL,
		DataDir:     os.Getenv("TALKIE_DATA_DIR"),
		HTTPTimeout: 30 * time.Second,
	}

	if v := os.Getenv("TALKIE_SERVER_URL"); v != "" {
		cfg.ServerURL = v
	}

	if v := os.Getenv("TALKIE_HTTP_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, errors.New("http timeout must be a duration, e.g. 30s")
		}
		cfg.HTTPTimeout = d
	}

	if cfg.DataDir == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return Config{}, errors.New("no user config dir: set TALKIE_DATA_DIR")
		}
		cfg.DataDir = filepath.Join(dir, "talkie")
	}

	return cfg, nil
}

func (c Config) Validate() error {
	if c.ServerURL == "" {
		return errors.New("server url is required")
	}
	u, err := url.Parse(c.ServerURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return errors.New("server url must be absolute, e.g. http://localhost:8080")
	}
	if c.DataDir == "" {
		return errors.New("data dir is required")
	}
	if c.HTTPTimeout <= 0 {
		return errors.New("http timeout must be positive")
	}
	return nil
}
