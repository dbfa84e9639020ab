// Package config loads mailpurge settings from a YAML file. CLI flags
// override whatever the file provides.
package config

import (
	"fmt"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"github.com/evanmorrow/mailpurge/internal/store"
)

// OAuth identifies the application to Google's token endpoint. Tokens
// themselves live in the credential store, never here.
type OAuth struct {
	ClientID     string `koanf:"client_id"`
	ClientSecret string `koanf:"client_secret"`
	TokenURI     string `koanf:"token_uri"`
}

type Config struct {
	Redis     store.Config `koanf:"redis"`
	OAuth     OAuth        `koanf:"oauth"`
	RPS       int          `koanf:"rps"`
	BatchSize int          `koanf:"batch_size"`
}

// Default returns the configuration used when no file overrides it.
func Default() Config {
	return Config{
		Redis:     store.Config{Addr: "localhost:6379"},
		RPS:       4,
		BatchSize: 1000,
	}
}

// Load reads path into the defaults. An empty path returns the defaults
// untouched.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	return load(koanf.New("."), file.Provider(path))
}

// Parse reads raw YAML into the defaults. Used by tests.
func Parse(raw []byte) (Config, error) {
	return load(koanf.New("."), rawbytes.Provider(raw))
}

func load(k *koanf.Koanf, provider koanf.Provider) (Config, error) {
	if err := k.Load(provider, yaml.Parser()); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if cfg.RPS <= 0 {
		return Config{}, fmt.Errorf("rps must be positive, got %d", cfg.RPS)
	}
	if cfg.BatchSize <= 0 {
		return Config{}, fmt.Errorf("batch_size must be positive, got %d", cfg.BatchSize)
	}
	return cfg, nil
}
