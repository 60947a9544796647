package main

import (
	"errors"
	"os"

	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"
)

// config holds the CLI's connection settings, loaded from a YAML file with
// environment overrides.
type config struct {
	ServerURL string `yaml:"server_url"`
	APIURL    string `yaml:"api_url"`
	Token     string `yaml:"token"`
	Chat      string `yaml:"chat"`
}

// loadConfig reads the YAML file at path (missing file is fine), then
// overlays CHATCLI_* environment variables, including any from a local
// .env file.
func loadConfig(path string) (*config, error) {
	_ = godotenv.Load(".env")

	cfg := &config{}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, err
			}
		case errors.Is(err, os.ErrNotExist):
			// Fall through to env-only config.
		default:
			return nil, err
		}
	}

	if v := os.Getenv("CHATCLI_SERVER_URL"); v != "" {
		cfg.ServerURL = v
	}
	if v := os.Getenv("CHATCLI_API_URL"); v != "" {
		cfg.APIURL = v
	}
	if v := os.Getenv("CHATCLI_TOKEN"); v != "" {
		cfg.Token = v
	}
	if v := os.Getenv("CHATCLI_CHAT"); v != "" {
		cfg.Chat = v
	}
	return cfg, nil
}
