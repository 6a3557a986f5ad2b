package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Load reads path over the defaults, applies environment overrides and
// normalises the result. An empty path searches $TCCYCLE_CONFIG,
// ./tccycle.yaml and DefaultConfigPath, falling back to built-in defaults.
// Callers validate after applying their own overrides.
func Load(path string) (Config, string, error) {
	cfg := Default()

	source, err := loadFromFile(&cfg, path)
	if err != nil {
		return Config{}, "", err
	}
	if err := loadFromEnv(&cfg); err != nil {
		return Config{}, "", err
	}
	cfg.ApplyDefaults()
	return cfg, source, nil
}

func loadFromFile(cfg *Config, explicit string) (string, error) {
	if explicit != "" {
		return explicit, decodeFile(cfg, explicit)
	}

	candidates := []string{
		os.Getenv(EnvConfigPath),
		"./tccycle.yaml",
		DefaultConfigPath,
	}
	for _, path := range candidates {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}
		return path, decodeFile(cfg, path)
	}
	return "built-in defaults (no config file found)", nil
}

func decodeFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func loadFromEnv(cfg *Config) error {
	if val := os.Getenv(EnvInterface); val != "" {
		cfg.Interface = val
	}
	if val := os.Getenv(EnvDirection); val != "" {
		cfg.Direction = val
	}
	if val := os.Getenv(EnvIFBDevice); val != "" {
		cfg.IFBDevice = val
	}
	if val := os.Getenv(EnvDwell); val != "" {
		dwell, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvDwell, err)
		}
		cfg.Dwell = dwell
	}
	if val := os.Getenv(EnvLogLevel); val != "" {
		cfg.Logging.Level = val
	}
	return nil
}
