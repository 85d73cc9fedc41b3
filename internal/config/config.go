// Package config resolves runtime settings from an optional
// fleetjobs.yaml, a .env file and FLEETJOBS_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"fleetjobs/internal/logging"
)

const (
	DefaultConfigName    = "fleetjobs"
	DefaultOperator      = "operator"
	DefaultEstimateDelay = 900 * time.Millisecond
	DefaultHubLinkDelay  = 3 * time.Second
	envPrefix            = "FLEETJOBS"
)

type Config struct {
	Operator      string
	FleetFile     string
	HistoryFile   string
	EstimateDelay time.Duration
	HubLinkDelay  time.Duration
	Log           logging.Config
}

type LoadOptions struct {
	// ConfigFile is an explicit config path. Empty searches the working
	// directory for fleetjobs.yaml and tolerates its absence.
	ConfigFile string
	// EnvFile is loaded into the environment before reading overrides.
	// Empty tries .env and ignores a missing file.
	EnvFile string
}

func Load(opts LoadOptions) (Config, error) {
	if err := loadEnvFile(opts.EnvFile); err != nil {
		return Config{}, err
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path := strings.TrimSpace(opts.ConfigFile); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName(DefaultConfigName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		Operator:      strings.TrimSpace(v.GetString("operator")),
		FleetFile:     strings.TrimSpace(v.GetString("fleet.file")),
		HistoryFile:   strings.TrimSpace(v.GetString("history.file")),
		EstimateDelay: v.GetDuration("wizard.estimate_delay"),
		HubLinkDelay:  v.GetDuration("fleet.hub_link_delay"),
		Log: logging.Config{
			Level:      v.GetString("log.level"),
			Format:     v.GetString("log.format"),
			File:       strings.TrimSpace(v.GetString("log.file")),
			MaxSizeMB:  v.GetInt("log.max_size_mb"),
			MaxBackups: v.GetInt("log.max_backups"),
			MaxAgeDays: v.GetInt("log.max_age_days"),
		},
	}
	return normalize(cfg)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("operator", DefaultOperator)
	v.SetDefault("fleet.file", "")
	v.SetDefault("history.file", "")
	v.SetDefault("wizard.estimate_delay", DefaultEstimateDelay)
	v.SetDefault("fleet.hub_link_delay", DefaultHubLinkDelay)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 20)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 14)
}

func normalize(cfg Config) (Config, error) {
	if cfg.Operator == "" {
		cfg.Operator = DefaultOperator
	}
	if cfg.EstimateDelay < 0 {
		return Config{}, fmt.Errorf("wizard.estimate_delay must be >= 0")
	}
	if cfg.HubLinkDelay < 0 {
		return Config{}, fmt.Errorf("fleet.hub_link_delay must be >= 0")
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Log.Format)) {
	case "", "json":
		cfg.Log.Format = "json"
	case "text":
		cfg.Log.Format = "text"
	default:
		return Config{}, fmt.Errorf("log.format must be json or text")
	}
	return cfg, nil
}

func loadEnvFile(path string) error {
	p := strings.TrimSpace(path)
	if p == "" {
		// .env is optional.
		_ = godotenv.Load()
		return nil
	}
	if err := godotenv.Load(p); err != nil {
		return fmt.Errorf("load env file %s: %w", p, err)
	}
	return nil
}
