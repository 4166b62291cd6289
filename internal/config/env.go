package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "PUSHRELAY_"

// envOverrides are applied on top of the file. Unset variables leave the
// file value alone.
type envOverrides struct {
	Platform      *string `env:"PLATFORM"`
	AppID         *string `env:"APP_ID"`
	SDKAvailable  *bool   `env:"SDK_AVAILABLE"`
	LogLevel      *string `env:"LOG_LEVEL"`
	NoticesPerSec *int    `env:"NOTICES_PER_SEC"`
	StorageDriver *string `env:"STORAGE_DRIVER"`
	StoragePath   *string `env:"STORAGE_PATH"`
}

// ApplyEnv overlays PUSHRELAY_* variables onto cfg. environ replaces the
// process environment when non-nil (tests).
func ApplyEnv(cfg *Config, environ map[string]string) error {
	if cfg == nil {
		return nil
	}
	var o envOverrides
	opts := env.Options{Prefix: EnvPrefix}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(&o, opts); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}

	if o.Platform != nil {
		cfg.Platform = strings.TrimSpace(*o.Platform)
	}
	if o.AppID != nil {
		cfg.SDK.AppID = strings.TrimSpace(*o.AppID)
	}
	if o.SDKAvailable != nil {
		v := *o.SDKAvailable
		cfg.SDK.Available = &v
	}
	if o.LogLevel != nil {
		cfg.Logging.Level = strings.TrimSpace(*o.LogLevel)
	}
	if o.NoticesPerSec != nil {
		cfg.Diagnostics.NoticesPerSec = *o.NoticesPerSec
	}
	if o.StorageDriver != nil || o.StoragePath != nil {
		if cfg.Storage == nil {
			cfg.Storage = &StorageConfig{}
		}
		if o.StorageDriver != nil {
			cfg.Storage.Driver = strings.TrimSpace(*o.StorageDriver)
		}
		if o.StoragePath != nil {
			cfg.Storage.Path = strings.TrimSpace(*o.StoragePath)
		}
	}
	return nil
}
