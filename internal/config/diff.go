package config

import (
	"reflect"
	"strings"

	logx "pushrelay/pkg/logx"
)

// SummarizeChange returns the changed sections and safe structured attrs for
// logging. Sections that need a restart to take effect are listed in restart.
func SummarizeChange(oldCfg, newCfg *Config) (changed []string, attrs []logx.Field, restart []string) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	if oldCfg.Platform != newCfg.Platform {
		changed = append(changed, "platform")
		restart = append(restart, "platform")
		attrs = append(attrs, logx.String("platform", newCfg.Platform))
	}

	o, n := oldCfg.SDK, newCfg.SDK
	if o.IsAvailable() != n.IsAvailable() ||
		strings.TrimSpace(o.AppID) != strings.TrimSpace(n.AppID) ||
		o.QueueSize != n.QueueSize ||
		o.AcceptPrompts != n.AcceptPrompts ||
		strings.TrimSpace(o.StoreTimeout) != strings.TrimSpace(n.StoreTimeout) ||
		!reflect.DeepEqual(o.Broadcasts, n.Broadcasts) {
		changed = append(changed, "sdk")
		restart = append(restart, "sdk")
		attrs = append(attrs,
			logx.Bool("sdk.available", n.IsAvailable()),
			logx.Bool("sdk.app_id_set", strings.TrimSpace(n.AppID) != ""),
			logx.Int("sdk.broadcasts", len(n.Broadcasts)),
		)
	}

	if oldCfg.Diagnostics != newCfg.Diagnostics {
		changed = append(changed, "diagnostics")
		attrs = append(attrs, logx.Int("diagnostics.notices_per_sec", newCfg.Diagnostics.NoticesPerSec))
	}

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if !reflect.DeepEqual(oldCfg.Storage, newCfg.Storage) {
		changed = append(changed, "storage")
		restart = append(restart, "storage")
		if newCfg.Storage != nil {
			attrs = append(attrs, logx.String("storage.driver", newCfg.Storage.Driver))
		}
	}
	return changed, attrs, restart
}

// LoggingOf maps the logging section to logx.Config.
func LoggingOf(cfg *Config) logx.Config {
	if cfg == nil {
		return logx.Config{Level: "info", Console: true}
	}
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File:    logx.FileConfig{Enabled: cfg.Logging.File.Enabled, Path: cfg.Logging.File.Path},
	}
}
