package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks the structural rules every config must satisfy. Semantic
// checks that need other packages (schedules, event names) run in the
// manager's validator hook.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error

	switch strings.ToLower(strings.TrimSpace(cfg.Platform)) {
	case "ios", "android":
	case "":
		errs = append(errs, errors.New("platform: required (ios or android)"))
	default:
		errs = append(errs, fmt.Errorf("platform: unknown value %q (want ios or android)", cfg.Platform))
	}

	if cfg.SDK.QueueSize < 0 {
		errs = append(errs, errors.New("sdk.queue_size: must be >= 0"))
	}
	if _, err := ParseDurationField("sdk.store_timeout", cfg.SDK.StoreTimeout); err != nil {
		errs = append(errs, err)
	}
	names := map[string]bool{}
	for i, b := range cfg.SDK.Broadcasts {
		path := fmt.Sprintf("sdk.broadcasts[%d]", i)
		if strings.TrimSpace(b.Event) == "" {
			errs = append(errs, fmt.Errorf("%s.event: required", path))
		}
		if strings.TrimSpace(b.Schedule) == "" {
			errs = append(errs, fmt.Errorf("%s.schedule: required", path))
		}
		if n := strings.TrimSpace(b.Name); n != "" {
			if names[n] {
				errs = append(errs, fmt.Errorf("%s.name: duplicate %q", path, n))
			}
			names[n] = true
		}
	}

	if cfg.Diagnostics.NoticesPerSec < 0 {
		errs = append(errs, errors.New("diagnostics.notices_per_sec: must be >= 0"))
	}

	if st := cfg.Storage; st != nil {
		switch strings.ToLower(strings.TrimSpace(st.Driver)) {
		case "", "none", "memory":
		case "file", "sqlite", "sqlite3":
			if strings.TrimSpace(st.Path) == "" {
				errs = append(errs, fmt.Errorf("storage.path: required for driver %q", st.Driver))
			}
		default:
			errs = append(errs, fmt.Errorf("storage.driver: unknown value %q", st.Driver))
		}
		if _, err := ParseDurationField("storage.busy_timeout", st.BusyTimeout); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
