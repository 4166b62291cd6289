package app

import (
	"fmt"
	"strings"
	"time"

	"pushrelay/internal/config"
	"pushrelay/internal/platform"
	"pushrelay/internal/relay"
	"pushrelay/internal/sdk/sim"
	"pushrelay/internal/storage"
)

func mapStorageConfig(cfg *config.Config) (storage.Config, bool, error) {
	if cfg == nil || cfg.Storage == nil {
		return storage.Config{}, false, nil
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "" || driver == "none" {
		return storage.Config{}, false, nil
	}
	path := strings.TrimSpace(sc.Path)

	switch driver {
	case "memory":
		return storage.Config{Driver: driver}, true, nil
	case "file":
		return storage.Config{Driver: driver, Path: path}, true, nil
	case "sqlite", "sqlite3":
		if path == "" {
			return storage.Config{}, false, fmt.Errorf("storage.path is required when storage.driver=sqlite")
		}
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, false, err
		}
		return storage.Config{Driver: "sqlite", Path: path, BusyTimeout: busy}, true, nil
	default:
		return storage.Config{}, false, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

func mapSimConfig(cfg *config.Config) (sim.Config, error) {
	sc := cfg.SDK
	timeout, err := config.ParseDurationField("sdk.store_timeout", sc.StoreTimeout)
	if err != nil {
		return sim.Config{}, err
	}
	out := sim.Config{
		QueueSize:     sc.QueueSize,
		AcceptPrompts: sc.AcceptPrompts,
		StoreTimeout:  timeout,
	}
	for _, b := range sc.Broadcasts {
		out.Broadcasts = append(out.Broadcasts, sim.Broadcast{
			Name:     b.Name,
			Event:    b.Event,
			Schedule: b.Schedule,
			Payload:  b.Payload,
		})
	}
	return out, nil
}

// validateConfig holds the checks config.Validate cannot make without
// importing the domain packages. It runs on load and on every reload.
func validateConfig(cfg *config.Config) error {
	if _, err := platform.ParseOS(cfg.Platform); err != nil {
		return err
	}
	for i, b := range cfg.SDK.Broadcasts {
		if _, err := relay.ParseEventType(b.Event); err != nil {
			return fmt.Errorf("sdk.broadcasts[%d].event: %w", i, err)
		}
		spec, err := sim.ParseSchedule(b.Schedule)
		if err != nil {
			return fmt.Errorf("sdk.broadcasts[%d].schedule: %w", i, err)
		}
		if _, err := spec.Schedule(); err != nil {
			return fmt.Errorf("sdk.broadcasts[%d].schedule: %w", i, err)
		}
	}
	if _, _, err := mapStorageConfig(cfg); err != nil {
		return err
	}
	return nil
}
