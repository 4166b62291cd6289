package config

// Config is the relay daemon configuration.
//
// Example (YAML):
//
//	platform: android
//	sdk:
//	  app_id: "b2f7f966-d8cc-11e4-bed1-df8f05be55ba"
//	  broadcasts:
//	    - name: promo
//	      event: inAppMessageClicked
//	      schedule: "@every 30s"
//	storage: { driver: sqlite, path: ./data/relay.db }
type Config struct {
	// Platform is "ios" or "android".
	Platform    string            `json:"platform"`
	SDK         SDKConfig         `json:"sdk"`
	Diagnostics DiagnosticsConfig `json:"diagnostics,omitempty"`
	Logging     LoggingConfig     `json:"logging"`
	Storage     *StorageConfig    `json:"storage,omitempty"`
}

// SDKConfig controls the simulated native module.
//
// Available is a pointer so we can distinguish "omitted" (true) from an
// explicit false, which runs the relay inert.
type SDKConfig struct {
	Available     *bool  `json:"available,omitempty"`
	AppID         string `json:"app_id"`
	QueueSize     int    `json:"queue_size,omitempty"`
	AcceptPrompts bool   `json:"accept_prompts,omitempty"`
	// StoreTimeout is a Go duration string (e.g. "2s").
	StoreTimeout string            `json:"store_timeout,omitempty"`
	Broadcasts   []BroadcastConfig `json:"broadcasts,omitempty"`
}

// IsAvailable reports the effective availability (default true).
func (c SDKConfig) IsAvailable() bool { return c.Available == nil || *c.Available }

// BroadcastConfig schedules a recurring simulated broadcast.
type BroadcastConfig struct {
	Name string `json:"name"`
	// Event is a listener name: received, opened, ids, emailSubscription,
	// inAppMessageClicked.
	Event string `json:"event"`
	// Schedule is cron ("*/5 * * * *", "@every 30s"), a duration ("10m") or HH:MM.
	Schedule string         `json:"schedule"`
	Payload  map[string]any `json:"payload,omitempty"`
}

// DiagnosticsConfig controls platform-mismatch notices.
type DiagnosticsConfig struct {
	// NoticesPerSec bounds how many notices reach the log (0 means 5).
	NoticesPerSec int `json:"notices_per_sec,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StorageConfig controls the persistence of simulated SDK state.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./pushrelay_store" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}
