package storage

import (
	"context"
	"errors"
	"strings"

	logx "pushrelay/pkg/logx"
)

// Store is the persistence API used by the simulated module.
type Store interface {
	AppendCommand(ctx context.Context, r CommandRecord) error
	Commands(ctx context.Context, limit int) ([]CommandRecord, error)

	Put(ctx context.Context, ns, key, value string) error
	Get(ctx context.Context, ns, key string) (value string, ok bool, err error)
	Delete(ctx context.Context, ns, key string) error
	List(ctx context.Context, ns string) (map[string]string, error)

	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "memory":
		return NewMemory(), nil
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
