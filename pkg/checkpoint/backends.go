package checkpoint

import (
	"context"
	"os"
	"time"

	rferrors "github.com/logflow/reportflow/pkg/errors"
)

// Backend defines the interface for run journal storage.
type Backend interface {
	// Save persists a run record, replacing any earlier version.
	Save(ctx context.Context, run *Run) error

	// Load retrieves a run by ID. Unknown IDs return os.ErrNotExist.
	Load(ctx context.Context, id string) (*Run, error)

	// Recent returns up to limit runs, newest first.
	Recent(ctx context.Context, limit int) ([]*Run, error)

	// Name returns the backend name for logging/debugging.
	Name() string

	Close() error
}

// NopBackend discards every record.
type NopBackend struct{}

func (NopBackend) Save(ctx context.Context, run *Run) error { return nil }

func (NopBackend) Load(ctx context.Context, id string) (*Run, error) { return nil, os.ErrNotExist }

func (NopBackend) Recent(ctx context.Context, limit int) ([]*Run, error) { return nil, nil }

func (NopBackend) Name() string { return "none" }

func (NopBackend) Close() error { return nil }

// Backend kinds.
const (
	BackendNone  = "none"
	BackendFile  = "file"
	BackendRedis = "redis"
)

// Config selects and configures a backend.
type Config struct {
	Backend string
	Dir     string
	Redis   RedisConfig
}

// Open returns the backend described by cfg.
func Open(cfg Config) (Backend, error) {
	switch cfg.Backend {
	case BackendNone, "":
		return NopBackend{}, nil
	case BackendFile:
		dir := cfg.Dir
		if dir == "" {
			dir = ".reportflow/runs"
		}
		return NewFileBackend(dir)
	case BackendRedis:
		rc := cfg.Redis
		defaults := DefaultRedisConfig(rc.Address)
		if rc.Prefix == "" {
			rc.Prefix = defaults.Prefix
		}
		if rc.Timeout <= 0 {
			rc.Timeout = defaults.Timeout
		}
		if rc.PoolSize <= 0 {
			rc.PoolSize = defaults.PoolSize
		}
		if rc.RecentLimit <= 0 {
			rc.RecentLimit = defaults.RecentLimit
		}
		if rc.TTL == 0 {
			rc.TTL = defaults.TTL
		}
		return NewRedisBackend(rc)
	default:
		return nil, rferrors.InvalidConfig("unsupported checkpoint backend: %s", cfg.Backend)
	}
}

// DefaultRetention is how long finished runs are kept by default.
const DefaultRetention = 7 * 24 * time.Hour
