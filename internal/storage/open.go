package storage

import (
	"context"
	"errors"
	"strings"

	logx "herald/pkg/logx"
)

// Store is the persistence API used by the ledger and the scheduler.
type Store interface {
	// LoadCompleted returns every id recorded as dispatched.
	LoadCompleted(ctx context.Context) ([]uint32, error)
	// SaveCompleted atomically replaces the stored id set. On error the
	// previously stored set must remain readable and unchanged.
	SaveCompleted(ctx context.Context, ids []uint32) error
	AppendAudit(ctx context.Context, e AuditEntry) error
	Close() error
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "", "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
