package app

import (
	"fmt"
	"strings"
	"time"

	"herald/internal/config"
	"herald/internal/storage"
)

const defaultLedgerPath = "./config/completed.json"

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	lc := cfg.Ledger
	driver := strings.ToLower(strings.TrimSpace(lc.Driver))
	path := strings.TrimSpace(lc.Path)

	switch driver {
	case "", "file":
		if path == "" {
			path = defaultLedgerPath
		}
		return storage.Config{Driver: "file", Path: path}, nil
	case "sqlite", "sqlite3":
		if path == "" {
			return storage.Config{}, fmt.Errorf("ledger.path is required when ledger.driver=sqlite")
		}
		busy, err := config.ParseDurationOrDefault("ledger.busy_timeout", lc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, err
		}
		return storage.Config{Driver: driver, Path: path, BusyTimeout: busy}, nil
	default:
		return storage.Config{}, fmt.Errorf("unknown ledger.driver: %s", lc.Driver)
	}
}
