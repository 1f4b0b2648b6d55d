package app

import (
	"context"

	"herald/internal/catalog"
	"herald/internal/config"
)

// Check loads and validates the config at cfgPath, then inspects the
// catalogs it points at. It does not connect to Discord.
//
// The returned error is a config problem; the slice lists catalog problems.
func Check(ctx context.Context, cfgPath string) ([]error, error) {
	cfg, err := config.NewManager(cfgPath).Parse()
	if err != nil {
		return nil, err
	}
	if err := validate(ctx, cfg); err != nil {
		return nil, err
	}
	files, err := mapCatalog(cfg)
	if err != nil {
		return nil, err
	}
	return catalog.Check(ctx, files), nil
}
