package app

import (
	"context"
	"errors"
	"fmt"

	"curseward/internal/config"
	"curseward/internal/repo"
)

// ResolveConfig returns the active registry config, ensuring one exists in the
// DB. A curseward.yml in the workspace takes precedence and is synced into the
// DB; otherwise the stored config is used, seeding defaults on first run.
func ResolveConfig(ctx context.Context, workspace, registryOverride string, r repo.Repo) (*config.Config, error) {
	fileCfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	if fileCfg != nil {
		if registryOverride != "" {
			fileCfg.Registry.ID = registryOverride
		}
		if err := r.UpsertConfig(ctx, fileCfg); err != nil {
			return nil, fmt.Errorf("sync config: %w", err)
		}
		return fileCfg, nil
	}
	cfg, err := r.GetConfig(ctx)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}
	registryID := registryOverride
	if registryID == "" {
		registryID = "default-registry"
	}
	seed := config.Default(registryID)
	if err := r.UpsertConfig(ctx, seed); err != nil {
		return nil, fmt.Errorf("seed config: %w", err)
	}
	return seed, nil
}
