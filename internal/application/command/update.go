package command

import (
	"context"
	"fmt"
)

func (e *Executor) update(ctx context.Context, r *run) (string, error) {
	urn := r.cmd.AppUrn

	if r.cmd.PerformBackup {
		if _, err := e.Backups.Backup(ctx, urn); err != nil {
			return "", fmt.Errorf("backup %s before update: %w", urn, err)
		}
	}

	if err := e.ensureAppDir(ctx, r); err != nil {
		return "", err
	}
	if _, err := e.generateEnv(ctx, r); err != nil {
		return "", err
	}
	if err := e.compose(ctx, r, e.upArgs(false)...); err != nil {
		return "", err
	}
	r.bestEffort("remove old images", e.compose(ctx, r, "down", "--rmi", "all", "--remove-orphans"))

	if err := e.Marketplace.CopyAppFilesToInstalled(ctx, urn); err != nil {
		return "", fmt.Errorf("copy app files for %s: %w", urn, err)
	}
	if err := e.ensureAppDir(ctx, r); err != nil {
		return "", err
	}
	if _, err := e.generateEnv(ctx, r); err != nil {
		return "", err
	}
	if err := e.compose(ctx, r, "pull"); err != nil {
		return "", err
	}
	return fmt.Sprintf("app %s updated successfully", urn), nil
}
