package command

import (
	"context"
	"fmt"
)

func (e *Executor) backup(ctx context.Context, r *run) (string, error) {
	if err := e.ensureAppDir(ctx, r); err != nil {
		return "", err
	}
	e.stopBestEffort(ctx, r)

	filename, err := e.Backups.Backup(ctx, r.cmd.AppUrn)
	if err != nil {
		return "", fmt.Errorf("backup %s: %w", r.cmd.AppUrn, err)
	}
	return fmt.Sprintf("app %s backed up to %s", r.cmd.AppUrn, filename), nil
}

func (e *Executor) restore(ctx context.Context, r *run) (string, error) {
	if r.cmd.Filename == "" {
		return "", fmt.Errorf("restore %s: no backup file given", r.cmd.AppUrn)
	}
	if err := e.ensureAppDir(ctx, r); err != nil {
		return "", err
	}
	e.stopBestEffort(ctx, r)

	if err := e.Backups.Restore(ctx, r.cmd.AppUrn, r.cmd.Filename); err != nil {
		return "", fmt.Errorf("restore %s from %s: %w", r.cmd.AppUrn, r.cmd.Filename, err)
	}
	return fmt.Sprintf("app %s restored from %s", r.cmd.AppUrn, r.cmd.Filename), nil
}
