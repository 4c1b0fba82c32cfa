package command

import (
	"context"
	"fmt"
	"path/filepath"
)

func (e *Executor) install(ctx context.Context, r *run) (string, error) {
	urn := r.cmd.AppUrn

	// Leftovers of a previous install of the same app.
	if fileExists(filepath.Join(e.layout.InstalledAppDir(urn), composeFile)) {
		r.bestEffort("teardown stale containers", e.compose(ctx, r, "down", "--remove-orphans"))
	}

	if err := e.Marketplace.CopyAppFilesToInstalled(ctx, urn); err != nil {
		return "", fmt.Errorf("copy app files for %s: %w", urn, err)
	}

	vars, err := e.generateEnv(ctx, r)
	if err != nil {
		return "", err
	}
	if err := e.Marketplace.CopyDataDirTemplates(ctx, urn, vars); err != nil {
		return "", fmt.Errorf("copy data templates for %s: %w", urn, err)
	}

	if err := e.ensureAppDir(ctx, r); err != nil {
		return "", err
	}

	forcePull, err := e.forcePull(ctx, r)
	if err != nil {
		return "", err
	}
	if err := e.compose(ctx, r, e.upArgs(forcePull)...); err != nil {
		return "", err
	}
	return fmt.Sprintf("app %s installed successfully", urn), nil
}

func (e *Executor) forcePull(ctx context.Context, r *run) (bool, error) {
	if e.opts.ForcePull {
		return true, nil
	}
	d, err := e.descriptor(ctx, r.cmd.AppUrn)
	if err != nil {
		return false, fmt.Errorf("load descriptor for %s: %w", r.cmd.AppUrn, err)
	}
	return d.ForcePull, nil
}
