package command

import (
	"context"
	"fmt"
	"os"
	"strings"
)

func (e *Executor) reset(ctx context.Context, r *run) (string, error) {
	urn := r.cmd.AppUrn

	if err := e.ensureAppDir(ctx, r); err != nil {
		return "", err
	}
	if _, err := e.generateEnv(ctx, r); err != nil {
		return "", err
	}

	if err := e.compose(ctx, r, "down", "--remove-orphans", "--volumes"); err != nil {
		if !isConflict(err) {
			return "", err
		}
		r.bestEffort("down", err)
	}

	dataDir := e.layout.AppDataDir(urn)
	if err := os.RemoveAll(dataDir); err != nil {
		return "", fmt.Errorf("remove data directory of %s: %w", urn, err)
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return "", fmt.Errorf("recreate data directory of %s: %w", urn, err)
	}

	vars, err := e.generateEnv(ctx, r)
	if err != nil {
		return "", err
	}
	if err := e.Marketplace.CopyDataDirTemplates(ctx, urn, vars); err != nil {
		return "", fmt.Errorf("copy data templates for %s: %w", urn, err)
	}
	r.bestEffort("fix data permissions", e.fixOwnership(dataDir))

	return fmt.Sprintf("app %s reset successfully", urn), nil
}

// isConflict reports docker's "conflict" errors, raised when a volume or
// network is still referenced while being removed.
func isConflict(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "conflict")
}
