package command

import (
	"context"
	"fmt"
	"os"

	"appcrane/internal/application/compose"
)

func (e *Executor) uninstall(ctx context.Context, r *run) (string, error) {
	urn := r.cmd.AppUrn

	if err := e.ensureAppDir(ctx, r); err != nil {
		r.bestEffort("prepare app directory", err)
	} else {
		if _, err := e.generateEnv(ctx, r); err != nil {
			r.bestEffort("generate env", err)
		}
		r.bestEffort("down", e.compose(ctx, r, "down", "--remove-orphans", "-v", "--rmi", "all"))
	}

	if e.Networks != nil {
		r.bestEffort("remove network", e.Networks.RemoveAppNetwork(ctx, compose.NetworkName(urn)))
	}

	if err := os.RemoveAll(e.layout.InstalledAppDir(urn)); err != nil {
		return "", fmt.Errorf("remove app directory of %s: %w", urn, err)
	}
	if err := os.RemoveAll(e.layout.AppDataDir(urn)); err != nil {
		return "", fmt.Errorf("remove data directory of %s: %w", urn, err)
	}
	return fmt.Sprintf("app %s uninstalled successfully", urn), nil
}
