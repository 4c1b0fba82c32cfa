package command

import (
	"context"
	"fmt"
)

func (e *Executor) start(ctx context.Context, r *run) (string, error) {
	if err := e.ensureAppDir(ctx, r); err != nil {
		return "", err
	}
	if _, err := e.generateEnv(ctx, r); err != nil {
		return "", err
	}
	forcePull, err := e.forcePull(ctx, r)
	if err != nil {
		return "", err
	}
	if err := e.compose(ctx, r, e.upArgs(forcePull)...); err != nil {
		return "", err
	}
	return fmt.Sprintf("app %s started successfully", r.cmd.AppUrn), nil
}

func (e *Executor) stop(ctx context.Context, r *run) (string, error) {
	if err := e.ensureAppDir(ctx, r); err != nil {
		return "", err
	}
	if _, err := e.generateEnv(ctx, r); err != nil {
		return "", err
	}
	if err := e.compose(ctx, r, "rm", "--force", "--stop"); err != nil {
		return "", err
	}
	return fmt.Sprintf("app %s stopped successfully", r.cmd.AppUrn), nil
}

// stopBestEffort stops the app's containers without failing the command.
func (e *Executor) stopBestEffort(ctx context.Context, r *run) {
	r.bestEffort("stop", e.compose(ctx, r, "rm", "--force", "--stop"))
}

func (e *Executor) restart(ctx context.Context, r *run) (string, error) {
	if err := e.ensureAppDir(ctx, r); err != nil {
		return "", err
	}
	e.stopBestEffort(ctx, r)
	if _, err := e.generateEnv(ctx, r); err != nil {
		return "", err
	}
	if err := e.compose(ctx, r, e.upArgs(true)...); err != nil {
		return "", err
	}
	return fmt.Sprintf("app %s restarted successfully", r.cmd.AppUrn), nil
}
