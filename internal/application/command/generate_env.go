package command

import (
	"context"
	"fmt"
)

func (e *Executor) generateEnvCommand(ctx context.Context, r *run) (string, error) {
	if _, err := e.generateEnv(ctx, r); err != nil {
		return "", err
	}
	return fmt.Sprintf("env for %s generated", r.cmd.AppUrn), nil
}
