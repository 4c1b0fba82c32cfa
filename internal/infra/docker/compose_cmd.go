package docker

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"

	"appcrane/internal/domain/model"
	"appcrane/internal/domain/repository"
	"appcrane/pkg/log"
)

const defaultBinary = "docker"

// ComposeExecutor runs docker compose for apps and prunes their leftover
// containers.
type ComposeExecutor struct {
	engine   engineAPI
	labelKey string
	binary   string
}

var _ repository.ComposeExecutor = (*ComposeExecutor)(nil)

func NewComposeExecutor(engine engineAPI, labelKey string) *ComposeExecutor {
	if engine == nil {
		log.Fatalf("[Docker] docker client is nil, compose executor cannot be created")
	}
	return &ComposeExecutor{engine: engine, labelKey: labelKey, binary: defaultBinary}
}

// ComposeInvoke runs `docker compose <args>` and captures both streams.
func (e *ComposeExecutor) ComposeInvoke(ctx context.Context, urn model.AppUrn, args []string) (repository.ComposeOutput, error) {
	fullArgs := append([]string{"compose"}, args...)
	cmd := exec.CommandContext(ctx, e.binary, fullArgs...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	out := repository.ComposeOutput{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		log.Error("[Docker] docker compose command failed", "app_urn", urn, "args", fullArgs, "stderr", out.Stderr, "error", err)
		return out, fmt.Errorf("docker compose %s failed: %w", strings.Join(args, " "), err)
	}
	log.Debug("[Docker] docker compose executed", "app_urn", urn, "args", fullArgs, "stdout", out.Stdout)
	return out, nil
}

// PruneLabeledContainers removes stopped containers labeled with the app urn.
// Running containers are left to compose.
func (e *ComposeExecutor) PruneLabeledContainers(ctx context.Context, urn model.AppUrn) error {
	filterArgs := filters.NewArgs()
	filterArgs.Add("label", fmt.Sprintf("%s=%s", e.labelKey, urn))
	filterArgs.Add("status", "created")
	filterArgs.Add("status", "exited")
	filterArgs.Add("status", "dead")

	containers, err := e.engine.ContainerList(ctx, container.ListOptions{All: true, Filters: filterArgs})
	if err != nil {
		return fmt.Errorf("list containers of %s: %w", urn, err)
	}

	var failed []string
	for _, c := range containers {
		if err := e.engine.ContainerRemove(ctx, c.ID, container.RemoveOptions{Force: true}); err != nil {
			log.Warn("[Docker] failed to remove container", "app_urn", urn, "container_id", c.ID, "error", err)
			failed = append(failed, c.ID)
			continue
		}
		log.Debug("[Docker] pruned container", "app_urn", urn, "container_id", c.ID, "names", c.Names)
	}
	if len(failed) > 0 {
		return fmt.Errorf("failed to remove %d containers of %s: %s", len(failed), urn, strings.Join(failed, ", "))
	}
	return nil
}
