package command

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"go.uber.org/multierr"

	"appcrane/internal/application/compose"
	"appcrane/internal/domain/model"
)

const (
	composeFile = "docker-compose.yml"
	envFile     = "app.env"
)

// ensureAppDir makes sure the installed app directory holds a compose file
// built for this host and the app's subnet.
func (e *Executor) ensureAppDir(ctx context.Context, r *run) error {
	urn := r.cmd.AppUrn

	r.bestEffort("prune containers", e.Compose.PruneLabeledContainers(ctx, urn))

	appDir := e.layout.InstalledAppDir(urn)
	descriptorPath := filepath.Join(appDir, compose.DescriptorFile)
	if !fileExists(descriptorPath) {
		r.logger.Info("app files missing, copying from store")
		if err := e.Marketplace.CopyAppFilesToInstalled(ctx, urn); err != nil {
			return fmt.Errorf("copy app files for %s: %w", urn, err)
		}
	}

	data, err := os.ReadFile(descriptorPath)
	if err != nil {
		return fmt.Errorf("read compose descriptor for %s: %w", urn, err)
	}
	descriptor, err := compose.ParseDescriptor(data)
	if err != nil {
		return model.NewDescriptorError(urn, err)
	}

	subnet, err := e.Subnets.Allocate(ctx, urn)
	if err != nil {
		return fmt.Errorf("allocate subnet for %s: %w", urn, err)
	}

	spec, err := compose.Build(descriptor, compose.Params{
		Urn:          urn,
		Architecture: e.opts.Architecture,
		Subnet:       subnet,
		LabelKey:     e.opts.LabelKey,
		Form:         r.cmd.Form,
	})
	if err != nil {
		return err
	}
	out, err := compose.Marshal(spec)
	if err != nil {
		return model.NewDescriptorError(urn, err)
	}
	if err := os.WriteFile(filepath.Join(appDir, composeFile), out, 0o644); err != nil {
		return fmt.Errorf("write compose file for %s: %w", urn, err)
	}

	r.bestEffort("fix data permissions", e.fixOwnership(e.layout.AppDataDir(urn)))
	return nil
}

func (e *Executor) fixOwnership(dir string) error {
	if e.opts.Owner == nil || !fileExists(dir) {
		return nil
	}
	uid, gid := e.opts.Owner.UID, e.opts.Owner.GID
	var errs error
	walkErr := filepath.WalkDir(dir, func(path string, _ fs.DirEntry, err error) error {
		if err != nil {
			errs = multierr.Append(errs, err)
			return nil
		}
		errs = multierr.Append(errs, os.Lchown(path, uid, gid))
		return nil
	})
	return multierr.Append(errs, walkErr)
}

// composeArgs prefixes sub with the project, env file and compose files of the app.
func (e *Executor) composeArgs(urn model.AppUrn, sub ...string) []string {
	args := []string{
		"--project-name", urn.ProjectName(),
		"-f", filepath.Join(e.layout.InstalledAppDir(urn), composeFile),
	}
	if override := filepath.Join(e.layout.UserConfigDir(urn), composeFile); fileExists(override) {
		args = append(args, "-f", override)
	}
	if env := filepath.Join(e.layout.AppDataDir(urn), envFile); fileExists(env) {
		args = append(args, "--env-file", env)
	}
	return append(args, sub...)
}

// compose runs docker compose for the command's app and returns an error
// carrying stderr on failure.
func (e *Executor) compose(ctx context.Context, r *run, sub ...string) error {
	out, err := e.Compose.ComposeInvoke(ctx, r.cmd.AppUrn, e.composeArgs(r.cmd.AppUrn, sub...))
	if err != nil {
		if out.Stderr != "" {
			return model.NewExecutionError(fmt.Sprintf("docker compose %s failed: %s", sub[0], out.Stderr), err)
		}
		return model.NewExecutionError(fmt.Sprintf("docker compose %s failed", sub[0]), err)
	}
	return nil
}

func (e *Executor) upArgs(forcePull bool) []string {
	args := []string{"up", "--detach", "--force-recreate", "--remove-orphans"}
	if forcePull {
		args = append(args, "--pull", "always")
	}
	return args
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
