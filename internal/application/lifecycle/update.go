package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/multierr"

	"appcrane/internal/application/command"
	"appcrane/internal/domain/model"
	"appcrane/pkg/log"
	"appcrane/pkg/queue"
)

// UpdateApp replaces the installed app files with the store version.
func (s *Service) UpdateApp(ctx context.Context, urn model.AppUrn, performBackup bool) (*Operation, error) {
	return s.guarded(ctx, urn, "update", func(op *Operation, app *model.App) error {
		d, err := s.Marketplace.GetAppDescriptor(ctx, urn)
		if err != nil {
			return err
		}
		if err := s.checkMinVersion(urn, d); err != nil {
			return err
		}
		if err := s.checkArchitecture(urn, d); err != nil {
			return err
		}

		prev := app.Status
		if err := s.setTransient(ctx, urn, model.AppStatusUpdating); err != nil {
			return err
		}
		cmd := command.Command{Kind: command.KindUpdate, AppUrn: urn, Form: app.Config, PerformBackup: performBackup}
		s.launch(ctx, op, cmd, func(ctx context.Context, res queue.Result) queue.Result {
			if !res.Success {
				return s.fail(ctx, op, model.AppStatusStopped, res.Message)
			}
			if err := s.afterUpdate(ctx, app); err != nil {
				return s.fail(ctx, op, model.AppStatusStopped, err.Error())
			}
			return s.succeed(ctx, op, s.resume(ctx, app, prev), res)
		})
		return nil
	})
}

// afterUpdate records the installed version and regenerates the env so new
// descriptor fields get their defaults.
func (s *Service) afterUpdate(ctx context.Context, app *model.App) error {
	d, err := s.Marketplace.GetInstalledAppDescriptor(ctx, app.Urn)
	if err != nil {
		return fmt.Errorf("read installed descriptor: %w", err)
	}
	version := d.Version
	if _, err := s.Apps.Update(ctx, app.Urn, model.AppPatch{Version: &version}); err != nil {
		return fmt.Errorf("save version %d: %w", version, err)
	}
	res := s.publish(ctx, command.Command{Kind: command.KindGenerateEnv, AppUrn: app.Urn, Form: app.Config})
	if !res.Success {
		return fmt.Errorf("regenerate env: %s", res.Message)
	}
	return nil
}

// UpdateAllApps updates every app whose installed version is behind the
// store. Each app is updated independently; the returned error combines the
// failures and the slice lists the apps that were updated.
func (s *Service) UpdateAllApps(ctx context.Context) ([]model.AppUrn, error) {
	apps, err := s.Apps.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list apps: %w", err)
	}

	var (
		errs error
		ops  []*Operation
	)
	for _, app := range apps {
		if app.Status == model.AppStatusMissing {
			continue
		}
		d, err := s.Marketplace.GetAppDescriptor(ctx, app.Urn)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", app.Urn, err))
			continue
		}
		if app.Version >= d.Version {
			continue
		}
		log.Info("[Lifecycle] update available", "app_urn", app.Urn, "installed", app.Version, "available", d.Version)
		op, err := s.UpdateApp(ctx, app.Urn, false)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", app.Urn, err))
			continue
		}
		ops = append(ops, op)
	}

	var updated []model.AppUrn
	for _, op := range ops {
		res, err := op.Wait(ctx)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", op.AppUrn, err))
			continue
		}
		if !res.Success {
			errs = multierr.Append(errs, fmt.Errorf("%s: %s", op.AppUrn, res.Message))
			continue
		}
		updated = append(updated, op.AppUrn)
	}
	return updated, errs
}

// UpdateAppConfig validates form by regenerating the app env and then saves
// it on the app row. It runs synchronously.
func (s *Service) UpdateAppConfig(ctx context.Context, urn model.AppUrn, form model.AppForm) (*model.App, error) {
	if form == nil {
		form = model.AppForm{}
	}
	op, err := s.acquire(urn, "update_config")
	if err != nil {
		return nil, err
	}
	defer s.release(op)

	if _, err := s.Apps.Get(ctx, urn); err != nil {
		return nil, err
	}
	d, err := s.Marketplace.GetInstalledAppDescriptor(ctx, urn)
	if errors.Is(err, model.ErrNotFound) {
		d, err = s.Marketplace.GetAppDescriptor(ctx, urn)
	}
	if err != nil {
		return nil, err
	}
	if err := s.checkExposure(ctx, urn, d, form); err != nil {
		return nil, err
	}

	res := s.publish(ctx, command.Command{Kind: command.KindGenerateEnv, AppUrn: urn, Form: form})
	if !res.Success {
		return nil, model.NewExecutionError(fmt.Sprintf("failed to apply config for app %s: %s", urn, res.Message), nil)
	}

	app, err := s.Apps.Update(ctx, urn, model.ExposureFromForm(form))
	if err != nil {
		return nil, fmt.Errorf("save config for %s: %w", urn, err)
	}
	return app, nil
}
