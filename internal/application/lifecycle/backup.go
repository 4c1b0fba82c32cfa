package lifecycle

import (
	"context"

	"appcrane/internal/application/command"
	"appcrane/internal/domain/model"
	"appcrane/pkg/queue"
)

// BackupApp archives the app. The app is stopped while the archive is
// written and started again afterwards when it was running.
func (s *Service) BackupApp(ctx context.Context, urn model.AppUrn) (*Operation, error) {
	return s.guarded(ctx, urn, "backup", func(op *Operation, app *model.App) error {
		prev := app.Status
		if err := s.setTransient(ctx, urn, model.AppStatusBackingUp); err != nil {
			return err
		}
		cmd := command.Command{Kind: command.KindBackup, AppUrn: urn, Form: app.Config}
		s.launch(ctx, op, cmd, func(ctx context.Context, res queue.Result) queue.Result {
			status := s.resume(ctx, app, prev)
			if !res.Success {
				return s.fail(ctx, op, status, res.Message)
			}
			return s.succeed(ctx, op, status, res)
		})
		return nil
	})
}

// RestoreApp replaces the app data with the content of filename.
func (s *Service) RestoreApp(ctx context.Context, urn model.AppUrn, filename string) (*Operation, error) {
	if filename == "" {
		return nil, model.NewValidationError("APP_ERROR_BACKUP_FILENAME_REQUIRED", "a backup filename is required")
	}
	return s.guarded(ctx, urn, "restore", func(op *Operation, app *model.App) error {
		prev := app.Status
		if err := s.setTransient(ctx, urn, model.AppStatusRestoring); err != nil {
			return err
		}
		cmd := command.Command{Kind: command.KindRestore, AppUrn: urn, Form: app.Config, Filename: filename}
		s.launch(ctx, op, cmd, func(ctx context.Context, res queue.Result) queue.Result {
			status := s.resume(ctx, app, prev)
			if !res.Success {
				return s.fail(ctx, op, status, res.Message)
			}
			return s.succeed(ctx, op, status, res)
		})
		return nil
	})
}
