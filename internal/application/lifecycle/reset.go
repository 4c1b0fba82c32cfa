package lifecycle

import (
	"context"

	"appcrane/internal/application/command"
	"appcrane/internal/domain/model"
	"appcrane/pkg/queue"
)

// ResetApp wipes the app data. A previously running app is started again.
func (s *Service) ResetApp(ctx context.Context, urn model.AppUrn) (*Operation, error) {
	return s.guarded(ctx, urn, "reset", func(op *Operation, app *model.App) error {
		prev := app.Status
		if err := s.setTransient(ctx, urn, model.AppStatusResetting); err != nil {
			return err
		}
		cmd := command.Command{Kind: command.KindReset, AppUrn: urn, Form: app.Config}
		s.launch(ctx, op, cmd, func(ctx context.Context, res queue.Result) queue.Result {
			if !res.Success {
				return s.fail(ctx, op, model.AppStatusRunning, res.Message)
			}
			status := s.resume(ctx, app, prev)
			if prev == model.AppStatusRunning && status != model.AppStatusRunning {
				return s.fail(ctx, op, status, "app was reset but could not be started again")
			}
			return s.succeed(ctx, op, status, res)
		})
		return nil
	})
}
