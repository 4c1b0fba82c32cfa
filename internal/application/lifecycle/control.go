package lifecycle

import (
	"context"

	"appcrane/internal/application/command"
	"appcrane/internal/domain/model"
	"appcrane/pkg/log"
	"appcrane/pkg/queue"
)

func (s *Service) StartApp(ctx context.Context, urn model.AppUrn) (*Operation, error) {
	return s.guarded(ctx, urn, "start", func(op *Operation, app *model.App) error {
		cmd := command.Command{Kind: command.KindStart, AppUrn: urn, Form: app.Config}
		return s.steady(ctx, op, cmd, model.AppStatusStarting, model.AppStatusRunning, model.AppStatusStopped)
	})
}

func (s *Service) StopApp(ctx context.Context, urn model.AppUrn) (*Operation, error) {
	return s.guarded(ctx, urn, "stop", func(op *Operation, app *model.App) error {
		cmd := command.Command{Kind: command.KindStop, AppUrn: urn, Form: app.Config}
		return s.steady(ctx, op, cmd, model.AppStatusStopping, model.AppStatusStopped, model.AppStatusRunning)
	})
}

func (s *Service) RestartApp(ctx context.Context, urn model.AppUrn) (*Operation, error) {
	return s.guarded(ctx, urn, "restart", func(op *Operation, app *model.App) error {
		cmd := command.Command{Kind: command.KindRestart, AppUrn: urn, Form: app.Config}
		return s.steady(ctx, op, cmd, model.AppStatusRestarting, model.AppStatusRunning, model.AppStatusStopped)
	})
}

// UninstallApp tears the app down and deletes its row on success.
func (s *Service) UninstallApp(ctx context.Context, urn model.AppUrn) (*Operation, error) {
	return s.guarded(ctx, urn, "uninstall", func(op *Operation, app *model.App) error {
		if err := s.setTransient(ctx, urn, model.AppStatusUninstalling); err != nil {
			return err
		}
		cmd := command.Command{Kind: command.KindUninstall, AppUrn: urn, Form: app.Config}
		s.launch(ctx, op, cmd, func(ctx context.Context, res queue.Result) queue.Result {
			if !res.Success {
				return s.fail(ctx, op, model.AppStatusStopped, res.Message)
			}
			if err := s.Apps.Delete(ctx, urn); err != nil {
				log.Error("[Lifecycle] failed to delete uninstalled app", "app_urn", urn, "error", err)
				return s.fail(ctx, op, model.AppStatusStopped, err.Error())
			}
			s.Notifier.Publish(model.SuccessEvent(op.Name, urn, model.AppStatusMissing))
			return res
		})
		return nil
	})
}

// settled maps a status left behind by an interrupted operation to the
// steady status it most likely corresponds to.
func settled(status model.AppStatus) model.AppStatus {
	if status.IsTransient() {
		return model.AppStatusStopped
	}
	return status
}

// resume starts the app again when it was running before the operation and
// returns the resulting steady status.
func (s *Service) resume(ctx context.Context, app *model.App, prev model.AppStatus) model.AppStatus {
	if prev != model.AppStatusRunning {
		return settled(prev)
	}
	if err := s.setTransient(ctx, app.Urn, model.AppStatusStarting); err != nil {
		log.Error("[Lifecycle] failed to mark app starting", "app_urn", app.Urn, "error", err)
	}
	res := s.publish(ctx, command.Command{Kind: command.KindStart, AppUrn: app.Urn, Form: app.Config})
	if !res.Success {
		log.Warn("[Lifecycle] failed to start app again", "app_urn", app.Urn, "message", res.Message)
		return model.AppStatusStopped
	}
	return model.AppStatusRunning
}
