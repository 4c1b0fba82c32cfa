package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"appcrane/internal/application/command"
	"appcrane/internal/domain/model"
	"appcrane/pkg/log"
	"appcrane/pkg/queue"
)

// InstallApp installs urn with the given form. An app that already exists is
// started instead. If the install command fails the app row is removed.
func (s *Service) InstallApp(ctx context.Context, urn model.AppUrn, form model.AppForm) (*Operation, error) {
	if _, err := model.ParseAppUrn(urn.String()); err != nil {
		return nil, err
	}

	_, err := s.Apps.Get(ctx, urn)
	if err == nil {
		log.Info("[Lifecycle] app already installed, starting it", "app_urn", urn)
		return s.StartApp(ctx, urn)
	}
	if !errors.Is(err, model.ErrNotFound) {
		return nil, err
	}

	op, err := s.acquire(urn, "install")
	if err != nil {
		return nil, err
	}
	if err := s.prepareInstall(ctx, op, form); err != nil {
		s.release(op)
		return nil, err
	}
	return op, nil
}

func (s *Service) prepareInstall(ctx context.Context, op *Operation, form model.AppForm) error {
	urn := op.AppUrn
	if form == nil {
		form = model.AppForm{}
	}

	d, err := s.Marketplace.GetAppDescriptor(ctx, urn)
	if err != nil {
		return err
	}
	if err := s.checkArchitecture(urn, d); err != nil {
		return err
	}
	if err := s.checkMinVersion(urn, d); err != nil {
		return err
	}
	if err := s.checkExposure(ctx, urn, d, form); err != nil {
		return err
	}
	if err := s.checkDemoLimit(ctx); err != nil {
		return err
	}

	app := model.ExposureFromForm(form).Apply(model.App{
		Urn:     urn,
		Status:  model.AppStatusInstalling,
		Version: d.Version,
	})
	if _, err := s.Apps.Create(ctx, app); err != nil {
		return fmt.Errorf("create app %s: %w", urn, err)
	}
	s.Notifier.Publish(model.StatusChangeEvent(urn, model.AppStatusInstalling))

	cmd := command.Command{Kind: command.KindInstall, AppUrn: urn, Form: form}
	s.launch(ctx, op, cmd, func(ctx context.Context, res queue.Result) queue.Result {
		if res.Success {
			return s.succeed(ctx, op, model.AppStatusRunning, res)
		}
		if err := s.Apps.Delete(ctx, urn); err != nil {
			log.Error("[Lifecycle] failed to roll back install", "app_urn", urn, "error", err)
		}
		log.Warn("[Lifecycle] install failed", "app_urn", urn, "message", res.Message)
		s.Notifier.Publish(model.ErrorEvent(op.Name, urn, model.AppStatusMissing, res.Message))
		return res
	})
	return nil
}
