package lifecycle

import (
	"context"
	"fmt"

	"go.uber.org/multierr"

	"appcrane/internal/domain/model"
	"appcrane/pkg/log"
)

const interruptedMessage = "operation was interrupted by a restart"

// Reconcile settles apps left in a transient status by a previous process.
// Interrupted installs are removed; every other transient status becomes
// stopped. Apps with an operation in flight in this process are skipped.
// It returns the urns it changed.
func (s *Service) Reconcile(ctx context.Context) ([]model.AppUrn, error) {
	apps, err := s.Apps.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list apps: %w", err)
	}

	var (
		errs    error
		changed []model.AppUrn
	)
	for _, app := range apps {
		if !app.Status.IsTransient() || s.InFlight(app.Urn) {
			continue
		}
		if err := s.settle(ctx, app); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", app.Urn, err))
			continue
		}
		changed = append(changed, app.Urn)
	}
	return changed, errs
}

func (s *Service) settle(ctx context.Context, app model.App) error {
	log.Warn("[Lifecycle] settling interrupted operation", "app_urn", app.Urn, "status", app.Status)

	if app.Status == model.AppStatusInstalling {
		if err := s.Apps.Delete(ctx, app.Urn); err != nil {
			return err
		}
		s.Notifier.Publish(model.ErrorEvent("install", app.Urn, model.AppStatusMissing, interruptedMessage))
		return nil
	}
	return s.setTransient(ctx, app.Urn, settled(app.Status))
}
