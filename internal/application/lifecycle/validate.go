package lifecycle

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"

	"appcrane/internal/domain/model"
	"appcrane/pkg/semver"
)

var validate = validator.New()

// checkExposure validates the networking part of a form against the descriptor
// and the other exposed apps.
func (s *Service) checkExposure(ctx context.Context, urn model.AppUrn, d *model.AppDescriptor, form model.AppForm) error {
	exposed := form.Bool(model.FormKeyExposed)
	domain := form.String(model.FormKeyDomain)

	if exposed && domain == "" {
		return model.NewValidationError("APP_ERROR_DOMAIN_REQUIRED_IF_EXPOSED", "domain is required if app is exposed")
	}
	if domain != "" && validate.Var(domain, "fqdn") != nil {
		return model.NewValidationError("APP_ERROR_DOMAIN_NOT_VALID", fmt.Sprintf("domain %s is not valid", domain))
	}
	if d.ForceExpose && !exposed {
		return model.NewValidationError("APP_ERROR_FORCE_EXPOSE_REQUIRED", fmt.Sprintf("app %s must be exposed", urn))
	}
	if exposed && !d.Exposable {
		return model.NewValidationError("APP_ERROR_APP_NOT_EXPOSABLE", fmt.Sprintf("app %s is not exposable", urn))
	}
	if !exposed {
		return nil
	}

	others, err := s.Apps.ListByDomain(ctx, domain, urn)
	if err != nil {
		return fmt.Errorf("list apps using %s: %w", domain, err)
	}
	if len(others) > 0 {
		return model.NewConflictError("APP_ERROR_DOMAIN_ALREADY_IN_USE",
			fmt.Sprintf("domain %s is already in use by app %s", domain, others[0].Urn))
	}
	return nil
}

func (s *Service) checkArchitecture(urn model.AppUrn, d *model.AppDescriptor) error {
	if !d.SupportsArchitecture(s.cfg.Architecture) {
		return model.NewValidationError("APP_ERROR_ARCHITECTURE_NOT_SUPPORTED",
			fmt.Sprintf("app %s is not supported on architecture %s", urn, s.cfg.Architecture))
	}
	return nil
}

func (s *Service) checkMinVersion(urn model.AppUrn, d *model.AppDescriptor) error {
	ok, err := semver.SatisfiesMinimum(s.cfg.Version, d.MinOrchestratorVersion)
	if err != nil {
		return model.NewDescriptorError(urn, err)
	}
	if !ok {
		return model.NewValidationError("APP_ERROR_VERSION_NOT_SUPPORTED",
			fmt.Sprintf("app %s requires version %s or newer, running %s", urn, d.MinOrchestratorVersion, s.cfg.Version))
	}
	return nil
}

func (s *Service) checkDemoLimit(ctx context.Context) error {
	if !s.cfg.DemoMode {
		return nil
	}
	apps, err := s.Apps.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("count apps: %w", err)
	}
	if len(apps) >= s.cfg.DemoMaxApps {
		return model.NewConflictError("APP_ERROR_DEMO_LIMIT",
			fmt.Sprintf("demo mode is limited to %d apps", s.cfg.DemoMaxApps))
	}
	return nil
}
