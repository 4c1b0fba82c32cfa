package repository

import (
	"context"

	"appcrane/internal/domain/model"
)

// AppRepository persists App rows.
//
// Get returns an error matching model.ErrNotFound when the urn is unknown.
// Update applies only the non-nil fields of the patch and returns the updated
// row. ListByDomain returns the exposed apps using domain, skipping excludeUrn.
type AppRepository interface {
	Get(ctx context.Context, urn model.AppUrn) (*model.App, error)
	Create(ctx context.Context, app model.App) (*model.App, error)
	Update(ctx context.Context, urn model.AppUrn, patch model.AppPatch) (*model.App, error)
	Delete(ctx context.Context, urn model.AppUrn) error
	ListAll(ctx context.Context) ([]model.App, error)
	ListByDomain(ctx context.Context, domain string, excludeUrn model.AppUrn) ([]model.App, error)
}
