package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"appcrane/internal/domain/model"
	"appcrane/internal/domain/repository"
)

// AppModel is the GORM model for the apps table.
type AppModel struct {
	Urn                       string         `gorm:"primaryKey;size:255"`
	Status                    string         `gorm:"size:32;not null;default:missing"`
	Config                    map[string]any `gorm:"type:text;serializer:json"`
	Version                   int            `gorm:"not null"`
	Subnet                    *string        `gorm:"size:32;uniqueIndex"`
	Domain                    string         `gorm:"size:255;index"`
	Exposed                   bool           `gorm:"not null"`
	ExposedLocal              bool           `gorm:"not null"`
	OpenPort                  bool           `gorm:"not null"`
	IsVisibleOnGuestDashboard bool           `gorm:"not null"`
	CreatedAt                 time.Time      `gorm:"autoCreateTime"`
	UpdatedAt                 time.Time      `gorm:"autoUpdateTime"`
}

func (AppModel) TableName() string {
	return "apps"
}

func (m *AppModel) ToEntity() *model.App {
	return &model.App{
		Urn:                       model.AppUrn(m.Urn),
		Status:                    model.AppStatus(m.Status),
		Config:                    model.AppForm(m.Config),
		Version:                   m.Version,
		Subnet:                    m.Subnet,
		Domain:                    m.Domain,
		Exposed:                   m.Exposed,
		ExposedLocal:              m.ExposedLocal,
		OpenPort:                  m.OpenPort,
		IsVisibleOnGuestDashboard: m.IsVisibleOnGuestDashboard,
		CreatedAt:                 m.CreatedAt,
		UpdatedAt:                 m.UpdatedAt,
	}
}

func AppModelFromEntity(a *model.App) *AppModel {
	return &AppModel{
		Urn:                       string(a.Urn),
		Status:                    string(a.Status),
		Config:                    map[string]any(a.Config),
		Version:                   a.Version,
		Subnet:                    a.Subnet,
		Domain:                    a.Domain,
		Exposed:                   a.Exposed,
		ExposedLocal:              a.ExposedLocal,
		OpenPort:                  a.OpenPort,
		IsVisibleOnGuestDashboard: a.IsVisibleOnGuestDashboard,
		CreatedAt:                 a.CreatedAt,
		UpdatedAt:                 a.UpdatedAt,
	}
}

// AppRepository implements repository.AppRepository with GORM.
type AppRepository struct {
	db *gorm.DB
}

var _ repository.AppRepository = (*AppRepository)(nil)

func NewAppRepository(db *gorm.DB) *AppRepository {
	return &AppRepository{db: db}
}

func (r *AppRepository) Get(ctx context.Context, urn model.AppUrn) (*model.App, error) {
	var m AppModel
	err := r.db.WithContext(ctx).Where("urn = ?", string(urn)).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, model.AppNotFound(urn)
	}
	if err != nil {
		return nil, fmt.Errorf("get app %s: %w", urn, err)
	}
	return m.ToEntity(), nil
}

func (r *AppRepository) Create(ctx context.Context, app model.App) (*model.App, error) {
	if app.Status == "" {
		app.Status = model.AppStatusMissing
	}
	if app.Config == nil {
		app.Config = model.AppForm{}
	}
	m := AppModelFromEntity(&app)
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, model.NewConflictError("APP_ERROR_APP_ALREADY_EXISTS", fmt.Sprintf("app %s already exists", app.Urn))
		}
		return nil, fmt.Errorf("create app %s: %w", app.Urn, err)
	}
	return m.ToEntity(), nil
}

// Update loads the row, applies the patch and saves it in one transaction.
func (r *AppRepository) Update(ctx context.Context, urn model.AppUrn, patch model.AppPatch) (*model.App, error) {
	var updated *model.App
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var m AppModel
		err := tx.Where("urn = ?", string(urn)).First(&m).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return model.AppNotFound(urn)
		}
		if err != nil {
			return err
		}

		app := patch.Apply(*m.ToEntity())
		next := AppModelFromEntity(&app)
		if err := tx.Save(next).Error; err != nil {
			return err
		}
		updated = next.ToEntity()
		return nil
	})
	if err != nil {
		var appErr *model.Error
		if errors.As(err, &appErr) {
			return nil, err
		}
		return nil, fmt.Errorf("update app %s: %w", urn, err)
	}
	return updated, nil
}

func (r *AppRepository) Delete(ctx context.Context, urn model.AppUrn) error {
	if err := r.db.WithContext(ctx).Where("urn = ?", string(urn)).Delete(&AppModel{}).Error; err != nil {
		return fmt.Errorf("delete app %s: %w", urn, err)
	}
	return nil
}

func (r *AppRepository) ListAll(ctx context.Context) ([]model.App, error) {
	var models []AppModel
	if err := r.db.WithContext(ctx).Order("urn").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("list apps: %w", err)
	}
	return toEntities(models), nil
}

func (r *AppRepository) ListByDomain(ctx context.Context, domain string, excludeUrn model.AppUrn) ([]model.App, error) {
	var models []AppModel
	err := r.db.WithContext(ctx).
		Where("domain = ? AND exposed = ? AND urn <> ?", domain, true, string(excludeUrn)).
		Order("urn").
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("list apps by domain: %w", err)
	}
	return toEntities(models), nil
}

func toEntities(models []AppModel) []model.App {
	apps := make([]model.App, 0, len(models))
	for i := range models {
		apps = append(apps, *models[i].ToEntity())
	}
	return apps
}
