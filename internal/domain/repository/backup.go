package repository

import (
	"context"
	"time"

	"appcrane/internal/domain/model"
)

// BackupInfo describes one archive on disk.
type BackupInfo struct {
	Filename  string    `json:"filename"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"createdAt"`
}

type BackupManager interface {
	Backup(ctx context.Context, urn model.AppUrn) (string, error)
	Restore(ctx context.Context, urn model.AppUrn, filename string) error
	List(ctx context.Context, urn model.AppUrn) ([]BackupInfo, error)
	Delete(ctx context.Context, urn model.AppUrn, filename string) error
}
