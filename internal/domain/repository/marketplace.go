package repository

import (
	"context"

	"appcrane/internal/domain/model"
)

// Marketplace exposes the app store repositories on disk.
type Marketplace interface {
	// GetAppDescriptor reads the descriptor published in the store.
	GetAppDescriptor(ctx context.Context, urn model.AppUrn) (*model.AppDescriptor, error)
	// GetInstalledAppDescriptor reads the descriptor copied next to the installed app.
	GetInstalledAppDescriptor(ctx context.Context, urn model.AppUrn) (*model.AppDescriptor, error)
	// CopyAppFilesToInstalled replaces the installed app directory with the store copy.
	CopyAppFilesToInstalled(ctx context.Context, urn model.AppUrn) error
	// CopyDataDirTemplates renders the app's data-dir templates into its data directory.
	CopyDataDirTemplates(ctx context.Context, urn model.AppUrn, env map[string]string) error
}

// RepoSyncer keeps a local clone of a marketplace repository up to date.
type RepoSyncer interface {
	Sync(ctx context.Context, repoID, url string) error
}
