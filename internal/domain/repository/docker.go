package repository

import (
	"context"

	"appcrane/internal/domain/model"
)

// ComposeOutput is the captured output of one `docker compose` run.
type ComposeOutput struct {
	Stdout string
	Stderr string
}

// ComposeExecutor runs docker compose against an installed app.
type ComposeExecutor interface {
	// ComposeInvoke runs `docker compose <args>` for the app's project. The
	// returned output is populated even when err is non-nil.
	ComposeInvoke(ctx context.Context, urn model.AppUrn, args []string) (ComposeOutput, error)
	// PruneLabeledContainers force-removes every container labeled with the urn.
	PruneLabeledContainers(ctx context.Context, urn model.AppUrn) error
}

type NetworkRepository interface {
	RemoveAppNetwork(ctx context.Context, name string) error
}
