package docker

import (
	"context"
	"fmt"

	"github.com/docker/docker/errdefs"

	"appcrane/internal/domain/repository"
	"appcrane/pkg/log"
)

// NetworkRepository removes app networks left behind by compose.
type NetworkRepository struct {
	engine engineAPI
}

var _ repository.NetworkRepository = (*NetworkRepository)(nil)

func NewNetworkRepository(engine engineAPI) *NetworkRepository {
	if engine == nil {
		log.Fatalf("[Network] docker client is nil, repository cannot be created")
	}
	return &NetworkRepository{engine: engine}
}

// RemoveAppNetwork deletes the network. A network that is already gone is not an error.
func (r *NetworkRepository) RemoveAppNetwork(ctx context.Context, name string) error {
	if err := r.engine.NetworkRemove(ctx, name); err != nil {
		if errdefs.IsNotFound(err) {
			return nil
		}
		log.Error("[Network] failed to remove network", "network_name", name, "error", err)
		return fmt.Errorf("remove network %s: %w", name, err)
	}
	log.Info("[Network] network removed", "network_name", name)
	return nil
}
