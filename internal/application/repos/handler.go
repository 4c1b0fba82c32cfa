// Package repos keeps the marketplace repositories in sync through the
// repo-events queue.
package repos

import (
	"context"
	"fmt"

	"go.uber.org/multierr"

	"appcrane/internal/domain/repository"
	"appcrane/pkg/log"
	"appcrane/pkg/queue"
)

const (
	CommandClone     = "clone"
	CommandUpdate    = "update"
	CommandUpdateAll = "update_all"
)

// Message is the repo-events payload.
type Message struct {
	Command string `json:"command" validate:"required,oneof=clone update update_all"`
	ID      string `json:"id,omitempty" validate:"required_unless=Command update_all"`
	URL     string `json:"url,omitempty" validate:"required_if=Command clone"`
}

// Repo is a configured marketplace repository.
type Repo struct {
	ID  string
	URL string
}

// Handler consumes repo-events.
type Handler struct {
	syncer repository.RepoSyncer
	repos  map[string]Repo
	order  []string
	// afterSync runs after a successful update_all, e.g. to update outdated apps.
	afterSync func(ctx context.Context)
}

func NewHandler(syncer repository.RepoSyncer, repos []Repo, afterSync func(ctx context.Context)) *Handler {
	h := &Handler{syncer: syncer, repos: make(map[string]Repo, len(repos)), afterSync: afterSync}
	for _, r := range repos {
		if _, dup := h.repos[r.ID]; !dup {
			h.order = append(h.order, r.ID)
		}
		h.repos[r.ID] = r
	}
	return h
}

func (h *Handler) Handle(ctx context.Context, msg Message) queue.Result {
	switch msg.Command {
	case CommandClone:
		return h.sync(ctx, Repo{ID: msg.ID, URL: msg.URL})
	case CommandUpdate:
		repo, ok := h.repos[msg.ID]
		if !ok {
			if msg.URL == "" {
				return queue.Failure("unknown repo %s", msg.ID)
			}
			repo = Repo{ID: msg.ID, URL: msg.URL}
		}
		return h.sync(ctx, repo)
	case CommandUpdateAll:
		return h.syncAll(ctx)
	default:
		return queue.Failure("unknown repo command %q", msg.Command)
	}
}

func (h *Handler) sync(ctx context.Context, repo Repo) queue.Result {
	if err := h.syncer.Sync(ctx, repo.ID, repo.URL); err != nil {
		log.Error("[Repos] sync failed", "repo_id", repo.ID, "error", err)
		return queue.Failure("%v", err)
	}
	return queue.Result{Success: true, Message: fmt.Sprintf("repo %s synced", repo.ID)}
}

// syncAll syncs every configured repo. One repo failing does not stop the others.
func (h *Handler) syncAll(ctx context.Context) queue.Result {
	var errs error
	for _, id := range h.order {
		repo := h.repos[id]
		if err := h.syncer.Sync(ctx, repo.ID, repo.URL); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", repo.ID, err))
		}
	}
	if errs != nil {
		log.Error("[Repos] update_all finished with errors", "error", errs)
		return queue.Failure("%v", errs)
	}
	if h.afterSync != nil {
		h.afterSync(ctx)
	}
	return queue.Result{Success: true, Message: fmt.Sprintf("%d repos synced", len(h.order))}
}
