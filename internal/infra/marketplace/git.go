package marketplace

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-git/go-git/v5"

	"appcrane/internal/domain/repository"
	"appcrane/pkg/log"
)

// GitSyncer clones marketplace repositories and keeps them up to date.
type GitSyncer struct {
	layout Layout
}

var _ repository.RepoSyncer = (*GitSyncer)(nil)

func NewGitSyncer(layout Layout) *GitSyncer {
	return &GitSyncer{layout: layout}
}

// Sync clones url into the repository directory, or pulls if it is already
// cloned. Local changes are discarded.
func (g *GitSyncer) Sync(ctx context.Context, repoID, url string) error {
	dir := g.layout.RepoDir(repoID)
	if _, err := os.Stat(filepath.Join(dir, git.GitDirName)); err == nil {
		return g.pull(ctx, repoID, dir)
	}
	return g.clone(ctx, repoID, url, dir)
}

func (g *GitSyncer) clone(ctx context.Context, repoID, url, dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("clear %s: %w", dir, err)
	}
	if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
		return fmt.Errorf("create repos dir: %w", err)
	}
	_, err := git.PlainCloneContext(ctx, dir, false, &git.CloneOptions{
		URL:        url,
		RemoteName: git.DefaultRemoteName,
	})
	if err != nil {
		return fmt.Errorf("failed to clone repo %s from %s: %w", repoID, url, err)
	}
	log.Info("[Marketplace] repo cloned", "repo_id", repoID, "url", url)
	return nil
}

func (g *GitSyncer) pull(ctx context.Context, repoID, dir string) error {
	r, err := git.PlainOpen(dir)
	if err != nil {
		return fmt.Errorf("open repo %s: %w", repoID, err)
	}
	wt, err := r.Worktree()
	if err != nil {
		return fmt.Errorf("failed to get working tree of %s: %w", repoID, err)
	}
	err = wt.PullContext(ctx, &git.PullOptions{RemoteName: git.DefaultRemoteName, Force: true})
	if errors.Is(err, git.NoErrAlreadyUpToDate) {
		log.Debug("[Marketplace] repo already up to date", "repo_id", repoID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to pull repo %s: %w", repoID, err)
	}
	log.Info("[Marketplace] repo updated", "repo_id", repoID)
	return nil
}
