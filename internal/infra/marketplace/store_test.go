package marketplace

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"appcrane/internal/domain/model"
)

type testLayout struct{ base string }

func (l testLayout) RepoDir(storeID string) string { return filepath.Join(l.base, "repos", storeID) }

func (l testLayout) InstalledAppDir(urn model.AppUrn) string {
	return filepath.Join(l.base, "apps", urn.StoreID(), urn.AppName())
}

func (l testLayout) AppDataDir(urn model.AppUrn) string {
	return filepath.Join(l.base, "app-data", urn.StoreID(), urn.AppName())
}

const nginx model.AppUrn = "nginx:official"

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func newStore(t *testing.T) (*Store, testLayout) {
	t.Helper()
	layout := testLayout{base: t.TempDir()}
	appDir := filepath.Join(layout.RepoDir("official"), "apps", "nginx")
	writeFile(t, filepath.Join(appDir, "config.json"), `{"id": "nginx", "name": "Nginx", "port": 8080, "tipi_version": 4, "exposable": true}`)
	writeFile(t, filepath.Join(appDir, "docker-compose.json"), `{"services": {"web": {"image": "nginx"}}}`)
	writeFile(t, filepath.Join(appDir, "data", "nginx.conf.template"), "server_name ${APP_DOMAIN};\n")
	writeFile(t, filepath.Join(appDir, "data", "html", "index.html"), "hello")
	return NewStore(layout), layout
}

func TestStoreGetAppDescriptor(t *testing.T) {
	store, _ := newStore(t)

	d, err := store.GetAppDescriptor(context.Background(), nginx)
	require.NoError(t, err)
	assert.Equal(t, "nginx", d.ID)
	assert.Equal(t, 8080, d.Port)
	assert.Equal(t, 4, d.Version)
	assert.True(t, d.Exposable)

	_, err = store.GetAppDescriptor(context.Background(), "missing:official")
	assert.ErrorIs(t, err, model.ErrNotFound)

	_, err = store.GetInstalledAppDescriptor(context.Background(), nginx)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestStoreRejectsInvalidDescriptor(t *testing.T) {
	store, layout := newStore(t)
	writeFile(t, filepath.Join(layout.RepoDir("official"), "apps", "broken", "config.json"), `{"name": "no id", "port": 70000}`)

	_, err := store.GetAppDescriptor(context.Background(), "broken:official")
	assert.ErrorIs(t, err, model.ErrDescriptor)
	assert.Contains(t, err.Error(), "broken:official")
}

func TestStoreCopyAppFilesToInstalled(t *testing.T) {
	store, layout := newStore(t)
	stale := filepath.Join(layout.InstalledAppDir(nginx), "stale.txt")
	writeFile(t, stale, "old")

	require.NoError(t, store.CopyAppFilesToInstalled(context.Background(), nginx))

	assert.NoFileExists(t, stale)
	assert.FileExists(t, filepath.Join(layout.InstalledAppDir(nginx), "docker-compose.json"))
	d, err := store.GetInstalledAppDescriptor(context.Background(), nginx)
	require.NoError(t, err)
	assert.Equal(t, 4, d.Version)

	err = store.CopyAppFilesToInstalled(context.Background(), "missing:official")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestStoreCopyDataDirTemplates(t *testing.T) {
	store, layout := newStore(t)
	ctx := context.Background()
	require.NoError(t, store.CopyAppFilesToInstalled(ctx, nginx))

	dataDir := layout.AppDataDir(nginx)
	writeFile(t, filepath.Join(dataDir, "html", "index.html"), "customized")

	require.NoError(t, store.CopyDataDirTemplates(ctx, nginx, map[string]string{"APP_DOMAIN": "web.example.com"}))

	assert.Equal(t, "server_name web.example.com;\n", readFile(t, filepath.Join(dataDir, "nginx.conf")))
	assert.NoFileExists(t, filepath.Join(dataDir, "nginx.conf.template"))
	assert.Equal(t, "customized", readFile(t, filepath.Join(dataDir, "html", "index.html")))
}

func TestStoreCopyDataDirTemplatesWithoutDataFolder(t *testing.T) {
	store, layout := newStore(t)
	require.NoError(t, os.MkdirAll(layout.InstalledAppDir(nginx), 0o755))
	assert.NoError(t, store.CopyDataDirTemplates(context.Background(), nginx, nil))
}

func commitFile(t *testing.T, repo *git.Repository, dir, name, content string) {
	t.Helper()
	writeFile(t, filepath.Join(dir, name), content)
	wt, err := repo.Worktree()
	require.NoError(t, err)
	_, err = wt.Add(name)
	require.NoError(t, err)
	_, err = wt.Commit("update "+name, &git.CommitOptions{
		Author: &object.Signature{Name: "appcrane", Email: "appcrane@example.com", When: time.Now()},
	})
	require.NoError(t, err)
}

func TestGitSyncerClonesThenPulls(t *testing.T) {
	origin := t.TempDir()
	repo, err := git.PlainInit(origin, false)
	require.NoError(t, err)
	commitFile(t, repo, origin, "apps/nginx/config.json", `{"id": "nginx", "tipi_version": 1}`)

	layout := testLayout{base: t.TempDir()}
	syncer := NewGitSyncer(layout)
	ctx := context.Background()

	require.NoError(t, syncer.Sync(ctx, "official", origin))
	store := NewStore(layout)
	d, err := store.GetAppDescriptor(ctx, nginx)
	require.NoError(t, err)
	assert.Equal(t, 1, d.Version)

	require.NoError(t, syncer.Sync(ctx, "official", origin))

	commitFile(t, repo, origin, "apps/nginx/config.json", `{"id": "nginx", "tipi_version": 2}`)
	require.NoError(t, syncer.Sync(ctx, "official", origin))
	d, err = store.GetAppDescriptor(ctx, nginx)
	require.NoError(t, err)
	assert.Equal(t, 2, d.Version)
}
