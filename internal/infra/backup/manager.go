// Package backup archives app data and installed files as tar.gz files under
// <base>/backups/<store>/<app>.
package backup

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/mholt/archiver/v3"
	"github.com/otiai10/copy"

	"appcrane/internal/domain/model"
	"appcrane/internal/domain/repository"
	"appcrane/pkg/log"
)

const (
	archiveExt = ".tar.gz"
	// Folder names inside an archive.
	dataEntry = "app-data"
	appEntry  = "app"
)

type Layout interface {
	InstalledAppDir(urn model.AppUrn) string
	AppDataDir(urn model.AppUrn) string
	BackupDir(urn model.AppUrn) string
}

type Manager struct {
	layout Layout
	now    func() time.Time
}

var _ repository.BackupManager = (*Manager)(nil)

func NewManager(layout Layout) *Manager {
	return &Manager{layout: layout, now: time.Now}
}

// Backup writes a new archive and returns its file name.
func (m *Manager) Backup(_ context.Context, urn model.AppUrn) (string, error) {
	staging, err := os.MkdirTemp("", "appcrane-backup-")
	if err != nil {
		return "", fmt.Errorf("create staging dir: %w", err)
	}
	defer os.RemoveAll(staging)

	sources := make([]string, 0, 2)
	for entry, dir := range map[string]string{
		dataEntry: m.layout.AppDataDir(urn),
		appEntry:  m.layout.InstalledAppDir(urn),
	} {
		if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		target := filepath.Join(staging, entry)
		if err := copy.Copy(dir, target); err != nil {
			return "", fmt.Errorf("stage %s of %s: %w", entry, urn, err)
		}
		sources = append(sources, target)
	}
	if len(sources) == 0 {
		return "", model.NewNotFoundError("APP_ERROR_NOTHING_TO_BACKUP", fmt.Sprintf("app %s has no files to back up", urn))
	}
	sort.Strings(sources)

	dir := m.layout.BackupDir(urn)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create backup dir: %w", err)
	}
	filename := fmt.Sprintf("%s-%s%s", urn.AppName(), m.now().UTC().Format("20060102-150405.000"), archiveExt)

	tarGz := archiver.TarGz{
		Tar: &archiver.Tar{
			ImplicitTopLevelFolder: false,
		},
	}
	if err := tarGz.Archive(sources, filepath.Join(dir, filename)); err != nil {
		return "", fmt.Errorf("failed to create archive for %s: %w", urn, err)
	}
	log.Info("[Backup] archive created", "app_urn", urn, "filename", filename)
	return filename, nil
}

// Restore replaces the app data and installed files with the archive content.
func (m *Manager) Restore(_ context.Context, urn model.AppUrn, filename string) error {
	path, err := m.archivePath(urn, filename)
	if err != nil {
		return err
	}

	staging, err := os.MkdirTemp("", "appcrane-restore-")
	if err != nil {
		return fmt.Errorf("create staging dir: %w", err)
	}
	defer os.RemoveAll(staging)

	tarGz := archiver.TarGz{Tar: &archiver.Tar{OverwriteExisting: true}}
	if err := tarGz.Unarchive(path, staging); err != nil {
		return fmt.Errorf("failed to extract %s: %w", filename, err)
	}

	for entry, dir := range map[string]string{
		dataEntry: m.layout.AppDataDir(urn),
		appEntry:  m.layout.InstalledAppDir(urn),
	} {
		src := filepath.Join(staging, entry)
		if _, err := os.Stat(src); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("clear %s: %w", dir, err)
		}
		if err := copy.Copy(src, dir); err != nil {
			return fmt.Errorf("restore %s of %s: %w", entry, urn, err)
		}
	}
	log.Info("[Backup] archive restored", "app_urn", urn, "filename", filename)
	return nil
}

// List returns the archives of the app, newest first.
func (m *Manager) List(_ context.Context, urn model.AppUrn) ([]repository.BackupInfo, error) {
	entries, err := os.ReadDir(m.layout.BackupDir(urn))
	if errors.Is(err, fs.ErrNotExist) {
		return []repository.BackupInfo{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list backups of %s: %w", urn, err)
	}

	backups := make([]repository.BackupInfo, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), archiveExt) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, err
		}
		backups = append(backups, repository.BackupInfo{Filename: e.Name(), Size: info.Size(), CreatedAt: info.ModTime()})
	}
	sort.Slice(backups, func(i, j int) bool {
		if backups[i].CreatedAt.Equal(backups[j].CreatedAt) {
			return backups[i].Filename > backups[j].Filename
		}
		return backups[i].CreatedAt.After(backups[j].CreatedAt)
	})
	return backups, nil
}

func (m *Manager) Delete(_ context.Context, urn model.AppUrn, filename string) error {
	path, err := m.archivePath(urn, filename)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("delete %s: %w", filename, err)
	}
	return nil
}

// archivePath resolves filename inside the app backup dir. Names with path
// separators are rejected.
func (m *Manager) archivePath(urn model.AppUrn, filename string) (string, error) {
	if filename == "" || filename != filepath.Base(filename) || !strings.HasSuffix(filename, archiveExt) {
		return "", model.NewValidationError("APP_ERROR_INVALID_BACKUP_FILENAME", fmt.Sprintf("invalid backup filename %q", filename))
	}
	path := filepath.Join(m.layout.BackupDir(urn), filename)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", model.NewNotFoundError("APP_ERROR_BACKUP_NOT_FOUND", fmt.Sprintf("backup %s of app %s not found", filename, urn))
		}
		return "", err
	}
	return path, nil
}
