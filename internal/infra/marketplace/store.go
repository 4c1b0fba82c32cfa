// Package marketplace reads apps out of the marketplace repositories cloned
// under <base>/repos and copies them next to the installed apps.
package marketplace

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/otiai10/copy"

	"appcrane/internal/domain/model"
	"appcrane/internal/domain/repository"
	"appcrane/pkg/log"
	"appcrane/pkg/template"
)

const (
	appsFolder     = "apps"
	descriptorFile = "config.json"
	dataFolder     = "data"
	templateSuffix = ".template"
)

// Layout resolves the directories the store works with.
type Layout interface {
	RepoDir(storeID string) string
	InstalledAppDir(urn model.AppUrn) string
	AppDataDir(urn model.AppUrn) string
}

// Store is the filesystem marketplace.
type Store struct {
	layout   Layout
	validate *validator.Validate
}

var _ repository.Marketplace = (*Store)(nil)

func NewStore(layout Layout) *Store {
	return &Store{layout: layout, validate: validator.New()}
}

// storeAppDir is <repos>/<store>/apps/<app>.
func (s *Store) storeAppDir(urn model.AppUrn) string {
	return filepath.Join(s.layout.RepoDir(urn.StoreID()), appsFolder, urn.AppName())
}

func (s *Store) GetAppDescriptor(_ context.Context, urn model.AppUrn) (*model.AppDescriptor, error) {
	return s.readDescriptor(urn, s.storeAppDir(urn), "APP_ERROR_APP_NOT_FOUND_IN_STORE")
}

func (s *Store) GetInstalledAppDescriptor(_ context.Context, urn model.AppUrn) (*model.AppDescriptor, error) {
	return s.readDescriptor(urn, s.layout.InstalledAppDir(urn), "APP_ERROR_APP_NOT_INSTALLED")
}

func (s *Store) readDescriptor(urn model.AppUrn, dir, notFoundCode string) (*model.AppDescriptor, error) {
	data, err := os.ReadFile(filepath.Join(dir, descriptorFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, model.NewNotFoundError(notFoundCode, fmt.Sprintf("app %s not found in %s", urn, dir))
	}
	if err != nil {
		return nil, fmt.Errorf("read descriptor of %s: %w", urn, err)
	}

	d, err := model.ParseAppDescriptor(data)
	if err != nil {
		return nil, model.NewDescriptorError(urn, err)
	}
	if err := s.validate.Struct(d); err != nil {
		return nil, model.NewDescriptorError(urn, err)
	}
	return d, nil
}

// CopyAppFilesToInstalled replaces the installed directory with the store copy.
func (s *Store) CopyAppFilesToInstalled(_ context.Context, urn model.AppUrn) error {
	src := s.storeAppDir(urn)
	if _, err := os.Stat(src); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return model.NewNotFoundError("APP_ERROR_APP_NOT_FOUND_IN_STORE", fmt.Sprintf("app %s not found in store", urn))
		}
		return fmt.Errorf("stat %s: %w", src, err)
	}

	dst := s.layout.InstalledAppDir(urn)
	if err := os.RemoveAll(dst); err != nil {
		return fmt.Errorf("clear installed dir of %s: %w", urn, err)
	}
	if err := copy.Copy(src, dst); err != nil {
		return fmt.Errorf("copy app files of %s: %w", urn, err)
	}
	log.Debug("[Marketplace] app files copied", "app_urn", urn, "from", src, "to", dst)
	return nil
}

// CopyDataDirTemplates seeds the app data directory from the installed app's
// data folder. Files ending in .template are rendered with env and always
// rewritten; other files are copied only when missing so user data survives.
func (s *Store) CopyDataDirTemplates(_ context.Context, urn model.AppUrn, env map[string]string) error {
	src := filepath.Join(s.layout.InstalledAppDir(urn), dataFolder)
	if _, err := os.Stat(src); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	dst := s.layout.AppDataDir(urn)

	err := copy.Copy(src, dst, copy.Options{
		Skip: func(info os.FileInfo, from, to string) (bool, error) {
			if info.IsDir() {
				return false, nil
			}
			if strings.HasSuffix(from, templateSuffix) {
				return true, nil
			}
			_, err := os.Stat(to)
			return err == nil, nil
		},
	})
	if err != nil {
		return fmt.Errorf("copy data dir of %s: %w", urn, err)
	}

	return filepath.WalkDir(src, func(path string, entry fs.DirEntry, err error) error {
		if err != nil || entry.IsDir() || !strings.HasSuffix(path, templateSuffix) {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, strings.TrimSuffix(rel, templateSuffix))
		if err := template.RenderFile(path, target, env); err != nil {
			return fmt.Errorf("render %s for %s: %w", rel, urn, err)
		}
		return nil
	})
}
