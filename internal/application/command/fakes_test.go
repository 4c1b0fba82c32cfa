package command

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"appcrane/internal/application/compose"
	"appcrane/internal/domain/model"
	"appcrane/internal/domain/repository"
)

const testComposeDescriptor = `{
  "services": {
    "web": {"image": "nginx:1.25", "is_main": true, "internal_port": 80},
    "db": {"image": "postgres:16"}
  }
}`

type testLayout struct {
	base string
}

func (l testLayout) InstalledAppDir(urn model.AppUrn) string {
	return filepath.Join(l.base, "apps", urn.StoreID(), urn.AppName())
}

func (l testLayout) AppDataDir(urn model.AppUrn) string {
	return filepath.Join(l.base, "app-data", urn.StoreID(), urn.AppName())
}

func (l testLayout) AppDataHostDir(urn model.AppUrn) string {
	return filepath.Join("/host", "app-data", urn.StoreID(), urn.AppName())
}

func (l testLayout) UserConfigDir(urn model.AppUrn) string {
	return filepath.Join(l.base, "user-config", urn.StoreID(), urn.AppName())
}

type fakeMarketplace struct {
	layout            testLayout
	descriptor        model.AppDescriptor
	composeDescriptor string
	copyErr           error

	mu        sync.Mutex
	copies    int
	templates []map[string]string
}

func (m *fakeMarketplace) GetAppDescriptor(_ context.Context, _ model.AppUrn) (*model.AppDescriptor, error) {
	d := m.descriptor
	return &d, nil
}

func (m *fakeMarketplace) GetInstalledAppDescriptor(_ context.Context, urn model.AppUrn) (*model.AppDescriptor, error) {
	if _, err := os.Stat(filepath.Join(m.layout.InstalledAppDir(urn), compose.DescriptorFile)); err != nil {
		return nil, model.AppNotFound(urn)
	}
	d := m.descriptor
	return &d, nil
}

func (m *fakeMarketplace) CopyAppFilesToInstalled(_ context.Context, urn model.AppUrn) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.copyErr != nil {
		return m.copyErr
	}
	m.copies++
	dir := m.layout.InstalledAppDir(urn)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, compose.DescriptorFile), []byte(m.composeDescriptor), 0o644)
}

func (m *fakeMarketplace) CopyDataDirTemplates(_ context.Context, _ model.AppUrn, env map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.templates = append(m.templates, env)
	return nil
}

// fakeCompose records every docker compose invocation. Failures are keyed by
// the compose subcommand (up, down, rm, pull).
type fakeCompose struct {
	mu       sync.Mutex
	calls    [][]string
	failOn   map[string]repository.ComposeOutput
	pruneErr error
	panicOn  string
}

var subcommands = map[string]bool{"up": true, "down": true, "rm": true, "pull": true}

func subcommand(args []string) []string {
	for i, a := range args {
		if subcommands[a] {
			return args[i:]
		}
	}
	return nil
}

func (c *fakeCompose) ComposeInvoke(_ context.Context, _ model.AppUrn, args []string) (repository.ComposeOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, args)
	sub := subcommand(args)
	if len(sub) > 0 && sub[0] == c.panicOn {
		panic("docker exploded")
	}
	if len(sub) > 0 {
		if out, ok := c.failOn[sub[0]]; ok {
			return out, errors.New("exit status 1")
		}
	}
	return repository.ComposeOutput{}, nil
}

func (c *fakeCompose) PruneLabeledContainers(context.Context, model.AppUrn) error {
	return c.pruneErr
}

// subcommands returns the invocations stripped of the file/project prefix.
func (c *fakeCompose) subcommands() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.calls))
	for _, call := range c.calls {
		out = append(out, strings.Join(subcommand(call), " "))
	}
	return out
}

type fakeSubnets struct {
	subnet string
	err    error
}

func (s fakeSubnets) Allocate(context.Context, model.AppUrn) (string, error) {
	return s.subnet, s.err
}

type fakeBackups struct {
	backups  []model.AppUrn
	restored []string
	err      error
}

func (b *fakeBackups) Backup(_ context.Context, urn model.AppUrn) (string, error) {
	if b.err != nil {
		return "", b.err
	}
	b.backups = append(b.backups, urn)
	return "backup-1.tar.gz", nil
}

func (b *fakeBackups) Restore(_ context.Context, _ model.AppUrn, filename string) error {
	if b.err != nil {
		return b.err
	}
	b.restored = append(b.restored, filename)
	return nil
}

func (b *fakeBackups) List(context.Context, model.AppUrn) ([]repository.BackupInfo, error) {
	return nil, nil
}

func (b *fakeBackups) Delete(context.Context, model.AppUrn, string) error {
	return nil
}

type fakeNetworks struct {
	removed []string
}

func (n *fakeNetworks) RemoveAppNetwork(_ context.Context, name string) error {
	n.removed = append(n.removed, name)
	return nil
}

type harness struct {
	layout   testLayout
	market   *fakeMarketplace
	docker   *fakeCompose
	backups  *fakeBackups
	networks *fakeNetworks
	exec     *Executor
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	layout := testLayout{base: t.TempDir()}
	minLen := 8
	h := &harness{
		layout: layout,
		market: &fakeMarketplace{
			layout:            layout,
			composeDescriptor: testComposeDescriptor,
			descriptor: model.AppDescriptor{
				ID:   "nginx",
				Port: 8080,
				FormFields: []model.FormField{
					{Type: model.FieldText, EnvVariable: "ADMIN_USER", Required: true},
					{Type: model.FieldRandom, EnvVariable: "SECRET_KEY", Min: &minLen},
				},
			},
		},
		docker:   &fakeCompose{failOn: map[string]repository.ComposeOutput{}},
		backups:  &fakeBackups{},
		networks: &fakeNetworks{},
	}
	h.exec = NewExecutor(Deps{
		Subnets:     fakeSubnets{subnet: "10.128.10.0/24"},
		Compose:     h.docker,
		Networks:    h.networks,
		Marketplace: h.market,
		Backups:     h.backups,
	}, layout, Options{
		Architecture: "amd64",
		InternalIP:   "192.168.1.10",
		Timezone:     "UTC",
	})
	return h
}
