package lifecycle

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"appcrane/internal/application/command"
	"appcrane/internal/domain/model"
	"appcrane/internal/infra/persistence"
	"appcrane/pkg/queue"
)

type fakeStore struct {
	mu        sync.Mutex
	available map[model.AppUrn]model.AppDescriptor
	installed map[model.AppUrn]model.AppDescriptor
}

func (s *fakeStore) GetAppDescriptor(_ context.Context, urn model.AppUrn) (*model.AppDescriptor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.available[urn]
	if !ok {
		return nil, model.AppNotFound(urn)
	}
	return &d, nil
}

func (s *fakeStore) GetInstalledAppDescriptor(_ context.Context, urn model.AppUrn) (*model.AppDescriptor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.installed[urn]
	if !ok {
		return nil, model.AppNotFound(urn)
	}
	return &d, nil
}

func (s *fakeStore) CopyAppFilesToInstalled(context.Context, model.AppUrn) error { return nil }

func (s *fakeStore) CopyDataDirTemplates(context.Context, model.AppUrn, map[string]string) error {
	return nil
}

// fakeRunner answers app-events. Commands listed in fail ("<kind> <urn>")
// fail with the given message. When hold is set every command waits for it.
type fakeRunner struct {
	mu    sync.Mutex
	calls []string
	forms []command.Message
	fail  map[string]string
	hold  chan struct{}
}

func (r *fakeRunner) handle(_ context.Context, msg command.Message) queue.Result {
	if r.hold != nil {
		<-r.hold
	}
	key := msg.Command + " " + msg.AppUrn
	r.mu.Lock()
	r.calls = append(r.calls, key)
	r.forms = append(r.forms, msg)
	reason, failed := r.fail[key]
	r.mu.Unlock()
	if failed {
		return queue.Result{Success: false, Message: reason}
	}
	return queue.Result{Success: true, Message: msg.Command + " done"}
}

func (r *fakeRunner) called() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

type recorder struct {
	mu     sync.Mutex
	events []model.Event
}

func (r *recorder) Publish(ev model.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Event+":"+string(ev.Data.AppStatus))
	}
	return out
}

func (r *recorder) last() model.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

type harness struct {
	apps   *persistence.AppRepository
	store  *fakeStore
	runner *fakeRunner
	events *recorder
	svc    *Service
}

func newHarness(t *testing.T, cfg Config, setup ...func(*harness)) *harness {
	t.Helper()
	db, err := persistence.Open(persistence.DatabaseConfig{Driver: persistence.DriverSQLite, DSN: persistence.MemoryDSN})
	require.NoError(t, err)
	t.Cleanup(func() { _ = persistence.Close(db) })

	h := &harness{
		apps: persistence.NewAppRepository(db),
		store: &fakeStore{
			available: map[model.AppUrn]model.AppDescriptor{},
			installed: map[model.AppUrn]model.AppDescriptor{},
		},
		runner: &fakeRunner{fail: map[string]string{}},
		events: &recorder{},
	}
	for _, fn := range setup {
		fn(h)
	}

	q := queue.New[command.Message]("app-events", queue.NewMemoryTransport(), queue.Options{Timeout: 5 * time.Second})
	require.NoError(t, q.Consume(context.Background(), 1, h.runner.handle))
	t.Cleanup(q.Close)

	if cfg.Architecture == "" {
		cfg.Architecture = "amd64"
	}
	h.svc = NewService(Deps{
		Apps:        h.apps,
		Marketplace: h.store,
		Queue:       q,
		Notifier:    h.events,
	}, cfg)
	t.Cleanup(h.svc.Wait)
	return h
}

func (h *harness) offer(urn model.AppUrn, d model.AppDescriptor) {
	if d.ID == "" {
		d.ID = urn.AppName()
	}
	h.store.available[urn] = d
}

func (h *harness) seed(t *testing.T, app model.App) {
	t.Helper()
	_, err := h.apps.Create(context.Background(), app)
	require.NoError(t, err)
}

func (h *harness) status(t *testing.T, urn model.AppUrn) model.AppStatus {
	t.Helper()
	app, err := h.apps.Get(context.Background(), urn)
	require.NoError(t, err)
	return app.Status
}

func wait(t *testing.T, op *Operation) queue.Result {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	res, err := op.Wait(ctx)
	require.NoError(t, err)
	return res
}
