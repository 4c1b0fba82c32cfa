// Package crane wires the stores, queues and executors into a running
// lifecycle engine.
package crane

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"appcrane/internal/application/command"
	"appcrane/internal/application/config"
	"appcrane/internal/application/events"
	"appcrane/internal/application/lifecycle"
	"appcrane/internal/application/repos"
	"appcrane/internal/application/subnet"
	"appcrane/internal/application/version"
	"appcrane/internal/domain/model"
	"appcrane/internal/infra/backup"
	"appcrane/internal/infra/docker"
	infraevents "appcrane/internal/infra/events"
	"appcrane/internal/infra/marketplace"
	"appcrane/internal/infra/persistence"
	"appcrane/internal/infra/queue/redisqueue"
	"appcrane/pkg/log"
	"appcrane/pkg/queue"
)

const (
	AppEventsQueue  = "app-events"
	RepoEventsQueue = "repo-events"

	appEventsConcurrency  = 1
	repoEventsConcurrency = 2
)

// Options select which parts of the crane Run starts.
type Options struct {
	// WorkerOnly consumes the queues without scheduling repo syncs or
	// forwarding events.
	WorkerOnly bool
}

// Crane owns every long-lived component of the process.
type Crane struct {
	config *config.Config

	db        *gorm.DB
	transport queue.Transport
	redis     *redis.Client

	appEvents  *queue.Queue[command.Message]
	repoEvents *queue.Queue[repos.Message]

	executor    *command.Executor
	repoHandler *repos.Handler
	broker      *events.Broker
	lifecycle   *lifecycle.Service

	forwardWG sync.WaitGroup
	closeOnce sync.Once
}

// New builds a crane from cfg. Nothing is consumed until Run.
func New(cfg *config.Config) (*Crane, error) {
	db, err := persistence.Open(persistence.DatabaseConfig{Driver: cfg.Database.Driver, DSN: cfg.Database.DSN})
	if err != nil {
		return nil, log.Errorf("open database: %v", err)
	}

	c := &Crane{config: cfg, db: db}

	if err := c.openTransport(); err != nil {
		_ = persistence.Close(db)
		return nil, err
	}

	opts := queue.Options{
		Timeout:              cfg.Queue.Timeout,
		MaxReconnectAttempts: cfg.Queue.MaxReconnectAttempts,
		OnFatal: func(err error) {
			log.Error("[Crane] queue transport lost, consumers stopped", "error", err)
		},
	}
	c.appEvents = queue.New[command.Message](AppEventsQueue, c.transport, opts)
	c.repoEvents = queue.New[repos.Message](RepoEventsQueue, c.transport, opts)

	dockerClient, err := docker.NewClient()
	if err != nil {
		_ = c.closeStores()
		return nil, log.Errorf("create docker client: %v", err)
	}

	apps := persistence.NewAppRepository(db)
	store := marketplace.NewStore(cfg)

	c.executor = command.NewExecutor(command.Deps{
		Subnets:     subnet.NewAllocator(apps),
		Compose:     docker.NewComposeExecutor(dockerClient, cfg.LabelKey),
		Networks:    docker.NewNetworkRepository(dockerClient),
		Marketplace: store,
		Backups:     backup.NewManager(cfg),
	}, cfg, executorOptions(cfg))

	c.broker = events.NewBroker(0)
	c.lifecycle = lifecycle.NewService(lifecycle.Deps{
		Apps:        apps,
		Marketplace: store,
		Queue:       c.appEvents,
		Notifier:    c.broker,
	}, lifecycle.Config{
		Architecture: cfg.Architecture,
		Version:      version.GetVersion(),
		DemoMode:     cfg.DemoMode,
		DemoMaxApps:  cfg.DemoMaxApps,
	})

	var afterSync func(ctx context.Context)
	if cfg.IsFeatureEnabled(config.FeatureAutoUpdateApps) {
		afterSync = c.updateOutdated
	}
	c.repoHandler = repos.NewHandler(marketplace.NewGitSyncer(cfg), repoList(cfg), afterSync)

	return c, nil
}

func (c *Crane) openTransport() error {
	if c.config.Queue.Transport != config.QueueTransportRedis {
		log.Info("[Crane] using in-process queue transport")
		c.transport = queue.NewMemoryTransport()
		return nil
	}

	t, err := redisqueue.New(redisqueue.Config{
		Addr:     c.config.Redis.Addr,
		Password: c.config.Redis.Password,
		DB:       c.config.Redis.DB,
	})
	if err != nil {
		return log.Errorf("connect to redis at %s: %v", c.config.Redis.Addr, err)
	}
	log.Info("[Crane] using redis queue transport", "addr", c.config.Redis.Addr)
	c.transport = t
	c.redis = t.Client()
	return nil
}

func executorOptions(cfg *config.Config) command.Options {
	opts := command.Options{
		Architecture:     cfg.Architecture,
		LabelKey:         cfg.LabelKey,
		ForcePull:        cfg.ForcePull,
		RootFolderHost:   cfg.RootFolderHost,
		InternalIP:       cfg.InternalIP,
		NetworkInterface: cfg.NetworkInterface,
		Timezone:         cfg.Timezone,
	}
	if cfg.UID >= 0 && cfg.GID >= 0 {
		opts.Owner = &command.Owner{UID: cfg.UID, GID: cfg.GID}
	}
	return opts
}

func repoList(cfg *config.Config) []repos.Repo {
	out := make([]repos.Repo, 0, len(cfg.Repos))
	for _, r := range cfg.Repos {
		out = append(out, repos.Repo{ID: r.ID, URL: r.URL})
	}
	return out
}

// Lifecycle exposes the lifecycle service driving the app-events queue.
func (c *Crane) Lifecycle() *lifecycle.Service {
	return c.lifecycle
}

// Subscribe returns a stream of lifecycle events and its cancel func.
func (c *Crane) Subscribe() (<-chan model.Event, func()) {
	return c.broker.Subscribe()
}

// Run starts the queue consumers and, unless opts.WorkerOnly, the repo sync
// schedule and the event forwarder. Apps left mid-operation by a previous
// process are settled first. It returns once everything is started.
func (c *Crane) Run(ctx context.Context, opts Options) error {
	if !opts.WorkerOnly {
		settled, err := c.lifecycle.Reconcile(ctx)
		if err != nil {
			log.Warn("[Crane] some interrupted operations could not be settled", "error", err)
		}
		if len(settled) > 0 {
			log.Info("[Crane] settled interrupted operations", "count", len(settled))
		}
	}

	if err := c.appEvents.Consume(ctx, appEventsConcurrency, c.executor.Handle); err != nil {
		return log.Errorf("start %s consumer: %v", AppEventsQueue, err)
	}
	if err := c.repoEvents.Consume(ctx, repoEventsConcurrency, c.repoHandler.Handle); err != nil {
		return log.Errorf("start %s consumer: %v", RepoEventsQueue, err)
	}

	if opts.WorkerOnly {
		log.Info("[Crane] running in worker-only mode")
		return nil
	}

	if c.config.IsFeatureEnabled(config.FeatureRepoSync) {
		if err := c.scheduleRepoSync(ctx); err != nil {
			return err
		}
	}

	if c.config.IsFeatureEnabled(config.FeatureEventForwarding) {
		c.startForwarding(ctx)
	}
	return nil
}

func (c *Crane) scheduleRepoSync(ctx context.Context) error {
	syncAll := repos.Message{Command: repos.CommandUpdateAll}
	if _, err := c.repoEvents.PublishRepeatable(c.config.RepoSyncCron, syncAll); err != nil {
		return log.Errorf("schedule repo sync %q: %v", c.config.RepoSyncCron, err)
	}
	log.Info("[Crane] repo sync scheduled", "cron", c.config.RepoSyncCron, "repos", len(c.config.Repos))

	// Initial sync so stores are available right after startup.
	go func() {
		res := c.repoEvents.Publish(ctx, syncAll)
		if !res.Success {
			log.Warn("[Crane] initial repo sync failed", "message", res.Message)
		}
	}()
	return nil
}

func (c *Crane) startForwarding(ctx context.Context) {
	if c.redis == nil {
		log.Debug("[Crane] event forwarding needs the redis transport, skipping")
		return
	}
	ch, cancel := c.broker.Subscribe()
	fwd := infraevents.NewRedisForwarder(c.redis, infraevents.DefaultChannel)

	c.forwardWG.Add(1)
	go func() {
		defer c.forwardWG.Done()
		defer cancel()
		fwd.Run(ctx, ch)
	}()
	log.Info("[Crane] forwarding lifecycle events", "channel", infraevents.DefaultChannel)
}

// updateOutdated runs after a successful repo sync.
func (c *Crane) updateOutdated(ctx context.Context) {
	updated, err := c.lifecycle.UpdateAllApps(ctx)
	if err != nil {
		log.Warn("[Crane] updating outdated apps failed", "error", err)
	}
	if len(updated) > 0 {
		log.Info("[Crane] apps updated after repo sync", "count", len(updated))
	}
}

// Close waits for in-flight operations, then stops the queues and releases
// the stores. It is safe to call more than once.
func (c *Crane) Close() error {
	var err error
	c.closeOnce.Do(func() {
		log.Info("[Crane] shutting down")
		// Operations wait on app-events replies, so they go before the consumers.
		c.lifecycle.Wait()

		c.repoEvents.Shutdown()
		c.appEvents.Shutdown()
		c.repoEvents.WaitForCompletion()
		c.appEvents.WaitForCompletion()

		c.broker.Close()
		c.forwardWG.Wait()

		err = c.closeStores()
	})
	return err
}

func (c *Crane) closeStores() error {
	var err error
	if c.transport != nil {
		err = multierr.Append(err, c.transport.Close())
	}
	return multierr.Append(err, persistence.Close(c.db))
}
