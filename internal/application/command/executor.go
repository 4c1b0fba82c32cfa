package command

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"appcrane/internal/domain/model"
	"appcrane/internal/domain/repository"
	"appcrane/pkg/log"
	"appcrane/pkg/queue"
)

// SubnetAllocator assigns the app network block.
type SubnetAllocator interface {
	Allocate(ctx context.Context, urn model.AppUrn) (string, error)
}

// Layout resolves the per-app directories.
type Layout interface {
	// InstalledAppDir holds the copied app files and the generated compose file.
	InstalledAppDir(urn model.AppUrn) string
	// AppDataDir holds the app's persistent data and app.env.
	AppDataDir(urn model.AppUrn) string
	// AppDataHostDir is AppDataDir as seen by the docker daemon.
	AppDataHostDir(urn model.AppUrn) string
	// UserConfigDir holds user supplied overrides for the app.
	UserConfigDir(urn model.AppUrn) string
}

// Owner is the uid/gid the app data directory is handed to.
type Owner struct {
	UID int
	GID int
}

// Options are host settings shared by every command.
type Options struct {
	Architecture     string
	LabelKey         string
	ForcePull        bool
	Owner            *Owner
	RootFolderHost   string
	InternalIP       string
	NetworkInterface string
	Timezone         string
}

// Deps are the collaborators of an Executor. Networks is optional.
type Deps struct {
	Subnets     SubnetAllocator
	Compose     repository.ComposeExecutor
	Networks    repository.NetworkRepository
	Marketplace repository.Marketplace
	Backups     repository.BackupManager
}

// Executor runs commands. It never panics and never returns an error: every
// failure ends up in the Outcome.
type Executor struct {
	Deps
	layout Layout
	opts   Options
}

func NewExecutor(deps Deps, layout Layout, opts Options) *Executor {
	return &Executor{Deps: deps, layout: layout, opts: opts}
}

// run is the per-invocation state of a command.
type run struct {
	cmd     Command
	logger  *slog.Logger
	outcome *Outcome
}

// bestEffort records err as non-fatal and logs it.
func (r *run) bestEffort(step string, err error) {
	if err == nil {
		return
	}
	r.logger.Warn("best-effort step failed", "step", step, "error", err)
	r.outcome.nonFatal(step, err)
}

// Execute runs cmd to completion.
func (e *Executor) Execute(ctx context.Context, cmd Command) (out Outcome) {
	r := &run{
		cmd:     cmd,
		logger:  log.With("app_urn", cmd.AppUrn.String(), "command", string(cmd.Kind)),
		outcome: &out,
	}

	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("command panicked", "panic", p, "stack", string(debug.Stack()))
			out.Result = queue.Failure("%s %s failed: %v", cmd.Kind, cmd.AppUrn, p)
		}
	}()

	r.logger.Info("executing command")

	var (
		msg string
		err error
	)
	switch cmd.Kind {
	case KindInstall:
		msg, err = e.install(ctx, r)
	case KindStart:
		msg, err = e.start(ctx, r)
	case KindStop:
		msg, err = e.stop(ctx, r)
	case KindRestart:
		msg, err = e.restart(ctx, r)
	case KindUninstall:
		msg, err = e.uninstall(ctx, r)
	case KindReset:
		msg, err = e.reset(ctx, r)
	case KindBackup:
		msg, err = e.backup(ctx, r)
	case KindRestore:
		msg, err = e.restore(ctx, r)
	case KindUpdate:
		msg, err = e.update(ctx, r)
	case KindGenerateEnv:
		msg, err = e.generateEnvCommand(ctx, r)
	default:
		err = fmt.Errorf("unknown command %q", cmd.Kind)
	}

	if err != nil {
		r.logger.Error("command failed", "error", err)
		out.Result = queue.Result{Success: false, Message: err.Error()}
		return out
	}
	r.logger.Info("command succeeded", "non_fatal", len(out.NonFatal))
	out.Result = queue.Result{Success: true, Message: msg}
	return out
}

// Handle adapts Execute to the queue consumer signature.
func (e *Executor) Handle(ctx context.Context, msg Message) queue.Result {
	cmd, err := msg.ToCommand()
	if err != nil {
		return queue.Failure("invalid command: %v", err)
	}
	return e.Execute(ctx, cmd).Result
}
