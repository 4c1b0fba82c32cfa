// Package lifecycle drives apps through their status state machine. Every
// operation validates synchronously, writes an optimistic transient status,
// publishes a command and returns an Operation that completes once the
// terminal status has been persisted.
package lifecycle

import (
	"context"
	"fmt"
	"sync"

	"appcrane/internal/application/command"
	"appcrane/internal/domain/model"
	"appcrane/internal/domain/repository"
	"appcrane/pkg/log"
	"appcrane/pkg/queue"
)

// Publisher sends a command and waits for its result.
type Publisher interface {
	Publish(ctx context.Context, msg command.Message) queue.Result
}

// Notifier receives app status notifications.
type Notifier interface {
	Publish(ev model.Event)
}

// Config holds the host settings the preconditions are checked against.
type Config struct {
	Architecture string
	// Version is the running orchestrator version, compared against each
	// descriptor's minimum version.
	Version     string
	DemoMode    bool
	DemoMaxApps int
}

type Deps struct {
	Apps        repository.AppRepository
	Marketplace repository.Marketplace
	Queue       Publisher
	Notifier    Notifier
}

type Service struct {
	Deps
	cfg Config

	mu       sync.Mutex
	inflight map[model.AppUrn]*Operation
	wg       sync.WaitGroup
}

func NewService(deps Deps, cfg Config) *Service {
	if cfg.DemoMaxApps <= 0 {
		cfg.DemoMaxApps = 6
	}
	return &Service{Deps: deps, cfg: cfg, inflight: make(map[model.AppUrn]*Operation)}
}

// Operation is a lifecycle request whose command runs in the background.
type Operation struct {
	AppUrn model.AppUrn
	Name   string

	done   chan struct{}
	result queue.Result
}

func newOperation(urn model.AppUrn, name string) *Operation {
	return &Operation{AppUrn: urn, Name: name, done: make(chan struct{})}
}

// Done is closed once the terminal status has been persisted.
func (o *Operation) Done() <-chan struct{} {
	return o.done
}

// Wait blocks until the operation completes or ctx ends.
func (o *Operation) Wait(ctx context.Context) (queue.Result, error) {
	select {
	case <-o.done:
		return o.result, nil
	case <-ctx.Done():
		return queue.Result{}, ctx.Err()
	}
}

// Result returns the final result. It must only be called after Done.
func (o *Operation) Result() queue.Result {
	<-o.done
	return o.result
}

// acquire registers an in-flight operation for urn.
func (s *Service) acquire(urn model.AppUrn, name string) (*Operation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.inflight[urn]; ok {
		return nil, model.NewConflictError("APP_ERROR_OPERATION_IN_PROGRESS",
			fmt.Sprintf("operation already in progress for app %s: %s", urn, cur.Name))
	}
	op := newOperation(urn, name)
	s.inflight[urn] = op
	return op, nil
}

func (s *Service) release(op *Operation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inflight[op.AppUrn] == op {
		delete(s.inflight, op.AppUrn)
	}
}

// InFlight reports whether an operation is running for urn.
func (s *Service) InFlight(urn model.AppUrn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.inflight[urn]
	return ok
}

func (s *Service) complete(op *Operation, res queue.Result) {
	s.release(op)
	op.result = res
	close(op.done)
}

// Wait blocks until every launched operation has completed.
func (s *Service) Wait() {
	s.wg.Wait()
}

// continuation turns the command result into the operation result, applying
// the terminal status.
type continuation func(ctx context.Context, res queue.Result) queue.Result

// launch publishes cmd in the background and completes op with the result of
// then. The caller's cancellation does not reach the background work.
func (s *Service) launch(ctx context.Context, op *Operation, cmd command.Command, then continuation) {
	ctx = context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		res := s.publish(ctx, cmd)
		s.complete(op, then(ctx, res))
	}()
}

func (s *Service) publish(ctx context.Context, cmd command.Command) queue.Result {
	return s.Queue.Publish(ctx, command.NewMessage(cmd))
}

// setTransient persists an optimistic status and announces it.
func (s *Service) setTransient(ctx context.Context, urn model.AppUrn, status model.AppStatus) error {
	if _, err := s.Apps.Update(ctx, urn, model.StatusPatch(status)); err != nil {
		return fmt.Errorf("set status %s on %s: %w", status, urn, err)
	}
	s.Notifier.Publish(model.StatusChangeEvent(urn, status))
	return nil
}

// succeed persists the terminal status and emits <op>_success.
func (s *Service) succeed(ctx context.Context, op *Operation, status model.AppStatus, res queue.Result) queue.Result {
	if _, err := s.Apps.Update(ctx, op.AppUrn, model.StatusPatch(status)); err != nil {
		log.Error("[Lifecycle] failed to persist terminal status", "app_urn", op.AppUrn, "operation", op.Name, "status", status, "error", err)
		s.Notifier.Publish(model.ErrorEvent(op.Name, op.AppUrn, status, err.Error()))
		return queue.Failure("%s succeeded but status could not be saved: %v", op.Name, err)
	}
	s.Notifier.Publish(model.SuccessEvent(op.Name, op.AppUrn, status))
	return res
}

// fail persists the fallback status and emits <op>_error.
func (s *Service) fail(ctx context.Context, op *Operation, status model.AppStatus, message string) queue.Result {
	if _, err := s.Apps.Update(ctx, op.AppUrn, model.StatusPatch(status)); err != nil {
		log.Error("[Lifecycle] failed to persist fallback status", "app_urn", op.AppUrn, "operation", op.Name, "status", status, "error", err)
	}
	log.Warn("[Lifecycle] operation failed", "app_urn", op.AppUrn, "operation", op.Name, "status", status, "message", message)
	s.Notifier.Publish(model.ErrorEvent(op.Name, op.AppUrn, status, message))
	return queue.Result{Success: false, Message: message}
}

// steady runs cmd with a transient status, resolving to onSuccess or onFailure.
func (s *Service) steady(ctx context.Context, op *Operation, cmd command.Command, transient, onSuccess, onFailure model.AppStatus) error {
	if err := s.setTransient(ctx, op.AppUrn, transient); err != nil {
		return err
	}
	s.launch(ctx, op, cmd, func(ctx context.Context, res queue.Result) queue.Result {
		if !res.Success {
			return s.fail(ctx, op, onFailure, res.Message)
		}
		return s.succeed(ctx, op, onSuccess, res)
	})
	return nil
}

// guarded acquires the in-flight slot for urn, loads the app and runs fn.
// The slot is released if fn does not launch anything.
func (s *Service) guarded(ctx context.Context, urn model.AppUrn, name string, fn func(op *Operation, app *model.App) error) (*Operation, error) {
	op, err := s.acquire(urn, name)
	if err != nil {
		return nil, err
	}
	app, err := s.Apps.Get(ctx, urn)
	if err == nil {
		err = fn(op, app)
	}
	if err != nil {
		s.release(op)
		return nil, err
	}
	return op, nil
}

// GetApp returns one app.
func (s *Service) GetApp(ctx context.Context, urn model.AppUrn) (*model.App, error) {
	return s.Apps.Get(ctx, urn)
}

// ListApps returns every app.
func (s *Service) ListApps(ctx context.Context) ([]model.App, error) {
	return s.Apps.ListAll(ctx)
}
