package service

import (
	"context"
	"errors"
	"sync"

	"github.com/tendermint/tpu/libs/log"
)

var (
	// ErrAlreadyStarted is returned when somebody tries to start an already
	// running service.
	ErrAlreadyStarted = errors.New("already started")
	// ErrAlreadyStopped is returned when somebody tries to stop an already
	// stopped service (without resetting it).
	ErrAlreadyStopped = errors.New("already stopped")
	// ErrNotStarted is returned when somebody tries to stop a not running
	// service.
	ErrNotStarted = errors.New("not started")
)

// Service defines a service that can be started, stopped, and waited on.
type Service interface {
	// Start is called to start the service, which should run until
	// the context terminates. If the service is already running, Start
	// must report an error.
	Start(context.Context) error

	// Return true if the service is running
	IsRunning() bool

	// String representation of the service
	String() string

	// Wait blocks until the service is stopped.
	Wait()
}

// Implementation describes the implementation that the
// BaseService implementation wraps.
type Implementation interface {
	Service

	// Called by the Services Start Method
	OnStart(context.Context) error

	// Called when the service is stopped or its context is canceled.
	OnStop()
}

type state int

const (
	stateIdle state = iota
	stateRunning
	stateStopped
)

/*
BaseService tracks whether a long running component, such as the node that
owns the pipeline, is idle, running or stopped.

Users override OnStart/OnStop. OnStart may fail, leaving the service idle so
Start can be called again; OnStop is called exactly once, either from Stop or
when the context passed to Start is canceled.

Typical usage:

	type FooService struct {
		BaseService
		// private fields
	}

	func NewFooService(logger log.Logger) *FooService {
		fs := &FooService{}
		fs.BaseService = *NewBaseService(logger, "FooService", fs)
		return fs
	}

	func (fs *FooService) OnStart(ctx context.Context) error {
		// start stages, etc.
	}

	func (fs *FooService) OnStop() {
		// cancel stages and join them
	}
*/
type BaseService struct {
	logger log.Logger
	name   string
	impl   Implementation

	mtx   sync.Mutex
	state state
	quit  chan struct{}
}

// NewBaseService creates a new BaseService.
func NewBaseService(logger log.Logger, name string, impl Implementation) *BaseService {
	if logger == nil {
		logger = log.NewNopLogger()
	}

	return &BaseService{
		logger: logger,
		name:   name,
		quit:   make(chan struct{}),
		impl:   impl,
	}
}

// Start calls OnStart and, once it succeeds, stops the service when ctx is
// canceled. It fails if the service was started before.
func (bs *BaseService) Start(ctx context.Context) error {
	bs.mtx.Lock()
	defer bs.mtx.Unlock()

	switch bs.state {
	case stateRunning:
		return ErrAlreadyStarted
	case stateStopped:
		bs.logger.Error("not starting service; already stopped", "service", bs.name)
		return ErrAlreadyStopped
	}

	bs.logger.Info("starting service", "service", bs.name)
	if err := bs.impl.OnStart(ctx); err != nil {
		return err
	}
	bs.state = stateRunning

	go func() {
		select {
		case <-bs.quit:
		case <-ctx.Done():
			if err := bs.Stop(); err == nil {
				bs.logger.Info("stopped service", "service", bs.name)
			}
		}
	}()
	return nil
}

// Stop calls OnStop and releases Wait. It fails unless the service is
// running.
func (bs *BaseService) Stop() error {
	bs.mtx.Lock()
	defer bs.mtx.Unlock()

	switch bs.state {
	case stateIdle:
		bs.logger.Error("not stopping service; not started yet", "service", bs.name)
		return ErrNotStarted
	case stateStopped:
		return ErrAlreadyStopped
	}

	bs.logger.Info("stopping service", "service", bs.name)
	bs.impl.OnStop()
	bs.state = stateStopped
	close(bs.quit)
	return nil
}

// IsRunning reports whether the service was started and not yet stopped.
func (bs *BaseService) IsRunning() bool {
	bs.mtx.Lock()
	defer bs.mtx.Unlock()
	return bs.state == stateRunning
}

// Wait blocks until the service is stopped.
func (bs *BaseService) Wait() { <-bs.quit }

// String implements Service by returning a string representation of the service.
func (bs *BaseService) String() string { return bs.name }
