package service

import (
	"context"
	"errors"
	"sync"

	"github.com/tendermint/tm-exchange/libs/log"
)

var (
	// ErrAlreadyStarted is returned when somebody tries to start an already
	// running service.
	ErrAlreadyStarted = errors.New("already started")
	// ErrAlreadyStopped is returned when somebody tries to stop an already
	// stopped service.
	ErrAlreadyStopped = errors.New("already stopped")
	// ErrNotStarted is returned when somebody tries to stop a not running
	// service.
	ErrNotStarted = errors.New("not started")
)

// Service defines a service that can be started and stopped once.
type Service interface {
	// Start is called to start the service, which should run until
	// the context terminates or Stop is called. If the service is
	// already running, Start must report an error.
	Start(context.Context) error

	// Stop stops the service.
	Stop() error

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
	// Called by the Services Start Method. The context passed is canceled
	// when the service stops, so goroutines started here may select on it.
	OnStart(context.Context) error

	// Called when the service stops, either through Stop or because the
	// context given to Start was canceled.
	OnStop()
}

// BaseService tracks the lifecycle of a service and delegates the actual work
// to its Implementation. A BaseService cannot be restarted.
//
// Typical usage:
//
//	type FooService struct {
//		*service.BaseService
//	}
//
//	func NewFooService(logger log.Logger) *FooService {
//		fs := &FooService{}
//		fs.BaseService = service.NewBaseService(logger, "FooService", fs)
//		return fs
//	}
type BaseService struct {
	logger log.Logger
	name   string
	impl   Implementation

	mtx     sync.Mutex
	started bool
	stopped bool
	cancel  context.CancelFunc
	quit    chan struct{}
}

// NewBaseService creates a new BaseService.
func NewBaseService(logger log.Logger, name string, impl Implementation) *BaseService {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &BaseService{
		logger: logger,
		name:   name,
		impl:   impl,
		quit:   make(chan struct{}),
	}
}

// Start starts the Service and calls its OnStart method. An error will be
// returned if the service is already running or stopped.
func (bs *BaseService) Start(ctx context.Context) error {
	bs.mtx.Lock()
	if bs.stopped {
		bs.mtx.Unlock()
		bs.logger.Error("not starting service; already stopped", "service", bs.name)
		return ErrAlreadyStopped
	}
	if bs.started {
		bs.mtx.Unlock()
		return ErrAlreadyStarted
	}

	bs.logger.Info("starting service", "service", bs.name)

	ctx, cancel := context.WithCancel(ctx)
	if err := bs.impl.OnStart(ctx); err != nil {
		cancel()
		bs.mtx.Unlock()
		return err
	}
	bs.started = true
	bs.cancel = cancel
	bs.mtx.Unlock()

	go func() {
		select {
		case <-bs.quit:
			// someone else explicitly called stop
		case <-ctx.Done():
			if err := bs.Stop(); err != nil && !errors.Is(err, ErrAlreadyStopped) {
				bs.logger.Error("stopped service", "err", err.Error(), "service", bs.name)
			}
		}
	}()

	return nil
}

// Stop calls OnStop and closes the quit channel. An error will be returned if
// the service is not running.
func (bs *BaseService) Stop() error {
	bs.mtx.Lock()
	defer bs.mtx.Unlock()

	switch {
	case bs.stopped:
		return ErrAlreadyStopped
	case !bs.started:
		bs.logger.Error("not stopping service; not started yet", "service", bs.name)
		return ErrNotStarted
	}

	bs.logger.Info("stopping service", "service", bs.name)
	bs.stopped = true
	bs.cancel()
	bs.impl.OnStop()
	close(bs.quit)

	return nil
}

// IsRunning returns true if the service has been started and not yet stopped.
func (bs *BaseService) IsRunning() bool {
	bs.mtx.Lock()
	defer bs.mtx.Unlock()
	return bs.started && !bs.stopped
}

// Wait blocks until the service is stopped.
func (bs *BaseService) Wait() { <-bs.quit }

// String implements Service by returning a string representation of the service.
func (bs *BaseService) String() string { return bs.name }
