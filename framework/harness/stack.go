package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"sync"
	"time"

	"github.com/hass-mqtt-bridge/platform-harness/framework"
	"github.com/hass-mqtt-bridge/platform-harness/framework/helpers"
)

const serviceLogTailSize = 20

// streamDrainTimeout bounds how long teardown waits for a service's line
// dispatch to finish after its stream has been closed.
const streamDrainTimeout = time.Second * 5

// Stack owns the lifecycle of the multi-service test environment. At most one
// environment is active per Stack at a time; Up starts it, Down tears it down
// and resets all accumulated state.
//
// Accumulated state (registered entities, observed broker messages) is valid
// only while the environment is active. Reads after Down see empty state,
// never stale data from a prior run.
type Stack struct {
	descriptor    EnvironmentDescriptor
	runtime       ContainerRuntime
	logger        framework.Logger
	entityPattern *regexp.Regexp

	entities EntitySet
	messages MessageLog

	env *environment
	// lock makes Up and Down mutually exclusive end to end; the accumulators
	// carry their own locks so reads never contend with lifecycle operations.
	lock sync.Mutex
}

// environment is the handle for one running stack instance.
type environment struct {
	network  string
	services []*runningService
	cancel   context.CancelFunc
}

type runningService struct {
	descriptor  ServiceDescriptor
	containerID string
	logs        io.ReadCloser
	broadcaster *lineBroadcaster
	tail        *framework.TailLogger
	evaluator   *waitEvaluator // nil when the service has no wait condition
	startedAt   time.Time
}

// StackOption is a configuration option for NewStack.
type StackOption = helpers.ConfigOption[Stack]

type stackOptionLogger struct{ logger framework.Logger }

func (o stackOptionLogger) Configure(s *Stack) error {
	s.logger = o.logger
	return nil
}

// OptLogger directs the stack's own progress output, and each service's echoed
// log lines, to the given logger.
func OptLogger(logger framework.Logger) StackOption {
	return stackOptionLogger{logger}
}

type stackOptionEntityPattern struct{ pattern *regexp.Regexp }

func (o stackOptionEntityPattern) Configure(s *Stack) error {
	s.entityPattern = o.pattern
	return nil
}

// OptEntityPattern replaces the registration-line pattern, for use if the
// observed platform changes its log format. The pattern must have two capture
// groups: component kind and object id.
func OptEntityPattern(pattern *regexp.Regexp) StackOption {
	return stackOptionEntityPattern{pattern}
}

// NewStack validates the descriptor and creates a Stack using the given
// runtime. Nothing is started until Up.
func NewStack(descriptor EnvironmentDescriptor, runtime ContainerRuntime, options ...StackOption) (*Stack, error) {
	if err := descriptor.Validate(); err != nil {
		return nil, err
	}
	s := &Stack{
		descriptor:    descriptor,
		runtime:       runtime,
		logger:        framework.NullLogger(),
		entityPattern: EntityLinePattern,
	}
	if err := helpers.ApplyOptions(s, options...); err != nil {
		return nil, err
	}
	return s, nil
}

// Up starts every configured service and returns once all of them satisfy
// their wait conditions. Each service's watchers are subscribed to its output
// before the container starts, so no triggering line can be missed.
//
// If any service misses its readiness window, Up tears down the partial
// environment and returns a *StartupTimeoutError naming that service. Calling
// Up while an environment is active returns ErrAlreadyRunning.
func (s *Stack) Up(ctx context.Context) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.env != nil {
		return ErrAlreadyRunning
	}

	// Log streams must outlive Up: they feed the persistent watchers for the
	// whole environment lifetime, so they are tied to this context rather
	// than the caller's, and canceled during teardown.
	streamCtx, cancel := context.WithCancel(context.Background())
	env := &environment{network: s.descriptor.Name, cancel: cancel}

	if err := s.runtime.CreateNetwork(ctx, env.network); err != nil {
		cancel()
		return err
	}

	for _, svc := range s.descriptor.Services {
		rs, err := s.launchService(ctx, streamCtx, env.network, svc)
		if rs != nil {
			// On failure rs may hold a created container; track it so
			// teardown removes it.
			env.services = append(env.services, rs)
		}
		if err != nil {
			_ = s.teardown(ctx, env, false)
			return err
		}
	}

	for _, rs := range env.services {
		if rs.evaluator == nil {
			continue
		}
		if err := s.awaitReady(ctx, rs); err != nil {
			_ = s.teardown(ctx, env, false)
			return err
		}
		s.logger.Printf("service %s is ready", rs.descriptor.Name)
	}

	s.env = env
	s.logger.Printf("environment %s is up (%d services)", env.network, len(env.services))
	return nil
}

// launchService creates the container, wires up all log subscribers, and only
// then starts it. The subscription happens-before the first possible output
// line; this ordering is required, not incidental.
func (s *Stack) launchService(
	ctx context.Context,
	streamCtx context.Context,
	network string,
	svc ServiceDescriptor,
) (*runningService, error) {
	wait, err := svc.waitStrategy()
	if err != nil {
		return nil, err
	}

	id, err := s.runtime.CreateService(ctx, network, svc)
	if err != nil {
		return nil, err
	}

	logs, err := s.runtime.FollowLogs(streamCtx, id)
	if err != nil {
		// The container exists but is unusable; make sure teardown removes it.
		return &runningService{descriptor: svc, containerID: id, broadcaster: newLineBroadcaster(svc.Name)},
			fmt.Errorf("service %q: %w", svc.Name, err)
	}

	rs := &runningService{
		descriptor:  svc,
		containerID: id,
		logs:        logs,
		broadcaster: newLineBroadcaster(svc.Name),
		tail:        framework.NewTailLogger(serviceLogTailSize),
	}

	rs.broadcaster.Subscribe(func(line string) { rs.tail.Println(line) })
	echo := framework.LoggerWithPrefix(s.logger, "["+svc.Name+"] ")
	rs.broadcaster.Subscribe(func(line string) { echo.Println(line) })
	if wait.IsDefined() {
		rs.evaluator = newWaitEvaluator(wait.Value())
		rs.broadcaster.Subscribe(rs.evaluator.HandleLine)
	}
	if svc.WatchEntities {
		extractor := newEntityExtractor(s.entityPattern, &s.entities, s.logger)
		rs.broadcaster.Subscribe(extractor.HandleLine)
	}
	if svc.CaptureMessages {
		recorder := &messageRecorder{log: &s.messages}
		rs.broadcaster.Subscribe(recorder.HandleLine)
	}

	go rs.broadcaster.Run(logs)

	rs.startedAt = time.Now()
	if err := s.runtime.StartService(ctx, id); err != nil {
		return rs, fmt.Errorf("starting service %q: %w", svc.Name, err)
	}
	return rs, nil
}

// awaitReady blocks until the service's wait condition has been satisfied or
// its window expires. Each service's timeout is anchored at its own start time
// and independent of other services' progress.
func (s *Stack) awaitReady(ctx context.Context, rs *runningService) error {
	strategy := rs.evaluator.strategy
	deadline := time.NewTimer(time.Until(rs.startedAt.Add(strategy.Timeout())))
	defer deadline.Stop()
	select {
	case <-rs.evaluator.Ready():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-deadline.C:
		// The condition may have been satisfied in the same instant.
		select {
		case <-rs.evaluator.Ready():
			return nil
		default:
		}
		return &StartupTimeoutError{
			Service:    rs.descriptor.Name,
			Elapsed:    time.Since(rs.startedAt),
			LastOutput: rs.tail.Tail(),
		}
	}
}

// DownOptions controls teardown behavior.
type DownOptions struct {
	// RemoveVolumes also removes the services' anonymous volumes.
	RemoveVolumes bool
}

// Down stops all services and releases all environment resources, then resets
// the accumulated entity and message state. Calling Down when nothing is
// running is a no-op, not an error. It is safe to call while polls against the
// accumulators are still outstanding.
func (s *Stack) Down(ctx context.Context, options DownOptions) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.env == nil {
		return nil
	}
	err := s.teardown(ctx, s.env, options.RemoveVolumes)
	s.env = nil
	s.entities.Reset()
	s.messages.Reset()
	return err
}

// teardown stops and removes everything in env, in reverse start order, and
// cancels the environment's log streams so no watcher fires against reset
// state. It keeps going on individual failures so one stuck container does not
// orphan the rest.
func (s *Stack) teardown(ctx context.Context, env *environment, removeVolumes bool) error {
	var errs []error
	for i := len(env.services) - 1; i >= 0; i-- {
		rs := env.services[i]
		if err := s.runtime.StopService(ctx, rs.containerID); err != nil {
			errs = append(errs, fmt.Errorf("stopping %q: %w", rs.descriptor.Name, err))
		}
		if err := s.runtime.RemoveService(ctx, rs.containerID, removeVolumes); err != nil {
			errs = append(errs, fmt.Errorf("removing %q: %w", rs.descriptor.Name, err))
		}
	}
	env.cancel()
	for _, rs := range env.services {
		if rs.logs != nil {
			_ = rs.logs.Close()
		}
	}
	// Wait for each service's dispatch loop to finish, so no watcher callback
	// can fire after Down resets the accumulators. Services whose stream was
	// never attached have no dispatch loop to wait for.
	drainDeadline := time.Now().Add(streamDrainTimeout)
	for _, rs := range env.services {
		if rs.logs == nil {
			continue
		}
		timer := time.NewTimer(time.Until(drainDeadline))
		select {
		case <-rs.broadcaster.Done():
		case <-timer.C:
			errs = append(errs, fmt.Errorf("log stream for %q did not drain within %s",
				rs.descriptor.Name, streamDrainTimeout))
		}
		timer.Stop()
	}
	if err := s.runtime.RemoveNetwork(ctx, env.network); err != nil {
		errs = append(errs, fmt.Errorf("removing network %q: %w", env.network, err))
	}
	return errors.Join(errs...)
}

// Running reports whether an environment is currently active.
func (s *Stack) Running() bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.env != nil
}

// RegisteredEntities returns a snapshot of the distinct entity identifiers
// extracted from the platform's log, in first-seen order.
func (s *Stack) RegisteredEntities() []string {
	return s.entities.Snapshot()
}

// CountRegisteredEntities returns how many registered entity identifiers match
// the pattern. This is the usual producer for "at least K entities of kind X
// have appeared" polls.
func (s *Stack) CountRegisteredEntities(pattern *regexp.Regexp) int {
	return s.entities.CountMatching(pattern)
}

// MosquittoMessages returns an ordered copy of every raw line captured from
// the broker observer service. Mutating the returned slice has no effect on
// later calls.
func (s *Stack) MosquittoMessages() []string {
	return s.messages.Snapshot()
}
