package harness

import (
	"context"
	"io"
)

// ContainerRuntime is the narrow slice of a container engine that the stack
// needs. The production implementation talks to the Docker Engine API; tests
// substitute a scripted fake so orchestration logic can be exercised without a
// daemon.
//
// The split between CreateService, FollowLogs, and StartService is load
// bearing: the stack subscribes to a service's output between creation and
// start, so that no log line can be emitted before its watchers are listening.
type ContainerRuntime interface {
	// CreateNetwork creates the environment's private network.
	CreateNetwork(ctx context.Context, name string) error

	// RemoveNetwork removes the environment's network.
	RemoveNetwork(ctx context.Context, name string) error

	// CreateService creates (but does not start) a container for the service
	// on the given network, returning its container ID.
	CreateService(ctx context.Context, network string, svc ServiceDescriptor) (string, error)

	// FollowLogs attaches to a created container's combined output. When called
	// before StartService, the returned stream observes the container's output
	// from its very first line. The stream ends when ctx is canceled or the
	// container stops.
	FollowLogs(ctx context.Context, containerID string) (io.ReadCloser, error)

	// StartService starts a created container.
	StartService(ctx context.Context, containerID string) error

	// StopService stops a running container. Stopping an already-stopped
	// container is not an error.
	StopService(ctx context.Context, containerID string) error

	// RemoveService removes a container, optionally with its anonymous volumes.
	RemoveService(ctx context.Context, containerID string, removeVolumes bool) error

	// Close releases the runtime's own resources.
	Close() error
}
