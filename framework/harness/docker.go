package harness

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sort"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"

	"github.com/hass-mqtt-bridge/platform-harness/framework"
)

const stopGracePeriodSeconds = 10

// DockerRuntime implements ContainerRuntime against the Docker Engine API,
// using the daemon configured by the usual DOCKER_HOST-style environment
// variables.
type DockerRuntime struct {
	cli    *client.Client
	logger framework.Logger
}

// NewDockerRuntime connects to the local Docker daemon.
func NewDockerRuntime(logger framework.Logger) (*DockerRuntime, error) {
	if logger == nil {
		logger = framework.NullLogger()
	}
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("connecting to docker daemon: %w", err)
	}
	return &DockerRuntime{cli: cli, logger: logger}, nil
}

func (d *DockerRuntime) CreateNetwork(ctx context.Context, name string) error {
	_, err := d.cli.NetworkCreate(ctx, name, network.CreateOptions{Driver: "bridge"})
	if err != nil {
		return fmt.Errorf("creating network %q: %w", name, err)
	}
	return nil
}

func (d *DockerRuntime) RemoveNetwork(ctx context.Context, name string) error {
	return d.cli.NetworkRemove(ctx, name)
}

func (d *DockerRuntime) CreateService(ctx context.Context, netName string, svc ServiceDescriptor) (string, error) {
	d.ensureImage(ctx, svc.Image)

	exposed, bindings, err := nat.ParsePortSpecs(svc.Ports)
	if err != nil {
		return "", fmt.Errorf("service %q: invalid port spec: %w", svc.Name, err)
	}

	binds := make([]string, 0, len(svc.Files))
	for _, f := range svc.Files {
		source, err := filepath.Abs(f.Source)
		if err != nil {
			return "", fmt.Errorf("service %q: resolving %q: %w", svc.Name, f.Source, err)
		}
		binds = append(binds, source+":"+f.Target)
	}

	config := &container.Config{
		Image:        svc.Image,
		Cmd:          svc.Command,
		Env:          envList(svc.Env),
		ExposedPorts: exposed,
	}
	hostConfig := &container.HostConfig{
		Binds:        binds,
		PortBindings: bindings,
	}
	// The service's own name is its DNS alias, so services can reach each
	// other by the names used in the descriptor (e.g. mqtt://mosquitto:1883).
	netConfig := &network.NetworkingConfig{
		EndpointsConfig: map[string]*network.EndpointSettings{
			netName: {Aliases: []string{svc.Name}},
		},
	}

	resp, err := d.cli.ContainerCreate(ctx, config, hostConfig, netConfig, nil, netName+"-"+svc.Name)
	if err != nil {
		return "", fmt.Errorf("creating container for service %q: %w", svc.Name, err)
	}
	return resp.ID, nil
}

// ensureImage pulls the image so that creation does not fail on a fresh host.
// Pull failures are tolerated: the image may exist only locally (a dev build
// of the bridge), in which case creation succeeds anyway.
func (d *DockerRuntime) ensureImage(ctx context.Context, ref string) {
	rc, err := d.cli.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		d.logger.Printf("pull %s: %v", ref, err)
		return
	}
	defer rc.Close()
	_, _ = io.Copy(io.Discard, rc)
}

func (d *DockerRuntime) FollowLogs(ctx context.Context, containerID string) (io.ReadCloser, error) {
	raw, err := d.cli.ContainerLogs(ctx, containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     true,
	})
	if err != nil {
		return nil, fmt.Errorf("attaching to container logs: %w", err)
	}
	// The engine multiplexes stdout/stderr into one stream; demultiplex both
	// onto a single pipe of plain text lines.
	pr, pw := io.Pipe()
	go func() {
		_, err := stdcopy.StdCopy(pw, pw, raw)
		_ = pw.CloseWithError(err)
	}()
	return &logStream{pr: pr, raw: raw}, nil
}

type logStream struct {
	pr  *io.PipeReader
	raw io.ReadCloser
}

func (s *logStream) Read(p []byte) (int, error) { return s.pr.Read(p) }

func (s *logStream) Close() error {
	_ = s.raw.Close()
	return s.pr.Close()
}

func (d *DockerRuntime) StartService(ctx context.Context, containerID string) error {
	return d.cli.ContainerStart(ctx, containerID, container.StartOptions{})
}

func (d *DockerRuntime) StopService(ctx context.Context, containerID string) error {
	timeout := stopGracePeriodSeconds
	return d.cli.ContainerStop(ctx, containerID, container.StopOptions{Timeout: &timeout})
}

func (d *DockerRuntime) RemoveService(ctx context.Context, containerID string, removeVolumes bool) error {
	return d.cli.ContainerRemove(ctx, containerID, container.RemoveOptions{
		Force:         true,
		RemoveVolumes: removeVolumes,
	})
}

func (d *DockerRuntime) Close() error {
	return d.cli.Close()
}

func envList(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	list := make([]string, 0, len(env))
	for k, v := range env {
		list = append(list, k+"="+v)
	}
	sort.Strings(list)
	return list
}
