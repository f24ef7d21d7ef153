// Package docker implements the container runtime adapter using Docker API.
package docker

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"slices"
	"strconv"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/charmbracelet/log"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/bnema/ephemera/internal/boundaries/out"
	"github.com/bnema/ephemera/internal/domain"
)

// MinAPIVersion is the oldest Engine API version Ping accepts.
const MinAPIVersion = "1.41"

const defaultStopTimeout = 10 * time.Second

// Runtime implements out.ContainerRuntime using Docker API.
// It is safe for concurrent use.
type Runtime struct {
	client      *client.Client
	log         *log.Logger
	stopTimeout time.Duration
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(r *Runtime) {
		if l != nil {
			r.log = l
		}
	}
}

// WithStopTimeout sets how long the daemon waits before killing a stopping container.
func WithStopTimeout(d time.Duration) Option {
	return func(r *Runtime) {
		if d > 0 {
			r.stopTimeout = d
		}
	}
}

// NewRuntime creates a runtime for host, or from the DOCKER_* environment
// when host is empty.
func NewRuntime(host string, opts ...Option) (*Runtime, error) {
	clientOpts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if host != "" {
		clientOpts = append(clientOpts, client.WithHost(host))
	}

	cli, err := client.NewClientWithOpts(clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Docker client: %w", err)
	}

	return NewRuntimeWithClient(cli, opts...), nil
}

// NewRuntimeWithClient creates a runtime around an existing client (for testing).
func NewRuntimeWithClient(cli *client.Client, opts ...Option) *Runtime {
	r := &Runtime{
		client:      cli,
		log:         log.Default(),
		stopTimeout: defaultStopTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log = r.log.With("adapter", "docker")
	return r
}

// Close releases the client's connections.
func (r *Runtime) Close() error {
	return r.client.Close()
}

// Ping checks that the daemon answers and speaks at least MinAPIVersion.
// It returns the daemon's API version.
func (r *Runtime) Ping(ctx context.Context) (string, error) {
	ping, err := r.client.Ping(ctx)
	if err != nil {
		return "", fmt.Errorf("docker ping failed: %w", err)
	}
	if err := checkAPIVersion(ping.APIVersion); err != nil {
		return ping.APIVersion, err
	}
	r.log.Debug("Docker daemon reachable", "api_version", ping.APIVersion, "os", ping.OSType)
	return ping.APIVersion, nil
}

func checkAPIVersion(v string) error {
	if v == "" {
		return nil
	}
	got, err := semver.NewVersion(v)
	if err != nil {
		return fmt.Errorf("invalid docker API version %q: %w", v, err)
	}
	if got.LessThan(semver.MustParse(MinAPIVersion)) {
		return fmt.Errorf("docker API version %s is older than the required %s", v, MinAPIVersion)
	}
	return nil
}

// Version returns the daemon's release version.
func (r *Runtime) Version(ctx context.Context) (string, error) {
	version, err := r.client.ServerVersion(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get Docker version: %w", err)
	}
	return version.Version, nil
}

// Endpoint reports the daemon address the client talks to.
func (r *Runtime) Endpoint() out.Endpoint {
	return parseEndpoint(r.client.DaemonHost())
}

func parseEndpoint(daemonHost string) out.Endpoint {
	u, err := url.Parse(daemonHost)
	if err != nil {
		return out.Endpoint{}
	}
	switch u.Scheme {
	case "unix", "npipe":
		return out.Endpoint{Scheme: u.Scheme, Host: u.Path}
	default:
		return out.Endpoint{Scheme: u.Scheme, Host: u.Hostname()}
	}
}

// CreateContainer creates a container and returns its ID.
func (r *Runtime) CreateContainer(ctx context.Context, req *out.CreationRequest) (string, error) {
	log := r.log.With("action", "CreateContainer", "container_name", req.Name)

	resp, err := r.client.ContainerCreate(ctx, req.Config, req.HostConfig, nil, nil, req.Name)
	if err != nil {
		return "", fmt.Errorf("failed to create container: %w", err)
	}
	for _, w := range resp.Warnings {
		log.Warn("Container create warning", "warning", w)
	}

	log.Debug("Container created", "container_id", domain.ShortID(resp.ID))
	return resp.ID, nil
}

// StartContainer starts a container. The start is acknowledged whenever the
// daemon accepted the request.
func (r *Runtime) StartContainer(ctx context.Context, containerID string) (bool, error) {
	if err := r.client.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		return false, fmt.Errorf("failed to start container: %w", err)
	}

	r.log.Debug("Container started", "container_id", domain.ShortID(containerID))
	return true, nil
}

// StopContainer stops a container.
func (r *Runtime) StopContainer(ctx context.Context, containerID string) error {
	timeout := int(r.stopTimeout.Seconds())
	if err := r.client.ContainerStop(ctx, containerID, container.StopOptions{Timeout: &timeout}); err != nil {
		return fmt.Errorf("failed to stop container: %w", err)
	}

	r.log.Debug("Container stopped", "container_id", domain.ShortID(containerID))
	return nil
}

// RemoveContainer removes a container and its anonymous volumes.
func (r *Runtime) RemoveContainer(ctx context.Context, containerID string) error {
	if err := r.client.ContainerRemove(ctx, containerID, container.RemoveOptions{RemoveVolumes: true}); err != nil {
		return fmt.Errorf("failed to remove container: %w", err)
	}

	r.log.Debug("Container removed", "container_id", domain.ShortID(containerID))
	return nil
}

// InspectContainer inspects a container.
func (r *Runtime) InspectContainer(ctx context.Context, containerID string) (*domain.InspectionState, error) {
	resp, err := r.client.ContainerInspect(ctx, containerID)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect container: %w", err)
	}

	state := &domain.InspectionState{Raw: resp}
	if resp.ContainerJSONBase != nil && resp.State != nil {
		state.Running = resp.State.Running
		state.Status = resp.State.Status
	}

	if resp.NetworkSettings != nil {
		// Network names are sorted so the same container always yields the same gateway.
		names := make([]string, 0, len(resp.NetworkSettings.Networks))
		for name := range resp.NetworkSettings.Networks {
			names = append(names, name)
		}
		slices.Sort(names)
		for _, name := range names {
			if ep := resp.NetworkSettings.Networks[name]; ep != nil && ep.Gateway != "" {
				state.NetworkGateway = ep.Gateway
				break
			}
		}

		for port, bindings := range resp.NetworkSettings.Ports {
			if port.Proto() != "tcp" {
				continue
			}
			for _, binding := range bindings {
				hostPort, err := strconv.Atoi(binding.HostPort)
				if err != nil || hostPort == 0 {
					continue
				}
				if state.Ports == nil {
					state.Ports = make(map[int]int)
				}
				state.Ports[port.Int()] = hostPort
				break
			}
		}
	}

	return state, nil
}

// ContainerLogs follows the container's stdout and stderr as one stream.
func (r *Runtime) ContainerLogs(ctx context.Context, containerID string) (io.ReadCloser, error) {
	logs, err := r.client.ContainerLogs(ctx, containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get container logs: %w", err)
	}

	return demux(logs), nil
}

// demuxedStream merges a multiplexed Docker stream into plain bytes.
type demuxedStream struct {
	*io.PipeReader
	src io.Closer
}

func demux(src io.ReadCloser) *demuxedStream {
	pr, pw := io.Pipe()
	go func() {
		_, err := stdcopy.StdCopy(pw, pw, src)
		pw.CloseWithError(err)
	}()
	return &demuxedStream{PipeReader: pr, src: src}
}

func (d *demuxedStream) Close() error {
	err := d.src.Close()
	d.PipeReader.Close()
	return err
}
