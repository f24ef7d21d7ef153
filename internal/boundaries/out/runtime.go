// Package out defines output ports (interfaces) for infrastructure.
// These interfaces define the contract between use cases and driven adapters
// (Docker, log files, etc.).
package out

import (
	"context"
	"io"

	"github.com/docker/docker/api/types/container"

	"github.com/bnema/ephemera/internal/domain"
)

// ContainerRuntime defines the contract for container runtime operations.
// Implementations must be safe for concurrent use by multiple fixtures.
type ContainerRuntime interface {
	// Image operations
	ListImages(ctx context.Context, reference string) ([]ImageSummary, error)
	PullImage(ctx context.Context, ref, tag string, auth *RegistryAuth, progress func(PullProgress)) error

	// Container lifecycle
	CreateContainer(ctx context.Context, req *CreationRequest) (string, error)
	// StartContainer reports whether the runtime acknowledged the start.
	StartContainer(ctx context.Context, containerID string) (bool, error)
	StopContainer(ctx context.Context, containerID string) error
	RemoveContainer(ctx context.Context, containerID string) error

	// Container inspection
	InspectContainer(ctx context.Context, containerID string) (*domain.InspectionState, error)
	// ContainerLogs returns the combined, demultiplexed stdout/stderr stream.
	ContainerLogs(ctx context.Context, containerID string) (io.ReadCloser, error)

	// In-container operations
	ExecCreate(ctx context.Context, containerID string, cfg ExecConfig) (string, error)
	ExecStart(ctx context.Context, execID string) error
	Attach(ctx context.Context, containerID string, opts AttachOptions) (DuplexStream, error)

	// Endpoint describes how the runtime is reached.
	Endpoint() Endpoint
}

// CreationRequest is the runtime-facing container creation payload.
type CreationRequest struct {
	Name       string
	Config     *container.Config
	HostConfig *container.HostConfig
}

// ImageSummary describes a locally available image.
type ImageSummary struct {
	ID       string
	RepoTags []string
}

// RegistryAuth holds registry credentials for pulls.
type RegistryAuth struct {
	Username      string
	Password      string
	ServerAddress string
}

// PullProgress is one event of an image pull progress stream.
type PullProgress struct {
	Status       string
	ID           string
	ErrorMessage string
}

// ExecConfig configures a detached command.
type ExecConfig struct {
	Cmd          []string
	AttachStdout bool
	AttachStderr bool
}

// AttachOptions configures an attach session.
type AttachOptions struct {
	// Shell, when set, attaches to a fresh process running this command
	// inside the container instead of the container's main process.
	Shell  []string
	Stream bool
	Stdin  bool
	Stdout bool
	Stderr bool
}

// DuplexStream is a bidirectional byte channel to a container process.
type DuplexStream interface {
	Write(ctx context.Context, p []byte) error
	// ReadChunk reads up to len(buf) bytes. eof is true once the process
	// side of the stream has ended; n may be non-zero in the same call.
	ReadChunk(ctx context.Context, buf []byte) (n int, eof bool, err error)
	// CloseWrite closes the input side, signalling end of input.
	CloseWrite() error
	Close() error
}

// Endpoint is the runtime connection endpoint.
type Endpoint struct {
	Scheme string
	Host   string
}
