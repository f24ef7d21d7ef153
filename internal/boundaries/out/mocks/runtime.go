package mocks

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"

	"github.com/bnema/ephemera/internal/boundaries/out"
	"github.com/bnema/ephemera/internal/domain"
)

// MockContainerRuntime is a mock implementation of out.ContainerRuntime
type MockContainerRuntime struct {
	mock.Mock
}

// Image operations
func (m *MockContainerRuntime) ListImages(ctx context.Context, reference string) ([]out.ImageSummary, error) {
	args := m.Called(ctx, reference)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]out.ImageSummary), args.Error(1)
}

// PullImage replays the out.PullProgress events passed as the mock's second
// return value, if any, before returning.
func (m *MockContainerRuntime) PullImage(ctx context.Context, ref, tag string, auth *out.RegistryAuth, progress func(out.PullProgress)) error {
	args := m.Called(ctx, ref, tag, auth)
	if len(args) > 1 && progress != nil {
		if events, ok := args.Get(1).([]out.PullProgress); ok {
			for _, ev := range events {
				progress(ev)
			}
		}
	}
	return args.Error(0)
}

// Container lifecycle
func (m *MockContainerRuntime) CreateContainer(ctx context.Context, req *out.CreationRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *MockContainerRuntime) StartContainer(ctx context.Context, containerID string) (bool, error) {
	args := m.Called(ctx, containerID)
	return args.Bool(0), args.Error(1)
}

func (m *MockContainerRuntime) StopContainer(ctx context.Context, containerID string) error {
	args := m.Called(ctx, containerID)
	return args.Error(0)
}

func (m *MockContainerRuntime) RemoveContainer(ctx context.Context, containerID string) error {
	args := m.Called(ctx, containerID)
	return args.Error(0)
}

// Container inspection
func (m *MockContainerRuntime) InspectContainer(ctx context.Context, containerID string) (*domain.InspectionState, error) {
	args := m.Called(ctx, containerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.InspectionState), args.Error(1)
}

func (m *MockContainerRuntime) ContainerLogs(ctx context.Context, containerID string) (io.ReadCloser, error) {
	args := m.Called(ctx, containerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(io.ReadCloser), args.Error(1)
}

// In-container operations
func (m *MockContainerRuntime) ExecCreate(ctx context.Context, containerID string, cfg out.ExecConfig) (string, error) {
	args := m.Called(ctx, containerID, cfg)
	return args.String(0), args.Error(1)
}

func (m *MockContainerRuntime) ExecStart(ctx context.Context, execID string) error {
	args := m.Called(ctx, execID)
	return args.Error(0)
}

func (m *MockContainerRuntime) Attach(ctx context.Context, containerID string, opts out.AttachOptions) (out.DuplexStream, error) {
	args := m.Called(ctx, containerID, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(out.DuplexStream), args.Error(1)
}

func (m *MockContainerRuntime) Endpoint() out.Endpoint {
	args := m.Called()
	return args.Get(0).(out.Endpoint)
}
