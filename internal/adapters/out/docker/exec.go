package docker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/bnema/ephemera/internal/boundaries/out"
	"github.com/bnema/ephemera/internal/domain"
)

// ExecCreate registers a command to run in the container.
func (r *Runtime) ExecCreate(ctx context.Context, containerID string, cfg out.ExecConfig) (string, error) {
	if len(cfg.Cmd) == 0 {
		return "", fmt.Errorf("exec command must not be empty")
	}

	resp, err := r.client.ContainerExecCreate(ctx, containerID, container.ExecOptions{
		Cmd:          cfg.Cmd,
		AttachStdout: cfg.AttachStdout,
		AttachStderr: cfg.AttachStderr,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create exec: %w", err)
	}
	return resp.ID, nil
}

// ExecStart starts a registered command without waiting for it.
func (r *Runtime) ExecStart(ctx context.Context, execID string) error {
	if err := r.client.ContainerExecStart(ctx, execID, container.ExecStartOptions{Detach: true}); err != nil {
		return fmt.Errorf("failed to start exec: %w", err)
	}
	return nil
}

// Attach opens a duplex stream to the container's main process, or to a new
// process running opts.Shell.
func (r *Runtime) Attach(ctx context.Context, containerID string, opts out.AttachOptions) (out.DuplexStream, error) {
	if len(opts.Shell) == 0 {
		resp, err := r.client.ContainerAttach(ctx, containerID, container.AttachOptions{
			Stream: opts.Stream,
			Stdin:  opts.Stdin,
			Stdout: opts.Stdout,
			Stderr: opts.Stderr,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to attach to container: %w", err)
		}
		return newHijackedStream(resp), nil
	}

	execResp, err := r.client.ContainerExecCreate(ctx, containerID, container.ExecOptions{
		Cmd:          opts.Shell,
		AttachStdin:  opts.Stdin,
		AttachStdout: opts.Stdout,
		AttachStderr: opts.Stderr,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create exec: %w", err)
	}

	resp, err := r.client.ContainerExecAttach(ctx, execResp.ID, container.ExecAttachOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to attach exec: %w", err)
	}

	r.log.Debug("Attached shell", "container_id", domain.ShortID(containerID), "exec_id", domain.ShortID(execResp.ID), "shell", opts.Shell)
	return newHijackedStream(resp), nil
}

// hijackedStream adapts a hijacked attach connection to out.DuplexStream.
// Output is demultiplexed in the background; stdout and stderr are merged.
type hijackedStream struct {
	resp      types.HijackedResponse
	output    *io.PipeReader
	closeOnce sync.Once
}

func newHijackedStream(resp types.HijackedResponse) *hijackedStream {
	pr, pw := io.Pipe()
	go func() {
		_, err := stdcopy.StdCopy(pw, pw, resp.Reader)
		pw.CloseWithError(err)
	}()
	return &hijackedStream{resp: resp, output: pr}
}

func (s *hijackedStream) Write(ctx context.Context, p []byte) error {
	stop := context.AfterFunc(ctx, func() { s.Close() })
	defer stop()

	if _, err := s.resp.Conn.Write(p); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("failed to write to stream: %w", err)
	}
	return nil
}

func (s *hijackedStream) ReadChunk(ctx context.Context, buf []byte) (int, bool, error) {
	stop := context.AfterFunc(ctx, func() { s.Close() })
	defer stop()

	n, err := s.output.Read(buf)
	switch {
	case err == nil:
		return n, false, nil
	case errors.Is(err, io.EOF):
		return n, true, nil
	case ctx.Err() != nil:
		return n, false, ctx.Err()
	default:
		return n, false, fmt.Errorf("failed to read from stream: %w", err)
	}
}

func (s *hijackedStream) CloseWrite() error {
	return s.resp.CloseWrite()
}

func (s *hijackedStream) Close() error {
	s.closeOnce.Do(func() {
		s.resp.Close()
		s.output.Close()
	})
	return nil
}
