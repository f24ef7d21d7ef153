package fixture

import (
	"bytes"
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/bnema/ephemera/internal/boundaries/out"
	"github.com/bnema/ephemera/internal/domain"
)

// chunkSize is the read buffer size of the output loop. Output is read until
// the stream reports its end, never assumed complete after one read.
const chunkSize = 1024

// DefaultShell is the process commands are fed to.
var DefaultShell = []string{"/bin/sh"}

// SessionMode selects how an ExecChannel runs commands.
type SessionMode int

const (
	// Ephemeral opens a fresh shell for every command.
	Ephemeral SessionMode = iota
	// Persistent feeds every command to one long-lived shell, so commands share state.
	Persistent
)

func (m SessionMode) String() string {
	switch m {
	case Ephemeral:
		return "ephemeral"
	case Persistent:
		return "persistent"
	default:
		return fmt.Sprintf("SessionMode(%d)", int(m))
	}
}

// Attacher opens duplex streams to container processes.
type Attacher interface {
	Attach(ctx context.Context, containerID string, opts out.AttachOptions) (out.DuplexStream, error)
}

// chunkReader is the read side shared by raw streams and per-command views.
type chunkReader interface {
	ReadChunk(ctx context.Context, buf []byte) (int, bool, error)
}

// ExecChannel runs shell commands inside a container and collects their output.
// It is not safe for concurrent use.
type ExecChannel struct {
	attacher    Attacher
	containerID string
	mode        SessionMode
	shell       []string
	log         *log.Logger
	newMarker   func() string

	// Persistent mode only.
	stream out.DuplexStream
	carry  []byte
}

// ExecOption configures an ExecChannel.
type ExecOption func(*ExecChannel)

// WithSessionMode selects ephemeral (default) or persistent sessions.
func WithSessionMode(mode SessionMode) ExecOption {
	return func(c *ExecChannel) {
		c.mode = mode
	}
}

// WithShell overrides DefaultShell.
func WithShell(shell ...string) ExecOption {
	return func(c *ExecChannel) {
		if len(shell) > 0 {
			c.shell = slices.Clone(shell)
		}
	}
}

// WithExecLogger sets the logger.
func WithExecLogger(l *log.Logger) ExecOption {
	return func(c *ExecChannel) {
		if l != nil {
			c.log = l
		}
	}
}

// NewExecChannel creates a channel to containerID. Persistent channels must be
// opened with Open before use.
func NewExecChannel(attacher Attacher, containerID string, opts ...ExecOption) *ExecChannel {
	c := &ExecChannel{
		attacher:    attacher,
		containerID: containerID,
		mode:        Ephemeral,
		shell:       DefaultShell,
		log:         log.Default(),
		newMarker: func() string {
			return "__ephemera_end_" + uuid.NewString()
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Mode returns the session mode.
func (c *ExecChannel) Mode() SessionMode {
	return c.mode
}

// Open attaches the long-lived stream of a persistent channel. It is a no-op
// for ephemeral channels and for a persistent channel that is already open.
func (c *ExecChannel) Open(ctx context.Context) error {
	if c.mode != Persistent || c.stream != nil {
		return nil
	}
	stream, err := c.attach(ctx)
	if err != nil {
		return err
	}
	c.stream = stream
	c.carry = nil
	c.log.Debug("Persistent exec session opened", "container_id", domain.ShortID(c.containerID))
	return nil
}

// Exec runs command and returns everything it wrote to stdout and stderr.
func (c *ExecChannel) Exec(ctx context.Context, command string) (*domain.ExecResult, error) {
	if c.mode == Persistent {
		return c.execPersistent(ctx, command)
	}
	return c.execEphemeral(ctx, command)
}

// Close releases the persistent stream, if any.
func (c *ExecChannel) Close() error {
	if c.stream == nil {
		return nil
	}
	err := c.stream.Close()
	c.stream = nil
	c.carry = nil
	return err
}

func (c *ExecChannel) attach(ctx context.Context) (out.DuplexStream, error) {
	return c.attacher.Attach(ctx, c.containerID, out.AttachOptions{
		Shell:  c.shell,
		Stream: true,
		Stdin:  true,
		Stdout: true,
		Stderr: true,
	})
}

func (c *ExecChannel) execEphemeral(ctx context.Context, command string) (*domain.ExecResult, error) {
	stream, err := c.attach(ctx)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	if err := stream.Write(ctx, asciiLine(command)); err != nil {
		return nil, fmt.Errorf("failed to write command: %w", err)
	}
	// End of input makes the shell exit once the command is done.
	if err := stream.CloseWrite(); err != nil {
		return nil, fmt.Errorf("failed to close command input: %w", err)
	}

	return c.readUntilEOF(ctx, stream)
}

func (c *ExecChannel) execPersistent(ctx context.Context, command string) (*domain.ExecResult, error) {
	if c.stream == nil {
		return nil, domain.ErrSessionClosed
	}

	marker := c.newMarker()
	if err := c.stream.Write(ctx, persistentInput(command, marker)); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to write command: %w", err)
	}

	view := &commandOutput{
		stream:  c.stream,
		marker:  []byte(marker + "\n"),
		pending: c.carry,
		scratch: make([]byte, chunkSize),
	}
	res, err := c.readUntilEOF(ctx, view)
	if err != nil || view.ended {
		// The shell is gone or its output position is unknown.
		c.Close()
		return res, err
	}
	c.carry = view.pending
	return res, nil
}

// readUntilEOF accumulates chunks until the reader reports end of output.
func (c *ExecChannel) readUntilEOF(ctx context.Context, r chunkReader) (*domain.ExecResult, error) {
	buf := make([]byte, chunkSize)
	res := &domain.ExecResult{}
	for {
		n, eof, err := r.ReadChunk(ctx, buf)
		if n > 0 {
			res.Output = append(res.Output, buf[:n]...)
			c.log.Debug("Received output", "container_id", domain.ShortID(c.containerID), "bytes", n)
		}
		if err != nil {
			return res, fmt.Errorf("failed to read command output: %w", err)
		}
		if eof {
			res.EOF = true
			return res, nil
		}
	}
}

// commandOutput is the part of a persistent stream that belongs to one
// command: it ends at the marker line echoed after the command.
type commandOutput struct {
	stream  chunkReader
	marker  []byte
	pending []byte
	scratch []byte
	done    bool
	ended   bool
}

func (o *commandOutput) ReadChunk(ctx context.Context, buf []byte) (int, bool, error) {
	for {
		if o.done {
			return 0, true, nil
		}
		if i := bytes.Index(o.pending, o.marker); i >= 0 {
			if i > 0 {
				n := copy(buf, o.pending[:i])
				o.pending = o.pending[n:]
				return n, false, nil
			}
			o.pending = o.pending[len(o.marker):]
			o.done = true
			return 0, true, nil
		}
		if o.ended {
			n := copy(buf, o.pending)
			o.pending = o.pending[n:]
			return n, len(o.pending) == 0, nil
		}
		// Hold back what could be the start of a split marker.
		if safe := len(o.pending) - (len(o.marker) - 1); safe > 0 {
			n := copy(buf, o.pending[:safe])
			o.pending = o.pending[n:]
			return n, false, nil
		}

		n, eof, err := o.stream.ReadChunk(ctx, o.scratch)
		o.pending = append(o.pending, o.scratch[:n]...)
		if err != nil {
			return 0, false, err
		}
		if eof {
			o.ended = true
		}
	}
}

// persistentInput frames command for the shared shell. The group runs in the
// current shell so state carries over. Its stdin is /dev/null so the command
// cannot consume the marker line, and its stderr is merged into stdout so all
// of its output arrives before the marker.
func persistentInput(command, marker string) []byte {
	if strings.TrimSpace(command) == "" {
		// An empty group is a syntax error that would end the shell.
		command = ":"
	}
	input := append([]byte("{ "), asciiLine(command)...)
	return append(input, asciiLine("} </dev/null 2>&1; echo "+marker)...)
}

// asciiLine encodes s as ASCII, replacing anything else with '?', and
// terminates it with a newline.
func asciiLine(s string) []byte {
	b := make([]byte, 0, len(s)+1)
	for _, r := range s {
		if r > 0x7f {
			b = append(b, '?')
			continue
		}
		b = append(b, byte(r))
	}
	return append(b, '\n')
}
