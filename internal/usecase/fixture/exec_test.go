package fixture

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/bnema/ephemera/internal/boundaries/out"
	"github.com/bnema/ephemera/internal/boundaries/out/mocks"
	"github.com/bnema/ephemera/internal/domain"
)

var shellAttach = out.AttachOptions{
	Shell:  DefaultShell,
	Stream: true,
	Stdin:  true,
	Stdout: true,
	Stderr: true,
}

func TestExecChannel_Ephemeral_ReadsUntilEOF(t *testing.T) {
	stream := mocks.NewFakeStream("ab", "cd")
	runtime := new(mocks.MockContainerRuntime)
	runtime.On("Attach", mock.Anything, "c1", shellAttach).Return(stream, nil).Once()

	ch := NewExecChannel(runtime, "c1", WithExecLogger(quietLogger()))
	res, err := ch.Exec(context.Background(), "echo abcd")

	require.NoError(t, err)
	assert.Equal(t, "abcd", res.String())
	assert.True(t, res.EOF)
	assert.Equal(t, "echo abcd\n", stream.Output())
	assert.Equal(t, 1, stream.CloseWrites)
	assert.Equal(t, 1, stream.Closes)
	runtime.AssertExpectations(t)
}

func TestExecChannel_Ephemeral_LargeOutputSpansChunks(t *testing.T) {
	big := strings.Repeat("x", 3*chunkSize+17)
	stream := mocks.NewFakeStream(big)
	runtime := new(mocks.MockContainerRuntime)
	runtime.On("Attach", mock.Anything, "c1", shellAttach).Return(stream, nil)

	res, err := NewExecChannel(runtime, "c1", WithExecLogger(quietLogger())).Exec(context.Background(), "cat big")

	require.NoError(t, err)
	assert.Len(t, res.Output, len(big))
	assert.Equal(t, 1, stream.Closes)
}

func TestExecChannel_Ephemeral_FreshSessionPerCommand(t *testing.T) {
	first := mocks.NewFakeStream("one")
	second := mocks.NewFakeStream("two")
	runtime := new(mocks.MockContainerRuntime)
	runtime.On("Attach", mock.Anything, "c1", shellAttach).Return(first, nil).Once()
	runtime.On("Attach", mock.Anything, "c1", shellAttach).Return(second, nil).Once()

	ch := NewExecChannel(runtime, "c1", WithExecLogger(quietLogger()))
	res1, err := ch.Exec(context.Background(), "a")
	require.NoError(t, err)
	res2, err := ch.Exec(context.Background(), "b")
	require.NoError(t, err)

	assert.Equal(t, "one", res1.String())
	assert.Equal(t, "two", res2.String())
	assert.Equal(t, 1, first.Closes)
	assert.Equal(t, 1, second.Closes)
}

func TestExecChannel_Ephemeral_AttachErrorSurfaces(t *testing.T) {
	attachErr := errors.New("attach refused")
	runtime := new(mocks.MockContainerRuntime)
	runtime.On("Attach", mock.Anything, "c1", shellAttach).Return(nil, attachErr)

	_, err := NewExecChannel(runtime, "c1", WithExecLogger(quietLogger())).Exec(context.Background(), "true")

	assert.Same(t, attachErr, err)
}

func TestExecChannel_Ephemeral_ReadErrorClosesOnce(t *testing.T) {
	stream := mocks.NewFakeStream()
	stream.ReadErr = errors.New("broken pipe")
	runtime := new(mocks.MockContainerRuntime)
	runtime.On("Attach", mock.Anything, "c1", shellAttach).Return(stream, nil)

	_, err := NewExecChannel(runtime, "c1", WithExecLogger(quietLogger())).Exec(context.Background(), "true")

	assert.ErrorIs(t, err, stream.ReadErr)
	assert.Equal(t, 1, stream.Closes)
}

func TestExecChannel_Ephemeral_CancelledRead(t *testing.T) {
	stream := mocks.NewFakeStream()
	stream.Block = true
	runtime := new(mocks.MockContainerRuntime)
	runtime.On("Attach", mock.Anything, "c1", shellAttach).Return(stream, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := NewExecChannel(runtime, "c1", WithExecLogger(quietLogger())).Exec(ctx, "sleep 100")

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, stream.Closes)
}

func TestExecChannel_Ephemeral_NonASCIIReplaced(t *testing.T) {
	stream := mocks.NewFakeStream()
	runtime := new(mocks.MockContainerRuntime)
	runtime.On("Attach", mock.Anything, "c1", shellAttach).Return(stream, nil)

	_, err := NewExecChannel(runtime, "c1", WithExecLogger(quietLogger())).Exec(context.Background(), "echo café")

	require.NoError(t, err)
	assert.Equal(t, "echo caf?\n", stream.Output())
}

// shellStream answers every marker echo the way a shell would, after the
// scripted output of the command.
func shellStream(outputs ...[]string) *mocks.FakeStream {
	stream := mocks.NewFakeStream()
	stream.Block = true
	next := 0
	stream.OnWrite = func(s *mocks.FakeStream, p []byte) {
		input := strings.TrimSuffix(string(p), "\n")
		marker := input[strings.LastIndex(input, "echo ")+len("echo "):]
		var chunks []string
		if next < len(outputs) {
			chunks = outputs[next]
		}
		next++
		s.Push(append(chunks, marker+"\n")...)
	}
	return stream
}

func TestExecChannel_Persistent_SharesOneSession(t *testing.T) {
	stream := shellStream(
		[]string{"hello\n"},
		[]string{"/tm", "p\n"},
	)
	runtime := new(mocks.MockContainerRuntime)
	runtime.On("Attach", mock.Anything, "c1", shellAttach).Return(stream, nil).Once()

	ch := NewExecChannel(runtime, "c1", WithSessionMode(Persistent), WithExecLogger(quietLogger()))
	require.NoError(t, ch.Open(context.Background()))
	require.NoError(t, ch.Open(context.Background()))

	res, err := ch.Exec(context.Background(), "echo hello")
	require.NoError(t, err)
	assert.Equal(t, "hello\n", res.String())
	assert.True(t, res.EOF)

	res, err = ch.Exec(context.Background(), "cd /tmp && pwd")
	require.NoError(t, err)
	assert.Equal(t, "/tmp\n", res.String())

	assert.Equal(t, 0, stream.Closes)
	assert.Equal(t, 0, stream.CloseWrites)
	require.NoError(t, ch.Close())
	assert.Equal(t, 1, stream.Closes)
	runtime.AssertNumberOfCalls(t, "Attach", 1)
}

func TestExecChannel_Persistent_MarkerSplitAcrossChunks(t *testing.T) {
	stream := mocks.NewFakeStream()
	stream.Block = true
	stream.OnWrite = func(s *mocks.FakeStream, p []byte) {
		s.Push("out", "put\n__end", "_1\nleft")
	}
	runtime := new(mocks.MockContainerRuntime)
	runtime.On("Attach", mock.Anything, "c1", shellAttach).Return(stream, nil)

	ch := NewExecChannel(runtime, "c1", WithSessionMode(Persistent), WithExecLogger(quietLogger()))
	ch.newMarker = func() string { return "__end_1" }
	require.NoError(t, ch.Open(context.Background()))

	res, err := ch.Exec(context.Background(), "echo output")
	require.NoError(t, err)
	assert.Equal(t, "output\n", res.String())
	assert.Equal(t, "left", string(ch.carry))
	assert.Equal(t, "{ echo output\n} </dev/null 2>&1; echo __end_1\n", stream.Output())
}

func TestExecChannel_Persistent_ShellExitEndsSession(t *testing.T) {
	stream := mocks.NewFakeStream()
	stream.Block = true
	stream.OnWrite = func(s *mocks.FakeStream, p []byte) {
		s.Push("bye\n")
		s.End()
	}
	runtime := new(mocks.MockContainerRuntime)
	runtime.On("Attach", mock.Anything, "c1", shellAttach).Return(stream, nil)

	ch := NewExecChannel(runtime, "c1", WithSessionMode(Persistent), WithExecLogger(quietLogger()))
	require.NoError(t, ch.Open(context.Background()))

	res, err := ch.Exec(context.Background(), "echo bye; exit")
	require.NoError(t, err)
	assert.Equal(t, "bye\n", res.String())
	assert.True(t, res.EOF)
	assert.Equal(t, 1, stream.Closes)

	_, err = ch.Exec(context.Background(), "true")
	assert.ErrorIs(t, err, domain.ErrSessionClosed)
}

func TestExecChannel_Persistent_RequiresOpen(t *testing.T) {
	runtime := new(mocks.MockContainerRuntime)

	ch := NewExecChannel(runtime, "c1", WithSessionMode(Persistent), WithExecLogger(quietLogger()))
	_, err := ch.Exec(context.Background(), "true")

	assert.ErrorIs(t, err, domain.ErrSessionClosed)
	runtime.AssertNotCalled(t, "Attach", mock.Anything, mock.Anything, mock.Anything)
}

func TestExecChannel_Persistent_CancelClosesSession(t *testing.T) {
	stream := mocks.NewFakeStream()
	stream.Block = true
	runtime := new(mocks.MockContainerRuntime)
	runtime.On("Attach", mock.Anything, "c1", shellAttach).Return(stream, nil)

	ch := NewExecChannel(runtime, "c1", WithSessionMode(Persistent), WithExecLogger(quietLogger()))
	require.NoError(t, ch.Open(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := ch.Exec(ctx, "sleep 100")

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, stream.Closes)
	require.NoError(t, ch.Close())
	assert.Equal(t, 1, stream.Closes)
}

func TestExecChannel_WithShell(t *testing.T) {
	opts := shellAttach
	opts.Shell = []string{"/bin/bash", "-l"}
	stream := mocks.NewFakeStream("ok")
	runtime := new(mocks.MockContainerRuntime)
	runtime.On("Attach", mock.Anything, "c1", opts).Return(stream, nil)

	ch := NewExecChannel(runtime, "c1", WithShell("/bin/bash", "-l"), WithExecLogger(quietLogger()))
	res, err := ch.Exec(context.Background(), "true")

	require.NoError(t, err)
	assert.Equal(t, "ok", res.String())
	assert.Equal(t, Ephemeral, ch.Mode())
}

func TestPersistentInput(t *testing.T) {
	tests := []struct {
		name    string
		command string
		want    string
	}{
		{name: "command", command: "cd /tmp", want: "{ cd /tmp\n} </dev/null 2>&1; echo __end\n"},
		{name: "trailing comment", command: "true # done", want: "{ true # done\n} </dev/null 2>&1; echo __end\n"},
		{name: "empty", command: "  ", want: "{ :\n} </dev/null 2>&1; echo __end\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, string(persistentInput(tt.command, "__end")))
		})
	}
}
