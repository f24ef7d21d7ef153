package fixture

import (
	"bufio"
	"context"
	"io"
	"strings"

	"github.com/charmbracelet/log"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/bnema/ephemera/internal/boundaries/out"
	"github.com/bnema/ephemera/internal/domain"
)

const maxLogLine = 1024 * 1024

// LogSource opens the combined stdout/stderr stream of a container.
type LogSource interface {
	ContainerLogs(ctx context.Context, containerID string) (io.ReadCloser, error)
}

// LogRelay forwards container output to a sink, one line at a time.
// It is best effort: nothing it encounters is reported to the caller.
type LogRelay struct {
	source LogSource
	sink   out.LogSink
	log    *log.Logger
}

// NewLogRelay creates a relay. A nil sink relays to the logger.
func NewLogRelay(source LogSource, sink out.LogSink, logger *log.Logger) *LogRelay {
	if logger == nil {
		logger = log.Default()
	}
	if sink == nil {
		sink = NewLoggerSink(logger)
	}
	return &LogRelay{source: source, sink: sink, log: logger}
}

// Start relays in the background until the stream ends or ctx is cancelled.
// The returned channel is closed when the relay is done.
func (r *LogRelay) Start(ctx context.Context, containerID string) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.run(ctx, containerID)
	}()
	return done
}

func (r *LogRelay) run(ctx context.Context, containerID string) {
	stream, err := r.source.ContainerLogs(ctx, containerID)
	if err != nil {
		r.log.Warn("Failed to open container log stream", "container_id", domain.ShortID(containerID), "error", err)
		return
	}

	// Closing the stream is what unblocks a pending read on cancellation.
	stop := context.AfterFunc(ctx, func() { stream.Close() })
	defer func() {
		if stop() {
			stream.Close()
		}
	}()

	n, err := relayLines(transform.NewReader(stream, unicode.UTF8.NewDecoder()), func(line string) {
		r.sink.WriteLine(containerID, line)
	})
	if err != nil && ctx.Err() == nil {
		r.log.Debug("Container log stream ended with error", "container_id", domain.ShortID(containerID), "lines", n, "error", err)
		return
	}
	r.log.Debug("Container log stream closed", "container_id", domain.ShortID(containerID), "lines", n)
}

// relayLines calls emit for every line of rd, without line terminators.
func relayLines(rd io.Reader, emit func(string)) (int, error) {
	scanner := bufio.NewScanner(rd)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLogLine)

	n := 0
	for scanner.Scan() {
		emit(strings.TrimSuffix(scanner.Text(), "\r"))
		n++
	}
	return n, scanner.Err()
}

// LoggerSink writes container output to a logger.
type LoggerSink struct {
	log *log.Logger
}

// NewLoggerSink creates a sink logging each line at info level.
func NewLoggerSink(l *log.Logger) *LoggerSink {
	return &LoggerSink{log: l}
}

// WriteLine implements out.LogSink.
func (s *LoggerSink) WriteLine(containerID, line string) {
	s.log.Info(line, "container_id", domain.ShortID(containerID))
}

// MultiSink fans lines out to several sinks.
type MultiSink []out.LogSink

// WriteLine implements out.LogSink.
func (m MultiSink) WriteLine(containerID, line string) {
	for _, s := range m {
		s.WriteLine(containerID, line)
	}
}
