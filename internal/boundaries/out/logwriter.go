package out

// LogSink receives the output lines of a fixture container.
// Implementations must tolerate calls from a background goroutine.
type LogSink interface {
	// WriteLine records one line of container output, without its line terminator.
	WriteLine(containerID, line string)
}

// ContainerLogWriter is a LogSink that persists lines and holds resources.
type ContainerLogWriter interface {
	LogSink

	// Path reports where a container's lines are persisted.
	Path(containerID string) string

	// Release closes whatever was opened for a container.
	Release(containerID string) error

	// Close releases all resources.
	Close() error
}
