// Package logwriter persists fixture container output to rotated files.
package logwriter

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/bnema/ephemera/internal/domain"
)

// Config holds the configuration for the log writer.
type Config struct {
	// Dir is the directory where container logs are stored.
	Dir string
	// MaxSize is the maximum size in megabytes before rotation.
	MaxSize int
	// MaxBackups is the number of old log files to retain.
	MaxBackups int
	// MaxAge is the maximum number of days to retain old log files.
	MaxAge int
	// Compress gzips rotated files.
	Compress bool
}

// LogWriter implements out.ContainerLogWriter with one rotating file per container.
type LogWriter struct {
	config Config
	log    *log.Logger
	now    func() time.Time

	mu    sync.Mutex
	files map[string]*lumberjack.Logger
}

// New creates a new LogWriter, creating the log directory if needed.
func New(config Config, logger *log.Logger) (*LogWriter, error) {
	if config.Dir == "" {
		return nil, fmt.Errorf("log directory must not be empty")
	}
	if err := os.MkdirAll(config.Dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	if logger == nil {
		logger = log.Default()
	}

	return &LogWriter{
		config: config,
		log:    logger.With("adapter", "logwriter"),
		now:    time.Now,
		files:  make(map[string]*lumberjack.Logger),
	}, nil
}

// Path returns the file a container's output is written to.
func (w *LogWriter) Path(containerID string) string {
	return filepath.Join(w.config.Dir, sanitizeName(domain.ShortID(containerID))+".log")
}

// WriteLine appends a timestamped line to the container's file.
func (w *LogWriter) WriteLine(containerID, line string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	file, ok := w.files[containerID]
	if !ok {
		file = &lumberjack.Logger{
			Filename:   w.Path(containerID),
			MaxSize:    w.config.MaxSize,
			MaxBackups: w.config.MaxBackups,
			MaxAge:     w.config.MaxAge,
			Compress:   w.config.Compress,
		}
		w.files[containerID] = file
		w.log.Debug("Started container log file", "container_id", domain.ShortID(containerID), "path", file.Filename)
	}

	entry := w.now().UTC().Format(time.RFC3339Nano) + " " + line + "\n"
	if _, err := file.Write([]byte(entry)); err != nil {
		w.log.Warn("Failed to write container log line", "container_id", domain.ShortID(containerID), "error", err)
	}
}

// Release closes the container's file.
func (w *LogWriter) Release(containerID string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	file, ok := w.files[containerID]
	if !ok {
		return nil
	}
	delete(w.files, containerID)
	return file.Close()
}

// Close closes every open file.
func (w *LogWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	var firstErr error
	for containerID, file := range w.files {
		if err := file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(w.files, containerID)
	}
	return firstErr
}

// sanitizeName converts a name to a safe filename.
func sanitizeName(name string) string {
	return strings.NewReplacer(".", "_", "/", "_", ":", "_", " ", "_").Replace(name)
}
