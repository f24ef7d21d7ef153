package fixture

import (
	"context"
	"errors"
	"fmt"
	"net"
	"slices"
	"strconv"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/bnema/ephemera/internal/boundaries/out"
	"github.com/bnema/ephemera/internal/domain"
	"github.com/bnema/ephemera/pkg/docker"
)

// Fixture drives one disposable container from creation to removal.
// A Fixture is not safe for concurrent use and cannot be restarted after Stop.
type Fixture struct {
	runtime     out.ContainerRuntime
	spec        domain.ContainerSpec
	name        string
	labels      []domain.KeyValue
	auth        *out.RegistryAuth
	sink        out.LogSink
	log         *log.Logger
	pollerOpts  []PollerOption
	inContainer func() bool

	state       domain.FixtureState
	id          string
	last        *domain.InspectionState
	cancelRelay context.CancelFunc
	relayDone   <-chan struct{}
}

// Option configures a Fixture.
type Option func(*Fixture)

// WithLogger sets the logger used by the fixture and its helpers.
func WithLogger(l *log.Logger) Option {
	return func(f *Fixture) {
		if l != nil {
			f.log = l
		}
	}
}

// WithLogSink sets where container output goes. Defaults to the logger.
func WithLogSink(sink out.LogSink) Option {
	return func(f *Fixture) {
		f.sink = sink
	}
}

// WithRegistryAuth sets the credentials used when the image must be pulled.
func WithRegistryAuth(auth *out.RegistryAuth) Option {
	return func(f *Fixture) {
		f.auth = auth
	}
}

// WithName names the container when the spec does not.
func WithName(name string) Option {
	return func(f *Fixture) {
		if name != "" {
			f.name = name
		}
	}
}

// WithLabels adds labels applied before the spec's own labels.
func WithLabels(labels ...domain.KeyValue) Option {
	return func(f *Fixture) {
		f.labels = append(f.labels, labels...)
	}
}

// WithPollerOptions tunes the readiness wait.
func WithPollerOptions(opts ...PollerOption) Option {
	return func(f *Fixture) {
		f.pollerOpts = append(f.pollerOpts, opts...)
	}
}

// WithContainerDetector replaces the marker-file check used for host resolution.
func WithContainerDetector(detect func() bool) Option {
	return func(f *Fixture) {
		if detect != nil {
			f.inContainer = detect
		}
	}
}

// New creates an unstarted fixture. The spec is copied; later changes to it
// have no effect.
func New(runtime out.ContainerRuntime, spec domain.ContainerSpec, opts ...Option) *Fixture {
	f := &Fixture{
		runtime:     runtime,
		spec:        spec.Clone(),
		name:        "ephemera-" + uuid.NewString()[:8],
		log:         log.Default(),
		inContainer: docker.IsRunningInContainer,
		state:       domain.StateUnstarted,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.spec.Name != "" {
		f.name = f.spec.Name
	}
	return f
}

// ID returns the container ID, empty before creation.
func (f *Fixture) ID() string {
	return f.id
}

// Name returns the container name.
func (f *Fixture) Name() string {
	return f.name
}

// State returns the lifecycle state.
func (f *Fixture) State() domain.FixtureState {
	return f.state
}

// LastInspection returns the most recent inspection snapshot, kept after Stop.
func (f *Fixture) LastInspection() *domain.InspectionState {
	return f.last
}

// Start brings the container up and returns once the runtime reports it running.
// Failures before the container is started leave any created container in place.
func (f *Fixture) Start(ctx context.Context) error {
	switch f.state {
	case domain.StateUnstarted:
	case domain.StateStopped:
		return domain.ErrFixtureStopped
	default:
		return domain.ErrContainerStarted
	}

	logger := f.log.With("fixture", f.name)

	req, err := Assemble(f.creationSpec())
	if err != nil {
		return err
	}

	if err := NewImageResolver(f.runtime, f.auth, logger).Ensure(ctx, f.spec.Image); err != nil {
		return err
	}

	id, err := f.runtime.CreateContainer(ctx, req)
	if err != nil {
		return err
	}
	f.id = id
	f.state = domain.StateCreated
	logger = logger.With("container_id", domain.ShortID(id))
	logger.Debug("Container created", "image", f.spec.Image)

	acked, err := f.runtime.StartContainer(ctx, id)
	if err != nil {
		return err
	}
	f.state = domain.StateStarted

	if acked {
		relayCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		f.cancelRelay = cancel
		f.relayDone = NewLogRelay(f.runtime, f.sink, logger).Start(relayCtx, id)
	} else {
		logger.Warn("Runtime did not acknowledge container start, skipping log relay")
	}

	pollerOpts := append([]PollerOption{WithPollerLogger(logger)}, f.pollerOpts...)
	state, err := NewReadinessPoller(f.runtime, pollerOpts...).AwaitRunning(ctx, id)
	if err != nil {
		var launchErr *domain.ContainerLaunchError
		if errors.As(err, &launchErr) && launchErr.Last != nil {
			f.last = launchErr.Last
		}
		f.state = domain.StateFailed
		return err
	}

	f.last = state
	f.state = domain.StateRunning
	logger.Info("Fixture running", "image", f.spec.Image)
	return nil
}

// creationSpec is the spec handed to the assembler: the fixture's name and
// ownership labels applied, the caller's labels winning on conflict.
func (f *Fixture) creationSpec() domain.ContainerSpec {
	spec := f.spec.Clone()
	spec.Name = f.name

	labels := []domain.KeyValue{
		{Key: domain.LabelManaged, Value: domain.ManagedByValue},
		{Key: domain.LabelFixture, Value: f.name},
		{Key: domain.LabelImage, Value: f.spec.Image},
	}
	labels = append(labels, f.labels...)
	spec.Labels = append(labels, spec.Labels...)
	return spec
}

// Stop stops and then removes the container. Without a container it does
// nothing. Removal is only attempted once the stop succeeded; neither call
// is retried.
func (f *Fixture) Stop(ctx context.Context) error {
	if f.id == "" || f.state == domain.StateStopped {
		return nil
	}

	if f.cancelRelay != nil {
		f.cancelRelay()
		f.cancelRelay = nil
	}

	logger := f.log.With("fixture", f.name, "container_id", domain.ShortID(f.id))

	if err := f.runtime.StopContainer(ctx, f.id); err != nil {
		logger.Error("Failed to stop container", "error", err)
		return err
	}
	f.state = domain.StateStopped

	if err := f.runtime.RemoveContainer(ctx, f.id); err != nil {
		logger.Error("Failed to remove container", "error", err)
		return err
	}

	logger.Info("Fixture stopped")
	return nil
}

// Wait blocks until the log relay has drained or ctx is done.
func (f *Fixture) Wait(ctx context.Context) error {
	if f.relayDone == nil {
		return nil
	}
	select {
	case <-f.relayDone:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ExecuteCommand runs args in the container without attaching to it and
// returns the exec ID. Output is not collected; use OpenExec for that.
func (f *Fixture) ExecuteCommand(ctx context.Context, args ...string) (string, error) {
	if f.state != domain.StateRunning {
		return "", fmt.Errorf("%w: fixture is %s", domain.ErrContainerNotRunning, f.state)
	}
	if len(args) == 0 {
		return "", &domain.ConfigurationError{Field: "command", Reason: "no command given"}
	}

	execID, err := f.runtime.ExecCreate(ctx, f.id, out.ExecConfig{Cmd: slices.Clone(args)})
	if err != nil {
		return "", err
	}
	if err := f.runtime.ExecStart(ctx, execID); err != nil {
		return "", err
	}

	f.log.Debug("Command started", "container_id", domain.ShortID(f.id), "exec_id", domain.ShortID(execID), "cmd", args)
	return execID, nil
}

// OpenExec returns a channel for running shell commands and reading their
// output. Persistent channels are opened before they are returned.
func (f *Fixture) OpenExec(ctx context.Context, opts ...ExecOption) (*ExecChannel, error) {
	if f.state != domain.StateRunning {
		return nil, fmt.Errorf("%w: fixture is %s", domain.ErrContainerNotRunning, f.state)
	}

	opts = append([]ExecOption{WithExecLogger(f.log)}, opts...)
	ch := NewExecChannel(f.runtime, f.id, opts...)
	if err := ch.Open(ctx); err != nil {
		return nil, err
	}
	return ch, nil
}

// Inspect refreshes the cached inspection snapshot.
func (f *Fixture) Inspect(ctx context.Context) (*domain.InspectionState, error) {
	if f.id == "" {
		return nil, fmt.Errorf("%w: fixture is %s", domain.ErrContainerNotRunning, f.state)
	}
	state, err := f.runtime.InspectContainer(ctx, f.id)
	if err != nil {
		return nil, err
	}
	f.last = state
	return state, nil
}

// HostAddress returns the host at which published ports are reachable.
func (f *Fixture) HostAddress() (string, bool) {
	return ResolveHost(f.runtime.Endpoint(), f.inContainer(), f.last)
}

// MappedPort returns the host port published for containerPort, as seen by
// the last inspection.
func (f *Fixture) MappedPort(containerPort int) (int, bool) {
	if f.last == nil {
		return 0, false
	}
	port, ok := f.last.Ports[containerPort]
	return port, ok
}

// Address returns host:port for reaching containerPort from this process.
func (f *Fixture) Address(containerPort int) (string, error) {
	host, ok := f.HostAddress()
	if !ok {
		endpoint := f.runtime.Endpoint()
		return "", fmt.Errorf("cannot resolve host for endpoint %s://%s", endpoint.Scheme, endpoint.Host)
	}

	port, ok := f.MappedPort(containerPort)
	if !ok {
		return "", fmt.Errorf("port %d is not published", containerPort)
	}
	return net.JoinHostPort(host, strconv.Itoa(port)), nil
}
