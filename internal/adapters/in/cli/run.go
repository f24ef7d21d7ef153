package cli

import (
	"context"
	"fmt"
	"io"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/bnema/ephemera/internal/config"
	"github.com/bnema/ephemera/internal/domain"
	"github.com/bnema/ephemera/internal/usecase/fixture"
)

// drainTimeout bounds how long run waits for the last container output after Stop.
const drainTimeout = 5 * time.Second

type runOptions struct {
	publish    []string
	env        []string
	labels     []string
	mounts     []string
	name       string
	execs      []string
	persistent bool
	keep       bool
	timeout    time.Duration
}

func newRunCmd(root *rootOptions) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run [IMAGE] [COMMAND...]",
		Short: "Start a fixture container, run commands in it and remove it",
		Long: `Start a container and wait until it is running, then print the address
of each published port. Commands given with --exec are run inside the
container and their output printed. The container is stopped and removed
when the command returns, or on interrupt when --keep is set.

The image and fixture settings default to the "fixture" section of the
config file; flags add to it.`,
		Example: `  ephemera run -p 8080:80 nginx:alpine
  ephemera run -p 5432 -e POSTGRES_PASSWORD=secret postgres:16 --keep
  ephemera run alpine:3 sleep 300 --persistent --exec 'cd /tmp' --exec pwd`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFixture(cmd.Context(), cmd.OutOrStdout(), root, opts, args)
		},
	}

	flags := cmd.Flags()
	flags.StringArrayVarP(&opts.publish, "publish", "p", nil, "Publish a container port (CONTAINER or HOST:CONTAINER)")
	flags.StringArrayVarP(&opts.env, "env", "e", nil, "Set an environment variable (KEY=VALUE)")
	flags.StringArrayVarP(&opts.labels, "label", "l", nil, "Set a container label (KEY=VALUE)")
	flags.StringArrayVarP(&opts.mounts, "mount", "m", nil, "Mount SOURCE:TARGET[:bind|volume|tmpfs]")
	flags.StringVar(&opts.name, "name", "", "Container name (default generated)")
	flags.StringArrayVarP(&opts.execs, "exec", "x", nil, "Run a shell command in the fixture once it is running")
	flags.BoolVar(&opts.persistent, "persistent", false, "Run all --exec commands in one shell session")
	flags.BoolVar(&opts.keep, "keep", false, "Keep the fixture running until interrupted")
	flags.DurationVar(&opts.timeout, "timeout", 0, "How long to wait for the container to run (default from config)")

	return cmd
}

func runFixture(ctx context.Context, w io.Writer, root *rootOptions, opts *runOptions, args []string) error {
	a, err := root.newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	spec, err := buildSpec(a.cfg.Fixture, opts, args)
	if err != nil {
		return err
	}
	if opts.timeout > 0 {
		a.cfg.Readiness.Timeout = opts.timeout
	}

	if _, err := a.runtime.Ping(ctx); err != nil {
		return err
	}

	sink, files, err := a.logSinks()
	if err != nil {
		return err
	}
	if files != nil {
		defer files.Close()
	}

	fx := fixture.New(a.runtime, spec,
		fixture.WithLogger(a.log),
		fixture.WithLogSink(sink),
		fixture.WithRegistryAuth(a.registryAuth()),
		fixture.WithLabels(a.cfg.LabelPairs()...),
		fixture.WithPollerOptions(a.pollerOptions()...),
	)

	// Cleanup must run even when ctx was cancelled by an interrupt.
	defer func() {
		cleanupCtx := context.WithoutCancel(ctx)
		if err := fx.Stop(cleanupCtx); err != nil {
			_ = cliWriteLine(w, cliRenderError(fmt.Sprintf("failed to remove %s: %v", fx.Name(), err)))
			return
		}

		drainCtx, cancel := context.WithTimeout(cleanupCtx, drainTimeout)
		defer cancel()
		_ = fx.Wait(drainCtx)

		if files != nil && fx.ID() != "" {
			_ = cliWriteLine(w, cliRenderMeta("Logs", files.Path(fx.ID())))
			_ = files.Release(fx.ID())
		}
	}()

	if err := fx.Start(ctx); err != nil {
		return err
	}

	if err := printFixture(w, fx, spec); err != nil {
		return err
	}

	if len(opts.execs) > 0 {
		if err := runCommands(ctx, w, fx, opts.execs, opts.persistent); err != nil {
			return err
		}
	}

	if opts.keep {
		_ = cliWriteLine(w, cliRenderMuted("Press Ctrl+C to stop the fixture"))
		<-ctx.Done()
	}
	return nil
}

// buildSpec layers the command line over the configured fixture.
func buildSpec(base config.FixtureConfig, opts *runOptions, args []string) (domain.ContainerSpec, error) {
	fc := base
	fc.Ports = slices.Clone(base.Ports)
	fc.Bind = maps.Clone(base.Bind)
	fc.Env = append(slices.Clone(base.Env), opts.env...)
	fc.Labels = append(slices.Clone(base.Labels), opts.labels...)
	fc.Mounts = slices.Clone(base.Mounts)

	if len(args) > 0 {
		fc.Image = args[0]
		if len(args) > 1 {
			fc.Command = slices.Clone(args[1:])
		}
	}
	if opts.name != "" {
		fc.Name = opts.name
	}

	for _, p := range opts.publish {
		containerPort, hostPort, err := config.ParsePortBinding(p)
		if err != nil {
			return domain.ContainerSpec{}, err
		}
		if !slices.Contains(fc.Ports, containerPort) {
			fc.Ports = append(fc.Ports, containerPort)
		}
		if fc.Bind == nil {
			fc.Bind = make(map[int]int)
		}
		fc.Bind[containerPort] = hostPort
	}

	for _, m := range opts.mounts {
		mount, err := parseMount(m)
		if err != nil {
			return domain.ContainerSpec{}, err
		}
		fc.Mounts = append(fc.Mounts, mount)
	}

	if fc.Image == "" {
		return domain.ContainerSpec{}, &domain.ConfigurationError{Field: "image", Reason: "no image given"}
	}
	return fc.Spec()
}

// parseMount parses SOURCE:TARGET[:TYPE]. The type defaults to a bind mount.
func parseMount(s string) (config.MountSpec, error) {
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 || parts[1] == "" {
		return config.MountSpec{}, &domain.ConfigurationError{Field: "mounts", Reason: fmt.Sprintf("%q is not SOURCE:TARGET[:TYPE]", s)}
	}

	m := config.MountSpec{Source: parts[0], Target: parts[1], Type: string(domain.MountBind)}
	if len(parts) == 3 {
		switch kind := domain.MountKind(parts[2]); kind {
		case domain.MountBind, domain.MountVolume, domain.MountTmpfs:
			m.Type = string(kind)
		default:
			return config.MountSpec{}, &domain.ConfigurationError{Field: "mounts", Reason: fmt.Sprintf("unknown mount type %q", parts[2])}
		}
	}
	return m, nil
}

func printFixture(w io.Writer, fx *fixture.Fixture, spec domain.ContainerSpec) error {
	lines := []string{
		cliRenderSuccess(fmt.Sprintf("Fixture %s is running", fx.Name())),
		cliRenderMeta("Image", spec.Image),
		cliRenderMeta("ID", domain.ShortID(fx.ID())),
	}

	ports := slices.Clone(spec.ExposedPorts)
	slices.Sort(ports)
	for _, port := range ports {
		addr, err := fx.Address(port)
		if err != nil {
			lines = append(lines, cliRenderWarning(fmt.Sprintf("%d: %v", port, err)))
			continue
		}
		lines = append(lines, cliRenderMeta(strconv.Itoa(port), addr))
	}

	for _, line := range lines {
		if err := cliWriteLine(w, line); err != nil {
			return err
		}
	}
	return nil
}

func runCommands(ctx context.Context, w io.Writer, fx *fixture.Fixture, commands []string, persistent bool) error {
	mode := fixture.Ephemeral
	if persistent {
		mode = fixture.Persistent
	}

	ch, err := fx.OpenExec(ctx, fixture.WithSessionMode(mode))
	if err != nil {
		return err
	}
	defer ch.Close()

	_ = cliWriteLine(w, cliRenderTitle(fmt.Sprintf("Commands (%s shell)", ch.Mode())))
	for _, command := range commands {
		res, err := ch.Exec(ctx, command)
		if err != nil {
			return fmt.Errorf("command %q: %w", command, err)
		}
		if err := cliWriteLine(w, cliRenderCommand(command, res.String())); err != nil {
			return err
		}
	}
	return nil
}
