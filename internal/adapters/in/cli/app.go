package cli

import (
	"github.com/charmbracelet/log"

	"github.com/bnema/ephemera/internal/adapters/out/docker"
	"github.com/bnema/ephemera/internal/adapters/out/logwriter"
	"github.com/bnema/ephemera/internal/boundaries/out"
	"github.com/bnema/ephemera/internal/config"
	"github.com/bnema/ephemera/internal/usecase/fixture"
	"github.com/bnema/ephemera/pkg/logger"
)

// app is what a command needs once flags and configuration are resolved.
type app struct {
	cfg     *config.Config
	log     *log.Logger
	runtime *docker.Runtime
}

// loadConfig reads the config file, with flags taking precedence.
// An explicit --config must exist; the default location may not.
func (o *rootOptions) loadConfig() (*config.Config, error) {
	if err := config.LoadEnvFiles(o.envFiles...); err != nil {
		return nil, err
	}

	path, required := o.configPath, true
	if path == "" {
		path, required = config.DefaultPath(), false
	}

	cfg, err := config.Load(path, required)
	if err != nil {
		return nil, err
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	if o.host != "" {
		cfg.Runtime.Host = o.host
	}
	return cfg, nil
}

func (o *rootOptions) newApp() (*app, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}

	// Set the level first: component loggers copy it when created.
	logger.GetLogger().SetLogLevel(cfg.Logging.Level)

	rt, err := docker.NewRuntime(cfg.Runtime.Host,
		docker.WithLogger(logger.Component("docker")),
		docker.WithStopTimeout(cfg.Runtime.StopTimeout),
	)
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:     cfg,
		log:     logger.Component("fixture"),
		runtime: rt,
	}, nil
}

func (a *app) Close() error {
	return a.runtime.Close()
}

func (a *app) registryAuth() *out.RegistryAuth {
	if !a.cfg.Registry.Enabled() {
		return nil
	}
	return &out.RegistryAuth{
		Username:      a.cfg.Registry.Username,
		Password:      a.cfg.Registry.Password,
		ServerAddress: a.cfg.Registry.ServerAddress,
	}
}

// logSinks returns where container output goes: the process log, plus one
// rotated file per container when a log directory is configured.
func (a *app) logSinks() (out.LogSink, out.ContainerLogWriter, error) {
	console := fixture.NewLoggerSink(logger.Component("container"))
	if a.cfg.Logging.Dir == "" {
		return console, nil, nil
	}

	files, err := logwriter.New(logwriter.Config{
		Dir:        a.cfg.Logging.Dir,
		MaxSize:    a.cfg.Logging.MaxSize,
		MaxBackups: a.cfg.Logging.MaxBackups,
		MaxAge:     a.cfg.Logging.MaxAge,
		Compress:   a.cfg.Logging.Compress,
	}, logger.Component("logwriter"))
	if err != nil {
		return nil, nil, err
	}
	return fixture.MultiSink{console, files}, files, nil
}

func (a *app) pollerOptions() []fixture.PollerOption {
	return []fixture.PollerOption{
		fixture.WithReadinessTimeout(a.cfg.Readiness.Timeout),
		fixture.WithPollInterval(a.cfg.Readiness.InitialInterval, a.cfg.Readiness.MaxInterval),
	}
}
