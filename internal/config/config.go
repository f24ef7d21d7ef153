// Package config loads ephemera settings from a YAML file, .env files and
// EPHEMERA_* environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/bnema/ephemera/internal/domain"
)

const (
	EnvPrefix      = "EPHEMERA_"
	ConfigFileName = "config.yml"
)

type Config struct {
	Runtime   RuntimeConfig     `yaml:"runtime"`
	Readiness ReadinessConfig   `yaml:"readiness"`
	Logging   LoggingConfig     `yaml:"logging"`
	Registry  RegistryConfig    `yaml:"registry"`
	Labels    map[string]string `yaml:"labels"`
	Fixture   FixtureConfig     `yaml:"fixture"`
}

type RuntimeConfig struct {
	// Host is the daemon address; empty defers to DOCKER_HOST.
	Host        string        `yaml:"host"`
	StopTimeout time.Duration `yaml:"stop_timeout"`
}

type ReadinessConfig struct {
	Timeout         time.Duration `yaml:"timeout"`
	InitialInterval time.Duration `yaml:"initial_interval"`
	MaxInterval     time.Duration `yaml:"max_interval"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	// Dir receives one rotated file per container; empty disables file logs.
	Dir        string `yaml:"dir"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
	Compress   bool   `yaml:"compress"`
}

type RegistryConfig struct {
	Username      string `yaml:"username"`
	Password      string `yaml:"password"`
	ServerAddress string `yaml:"server_address"`
}

// Enabled reports whether credentials were configured.
func (r RegistryConfig) Enabled() bool {
	return r.Username != "" || r.Password != ""
}

type FixtureConfig struct {
	Name    string      `yaml:"name"`
	Image   string      `yaml:"image"`
	Ports   []int       `yaml:"ports"`
	Bind    map[int]int `yaml:"bind"`
	Env     []string    `yaml:"env"`
	Labels  []string    `yaml:"labels"`
	Mounts  []MountSpec `yaml:"mounts"`
	Command []string    `yaml:"command"`
}

type MountSpec struct {
	Source string `yaml:"source"`
	Target string `yaml:"target"`
	Type   string `yaml:"type"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Runtime: RuntimeConfig{
			StopTimeout: 10 * time.Second,
		},
		Readiness: ReadinessConfig{
			Timeout:         time.Minute,
			InitialInterval: 50 * time.Millisecond,
			MaxInterval:     time.Second,
		},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     7,
			Compress:   true,
		},
	}
}

// DefaultPath returns the per-user config file location.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ConfigFileName
	}
	return filepath.Join(dir, "ephemera", ConfigFileName)
}

// LoadEnvFiles loads .env files into the process environment without
// overriding variables that are already set.
func LoadEnvFiles(paths ...string) error {
	if len(paths) == 0 {
		return nil
	}
	if err := godotenv.Load(paths...); err != nil {
		return fmt.Errorf("error loading env file: %w", err)
	}
	return nil
}

// Load reads path over the defaults and applies environment overrides.
// A missing file is not an error unless required is set.
func Load(path string, required bool) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("error unmarshalling configuration file: %w", err)
			}
		case errors.Is(err, os.ErrNotExist) && !required:
		default:
			return nil, fmt.Errorf("error reading configuration file: %w", err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(EnvPrefix + key); ok {
			*dst = v
		}
	}
	dur := func(key string, dst *time.Duration) error {
		v, ok := lookup(EnvPrefix + key)
		if !ok {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s%s: %w", EnvPrefix, key, err)
		}
		*dst = d
		return nil
	}

	str("RUNTIME_HOST", &c.Runtime.Host)
	str("LOG_LEVEL", &c.Logging.Level)
	str("LOG_DIR", &c.Logging.Dir)
	str("REGISTRY_USERNAME", &c.Registry.Username)
	str("REGISTRY_PASSWORD", &c.Registry.Password)
	str("REGISTRY_SERVER", &c.Registry.ServerAddress)
	str("IMAGE", &c.Fixture.Image)

	if err := dur("STOP_TIMEOUT", &c.Runtime.StopTimeout); err != nil {
		return err
	}
	if err := dur("READINESS_TIMEOUT", &c.Readiness.Timeout); err != nil {
		return err
	}
	if err := dur("POLL_INTERVAL", &c.Readiness.InitialInterval); err != nil {
		return err
	}
	return nil
}

// Validate checks settings that would otherwise fail late.
func (c *Config) Validate() error {
	if c.Readiness.Timeout <= 0 {
		return &domain.ConfigurationError{Field: "readiness.timeout", Reason: "must be positive"}
	}
	if c.Readiness.InitialInterval < 0 || c.Readiness.MaxInterval < 0 {
		return &domain.ConfigurationError{Field: "readiness", Reason: "intervals must not be negative"}
	}
	if c.Runtime.StopTimeout < 0 {
		return &domain.ConfigurationError{Field: "runtime.stop_timeout", Reason: "must not be negative"}
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error", "fatal":
	default:
		return &domain.ConfigurationError{Field: "logging.level", Reason: fmt.Sprintf("unknown level %q", c.Logging.Level)}
	}
	for _, m := range c.Fixture.Mounts {
		switch domain.MountKind(m.Type) {
		case "", domain.MountBind, domain.MountVolume, domain.MountTmpfs:
		default:
			return &domain.ConfigurationError{Field: "fixture.mounts", Reason: fmt.Sprintf("unknown mount type %q", m.Type)}
		}
	}
	return nil
}

// Spec converts the fixture section into a ContainerSpec.
func (f FixtureConfig) Spec() (domain.ContainerSpec, error) {
	env, err := parsePairs("fixture.env", f.Env)
	if err != nil {
		return domain.ContainerSpec{}, err
	}
	labels, err := parsePairs("fixture.labels", f.Labels)
	if err != nil {
		return domain.ContainerSpec{}, err
	}

	spec := domain.ContainerSpec{
		Name:         f.Name,
		Image:        f.Image,
		ExposedPorts: append([]int(nil), f.Ports...),
		Env:          env,
		Labels:       labels,
		Command:      append([]string(nil), f.Command...),
	}
	if len(f.Bind) > 0 {
		spec.PortBindings = make(map[int]int, len(f.Bind))
		for k, v := range f.Bind {
			spec.PortBindings[k] = v
		}
	}
	for _, m := range f.Mounts {
		kind := domain.MountKind(m.Type)
		if kind == "" {
			kind = domain.MountBind
		}
		spec.Mounts = append(spec.Mounts, domain.Mount{Source: m.Source, Target: m.Target, Kind: kind})
	}
	return spec, nil
}

// LabelPairs returns the global labels sorted by key.
func (c *Config) LabelPairs() []domain.KeyValue {
	keys := make([]string, 0, len(c.Labels))
	for k := range c.Labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]domain.KeyValue, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, domain.KeyValue{Key: k, Value: c.Labels[k]})
	}
	return pairs
}

// ParsePairs parses KEY=VALUE items, keeping their order.
func ParsePairs(field string, items []string) ([]domain.KeyValue, error) {
	return parsePairs(field, items)
}

func parsePairs(field string, items []string) ([]domain.KeyValue, error) {
	var pairs []domain.KeyValue
	for _, item := range items {
		key, value, ok := strings.Cut(item, "=")
		if !ok || key == "" {
			return nil, &domain.ConfigurationError{Field: field, Reason: fmt.Sprintf("%q is not KEY=VALUE", item)}
		}
		pairs = append(pairs, domain.KeyValue{Key: key, Value: value})
	}
	return pairs, nil
}

// ParsePortBinding parses "host:container" or a bare container port.
func ParsePortBinding(s string) (container, host int, err error) {
	hostPart, containerPart, found := strings.Cut(s, ":")
	if !found {
		containerPart = hostPart
	}
	container, err = strconv.Atoi(containerPart)
	if err != nil {
		return 0, 0, &domain.ConfigurationError{Field: "ports", Reason: fmt.Sprintf("invalid port %q", s)}
	}
	host = container
	if found {
		host, err = strconv.Atoi(hostPart)
		if err != nil {
			return 0, 0, &domain.ConfigurationError{Field: "ports", Reason: fmt.Sprintf("invalid host port %q", s)}
		}
	}
	return container, host, nil
}
