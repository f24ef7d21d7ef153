package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnema/ephemera/internal/domain"
)

const sampleConfig = `
runtime:
  host: tcp://10.0.0.5:2376
  stop_timeout: 5s
readiness:
  timeout: 30s
  initial_interval: 100ms
  max_interval: 2s
logging:
  level: debug
  dir: /tmp/ephemera-logs
registry:
  username: bob
  password: s3cret
labels:
  team: core
  ci: "true"
fixture:
  name: db
  image: postgres:16
  ports: [5432]
  bind:
    5432: 15432
  env:
    - POSTGRES_PASSWORD=secret
    - POSTGRES_DB=app
  mounts:
    - source: /tmp/pgdata
      target: /var/lib/postgresql/data
  command: ["postgres", "-c", "fsync=off"]
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ConfigFileName)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_File(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig), true)
	require.NoError(t, err)

	assert.Equal(t, "tcp://10.0.0.5:2376", cfg.Runtime.Host)
	assert.Equal(t, 5*time.Second, cfg.Runtime.StopTimeout)
	assert.Equal(t, 30*time.Second, cfg.Readiness.Timeout)
	assert.Equal(t, 100*time.Millisecond, cfg.Readiness.InitialInterval)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "/tmp/ephemera-logs", cfg.Logging.Dir)
	// Unset keys keep their defaults.
	assert.Equal(t, 3, cfg.Logging.MaxBackups)
	assert.True(t, cfg.Registry.Enabled())
	assert.Equal(t, []domain.KeyValue{{Key: "ci", Value: "true"}, {Key: "team", Value: "core"}}, cfg.LabelPairs())

	spec, err := cfg.Fixture.Spec()
	require.NoError(t, err)
	assert.Equal(t, "db", spec.Name)
	assert.Equal(t, "postgres:16", spec.Image)
	assert.Equal(t, []int{5432}, spec.ExposedPorts)
	assert.Equal(t, map[int]int{5432: 15432}, spec.PortBindings)
	assert.Equal(t, []domain.KeyValue{
		{Key: "POSTGRES_PASSWORD", Value: "secret"},
		{Key: "POSTGRES_DB", Value: "app"},
	}, spec.Env)
	assert.Equal(t, []domain.Mount{{Source: "/tmp/pgdata", Target: "/var/lib/postgresql/data", Kind: domain.MountBind}}, spec.Mounts)
	assert.Equal(t, []string{"postgres", "-c", "fsync=off"}, spec.Command)
}

func TestLoad_MissingFile(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope.yml")

	cfg, err := Load(missing, false)
	require.NoError(t, err)
	assert.Equal(t, Default().Readiness, cfg.Readiness)

	_, err = Load(missing, true)
	assert.Error(t, err)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Setenv("EPHEMERA_RUNTIME_HOST", "unix:///run/user/1000/podman/podman.sock")
	t.Setenv("EPHEMERA_READINESS_TIMEOUT", "2m")
	t.Setenv("EPHEMERA_LOG_LEVEL", "warn")
	t.Setenv("EPHEMERA_IMAGE", "redis:7")

	cfg, err := Load(writeConfig(t, sampleConfig), true)
	require.NoError(t, err)

	assert.Equal(t, "unix:///run/user/1000/podman/podman.sock", cfg.Runtime.Host)
	assert.Equal(t, 2*time.Minute, cfg.Readiness.Timeout)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, "redis:7", cfg.Fixture.Image)
}

func TestLoad_InvalidEnvDuration(t *testing.T) {
	t.Setenv("EPHEMERA_STOP_TIMEOUT", "soon")

	_, err := Load("", false)
	assert.ErrorContains(t, err, "EPHEMERA_STOP_TIMEOUT")
}

func TestLoad_EnvFile(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("EPHEMERA_REGISTRY_USERNAME=alice\n"), 0o644))
	t.Setenv("EPHEMERA_REGISTRY_USERNAME", "")
	require.NoError(t, os.Unsetenv("EPHEMERA_REGISTRY_USERNAME"))

	require.NoError(t, LoadEnvFiles(envFile))
	cfg, err := Load("", false)
	require.NoError(t, err)
	assert.Equal(t, "alice", cfg.Registry.Username)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		field  string
	}{
		{"zero timeout", func(c *Config) { c.Readiness.Timeout = 0 }, "readiness.timeout"},
		{"negative interval", func(c *Config) { c.Readiness.InitialInterval = -time.Second }, "readiness"},
		{"unknown level", func(c *Config) { c.Logging.Level = "verbose" }, "logging.level"},
		{"bad mount", func(c *Config) { c.Fixture.Mounts = []MountSpec{{Type: "nfs"}} }, "fixture.mounts"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)

			err := cfg.Validate()
			var cfgErr *domain.ConfigurationError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}

	assert.NoError(t, Default().Validate())
}

func TestParsePairs(t *testing.T) {
	pairs, err := ParsePairs("env", []string{"A=1", "B=x=y", "C="})
	require.NoError(t, err)
	assert.Equal(t, []domain.KeyValue{{Key: "A", Value: "1"}, {Key: "B", Value: "x=y"}, {Key: "C", Value: ""}}, pairs)

	_, err = ParsePairs("env", []string{"novalue"})
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)
}

func TestParsePortBinding(t *testing.T) {
	tests := []struct {
		input     string
		container int
		host      int
		wantErr   bool
	}{
		{"80", 80, 80, false},
		{"8080:80", 80, 8080, false},
		{"x:80", 0, 0, true},
		{"http", 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			container, host, err := ParsePortBinding(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.container, container)
			assert.Equal(t, tt.host, host)
		})
	}
}
