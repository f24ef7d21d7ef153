package fixture

import (
	"errors"
	"testing"

	"github.com/docker/docker/api/types/mount"
	"github.com/docker/go-connections/nat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnema/ephemera/internal/domain"
)

func TestAssemble_IdentityBinding(t *testing.T) {
	req, err := Assemble(domain.ContainerSpec{
		Image:        "nginx",
		ExposedPorts: []int{80},
	})
	require.NoError(t, err)

	assert.Equal(t, nat.PortSet{"80/tcp": {}}, req.Config.ExposedPorts)
	assert.Equal(t, nat.PortMap{
		"80/tcp": {{HostPort: "80"}},
	}, req.HostConfig.PortBindings)
}

func TestAssemble_ExplicitBinding(t *testing.T) {
	req, err := Assemble(domain.ContainerSpec{
		Image:        "postgres:16",
		ExposedPorts: []int{5432, 9187},
		PortBindings: map[int]int{5432: 15432},
	})
	require.NoError(t, err)

	assert.Equal(t, []nat.PortBinding{{HostPort: "15432"}}, req.HostConfig.PortBindings["5432/tcp"])
	assert.Equal(t, []nat.PortBinding{{HostPort: "9187"}}, req.HostConfig.PortBindings["9187/tcp"])
	assert.Len(t, req.Config.ExposedPorts, 2)
}

func TestAssemble_UnboundPortRejected(t *testing.T) {
	_, err := Assemble(domain.ContainerSpec{
		Image:        "redis",
		ExposedPorts: []int{6379},
		PortBindings: map[int]int{8080: 8080},
	})
	require.Error(t, err)

	var cfgErr *domain.ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "portBindings", cfgErr.Field)
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)
}

func TestAssemble_InvalidSpec(t *testing.T) {
	tests := []struct {
		name  string
		spec  domain.ContainerSpec
		field string
	}{
		{"empty image", domain.ContainerSpec{}, "image"},
		{"port zero", domain.ContainerSpec{Image: "x", ExposedPorts: []int{0}}, "exposedPorts"},
		{"port too high", domain.ContainerSpec{Image: "x", ExposedPorts: []int{70000}}, "exposedPorts"},
		{"host port too high", domain.ContainerSpec{Image: "x", ExposedPorts: []int{80}, PortBindings: map[int]int{80: 70000}}, "portBindings"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Assemble(tt.spec)
			var cfgErr *domain.ConfigurationError
			require.True(t, errors.As(err, &cfgErr))
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}
}

func TestAssemble_EnvLabelsMountsCommand(t *testing.T) {
	spec := domain.ContainerSpec{
		Name:  "db",
		Image: "postgres:16",
		Env: []domain.KeyValue{
			{Key: "POSTGRES_USER", Value: "app"},
			{Key: "POSTGRES_PASSWORD", Value: "a=b"},
		},
		Labels: []domain.KeyValue{
			{Key: "team", Value: "core"},
			{Key: "team", Value: "infra"},
		},
		Mounts: []domain.Mount{
			{Source: "/tmp/data", Target: "/var/lib/postgresql/data", Kind: domain.MountBind},
		},
		Command: []string{"postgres", "-c", "fsync=off"},
	}

	req, err := Assemble(spec)
	require.NoError(t, err)

	assert.Equal(t, "db", req.Name)
	assert.Equal(t, "postgres:16", req.Config.Image)
	assert.Equal(t, []string{"POSTGRES_USER=app", "POSTGRES_PASSWORD=a=b"}, req.Config.Env)
	assert.Equal(t, map[string]string{"team": "infra"}, req.Config.Labels)
	assert.Equal(t, []mount.Mount{
		{Type: mount.TypeBind, Source: "/tmp/data", Target: "/var/lib/postgresql/data"},
	}, req.HostConfig.Mounts)
	assert.Equal(t, []string{"postgres", "-c", "fsync=off"}, []string(req.Config.Cmd))

	// The request does not alias the spec.
	spec.Command[0] = "changed"
	assert.Equal(t, "postgres", req.Config.Cmd[0])
}

func TestAssemble_Deterministic(t *testing.T) {
	spec := domain.ContainerSpec{
		Image:        "nginx",
		ExposedPorts: []int{80, 443},
		PortBindings: map[int]int{443: 8443},
		Env:          []domain.KeyValue{{Key: "A", Value: "1"}},
	}

	first, err := Assemble(spec)
	require.NoError(t, err)
	second, err := Assemble(spec)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
