package fixture

import (
	"fmt"
	"slices"
	"strconv"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/go-connections/nat"

	"github.com/bnema/ephemera/internal/boundaries/out"
	"github.com/bnema/ephemera/internal/domain"
)

// Assemble turns a ContainerSpec into a creation request. It performs no I/O.
// Every exposed port gets a TCP binding: the explicit host port from
// PortBindings when given, the same port number otherwise.
func Assemble(spec domain.ContainerSpec) (*out.CreationRequest, error) {
	if spec.Image == "" {
		return nil, &domain.ConfigurationError{Field: "image", Reason: "must not be empty"}
	}

	exposed := make(map[int]struct{}, len(spec.ExposedPorts))
	for _, p := range spec.ExposedPorts {
		if p <= 0 || p > 65535 {
			return nil, &domain.ConfigurationError{Field: "exposedPorts", Reason: fmt.Sprintf("port %d out of range", p)}
		}
		exposed[p] = struct{}{}
	}

	// Sorted for a deterministic error on multiple offenders.
	bound := make([]int, 0, len(spec.PortBindings))
	for p := range spec.PortBindings {
		bound = append(bound, p)
	}
	slices.Sort(bound)
	for _, p := range bound {
		if _, ok := exposed[p]; !ok {
			return nil, &domain.ConfigurationError{
				Field:  "portBindings",
				Reason: fmt.Sprintf("port %d is bound but not exposed", p),
			}
		}
		if h := spec.PortBindings[p]; h < 0 || h > 65535 {
			return nil, &domain.ConfigurationError{Field: "portBindings", Reason: fmt.Sprintf("host port %d out of range", h)}
		}
	}

	exposedPorts := make(nat.PortSet, len(exposed))
	portBindings := make(nat.PortMap, len(exposed))
	for _, p := range spec.ExposedPorts {
		containerPort := nat.Port(fmt.Sprintf("%d/tcp", p))
		hostPort := p
		if h, ok := spec.PortBindings[p]; ok {
			hostPort = h
		}
		exposedPorts[containerPort] = struct{}{}
		portBindings[containerPort] = []nat.PortBinding{
			{HostPort: strconv.Itoa(hostPort)},
		}
	}

	env := make([]string, 0, len(spec.Env))
	for _, kv := range spec.Env {
		env = append(env, kv.Key+"="+kv.Value)
	}

	var labels map[string]string
	if len(spec.Labels) > 0 {
		labels = make(map[string]string, len(spec.Labels))
		for _, kv := range spec.Labels {
			labels[kv.Key] = kv.Value
		}
	}

	var mounts []mount.Mount
	for _, m := range spec.Mounts {
		mounts = append(mounts, mount.Mount{
			Type:   mount.Type(m.Kind),
			Source: m.Source,
			Target: m.Target,
		})
	}

	return &out.CreationRequest{
		Name: spec.Name,
		Config: &container.Config{
			Image:        spec.Image,
			Env:          env,
			Labels:       labels,
			ExposedPorts: exposedPorts,
			Cmd:          slices.Clone(spec.Command),
		},
		HostConfig: &container.HostConfig{
			PortBindings: portBindings,
			Mounts:       mounts,
		},
	}, nil
}
