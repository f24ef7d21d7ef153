// Package domain contains pure business types without external dependencies.
// These types are used throughout the application and have no tags or framework dependencies.
package domain

import "slices"

// KeyValue is an ordered key/value pair used for environment variables and labels.
type KeyValue struct {
	Key   string
	Value string
}

// MountKind is the kind of a mount as understood by the runtime ("bind", "volume", "tmpfs").
type MountKind string

const (
	MountBind   MountKind = "bind"
	MountVolume MountKind = "volume"
	MountTmpfs  MountKind = "tmpfs"
)

// Mount describes a filesystem mount into the container.
// Paths are handed to the runtime as-is.
type Mount struct {
	Source string
	Target string
	Kind   MountKind
}

// ContainerSpec describes the desired configuration of a fixture container.
type ContainerSpec struct {
	// Name is the container name. Empty lets the caller's defaults apply.
	Name  string
	Image string

	// ExposedPorts are container-internal TCP ports.
	ExposedPorts []int
	// PortBindings maps an exposed port to a host port. When empty every
	// exposed port binds to the same port number on the host.
	PortBindings map[int]int

	Env     []KeyValue
	Labels  []KeyValue
	Mounts  []Mount
	Command []string
}

// Clone returns a deep copy of the spec.
func (s ContainerSpec) Clone() ContainerSpec {
	c := s
	c.ExposedPorts = slices.Clone(s.ExposedPorts)
	if s.PortBindings != nil {
		c.PortBindings = make(map[int]int, len(s.PortBindings))
		for k, v := range s.PortBindings {
			c.PortBindings[k] = v
		}
	}
	c.Env = slices.Clone(s.Env)
	c.Labels = slices.Clone(s.Labels)
	c.Mounts = slices.Clone(s.Mounts)
	c.Command = slices.Clone(s.Command)
	return c
}

// InspectionState is a snapshot of a container as reported by the runtime.
// A new snapshot replaces the previous one wholesale.
type InspectionState struct {
	Running bool
	Status  string
	// NetworkGateway is the gateway of the container's default network, if any.
	NetworkGateway string
	// Ports maps exposed container ports to the host ports the runtime published.
	Ports map[int]int
	// Raw is the runtime's own inspection payload, kept for diagnostics.
	Raw any
}

// ExecResult holds the output of a command run through an attach session.
type ExecResult struct {
	Output []byte
	EOF    bool
}

// String returns the accumulated output.
func (r *ExecResult) String() string {
	return string(r.Output)
}

// FixtureState is a step of the fixture lifecycle.
type FixtureState string

const (
	StateUnstarted FixtureState = "unstarted"
	StateCreated   FixtureState = "created"
	StateStarted   FixtureState = "started"
	StateRunning   FixtureState = "running"
	StateStopped   FixtureState = "stopped"
	StateFailed    FixtureState = "failed"
)
