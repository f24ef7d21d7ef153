package fixture

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bnema/ephemera/internal/boundaries/out"
	"github.com/bnema/ephemera/internal/domain"
)

func TestResolveHost(t *testing.T) {
	inspected := &domain.InspectionState{Running: true, NetworkGateway: "172.17.0.1"}

	tests := []struct {
		name        string
		endpoint    out.Endpoint
		inContainer bool
		last        *domain.InspectionState
		want        string
		ok          bool
	}{
		{"tcp host", out.Endpoint{Scheme: "tcp", Host: "1.2.3.4"}, false, nil, "1.2.3.4", true},
		{"tcp ignores marker", out.Endpoint{Scheme: "tcp", Host: "1.2.3.4"}, true, inspected, "1.2.3.4", true},
		{"https host", out.Endpoint{Scheme: "HTTPS", Host: "docker.example.com"}, false, nil, "docker.example.com", true},
		{"unix without marker", out.Endpoint{Scheme: "unix", Host: "/var/run/docker.sock"}, false, inspected, "localhost", true},
		{"unix with marker", out.Endpoint{Scheme: "unix"}, true, inspected, "172.17.0.1", true},
		{"npipe without marker", out.Endpoint{Scheme: "npipe"}, false, nil, "localhost", true},
		{"unix with marker, no inspection", out.Endpoint{Scheme: "unix"}, true, nil, "", false},
		{"ssh", out.Endpoint{Scheme: "ssh", Host: "builder"}, false, nil, "", false},
		{"tcp without host", out.Endpoint{Scheme: "tcp"}, false, nil, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ResolveHost(tt.endpoint, tt.inContainer, tt.last)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
