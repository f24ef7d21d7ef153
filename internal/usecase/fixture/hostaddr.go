package fixture

import (
	"strings"

	"github.com/bnema/ephemera/internal/boundaries/out"
	"github.com/bnema/ephemera/internal/domain"
)

// ResolveHost returns the address at which a fixture's published ports are
// reachable from this process. Network endpoints reach containers through
// the daemon's host. Local socket endpoints mean the daemon runs next to us:
// localhost, unless this process is itself containerized, in which case the
// fixture's network gateway from the last inspection is used.
func ResolveHost(endpoint out.Endpoint, inContainer bool, last *domain.InspectionState) (string, bool) {
	switch strings.ToLower(endpoint.Scheme) {
	case "http", "https", "tcp":
		if endpoint.Host == "" {
			return "", false
		}
		return endpoint.Host, true
	case "unix", "npipe":
		if !inContainer {
			return "localhost", true
		}
		if last == nil || last.NetworkGateway == "" {
			return "", false
		}
		return last.NetworkGateway, true
	default:
		return "", false
	}
}
