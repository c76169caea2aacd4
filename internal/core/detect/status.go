package detect

import "github.com/artpar/svcplan/internal/core/domain"

// =============================================================================
// Status Mapping
// =============================================================================

// ContainerStatus maps a container runtime state and optional health check
// result to a service status.
//
// Parameters:
// - state: container state (running, restarting, paused, exited, created, dead)
// - health: health check result if the image defines one (healthy, unhealthy, starting)
func ContainerStatus(state string, health string) domain.ServiceStatus {
	switch state {
	case "running":
		if health == "unhealthy" {
			return domain.StatusDegraded
		}
		return domain.StatusRunning
	case "restarting", "paused":
		return domain.StatusDegraded
	case "exited", "created", "dead", "removing":
		return domain.StatusStopped
	default:
		return domain.StatusUnknown
	}
}

// ProbeOutcome collects the results of the existence and liveness steps of a
// native probe.
type ProbeOutcome struct {
	// Installed is true when a client or server binary was found.
	Installed bool
	// PortOpen is true when a TCP connection to the service port succeeded.
	PortOpen bool
	// Alive is true when the protocol-level ping succeeded.
	Alive bool
}

// NativeStatus maps a native probe outcome to a service status. It returns
// false when nothing was found and the probe should report no service.
//
// The mapping:
//   - ping answered: running
//   - port open but ping failed (auth, protocol mismatch): degraded
//   - binary present, nothing listening: stopped
//   - nothing found: no result
func NativeStatus(o ProbeOutcome) (domain.ServiceStatus, bool) {
	switch {
	case o.Alive:
		return domain.StatusRunning, true
	case o.PortOpen:
		return domain.StatusDegraded, true
	case o.Installed:
		return domain.StatusStopped, true
	default:
		return domain.StatusNotInstalled, false
	}
}
