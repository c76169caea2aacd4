package docker

import (
	"context"
	"time"
)

// =============================================================================
// Container Info
// =============================================================================

// PortBinding represents a container port and the host port it is published on.
type PortBinding struct {
	ContainerPort int
	HostPort      int
	Protocol      string
	HostIP        string
}

// ContainerStatus represents the container status.
type ContainerStatus string

const (
	ContainerStatusCreated    ContainerStatus = "created"
	ContainerStatusRunning    ContainerStatus = "running"
	ContainerStatusPaused     ContainerStatus = "paused"
	ContainerStatusRestarting ContainerStatus = "restarting"
	ContainerStatusRemoving   ContainerStatus = "removing"
	ContainerStatusExited     ContainerStatus = "exited"
	ContainerStatusDead       ContainerStatus = "dead"
)

// ContainerInfo contains information about a container.
type ContainerInfo struct {
	ID        string
	Name      string
	Image     string
	Status    ContainerStatus
	State     string // "running", "exited", "created", etc.
	Health    string // "healthy", "unhealthy", "starting", ""
	CreatedAt time.Time
	StartedAt *time.Time
	Ports     []PortBinding
	Labels    map[string]string
	PID       int
}

// ContainerPorts returns the distinct container-side ports.
func (c ContainerInfo) ContainerPorts() []int {
	seen := make(map[int]bool, len(c.Ports))
	var out []int
	for _, p := range c.Ports {
		if !seen[p.ContainerPort] {
			seen[p.ContainerPort] = true
			out = append(out, p.ContainerPort)
		}
	}
	return out
}

// HostPortFor returns the host port published for containerPort, or 0 when
// it is not published.
func (c ContainerInfo) HostPortFor(containerPort int) int {
	for _, p := range c.Ports {
		if p.ContainerPort == containerPort && p.HostPort != 0 {
			return p.HostPort
		}
	}
	return 0
}

// ServerInfo describes the Docker daemon.
type ServerInfo struct {
	Version    string
	APIVersion string
	OS         string
	Arch       string
}

// ListOptions contains options for listing containers.
type ListOptions struct {
	All     bool
	Filters map[string]string
}

// =============================================================================
// Client Interface
// =============================================================================

// Client is the read-only subset of the Docker API used for detection.
type Client interface {
	Ping(ctx context.Context) error
	ServerVersion(ctx context.Context) (ServerInfo, error)
	ListContainers(ctx context.Context, opts ListOptions) ([]ContainerInfo, error)
	InspectContainer(ctx context.Context, containerID string) (*ContainerInfo, error)
	Close() error
}
