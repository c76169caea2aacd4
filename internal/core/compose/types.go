package compose

// =============================================================================
// Declared Services
// =============================================================================

// Declaration is one service declared in a compose file, reduced to the
// attributes used for classification.
type Declaration struct {
	Name          string `json:"name"`
	Image         string `json:"image,omitempty"`
	ContainerName string `json:"container_name,omitempty"`
	Ports         []Port `json:"ports,omitempty"`
	HasBuild      bool   `json:"has_build,omitempty"`
}

// Port represents a declared port mapping.
type Port struct {
	Target    uint32 `json:"target"`              // Container port
	Published uint32 `json:"published,omitempty"` // Host port (0 = dynamic)
	Protocol  string `json:"protocol,omitempty"`  // tcp, udp
	HostIP    string `json:"host_ip,omitempty"`   // Bind IP
}

// HostPort returns the port a client on the host connects to: the published
// port when there is one, otherwise the container port.
func (p Port) HostPort() int {
	if p.Published != 0 {
		return int(p.Published)
	}
	return int(p.Target)
}

// targets returns the container ports of a declaration.
func (d Declaration) targets() []int {
	out := make([]int, 0, len(d.Ports))
	for _, p := range d.Ports {
		out = append(out, int(p.Target))
	}
	return out
}
