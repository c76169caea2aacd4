package deployment

import (
	"context"

	"github.com/artpar/svcplan/internal/core/domain"
)

// =============================================================================
// Port Conflict Resolution
// =============================================================================

const (
	// MaxPort is the highest valid TCP port.
	MaxPort = 65535

	// MaxPortAttempts bounds every port search.
	MaxPortAttempts = 20
)

// AlongsidePort returns the port a second instance of type t should use next
// to an instance listening on existingPort.
//
// Example:
//
//	AlongsidePort(domain.TypeRelationalDB, 5432)   // 5433
//	AlongsidePort(domain.TypeWorkflowEngine, 7233) // 7333
func AlongsidePort(t domain.ServiceType, existingPort int) int {
	offset := t.Info().AlongsideOffset
	if offset <= 0 {
		offset = 1
	}
	return existingPort + offset
}

// portSearch describes one bounded walk over candidate ports.
type portSearch struct {
	host    string
	start   int
	step    int
	avoid   map[int]bool
	claimed map[int]string
	checker PortChecker
}

// find returns the first candidate that is not claimed, not avoided and not
// accepting connections.
func (s portSearch) find(ctx context.Context) (int, bool) {
	checker := s.checker
	if checker == nil {
		checker = NoPortsInUse
	}
	port := s.start
	for i := 0; i < MaxPortAttempts; i++ {
		if port < 1 || port > MaxPort {
			return 0, false
		}
		if _, taken := s.claimed[port]; !taken && !s.avoid[port] && !checker.IsPortInUse(ctx, s.host, port) {
			return port, true
		}
		port += s.step
	}
	return 0, false
}

// NextFreePort returns the first port at or after start that is neither
// claimed by another plan nor accepting connections, walking in steps of one.
func NextFreePort(ctx context.Context, host string, start int, claimed map[int]string, checker PortChecker) (int, error) {
	port, ok := portSearch{host: host, start: start, step: 1, claimed: claimed, checker: checker}.find(ctx)
	if !ok {
		return 0, domain.ErrNoFreePort
	}
	return port, nil
}

// ResolveAlongsidePort places a new instance of type t next to an instance on
// existingPort. The first candidate is existingPort plus the type's offset; on
// collision the search keeps stepping by the same offset. The existing port is
// never returned.
func ResolveAlongsidePort(ctx context.Context, t domain.ServiceType, host string, existingPort int, claimed map[int]string, checker PortChecker) (int, error) {
	start := AlongsidePort(t, existingPort)
	port, ok := portSearch{
		host:    host,
		start:   start,
		step:    start - existingPort,
		avoid:   map[int]bool{existingPort: true},
		claimed: claimed,
		checker: checker,
	}.find(ctx)
	if !ok {
		return 0, domain.ErrNoFreePort
	}
	return port, nil
}
