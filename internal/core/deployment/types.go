package deployment

import (
	"context"
	"fmt"
	"time"

	"github.com/artpar/svcplan/internal/core/compat"
	"github.com/artpar/svcplan/internal/core/domain"
)

// =============================================================================
// Service Configuration
// =============================================================================

// Mode controls whether a configured service takes part in planning.
type Mode string

const (
	ModeAuto Mode = "auto"
	ModeSkip Mode = "skip"
)

// DefaultHost is used when a service config leaves the host empty.
const DefaultHost = "localhost"

// ServiceConfig is the static configuration of one enabled service.
type ServiceConfig struct {
	Name         string
	Type         domain.ServiceType
	Enabled      bool
	Host         string
	Port         int
	Version      string
	Mode         Mode
	PreferReuse  bool
	InstanceName string
	User         string
	Database     string
}

// Validate checks the fields the selector relies on.
func (c ServiceConfig) Validate() error {
	if c.Name == "" {
		return domain.ErrMissingServiceName
	}
	if !c.Type.Valid() {
		return domain.NewPlanError(c.Name, fmt.Sprintf("unknown service type %q", c.Type), domain.ErrUnknownServiceType)
	}
	if c.Port < 0 || c.Port > MaxPort {
		return domain.NewPlanError(c.Name, fmt.Sprintf("port %d out of range", c.Port), domain.ErrInvalidPort)
	}
	switch c.Mode {
	case "", ModeAuto, ModeSkip:
	default:
		return domain.NewPlanError(c.Name, fmt.Sprintf("unknown mode %q", c.Mode), domain.ErrInvalidMode)
	}
	return nil
}

// WithDefaults fills the host, port and mode from the type table.
func (c ServiceConfig) WithDefaults() ServiceConfig {
	if c.Host == "" {
		c.Host = DefaultHost
	}
	if c.Port == 0 {
		c.Port = c.Type.Info().DefaultPort
	}
	if c.Mode == "" {
		c.Mode = ModeAuto
	}
	return c
}

// DefaultServices returns the three plannable services with their default
// names and ports, all enabled and preferring reuse.
func DefaultServices() []ServiceConfig {
	var out []ServiceConfig
	for _, t := range domain.PlannableTypes() {
		info := t.Info()
		out = append(out, ServiceConfig{
			Name:        info.DefaultName,
			Type:        t,
			Enabled:     true,
			Host:        DefaultHost,
			Port:        info.DefaultPort,
			Mode:        ModeAuto,
			PreferReuse: true,
		})
	}
	return out
}

// =============================================================================
// Port Checking
// =============================================================================

// PortChecker reports whether something is accepting TCP connections on a
// port. Implementations must be read-only and fail open toward "free".
type PortChecker interface {
	IsPortInUse(ctx context.Context, host string, port int) bool
}

// PortCheckerFunc adapts a function to PortChecker.
type PortCheckerFunc func(ctx context.Context, host string, port int) bool

// IsPortInUse implements PortChecker.
func (f PortCheckerFunc) IsPortInUse(ctx context.Context, host string, port int) bool {
	return f(ctx, host, port)
}

// NoPortsInUse is a PortChecker that reports every port as free.
var NoPortsInUse PortChecker = PortCheckerFunc(func(context.Context, string, int) bool { return false })

// =============================================================================
// Selector Input/Output
// =============================================================================

// SelectInput holds everything the selector needs for one service.
type SelectInput struct {
	Project string
	Service ServiceConfig

	// Detected is the full prober snapshot; the selector filters by type.
	Detected []domain.DetectedService

	// EngineVersion is the workflow-engine SDK version declared by the project
	// manifests, empty when none was found.
	EngineVersion string

	// Claimed maps ports already assigned by earlier decisions to the service
	// that claimed them.
	Claimed map[int]string

	Ports PortChecker

	// Matrix overrides the built-in compatibility matrix when set.
	Matrix *compat.Matrix

	// Now stamps the plan; zero means the current time.
	Now time.Time
}

// Decision is the selector output for one service.
type Decision struct {
	Plan     domain.ServiceDeploymentPlan
	Warnings []string
	Blockers []string
}
