// Package domain holds the value types shared by the prober, the resolver and
// the planner. Nothing in this package performs I/O.
package domain

import (
	"fmt"
	"net"
	"sort"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// =============================================================================
// Service Types
// =============================================================================

// ServiceType is the closed set of service kinds the engine understands.
type ServiceType string

const (
	TypeCacheStore       ServiceType = "cache-store"
	TypeRelationalDB     ServiceType = "relational-db"
	TypeWorkflowEngine   ServiceType = "workflow-engine"
	TypeContainerRuntime ServiceType = "container-runtime"
	TypeOrchestrator     ServiceType = "orchestrator"
	TypeCustom           ServiceType = "custom"
)

// TypeInfo holds the static facts for one service type.
type TypeInfo struct {
	// DisplayName is the concrete product name used in reasons and reports.
	DisplayName string

	// DefaultName is the service name used in configuration ("redis").
	DefaultName string

	// DefaultPort is 0 for types that are not reached over TCP.
	DefaultPort int

	// AlongsideOffset is added to an existing port to place a second instance.
	AlongsideOffset int

	// Scheme selects the connection string template.
	Scheme string

	// SafeReuse is false when reusing a shared instance can corrupt state
	// belonging to other tenants.
	SafeReuse bool

	// Plannable is true for types that get a per-service deployment decision.
	Plannable bool
}

// typeTable is the one dispatch table for per-type facts. Adding a ServiceType
// without an entry here fails TestTypeTable_CoversAllTypes.
var typeTable = map[ServiceType]TypeInfo{
	TypeCacheStore: {
		DisplayName:     "Redis",
		DefaultName:     "redis",
		DefaultPort:     6379,
		AlongsideOffset: 1,
		Scheme:          "redis",
		SafeReuse:       true,
		Plannable:       true,
	},
	TypeRelationalDB: {
		DisplayName:     "PostgreSQL",
		DefaultName:     "postgres",
		DefaultPort:     5432,
		AlongsideOffset: 1,
		Scheme:          "postgresql",
		SafeReuse:       true,
		Plannable:       true,
	},
	TypeWorkflowEngine: {
		DisplayName:     "Temporal",
		DefaultName:     "temporal",
		DefaultPort:     7233,
		AlongsideOffset: 100,
		Scheme:          "grpc",
		SafeReuse:       false,
		Plannable:       true,
	},
	TypeContainerRuntime: {
		DisplayName: "Docker",
		DefaultName: "docker",
	},
	TypeOrchestrator: {
		DisplayName: "Kubernetes",
		DefaultName: "kubernetes",
	},
	TypeCustom: {
		DisplayName: "Custom",
		DefaultName: "custom",
	},
}

// AllTypes returns every known service type in stable order.
func AllTypes() []ServiceType {
	return []ServiceType{
		TypeCacheStore,
		TypeRelationalDB,
		TypeWorkflowEngine,
		TypeContainerRuntime,
		TypeOrchestrator,
		TypeCustom,
	}
}

// PlannableTypes returns the types that receive a deployment decision, in the
// order the planner evaluates them.
func PlannableTypes() []ServiceType {
	var out []ServiceType
	for _, t := range AllTypes() {
		if typeTable[t].Plannable {
			out = append(out, t)
		}
	}
	return out
}

// Info returns the static facts for the type. Unknown types get the custom entry.
func (t ServiceType) Info() TypeInfo {
	if info, ok := typeTable[t]; ok {
		return info
	}
	return typeTable[TypeCustom]
}

// Valid reports whether t is one of the known service types.
func (t ServiceType) Valid() bool {
	_, ok := typeTable[t]
	return ok
}

// Plannable reports whether the type receives a deployment decision.
func (t ServiceType) Plannable() bool {
	return t.Info().Plannable
}

// ParseServiceType maps a configuration value to a ServiceType. It accepts the
// canonical names as well as the concrete product names.
func ParseServiceType(s string) (ServiceType, error) {
	switch s {
	case "cache-store", "cache", "redis":
		return TypeCacheStore, nil
	case "relational-db", "database", "postgres", "postgresql":
		return TypeRelationalDB, nil
	case "workflow-engine", "workflow", "temporal":
		return TypeWorkflowEngine, nil
	case "container-runtime", "docker":
		return TypeContainerRuntime, nil
	case "orchestrator", "kubernetes", "k8s":
		return TypeOrchestrator, nil
	case "custom":
		return TypeCustom, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownServiceType, s)
}

// =============================================================================
// Service Status
// =============================================================================

// ServiceStatus is the observed state of a detected service.
type ServiceStatus string

const (
	StatusRunning      ServiceStatus = "running"
	StatusStopped      ServiceStatus = "stopped"
	StatusDegraded     ServiceStatus = "degraded"
	StatusUnknown      ServiceStatus = "unknown"
	StatusNotInstalled ServiceStatus = "not-installed"
)

// rank orders statuses from most to least useful when several instances of
// the same type were detected.
func (s ServiceStatus) rank() int {
	switch s {
	case StatusRunning:
		return 0
	case StatusDegraded:
		return 1
	case StatusStopped:
		return 2
	case StatusUnknown:
		return 3
	default:
		return 4
	}
}

// VersionUnknown is the version string used when no banner could be parsed.
const VersionUnknown = "unknown"

// =============================================================================
// Detected Service
// =============================================================================

// DetectedService is an immutable snapshot produced by one probe invocation.
type DetectedService struct {
	Name         string            `json:"name" yaml:"name"`
	Type         ServiceType       `json:"type" yaml:"type"`
	Status       ServiceStatus     `json:"status" yaml:"status"`
	Version      string            `json:"version" yaml:"version"`
	Host         string            `json:"host" yaml:"host"`
	Port         int               `json:"port" yaml:"port"`
	PID          *int              `json:"pid,omitempty" yaml:"pid,omitempty"`
	ConfigPath   *string           `json:"config_path,omitempty" yaml:"config_path,omitempty"`
	DataPath     *string           `json:"data_path,omitempty" yaml:"data_path,omitempty"`
	Fingerprint  string            `json:"fingerprint" yaml:"fingerprint"`
	Capabilities map[string]bool   `json:"capabilities,omitempty" yaml:"capabilities,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
	DetectedBy   string            `json:"detected_by" yaml:"detected_by"`
	Notes        []string          `json:"notes,omitempty" yaml:"notes,omitempty"`
}

// Running reports whether the instance answered its liveness check.
func (d DetectedService) Running() bool {
	return d.Status == StatusRunning
}

// Address returns host:port.
func (d DetectedService) Address() string {
	return net.JoinHostPort(d.Host, strconv.Itoa(d.Port))
}

// Fingerprint computes the stable hash identifying an instance across runs.
// The hash covers type, version, port, host and the optional paths.
func Fingerprint(t ServiceType, version string, port int, host string, configPath, dataPath *string) string {
	h := xxhash.New()
	write := func(s string) {
		_, _ = h.WriteString(s)
		_, _ = h.Write([]byte{0})
	}
	write(string(t))
	write(version)
	write(strconv.Itoa(port))
	write(host)
	if configPath != nil {
		write(*configPath)
	} else {
		write("")
	}
	if dataPath != nil {
		write(*dataPath)
	} else {
		write("")
	}
	return fmt.Sprintf("%016x", h.Sum64())
}

// WithFingerprint returns a copy of d with the fingerprint recomputed.
func (d DetectedService) WithFingerprint() DetectedService {
	d.Fingerprint = Fingerprint(d.Type, d.Version, d.Port, d.Host, d.ConfigPath, d.DataPath)
	return d
}

// BestMatch picks the instance the planner should consider for a type.
// Running instances win over degraded, stopped and unknown ones; among equals
// an instance listening on preferredPort wins, then the lowest port.
// Returns false when no instance of the type is present.
func BestMatch(services []DetectedService, t ServiceType, preferredPort int) (DetectedService, bool) {
	var candidates []DetectedService
	for _, s := range services {
		if s.Type == t && s.Status != StatusNotInstalled {
			candidates = append(candidates, s)
		}
	}
	if len(candidates) == 0 {
		return DetectedService{}, false
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Status.rank() != b.Status.rank() {
			return a.Status.rank() < b.Status.rank()
		}
		if (a.Port == preferredPort) != (b.Port == preferredPort) {
			return a.Port == preferredPort
		}
		return a.Port < b.Port
	})
	return candidates[0], true
}

// OccupiedPorts returns the ports held by detected instances that are running
// or degraded, keyed by port.
func OccupiedPorts(services []DetectedService) map[int]DetectedService {
	out := make(map[int]DetectedService)
	for _, s := range services {
		if s.Port <= 0 {
			continue
		}
		if s.Status == StatusRunning || s.Status == StatusDegraded {
			out[s.Port] = s
		}
	}
	return out
}
