package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Strategy
// =============================================================================

// Strategy is the per-service deployment decision.
type Strategy string

const (
	StrategyReuse     Strategy = "REUSE"
	StrategyCreate    Strategy = "CREATE"
	StrategyAlongside Strategy = "ALONGSIDE"
	StrategySkip      Strategy = "SKIP"
)

// AllStrategies returns the strategies in partition order.
func AllStrategies() []Strategy {
	return []Strategy{StrategyReuse, StrategyCreate, StrategyAlongside, StrategySkip}
}

// Provisions reports whether a generator must emit a service definition for
// a plan with this strategy.
func (s Strategy) Provisions() bool {
	return s == StrategyCreate || s == StrategyAlongside
}

// ParseStrategy accepts any casing of the four strategy names.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToUpper(strings.TrimSpace(s))) {
	case StrategyReuse:
		return StrategyReuse, nil
	case StrategyCreate:
		return StrategyCreate, nil
	case StrategyAlongside:
		return StrategyAlongside, nil
	case StrategySkip:
		return StrategySkip, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStrategy, s)
}

// =============================================================================
// Service Deployment Plan
// =============================================================================

// ServiceDeploymentPlan is the decision for one enabled service.
type ServiceDeploymentPlan struct {
	ServiceName         string                `json:"service_name" yaml:"service_name"`
	Type                ServiceType           `json:"type" yaml:"type"`
	Strategy            Strategy              `json:"strategy" yaml:"strategy"`
	Host                string                `json:"host" yaml:"host"`
	Port                int                   `json:"port" yaml:"port"`
	Version             string                `json:"version" yaml:"version"`
	ConnectionString    string                `json:"connection_string" yaml:"connection_string"`
	Reason              string                `json:"reason" yaml:"reason"`
	DetectedFingerprint string                `json:"detected_fingerprint,omitempty" yaml:"detected_fingerprint,omitempty"`
	InstanceName        string                `json:"instance_name,omitempty" yaml:"instance_name,omitempty"`
	RequiresExtraConfig bool                  `json:"requires_extra_config" yaml:"requires_extra_config"`
	CompatibilityLevel  SupportLevel          `json:"compatibility_level" yaml:"compatibility_level"`
	Compatibility       *CompatibilityVerdict `json:"compatibility,omitempty" yaml:"compatibility,omitempty"`
	Metadata            map[string]string     `json:"metadata,omitempty" yaml:"metadata,omitempty"`
	CreatedAt           time.Time             `json:"created_at" yaml:"created_at"`
}

func (p ServiceDeploymentPlan) clone() ServiceDeploymentPlan {
	p.Metadata = cloneStrings(p.Metadata)
	if p.Compatibility != nil {
		v := *p.Compatibility
		p.Compatibility = &v
	}
	return p
}

// =============================================================================
// Deployment Plan Summary
// =============================================================================

// PlanSnapshot is the serialisable form of a DeploymentPlanSummary.
type PlanSnapshot struct {
	ID              string                           `json:"id" yaml:"id"`
	ProjectName     string                           `json:"project_name" yaml:"project_name"`
	CreatedAt       time.Time                        `json:"created_at" yaml:"created_at"`
	Order           []string                         `json:"order" yaml:"order"`
	Reuse           []string                         `json:"reuse" yaml:"reuse"`
	Create          []string                         `json:"create" yaml:"create"`
	Alongside       []string                         `json:"alongside" yaml:"alongside"`
	Skip            []string                         `json:"skip" yaml:"skip"`
	Services        map[string]ServiceDeploymentPlan `json:"services" yaml:"services"`
	Warnings        []string                         `json:"warnings" yaml:"warnings"`
	Recommendations []string                         `json:"recommendations" yaml:"recommendations"`
	CanProceed      bool                             `json:"can_proceed" yaml:"can_proceed"`
	Blockers        []string                         `json:"blockers,omitempty" yaml:"blockers,omitempty"`
	Detected        []DetectedService                `json:"detected,omitempty" yaml:"detected,omitempty"`
}

func (s PlanSnapshot) clone() PlanSnapshot {
	out := s
	out.Order = cloneSlice(s.Order)
	out.Reuse = cloneSlice(s.Reuse)
	out.Create = cloneSlice(s.Create)
	out.Alongside = cloneSlice(s.Alongside)
	out.Skip = cloneSlice(s.Skip)
	out.Warnings = cloneSlice(s.Warnings)
	out.Recommendations = cloneSlice(s.Recommendations)
	out.Blockers = cloneSlice(s.Blockers)
	out.Services = make(map[string]ServiceDeploymentPlan, len(s.Services))
	for k, v := range s.Services {
		out.Services[k] = v.clone()
	}
	if s.Detected != nil {
		out.Detected = make([]DetectedService, len(s.Detected))
		for i, d := range s.Detected {
			d.PID = clonePtr(d.PID)
			d.ConfigPath = clonePtr(d.ConfigPath)
			d.DataPath = clonePtr(d.DataPath)
			d.Metadata = cloneStrings(d.Metadata)
			d.Notes = cloneSlice(d.Notes)
			if d.Capabilities != nil {
				caps := make(map[string]bool, len(d.Capabilities))
				for k, v := range d.Capabilities {
					caps[k] = v
				}
				d.Capabilities = caps
			}
			out.Detected[i] = d
		}
	}
	return out
}

// DeploymentPlanSummary is the immutable result of one planning pass.
// All accessors return copies.
type DeploymentPlanSummary struct {
	snap PlanSnapshot
}

// NewDeploymentPlanSummary freezes a snapshot. The snapshot is copied, so the
// caller may keep mutating its own value.
func NewDeploymentPlanSummary(s PlanSnapshot) (*DeploymentPlanSummary, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &DeploymentPlanSummary{snap: s.clone()}, nil
}

// Validate checks that every service appears in exactly one partition and has
// exactly one map entry whose strategy matches that partition.
func (s PlanSnapshot) Validate() error {
	if s.ID == "" {
		return NewPlanError("", "plan id is empty", nil)
	}
	if s.ProjectName == "" {
		return NewPlanError("", "project name is empty", ErrMissingProjectName)
	}
	seen := make(map[string]Strategy)
	partitions := map[Strategy][]string{
		StrategyReuse:     s.Reuse,
		StrategyCreate:    s.Create,
		StrategyAlongside: s.Alongside,
		StrategySkip:      s.Skip,
	}
	for _, strategy := range AllStrategies() {
		for _, name := range partitions[strategy] {
			if prev, dup := seen[name]; dup {
				return NewPlanError(name, fmt.Sprintf("listed under both %s and %s", prev, strategy), ErrDuplicateService)
			}
			seen[name] = strategy
			p, ok := s.Services[name]
			if !ok {
				return NewPlanError(name, "partitioned but has no plan entry", nil)
			}
			if p.Strategy != strategy {
				return NewPlanError(name, fmt.Sprintf("listed under %s but plan says %s", strategy, p.Strategy), nil)
			}
			if strings.TrimSpace(p.Reason) == "" {
				return NewPlanError(name, "plan has no reason", nil)
			}
		}
	}
	for name := range s.Services {
		if _, ok := seen[name]; !ok {
			return NewPlanError(name, "plan entry missing from partitions", nil)
		}
	}
	if len(s.Order) != len(seen) {
		return NewPlanError("", "service order does not match partitions", nil)
	}
	for _, name := range s.Order {
		if _, ok := seen[name]; !ok {
			return NewPlanError(name, "ordered service has no plan entry", nil)
		}
	}
	return nil
}

// ID returns the plan id.
func (p *DeploymentPlanSummary) ID() string { return p.snap.ID }

// ProjectName returns the project the plan was made for.
func (p *DeploymentPlanSummary) ProjectName() string { return p.snap.ProjectName }

// CreatedAt returns the planning timestamp.
func (p *DeploymentPlanSummary) CreatedAt() time.Time { return p.snap.CreatedAt }

// CanProceed is false when a known-bad combination was found and not overridden.
func (p *DeploymentPlanSummary) CanProceed() bool { return p.snap.CanProceed }

// Blockers explains why CanProceed is false.
func (p *DeploymentPlanSummary) Blockers() []string { return cloneSlice(p.snap.Blockers) }

// Warnings returns plan-level warnings.
func (p *DeploymentPlanSummary) Warnings() []string { return cloneSlice(p.snap.Warnings) }

// Recommendations returns plan-level recommendations.
func (p *DeploymentPlanSummary) Recommendations() []string {
	return cloneSlice(p.snap.Recommendations)
}

// Partition returns the service names assigned the given strategy.
func (p *DeploymentPlanSummary) Partition(s Strategy) []string {
	switch s {
	case StrategyReuse:
		return cloneSlice(p.snap.Reuse)
	case StrategyCreate:
		return cloneSlice(p.snap.Create)
	case StrategyAlongside:
		return cloneSlice(p.snap.Alongside)
	case StrategySkip:
		return cloneSlice(p.snap.Skip)
	}
	return nil
}

// ServiceNames returns every planned service in planning order.
func (p *DeploymentPlanSummary) ServiceNames() []string { return cloneSlice(p.snap.Order) }

// Service returns the plan for one service.
func (p *DeploymentPlanSummary) Service(name string) (ServiceDeploymentPlan, bool) {
	s, ok := p.snap.Services[name]
	if !ok {
		return ServiceDeploymentPlan{}, false
	}
	return s.clone(), true
}

// Services returns every service plan in planning order.
func (p *DeploymentPlanSummary) Services() []ServiceDeploymentPlan {
	out := make([]ServiceDeploymentPlan, 0, len(p.snap.Order))
	for _, name := range p.snap.Order {
		out = append(out, p.snap.Services[name].clone())
	}
	return out
}

// ServicesToProvision returns the CREATE and ALONGSIDE plans in planning
// order. A generator emits definitions for exactly these.
func (p *DeploymentPlanSummary) ServicesToProvision() []ServiceDeploymentPlan {
	var out []ServiceDeploymentPlan
	for _, name := range p.snap.Order {
		s := p.snap.Services[name]
		if s.Strategy.Provisions() {
			out = append(out, s.clone())
		}
	}
	return out
}

// Detected returns the prober snapshot the plan was built from.
func (p *DeploymentPlanSummary) Detected() []DetectedService {
	return p.snap.clone().Detected
}

// Snapshot returns a mutable copy of the plan.
func (p *DeploymentPlanSummary) Snapshot() PlanSnapshot { return p.snap.clone() }

// MarshalJSON implements json.Marshaler.
func (p *DeploymentPlanSummary) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.snap)
}

// UnmarshalJSON implements json.Unmarshaler. The decoded plan is validated.
func (p *DeploymentPlanSummary) UnmarshalJSON(data []byte) error {
	var s PlanSnapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if err := s.Validate(); err != nil {
		return err
	}
	p.snap = s
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (p *DeploymentPlanSummary) MarshalYAML() (any, error) {
	return p.snap, nil
}

// =============================================================================
// Plan IDs
// =============================================================================

// NewPlanID builds a human-traceable plan id:
// plan-{project-slug}-{UTC timestamp}-{8 random hex chars}.
//
// Example:
//
//	NewPlanID("My Shop", t) // "plan-my-shop-20261019T093100Z-1f3a9c2e"
func NewPlanID(projectName string, now time.Time) string {
	slug := Slugify(projectName)
	if slug == "" {
		slug = "project"
	}
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("plan-%s-%s-%s", slug, now.UTC().Format("20060102T150405Z"), suffix)
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneSlice(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func cloneStrings(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
