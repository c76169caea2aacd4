package deployment

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/artpar/svcplan/internal/core/compat"
	"github.com/artpar/svcplan/internal/core/domain"
)

// =============================================================================
// Plan Aggregation
// =============================================================================

// PlanRequest holds the inputs of one planning pass.
type PlanRequest struct {
	Project  string
	Services []ServiceConfig
	Detected []domain.DetectedService

	// EngineVersion is the declared workflow-engine SDK version, empty when
	// the project manifests declare none.
	EngineVersion string

	// AllowIncompatible lifts known-bad compatibility blockers.
	AllowIncompatible bool

	Ports  PortChecker
	Matrix *compat.Matrix
	Now    time.Time
}

// Aggregate runs the selector once per enabled service and composes the
// decisions into one immutable summary.
//
// Services are evaluated in a fixed order (cache store, relational database,
// workflow engine, then everything else by name) and each decision's port is
// claimed before the next service is evaluated, so no two plans share a port.
func Aggregate(ctx context.Context, req PlanRequest) (*domain.DeploymentPlanSummary, error) {
	if req.Project == "" {
		return nil, domain.ErrMissingProjectName
	}
	now := req.Now
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC()

	services, err := OrderServices(req.Services)
	if err != nil {
		return nil, err
	}

	snap := domain.PlanSnapshot{
		ID:          domain.NewPlanID(req.Project, now),
		ProjectName: req.Project,
		CreatedAt:   now,
		Services:    make(map[string]domain.ServiceDeploymentPlan, len(services)),
		Detected:    req.Detected,
	}

	claimed := make(map[int]string)
	var warnings, recommendations, blockers []string

	for _, svc := range services {
		d, err := Select(ctx, SelectInput{
			Project:       req.Project,
			Service:       svc,
			Detected:      req.Detected,
			EngineVersion: req.EngineVersion,
			Claimed:       claimed,
			Ports:         req.Ports,
			Matrix:        req.Matrix,
			Now:           now,
		})
		if err != nil {
			return nil, err
		}
		p := d.Plan

		if len(d.Blockers) > 0 && req.AllowIncompatible {
			for _, b := range d.Blockers {
				warnings = append(warnings, "overridden: "+b)
			}
			if p.Compatibility != nil {
				v := p.Compatibility.WithOverride()
				p.Compatibility = &v
			}
		} else {
			blockers = append(blockers, d.Blockers...)
		}
		warnings = append(warnings, d.Warnings...)
		warnings = append(warnings, planWarnings(p)...)
		recommendations = append(recommendations, planRecommendations(svc, p)...)

		if p.Strategy != domain.StrategySkip {
			claimed[p.Port] = p.ServiceName
		}
		snap.Order = append(snap.Order, p.ServiceName)
		snap.Services[p.ServiceName] = p
		switch p.Strategy {
		case domain.StrategyReuse:
			snap.Reuse = append(snap.Reuse, p.ServiceName)
		case domain.StrategyCreate:
			snap.Create = append(snap.Create, p.ServiceName)
		case domain.StrategyAlongside:
			snap.Alongside = append(snap.Alongside, p.ServiceName)
		case domain.StrategySkip:
			snap.Skip = append(snap.Skip, p.ServiceName)
		}
	}

	warnings = append(warnings, probeWarnings(req.Detected)...)
	if req.EngineVersion == "" && needsEngineVersion(snap) {
		recommendations = append(recommendations, fmt.Sprintf(
			"declare the %s SDK version in the project manifest so %s compatibility can be checked",
			domain.TypeWorkflowEngine.Info().DisplayName, domain.TypeRelationalDB.Info().DisplayName))
	}

	snap.Warnings = dedupe(warnings)
	snap.Recommendations = dedupe(recommendations)
	snap.Blockers = dedupe(blockers)
	snap.CanProceed = len(snap.Blockers) == 0

	return domain.NewDeploymentPlanSummary(snap)
}

// OrderServices returns the enabled services in evaluation order. Duplicate
// names are rejected.
func OrderServices(services []ServiceConfig) ([]ServiceConfig, error) {
	seen := make(map[string]bool, len(services))
	var enabled []ServiceConfig
	for _, s := range services {
		if !s.Enabled {
			continue
		}
		if s.Name == "" {
			return nil, domain.ErrMissingServiceName
		}
		if seen[s.Name] {
			return nil, domain.NewPlanError(s.Name, "configured more than once", domain.ErrDuplicateService)
		}
		seen[s.Name] = true
		enabled = append(enabled, s)
	}

	sort.SliceStable(enabled, func(i, j int) bool {
		ri, rj := typeRank(enabled[i].Type), typeRank(enabled[j].Type)
		if ri != rj {
			return ri < rj
		}
		return enabled[i].Name < enabled[j].Name
	})
	return enabled, nil
}

// typeRank places plannable types first in table order; every other type
// shares the last rank and is ordered by name.
func typeRank(t domain.ServiceType) int {
	plannable := domain.PlannableTypes()
	for i, p := range plannable {
		if p == t {
			return i
		}
	}
	return len(plannable)
}

func planWarnings(p domain.ServiceDeploymentPlan) []string {
	var out []string
	if p.Strategy == domain.StrategyAlongside {
		out = append(out, fmt.Sprintf("%s: runs ALONGSIDE an existing instance on port %d; point the application at %s",
			p.ServiceName, p.Port, p.ConnectionString))
	}
	if p.Strategy != domain.StrategySkip && p.CompatibilityLevel != "" && p.CompatibilityLevel.Degraded() && p.CompatibilityLevel != domain.SupportUnknown {
		out = append(out, fmt.Sprintf("%s: compatibility level is %s", p.ServiceName, p.CompatibilityLevel))
	}
	return out
}

func planRecommendations(cfg ServiceConfig, p domain.ServiceDeploymentPlan) []string {
	var out []string
	switch p.Strategy {
	case domain.StrategyReuse:
		out = append(out,
			fmt.Sprintf("%s: the reused instance keeps its existing credentials; supply them in configuration", p.ServiceName),
			fmt.Sprintf("%s: verify connectivity to %s before deploying", p.ServiceName, p.ConnectionString))
	case domain.StrategyCreate, domain.StrategyAlongside:
		if cfg.Version == "" {
			out = append(out, fmt.Sprintf("%s: pin the version (resolved to %s)", p.ServiceName, p.Version))
		}
	}
	return out
}

// probeWarnings surfaces diagnostic notes left by failed probe candidates.
func probeWarnings(detected []domain.DetectedService) []string {
	var out []string
	for _, d := range detected {
		for _, n := range d.Notes {
			out = append(out, fmt.Sprintf("probe %s (%s): %s", d.DetectedBy, d.Name, n))
		}
	}
	return out
}

func needsEngineVersion(snap domain.PlanSnapshot) bool {
	for _, p := range snap.Services {
		if p.Type == domain.TypeRelationalDB && p.Strategy != domain.StrategySkip {
			return true
		}
	}
	return false
}

func dedupe(in []string) []string {
	if len(in) == 0 {
		return []string{}
	}
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
