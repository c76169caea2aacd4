package deployment

import (
	"context"
	"fmt"
	"time"

	"github.com/artpar/svcplan/internal/core/compat"
	"github.com/artpar/svcplan/internal/core/domain"
)

// =============================================================================
// Per-Service Strategy Selection
// =============================================================================

// Select decides how one configured service is provided.
//
// The decision order:
//  0. mode skip: SKIP
//  1. no detected instance of the type: CREATE on the configured port, or the
//     next free port when it is taken
//  2. instance present but not running: ALONGSIDE when its port is still held,
//     otherwise CREATE on the configured port
//  3. instance running: REUSE when it passes the version policy (and, for the
//     relational database, the workflow-engine matrix) and reuse is preferred;
//     otherwise ALONGSIDE, leaving the existing instance untouched
//  4. types without safe reuse (the workflow engine) always CREATE
//
// The only side effects are the read-only probes made through in.Ports.
func Select(ctx context.Context, in SelectInput) (Decision, error) {
	cfg := in.Service.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return Decision{}, err
	}

	s := selection{in: in, cfg: cfg, info: cfg.Type.Info(), taken: takenPorts(in)}
	if s.in.Now.IsZero() {
		s.in.Now = time.Now().UTC()
	}

	if cfg.Mode == ModeSkip {
		return s.skip("skipped by configuration (mode: skip)"), nil
	}
	if !s.info.Plannable {
		return s.skip(fmt.Sprintf("%s is detected for context only and is never provisioned", s.info.DisplayName)), nil
	}

	existing, found := domain.BestMatch(in.Detected, cfg.Type, cfg.Port)

	if !s.info.SafeReuse {
		reason := fmt.Sprintf("%s is never reused: a shared instance would mix workflow state across tenants", s.info.DisplayName)
		if found && existing.Running() {
			reason += fmt.Sprintf(" (existing instance at %s left untouched)", existing.Address())
		}
		return s.create(ctx, reason)
	}

	if !found {
		return s.create(ctx, fmt.Sprintf("no %s instance detected", s.info.DisplayName))
	}

	if !existing.Running() {
		if s.portHeld(ctx, cfg.Port) {
			reason := fmt.Sprintf("%s at %s is %s and port %d is held", s.info.DisplayName, existing.Address(), existing.Status, cfg.Port)
			return s.alongside(ctx, existing, cfg.Port, reason)
		}
		return s.create(ctx, fmt.Sprintf("%s at %s is %s", s.info.DisplayName, existing.Address(), existing.Status))
	}

	return s.running(ctx, existing)
}

// selection carries the state of one Select call.
type selection struct {
	in    SelectInput
	cfg   ServiceConfig
	info  domain.TypeInfo
	taken map[int]string

	warnings []string
	blockers []string
}

// takenPorts merges ports claimed by earlier plans with ports held by running
// or degraded detected instances of any type.
func takenPorts(in SelectInput) map[int]string {
	taken := make(map[int]string, len(in.Claimed))
	for port, d := range domain.OccupiedPorts(in.Detected) {
		taken[port] = d.Name
	}
	for port, name := range in.Claimed {
		taken[port] = name
	}
	return taken
}

func (s *selection) checker() PortChecker {
	if s.in.Ports == nil {
		return NoPortsInUse
	}
	return s.in.Ports
}

func (s *selection) matrix() compat.Matrix {
	if s.in.Matrix != nil {
		return *s.in.Matrix
	}
	return compat.DefaultMatrix()
}

// portHeld reports whether port is claimed, held by a detected instance or
// accepting connections.
func (s *selection) portHeld(ctx context.Context, port int) bool {
	if _, ok := s.taken[port]; ok {
		return true
	}
	return s.checker().IsPortInUse(ctx, s.cfg.Host, port)
}

// running handles step 3: a live instance of the type exists.
func (s *selection) running(ctx context.Context, existing domain.DetectedService) (Decision, error) {
	check := compat.CheckMinimum(s.cfg.Type, existing.Version)
	if !check.Verified {
		s.warnings = append(s.warnings, fmt.Sprintf("%s: %s", s.cfg.Name, check.Reason))
	}

	var verdict *domain.CompatibilityVerdict
	if s.cfg.Type == domain.TypeRelationalDB {
		v := s.matrix().Evaluate(s.in.EngineVersion, existing.Version)
		verdict = &v
		if v.Warning != "" {
			s.warnings = append(s.warnings, fmt.Sprintf("%s: %s", s.cfg.Name, v.Warning))
		}
	}

	switch {
	case !check.Compatible:
		return s.alongside(ctx, existing, existing.Port,
			fmt.Sprintf("existing %s at %s is incompatible: %s", s.info.DisplayName, existing.Address(), check.Reason))
	case verdict != nil && !verdict.Compatible:
		return s.alongside(ctx, existing, existing.Port,
			fmt.Sprintf("existing %s %s at %s is incompatible with the declared %s SDK %s: %s",
				s.info.DisplayName, existing.Version, existing.Address(),
				domain.TypeWorkflowEngine.Info().DisplayName, s.in.EngineVersion, verdict.RecommendedAction))
	case !s.cfg.PreferReuse:
		return s.alongside(ctx, existing, existing.Port,
			fmt.Sprintf("reuse is disabled for %s; existing %s at %s keeps its port", s.cfg.Name, s.info.DisplayName, existing.Address()))
	}

	if owner, ok := s.in.Claimed[existing.Port]; ok {
		return s.alongside(ctx, existing, existing.Port,
			fmt.Sprintf("existing %s at %s is already reused by %s", s.info.DisplayName, existing.Address(), owner))
	}

	return s.reuse(existing, verdict), nil
}

func (s *selection) reuse(existing domain.DetectedService, verdict *domain.CompatibilityVerdict) Decision {
	p := s.base(domain.StrategyReuse)
	p.Host = existing.Host
	p.Port = existing.Port
	p.Version = existing.Version
	p.DetectedFingerprint = existing.Fingerprint
	p.ConnectionString = ConnectionString(s.cfg.Type, existing.Host, existing.Port, s.cfg.User, s.cfg.Database)
	p.Reason = fmt.Sprintf("reusing running %s %s at %s (detected by %s)",
		s.info.DisplayName, existing.Version, existing.Address(), existing.DetectedBy)
	p.Compatibility = verdict
	p.CompatibilityLevel = s.level(existing.Version, verdict)
	p.RequiresExtraConfig = existing.Port != s.info.DefaultPort
	p.Metadata = map[string]string{
		"detected_by":     existing.DetectedBy,
		"detected_name":   existing.Name,
		"detected_status": string(existing.Status),
	}
	return s.decision(p)
}

// create handles CREATE: the configured port, or the next free one.
func (s *selection) create(ctx context.Context, reason string) (Decision, error) {
	port, err := NextFreePort(ctx, s.cfg.Host, s.cfg.Port, s.taken, s.checker())
	if err != nil {
		return Decision{}, domain.NewPlanError(s.cfg.Name, fmt.Sprintf("no free port from %d", s.cfg.Port), err)
	}

	p := s.base(domain.StrategyCreate)
	p.Port = port
	p.InstanceName = s.instanceName(domain.StrategyCreate)
	p.Reason = fmt.Sprintf("%s; creating %s on port %d", reason, s.cfg.Name, port)
	if port != s.cfg.Port {
		p.Reason += fmt.Sprintf(" because port %d is in use", s.cfg.Port)
	}
	s.provisioned(&p)
	return s.decision(p), nil
}

// alongside handles ALONGSIDE next to the instance on existingPort.
func (s *selection) alongside(ctx context.Context, existing domain.DetectedService, existingPort int, reason string) (Decision, error) {
	port, err := ResolveAlongsidePort(ctx, s.cfg.Type, s.cfg.Host, existingPort, s.taken, s.checker())
	if err != nil {
		return Decision{}, domain.NewPlanError(s.cfg.Name, fmt.Sprintf("no free alongside port next to %d", existingPort), err)
	}

	p := s.base(domain.StrategyAlongside)
	p.Port = port
	p.InstanceName = s.instanceName(domain.StrategyAlongside)
	p.Reason = fmt.Sprintf("%s; running a new instance alongside on port %d", reason, port)
	p.RequiresExtraConfig = true
	p.Metadata = map[string]string{
		"alongside_of":          existing.Address(),
		"alongside_fingerprint": existing.Fingerprint,
	}
	s.provisioned(&p)
	return s.decision(p), nil
}

func (s *selection) skip(reason string) Decision {
	p := s.base(domain.StrategySkip)
	p.Port = s.cfg.Port
	p.Version = s.cfg.Version
	p.Reason = reason
	p.CompatibilityLevel = domain.SupportUnknown
	return s.decision(p)
}

// provisioned fills version, connection string and compatibility for a plan
// that asks for a new instance, and records a blocker when the configured
// version is known to be incompatible.
func (s *selection) provisioned(p *domain.ServiceDeploymentPlan) {
	p.Version = s.resolveVersion()
	p.ConnectionString = ConnectionString(s.cfg.Type, p.Host, p.Port, s.cfg.User, s.cfg.Database)
	if p.Port != s.info.DefaultPort {
		p.RequiresExtraConfig = true
	}

	var verdict *domain.CompatibilityVerdict
	if s.cfg.Type == domain.TypeRelationalDB && s.in.EngineVersion != "" {
		v := s.matrix().Evaluate(s.in.EngineVersion, p.Version)
		verdict = &v
		if !v.Compatible && s.cfg.Version != "" {
			s.blockers = append(s.blockers, fmt.Sprintf("%s: configured %s %s is incompatible with %s SDK %s: %s",
				s.cfg.Name, s.info.DisplayName, s.cfg.Version,
				domain.TypeWorkflowEngine.Info().DisplayName, s.in.EngineVersion, v.RecommendedAction))
		}
	}
	if s.cfg.Version != "" {
		if check := compat.CheckMinimum(s.cfg.Type, s.cfg.Version); check.Verified && !check.Compatible {
			s.blockers = append(s.blockers, fmt.Sprintf("%s: %s", s.cfg.Name, check.Reason))
		}
	}
	p.Compatibility = verdict
	p.CompatibilityLevel = s.level(p.Version, verdict)
}

// resolveVersion picks the version of a new instance: the configured one,
// else the matrix recommendation for the relational database, else the
// preferred version from the policy table.
func (s *selection) resolveVersion() string {
	if s.cfg.Version != "" {
		return s.cfg.Version
	}
	if s.cfg.Type == domain.TypeRelationalDB {
		if e, ok := s.matrix().Lookup(s.in.EngineVersion); ok {
			return e.DBRecommended
		}
	}
	return compat.PreferredVersion(s.cfg.Type)
}

func (s *selection) level(v string, verdict *domain.CompatibilityVerdict) domain.SupportLevel {
	if verdict != nil {
		return verdict.SupportLevel
	}
	if check := compat.CheckMinimum(s.cfg.Type, v); check.Verified && check.Compatible {
		return domain.SupportActive
	}
	return domain.SupportUnknown
}

func (s *selection) instanceName(strategy domain.Strategy) string {
	if s.cfg.InstanceName != "" {
		if strategy == domain.StrategyAlongside {
			return s.cfg.InstanceName + "-alongside"
		}
		return s.cfg.InstanceName
	}
	return InstanceName(s.in.Project, s.cfg.Name, strategy)
}

func (s *selection) base(strategy domain.Strategy) domain.ServiceDeploymentPlan {
	return domain.ServiceDeploymentPlan{
		ServiceName: s.cfg.Name,
		Type:        s.cfg.Type,
		Strategy:    strategy,
		Host:        s.cfg.Host,
		CreatedAt:   s.in.Now,
	}
}

func (s *selection) decision(p domain.ServiceDeploymentPlan) Decision {
	return Decision{Plan: p, Warnings: s.warnings, Blockers: s.blockers}
}
