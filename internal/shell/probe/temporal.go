package probe

import (
	"context"

	"github.com/artpar/svcplan/internal/core/detect"
	"github.com/artpar/svcplan/internal/core/domain"
	"github.com/artpar/svcplan/internal/shell/xexec"
)

// =============================================================================
// Temporal Probe
// =============================================================================

// temporalProbe treats an accepting frontend port as liveness. The version
// comes from the CLI banner; the frontend gRPC API is not queried.
type temporalProbe struct {
	target Target
	runner xexec.Runner
	dialer Dialer
}

func newTemporalProbe(target Target, deps Deps) *temporalProbe {
	return &temporalProbe{target: target, runner: deps.Runner, dialer: deps.Dialer}
}

func (p *temporalProbe) Name() string { return "temporal" }

func (p *temporalProbe) Detect(ctx context.Context) ([]domain.DetectedService, error) {
	outcome := detect.ProbeOutcome{
		Installed: installed(p.runner, "temporal", "temporal-server", "tctl"),
	}
	if err := p.dialer.Dial(ctx, p.target.Host, p.target.Port); err == nil {
		outcome.PortOpen = true
		outcome.Alive = true
	}

	status, ok := detect.NativeStatus(outcome)
	if !ok {
		return nil, nil
	}

	svc := domain.DetectedService{
		Name:       p.Name(),
		Type:       domain.TypeWorkflowEngine,
		Status:     status,
		Version:    domain.VersionUnknown,
		Host:       p.target.Host,
		Port:       p.target.Port,
		DetectedBy: p.Name(),
		Metadata:   map[string]string{},
	}

	version, notes, found := firstOf(ctx,
		cliBanner(p.runner, detect.TemporalBannerVersion, "temporal", "--version"),
		cliBanner(p.runner, detect.TemporalBannerVersion, "temporal-server", "--version"),
	)
	if found {
		svc.Version = version
	} else {
		svc.Notes = notes
	}
	return []domain.DetectedService{svc.WithFingerprint()}, nil
}
