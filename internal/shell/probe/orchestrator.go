package probe

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/artpar/svcplan/internal/core/domain"
	"github.com/artpar/svcplan/internal/shell/xexec"
)

// =============================================================================
// Kubernetes Probe
// =============================================================================

type orchestratorProbe struct {
	runner xexec.Runner
}

func newOrchestratorProbe(deps Deps) *orchestratorProbe {
	return &orchestratorProbe{runner: deps.Runner}
}

func (p *orchestratorProbe) Name() string { return "kubectl" }

// kubectlVersion is the subset of `kubectl version -o json` that is read.
type kubectlVersion struct {
	ClientVersion *struct {
		GitVersion string `json:"gitVersion"`
	} `json:"clientVersion"`
	ServerVersion *struct {
		GitVersion string `json:"gitVersion"`
		Platform   string `json:"platform"`
	} `json:"serverVersion"`
}

// Detect reports the current kubectl context. kubectl exits non-zero when the
// cluster is unreachable but still prints the client version, so the output
// is parsed regardless of the exit code.
func (p *orchestratorProbe) Detect(ctx context.Context) ([]domain.DetectedService, error) {
	if !installed(p.runner, "kubectl") {
		return nil, nil
	}

	res, runErr := p.runner.Run(ctx, "kubectl", "version", "-o", "json")
	var kv kubectlVersion
	if err := json.Unmarshal([]byte(res.Stdout), &kv); err != nil {
		if runErr != nil {
			return nil, runErr
		}
		return nil, err
	}

	svc := domain.DetectedService{
		Name:       "kubernetes",
		Type:       domain.TypeOrchestrator,
		Status:     domain.StatusStopped,
		Version:    domain.VersionUnknown,
		Host:       "localhost",
		DetectedBy: p.Name(),
		Metadata:   map[string]string{},
	}
	if kv.ClientVersion != nil {
		svc.Metadata["client_version"] = strings.TrimPrefix(kv.ClientVersion.GitVersion, "v")
	}
	if kv.ServerVersion != nil && kv.ServerVersion.GitVersion != "" {
		svc.Status = domain.StatusRunning
		svc.Version = strings.TrimPrefix(kv.ServerVersion.GitVersion, "v")
		svc.Metadata["platform"] = kv.ServerVersion.Platform
	} else if runErr != nil {
		svc.Notes = []string{"cluster not reachable: " + firstLine(res.Stderr)}
	}
	if ctxName, err := p.runner.Run(ctx, "kubectl", "config", "current-context"); err == nil {
		svc.Metadata["context"] = strings.TrimSpace(ctxName.Stdout)
	}
	return []domain.DetectedService{svc.WithFingerprint()}, nil
}
