package probe

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/artpar/svcplan/internal/core/detect"
	"github.com/artpar/svcplan/internal/core/domain"
	"github.com/artpar/svcplan/internal/shell/docker"
	"github.com/artpar/svcplan/internal/shell/xexec"
)

// =============================================================================
// Container Probe
// =============================================================================

// containerProbe reports the Docker daemon itself and every container whose
// image, name or ports match a known service signature.
type containerProbe struct {
	host    string
	factory DockerFactory
	runner  xexec.Runner
	logger  *slog.Logger
}

func newContainerProbe(host string, deps Deps, logger *slog.Logger) *containerProbe {
	return &containerProbe{host: host, factory: deps.Docker, runner: deps.Runner, logger: logger}
}

func (p *containerProbe) Name() string { return "docker" }

func (p *containerProbe) Detect(ctx context.Context) ([]domain.DetectedService, error) {
	client, err := p.factory(ctx, p.host)
	if err != nil {
		return p.unreachable(err), nil
	}
	defer client.Close()

	if err := client.Ping(ctx); err != nil {
		return p.unreachable(err), nil
	}

	runtime := domain.DetectedService{
		Name:       "docker",
		Type:       domain.TypeContainerRuntime,
		Status:     domain.StatusRunning,
		Version:    domain.VersionUnknown,
		Host:       "localhost",
		DetectedBy: p.Name(),
		Metadata:   map[string]string{},
	}
	if info, err := client.ServerVersion(ctx); err == nil {
		runtime.Version = info.Version
		runtime.Metadata["api_version"] = info.APIVersion
		runtime.Metadata["os"] = info.OS
		runtime.Metadata["arch"] = info.Arch
	} else {
		runtime.Notes = append(runtime.Notes, "server version: "+err.Error())
	}

	containers, err := client.ListContainers(ctx, docker.ListOptions{All: true})
	if err != nil {
		runtime.Notes = append(runtime.Notes, "list containers: "+err.Error())
		return []domain.DetectedService{runtime.WithFingerprint()}, nil
	}

	out := []domain.DetectedService{runtime.WithFingerprint()}
	for _, c := range containers {
		facts := detect.ContainerFacts{Image: c.Image, Name: c.Name, Ports: c.ContainerPorts()}
		t, ok := detect.Classify(facts)
		if !ok {
			continue
		}
		if full, err := client.InspectContainer(ctx, c.ID); err == nil {
			c = *full
		} else {
			p.logger.Debug("inspect failed, using list data", "container", c.Name, "error", err)
		}
		out = append(out, containerService(c, t))
	}
	return out, nil
}

// containerService converts one matched container. A container that does
// not publish the service's port is reported on port 0 and degraded, since
// nothing on the host can reach it.
func containerService(c docker.ContainerInfo, t domain.ServiceType) domain.DetectedService {
	info := t.Info()
	svc := domain.DetectedService{
		Name:       strings.TrimPrefix(c.Name, "/"),
		Type:       t,
		Status:     detect.ContainerStatus(c.State, c.Health),
		Version:    detect.ImageVersion(c.Image),
		Host:       "localhost",
		Port:       c.HostPortFor(info.DefaultPort),
		DetectedBy: "docker",
		Metadata: map[string]string{
			"container_id": shortID(c.ID),
			"image":        c.Image,
			"state":        c.State,
		},
	}
	if c.Health != "" {
		svc.Metadata["health"] = c.Health
	}
	if c.PID > 0 {
		pid := c.PID
		svc.PID = &pid
	}
	if svc.Port == 0 {
		for _, b := range c.Ports {
			if b.HostPort != 0 {
				svc.Port = b.HostPort
				break
			}
		}
	}
	if svc.Port == 0 {
		if svc.Status == domain.StatusRunning {
			svc.Status = domain.StatusDegraded
		}
		svc.Notes = append(svc.Notes, fmt.Sprintf("container does not publish port %d to the host", info.DefaultPort))
	}
	return svc.WithFingerprint()
}

// unreachable reports the runtime as stopped when the CLI is installed and
// reports nothing otherwise.
func (p *containerProbe) unreachable(err error) []domain.DetectedService {
	if !installed(p.runner, "docker") {
		return nil
	}
	svc := domain.DetectedService{
		Name:       "docker",
		Type:       domain.TypeContainerRuntime,
		Status:     domain.StatusStopped,
		Version:    domain.VersionUnknown,
		Host:       "localhost",
		DetectedBy: p.Name(),
		Notes:      []string{"daemon not reachable: " + err.Error()},
	}
	return []domain.DetectedService{svc.WithFingerprint()}
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
