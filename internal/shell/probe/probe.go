// Package probe discovers running backing services on the host: native
// processes reached over TCP and their CLIs, containers on the local Docker
// daemon, a Kubernetes context, and services declared in the project's
// compose file.
//
// Probes are read-only. A probe that fails or panics yields no result and is
// logged; it never aborts the others.
package probe

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/artpar/svcplan/internal/core/domain"
	"github.com/artpar/svcplan/internal/shell/docker"
	"github.com/artpar/svcplan/internal/shell/netcheck"
	"github.com/artpar/svcplan/internal/shell/xexec"
	"golang.org/x/sync/errgroup"
)

// =============================================================================
// Configuration
// =============================================================================

// Default timeouts.
const (
	DefaultTimeout        = 3 * time.Second
	DefaultProcessTimeout = 2 * time.Second
	DefaultPortTimeout    = 500 * time.Millisecond
	DefaultRetries        = 2
)

// Target is where a native probe looks for its service.
type Target struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
}

// Config controls which probes run and how long they may take.
type Config struct {
	// ProjectDir is searched for a compose file when Compose is set.
	ProjectDir string

	// Timeout bounds each probe.
	Timeout time.Duration
	// ProcessTimeout bounds each external CLI invocation.
	ProcessTimeout time.Duration
	// PortTimeout bounds each TCP dial.
	PortTimeout time.Duration

	// Parallel runs probes concurrently.
	Parallel bool
	// Retries bounds the liveness retries of the Redis and PostgreSQL probes.
	Retries int

	// DockerHost overrides DOCKER_HOST.
	DockerHost string
	// Compose enables the compose declaration probe.
	Compose bool

	// Targets holds per-type host, port and credentials. Missing entries use
	// localhost and the type's default port.
	Targets map[domain.ServiceType]Target
}

// DefaultConfig returns the configuration used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		Timeout:        DefaultTimeout,
		ProcessTimeout: DefaultProcessTimeout,
		PortTimeout:    DefaultPortTimeout,
		Parallel:       true,
		Retries:        DefaultRetries,
		Compose:        true,
	}
}

func (c Config) target(t domain.ServiceType) Target {
	tgt := c.Targets[t]
	if tgt.Host == "" {
		tgt.Host = "localhost"
	}
	if tgt.Port == 0 {
		tgt.Port = t.Info().DefaultPort
	}
	return tgt
}

// =============================================================================
// Probe Interface
// =============================================================================

// Probe discovers instances of one service type.
type Probe interface {
	// Name identifies the probe in logs and in DetectedService.DetectedBy.
	Name() string
	// Detect returns the instances found. An error means the probe could not
	// run; it is logged and treated as no result.
	Detect(ctx context.Context) ([]domain.DetectedService, error)
}

// Dialer checks TCP reachability.
type Dialer interface {
	Dial(ctx context.Context, host string, port int) error
}

// DockerFactory opens a Docker client.
type DockerFactory func(ctx context.Context, host string) (docker.Client, error)

// Deps are the outside collaborators of the probes. Zero fields get the real
// implementations.
type Deps struct {
	Runner xexec.Runner
	Dialer Dialer
	Docker DockerFactory
}

func (d Deps) withDefaults(cfg Config, logger *slog.Logger) Deps {
	if d.Runner == nil {
		d.Runner = xexec.New(cfg.ProcessTimeout)
	}
	if d.Dialer == nil {
		d.Dialer = netcheck.New(cfg.PortTimeout, logger)
	}
	if d.Docker == nil {
		d.Docker = func(ctx context.Context, host string) (docker.Client, error) {
			return docker.NewDockerClient(ctx, host)
		}
	}
	return d
}

// =============================================================================
// Prober
// =============================================================================

// Prober runs a fixed set of probes.
type Prober struct {
	probes   []Probe
	timeout  time.Duration
	parallel bool
	logger   *slog.Logger
}

// New creates a Prober with one probe per known service type, plus the
// compose probe when enabled.
func New(cfg Config, deps Deps, logger *slog.Logger) *Prober {
	if logger == nil {
		logger = slog.Default()
	}
	deps = deps.withDefaults(cfg, logger)

	probes := []Probe{
		newRedisProbe(cfg.target(domain.TypeCacheStore), deps, cfg.Retries, cfg.ProcessTimeout),
		newPostgresProbe(cfg.target(domain.TypeRelationalDB), deps, cfg.Retries, cfg.PortTimeout),
		newTemporalProbe(cfg.target(domain.TypeWorkflowEngine), deps),
		newContainerProbe(cfg.DockerHost, deps, logger),
		newOrchestratorProbe(deps),
	}
	if cfg.Compose && cfg.ProjectDir != "" {
		probes = append(probes, newComposeProbe(cfg.ProjectDir))
	}
	return NewWithProbes(probes, cfg, logger)
}

// NewWithProbes creates a Prober over an explicit probe list.
func NewWithProbes(probes []Probe, cfg Config, logger *slog.Logger) *Prober {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Prober{probes: probes, timeout: timeout, parallel: cfg.Parallel, logger: logger}
}

// Probes returns the names of the configured probes in run order.
func (p *Prober) Probes() []string {
	names := make([]string, len(p.probes))
	for i, pr := range p.probes {
		names[i] = pr.Name()
	}
	return names
}

// DetectAll runs every probe and returns the services found, grouped in
// probe order. Probes that have not started when ctx is cancelled are
// skipped; a probe already running continues until its own timeout.
func (p *Prober) DetectAll(ctx context.Context) []domain.DetectedService {
	results := make([][]domain.DetectedService, len(p.probes))

	if p.parallel {
		var g errgroup.Group
		for i, pr := range p.probes {
			g.Go(func() error {
				if ctx.Err() != nil {
					return nil
				}
				results[i] = p.run(ctx, pr)
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for i, pr := range p.probes {
			if ctx.Err() != nil {
				p.logger.Debug("probe skipped", "probe", pr.Name(), "error", ctx.Err())
				break
			}
			results[i] = p.run(ctx, pr)
		}
	}

	var out []domain.DetectedService
	for _, r := range results {
		out = append(out, r...)
	}
	return out
}

// run executes one probe under its own timeout, recovering panics.
func (p *Prober) run(ctx context.Context, pr Probe) (found []domain.DetectedService) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("probe panicked", "probe", pr.Name(), "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
			found = nil
		}
	}()

	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()

	found, err := pr.Detect(pctx)
	if err != nil {
		p.logger.Warn("probe failed", "probe", pr.Name(), "error", err, "duration", time.Since(start))
		return nil
	}
	p.logger.Debug("probe finished", "probe", pr.Name(), "found", len(found), "duration", time.Since(start))
	return found
}
