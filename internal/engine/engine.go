// Package engine wires the prober, the manifest resolver, the planner and the
// plan store into one planning run.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/artpar/svcplan/internal/core/compat"
	"github.com/artpar/svcplan/internal/core/deployment"
	"github.com/artpar/svcplan/internal/core/domain"
	"github.com/artpar/svcplan/internal/report"
	"github.com/artpar/svcplan/internal/shell/manifest"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrMissingDependency is returned by New when a required collaborator is nil.
	ErrMissingDependency = errors.New("missing engine dependency")

	// ErrMissingDestination is returned when no output writer is given.
	ErrMissingDestination = errors.New("output destination is required")
)

// =============================================================================
// Collaborators
// =============================================================================

// Detector discovers backing services. *probe.Prober implements it.
type Detector interface {
	DetectAll(ctx context.Context) []domain.DetectedService
}

// VersionResolver reads the declared workflow-engine SDK version.
// *manifest.Resolver implements it.
type VersionResolver interface {
	Resolve(ctx context.Context, dir string) (*manifest.Declaration, error)
}

// PlanSaver persists plans. store.Store implements it.
type PlanSaver interface {
	SavePlan(ctx context.Context, plan *domain.DeploymentPlanSummary) error
}

// Config is the planning configuration snapshot.
type Config struct {
	Services          []deployment.ServiceConfig
	AllowIncompatible bool
	// Save persists every plan when a store is configured.
	Save   bool
	Matrix *compat.Matrix
}

// Deps are the engine's collaborators. Prober and Resolver are required.
type Deps struct {
	Prober   Detector
	Resolver VersionResolver
	Ports    deployment.PortChecker
	Store    PlanSaver
	Logger   *slog.Logger
	Now      func() time.Time
}

// =============================================================================
// Engine
// =============================================================================

// Engine runs planning passes. It holds no per-run state and is safe for
// sequential reuse.
type Engine struct {
	cfg  Config
	deps Deps
}

// New creates an Engine.
func New(cfg Config, deps Deps) (*Engine, error) {
	if deps.Prober == nil {
		return nil, fmt.Errorf("%w: prober", ErrMissingDependency)
	}
	if deps.Resolver == nil {
		return nil, fmt.Errorf("%w: resolver", ErrMissingDependency)
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Ports == nil {
		deps.Ports = deployment.NoPortsInUse
	}
	if len(cfg.Services) == 0 {
		cfg.Services = deployment.DefaultServices()
	}
	return &Engine{cfg: cfg, deps: deps}, nil
}

// Request is one planning invocation.
type Request struct {
	Project string
	// Dir is the project directory; empty means the working directory.
	Dir string
	// EngineVersion overrides the version read from the manifests.
	EngineVersion string
	// AllowIncompatible overrides the configured value when set.
	AllowIncompatible *bool
	// Save overrides the configured value when set.
	Save *bool
}

// RunContext is the state of one planning run. It is built once per Plan
// call and discarded afterwards.
type RunContext struct {
	Project           string
	Dir               string
	Now               time.Time
	Logger            *slog.Logger
	Config            Config
	AllowIncompatible bool
	Save              bool
}

// Result is a plan together with the inputs it was computed from.
type Result struct {
	Plan        *domain.DeploymentPlanSummary
	Declaration *manifest.Declaration
	Saved       bool
}

func (e *Engine) runContext(req Request) (*RunContext, error) {
	if req.Project == "" {
		return nil, domain.ErrMissingProjectName
	}
	dir := req.Dir
	if dir == "" {
		dir = "."
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", manifest.ErrInvalidProjectDir, err)
	}

	rc := &RunContext{
		Project:           req.Project,
		Dir:               abs,
		Now:               e.deps.Now().UTC(),
		Config:            e.cfg,
		AllowIncompatible: e.cfg.AllowIncompatible,
		Save:              e.cfg.Save,
	}
	if req.AllowIncompatible != nil {
		rc.AllowIncompatible = *req.AllowIncompatible
	}
	if req.Save != nil {
		rc.Save = *req.Save
	}
	rc.Logger = e.deps.Logger.With("project", rc.Project)
	return rc, nil
}

// Plan detects services, reads the declared SDK version, and returns the
// aggregated plan. Detection and version resolution run concurrently.
func (e *Engine) Plan(ctx context.Context, req Request) (*Result, error) {
	rc, err := e.runContext(req)
	if err != nil {
		return nil, err
	}
	start := time.Now()

	var (
		detected []domain.DetectedService
		decl     *manifest.Declaration
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		detected = e.deps.Prober.DetectAll(gctx)
		return nil
	})
	g.Go(func() error {
		d, err := e.deps.Resolver.Resolve(gctx, rc.Dir)
		if err != nil {
			return err
		}
		decl = d
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	engineVersion := req.EngineVersion
	if engineVersion == "" {
		engineVersion = decl.Version()
	}
	if decl != nil {
		rc.Logger.Debug("declared SDK version", "package", decl.Package, "source", decl.Source, "requirement", decl.Requirement.String())
	} else if req.EngineVersion == "" {
		rc.Logger.Info("no declared SDK version found", "dir", rc.Dir)
	}

	plan, err := deployment.Aggregate(ctx, deployment.PlanRequest{
		Project:           rc.Project,
		Services:          rc.Config.Services,
		Detected:          detected,
		EngineVersion:     engineVersion,
		AllowIncompatible: rc.AllowIncompatible,
		Ports:             e.deps.Ports,
		Matrix:            rc.Config.Matrix,
		Now:               rc.Now,
	})
	if err != nil {
		return nil, err
	}

	res := &Result{Plan: plan, Declaration: decl}
	if rc.Save && e.deps.Store != nil {
		if err := e.deps.Store.SavePlan(ctx, plan); err != nil {
			return nil, fmt.Errorf("save plan: %w", err)
		}
		res.Saved = true
	}

	rc.Logger.Info("plan ready",
		"plan_id", plan.ID(),
		"reuse", len(plan.Partition(domain.StrategyReuse)),
		"create", len(plan.Partition(domain.StrategyCreate)),
		"alongside", len(plan.Partition(domain.StrategyAlongside)),
		"skip", len(plan.Partition(domain.StrategySkip)),
		"can_proceed", plan.CanProceed(),
		"duration", time.Since(start))
	return res, nil
}

// PlanTo runs Plan and renders the result to w.
func (e *Engine) PlanTo(ctx context.Context, req Request, w io.Writer, format report.Format) (*Result, error) {
	if w == nil {
		return nil, ErrMissingDestination
	}
	res, err := e.Plan(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := report.Render(w, res.Plan, format); err != nil {
		return res, fmt.Errorf("render plan: %w", err)
	}
	return res, nil
}

// Detect runs the prober alone.
func (e *Engine) Detect(ctx context.Context) []domain.DetectedService {
	return e.deps.Prober.DetectAll(ctx)
}

// Resolve runs the manifest resolver alone. Empty dir means the working
// directory.
func (e *Engine) Resolve(ctx context.Context, dir string) (*manifest.Declaration, error) {
	if dir == "" {
		dir = "."
	}
	return e.deps.Resolver.Resolve(ctx, dir)
}
