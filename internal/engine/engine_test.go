package engine

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/artpar/svcplan/internal/core/deployment"
	"github.com/artpar/svcplan/internal/core/domain"
	"github.com/artpar/svcplan/internal/core/version"
	"github.com/artpar/svcplan/internal/report"
	"github.com/artpar/svcplan/internal/shell/manifest"
	"github.com/artpar/svcplan/internal/shell/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// =============================================================================
// Fakes
// =============================================================================

type fakeDetector struct {
	services []domain.DetectedService
	calls    int
	mu       sync.Mutex
}

func (f *fakeDetector) DetectAll(ctx context.Context) []domain.DetectedService {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.services
}

type fakeResolver struct {
	decl *manifest.Declaration
	err  error
	dirs []string
	mu   sync.Mutex
}

func (f *fakeResolver) Resolve(ctx context.Context, dir string) (*manifest.Declaration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dirs = append(f.dirs, dir)
	return f.decl, f.err
}

type failingSaver struct{}

func (failingSaver) SavePlan(context.Context, *domain.DeploymentPlanSummary) error {
	return errors.New("disk full")
}

func declaration(t *testing.T, spec string) *manifest.Declaration {
	t.Helper()
	req, err := version.ParseRequirement(spec)
	require.NoError(t, err)
	return &manifest.Declaration{
		Package:     manifest.DefaultPackage,
		Source:      "requirements.txt",
		Raw:         manifest.DefaultPackage + spec,
		Requirement: req,
	}
}

func running(t domain.ServiceType, port int, v string) domain.DetectedService {
	return domain.DetectedService{
		Name:       t.Info().DefaultName,
		Type:       t,
		Status:     domain.StatusRunning,
		Version:    v,
		Host:       "localhost",
		Port:       port,
		DetectedBy: "test",
	}.WithFingerprint()
}

func newEngine(t *testing.T, cfg Config, deps Deps) *Engine {
	t.Helper()
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if deps.Now == nil {
		deps.Now = func() time.Time { return testNow }
	}
	e, err := New(cfg, deps)
	require.NoError(t, err)
	return e
}

// =============================================================================
// Constructor Tests
// =============================================================================

func TestNew_RequiresProberAndResolver(t *testing.T) {
	_, err := New(Config{}, Deps{Resolver: &fakeResolver{}})
	assert.ErrorIs(t, err, ErrMissingDependency)

	_, err = New(Config{}, Deps{Prober: &fakeDetector{}})
	assert.ErrorIs(t, err, ErrMissingDependency)

	e, err := New(Config{}, Deps{Prober: &fakeDetector{}, Resolver: &fakeResolver{}})
	require.NoError(t, err)
	assert.Len(t, e.cfg.Services, 3)
}

// =============================================================================
// Plan Tests
// =============================================================================

func TestPlan_UsesDeclaredVersion(t *testing.T) {
	det := &fakeDetector{services: []domain.DetectedService{
		running(domain.TypeCacheStore, 6379, "7.2.4"),
		running(domain.TypeRelationalDB, 5432, "12.5"),
	}}
	res := &fakeResolver{decl: declaration(t, ">=1.7.0,<2")}
	e := newEngine(t, Config{}, Deps{Prober: det, Resolver: res})

	out, err := e.Plan(t.Context(), Request{Project: "shop", Dir: "."})
	require.NoError(t, err)

	plan := out.Plan
	assert.Equal(t, "shop", plan.ProjectName())
	assert.Equal(t, testNow, plan.CreatedAt())
	assert.Equal(t, []string{"redis"}, plan.Partition(domain.StrategyReuse))
	assert.Equal(t, []string{"postgres"}, plan.Partition(domain.StrategyAlongside))
	assert.Equal(t, []string{"temporal"}, plan.Partition(domain.StrategyCreate))
	assert.False(t, out.Saved)
	assert.Equal(t, "1.7.0", out.Declaration.Version())

	require.Len(t, res.dirs, 1)
	assert.True(t, filepath.IsAbs(res.dirs[0]))
	assert.Equal(t, 1, det.calls)
}

func TestPlan_EngineVersionOverride(t *testing.T) {
	det := &fakeDetector{services: []domain.DetectedService{
		running(domain.TypeRelationalDB, 5432, "12.5"),
	}}
	e := newEngine(t, Config{}, Deps{Prober: det, Resolver: &fakeResolver{decl: declaration(t, "==1.7.0")}})

	out, err := e.Plan(t.Context(), Request{Project: "shop", EngineVersion: "1.5.0"})
	require.NoError(t, err)
	assert.Equal(t, []string{"postgres"}, out.Plan.Partition(domain.StrategyReuse))
}

func TestPlan_NoDeclarationRecommendsOne(t *testing.T) {
	e := newEngine(t, Config{}, Deps{Prober: &fakeDetector{}, Resolver: &fakeResolver{}})

	out, err := e.Plan(t.Context(), Request{Project: "shop"})
	require.NoError(t, err)
	assert.Nil(t, out.Declaration)
	assert.True(t, out.Plan.CanProceed())
	assert.NotEmpty(t, out.Plan.Recommendations())
}

func TestPlan_BlockerAndOverride(t *testing.T) {
	services := deployment.DefaultServices()
	services[1].Version = "11"
	cfg := Config{Services: services}
	deps := Deps{Prober: &fakeDetector{}, Resolver: &fakeResolver{decl: declaration(t, "==1.7.0")}}

	out, err := newEngine(t, cfg, deps).Plan(t.Context(), Request{Project: "shop"})
	require.NoError(t, err)
	assert.False(t, out.Plan.CanProceed())

	allow := true
	out, err = newEngine(t, cfg, deps).Plan(t.Context(), Request{Project: "shop", AllowIncompatible: &allow})
	require.NoError(t, err)
	assert.True(t, out.Plan.CanProceed())
}

func TestPlan_SavesWhenConfigured(t *testing.T) {
	s, err := store.NewSQLiteStore(store.MemoryDSN)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	e := newEngine(t, Config{Save: true}, Deps{Prober: &fakeDetector{}, Resolver: &fakeResolver{}, Store: s})
	out, err := e.Plan(t.Context(), Request{Project: "shop"})
	require.NoError(t, err)
	assert.True(t, out.Saved)

	got, err := s.GetPlan(t.Context(), out.Plan.ID())
	require.NoError(t, err)
	assert.Equal(t, out.Plan.ServiceNames(), got.ServiceNames())

	noSave := false
	out, err = e.Plan(t.Context(), Request{Project: "shop", Save: &noSave})
	require.NoError(t, err)
	assert.False(t, out.Saved)
}

func TestPlan_SaveFailureIsReturned(t *testing.T) {
	e := newEngine(t, Config{Save: true}, Deps{Prober: &fakeDetector{}, Resolver: &fakeResolver{}, Store: failingSaver{}})
	_, err := e.Plan(t.Context(), Request{Project: "shop"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

func TestPlan_Errors(t *testing.T) {
	e := newEngine(t, Config{}, Deps{Prober: &fakeDetector{}, Resolver: &fakeResolver{}})

	_, err := e.Plan(t.Context(), Request{})
	assert.ErrorIs(t, err, domain.ErrMissingProjectName)

	e = newEngine(t, Config{}, Deps{Prober: &fakeDetector{}, Resolver: &fakeResolver{err: manifest.ErrInvalidProjectDir}})
	_, err = e.Plan(t.Context(), Request{Project: "shop", Dir: "/does/not/exist"})
	assert.ErrorIs(t, err, manifest.ErrInvalidProjectDir)

	dup := []deployment.ServiceConfig{
		{Name: "cache", Type: domain.TypeCacheStore, Enabled: true},
		{Name: "cache", Type: domain.TypeCacheStore, Enabled: true},
	}
	e = newEngine(t, Config{Services: dup}, Deps{Prober: &fakeDetector{}, Resolver: &fakeResolver{}})
	_, err = e.Plan(t.Context(), Request{Project: "shop"})
	assert.ErrorIs(t, err, domain.ErrDuplicateService)
}

func TestPlan_PortsInUseMoveCreate(t *testing.T) {
	busy := deployment.PortCheckerFunc(func(_ context.Context, _ string, port int) bool {
		return port == 6379
	})
	e := newEngine(t, Config{}, Deps{Prober: &fakeDetector{}, Resolver: &fakeResolver{}, Ports: busy})

	out, err := e.Plan(t.Context(), Request{Project: "shop"})
	require.NoError(t, err)
	redis, ok := out.Plan.Service("redis")
	require.True(t, ok)
	assert.Equal(t, domain.StrategyCreate, redis.Strategy)
	assert.Equal(t, 6380, redis.Port)
}

// =============================================================================
// PlanTo / Detect / Resolve Tests
// =============================================================================

func TestPlanTo_RendersPlan(t *testing.T) {
	e := newEngine(t, Config{}, Deps{Prober: &fakeDetector{}, Resolver: &fakeResolver{}})

	var buf bytes.Buffer
	out, err := e.PlanTo(t.Context(), Request{Project: "shop"}, &buf, report.FormatJSON)
	require.NoError(t, err)

	decoded, err := report.DecodeJSON(&buf)
	require.NoError(t, err)
	assert.Equal(t, out.Plan.ID(), decoded.ID())
}

func TestPlanTo_NilWriter(t *testing.T) {
	det := &fakeDetector{}
	e := newEngine(t, Config{}, Deps{Prober: det, Resolver: &fakeResolver{}})

	_, err := e.PlanTo(t.Context(), Request{Project: "shop"}, nil, report.FormatText)
	assert.ErrorIs(t, err, ErrMissingDestination)
	assert.Zero(t, det.calls)
}

func TestDetectAndResolve(t *testing.T) {
	det := &fakeDetector{services: []domain.DetectedService{running(domain.TypeCacheStore, 6379, "7.2.4")}}
	res := &fakeResolver{decl: declaration(t, "~=1.7")}
	e := newEngine(t, Config{}, Deps{Prober: det, Resolver: res})

	assert.Len(t, e.Detect(t.Context()), 1)

	decl, err := e.Resolve(t.Context(), "")
	require.NoError(t, err)
	assert.Equal(t, "1.7.0", decl.Version())
	assert.Equal(t, []string{"."}, res.dirs)
}
