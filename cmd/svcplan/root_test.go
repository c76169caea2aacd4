package main

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/artpar/svcplan/internal/core/domain"
	"github.com/artpar/svcplan/internal/engine"
	"github.com/artpar/svcplan/internal/report"
	"github.com/artpar/svcplan/internal/shell/manifest"
	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	color.NoColor = true
}

type staticDetector []domain.DetectedService

func (d staticDetector) DetectAll(context.Context) []domain.DetectedService { return d }

// testApp runs commands against a fixed set of detected services and the
// real manifest resolver.
func testApp(detected ...domain.DetectedService) (*app, *bytes.Buffer, *bytes.Buffer) {
	var stdout, stderr bytes.Buffer
	a := newApp(&stdout, &stderr)
	a.newEngine = func(ctx context.Context, cfg *Config, dir string, save bool, logger *slog.Logger) (*engine.Engine, func(), error) {
		services, err := cfg.ServiceConfigs()
		if err != nil {
			return nil, nil, err
		}
		deps := engine.Deps{
			Prober:   staticDetector(detected),
			Resolver: manifest.New(cfg.Plan.SDKPackage, logger),
			Logger:   logger,
		}
		cleanup := func() {}
		if save {
			s, err := openStore(cfg)
			if err != nil {
				return nil, nil, err
			}
			deps.Store = s
			cleanup = func() { _ = s.Close() }
		}
		e, err := engine.New(engine.Config{Services: services, AllowIncompatible: cfg.Plan.AllowIncompatible, Save: save}, deps)
		return e, cleanup, err
	}
	return a, &stdout, &stderr
}

func execute(a *app, args ...string) int {
	cmd := newRootCmd(a)
	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		_, _ = a.stderr.Write([]byte("error: " + err.Error() + "\n"))
		return exitCode(err)
	}
	return ExitSuccess
}

func projectWithRequirements(t *testing.T, requirements string) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "shop")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "requirements.txt"), []byte(requirements), 0o644))
	return dir
}

func runningPostgres(v string) domain.DetectedService {
	return domain.DetectedService{
		Name:       "postgres",
		Type:       domain.TypeRelationalDB,
		Status:     domain.StatusRunning,
		Version:    v,
		Host:       "localhost",
		Port:       5432,
		DetectedBy: "postgres",
	}.WithFingerprint()
}

// =============================================================================
// plan
// =============================================================================

func TestPlanCommand_Text(t *testing.T) {
	clearEnv(t)
	dir := projectWithRequirements(t, "temporalio>=1.7.0,<2\n")
	a, stdout, _ := testApp()

	code := execute(a, "plan", dir)
	assert.Equal(t, ExitSuccess, code)
	assert.Contains(t, stdout.String(), "shop")
	assert.Contains(t, stdout.String(), "plan can proceed")
}

func TestPlanCommand_JSONReusesCompatibleDatabase(t *testing.T) {
	clearEnv(t)
	dir := projectWithRequirements(t, "temporalio==1.7.0\n")
	a, stdout, _ := testApp(runningPostgres("16.2"))

	code := execute(a, "plan", dir, "-o", "json", "--project", "orders")
	require.Equal(t, ExitSuccess, code)

	plan, err := report.DecodeJSON(stdout)
	require.NoError(t, err)
	assert.Equal(t, "orders", plan.ProjectName())
	assert.Equal(t, []string{"postgres"}, plan.Partition(domain.StrategyReuse))
}

func TestPlanCommand_CannotProceedExitCode(t *testing.T) {
	clearEnv(t)
	dir := projectWithRequirements(t, "temporalio==1.7.0\n")
	t.Setenv("SVCPLAN_SERVICES_POSTGRES_VERSION", "11")

	a, _, stderr := testApp()
	assert.Equal(t, ExitCannotProceed, execute(a, "plan", dir))
	assert.Contains(t, stderr.String(), "plan cannot proceed")

	a, _, _ = testApp()
	assert.Equal(t, ExitSuccess, execute(a, "plan", dir, "--allow-incompatible"))
}

func TestPlanCommand_SaveAndHistory(t *testing.T) {
	clearEnv(t)
	dir := projectWithRequirements(t, "temporalio==1.7.0\n")
	t.Setenv("SVCPLAN_STORE_DSN", filepath.Join(t.TempDir(), "state", "history.db"))

	a, stdout, _ := testApp()
	require.Equal(t, ExitSuccess, execute(a, "plan", dir, "--save", "-o", "json"))
	saved, err := report.DecodeJSON(stdout)
	require.NoError(t, err)

	a, stdout, _ = testApp()
	require.Equal(t, ExitSuccess, execute(a, "history", "shop", "-o", "json"))
	assert.Contains(t, stdout.String(), saved.ID())

	a, stdout, _ = testApp()
	require.Equal(t, ExitSuccess, execute(a, "history", "--show", saved.ID(), "-o", "json"))
	shown, err := report.DecodeJSON(stdout)
	require.NoError(t, err)
	assert.Equal(t, saved.ServiceNames(), shown.ServiceNames())

	a, _, _ = testApp()
	assert.Equal(t, ExitStoreError, execute(a, "history", "--show", "plan-missing"))

	a, _, _ = testApp()
	assert.Equal(t, ExitConfigError, execute(a, "history", "--latest"))
}

func TestHistoryCommand_Empty(t *testing.T) {
	clearEnv(t)
	t.Setenv("SVCPLAN_STORE_DSN", filepath.Join(t.TempDir(), "history.db"))

	a, stdout, _ := testApp()
	require.Equal(t, ExitSuccess, execute(a, "history"))
	assert.Contains(t, stdout.String(), "no plans saved")

	_, err := os.Stat(os.Getenv("SVCPLAN_STORE_DSN"))
	assert.NoError(t, err)
}

// =============================================================================
// detect / resolve / version
// =============================================================================

func TestDetectCommand(t *testing.T) {
	clearEnv(t)
	a, stdout, _ := testApp(runningPostgres("16.2"))

	require.Equal(t, ExitSuccess, execute(a, "detect"))
	assert.Contains(t, stdout.String(), "postgres")
	assert.Contains(t, stdout.String(), "16.2")
	assert.Contains(t, stdout.String(), "running")
}

func TestResolveCommand(t *testing.T) {
	clearEnv(t)
	dir := projectWithRequirements(t, "requests==2.31\ntemporalio~=1.7.0\n")

	a, stdout, _ := testApp()
	require.Equal(t, ExitSuccess, execute(a, "resolve", dir))
	assert.Contains(t, stdout.String(), "temporalio >=1.7.0,<1.8.0")
	assert.Contains(t, stdout.String(), "requirements.txt")

	empty := t.TempDir()
	a, stdout, _ = testApp()
	require.Equal(t, ExitSuccess, execute(a, "resolve", empty))
	assert.Contains(t, stdout.String(), "not declared")

	a, _, _ = testApp()
	assert.Equal(t, ExitError, execute(a, "resolve", filepath.Join(empty, "missing")))
}

func TestVersionCommand(t *testing.T) {
	a, stdout, _ := testApp()
	require.Equal(t, ExitSuccess, execute(a, "version"))
	assert.Equal(t, "svcplan dev (built unknown)\n", stdout.String())
}

func TestInvalidOutputFormat(t *testing.T) {
	clearEnv(t)
	a, _, stderr := testApp()
	assert.Equal(t, ExitConfigError, execute(a, "detect", "-o", "xml"))
	assert.Contains(t, stderr.String(), "unknown output format")
}

func TestRun_UnknownCommand(t *testing.T) {
	var stdout, stderr bytes.Buffer
	assert.Equal(t, ExitError, run([]string{"frobnicate"}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "unknown command")
}
