package probe

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/artpar/svcplan/internal/shell/docker"
	"github.com/artpar/svcplan/internal/shell/xexec"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// =============================================================================
// Fake Runner
// =============================================================================

type fakeRun struct {
	res xexec.Result
	err error
}

type fakeRunner struct {
	mu    sync.Mutex
	paths map[string]bool
	runs  map[string]fakeRun
	calls []string
}

func newFakeRunner(bins ...string) *fakeRunner {
	r := &fakeRunner{paths: map[string]bool{}, runs: map[string]fakeRun{}}
	for _, b := range bins {
		r.paths[b] = true
	}
	return r
}

// on registers the result for an exact command line.
func (r *fakeRunner) on(cmdline string, stdout string, err error) *fakeRunner {
	r.runs[cmdline] = fakeRun{res: xexec.Result{Stdout: stdout}, err: err}
	return r
}

func (r *fakeRunner) onResult(cmdline string, res xexec.Result, err error) *fakeRunner {
	r.runs[cmdline] = fakeRun{res: res, err: err}
	return r
}

func (r *fakeRunner) Run(_ context.Context, name string, args ...string) (xexec.Result, error) {
	cmdline := strings.Join(append([]string{name}, args...), " ")
	r.mu.Lock()
	r.calls = append(r.calls, cmdline)
	r.mu.Unlock()
	if run, ok := r.runs[cmdline]; ok {
		return run.res, run.err
	}
	return xexec.Result{ExitCode: -1}, xexec.ErrNotFound
}

func (r *fakeRunner) LookPath(name string) (string, error) {
	if r.paths[name] {
		return "/usr/bin/" + name, nil
	}
	return "", xexec.ErrNotFound
}

// =============================================================================
// Fake Dialer
// =============================================================================

var errRefused = errors.New("connection refused")

type fakeDialer struct {
	open map[int]bool
}

func openPorts(ports ...int) *fakeDialer {
	d := &fakeDialer{open: map[int]bool{}}
	for _, p := range ports {
		d.open[p] = true
	}
	return d
}

func (d *fakeDialer) Dial(_ context.Context, _ string, port int) error {
	if d.open[port] {
		return nil
	}
	return errRefused
}

// =============================================================================
// Fake Docker
// =============================================================================

type fakeDocker struct {
	pingErr    error
	server     docker.ServerInfo
	containers []docker.ContainerInfo
	inspected  map[string]docker.ContainerInfo
	closed     bool
}

func (f *fakeDocker) factory() DockerFactory {
	return func(context.Context, string) (docker.Client, error) { return f, nil }
}

func (f *fakeDocker) Ping(context.Context) error { return f.pingErr }

func (f *fakeDocker) ServerVersion(context.Context) (docker.ServerInfo, error) {
	return f.server, nil
}

func (f *fakeDocker) ListContainers(context.Context, docker.ListOptions) ([]docker.ContainerInfo, error) {
	return f.containers, nil
}

func (f *fakeDocker) InspectContainer(_ context.Context, id string) (*docker.ContainerInfo, error) {
	if c, ok := f.inspected[id]; ok {
		return &c, nil
	}
	return nil, docker.ErrContainerNotFound
}

func (f *fakeDocker) Close() error {
	f.closed = true
	return nil
}
