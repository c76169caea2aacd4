package probe

import (
	"context"
	"errors"
	"testing"
	"testing/fstest"

	"github.com/artpar/svcplan/internal/core/domain"
	"github.com/artpar/svcplan/internal/shell/docker"
	"github.com/artpar/svcplan/internal/shell/xexec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Docker
// =============================================================================

func TestContainerProbe_ClassifiesContainers(t *testing.T) {
	fd := &fakeDocker{
		server: docker.ServerInfo{Version: "27.3.1", APIVersion: "1.47", OS: "linux", Arch: "amd64"},
		containers: []docker.ContainerInfo{
			{ID: "aaaaaaaaaaaaaaaa", Name: "cache", Image: "redis:7.2-alpine", State: "running",
				Ports: []docker.PortBinding{{ContainerPort: 6379, HostPort: 6380}}},
			{ID: "bbbbbbbbbbbbbbbb", Name: "db", Image: "postgres:15", State: "running",
				Ports: []docker.PortBinding{{ContainerPort: 5432}}},
			{ID: "cccccccccccccccc", Name: "web", Image: "nginx:1.27", State: "running",
				Ports: []docker.PortBinding{{ContainerPort: 80, HostPort: 8080}}},
		},
		inspected: map[string]docker.ContainerInfo{
			"aaaaaaaaaaaaaaaa": {ID: "aaaaaaaaaaaaaaaa", Name: "cache", Image: "redis:7.2-alpine", State: "running",
				Health: "unhealthy", PID: 4242, Ports: []docker.PortBinding{{ContainerPort: 6379, HostPort: 6380}}},
		},
	}

	p := newContainerProbe("", Deps{Docker: fd.factory(), Runner: newFakeRunner()}, discardLogger())
	found, err := p.Detect(context.Background())
	require.NoError(t, err)
	require.Len(t, found, 3)
	assert.True(t, fd.closed)

	runtime := found[0]
	assert.Equal(t, domain.TypeContainerRuntime, runtime.Type)
	assert.Equal(t, domain.StatusRunning, runtime.Status)
	assert.Equal(t, "27.3.1", runtime.Version)
	assert.Equal(t, "1.47", runtime.Metadata["api_version"])

	cache := found[1]
	assert.Equal(t, domain.TypeCacheStore, cache.Type)
	assert.Equal(t, "7.2-alpine", cache.Version)
	assert.Equal(t, 6380, cache.Port)
	assert.Equal(t, domain.StatusDegraded, cache.Status, "unhealthy container")
	require.NotNil(t, cache.PID)
	assert.Equal(t, 4242, *cache.PID)
	assert.Equal(t, "aaaaaaaaaaaa", cache.Metadata["container_id"])
	assert.Equal(t, "docker", cache.DetectedBy)

	db := found[2]
	assert.Equal(t, domain.TypeRelationalDB, db.Type)
	assert.Equal(t, 0, db.Port)
	assert.Equal(t, domain.StatusDegraded, db.Status)
	assert.Contains(t, db.Notes[0], "does not publish port 5432")
}

func TestContainerProbe_StoppedContainer(t *testing.T) {
	fd := &fakeDocker{containers: []docker.ContainerInfo{
		{ID: "dd", Name: "temporal", Image: "temporalio/auto-setup:1.24.2", State: "exited",
			Ports: []docker.PortBinding{{ContainerPort: 7233, HostPort: 7233}}},
	}}
	p := newContainerProbe("", Deps{Docker: fd.factory(), Runner: newFakeRunner()}, discardLogger())

	found, err := p.Detect(context.Background())
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, domain.TypeWorkflowEngine, found[1].Type)
	assert.Equal(t, domain.StatusStopped, found[1].Status)
	assert.Equal(t, "1.24.2", found[1].Version)
	assert.Empty(t, found[1].Notes)
}

func TestContainerProbe_DaemonUnreachable(t *testing.T) {
	fd := &fakeDocker{pingErr: errors.New("cannot connect")}

	t.Run("cli installed", func(t *testing.T) {
		p := newContainerProbe("", Deps{Docker: fd.factory(), Runner: newFakeRunner("docker")}, discardLogger())
		found, err := p.Detect(context.Background())
		require.NoError(t, err)
		require.Len(t, found, 1)
		assert.Equal(t, domain.StatusStopped, found[0].Status)
		assert.Contains(t, found[0].Notes[0], "cannot connect")
	})

	t.Run("nothing installed", func(t *testing.T) {
		failing := func(context.Context, string) (docker.Client, error) { return nil, docker.ErrConnectionFailed }
		p := newContainerProbe("", Deps{Docker: failing, Runner: newFakeRunner()}, discardLogger())
		found, err := p.Detect(context.Background())
		require.NoError(t, err)
		assert.Empty(t, found)
	})
}

// =============================================================================
// Kubernetes
// =============================================================================

func TestOrchestratorProbe(t *testing.T) {
	withServer := `{"clientVersion":{"gitVersion":"v1.31.0"},"serverVersion":{"gitVersion":"v1.30.4","platform":"linux/amd64"}}`
	clientOnly := `{"clientVersion":{"gitVersion":"v1.31.0"}}`

	t.Run("cluster reachable", func(t *testing.T) {
		runner := newFakeRunner("kubectl").
			on("kubectl version -o json", withServer, nil).
			on("kubectl config current-context", "kind-dev\n", nil)
		found, err := newOrchestratorProbe(Deps{Runner: runner}).Detect(context.Background())
		require.NoError(t, err)
		require.Len(t, found, 1)
		assert.Equal(t, domain.StatusRunning, found[0].Status)
		assert.Equal(t, "1.30.4", found[0].Version)
		assert.Equal(t, "kind-dev", found[0].Metadata["context"])
		assert.Equal(t, "1.31.0", found[0].Metadata["client_version"])
	})

	t.Run("cluster unreachable", func(t *testing.T) {
		runner := newFakeRunner("kubectl").onResult("kubectl version -o json",
			xexec.Result{ExitCode: 1, Stdout: clientOnly, Stderr: "The connection to the server localhost:8080 was refused"},
			errors.New("exit status 1"))
		found, err := newOrchestratorProbe(Deps{Runner: runner}).Detect(context.Background())
		require.NoError(t, err)
		require.Len(t, found, 1)
		assert.Equal(t, domain.StatusStopped, found[0].Status)
		assert.Equal(t, domain.VersionUnknown, found[0].Version)
		assert.Contains(t, found[0].Notes[0], "was refused")
	})

	t.Run("garbage output", func(t *testing.T) {
		runner := newFakeRunner("kubectl").on("kubectl version -o json", "not json", nil)
		_, err := newOrchestratorProbe(Deps{Runner: runner}).Detect(context.Background())
		assert.Error(t, err)
	})

	t.Run("not installed", func(t *testing.T) {
		found, err := newOrchestratorProbe(Deps{Runner: newFakeRunner()}).Detect(context.Background())
		require.NoError(t, err)
		assert.Empty(t, found)
	})
}

// =============================================================================
// Compose
// =============================================================================

func TestComposeProbe(t *testing.T) {
	fsys := fstest.MapFS{
		"docker-compose.yml": {Data: []byte(`
services:
  cache:
    image: redis:${REDIS_TAG}
    ports:
      - "6390:6379"
  app:
    build: .
`)},
	}
	p := &composeProbe{fsys: fsys, env: func() map[string]string { return map[string]string{"REDIS_TAG": "7.4"} }}

	found, err := p.Detect(context.Background())
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, domain.TypeCacheStore, found[0].Type)
	assert.Equal(t, "7.4", found[0].Version)
	assert.Equal(t, 6390, found[0].Port)
	assert.Equal(t, domain.StatusUnknown, found[0].Status)
	assert.Equal(t, "docker-compose.yml", found[0].Metadata["compose_file"])
}

func TestComposeProbe_NoFile(t *testing.T) {
	p := &composeProbe{fsys: fstest.MapFS{}, env: environ}
	found, err := p.Detect(context.Background())
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestComposeProbe_InvalidFile(t *testing.T) {
	p := &composeProbe{fsys: fstest.MapFS{"compose.yaml": {Data: []byte("services: [")}}, env: environ}
	_, err := p.Detect(context.Background())
	assert.Error(t, err)
}
