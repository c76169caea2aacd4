package detect

import (
	"testing"

	"github.com/artpar/svcplan/internal/core/domain"
	"github.com/stretchr/testify/assert"
)

// =============================================================================
// Classify Tests
// =============================================================================

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		facts  ContainerFacts
		want   domain.ServiceType
		wantOK bool
	}{
		{"official redis image", ContainerFacts{Image: "redis:7.2"}, domain.TypeCacheStore, true},
		{"fully qualified image", ContainerFacts{Image: "docker.io/library/postgres:16"}, domain.TypeRelationalDB, true},
		{"bitnami image", ContainerFacts{Image: "bitnami/postgresql:15"}, domain.TypeRelationalDB, true},
		{"namespaced temporal", ContainerFacts{Image: "temporalio/auto-setup:1.24.2"}, domain.TypeWorkflowEngine, true},
		{"name only", ContainerFacts{Image: "custom/cache:1", Name: "/myapp-redis-1"}, domain.TypeCacheStore, true},
		{"port only", ContainerFacts{Image: "custom/db:1", Name: "db", Ports: []int{5432}}, domain.TypeRelationalDB, true},
		{"image suffix is not a substring", ContainerFacts{Image: "myredis:1"}, "", false},
		{"unrelated", ContainerFacts{Image: "nginx:1.25", Name: "web", Ports: []int{80}}, "", false},
		{"empty", ContainerFacts{}, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Classify(tt.facts)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSignatures_ReturnsCopy(t *testing.T) {
	sigs := Signatures()
	sigs[0].Type = domain.TypeCustom
	assert.Equal(t, domain.TypeCacheStore, Signatures()[0].Type)
}

// =============================================================================
// Image Reference Tests
// =============================================================================

func TestImageVersion(t *testing.T) {
	tests := map[string]string{
		"postgres:16.2-alpine":               "16.2-alpine",
		"redis":                              "latest",
		"redis:":                             "latest",
		"localhost:5000/redis":               "latest",
		"localhost:5000/redis:7.2":           "7.2",
		"redis:7@sha256:0123456789abcdef":    "7",
		"redis@sha256:0123456789abcdef":      "latest",
		"ghcr.io/org/temporal/server:1.24.2": "1.24.2",
	}
	for ref, want := range tests {
		assert.Equal(t, want, ImageVersion(ref), ref)
	}
}

func TestImageRepository(t *testing.T) {
	assert.Equal(t, "redis", ImageRepository("Redis:7"))
	assert.Equal(t, "localhost:5000/redis", ImageRepository("localhost:5000/redis"))
	assert.Equal(t, "localhost:5000/redis", ImageRepository("localhost:5000/redis:7"))
	assert.Equal(t, "postgres", ImageRepository("postgres@sha256:abc"))
}

// =============================================================================
// Banner Tests
// =============================================================================

func TestRedisBannerVersion(t *testing.T) {
	v, ok := RedisBannerVersion("Redis server v=7.2.4 sha=00000000:0 malloc=jemalloc-5.3.0 bits=64 build=abc")
	assert.True(t, ok)
	assert.Equal(t, "7.2.4", v)

	v, ok = RedisBannerVersion("redis-cli 6.2.14")
	assert.True(t, ok)
	assert.Equal(t, "6.2.14", v)

	_, ok = RedisBannerVersion("command not found")
	assert.False(t, ok)
}

func TestPostgresBannerVersion(t *testing.T) {
	v, ok := PostgresBannerVersion("psql (PostgreSQL) 16.2 (Ubuntu 16.2-1.pgdg22.04+1)")
	assert.True(t, ok)
	assert.Equal(t, "16.2", v)

	v, ok = PostgresBannerVersion("PostgreSQL 15.6 on x86_64-pc-linux-gnu, compiled by gcc")
	assert.True(t, ok)
	assert.Equal(t, "15.6", v)

	_, ok = PostgresBannerVersion("")
	assert.False(t, ok)
}

func TestPostgresServerVersion(t *testing.T) {
	v, ok := PostgresServerVersion("16.2 (Debian 16.2-1.pgdg120+1)")
	assert.True(t, ok)
	assert.Equal(t, "16.2", v)
}

func TestTemporalBannerVersion(t *testing.T) {
	v, ok := TemporalBannerVersion("temporal version 1.1.2 (Server 1.24.2, UI 2.28.0)")
	assert.True(t, ok)
	assert.Equal(t, "1.24.2", v)

	v, ok = TemporalBannerVersion("temporal version 0.13.1 (server v1.23.0)")
	assert.True(t, ok)
	assert.Equal(t, "1.23.0", v)

	_, ok = TemporalBannerVersion("temporal version 1.1.2")
	assert.False(t, ok, "CLI version is not a server version")
}

func TestParseRedisInfo(t *testing.T) {
	info := "# Server\r\nredis_version:7.2.4\r\nredis_mode:standalone\r\n\r\n# Clients\r\nconnected_clients:1\r\n"
	got := ParseRedisInfo(info)
	assert.Equal(t, "7.2.4", got["redis_version"])
	assert.Equal(t, "standalone", got["redis_mode"])
	assert.Equal(t, "1", got["connected_clients"])
	assert.Len(t, got, 3)
}

// =============================================================================
// Status Tests
// =============================================================================

func TestContainerStatus(t *testing.T) {
	assert.Equal(t, domain.StatusRunning, ContainerStatus("running", ""))
	assert.Equal(t, domain.StatusRunning, ContainerStatus("running", "healthy"))
	assert.Equal(t, domain.StatusDegraded, ContainerStatus("running", "unhealthy"))
	assert.Equal(t, domain.StatusDegraded, ContainerStatus("restarting", ""))
	assert.Equal(t, domain.StatusStopped, ContainerStatus("exited", ""))
	assert.Equal(t, domain.StatusUnknown, ContainerStatus("weird", ""))
}

func TestNativeStatus(t *testing.T) {
	s, ok := NativeStatus(ProbeOutcome{Installed: true, PortOpen: true, Alive: true})
	assert.True(t, ok)
	assert.Equal(t, domain.StatusRunning, s)

	s, ok = NativeStatus(ProbeOutcome{PortOpen: true})
	assert.True(t, ok)
	assert.Equal(t, domain.StatusDegraded, s)

	s, ok = NativeStatus(ProbeOutcome{Installed: true})
	assert.True(t, ok)
	assert.Equal(t, domain.StatusStopped, s)

	_, ok = NativeStatus(ProbeOutcome{})
	assert.False(t, ok)
}
