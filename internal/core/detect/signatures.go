// Package detect contains the pure parts of service detection: container
// classification, version banner parsing and status mapping. The probes in
// internal/shell/probe feed raw CLI output and runtime facts into these
// functions.
package detect

import (
	"strings"

	"github.com/artpar/svcplan/internal/core/domain"
)

// =============================================================================
// Container Signatures
// =============================================================================

// Signature lists the markers identifying a service type in a container.
type Signature struct {
	Type domain.ServiceType

	// Images match the repository path exactly or as a trailing path segment,
	// so "redis" matches "docker.io/library/redis" but not "myredis".
	Images []string

	// Names match as case-insensitive substrings of the container name.
	Names []string

	// Ports match any exposed container port.
	Ports []int
}

// signatures is evaluated in order; the first matching type wins.
var signatures = []Signature{
	{
		Type:   domain.TypeCacheStore,
		Images: []string{"redis", "redis-stack", "redis-stack-server", "valkey", "keydb"},
		Names:  []string{"redis", "valkey", "keydb"},
		Ports:  []int{6379},
	},
	{
		Type:   domain.TypeRelationalDB,
		Images: []string{"postgres", "postgresql", "postgis", "timescaledb", "timescaledb-ha"},
		Names:  []string{"postgres", "postgis"},
		Ports:  []int{5432},
	},
	{
		Type:   domain.TypeWorkflowEngine,
		Images: []string{"temporalio/auto-setup", "temporalio/server", "temporalio/temporal", "temporalio/admin-tools"},
		Names:  []string{"temporal"},
		Ports:  []int{7233},
	},
}

// Signatures returns a copy of the built-in signature table.
func Signatures() []Signature {
	out := make([]Signature, len(signatures))
	copy(out, signatures)
	return out
}

// ContainerFacts are the container attributes used for classification.
type ContainerFacts struct {
	Image string
	Name  string
	Ports []int
}

// Classify returns the service type of a container. A container matches a
// signature if ANY of its image, name or exposed ports match.
func Classify(c ContainerFacts) (domain.ServiceType, bool) {
	repo := ImageRepository(c.Image)
	name := strings.ToLower(strings.TrimPrefix(c.Name, "/"))
	for _, sig := range signatures {
		if matchImage(repo, sig.Images) || matchName(name, sig.Names) || matchPort(c.Ports, sig.Ports) {
			return sig.Type, true
		}
	}
	return "", false
}

func matchImage(repo string, images []string) bool {
	if repo == "" {
		return false
	}
	for _, img := range images {
		if repo == img || strings.HasSuffix(repo, "/"+img) {
			return true
		}
	}
	return false
}

func matchName(name string, names []string) bool {
	if name == "" {
		return false
	}
	for _, n := range names {
		if strings.Contains(name, n) {
			return true
		}
	}
	return false
}

func matchPort(ports, want []int) bool {
	for _, p := range ports {
		for _, w := range want {
			if p == w {
				return true
			}
		}
	}
	return false
}

// =============================================================================
// Image References
// =============================================================================

// stripDigest removes an "@sha256:..." suffix.
func stripDigest(ref string) string {
	if i := strings.Index(ref, "@"); i >= 0 {
		return ref[:i]
	}
	return ref
}

// ImageVersion returns the tag of an image reference: the text after the last
// colon, or "latest" when there is none. A colon that belongs to a registry
// host ("localhost:5000/redis") is not a tag.
//
// Example:
//
//	ImageVersion("postgres:16.2-alpine")       // "16.2-alpine"
//	ImageVersion("redis")                      // "latest"
//	ImageVersion("localhost:5000/redis")       // "latest"
//	ImageVersion("redis:7@sha256:abc")         // "7"
func ImageVersion(ref string) string {
	ref = stripDigest(strings.TrimSpace(ref))
	i := strings.LastIndex(ref, ":")
	if i < 0 {
		return "latest"
	}
	tag := ref[i+1:]
	if tag == "" || strings.Contains(tag, "/") {
		return "latest"
	}
	return tag
}

// ImageRepository returns the lowercased repository path of an image
// reference without tag or digest.
func ImageRepository(ref string) string {
	ref = stripDigest(strings.ToLower(strings.TrimSpace(ref)))
	if i := strings.LastIndex(ref, ":"); i >= 0 && !strings.Contains(ref[i+1:], "/") {
		ref = ref[:i]
	}
	return ref
}
