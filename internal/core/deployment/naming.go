package deployment

import (
	"fmt"
	"net"
	"net/url"
	"strconv"

	"github.com/artpar/svcplan/internal/core/domain"
)

// =============================================================================
// Instance Naming
// =============================================================================

// InstanceName generates the name of an instance the plan asks to provision.
// Pattern: {project-slug}-{service} for CREATE, with an "-alongside" suffix
// for ALONGSIDE.
//
// Example:
//
//	InstanceName("My Shop", "postgres", domain.StrategyAlongside) // "my-shop-postgres-alongside"
func InstanceName(project, service string, strategy domain.Strategy) string {
	name := fmt.Sprintf("%s-%s", domain.Slugify(project), domain.Slugify(service))
	if strategy == domain.StrategyAlongside {
		name += "-alongside"
	}
	return name
}

// =============================================================================
// Connection Strings
// =============================================================================

// ConnectionString builds the client connection string for a service at its
// final host and port.
//
// Example:
//
//	ConnectionString(domain.TypeCacheStore, "localhost", 6379, "", "")         // "redis://localhost:6379/0"
//	ConnectionString(domain.TypeRelationalDB, "localhost", 5433, "app", "app") // "postgresql://app@localhost:5433/app"
//	ConnectionString(domain.TypeWorkflowEngine, "localhost", 7233, "", "")     // "localhost:7233"
func ConnectionString(t domain.ServiceType, host string, port int, user, database string) string {
	hostPort := net.JoinHostPort(host, strconv.Itoa(port))
	switch t.Info().Scheme {
	case "redis":
		return fmt.Sprintf("redis://%s/0", hostPort)
	case "postgresql":
		u := url.URL{Scheme: "postgresql", Host: hostPort}
		if user != "" {
			u.User = url.User(user)
		}
		if database != "" {
			u.Path = "/" + database
		}
		return u.String()
	default:
		return hostPort
	}
}
