package deployment

import (
	"context"
	"time"

	"github.com/artpar/svcplan/internal/core/domain"
)

// =============================================================================
// Test Helpers
// =============================================================================

var testNow = time.Date(2026, 10, 19, 9, 31, 0, 0, time.UTC)

// busyPorts is a PortChecker that reports the listed ports as in use.
type busyPorts map[int]bool

func (b busyPorts) IsPortInUse(_ context.Context, _ string, port int) bool {
	return b[port]
}

// allBusy reports every port as in use.
var allBusy = PortCheckerFunc(func(context.Context, string, int) bool { return true })

func detected(t domain.ServiceType, status domain.ServiceStatus, port int, version string) domain.DetectedService {
	return domain.DetectedService{
		Name:       t.Info().DefaultName,
		Type:       t,
		Status:     status,
		Version:    version,
		Host:       "localhost",
		Port:       port,
		DetectedBy: t.Info().DefaultName,
	}.WithFingerprint()
}

func serviceConfig(t domain.ServiceType) ServiceConfig {
	for _, s := range DefaultServices() {
		if s.Type == t {
			return s
		}
	}
	panic("no default service for " + string(t))
}

func selectOne(cfg ServiceConfig, found []domain.DetectedService, engine string, ports PortChecker) (Decision, error) {
	return Select(context.Background(), SelectInput{
		Project:       "shop",
		Service:       cfg,
		Detected:      found,
		EngineVersion: engine,
		Claimed:       map[int]string{},
		Ports:         ports,
		Now:           testNow,
	})
}
