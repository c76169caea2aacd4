package compat

import (
	"fmt"

	"github.com/artpar/svcplan/internal/core/domain"
	"github.com/artpar/svcplan/internal/core/version"
)

// =============================================================================
// Per-Type Version Policy
// =============================================================================

// requirements is the static version policy for each plannable type. Max names
// a whole bucket and is empty when there is no upper bound.
var requirements = map[domain.ServiceType]domain.VersionRequirement{
	domain.TypeCacheStore:     {Min: "6.2", Preferred: "7.2"},
	domain.TypeRelationalDB:   {Min: "12", Max: "17", Preferred: "16"},
	domain.TypeWorkflowEngine: {Min: "1.20", Preferred: "1.24"},
}

// Requirement returns the version policy for t.
func Requirement(t domain.ServiceType) (domain.VersionRequirement, bool) {
	r, ok := requirements[t]
	return r, ok
}

// MinimumCheck is the outcome of a per-service version check.
type MinimumCheck struct {
	Compatible bool
	// Verified is false when the version could not be compared and the check
	// passed permissively.
	Verified bool
	Reason   string
}

// CheckMinimum compares a detected version against the policy for its type.
// Versions that cannot be parsed ("latest", "unknown") pass unverified.
func CheckMinimum(t domain.ServiceType, detected string) MinimumCheck {
	name := t.Info().DisplayName
	req, ok := requirements[t]
	if !ok {
		return MinimumCheck{Compatible: true, Reason: fmt.Sprintf("no version policy for %s", name)}
	}

	within, err := version.WithinBucket(detected, req.Min, req.Max)
	if err != nil {
		return MinimumCheck{
			Compatible: true,
			Reason:     fmt.Sprintf("%s version %q could not be verified against minimum %s", name, detected, req.Min),
		}
	}
	if within {
		return MinimumCheck{
			Compatible: true,
			Verified:   true,
			Reason:     fmt.Sprintf("%s %s satisfies minimum %s", name, detected, req.Min),
		}
	}
	if cmp, _ := version.Compare(detected, req.Min); req.Min != "" && cmp < 0 {
		return MinimumCheck{
			Verified: true,
			Reason:   fmt.Sprintf("%s %s is below minimum %s", name, detected, req.Min),
		}
	}
	return MinimumCheck{
		Verified: true,
		Reason:   fmt.Sprintf("%s %s is above maximum supported %s", name, detected, req.Max),
	}
}

// PreferredVersion returns the version to create when nothing else pins one.
func PreferredVersion(t domain.ServiceType) string {
	if r, ok := requirements[t]; ok && r.Preferred != "" {
		return r.Preferred
	}
	return "latest"
}
