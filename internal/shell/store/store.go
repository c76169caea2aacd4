package store

import (
	"context"
	"time"

	"github.com/artpar/svcplan/internal/core/domain"
)

// =============================================================================
// Store Interface
// =============================================================================

// Store persists deployment plans.
type Store interface {
	SavePlan(ctx context.Context, plan *domain.DeploymentPlanSummary) error
	GetPlan(ctx context.Context, id string) (*domain.DeploymentPlanSummary, error)
	// LatestPlan returns the most recent plan of a project.
	LatestPlan(ctx context.Context, project string) (*domain.DeploymentPlanSummary, error)
	// ListPlans returns plan headers, newest first. An empty project lists
	// every project.
	ListPlans(ctx context.Context, project string, opts ListOptions) ([]PlanRecord, error)

	Close() error
}

// PlanRecord is the header of a stored plan.
type PlanRecord struct {
	ID         string    `json:"id" yaml:"id"`
	Project    string    `json:"project" yaml:"project"`
	CreatedAt  time.Time `json:"created_at" yaml:"created_at"`
	CanProceed bool      `json:"can_proceed" yaml:"can_proceed"`
	Reuse      int       `json:"reuse" yaml:"reuse"`
	Create     int       `json:"create" yaml:"create"`
	Alongside  int       `json:"alongside" yaml:"alongside"`
	Skip       int       `json:"skip" yaml:"skip"`
	Blockers   int       `json:"blockers" yaml:"blockers"`
}

// =============================================================================
// Options
// =============================================================================

// ListOptions defines pagination options.
type ListOptions struct {
	Limit  int
	Offset int
}

// DefaultListOptions returns default list options.
func DefaultListOptions() ListOptions {
	return ListOptions{
		Limit:  20,
		Offset: 0,
	}
}

// Normalize ensures list options have valid values.
func (o ListOptions) Normalize() ListOptions {
	if o.Limit <= 0 {
		o.Limit = 20
	}
	if o.Limit > 1000 {
		o.Limit = 1000
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
	return o
}
