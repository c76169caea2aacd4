package domain

// =============================================================================
// Compatibility Verdicts
// =============================================================================

// SupportLevel buckets a version combination by vendor support status.
type SupportLevel string

const (
	SupportActive      SupportLevel = "active"
	SupportMaintenance SupportLevel = "maintenance"
	SupportDeprecated  SupportLevel = "deprecated"
	SupportUnknown     SupportLevel = "unknown"
)

// Degraded reports whether the level deserves a plan warning.
func (l SupportLevel) Degraded() bool {
	return l != SupportActive
}

// Direction classifies an incompatible pair by which side is out of bounds.
type Direction string

const (
	DirectionOK      Direction = "ok"
	DirectionTooOld  Direction = "too-old"
	DirectionTooNew  Direction = "too-new"
	DirectionUnknown Direction = "unknown"
)

// VersionRequirement holds min/max/preferred bounds for a service type.
// Max is inclusive of the whole bucket it names ("16" allows 16.x).
type VersionRequirement struct {
	Min       string `json:"min,omitempty" yaml:"min,omitempty"`
	Max       string `json:"max,omitempty" yaml:"max,omitempty"`
	Preferred string `json:"preferred,omitempty" yaml:"preferred,omitempty"`
}

// CompatibilityVerdict is the outcome of one compatibility evaluation.
type CompatibilityVerdict struct {
	Compatible        bool         `json:"compatible" yaml:"compatible"`
	SupportLevel      SupportLevel `json:"support_level" yaml:"support_level"`
	Direction         Direction    `json:"direction" yaml:"direction"`
	Warning           string       `json:"warning,omitempty" yaml:"warning,omitempty"`
	Min               string       `json:"min,omitempty" yaml:"min,omitempty"`
	Max               string       `json:"max,omitempty" yaml:"max,omitempty"`
	Recommended       string       `json:"recommended,omitempty" yaml:"recommended,omitempty"`
	CanProceed        bool         `json:"can_proceed" yaml:"can_proceed"`
	RecommendedAction string       `json:"recommended_action,omitempty" yaml:"recommended_action,omitempty"`
	Overridden        bool         `json:"overridden,omitempty" yaml:"overridden,omitempty"`
}

// WithOverride returns a copy of the verdict with an operator override
// applied. The override only lifts the block; it never changes versions or the
// compatibility classification.
func (v CompatibilityVerdict) WithOverride() CompatibilityVerdict {
	if v.CanProceed {
		return v
	}
	v.CanProceed = true
	v.Overridden = true
	return v
}
