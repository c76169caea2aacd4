package version

import (
	"fmt"
	"strings"

	"github.com/blang/semver"
)

// =============================================================================
// Requirement
// =============================================================================

// Notation records which range syntax a requirement was written in.
type Notation string

const (
	NotationExact    Notation = "exact"
	NotationRange    Notation = "range"
	NotationCaret    Notation = "caret"
	NotationTilde    Notation = "tilde"
	NotationWildcard Notation = "wildcard"
	NotationAny      Notation = "any"
)

// Requirement is the canonical form of a declared version range: either an
// exact pin or a {min, max} pair. Max is exclusive unless MaxInclusive is set.
type Requirement struct {
	Raw          string   `json:"raw" yaml:"raw"`
	Notation     Notation `json:"notation" yaml:"notation"`
	Exact        string   `json:"exact,omitempty" yaml:"exact,omitempty"`
	Min          string   `json:"min,omitempty" yaml:"min,omitempty"`
	MinInclusive bool     `json:"min_inclusive,omitempty" yaml:"min_inclusive,omitempty"`
	Max          string   `json:"max,omitempty" yaml:"max,omitempty"`
	MaxInclusive bool     `json:"max_inclusive,omitempty" yaml:"max_inclusive,omitempty"`
}

// IsExact reports whether the requirement pins one version.
func (r Requirement) IsExact() bool {
	return r.Exact != ""
}

// Lower returns the version the requirement resolves to for compatibility
// lookups: the exact pin, else the minimum. Empty when unbounded below.
func (r Requirement) Lower() string {
	if r.Exact != "" {
		return r.Exact
	}
	return r.Min
}

// String renders the canonical form, e.g. ">=1.5.0,<2.0.0" or "==1.5.0".
func (r Requirement) String() string {
	if r.Exact != "" {
		return "==" + r.Exact
	}
	var parts []string
	if r.Min != "" {
		op := ">"
		if r.MinInclusive {
			op = ">="
		}
		parts = append(parts, op+r.Min)
	}
	if r.Max != "" {
		op := "<"
		if r.MaxInclusive {
			op = "<="
		}
		parts = append(parts, op+r.Max)
	}
	if len(parts) == 0 {
		return "*"
	}
	return strings.Join(parts, ",")
}

// Contains reports whether v satisfies the requirement.
func (r Requirement) Contains(v string) (bool, error) {
	pv, err := Parse(v)
	if err != nil {
		return false, err
	}
	if r.Exact != "" {
		pe, err := Parse(r.Exact)
		if err != nil {
			return false, err
		}
		return pv.EQ(pe), nil
	}
	if r.Min != "" {
		pmin, err := Parse(r.Min)
		if err != nil {
			return false, err
		}
		if pv.LT(pmin) || (!r.MinInclusive && pv.EQ(pmin)) {
			return false, nil
		}
	}
	if r.Max != "" {
		pmax, err := Parse(r.Max)
		if err != nil {
			return false, err
		}
		if pv.GT(pmax) || (!r.MaxInclusive && pv.EQ(pmax)) {
			return false, nil
		}
	}
	return true, nil
}

// =============================================================================
// Parsing
// =============================================================================

// ParseRequirement normalises a declared version expression.
//
// Supported notations:
//   - exact pin: "1.5.0", "==1.5.0", "=1.5.0", "===1.5.0"
//   - comparator range: ">=1.5,<2.0", ">1.2", "<=1.9" ("!=" clauses are ignored)
//   - caret: "^1.5.0" -> >=1.5.0,<2.0.0 and "^0.3.1" -> >=0.3.1,<0.4.0
//   - tilde: "~1.2.3" -> >=1.2.3,<1.2.4, "~1.2" -> >=1.2.0,<1.3.0
//   - compatible release: "~=1.4.2" -> >=1.4.2,<1.5.0
//   - wildcard: "1.5.*" or "==1.5.*" -> >=1.5.0,<1.6.0
//   - "*" or "" -> unbounded
func ParseRequirement(expr string) (Requirement, error) {
	raw := strings.TrimSpace(expr)
	r := Requirement{Raw: raw}

	if raw == "" || raw == "*" {
		r.Notation = NotationAny
		return r, nil
	}

	clauses := splitClauses(raw)
	if len(clauses) == 1 {
		c := clauses[0]
		switch {
		case strings.HasPrefix(c, "^"):
			return caret(r, strings.TrimPrefix(c, "^"))
		case strings.HasPrefix(c, "~="):
			return compatibleRelease(r, strings.TrimPrefix(c, "~="))
		case strings.HasPrefix(c, "~"):
			return tilde(r, strings.TrimPrefix(c, "~"))
		case strings.HasSuffix(c, ".*"):
			return wildcard(r, strings.TrimLeft(c, "=="))
		}
		op, v := splitOperator(c)
		if op == "" || op == "==" || op == "=" || op == "===" {
			canon, err := Canonical(v)
			if err != nil {
				return Requirement{}, fmt.Errorf("%w: %q", ErrInvalidRequirement, raw)
			}
			r.Notation = NotationExact
			r.Exact = canon
			return r, nil
		}
	}

	r.Notation = NotationRange
	var lower, upper *semver.Version
	for _, c := range clauses {
		op, v := splitOperator(c)
		if op == "!=" {
			continue
		}
		pv, err := Parse(v)
		if err != nil {
			return Requirement{}, fmt.Errorf("%w: %q", ErrInvalidRequirement, raw)
		}
		switch op {
		case ">=", ">":
			inclusive := op == ">="
			if lower == nil || pv.GT(*lower) || (pv.EQ(*lower) && !inclusive) {
				p := pv
				lower = &p
				r.MinInclusive = inclusive
			}
		case "<=", "<":
			inclusive := op == "<="
			if upper == nil || pv.LT(*upper) || (pv.EQ(*upper) && !inclusive) {
				p := pv
				upper = &p
				r.MaxInclusive = inclusive
			}
		case "", "==", "=", "===":
			// A pin inside a multi-clause range narrows both bounds.
			p := pv
			lower, upper = &p, &p
			r.MinInclusive, r.MaxInclusive = true, true
		default:
			return Requirement{}, fmt.Errorf("%w: %q", ErrInvalidRequirement, raw)
		}
	}
	if lower != nil {
		r.Min = lower.String()
	}
	if upper != nil {
		r.Max = upper.String()
	}
	if lower != nil && upper != nil && lower.GT(*upper) {
		return Requirement{}, fmt.Errorf("%w: empty range %q", ErrInvalidRequirement, raw)
	}
	return r, nil
}

// splitClauses splits on commas and whitespace, re-attaching operators that
// were separated from their version (">= 1.5").
func splitClauses(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' || r == '\t' })
	var out []string
	for i := 0; i < len(fields); i++ {
		f := fields[i]
		if isOperator(f) && i+1 < len(fields) {
			f += fields[i+1]
			i++
		}
		out = append(out, f)
	}
	return out
}

var operators = []string{"===", "==", "!=", ">=", "<=", "~=", ">", "<", "=", "^", "~"}

func isOperator(s string) bool {
	for _, op := range operators {
		if s == op {
			return true
		}
	}
	return false
}

func splitOperator(c string) (string, string) {
	for _, op := range operators {
		if strings.HasPrefix(c, op) {
			return op, strings.TrimSpace(strings.TrimPrefix(c, op))
		}
	}
	return "", c
}

func caret(r Requirement, v string) (Requirement, error) {
	c, _, err := components(v)
	if err != nil {
		return Requirement{}, fmt.Errorf("%w: %q", ErrInvalidRequirement, r.Raw)
	}
	min := semver.Version{Major: c[0], Minor: c[1], Patch: c[2]}
	var max semver.Version
	if c[0] == 0 {
		max = semver.Version{Major: 0, Minor: c[1] + 1}
	} else {
		max = semver.Version{Major: c[0] + 1}
	}
	r.Notation = NotationCaret
	r.Min, r.MinInclusive = min.String(), true
	r.Max = max.String()
	return r, nil
}

func tilde(r Requirement, v string) (Requirement, error) {
	c, given, err := components(v)
	if err != nil {
		return Requirement{}, fmt.Errorf("%w: %q", ErrInvalidRequirement, r.Raw)
	}
	r.Notation = NotationTilde
	r.Min, r.MinInclusive = semver.Version{Major: c[0], Minor: c[1], Patch: c[2]}.String(), true
	r.Max = bump(c, given).String()
	return r, nil
}

// compatibleRelease implements PEP 440 "~=": the last given component may
// increase, so the second-to-last is bumped.
func compatibleRelease(r Requirement, v string) (Requirement, error) {
	c, given, err := components(v)
	if err != nil || given < 2 {
		return Requirement{}, fmt.Errorf("%w: %q", ErrInvalidRequirement, r.Raw)
	}
	r.Notation = NotationTilde
	r.Min, r.MinInclusive = semver.Version{Major: c[0], Minor: c[1], Patch: c[2]}.String(), true
	r.Max = bump(c, given-1).String()
	return r, nil
}

func wildcard(r Requirement, v string) (Requirement, error) {
	c, given, err := components(strings.TrimSuffix(v, ".*"))
	if err != nil {
		return Requirement{}, fmt.Errorf("%w: %q", ErrInvalidRequirement, r.Raw)
	}
	r.Notation = NotationWildcard
	r.Min, r.MinInclusive = semver.Version{Major: c[0], Minor: c[1], Patch: c[2]}.String(), true
	r.Max = bump(c, given).String()
	return r, nil
}
