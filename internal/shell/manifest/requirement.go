package manifest

import (
	"regexp"
	"strings"
)

// =============================================================================
// Requirement Lines
// =============================================================================

// reqLine is one parsed dependency entry.
type reqLine struct {
	Name string
	// Spec is the version expression, empty when unconstrained.
	Spec string
	// Ref is a source-control or URL reference, set instead of Spec.
	Ref string
}

var (
	nameRe   = regexp.MustCompile(`^([A-Za-z0-9][A-Za-z0-9._-]*)\s*(\[[^\]]*\])?\s*(.*)$`)
	eggRe    = regexp.MustCompile(`#egg=([A-Za-z0-9._-]+?)(?:-(v?\d+(?:\.\d+)*))?(?:&|$)`)
	refTagRe = regexp.MustCompile(`^v?(\d+(?:\.\d+){0,2})$`)
	nameNorm = regexp.MustCompile(`[-_.]+`)
	// "git+https://", "https://", "file://"
	urlStartRe = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9+.-]*://`)
)

// normalizeName applies PEP 503 name normalisation.
func normalizeName(name string) string {
	return nameNorm.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "-")
}

// parseRequirementLine parses a PEP 508 requirement, a bare VCS URL with an
// #egg fragment, or an editable install. Environment markers are dropped.
func parseRequirementLine(line string) (reqLine, bool) {
	line = strings.TrimSpace(line)
	for _, prefix := range []string{"-e ", "--editable ", "--editable="} {
		if strings.HasPrefix(line, prefix) {
			line = strings.TrimSpace(strings.TrimPrefix(line, prefix))
		}
	}
	if line == "" {
		return reqLine{}, false
	}

	if urlStartRe.MatchString(line) {
		m := eggRe.FindStringSubmatch(line)
		if m == nil {
			return reqLine{}, false
		}
		return reqLine{Name: m[1], Ref: line}, true
	}

	if i := strings.Index(line, ";"); i >= 0 {
		line = strings.TrimSpace(line[:i])
	}
	m := nameRe.FindStringSubmatch(line)
	if m == nil {
		return reqLine{}, false
	}
	r := reqLine{Name: m[1]}
	rest := strings.TrimSpace(m[3])
	if strings.HasPrefix(rest, "@") {
		r.Ref = strings.TrimSpace(rest[1:])
		return r, true
	}
	rest = strings.TrimSuffix(strings.TrimPrefix(rest, "("), ")")
	r.Spec = strings.ReplaceAll(strings.TrimSpace(rest), " ", "")
	return r, true
}

// versionFromRef recovers a version from a source reference: the #egg
// fragment version, the ref after the last "@", or an explicit tag.
func versionFromRef(ref string) (string, bool) {
	if m := eggRe.FindStringSubmatch(ref); m != nil && m[2] != "" {
		return strings.TrimPrefix(m[2], "v"), true
	}
	ref, _, _ = strings.Cut(ref, "#")
	tail := ref
	if i := strings.LastIndex(ref, "@"); i >= 0 {
		tail = ref[i+1:]
	}
	if m := refTagRe.FindStringSubmatch(strings.TrimSpace(tail)); m != nil {
		return m[1], true
	}
	return "", false
}
