package domain

import "strings"

// =============================================================================
// Slug Generation
// =============================================================================

// Slugify converts a project or service name to a lowercase slug usable in
// plan ids and instance names.
//
// The transformation rules are:
//   - Lowercase letters and digits are kept
//   - Uppercase letters are lowercased
//   - Spaces, underscores, dots and hyphens become a single hyphen
//   - All other characters are dropped
//   - Leading and trailing hyphens are trimmed
//
// Example:
//
//	Slugify("My Shop")        // returns "my-shop"
//	Slugify("billing_api.v2") // returns "billing-api-v2"
func Slugify(name string) string {
	var b strings.Builder
	pendingHyphen := false
	for _, r := range name {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			if pendingHyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingHyphen = false
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			if pendingHyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingHyphen = false
			b.WriteRune(r + ('a' - 'A'))
		case r == ' ' || r == '_' || r == '.' || r == '-':
			pendingHyphen = true
		}
	}
	return b.String()
}
