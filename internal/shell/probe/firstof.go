package probe

import (
	"context"
	"fmt"
)

// candidate is one way of obtaining a value.
type candidate[T any] struct {
	name string
	fn   func(ctx context.Context) (T, error)
}

// firstOf tries candidates in order and returns the first success. Failed
// candidates are returned as diagnostic notes.
func firstOf[T any](ctx context.Context, cands ...candidate[T]) (T, []string, bool) {
	var notes []string
	for _, c := range cands {
		if err := ctx.Err(); err != nil {
			notes = append(notes, fmt.Sprintf("%s: %v", c.name, err))
			break
		}
		v, err := c.fn(ctx)
		if err == nil {
			return v, notes, true
		}
		notes = append(notes, fmt.Sprintf("%s: %v", c.name, err))
	}
	var zero T
	return zero, notes, false
}

// strPtr returns nil for the empty string.
func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
