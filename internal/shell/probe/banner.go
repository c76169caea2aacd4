package probe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/artpar/svcplan/internal/shell/xexec"
)

var errNoBanner = errors.New("no version in output")

// cliBanner is a candidate that runs `bin args...` and parses a version out
// of its output.
func cliBanner(runner xexec.Runner, parse func(string) (string, bool), bin string, args ...string) candidate[string] {
	return candidate[string]{
		name: bin + " " + strings.Join(args, " "),
		fn: func(ctx context.Context) (string, error) {
			res, err := runner.Run(ctx, bin, args...)
			if err != nil && res.Output() == "" {
				return "", err
			}
			v, ok := parse(res.Output())
			if !ok {
				return "", fmt.Errorf("%w: %q", errNoBanner, firstLine(res.Output()))
			}
			return v, nil
		},
	}
}

// installed reports whether any of the binaries is on PATH.
func installed(runner xexec.Runner, bins ...string) bool {
	for _, b := range bins {
		if _, err := runner.LookPath(b); err == nil {
			return true
		}
	}
	return false
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
