package probe

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"strings"

	"github.com/artpar/svcplan/internal/core/compose"
	"github.com/artpar/svcplan/internal/core/domain"
)

// =============================================================================
// Compose Probe
// =============================================================================

// composeProbe reports services declared in the project's compose file. It
// reads the file only; declared services get status unknown.
type composeProbe struct {
	fsys fs.FS
	env  func() map[string]string
}

func newComposeProbe(dir string) *composeProbe {
	return &composeProbe{fsys: os.DirFS(dir), env: environ}
}

func (p *composeProbe) Name() string { return compose.DetectedBy }

func (p *composeProbe) Detect(ctx context.Context) ([]domain.DetectedService, error) {
	name, data, err := p.find()
	if err != nil {
		return nil, err
	}
	if name == "" {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	decls, err := compose.ParseDeclarations(string(data), p.env())
	if err != nil {
		return nil, err
	}
	found := compose.DeclaredServices(decls, "localhost")
	for i := range found {
		if found[i].Metadata == nil {
			found[i].Metadata = map[string]string{}
		}
		found[i].Metadata["compose_file"] = name
	}
	return found, nil
}

// find returns the first compose file present, or "" when there is none.
func (p *composeProbe) find() (string, []byte, error) {
	for _, name := range compose.FileNames {
		data, err := fs.ReadFile(p.fsys, name)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return "", nil, err
		}
		return name, data, nil
	}
	return "", nil, nil
}

func environ() map[string]string {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env[k] = v
		}
	}
	return env
}
