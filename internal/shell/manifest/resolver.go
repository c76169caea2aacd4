// Package manifest reads a project's Python dependency manifests and reports
// the declared version range of one package, by default the Temporal Python
// SDK.
package manifest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sort"

	"github.com/artpar/svcplan/internal/core/version"
)

// DefaultPackage is the workflow-engine SDK package looked up by default.
const DefaultPackage = "temporalio"

var (
	// ErrInvalidProjectDir is returned when the project directory is missing
	// or not a directory.
	ErrInvalidProjectDir = errors.New("invalid project directory")
)

// Declaration is the declared version of a package.
type Declaration struct {
	Package     string              `json:"package" yaml:"package"`
	Source      string              `json:"source" yaml:"source"`
	Raw         string              `json:"raw" yaml:"raw"`
	Requirement version.Requirement `json:"requirement" yaml:"requirement"`
	Notes       []string            `json:"notes,omitempty" yaml:"notes,omitempty"`
}

// Version returns the version used for compatibility lookups: the exact pin
// or the lower bound. Empty when the range is unbounded below.
func (d *Declaration) Version() string {
	if d == nil {
		return ""
	}
	return d.Requirement.Lower()
}

// Resolver finds the declared version of one package.
type Resolver struct {
	pkg    string
	logger *slog.Logger
}

// New creates a Resolver for pkg. An empty pkg means DefaultPackage.
func New(pkg string, logger *slog.Logger) *Resolver {
	if pkg == "" {
		pkg = DefaultPackage
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{pkg: normalizeName(pkg), logger: logger}
}

// Package returns the normalised package name.
func (r *Resolver) Package() string { return r.pkg }

// Resolve reads the manifests in dir. It returns nil when no manifest
// declares the package with a usable version. Content problems are logged
// and never returned; only an unusable dir is an error.
func (r *Resolver) Resolve(ctx context.Context, dir string) (*Declaration, error) {
	if dir == "" {
		return nil, fmt.Errorf("%w: empty path", ErrInvalidProjectDir)
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidProjectDir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrInvalidProjectDir, dir)
	}
	return r.ResolveFS(ctx, os.DirFS(dir)), nil
}

// ResolveFS is Resolve over an fs.FS rooted at the project directory.
//
// Sources are tried in priority order. A declaration without a lower bound
// ("temporalio" or "*") is kept only if no later source pins a version.
func (r *Resolver) ResolveFS(ctx context.Context, fsys fs.FS) *Declaration {
	var unbounded *Declaration
	for _, src := range sources {
		if ctx.Err() != nil {
			break
		}
		line, exists, err := src.find(fsys, r.pkg)
		if !exists {
			continue
		}
		if err != nil {
			r.logger.Warn("manifest unreadable", "file", src.file, "error", err)
			continue
		}
		if line.Name == "" {
			r.logger.Debug("package not declared", "file", src.file, "package", r.pkg)
			continue
		}
		decl, ok := r.declaration(src.file, line)
		if !ok {
			continue
		}
		if decl.Version() == "" {
			if unbounded == nil {
				unbounded = decl
			}
			continue
		}
		r.logger.Debug("declared version found", "file", src.file, "package", r.pkg, "requirement", decl.Requirement.String())
		return decl
	}
	return unbounded
}

func (r *Resolver) declaration(file string, line reqLine) (*Declaration, bool) {
	d := &Declaration{Package: r.pkg, Source: file}

	if line.Ref != "" {
		d.Raw = line.Ref
		v, ok := versionFromRef(line.Ref)
		if !ok {
			r.logger.Debug("no version in source reference", "file", file, "ref", line.Ref)
			return nil, false
		}
		req, err := version.ParseRequirement("==" + v)
		if err != nil {
			r.logger.Warn("unusable version in source reference", "file", file, "ref", line.Ref, "error", err)
			return nil, false
		}
		d.Requirement = req
		d.Notes = append(d.Notes, "version recovered from source reference "+line.Ref)
		return d, true
	}

	d.Raw = line.Spec
	req, err := version.ParseRequirement(line.Spec)
	if err != nil {
		r.logger.Warn("malformed version requirement", "file", file, "requirement", line.Spec, "error", err)
		return nil, false
	}
	if req.Lower() == "" {
		d.Notes = append(d.Notes, "declared without a lower bound; compatibility cannot be checked")
	}
	d.Requirement = req
	return d, true
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
