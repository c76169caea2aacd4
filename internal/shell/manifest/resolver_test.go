package manifest

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestResolver() *Resolver {
	return New("", slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func mapFS(files map[string]string) fstest.MapFS {
	fsys := fstest.MapFS{}
	for name, data := range files {
		fsys[name] = &fstest.MapFile{Data: []byte(data)}
	}
	return fsys
}

// =============================================================================
// Sources
// =============================================================================

func TestResolveFS_Sources(t *testing.T) {
	tests := []struct {
		name       string
		files      map[string]string
		wantSource string
		wantReq    string
		wantVer    string
	}{
		{
			name: "PEP 621 dependencies",
			files: map[string]string{"pyproject.toml": `
[project]
name = "shop"
dependencies = ["requests>=2", "temporalio[opentelemetry]>=1.5.0,<2.0 ; python_version >= '3.9'"]
`},
			wantSource: "pyproject.toml",
			wantReq:    ">=1.5.0,<2.0.0",
			wantVer:    "1.5.0",
		},
		{
			name: "poetry caret",
			files: map[string]string{"pyproject.toml": `
[tool.poetry.dependencies]
python = "^3.11"
temporalio = "^1.7.0"
`},
			wantSource: "pyproject.toml",
			wantReq:    ">=1.7.0,<2.0.0",
			wantVer:    "1.7.0",
		},
		{
			name: "poetry table with version",
			files: map[string]string{"pyproject.toml": `
[tool.poetry.dependencies]
temporalio = { version = "~1.6", extras = ["opentelemetry"] }
`},
			wantSource: "pyproject.toml",
			wantReq:    ">=1.6.0,<1.7.0",
			wantVer:    "1.6.0",
		},
		{
			name: "poetry git tag",
			files: map[string]string{"pyproject.toml": `
[tool.poetry.dependencies]
temporalio = { git = "https://github.com/temporalio/sdk-python.git", tag = "v1.6.0" }
`},
			wantSource: "pyproject.toml",
			wantReq:    "==1.6.0",
			wantVer:    "1.6.0",
		},
		{
			name: "poetry multiple constraints",
			files: map[string]string{
				"pyproject.toml": `
[tool.poetry.dependencies]
temporalio = [
    { version = "^1.5", python = ">=3.9" },
    { version = "^1.2", python = "<3.9" },
]
`,
				"requirements.txt": "temporalio==1.0.0\n",
			},
			wantSource: "pyproject.toml",
			wantReq:    ">=1.5.0,<2.0.0",
			wantVer:    "1.5.0",
		},
		{
			name: "poetry group",
			files: map[string]string{"pyproject.toml": `
[tool.poetry.group.worker.dependencies]
temporalio = "1.4.0"
`},
			wantSource: "pyproject.toml",
			wantReq:    "==1.4.0",
			wantVer:    "1.4.0",
		},
		{
			name:       "requirements exact",
			files:      map[string]string{"requirements.txt": "flask==3.0\ntemporalio==1.5.1  # worker\n"},
			wantSource: "requirements.txt",
			wantReq:    "==1.5.1",
			wantVer:    "1.5.1",
		},
		{
			name:       "requirements compatible release",
			files:      map[string]string{"requirements.txt": "temporalio~=1.4.2\n"},
			wantSource: "requirements.txt",
			wantReq:    ">=1.4.2,<1.5.0",
			wantVer:    "1.4.2",
		},
		{
			name:       "requirements wildcard",
			files:      map[string]string{"requirements.txt": "temporalio==1.5.*\n"},
			wantSource: "requirements.txt",
			wantReq:    ">=1.5.0,<1.6.0",
			wantVer:    "1.5.0",
		},
		{
			name: "requirements include",
			files: map[string]string{
				"requirements.txt":      "-r requirements/base.txt\n--index-url https://pypi.org/simple\n",
				"requirements/base.txt": "temporalio>=1.3\n",
			},
			wantSource: "requirements.txt",
			wantReq:    ">=1.3.0",
			wantVer:    "1.3.0",
		},
		{
			name:       "requirements egg fragment",
			files:      map[string]string{"requirements.txt": "-e git+https://github.com/temporalio/sdk-python.git#egg=temporalio-1.6.0\n"},
			wantSource: "requirements.txt",
			wantReq:    "==1.6.0",
			wantVer:    "1.6.0",
		},
		{
			name:       "requirements direct reference",
			files:      map[string]string{"requirements.txt": "temporalio @ git+https://github.com/temporalio/sdk-python.git@v1.6.0\n"},
			wantSource: "requirements.txt",
			wantReq:    "==1.6.0",
			wantVer:    "1.6.0",
		},
		{
			name: "poetry lock",
			files: map[string]string{"poetry.lock": `
[[package]]
name = "requests"
version = "2.32.0"

[[package]]
name = "temporalio"
version = "1.7.1"
`},
			wantSource: "poetry.lock",
			wantReq:    "==1.7.1",
			wantVer:    "1.7.1",
		},
		{
			name: "setup.cfg",
			files: map[string]string{"setup.cfg": `
[metadata]
name = shop

[options]
install_requires =
    requests
    temporalio>=1.2,<2
`},
			wantSource: "setup.cfg",
			wantReq:    ">=1.2.0,<2.0.0",
			wantVer:    "1.2.0",
		},
		{
			name: "setup.py",
			files: map[string]string{"setup.py": `
from setuptools import setup

setup(
    name="shop",
    install_requires=[
        "requests",
        'temporalio>=1.1.0',
    ],
)
`},
			wantSource: "setup.py",
			wantReq:    ">=1.1.0",
			wantVer:    "1.1.0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decl := newTestResolver().ResolveFS(context.Background(), mapFS(tt.files))
			require.NotNil(t, decl)
			assert.Equal(t, "temporalio", decl.Package)
			assert.Equal(t, tt.wantSource, decl.Source)
			assert.Equal(t, tt.wantReq, decl.Requirement.String())
			assert.Equal(t, tt.wantVer, decl.Version())
		})
	}
}

func TestResolveFS_Priority(t *testing.T) {
	decl := newTestResolver().ResolveFS(context.Background(), mapFS(map[string]string{
		"pyproject.toml":   "[project]\ndependencies = [\"temporalio>=1.5\"]\n",
		"requirements.txt": "temporalio==1.2.0\n",
	}))
	require.NotNil(t, decl)
	assert.Equal(t, "pyproject.toml", decl.Source)
}

func TestResolveFS_FallsThrough(t *testing.T) {
	t.Run("malformed manifest", func(t *testing.T) {
		decl := newTestResolver().ResolveFS(context.Background(), mapFS(map[string]string{
			"pyproject.toml":   "[project\ndependencies = ",
			"requirements.txt": "temporalio==1.5.0\n",
		}))
		require.NotNil(t, decl)
		assert.Equal(t, "requirements.txt", decl.Source)
	})

	t.Run("package not declared", func(t *testing.T) {
		decl := newTestResolver().ResolveFS(context.Background(), mapFS(map[string]string{
			"pyproject.toml": "[project]\ndependencies = [\"requests\"]\n",
			"poetry.lock":    "[[package]]\nname = \"temporalio\"\nversion = \"1.5.0\"\n",
		}))
		require.NotNil(t, decl)
		assert.Equal(t, "poetry.lock", decl.Source)
	})

	t.Run("malformed requirement", func(t *testing.T) {
		decl := newTestResolver().ResolveFS(context.Background(), mapFS(map[string]string{
			"requirements.txt": "temporalio>=banana\n",
			"setup.py":         `setup(install_requires=["temporalio==1.0.0"])`,
		}))
		require.NotNil(t, decl)
		assert.Equal(t, "setup.py", decl.Source)
	})

	t.Run("unbounded kept as last resort", func(t *testing.T) {
		decl := newTestResolver().ResolveFS(context.Background(), mapFS(map[string]string{
			"requirements.txt": "temporalio\n",
		}))
		require.NotNil(t, decl)
		assert.Equal(t, "", decl.Version())
		assert.NotEmpty(t, decl.Notes)
	})

	t.Run("unbounded loses to lock file", func(t *testing.T) {
		decl := newTestResolver().ResolveFS(context.Background(), mapFS(map[string]string{
			"requirements.txt": "temporalio\n",
			"poetry.lock":      "[[package]]\nname = \"temporalio\"\nversion = \"1.8.0\"\n",
		}))
		require.NotNil(t, decl)
		assert.Equal(t, "1.8.0", decl.Version())
	})
}

func TestResolveFS_Undetectable(t *testing.T) {
	tests := map[string]map[string]string{
		"no manifests":    {},
		"git without tag": {"requirements.txt": "temporalio @ git+https://github.com/temporalio/sdk-python.git\n"},
		"branch ref":      {"requirements.txt": "temporalio @ git+https://github.com/temporalio/sdk-python.git@main\n"},
		"other packages":  {"requirements.txt": "temporal-sdk==1.0\ntemporalio-extras==2.0\n"},
	}
	for name, files := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Nil(t, newTestResolver().ResolveFS(context.Background(), mapFS(files)))
		})
	}
}

func TestResolveFS_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	decl := newTestResolver().ResolveFS(ctx, mapFS(map[string]string{"requirements.txt": "temporalio==1.5.0\n"}))
	assert.Nil(t, decl)
}

// =============================================================================
// Resolve
// =============================================================================

func TestResolve_Directory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "requirements.txt"), []byte("temporalio==1.5.0\n"), 0o644))

	decl, err := newTestResolver().Resolve(context.Background(), dir)
	require.NoError(t, err)
	require.NotNil(t, decl)
	assert.Equal(t, "1.5.0", decl.Version())
}

func TestResolve_InvalidDirectory(t *testing.T) {
	r := newTestResolver()

	_, err := r.Resolve(context.Background(), "")
	assert.ErrorIs(t, err, ErrInvalidProjectDir)

	_, err = r.Resolve(context.Background(), filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, ErrInvalidProjectDir)

	file := filepath.Join(t.TempDir(), "file.txt")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	_, err = r.Resolve(context.Background(), file)
	assert.ErrorIs(t, err, ErrInvalidProjectDir)
}

// =============================================================================
// Requirement Lines
// =============================================================================

func TestParseRequirementLine(t *testing.T) {
	tests := []struct {
		line string
		want reqLine
		ok   bool
	}{
		{"temporalio", reqLine{Name: "temporalio"}, true},
		{"temporalio >= 1.5, < 2", reqLine{Name: "temporalio", Spec: ">=1.5,<2"}, true},
		{"temporalio (>=1.5)", reqLine{Name: "temporalio", Spec: ">=1.5"}, true},
		{"Temporal_IO[otel]==1.0; sys_platform == 'linux'", reqLine{Name: "Temporal_IO", Spec: "==1.0"}, true},
		{"temporalio@git+https://x/y.git@v1.6.0", reqLine{Name: "temporalio", Ref: "git+https://x/y.git@v1.6.0"}, true},
		{"https://example.com/pkg.tar.gz", reqLine{}, false},
		{"", reqLine{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, ok := parseRequirementLine(tt.line)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestVersionFromRef(t *testing.T) {
	tests := []struct {
		ref  string
		want string
		ok   bool
	}{
		{"git+https://github.com/temporalio/sdk-python.git@v1.6.0", "1.6.0", true},
		{"git+https://github.com/temporalio/sdk-python.git@1.6", "1.6", true},
		{"git+https://github.com/temporalio/sdk-python.git#egg=temporalio-1.6.0", "1.6.0", true},
		{"@v1.7.0", "1.7.0", true},
		{"git+ssh://git@github.com/temporalio/sdk-python.git", "", false},
		{"git+https://github.com/temporalio/sdk-python.git@main", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			got, ok := versionFromRef(tt.ref)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeName(t *testing.T) {
	assert.Equal(t, "temporalio", normalizeName("TemporalIO"))
	assert.Equal(t, "temporal-io", normalizeName("Temporal__io"))
	assert.Equal(t, "a-b-c", normalizeName("a.b-_c"))
}
