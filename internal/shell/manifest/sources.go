package manifest

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/ini.v1"
)

// =============================================================================
// Manifest Sources
// =============================================================================

// source reads one manifest format. It returns the entry for pkg, whether the
// file exists, and a parse error for malformed content.
type source struct {
	file string
	find func(fsys fs.FS, pkg string) (reqLine, bool, error)
}

// sources lists the manifest formats in priority order.
var sources = []source{
	{file: "pyproject.toml", find: findPyproject},
	{file: "requirements.txt", find: findRequirements},
	{file: "poetry.lock", find: findPoetryLock},
	{file: "setup.cfg", find: findSetupCfg},
	{file: "setup.py", find: findSetupPy},
}

// -----------------------------------------------------------------------------
// pyproject.toml
// -----------------------------------------------------------------------------

type pyproject struct {
	Project struct {
		Dependencies         []string            `toml:"dependencies"`
		OptionalDependencies map[string][]string `toml:"optional-dependencies"`
	} `toml:"project"`
	Tool struct {
		Poetry struct {
			Dependencies map[string]any `toml:"dependencies"`
			Group        map[string]struct {
				Dependencies map[string]any `toml:"dependencies"`
			} `toml:"group"`
		} `toml:"poetry"`
	} `toml:"tool"`
}

func findPyproject(fsys fs.FS, pkg string) (reqLine, bool, error) {
	data, err := fs.ReadFile(fsys, "pyproject.toml")
	if err != nil {
		return reqLine{}, false, nil
	}
	var doc pyproject
	if err := toml.Unmarshal(data, &doc); err != nil {
		return reqLine{}, true, err
	}

	if r, ok := findInLines(doc.Project.Dependencies, pkg); ok {
		return r, true, nil
	}
	if r, ok, err := findPoetryDep(doc.Tool.Poetry.Dependencies, pkg); ok || err != nil {
		return r, true, err
	}
	for _, g := range sortedKeys(doc.Tool.Poetry.Group) {
		if r, ok, err := findPoetryDep(doc.Tool.Poetry.Group[g].Dependencies, pkg); ok || err != nil {
			return r, true, err
		}
	}
	for _, extra := range sortedKeys(doc.Project.OptionalDependencies) {
		if r, ok := findInLines(doc.Project.OptionalDependencies[extra], pkg); ok {
			return r, true, nil
		}
	}
	return reqLine{}, true, nil
}

func findInLines(lines []string, pkg string) (reqLine, bool) {
	for _, l := range lines {
		if r, ok := parseRequirementLine(l); ok && normalizeName(r.Name) == pkg {
			return r, true
		}
	}
	return reqLine{}, false
}

// findPoetryDep reads a [tool.poetry.dependencies] entry: a version string, a
// table with version, git/tag/rev, or url, or a list of such tables
// (multiple constraints), of which the first is used.
func findPoetryDep(deps map[string]any, pkg string) (reqLine, bool, error) {
	for name, v := range deps {
		if normalizeName(name) != pkg {
			continue
		}
		r := reqLine{Name: name}
		if err := poetryConstraint(&r, v); err != nil {
			return reqLine{}, true, fmt.Errorf("dependency %s: %w", name, err)
		}
		return r, true, nil
	}
	return reqLine{}, false, nil
}

func poetryConstraint(r *reqLine, v any) error {
	switch val := v.(type) {
	case string:
		r.Spec = strings.ReplaceAll(val, " ", "")
	case map[string]any:
		if s, ok := val["version"].(string); ok {
			r.Spec = strings.ReplaceAll(s, " ", "")
			return nil
		}
		for _, key := range []string{"tag", "rev"} {
			if s, ok := val[key].(string); ok {
				r.Ref = "@" + s
			}
		}
		if r.Ref == "" {
			for _, key := range []string{"git", "url", "path"} {
				if s, ok := val[key].(string); ok {
					r.Ref = s
					break
				}
			}
		}
		if r.Ref == "" {
			r.Spec = "*"
		}
	case []any:
		if len(val) == 0 {
			return errors.New("empty constraint list")
		}
		return poetryConstraint(r, val[0])
	default:
		return fmt.Errorf("unsupported dependency value %T", v)
	}
	return nil
}

// -----------------------------------------------------------------------------
// requirements.txt
// -----------------------------------------------------------------------------

func findRequirements(fsys fs.FS, pkg string) (reqLine, bool, error) {
	lines, err := readRequirements(fsys, "requirements.txt", 1)
	if err != nil {
		return reqLine{}, false, nil
	}
	r, ok := findInLines(lines, pkg)
	if !ok {
		return reqLine{}, true, nil
	}
	return r, true, nil
}

// readRequirements returns the requirement lines of name, following -r
// includes up to depth levels. Option lines and comments are dropped.
func readRequirements(fsys fs.FS, name string, depth int) ([]string, error) {
	f, err := fsys.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []string
	var pending string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := pending + scanner.Text()
		pending = ""
		if strings.HasSuffix(line, `\`) {
			pending = strings.TrimSuffix(line, `\`)
			continue
		}
		line = stripComment(line)
		if line == "" {
			continue
		}

		if inc, ok := includeTarget(line); ok {
			if depth <= 0 {
				continue
			}
			nested, err := readRequirements(fsys, path.Join(path.Dir(name), inc), depth-1)
			if err == nil {
				out = append(out, nested...)
			}
			continue
		}
		if strings.HasPrefix(line, "-") && !strings.HasPrefix(line, "-e") && !strings.HasPrefix(line, "--editable") {
			continue
		}
		out = append(out, line)
	}
	return out, scanner.Err()
}

// stripComment drops a trailing "# ..." comment but keeps URL fragments.
func stripComment(line string) string {
	line = strings.TrimSpace(line)
	if strings.HasPrefix(line, "#") {
		return ""
	}
	if i := strings.Index(line, " #"); i >= 0 {
		line = line[:i]
	}
	return strings.TrimSpace(line)
}

func includeTarget(line string) (string, bool) {
	for _, prefix := range []string{"-r ", "--requirement ", "--requirement="} {
		if strings.HasPrefix(line, prefix) {
			return strings.TrimSpace(strings.TrimPrefix(line, prefix)), true
		}
	}
	return "", false
}

// -----------------------------------------------------------------------------
// poetry.lock
// -----------------------------------------------------------------------------

type poetryLock struct {
	Package []struct {
		Name    string `toml:"name"`
		Version string `toml:"version"`
	} `toml:"package"`
}

func findPoetryLock(fsys fs.FS, pkg string) (reqLine, bool, error) {
	data, err := fs.ReadFile(fsys, "poetry.lock")
	if err != nil {
		return reqLine{}, false, nil
	}
	var lock poetryLock
	if err := toml.Unmarshal(data, &lock); err != nil {
		return reqLine{}, true, err
	}
	for _, p := range lock.Package {
		if normalizeName(p.Name) == pkg {
			return reqLine{Name: p.Name, Spec: "==" + p.Version}, true, nil
		}
	}
	return reqLine{}, true, nil
}

// -----------------------------------------------------------------------------
// setup.cfg / setup.py
// -----------------------------------------------------------------------------

func findSetupCfg(fsys fs.FS, pkg string) (reqLine, bool, error) {
	data, err := fs.ReadFile(fsys, "setup.cfg")
	if err != nil {
		return reqLine{}, false, nil
	}
	cfg, err := ini.LoadSources(ini.LoadOptions{AllowPythonMultilineValues: true}, data)
	if err != nil {
		return reqLine{}, true, err
	}
	raw := cfg.Section("options").Key("install_requires").String()
	if r, ok := findInLines(strings.Split(raw, "\n"), pkg); ok {
		return r, true, nil
	}
	return reqLine{}, true, nil
}

var (
	installRequiresRe = regexp.MustCompile(`(?s)install_requires\s*=\s*\[(.*?)\]`)
	stringLiteralRe   = regexp.MustCompile(`["']([^"']+)["']`)
)

func findSetupPy(fsys fs.FS, pkg string) (reqLine, bool, error) {
	data, err := fs.ReadFile(fsys, "setup.py")
	if err != nil {
		return reqLine{}, false, nil
	}
	m := installRequiresRe.FindSubmatch(data)
	if m == nil {
		return reqLine{}, true, nil
	}
	var lines []string
	for _, lit := range stringLiteralRe.FindAllSubmatch(m[1], -1) {
		lines = append(lines, string(lit[1]))
	}
	r, _ := findInLines(lines, pkg)
	return r, true, nil
}
