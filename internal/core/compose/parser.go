package compose

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"github.com/artpar/svcplan/internal/core/detect"
	"github.com/artpar/svcplan/internal/core/domain"
	"github.com/compose-spec/compose-go/v2/loader"
	"github.com/compose-spec/compose-go/v2/types"
	"gopkg.in/yaml.v3"
)

// DetectedBy is the probe name recorded on services found in compose files.
const DetectedBy = "compose"

// FileNames lists the compose file names looked up in a project directory,
// in lookup order.
var FileNames = []string{"compose.yaml", "compose.yml", "docker-compose.yaml", "docker-compose.yml"}

// =============================================================================
// Parser Functions
// =============================================================================

// ParseDeclarations parses Docker Compose YAML into service declarations,
// sorted by service name.
// This is a pure function - no I/O, no side effects. Variables without a
// value in env interpolate to the empty string.
func ParseDeclarations(yamlContent string, env map[string]string) ([]Declaration, error) {
	if strings.TrimSpace(yamlContent) == "" {
		return nil, ErrEmptyInput
	}

	project, err := loadProject(yamlContent, env)
	if err != nil {
		return nil, err
	}
	if len(project.Services) == 0 {
		return nil, ErrNoServices
	}

	decls := make([]Declaration, 0, len(project.Services))
	for _, svc := range project.Services {
		decls = append(decls, convertService(svc))
	}
	sort.Slice(decls, func(i, j int) bool { return decls[i].Name < decls[j].Name })
	return decls, nil
}

// loadProject loads a compose file using compose-go.
func loadProject(yamlContent string, env map[string]string) (*types.Project, error) {
	var dict map[string]interface{}
	if err := yaml.Unmarshal([]byte(yamlContent), &dict); err != nil {
		return nil, NewParseError("", "invalid YAML syntax", ErrInvalidYAML)
	}
	if dict == nil {
		return nil, NewParseError("", "invalid YAML syntax", ErrInvalidYAML)
	}

	project, err := loader.LoadWithContext(context.Background(), types.ConfigDetails{
		ConfigFiles: []types.ConfigFile{
			{
				Content: []byte(yamlContent),
				Config:  dict,
			},
		},
		Environment: types.Mapping(env),
	}, func(opts *loader.Options) {
		opts.SetProjectName("svcplan-scan", false)
		// Declarations are read, not run: tolerate services a full
		// validation would reject.
		opts.SkipValidation = true
		opts.SkipNormalization = true
		opts.SkipExtends = true
		opts.SkipConsistencyCheck = true
	})
	if err != nil {
		return nil, NewParseError("", err.Error(), ErrInvalidYAML)
	}
	return project, nil
}

// convertService converts a compose-go service to a Declaration.
func convertService(svc types.ServiceConfig) Declaration {
	decl := Declaration{
		Name:          svc.Name,
		Image:         svc.Image,
		ContainerName: svc.ContainerName,
		HasBuild:      svc.Build != nil,
	}
	for _, p := range svc.Ports {
		var published uint32
		if p.Published != "" {
			// Ranges ("8000-8010") keep the first port.
			first, _, _ := strings.Cut(p.Published, "-")
			if pub, err := strconv.ParseUint(first, 10, 32); err == nil {
				published = uint32(pub)
			}
		}
		decl.Ports = append(decl.Ports, Port{
			Target:    p.Target,
			Published: published,
			Protocol:  p.Protocol,
			HostIP:    p.HostIP,
		})
	}
	return decl
}

// =============================================================================
// Classification
// =============================================================================

// DeclaredServices classifies declarations against the known container
// signatures and returns one DetectedService per match, with status unknown.
// The host port is the published port of the first signature port found,
// else the type's default port.
func DeclaredServices(decls []Declaration, host string) []domain.DetectedService {
	var out []domain.DetectedService
	for _, d := range decls {
		name := d.ContainerName
		if name == "" {
			name = d.Name
		}
		t, ok := detect.Classify(detect.ContainerFacts{Image: d.Image, Name: name, Ports: d.targets()})
		if !ok {
			continue
		}

		version := domain.VersionUnknown
		if d.Image != "" {
			version = detect.ImageVersion(d.Image)
		}

		svc := domain.DetectedService{
			Name:       d.Name,
			Type:       t,
			Status:     domain.StatusUnknown,
			Version:    version,
			Host:       host,
			Port:       hostPort(d, t),
			DetectedBy: DetectedBy,
			Metadata: map[string]string{
				"compose_service": d.Name,
			},
		}
		if d.Image != "" {
			svc.Metadata["image"] = d.Image
		}
		out = append(out, svc.WithFingerprint())
	}
	return out
}

func hostPort(d Declaration, t domain.ServiceType) int {
	def := t.Info().DefaultPort
	for _, p := range d.Ports {
		if int(p.Target) == def {
			return p.HostPort()
		}
	}
	if len(d.Ports) > 0 {
		return d.Ports[0].HostPort()
	}
	return def
}
