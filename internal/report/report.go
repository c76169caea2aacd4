// Package report renders deployment plans, detected services and plan
// history for people (text) and for tools (JSON, YAML).
package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/artpar/svcplan/internal/core/domain"
	"gopkg.in/yaml.v3"
)

var (
	// ErrNilWriter is returned when no destination writer is given.
	ErrNilWriter = errors.New("report destination is nil")

	// ErrNilPlan is returned when there is no plan to render.
	ErrNilPlan = errors.New("plan is nil")

	// ErrUnknownFormat is returned for an unsupported output format.
	ErrUnknownFormat = errors.New("unknown output format")
)

// Format selects the output encoding.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat maps a flag value to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "text", "table":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// Render writes the plan in the given format.
func Render(w io.Writer, plan *domain.DeploymentPlanSummary, format Format) error {
	if w == nil {
		return ErrNilWriter
	}
	if plan == nil {
		return ErrNilPlan
	}
	switch format {
	case FormatText, "":
		return RenderText(w, plan)
	case FormatJSON:
		return RenderJSON(w, plan)
	case FormatYAML:
		return RenderYAML(w, plan)
	}
	return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
}

// RenderJSON writes the plan as indented JSON.
func RenderJSON(w io.Writer, plan *domain.DeploymentPlanSummary) error {
	if w == nil {
		return ErrNilWriter
	}
	return encodeJSON(w, plan)
}

// RenderYAML writes the plan as YAML.
func RenderYAML(w io.Writer, plan *domain.DeploymentPlanSummary) error {
	if w == nil {
		return ErrNilWriter
	}
	return encodeYAML(w, plan)
}

// DecodeJSON reads a plan written by RenderJSON. The plan is validated.
func DecodeJSON(r io.Reader) (*domain.DeploymentPlanSummary, error) {
	var plan domain.DeploymentPlanSummary
	if err := json.NewDecoder(r).Decode(&plan); err != nil {
		return nil, fmt.Errorf("decode plan: %w", err)
	}
	return &plan, nil
}

func encodeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func encodeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}
