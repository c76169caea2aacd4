package report

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/artpar/svcplan/internal/core/domain"
	"github.com/artpar/svcplan/internal/shell/manifest"
	"github.com/artpar/svcplan/internal/shell/store"
)

// RenderDetected writes the services found by the prober.
func RenderDetected(w io.Writer, services []domain.DetectedService, format Format) error {
	if w == nil {
		return ErrNilWriter
	}
	if services == nil {
		services = []domain.DetectedService{}
	}
	switch format {
	case FormatJSON:
		return encodeJSON(w, services)
	case FormatYAML:
		return encodeYAML(w, services)
	case FormatText, "":
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}

	if len(services) == 0 {
		_, _ = dimColor.Fprintln(w, "  no services detected")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "  NAME\tTYPE\tSTATUS\tVERSION\tADDRESS\tDETECTED BY")
	for _, s := range services {
		addr := "-"
		if s.Port > 0 {
			addr = s.Address()
		}
		fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\t%s\t%s\n",
			s.Name, s.Type, statusColor(s.Status).Sprint(string(s.Status)), s.Version, addr, s.DetectedBy)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	for _, s := range services {
		for _, n := range s.Notes {
			_, _ = dimColor.Fprintf(w, "  %s: %s\n", s.Name, n)
		}
	}
	return nil
}

// RenderHistory writes stored plan headers.
func RenderHistory(w io.Writer, records []store.PlanRecord, format Format) error {
	if w == nil {
		return ErrNilWriter
	}
	if records == nil {
		records = []store.PlanRecord{}
	}
	switch format {
	case FormatJSON:
		return encodeJSON(w, records)
	case FormatYAML:
		return encodeYAML(w, records)
	case FormatText, "":
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}

	if len(records) == 0 {
		_, _ = dimColor.Fprintln(w, "  no plans saved")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "  ID\tPROJECT\tCREATED\tREUSE\tCREATE\tALONGSIDE\tSKIP\tPROCEED")
	for _, r := range records {
		proceed := successColor.Sprint("yes")
		if !r.CanProceed {
			proceed = errorColor.Sprint("no ")
		}
		fmt.Fprintf(tw, "  %s\t%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
			r.ID, r.Project, r.CreatedAt.Format("2006-01-02 15:04:05"), r.Reuse, r.Create, r.Alongside, r.Skip, proceed)
	}
	return tw.Flush()
}

// RenderDeclaration writes the declared version of pkg. A nil declaration
// renders as "not declared" in text and as null in JSON and YAML.
func RenderDeclaration(w io.Writer, pkg string, decl *manifest.Declaration, format Format) error {
	if w == nil {
		return ErrNilWriter
	}
	switch format {
	case FormatJSON:
		return encodeJSON(w, decl)
	case FormatYAML:
		return encodeYAML(w, decl)
	case FormatText, "":
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}

	if decl == nil {
		_, _ = warningColor.Fprintf(w, "  %s: not declared\n", pkg)
		return nil
	}
	fmt.Fprintf(w, "  %s %s\n", headerColor.Sprint(decl.Package), decl.Requirement.String())
	_, _ = dimColor.Fprintf(w, "  source: %s (%s)\n", decl.Source, decl.Raw)
	if v := decl.Version(); v != "" {
		fmt.Fprintf(w, "  version used for compatibility: %s\n", v)
	}
	for _, n := range decl.Notes {
		_, _ = dimColor.Fprintf(w, "  note: %s\n", n)
	}
	return nil
}
