package report

import (
	"fmt"
	"io"
	"net"
	"strconv"
	"text/tabwriter"

	"github.com/artpar/svcplan/internal/core/domain"
	"github.com/fatih/color"
)

var (
	headerColor  = color.New(color.FgBlue, color.Bold)
	successColor = color.New(color.FgGreen, color.Bold)
	warningColor = color.New(color.FgYellow, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	infoColor    = color.New(color.FgCyan, color.Bold)
	dimColor     = color.New(color.FgHiBlack)
)

// strategyColor gives every strategy a color with the same escape length so
// tabwriter columns stay aligned.
func strategyColor(s domain.Strategy) *color.Color {
	switch s {
	case domain.StrategyReuse:
		return successColor
	case domain.StrategyCreate:
		return infoColor
	case domain.StrategyAlongside:
		return warningColor
	default:
		return color.New(color.FgWhite, color.Bold)
	}
}

func statusColor(s domain.ServiceStatus) *color.Color {
	switch s {
	case domain.StatusRunning:
		return successColor
	case domain.StatusDegraded:
		return warningColor
	case domain.StatusStopped:
		return errorColor
	default:
		return color.New(color.FgWhite, color.Bold)
	}
}

// RenderText writes a human-readable plan.
func RenderText(w io.Writer, plan *domain.DeploymentPlanSummary) error {
	if w == nil {
		return ErrNilWriter
	}
	if plan == nil {
		return ErrNilPlan
	}

	_, _ = headerColor.Fprintf(w, "▸ Deployment plan %s\n", plan.ID())
	fmt.Fprintf(w, "  project: %s\n", plan.ProjectName())
	fmt.Fprintf(w, "  created: %s\n\n", plan.CreatedAt().Format("2006-01-02 15:04:05 MST"))

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "  SERVICE\tSTRATEGY\tADDRESS\tVERSION\tCOMPATIBILITY\tCONNECTION")
	for _, p := range plan.Services() {
		addr := net.JoinHostPort(p.Host, strconv.Itoa(p.Port))
		level := string(p.CompatibilityLevel)
		if level == "" {
			level = "-"
		}
		fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\t%s\t%s\n",
			p.ServiceName, strategyColor(p.Strategy).Sprint(string(p.Strategy)), addr, orDash(p.Version), level, orDash(p.ConnectionString))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(w)
	for _, p := range plan.Services() {
		fmt.Fprintf(w, "  %s: %s\n", p.ServiceName, p.Reason)
	}

	section(w, "Blockers", plan.Blockers(), errorColor, "✗")
	section(w, "Warnings", plan.Warnings(), warningColor, "⚠")
	section(w, "Recommendations", plan.Recommendations(), dimColor, "•")

	fmt.Fprintln(w)
	if plan.CanProceed() {
		_, _ = successColor.Fprintln(w, "✓ plan can proceed")
	} else {
		_, _ = errorColor.Fprintln(w, "✗ plan cannot proceed: resolve the blockers or rerun with --allow-incompatible")
	}
	return nil
}

func section(w io.Writer, title string, items []string, clr *color.Color, bullet string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintln(w)
	_, _ = headerColor.Fprintf(w, "▸ %s\n", title)
	for _, item := range items {
		_, _ = clr.Fprintf(w, "  %s %s\n", bullet, item)
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
