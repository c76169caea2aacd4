package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/artpar/svcplan/internal/engine"
	"github.com/artpar/svcplan/internal/report"
	"github.com/artpar/svcplan/internal/shell/store"
	"github.com/spf13/cobra"
)

// newRootCmd builds the command tree around a. Commands share a's config and
// logger, loaded once before any subcommand runs.
func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "svcplan",
		Short: "Plan how a project's backing services are provided",
		Long: `svcplan detects the Redis, PostgreSQL and Temporal instances already present
on this machine, reads the declared Temporal SDK version from the project's
Python manifests, and decides per service whether to reuse an instance, create
one, run one alongside an incompatible instance, or skip it.

It never starts, stops or modifies a service.`,
		Version:       fmt.Sprintf("%s (built %s)", Version, BuildTime),
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if _, err := report.ParseFormat(a.output); err != nil {
				return &CLIError{Op: "flags", Err: err, ExitCode: ExitConfigError}
			}
			cfg, err := LoadConfig(a.configPath)
			if err != nil {
				return &CLIError{Op: "config", Err: err, ExitCode: ExitConfigError}
			}
			a.cfg = cfg
			a.logger = SetupLogger(cfg, a.stderr)
			return nil
		},
	}
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)
	root.SetVersionTemplate("svcplan {{.Version}}\n")

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "Path to config file (default ./svcplan.yaml)")
	root.PersistentFlags().StringVarP(&a.output, "output", "o", "text", "Output format: text, json or yaml")

	root.AddCommand(
		newPlanCmd(a),
		newDetectCmd(a),
		newResolveCmd(a),
		newHistoryCmd(a),
		newVersionCmd(a),
	)
	return root
}

func (a *app) format() report.Format {
	f, _ := report.ParseFormat(a.output)
	return f
}

// projectDir picks the positional directory, then project.dir.
func (a *app) projectDir(args []string) string {
	if len(args) > 0 && args[0] != "" {
		return args[0]
	}
	if a.cfg.Project.Dir != "" {
		return a.cfg.Project.Dir
	}
	return "."
}

// projectName picks the flag, then project.name, then the directory name.
func (a *app) projectName(flag, dir string) string {
	if flag != "" {
		return flag
	}
	if a.cfg.Project.Name != "" {
		return a.cfg.Project.Name
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return filepath.Base(dir)
	}
	return filepath.Base(abs)
}

func (a *app) engine(ctx context.Context, dir string, save bool) (*engine.Engine, func(), error) {
	return a.newEngine(ctx, a.cfg, dir, save, a.logger)
}

// =============================================================================
// plan
// =============================================================================

type planOptions struct {
	project           string
	engineVersion     string
	allowIncompatible bool
	save              bool
}

func newPlanCmd(a *app) *cobra.Command {
	var opts planOptions
	cmd := &cobra.Command{
		Use:   "plan [PROJECT_DIR]",
		Short: "Detect services and print the deployment plan",
		Long: `Detect running services, read the declared Temporal SDK version and print
one decision per configured service.

Exits with status 3 when the plan has blockers. --allow-incompatible turns
known-bad compatibility blockers into warnings.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runPlan(cmd, args, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.project, "project", "p", "", "Project name (default: project.name or the directory name)")
	cmd.Flags().StringVar(&opts.engineVersion, "engine-version", "", "Temporal SDK version to plan for instead of the declared one")
	cmd.Flags().BoolVar(&opts.allowIncompatible, "allow-incompatible", false, "Proceed despite known-bad compatibility")
	cmd.Flags().BoolVar(&opts.save, "save", false, "Save the plan to the history store")
	return cmd
}

func (a *app) runPlan(cmd *cobra.Command, args []string, opts planOptions) error {
	ctx := cmd.Context()
	dir := a.projectDir(args)

	save := a.cfg.Plan.Save
	if cmd.Flags().Changed("save") {
		save = opts.save
	}
	e, cleanup, err := a.engine(ctx, dir, save)
	if err != nil {
		return err
	}
	defer cleanup()

	req := engine.Request{
		Project:       a.projectName(opts.project, dir),
		Dir:           dir,
		EngineVersion: opts.engineVersion,
	}
	if cmd.Flags().Changed("allow-incompatible") {
		req.AllowIncompatible = &opts.allowIncompatible
	}

	res, err := e.PlanTo(ctx, req, a.stdout, a.format())
	if err != nil {
		return &CLIError{Op: "plan", Err: err, ExitCode: planExitCode(err)}
	}
	if res.Saved {
		a.logger.Info("plan saved", "plan_id", res.Plan.ID(), "dsn", a.cfg.Store.DSN)
	}
	if !res.Plan.CanProceed() {
		return &CLIError{Op: "plan", Err: errCannotProceed, ExitCode: ExitCannotProceed}
	}
	return nil
}

func planExitCode(err error) int {
	var sErr *store.StoreError
	if errors.As(err, &sErr) {
		return ExitStoreError
	}
	return ExitError
}

// =============================================================================
// detect
// =============================================================================

func newDetectCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "detect [PROJECT_DIR]",
		Short: "List the backing services found on this machine",
		Long: `Run every probe and list what it found. The project directory is only
searched for a compose file.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, cleanup, err := a.engine(cmd.Context(), a.projectDir(args), false)
			if err != nil {
				return err
			}
			defer cleanup()
			return report.RenderDetected(a.stdout, e.Detect(cmd.Context()), a.format())
		},
	}
}

// =============================================================================
// resolve
// =============================================================================

func newResolveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve [PROJECT_DIR]",
		Short: "Print the Temporal SDK version declared by the project",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, cleanup, err := a.engine(cmd.Context(), a.projectDir(args), false)
			if err != nil {
				return err
			}
			defer cleanup()
			decl, err := e.Resolve(cmd.Context(), a.projectDir(args))
			if err != nil {
				return &CLIError{Op: "resolve", Err: err, ExitCode: ExitError}
			}
			return report.RenderDeclaration(a.stdout, a.cfg.Plan.SDKPackage, decl, a.format())
		},
	}
}

// =============================================================================
// history
// =============================================================================

func newHistoryCmd(a *app) *cobra.Command {
	var (
		opts   store.ListOptions
		show   string
		latest bool
	)
	cmd := &cobra.Command{
		Use:   "history [PROJECT]",
		Short: "List saved plans",
		Long: `List plans saved with "plan --save", newest first. Without PROJECT every
project is listed. --show prints one saved plan in full.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := openStore(a.cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			project := a.cfg.Project.Name
			if len(args) > 0 {
				project = args[0]
			}

			switch {
			case show != "":
				plan, err := s.GetPlan(ctx, show)
				if err != nil {
					return &CLIError{Op: "history", Err: err, ExitCode: ExitStoreError}
				}
				return report.Render(a.stdout, plan, a.format())
			case latest:
				if project == "" {
					return &CLIError{Op: "history", Err: errors.New("--latest needs a project"), ExitCode: ExitConfigError}
				}
				plan, err := s.LatestPlan(ctx, project)
				if err != nil {
					return &CLIError{Op: "history", Err: err, ExitCode: ExitStoreError}
				}
				return report.Render(a.stdout, plan, a.format())
			}

			records, err := s.ListPlans(ctx, project, opts)
			if err != nil {
				return &CLIError{Op: "history", Err: err, ExitCode: ExitStoreError}
			}
			return report.RenderHistory(a.stdout, records, a.format())
		},
	}
	def := store.DefaultListOptions()
	cmd.Flags().IntVar(&opts.Limit, "limit", def.Limit, "Maximum number of plans to list")
	cmd.Flags().IntVar(&opts.Offset, "offset", def.Offset, "Number of plans to skip")
	cmd.Flags().StringVar(&show, "show", "", "Print the saved plan with this id")
	cmd.Flags().BoolVar(&latest, "latest", false, "Print the newest saved plan of the project")
	return cmd
}

// =============================================================================
// version
// =============================================================================

func newVersionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the svcplan version",
		Args:  cobra.NoArgs,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(a.stdout, "svcplan %s (built %s)\n", Version, BuildTime)
			return nil
		},
	}
}
